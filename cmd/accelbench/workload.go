package main

import (
	"context"
	"fmt"

	"github.com/e7canasta/orion-care-sensor/modules/accelcache"
)

// SyntheticDetector is a stand-in forward pass: a scale-and-threshold sweep
// over the input batch using a pooled scratch buffer, heavy enough to make
// pool reuse and graph replay visible in the stats.
type SyntheticDetector struct {
	pool *accelcache.Pool

	scale     float32
	threshold float32
}

// NewSyntheticDetector creates the workload model backed by a buffer pool.
func NewSyntheticDetector(pool *accelcache.Pool) *SyntheticDetector {
	return &SyntheticDetector{pool: pool, scale: 1.5, threshold: 0.5}
}

// Forward runs one synthetic pass. The output has the same shape as the
// input so repeated passes over one shape are graph-capturable.
func (d *SyntheticDetector) Forward(ctx context.Context, inputs accelcache.Batch) (accelcache.Batch, error) {
	in, ok := inputs[accelcache.InputName]
	if !ok {
		return nil, fmt.Errorf("workload: batch missing %q input", accelcache.InputName)
	}

	out := accelcache.NewTensor(in.Shape(), in.DType(), in.Device())

	err := d.pool.WithBuffer(in.Shape(), in.DType(), in.Device(), func(scratch *accelcache.Tensor) error {
		if err := scratch.CopyFrom(in); err != nil {
			return err
		}

		src := scratch.Float32s()
		dst := out.Float32s()
		for i, v := range src {
			v *= d.scale
			if v < d.threshold {
				v = 0
			}
			dst[i] = v
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("workload: forward pass failed: %w", err)
	}

	return accelcache.Single(out), nil
}

// WorkloadResult summarizes one benchmark run.
type WorkloadResult struct {
	Passes    int
	PerShape  map[string]int
	Completed bool
}

// runWorkload drives iterations forward passes per shape, round-robin across
// shapes so graph eviction pressure is realistic when shapes exceed capacity.
func runWorkload(ctx context.Context, cache *accelcache.GraphCache, model *SyntheticDetector, shapes []accelcache.Shape, iterations int) (WorkloadResult, error) {
	result := WorkloadResult{PerShape: make(map[string]int)}

	inputs := make([]*accelcache.Tensor, len(shapes))
	for i, shape := range shapes {
		inputs[i] = accelcache.NewTensor(shape, accelcache.Float32, accelcache.CPU0)
	}

	for iter := 0; iter < iterations; iter++ {
		for i, in := range inputs {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			default:
			}

			in.Fill(float64(iter%7) * 0.25)

			if _, err := cache.Run(ctx, accelcache.Single(in)); err != nil {
				return result, fmt.Errorf("pass %d shape %s: %w", iter, shapes[i], err)
			}

			result.Passes++
			result.PerShape[shapes[i].Key()]++
		}
	}

	result.Completed = true
	return result, nil
}
