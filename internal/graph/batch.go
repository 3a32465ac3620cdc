package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/e7canasta/orion-care-sensor/modules/accelcache/internal/tensor"
)

// Batch is a named mapping of buffers flowing through one forward pass.
// Single-buffer models wrap their tensor with Single / SingleOutput so every
// call site speaks the same shape.
type Batch map[string]*tensor.Tensor

// InputName is the canonical name used by Single for one-tensor inputs.
const InputName = "input"

// Single wraps a bare tensor into the canonical single-input batch.
func Single(t *tensor.Tensor) Batch {
	return Batch{InputName: t}
}

// ShapeKey derives a stable key from the batch: names sorted
// lexicographically, "name:shape" pairs joined with "|". Identical logical
// inputs always produce identical keys, and no two distinct name/shape
// combinations collapse.
func (b Batch) ShapeKey() string {
	names := make([]string, 0, len(b))
	for name := range b {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + ":" + b[name].Shape().Key()
	}
	return strings.Join(parts, "|")
}

// Device returns the device the batch lives on (taken from the
// lexicographically first entry, so the answer is deterministic).
func (b Batch) Device() tensor.Device {
	first := ""
	for name := range b {
		if first == "" || name < first {
			first = name
		}
	}
	if first == "" {
		return tensor.CPU0
	}
	return b[first].Device()
}

// Clone returns a deep copy: every tensor independently cloned.
func (b Batch) Clone() Batch {
	c := make(Batch, len(b))
	for name, t := range b {
		c[name] = t.Clone()
	}
	return c
}

// CopyInto copies every entry element-wise into the matching entry of dst.
// All names must exist in dst with matching shape and dtype.
func (b Batch) CopyInto(dst Batch) error {
	for name, src := range b {
		d, ok := dst[name]
		if !ok {
			return fmt.Errorf("graph: batch copy: no destination buffer %q", name)
		}
		if err := d.CopyFrom(src); err != nil {
			return fmt.Errorf("graph: batch copy %q: %w", name, err)
		}
	}
	return nil
}

// Forward is the forward-pass callable supplied by the model wrapper.
// Implementations must be safe for the cache to invoke repeatedly against
// the same input buffers.
type Forward interface {
	Forward(ctx context.Context, in Batch) (Batch, error)
}

// ForwardFunc adapts a function to the Forward interface.
type ForwardFunc func(ctx context.Context, in Batch) (Batch, error)

func (f ForwardFunc) Forward(ctx context.Context, in Batch) (Batch, error) {
	return f(ctx, in)
}
