package main

import (
	"context"
	"fmt"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/accelcache"
	"github.com/e7canasta/orion-care-sensor/modules/accelcache/telemetry"
)

// reportStats periodically prints statistics from both caches
func reportStats(
	ctx context.Context,
	cfg Config,
	pool *accelcache.Pool,
	cache *accelcache.GraphCache,
	bus *telemetry.Bus,
) {
	ticker := time.NewTicker(cfg.StatsInterval)
	defer ticker.Stop()

	startTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			uptime := time.Since(startTime)
			printLiveStats(uptime, pool.Stats(), cache.Info(), bus.TotalPublished())
		}
	}
}

// printLiveStats prints current statistics from both caches
func printLiveStats(uptime time.Duration, ps accelcache.PoolStats, gi accelcache.GraphInfo, published uint64) {
	fmt.Println()
	fmt.Println("╭─────────────────────────────────────────────────────────────────╮")
	fmt.Printf("│ Cache Statistics (Uptime: %v)\n", uptime.Round(time.Second))
	fmt.Println("├─────────────────────────────────────────────────────────────────┤")

	fmt.Println("│ Buffer Pool:")
	fmt.Printf("│   Enabled:            %6v\n", ps.Enabled)
	fmt.Printf("│   Shape Buckets:      %6d\n", ps.TotalPools)
	fmt.Printf("│   Tracked Buffers:    %6d (%d in use)\n", ps.TotalTensors, ps.InUse)
	fmt.Printf("│   Memory:             %6.1f MB / %d MB budget\n", ps.TotalSizeMB, ps.BudgetMB)
	if ps.OverBudget {
		fmt.Printf("│   Budget:             OVER (eviction recommended)\n")
	}
	fmt.Printf("│   Hit Rate:           %6.1f%% (%d hits, %d misses)\n",
		hitRate(ps.Hits, ps.Misses), ps.Hits, ps.Misses)
	fmt.Printf("│   Evictions:          %6d\n", ps.Evictions)

	fmt.Println("│")
	fmt.Println("│ Graph Cache:")
	fmt.Printf("│   Enabled:            %6v\n", gi.Enabled)
	fmt.Printf("│   Cached Graphs:      %6d / %d\n", gi.Count, gi.Capacity)
	fmt.Printf("│   Warming Shapes:     %6d\n", len(gi.WarmupProgress))
	fmt.Printf("│   Failed Shapes:      %6d\n", gi.FailedShapes)
	fmt.Printf("│   Total Replays:      %6d\n", gi.TotalReplays)

	fmt.Println("│")
	fmt.Printf("│ Telemetry:            %6d snapshots published\n", published)

	fmt.Println("╰─────────────────────────────────────────────────────────────────╯")
	fmt.Println()
}

// printFinalStats prints final statistics at shutdown
func printFinalStats(elapsed time.Duration, result WorkloadResult, pool *accelcache.Pool, cache *accelcache.GraphCache) {
	ps := pool.Stats()
	gi := cache.Info()

	fmt.Println()
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println("                     Final Statistics                         ")
	fmt.Println("═══════════════════════════════════════════════════════════════")

	fmt.Printf("  Elapsed:               %v\n", elapsed.Round(time.Millisecond))
	fmt.Printf("  Forward Passes:        %d", result.Passes)
	if !result.Completed {
		fmt.Print(" (interrupted)")
	}
	fmt.Println()
	if elapsed > 0 {
		fmt.Printf("  Throughput:            %.1f passes/s\n",
			float64(result.Passes)/elapsed.Seconds())
	}

	fmt.Println()
	fmt.Println("  Per-Shape Passes:")
	for key, n := range result.PerShape {
		fmt.Printf("    %-20s: %d\n", key, n)
	}

	fmt.Println()
	fmt.Printf("  Pool Hit Rate:         %.1f%% (%d hits, %d misses)\n",
		hitRate(ps.Hits, ps.Misses), ps.Hits, ps.Misses)
	fmt.Printf("  Pool Memory:           %.1f MB across %d buckets\n", ps.TotalSizeMB, ps.TotalPools)
	fmt.Printf("  Pool Evictions:        %d\n", ps.Evictions)

	fmt.Println()
	fmt.Printf("  Cached Graphs:         %d / %d\n", gi.Count, gi.Capacity)
	fmt.Printf("  Graph Replays:         %d\n", gi.TotalReplays)
	if gi.FailedShapes > 0 {
		fmt.Printf("  Failed Captures:       %d shapes on slow path\n", gi.FailedShapes)
	}

	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println()
}

// hitRate calculates reuse percentage
func hitRate(hits, misses uint64) float64 {
	total := hits + misses
	if total == 0 {
		return 0.0
	}
	return float64(hits) / float64(total) * 100.0
}
