package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/e7canasta/orion-care-sensor/modules/accelcache"
	"github.com/e7canasta/orion-care-sensor/modules/accelcache/telemetry"
)

const version = "v0.1.0"

// Config for the benchmark run.
type Config struct {
	// Workload
	Shapes     []string
	Iterations int

	// Pool
	PoolSizeMB      int
	TensorsPerShape int

	// Graph cache
	Warmup    int
	MaxGraphs int

	// Telemetry
	StatsInterval time.Duration
	Broker        string

	// Logging
	Debug bool
}

func main() {
	cfg := Config{}
	var statsIntervalSec int
	var shapesFlag string

	root := &cobra.Command{
		Use:   "accelbench",
		Short: "Synthetic inference workload exercising the buffer pool and graph cache",
		Long: `accelbench drives a synthetic detector forward pass over a set of input
shapes, reporting pool hit rates and graph capture/replay behavior the
way the sensor's serving loop would see them.`,
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.StatsInterval = time.Duration(statsIntervalSec) * time.Second
			cfg.Shapes = strings.Split(shapesFlag, ",")
			return run(cfg)
		},
	}

	root.Flags().StringVar(&shapesFlag, "shapes", "1x3x64x64,1x3x128x128", "comma-separated input shapes to cycle through")
	root.Flags().IntVar(&cfg.Iterations, "iterations", 100, "forward passes per shape")
	root.Flags().IntVar(&cfg.PoolSizeMB, "pool-mb", 512, "advisory pool byte budget (MB)")
	root.Flags().IntVar(&cfg.TensorsPerShape, "tensors-per-shape", 8, "hard per-shape buffer cap")
	root.Flags().IntVar(&cfg.Warmup, "warmup", 3, "forward passes per shape before graph capture")
	root.Flags().IntVar(&cfg.MaxGraphs, "max-graphs", 16, "graph cache capacity")
	root.Flags().IntVar(&statsIntervalSec, "stats-interval", 5, "statistics reporting interval (seconds)")
	root.Flags().StringVar(&cfg.Broker, "broker", "", "MQTT broker host:port for telemetry (optional)")
	root.Flags().BoolVar(&cfg.Debug, "debug", false, "enable debug logging")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cfg Config) error {
	logLevel := slog.LevelInfo
	if cfg.Debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	shapes, err := parseShapes(cfg.Shapes)
	if err != nil {
		return err
	}

	printBanner(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("Shutdown signal received, stopping gracefully...")
		cancel()
	}()

	// 1. Buffer pool
	poolCfg := accelcache.DefaultPoolConfig()
	poolCfg.MaxPoolSizeMB = cfg.PoolSizeMB
	poolCfg.MaxTensorsPerShape = cfg.TensorsPerShape
	pool := accelcache.NewPool(poolCfg, nil)
	logger.Info("Buffer pool created", "budget_mb", cfg.PoolSizeMB)

	// 2. Synthetic model + graph cache
	model := NewSyntheticDetector(pool)
	graphCfg := accelcache.DefaultGraphConfig()
	graphCfg.WarmupIterations = cfg.Warmup
	graphCfg.MaxCachedGraphs = cfg.MaxGraphs
	cache := accelcache.NewGraphCache(model, nil, graphCfg)
	logger.Info("Graph cache created", "warmup", cfg.Warmup, "max_graphs", cfg.MaxGraphs)

	// 3. Telemetry
	bus := telemetry.NewBus()
	defer bus.Close()
	sampler := telemetry.NewSampler(pool, cache, bus, cfg.StatsInterval)
	go sampler.Run(ctx)

	if cfg.Broker != "" {
		emitter := telemetry.NewEmitter(telemetry.EmitterConfig{
			Broker:   cfg.Broker,
			ClientID: "accelbench",
			Topic:    "care/health/accelcache",
			QoS:      0,
		})
		if err := emitter.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect telemetry emitter: %w", err)
		}
		defer emitter.Disconnect()
		go func() {
			if err := emitter.Run(ctx, bus); err != nil {
				logger.Error("Telemetry emitter failed", "error", err)
			}
		}()
		logger.Info("Telemetry emitter started", "broker", cfg.Broker)
	}

	// 4. Background pool maintenance
	janitor := accelcache.NewJanitor(pool, cfg.StatsInterval, poolCfg.TensorTTL)
	go janitor.Run(ctx)

	// 5. Stats reporter
	go reportStats(ctx, cfg, pool, cache, bus)

	// 6. Drive the workload
	start := time.Now()
	result, err := runWorkload(ctx, cache, model, shapes, cfg.Iterations)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	cancel()
	printFinalStats(time.Since(start), result, pool, cache)
	return nil
}

func parseShapes(raw []string) ([]accelcache.Shape, error) {
	shapes := make([]accelcache.Shape, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		var shape accelcache.Shape
		for _, part := range strings.Split(s, "x") {
			var dim int
			if _, err := fmt.Sscanf(part, "%d", &dim); err != nil || dim <= 0 {
				return nil, fmt.Errorf("invalid shape %q: dimension %q", s, part)
			}
			shape = append(shape, dim)
		}
		shapes = append(shapes, shape)
	}
	if len(shapes) == 0 {
		return nil, fmt.Errorf("no input shapes given")
	}
	return shapes, nil
}

func printBanner(cfg Config) {
	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║        accelbench - Inference Cache Benchmark                ║")
	fmt.Printf("║                    Version %-30s ║\n", version)
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("  Shapes:          %s\n", strings.Join(cfg.Shapes, ", "))
	fmt.Printf("  Iterations:      %d per shape\n", cfg.Iterations)
	fmt.Printf("  Pool Budget:     %d MB (%d buffers/shape)\n", cfg.PoolSizeMB, cfg.TensorsPerShape)
	fmt.Printf("  Graph Warmup:    %d passes\n", cfg.Warmup)
	fmt.Printf("  Graph Capacity:  %d graphs\n", cfg.MaxGraphs)
	if cfg.Broker != "" {
		fmt.Printf("  MQTT Broker:     %s\n", cfg.Broker)
	}
	fmt.Printf("  Stats Interval:  %v\n", cfg.StatsInterval)
	fmt.Println()
	fmt.Println("Pipeline:")
	fmt.Println("  input batch → buffer pool → graph cache → synthetic detector")
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop gracefully")
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println()
}
