// Package main provides fatorch-bench, a tool that measures Scheduler
// (C6) throughput against synthetic channel counts and max_parallel
// settings — useful for dimensioning max_parallel against a real
// station's PLC round-trip latency. Adapted from
// cmd/tk-bench's benchmark harness: where tk-bench shells out to
// hyperfine against the tk binary, fatorch-bench measures the
// in-process Scheduler directly, since the expensive operation here is
// a goroutine pool over PLC round-trips, not a process invocation.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"fatorch/internal/channelstate"
	"fatorch/internal/config"
	"fatorch/internal/hardpoint"
	"fatorch/internal/model"
	"fatorch/internal/plcgateway"
	"fatorch/internal/scheduler"
)

func main() {
	counts := flag.String("counts", "10,100,1000", "comma-separated channel counts to benchmark")
	parallels := flag.String("max-parallel", "1,4,16", "comma-separated max_parallel values to benchmark")
	flag.Parse()

	countList, err := parseInts(*counts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	parallelList, err := parseInts(*parallels)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	cfg := config.DefaultConfig()
	// Benchmarks care about throughput under concurrency, not real
	// settle/inter-checkpoint delay; shrink the timing knobs so a run
	// completes in a reasonable time while still exercising every
	// suspension point.
	cfg.Settle = config.Duration(5 * time.Millisecond)
	cfg.InterCheckpoint = config.Duration(1 * time.Millisecond)

	fmt.Printf("%-10s %-14s %-12s %-14s\n", "channels", "max_parallel", "elapsed", "channels/sec")

	for _, n := range countList {
		for _, p := range parallelList {
			elapsed := benchOnce(cfg, n, p)
			rate := float64(n) / elapsed.Seconds()

			fmt.Printf("%-10d %-14d %-12s %-14.1f\n", n, p, elapsed.Round(time.Millisecond), rate)
		}
	}
}

func benchOnce(cfg config.Config, n, maxParallel int) time.Duration {
	testPLC := plcgateway.NewFake()
	targetPLC := plcgateway.NewFake()

	chMgr := channelstate.New(nil)

	channels := make([]*model.Channel, 0, n)

	for i := 0; i < n; i++ {
		c, err := chMgr.InitializeFromImport(channelstate.RawChannel{
			ID:            fmt.Sprintf("bench-%d", i),
			TestID:        i,
			Tag:           fmt.Sprintf("AI-%04d", i),
			ModuleType:    model.ModuleAI,
			TargetAddress: fmt.Sprintf("target.%d", i),
			TestAddress:   fmt.Sprintf("test.%d", i),
			RangeLow:      0,
			RangeHigh:     100,
			BatchID:       "bench",
			TestTag:       "bench",
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "error initializing channel:", err)
			os.Exit(1)
		}

		c2, err := chMgr.PrepareForWiringConfirmation(context.Background(), c.ID)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error preparing channel:", err)
			os.Exit(1)
		}

		channels = append(channels, c2)
	}

	registry := plcgateway.NewRegistry(testPLC, targetPLC)
	executor := hardpoint.New(registry, hardpoint.Params{
		Settle:           cfg.Settle.AsDuration(),
		InterCheckpoint:  cfg.InterCheckpoint.AsDuration(),
		ResetTimeout:     cfg.ResetTimeout.AsDuration(),
		ToleranceDefault: cfg.ToleranceDefault,
		ToleranceAO:      cfg.ToleranceAO,
		AOWritePercent:   cfg.AOWriteMode == config.AOWritePercent,
	})
	sched := scheduler.New(chMgr, executor, nil, maxParallel)

	start := time.Now()
	_ = sched.Run(context.Background(), channels)

	return time.Since(start)
}

func parseInts(csv string) ([]int, error) {
	var out []int

	start := 0

	for i := 0; i <= len(csv); i++ {
		if i == len(csv) || csv[i] == ',' {
			if i > start {
				var v int
				if _, err := fmt.Sscanf(csv[start:i], "%d", &v); err != nil {
					return nil, fmt.Errorf("invalid integer %q: %w", csv[start:i], err)
				}

				out = append(out, v)
			}

			start = i + 1
		}
	}

	return out, nil
}
