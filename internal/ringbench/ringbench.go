// Package ringbench measures ring-search discovery latency and resolved
// hop count across a sweep of line-topology lengths, against the
// in-process mesh simulator rather than a real BLE transport.
package ringbench

import (
	"context"
	"fmt"
	"time"

	"meshroute/internal/logger"
	"meshroute/internal/meshsim"
	"meshroute/internal/ringbench/writer"
)

// Runner drives the benchmark sweep described by a Config.
type Runner struct {
	cfg    *Config
	logger logger.Logger
	writer writer.Writer
}

// New creates a Runner.
func New(cfg *Config, lgr logger.Logger, w writer.Writer) *Runner {
	return &Runner{cfg: cfg, logger: lgr, writer: w}
}

// Run sweeps chain lengths from cfg.Chain.MinHops to cfg.Chain.MaxHops,
// running cfg.Trials independent discoveries per length and writing one
// result row per trial.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("ringbench started",
		logger.F("min_hops", r.cfg.Chain.MinHops),
		logger.F("max_hops", r.cfg.Chain.MaxHops),
		logger.F("trials", r.cfg.Trials),
	)

	for chainLen := r.cfg.Chain.MinHops; chainLen <= r.cfg.Chain.MaxHops; chainLen++ {
		for trial := 0; trial < r.cfg.Trials; trial++ {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if err := r.runTrial(ctx, chainLen, trial); err != nil {
				r.logger.Warn("trial failed", logger.F("chain_len", chainLen), logger.F("trial", trial), logger.F("err", err.Error()))
			}
		}
	}

	r.logger.Info("ringbench finished")
	return r.writer.Flush()
}

// runTrial builds a fresh (chainLen+1)-node line topology, discovers a
// route from the first node to the last, and records the outcome.
func (r *Runner) runTrial(ctx context.Context, chainLen, trial int) error {
	bus := meshsim.NewBus(0, r.logger.Named("bus"))
	bus.SetTiming(r.cfg.Timing)
	nodes := meshsim.Chain(bus, chainLen+1, r.cfg.RSSI)
	first, last := nodes[0], nodes[len(nodes)-1]

	trialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	start := time.Now()
	err := first.Engine().RouteSendRequest(trialCtx, last.Addr(), 0)
	elapsed := time.Since(start)

	var result string
	var hopCount int
	switch {
	case err == nil:
		result = "SUCCESS"
		if h, ok := first.Engine().RouteHopCount(last.Addr(), 0); ok {
			hopCount = int(h)
		}
	default:
		result = fmt.Sprintf("ERROR_%v", err)
	}

	r.logger.Debug("trial complete",
		logger.F("chain_len", chainLen),
		logger.F("trial", trial),
		logger.F("result", result),
		logger.F("elapsed_ms", elapsed.Milliseconds()),
		logger.F("hop_count", hopCount),
	)

	return r.writer.WriteRow(chainLen, r.cfg.RSSI, trial, result, elapsed, hopCount)
}
