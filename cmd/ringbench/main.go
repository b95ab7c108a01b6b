// Command ringbench sweeps ring-search discovery across line-topology
// lengths on the in-process mesh simulator and records latency/hop-count
// results, optionally to CSV.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meshroute/internal/logger"
	zapfactory "meshroute/internal/logger/zap"
	"meshroute/internal/ringbench"
	"meshroute/internal/ringbench/writer"
)

var defaultConfigPath = "config/ringbench/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	flag.Parse()

	cfg, err := ringbench.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration from %q: %v", *configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	var lgr logger.Logger
	if cfg.Logger.Active {
		zapLog, err := zapfactory.New(cfg.Logger)
		if err != nil {
			log.Fatalf("failed to initialize logger: %v", err)
		}
		defer func() { _ = zapLog.Sync() }()
		lgr = zapfactory.NewAdapter(zapLog)
	} else {
		lgr = &logger.NopLogger{}
	}

	var w writer.Writer
	if cfg.CSV.Enabled {
		w, err = writer.NewCSVWriter(cfg.CSV.Path)
		if err != nil {
			lgr.Error("failed to initialize CSV writer", logger.F("err", err))
			return
		}
	} else {
		w = writer.NopWriter{}
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		lgr.Warn("received termination signal", logger.F("signal", sig.String()))
		cancel()
	}()

	runner := ringbench.New(cfg, lgr.Named("ringbench"), w)
	start := time.Now()
	if err := runner.Run(ctx); err != nil {
		lgr.Error("ringbench run failed", logger.F("err", err))
	}
	lgr.Info("ringbench finished", logger.F("elapsed", time.Since(start)))
}
