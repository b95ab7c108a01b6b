// Command meshsim runs the end-to-end scenarios of spec §8 against an
// in-process simulated mesh, without any real BLE transport.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meshroute/internal/config"
	"meshroute/internal/logger"
	zapfactory "meshroute/internal/logger/zap"
	"meshroute/internal/meshsim"
)

func main() {
	scenario := flag.String("scenario", "all", "scenario to run: s1, s4, s6, or all")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	var lgr logger.Logger = &logger.NopLogger{}
	if *verbose {
		cfg := config.LoggerConfig{Active: true, Level: "debug", Encoding: "console", Mode: "development"}
		zapLog, err := zapfactory.New(cfg)
		if err != nil {
			log.Fatalf("failed to initialize logger: %v", err)
		}
		defer func() { _ = zapLog.Sync() }()
		lgr = zapfactory.NewAdapter(zapLog)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
	}()

	var results []meshsim.Result
	switch *scenario {
	case "s1":
		results = append(results, meshsim.ThreeHopDiscovery(ctx, lgr))
	case "s4":
		results = append(results, meshsim.LinkLossCascade(ctx, lgr))
	case "s6":
		results = append(results, meshsim.LateRreqDrop(ctx, lgr))
	case "all":
		results = append(results,
			meshsim.ThreeHopDiscovery(ctx, lgr),
			meshsim.LateRreqDrop(ctx, lgr),
			meshsim.LinkLossCascade(ctx, lgr),
		)
	default:
		log.Fatalf("unknown scenario %q (want s1, s4, s6, or all)", *scenario)
	}

	exit := 0
	for _, r := range results {
		status := "PASS"
		if !r.Success {
			status = "FAIL"
			exit = 1
		}
		log.Printf("[%s] %s: %s", status, r.Name, r.Detail)
	}
	os.Exit(exit)
}
