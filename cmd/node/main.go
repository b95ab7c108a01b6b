// Command node runs a single routing-engine instance, wired to whatever
// BLE transport and element/provisioning stack the deployment supplies.
// spec §1 places send_ctl/recv_ctl and the element queries out of scope
// as an external collaborator; this binary's unwiredHost is the seam a
// real deployment replaces with its own control.Host implementation.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"meshroute/internal/config"
	"meshroute/internal/configloader"
	"meshroute/internal/control"
	"meshroute/internal/domain"
	"meshroute/internal/engine"
	"meshroute/internal/logger"
	zapfactory "meshroute/internal/logger/zap"
	"meshroute/internal/telemetry"
)

var defaultConfigPath = "config/node/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	flag.Parse()

	cfg, err := configloader.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration from %q: %v", *configPath, err)
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
	lgr = lgr.Named("node")
	lgr.Info("loaded configuration",
		logger.F("primary_addr", domain.Addr(cfg.Node.PrimaryAddr).String()),
		logger.F("elem_count", cfg.Node.ElemCount),
		logger.F("net", cfg.Node.Net),
	)

	shutdownTracer, err := telemetry.InitTracer(cfg.Telemetry, "meshroute-node", cfg.Node.PrimaryAddr)
	if err != nil {
		lgr.Error("failed to initialize telemetry", logger.F("err", err))
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	host := &unwiredHost{cfg: cfg, logger: lgr.Named("host")}
	eng := engine.New(cfg, host, engine.WithLogger(lgr.Named("engine")))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := eng.Start(ctx); err != nil {
		lgr.Error("failed to start engine", logger.F("err", err))
		os.Exit(1)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	lgr.Warn("received termination signal", logger.F("signal", sig.String()))

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := eng.Stop(stopCtx); err != nil {
		lgr.Error("engine stop failed", logger.F("err", err))
	}
}

// unwiredHost satisfies control.Host from configuration alone. SendCtl has
// no real radio to drive until this node is embedded in a host stack that
// supplies one; it logs a warning for every frame and returns nil, so the
// frame is dropped and the warning is the only sign that the substitution
// is missing.
type unwiredHost struct {
	cfg    *config.Config
	logger logger.Logger
	seq    atomic.Uint32
}

func (h *unwiredHost) SendCtl(ctx context.Context, tx domain.Addr, op control.Op, ttl uint8, bytes []byte) error {
	h.logger.Warn("send_ctl has no transport wired",
		logger.F("tx", tx.String()),
		logger.F("op", op.String()),
		logger.F("ttl", ttl),
		logger.F("len", len(bytes)),
	)
	return nil
}

func (h *unwiredHost) PrimaryAddr() domain.Addr { return domain.Addr(h.cfg.Node.PrimaryAddr) }
func (h *unwiredHost) ElemCount() uint16        { return h.cfg.Node.ElemCount }

func (h *unwiredHost) ElemFind(addr domain.Addr) bool {
	return domain.Range{Base: h.PrimaryAddr(), Count: h.ElemCount()}.Contains(addr)
}

func (h *unwiredHost) SessionSeq() uint32 {
	return h.seq.Add(1)
}

func (h *unwiredHost) SubnetGet(net domain.Net) []byte {
	h.logger.Warn("subnet_get has no provisioning layer wired", logger.F("net", int(net)))
	return nil
}
