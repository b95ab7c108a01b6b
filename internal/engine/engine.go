// Package engine is the routing engine's facade (spec §2 "Engine
// facade"): it owns every component, wires them together, and exposes
// the three public entry points a host stack calls.
package engine

import (
	"context"

	"meshroute/internal/config"
	"meshroute/internal/control"
	"meshroute/internal/discovery"
	"meshroute/internal/domain"
	"meshroute/internal/errcollector"
	"meshroute/internal/hellotracker"
	"meshroute/internal/logger"
	"meshroute/internal/routetable"
)

// Engine is a single node's routing engine instance.
type Engine struct {
	logger logger.Logger
	cfg    *config.Config
	host   control.Host

	routes      *routetable.RouteTable
	hellos      *hellotracker.Tracker
	errs        *errcollector.Collector
	replies     *discovery.ReplyQueue
	coordinator *discovery.Coordinator
	handler     *control.Handler
}

// New builds an Engine from cfg, wired to the given host collaborator
// (spec §6 "Collaborator interface"). Components are built in this order:
// RouteTable, HelloTracker, ErrorCollector, the reply-event queue,
// ControlMessages, and last DiscoveryCoordinator, which uses the
// ControlMessages handler as its transport.
func New(cfg *config.Config, host control.Host, opts ...Option) *Engine {
	e := &Engine{
		logger: &logger.NopLogger{},
		cfg:    cfg,
		host:   host,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.routes = routetable.New(
		cfg.Capacity.RouteEntries,
		cfg.Timing.LifetimeData,
		cfg.Timing.RreqWait,
		cfg.Timing.AllocTimeout,
		cfg.Timing.RSSIMin,
		routetable.WithLogger(e.logger.Named("routetable")),
	)

	// handler is assigned below, after construction; the closure captures
	// the pointer so a neighbour-loss event occurring after Start() always
	// sees a fully wired Handler.
	var handler *control.Handler
	onExpire := func(n domain.NeighbourRecord) {
		if handler != nil {
			handler.HandleNeighbourLoss(context.Background(), n)
		}
	}
	e.hellos = hellotracker.New(
		cfg.Capacity.Neighbours,
		cfg.Timing.HelloLifetime,
		cfg.Timing.AllocTimeout,
		onExpire,
		hellotracker.WithLogger(e.logger.Named("hellotracker")),
	)

	e.errs = errcollector.New(
		e.routes,
		cfg.Capacity.RerrRecords,
		cfg.Timing.AllocTimeout,
		errcollector.WithLogger(e.logger.Named("errcollector")),
	)

	e.replies = discovery.NewReplyQueue(
		cfg.Capacity.ReplyEvents,
		cfg.Timing.AllocTimeout,
		discovery.WithQueueLogger(e.logger.Named("replyqueue")),
	)

	e.handler = control.New(
		host, e.routes, e.hellos, e.errs, e.replies,
		control.WithLogger(e.logger.Named("control")),
	)
	handler = e.handler

	e.coordinator = discovery.New(
		e.handler, e.routes, e.replies,
		cfg.Timing.RingInterval, cfg.Timing.RingMaxTTL,
		discovery.WithLogger(e.logger.Named("discovery")),
	)

	return e
}

// Start logs the engine's readiness. Every timer-driven subsystem
// (RouteTable deadlines, HelloTracker liveness) is already live the
// moment its owning component is constructed; Start exists so the host
// has a single lifecycle hook to call once its own wiring is complete.
func (e *Engine) Start(ctx context.Context) error {
	e.logger.Info("engine: started", logger.F("primary_addr", e.host.PrimaryAddr().String()))
	return nil
}

// Stop logs shutdown. Component teardown (timer cancellation) happens as
// each component's entries expire or are explicitly link-dropped; there
// is no global stop-the-world step in this design.
func (e *Engine) Stop(ctx context.Context) error {
	e.logger.Info("engine: stopped")
	return nil
}

// RouteSendRequest is invoked when the host has data for dst and no
// route is yet known (spec §6 "route_send_request"). It returns nil if a
// route is already valid or discovery succeeds, or domain.ErrNoReply if
// the ring search exhausts RING_MAX_TTL.
func (e *Engine) RouteSendRequest(ctx context.Context, dst domain.Addr, net domain.Net) error {
	if _, _, ok := e.routes.SearchValid(e.host.PrimaryAddr(), dst, net); ok {
		return nil
	}
	return e.coordinator.Discover(ctx, e.host.PrimaryAddr(), dst, net)
}

// OnCtlReceive is the entry point the host invokes for a received control
// message (spec §6).
func (e *Engine) OnCtlReceive(ctx context.Context, op control.Op, rx control.RxMeta, bytes []byte) error {
	return e.handler.OnCtlReceive(ctx, op, rx, bytes)
}

// OnHello is invoked by the host's heartbeat handler (spec §6).
func (e *Engine) OnHello(src domain.Addr, net domain.Net) error {
	return e.handler.OnHello(src, net)
}

// HasValidRoute reports whether a Valid route from this node to dst in
// net currently exists. It is a read-only introspection hook for tests
// and simulation harnesses, not part of the spec's collaborator surface.
func (e *Engine) HasValidRoute(dst domain.Addr, net domain.Net) bool {
	_, _, ok := e.routes.SearchValid(e.host.PrimaryAddr(), dst, net)
	return ok
}

// RouteHopCount returns the hop count of the Valid route from this node to
// dst in net, if one exists. Like HasValidRoute, it is an introspection
// hook for benchmarking and simulation, not part of the collaborator
// surface.
func (e *Engine) RouteHopCount(dst domain.Addr, net domain.Net) (uint8, bool) {
	_, entry, ok := e.routes.SearchValid(e.host.PrimaryAddr(), dst, net)
	if !ok {
		return 0, false
	}
	return entry.HopCount, true
}

// DebugLog emits a structured snapshot of the route table and the
// neighbour tracker.
func (e *Engine) DebugLog() {
	e.routes.DebugLog()
	e.hellos.DebugLog()
}
