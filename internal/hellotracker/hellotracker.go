// Package hellotracker maintains the set of neighbours that routes use as
// next hops, keeps each one alive while Hello messages from it arrive, and
// notifies the engine when a neighbour's liveness window lapses (spec §4.2
// "HelloTracker").
package hellotracker

import (
	"time"

	"meshroute/internal/arena"
	"meshroute/internal/domain"
	"meshroute/internal/logger"
	"meshroute/internal/routetable"
)

// OnExpire is invoked, off any internal lock, when a neighbour's
// HELLO_LIFETIME window elapses without a refreshing Hello. The engine
// wires this to link-down handling: invalidating routes through that
// next hop and emitting RERR (spec §4.5 "Neighbour loss").
type OnExpire func(domain.NeighbourRecord)

// Tracker is the neighbour liveness store.
type Tracker struct {
	logger   logger.Logger
	lifetime time.Duration
	onExpire OnExpire

	neighbours *arena.Arena[record]
}

type record struct {
	n     domain.NeighbourRecord
	timer *time.Timer
}

// Option configures a Tracker at construction time.
type Option func(*Tracker)

// WithLogger sets the logger used for neighbour-liveness diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// New creates a Tracker with the given slab capacity, HELLO_LIFETIME
// duration, and expiry callback.
func New(capacity int, lifetime, allocTimeout time.Duration, onExpire OnExpire, opts ...Option) *Tracker {
	t := &Tracker{
		logger:     &logger.NopLogger{},
		lifetime:   lifetime,
		onExpire:   onExpire,
		neighbours: arena.New[record](capacity, allocTimeout),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// OnHello refreshes the liveness deadline of (addr, net) if it is already
// a tracked neighbour, and otherwise ignores the beacon (spec §4.2
// "on_hello(src): if src is a tracked neighbour, refresh the timer;
// otherwise ignore"). A Hello alone never creates a NeighbourRecord: a
// neighbour is only added once a route starts using it as a next hop
// (spec §3), via AddNeighbour.
func (t *Tracker) OnHello(addr domain.Addr, net domain.Net) error {
	ref, ok := t.find(addr, net)
	if !ok {
		return nil
	}
	return t.refresh(ref)
}

func (t *Tracker) find(addr domain.Addr, net domain.Net) (arena.Ref, bool) {
	for _, e := range t.neighbours.Snapshot() {
		if e.Val.n.Addr == addr && e.Val.n.Net == net {
			return e.Ref, true
		}
	}
	return arena.Ref{}, false
}

func (t *Tracker) refresh(ref arena.Ref) error {
	rec, ok := t.neighbours.Get(ref)
	if !ok {
		return domain.ErrNotFound
	}
	if rec.timer != nil {
		rec.timer.Stop()
	}
	rec.n.Deadline = time.Now().Add(t.lifetime)
	rec.timer = time.AfterFunc(t.lifetime, func() { t.onTimerFire(ref) })
	t.neighbours.Set(ref, rec)
	return nil
}

func (t *Tracker) create(addr domain.Addr, net domain.Net) error {
	n := domain.NeighbourRecord{Addr: addr, Net: net, Deadline: time.Now().Add(t.lifetime)}
	ref, err := t.neighbours.Alloc(record{n: n})
	if err != nil {
		t.logger.Warn("hellotracker: slab exhausted", logger.F("addr", addr.String()))
		return err
	}
	timer := time.AfterFunc(t.lifetime, func() { t.onTimerFire(ref) })
	rec, _ := t.neighbours.Get(ref)
	rec.timer = timer
	t.neighbours.Set(ref, rec)
	t.logger.Debug("hellotracker: neighbour discovered", logger.FNeighbour("neighbour", n))
	return nil
}

func (t *Tracker) onTimerFire(ref arena.Ref) {
	rec, ok := t.neighbours.Get(ref)
	if !ok {
		return
	}
	t.neighbours.Free(ref)
	t.logger.Info("hellotracker: neighbour expired", logger.FNeighbour("neighbour", rec.n))
	if t.onExpire != nil {
		t.onExpire(rec.n)
	}
}

// AddNeighbour registers addr as a neighbour if not already tracked,
// refreshing its liveness timer either way (spec §4.2 "add_neighbour",
// idempotent). This is the sole creation path for a NeighbourRecord: it
// is called only when a route begins using addr as a next hop (spec §3),
// never from a bare Hello beacon — see OnHello.
func (t *Tracker) AddNeighbour(addr domain.Addr, net domain.Net) error {
	if ref, ok := t.find(addr, net); ok {
		return t.refresh(ref)
	}
	return t.create(addr, net)
}

// RemoveNeighbourIfUnused removes addr's neighbour record, provided no
// Valid route in routes still uses it as a next hop in net (spec §4.2
// "remove_neighbour_if_unused").
func (t *Tracker) RemoveNeighbourIfUnused(addr domain.Addr, net domain.Net, routes *routetable.RouteTable) {
	if routes.SearchValidByNextHop(addr, net) {
		return
	}
	t.Drop(addr, net)
}

// IsNeighbour reports whether addr is currently a live neighbour in net.
func (t *Tracker) IsNeighbour(addr domain.Addr, net domain.Net) bool {
	_, ok := t.find(addr, net)
	return ok
}

// Enumerate returns a snapshot of every live neighbour, safe to iterate
// or call back into other components without holding any internal lock
// (spec §5.1).
func (t *Tracker) Enumerate() []domain.NeighbourRecord {
	entries := t.neighbours.Snapshot()
	out := make([]domain.NeighbourRecord, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Val.n)
	}
	return out
}

// Drop removes a neighbour immediately, bypassing its deadline and without
// invoking the expiry callback. RemoveNeighbourIfUnused uses it once no
// Valid route needs the neighbour any more.
func (t *Tracker) Drop(addr domain.Addr, net domain.Net) {
	ref, ok := t.find(addr, net)
	if !ok {
		return
	}
	rec, _ := t.neighbours.Get(ref)
	if rec.timer != nil {
		rec.timer.Stop()
	}
	t.neighbours.Free(ref)
}

// DebugLog emits a structured snapshot of the tracked neighbour set.
func (t *Tracker) DebugLog() {
	entries := t.Enumerate()
	addrs := make([]string, 0, len(entries))
	for _, n := range entries {
		addrs = append(addrs, n.Addr.String())
	}
	t.logger.Debug("neighbour table snapshot", logger.F("count", len(entries)), logger.F("neighbours", addrs))
}
