// Package meshsim runs multiple engine.Engine instances in one process
// over a simulated radio bus, exercising the ring-search and role-dispatch
// logic against a known adjacency/RSSI topology instead of a real BLE
// transport (spec §1 "Out of scope": send_ctl/recv_ctl are an external
// collaborator; this package plays that collaborator's role for testing).
package meshsim

import (
	"context"
	"sync"

	"meshroute/internal/config"
	"meshroute/internal/control"
	"meshroute/internal/domain"
	"meshroute/internal/engine"
	"meshroute/internal/logger"
)

// Bus is a fixed adjacency-table radio simulator: node A can reach node B
// directly iff an edge A->B is present, carrying the RSSI A observes from
// B's transmissions. Edges need not be symmetric, mirroring real-world
// link asymmetry, though the topology helpers in this package build
// symmetric links.
type Bus struct {
	logger logger.Logger
	net    domain.Net

	mu     sync.RWMutex
	nodes  map[domain.Addr]*Node
	links  map[domain.Addr]map[domain.Addr]int8
	timing config.TimingConfig
}

// SetTiming overrides the protocol tuning constants every node added
// afterward will be built with. Zero-valued fields still fall back to
// config.DefaultTiming(); call before AddNode/Chain.
func (b *Bus) SetTiming(t config.TimingConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timing = t
}

// NewBus creates an empty Bus for the given subnet.
func NewBus(net domain.Net, l logger.Logger) *Bus {
	if l == nil {
		l = &logger.NopLogger{}
	}
	return &Bus{
		logger: l,
		net:    net,
		nodes:  make(map[domain.Addr]*Node),
		links:  make(map[domain.Addr]map[domain.Addr]int8),
	}
}

// AddNode registers a node and builds its Engine.
func (b *Bus) AddNode(addr domain.Addr, elems uint16) *Node {
	b.mu.RLock()
	timing := b.timing
	b.mu.RUnlock()
	n := newNode(addr, elems, b.net, b)
	n.eng = engine.New(n.config(timing), n, engine.WithLogger(b.logger.Named(addr.String())))
	b.mu.Lock()
	b.nodes[addr] = n
	if _, ok := b.links[addr]; !ok {
		b.links[addr] = make(map[domain.Addr]int8)
	}
	b.mu.Unlock()
	return n
}

// Link adds a symmetric edge between a and b with the given RSSI as
// observed from each side.
func (b *Bus) Link(a, c domain.Addr, rssi int8) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.links[a]; !ok {
		b.links[a] = make(map[domain.Addr]int8)
	}
	if _, ok := b.links[c]; !ok {
		b.links[c] = make(map[domain.Addr]int8)
	}
	b.links[a][c] = rssi
	b.links[c][a] = rssi
}

// Unlink removes the symmetric edge between a and b, simulating a link
// going out of range. Each side's liveness is discovered independently
// once its HelloTracker entry for the other expires.
func (b *Bus) Unlink(a, c domain.Addr) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.links[a], c)
	delete(b.links[c], a)
}

// Addrs returns every registered node address.
func (b *Bus) Addrs() []domain.Addr {
	b.mu.RLock()
	defer b.mu.RUnlock()
	addrs := make([]domain.Addr, 0, len(b.nodes))
	for a := range b.nodes {
		addrs = append(addrs, a)
	}
	return addrs
}

// Node looks up a registered node by address.
func (b *Bus) Node(addr domain.Addr) (*Node, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n, ok := b.nodes[addr]
	return n, ok
}

// Deliver implements the radiation side of send_ctl: it fans bytes out
// to every node within range of from (or, for a directed send, just the
// single addressed node if it is in range).
func (b *Bus) Deliver(ctx context.Context, from, tx domain.Addr, op control.Op, ttl uint8, bytes []byte) error {
	b.mu.RLock()
	neighbours := b.links[from]
	targets := make(map[domain.Addr]int8, len(neighbours))
	if tx == control.Broadcast {
		for addr, rssi := range neighbours {
			targets[addr] = rssi
		}
	} else if rssi, ok := neighbours[tx]; ok {
		targets[tx] = rssi
	}
	b.mu.RUnlock()

	for addr, rssi := range targets {
		b.mu.RLock()
		peer := b.nodes[addr]
		b.mu.RUnlock()
		if peer == nil {
			continue
		}
		rx := control.RxMeta{Source: from, Dest: addr, Net: b.net, RSSI: rssi, RecvTTL: ttl}
		go func(p *Node, rx control.RxMeta) {
			if err := p.eng.OnCtlReceive(ctx, op, rx, bytes); err != nil {
				b.logger.Debug("meshsim: OnCtlReceive returned", logger.F("node", p.addr.String()), logger.F("err", err.Error()))
			}
		}(peer, rx)
	}
	return nil
}
