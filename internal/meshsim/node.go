package meshsim

import (
	"context"
	"sync/atomic"

	"meshroute/internal/config"
	"meshroute/internal/control"
	"meshroute/internal/domain"
	"meshroute/internal/engine"
)

// Node is one simulated mesh element, implementing control.Host on top
// of its owning Bus.
type Node struct {
	addr  domain.Addr
	elems uint16
	net   domain.Net
	seq   atomic.Uint32

	bus *Bus
	eng *engine.Engine
}

func newNode(addr domain.Addr, elems uint16, net domain.Net, bus *Bus) *Node {
	return &Node{addr: addr, elems: elems, net: net, bus: bus}
}

func (n *Node) config(timing config.TimingConfig) *config.Config {
	cfg := &config.Config{
		Node:   config.NodeConfig{PrimaryAddr: uint16(n.addr), ElemCount: n.elems, Net: uint16(n.net)},
		Timing: timing,
	}
	cfg.ApplyDefaults()
	return cfg
}

// Engine returns the node's wired routing engine.
func (n *Node) Engine() *engine.Engine { return n.eng }

// Addr returns the node's primary address.
func (n *Node) Addr() domain.Addr { return n.addr }

// --- control.Host --------------------------------------------------

func (n *Node) SendCtl(ctx context.Context, tx domain.Addr, op control.Op, ttl uint8, bytes []byte) error {
	return n.bus.Deliver(ctx, n.addr, tx, op, ttl, bytes)
}

func (n *Node) PrimaryAddr() domain.Addr { return n.addr }
func (n *Node) ElemCount() uint16        { return n.elems }

func (n *Node) ElemFind(addr domain.Addr) bool {
	return domain.Range{Base: n.addr, Count: n.elems}.Contains(addr)
}

func (n *Node) SessionSeq() uint32 { return n.seq.Add(1) }

// SubnetGet is unused: message-layer security is out of scope for this
// simulator (spec §1 Non-goals).
func (n *Node) SubnetGet(domain.Net) []byte { return nil }
