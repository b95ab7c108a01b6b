package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"meshroute/internal/config"
	"meshroute/internal/control"
	"meshroute/internal/domain"
)

type sentMsg struct {
	tx  domain.Addr
	op  control.Op
	ttl uint8
	buf []byte
}

type fakeHost struct {
	mu      sync.Mutex
	primary domain.Addr
	elems   uint16
	seq     uint32
	sent    []sentMsg
}

func newFakeHost(primary domain.Addr, elems uint16) *fakeHost {
	return &fakeHost{primary: primary, elems: elems}
}

func (h *fakeHost) SendCtl(_ context.Context, tx domain.Addr, op control.Op, ttl uint8, bytes []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, sentMsg{tx: tx, op: op, ttl: ttl, buf: bytes})
	return nil
}

func (h *fakeHost) PrimaryAddr() domain.Addr { return h.primary }
func (h *fakeHost) ElemCount() uint16        { return h.elems }
func (h *fakeHost) ElemFind(addr domain.Addr) bool {
	return domain.Range{Base: h.primary, Count: h.elems}.Contains(addr)
}
func (h *fakeHost) SessionSeq() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	return h.seq
}

func (h *fakeHost) SubnetGet(domain.Net) []byte { return nil }

func (h *fakeHost) messages() []sentMsg {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]sentMsg, len(h.sent))
	copy(out, h.sent)
	return out
}

func testConfig(primary domain.Addr) *config.Config {
	cfg := &config.Config{
		Node: config.NodeConfig{PrimaryAddr: uint16(primary), ElemCount: 1},
		Timing: config.TimingConfig{
			LifetimeData:  time.Second,
			RreqWait:      30 * time.Millisecond,
			RingInterval:  20 * time.Millisecond,
			RingMaxTTL:    3,
			HelloLifetime: time.Second,
			AllocTimeout:  50 * time.Millisecond,
			RSSIMin:       -90,
		},
		Capacity: config.CapacityConfig{RouteEntries: 8, ReplyEvents: 8, RerrRecords: 8, Neighbours: 8},
	}
	return cfg
}

func TestRouteSendRequestShortCircuitsOnExistingRoute(t *testing.T) {
	host := newFakeHost(1, 1)
	e := New(testConfig(1), host)

	rx := control.RxMeta{Source: 9, Net: 0, RSSI: -30, RecvTTL: 1}
	rep := control.RREP{Source: 1, Destination: 5, DestSeq: 7, HopCount: 2, DestinationElems: 1}
	if err := e.OnCtlReceive(context.Background(), control.OpRREP, rx, control.EncodeRREP(rep)); err != nil {
		t.Fatalf("OnCtlReceive(RREP) = %v, want nil", err)
	}
	if !e.HasValidRoute(5, 0) {
		t.Fatalf("expected a valid route to 0x0005 after processing the RREP")
	}

	if err := e.RouteSendRequest(context.Background(), 5, 0); err != nil {
		t.Fatalf("RouteSendRequest() = %v, want nil (route already valid)", err)
	}
	if len(host.messages()) != 0 {
		t.Errorf("RouteSendRequest should not emit any RREQ when a valid route already exists")
	}
}

func TestRouteSendRequestRunsDiscoveryAndGivesUp(t *testing.T) {
	host := newFakeHost(1, 1)
	e := New(testConfig(1), host)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := e.RouteSendRequest(ctx, 5, 0)
	if !errors.Is(err, domain.ErrNoReply) {
		t.Fatalf("RouteSendRequest() = %v, want ErrNoReply", err)
	}

	var sawRREQ bool
	for _, m := range host.messages() {
		if m.op == control.OpRREQ {
			sawRREQ = true
		}
	}
	if !sawRREQ {
		t.Errorf("expected at least one RREQ to have been emitted during the ring search")
	}
}

func TestHasValidRouteAndRouteHopCount(t *testing.T) {
	host := newFakeHost(1, 1)
	e := New(testConfig(1), host)

	if e.HasValidRoute(5, 0) {
		t.Fatalf("HasValidRoute reported true before any route was installed")
	}
	if _, ok := e.RouteHopCount(5, 0); ok {
		t.Fatalf("RouteHopCount reported ok before any route was installed")
	}

	rx := control.RxMeta{Source: 9, Net: 0, RSSI: -30, RecvTTL: 1}
	rep := control.RREP{Source: 1, Destination: 5, DestSeq: 1, HopCount: 3, DestinationElems: 1}
	if err := e.OnCtlReceive(context.Background(), control.OpRREP, rx, control.EncodeRREP(rep)); err != nil {
		t.Fatalf("OnCtlReceive(RREP) = %v, want nil", err)
	}
	if !e.HasValidRoute(5, 0) {
		t.Fatalf("HasValidRoute reported false after the route was installed")
	}
	hops, ok := e.RouteHopCount(5, 0)
	if !ok || hops != 3 {
		t.Fatalf("RouteHopCount() = (%d, %v), want (3, true)", hops, ok)
	}
}

func TestOnHelloFromUntrackedNeighbourIsANoop(t *testing.T) {
	host := newFakeHost(1, 1)
	e := New(testConfig(1), host)
	if err := e.OnHello(9, 0); err != nil {
		t.Fatalf("OnHello() = %v, want nil", err)
	}
	if e.HasValidRoute(9, 0) {
		t.Fatalf("a bare Hello must not fabricate a route or neighbour entry")
	}
}

func TestStartAndStopDoNotError(t *testing.T) {
	host := newFakeHost(1, 1)
	e := New(testConfig(1), host)
	if err := e.Start(context.Background()); err != nil {
		t.Errorf("Start() = %v, want nil", err)
	}
	if err := e.Stop(context.Background()); err != nil {
		t.Errorf("Stop() = %v, want nil", err)
	}
}
