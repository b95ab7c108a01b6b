package control

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"meshroute/internal/discovery"
	"meshroute/internal/domain"
	"meshroute/internal/errcollector"
	"meshroute/internal/hellotracker"
	"meshroute/internal/routetable"
)

type sentMsg struct {
	tx  domain.Addr
	op  Op
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

func (h *fakeHost) SendCtl(_ context.Context, tx domain.Addr, op Op, ttl uint8, bytes []byte) error {
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

type fixture struct {
	host    *fakeHost
	routes  *routetable.RouteTable
	hellos  *hellotracker.Tracker
	errs    *errcollector.Collector
	replies *discovery.ReplyQueue
	handler *Handler
}

func newFixture(primary domain.Addr, elems uint16, rreqWait time.Duration) *fixture {
	routes := routetable.New(8, time.Second, rreqWait, 50*time.Millisecond, -90)
	hellos := hellotracker.New(8, time.Second, 50*time.Millisecond, nil)
	errs := errcollector.New(routes, 8, 50*time.Millisecond)
	replies := discovery.NewReplyQueue(8, 50*time.Millisecond)
	host := newFakeHost(primary, elems)
	h := New(host, routes, hellos, errs, replies)
	return &fixture{host: host, routes: routes, hellos: hellos, errs: errs, replies: replies, handler: h}
}

func TestHandleRREQLocalLoopbackDropped(t *testing.T) {
	f := newFixture(1, 1, 100*time.Millisecond)
	rx := RxMeta{Source: 9, Net: 0, RSSI: -40, RecvTTL: 2}
	data := RREQ{Source: 1, Destination: 5, SourceSeq: 1, SeqUnknown: true}

	err := f.handler.OnCtlReceive(context.Background(), OpRREQ, rx, EncodeRREQ(data))
	if !errors.Is(err, domain.ErrLocalLoopback) {
		t.Fatalf("OnCtlReceive() = %v, want ErrLocalLoopback", err)
	}
	if len(f.host.messages()) != 0 {
		t.Errorf("local-loopback RREQ must not produce any send_ctl calls")
	}
}

func TestHandleRREQAsDestinationEventuallySendsRREP(t *testing.T) {
	f := newFixture(5, 1, 30*time.Millisecond)
	rx := RxMeta{Source: 9, Net: 0, RSSI: -40, RecvTTL: 2}
	data := RREQ{Source: 1, Destination: 5, SourceSeq: 1, SeqUnknown: true}

	err := f.handler.OnCtlReceive(context.Background(), OpRREQ, rx, EncodeRREQ(data))
	if err != nil {
		t.Fatalf("OnCtlReceive() = %v, want nil", err)
	}

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		for _, m := range f.host.messages() {
			if m.op == OpRREP && m.tx == 9 {
				if !f.hellos.IsNeighbour(9, 0) {
					t.Errorf("reverse next hop not registered as a neighbour after RREP send")
				}
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no RREP was sent after the RREQ wait window elapsed")
}

func TestHandleRREQAsDestinationLateDropped(t *testing.T) {
	f := newFixture(5, 1, 100*time.Millisecond)
	f.routes.CreateValid(routetable.Fields{
		Source: domain.SingleAddr(5), Dest: domain.SingleAddr(1), NextHop: 9, Net: 0,
	})

	rx := RxMeta{Source: 9, Net: 0, RSSI: -40, RecvTTL: 2}
	data := RREQ{Source: 1, Destination: 5, SourceSeq: 1, SeqUnknown: true}
	err := f.handler.OnCtlReceive(context.Background(), OpRREQ, rx, EncodeRREQ(data))
	if !errors.Is(err, domain.ErrLateRreq) {
		t.Fatalf("OnCtlReceive() = %v, want ErrLateRreq", err)
	}
}

func TestHandleRREQAsRelayFloodsWhenNoReverseEntry(t *testing.T) {
	f := newFixture(99, 1, 100*time.Millisecond) // not source or destination
	rx := RxMeta{Source: 9, Net: 0, RSSI: -40, RecvTTL: 3}
	data := RREQ{Source: 1, Destination: 5, SourceSeq: 1, SeqUnknown: true}

	if err := f.handler.OnCtlReceive(context.Background(), OpRREQ, rx, EncodeRREQ(data)); err != nil {
		t.Fatalf("OnCtlReceive() = %v, want nil", err)
	}

	msgs := f.host.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected exactly one relayed RREQ, got %d messages", len(msgs))
	}
	if msgs[0].op != OpRREQ || msgs[0].tx != Broadcast || msgs[0].ttl != rx.RecvTTL-1 {
		t.Errorf("relayed RREQ = %+v, want broadcast at ttl %d", msgs[0], rx.RecvTTL-1)
	}
	if _, _, ok := f.routes.SearchInvalid(5, 1, 0); !ok {
		t.Errorf("relay did not install a reverse route entry")
	}
}

func TestHandleRREQAsRelayDoesNotFloodAtZeroTTL(t *testing.T) {
	f := newFixture(99, 1, 100*time.Millisecond)
	rx := RxMeta{Source: 9, Net: 0, RSSI: -40, RecvTTL: 0}
	data := RREQ{Source: 1, Destination: 5, SourceSeq: 1, SeqUnknown: true}

	f.handler.OnCtlReceive(context.Background(), OpRREQ, rx, EncodeRREQ(data))
	if len(f.host.messages()) != 0 {
		t.Errorf("RREQ received at ttl=0 must not be relayed")
	}
}

func TestHandleRREQAsDestinationReplacesReverseEntryWithBetterPathDuringWait(t *testing.T) {
	f := newFixture(5, 1, 150*time.Millisecond)
	data := RREQ{Source: 1, Destination: 5, SourceSeq: 1, SeqUnknown: true}

	weak := RxMeta{Source: 9, Net: 0, RSSI: -85, RecvTTL: 2}
	if err := f.handler.OnCtlReceive(context.Background(), OpRREQ, weak, EncodeRREQ(data)); err != nil {
		t.Fatalf("OnCtlReceive(weak) = %v, want nil", err)
	}
	if _, entry, ok := f.routes.SearchInvalid(5, 1, 0); !ok || entry.NextHop != 9 {
		t.Fatalf("after the weak RREQ, reverse entry = (%+v, %v), want NextHop 0x0009", entry, ok)
	}

	strong := RxMeta{Source: 20, Net: 0, RSSI: -30, RecvTTL: 2}
	if err := f.handler.OnCtlReceive(context.Background(), OpRREQ, strong, EncodeRREQ(data)); err != nil {
		t.Fatalf("OnCtlReceive(strong) = %v, want nil", err)
	}

	_, entry, ok := f.routes.SearchInvalid(5, 1, 0)
	if !ok {
		t.Fatalf("reverse entry disappeared after the second RREQ")
	}
	if entry.NextHop != 20 {
		t.Errorf("NextHop = %s, want 0x0014 (the cheaper path should have replaced the weak one)", entry.NextHop)
	}
	if len(f.host.messages()) != 0 {
		t.Errorf("no RREP should be sent yet, the wait window has not elapsed")
	}
}

func TestHandleRREQAsShortcutSendsDirectedAndRWAIT(t *testing.T) {
	f := newFixture(99, 1, 100*time.Millisecond)
	f.routes.CreateValid(routetable.Fields{
		Source: domain.SingleAddr(99), Dest: domain.SingleAddr(5), NextHop: 20, HopCount: 1, Net: 0,
	})

	rx := RxMeta{Source: 9, Net: 0, RSSI: -40, RecvTTL: 3}
	data := RREQ{Source: 1, Destination: 5, SourceSeq: 1, SeqUnknown: true}
	if err := f.handler.OnCtlReceive(context.Background(), OpRREQ, rx, EncodeRREQ(data)); err != nil {
		t.Fatalf("OnCtlReceive() = %v, want nil", err)
	}

	msgs := f.host.messages()
	var sawDirected, sawRWAIT bool
	for _, m := range msgs {
		if m.op == OpRREQ && m.tx == 20 {
			sawDirected = true
			dec, _ := DecodeRREQ(m.buf)
			if !dec.Directed {
				t.Errorf("shortcut RREQ missing the Directed flag")
			}
		}
		if m.op == OpRWAIT && m.tx == 9 {
			sawRWAIT = true
		}
	}
	if !sawDirected {
		t.Errorf("expected a directed RREQ toward the known next hop, got %+v", msgs)
	}
	if !sawRWAIT {
		t.Errorf("expected a RWAIT back toward the relayer, got %+v", msgs)
	}
}

func TestHandleRREPAsOriginatorPushesReplyEvent(t *testing.T) {
	f := newFixture(1, 1, 100*time.Millisecond)
	rx := RxMeta{Source: 9, Net: 0, RSSI: -30, RecvTTL: 1}
	data := RREP{Source: 1, Destination: 5, DestSeq: 10, HopCount: 2, DestinationElems: 1}

	if err := f.handler.OnCtlReceive(context.Background(), OpRREP, rx, EncodeRREP(data)); err != nil {
		t.Fatalf("OnCtlReceive() = %v, want nil", err)
	}
	if _, _, ok := f.routes.SearchValid(1, 5, 0); !ok {
		t.Errorf("RREP did not install a forward valid route")
	}
	if !f.hellos.IsNeighbour(9, 0) {
		t.Errorf("RREP next hop not registered as a neighbour")
	}
	events := f.replies.TakeMatching(5)
	if len(events) != 1 || !events[0].IsRREP() {
		t.Fatalf("TakeMatching(5) = %+v, want a single RREP event", events)
	}
}

func TestHandleRREPAsOriginatorReplacesStaleRouteOnFresherDestSeq(t *testing.T) {
	f := newFixture(1, 1, 100*time.Millisecond)
	first := RxMeta{Source: 9, Net: 0, RSSI: -60, RecvTTL: 1}
	f.handler.OnCtlReceive(context.Background(), OpRREP, first, EncodeRREP(RREP{
		Source: 1, Destination: 5, DestSeq: 10, HopCount: 3, DestinationElems: 1,
	}))
	if _, entry, ok := f.routes.SearchValid(1, 5, 0); !ok || entry.NextHop != 9 {
		t.Fatalf("priming RREP did not install the expected route, entry=%+v ok=%v", entry, ok)
	}

	second := RxMeta{Source: 20, Net: 0, RSSI: -30, RecvTTL: 1}
	if err := f.handler.OnCtlReceive(context.Background(), OpRREP, second, EncodeRREP(RREP{
		Source: 1, Destination: 5, DestSeq: 11, HopCount: 1, DestinationElems: 1,
	})); err != nil {
		t.Fatalf("OnCtlReceive(fresher RREP) = %v, want nil", err)
	}

	_, entry, ok := f.routes.SearchValid(1, 5, 0)
	if !ok {
		t.Fatalf("route disappeared after the fresher RREP")
	}
	if entry.NextHop != 20 || entry.DestSeq != 11 || entry.HopCount != 1 {
		t.Errorf("entry = %+v, want NextHop=0x0014 DestSeq=11 HopCount=1", entry)
	}
}

func TestHandleRREPAsOriginatorKeepsExistingRouteOnStaleDestSeq(t *testing.T) {
	f := newFixture(1, 1, 100*time.Millisecond)
	first := RxMeta{Source: 9, Net: 0, RSSI: -60, RecvTTL: 1}
	f.handler.OnCtlReceive(context.Background(), OpRREP, first, EncodeRREP(RREP{
		Source: 1, Destination: 5, DestSeq: 10, HopCount: 3, DestinationElems: 1,
	}))

	stale := RxMeta{Source: 20, Net: 0, RSSI: -30, RecvTTL: 1}
	if err := f.handler.OnCtlReceive(context.Background(), OpRREP, stale, EncodeRREP(RREP{
		Source: 1, Destination: 5, DestSeq: 10, HopCount: 1, DestinationElems: 1,
	})); err != nil {
		t.Fatalf("OnCtlReceive(stale RREP) = %v, want nil", err)
	}

	_, entry, ok := f.routes.SearchValid(1, 5, 0)
	if !ok {
		t.Fatalf("route disappeared after the stale RREP")
	}
	if entry.NextHop != 9 {
		t.Errorf("entry.NextHop = %s, want 0x0009 (equal dest_seq must not replace)", entry.NextHop)
	}
}

func TestHandleRREPAtIntermediateForwardsAndRegistersBothHops(t *testing.T) {
	f := newFixture(50, 1, 100*time.Millisecond)

	// Prime the reverse entry the way an intermediate relay actually
	// creates it: by handling the original RREQ first.
	rreqRx := RxMeta{Source: 9, Net: 0, RSSI: -40, RecvTTL: 3}
	rreq := RREQ{Source: 1, Destination: 5, SourceSeq: 1, SeqUnknown: true}
	if err := f.handler.OnCtlReceive(context.Background(), OpRREQ, rreqRx, EncodeRREQ(rreq)); err != nil {
		t.Fatalf("priming OnCtlReceive(RREQ) = %v, want nil", err)
	}
	if _, _, ok := f.routes.SearchInvalid(5, 1, 0); !ok {
		t.Fatalf("priming RREQ did not install the expected reverse entry")
	}

	rx := RxMeta{Source: 20, Net: 0, RSSI: -30, RecvTTL: 1}
	data := RREP{Source: 1, Destination: 5, DestSeq: 10, HopCount: 2, DestinationElems: 1}
	if err := f.handler.OnCtlReceive(context.Background(), OpRREP, rx, EncodeRREP(data)); err != nil {
		t.Fatalf("OnCtlReceive(RREP) = %v, want nil", err)
	}

	if _, _, ok := f.routes.SearchValid(5, 1, 0); !ok {
		t.Errorf("reverse entry was not validated")
	}
	if _, _, ok := f.routes.SearchValid(1, 5, 0); !ok {
		t.Errorf("forward entry was not created")
	}
	msgs := f.host.messages()
	var sawForward bool
	for _, m := range msgs {
		if m.op == OpRREP && m.tx == 9 {
			sawForward = true
		}
	}
	if !sawForward {
		t.Fatalf("expected the RREP forwarded to the reverse next hop (0x0009), got %+v", msgs)
	}
}

func TestHandleRERRInvalidatesAndForwardsCoalesced(t *testing.T) {
	f := newFixture(50, 1, 100*time.Millisecond)
	f.routes.CreateValid(routetable.Fields{Source: domain.SingleAddr(50), Dest: domain.SingleAddr(1), NextHop: 9, Net: 0})
	f.routes.CreateValid(routetable.Fields{Source: domain.SingleAddr(50), Dest: domain.SingleAddr(2), NextHop: 9, Net: 0})
	// reverse route the collector needs to resolve where to send the RERR
	f.routes.CreateValid(routetable.Fields{Source: domain.SingleAddr(1), Dest: domain.SingleAddr(50), NextHop: 30, Net: 0})
	f.routes.CreateValid(routetable.Fields{Source: domain.SingleAddr(2), Dest: domain.SingleAddr(50), NextHop: 30, Net: 0})

	rx := RxMeta{Source: 9, Net: 0}
	data := RERR{Destinations: []domain.RerrDestination{{DestAddr: 1, DestSeq: 5}, {DestAddr: 2, DestSeq: 6}}}
	if err := f.handler.OnCtlReceive(context.Background(), OpRERR, rx, EncodeRERR(data)); err != nil {
		t.Fatalf("OnCtlReceive() = %v, want nil", err)
	}

	if _, _, ok := f.routes.SearchValid(50, 1, 0); ok {
		t.Errorf("route to destination 1 via lost next hop 9 still Valid")
	}
	if _, _, ok := f.routes.SearchValid(50, 2, 0); ok {
		t.Errorf("route to destination 2 via lost next hop 9 still Valid")
	}
	msgs := f.host.messages()
	if len(msgs) != 1 || msgs[0].op != OpRERR || msgs[0].tx != 30 {
		t.Fatalf("expected one coalesced RERR toward next hop 30, got %+v", msgs)
	}
	dec, err := DecodeRERR(msgs[0].buf)
	if err != nil {
		t.Fatalf("DecodeRERR: %v", err)
	}
	if len(dec.Destinations) != 2 {
		t.Fatalf("coalesced RERR carries %d destinations, want 2", len(dec.Destinations))
	}
}

func TestHandleNeighbourLossCascades(t *testing.T) {
	f := newFixture(50, 1, 100*time.Millisecond)
	f.routes.CreateValid(routetable.Fields{Source: domain.SingleAddr(50), Dest: domain.SingleAddr(1), NextHop: 9, Net: 0})
	f.routes.CreateValid(routetable.Fields{Source: domain.SingleAddr(1), Dest: domain.SingleAddr(50), NextHop: 30, Net: 0})
	f.hellos.AddNeighbour(9, 0)

	f.handler.HandleNeighbourLoss(context.Background(), domain.NeighbourRecord{Addr: 9, Net: 0})

	if _, _, ok := f.routes.SearchValid(50, 1, 0); ok {
		t.Errorf("forward route through the lost neighbour still Valid")
	}
	if _, _, ok := f.routes.SearchValid(1, 50, 0); ok {
		t.Errorf("reverse route was not invalidated")
	}
	msgs := f.host.messages()
	if len(msgs) != 1 || msgs[0].op != OpRERR {
		t.Fatalf("expected one RERR emitted from the neighbour-loss cascade, got %+v", msgs)
	}
}

func TestOnHelloIgnoresNonRouteBeacon(t *testing.T) {
	f := newFixture(1, 1, 100*time.Millisecond)
	f.handler.OnHello(9, 0)
	if f.hellos.IsNeighbour(9, 0) {
		t.Errorf("a bare Hello beacon must not create a NeighbourRecord (spec: refresh-only)")
	}
}

func TestOnHelloRefreshesExistingNeighbour(t *testing.T) {
	f := newFixture(1, 1, 100*time.Millisecond)
	f.hellos.AddNeighbour(9, 0)
	f.handler.OnHello(9, 0)
	if !f.hellos.IsNeighbour(9, 0) {
		t.Errorf("OnHello should keep refreshing a neighbour already tracked via a route")
	}
}
