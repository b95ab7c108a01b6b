package discovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"meshroute/internal/domain"
	"meshroute/internal/routetable"
)

type fakeTransport struct {
	mu   sync.Mutex
	seq  uint32
	reqs []RREQParams
}

func (f *fakeTransport) SendRREQ(_ context.Context, p RREQParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, p)
	return nil
}

func (f *fakeTransport) SessionSeq() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return f.seq
}

func (f *fakeTransport) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

func testRoutes(t *testing.T) *routetable.RouteTable {
	t.Helper()
	return routetable.New(4, time.Second, 200*time.Millisecond, 50*time.Millisecond, -90)
}

func TestDiscoverSucceedsOnRREP(t *testing.T) {
	tr := &fakeTransport{}
	routes := testRoutes(t)
	replies := NewReplyQueue(4, 50*time.Millisecond)
	c := New(tr, routes, replies, 100*time.Millisecond, 5, WithPollInterval(10*time.Millisecond))

	go func() {
		time.Sleep(30 * time.Millisecond)
		replies.Push(domain.ReplyEvent{DestAddr: 2, HopCount: 0})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Discover(ctx, 1, 2, 0); err != nil {
		t.Fatalf("Discover() = %v, want nil", err)
	}
	if tr.calls() < 1 {
		t.Errorf("expected at least the initial RREQ to have been sent")
	}
}

func TestDiscoverGivesUpAfterRingMaxTTL(t *testing.T) {
	tr := &fakeTransport{}
	routes := testRoutes(t)
	replies := NewReplyQueue(4, 50*time.Millisecond)
	c := New(tr, routes, replies, 20*time.Millisecond, 4, WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := c.Discover(ctx, 1, 2, 0)
	if !errors.Is(err, domain.ErrNoReply) {
		t.Fatalf("Discover() = %v, want ErrNoReply", err)
	}
	// startTTL=2, ringMaxTTL=4: emits at ttl=2 (initial), then expands to
	// ttl=3 before giving up at ttl=4, so at least 2 RREQs went out.
	if got := tr.calls(); got < 2 {
		t.Errorf("expected at least 2 RREQ emissions before giving up, got %d", got)
	}
}

func TestDiscoverExtendsPatienceOnRWAIT(t *testing.T) {
	tr := &fakeTransport{}
	routes := testRoutes(t)
	replies := NewReplyQueue(4, 50*time.Millisecond)
	// A short ring interval that would normally exhaust RING_MAX_TTL well
	// before the RREP below arrives, if RWAIT did not extend patience.
	c := New(tr, routes, replies, 30*time.Millisecond, 3, WithPollInterval(5*time.Millisecond))

	go func() {
		time.Sleep(10 * time.Millisecond)
		replies.Push(domain.ReplyEvent{DestAddr: 2, HopCount: 1}) // RWAIT
		time.Sleep(80 * time.Millisecond)
		replies.Push(domain.ReplyEvent{DestAddr: 2, HopCount: 0}) // RREP
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Discover(ctx, 1, 2, 0); err != nil {
		t.Fatalf("Discover() = %v, want nil (RWAIT should have bought enough patience)", err)
	}
}

func TestDiscoverCarriesKnownDestSeqFromInvalidRoute(t *testing.T) {
	tr := &fakeTransport{}
	routes := testRoutes(t)
	routes.CreateInvalid(routetable.Fields{
		Source:  domain.SingleAddr(1),
		Dest:    domain.SingleAddr(2),
		DestSeq: 77,
		NextHop: 9,
		Net:     0,
	})
	replies := NewReplyQueue(4, 50*time.Millisecond)
	c := New(tr, routes, replies, time.Second, 5, WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	c.Discover(ctx, 1, 2, 0)

	if tr.calls() == 0 {
		t.Fatalf("no RREQ was emitted")
	}
	first := tr.reqs[0]
	if !first.DestSeqKnown || first.DestSeq != 77 {
		t.Errorf("first RREQ DestSeqKnown=%v DestSeq=%d, want true/77", first.DestSeqKnown, first.DestSeq)
	}
}

func TestDiscoverRespectsContextCancellation(t *testing.T) {
	tr := &fakeTransport{}
	routes := testRoutes(t)
	replies := NewReplyQueue(4, 50*time.Millisecond)
	c := New(tr, routes, replies, time.Second, 10, WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	if err := c.Discover(ctx, 1, 2, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("Discover() = %v, want context.Canceled", err)
	}
}
