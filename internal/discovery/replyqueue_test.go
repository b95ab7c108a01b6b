package discovery

import (
	"testing"
	"time"

	"meshroute/internal/domain"
)

func TestPushAndTakeMatching(t *testing.T) {
	q := NewReplyQueue(4, 50*time.Millisecond)
	q.Push(domain.ReplyEvent{DestAddr: 1, HopCount: 0})
	q.Push(domain.ReplyEvent{DestAddr: 2, HopCount: 3})
	q.Push(domain.ReplyEvent{DestAddr: 1, HopCount: 2})

	if q.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", q.Len())
	}

	got := q.TakeMatching(1)
	if len(got) != 2 {
		t.Fatalf("TakeMatching(1) returned %d events, want 2", len(got))
	}
	if q.Len() != 1 {
		t.Fatalf("Len() after TakeMatching = %d, want 1 (unmatched event remains)", q.Len())
	}

	remaining := q.TakeMatching(2)
	if len(remaining) != 1 || remaining[0].DestAddr != 2 {
		t.Fatalf("TakeMatching(2) = %+v, want one event for dest 2", remaining)
	}
	if q.Len() != 0 {
		t.Fatalf("Len() after draining = %d, want 0", q.Len())
	}
}

func TestTakeMatchingWithNoMatchesReturnsEmpty(t *testing.T) {
	q := NewReplyQueue(4, 50*time.Millisecond)
	q.Push(domain.ReplyEvent{DestAddr: 5})
	if got := q.TakeMatching(9); len(got) != 0 {
		t.Fatalf("TakeMatching(9) = %+v, want empty", got)
	}
	if q.Len() != 1 {
		t.Fatalf("non-matching TakeMatching must not remove unrelated events, Len() = %d", q.Len())
	}
}

func TestReplyEventIsRREP(t *testing.T) {
	rrep := domain.ReplyEvent{DestAddr: 1, HopCount: 0}
	if !rrep.IsRREP() {
		t.Errorf("zero hop count should report IsRREP() true")
	}
	rwait := domain.ReplyEvent{DestAddr: 1, HopCount: 2}
	if rwait.IsRREP() {
		t.Errorf("nonzero hop count should report IsRREP() false")
	}
}
