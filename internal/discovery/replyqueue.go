package discovery

import (
	"time"

	"meshroute/internal/arena"
	"meshroute/internal/domain"
	"meshroute/internal/logger"
)

// ReplyQueue is the bounded event queue of spec §4.3 "Event queue"; it
// does not keep arrival order (see TakeMatching). RREP and
// RWAIT receive handlers push events into it; one or more concurrent
// discover() calls drain the events addressed to the destination they are
// each waiting on.
type ReplyQueue struct {
	logger logger.Logger
	events *arena.Arena[domain.ReplyEvent]
}

// QueueOption configures a ReplyQueue at construction time.
type QueueOption func(*ReplyQueue)

// WithQueueLogger sets the logger used for reply-queue diagnostics.
func WithQueueLogger(l logger.Logger) QueueOption {
	return func(q *ReplyQueue) {
		if l != nil {
			q.logger = l
		}
	}
}

// NewReplyQueue creates a ReplyQueue with the given slab capacity
// (RWAIT_LIST_SIZE) and allocation timeout.
func NewReplyQueue(capacity int, allocTimeout time.Duration, opts ...QueueOption) *ReplyQueue {
	q := &ReplyQueue{
		logger: &logger.NopLogger{},
		events: arena.New[domain.ReplyEvent](capacity, allocTimeout),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Push enqueues a reply event. Slab exhaustion is surfaced to the caller
// as domain.ErrResourceExhausted and the event is dropped — the
// originator will re-emit its RREQ on the next TTL step (spec §4.3).
func (q *ReplyQueue) Push(e domain.ReplyEvent) error {
	if _, err := q.events.Alloc(e); err != nil {
		q.logger.Warn("replyqueue: slab exhausted, dropping event", logger.F("dest", e.DestAddr.String()))
		return err
	}
	return nil
}

// TakeMatching removes and returns every queued event addressed to dest.
// Events come back in arena slot order, not arrival order; the caller
// treats any RREP as terminal and any RWAIT as a patience extension, so
// the order does not change the outcome.
func (q *ReplyQueue) TakeMatching(dest domain.Addr) []domain.ReplyEvent {
	entries := q.events.Snapshot()
	out := make([]domain.ReplyEvent, 0, len(entries))
	for _, e := range entries {
		if e.Val.DestAddr == dest {
			out = append(out, e.Val)
			q.events.Free(e.Ref)
		}
	}
	return out
}

// Len reports the number of events currently queued.
func (q *ReplyQueue) Len() int { return q.events.Len() }
