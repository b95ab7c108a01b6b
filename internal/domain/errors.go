package domain

import "errors"

// Sentinel errors returned by the routing engine's components. Components
// return these values unwrapped; callers dispatch on them with errors.Is.
var (
	// ErrResourceExhausted is returned when a fixed-capacity slab (route
	// entries, reply events, RERR records, neighbour records) has no free
	// slot available within the allocation timeout.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrLocalLoopback is returned when a received RREQ's source element
	// range loops back to a local element.
	ErrLocalLoopback = errors.New("rreq source is a local element")

	// ErrLateRreq is returned when a RREQ arrives for a destination that
	// has already completed its wait window and holds a Valid reverse
	// entry for the same query.
	ErrLateRreq = errors.New("rreq arrived after reverse route was validated")

	// ErrNoReply is returned by the discovery loop when the ring search
	// reaches RING_MAX_TTL without a RREP.
	ErrNoReply = errors.New("ring search exhausted without a reply")

	// ErrDecodeShort is returned by a PDU decoder when the buffer is
	// shorter than the PDU requires.
	ErrDecodeShort = errors.New("buffer shorter than required PDU")

	// ErrNotFound is returned by route-table and neighbour lookups that
	// find no matching entry.
	ErrNotFound = errors.New("not found")
)
