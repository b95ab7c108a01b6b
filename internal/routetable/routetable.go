// Package routetable implements the valid/invalid route-entry store of
// spec §4.1: lifetime-bounded RouteEntry records, range-aware search,
// the path-cost replacement policy, and the validate/invalidate/refresh
// state machine of spec §4.5's state diagram.
package routetable

import (
	"time"

	"meshroute/internal/arena"
	"meshroute/internal/domain"
	"meshroute/internal/logger"
)

// record is the arena payload: a RouteEntry plus the timer driving its
// deadline, and an optional expiry callback used only by the RREQ-wait
// reverse entry (spec §4.1 "create_invalid_with_callback").
//
// This is the "container-of" substitute of spec §9: instead of a timer
// recovering its owning entry via CONTAINER_OF, the timer closure simply
// captures the arena Ref, and the expiry callback looks the entry up
// through the arena — a stale Ref is detected on that lookup rather than
// dereferencing a freed pointer.
type record struct {
	entry    domain.RouteEntry
	timer    *time.Timer
	onExpiry func(Handle) error
}

// Handle identifies a RouteEntry owned by a RouteTable. It remains valid
// only until the entry's state changes (Validate/Invalidate issue a new
// Handle) or it is removed.
type Handle struct {
	ref   arena.Ref
	state domain.State
}

// Fields is the set of attributes needed to create a new RouteEntry.
type Fields struct {
	Source     domain.Range
	Dest       domain.Range
	DestSeq    uint32
	NextHop    domain.Addr
	HopCount   uint8
	RSSI       int8
	Net        domain.Net
	Repairable bool
}

// RouteTable owns the Valid and Invalid RouteEntry lists (spec §3, §4.1).
type RouteTable struct {
	logger       logger.Logger
	lifetimeData time.Duration
	rreqWait     time.Duration
	rssiMin      int8

	valid   *arena.Arena[record]
	invalid *arena.Arena[record]
}

// New creates a RouteTable with the given slab capacity and timing
// parameters (spec §6: LIFETIME_DATA, RREQ_WAIT, ALLOC_TIMEOUT).
func New(capacity int, lifetimeData, rreqWait, allocTimeout time.Duration, rssiMin int8, opts ...Option) *RouteTable {
	rt := &RouteTable{
		logger:       &logger.NopLogger{},
		lifetimeData: lifetimeData,
		rreqWait:     rreqWait,
		rssiMin:      rssiMin,
		valid:        arena.New[record](capacity, allocTimeout),
		invalid:      arena.New[record](capacity, allocTimeout),
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// RSSIMin returns the configured noise floor used by the path-cost
// function.
func (rt *RouteTable) RSSIMin() int8 { return rt.rssiMin }

// Cost computes the path cost of the given hop count / RSSI pair under
// this table's configured RSSI floor (spec §4.1).
func (rt *RouteTable) Cost(hopCount uint8, rssi int8) float64 {
	return domain.RouteEntry{HopCount: hopCount, RSSI: rssi}.Cost(rt.rssiMin)
}

func newEntry(f Fields, state domain.State, deadline time.Time) domain.RouteEntry {
	return domain.RouteEntry{
		Source:     f.Source,
		Dest:       f.Dest,
		DestSeq:    f.DestSeq,
		NextHop:    f.NextHop,
		HopCount:   f.HopCount,
		RSSI:       f.RSSI,
		Net:        f.Net,
		Repairable: f.Repairable,
		State:      state,
		Deadline:   deadline,
	}
}

// CreateValid allocates a new Valid RouteEntry with lifetime LIFETIME_DATA.
func (rt *RouteTable) CreateValid(f Fields) (Handle, error) {
	return rt.create(rt.valid, domain.Valid, f, rt.lifetimeData, nil)
}

// CreateInvalid allocates a new Invalid RouteEntry with lifetime
// LIFETIME_DATA.
func (rt *RouteTable) CreateInvalid(f Fields) (Handle, error) {
	return rt.create(rt.invalid, domain.Invalid, f, rt.lifetimeData, nil)
}

// CreateInvalidWithCallback allocates a new Invalid RouteEntry with
// lifetime RREQ_WAIT. When the deadline fires, onExpiry is invoked with
// the entry's handle instead of the entry being deleted; if onExpiry
// returns an error, the entry is deleted as a fallback so the table never
// accumulates unreachable wait-entries.
//
// This is used only for the destination's reverse entry while it waits to
// see whether a better RREQ for the same query arrives (spec §4.1, §4.5).
func (rt *RouteTable) CreateInvalidWithCallback(f Fields, onExpiry func(Handle) error) (Handle, error) {
	return rt.create(rt.invalid, domain.Invalid, f, rt.rreqWait, onExpiry)
}

func (rt *RouteTable) create(list *arena.Arena[record], state domain.State, f Fields, lifetime time.Duration, onExpiry func(Handle) error) (Handle, error) {
	entry := newEntry(f, state, time.Now().Add(lifetime))
	ref, err := list.Alloc(record{entry: entry, onExpiry: onExpiry})
	if err != nil {
		rt.logger.Warn("create: slab exhausted", logger.F("state", state.String()))
		return Handle{}, err
	}
	h := Handle{ref: ref, state: state}
	timer := time.AfterFunc(lifetime, func() { rt.onTimerFire(list, h) })
	rec, _ := list.Get(ref)
	rec.timer = timer
	list.Set(ref, rec)
	rt.logger.Debug("create: route entry allocated", logger.FEntry("entry", entry))
	return h, nil
}

func (rt *RouteTable) onTimerFire(list *arena.Arena[record], h Handle) {
	rec, ok := list.Get(h.ref)
	if !ok {
		return // already removed
	}
	if rec.onExpiry != nil {
		if err := rec.onExpiry(h); err != nil {
			rt.logger.Warn("route entry wait-callback failed, deleting", logger.F("err", err))
			list.Free(h.ref)
		}
		return
	}
	rt.logger.Debug("route entry deadline expired", logger.FEntry("entry", rec.entry))
	list.Free(h.ref)
}

// Get returns the current value of the entry identified by h.
func (rt *RouteTable) Get(h Handle) (domain.RouteEntry, bool) {
	rec, ok := rt.listFor(h.state).Get(h.ref)
	if !ok {
		return domain.RouteEntry{}, false
	}
	return rec.entry, true
}

func (rt *RouteTable) listFor(state domain.State) *arena.Arena[record] {
	if state == domain.Valid {
		return rt.valid
	}
	return rt.invalid
}

// UpdateFields overwrites the entry's fields in place without touching its
// deadline or timer (spec §4.1 "Replacement policy": "fields are
// overwritten in place — no error surfaces").
func (rt *RouteTable) UpdateFields(h Handle, mutate func(*domain.RouteEntry)) bool {
	list := rt.listFor(h.state)
	rec, ok := list.Get(h.ref)
	if !ok {
		return false
	}
	mutate(&rec.entry)
	return list.Set(h.ref, rec)
}

// RefreshWithFields overwrites the entry's fields and restarts its
// lifetime (spec §4.1 "Freshness on RREQ relay": "refreshed (seq updated,
// deadline reset)").
func (rt *RouteTable) RefreshWithFields(h Handle, mutate func(*domain.RouteEntry)) bool {
	list := rt.listFor(h.state)
	rec, ok := list.Get(h.ref)
	if !ok {
		return false
	}
	mutate(&rec.entry)
	rec.entry.Deadline = time.Now().Add(rt.lifetimeData)
	if rec.timer != nil {
		rec.timer.Stop()
	}
	rec.timer = time.AfterFunc(rt.lifetimeData, func() { rt.onTimerFire(list, h) })
	return list.Set(h.ref, rec)
}

// Refresh restarts the entry's lifetime in place, without a state change
// or field changes (spec §4.1 "refresh(entry) — restarts lifetime in
// place").
func (rt *RouteTable) Refresh(h Handle) bool {
	return rt.RefreshWithFields(h, func(*domain.RouteEntry) {})
}

// Validate moves an Invalid entry to Valid, resetting its lifetime to
// LIFETIME_DATA (spec §4.1). It is a no-op returning h unchanged if h is
// already Valid.
func (rt *RouteTable) Validate(h Handle) (Handle, error) {
	if h.state == domain.Valid {
		return h, nil
	}
	return rt.move(h, rt.invalid, rt.valid, domain.Valid)
}

// Invalidate moves a Valid entry to Invalid, resetting its lifetime to
// LIFETIME_DATA (spec §4.1).
func (rt *RouteTable) Invalidate(h Handle) (Handle, error) {
	if h.state == domain.Invalid {
		return h, nil
	}
	return rt.move(h, rt.valid, rt.invalid, domain.Invalid)
}

func (rt *RouteTable) move(h Handle, from, to *arena.Arena[record], newState domain.State) (Handle, error) {
	rec, ok := from.Get(h.ref)
	if !ok {
		return Handle{}, domain.ErrNotFound
	}
	entry := rec.entry
	entry.State = newState
	entry.Deadline = time.Now().Add(rt.lifetimeData)

	newRef, err := to.Alloc(record{entry: entry})
	if err != nil {
		rt.logger.Warn("move: destination slab exhausted, leaving entry in place", logger.F("to_state", newState.String()))
		return Handle{}, err
	}
	newHandle := Handle{ref: newRef, state: newState}
	timer := time.AfterFunc(rt.lifetimeData, func() { rt.onTimerFire(to, newHandle) })
	newRec, _ := to.Get(newRef)
	newRec.timer = timer
	to.Set(newRef, newRec)

	if rec.timer != nil {
		rec.timer.Stop()
	}
	from.Free(h.ref)

	rt.logger.Debug("route entry transitioned", logger.F("new_state", newState.String()), logger.FEntry("entry", entry))
	return newHandle, nil
}

// LinkDrop unconditionally removes the entry, regardless of its deadline
// (spec §4.1 "link_drop(entry) — unconditional removal").
func (rt *RouteTable) LinkDrop(h Handle) {
	list := rt.listFor(h.state)
	rec, ok := list.Get(h.ref)
	if ok && rec.timer != nil {
		rec.timer.Stop()
	}
	list.Free(h.ref)
}

// --- search -----------------------------------------------------------

func findFirst(list *arena.Arena[record], state domain.State, pred func(domain.RouteEntry) bool) (Handle, domain.RouteEntry, bool) {
	for _, e := range list.Snapshot() {
		if pred(e.Val.entry) {
			return Handle{ref: e.Ref, state: state}, e.Val.entry, true
		}
	}
	return Handle{}, domain.RouteEntry{}, false
}

// SearchValid finds the Valid entry for the exact (src, dst, net) key.
func (rt *RouteTable) SearchValid(src, dst domain.Addr, net domain.Net) (Handle, domain.RouteEntry, bool) {
	return findFirst(rt.valid, domain.Valid, func(e domain.RouteEntry) bool { return e.Matches(src, dst, net) })
}

// SearchInvalid finds the Invalid entry for the exact (src, dst, net) key.
func (rt *RouteTable) SearchInvalid(src, dst domain.Addr, net domain.Net) (Handle, domain.RouteEntry, bool) {
	return findFirst(rt.invalid, domain.Invalid, func(e domain.RouteEntry) bool { return e.Matches(src, dst, net) })
}

// SearchValidByDst finds a Valid entry matching dst alone (the
// "_without_source" variant used by intermediate-node lookups).
func (rt *RouteTable) SearchValidByDst(dst domain.Addr, net domain.Net) (Handle, domain.RouteEntry, bool) {
	return findFirst(rt.valid, domain.Valid, func(e domain.RouteEntry) bool { return e.MatchesDestOnly(dst, net) })
}

// SearchInvalidByDst mirrors SearchValidByDst on the Invalid list.
func (rt *RouteTable) SearchInvalidByDst(dst domain.Addr, net domain.Net) (Handle, domain.RouteEntry, bool) {
	return findFirst(rt.invalid, domain.Invalid, func(e domain.RouteEntry) bool { return e.MatchesDestOnly(dst, net) })
}

// SearchValidBySrc finds a Valid entry matching src alone.
func (rt *RouteTable) SearchValidBySrc(src domain.Addr, net domain.Net) (Handle, domain.RouteEntry, bool) {
	return findFirst(rt.valid, domain.Valid, func(e domain.RouteEntry) bool { return e.MatchesSourceOnly(src, net) })
}

// SearchInvalidBySrc mirrors SearchValidBySrc on the Invalid list.
func (rt *RouteTable) SearchInvalidBySrc(src domain.Addr, net domain.Net) (Handle, domain.RouteEntry, bool) {
	return findFirst(rt.invalid, domain.Invalid, func(e domain.RouteEntry) bool { return e.MatchesSourceOnly(src, net) })
}

// SearchValidWithDstRange finds a Valid entry whose destination range is
// compatible with dstRange — used once a RREP reveals the true element
// count of a previously-single-address destination (spec §4.1).
func (rt *RouteTable) SearchValidWithDstRange(src domain.Addr, dstRange domain.Range, net domain.Net) (Handle, domain.RouteEntry, bool) {
	return findFirst(rt.valid, domain.Valid, func(e domain.RouteEntry) bool { return e.MatchesDestRange(src, dstRange, net) })
}

// SearchInvalidWithDstRange mirrors SearchValidWithDstRange on the
// Invalid list.
func (rt *RouteTable) SearchInvalidWithDstRange(src domain.Addr, dstRange domain.Range, net domain.Net) (Handle, domain.RouteEntry, bool) {
	return findFirst(rt.invalid, domain.Invalid, func(e domain.RouteEntry) bool { return e.MatchesDestRange(src, dstRange, net) })
}

// SearchValidWithSrcRange is the source-range mirror of
// SearchValidWithDstRange.
func (rt *RouteTable) SearchValidWithSrcRange(srcRange domain.Range, dst domain.Addr, net domain.Net) (Handle, domain.RouteEntry, bool) {
	return findFirst(rt.valid, domain.Valid, func(e domain.RouteEntry) bool { return e.MatchesSourceRange(srcRange, dst, net) })
}

// SearchInvalidWithSrcRange mirrors SearchValidWithSrcRange on the
// Invalid list.
func (rt *RouteTable) SearchInvalidWithSrcRange(srcRange domain.Range, dst domain.Addr, net domain.Net) (Handle, domain.RouteEntry, bool) {
	return findFirst(rt.invalid, domain.Invalid, func(e domain.RouteEntry) bool { return e.MatchesSourceRange(srcRange, dst, net) })
}

// SearchValidByNextHop reports whether any Valid entry currently uses hop
// as its next hop in net (spec §4.1).
func (rt *RouteTable) SearchValidByNextHop(hop domain.Addr, net domain.Net) bool {
	for _, e := range rt.valid.Snapshot() {
		if e.Val.entry.Net == net && e.Val.entry.NextHop == hop {
			return true
		}
	}
	return false
}

// EnumerateValidByDestNextHop invokes cb for every Valid entry matching
// dest, nextHop and net, following the safe-enumeration discipline of
// spec §5.1: the match list is snapshotted and released before any
// callback runs, so cb is free to call back into other components.
func (rt *RouteTable) EnumerateValidByDestNextHop(dest, nextHop domain.Addr, net domain.Net, cb func(Handle, domain.RouteEntry)) {
	matches := rt.valid.Snapshot()
	for _, e := range matches {
		if e.Val.entry.Net == net && e.Val.entry.Dest.Contains(dest) && e.Val.entry.NextHop == nextHop {
			cb(Handle{ref: e.Ref, state: domain.Valid}, e.Val.entry)
		}
	}
}

// EnumerateValidByNextHop invokes cb for every Valid entry using nextHop
// as its next hop in net, following the same safe-enumeration discipline.
func (rt *RouteTable) EnumerateValidByNextHop(nextHop domain.Addr, net domain.Net, cb func(Handle, domain.RouteEntry)) {
	matches := rt.valid.Snapshot()
	for _, e := range matches {
		if e.Val.entry.Net == net && e.Val.entry.NextHop == nextHop {
			cb(Handle{ref: e.Ref, state: domain.Valid}, e.Val.entry)
		}
	}
}

// DebugLog emits a single structured DEBUG-level snapshot of the table
// (spec §9, matching the teacher's RoutingTable.DebugLog()/
// Storage.DebugLog() pattern): the valid and invalid counts plus each
// entry's string form, all in one log call.
func (rt *RouteTable) DebugLog() {
	validEntries := rt.valid.Snapshot()
	invalidEntries := rt.invalid.Snapshot()
	valid := make([]map[string]any, 0, len(validEntries))
	for _, e := range validEntries {
		valid = append(valid, map[string]any{"entry": e.Val.entry.String()})
	}
	invalid := make([]map[string]any, 0, len(invalidEntries))
	for _, e := range invalidEntries {
		invalid = append(invalid, map[string]any{"entry": e.Val.entry.String()})
	}
	rt.logger.Debug("route table snapshot",
		logger.F("valid_count", len(validEntries)),
		logger.F("invalid_count", len(invalidEntries)),
		logger.F("valid", valid),
		logger.F("invalid", invalid),
	)
}
