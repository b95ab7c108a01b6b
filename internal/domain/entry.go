package domain

import (
	"fmt"
	"time"
)

// State is the lifecycle state of a RouteEntry.
type State int

const (
	// Invalid marks a reverse or stale forward route: consulted by
	// protocol logic but never used to forward data.
	Invalid State = iota
	// Valid marks an active forward (or validated reverse) route.
	Valid
)

func (s State) String() string {
	if s == Valid {
		return "valid"
	}
	return "invalid"
}

// RouteEntry represents one directional reachability hypothesis from a
// source-element range to a destination-element range (spec §3).
type RouteEntry struct {
	Source Range
	Dest   Range
	DestSeq uint32
	NextHop    Addr
	HopCount   uint8
	RSSI       int8
	Net        Net
	Repairable bool
	State      State
	Deadline   time.Time
}

// Matches reports whether this entry is the exact (source, dest, net) key
// addressed by src/dst, using range containment rather than equality
// (spec §4.1: "Addresses match within element ranges").
func (e RouteEntry) Matches(src, dst Addr, net Net) bool {
	return e.Net == net && e.Source.Contains(src) && e.Dest.Contains(dst)
}

// MatchesDestOnly reports whether the entry's destination range contains
// dst, ignoring the source endpoint. Used by the "_without_source"
// intermediate-node lookup variants.
func (e RouteEntry) MatchesDestOnly(dst Addr, net Net) bool {
	return e.Net == net && e.Dest.Contains(dst)
}

// MatchesSourceOnly reports whether the entry's source range contains src.
func (e RouteEntry) MatchesSourceOnly(src Addr, net Net) bool {
	return e.Net == net && e.Source.Contains(src)
}

// MatchesDestRange reports whether the entry's destination range and the
// queried range are compatible (overlap, or one subsumes the other) —
// used once a RREP has revealed the true element count of an endpoint
// (spec §4.1, range-aware search variants).
func (e RouteEntry) MatchesDestRange(src Addr, dstRange Range, net Net) bool {
	return e.Net == net && e.Source.Contains(src) && e.Dest.CompatibleWith(dstRange)
}

// MatchesSourceRange is the source-endpoint mirror of MatchesDestRange.
func (e RouteEntry) MatchesSourceRange(srcRange Range, dst Addr, net Net) bool {
	return e.Net == net && e.Dest.Contains(dst) && e.Source.CompatibleWith(srcRange)
}

// pathCost implements the cost function of spec §4.1:
//
//	cost(hop_count, rssi) = 10*hop_count + 10*rssi/RSSI_MIN
//
// Lower is better; RSSI_MIN is the nominal noise floor (-90 dBm).
func pathCost(hopCount uint8, rssi int8, rssiMin int8) float64 {
	return 10*float64(hopCount) + 10*float64(rssi)/float64(rssiMin)
}

// Cost returns this entry's path cost under the configured RSSI floor.
func (e RouteEntry) Cost(rssiMin int8) float64 {
	return pathCost(e.HopCount, e.RSSI, rssiMin)
}

func (e RouteEntry) String() string {
	return fmt.Sprintf("{src=%s dst=%s net=%d nexthop=%s hops=%d rssi=%d seq=%d state=%s}",
		e.Source, e.Dest, e.Net, e.NextHop, e.HopCount, e.RSSI, e.DestSeq, e.State)
}

// WeightedRSSI computes the running weighted-mean RSSI over a path when a
// new hop's sample arrives, per spec §4.5:
//
//	rssi_new = (rssi_prev * hop_count + rx_rssi) / (hop_count + 1)
func WeightedRSSI(prevRSSI int8, hopCount uint8, rxRSSI int8) int8 {
	num := float64(prevRSSI)*float64(hopCount) + float64(rxRSSI)
	return int8(num / float64(hopCount+1))
}
