package domain

// RerrDestination is one (destination, sequence) pair carried by a RERR.
type RerrDestination struct {
	DestAddr Addr
	DestSeq  uint32
}

// RerrRecord aggregates the destinations made unreachable through a single
// next hop, so that one coalesced RERR can be emitted per next hop
// (spec §3 "RerrRecord", §4.4).
type RerrRecord struct {
	NextHop      Addr
	Net          Net
	destinations map[Addr]RerrDestination
}

// NewRerrRecord creates an empty aggregation record for the given next hop.
func NewRerrRecord(nextHop Addr, net Net) *RerrRecord {
	return &RerrRecord{
		NextHop:      nextHop,
		Net:          net,
		destinations: make(map[Addr]RerrDestination),
	}
}

// Add inserts a destination into the record, de-duplicating by DestAddr
// (spec §3: "Destinations are de-duplicated on insertion").
func (r *RerrRecord) Add(dest RerrDestination) {
	r.destinations[dest.DestAddr] = dest
}

// Destinations returns the deduplicated destination set as a slice, in a
// deterministic order (sorted by DestAddr) so that encoding and tests are
// reproducible.
func (r *RerrRecord) Destinations() []RerrDestination {
	out := make([]RerrDestination, 0, len(r.destinations))
	for _, d := range r.destinations {
		out = append(out, d)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].DestAddr > out[j].DestAddr; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// Len returns the number of distinct destinations aggregated so far.
func (r *RerrRecord) Len() int { return len(r.destinations) }
