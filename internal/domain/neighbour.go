package domain

import "time"

// NeighbourRecord tracks liveness of a one-hop neighbour reached directly
// over the radio, refreshed by incoming Hellos (spec §3 "NeighbourRecord").
type NeighbourRecord struct {
	Addr     Addr
	Net      Net
	Deadline time.Time
}
