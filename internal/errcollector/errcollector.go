// Package errcollector aggregates unreachable destinations discovered
// during a single link-loss or RERR-reception handling pass into one
// RerrRecord per next hop, so the engine emits a single coalesced RERR
// per neighbour instead of one per destination (spec §4.4 "ErrorCollector").
package errcollector

import (
	"time"

	"meshroute/internal/arena"
	"meshroute/internal/domain"
	"meshroute/internal/logger"
	"meshroute/internal/routetable"
)

// Collector accumulates RerrRecords keyed by (nextHop, net) between calls
// to Flush.
type Collector struct {
	logger  logger.Logger
	routes  *routetable.RouteTable
	records *arena.Arena[*domain.RerrRecord]
}

// Option configures a Collector at construction time.
type Option func(*Collector)

// WithLogger sets the logger used for RERR aggregation diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(c *Collector) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Collector with the given slab capacity (RERR_LIST_SIZE)
// and allocation timeout. routes is consulted to resolve the next hop
// toward the originator of a broken route (the reverse entry).
func New(routes *routetable.RouteTable, capacity int, allocTimeout time.Duration, opts ...Option) *Collector {
	c := &Collector{
		logger:  &logger.NopLogger{},
		routes:  routes,
		records: arena.New[*domain.RerrRecord](capacity, allocTimeout),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Record aggregates broken as unreachable, grouping by the next hop
// toward broken's originator (spec §4.4 "Aggregation"): the reverse
// entry matching (broken.Dest, broken.Source, net) supplies that next
// hop. If no reverse entry exists, the destination is dropped silently —
// there is no peer to notify.
func (c *Collector) Record(broken domain.RouteEntry) {
	reverseNextHop, net, ok := c.reverseNextHop(broken)
	if !ok {
		c.logger.Debug("errcollector: no reverse entry, dropping", logger.FEntry("entry", broken))
		return
	}
	dest := domain.RerrDestination{DestAddr: broken.Dest.Base, DestSeq: broken.DestSeq}
	if err := c.collect(reverseNextHop, net, dest); err != nil {
		c.logger.Warn("errcollector: slab exhausted", logger.F("next_hop", reverseNextHop.String()))
	}
}

func (c *Collector) reverseNextHop(broken domain.RouteEntry) (domain.Addr, domain.Net, bool) {
	srcAddr, dstAddr := broken.Dest.Base, broken.Source.Base
	if _, e, ok := c.routes.SearchValid(srcAddr, dstAddr, broken.Net); ok {
		return e.NextHop, e.Net, true
	}
	if _, e, ok := c.routes.SearchInvalid(srcAddr, dstAddr, broken.Net); ok {
		return e.NextHop, e.Net, true
	}
	return domain.Addr(0), 0, false
}

func (c *Collector) collect(nextHop domain.Addr, net domain.Net, dest domain.RerrDestination) error {
	for _, e := range c.records.Snapshot() {
		if e.Val.NextHop == nextHop && e.Val.Net == net {
			e.Val.Add(dest)
			return nil
		}
	}
	rec := domain.NewRerrRecord(nextHop, net)
	rec.Add(dest)
	_, err := c.records.Alloc(rec)
	return err
}

// Flush returns every RerrRecord accumulated so far and clears the
// collector, so the caller can emit one RERR per record and start a fresh
// aggregation window for the next handling pass.
func (c *Collector) Flush() []*domain.RerrRecord {
	entries := c.records.Snapshot()
	out := make([]*domain.RerrRecord, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Val)
		c.records.Free(e.Ref)
	}
	return out
}

// Len reports how many distinct next hops are currently being aggregated.
func (c *Collector) Len() int { return c.records.Len() }
