package control

import (
	"context"

	"meshroute/internal/discovery"
	"meshroute/internal/domain"
	"meshroute/internal/errcollector"
	"meshroute/internal/hellotracker"
	"meshroute/internal/logger"
	"meshroute/internal/routetable"
)

// Handler decodes incoming control messages, dispatches them per the
// role-dispatch rules of spec §4.5, and mutates RouteTable, HelloTracker
// and the discovery ReplyQueue accordingly. It also implements
// discovery.Transport, so the same value emits the originator's RREQs.
type Handler struct {
	logger  logger.Logger
	host    Host
	routes  *routetable.RouteTable
	hellos  *hellotracker.Tracker
	errs    *errcollector.Collector
	replies *discovery.ReplyQueue
}

// Option configures a Handler at construction time.
type Option func(*Handler)

// WithLogger sets the logger used for control-message diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// New creates a Handler wired to the given components.
func New(host Host, routes *routetable.RouteTable, hellos *hellotracker.Tracker, errs *errcollector.Collector, replies *discovery.ReplyQueue, opts ...Option) *Handler {
	h := &Handler{
		logger:  &logger.NopLogger{},
		host:    host,
		routes:  routes,
		hellos:  hellos,
		errs:    errs,
		replies: replies,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// --- discovery.Transport -----------------------------------------------

// SendRREQ implements discovery.Transport: it encodes and floods an RREQ
// originated locally by the DiscoveryCoordinator.
func (h *Handler) SendRREQ(ctx context.Context, p discovery.RREQParams) error {
	r := RREQ{
		Source:      p.Src,
		Destination: p.Dst,
		SourceElems: h.host.ElemCount(),
		HopCount:    p.HopCount,
		RSSI:        p.RSSI,
		SeqUnknown:  !p.DestSeqKnown,
		SourceSeq:   p.SrcSeq,
		DestSeq:     p.DestSeq,
	}
	return h.host.SendCtl(ctx, Broadcast, OpRREQ, p.TTL, EncodeRREQ(r))
}

// SessionSeq implements discovery.Transport.
func (h *Handler) SessionSeq() uint32 {
	return h.host.SessionSeq()
}

// --- inbound dispatch ---------------------------------------------------

// OnCtlReceive is the entry point the host invokes for every received
// control message (spec §6 "on_ctl_receive(op, rx, bytes)").
func (h *Handler) OnCtlReceive(ctx context.Context, op Op, rx RxMeta, bytes []byte) error {
	switch op {
	case OpRREQ:
		data, err := DecodeRREQ(bytes)
		if err != nil {
			h.logger.Warn("control: short RREQ, dropping", logger.F("err", err.Error()))
			return nil
		}
		return h.handleRREQ(ctx, data, rx)
	case OpRREP:
		data, err := DecodeRREP(bytes)
		if err != nil {
			h.logger.Warn("control: short RREP, dropping", logger.F("err", err.Error()))
			return nil
		}
		return h.handleRREP(ctx, data, rx)
	case OpRWAIT:
		data, err := DecodeRWAIT(bytes)
		if err != nil {
			h.logger.Warn("control: short RWAIT, dropping", logger.F("err", err.Error()))
			return nil
		}
		return h.handleRWAIT(ctx, data, rx)
	case OpRERR:
		data, err := DecodeRERR(bytes)
		if err != nil {
			h.logger.Warn("control: short RERR, dropping", logger.F("err", err.Error()))
			return nil
		}
		return h.handleRERR(ctx, data, rx)
	default:
		h.logger.Warn("control: unknown opcode, dropping", logger.F("op", uint8(op)))
		return nil
	}
}

// OnHello forwards a received Hello to the neighbour tracker (spec §4.5
// "Hello reception").
func (h *Handler) OnHello(src domain.Addr, net domain.Net) error {
	return h.hellos.OnHello(src, net)
}

// reverseFields builds the reverse-direction route fields common to every
// RREQ-reception branch: a route back toward the RREQ's originator,
// through whoever relayed this RREQ to us (spec §4.5).
func reverseFields(data RREQ, rx RxMeta) routetable.Fields {
	return routetable.Fields{
		Source:   domain.SingleAddr(data.Destination),
		Dest:     domain.SingleAddr(data.Source),
		DestSeq:  data.SourceSeq,
		NextHop:  rx.Source,
		HopCount: data.HopCount + 1,
		RSSI:     domain.WeightedRSSI(data.RSSI, data.HopCount, rx.RSSI),
		Net:      rx.Net,
	}
}

func (h *Handler) handleRREQ(ctx context.Context, data RREQ, rx RxMeta) error {
	if h.host.ElemFind(data.Source) {
		h.logger.Debug("control: local-loopback RREQ dropped")
		return domain.ErrLocalLoopback
	}

	if h.host.ElemFind(data.Destination) {
		return h.handleRREQAsDestination(ctx, data, rx)
	}

	if !data.Directed && !data.DestOnly {
		if kh, known, ok := h.routes.SearchValidByDst(data.Destination, rx.Net); ok {
			return h.handleRREQAsShortcut(ctx, data, rx, kh, known)
		}
	}

	return h.handleRREQAsRelay(ctx, data, rx)
}

func (h *Handler) handleRREQAsDestination(ctx context.Context, data RREQ, rx RxMeta) error {
	if _, _, ok := h.routes.SearchValid(data.Destination, data.Source, rx.Net); ok {
		h.logger.Debug("control: late RREQ dropped", logger.F("source", data.Source.String()))
		return domain.ErrLateRreq
	}

	fields := reverseFields(data, rx)

	if hd, existing, ok := h.routes.SearchInvalid(data.Destination, data.Source, rx.Net); ok {
		newCost := h.routes.Cost(fields.HopCount, fields.RSSI)
		oldCost := existing.Cost(h.routes.RSSIMin())
		if newCost < oldCost {
			h.routes.UpdateFields(hd, func(e *domain.RouteEntry) {
				e.NextHop = fields.NextHop
				e.HopCount = fields.HopCount
				e.RSSI = fields.RSSI
				e.DestSeq = fields.DestSeq
			})
			h.logger.Debug("control: better path replaced reverse entry during wait window",
				logger.F("old_cost", oldCost), logger.F("new_cost", newCost))
		}
		return nil
	}

	_, err := h.routes.CreateInvalidWithCallback(fields, func(hd routetable.Handle) error {
		if _, verr := h.routes.Validate(hd); verr != nil {
			return verr
		}
		if aerr := h.hellos.AddNeighbour(fields.NextHop, fields.Net); aerr != nil {
			h.logger.Warn("control: failed to register reverse next hop as neighbour", logger.F("err", aerr.Error()))
		}
		rep := RREP{
			Source:           data.Source,
			Destination:      h.host.PrimaryAddr(),
			DestSeq:          h.host.SessionSeq(),
			HopCount:         0,
			DestinationElems: h.host.ElemCount(),
		}
		return h.host.SendCtl(ctx, fields.NextHop, OpRREP, 1, EncodeRREP(rep))
	})
	if err != nil {
		h.logger.Warn("control: RREQ-wait reverse entry allocation failed", logger.F("err", err.Error()))
	}
	return err
}

func (h *Handler) handleRREQAsShortcut(ctx context.Context, data RREQ, rx RxMeta, _ routetable.Handle, known domain.RouteEntry) error {
	fields := reverseFields(data, rx)
	if _, err := h.routes.CreateInvalid(fields); err != nil {
		h.logger.Warn("control: shortcut reverse entry allocation failed", logger.F("err", err.Error()))
		return err
	}

	if !data.SeqUnknown && known.DestSeq < data.DestSeq {
		// our known route is staler than what the originator already
		// believes; fall through and let the flood continue elsewhere.
		return nil
	}

	directed := data
	directed.HopCount = data.HopCount + 1
	directed.RSSI = domain.WeightedRSSI(data.RSSI, data.HopCount, rx.RSSI)
	directed.Directed = true
	if err := h.host.SendCtl(ctx, known.NextHop, OpRREQ, 1, EncodeRREQ(directed)); err != nil {
		h.logger.Warn("control: directed shortcut RREQ send failed", logger.F("err", err.Error()))
	}

	rwait := RWAIT{
		Destination: data.Destination,
		Source:      data.Source,
		SourceSeq:   data.SourceSeq,
		HopCount:    known.HopCount,
	}
	if err := h.host.SendCtl(ctx, rx.Source, OpRWAIT, 1, EncodeRWAIT(rwait)); err != nil {
		h.logger.Warn("control: RWAIT send failed", logger.F("err", err.Error()))
	}
	return nil
}

func (h *Handler) handleRREQAsRelay(ctx context.Context, data RREQ, rx RxMeta) error {
	fields := reverseFields(data, rx)

	hd, existing, ok := h.routes.SearchInvalid(data.Destination, data.Source, rx.Net)
	if !ok {
		if _, err := h.routes.CreateInvalid(fields); err != nil {
			h.logger.Warn("control: relay reverse entry allocation failed", logger.F("err", err.Error()))
			return err
		}
		h.relayFlood(ctx, data, rx)
		return nil
	}

	if existing.DestSeq < data.SourceSeq {
		h.routes.RefreshWithFields(hd, func(e *domain.RouteEntry) {
			e.NextHop = fields.NextHop
			e.HopCount = fields.HopCount
			e.RSSI = fields.RSSI
			e.DestSeq = fields.DestSeq
		})
		h.relayFlood(ctx, data, rx)
		return nil
	}

	// duplicate RREQ for an already-fresh reverse entry: drop silently.
	return nil
}

func (h *Handler) relayFlood(ctx context.Context, data RREQ, rx RxMeta) {
	if rx.RecvTTL == 0 {
		return
	}
	relayed := data
	relayed.HopCount = data.HopCount + 1
	relayed.RSSI = domain.WeightedRSSI(data.RSSI, data.HopCount, rx.RSSI)
	if err := h.host.SendCtl(ctx, Broadcast, OpRREQ, rx.RecvTTL-1, EncodeRREQ(relayed)); err != nil {
		h.logger.Warn("control: RREQ relay send failed", logger.F("err", err.Error()))
	}
}

func (h *Handler) handleRREP(ctx context.Context, data RREP, rx RxMeta) error {
	if data.Source == h.host.PrimaryAddr() {
		fields := routetable.Fields{
			Source:     domain.SingleAddr(data.Source),
			Dest:       domain.Range{Base: data.Destination, Count: data.DestinationElems},
			DestSeq:    data.DestSeq,
			NextHop:    rx.Source,
			HopCount:   data.HopCount,
			RSSI:       rx.RSSI,
			Net:        rx.Net,
			Repairable: data.Repairable,
		}
		vh, existing, ok := h.routes.SearchValid(data.Source, data.Destination, rx.Net)
		switch {
		case !ok:
			if _, err := h.routes.CreateValid(fields); err != nil {
				h.logger.Warn("control: forward valid entry allocation failed", logger.F("err", err.Error()))
				return err
			}
		case data.DestSeq > existing.DestSeq:
			// A fresher RREP arrived for an already-valid destination:
			// replace the stale path in place rather than keeping it.
			h.routes.UpdateFields(vh, func(e *domain.RouteEntry) {
				e.NextHop = fields.NextHop
				e.HopCount = fields.HopCount
				e.RSSI = fields.RSSI
				e.DestSeq = fields.DestSeq
				e.Repairable = fields.Repairable
			})
		}
		if err := h.hellos.AddNeighbour(rx.Source, rx.Net); err != nil {
			h.logger.Warn("control: failed to register RREP next hop as neighbour", logger.F("err", err.Error()))
		}
		if err := h.replies.Push(domain.ReplyEvent{DestAddr: data.Destination, HopCount: 0}); err != nil {
			h.logger.Warn("control: reply-event queue exhausted", logger.F("err", err.Error()))
		}
		return nil
	}

	// The reverse entry was created during RREQ relay with Source=target,
	// Dest=originator (reverseFields): the entry's own Source range is what
	// widens once the RREP reveals the target's true element count.
	dstRange := domain.Range{Base: data.Destination, Count: data.DestinationElems}
	rh, rev, ok := h.routes.SearchInvalidWithSrcRange(dstRange, data.Source, rx.Net)
	if !ok {
		h.logger.Debug("control: RREP with no matching reverse entry, dropping")
		return nil
	}

	h.routes.UpdateFields(rh, func(e *domain.RouteEntry) {
		e.Source = dstRange
	})
	if _, verr := h.routes.Validate(rh); verr != nil {
		h.logger.Warn("control: reverse entry validation failed", logger.F("err", verr.Error()))
		return verr
	}
	if err := h.hellos.AddNeighbour(rev.NextHop, rev.Net); err != nil {
		h.logger.Warn("control: failed to register reverse next hop as neighbour", logger.F("err", err.Error()))
	}

	forward := routetable.Fields{
		Source:   domain.SingleAddr(data.Source),
		Dest:     dstRange,
		DestSeq:  data.DestSeq,
		NextHop:  rx.Source,
		HopCount: data.HopCount,
		RSSI:     rx.RSSI,
		Net:      rx.Net,
	}
	if _, err := h.routes.CreateValid(forward); err != nil {
		h.logger.Warn("control: intermediate forward entry allocation failed", logger.F("err", err.Error()))
		return err
	}

	forwarded := data
	forwarded.HopCount = data.HopCount + 1
	if err := h.host.SendCtl(ctx, rev.NextHop, OpRREP, 1, EncodeRREP(forwarded)); err != nil {
		h.logger.Warn("control: RREP forward send failed", logger.F("err", err.Error()))
	}
	return nil
}

func (h *Handler) handleRWAIT(ctx context.Context, data RWAIT, rx RxMeta) error {
	if data.Source == h.host.PrimaryAddr() {
		if _, _, ok := h.routes.SearchValid(data.Source, data.Destination, rx.Net); ok {
			return nil
		}
		if err := h.replies.Push(domain.ReplyEvent{DestAddr: data.Destination, HopCount: data.HopCount}); err != nil {
			h.logger.Warn("control: reply-event queue exhausted", logger.F("err", err.Error()))
		}
		return nil
	}

	if _, rev, ok := h.routes.SearchInvalid(data.Destination, data.Source, rx.Net); ok {
		if err := h.host.SendCtl(ctx, rev.NextHop, OpRWAIT, 1, EncodeRWAIT(data)); err != nil {
			h.logger.Warn("control: RWAIT relay send failed", logger.F("err", err.Error()))
		}
		return nil
	}
	if _, rev, ok := h.routes.SearchValid(data.Destination, data.Source, rx.Net); ok {
		if err := h.host.SendCtl(ctx, rev.NextHop, OpRWAIT, 1, EncodeRWAIT(data)); err != nil {
			h.logger.Warn("control: RWAIT relay send failed", logger.F("err", err.Error()))
		}
		return nil
	}
	h.logger.Debug("control: RWAIT with no reverse entry, dropping")
	return nil
}

func (h *Handler) handleRERR(ctx context.Context, data RERR, rx RxMeta) error {
	for _, d := range data.Destinations {
		h.routes.EnumerateValidByDestNextHop(d.DestAddr, rx.Source, rx.Net, func(hd routetable.Handle, entry domain.RouteEntry) {
			h.errs.Record(entry)
			h.routes.Invalidate(hd)
		})
	}
	for _, rec := range h.errs.Flush() {
		h.sendRERR(ctx, rec)
	}
	return nil
}

func (h *Handler) sendRERR(ctx context.Context, rec *domain.RerrRecord) {
	pdu := RERR{Destinations: rec.Destinations()}
	if err := h.host.SendCtl(ctx, rec.NextHop, OpRERR, 1, EncodeRERR(pdu)); err != nil {
		h.logger.Warn("control: RERR send failed", logger.F("next_hop", rec.NextHop.String()), logger.F("err", err.Error()))
	}
}

// HandleNeighbourLoss runs the neighbour-loss cascade of spec §4.2/§4.4:
// every Valid route through the lost neighbour is recorded and
// invalidated, its reverse route is invalidated too, one coalesced RERR
// per aggregated next hop is emitted, and finally the neighbour record
// itself (already removed by HelloTracker before this runs) is reconciled
// via RemoveNeighbourIfUnused on every next hop touched.
func (h *Handler) HandleNeighbourLoss(ctx context.Context, n domain.NeighbourRecord) {
	h.routes.EnumerateValidByNextHop(n.Addr, n.Net, func(fh routetable.Handle, entry domain.RouteEntry) {
		h.errs.Record(entry)
		h.routes.Invalidate(fh)
		if rh, rev, ok := h.routes.SearchValid(entry.Dest.Base, entry.Source.Base, entry.Net); ok {
			h.routes.Invalidate(rh)
			h.hellos.RemoveNeighbourIfUnused(rev.NextHop, rev.Net, h.routes)
		}
	})
	for _, rec := range h.errs.Flush() {
		h.sendRERR(ctx, rec)
	}
	h.hellos.RemoveNeighbourIfUnused(n.Addr, n.Net, h.routes)
}
