// Package discovery implements the ring-search originator loop of
// spec §4.3: DiscoveryCoordinator emits RREQs with expanding TTL and
// blocks the caller until a RREP arrives, the destination's intermediate
// promises (RWAIT) keep extending its patience, or the ring gives up.
package discovery

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"meshroute/internal/domain"
	"meshroute/internal/logger"
	"meshroute/internal/routetable"
	"meshroute/internal/tracectx"
)

const (
	startTTL           uint8 = 2
	defaultPollInterval      = 50 * time.Millisecond
)

var tracer = otel.Tracer("meshroute/discovery")

// Coordinator runs ring-search discoveries for a single node.
type Coordinator struct {
	logger       logger.Logger
	transport    Transport
	routes       *routetable.RouteTable
	replies      *ReplyQueue
	ringInterval time.Duration
	ringMaxTTL   uint8
	pollInterval time.Duration
}

// New creates a Coordinator. ringMaxTTL is RING_MAX_TTL (spec §6); a
// discover() call that reaches this TTL without a reply gives up.
func New(transport Transport, routes *routetable.RouteTable, replies *ReplyQueue, ringInterval time.Duration, ringMaxTTL int, opts ...Option) *Coordinator {
	c := &Coordinator{
		logger:       &logger.NopLogger{},
		transport:    transport,
		routes:       routes,
		replies:      replies,
		ringInterval: ringInterval,
		ringMaxTTL:   uint8(ringMaxTTL),
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Discover runs a blocking ring search for dst in net, originated by src.
// It returns nil on a RREP arrival (Success) or domain.ErrNoReply once the
// ring exhausts RING_MAX_TTL (spec §4.3).
func (c *Coordinator) Discover(ctx context.Context, src, dst domain.Addr, net domain.Net) error {
	ctx = tracectx.EnsureTraceID(ctx, src)
	traceID := tracectx.FromContext(ctx)
	log := c.logger.With(logger.F("trace_id", traceID), logger.F("dst", dst.String()))

	ctx, span := tracer.Start(ctx, "discover", oteltrace.WithAttributes(
		attribute.String("mesh.trace_id", traceID),
		attribute.String("mesh.src", src.String()),
		attribute.String("mesh.dst", dst.String()),
	))
	defer span.End()

	ttl := startTTL
	var destSeq uint32
	var destSeqKnown bool
	if _, e, ok := c.routes.SearchInvalidByDst(dst, net); ok {
		destSeq = e.DestSeq
		destSeqKnown = true
	}

	emit := func(ttl uint8) {
		_, step := tracer.Start(ctx, "ring_step", oteltrace.WithAttributes(attribute.Int("mesh.ttl", int(ttl))))
		defer step.End()

		params := RREQParams{
			Src: src, Dst: dst, Net: net, TTL: ttl,
			SrcSeq:       c.transport.SessionSeq(),
			DestSeq:      destSeq,
			DestSeqKnown: destSeqKnown,
		}
		if err := c.transport.SendRREQ(ctx, params); err != nil {
			step.RecordError(err)
			log.Warn("discover: RREQ send failed", logger.F("ttl", ttl), logger.F("err", err.Error()))
		}
	}

	log.Debug("discover: starting ring search", logger.F("ttl", ttl))
	emit(ttl)

	ringTimer := time.NewTimer(c.ringInterval)
	defer ringTimer.Stop()
	poll := time.NewTicker(c.pollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			span.RecordError(ctx.Err())
			span.SetStatus(codes.Error, "context cancelled")
			return ctx.Err()

		case <-ringTimer.C:
			ttl++
			if ttl >= c.ringMaxTTL {
				log.Info("discover: ring search exhausted", logger.F("ttl", ttl))
				span.RecordError(domain.ErrNoReply)
				span.SetStatus(codes.Error, "ring search exhausted")
				return domain.ErrNoReply
			}
			log.Debug("discover: expanding ring", logger.F("ttl", ttl))
			emit(ttl)
			ringTimer.Reset(c.ringInterval)

		case <-poll.C:
			for _, ev := range c.replies.TakeMatching(dst) {
				if ev.IsRREP() {
					log.Debug("discover: RREP received, search complete")
					span.SetStatus(codes.Ok, "")
					return nil
				}
				// RWAIT: an intermediate node is working the request on
				// our behalf. Extend patience non-periodically.
				if !ringTimer.Stop() {
					select {
					case <-ringTimer.C:
					default:
					}
				}
				ringTimer.Reset(4 * c.ringInterval)
				log.Debug("discover: RWAIT received, extending patience", logger.F("hop_count", ev.HopCount))
			}
		}
	}
}
