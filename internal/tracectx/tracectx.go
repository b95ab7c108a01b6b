// Package tracectx attaches a per-discovery trace ID to a context.Context,
// so that log lines and spans emitted across DiscoveryCoordinator and
// ControlMessages for the same ring search can be correlated.
package tracectx

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"meshroute/internal/domain"
)

type traceKey struct{}

// NewTraceID generates a random trace identifier scoped to the given
// originator address, e.g. "0x0001-3f9a2c1e".
func NewTraceID(origin domain.Addr) string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return fmt.Sprintf("%s-%s", origin, hex.EncodeToString(b[:]))
}

// Attach generates a fresh trace ID derived from origin and stores it on
// the returned context.
func Attach(ctx context.Context, origin domain.Addr) (context.Context, string) {
	id := NewTraceID(origin)
	return context.WithValue(ctx, traceKey{}, id), id
}

// FromContext returns the trace ID attached to ctx, or "" if none.
func FromContext(ctx context.Context) string {
	if v := ctx.Value(traceKey{}); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// EnsureTraceID returns ctx unchanged if it already carries a trace ID,
// otherwise attaches a fresh one derived from origin.
func EnsureTraceID(ctx context.Context, origin domain.Addr) context.Context {
	if FromContext(ctx) != "" {
		return ctx
	}
	ctx, _ = Attach(ctx, origin)
	return ctx
}
