// Package logger defines the minimal structured-logging interface used by
// every component of the routing engine. Components depend on this
// interface, never on a concrete logging library, so that the engine can
// run both library-embedded (NopLogger) and as a standalone node
// (the zap-backed adapter in logger/zap).
package logger

import "meshroute/internal/domain"

// Field is a structured key/value pair attached to a log entry.
type Field struct {
	Key string
	Val any
}

// Logger is the narrow interface required by every routing-engine
// component.
type Logger interface {
	Named(name string) Logger
	With(fields ...Field) Logger
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// F builds a Field concisely.
func F(key string, val any) Field { return Field{Key: key, Val: val} }

// FEntry serializes a domain.RouteEntry into a readable structured field.
func FEntry(key string, e domain.RouteEntry) Field {
	return Field{Key: key, Val: map[string]any{
		"source":    e.Source.String(),
		"dest":      e.Dest.String(),
		"net":       e.Net,
		"next_hop":  e.NextHop.String(),
		"hop_count": e.HopCount,
		"rssi":      e.RSSI,
		"dest_seq":  e.DestSeq,
		"state":     e.State.String(),
	}}
}

// FNeighbour serializes a domain.NeighbourRecord into a structured field.
func FNeighbour(key string, n domain.NeighbourRecord) Field {
	return Field{Key: key, Val: map[string]any{
		"addr": n.Addr.String(),
		"net":  n.Net,
	}}
}

// ----------------------------------------------------------------
// NopLogger is a Logger implementation that does nothing. It is the
// default for components constructed without an explicit logger option.
type NopLogger struct{}

func (l *NopLogger) Named(name string) Logger          { return l }
func (l *NopLogger) With(fields ...Field) Logger       { return l }
func (l *NopLogger) Debug(msg string, fields ...Field) {}
func (l *NopLogger) Info(msg string, fields ...Field)  {}
func (l *NopLogger) Warn(msg string, fields ...Field)  {}
func (l *NopLogger) Error(msg string, fields ...Field) {}
