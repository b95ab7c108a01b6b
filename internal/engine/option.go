package engine

import "meshroute/internal/logger"

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger sets the logger used by the engine and propagated to every
// component it owns.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}
