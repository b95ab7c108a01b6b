package discovery

import (
	"time"

	"meshroute/internal/logger"
)

// Option configures a Coordinator at construction time.
type Option func(*Coordinator)

// WithLogger sets the logger used for discovery diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithPollInterval overrides the coordinator's reply-queue poll cadence,
// the Go analogue of the source's ~50ms cooperative yield (spec §4.3
// step 6). The zero value keeps the default.
func WithPollInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}
