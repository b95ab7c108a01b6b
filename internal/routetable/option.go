package routetable

import "meshroute/internal/logger"

// Option configures a RouteTable at construction time.
type Option func(*RouteTable)

// WithLogger sets the logger used for routing-table diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(rt *RouteTable) {
		if l != nil {
			rt.logger = l
		}
	}
}
