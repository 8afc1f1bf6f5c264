package coordinator

import (
	"github.com/ShayCichocki/taskweave/internal/bus"
	"github.com/ShayCichocki/taskweave/internal/distribute"
	"github.com/ShayCichocki/taskweave/internal/state"
)

// coordinatorOptions holds construction-time configuration.
type coordinatorOptions struct {
	distributor      *distribute.Distributor
	bus              *bus.MessageBus
	store            state.Store
	logger           *DebugLogger
	maxRetries       int
	concurrencyLimit int
	continueOnError  bool
	blockedFatal     bool
	eventBuffer      int
}

// defaultOptions returns the baseline configuration.
func defaultOptions() coordinatorOptions {
	// No retries unless asked: a default-constructed coordinator
	// attempts each failing task exactly once.
	return coordinatorOptions{
		maxRetries:  0,
		eventBuffer: 256,
	}
}

// Option configures a Coordinator at construction.
type Option func(*coordinatorOptions)

// WithDistributor replaces the default task distributor, e.g. to plug a
// custom duration estimator.
func WithDistributor(d *distribute.Distributor) Option {
	return func(o *coordinatorOptions) {
		o.distributor = d
	}
}

// WithBus sets the message bus workers use for peer communication.
func WithBus(b *bus.MessageBus) Option {
	return func(o *coordinatorOptions) {
		o.bus = b
	}
}

// WithStateStore enables best-effort session history persistence.
// Store failures are logged and never interrupt orchestration.
func WithStateStore(s state.Store) Option {
	return func(o *coordinatorOptions) {
		o.store = s
	}
}

// WithLogger sets the debug logger.
func WithLogger(l *DebugLogger) Option {
	return func(o *coordinatorOptions) {
		o.logger = l
	}
}

// WithMaxRetries sets how many times a failed task is re-dispatched
// before being terminally failed.
func WithMaxRetries(n int) Option {
	return func(o *coordinatorOptions) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// WithConcurrencyLimit caps concurrent dispatch in parallel mode.
// Zero means unbounded.
func WithConcurrencyLimit(n int) Option {
	return func(o *coordinatorOptions) {
		if n >= 0 {
			o.concurrencyLimit = n
		}
	}
}

// WithContinueOnError lets sequential sessions proceed past a failure to
// tasks that do not depend on it.
func WithContinueOnError(enabled bool) Option {
	return func(o *coordinatorOptions) {
		o.continueOnError = enabled
	}
}

// WithBlockedFatal treats a session with blocked tasks but no failed
// tasks as failed. Off by default; a blocked task always has a failed
// ancestor, so this only matters for externally pre-seeded graphs.
func WithBlockedFatal(enabled bool) Option {
	return func(o *coordinatorOptions) {
		o.blockedFatal = enabled
	}
}

// WithEventBuffer sets the lifecycle event channel capacity.
func WithEventBuffer(n int) Option {
	return func(o *coordinatorOptions) {
		if n > 0 {
			o.eventBuffer = n
		}
	}
}
