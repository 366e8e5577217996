package poller

import (
	"time"

	"go.uber.org/zap"

	"github.com/avi3tal/flowscope/internal/snapshots"
	"github.com/avi3tal/flowscope/internal/types"
)

const (
	DefaultInterval          = 200 * time.Millisecond
	DefaultTerminalThreshold = 3
)

// Ticker delivers poll ticks. It mirrors the parts of time.Ticker the
// controller needs so tests can drive ticks by hand.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type TickerFactory func(d time.Duration) Ticker

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker is the default TickerFactory, backed by time.Ticker.
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

type Option func(*Controller)

// WithInterval sets the poll interval. Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithTerminalThreshold sets how many terminal snapshots must be applied
// before polling stops. Values below 1 are ignored.
func WithTerminalThreshold(n int) Option {
	return func(c *Controller) {
		if n >= 1 {
			c.threshold = n
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithTickerFactory(f TickerFactory) Option {
	return func(c *Controller) {
		if f != nil {
			c.newTicker = f
		}
	}
}

// WithCache shares the snapshot cell the controller writes to.
func WithCache(cache *snapshots.LastValue) Option {
	return func(c *Controller) {
		if cache != nil {
			c.cache = cache
		}
	}
}

// WithSnapshotStore records every applied snapshot in store.
func WithSnapshotStore(store snapshots.Store) Option {
	return func(c *Controller) {
		c.store = store
	}
}

// WithOnUpdate registers a callback run after each applied snapshot.
func WithOnUpdate(fn func(*types.ExecutionSnapshot)) Option {
	return func(c *Controller) {
		c.onUpdate = fn
	}
}

// WithOnStop registers a callback run when an observation ends.
func WithOnStop(fn func(executionID string, reason StopReason)) Option {
	return func(c *Controller) {
		c.onStop = fn
	}
}
