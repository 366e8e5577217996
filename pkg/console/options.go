package console

import (
	"go.uber.org/zap"

	"github.com/avi3tal/flowscope/internal/graph"
	"github.com/avi3tal/flowscope/internal/poller"
	"github.com/avi3tal/flowscope/internal/snapshots"
)

// Option configures a Session before it is used.
type Option func(*Session)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithCallback(cb Callback) Option {
	return func(s *Session) {
		s.callback = cb
	}
}

// WithSnapshotStore keeps the latest snapshot of every execution the
// session observed.
func WithSnapshotStore(store snapshots.Store) Option {
	return func(s *Session) {
		s.store = store
	}
}

func WithLayoutOptions(opts ...graph.LayoutOption) Option {
	return func(s *Session) {
		s.layoutOpts = append(s.layoutOpts, opts...)
	}
}

// WithPollerOptions tunes the polling controller, e.g. its interval.
func WithPollerOptions(opts ...poller.Option) Option {
	return func(s *Session) {
		s.pollerOpts = append(s.pollerOpts, opts...)
	}
}
