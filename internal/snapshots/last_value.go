package snapshots

import (
	"sync/atomic"

	"github.com/avi3tal/flowscope/internal/types"
)

// LastValue holds only the most recent snapshot. Writers replace it
// wholesale; readers get the pointer that was current at the time of the
// call and must not modify it.
type LastValue struct {
	current atomic.Pointer[types.ExecutionSnapshot]
}

func NewLastValue() *LastValue {
	return &LastValue{}
}

// Read returns the current snapshot, or nil when none has been written.
func (l *LastValue) Read() *types.ExecutionSnapshot {
	return l.current.Load()
}

// Write replaces the current snapshot.
func (l *LastValue) Write(snap *types.ExecutionSnapshot) {
	l.current.Store(snap)
}

// Clear drops the current snapshot.
func (l *LastValue) Clear() {
	l.current.Store(nil)
}
