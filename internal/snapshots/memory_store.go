package snapshots

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/avi3tal/flowscope/internal/types"
)

// Meta records when and how often an execution was observed.
type Meta struct {
	CreatedAt time.Time
	UpdatedAt time.Time
	Polls     int
}

// Entry is the latest snapshot kept for one execution.
type Entry struct {
	Snapshot *types.ExecutionSnapshot
	Meta     Meta
}

// Store keeps the latest snapshot of each observed execution.
type Store interface {
	Save(ctx context.Context, snap *types.ExecutionSnapshot) error
	Load(ctx context.Context, executionID string) (*Entry, error)
	Delete(ctx context.Context, executionID string) error
	List(ctx context.Context) ([]Entry, error)
}

// MemoryStore is an in-process Store bounded to a fixed number of
// executions. When full, the least recently updated execution is evicted.
type MemoryStore struct {
	entries  map[string]*Entry
	capacity int
	now      func() time.Time
	mu       sync.RWMutex
}

const DefaultCapacity = 32

func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{
		entries:  make(map[string]*Entry),
		capacity: capacity,
		now:      time.Now,
	}
}

func (m *MemoryStore) Save(_ context.Context, snap *types.ExecutionSnapshot) error {
	if snap == nil || snap.ExecutionID == "" {
		return fmt.Errorf("snapshot without execution id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	entry, exists := m.entries[snap.ExecutionID]
	if !exists {
		m.evictLocked()
		entry = &Entry{Meta: Meta{CreatedAt: now}}
		m.entries[snap.ExecutionID] = entry
	}
	entry.Snapshot = snap
	entry.Meta.UpdatedAt = now
	entry.Meta.Polls++
	return nil
}

func (m *MemoryStore) Load(_ context.Context, executionID string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, exists := m.entries[executionID]
	if !exists {
		return nil, fmt.Errorf("snapshot not found: %s", executionID)
	}
	cp := *entry
	return &cp, nil
}

func (m *MemoryStore) Delete(_ context.Context, executionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, executionID)
	return nil
}

// List returns all entries, most recently updated first.
func (m *MemoryStore) List(_ context.Context) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, *e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Meta.UpdatedAt.Equal(out[j].Meta.UpdatedAt) {
			return out[i].Snapshot.ExecutionID < out[j].Snapshot.ExecutionID
		}
		return out[i].Meta.UpdatedAt.After(out[j].Meta.UpdatedAt)
	})
	return out, nil
}

func (m *MemoryStore) evictLocked() {
	if len(m.entries) < m.capacity {
		return
	}
	var oldestID string
	var oldest time.Time
	for id, e := range m.entries {
		if oldestID == "" || e.Meta.UpdatedAt.Before(oldest) ||
			(e.Meta.UpdatedAt.Equal(oldest) && id < oldestID) {
			oldestID, oldest = id, e.Meta.UpdatedAt
		}
	}
	delete(m.entries, oldestID)
}
