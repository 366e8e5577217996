package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/avi3tal/flowscope/internal/snapshots"
	"github.com/avi3tal/flowscope/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

//--------------//
// Test doubles //
//--------------//

type manualTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               { m.stopped.Store(true) }

func (m *manualTicker) tick(t *testing.T) {
	t.Helper()
	select {
	case m.ch <- time.Now():
	case <-time.After(waitTimeout):
		t.Fatal("tick was not consumed")
	}
}

// tryTick sends a tick if the loop is still listening.
func (m *manualTicker) tryTick() {
	select {
	case m.ch <- time.Now():
	case <-time.After(50 * time.Millisecond):
	}
}

type result struct {
	snap *types.ExecutionSnapshot
	err  error
}

// scriptedFetcher answers call n with script[n-1], repeating the last entry.
// A gate registered for call n holds that response back until closed, even
// when the request context is cancelled.
type scriptedFetcher struct {
	mu     sync.Mutex
	calls  int
	script []result
	gates  map[int]chan struct{}
}

func newScriptedFetcher(script ...result) *scriptedFetcher {
	return &scriptedFetcher{script: script, gates: make(map[int]chan struct{})}
}

func (f *scriptedFetcher) gate(call int) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[call] = ch
	return ch
}

func (f *scriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *scriptedFetcher) GetExecution(_ context.Context, _ string) (*types.ExecutionSnapshot, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	gate := f.gates[n]
	r := f.script[len(f.script)-1]
	if n <= len(f.script) {
		r = f.script[n-1]
	}
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return r.snap, r.err
}

func snap(id string, status types.ExecutionStatus, marker string) *types.ExecutionSnapshot {
	return &types.ExecutionSnapshot{ExecutionID: id, Status: status, StartedAt: marker}
}

func ok(s *types.ExecutionSnapshot) result { return result{snap: s} }

type harness struct {
	c       *Controller
	tickers chan *manualTicker
	updates chan *types.ExecutionSnapshot
	stops   chan StopReason
}

func newHarness(f Fetcher, opts ...Option) *harness {
	h := &harness{
		tickers: make(chan *manualTicker, 8),
		updates: make(chan *types.ExecutionSnapshot, 64),
		stops:   make(chan StopReason, 8),
	}
	base := []Option{
		WithTickerFactory(func(time.Duration) Ticker {
			tk := &manualTicker{ch: make(chan time.Time)}
			h.tickers <- tk
			return tk
		}),
		WithOnUpdate(func(s *types.ExecutionSnapshot) { h.updates <- s }),
		WithOnStop(func(_ string, reason StopReason) { h.stops <- reason }),
	}
	h.c = New(f, append(base, opts...)...)
	return h
}

func (h *harness) ticker(t *testing.T) *manualTicker {
	t.Helper()
	select {
	case tk := <-h.tickers:
		return tk
	case <-time.After(waitTimeout):
		t.Fatal("no ticker created")
		return nil
	}
}

func (h *harness) update(t *testing.T) *types.ExecutionSnapshot {
	t.Helper()
	select {
	case s := <-h.updates:
		return s
	case <-time.After(waitTimeout):
		t.Fatal("no snapshot applied")
		return nil
	}
}

func (h *harness) stop(t *testing.T) StopReason {
	t.Helper()
	select {
	case r := <-h.stops:
		return r
	case <-time.After(waitTimeout):
		t.Fatal("observation did not stop")
		return ""
	}
}

//-------//
// Tests //
//-------//

func TestStateString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "polling", Polling.String())
	assert.Equal(t, "stopped", Stopped.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestStartRequiresExecutionID(t *testing.T) {
	t.Parallel()
	h := newHarness(newScriptedFetcher(ok(snap("x1", types.ExecutionRunning, ""))))
	require.ErrorIs(t, h.c.Start("", nil), ErrEmptyExecutionID)
	assert.Equal(t, Idle, h.c.State())
}

func TestStopsAfterTerminalThreshold(t *testing.T) {
	t.Parallel()
	f := newScriptedFetcher(
		ok(snap("x1", types.ExecutionRunning, "p1")),
		ok(snap("x1", types.ExecutionRunning, "p2")),
		ok(snap("x1", types.ExecutionRunning, "p3")),
		ok(snap("x1", types.ExecutionCompleted, "p4")),
		ok(snap("x1", types.ExecutionCompleted, "p5")),
		ok(snap("x1", types.ExecutionCompleted, "p6")),
		ok(snap("x1", types.ExecutionCompleted, "p7")),
	)
	h := newHarness(f)

	initial := snap("x1", types.ExecutionRunning, "initial")
	require.NoError(t, h.c.Start("x1", initial))
	assert.Equal(t, Polling, h.c.State())
	assert.Equal(t, "x1", h.c.ExecutionID())

	tk := h.ticker(t)
	assert.Equal(t, "p1", h.update(t).StartedAt)

	// first terminal result on poll 4, default threshold 3: last fetch is poll 6
	for i, want := range []string{"p2", "p3", "p4", "p5", "p6"} {
		tk.tick(t)
		assert.Equal(t, want, h.update(t).StartedAt, "poll %d", i+2)
	}

	assert.Equal(t, ReasonTerminal, h.stop(t))
	assert.Equal(t, Stopped, h.c.State())
	assert.Equal(t, "x1", h.c.ExecutionID())
	assert.True(t, tk.stopped.Load())

	tk.tryTick()
	assert.Equal(t, 6, f.Calls())
	assert.Equal(t, 6, h.c.Polls())
	assert.Equal(t, "p6", h.c.Snapshot().StartedAt)

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, h.c.Wait(ctx))
}

func TestTerminalThresholdOfOne(t *testing.T) {
	t.Parallel()
	f := newScriptedFetcher(ok(snap("x1", types.ExecutionFailed, "p1")))
	h := newHarness(f, WithTerminalThreshold(1))

	require.NoError(t, h.c.Start("x1", nil))
	tk := h.ticker(t)
	assert.Equal(t, types.ExecutionFailed, h.update(t).Status)
	assert.Equal(t, ReasonTerminal, h.stop(t))
	assert.Equal(t, Stopped, h.c.State())

	tk.tryTick()
	assert.Equal(t, 1, f.Calls())
}

func TestCloseFromUpdateHook(t *testing.T) {
	t.Parallel()
	f := newScriptedFetcher(ok(snap("x1", types.ExecutionRunning, "p1")))

	var c *Controller
	closed := make(chan struct{})
	c = New(f,
		WithTickerFactory(func(time.Duration) Ticker {
			return &manualTicker{ch: make(chan time.Time)}
		}),
		WithOnUpdate(func(*types.ExecutionSnapshot) {
			c.Close()
			close(closed)
		}),
	)
	require.NoError(t, c.Start("x1", nil))

	select {
	case <-closed:
	case <-time.After(waitTimeout):
		t.Fatal("Close called from the update hook did not return")
	}
	assert.Equal(t, Idle, c.State())
	assert.Equal(t, "p1", c.Snapshot().StartedAt)
}

func TestCancelDiscardsLateResponse(t *testing.T) {
	t.Parallel()
	f := newScriptedFetcher(ok(snap("x1", types.ExecutionCompleted, "late")))
	release := f.gate(1)
	h := newHarness(f)

	initial := snap("x1", types.ExecutionRunning, "initial")
	require.NoError(t, h.c.Start("x1", initial))
	tk := h.ticker(t)
	require.Eventually(t, func() bool { return f.Calls() == 1 }, waitTimeout, time.Millisecond)

	h.c.Cancel()
	assert.Equal(t, Idle, h.c.State())
	assert.Empty(t, h.c.ExecutionID())
	assert.True(t, tk.stopped.Load())
	assert.Equal(t, ReasonCancelled, h.stop(t))

	close(release)
	h.c.Close()

	assert.Same(t, initial, h.c.Snapshot())
	assert.Empty(t, h.updates)

	// idempotent
	h.c.Cancel()
	assert.Equal(t, Idle, h.c.State())
	assert.Empty(t, h.stops)
}

func TestCancelWhileIdleIsNoop(t *testing.T) {
	t.Parallel()
	h := newHarness(newScriptedFetcher(ok(snap("x1", types.ExecutionRunning, ""))))
	h.c.Cancel()
	h.c.Cancel()
	assert.Equal(t, Idle, h.c.State())
	assert.Empty(t, h.stops)
	require.NoError(t, h.c.Wait(context.Background()))
}

func TestStartReplacesObservation(t *testing.T) {
	t.Parallel()
	f := newScriptedFetcher(
		ok(snap("x1", types.ExecutionRunning, "old")),
		ok(snap("x2", types.ExecutionRunning, "new")),
	)
	release := f.gate(1)
	h := newHarness(f)

	require.NoError(t, h.c.Start("x1", nil))
	first := h.ticker(t)
	require.Eventually(t, func() bool { return f.Calls() == 1 }, waitTimeout, time.Millisecond)

	require.NoError(t, h.c.Start("x2", snap("x2", types.ExecutionPending, "initial")))
	h.ticker(t)
	assert.Equal(t, ReasonReplaced, h.stop(t))
	assert.True(t, first.stopped.Load())
	assert.Equal(t, "new", h.update(t).StartedAt)

	close(release)
	h.c.inflight.Wait()

	assert.Equal(t, "x2", h.c.ExecutionID())
	assert.Equal(t, Polling, h.c.State())
	assert.Equal(t, "new", h.c.Snapshot().StartedAt)
	assert.Empty(t, h.updates)

	h.c.Close()
}

func TestOutOfOrderResponseIsDiscarded(t *testing.T) {
	t.Parallel()
	f := newScriptedFetcher(
		ok(snap("x1", types.ExecutionRunning, "p1")),
		ok(snap("x1", types.ExecutionRunning, "p2")),
		ok(snap("x1", types.ExecutionRunning, "p3")),
	)
	release := f.gate(2)
	h := newHarness(f)

	require.NoError(t, h.c.Start("x1", nil))
	tk := h.ticker(t)
	assert.Equal(t, "p1", h.update(t).StartedAt)

	tk.tick(t)
	require.Eventually(t, func() bool { return f.Calls() == 2 }, waitTimeout, time.Millisecond)
	tk.tick(t)
	assert.Equal(t, "p3", h.update(t).StartedAt)

	close(release)
	h.c.inflight.Wait()

	assert.Equal(t, "p3", h.c.Snapshot().StartedAt)
	assert.Empty(t, h.updates)
	h.c.Close()
}

func TestFetchErrorsDoNotStopPolling(t *testing.T) {
	t.Parallel()
	f := newScriptedFetcher(
		result{err: errors.New("connection refused")},
		result{},
		ok(snap("x1", types.ExecutionRunning, "p3")),
	)
	h := newHarness(f)

	initial := snap("x1", types.ExecutionPending, "initial")
	require.NoError(t, h.c.Start("x1", initial))
	tk := h.ticker(t)
	require.Eventually(t, func() bool { return f.Calls() == 1 }, waitTimeout, time.Millisecond)

	tk.tick(t)
	require.Eventually(t, func() bool { return f.Calls() == 2 }, waitTimeout, time.Millisecond)
	tk.tick(t)
	assert.Equal(t, "p3", h.update(t).StartedAt)
	assert.Equal(t, Polling, h.c.State())
	h.c.Close()
}

func TestSnapshotForAnotherExecutionIsIgnored(t *testing.T) {
	t.Parallel()
	f := newScriptedFetcher(
		ok(snap("other", types.ExecutionCompleted, "wrong")),
		ok(snap("x1", types.ExecutionRunning, "p2")),
	)
	h := newHarness(f)

	require.NoError(t, h.c.Start("x1", nil))
	tk := h.ticker(t)
	require.Eventually(t, func() bool { return f.Calls() == 1 }, waitTimeout, time.Millisecond)
	tk.tick(t)
	assert.Equal(t, "p2", h.update(t).StartedAt)
	h.c.Close()
}

func TestResetClearsSnapshot(t *testing.T) {
	t.Parallel()
	f := newScriptedFetcher(ok(snap("x1", types.ExecutionRunning, "p1")))
	h := newHarness(f)

	require.NoError(t, h.c.Start("x1", nil))
	h.ticker(t)
	h.update(t)
	require.NotNil(t, h.c.Snapshot())

	h.c.Reset()
	assert.Nil(t, h.c.Snapshot())
	assert.Equal(t, Idle, h.c.State())
	h.c.Close()
}

func TestAppliedSnapshotsAreRecorded(t *testing.T) {
	t.Parallel()
	store := snapshots.NewMemoryStore(4)
	cache := snapshots.NewLastValue()
	f := newScriptedFetcher(ok(snap("x1", types.ExecutionRunning, "p1")))
	h := newHarness(f, WithSnapshotStore(store), WithCache(cache))

	require.NoError(t, h.c.Start("x1", snap("x1", types.ExecutionPending, "initial")))
	h.ticker(t)
	h.update(t)

	entry, err := store.Load(context.Background(), "x1")
	require.NoError(t, err)
	assert.Equal(t, "p1", entry.Snapshot.StartedAt)
	assert.Equal(t, 2, entry.Meta.Polls)
	assert.Same(t, cache.Read(), h.c.Snapshot())
	h.c.Close()
}

func TestRealTickerPollsToCompletion(t *testing.T) {
	t.Parallel()
	f := newScriptedFetcher(
		ok(snap("x1", types.ExecutionRunning, "p1")),
		ok(snap("x1", types.ExecutionCompleted, "p2")),
	)
	c := New(f, WithInterval(5*time.Millisecond), WithTerminalThreshold(2))

	require.NoError(t, c.Start("x1", nil))
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, c.Wait(ctx))

	assert.Equal(t, Stopped, c.State())
	assert.GreaterOrEqual(t, c.Polls(), 3)
	assert.Equal(t, types.ExecutionCompleted, c.Snapshot().Status)
	c.Close()
}
