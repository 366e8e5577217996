package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/avi3tal/flowscope/internal/snapshots"
	"github.com/avi3tal/flowscope/internal/types"
)

// State of a Controller
type State int

const (
	Idle State = iota
	Polling
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Polling:
		return "polling"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// StopReason says why an observation ended.
type StopReason string

const (
	ReasonTerminal  StopReason = "terminal"
	ReasonCancelled StopReason = "cancelled"
	ReasonReplaced  StopReason = "replaced"
)

// Fetcher retrieves the current snapshot of an execution.
type Fetcher interface {
	GetExecution(ctx context.Context, executionID string) (*types.ExecutionSnapshot, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, executionID string) (*types.ExecutionSnapshot, error)

func (f FetcherFunc) GetExecution(ctx context.Context, executionID string) (*types.ExecutionSnapshot, error) {
	return f(ctx, executionID)
}

// ErrEmptyExecutionID is returned by Start when no execution id is given.
var ErrEmptyExecutionID = errors.New("execution id is required")

// observation is one Idle -> Polling -> (Stopped|Idle) run for a single
// execution id. Fetch results are applied only while the controller still
// holds the same observation token.
type observation struct {
	token       string
	executionID string
	ctx         context.Context
	cancel      context.CancelFunc
	ticker      Ticker
	loopDone    chan struct{}
	done        chan struct{}
	finished    bool

	issued   uint64 // sequence number of the last fetch issued
	applied  uint64 // sequence number of the last fetch applied
	terminal int    // applied snapshots with a terminal status
}

// Controller observes one remote execution at a time by fetching its
// snapshot immediately and then on every tick of a fixed interval, until the
// execution has been seen terminal TerminalThreshold times or the
// observation is cancelled.
//
// Ticks do not wait for earlier fetches, so fetches may overlap. Each result
// is applied only if the controller is still polling under the token it was
// issued with and no later-issued fetch has been applied yet.
type Controller struct {
	fetcher   Fetcher
	interval  time.Duration
	threshold int
	logger    *zap.Logger
	newTicker TickerFactory
	cache     *snapshots.LastValue
	store     snapshots.Store
	onUpdate  func(*types.ExecutionSnapshot)
	onStop    func(executionID string, reason StopReason)

	mu       sync.Mutex
	state    State
	obs      *observation
	inflight sync.WaitGroup
}

// New creates an idle Controller.
func New(fetcher Fetcher, opts ...Option) *Controller {
	c := &Controller{
		fetcher:   fetcher,
		interval:  DefaultInterval,
		threshold: DefaultTerminalThreshold,
		logger:    zap.NewNop(),
		newTicker: NewTimeTicker,
		cache:     snapshots.NewLastValue(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start begins observing executionID, first tearing down any observation in
// progress. initial, when not nil, becomes the cached snapshot right away;
// it does not count towards the terminal threshold.
func (c *Controller) Start(executionID string, initial *types.ExecutionSnapshot) error {
	if executionID == "" {
		return ErrEmptyExecutionID
	}

	c.mu.Lock()
	prev, prevState := c.obs, c.state
	if prev != nil {
		c.finishLocked(prev, Idle)
	}

	ctx, cancel := context.WithCancel(context.Background())
	obs := &observation{
		token:       uuid.New().String(),
		executionID: executionID,
		ctx:         ctx,
		cancel:      cancel,
		ticker:      c.newTicker(c.interval),
		loopDone:    make(chan struct{}),
		done:        make(chan struct{}),
	}
	c.obs = obs
	c.state = Polling
	if initial != nil {
		c.cache.Write(initial)
		c.save(initial)
	}
	c.issueLocked(obs)
	go c.loop(obs)
	c.mu.Unlock()

	if prev != nil {
		<-prev.loopDone
		if prevState == Polling {
			c.notifyStop(prev.executionID, ReasonReplaced)
		}
	}

	c.logger.Info("polling started",
		zap.String("execution_id", executionID),
		zap.String("token", obs.token),
		zap.Duration("interval", c.interval),
		zap.Int("terminal_threshold", c.threshold),
	)
	return nil
}

// Cancel stops the current observation and returns the controller to Idle.
// The cached snapshot keeps its value; responses still in flight are
// discarded when they arrive. Cancel is idempotent and returns only after
// the tick loop has exited.
func (c *Controller) Cancel() {
	c.mu.Lock()
	obs, prevState := c.obs, c.state
	if obs == nil {
		c.state = Idle
		c.mu.Unlock()
		return
	}
	c.finishLocked(obs, Idle)
	c.mu.Unlock()

	<-obs.loopDone
	if prevState == Polling {
		c.logger.Info("polling cancelled", zap.String("execution_id", obs.executionID))
		c.notifyStop(obs.executionID, ReasonCancelled)
	}
}

// Reset cancels the observation and clears the cached snapshot.
func (c *Controller) Reset() {
	c.Cancel()
	c.cache.Clear()
}

// Close cancels the observation and waits for fetches still in flight to
// return. Their results are discarded. Hooks already running are not
// waited for, so Close may be called from WithOnUpdate or WithOnStop.
func (c *Controller) Close() {
	c.Cancel()
	c.inflight.Wait()
}

// Wait blocks until the current observation ends or ctx is done. It returns
// immediately when nothing is being observed.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	obs := c.obs
	c.mu.Unlock()
	if obs == nil {
		return nil
	}

	select {
	case <-obs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ExecutionID returns the observed execution, or "" when Idle.
func (c *Controller) ExecutionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.obs == nil {
		return ""
	}
	return c.obs.executionID
}

// Polls returns how many fetches the current observation has issued.
func (c *Controller) Polls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.obs == nil {
		return 0
	}
	return int(c.obs.issued)
}

// Snapshot returns the cached snapshot. It must not be modified.
func (c *Controller) Snapshot() *types.ExecutionSnapshot {
	return c.cache.Read()
}

func (c *Controller) loop(obs *observation) {
	defer close(obs.loopDone)
	for {
		select {
		case <-obs.ctx.Done():
			return
		case <-obs.ticker.C():
			c.tick(obs)
		}
	}
}

func (c *Controller) tick(obs *observation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.obs != obs || c.state != Polling {
		return
	}
	c.issueLocked(obs)
}

func (c *Controller) issueLocked(obs *observation) {
	obs.issued++
	seq := obs.issued
	c.inflight.Add(1)
	go c.fetch(obs, obs.token, seq)
}

func (c *Controller) fetch(obs *observation, token string, seq uint64) {
	// released before the hooks run so a hook may call Close
	release := sync.OnceFunc(c.inflight.Done)
	defer release()

	logger := c.logger.With(
		zap.String("execution_id", obs.executionID),
		zap.Uint64("seq", seq),
	)
	logger.Debug("fetching execution status")

	snap, err := c.fetcher.GetExecution(obs.ctx, obs.executionID)
	if err == nil && snap == nil {
		err = errors.New("empty execution snapshot")
	}

	c.mu.Lock()
	if c.obs == nil || c.obs.token != token || c.state != Polling {
		c.mu.Unlock()
		logger.Debug("discarding response for inactive observation")
		return
	}
	if err != nil {
		c.mu.Unlock()
		logger.Warn("execution status fetch failed", zap.Error(err))
		return
	}
	if snap.ExecutionID != "" && snap.ExecutionID != obs.executionID {
		c.mu.Unlock()
		logger.Warn("discarding snapshot for another execution", zap.String("got", snap.ExecutionID))
		return
	}
	if seq <= obs.applied {
		c.mu.Unlock()
		logger.Debug("discarding out-of-order response", zap.Uint64("applied", obs.applied))
		return
	}

	obs.applied = seq
	c.cache.Write(snap)
	c.save(snap)

	stopped := false
	polls := obs.issued
	if snap.Status.IsTerminal() {
		obs.terminal++
		if obs.terminal >= c.threshold {
			c.finishLocked(obs, Stopped)
			stopped = true
		}
	}
	c.mu.Unlock()
	release()

	logger.Debug("execution status applied", zap.String("status", string(snap.Status)))
	if c.onUpdate != nil {
		c.onUpdate(snap)
	}
	if stopped {
		c.logger.Info("polling stopped",
			zap.String("execution_id", obs.executionID),
			zap.String("status", string(snap.Status)),
			zap.Uint64("polls", polls),
		)
		c.notifyStop(obs.executionID, ReasonTerminal)
	}
}

// finishLocked ends obs: no more ticks, in-flight requests are cancelled and
// waiters are released. Moving to Idle also forgets the execution id.
func (c *Controller) finishLocked(obs *observation, next State) {
	c.state = next
	if next == Idle {
		c.obs = nil
	}
	if obs.finished {
		return
	}
	obs.finished = true
	obs.ticker.Stop()
	obs.cancel()
	close(obs.done)
}

func (c *Controller) save(snap *types.ExecutionSnapshot) {
	if c.store == nil || snap.ExecutionID == "" {
		return
	}
	if err := c.store.Save(context.Background(), snap); err != nil {
		c.logger.Warn("failed to record snapshot", zap.Error(err))
	}
}

func (c *Controller) notifyStop(executionID string, reason StopReason) {
	if c.onStop != nil {
		c.onStop(executionID, reason)
	}
}
