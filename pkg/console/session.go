package console

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/avi3tal/flowscope/internal/client"
	"github.com/avi3tal/flowscope/internal/graph"
	"github.com/avi3tal/flowscope/internal/poller"
	"github.com/avi3tal/flowscope/internal/snapshots"
	"github.com/avi3tal/flowscope/internal/types"
	"github.com/avi3tal/flowscope/internal/view"
)

// Callback is notified as an observed execution progresses. Callbacks run
// on polling goroutines; they may call Session.Close.
type Callback interface {
	// OnUpdate runs after every applied snapshot with the merged view.
	OnUpdate(v *view.ExecutionView)
	// OnComplete runs once polling stopped because the execution finished.
	OnComplete(v *view.ExecutionView)
}

// Session is the state of one user working against the workflow service:
// the workflow catalogue, the selected workflow and its layout, and at most
// one execution being observed.
type Session struct {
	client     client.WorkflowClient
	logger     *zap.Logger
	callback   Callback
	store      snapshots.Store
	layoutOpts []graph.LayoutOption
	pollerOpts []poller.Option

	cache  *snapshots.LastValue
	poller *poller.Controller

	// runMu serializes Run so two submissions cannot both pass the
	// in-progress check.
	runMu sync.Mutex

	mu          sync.RWMutex
	workflows   []types.WorkflowSummary
	selected    string
	selectGen   uint64
	workflow    *types.Workflow
	layout      *graph.Layout
	diagnostics []error
}

// New creates a session on top of c. Nothing is fetched until Refresh or
// Select is called.
func New(c client.WorkflowClient, opts ...Option) *Session {
	s := &Session{
		client: c,
		logger: zap.NewNop(),
		cache:  snapshots.NewLastValue(),
	}
	for _, opt := range opts {
		opt(s)
	}

	pollerOpts := []poller.Option{
		poller.WithLogger(s.logger.Named("poller")),
		poller.WithCache(s.cache),
		poller.WithOnUpdate(s.onSnapshot),
		poller.WithOnStop(s.onStop),
	}
	if s.store != nil {
		pollerOpts = append(pollerOpts, poller.WithSnapshotStore(s.store))
	}
	s.poller = poller.New(c, append(pollerOpts, s.pollerOpts...)...)
	return s
}

// Refresh reloads the workflow catalogue. On failure the previous list is
// kept and the error returned.
func (s *Session) Refresh(ctx context.Context) error {
	list, err := s.client.ListWorkflows(ctx)
	if err != nil {
		s.logger.Warn("failed to fetch workflows", zap.Error(err))
		return err
	}
	s.mu.Lock()
	s.workflows = list
	s.mu.Unlock()
	return nil
}

// Select makes name the current workflow. Any observed execution is
// cancelled and forgotten first. When the fetch fails the session is left
// with no workflow.
func (s *Session) Select(ctx context.Context, name string) error {
	// The generation moves before the reset so a Run racing with this call
	// either starts polling before the reset or sees the new generation.
	s.mu.Lock()
	s.selectGen++
	gen := s.selectGen
	s.selected = name
	s.workflow = nil
	s.layout = nil
	s.diagnostics = nil
	s.mu.Unlock()

	s.poller.Reset()

	wf, err := s.client.GetWorkflow(ctx, name)
	if err != nil {
		s.logger.Warn("failed to fetch workflow", zap.String("workflow", name), zap.Error(err))
		return err
	}

	layout := graph.Compute(wf.Nodes, wf.Edges, s.layoutOpts...)
	issues := graph.Diagnose(wf.Nodes, wf.Edges)
	for _, issue := range issues {
		s.logger.Debug("workflow graph issue", zap.String("workflow", name), zap.Error(issue))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.selectGen {
		// a later Select owns the session now
		return nil
	}
	s.workflow = wf
	s.layout = layout
	s.diagnostics = issues
	return nil
}

// Run submits the selected workflow with the given input text and starts
// polling the new execution. It returns the initial snapshot. When another
// workflow is selected while the request is out, the execution is left
// unobserved and ErrSelectionChanged is returned with its snapshot.
func (s *Session) Run(ctx context.Context, inputText string) (*types.ExecutionSnapshot, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.mu.RLock()
	name, wf, gen := s.selected, s.workflow, s.selectGen
	s.mu.RUnlock()
	if wf == nil {
		return nil, ErrNoWorkflowSelected
	}
	if s.poller.State() == poller.Polling {
		return nil, ErrRunInProgress
	}

	input, err := ParseInput(inputText)
	if err != nil {
		return nil, err
	}

	snap, err := s.client.Execute(ctx, name, input)
	if err != nil {
		s.logger.Warn("failed to start execution", zap.String("workflow", name), zap.Error(err))
		return nil, err
	}

	s.mu.Lock()
	if gen != s.selectGen {
		s.mu.Unlock()
		s.logger.Info("workflow changed during submission, not polling execution",
			zap.String("workflow", name),
			zap.String("execution_id", snap.ExecutionID),
		)
		return snap, ErrSelectionChanged
	}
	err = s.poller.Start(snap.ExecutionID, snap)
	s.mu.Unlock()
	if err != nil {
		return nil, errors.Wrap(err, "start polling")
	}
	s.logger.Info("execution started",
		zap.String("workflow", name),
		zap.String("execution_id", snap.ExecutionID),
	)
	return snap, nil
}

// Create validates and stores a new workflow, then refreshes the catalogue
// and selects the workflow under the name the service gave it. A failed
// refresh leaves the previous catalogue in place and does not fail Create.
func (s *Session) Create(ctx context.Context, name, definitionText string) (*types.WorkflowSummary, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, inputError("name", "required")
	}
	def, err := ParseDefinition(definitionText)
	if err != nil {
		return nil, err
	}

	summary, err := s.client.CreateWorkflow(ctx, name, def)
	if err != nil {
		s.logger.Warn("failed to create workflow", zap.String("workflow", name), zap.String("detail", client.DetailOf(err)))
		return nil, err
	}

	created := summary.Name
	if created == "" {
		created = name
	}
	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn("catalogue not refreshed after create", zap.String("workflow", created), zap.Error(err))
	}
	if err := s.Select(ctx, created); err != nil {
		return summary, err
	}
	return summary, nil
}

// Health asks the service for its status.
func (s *Session) Health(ctx context.Context) (*types.Health, error) {
	return s.client.Health(ctx)
}

// Cancel stops polling and keeps the last snapshot.
func (s *Session) Cancel() {
	s.poller.Cancel()
}

// Wait blocks until the observed execution stops being polled.
func (s *Session) Wait(ctx context.Context) error {
	return s.poller.Wait(ctx)
}

// Close stops polling and waits for outstanding requests to finish.
func (s *Session) Close() {
	s.poller.Close()
}

// Workflows returns the last fetched catalogue.
func (s *Session) Workflows() []types.WorkflowSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.WorkflowSummary, len(s.workflows))
	copy(out, s.workflows)
	return out
}

func (s *Session) Selected() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

func (s *Session) Workflow() *types.Workflow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.workflow
}

func (s *Session) Layout() *graph.Layout {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.layout
}

// Diagnostics lists the oddities found in the selected workflow's graph.
func (s *Session) Diagnostics() []error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]error(nil), s.diagnostics...)
}

// Snapshot returns the latest execution snapshot, if any.
func (s *Session) Snapshot() *types.ExecutionSnapshot {
	return s.cache.Read()
}

// Polling reports whether an execution is being observed.
func (s *Session) Polling() bool {
	return s.poller.State() == poller.Polling
}

func (s *Session) PollState() poller.State {
	return s.poller.State()
}

// View merges the selected workflow, its layout and the latest snapshot.
func (s *Session) View() *view.ExecutionView {
	s.mu.RLock()
	wf, layout := s.workflow, s.layout
	s.mu.RUnlock()
	return view.Build(wf, layout, s.cache.Read())
}

func (s *Session) onSnapshot(_ *types.ExecutionSnapshot) {
	if s.callback != nil {
		s.callback.OnUpdate(s.View())
	}
}

func (s *Session) onStop(executionID string, reason poller.StopReason) {
	s.logger.Debug("polling ended", zap.String("execution_id", executionID), zap.String("reason", string(reason)))
	if reason == poller.ReasonTerminal && s.callback != nil {
		s.callback.OnComplete(s.View())
	}
}
