package client

import (
	"context"

	"github.com/avi3tal/flowscope/internal/types"
	"github.com/avi3tal/flowscope/internal/xjson"
)

// WorkflowClient is the remote workflow service as seen by this module.
// Implementations do not retry; callers decide what a failure means.
type WorkflowClient interface {
	// ListWorkflows returns the workflow catalogue.
	ListWorkflows(ctx context.Context) ([]types.WorkflowSummary, error)
	// GetWorkflow returns one workflow definition. A missing workflow yields
	// an error matching ErrNotFound.
	GetWorkflow(ctx context.Context, name string) (*types.Workflow, error)
	// CreateWorkflow stores a new workflow. The returned summary carries the
	// name as normalized by the service.
	CreateWorkflow(ctx context.Context, name string, def types.Definition) (*types.WorkflowSummary, error)
	// Execute starts a run of workflow with the given JSON input and returns
	// the initial snapshot.
	Execute(ctx context.Context, workflow string, input xjson.RawMessage) (*types.ExecutionSnapshot, error)
	// GetExecution returns the current snapshot of an execution.
	GetExecution(ctx context.Context, executionID string) (*types.ExecutionSnapshot, error)
	// Health reports the service status.
	Health(ctx context.Context) (*types.Health, error)
}

type listWorkflowsResponse struct {
	Workflows []types.WorkflowSummary `json:"workflows"`
}

type createWorkflowRequest struct {
	Name     string           `json:"name"`
	Workflow types.Definition `json:"workflow"`
}

type executeRequest struct {
	Workflow string           `json:"workflow"`
	Input    xjson.RawMessage `json:"input"`
}

type errorResponse struct {
	Detail xjson.RawMessage `json:"detail"`
}
