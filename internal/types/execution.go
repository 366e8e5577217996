package types

import (
	"bytes"

	"github.com/avi3tal/flowscope/internal/xjson"
)

// ExecutionStatus is the aggregate status of a workflow execution
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionPartial   ExecutionStatus = "partial" // finished with at least one failed node
	ExecutionFailed    ExecutionStatus = "failed"
)

// IsTerminal reports whether no further node changes are expected after s.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionCompleted, ExecutionPartial, ExecutionFailed:
		return true
	default:
		return false
	}
}

// NodeRunStatus represents the current state of a node within an execution
type NodeRunStatus string

const (
	NodePending NodeRunStatus = "pending"
	NodeRunning NodeRunStatus = "running"
	NodeSuccess NodeRunStatus = "success"
	NodeFailed  NodeRunStatus = "failed"

	// NodeNotStarted is never sent by the server. It marks workflow nodes
	// that have no entry in the current snapshot.
	NodeNotStarted NodeRunStatus = "not_started"
)

// NodeRunState is the server's view of one node within an execution.
type NodeRunState struct {
	Status   NodeRunStatus    `json:"status"`
	Attempts int              `json:"attempts"`
	Output   xjson.RawMessage `json:"output,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// HasOutput reports whether the node produced a non-null output.
func (n NodeRunState) HasOutput() bool {
	trimmed := bytes.TrimSpace(n.Output)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// ExecutionSnapshot is one fetched copy of an execution's state. Snapshots
// are replaced wholesale, never patched, and must be treated as read-only.
type ExecutionSnapshot struct {
	ExecutionID string                  `json:"execution_id"`
	WorkflowID  string                  `json:"workflow_id,omitempty"`
	Status      ExecutionStatus         `json:"status"`
	StartedAt   string                  `json:"started_at,omitempty"`
	CompletedAt string                  `json:"completed_at,omitempty"`
	Nodes       map[string]NodeRunState `json:"nodes,omitempty"`
}

// Node returns the run state recorded for name, if any. It is safe to call
// on a nil snapshot.
func (s *ExecutionSnapshot) Node(name string) (NodeRunState, bool) {
	if s == nil {
		return NodeRunState{}, false
	}
	st, ok := s.Nodes[name]
	return st, ok
}
