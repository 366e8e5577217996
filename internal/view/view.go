package view

import (
	"fmt"

	"github.com/avi3tal/flowscope/internal/graph"
	"github.com/avi3tal/flowscope/internal/types"
	"github.com/avi3tal/flowscope/internal/xjson"
)

// NodeView is everything shown for one workflow node: its definition, where
// the layout put it and how it is doing in the current execution.
type NodeView struct {
	Name     string
	Type     types.NodeType
	Config   map[string]any
	Level    int
	Position graph.Position

	Status   types.NodeRunStatus
	Attempts int
	Output   xjson.RawMessage
	Error    string

	// Started is false when the snapshot has no entry for the node.
	Started bool
}

// Label is the status text with an attempt count when the node was retried,
// e.g. "success (2x)".
func (n NodeView) Label() string {
	if n.Attempts > 1 {
		return fmt.Sprintf("%s (%dx)", n.Status, n.Attempts)
	}
	return string(n.Status)
}

// Summary counts nodes per status.
type Summary struct {
	Total      int
	NotStarted int
	Pending    int
	Running    int
	Success    int
	Failed     int
	// Other counts statuses the server sent that this client does not know.
	Other int
}

// ExecutionView joins a workflow, its layout and an execution snapshot by
// node name. It is rebuilt from scratch whenever any input changes.
type ExecutionView struct {
	WorkflowName string
	ExecutionID  string
	Status       types.ExecutionStatus
	StartedAt    string
	CompletedAt  string

	order []string
	nodes map[string]NodeView
}

// Build merges the three inputs. layout may be nil, in which case it is
// computed from wf with default geometry. snap may be nil; every node is
// then not started. Snapshot entries naming nodes that are not part of wf
// are ignored.
func Build(wf *types.Workflow, layout *graph.Layout, snap *types.ExecutionSnapshot) *ExecutionView {
	v := &ExecutionView{nodes: make(map[string]NodeView)}
	if wf == nil {
		return v
	}
	if layout == nil {
		layout = graph.Compute(wf.Nodes, wf.Edges)
	}

	v.WorkflowName = wf.Name
	if snap != nil {
		v.ExecutionID = snap.ExecutionID
		v.Status = snap.Status
		v.StartedAt = snap.StartedAt
		v.CompletedAt = snap.CompletedAt
	}

	for _, name := range layout.Flatten() {
		node, ok := wf.Nodes.Get(name)
		if !ok {
			continue
		}
		nv := NodeView{
			Name:     name,
			Type:     node.Type,
			Config:   node.Config,
			Level:    layout.Level(name),
			Position: layout.Positions[name],
			Status:   types.NodeNotStarted,
		}
		if st, ok := snap.Node(name); ok {
			nv.Status = st.Status
			nv.Attempts = st.Attempts
			nv.Error = st.Error
			if st.HasOutput() {
				nv.Output = st.Output
			}
			nv.Started = true
		}
		v.order = append(v.order, name)
		v.nodes[name] = nv
	}
	return v
}

// Node returns the view of one node.
func (v *ExecutionView) Node(name string) (NodeView, bool) {
	nv, ok := v.nodes[name]
	return nv, ok
}

// Timeline lists every node level by level.
func (v *ExecutionView) Timeline() []NodeView {
	out := make([]NodeView, 0, len(v.order))
	for _, name := range v.order {
		out = append(out, v.nodes[name])
	}
	return out
}

// Results lists the nodes the execution has reached, level by level.
func (v *ExecutionView) Results() []NodeView {
	var out []NodeView
	for _, name := range v.order {
		if nv := v.nodes[name]; nv.Started {
			out = append(out, nv)
		}
	}
	return out
}

// Annotate returns the node label for use with graph.Render.
func (v *ExecutionView) Annotate(name string) string {
	nv, ok := v.nodes[name]
	if !ok || !nv.Started {
		return ""
	}
	return nv.Label()
}

func (v *ExecutionView) Summary() Summary {
	s := Summary{Total: len(v.order)}
	for _, name := range v.order {
		switch v.nodes[name].Status {
		case types.NodeNotStarted:
			s.NotStarted++
		case types.NodePending:
			s.Pending++
		case types.NodeRunning:
			s.Running++
		case types.NodeSuccess:
			s.Success++
		case types.NodeFailed:
			s.Failed++
		default:
			s.Other++
		}
	}
	return s
}
