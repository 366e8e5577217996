package types

import (
	"bytes"
	"fmt"

	"github.com/avi3tal/flowscope/internal/xjson"
)

// NodeType identifies what a workflow node does on the server.
type NodeType string

const (
	NodeTrigger    NodeType = "trigger"
	NodeDataFetch  NodeType = "data_fetch"
	NodeAPIRequest NodeType = "api_request"
	NodeSendEmail  NodeType = "send_email"
)

// Node is a single step of a workflow. Nodes are immutable once loaded.
type Node struct {
	Type   NodeType       `json:"type"`
	Config map[string]any `json:"config,omitempty"`
}

// Edge represents a directed connection between nodes
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// NodeSet maps node names to nodes and remembers the order in which the
// names were added. When decoded from JSON the order is the document order
// of the object members. The zero value is an empty set ready to use.
type NodeSet struct {
	names []string
	nodes map[string]Node
}

// NewNodeSet builds a set from name/node pairs in the given order.
func NewNodeSet(pairs ...NamedNode) NodeSet {
	var ns NodeSet
	for _, p := range pairs {
		ns.Add(p.Name, p.Node)
	}
	return ns
}

// NamedNode pairs a node with its name.
type NamedNode struct {
	Name string
	Node Node
}

// Add inserts or replaces a node. A replaced node keeps its original position.
func (ns *NodeSet) Add(name string, node Node) {
	if ns.nodes == nil {
		ns.nodes = make(map[string]Node)
	}
	if _, exists := ns.nodes[name]; !exists {
		ns.names = append(ns.names, name)
	}
	ns.nodes[name] = node
}

// Get returns the node stored under name.
func (ns NodeSet) Get(name string) (Node, bool) {
	n, ok := ns.nodes[name]
	return n, ok
}

// Has reports whether name is a node of the set.
func (ns NodeSet) Has(name string) bool {
	_, ok := ns.nodes[name]
	return ok
}

// Len returns the number of nodes.
func (ns NodeSet) Len() int {
	return len(ns.names)
}

// Names returns the node names in insertion order.
func (ns NodeSet) Names() []string {
	out := make([]string, len(ns.names))
	copy(out, ns.names)
	return out
}

func (ns NodeSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range ns.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := xjson.Marshal(name)
		if err != nil {
			return nil, err
		}
		val, err := xjson.Marshal(ns.nodes[name])
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (ns *NodeSet) UnmarshalJSON(data []byte) error {
	keys, err := xjson.ObjectKeys(data)
	if err != nil {
		return fmt.Errorf("nodes: %w", err)
	}

	var byName map[string]Node
	if err := xjson.Unmarshal(data, &byName); err != nil {
		return fmt.Errorf("nodes: %w", err)
	}

	*ns = NodeSet{}
	for _, name := range keys {
		ns.Add(name, byName[name])
	}
	return nil
}

// Workflow is a named graph of nodes and edges as served by the remote service.
type Workflow struct {
	WorkflowID string  `json:"workflow_id"`
	Name       string  `json:"name"`
	Nodes      NodeSet `json:"nodes"`
	Edges      []Edge  `json:"edges"`
}

// Definition is the body of a workflow creation request.
type Definition struct {
	WorkflowID string  `json:"workflow_id,omitempty"`
	Nodes      NodeSet `json:"nodes"`
	Edges      []Edge  `json:"edges"`
}

func (d Definition) MarshalJSON() ([]byte, error) {
	type plain Definition
	out := plain(d)
	if out.Edges == nil {
		out.Edges = []Edge{}
	}
	return xjson.Marshal(out)
}

// WorkflowSummary is one entry of the workflow listing.
type WorkflowSummary struct {
	Name       string `json:"name"`
	WorkflowID string `json:"workflow_id,omitempty"`
	NodeCount  int    `json:"node_count"`
	EdgeCount  int    `json:"edge_count,omitempty"`
}

// Health reports the remote service status.
type Health struct {
	Status           string `json:"status"`
	ActiveExecutions int    `json:"active_executions"`
}
