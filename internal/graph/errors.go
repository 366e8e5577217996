package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownEndpoint is reported for an edge naming a node the workflow does not define
	ErrUnknownEndpoint = errors.New("edge references unknown node")

	// ErrSelfLoop is reported for an edge from a node to itself
	ErrSelfLoop = errors.New("self-referential edge")

	// ErrDuplicateEdge is reported for an edge that appears more than once
	ErrDuplicateEdge = errors.New("duplicate edge")

	// ErrCycle is reported for nodes that sit on or below a cycle
	ErrCycle = errors.New("node is part of or downstream of a cycle")

	// ErrNoRoot is reported when a non-empty graph has no node without parents
	ErrNoRoot = errors.New("graph has no root node")
)

// ValidationError describes one structural oddity found in a workflow graph.
// None of them stop the layout; they are surfaced as warnings.
type ValidationError struct {
	// Op is the check that produced the error
	Op string
	// Node is the node involved (if any)
	Node string
	// Err is the underlying sentinel
	Err error
}

func (e *ValidationError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("%s: node '%s': %v", e.Op, e.Node, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new ValidationError
func NewValidationError(op string, node string, err error) error {
	return &ValidationError{
		Op:   op,
		Node: node,
		Err:  err,
	}
}
