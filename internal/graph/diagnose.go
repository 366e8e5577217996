package graph

import (
	"fmt"

	"github.com/avi3tal/flowscope/internal/types"
)

// Diagnose lists the structural oddities of a workflow graph in a stable
// order: edge problems in edge order, then graph-level problems, then cyclic
// nodes in node order. An empty result means the graph is a clean DAG.
func Diagnose(nodes types.NodeSet, edges []types.Edge) []error {
	var issues []error

	seen := make(map[types.Edge]bool, len(edges))
	for _, e := range edges {
		label := fmt.Sprintf("%s->%s", e.From, e.To)
		switch {
		case !nodes.Has(e.From):
			issues = append(issues, NewValidationError("edge "+label, e.From, ErrUnknownEndpoint))
		case !nodes.Has(e.To):
			issues = append(issues, NewValidationError("edge "+label, e.To, ErrUnknownEndpoint))
		case e.From == e.To:
			issues = append(issues, NewValidationError("edge "+label, e.From, ErrSelfLoop))
		case seen[e]:
			issues = append(issues, NewValidationError("edge "+label, "", ErrDuplicateEdge))
		}
		seen[e] = true
	}

	if nodes.Len() == 0 {
		return issues
	}

	adj := buildAdjacency(nodes, edges)
	names := nodes.Names()
	hasRoot := false
	for _, name := range names {
		if adj.indegree[name] == 0 {
			hasRoot = true
			break
		}
	}
	if !hasRoot {
		issues = append(issues, NewValidationError("roots", "", ErrNoRoot))
	}

	levels := assignLevels(names, adj)
	for _, name := range refineLevels(names, adj, levels) {
		issues = append(issues, NewValidationError("levels", name, ErrCycle))
	}
	return issues
}
