package graph

import (
	"github.com/avi3tal/flowscope/internal/types"
)

// Position is the center of a node box in layout coordinates. Each level is
// centered on x=0 and levels grow downwards from y=0.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// EdgeSegment is the drawable line for one edge. It starts on the bottom
// border of the source box and ends on the top border of the target box.
type EdgeSegment struct {
	From string  `json:"from"`
	To   string  `json:"to"`
	X1   float64 `json:"x1"`
	Y1   float64 `json:"y1"`
	X2   float64 `json:"x2"`
	Y2   float64 `json:"y2"`
}

// Bounds is the padded extent of all node boxes.
type Bounds struct {
	MinX   float64 `json:"min_x"`
	MaxX   float64 `json:"max_x"`
	MaxY   float64 `json:"max_y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// OffsetX is the horizontal shift that moves MinX to zero.
func (b Bounds) OffsetX() float64 {
	return -b.MinX
}

// Layout is the leveled, positioned form of a workflow graph.
type Layout struct {
	Levels     [][]string          `json:"levels"`
	Positions  map[string]Position `json:"positions"`
	Assignment map[string]int      `json:"-"`
	Edges      []EdgeSegment       `json:"edges"`
	Bounds     Bounds              `json:"bounds"`
	Geometry   Geometry            `json:"geometry"`

	// Unsettled lists nodes on or below a cycle, in node order. Their level
	// comes from the breadth-first pass only.
	Unsettled []string `json:"-"`
}

// Flatten returns the node names level by level.
func (l *Layout) Flatten() []string {
	var out []string
	for _, level := range l.Levels {
		out = append(out, level...)
	}
	return out
}

// Level returns the level of name, or -1 for an unknown node.
func (l *Layout) Level(name string) int {
	lvl, ok := l.Assignment[name]
	if !ok {
		return -1
	}
	return lvl
}

// Compute lays out the graph. It never fails: unknown edge endpoints,
// self-loops, duplicate edges and cycles are all tolerated, and an empty
// node set yields an empty layout.
func Compute(nodes types.NodeSet, edges []types.Edge, opts ...LayoutOption) *Layout {
	cfg := newLayoutConfig(opts...)
	names := nodes.Names()

	adj := buildAdjacency(nodes, edges)
	assignment := assignLevels(names, adj)
	unsettled := refineLevels(names, adj, assignment)
	levels := groupLevels(names, assignment)
	positions := place(levels, cfg.geometry)

	return &Layout{
		Levels:     levels,
		Positions:  positions,
		Assignment: assignment,
		Edges:      segments(edges, positions, cfg.geometry),
		Bounds:     bounds(positions, cfg.geometry, cfg.padding),
		Geometry:   cfg.geometry,
		Unsettled:  unsettled,
	}
}

type adjacency struct {
	children map[string][]string
	indegree map[string]int
}

// buildAdjacency keeps only edges whose endpoints are both known nodes.
// Duplicate edges produce duplicate entries.
func buildAdjacency(nodes types.NodeSet, edges []types.Edge) adjacency {
	adj := adjacency{
		children: make(map[string][]string, nodes.Len()),
		indegree: make(map[string]int, nodes.Len()),
	}
	for _, e := range edges {
		if !nodes.Has(e.From) || !nodes.Has(e.To) {
			continue
		}
		adj.children[e.From] = append(adj.children[e.From], e.To)
		adj.indegree[e.To]++
	}
	return adj
}

type queueItem struct {
	node  string
	level int
}

// assignLevels runs a breadth-first pass from every root at once. A node
// is expanded the first time it is dequeued only; later visits raise its
// level to the deepest one seen. Every node is expanded at most once, so the
// queue holds at most roots+edges items and cycles terminate.
func assignLevels(names []string, adj adjacency) map[string]int {
	levels := make(map[string]int, len(names))
	visited := make(map[string]bool, len(names))

	queue := make([]queueItem, 0, len(names))
	for _, name := range names {
		if adj.indegree[name] == 0 {
			queue = append(queue, queueItem{node: name, level: 0})
		}
	}

	for head := 0; head < len(queue); head++ {
		item := queue[head]
		if visited[item.node] {
			if item.level > levels[item.node] {
				levels[item.node] = item.level
			}
			continue
		}
		visited[item.node] = true
		levels[item.node] = item.level
		for _, child := range adj.children[item.node] {
			queue = append(queue, queueItem{node: child, level: item.level + 1})
		}
	}

	// unreachable nodes: isolated ones are roots already, so these only
	// hang off a cycle with no entry
	for _, name := range names {
		if _, ok := levels[name]; !ok {
			levels[name] = 0
		}
	}
	return levels
}

// refineLevels walks the acyclic part of the graph in topological order and
// pushes each node below all of its parents. A level raised during the
// breadth-first pass after the node was expanded leaves its children too
// shallow; this pass settles them. It returns the nodes it could not reach
// (members of a cycle and everything downstream of one).
func refineLevels(names []string, adj adjacency, levels map[string]int) []string {
	remaining := make(map[string]int, len(adj.indegree))
	for name, deg := range adj.indegree {
		remaining[name] = deg
	}

	ready := make([]string, 0, len(names))
	for _, name := range names {
		if remaining[name] == 0 {
			ready = append(ready, name)
		}
	}

	settled := make(map[string]bool, len(names))
	for head := 0; head < len(ready); head++ {
		node := ready[head]
		settled[node] = true
		for _, child := range adj.children[node] {
			if levels[node]+1 > levels[child] {
				levels[child] = levels[node] + 1
			}
			remaining[child]--
			if remaining[child] == 0 {
				ready = append(ready, child)
			}
		}
	}

	var unsettled []string
	for _, name := range names {
		if !settled[name] {
			unsettled = append(unsettled, name)
		}
	}
	return unsettled
}

// groupLevels returns one group per level index from 0 to the deepest
// level. Within a group nodes keep node-set order.
func groupLevels(names []string, levels map[string]int) [][]string {
	if len(names) == 0 {
		return [][]string{}
	}

	maxLevel := 0
	for _, name := range names {
		if levels[name] > maxLevel {
			maxLevel = levels[name]
		}
	}

	groups := make([][]string, maxLevel+1)
	for i := range groups {
		groups[i] = []string{}
	}
	for _, name := range names {
		lvl := levels[name]
		groups[lvl] = append(groups[lvl], name)
	}
	return groups
}

func place(levels [][]string, g Geometry) map[string]Position {
	positions := make(map[string]Position)
	for levelIdx, group := range levels {
		n := float64(len(group))
		totalWidth := n*g.NodeWidth + (n-1)*g.HGap
		startX := -totalWidth / 2
		for idx, name := range group {
			positions[name] = Position{
				X: startX + float64(idx)*(g.NodeWidth+g.HGap) + g.NodeWidth/2,
				Y: float64(levelIdx)*(g.NodeHeight+g.VGap) + g.NodeHeight/2,
			}
		}
	}
	return positions
}

// segments emits one segment per input edge, in input order. Edges with an
// endpoint that has no position are skipped.
func segments(edges []types.Edge, positions map[string]Position, g Geometry) []EdgeSegment {
	out := make([]EdgeSegment, 0, len(edges))
	for _, e := range edges {
		from, okFrom := positions[e.From]
		to, okTo := positions[e.To]
		if !okFrom || !okTo {
			continue
		}
		out = append(out, EdgeSegment{
			From: e.From,
			To:   e.To,
			X1:   from.X,
			Y1:   from.Y + g.NodeHeight/2,
			X2:   to.X,
			Y2:   to.Y - g.NodeHeight/2,
		})
	}
	return out
}

func bounds(positions map[string]Position, g Geometry, padding float64) Bounds {
	if len(positions) == 0 {
		return Bounds{}
	}

	first := true
	var minX, maxX, maxY float64
	for _, p := range positions {
		if first {
			minX, maxX, maxY = p.X, p.X, p.Y
			first = false
			continue
		}
		minX = min(minX, p.X)
		maxX = max(maxX, p.X)
		maxY = max(maxY, p.Y)
	}

	b := Bounds{
		MinX: minX - g.NodeWidth/2 - padding,
		MaxX: maxX + g.NodeWidth/2 + padding,
		MaxY: maxY + g.NodeHeight/2 + padding,
	}
	b.Width = b.MaxX - b.MinX
	b.Height = b.MaxY + padding
	return b
}
