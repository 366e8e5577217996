package graph

import (
	"fmt"
	"io"
	"strings"
)

// Annotator returns extra text shown next to a node name, or "" for none.
type Annotator func(name string) string

// Render writes a plain-text picture of the layout: the levels top to
// bottom, then every drawable edge.
func Render(w io.Writer, l *Layout, annotate Annotator) error {
	var b strings.Builder

	b.WriteString("Graph Layout:\n")
	if l == nil || len(l.Levels) == 0 {
		b.WriteString("  (empty)\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	b.WriteString("\nLevels:\n")
	for idx, group := range l.Levels {
		labels := make([]string, 0, len(group))
		for _, name := range group {
			labels = append(labels, label(name, annotate))
		}
		fmt.Fprintf(&b, "  %d: %s\n", idx, strings.Join(labels, ", "))
	}

	if len(l.Edges) > 0 {
		b.WriteString("\nEdges:\n")
		for _, e := range l.Edges {
			fmt.Fprintf(&b, "  %s --> %s\n", e.From, e.To)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func label(name string, annotate Annotator) string {
	if annotate == nil {
		return name
	}
	if extra := annotate(name); extra != "" {
		return fmt.Sprintf("%s [%s]", name, extra)
	}
	return name
}
