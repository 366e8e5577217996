package view

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/avi3tal/flowscope/internal/xjson"
)

// Render writes a plain-text report of the execution: a header, one line per
// node in level order and the output or error of every node reached so far.
func Render(w io.Writer, v *ExecutionView) error {
	var b strings.Builder

	fmt.Fprintf(&b, "Workflow: %s\n", v.WorkflowName)
	if v.ExecutionID != "" {
		fmt.Fprintf(&b, "Execution: %s (%s)\n", v.ExecutionID, v.Status)
	}

	s := v.Summary()
	fmt.Fprintf(&b, "Nodes: %d total, %d success, %d failed, %d running, %d pending, %d not started\n",
		s.Total, s.Success, s.Failed, s.Running, s.Pending, s.NotStarted)

	b.WriteString("\nTimeline:\n")
	for _, nv := range v.Timeline() {
		fmt.Fprintf(&b, "  [%d] %-20s %-12s %s\n", nv.Level, nv.Name, nv.Type, nv.Label())
	}

	results := v.Results()
	if len(results) > 0 {
		b.WriteString("\nResults:\n")
		for _, nv := range results {
			fmt.Fprintf(&b, "  %s: %s\n", nv.Name, nv.Status)
			if len(nv.Output) > 0 {
				b.WriteString(indent(prettyJSON(nv.Output), "    "))
			}
			if nv.Error != "" {
				fmt.Fprintf(&b, "    error: %s\n", nv.Error)
			}
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func prettyJSON(raw xjson.RawMessage) string {
	out, err := xjson.Indent(raw, "", "  ")
	if err != nil {
		return string(bytes.TrimSpace(raw))
	}
	return string(out)
}

func indent(text, prefix string) string {
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		b.WriteString(prefix)
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
