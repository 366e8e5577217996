package console

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/avi3tal/flowscope/internal/types"
	"github.com/avi3tal/flowscope/internal/xjson"
)

var (
	// ErrMalformedInput is matched by every *InputError.
	ErrMalformedInput     = errors.New("malformed input")
	ErrNoWorkflowSelected = errors.New("no workflow selected")
	ErrRunInProgress      = errors.New("an execution is already being polled")
	ErrSelectionChanged   = errors.New("workflow selection changed before polling started")
)

// InputError rejects user-entered text before anything is sent to the
// service.
type InputError struct {
	Field string
	Err   error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *InputError) Unwrap() []error {
	return []error{ErrMalformedInput, e.Err}
}

func inputError(field string, format string, args ...any) error {
	return &InputError{Field: field, Err: fmt.Errorf(format, args...)}
}

// ParseInput validates the execution input text. Any JSON value is
// accepted; blank text means an empty object.
func ParseInput(text string) (xjson.RawMessage, error) {
	trimmed := bytes.TrimSpace([]byte(text))
	if len(trimmed) == 0 {
		return xjson.RawMessage(`{}`), nil
	}
	if !xjson.Valid(trimmed) {
		return nil, inputError("input", "not valid JSON")
	}
	return xjson.RawMessage(trimmed), nil
}

// ParseDefinition validates new-workflow text: a JSON object with a "nodes"
// object and an "edges" list.
func ParseDefinition(text string) (types.Definition, error) {
	var def types.Definition

	trimmed := bytes.TrimSpace([]byte(text))
	if len(trimmed) == 0 {
		return def, inputError("definition", "empty")
	}
	if !xjson.Valid(trimmed) {
		return def, inputError("definition", "not valid JSON")
	}

	var members map[string]xjson.RawMessage
	if trimmed[0] != '{' || xjson.Unmarshal(trimmed, &members) != nil {
		return def, inputError("definition", "must be a JSON object")
	}

	nodes, ok := members["nodes"]
	if !ok {
		return def, inputError("definition", `missing "nodes"`)
	}
	if !isObject(nodes) {
		return def, inputError("definition", `"nodes" must be an object`)
	}
	if err := xjson.Unmarshal(nodes, &def.Nodes); err != nil {
		return def, inputError("definition", `"nodes": %v`, err)
	}

	edges, ok := members["edges"]
	if !ok {
		return def, inputError("definition", `missing "edges"`)
	}
	if err := xjson.Unmarshal(edges, &def.Edges); err != nil || !isArray(edges) {
		return def, inputError("definition", `"edges" must be a list of {"from","to"} objects`)
	}

	if raw, ok := members["workflow_id"]; ok {
		if err := xjson.Unmarshal(raw, &def.WorkflowID); err != nil {
			return def, inputError("definition", `"workflow_id" must be a string`)
		}
	}
	return def, nil
}

func isObject(raw []byte) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && t[0] == '{'
}

func isArray(raw []byte) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && t[0] == '['
}
