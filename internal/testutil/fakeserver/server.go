// Package fakeserver is an in-process stand-in for the workflow service,
// used by client and console tests.
package fakeserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avi3tal/flowscope/internal/types"
	"github.com/avi3tal/flowscope/internal/xjson"
)

type storedWorkflow struct {
	workflowID string
	nodes      types.NodeSet
	edges      []types.Edge
}

type execution struct {
	id         string
	workflow   string
	workflowID string
	startedAt  string
	steps      []types.ExecutionSnapshot
	polls      int
}

// Request is one request the server received.
type Request struct {
	Method    string
	Path      string
	RequestID string
	Body      []byte
}

// Server serves the workflow REST API from memory. Executions follow a
// script: each GET of an execution returns the next scripted snapshot and the
// last one repeats forever.
type Server struct {
	srv *httptest.Server

	mu        sync.Mutex
	names     []string
	workflows map[string]storedWorkflow
	scripts   map[string][]types.ExecutionSnapshot
	execs     map[string]*execution
	requests  []Request
	failures  map[string]int
}

// New starts a server. Call Close when done.
func New() *Server {
	s := &Server{
		workflows: make(map[string]storedWorkflow),
		scripts:   make(map[string][]types.ExecutionSnapshot),
		execs:     make(map[string]*execution),
		failures:  make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /workflows", s.handleListWorkflows)
	mux.HandleFunc("GET /workflows/{name}", s.handleGetWorkflow)
	mux.HandleFunc("POST /workflows", s.handleCreateWorkflow)
	mux.HandleFunc("POST /execute", s.handleExecute)
	mux.HandleFunc("GET /executions/{id}", s.handleGetExecution)

	s.srv = httptest.NewServer(s.record(mux))
	return s
}

func (s *Server) URL() string { return s.srv.URL }

func (s *Server) Close() { s.srv.Close() }

// AddWorkflow registers a workflow under name, as is.
func (s *Server) AddWorkflow(name string, def types.Definition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(name, def)
}

// Script sets the snapshots returned by executions of workflow started
// after the call. Execution and workflow ids are filled in by the server.
func (s *Server) Script(workflow string, steps ...types.ExecutionSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[workflow] = steps
}

// FailNext makes the next n requests whose path starts with prefix answer
// 500.
func (s *Server) FailNext(prefix string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[prefix] = n
}

// Requests returns the requests received so far whose path starts with
// prefix.
func (s *Server) Requests(prefix string) []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Request
	for _, r := range s.requests {
		if strings.HasPrefix(r.Path, prefix) {
			out = append(out, r)
		}
	}
	return out
}

// Polls returns how many times execution id has been fetched.
func (s *Server) Polls(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ex, ok := s.execs[id]; ok {
		return ex.polls
	}
	return 0
}

// NormalizeName turns a user-entered workflow name into the stored one.
func NormalizeName(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "_"))
}

func (s *Server) putLocked(name string, def types.Definition) {
	if _, exists := s.workflows[name]; !exists {
		s.names = append(s.names, name)
	}
	id := def.WorkflowID
	if id == "" {
		id = name
	}
	s.workflows[name] = storedWorkflow{workflowID: id, nodes: def.Nodes, edges: def.Edges}
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			body, _ = readAll(r)
		}

		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method:    r.Method,
			Path:      r.URL.Path,
			RequestID: r.Header.Get("X-Request-ID"),
			Body:      body,
		})
		fail := false
		for prefix, n := range s.failures {
			if n > 0 && strings.HasPrefix(r.URL.Path, prefix) {
				s.failures[prefix] = n - 1
				fail = true
				break
			}
		}
		s.mu.Unlock()

		if fail {
			writeError(w, http.StatusInternalServerError, "injected failure")
			return
		}
		r.Body = newBody(body)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	active := 0
	for _, ex := range s.execs {
		if !ex.current().Status.IsTerminal() {
			active++
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, types.Health{Status: "healthy", ActiveExecutions: active})
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	out := make([]types.WorkflowSummary, 0, len(s.names))
	for _, name := range s.names {
		wf := s.workflows[name]
		out = append(out, types.WorkflowSummary{
			Name:       name,
			WorkflowID: wf.workflowID,
			NodeCount:  wf.nodes.Len(),
			EdgeCount:  len(wf.edges),
		})
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"workflows": out})
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	s.mu.Lock()
	wf, ok := s.workflows[name]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Workflow not found")
		return
	}
	edges := wf.edges
	if edges == nil {
		edges = []types.Edge{}
	}
	writeJSON(w, http.StatusOK, types.Workflow{
		WorkflowID: wf.workflowID,
		Name:       name,
		Nodes:      wf.nodes,
		Edges:      edges,
	})
}

type createRequest struct {
	Name     string                      `json:"name"`
	Workflow map[string]xjson.RawMessage `json:"workflow"`
}

func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "Workflow name is required")
		return
	}
	name := NormalizeName(req.Name)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.workflows[name]; exists {
		writeError(w, http.StatusBadRequest, "Workflow with this name already exists")
		return
	}
	if _, ok := req.Workflow["nodes"]; !ok {
		writeError(w, http.StatusBadRequest, "Workflow must have 'nodes'")
		return
	}
	if _, ok := req.Workflow["edges"]; !ok {
		writeError(w, http.StatusBadRequest, "Workflow must have 'edges'")
		return
	}

	var def types.Definition
	if err := xjson.Unmarshal(req.Workflow["nodes"], &def.Nodes); err != nil {
		writeError(w, http.StatusBadRequest, "Workflow 'nodes' must be an object")
		return
	}
	if err := xjson.Unmarshal(req.Workflow["edges"], &def.Edges); err != nil {
		writeError(w, http.StatusBadRequest, "Workflow 'edges' must be a list")
		return
	}
	if raw, ok := req.Workflow["workflow_id"]; ok {
		_ = xjson.Unmarshal(raw, &def.WorkflowID)
	}
	s.putLocked(name, def)

	wf := s.workflows[name]
	writeJSON(w, http.StatusCreated, types.WorkflowSummary{
		Name:       name,
		WorkflowID: wf.workflowID,
		NodeCount:  wf.nodes.Len(),
		EdgeCount:  len(wf.edges),
	})
}

type executeRequest struct {
	Workflow string           `json:"workflow"`
	Input    xjson.RawMessage `json:"input"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.workflows[req.Workflow]
	if !ok {
		writeError(w, http.StatusNotFound, "Workflow not found")
		return
	}

	steps := s.scripts[req.Workflow]
	if len(steps) == 0 {
		steps = []types.ExecutionSnapshot{completedRun(wf.nodes)}
	}
	ex := &execution{
		id:         uuid.New().String(),
		workflow:   req.Workflow,
		workflowID: wf.workflowID,
		startedAt:  time.Now().UTC().Format(time.RFC3339),
		steps:      steps,
	}
	s.execs[ex.id] = ex

	writeJSON(w, http.StatusAccepted, types.ExecutionSnapshot{
		ExecutionID: ex.id,
		WorkflowID:  ex.workflowID,
		Status:      types.ExecutionPending,
		StartedAt:   ex.startedAt,
	})
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	ex, ok := s.execs[id]
	var snap types.ExecutionSnapshot
	if ok {
		snap = ex.current()
		ex.polls++
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Execution not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// current returns the snapshot for the next poll.
func (ex *execution) current() types.ExecutionSnapshot {
	i := ex.polls
	if i >= len(ex.steps) {
		i = len(ex.steps) - 1
	}
	snap := ex.steps[i]
	snap.ExecutionID = ex.id
	snap.WorkflowID = ex.workflowID
	if snap.StartedAt == "" {
		snap.StartedAt = ex.startedAt
	}
	return snap
}

func completedRun(nodes types.NodeSet) types.ExecutionSnapshot {
	snap := types.ExecutionSnapshot{
		Status: types.ExecutionCompleted,
		Nodes:  make(map[string]types.NodeRunState, nodes.Len()),
	}
	for _, name := range nodes.Names() {
		snap.Nodes[name] = types.NodeRunState{Status: types.NodeSuccess, Attempts: 1}
	}
	return snap
}
