package client

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/avi3tal/flowscope/internal/types"
	"github.com/avi3tal/flowscope/internal/xjson"
)

const (
	DefaultTimeout          = 10 * time.Second
	DefaultMaxResponseBytes = 8 << 20

	headerRequestID = "X-Request-ID"
)

// Doer executes HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPClient talks to the workflow service over REST/JSON.
type HTTPClient struct {
	baseURL  string
	doer     Doer
	timeout  time.Duration
	maxBytes int64
	logger   *zap.Logger
}

var _ WorkflowClient = (*HTTPClient)(nil)

type Option func(*HTTPClient)

// WithTimeout bounds every request. Zero disables the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) {
		if d >= 0 {
			c.timeout = d
		}
	}
}

func WithDoer(d Doer) Option {
	return func(c *HTTPClient) {
		if d != nil {
			c.doer = d
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *HTTPClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMaxResponseBytes caps how much of a response body is read.
func WithMaxResponseBytes(n int64) Option {
	return func(c *HTTPClient) {
		if n > 0 {
			c.maxBytes = n
		}
	}
}

// NewHTTPClient creates a client for the service rooted at baseURL.
func NewHTTPClient(baseURL string, opts ...Option) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid base url %q", baseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("invalid base url %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, errors.Errorf("invalid base url %q: missing host", baseURL)
	}

	c := &HTTPClient{
		baseURL:  strings.TrimRight(u.String(), "/"),
		doer:     &http.Client{},
		timeout:  DefaultTimeout,
		maxBytes: DefaultMaxResponseBytes,
		logger:   zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// BaseURL returns the normalized service root.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

func (c *HTTPClient) ListWorkflows(ctx context.Context) ([]types.WorkflowSummary, error) {
	var resp listWorkflowsResponse
	if err := c.do(ctx, http.MethodGet, "/workflows", nil, &resp); err != nil {
		return nil, errors.Wrap(err, "list workflows")
	}
	if resp.Workflows == nil {
		resp.Workflows = []types.WorkflowSummary{}
	}
	return resp.Workflows, nil
}

func (c *HTTPClient) GetWorkflow(ctx context.Context, name string) (*types.Workflow, error) {
	if name == "" {
		return nil, errors.New("get workflow: name is required")
	}
	var wf types.Workflow
	if err := c.do(ctx, http.MethodGet, "/workflows/"+url.PathEscape(name), nil, &wf); err != nil {
		return nil, errors.Wrapf(err, "get workflow %s", name)
	}
	if wf.Name == "" {
		wf.Name = name
	}
	return &wf, nil
}

func (c *HTTPClient) CreateWorkflow(ctx context.Context, name string, def types.Definition) (*types.WorkflowSummary, error) {
	req := createWorkflowRequest{Name: name, Workflow: def}
	var summary types.WorkflowSummary
	if err := c.do(ctx, http.MethodPost, "/workflows", req, &summary); err != nil {
		return nil, errors.Wrapf(err, "create workflow %s", name)
	}
	return &summary, nil
}

func (c *HTTPClient) Execute(ctx context.Context, workflow string, input xjson.RawMessage) (*types.ExecutionSnapshot, error) {
	if len(bytes.TrimSpace(input)) == 0 {
		input = xjson.RawMessage(`{}`)
	}
	var snap types.ExecutionSnapshot
	req := executeRequest{Workflow: workflow, Input: input}
	if err := c.do(ctx, http.MethodPost, "/execute", req, &snap); err != nil {
		return nil, errors.Wrapf(err, "execute workflow %s", workflow)
	}
	if snap.ExecutionID == "" {
		return nil, errors.Errorf("execute workflow %s: response has no execution id", workflow)
	}
	if snap.Status == "" {
		snap.Status = types.ExecutionPending
	}
	return &snap, nil
}

func (c *HTTPClient) GetExecution(ctx context.Context, executionID string) (*types.ExecutionSnapshot, error) {
	if executionID == "" {
		return nil, errors.New("get execution: id is required")
	}
	var snap types.ExecutionSnapshot
	if err := c.do(ctx, http.MethodGet, "/executions/"+url.PathEscape(executionID), nil, &snap); err != nil {
		return nil, errors.Wrapf(err, "get execution %s", executionID)
	}
	return &snap, nil
}

func (c *HTTPClient) Health(ctx context.Context) (*types.Health, error) {
	var h types.Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &h); err != nil {
		return nil, errors.Wrap(err, "health")
	}
	return &h, nil
}

// do sends one JSON request and decodes a 2xx response into out. Non-2xx
// responses become *APIError.
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		payload, err := xjson.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	requestID := uuid.New().String()
	req.Header.Set("Accept", "application/json")
	req.Header.Set(headerRequestID, requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	logger := c.logger.With(
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", requestID),
	)
	start := time.Now()

	resp, err := c.doer.Do(req)
	if err != nil {
		logger.Debug("request failed", zap.Error(err))
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return errors.Wrapf(err, "%s %s: read response", method, path)
	}
	if int64(len(data)) > c.maxBytes {
		return errors.Errorf("%s %s: response exceeds %d bytes", method, path, c.maxBytes)
	}

	logger.Debug("request completed",
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(data)),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Detail:     parseDetail(data),
			Method:     method,
			Path:       path,
		}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := xjson.Unmarshal(data, out); err != nil {
		return errors.Wrapf(err, "%s %s: decode response", method, path)
	}
	return nil
}

// parseDetail extracts the "detail" member of an error body. A string detail
// is returned as is; any other JSON value is returned as its raw JSON text.
// Bodies that are not JSON objects are returned trimmed.
func parseDetail(data []byte) string {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return ""
	}
	var er errorResponse
	if err := xjson.Unmarshal(trimmed, &er); err != nil || len(er.Detail) == 0 {
		if trimmed[0] == '{' {
			return ""
		}
		return string(trimmed)
	}
	var s string
	if err := xjson.Unmarshal(er.Detail, &s); err == nil {
		return s
	}
	return string(er.Detail)
}
