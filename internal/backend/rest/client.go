// Package rest is the HTTP backend for a koppla project.
//
// Every path is rooted at the project's base URL:
//
//	GET    {base}/node-types   GET {base}/edge-types
//	GET    {base}/nodes        GET {base}/edges
//	POST   {base}/create-nodes POST {base}/create-edges
//	PUT    {base}/update-nodes PUT {base}/update-edges
//	DELETE {base}/delete-nodes DELETE {base}/delete-edges
//
// Bodies are JSON arrays. Create responses are arrays of {temp_id, id}.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/roach88/koppla/internal/engine"
	"github.com/roach88/koppla/internal/model"
	"github.com/roach88/koppla/internal/registry"
)

// DefaultTimeout bounds each request.
const DefaultTimeout = 30 * time.Second

// TokenHeader carries the caller-supplied token on mutating requests.
const TokenHeader = "X-CSRF-Token"

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 4096

// StatusError is a non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// Client talks to one project.
//
// Thread-safety: Client is safe for concurrent use.
type Client struct {
	base         *url.URL
	http         *http.Client
	token        string
	requireToken bool
	logger       *slog.Logger
}

var (
	_ engine.Backend           = (*Client)(nil)
	_ engine.CredentialChecker = (*Client)(nil)
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithToken sets the token sent in TokenHeader.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// RequireToken makes persistence refuse to run without a token.
func RequireToken(required bool) Option {
	return func(c *Client) { c.requireToken = required }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the project at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		base:   u,
		http:   &http.Client{Timeout: DefaultTimeout},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CheckCredentials implements engine.CredentialChecker.
func (c *Client) CheckCredentials() error {
	if c.requireToken && c.token == "" {
		return errors.New("rest: token required but not configured")
	}
	return nil
}

// wireEdgeType accepts line_dash as a JSON array or as base64 of one.
type wireEdgeType struct {
	ID          model.EdgeTypeID `json:"id"`
	Name        string           `json:"name"`
	StrokeColor string           `json:"stroke_color"`
	StrokeWidth float64          `json:"stroke_width"`
	LineDash    json.RawMessage  `json:"line_dash"`
	Metadata    string           `json:"metadata"`
}

func (c *Client) LoadNodeTypes(ctx context.Context) ([]model.NodeType, error) {
	var out []model.NodeType
	if err := c.do(ctx, http.MethodGet, "node-types", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) LoadEdgeTypes(ctx context.Context) ([]model.EdgeType, error) {
	var wire []wireEdgeType
	if err := c.do(ctx, http.MethodGet, "edge-types", nil, &wire); err != nil {
		return nil, err
	}
	out := make([]model.EdgeType, 0, len(wire))
	for _, w := range wire {
		dash, err := registry.DecodeLineDash(w.LineDash)
		if err != nil {
			c.logger.Warn("edge type has unreadable line_dash", "id", w.ID, "error", err)
			dash = []float64{}
		}
		out = append(out, model.EdgeType{
			ID:          w.ID,
			Name:        w.Name,
			StrokeColor: w.StrokeColor,
			StrokeWidth: w.StrokeWidth,
			LineDash:    dash,
			Metadata:    w.Metadata,
		})
	}
	return out, nil
}

func (c *Client) LoadNodes(ctx context.Context) ([]model.NodeRecord, error) {
	var out []model.NodeRecord
	if err := c.do(ctx, http.MethodGet, "nodes", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) LoadEdges(ctx context.Context) ([]model.EdgeRecord, error) {
	var out []model.EdgeRecord
	if err := c.do(ctx, http.MethodGet, "edges", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateNodes(ctx context.Context, nodes []model.NodeRecord) ([]model.CreatedRef, error) {
	var out []model.CreatedRef
	if err := c.do(ctx, http.MethodPost, "create-nodes", nodes, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UpdateNodes(ctx context.Context, nodes []model.NodeRecord) error {
	return c.do(ctx, http.MethodPut, "update-nodes", nodes, nil)
}

func (c *Client) DeleteNodes(ctx context.Context, ids []string) error {
	return c.do(ctx, http.MethodDelete, "delete-nodes", ids, nil)
}

func (c *Client) CreateEdges(ctx context.Context, edges []model.EdgeRecord) ([]model.CreatedRef, error) {
	var out []model.CreatedRef
	if err := c.do(ctx, http.MethodPost, "create-edges", edges, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UpdateEdges(ctx context.Context, edges []model.EdgeRecord) error {
	return c.do(ctx, http.MethodPut, "update-edges", edges, nil)
}

func (c *Client) DeleteEdges(ctx context.Context, ids []string) error {
	return c.do(ctx, http.MethodDelete, "delete-edges", ids, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	endpoint := c.base.JoinPath(path).String()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s %s: marshal body: %w", method, path, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("%s %s: create request: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set(TokenHeader, c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}
