// Package authclient talks to the remote REST API on behalf of a session:
// sign-in, sign-up and sign-out, authorized requests and profile lookups.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/upb/admin-portal/internal/observability"
	"github.com/upb/admin-portal/models"
	"github.com/upb/admin-portal/services"
	"github.com/upb/admin-portal/services/audit"
	"github.com/upb/admin-portal/session"
)

// maxErrorBody bounds how much of a failing response is read
const maxErrorBody = 64 << 10

// Upstream error kinds reported to metrics
const (
	upstreamNetwork = "network"
	upstreamHTTP    = "http"
)

// Client is the Auth Client. The zero value is not usable; call NewClient.
// A Client is safe for concurrent use; WithStore returns copies bound to
// another session scope that share the HTTP client and lookup group.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      *session.Store
	logger     *zap.Logger
	metrics    *observability.Metrics
	audit      audit.Recorder
	lookups    *singleflight.Group
	now        func() time.Time
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithMetrics records sign-in outcomes and upstream failures
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithAuditRecorder sends auth events to r
func WithAuditRecorder(r audit.Recorder) Option {
	return func(c *Client) {
		c.audit = r
	}
}

// NewClient creates a client for the API at baseURL writing sessions to store
func NewClient(baseURL string, store *session.Store, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		store:   store,
		logger:  logger,
		lookups: &singleflight.Group{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithStore returns a copy of the client bound to store
func (c *Client) WithStore(store *session.Store) *Client {
	scoped := *c
	scoped.store = store
	return &scoped
}

// Store returns the session store the client writes to
func (c *Client) Store() *session.Store {
	return c.store
}

// Do performs an authorized request. The stored credential, if any, is sent as
// a bearer token. It fails with *services.NetworkError when no response was
// received and *services.HTTPError when the status is not 2xx; otherwise the
// response is returned unread and the caller must close its body.
func (c *Client) Do(ctx context.Context, method, path string, body io.Reader, header http.Header) (*http.Response, error) {
	token, _ := c.store.CurrentCredential(ctx)
	return c.do(ctx, method, path, body, header, token)
}

// DoJSON sends in as a JSON body (when non-nil) and decodes a JSON response
// into out (when non-nil).
func (c *Client) DoJSON(ctx context.Context, method, path string, in, out interface{}) error {
	token, _ := c.store.CurrentCredential(ctx)
	return c.doJSON(ctx, method, path, in, out, token)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out interface{}, token models.Credential) error {
	header := http.Header{}
	header.Set("Accept", "application/json")

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
		header.Set("Content-Type", "application/json")
	}

	resp, err := c.do(ctx, method, path, body, header, token)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode response from %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, header http.Header, token models.Credential) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+string(token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveUpstreamError(upstreamNetwork)
		c.logger.Warn("API request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, &services.NetworkError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.metrics.ObserveUpstreamError(upstreamHTTP)
		c.logger.Debug("API request rejected",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return nil, services.NewHTTPError(resp.StatusCode, raw)
	}

	return resp, nil
}

func (c *Client) url(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

func (c *Client) record(ctx context.Context, event *models.AuditEvent) {
	if c.audit == nil {
		return
	}
	c.audit.Record(ctx, event)
}
