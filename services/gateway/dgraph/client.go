// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dgraph provides an HTTP client for the backing Dgraph deployment.
//
// The deployment is treated as an opaque external service with four surfaces:
//
//   - GET  /health        feature-indicator list per instance (ee_features)
//   - GET  /state         cluster state, including the license block
//   - POST /admin         administrative GraphQL (namespace-aware)
//   - POST /admin/schema  GraphQL schema push (namespace-aware)
//   - POST /graphql       queries and mutations (namespace-aware)
//   - POST /alter         destructive drop operations
//
// Every outbound call carries a bounded timeout so a slow or unreachable
// deployment cannot block a request indefinitely. The client does not retry;
// callers decide whether to re-probe.
package dgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianGraph/services/gateway/telemetry"
)

// NamespaceHeader carries the namespace identifier on namespace-aware calls.
const NamespaceHeader = "X-Dgraph-Namespace"

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrUnavailable is returned when the deployment is not reachable.
	ErrUnavailable = errors.New("dgraph is not available")

	// ErrClientClosed is returned when operations are called on a closed client.
	ErrClientClosed = errors.New("dgraph client is closed")
)

// TransportError indicates a network or server-side failure talking to the
// deployment. It is distinct from GraphQL-level errors, which arrive in a
// well-formed response body.
type TransportError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("dgraph %s %s: HTTP %d: %v", e.Op, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("dgraph %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// GraphQLError carries the error list of a well-formed GraphQL response.
type GraphQLError struct {
	Errors []ResponseError
}

func (e *GraphQLError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, re := range e.Errors {
		msgs = append(msgs, re.Message)
	}
	return "dgraph graphql: " + strings.Join(msgs, "; ")
}

// -----------------------------------------------------------------------------
// Response Types
// -----------------------------------------------------------------------------

// HealthStatus is one instance entry of the /health response.
type HealthStatus struct {
	Instance   string   `json:"instance"`
	Address    string   `json:"address"`
	Status     string   `json:"status"`
	Version    string   `json:"version"`
	EEFeatures []string `json:"ee_features"`
}

// License is the license block of the /state response.
type License struct {
	User     string `json:"user"`
	ExpiryTs int64  `json:"expiryTs"`
	Enabled  bool   `json:"enabled"`
}

// ClusterState is the subset of the /state response the gateway consumes.
type ClusterState struct {
	License *License `json:"license"`
}

// ResponseError is one entry of a GraphQL response error list.
type ResponseError struct {
	Message    string         `json:"message"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Response is a GraphQL response envelope from /graphql or /admin.
type Response struct {
	Data   json.RawMessage `json:"data"`
	Errors []ResponseError `json:"errors,omitempty"`
}

// Err returns a *GraphQLError when the response carries errors, nil otherwise.
func (r *Response) Err() error {
	if r == nil || len(r.Errors) == 0 {
		return nil
	}
	return &GraphQLError{Errors: r.Errors}
}

// Decode unmarshals the response data into v.
func (r *Response) Decode(v any) error {
	if r == nil || len(r.Data) == 0 {
		return errors.New("response carries no data")
	}
	return json.Unmarshal(r.Data, v)
}

// -----------------------------------------------------------------------------
// Connection State
// -----------------------------------------------------------------------------

// ConnectionState represents the current state of the Dgraph connection.
type ConnectionState int32

const (
	// StateConnected indicates normal operation.
	StateConnected ConnectionState = iota
	// StateDegraded indicates the deployment is unavailable but the client is functional.
	StateDegraded
)

// String returns the string representation of ConnectionState.
func (s ConnectionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Client Configuration
// -----------------------------------------------------------------------------

// Config configures the Dgraph client.
type Config struct {
	// BaseURL is the deployment URL (e.g., "http://localhost:8080").
	BaseURL string

	// RequestTimeout bounds every outbound call.
	// Default: 5s
	RequestTimeout time.Duration

	// HealthCheckInterval is how often the background checker probes /health.
	// Set to 0 to disable background checking.
	// Default: 30s
	HealthCheckInterval time.Duration

	// HealthCheckTimeout prevents health checks from blocking.
	// Default: 5s
	HealthCheckTimeout time.Duration

	// HTTPClient overrides the transport, mainly for tests.
	// Default: a fresh http.Client
	HTTPClient *http.Client

	// Logger for client operations.
	// Default: slog.Default()
	Logger *slog.Logger

	// Metrics records outbound call counts and durations when set.
	// Default: nil (no recording)
	Metrics *telemetry.Metrics
}

// DefaultConfig returns sensible defaults for production use.
func DefaultConfig() Config {
	return Config{
		RequestTimeout:      5 * time.Second,
		HealthCheckInterval: 30 * time.Second,
		HealthCheckTimeout:  5 * time.Second,
		Logger:              slog.Default(),
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url must not be empty")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request_timeout must be positive")
	}
	if c.HealthCheckInterval < 0 {
		return errors.New("health_check_interval must be non-negative")
	}
	if c.HealthCheckTimeout <= 0 {
		return errors.New("health_check_timeout must be positive")
	}
	return nil
}

// applyDefaults fills in zero values with defaults.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.RequestTimeout == 0 {
		c.RequestTimeout = defaults.RequestTimeout
	}
	if c.HealthCheckTimeout == 0 {
		c.HealthCheckTimeout = defaults.HealthCheckTimeout
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	if c.Logger == nil {
		c.Logger = defaults.Logger
	}
}

// -----------------------------------------------------------------------------
// Client
// -----------------------------------------------------------------------------

// Client talks to the backing Dgraph deployment.
//
// Thread Safety: Safe for concurrent use from multiple goroutines.
type Client struct {
	base   string
	http   *http.Client
	config Config
	logger *slog.Logger

	state  atomic.Int32
	closed atomic.Bool

	handlers   []DegradationHandler
	handlersMu sync.RWMutex

	healthCtx    context.Context
	healthCancel context.CancelFunc
	healthWg     sync.WaitGroup
}

// NewClient creates a Dgraph client.
//
// Inputs:
//
//	config - Client configuration. BaseURL is required.
//
// Outputs:
//
//	*Client - Ready-to-use client. No connection is attempted up front; the
//	         first call (or the background health checker) establishes state.
//	error - Non-nil if the configuration is invalid.
func NewClient(config Config) (*Client, error) {
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	healthCtx, healthCancel := context.WithCancel(context.Background())

	c := &Client{
		base:         strings.TrimRight(config.BaseURL, "/"),
		http:         config.HTTPClient,
		config:       config,
		logger:       config.Logger.With(slog.String("component", "dgraph_client")),
		healthCtx:    healthCtx,
		healthCancel: healthCancel,
	}
	c.state.Store(int32(StateDegraded)) // Degraded until proven healthy

	if config.HealthCheckInterval > 0 {
		c.healthWg.Add(1)
		go c.runHealthChecker()
	}

	return c, nil
}

// ConnState returns the current connection state.
func (c *Client) ConnState() ConnectionState {
	return ConnectionState(c.state.Load())
}

// IsAvailable returns true if the last contact with the deployment succeeded.
func (c *Client) IsAvailable() bool {
	return c.ConnState() == StateConnected
}

// RegisterHandler registers a degradation handler.
//
// Thread Safety: Safe for concurrent use.
func (c *Client) RegisterHandler(handler DegradationHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers = append(c.handlers, handler)

	if c.ConnState() == StateDegraded {
		handler.OnDegraded("initial state: dgraph unavailable")
	}
}

// Close stops the background health checker.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil // Already closed
	}
	c.healthCancel()
	c.healthWg.Wait()
	return nil
}

// -----------------------------------------------------------------------------
// Deployment Surfaces
// -----------------------------------------------------------------------------

// Health queries the deployment's health surface.
//
// The response is a per-instance list; enterprise builds populate each
// instance's ee_features indicator list.
func (c *Client) Health(ctx context.Context) ([]HealthStatus, error) {
	var out []HealthStatus
	if err := c.do(ctx, http.MethodGet, "/health", nil, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// State queries the deployment's license/state surface.
func (c *Client) State(ctx context.Context) (*ClusterState, error) {
	var out ClusterState
	if err := c.do(ctx, http.MethodGet, "/state", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Admin executes an administrative GraphQL request, optionally scoped to a
// namespace. GraphQL-level errors are returned inside the response; callers
// that need a hard error should check Response.Err.
func (c *Client) Admin(ctx context.Context, query string, vars map[string]any, namespace string) (*Response, error) {
	body := map[string]any{"query": query}
	if len(vars) > 0 {
		body["variables"] = vars
	}
	var out Response
	if err := c.do(ctx, http.MethodPost, "/admin", body, namespace, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Query executes a GraphQL query against the namespace-scoped data surface.
func (c *Client) Query(ctx context.Context, query string, vars map[string]any, namespace string) (*Response, error) {
	return c.graphql(ctx, query, vars, namespace)
}

// Mutate executes a GraphQL mutation against the namespace-scoped data surface.
func (c *Client) Mutate(ctx context.Context, mutation string, vars map[string]any, namespace string) (*Response, error) {
	return c.graphql(ctx, mutation, vars, namespace)
}

func (c *Client) graphql(ctx context.Context, query string, vars map[string]any, namespace string) (*Response, error) {
	body := map[string]any{"query": query}
	if len(vars) > 0 {
		body["variables"] = vars
	}
	var out Response
	if err := c.do(ctx, http.MethodPost, "/graphql", body, namespace, &out); err != nil {
		return nil, err
	}
	if err := out.Err(); err != nil {
		return &out, err
	}
	return &out, nil
}

// PushSchema pushes a GraphQL schema to the given namespace.
func (c *Client) PushSchema(ctx context.Context, schema string, namespace string) error {
	var out Response
	if err := c.doRaw(ctx, http.MethodPost, "/admin/schema", strings.NewReader(schema), namespace, &out); err != nil {
		return err
	}
	return out.Err()
}

// DropAll wipes every namespace in the cluster.
//
// This is the cluster-wide destructive operation; the safety gating lives in
// the tenant registry, which validates the namespace confirmation before this
// method is ever reached.
func (c *Client) DropAll(ctx context.Context) error {
	var out Response
	if err := c.do(ctx, http.MethodPost, "/alter", map[string]any{"drop_all": true}, "", &out); err != nil {
		return err
	}
	return out.Err()
}

// DropData wipes the data (not the schema) of a single namespace.
func (c *Client) DropData(ctx context.Context, namespace string) error {
	var out Response
	if err := c.do(ctx, http.MethodPost, "/alter", map[string]any{"drop_op": "DATA"}, namespace, &out); err != nil {
		return err
	}
	return out.Err()
}

// -----------------------------------------------------------------------------
// Internal Methods
// -----------------------------------------------------------------------------

// do marshals body (when non-nil) and performs a bounded, traced request.
func (c *Client) do(ctx context.Context, method, path string, body any, namespace string, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	return c.doRaw(ctx, method, path, reader, namespace, out)
}

func (c *Client) doRaw(ctx context.Context, method, path string, body io.Reader, namespace string, out any) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	start := time.Now()
	status := "ok"
	defer func() { c.recordRequest(ctx, path, status, start) }()

	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	ctx, span := otel.Tracer("dgraph").Start(ctx, "dgraph"+path,
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.Bool("namespaced", namespace != ""),
		),
	)
	defer span.End()

	url := c.base + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return &TransportError{Op: method, URL: url, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if namespace != "" {
		req.Header.Set(NamespaceHeader, namespace)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.transitionState(StateDegraded)
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		status = "transport_error"
		return &TransportError{Op: method, URL: url, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.transitionState(StateDegraded)
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failure")
		status = "transport_error"
		return &TransportError{Op: method, URL: url, Err: err}
	}

	if resp.StatusCode >= 500 {
		c.transitionState(StateDegraded)
		span.SetStatus(codes.Error, "server error")
		status = "server_error"
		return &TransportError{
			Op: method, URL: url, StatusCode: resp.StatusCode,
			Err: fmt.Errorf("%s", strings.TrimSpace(string(raw))),
		}
	}
	if resp.StatusCode >= 400 {
		// Client-level rejection still proves the deployment is reachable.
		c.transitionState(StateConnected)
		span.SetStatus(codes.Error, "rejected")
		status = "rejected"
		return &TransportError{
			Op: method, URL: url, StatusCode: resp.StatusCode,
			Err: fmt.Errorf("%s", strings.TrimSpace(string(raw))),
		}
	}

	c.transitionState(StateConnected)
	span.SetStatus(codes.Ok, "success")

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			status = "decode_error"
			return &TransportError{Op: method, URL: url, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return nil
}

// recordRequest records one outbound call against the gateway metric set.
func (c *Client) recordRequest(ctx context.Context, path, status string, start time.Time) {
	if c.config.Metrics == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("op", path),
		attribute.String("status", status))
	c.config.Metrics.DgraphRequestsTotal.Add(ctx, 1, attrs)
	c.config.Metrics.DgraphRequestDuration.Record(ctx, time.Since(start).Seconds(), attrs)
}

// transitionState changes state and notifies handlers.
func (c *Client) transitionState(newState ConnectionState) {
	oldState := ConnectionState(c.state.Swap(int32(newState)))
	if oldState == newState {
		return
	}

	c.logger.Info("dgraph state transition",
		slog.String("from", oldState.String()),
		slog.String("to", newState.String()))

	c.handlersMu.RLock()
	handlers := c.handlers
	c.handlersMu.RUnlock()

	if newState == StateDegraded {
		for _, h := range handlers {
			h.OnDegraded(fmt.Sprintf("state changed to %s", newState.String()))
		}
	} else {
		for _, h := range handlers {
			h.OnRecovered()
		}
	}
}

// checkHealth performs a health check with its own timeout.
func (c *Client) checkHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.HealthCheckTimeout)
	defer cancel()

	statuses, err := c.Health(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	for _, s := range statuses {
		if strings.EqualFold(s.Status, "healthy") {
			return nil
		}
	}
	return ErrUnavailable
}

// runHealthChecker runs periodic health checks.
func (c *Client) runHealthChecker() {
	defer c.healthWg.Done()

	for {
		select {
		case <-c.healthCtx.Done():
			return
		case <-time.After(c.config.HealthCheckInterval):
			if err := c.checkHealth(c.healthCtx); err != nil {
				c.transitionState(StateDegraded)
			}
		}
	}
}

// IsTransportError reports whether err originates from a transport failure
// (as opposed to a GraphQL-level rejection).
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
