// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/AleutianAI/AleutianGraph/services/gateway/capability"
	"github.com/AleutianAI/AleutianGraph/services/gateway/dgraph"
	"github.com/AleutianAI/AleutianGraph/services/gateway/telemetry"
	"github.com/AleutianAI/AleutianGraph/services/gateway/tenant"
)

// fakeCaps serves a fixed snapshot and counts refreshes.
type fakeCaps struct {
	snapshot  capability.Snapshot
	refreshes int
}

func (f *fakeCaps) Detect(context.Context) capability.Snapshot { return f.snapshot }
func (f *fakeCaps) Refresh(context.Context) capability.Snapshot {
	f.refreshes++
	return f.snapshot
}

// fakeTenants is an in-memory tenant registry.
type fakeTenants struct {
	namespaces map[string]string
	nextNS     int

	dropAllCalls int
	clearNodes   int
	clearEdges   int
}

func newFakeTenants() *fakeTenants {
	return &fakeTenants{
		namespaces: map[string]string{
			tenant.DefaultTenantID: tenant.DefaultNamespace,
			tenant.TestTenantID:    tenant.TestNamespace,
		},
		nextNS: 2,
	}
}

func (f *fakeTenants) CreateTenant(_ context.Context, tenantID string) (string, error) {
	if _, ok := f.namespaces[tenantID]; ok {
		return "", fmt.Errorf("%w: %q", tenant.ErrAlreadyExists, tenantID)
	}
	ns := fmt.Sprintf("0x%x", f.nextNS)
	f.nextNS++
	f.namespaces[tenantID] = ns
	return ns, nil
}

func (f *fakeTenants) DeleteTenant(_ context.Context, tenantID string, force bool) error {
	if tenant.IsReserved(tenantID) && !force {
		return fmt.Errorf("%w: %q", tenant.ErrReservedTenant, tenantID)
	}
	if _, ok := f.namespaces[tenantID]; !ok {
		return fmt.Errorf("%w: %q", tenant.ErrNotFound, tenantID)
	}
	if !tenant.IsReserved(tenantID) {
		delete(f.namespaces, tenantID)
	}
	return nil
}

func (f *fakeTenants) Namespace(_ context.Context, tenantID string) (string, error) {
	ns, ok := f.namespaces[tenantID]
	if !ok {
		return "", fmt.Errorf("%w: %q", tenant.ErrNotFound, tenantID)
	}
	return ns, nil
}

func (f *fakeTenants) ListTenants(context.Context) ([]tenant.Tenant, error) {
	tenants := []tenant.Tenant{
		{ID: tenant.DefaultTenantID, Namespace: tenant.DefaultNamespace},
		{ID: tenant.TestTenantID, Namespace: tenant.TestNamespace},
	}
	for id, ns := range f.namespaces {
		if !tenant.IsReserved(id) {
			tenants = append(tenants, tenant.Tenant{ID: id, Namespace: ns, CreatedAt: time.Now()})
		}
	}
	return tenants, nil
}

func (f *fakeTenants) DropAllData(ctx context.Context, tenantID, confirmNamespace string) error {
	if tenantID == "" {
		tenantID = tenant.DefaultTenantID
	}
	expected, err := f.Namespace(ctx, tenantID)
	if err != nil {
		return err
	}
	if confirmNamespace != expected {
		return &tenant.SafetyViolationError{TenantID: tenantID, Expected: expected, Got: confirmNamespace}
	}
	f.dropAllCalls++
	return nil
}

func (f *fakeTenants) ClearNamespaceData(_ context.Context, tenantID string) (nodes, edges int, err error) {
	if _, ok := f.namespaces[tenantID]; !ok {
		return 0, 0, fmt.Errorf("%w: %q", tenant.ErrNotFound, tenantID)
	}
	return f.clearNodes, f.clearEdges, nil
}

// fakeSchema records pushed namespaces.
type fakeSchema struct {
	pushed []string
	err    error
}

func (f *fakeSchema) Push(_ context.Context, namespace string) error {
	if f.err != nil {
		return f.err
	}
	f.pushed = append(f.pushed, namespace)
	return nil
}

// fakeExec scripts GraphQL responses keyed by substring match.
type fakeExec struct {
	responses  map[string]string // substring of query -> raw data JSON
	namespaces []string
	mutations  []string
	failOn     string // mutations containing this substring fail
}

func (f *fakeExec) respond(query string) (*dgraph.Response, error) {
	for key, data := range f.responses {
		if strings.Contains(query, key) {
			return &dgraph.Response{Data: []byte(data)}, nil
		}
	}
	return &dgraph.Response{Data: []byte(`{}`)}, nil
}

func (f *fakeExec) Query(_ context.Context, query string, _ map[string]any, namespace string) (*dgraph.Response, error) {
	f.namespaces = append(f.namespaces, namespace)
	return f.respond(query)
}

func (f *fakeExec) Mutate(_ context.Context, mutation string, _ map[string]any, namespace string) (*dgraph.Response, error) {
	f.namespaces = append(f.namespaces, namespace)
	f.mutations = append(f.mutations, mutation)
	if f.failOn != "" && strings.Contains(mutation, f.failOn) {
		return nil, &dgraph.TransportError{Op: http.MethodPost, Err: fmt.Errorf("write refused")}
	}
	return f.respond(mutation)
}

// fakeConn reports a fixed connection state.
type fakeConn struct {
	state dgraph.ConnectionState
}

func (f *fakeConn) ConnState() dgraph.ConnectionState { return f.state }

type testGateway struct {
	router  *gin.Engine
	caps    *fakeCaps
	tenants *fakeTenants
	schema  *fakeSchema
	exec    *fakeExec
	conn    *fakeConn
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tg := &testGateway{
		caps: &fakeCaps{snapshot: capability.Snapshot{
			EnterpriseDetected:  true,
			NamespacesSupported: true,
			License:             capability.LicenseLicensed,
			DetectedAt:          time.Now(),
		}},
		tenants: newFakeTenants(),
		schema:  &fakeSchema{},
		exec: &fakeExec{responses: map[string]string{
			"addNode": `{"addNode":{"node":[{"id":"0xn1"}]}}`,
		}},
		conn: &fakeConn{state: dgraph.StateConnected},
	}

	service := NewService(ServiceConfig{
		Capabilities: tg.caps,
		Tenants:      tg.tenants,
		Schema:       tg.schema,
		Executor:     tg.exec,
		Connection:   tg.conn,
	})
	handlers := NewHandlers(service, nil)

	tg.router = gin.New()
	v1 := tg.router.Group("/v1")
	RegisterRoutes(v1, handlers)
	return tg
}

func (tg *testGateway) request(t *testing.T, method, path, body, tenantID string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if tenantID != "" {
		req.Header.Set(TenantHeader, tenantID)
	}
	w := httptest.NewRecorder()
	tg.router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHandleHealth(t *testing.T) {
	tg := newTestGateway(t)

	w := tg.request(t, http.MethodGet, "/v1/graph/health", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeBody[HealthResponse](t, w)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "connected", resp.ConnectionState)
}

func TestHandleHealth_Degraded(t *testing.T) {
	tg := newTestGateway(t)
	tg.conn.state = dgraph.StateDegraded

	w := tg.request(t, http.MethodGet, "/v1/graph/health", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeBody[HealthResponse](t, w)
	assert.Equal(t, "degraded", resp.Status)
}

func TestHandleCapabilities(t *testing.T) {
	tg := newTestGateway(t)

	w := tg.request(t, http.MethodGet, "/v1/graph/capabilities", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeBody[CapabilitiesResponse](t, w)
	assert.True(t, resp.EnterpriseDetected)
	assert.True(t, resp.NamespacesSupported)
	assert.Equal(t, "licensed", resp.License)
	assert.False(t, resp.Degraded)
}

func TestHandleCapabilities_DegradedProbeIsNotAnHTTPError(t *testing.T) {
	tg := newTestGateway(t)
	tg.caps.snapshot = capability.Snapshot{Err: "connection refused", DetectedAt: time.Now()}

	w := tg.request(t, http.MethodGet, "/v1/graph/capabilities", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeBody[CapabilitiesResponse](t, w)
	assert.True(t, resp.Degraded)
	assert.Equal(t, "connection refused", resp.Error)
}

func TestHandleRefreshCapabilities(t *testing.T) {
	tg := newTestGateway(t)

	w := tg.request(t, http.MethodPost, "/v1/graph/capabilities/refresh", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, tg.caps.refreshes)
}

func TestHandleCreateTenant(t *testing.T) {
	tg := newTestGateway(t)

	w := tg.request(t, http.MethodPost, "/v1/graph/tenants", `{"tenant_id":"acme"}`, "")
	require.Equal(t, http.StatusCreated, w.Code)

	resp := decodeBody[TenantResponse](t, w)
	assert.Equal(t, "acme", resp.TenantID)
	assert.Equal(t, "0x2", resp.Namespace)
}

func TestHandleCreateTenant_Duplicate(t *testing.T) {
	tg := newTestGateway(t)

	tg.request(t, http.MethodPost, "/v1/graph/tenants", `{"tenant_id":"acme"}`, "")
	w := tg.request(t, http.MethodPost, "/v1/graph/tenants", `{"tenant_id":"acme"}`, "")
	require.Equal(t, http.StatusConflict, w.Code)

	resp := decodeBody[ErrorResponse](t, w)
	assert.Equal(t, CodeTenantExists, resp.Code)
}

func TestHandleCreateTenant_InvalidBody(t *testing.T) {
	tg := newTestGateway(t)

	for _, body := range []string{``, `{}`, `{"tenant_id":""}`, `{"tenant_id":"has space"}`, `not json`} {
		w := tg.request(t, http.MethodPost, "/v1/graph/tenants", body, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, "body %q", body)
	}
}

func TestHandleListTenants(t *testing.T) {
	tg := newTestGateway(t)
	tg.request(t, http.MethodPost, "/v1/graph/tenants", `{"tenant_id":"acme"}`, "")

	w := tg.request(t, http.MethodGet, "/v1/graph/tenants", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeBody[ListTenantsResponse](t, w)
	require.Len(t, resp.Tenants, 3)
	assert.True(t, resp.Tenants[0].Reserved)
	assert.True(t, resp.Tenants[1].Reserved)
}

func TestHandleDeleteTenant(t *testing.T) {
	tg := newTestGateway(t)
	tg.request(t, http.MethodPost, "/v1/graph/tenants", `{"tenant_id":"acme"}`, "")

	w := tg.request(t, http.MethodDelete, "/v1/graph/tenants/acme", "", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestHandleDeleteTenant_Reserved(t *testing.T) {
	tg := newTestGateway(t)

	w := tg.request(t, http.MethodDelete, "/v1/graph/tenants/default", "", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeBody[ErrorResponse](t, w)
	assert.Equal(t, CodeReservedTenant, resp.Code)

	// force=true wipes the reserved tenant's data instead.
	w = tg.request(t, http.MethodDelete, "/v1/graph/tenants/default?force=true", "", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestHandleDeleteTenant_NotFound(t *testing.T) {
	tg := newTestGateway(t)

	w := tg.request(t, http.MethodDelete, "/v1/graph/tenants/ghost", "", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	resp := decodeBody[ErrorResponse](t, w)
	assert.Equal(t, CodeTenantNotFound, resp.Code)
}

func TestTenantContextMiddleware_InvalidHeader(t *testing.T) {
	tg := newTestGateway(t)

	w := tg.request(t, http.MethodGet, "/v1/graph/health", "", "has space")
	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeBody[ErrorResponse](t, w)
	assert.Equal(t, CodeInvalidTenantID, resp.Code)
}

func TestHandleCreateNode_Unplaced(t *testing.T) {
	tg := newTestGateway(t)

	w := tg.request(t, http.MethodPost, "/v1/graph/nodes",
		`{"name":"Mammals","node_type":"concept"}`, "")
	require.Equal(t, http.StatusCreated, w.Code)

	resp := decodeBody[CreateNodeResponse](t, w)
	assert.Equal(t, "0xn1", resp.NodeID)
	assert.Equal(t, tenant.DefaultNamespace, resp.Namespace)
	require.NotNil(t, resp.Placement)
	assert.False(t, resp.Placement.Assigned)
}

func TestHandleCreateNode_TenantNamespaceBinding(t *testing.T) {
	tg := newTestGateway(t)
	tg.request(t, http.MethodPost, "/v1/graph/tenants", `{"tenant_id":"acme"}`, "")

	w := tg.request(t, http.MethodPost, "/v1/graph/nodes",
		`{"name":"Mammals","node_type":"concept"}`, "acme")
	require.Equal(t, http.StatusCreated, w.Code)

	resp := decodeBody[CreateNodeResponse](t, w)
	assert.Equal(t, "0x2", resp.Namespace)
	// Every executed call carried the tenant's namespace.
	for _, ns := range tg.exec.namespaces {
		assert.Equal(t, "0x2", ns)
	}
}

func TestHandleCreateNode_IncompleteHint(t *testing.T) {
	tg := newTestGateway(t)

	// A hierarchy with nothing to place by is rejected, not defaulted.
	w := tg.request(t, http.MethodPost, "/v1/graph/nodes",
		`{"name":"Mammals","node_type":"concept","hierarchy_id":"h1"}`, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeBody[ErrorResponse](t, w)
	assert.Equal(t, CodeMissingContext, resp.Code)
}

func TestHandleCreateNode_MissingFields(t *testing.T) {
	tg := newTestGateway(t)

	w := tg.request(t, http.MethodPost, "/v1/graph/nodes", `{"name":"x"}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlePushSchema(t *testing.T) {
	tg := newTestGateway(t)
	tg.request(t, http.MethodPost, "/v1/graph/tenants", `{"tenant_id":"acme"}`, "")

	w := tg.request(t, http.MethodPost, "/v1/graph/admin/schema", `{"tenant_id":"acme"}`, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"0x2"}, tg.schema.pushed)
}

func TestHandlePushSchema_DefaultsToRequestTenant(t *testing.T) {
	tg := newTestGateway(t)

	// No body: the default tenant's namespace is the target.
	w := tg.request(t, http.MethodPost, "/v1/graph/admin/schema", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{tenant.DefaultNamespace}, tg.schema.pushed)
}

func TestHandleDropAll_SafetyViolation(t *testing.T) {
	tg := newTestGateway(t)

	w := tg.request(t, http.MethodPost, "/v1/graph/admin/dropAll", `{"confirm_namespace":"0x999"}`, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeBody[ErrorResponse](t, w)
	assert.Equal(t, CodeSafetyViolation, resp.Code)
	assert.Equal(t, 0, tg.tenants.dropAllCalls)
}

func TestHandleDropAll_Confirmed(t *testing.T) {
	tg := newTestGateway(t)

	w := tg.request(t, http.MethodPost, "/v1/graph/admin/dropAll", `{"confirm_namespace":"0x0"}`, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, tg.tenants.dropAllCalls)
}

func TestHandleClear(t *testing.T) {
	tg := newTestGateway(t)
	tg.tenants.clearNodes = 4
	tg.tenants.clearEdges = 7

	w := tg.request(t, http.MethodPost, "/v1/graph/admin/clear", `{"tenant_id":"default"}`, "")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeBody[ClearResponse](t, w)
	assert.Equal(t, tenant.DefaultNamespace, resp.Namespace)
	assert.Equal(t, 7, resp.EdgesDeleted)
	assert.Equal(t, 4, resp.NodesDeleted)
}

func TestHandleClear_MissingTenant(t *testing.T) {
	tg := newTestGateway(t)

	w := tg.request(t, http.MethodPost, "/v1/graph/admin/clear", `{}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"safety violation", &tenant.SafetyViolationError{TenantID: "t", Expected: "0x0"}, http.StatusBadRequest, CodeSafetyViolation},
		{"invalid tenant id", tenant.ErrInvalidTenantID, http.StatusBadRequest, CodeInvalidTenantID},
		{"reserved tenant", tenant.ErrReservedTenant, http.StatusBadRequest, CodeReservedTenant},
		{"not found", tenant.ErrNotFound, http.StatusNotFound, CodeTenantNotFound},
		{"already exists", tenant.ErrAlreadyExists, http.StatusConflict, CodeTenantExists},
		{"transport error", &dgraph.TransportError{Op: "GET", Err: fmt.Errorf("refused")}, http.StatusBadGateway, CodeBackingStoreFailure},
		{"unavailable", dgraph.ErrUnavailable, http.StatusBadGateway, CodeBackingStoreFailure},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := errorStatus(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}

func TestHandleCreateNode_AssignmentFailureRollsBackNode(t *testing.T) {
	tg := newTestGateway(t)
	tg.request(t, http.MethodPost, "/v1/graph/tenants", `{"tenant_id":"acme"}`, "")
	tg.exec.responses["query Hierarchy("] = `{"getHierarchy":{"id":"h1","name":"taxonomy"}}`
	tg.exec.responses["query Level("] = `{"getHierarchyLevel":{"id":"l1","levelNumber":1,"label":"root","hierarchy":{"id":"h1"},"levelTypes":[]}}`
	tg.exec.failOn = "addHierarchyAssignment"

	body := `{"name":"Mammals","node_type":"concept","hierarchy_id":"h1","level_id":"l1"}`
	w := tg.request(t, http.MethodPost, "/v1/graph/nodes", body, "acme")
	require.Equal(t, http.StatusBadGateway, w.Code)

	// The node write succeeded before the assignment failed, so the last
	// mutation must be the cleanup delete for the fresh node.
	require.NotEmpty(t, tg.exec.mutations)
	assert.Contains(t, tg.exec.mutations[len(tg.exec.mutations)-1], "deleteNode")
}

func TestWriteError_CountsErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reader := sdkmetric.NewManualReader()
	metrics, err := telemetry.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test"))
	require.NoError(t, err)

	service := NewService(ServiceConfig{
		Capabilities: &fakeCaps{},
		Tenants:      newFakeTenants(),
		Schema:       &fakeSchema{},
		Executor:     &fakeExec{},
		Connection:   &fakeConn{},
		Metrics:      metrics,
	})
	router := gin.New()
	v1 := router.Group("/v1")
	RegisterRoutes(v1, NewHandlers(service, nil))

	req := httptest.NewRequest(http.MethodDelete, "/v1/graph/tenants/ghost", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "gateway_errors_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			assert.Equal(t, int64(1), total)
			return
		}
	}
	t.Fatal("gateway_errors_total not recorded")
}
