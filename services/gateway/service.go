// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gateway is the orchestration layer in front of the backing graph
// deployment: capability detection, tenant lifecycle, namespace-bound request
// execution, and hierarchy placement.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/AleutianGraph/services/gateway/capability"
	"github.com/AleutianAI/AleutianGraph/services/gateway/dgraph"
	"github.com/AleutianAI/AleutianGraph/services/gateway/hierarchy"
	"github.com/AleutianAI/AleutianGraph/services/gateway/telemetry"
	"github.com/AleutianAI/AleutianGraph/services/gateway/tenant"
)

// Capabilities is the capability-probe surface the service consumes.
type Capabilities interface {
	Detect(ctx context.Context) capability.Snapshot
	Refresh(ctx context.Context) capability.Snapshot
}

// Tenants is the tenant-lifecycle surface the service consumes.
type Tenants interface {
	CreateTenant(ctx context.Context, tenantID string) (string, error)
	DeleteTenant(ctx context.Context, tenantID string, force bool) error
	Namespace(ctx context.Context, tenantID string) (string, error)
	ListTenants(ctx context.Context) ([]tenant.Tenant, error)
	DropAllData(ctx context.Context, tenantID, confirmNamespace string) error
	ClearNamespaceData(ctx context.Context, tenantID string) (nodes, edges int, err error)
}

// SchemaPusher pushes the configured schema into a namespace.
type SchemaPusher interface {
	Push(ctx context.Context, namespace string) error
}

// ConnectionReporter exposes the backing-store connection state.
type ConnectionReporter interface {
	ConnState() dgraph.ConnectionState
}

// ServiceConfig wires a Service's collaborators.
type ServiceConfig struct {
	Capabilities Capabilities
	Tenants      Tenants
	Schema       SchemaPusher
	Executor     tenant.Executor
	Connection   ConnectionReporter
	Metrics      *telemetry.Metrics
	Logger       *slog.Logger
}

// Service exposes the gateway operations consumed by the HTTP handlers and
// the operator CLI.
//
// Thread Safety: Safe for concurrent use.
type Service struct {
	caps    Capabilities
	tenants Tenants
	schema  SchemaPusher
	exec    tenant.Executor
	conn    ConnectionReporter
	metrics *telemetry.Metrics
	logger  *slog.Logger

	// The factory binding strategy is fixed per capability snapshot, so the
	// factory is rebuilt only when a newer snapshot arrives.
	factoryMu sync.Mutex
	factory   *tenant.Factory
	factoryAt time.Time
}

// NewService creates a Service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		caps:    cfg.Capabilities,
		tenants: cfg.Tenants,
		schema:  cfg.Schema,
		exec:    cfg.Executor,
		conn:    cfg.Connection,
		metrics: cfg.Metrics,
		logger:  logger.With(slog.String("component", "gateway_service")),
	}
}

// -----------------------------------------------------------------------------
// Capabilities
// -----------------------------------------------------------------------------

// Detect returns the current capability snapshot, cached within its TTL.
func (s *Service) Detect(ctx context.Context) CapabilitiesResponse {
	snap := s.caps.Detect(ctx)
	s.recordProbe(ctx, snap)
	return toCapabilitiesResponse(snap)
}

// Refresh forces a re-probe and returns the fresh snapshot.
func (s *Service) Refresh(ctx context.Context) CapabilitiesResponse {
	snap := s.caps.Refresh(ctx)
	s.recordProbe(ctx, snap)
	return toCapabilitiesResponse(snap)
}

func (s *Service) recordProbe(ctx context.Context, snap capability.Snapshot) {
	if s.metrics == nil {
		return
	}
	result := "unsupported"
	if snap.NamespacesSupported {
		result = "supported"
	}
	if snap.Degraded() {
		result = "degraded"
	}
	s.metrics.CapabilityProbesTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("result", result)))
}

func toCapabilitiesResponse(snap capability.Snapshot) CapabilitiesResponse {
	return CapabilitiesResponse{
		EnterpriseDetected:  snap.EnterpriseDetected,
		NamespacesSupported: snap.NamespacesSupported,
		License:             snap.License.String(),
		LicenseExpiry:       snap.LicenseExpiry,
		DetectedAt:          snap.DetectedAt,
		Degraded:            snap.Degraded(),
		Error:               snap.Err,
	}
}

// -----------------------------------------------------------------------------
// Tenant Lifecycle
// -----------------------------------------------------------------------------

// CreateTenant allocates a namespace for the tenant and returns its record.
func (s *Service) CreateTenant(ctx context.Context, tenantID string) (TenantResponse, error) {
	start := time.Now()
	namespace, err := s.tenants.CreateTenant(ctx, tenantID)
	s.recordTenantOp(ctx, "create", start, err)
	if err != nil {
		return TenantResponse{}, err
	}
	return TenantResponse{TenantID: tenantID, Namespace: namespace}, nil
}

// DeleteTenant wipes the tenant's namespace and removes its record.
func (s *Service) DeleteTenant(ctx context.Context, tenantID string, force bool) error {
	start := time.Now()
	err := s.tenants.DeleteTenant(ctx, tenantID, force)
	s.recordTenantOp(ctx, "delete", start, err)
	return err
}

// ListTenants lists all known tenants, reserved ones first.
func (s *Service) ListTenants(ctx context.Context) (ListTenantsResponse, error) {
	tenants, err := s.tenants.ListTenants(ctx)
	if err != nil {
		return ListTenantsResponse{}, err
	}
	resp := ListTenantsResponse{Tenants: make([]TenantResponse, 0, len(tenants))}
	for _, t := range tenants {
		resp.Tenants = append(resp.Tenants, toTenantResponse(t))
	}
	return resp, nil
}

// DropAllData performs the confirmed cluster-wide wipe.
func (s *Service) DropAllData(ctx context.Context, tenantID, confirmNamespace string) error {
	start := time.Now()
	err := s.tenants.DropAllData(ctx, tenantID, confirmNamespace)
	s.recordTenantOp(ctx, "drop_all", start, err)
	return err
}

// ClearNamespaceData wipes one tenant's namespace, edges before nodes.
func (s *Service) ClearNamespaceData(ctx context.Context, tenantID string) (ClearResponse, error) {
	start := time.Now()
	namespace, err := s.tenants.Namespace(ctx, tenantID)
	if err != nil {
		s.recordTenantOp(ctx, "clear", start, err)
		return ClearResponse{}, err
	}
	nodes, edges, err := s.tenants.ClearNamespaceData(ctx, tenantID)
	s.recordTenantOp(ctx, "clear", start, err)
	if err != nil {
		return ClearResponse{}, err
	}
	return ClearResponse{
		Namespace:    namespace,
		EdgesDeleted: edges,
		NodesDeleted: nodes,
	}, nil
}

// PushSchema pushes the configured schema into the tenant's namespace.
func (s *Service) PushSchema(ctx context.Context, tenantID string) error {
	if tenantID == "" {
		tenantID = tenant.DefaultTenantID
	}
	namespace, err := s.tenants.Namespace(ctx, tenantID)
	if err != nil {
		return err
	}
	return s.schema.Push(ctx, namespace)
}

func (s *Service) recordTenantOp(ctx context.Context, op string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("status", status))
	s.metrics.TenantOpsTotal.Add(ctx, 1, attrs)
	s.metrics.TenantOpDuration.Record(ctx, time.Since(start).Seconds(), attrs)
}

// -----------------------------------------------------------------------------
// Request Execution
// -----------------------------------------------------------------------------

// ClientFromContext binds an execution handle for the request's tenant
// context, consulting the current capability snapshot.
func (s *Service) ClientFromContext(ctx context.Context) (tenant.Client, error) {
	return s.currentFactory(ctx).FromContext(ctx)
}

// currentFactory returns a factory built against the freshest snapshot,
// rebuilding only when a newer snapshot has been detected.
func (s *Service) currentFactory(ctx context.Context) *tenant.Factory {
	snap := s.caps.Detect(ctx)

	s.factoryMu.Lock()
	defer s.factoryMu.Unlock()
	if s.factory == nil || snap.DetectedAt.After(s.factoryAt) {
		resolver, _ := s.tenants.(tenant.NamespaceResolver)
		if resolver == nil {
			resolver = namespaceFunc(s.tenants.Namespace)
		}
		s.factory = tenant.NewFactory(s.exec, resolver, snap, s.logger)
		s.factoryAt = snap.DetectedAt
	}
	return s.factory
}

type namespaceFunc func(ctx context.Context, tenantID string) (string, error)

func (f namespaceFunc) Namespace(ctx context.Context, tenantID string) (string, error) {
	return f(ctx, tenantID)
}

// -----------------------------------------------------------------------------
// Node Creation
// -----------------------------------------------------------------------------

const (
	addNodeMutation = `mutation AddNode($input: [AddNodeInput!]!) {
  addNode(input: $input) {
    node {
      id
    }
  }
}`

	addAssignmentMutation = `mutation AddAssignment($input: [AddHierarchyAssignmentInput!]!) {
  addHierarchyAssignment(input: $input) {
    numUids
  }
}`

	deleteNodeMutation = `mutation DeleteNode($filter: NodeFilter!) {
  deleteNode(filter: $filter) {
    numUids
  }
}`
)

// CreateNode resolves the node's placement, persists the node in the
// request's namespace, and records the assignment when one was resolved.
// When the assignment write fails, the freshly created node is deleted
// again so no unassigned node is left behind; the deletion is best effort
// and a failure to clean up is logged, not returned.
func (s *Service) CreateNode(ctx context.Context, req CreateNodeRequest) (*CreateNodeResponse, error) {
	handle, err := s.ClientFromContext(ctx)
	if err != nil {
		return nil, err
	}

	resolver := hierarchy.NewResolver(hierarchy.NewGraphStore(handle), s.logger)
	placement, err := resolver.Resolve(ctx, hierarchy.Request{
		NodeType:    req.NodeType,
		HierarchyID: req.HierarchyID,
		LevelID:     req.LevelID,
		ParentID:    req.ParentID,
	})
	s.recordPlacement(ctx, placement, err)
	if err != nil {
		return nil, err
	}

	nodeID, err := s.persistNode(ctx, handle, req)
	if err != nil {
		return nil, err
	}

	if placement.Assigned {
		if err := s.persistAssignment(ctx, handle, nodeID, placement); err != nil {
			s.rollbackNode(ctx, handle, nodeID)
			return nil, err
		}
	}

	s.logger.Info("node created",
		slog.String("node_id", nodeID),
		slog.String("tenant_id", handle.TenantID()),
		slog.String("branch", placement.Branch.String()))
	return &CreateNodeResponse{
		NodeID:    nodeID,
		Namespace: handle.Namespace(),
		Placement: placement,
	}, nil
}

func (s *Service) persistNode(ctx context.Context, handle tenant.Client, req CreateNodeRequest) (string, error) {
	input := []map[string]any{{
		"name":     req.Name,
		"nodeType": req.NodeType,
	}}
	resp, err := handle.Mutate(ctx, addNodeMutation, map[string]any{"input": input})
	if err != nil {
		return "", fmt.Errorf("persist node: %w", err)
	}

	var data struct {
		AddNode struct {
			Node []struct {
				ID string `json:"id"`
			} `json:"node"`
		} `json:"addNode"`
	}
	if err := resp.Decode(&data); err != nil {
		return "", fmt.Errorf("decode node creation: %w", err)
	}
	if len(data.AddNode.Node) == 0 {
		return "", fmt.Errorf("persist node: no node returned")
	}
	return data.AddNode.Node[0].ID, nil
}

func (s *Service) persistAssignment(ctx context.Context, handle tenant.Client, nodeID string, placement *hierarchy.Placement) error {
	input := []map[string]any{{
		"node":      map[string]any{"id": nodeID},
		"hierarchy": map[string]any{"id": placement.HierarchyID},
		"level":     map[string]any{"id": placement.LevelID},
	}}
	if _, err := handle.Mutate(ctx, addAssignmentMutation, map[string]any{"input": input}); err != nil {
		return fmt.Errorf("persist assignment: %w", err)
	}
	return nil
}

// rollbackNode removes a node whose assignment could not be recorded.
func (s *Service) rollbackNode(ctx context.Context, handle tenant.Client, nodeID string) {
	filter := map[string]any{"id": []string{nodeID}}
	if _, err := handle.Mutate(ctx, deleteNodeMutation, map[string]any{"filter": filter}); err != nil {
		s.logger.Warn("node rollback failed, unassigned node left behind",
			slog.String("node_id", nodeID),
			slog.String("tenant_id", handle.TenantID()),
			slog.String("error", err.Error()))
	}
}

func (s *Service) recordPlacement(ctx context.Context, placement *hierarchy.Placement, err error) {
	if s.metrics == nil {
		return
	}
	branch := "rejected"
	status := "error"
	if err == nil {
		branch = placement.Branch.String()
		status = "ok"
	}
	s.metrics.PlacementsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("branch", branch),
		attribute.String("status", status)))
}

// -----------------------------------------------------------------------------
// Health
// -----------------------------------------------------------------------------

// Health reports gateway liveness and the backing-store connection state.
func (s *Service) Health() HealthResponse {
	state := dgraph.StateDegraded
	if s.conn != nil {
		state = s.conn.ConnState()
	}
	status := "ok"
	if state != dgraph.StateConnected {
		status = "degraded"
	}
	return HealthResponse{
		Status:          status,
		ConnectionState: state.String(),
	}
}
