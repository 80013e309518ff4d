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
	"time"

	"github.com/AleutianAI/AleutianGraph/services/gateway/hierarchy"
	"github.com/AleutianAI/AleutianGraph/services/gateway/tenant"
)

// TenantHeader carries the tenant id on inbound requests.
const TenantHeader = "X-Tenant-Id"

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the error code (optional).
	Code string `json:"code,omitempty"`

	// Details provides additional error context (optional).
	Details string `json:"details,omitempty"`
}

// CapabilitiesResponse reports the detected multi-tenancy capabilities.
type CapabilitiesResponse struct {
	EnterpriseDetected  bool      `json:"enterprise_detected"`
	NamespacesSupported bool      `json:"namespaces_supported"`
	License             string    `json:"license"`
	LicenseExpiry       time.Time `json:"license_expiry,omitzero"`
	DetectedAt          time.Time `json:"detected_at"`
	Degraded            bool      `json:"degraded"`
	Error               string    `json:"error,omitempty"`
}

// CreateTenantRequest asks for a new tenant.
type CreateTenantRequest struct {
	// TenantID must be non-empty and free of whitespace and / \ ? #.
	TenantID string `json:"tenant_id" binding:"required,tenant_id"`
}

// TenantResponse describes one tenant.
type TenantResponse struct {
	TenantID  string    `json:"tenant_id"`
	Namespace string    `json:"namespace_id"`
	Reserved  bool      `json:"reserved"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// ListTenantsResponse lists all known tenants.
type ListTenantsResponse struct {
	Tenants []TenantResponse `json:"tenants"`
}

// CreateNodeRequest creates a node, optionally placed in a hierarchy.
// The placement hints select the decision branch; all are optional.
type CreateNodeRequest struct {
	// Name is the node's display name.
	Name string `json:"name" binding:"required"`

	// NodeType is checked against the target level's permitted types.
	NodeType string `json:"node_type" binding:"required"`

	// HierarchyID names the hierarchy context.
	HierarchyID string `json:"hierarchy_id,omitempty"`

	// LevelID names a concrete target level.
	LevelID string `json:"level_id,omitempty"`

	// ParentID anchors a parent-derived placement.
	ParentID string `json:"parent_id,omitempty"`
}

// CreateNodeResponse reports the created node and its placement.
type CreateNodeResponse struct {
	NodeID    string               `json:"node_id"`
	Namespace string               `json:"namespace_id"`
	Placement *hierarchy.Placement `json:"placement"`
}

// PushSchemaRequest pushes the configured schema into a tenant's namespace.
// An empty body targets the request's tenant context.
type PushSchemaRequest struct {
	TenantID string `json:"tenant_id,omitempty"`
}

// DropAllRequest wipes all data cluster-wide. ConfirmNamespace must match
// the resolved namespace of the target tenant when namespaces are supported.
type DropAllRequest struct {
	TenantID         string `json:"tenant_id,omitempty"`
	ConfirmNamespace string `json:"confirm_namespace,omitempty"`
}

// ClearRequest wipes one tenant's namespace, edges before nodes.
type ClearRequest struct {
	TenantID string `json:"tenant_id" binding:"required,tenant_id"`
}

// ClearResponse reports what a namespace clear removed.
type ClearResponse struct {
	Namespace    string `json:"namespace_id"`
	EdgesDeleted int    `json:"edges_deleted"`
	NodesDeleted int    `json:"nodes_deleted"`
}

// HealthResponse reports gateway liveness and backing-store connectivity.
type HealthResponse struct {
	Status          string `json:"status"`
	ConnectionState string `json:"connection_state"`
}

func toTenantResponse(t tenant.Tenant) TenantResponse {
	return TenantResponse{
		TenantID:  t.ID,
		Namespace: t.Namespace,
		Reserved:  tenant.IsReserved(t.ID),
		CreatedAt: t.CreatedAt,
	}
}
