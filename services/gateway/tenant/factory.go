// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tenant

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/AleutianGraph/services/gateway/capability"
	"github.com/AleutianAI/AleutianGraph/services/gateway/dgraph"
)

// Client is a namespace-bound execution handle. Every query and mutation it
// carries out runs inside its namespace; the binding never changes over the
// handle's lifetime.
type Client interface {
	// Query executes a GraphQL query in the bound namespace.
	Query(ctx context.Context, query string, vars map[string]any) (*dgraph.Response, error)

	// Mutate executes a GraphQL mutation in the bound namespace.
	Mutate(ctx context.Context, mutation string, vars map[string]any) (*dgraph.Response, error)

	// TenantID is the tenant this handle was requested for.
	TenantID() string

	// Namespace is the namespace the handle is actually bound to. Under
	// single-tenant degradation this is the default namespace regardless
	// of the requested tenant.
	Namespace() string
}

// Executor is the slice of the Dgraph client that handles execute against.
type Executor interface {
	Query(ctx context.Context, query string, vars map[string]any, namespace string) (*dgraph.Response, error)
	Mutate(ctx context.Context, mutation string, vars map[string]any, namespace string) (*dgraph.Response, error)
}

// NamespaceResolver resolves tenant ids to namespaces (the registry).
type NamespaceResolver interface {
	Namespace(ctx context.Context, tenantID string) (string, error)
}

// Factory produces namespace-bound execution handles.
//
// The binding strategy is chosen once, at construction time, from the
// capability snapshot: when the deployment does not support namespaces every
// handle binds to the default namespace regardless of the requested tenant.
// That is a deliberate degrade-to-single-tenant policy, not an error.
//
// Thread Safety: Safe for concurrent use.
type Factory struct {
	exec       Executor
	resolver   NamespaceResolver
	namespaced bool
	logger     *slog.Logger
}

// NewFactory creates a Factory with the strategy picked from snapshot.
func NewFactory(exec Executor, resolver NamespaceResolver, snapshot capability.Snapshot, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "tenant_client_factory"))

	if !snapshot.NamespacesSupported {
		logger.Warn("namespaces unsupported, all handles bind to the default namespace",
			slog.Bool("enterprise", snapshot.EnterpriseDetected),
			slog.Bool("degraded_probe", snapshot.Degraded()))
	}

	return &Factory{
		exec:       exec,
		resolver:   resolver,
		namespaced: snapshot.NamespacesSupported,
		logger:     logger,
	}
}

// FromContext produces a handle for the tenant carried by the request
// context, falling back to the default tenant when none was declared.
func (f *Factory) FromContext(ctx context.Context) (Client, error) {
	tenantID := FromContext(ctx)
	if tenantID == "" {
		return f.Default(), nil
	}
	return f.ForTenant(ctx, tenantID)
}

// Default produces a handle bound to the default namespace.
func (f *Factory) Default() Client {
	return &handle{
		exec:      f.exec,
		tenantID:  DefaultTenantID,
		namespace: DefaultNamespace,
	}
}

// ForTenant produces a handle for an explicit tenant id.
func (f *Factory) ForTenant(ctx context.Context, tenantID string) (Client, error) {
	if err := ValidateID(tenantID); err != nil {
		return nil, err
	}

	if !f.namespaced {
		if tenantID != DefaultTenantID {
			f.logger.Debug("binding tenant to default namespace (single-tenant mode)",
				slog.String("tenant_id", tenantID))
		}
		return &handle{
			exec:      f.exec,
			tenantID:  tenantID,
			namespace: DefaultNamespace,
		}, nil
	}

	namespace, err := f.resolver.Namespace(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("resolve namespace for tenant %q: %w", tenantID, err)
	}
	return &handle{
		exec:      f.exec,
		tenantID:  tenantID,
		namespace: namespace,
	}, nil
}

// handle is the single Client implementation. The factory decides the
// namespace binding up front; the handle never re-resolves it.
type handle struct {
	exec      Executor
	tenantID  string
	namespace string
}

func (h *handle) Query(ctx context.Context, query string, vars map[string]any) (*dgraph.Response, error) {
	return h.exec.Query(ctx, query, vars, h.namespace)
}

func (h *handle) Mutate(ctx context.Context, mutation string, vars map[string]any) (*dgraph.Response, error) {
	return h.exec.Mutate(ctx, mutation, vars, h.namespace)
}

func (h *handle) TenantID() string  { return h.tenantID }
func (h *handle) Namespace() string { return h.namespace }
