// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tenant manages the mapping from tenant identifiers to isolated
// namespaces in the backing deployment, and produces namespace-bound
// execution handles for request processing.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Reserved tenant identifiers and their fixed namespaces. These exist on
// every deployment without a registry record and are protected from deletion.
const (
	DefaultTenantID  = "default"
	TestTenantID     = "test-tenant"
	DefaultNamespace = "0x0"
	TestNamespace    = "0x1"
)

// Sentinel errors for tenant lifecycle operations.
var (
	// ErrAlreadyExists indicates the tenant id is already registered.
	ErrAlreadyExists = errors.New("tenant already exists")

	// ErrNotFound indicates the tenant id is not registered.
	ErrNotFound = errors.New("tenant not found")

	// ErrReservedTenant indicates a protected tenant was targeted for
	// deletion without the override flag.
	ErrReservedTenant = errors.New("tenant is reserved and protected from deletion")

	// ErrInvalidTenantID indicates the tenant id failed validation.
	ErrInvalidTenantID = errors.New("invalid tenant id")
)

// SafetyViolationError indicates a destructive cluster-wide operation was
// attempted without a validated, matching namespace confirmation. The check
// runs before any side effect.
type SafetyViolationError struct {
	TenantID string
	Expected string
	Got      string
}

func (e *SafetyViolationError) Error() string {
	if e.Got == "" {
		return fmt.Sprintf(
			"namespace confirmation required: supply confirm_namespace %q for tenant %q",
			e.Expected, e.TenantID)
	}
	return fmt.Sprintf(
		"namespace confirmation mismatch: expected %q for tenant %q, got %q",
		e.Expected, e.TenantID, e.Got)
}

// Tenant is the registry record mapping a tenant to its namespace.
type Tenant struct {
	ID        string    `json:"tenant_id"`
	Namespace string    `json:"namespace_id"`
	CreatedAt time.Time `json:"created_at"`
}

// IsReserved reports whether the id is a protected tenant.
func IsReserved(tenantID string) bool {
	return tenantID == DefaultTenantID || tenantID == TestTenantID
}

// invalidIDChars would break header transport or namespace derivation.
const invalidIDChars = " \t\n\r/\\?#"

// ValidateID checks a tenant identifier for transport-safe characters.
func ValidateID(tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: must not be empty", ErrInvalidTenantID)
	}
	if i := strings.IndexAny(tenantID, invalidIDChars); i >= 0 {
		return fmt.Errorf("%w: must not contain %q", ErrInvalidTenantID, tenantID[i])
	}
	return nil
}

// reservedNamespace returns the fixed namespace for a reserved tenant, or ""
// when the tenant is not reserved.
func reservedNamespace(tenantID string) string {
	switch tenantID {
	case DefaultTenantID:
		return DefaultNamespace
	case TestTenantID:
		return TestNamespace
	default:
		return ""
	}
}

// -----------------------------------------------------------------------------
// Request Context
// -----------------------------------------------------------------------------

type ctxKey struct{}

// WithTenantID returns a context carrying the request's tenant id.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, tenantID)
}

// FromContext returns the tenant id carried by the context, or "" when the
// request did not declare one.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
