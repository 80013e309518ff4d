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
	"errors"
	"net/http"

	"github.com/AleutianAI/AleutianGraph/services/gateway/dgraph"
	"github.com/AleutianAI/AleutianGraph/services/gateway/hierarchy"
	"github.com/AleutianAI/AleutianGraph/services/gateway/tenant"
)

// Stable error codes surfaced in ErrorResponse.Code.
const (
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeInvalidTenantID     = "INVALID_TENANT_ID"
	CodeInvalidReference    = "INVALID_REFERENCE"
	CodeTypeNotAllowed      = "TYPE_NOT_ALLOWED"
	CodeMissingContext      = "MISSING_CONTEXT"
	CodeSafetyViolation     = "SAFETY_VIOLATION"
	CodeTenantNotFound      = "TENANT_NOT_FOUND"
	CodeTenantExists        = "TENANT_EXISTS"
	CodeReservedTenant      = "RESERVED_TENANT"
	CodeBackingStoreFailure = "BACKING_STORE_FAILURE"
	CodeInternal            = "INTERNAL"
)

// errorStatus maps an error from the service layer to an HTTP status and a
// stable code, per the gateway's taxonomy: client-input faults are 400/404/409,
// backing-store failures are 502, everything else is 500.
func errorStatus(err error) (int, string) {
	var (
		safetyErr *tenant.SafetyViolationError
		typeErr   *hierarchy.TypeNotAllowedError
	)

	switch {
	case errors.As(err, &safetyErr):
		return http.StatusBadRequest, CodeSafetyViolation
	case errors.As(err, &typeErr):
		return http.StatusBadRequest, CodeTypeNotAllowed

	case errors.Is(err, tenant.ErrInvalidTenantID):
		return http.StatusBadRequest, CodeInvalidTenantID
	case errors.Is(err, tenant.ErrReservedTenant):
		return http.StatusBadRequest, CodeReservedTenant
	case errors.Is(err, tenant.ErrNotFound):
		return http.StatusNotFound, CodeTenantNotFound
	case errors.Is(err, tenant.ErrAlreadyExists):
		return http.StatusConflict, CodeTenantExists

	case errors.Is(err, hierarchy.ErrInvalidHierarchyReference),
		errors.Is(err, hierarchy.ErrInvalidLevelReference),
		errors.Is(err, hierarchy.ErrParentUnassigned):
		return http.StatusBadRequest, CodeInvalidReference
	case errors.Is(err, hierarchy.ErrMissingHierarchyContext),
		errors.Is(err, hierarchy.ErrIncompletePlacementHint):
		return http.StatusBadRequest, CodeMissingContext

	case dgraph.IsTransportError(err), errors.Is(err, dgraph.ErrUnavailable):
		return http.StatusBadGateway, CodeBackingStoreFailure

	default:
		return http.StatusInternalServerError, CodeInternal
	}
}
