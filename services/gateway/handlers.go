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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/AleutianGraph/services/gateway/tenant"
)

// Handlers holds the HTTP handlers for the gateway endpoints.
type Handlers struct {
	service *Service
	logger  *slog.Logger
}

// NewHandlers creates the gateway handlers.
func NewHandlers(service *Service, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		service: service,
		logger:  logger.With(slog.String("component", "gateway_handlers")),
	}
}

// TenantContext reads the X-Tenant-Id header, validates it, and stores it on
// the request context for downstream namespace binding. Requests without the
// header proceed under the default tenant.
func (h *Handlers) TenantContext(c *gin.Context) {
	tenantID := c.GetHeader(TenantHeader)
	if tenantID == "" {
		c.Next()
		return
	}
	if err := tenant.ValidateID(tenantID); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  CodeInvalidTenantID,
		})
		return
	}
	ctx := tenant.WithTenantID(c.Request.Context(), tenantID)
	c.Request = c.Request.WithContext(ctx)
	c.Next()
}

// HandleHealth handles GET /v1/graph/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Health())
}

// HandleCapabilities handles GET /v1/graph/capabilities.
//
// Returns the cached snapshot while it is within its TTL; otherwise probes.
// A degraded probe is reported in the body, never as an HTTP error.
func (h *Handlers) HandleCapabilities(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Detect(c.Request.Context()))
}

// HandleRefreshCapabilities handles POST /v1/graph/capabilities/refresh.
func (h *Handlers) HandleRefreshCapabilities(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Refresh(c.Request.Context()))
}

// HandleListTenants handles GET /v1/graph/tenants.
func (h *Handlers) HandleListTenants(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With(slog.String("request_id", requestID), slog.String("handler", "HandleListTenants"))

	resp, err := h.service.ListTenants(c.Request.Context())
	if err != nil {
		h.writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleCreateTenant handles POST /v1/graph/tenants.
func (h *Handlers) HandleCreateTenant(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With(slog.String("request_id", requestID), slog.String("handler", "HandleCreateTenant"))

	var req CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body",
			Code:  CodeInvalidRequest,
		})
		return
	}

	resp, err := h.service.CreateTenant(c.Request.Context(), req.TenantID)
	if err != nil {
		h.writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// HandleDeleteTenant handles DELETE /v1/graph/tenants/:id.
//
// Reserved tenants are refused unless ?force=true, which wipes their data
// while keeping the tenant resolvable.
func (h *Handlers) HandleDeleteTenant(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With(slog.String("request_id", requestID), slog.String("handler", "HandleDeleteTenant"))

	tenantID := c.Param("id")
	force := c.Query("force") == "true"

	if err := h.service.DeleteTenant(c.Request.Context(), tenantID, force); err != nil {
		h.writeError(c, logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleCreateNode handles POST /v1/graph/nodes.
//
// Runs the placement decision chain for the request's hints, then persists
// the node and any resolved assignment in the tenant's namespace.
func (h *Handlers) HandleCreateNode(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With(slog.String("request_id", requestID), slog.String("handler", "HandleCreateNode"))

	var req CreateNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body",
			Code:  CodeInvalidRequest,
		})
		return
	}

	resp, err := h.service.CreateNode(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// HandlePushSchema handles POST /v1/graph/admin/schema.
func (h *Handlers) HandlePushSchema(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With(slog.String("request_id", requestID), slog.String("handler", "HandlePushSchema"))

	var req PushSchemaRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		logger.Warn("invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body",
			Code:  CodeInvalidRequest,
		})
		return
	}

	tenantID := req.TenantID
	if tenantID == "" {
		tenantID = tenant.FromContext(c.Request.Context())
	}

	if err := h.service.PushSchema(c.Request.Context(), tenantID); err != nil {
		h.writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "schema pushed"})
}

// HandleDropAll handles POST /v1/graph/admin/dropAll.
//
// The confirmation namespace is checked against the tenant's resolved
// namespace before anything is destroyed.
func (h *Handlers) HandleDropAll(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With(slog.String("request_id", requestID), slog.String("handler", "HandleDropAll"))

	var req DropAllRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		logger.Warn("invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body",
			Code:  CodeInvalidRequest,
		})
		return
	}

	tenantID := req.TenantID
	if tenantID == "" {
		tenantID = tenant.FromContext(c.Request.Context())
	}

	if err := h.service.DropAllData(c.Request.Context(), tenantID, req.ConfirmNamespace); err != nil {
		h.writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "all data dropped"})
}

// HandleClear handles POST /v1/graph/admin/clear.
func (h *Handlers) HandleClear(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With(slog.String("request_id", requestID), slog.String("handler", "HandleClear"))

	var req ClearRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body",
			Code:  CodeInvalidRequest,
		})
		return
	}

	resp, err := h.service.ClearNamespaceData(c.Request.Context(), req.TenantID)
	if err != nil {
		h.writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// writeError maps a service error to the gateway's HTTP taxonomy.
func (h *Handlers) writeError(c *gin.Context, logger *slog.Logger, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", slog.String("error", err.Error()), slog.Int("status", status))
	} else {
		logger.Warn("request rejected", slog.String("error", err.Error()), slog.Int("status", status))
	}
	if h.service.metrics != nil {
		h.service.metrics.ErrorsTotal.Add(c.Request.Context(), 1, metric.WithAttributes(
			attribute.String("code", code),
			attribute.String("component", "http")))
	}
	c.JSON(status, ErrorResponse{
		Error: err.Error(),
		Code:  code,
	})
}

// getOrCreateRequestID gets or creates a request ID.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
