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
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/AleutianGraph/services/gateway/tenant"
)

var registerValidatorsOnce sync.Once

// RegisterValidators installs the gateway's custom binding rules with gin's
// validator engine. Safe to call more than once.
func RegisterValidators() {
	registerValidatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		// tenant_id: non-empty, transport-safe characters only.
		_ = v.RegisterValidation("tenant_id", func(fl validator.FieldLevel) bool {
			id := fl.Field().String()
			return tenant.ValidateID(strings.TrimSpace(id)) == nil && id == strings.TrimSpace(id)
		})
	})
}

// RegisterRoutes registers all gateway routes with the router.
//
// Endpoints:
//
//	GET    /v1/graph/health                  liveness + connection state
//	GET    /v1/graph/capabilities            cached capability detection
//	POST   /v1/graph/capabilities/refresh    forced re-probe
//	GET    /v1/graph/tenants                 list tenants
//	POST   /v1/graph/tenants                 create tenant
//	DELETE /v1/graph/tenants/:id             delete tenant (?force=true)
//	POST   /v1/graph/nodes                   create node with placement
//	POST   /v1/graph/admin/schema            push schema
//	POST   /v1/graph/admin/dropAll           confirmed cluster wipe
//	POST   /v1/graph/admin/clear             namespace-scoped clear
//
// The tenant context middleware reads X-Tenant-Id on every route.
//
// Example:
//
//	service := gateway.NewService(serviceConfig)
//	handlers := gateway.NewHandlers(service, logger)
//
//	v1 := router.Group("/v1")
//	gateway.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	RegisterValidators()

	graph := rg.Group("/graph")
	graph.Use(h.TenantContext)
	{
		graph.GET("/health", h.HandleHealth)

		graph.GET("/capabilities", h.HandleCapabilities)
		graph.POST("/capabilities/refresh", h.HandleRefreshCapabilities)

		graph.GET("/tenants", h.HandleListTenants)
		graph.POST("/tenants", h.HandleCreateTenant)
		graph.DELETE("/tenants/:id", h.HandleDeleteTenant)

		graph.POST("/nodes", h.HandleCreateNode)

		admin := graph.Group("/admin")
		{
			admin.POST("/schema", h.HandlePushSchema)
			admin.POST("/dropAll", h.HandleDropAll)
			admin.POST("/clear", h.HandleClear)
		}
	}
}
