// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics contains pre-defined metrics for the gateway.
//
// All metrics use the "gateway_" prefix for consistent naming.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// --- HTTP Metrics ---

	// HTTPRequestsTotal counts total HTTP requests by method, path, and status.
	HTTPRequestsTotal metric.Int64Counter

	// HTTPRequestDuration records HTTP request duration in seconds.
	HTTPRequestDuration metric.Float64Histogram

	// HTTPActiveRequests tracks currently active HTTP requests.
	HTTPActiveRequests metric.Int64UpDownCounter

	// --- Capability Metrics ---

	// CapabilityProbesTotal counts capability probes by result
	// (supported, unsupported, degraded).
	CapabilityProbesTotal metric.Int64Counter

	// CapabilityCacheHitsTotal counts detect() calls served from cache.
	CapabilityCacheHitsTotal metric.Int64Counter

	// --- Tenant Metrics ---

	// TenantOpsTotal counts tenant lifecycle operations by op and status.
	TenantOpsTotal metric.Int64Counter

	// TenantOpDuration records tenant lifecycle operation duration in seconds.
	TenantOpDuration metric.Float64Histogram

	// --- Placement Metrics ---

	// PlacementsTotal counts placement resolutions by branch and status.
	PlacementsTotal metric.Int64Counter

	// --- Backing Store Metrics ---

	// DgraphRequestsTotal counts outbound Dgraph calls by operation and status.
	DgraphRequestsTotal metric.Int64Counter

	// DgraphRequestDuration records outbound Dgraph call duration in seconds.
	DgraphRequestDuration metric.Float64Histogram

	// --- Error Metrics ---

	// ErrorsTotal counts errors by type and component.
	ErrorsTotal metric.Int64Counter
}

// NewMetrics creates a Metrics instance with all metrics registered against
// the provided meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"gateway_http_requests_total",
		metric.WithDescription("Total HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_requests_total: %w", err)
	}

	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"gateway_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_request_duration: %w", err)
	}

	m.HTTPActiveRequests, err = meter.Int64UpDownCounter(
		"gateway_http_active_requests",
		metric.WithDescription("Currently active HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_active_requests: %w", err)
	}

	m.CapabilityProbesTotal, err = meter.Int64Counter(
		"gateway_capability_probes_total",
		metric.WithDescription("Total capability probes by result"),
		metric.WithUnit("{probe}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create capability_probes_total: %w", err)
	}

	m.CapabilityCacheHitsTotal, err = meter.Int64Counter(
		"gateway_capability_cache_hits_total",
		metric.WithDescription("Capability detections served from cache"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create capability_cache_hits_total: %w", err)
	}

	m.TenantOpsTotal, err = meter.Int64Counter(
		"gateway_tenant_ops_total",
		metric.WithDescription("Total tenant lifecycle operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create tenant_ops_total: %w", err)
	}

	m.TenantOpDuration, err = meter.Float64Histogram(
		"gateway_tenant_op_duration_seconds",
		metric.WithDescription("Tenant lifecycle operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, fmt.Errorf("create tenant_op_duration: %w", err)
	}

	m.PlacementsTotal, err = meter.Int64Counter(
		"gateway_placements_total",
		metric.WithDescription("Total placement resolutions by branch"),
		metric.WithUnit("{placement}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create placements_total: %w", err)
	}

	m.DgraphRequestsTotal, err = meter.Int64Counter(
		"gateway_dgraph_requests_total",
		metric.WithDescription("Total outbound Dgraph calls"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create dgraph_requests_total: %w", err)
	}

	m.DgraphRequestDuration, err = meter.Float64Histogram(
		"gateway_dgraph_request_duration_seconds",
		metric.WithDescription("Outbound Dgraph call duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5),
	)
	if err != nil {
		return nil, fmt.Errorf("create dgraph_request_duration: %w", err)
	}

	m.ErrorsTotal, err = meter.Int64Counter(
		"gateway_errors_total",
		metric.WithDescription("Total errors by type and component"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create errors_total: %w", err)
	}

	return m, nil
}
