// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dgraph

import (
	"log/slog"
	"sync/atomic"
)

// DegradationMode represents the operational mode of a component that depends
// on the backing deployment.
type DegradationMode int32

const (
	// ModeNormal indicates full functionality.
	ModeNormal DegradationMode = iota
	// ModeDegraded indicates reduced functionality.
	ModeDegraded
)

// String returns the string representation of DegradationMode.
func (m DegradationMode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// DegradationHandler is notified of deployment availability changes.
//
// Components holding namespace-derived state (capability snapshots,
// tenant-scoped handles) implement this to react when the deployment
// disappears or comes back.
//
// Thread Safety: Implementations must be safe for concurrent use.
type DegradationHandler interface {
	// OnDegraded is called when the deployment becomes unavailable.
	OnDegraded(reason string)

	// OnRecovered is called when the deployment becomes available again.
	OnRecovered()

	// Mode returns the current degradation mode.
	Mode() DegradationMode
}

// BaseDegradationHandler tracks degradation state and provides logging.
// Embed this in component-specific handlers.
//
// Thread Safety: Safe for concurrent use.
type BaseDegradationHandler struct {
	name   string
	mode   atomic.Int32
	logger *slog.Logger
}

// NewBaseDegradationHandler creates a new base handler.
func NewBaseDegradationHandler(name string, logger *slog.Logger) *BaseDegradationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BaseDegradationHandler{
		name:   name,
		logger: logger.With(slog.String("component", name)),
	}
}

// OnDegraded marks the handler as degraded.
func (h *BaseDegradationHandler) OnDegraded(reason string) {
	h.mode.Store(int32(ModeDegraded))
	h.logger.Warn("component degraded, dgraph unavailable",
		slog.String("reason", reason))
}

// OnRecovered marks the handler as normal.
func (h *BaseDegradationHandler) OnRecovered() {
	h.mode.Store(int32(ModeNormal))
	h.logger.Info("component recovered, dgraph available")
}

// Mode returns the current mode.
func (h *BaseDegradationHandler) Mode() DegradationMode {
	return DegradationMode(h.mode.Load())
}

// IsDegraded returns true if operating with reduced functionality.
func (h *BaseDegradationHandler) IsDegraded() bool {
	return h.Mode() == ModeDegraded
}
