// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package capability detects the multi-tenancy features of the backing
// deployment and caches the result with a time-to-live.
//
// Detection is inherently heuristic against an external system: the namespace
// probe inspects an administrative response shape through a swappable
// classifier, and every failure degrades to a conservative snapshot rather
// than an error.
package capability

import "time"

// LicenseType classifies the deployment's license state.
type LicenseType int

const (
	// LicenseUnknown means the license surface could not be read.
	LicenseUnknown LicenseType = iota
	// LicenseNone means enterprise features are disabled.
	LicenseNone
	// LicenseTrial means enterprise features are enabled without an
	// identifying license holder.
	LicenseTrial
	// LicenseLicensed means a named license is active.
	LicenseLicensed
)

// String returns the string representation of LicenseType.
func (t LicenseType) String() string {
	switch t {
	case LicenseNone:
		return "none"
	case LicenseTrial:
		return "trial"
	case LicenseLicensed:
		return "licensed"
	default:
		return "unknown"
	}
}

// Snapshot is a point-in-time record of detected deployment features.
//
// A Snapshot is immutable once produced; a re-probe supersedes it with a new
// value, never mutates it in place.
type Snapshot struct {
	// EnterpriseDetected is true when the health surface reported a
	// non-empty feature-indicator list.
	EnterpriseDetected bool `json:"enterprise_detected"`

	// NamespacesSupported is true when the namespace probe classified the
	// administrative surface as namespace-aware.
	NamespacesSupported bool `json:"namespaces_supported"`

	// License is the classified license state.
	License LicenseType `json:"-"`

	// LicenseExpiry is the parsed license expiry, zero when absent.
	LicenseExpiry time.Time `json:"license_expiry,omitzero"`

	// DetectedAt is when the probe ran.
	DetectedAt time.Time `json:"detected_at"`

	// Err describes the probe failure that degraded this snapshot, empty on
	// a clean probe.
	Err string `json:"error,omitempty"`
}

// Degraded reports whether this snapshot was produced under a probe failure
// and therefore carries conservative defaults.
func (s Snapshot) Degraded() bool { return s.Err != "" }

// FreshAt reports whether the snapshot is still within its TTL window at now.
func (s Snapshot) FreshAt(now time.Time, ttl time.Duration) bool {
	return !s.DetectedAt.IsZero() && now.Sub(s.DetectedAt) < ttl
}
