// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package capability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/AleutianGraph/services/gateway/dgraph"
	"github.com/AleutianAI/AleutianGraph/services/gateway/telemetry"
)

// namespaceProbeQuery exercises an administrative read under an explicit
// namespace so the response shape reveals whether the parameter is recognized.
const namespaceProbeQuery = `query { state { namespaces } }`

// probeNamespace is the representative namespace used for the probe. The
// default namespace always exists on namespace-aware deployments.
const probeNamespace = "0x0"

// Store is the slice of the Dgraph client the prober consumes.
type Store interface {
	Health(ctx context.Context) ([]dgraph.HealthStatus, error)
	State(ctx context.Context) (*dgraph.ClusterState, error)
	Admin(ctx context.Context, query string, vars map[string]any, namespace string) (*dgraph.Response, error)
}

// Config configures a Prober.
type Config struct {
	// TTL is how long a snapshot is served from cache.
	// Default: 5 minutes
	TTL time.Duration

	// Classifier turns namespace-probe responses into outcomes.
	// Default: ResponseShapeClassifier
	Classifier ProbeClassifier

	// Logger for probe operations.
	// Default: slog.Default()
	Logger *slog.Logger

	// Metrics records cache hits when set.
	// Default: nil (no recording)
	Metrics *telemetry.Metrics
}

// DefaultConfig returns sensible defaults for production use.
func DefaultConfig() Config {
	return Config{
		TTL:        5 * time.Minute,
		Classifier: ResponseShapeClassifier{},
		Logger:     slog.Default(),
	}
}

func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.TTL == 0 {
		c.TTL = defaults.TTL
	}
	if c.Classifier == nil {
		c.Classifier = defaults.Classifier
	}
	if c.Logger == nil {
		c.Logger = defaults.Logger
	}
}

// Prober detects deployment capabilities and caches the snapshot.
//
// The prober is an explicitly owned object, not a process-wide singleton, so
// tests can construct isolated instances and drive staleness deterministically.
// It never returns an error: probe failures degrade to a conservative snapshot
// with the Err field populated.
//
// Thread Safety: Safe for concurrent use. Concurrent cold callers share a
// single in-flight probe.
type Prober struct {
	*dgraph.BaseDegradationHandler

	store      Store
	ttl        time.Duration
	classifier ProbeClassifier
	logger     *slog.Logger
	metrics    *telemetry.Metrics

	mu     sync.RWMutex
	cached *Snapshot

	group singleflight.Group

	// now is injectable for TTL tests.
	now func() time.Time
}

// NewProber creates a Prober over the given store.
func NewProber(store Store, config Config) *Prober {
	config.applyDefaults()
	return &Prober{
		BaseDegradationHandler: dgraph.NewBaseDegradationHandler("capability_probe", config.Logger),
		store:                  store,
		ttl:                    config.TTL,
		classifier:             config.Classifier,
		logger:                 config.Logger.With(slog.String("component", "capability_probe")),
		metrics:                config.Metrics,
		now:                    time.Now,
	}
}

// Detect returns the current capability snapshot, serving the cache when it is
// still within its TTL window and probing otherwise.
func (p *Prober) Detect(ctx context.Context) Snapshot {
	if snap := p.Cached(); snap != nil && snap.FreshAt(p.now(), p.ttl) {
		if p.metrics != nil {
			p.metrics.CapabilityCacheHitsTotal.Add(ctx, 1)
		}
		return *snap
	}
	return p.Refresh(ctx)
}

// Refresh forces a re-probe and replaces the cached snapshot.
//
// Concurrent callers share one probe; each receives the resulting snapshot.
func (p *Prober) Refresh(ctx context.Context) Snapshot {
	v, _, _ := p.group.Do("probe", func() (any, error) {
		snap := p.probe(ctx)
		p.mu.Lock()
		p.cached = &snap
		p.mu.Unlock()
		return snap, nil
	})
	return v.(Snapshot)
}

// Cached returns the last snapshot regardless of freshness, or nil when no
// probe has run yet.
func (p *Prober) Cached() *Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.cached == nil {
		return nil
	}
	snap := *p.cached
	return &snap
}

// OnRecovered drops the cached snapshot so the next Detect re-probes instead
// of serving capabilities recorded while the deployment was unreachable.
func (p *Prober) OnRecovered() {
	p.BaseDegradationHandler.OnRecovered()
	p.mu.Lock()
	p.cached = nil
	p.mu.Unlock()
}

// probe runs the full detection chain. The enterprise/namespace chain and the
// license surface are probed independently so a transport failure on one does
// not lose the other.
func (p *Prober) probe(ctx context.Context) Snapshot {
	snap := Snapshot{DetectedAt: p.now()}

	var (
		probeMu  sync.Mutex
		probeErr error
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		statuses, err := p.store.Health(gctx)
		if err != nil {
			// Fail closed: no enterprise, no namespaces.
			probeMu.Lock()
			probeErr = err
			probeMu.Unlock()
			return nil
		}
		if !hasFeatureIndicators(statuses) {
			return nil
		}
		snap.EnterpriseDetected = true

		resp, err := p.store.Admin(gctx, namespaceProbeQuery, nil, probeNamespace)
		outcome := p.classifier.Classify(resp, err)
		snap.NamespacesSupported = outcome == OutcomeSupported
		if outcome == OutcomeInconclusive && err != nil {
			probeMu.Lock()
			probeErr = err
			probeMu.Unlock()
		}
		return nil
	})

	g.Go(func() error {
		state, err := p.store.State(gctx)
		if err != nil {
			snap.License = LicenseUnknown
			return nil
		}
		snap.License, snap.LicenseExpiry = classifyLicense(state.License)
		return nil
	})

	_ = g.Wait()

	if probeErr != nil {
		snap.EnterpriseDetected = false
		snap.NamespacesSupported = false
		snap.Err = probeErr.Error()
		p.logger.Warn("capability probe degraded",
			slog.String("error", snap.Err))
	} else {
		p.logger.Info("capability probe completed",
			slog.Bool("enterprise", snap.EnterpriseDetected),
			slog.Bool("namespaces", snap.NamespacesSupported),
			slog.String("license", snap.License.String()))
	}

	return snap
}

// hasFeatureIndicators reports whether any instance advertises a non-empty
// feature-indicator list.
func hasFeatureIndicators(statuses []dgraph.HealthStatus) bool {
	for _, s := range statuses {
		if len(s.EEFeatures) > 0 {
			return true
		}
	}
	return false
}

// classifyLicense maps the license block to a LicenseType.
func classifyLicense(lic *dgraph.License) (LicenseType, time.Time) {
	if lic == nil || !lic.Enabled {
		return LicenseNone, time.Time{}
	}
	var expiry time.Time
	if lic.ExpiryTs > 0 {
		expiry = time.Unix(lic.ExpiryTs, 0).UTC()
	}
	if lic.User == "" {
		return LicenseTrial, expiry
	}
	return LicenseLicensed, expiry
}
