// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package schema loads the GraphQL schema from disk, pushes it into
// namespaces, and keeps the default namespace current when the file changes.
package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianGraph/services/gateway/dgraph"
)

// ErrSchemaNotReady indicates the deployment did not finish processing a
// pushed schema within the wait window.
var ErrSchemaNotReady = errors.New("schema not ready")

// Pusher is the slice of the Dgraph client that accepts schema pushes.
type Pusher interface {
	PushSchema(ctx context.Context, schema string, namespace string) error
	Admin(ctx context.Context, query string, vars map[string]any, namespace string) (*dgraph.Response, error)
}

// Config configures the schema manager.
type Config struct {
	// Path is the schema file on disk.
	Path string

	// WaitInterval is the polling interval while waiting for a pushed
	// schema to become queryable. Defaults to 500ms.
	WaitInterval time.Duration

	// WaitTimeout bounds the total wait after a push. Defaults to 30s.
	WaitTimeout time.Duration

	// Logger for schema operations.
	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.WaitInterval <= 0 {
		c.WaitInterval = 500 * time.Millisecond
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager reads the schema file and pushes it into namespaces.
//
// Thread Safety: Safe for concurrent use; the file is re-read per call.
type Manager struct {
	path         string
	pusher       Pusher
	waitInterval time.Duration
	waitTimeout  time.Duration
	logger       *slog.Logger
}

// NewManager creates a Manager.
func NewManager(pusher Pusher, cfg Config) (*Manager, error) {
	if cfg.Path == "" {
		return nil, errors.New("schema path required")
	}
	cfg.applyDefaults()

	return &Manager{
		path:         cfg.Path,
		pusher:       pusher,
		waitInterval: cfg.WaitInterval,
		waitTimeout:  cfg.WaitTimeout,
		logger:       cfg.Logger.With(slog.String("component", "schema_manager")),
	}, nil
}

// Schema returns the current schema text from disk.
func (m *Manager) Schema(_ context.Context) (string, error) {
	raw, err := os.ReadFile(m.path)
	if err != nil {
		return "", fmt.Errorf("read schema file: %w", err)
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return "", fmt.Errorf("schema file %s is empty", m.path)
	}
	return text, nil
}

// Push loads the schema from disk, pushes it into the namespace, and waits
// until the deployment reports it as active.
func (m *Manager) Push(ctx context.Context, namespace string) error {
	text, err := m.Schema(ctx)
	if err != nil {
		return err
	}
	if err := m.pusher.PushSchema(ctx, text, namespace); err != nil {
		return fmt.Errorf("push schema to namespace %s: %w", namespace, err)
	}
	m.logger.Info("schema pushed",
		slog.String("namespace", namespace),
		slog.Int("bytes", len(text)))

	return m.WaitForSchema(ctx, namespace)
}

// getSchemaQuery asks the admin surface for the active GraphQL schema.
// A push is complete once the returned schema text is non-empty.
const getSchemaQuery = `query {
  getGQLSchema {
    schema
  }
}`

// WaitForSchema polls the admin surface until the pushed schema is active.
// Schema processing is asynchronous on the deployment side; queries issued
// before it completes fail with resolution errors.
func (m *Manager) WaitForSchema(ctx context.Context, namespace string) error {
	ctx, cancel := context.WithTimeout(ctx, m.waitTimeout)
	defer cancel()

	ticker := time.NewTicker(m.waitInterval)
	defer ticker.Stop()

	for {
		active, err := m.schemaActive(ctx, namespace)
		if err == nil && active {
			return nil
		}
		if err != nil {
			m.logger.Debug("schema not yet active",
				slog.String("namespace", namespace),
				slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: namespace %s: %w", ErrSchemaNotReady, namespace, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (m *Manager) schemaActive(ctx context.Context, namespace string) (bool, error) {
	resp, err := m.pusher.Admin(ctx, getSchemaQuery, nil, namespace)
	if err != nil {
		return false, err
	}

	var data struct {
		GetGQLSchema *struct {
			Schema string `json:"schema"`
		} `json:"getGQLSchema"`
	}
	if err := resp.Decode(&data); err != nil {
		return false, err
	}
	return data.GetGQLSchema != nil && strings.TrimSpace(data.GetGQLSchema.Schema) != "", nil
}
