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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, ":8086", cfg.ListenAddr)
	assert.Equal(t, "http://localhost:8080", cfg.Dgraph.URL)
	assert.Equal(t, 5*time.Second, cfg.Dgraph.RequestTimeout)
	assert.Equal(t, 5*time.Minute, cfg.CapabilityTTL)
	assert.True(t, cfg.WatchSchema)
}

func TestLoadConfig_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr: ":9999"
capability_ttl: 30s
dgraph:
  url: "http://dgraph:8080"
log:
  level: debug
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, 30*time.Second, cfg.CapabilityTTL)
	assert.Equal(t, "http://dgraph:8080", cfg.Dgraph.URL)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Untouched keys keep their defaults.
	assert.Equal(t, 5*time.Second, cfg.Dgraph.RequestTimeout)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("GRAPHGATE_LISTEN_ADDR", ":7777")
	t.Setenv("GRAPHGATE_DGRAPH_URL", "http://env:8080")
	t.Setenv("GRAPHGATE_CAPABILITY_TTL", "90s")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, ":7777", cfg.ListenAddr)
	assert.Equal(t, "http://env:8080", cfg.Dgraph.URL)
	assert.Equal(t, 90*time.Second, cfg.CapabilityTTL)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen addr", func(c *Config) { c.ListenAddr = "" }},
		{"empty dgraph url", func(c *Config) { c.Dgraph.URL = "" }},
		{"zero request timeout", func(c *Config) { c.Dgraph.RequestTimeout = 0 }},
		{"zero capability ttl", func(c *Config) { c.CapabilityTTL = 0 }},
		{"empty schema path", func(c *Config) { c.SchemaPath = "" }},
		{"empty store path", func(c *Config) { c.StorePath = "" }},
		{"unknown log level", func(c *Config) { c.Log.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("defaults are valid", func(t *testing.T) {
		cfg := DefaultConfig()
		assert.NoError(t, cfg.Validate())
	})
}
