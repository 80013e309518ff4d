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
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianGraph/services/gateway/telemetry"
)

// Config is the top-level gateway configuration.
//
// Values come from (in increasing precedence): built-in defaults, an optional
// YAML file, and GRAPHGATE_* environment variables.
type Config struct {
	// ListenAddr is the HTTP listen address for the API server.
	ListenAddr string `yaml:"listen_addr"`

	// SchemaPath is the GraphQL schema file pushed into namespaces.
	SchemaPath string `yaml:"schema_path"`

	// StorePath is the directory for the tenant registry's local store.
	StorePath string `yaml:"store_path"`

	// CapabilityTTL is how long a capability snapshot stays fresh.
	CapabilityTTL time.Duration `yaml:"capability_ttl"`

	// WatchSchema enables the schema file watcher. When the file changes
	// the schema is re-pushed to the default namespace.
	WatchSchema bool `yaml:"watch_schema"`

	// Dgraph configures the backing deployment connection.
	Dgraph DgraphConfig `yaml:"dgraph"`

	// Telemetry configures traces and metrics.
	Telemetry telemetry.Config `yaml:"telemetry"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log"`
}

// DgraphConfig configures the backing deployment connection.
type DgraphConfig struct {
	// URL is the base URL of the Dgraph alpha HTTP endpoint.
	URL string `yaml:"url"`

	// RequestTimeout bounds every outbound call.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// HealthCheckInterval is the background health check period.
	// Zero disables background checking.
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is the minimum level: "debug", "info", "warn", "error".
	Level string `yaml:"level"`

	// Dir enables file logging to the given directory.
	Dir string `yaml:"dir"`

	// JSON enables JSON output on stderr.
	JSON bool `yaml:"json"`
}

// DefaultConfig returns production-leaning defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:    ":8086",
		SchemaPath:    "schema.graphql",
		StorePath:     "data/tenants",
		CapabilityTTL: 5 * time.Minute,
		WatchSchema:   true,
		Dgraph: DgraphConfig{
			URL:                 "http://localhost:8080",
			RequestTimeout:      5 * time.Second,
			HealthCheckInterval: 30 * time.Second,
		},
		Telemetry: telemetry.DefaultConfig(),
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfig builds a Config from defaults, an optional YAML file, and
// environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnvOverrides applies GRAPHGATE_* environment variables.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GRAPHGATE_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("GRAPHGATE_DGRAPH_URL"); v != "" {
		c.Dgraph.URL = v
	}
	if v := os.Getenv("GRAPHGATE_SCHEMA_PATH"); v != "" {
		c.SchemaPath = v
	}
	if v := os.Getenv("GRAPHGATE_STORE_PATH"); v != "" {
		c.StorePath = v
	}
	if v := os.Getenv("GRAPHGATE_CAPABILITY_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.CapabilityTTL = d
		}
	}
}

// Validate checks the configuration for usable values.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("listen_addr required")
	}
	if c.Dgraph.URL == "" {
		return errors.New("dgraph.url required")
	}
	if c.Dgraph.RequestTimeout <= 0 {
		return errors.New("dgraph.request_timeout must be positive")
	}
	if c.CapabilityTTL <= 0 {
		return errors.New("capability_ttl must be positive")
	}
	if c.SchemaPath == "" {
		return errors.New("schema_path required")
	}
	if c.StorePath == "" {
		return errors.New("store_path required")
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	return nil
}
