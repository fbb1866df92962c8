// Kumele MatchEngine - Event Matching and Recommendation Service
// Copyright 2026 Kumele
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kumele/matchengine

// Package config loads service configuration with koanf, merging three
// layers in order of increasing precedence:
//
//  1. struct defaults
//  2. an optional YAML file
//  3. environment variables (MATCHENGINE_ prefix, "__" for nesting,
//     e.g. MATCHENGINE_SERVER__PORT=9090 sets server.port)
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/kumele/matchengine/internal/cache"
	"github.com/kumele/matchengine/internal/database"
	"github.com/kumele/matchengine/internal/match"
	"github.com/kumele/matchengine/internal/upstream"
)

// envPrefix namespaces this service's environment variables.
const envPrefix = "MATCHENGINE_"

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind. Default: 0.0.0.0
	Host string `koanf:"host" validate:"required"`

	// Port to listen on. Default: 8080
	Port int `koanf:"port" validate:"required,min=1,max=65535"`

	// ReadTimeout bounds request reads. Default: 15s
	ReadTimeout time.Duration `koanf:"read_timeout"`

	// WriteTimeout bounds response writes. Default: 30s
	WriteTimeout time.Duration `koanf:"write_timeout"`

	// ShutdownTimeout bounds graceful shutdown. Default: 15s
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// RateLimit is requests per minute per client IP; zero disables.
	// Default: 300
	RateLimit int `koanf:"rate_limit" validate:"min=0"`

	// CORSOrigins lists allowed origins; "*" allows all.
	CORSOrigins []string `koanf:"cors_origins"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level: trace, debug, info, warn, error. Default: info
	Level string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`

	// Format: json or console. Default: json
	Format string `koanf:"format" validate:"oneof=json console"`

	// Caller includes file and line in logs. Default: false
	Caller bool `koanf:"caller"`
}

// Config is the root configuration tree.
type Config struct {
	Server      ServerConfig               `koanf:"server"`
	Log         LogConfig                  `koanf:"log"`
	Database    database.Config            `koanf:"database"`
	Match       match.Config               `koanf:"match"`
	Cache       cache.Config               `koanf:"cache"`
	Geocoder    upstream.GeocoderConfig    `koanf:"geocoder"`
	Trust       upstream.TrustConfig       `koanf:"trust"`
	VectorStore upstream.VectorStoreConfig `koanf:"vector_store"`
}

// Default returns the full default configuration tree.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimit:       300,
			CORSOrigins:     []string{"*"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Database:    database.DefaultConfig(),
		Match:       match.DefaultConfig(),
		Cache:       cache.DefaultConfig(),
		Geocoder:    upstream.DefaultGeocoderConfig(),
		Trust:       upstream.DefaultTrustConfig(),
		VectorStore: upstream.DefaultVectorStoreConfig(),
	}
}

// Load builds the configuration from defaults, an optional YAML file
// and the environment. An empty path skips the file layer; a named file
// that does not exist is an error.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the whole tree, combining struct-tag validation with
// the engine's own semantic checks.
func (c Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := v.Struct(c.Log); err != nil {
		return fmt.Errorf("log config: %w", err)
	}
	if err := c.Match.Validate(); err != nil {
		return fmt.Errorf("match config: %w", err)
	}
	return nil
}

// Addr returns the server's listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
