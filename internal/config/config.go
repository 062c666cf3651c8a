// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package config loads server configuration from defaults, an optional
// YAML file, GATEHOUSE_* environment variables, and command-line flags,
// in that order of increasing precedence.
package config

import (
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// SMTP configures the outbound mail relay.
type SMTP struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
}

// Config is the full server configuration.
type Config struct {
	// ListenAddr is the API listen address.
	ListenAddr string `koanf:"listen_addr"`

	// MetricsAddr is the metrics/health HTTP address; empty disables it.
	MetricsAddr string `koanf:"metrics_addr"`

	// AppURL is the public base URL of the front end, used to build
	// confirmation and reset links.
	AppURL string `koanf:"app_url"`

	// DatabaseURL is the PostgreSQL connection string.
	DatabaseURL string `koanf:"database_url"`

	// RedisAddr is the host:port of the Redis used for sessions and
	// one-time tokens.
	RedisAddr string `koanf:"redis_addr"`

	// RedisPassword is the Redis AUTH password; empty disables auth.
	RedisPassword string `koanf:"redis_password"`

	// CookieDomain scopes the session cookie; empty means host-only.
	CookieDomain string `koanf:"cookie_domain"`

	// Production marks the session cookie Secure and defaults logging
	// to JSON.
	Production bool `koanf:"production"`

	// LogFormat is "json" or "text".
	LogFormat string `koanf:"log_format"`

	SMTP SMTP `koanf:"smtp"`
}

// defaults are the lowest-precedence configuration layer.
var defaults = map[string]any{
	"listen_addr":  ":4000",
	"metrics_addr": "127.0.0.1:9100",
	"app_url":      "http://localhost:3000",
	"redis_addr":   "localhost:6379",
	"log_format":   "json",
	"smtp.port":    25,
	"smtp.from":    "noreply@localhost",
}

// Load builds a Config. path names an optional YAML file; flags may be
// nil. Environment variables use the GATEHOUSE_ prefix with _ as the
// nesting delimiter, e.g. GATEHOUSE_SMTP_HOST.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "defaults").Wrap(err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("layer", "file").
				With("path", path).
				Wrap(err)
		}
	}

	envProvider := env.Provider("GATEHOUSE_", ".", func(s string) string {
		key := strings.TrimPrefix(s, "GATEHOUSE_")
		key = strings.ToLower(key)
		// smtp_host -> smtp.host; single-level keys keep their underscores.
		if rest, found := strings.CutPrefix(key, "smtp_"); found {
			return "smtp." + rest
		}
		return key
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "env").Wrap(err)
	}

	if flags != nil {
		// Flag names use dashes; config keys use underscores.
		flagProvider := posflag.ProviderWithValue(flags, ".", k, func(key, value string) (string, any) {
			return strings.ReplaceAll(key, "-", "_"), value
		})
		if err := k.Load(flagProvider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "unmarshal").Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("listen_addr is required")
	}
	if c.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database_url is required")
	}
	if c.RedisAddr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("redis_addr is required")
	}
	if c.AppURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("app_url is required")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return oops.Code("CONFIG_INVALID").Errorf("log_format must be 'json' or 'text', got %q", c.LogFormat)
	}
	return nil
}
