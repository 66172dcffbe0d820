// Package config loads handoffd settings from an optional TOML file and
// HANDOFF_* environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"handoff/internal/blob"
	"handoff/internal/core"
	"handoff/internal/logging"
	"handoff/internal/telemetry"
	"handoff/pkg/domain"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "HANDOFF_"

// Config is the full daemon configuration.
type Config struct {
	Storage   core.StorageConfig `toml:"storage" envPrefix:"STORAGE_"`
	Blob      blob.Config        `toml:"blob" envPrefix:"BLOB_"`
	Registry  Registry           `toml:"registry" envPrefix:"REGISTRY_"`
	Log       logging.Config     `toml:"log" envPrefix:"LOG_"`
	HTTP      HTTP               `toml:"http" envPrefix:"HTTP_"`
	Metrics   Metrics            `toml:"metrics" envPrefix:"METRICS_"`
	Telemetry telemetry.Config   `toml:"otel" envPrefix:"OTEL_"`
}

// Registry carries the registry's economic and deployment parameters as text.
type Registry struct {
	CreationFee string `toml:"creation_fee" env:"CREATION_FEE"`
	Factory     string `toml:"factory" env:"FACTORY"`
	Admin       string `toml:"admin" env:"ADMIN"`
}

// HTTP configures the API listener.
type HTTP struct {
	Addr            string        `toml:"addr" env:"ADDR"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// Metrics toggles the Prometheus endpoint.
type Metrics struct {
	Enabled bool   `toml:"enabled" env:"ENABLED"`
	Path    string `toml:"path" env:"PATH"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		Storage:  core.StorageConfig{Driver: core.StorageSQLite, SQLitePath: "handoff.db"},
		Blob:     blob.Config{Driver: blob.DriverFilesystem, FSRoot: "blobs"},
		Registry: Registry{CreationFee: "0"},
		Log:      logging.Config{Level: "info", Format: "console"},
		HTTP:     HTTP{Addr: ":8080", ShutdownTimeout: 10 * time.Second},
		Metrics:  Metrics{Enabled: true, Path: "/metrics"},
	}
}

// Load applies the TOML file at path (when non-empty) and then the
// environment on top of Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the textual registry parameters parse.
func (c Config) Validate() error {
	if _, err := c.CreationFee(); err != nil {
		return err
	}
	if _, err := c.FactoryAddress(); err != nil {
		return err
	}
	if _, err := c.AdminPrincipal(); err != nil {
		return err
	}
	return nil
}

// CreationFee parses the configured fee.
func (c Config) CreationFee() (*domain.Amount, error) {
	fee, err := domain.ParseAmount(strings.TrimSpace(c.Registry.CreationFee))
	if err != nil {
		return nil, fmt.Errorf("registry.creation_fee: %w", err)
	}
	return fee, nil
}

// FactoryAddress parses the deployment anchor; unset means the null address.
func (c Config) FactoryAddress() (domain.Principal, error) {
	return optionalPrincipal("registry.factory", c.Registry.Factory)
}

// AdminPrincipal parses the treasury admin; unset disables withdrawals.
func (c Config) AdminPrincipal() (domain.Principal, error) {
	return optionalPrincipal("registry.admin", c.Registry.Admin)
}

func optionalPrincipal(field, raw string) (domain.Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.NullPrincipal, nil
	}
	p, err := domain.ParsePrincipal(raw)
	if err != nil {
		return domain.NullPrincipal, fmt.Errorf("%s: %w", field, err)
	}
	return p, nil
}
