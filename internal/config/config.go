package config

import (
	"errors"
	"fmt"
)

// Config represents the unified configuration structure.
// It is built once at start-up and handed to the server; nothing reads the
// process environment after LoadConfig returns.
type Config struct {
	Server        ServerConfig        `json:"server" yaml:"server"`
	App           AppConfig           `json:"app" yaml:"app"`
	Security      SecurityConfig      `json:"security" yaml:"security"`
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
	TLS           TLSConfig           `json:"tls" yaml:"tls"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server:        DefaultServerConfig(),
		App:           DefaultAppConfig(),
		Security:      DefaultSecurityConfig(),
		Observability: DefaultObservabilityConfig(),
		TLS:           DefaultTLSConfig(),
	}
}

// Validate validates the entire configuration
func (c *Config) Validate() error {
	var errs []error

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("server config validation failed: %w", err))
	}
	if err := c.App.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("app config validation failed: %w", err))
	}
	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("security config validation failed: %w", err))
	}
	if err := c.Observability.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("observability config validation failed: %w", err))
	}
	if err := c.TLS.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("tls config validation failed: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// GetServerAddress returns the listen address of the public server
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// GetMetricsAddress returns the listen address of the metrics server
func (c *Config) GetMetricsAddress() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.MetricsPort)
}
