package config

import (
	"errors"

	"github.com/leslieo2/tekton-pipeline-demo/internal/constants"
)

// AppConfig holds the values surfaced in response bodies.
// Environment is reported to clients only and does not change behaviour.
type AppConfig struct {
	Version     string `json:"version" yaml:"version"`
	Environment string `json:"environment" yaml:"environment"`
}

// DefaultAppConfig returns default application metadata
func DefaultAppConfig() AppConfig {
	return AppConfig{
		Version:     constants.DefaultVersion,
		Environment: constants.DefaultEnvironment,
	}
}

// Validate validates the application metadata
func (a *AppConfig) Validate() error {
	if a.Version == "" {
		return errors.New("version cannot be empty")
	}
	if a.Environment == "" {
		return errors.New("environment cannot be empty")
	}
	return nil
}
