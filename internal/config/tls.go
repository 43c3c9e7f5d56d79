package config

import (
	"errors"
	"fmt"
	"os"
)

// TLSConfig switches the public listener to HTTPS. The metrics listener
// always stays plain HTTP.
type TLSConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	CertFile string `json:"cert_file" yaml:"cert_file"`
	KeyFile  string `json:"key_file" yaml:"key_file"`
}

func DefaultTLSConfig() TLSConfig {
	return TLSConfig{}
}

// Validate reports every missing or unreadable key pair file at once.
func (c TLSConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	var errs []error
	for _, f := range []struct{ name, path string }{
		{"cert_file", c.CertFile},
		{"key_file", c.KeyFile},
	} {
		if f.path == "" {
			errs = append(errs, fmt.Errorf("tls.%s is required when TLS is enabled", f.name))
			continue
		}
		info, err := os.Stat(f.path)
		if err != nil {
			errs = append(errs, fmt.Errorf("tls.%s: %w", f.name, err))
			continue
		}
		if info.IsDir() {
			errs = append(errs, fmt.Errorf("tls.%s: %s is a directory", f.name, f.path))
		}
	}
	return errors.Join(errs...)
}
