package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/leslieo2/tekton-pipeline-demo/internal/constants"
	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration with precedence:
// 1. Explicit CLI flags (highest priority)
// 2. Environment variables, including those supplied by the dotenv file
// 3. Configuration file values
// 4. Default configuration values (lowest priority)
//
// Variables already present in the process environment win over the dotenv
// file. A missing dotenv file is not an error.
func LoadConfig(configFile, envFile string, cliFlags *CLIFlags) (*Config, error) {
	config := DefaultConfig()

	if configFile != "" {
		fileConfig, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		config = fileConfig
	}

	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}

	if err := loadFromEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	overrideWithCLI(config, cliFlags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// CLIFlags contains CLI flag values that can override configuration.
// A nil field means the flag was not given on the command line.
type CLIFlags struct {
	Host            *string
	Port            *string
	MetricsPort     *string
	Version         *string
	Environment     *string
	ReadTimeout     *time.Duration
	WriteTimeout    *time.Duration
	IdleTimeout     *time.Duration
	ShutdownTimeout *time.Duration
	MaxRequestSize  *int64
	ValidateResp    *bool
	LogLevel        *string
	LogFormat       *string
	LogOutput       *string
	MetricsEnabled  *bool
	TracingEnabled  *bool
	RateLimit       *bool
	RateLimitRPS    *int
	TrustedProxies  *[]string
	CORSEnabled     *bool
	TLSEnabled      *bool
	TLSCertFile     *string
	TLSKeyFile      *string
}

// loadFromFile loads configuration from a YAML or JSON file.
// Keys absent from the file keep their default values.
func loadFromFile(filePath string) (*Config, error) {
	if !filepath.IsAbs(filePath) {
		absPath, err := filepath.Abs(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for %s: %w", filePath, err)
		}
		filePath = absPath
	}

	data, err := os.ReadFile(filepath.Clean(filePath))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}

	config := DefaultConfig()
	ext := filepath.Ext(filePath)
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	case ".json":
		err = json.Unmarshal(data, config)
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filePath, err)
	}

	return config, nil
}

func loadEnvFile(envFile string) error {
	if envFile == "" {
		return nil
	}
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}
	return nil
}

// loadFromEnv loads configuration from environment variables.
// Unparseable numeric, boolean or duration values are reported rather than
// silently ignored.
func loadFromEnv(config *Config) error {
	var errs []string

	str := func(key string, dst *string) {
		if val := os.Getenv(key); val != "" {
			*dst = val
		}
	}
	dur := func(key string, dst *time.Duration) {
		if val := os.Getenv(key); val != "" {
			d, err := time.ParseDuration(val)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if val := os.Getenv(key); val != "" {
			b, err := strconv.ParseBool(val)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = b
		}
	}

	// Server configuration
	str(constants.EnvHost, &config.Server.Host)
	str(constants.EnvPort, &config.Server.Port)
	str(constants.EnvMetricsPort, &config.Server.MetricsPort)
	dur(constants.EnvReadTimeout, &config.Server.ReadTimeout)
	dur(constants.EnvWriteTimeout, &config.Server.WriteTimeout)
	dur(constants.EnvIdleTimeout, &config.Server.IdleTimeout)
	dur(constants.EnvShutdownTimeout, &config.Server.ShutdownTimeout)
	boolean(constants.EnvValidateResp, &config.Server.ValidateResponses)
	if val := os.Getenv(constants.EnvMaxRequestSize); val != "" {
		size, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", constants.EnvMaxRequestSize, err))
		} else {
			config.Server.MaxRequestSize = size
		}
	}

	// Application metadata
	str(constants.EnvAppVersion, &config.App.Version)
	str(constants.EnvEnvironment, &config.App.Environment)

	// Observability
	str(constants.EnvLogLevel, &config.Observability.Logging.Level)
	str(constants.EnvLogFormat, &config.Observability.Logging.Format)
	str(constants.EnvLogOutput, &config.Observability.Logging.Output)
	boolean(constants.EnvMetricsEnabled, &config.Observability.Metrics.Enabled)
	boolean(constants.EnvTracingEnabled, &config.Observability.Tracing.Enabled)

	// Security
	boolean(constants.EnvRateLimitEnable, &config.Security.RateLimit.Enabled)
	if val := os.Getenv(constants.EnvRateLimitRPS); val != "" {
		rps, err := strconv.Atoi(val)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", constants.EnvRateLimitRPS, err))
		} else {
			setRateLimitRPS(config, rps)
		}
	}
	if val := os.Getenv(constants.EnvTrustedProxies); val != "" {
		config.Security.RateLimit.TrustedProxies = strings.Split(val, ",")
	}
	boolean(constants.EnvCORSEnabled, &config.Security.CORS.Enabled)

	// TLS
	boolean(constants.EnvTLSEnabled, &config.TLS.Enabled)
	str(constants.EnvTLSCertFile, &config.TLS.CertFile)
	str(constants.EnvTLSKeyFile, &config.TLS.KeyFile)

	if len(errs) > 0 {
		return fmt.Errorf("invalid values: %s", strings.Join(errs, "; "))
	}
	return nil
}

// overrideWithCLI overrides configuration with CLI flag values.
// Only explicitly set CLI flags override other configuration sources.
func overrideWithCLI(config *Config, flags *CLIFlags) {
	if flags == nil {
		return
	}

	// Server configuration
	if flags.Host != nil {
		config.Server.Host = *flags.Host
	}
	if flags.Port != nil {
		config.Server.Port = *flags.Port
	}
	if flags.MetricsPort != nil {
		config.Server.MetricsPort = *flags.MetricsPort
	}
	if flags.ReadTimeout != nil {
		config.Server.ReadTimeout = *flags.ReadTimeout
	}
	if flags.WriteTimeout != nil {
		config.Server.WriteTimeout = *flags.WriteTimeout
	}
	if flags.IdleTimeout != nil {
		config.Server.IdleTimeout = *flags.IdleTimeout
	}
	if flags.ShutdownTimeout != nil {
		config.Server.ShutdownTimeout = *flags.ShutdownTimeout
	}
	if flags.MaxRequestSize != nil {
		config.Server.MaxRequestSize = *flags.MaxRequestSize
	}
	if flags.ValidateResp != nil {
		config.Server.ValidateResponses = *flags.ValidateResp
	}

	// Application metadata
	if flags.Version != nil {
		config.App.Version = *flags.Version
	}
	if flags.Environment != nil {
		config.App.Environment = *flags.Environment
	}

	// Observability
	if flags.LogLevel != nil {
		config.Observability.Logging.Level = *flags.LogLevel
	}
	if flags.LogFormat != nil {
		config.Observability.Logging.Format = *flags.LogFormat
	}
	if flags.LogOutput != nil {
		config.Observability.Logging.Output = *flags.LogOutput
	}
	if flags.MetricsEnabled != nil {
		config.Observability.Metrics.Enabled = *flags.MetricsEnabled
	}
	if flags.TracingEnabled != nil {
		config.Observability.Tracing.Enabled = *flags.TracingEnabled
	}

	// Security flags
	if flags.RateLimit != nil {
		config.Security.RateLimit.Enabled = *flags.RateLimit
	}
	if flags.RateLimitRPS != nil {
		setRateLimitRPS(config, *flags.RateLimitRPS)
	}
	if flags.TrustedProxies != nil {
		config.Security.RateLimit.TrustedProxies = *flags.TrustedProxies
	}
	if flags.CORSEnabled != nil {
		config.Security.CORS.Enabled = *flags.CORSEnabled
	}

	// TLS configuration
	if flags.TLSEnabled != nil {
		config.TLS.Enabled = *flags.TLSEnabled
	}
	if flags.TLSCertFile != nil {
		config.TLS.CertFile = *flags.TLSCertFile
	}
	if flags.TLSKeyFile != nil {
		config.TLS.KeyFile = *flags.TLSKeyFile
	}
}

// setRateLimitRPS sets the per-IP rate and keeps the burst at twice the rate.
func setRateLimitRPS(config *Config, rps int) {
	if config.Security.RateLimit.ByIP == nil {
		config.Security.RateLimit.ByIP = DefaultRateLimit()
	}
	config.Security.RateLimit.ByIP.RequestsPerSecond = rps
	config.Security.RateLimit.ByIP.BurstSize = rps * 2
}
