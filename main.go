package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/leslieo2/tekton-pipeline-demo/internal/config"
	"github.com/leslieo2/tekton-pipeline-demo/internal/constants"
	"github.com/leslieo2/tekton-pipeline-demo/internal/server"
)

func main() {
	fs := pflag.NewFlagSet(constants.ServiceName, pflag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n\nFlags:\n", os.Args[0])
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment: %s, %s, %s and the upper-case form of most flags.\n",
			constants.EnvPort, constants.EnvAppVersion, constants.EnvEnvironment)
	}

	defaults := config.DefaultConfig()

	configFile := fs.String("config", "", "Path to configuration file (YAML or JSON)")
	envFile := fs.String("env-file", constants.DefaultEnvFile, "Path to a dotenv file; missing files are ignored")

	// Server configuration
	host := fs.String("host", "", "Interface to listen on (empty for all)")
	port := fs.StringP("port", "p", constants.DefaultPort, "Port to listen on")
	metricsPort := fs.String("metrics-port", constants.DefaultMetricsPort, "Port for the metrics server")
	readTimeout := fs.Duration("read-timeout", defaults.Server.ReadTimeout, "HTTP server read timeout")
	writeTimeout := fs.Duration("write-timeout", defaults.Server.WriteTimeout, "HTTP server write timeout")
	idleTimeout := fs.Duration("idle-timeout", defaults.Server.IdleTimeout, "HTTP server idle timeout")
	shutdownTimeout := fs.Duration("shutdown-timeout", defaults.Server.ShutdownTimeout, "Drain limit on shutdown; 0 waits for every request")
	maxRequestSize := fs.Int64("max-request-size", defaults.Server.MaxRequestSize, "Maximum declared request body size in bytes (0 disables the check)")
	validateResponses := fs.Bool("validate-responses", false, "Log responses that do not match the API document")

	// Application
	version := fs.String("app-version", constants.DefaultVersion, "Version reported by / and /health")
	environment := fs.String("environment", constants.DefaultEnvironment, "Deployment environment reported by /")

	// Observability
	logLevel := fs.String("log-level", "info", "Log level: debug, info, warn, error")
	logFormat := fs.String("log-format", "json", "Log format: json or console")
	logOutput := fs.String("log-output", "stdout", "Log destination: stdout, stderr or a file path")
	metricsEnabled := fs.Bool("metrics", true, "Serve Prometheus metrics on the metrics port")
	tracingEnabled := fs.Bool("tracing", false, "Export request spans to stdout")

	// Security
	rateLimit := fs.Bool("rate-limit", false, "Enable per-IP rate limiting")
	rateLimitRPS := fs.Int("rate-limit-rps", 60, "Requests per second allowed per client IP")
	trustedProxies := fs.StringSlice("trusted-proxies", nil, "Proxy addresses or CIDRs whose X-Forwarded-For is trusted")
	corsEnabled := fs.Bool("cors", false, "Enable CORS headers")
	tlsEnabled := fs.Bool("tls", false, "Serve HTTPS")
	tlsCertFile := fs.String("tls-cert-file", "", "TLS certificate file")
	tlsKeyFile := fs.String("tls-key-file", "", "TLS private key file")

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatalf("Failed to parse flags: %v", err)
	}

	// Only flags given on the command line override lower layers.
	cliFlags := &config.CLIFlags{
		Host:            changed(fs, "host", host),
		Port:            changed(fs, "port", port),
		MetricsPort:     changed(fs, "metrics-port", metricsPort),
		Version:         changed(fs, "app-version", version),
		Environment:     changed(fs, "environment", environment),
		ReadTimeout:     changed(fs, "read-timeout", readTimeout),
		WriteTimeout:    changed(fs, "write-timeout", writeTimeout),
		IdleTimeout:     changed(fs, "idle-timeout", idleTimeout),
		ShutdownTimeout: changed(fs, "shutdown-timeout", shutdownTimeout),
		MaxRequestSize:  changed(fs, "max-request-size", maxRequestSize),
		ValidateResp:    changed(fs, "validate-responses", validateResponses),
		LogLevel:        changed(fs, "log-level", logLevel),
		LogFormat:       changed(fs, "log-format", logFormat),
		LogOutput:       changed(fs, "log-output", logOutput),
		MetricsEnabled:  changed(fs, "metrics", metricsEnabled),
		TracingEnabled:  changed(fs, "tracing", tracingEnabled),
		RateLimit:       changed(fs, "rate-limit", rateLimit),
		RateLimitRPS:    changed(fs, "rate-limit-rps", rateLimitRPS),
		TrustedProxies:  changed(fs, "trusted-proxies", trustedProxies),
		CORSEnabled:     changed(fs, "cors", corsEnabled),
		TLSEnabled:      changed(fs, "tls", tlsEnabled),
		TLSCertFile:     changed(fs, "tls-cert-file", tlsCertFile),
		TLSKeyFile:      changed(fs, "tls-key-file", tlsKeyFile),
	}

	// Load configuration with precedence (CLI > Env > .env > File > Defaults)
	cfg, err := config.LoadConfig(*configFile, *envFile, cliFlags)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	srv, err := server.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		stop()
		log.Fatalf("Server stopped: %v", err)
	}
}

func changed[T any](fs *pflag.FlagSet, name string, value *T) *T {
	if fs.Changed(name) {
		return value
	}
	return nil
}
