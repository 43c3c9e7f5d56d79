package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/leslieo2/tekton-pipeline-demo/internal/config"
	"github.com/leslieo2/tekton-pipeline-demo/internal/observability"
)

// testConfig returns defaults with the metrics listener off so tests never
// compete for its fixed port.
func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.ShutdownTimeout = 5 * time.Second
	cfg.Observability.Metrics.Enabled = false
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config, opts ...Option) *Server {
	t.Helper()
	opts = append([]Option{WithLogger(observability.NewNopLogger())}, opts...)
	s, err := New(cfg, opts...)
	require.NoError(t, err)
	return s
}
