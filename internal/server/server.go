package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/leslieo2/tekton-pipeline-demo/internal/api"
	"github.com/leslieo2/tekton-pipeline-demo/internal/config"
	"github.com/leslieo2/tekton-pipeline-demo/internal/observability"
	"github.com/leslieo2/tekton-pipeline-demo/internal/openapi"
	"github.com/leslieo2/tekton-pipeline-demo/internal/security"
)

type Server struct {
	config  *config.Config
	handler http.Handler

	rateLimiter *security.RateLimiter

	// Observability
	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer

	mu   sync.Mutex
	addr net.Addr
}

// Option customises a Server at construction.
type Option func(*options)

type options struct {
	logger *observability.Logger
	clock  api.Clock
	routes func(*api.Handlers) []Route
}

// WithLogger replaces the logger built from the logging config.
func WithLogger(logger *observability.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock sets the clock used for health timestamps.
func WithClock(clock api.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithRoutes replaces the default route table.
func WithRoutes(routes func(*api.Handlers) []Route) Option {
	return func(o *options) { o.routes = routes }
}

func New(cfg *config.Config, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	o := options{routes: DefaultRoutes}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		var err error
		logger, err = observability.NewLogger(cfg.Observability.Logging)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
	}

	metrics := observability.NewMetrics()
	metrics.SetBuildInfo(cfg.App.Version, cfg.App.Environment)

	tracer, err := observability.NewTracer(cfg.Observability.Tracing, cfg.App)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	doc, err := openapi.Load()
	if err != nil {
		return nil, err
	}

	handlers := api.NewHandlers(cfg.App, o.clock)
	dispatcher, err := NewDispatcher(o.routes(handlers), doc, logger, metrics, tracer)
	if err != nil {
		return nil, fmt.Errorf("failed to build route table: %w", err)
	}
	if cfg.Server.ValidateResponses {
		dispatcher.EnableResponseValidation()
	}

	operations := doc.Operations()
	documented := make([]string, 0, len(operations))
	for _, op := range operations {
		documented = append(documented, op.Method+" "+op.Path)
	}
	logger.Logger.Info("API document loaded",
		zap.String("title", doc.Title()),
		zap.Strings("operations", documented),
		zap.Bool("validate_responses", cfg.Server.ValidateResponses),
	)

	s := &Server{
		config:      cfg,
		rateLimiter: security.NewRateLimiter(cfg.Security.RateLimit),
		logger:      logger,
		metrics:     metrics,
		tracer:      tracer,
	}
	s.handler = s.applyMiddleware(dispatcher)

	return s, nil
}

// Handler returns the full request pipeline, middleware included.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Metrics() *observability.Metrics {
	return s.metrics
}

// Addr returns the bound address once serving has started, or nil.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Start binds the configured address and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.GetServerAddress())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.GetServerAddress(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then drains
// in-flight requests within the configured shutdown timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:        s.handler,
		ReadTimeout:    s.config.Server.ReadTimeout,
		WriteTimeout:   s.config.Server.WriteTimeout,
		IdleTimeout:    s.config.Server.IdleTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB max header size
		ConnState:      s.trackConnState,
		ErrorLog:       zap.NewStdLog(s.logger.Logger),
	}

	metricsServer := s.startMetricsServer()

	s.metrics.SetHealthStatus(true)

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	s.logger.Logger.Info("Server is running",
		zap.String("port", s.config.Server.Port),
		zap.String("address", ln.Addr().String()),
		zap.String("environment", s.config.App.Environment),
		zap.String("version", s.config.App.Version),
		zap.Bool("tls", s.config.TLS.Enabled),
	)

	serveErr := make(chan error, 1)
	go func() {
		if s.config.TLS.Enabled {
			serveErr <- srv.ServeTLS(ln, s.config.TLS.CertFile, s.config.TLS.KeyFile)
			return
		}
		serveErr <- srv.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		// Serve only returns before shutdown when the listener breaks.
		s.metrics.SetHealthStatus(false)
		s.closeAux(context.Background(), metricsServer)
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Logger.Info("Shutdown signal received, draining connections",
		zap.Duration("timeout", s.config.Server.ShutdownTimeout),
	)
	return s.shutdown(srv, metricsServer, serveErr)
}

func (s *Server) shutdown(srv, metricsServer *http.Server, serveErr <-chan error) error {
	s.metrics.SetHealthStatus(false)

	// A zero timeout waits for every in-flight request, however long.
	ctx := context.Background()
	cancel := context.CancelFunc(func() {})
	if s.config.Server.ShutdownTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	}
	defer cancel()

	var wg sync.WaitGroup
	errChan := make(chan error, 2)

	// Shutdown metrics server in parallel
	if metricsServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := metricsServer.Shutdown(ctx); err != nil {
				s.logger.Logger.Error("Failed to shutdown metrics server", zap.Error(err))
				errChan <- fmt.Errorf("metrics server shutdown: %w", err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Shutdown(ctx); err != nil {
			s.logger.Logger.Error("Drain timed out, closing remaining connections", zap.Error(err))
			_ = srv.Close()
			errChan <- fmt.Errorf("main server shutdown: %w", err)
		}
	}()

	wg.Wait()
	close(errChan)

	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Logger.Error("Server stopped with error", zap.Error(err))
	}

	s.closeAux(context.Background(), nil)

	var errs []error
	for err := range errChan {
		errs = append(errs, err)
	}

	s.logger.Logger.Info("Process terminated")
	_ = s.logger.Sync()

	return errors.Join(errs...)
}

// closeAux releases everything besides the public listener.
func (s *Server) closeAux(ctx context.Context, metricsServer *http.Server) {
	if metricsServer != nil {
		_ = metricsServer.Close()
	}
	s.rateLimiter.Close()
	if err := s.tracer.Shutdown(ctx); err != nil {
		s.logger.Logger.Warn("Failed to flush traces", zap.Error(err))
	}
}

func (s *Server) startMetricsServer() *http.Server {
	if !s.config.Observability.Metrics.Enabled {
		return nil
	}

	// Metrics are optional; they never keep the public listener from starting.
	if s.config.Server.MetricsPort == s.config.Server.Port {
		s.logger.Logger.Warn("Metrics port equals server port, metrics server disabled",
			zap.String("port", s.config.Server.Port),
		)
		return nil
	}

	ln, err := net.Listen("tcp", s.config.GetMetricsAddress())
	if err != nil {
		s.logger.Logger.Warn("Failed to bind metrics server, continuing without it",
			zap.String("address", s.config.GetMetricsAddress()),
			zap.Error(err),
		)
		return nil
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle(s.config.Observability.Metrics.Path, s.metrics.Handler())
	metricsServer := &http.Server{
		Handler:           metricsMux,
		ReadHeaderTimeout: s.config.Server.ReadTimeout,
	}

	s.logger.Logger.Info("Starting metrics server",
		zap.String("address", ln.Addr().String()),
		zap.String("path", s.config.Observability.Metrics.Path),
	)
	go func() {
		if err := metricsServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	return metricsServer
}

func (s *Server) trackConnState(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.metrics.ActiveConnections.Inc()
	case http.StateClosed, http.StateHijacked:
		s.metrics.ActiveConnections.Dec()
	}
}
