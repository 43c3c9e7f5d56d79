package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/leslieo2/tekton-pipeline-demo/internal/api"
	"github.com/leslieo2/tekton-pipeline-demo/internal/config"
	"github.com/leslieo2/tekton-pipeline-demo/internal/observability"
	"github.com/leslieo2/tekton-pipeline-demo/internal/openapi"
)

func TestDispatcher_RouteTable(t *testing.T) {
	s := newTestServer(t, testConfig())
	doc, err := openapi.Load()
	require.NoError(t, err)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		documented bool
	}{
		{name: "health", method: "GET", path: "/health", wantStatus: 200, documented: true},
		{name: "welcome", method: "GET", path: "/", wantStatus: 200, documented: true},
		{name: "info", method: "GET", path: "/api/info", wantStatus: 200, documented: true},
		{name: "unknown path", method: "GET", path: "/nonexistent", wantStatus: 404},
		{name: "wrong method", method: "POST", path: "/", wantStatus: 404},
		{name: "head answered by get route", method: "HEAD", path: "/health", wantStatus: 200},
		{name: "head unknown path", method: "HEAD", path: "/nonexistent", wantStatus: 404},
		{name: "trailing slash", method: "GET", path: "/health/", wantStatus: 200, documented: true},
		{name: "upper case", method: "GET", path: "/HEALTH", wantStatus: 200, documented: true},
		{name: "mixed case", method: "GET", path: "/Api/Info", wantStatus: 200, documented: true},
		{name: "mixed case trailing slash", method: "GET", path: "/API/INFO/", wantStatus: 200, documented: true},
		{name: "double trailing slash", method: "GET", path: "/health//", wantStatus: 404},
		{name: "query string ignored", method: "GET", path: "/api/info?verbose=1", wantStatus: 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rr := httptest.NewRecorder()
			s.Handler().ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))

			if tt.wantStatus == http.StatusNotFound {
				if tt.method != "HEAD" {
					assert.JSONEq(t, `{"error":"Route not found"}`, rr.Body.String())
				}
				return
			}
			if tt.method == "HEAD" {
				assert.Empty(t, rr.Body.String())
				return
			}
			if tt.documented {
				err := doc.ValidateResponse(context.Background(), req, api.CanonicalPath(req.URL.Path), rr.Code, rr.Header(), rr.Body.Bytes())
				assert.NoError(t, err)
			}
		})
	}
}

func TestDispatcher_HeadMirrorsGet(t *testing.T) {
	s := newTestServer(t, testConfig(), WithClock(fixedClock{time.Date(2024, 3, 9, 8, 7, 6, 0, time.UTC)}))

	for _, path := range []string{"/health", "/", "/api/info", "/nonexistent"} {
		t.Run(path, func(t *testing.T) {
			get := httptest.NewRecorder()
			s.Handler().ServeHTTP(get, httptest.NewRequest("GET", path, nil))
			head := httptest.NewRecorder()
			s.Handler().ServeHTTP(head, httptest.NewRequest("HEAD", path, nil))

			assert.Equal(t, get.Code, head.Code)
			assert.Equal(t, get.Header().Get("Content-Type"), head.Header().Get("Content-Type"))
			assert.Equal(t, strconv.Itoa(get.Body.Len()), head.Header().Get("Content-Length"))
			assert.Equal(t, get.Header().Get("Content-Length"), head.Header().Get("Content-Length"))
			assert.Empty(t, head.Body.String())
		})
	}
}

func TestDispatcher_Payloads(t *testing.T) {
	cfg := testConfig()
	cfg.App = config.AppConfig{Version: "2.3.4", Environment: "production"}
	fixed := time.Date(2024, 3, 9, 8, 7, 6, 5_000_000, time.UTC)
	s := newTestServer(t, cfg, WithClock(fixedClock{fixed}))

	get := func(path string) string {
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, httptest.NewRequest("GET", path, nil))
		require.Equal(t, http.StatusOK, rr.Code)
		return rr.Body.String()
	}

	assert.JSONEq(t, `{"status":"healthy","timestamp":"2024-03-09T08:07:06.005Z","version":"2.3.4"}`, get("/health"))
	assert.JSONEq(t, `{"message":"Welcome to Tekton Pipeline Demo!","version":"2.3.4","environment":"production"}`, get("/"))
	assert.JSONEq(t, `{
		"service": "tekton-pipeline-demo",
		"description": "A sample Go application demonstrating Tekton CI/CD pipeline",
		"features": [
			"Health check endpoint",
			"REST API",
			"Docker containerization",
			"Kubernetes deployment",
			"Tekton CI/CD pipeline"
		]
	}`, get("/api/info"))
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func TestDispatcher_HealthTimestampsNonDecreasing(t *testing.T) {
	s := newTestServer(t, testConfig())

	var previous string
	for i := 0; i < 20; i++ {
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/health", nil))

		var body api.HealthStatus
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		// fixed-width UTC layout, so lexical order is time order
		assert.GreaterOrEqual(t, body.Timestamp, previous)
		previous = body.Timestamp
	}
}

func TestDispatcher_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		handler    api.HandlerFunc
		wantStatus int
		wantBody   string
		notInBody  string
	}{
		{
			name: "unknown error",
			handler: func(*http.Request) (any, error) {
				return nil, errors.New("connection refused to 10.0.0.7")
			},
			wantStatus: 500,
			wantBody:   `{"error":"Something went wrong!"}`,
			notInBody:  "10.0.0.7",
		},
		{
			name: "typed error",
			handler: func(*http.Request) (any, error) {
				return nil, fmt.Errorf("lookup: %w", api.NewError(http.StatusServiceUnavailable, "Try later"))
			},
			wantStatus: 503,
			wantBody:   `{"error":"Try later"}`,
		},
		{
			name: "unserialisable payload",
			handler: func(*http.Request) (any, error) {
				return map[string]any{"ch": make(chan int)}, nil
			},
			wantStatus: 500,
			wantBody:   `{"error":"Something went wrong!"}`,
		},
		{
			name: "panic",
			handler: func(*http.Request) (any, error) {
				panic("nil map write")
			},
			wantStatus: 500,
			wantBody:   `{"error":"Something went wrong!"}`,
			notInBody:  "nil map",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, testConfig(), WithRoutes(func(h *api.Handlers) []Route {
				return []Route{
					{Method: "GET", Path: "/", Handler: tt.handler},
					{Method: "GET", Path: "/health", Handler: h.Health},
				}
			}))

			rr := httptest.NewRecorder()
			s.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.wantBody, rr.Body.String())
			if tt.notInBody != "" {
				assert.NotContains(t, rr.Body.String(), tt.notInBody)
			}

			// the server keeps serving after a failure
			rr = httptest.NewRecorder()
			s.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/health", nil))
			assert.Equal(t, http.StatusOK, rr.Code)
		})
	}
}

func TestDispatcher_LogsUnmappedErrors(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	logger := &observability.Logger{Logger: zap.New(core)}

	s, err := New(testConfig(), WithLogger(logger), WithRoutes(func(h *api.Handlers) []Route {
		return []Route{{Method: "GET", Path: "/", Handler: func(*http.Request) (any, error) {
			return nil, errors.New("disk full")
		}}}
	}))
	require.NoError(t, err)

	s.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	failures := logs.FilterMessage("Request failed").All()
	require.Len(t, failures, 1)
	assert.Equal(t, "disk full", failures[0].ContextMap()["error"])
}

func TestDispatcher_FirstMatchWins(t *testing.T) {
	s := newTestServer(t, testConfig(), WithRoutes(func(h *api.Handlers) []Route {
		return []Route{
			{Method: "GET", Path: "/", Handler: func(*http.Request) (any, error) { return map[string]string{"which": "first"}, nil }},
			{Method: "GET", Path: "/", Handler: func(*http.Request) (any, error) { return map[string]string{"which": "second"}, nil }},
		}
	}))

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	assert.JSONEq(t, `{"which":"first"}`, rr.Body.String())
}

func TestNewDispatcher_RejectsUndocumentedRoute(t *testing.T) {
	doc, err := openapi.Load()
	require.NoError(t, err)

	_, err = NewDispatcher([]Route{{Method: "GET", Path: "/debug", Handler: api.NotFound}}, doc,
		observability.NewNopLogger(), observability.NewMetrics(), nopTracer(t))
	assert.ErrorContains(t, err, "GET /debug")

	_, err = NewDispatcher([]Route{{Method: "GET", Path: "/"}}, doc,
		observability.NewNopLogger(), observability.NewMetrics(), nopTracer(t))
	assert.ErrorContains(t, err, "no handler")
}

func TestDispatcher_RecordsMetrics(t *testing.T) {
	s := newTestServer(t, testConfig())

	for _, path := range []string{"/health", "/health", "/missing", "/other-missing"} {
		s.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", path, nil))
	}

	m := s.Metrics()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestCount.WithLabelValues("GET", "/health", "200")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestCount.WithLabelValues("GET", "unmatched", "404")))
}

func nopTracer(t *testing.T) *observability.Tracer {
	t.Helper()
	tracer, err := observability.NewTracer(config.DefaultTracingConfig(), config.DefaultAppConfig())
	require.NoError(t, err)
	return tracer
}

func TestDispatcher_ResponseValidation(t *testing.T) {
	tests := []struct {
		name     string
		validate bool
		path     string
		handler  api.HandlerFunc
		wantWarn int
	}{
		{
			name:     "documented response",
			validate: true,
			path:     "/health",
		},
		{
			name:     "not found body",
			validate: true,
			path:     "/nonexistent",
		},
		{
			name:     "drifted response",
			validate: true,
			path:     "/health",
			handler:  func(*http.Request) (any, error) { return map[string]string{"status": "sick"}, nil },
			wantWarn: 1,
		},
		{
			name:    "drift ignored when disabled",
			path:    "/health",
			handler: func(*http.Request) (any, error) { return map[string]string{"status": "sick"}, nil },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.WarnLevel)
			cfg := testConfig()
			cfg.Server.ValidateResponses = tt.validate

			opts := []Option{WithLogger(&observability.Logger{Logger: zap.New(core)})}
			if tt.handler != nil {
				opts = append(opts, WithRoutes(func(*api.Handlers) []Route {
					return []Route{{Method: "GET", Path: "/health", Handler: tt.handler}}
				}))
			}
			s := newTestServer(t, cfg, opts...)

			rr := httptest.NewRecorder()
			s.Handler().ServeHTTP(rr, httptest.NewRequest("GET", tt.path, nil))

			assert.Equal(t, tt.wantWarn, logs.FilterMessage("Response does not match API document").Len())
		})
	}
}

func TestNew_LogsAPIDocument(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	newTestServer(t, testConfig(), WithLogger(&observability.Logger{Logger: zap.New(core)}))

	entries := logs.FilterMessage("API document loaded").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "Tekton Pipeline Demo", fields["title"])
	assert.Equal(t, []any{"GET /", "GET /api/info", "GET /health"}, fields["operations"])
}
