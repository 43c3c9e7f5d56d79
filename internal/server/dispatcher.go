package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/leslieo2/tekton-pipeline-demo/internal/api"
	"github.com/leslieo2/tekton-pipeline-demo/internal/constants"
	"github.com/leslieo2/tekton-pipeline-demo/internal/observability"
	"github.com/leslieo2/tekton-pipeline-demo/internal/openapi"
	"github.com/leslieo2/tekton-pipeline-demo/internal/server/middleware"
)

// Route binds a method and a canonical path to a handler.
type Route struct {
	Method  string
	Path    string
	Handler api.HandlerFunc
}

const errorSchema = "ErrorResponse"

// DefaultRoutes is the public route table, in match order.
func DefaultRoutes(h *api.Handlers) []Route {
	return []Route{
		{Method: constants.MethodGET, Path: constants.PathHealth, Handler: h.Health},
		{Method: constants.MethodGET, Path: constants.PathRoot, Handler: h.Welcome},
		{Method: constants.MethodGET, Path: constants.PathInfo, Handler: h.Info},
	}
}

// Dispatcher walks the route table in order and serialises whatever the
// first matching handler returns. Requests that match nothing get 404.
type Dispatcher struct {
	routes   []Route
	doc      *openapi.Document
	validate bool

	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// NewDispatcher fails if any route is missing from the API document.
func NewDispatcher(routes []Route, doc *openapi.Document, logger *observability.Logger, metrics *observability.Metrics, tracer *observability.Tracer) (*Dispatcher, error) {
	for _, route := range routes {
		if route.Handler == nil {
			return nil, fmt.Errorf("route %s %s has no handler", route.Method, route.Path)
		}
		if !doc.HasOperation(route.Method, route.Path) {
			return nil, fmt.Errorf("route %s %s is not described in the API document", route.Method, route.Path)
		}
	}

	return &Dispatcher{
		routes:  routes,
		doc:     doc,
		logger:  logger,
		metrics: metrics,
		tracer:  tracer,
	}, nil
}

// EnableResponseValidation checks every response against the API document
// and logs a warning on mismatch. Responses are sent unchanged either way.
func (d *Dispatcher) EnableResponseValidation() {
	d.validate = true
}

// match answers HEAD from GET routes and compares canonical paths.
func (d *Dispatcher) match(r *http.Request) (Route, bool) {
	method := r.Method
	if method == http.MethodHead {
		method = http.MethodGet
	}
	path := api.CanonicalPath(r.URL.Path)

	for _, route := range d.routes {
		if route.Method == method && api.CanonicalPath(route.Path) == path {
			return route, true
		}
	}
	return Route{}, false
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	handler := api.NotFound
	endpoint := constants.UnmatchedRouteLabel
	route, matched := d.match(r)
	if matched {
		handler = route.Handler
		endpoint = route.Path
	}

	ctx, span := d.tracer.StartSpan(r.Context(), "handle_request",
		attribute.String("http.method", r.Method),
		attribute.String("http.route", endpoint),
		attribute.String("http.user_agent", r.UserAgent()),
	)
	defer span.End()

	status := http.StatusOK
	body, err := handler(r.WithContext(ctx))
	var buf []byte
	if err == nil {
		buf, err = json.Marshal(body)
	}
	if err != nil {
		var message string
		status, message = api.Classify(err)
		buf = d.errorBody(message)
		d.logFailure(r, endpoint, status, err)
		if status >= http.StatusInternalServerError {
			span.RecordError(err)
			span.SetStatus(codes.Error, message)
		}
	}
	span.SetAttributes(attribute.Int("http.status_code", status))

	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.Header().Set(constants.HeaderContentLength, strconv.Itoa(len(buf)))
	if d.validate {
		d.checkResponse(r, route, matched, status, w.Header(), buf)
	}
	w.WriteHeader(status)

	n := 0
	if r.Method != http.MethodHead {
		var writeErr error
		n, writeErr = w.Write(buf)
		if writeErr != nil {
			d.logger.Logger.Debug("Failed to write response", zap.Error(writeErr), zap.String("path", r.URL.Path))
		}
	}

	d.metrics.RecordRequest(r.Method, endpoint, status, time.Since(start), int64(n))
}

func (d *Dispatcher) checkResponse(r *http.Request, route Route, matched bool, status int, header http.Header, body []byte) {
	var err error
	if matched {
		// HEAD is documented through its GET operation
		req := r.Clone(r.Context())
		req.Method = route.Method
		err = d.doc.ValidateResponse(r.Context(), req, route.Path, status, header, body)
	} else {
		err = d.doc.ValidateSchema(errorSchema, body)
	}
	if err != nil {
		d.logger.Logger.Warn("Response does not match API document",
			zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status_code", status),
			zap.Error(err),
		)
	}
}

func (d *Dispatcher) errorBody(message string) []byte {
	buf, err := json.Marshal(api.ErrorResponse{Error: message})
	if err != nil {
		// unreachable for a struct with one string field
		return []byte(`{"error":"` + constants.MessageInternalError + `"}`)
	}
	return buf
}

func (d *Dispatcher) logFailure(r *http.Request, endpoint string, status int, err error) {
	fields := []zap.Field{
		zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("endpoint", endpoint),
		zap.Int("status_code", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		d.logger.Logger.Error("Request failed", fields...)
		return
	}
	d.logger.Logger.Debug("Request rejected", fields...)
}
