package api

import (
	"net/http"

	"github.com/leslieo2/tekton-pipeline-demo/internal/config"
	"github.com/leslieo2/tekton-pipeline-demo/internal/constants"
)

// HandlerFunc produces the body for a matched route. A non-nil error is
// mapped to a status and message by the dispatcher.
type HandlerFunc func(r *http.Request) (any, error)

// Handlers builds the static payloads. It holds only immutable state.
type Handlers struct {
	app   config.AppConfig
	clock Clock
}

func NewHandlers(app config.AppConfig, clock Clock) *Handlers {
	if clock == nil {
		clock = NewMonotonicClock(RealClock{})
	}
	return &Handlers{app: app, clock: clock}
}

func (h *Handlers) Health(_ *http.Request) (any, error) {
	return HealthStatus{
		Status:    StatusHealthy,
		Timestamp: h.clock.Now().UTC().Format(TimestampLayout),
		Version:   h.app.Version,
	}, nil
}

func (h *Handlers) Welcome(_ *http.Request) (any, error) {
	return WelcomeMessage{
		Message:     WelcomeText,
		Version:     h.app.Version,
		Environment: h.app.Environment,
	}, nil
}

func (h *Handlers) Info(_ *http.Request) (any, error) {
	return ServiceInfo{
		Service:     constants.ServiceName,
		Description: ServiceDescription,
		Features:    Features(),
	}, nil
}

// NotFound answers every request outside the route table.
func NotFound(_ *http.Request) (any, error) {
	return nil, ErrRouteNotFound
}
