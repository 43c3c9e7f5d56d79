package api

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// WelcomeMessage is the body of GET /.
type WelcomeMessage struct {
	Message     string `json:"message"`
	Version     string `json:"version"`
	Environment string `json:"environment"`
}

// ServiceInfo is the body of GET /api/info.
type ServiceInfo struct {
	Service     string   `json:"service"`
	Description string   `json:"description"`
	Features    []string `json:"features"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

const (
	StatusHealthy      = "healthy"
	WelcomeText        = "Welcome to Tekton Pipeline Demo!"
	ServiceDescription = "A sample Go application demonstrating Tekton CI/CD pipeline"

	// TimestampLayout renders UTC instants with millisecond precision,
	// e.g. 2024-05-01T12:00:00.123Z.
	TimestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Features lists what the demo service showcases, in display order.
func Features() []string {
	return []string{
		"Health check endpoint",
		"REST API",
		"Docker containerization",
		"Kubernetes deployment",
		"Tekton CI/CD pipeline",
	}
}
