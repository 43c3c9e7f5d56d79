package api

import (
	"errors"
	"net/http"

	"github.com/leslieo2/tekton-pipeline-demo/internal/constants"
)

// Error is a failure that is safe to show to clients. Any other error
// reaching the dispatcher is treated as an internal fault.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a client-facing failure.
func NewError(status int, message string) *Error {
	return &Error{Status: status, Message: message}
}

// ErrRouteNotFound is returned for any request outside the route table.
var ErrRouteNotFound = NewError(http.StatusNotFound, constants.MessageRouteNotFound)

// Classify maps an error to the status code and message sent to the client.
// Unknown errors become 500 with a fixed message so internals never leak.
func Classify(err error) (int, string) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status, apiErr.Message
	}
	return http.StatusInternalServerError, constants.MessageInternalError
}
