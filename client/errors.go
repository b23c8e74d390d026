package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrAuthenticationFailed marks a flow the provider side terminated,
// e.g. the user denied consent. The wrapped text carries the recorded
// reason.
var ErrAuthenticationFailed = errors.New("authentication failed")

// APIError is a non-2xx response from the auth service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("auth service returned %d: %s", e.StatusCode, e.Message)
}

// apiError drains the service's {"error": ...} body into an APIError,
// falling back to the status text when the body is not that shape.
func apiError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}

	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
	}
	return apiErr
}
