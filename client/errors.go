package client

import (
	"errors"
	"fmt"
	"net/http"

	v1 "medportal/pkg/api/v1"
)

var (
	// ErrAuthRequired is matched by every 401-shaped *APIError: no session,
	// no refresh token, a failed refresh, or a 401 after the one retry.
	ErrAuthRequired = errors.New("authentication required")
	// ErrMalformedResponse wraps decode failures on successful responses.
	ErrMalformedResponse = errors.New("malformed server response")
)

// APIError is returned for every non-success response.
type APIError struct {
	Status  int
	Message string
	// Details holds field level validation messages, keyed by field name.
	Details map[string]string
}

func (e *APIError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("api error %d: %s (%d field errors)", e.Status, e.Message, len(e.Details))
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrAuthRequired && e.Status == http.StatusUnauthorized
}

func authRequired() *APIError {
	return &APIError{Status: http.StatusUnauthorized, Message: ErrAuthRequired.Error()}
}

func newAPIError(status int, body []byte) *APIError {
	msg, details := v1.ParseErrorBody(body).Resolve(status)
	return &APIError{Status: status, Message: msg, Details: details}
}

// StatusOf reports the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}
