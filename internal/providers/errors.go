package providers

import (
	"fmt"

	"github.com/pkg/errors"
)

// APIError is a failed provider call that carried an HTTP status.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: API error (status %d)", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: API error (status %d): %s", e.Op, e.StatusCode, e.Message)
}

// IsAuthError checks if an error is an authentication error.
func IsAuthError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == 401 || apiErr.StatusCode == 403
}
