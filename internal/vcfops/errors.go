package vcfops

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError is a non-2xx response from the suite API.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error: status=%d, body=%s", e.StatusCode, e.Body)
}

// AuthError means token acquisition or authorization failed beyond recovery.
// It is fatal for the current cycle but never silently swallowed.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsAuthStatus reports whether the error is an HTTP 401, the signal that the
// current token expired and should be invalidated and fetched again.
func IsAuthStatus(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusUnauthorized
	}
	return false
}

// IsAuthError reports whether the error is a fatal authentication failure.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
