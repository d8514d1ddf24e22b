package requester

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrParsingBody      = errors.New("could not read the response body")
	ErrUnexpectedStatus = errors.New("unexpected status code")
	ErrNoBaseURL        = errors.New("no base URL provided")
)

// APIError is a failed exchange with a provider. Code and Message are
// filled in by the provider-specific parser when the error body carries
// them.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("status %d, code: %s, message: %s", e.StatusCode, e.Code, e.Message)
	case e.Message != "":
		return fmt.Sprintf("status %d, message: %s", e.StatusCode, e.Message)
	case e.Code != "":
		return fmt.Sprintf("status %d, code: %s", e.StatusCode, e.Code)
	default:
		return fmt.Sprintf("status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
}

func (e *APIError) Unwrap() error {
	return ErrUnexpectedStatus
}

// StatusCode extracts the HTTP status from an error chain, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
