package llm

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest marks caller errors: empty requests and requests
	// the sidecar rejected with a 4xx status. Never retried.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrUnavailable marks transport or availability failures that
	// survived the full retry budget.
	ErrUnavailable = errors.New("sidecar unavailable")
)

// UnavailableError reports an exhausted retry budget. It matches
// ErrUnavailable under errors.Is and exposes the last underlying error.
type UnavailableError struct {
	Attempts int
	LastErr  error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("sidecar unavailable after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *UnavailableError) Unwrap() []error {
	return []error{ErrUnavailable, e.LastErr}
}

// statusError carries a non-2xx sidecar status so retry classification
// can distinguish 4xx from 5xx.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("sidecar returned status %d", e.code)
	}
	return fmt.Sprintf("sidecar returned status %d: %s", e.code, e.body)
}
