package analysis

import (
	"errors"
	"fmt"
)

// ErrRequest is wrapped by every RequestError.
var ErrRequest = errors.New("analysis request failed")

// RequestError reports a failed call to the analysis engine: a transport
// error, a non-2xx status or an undecodable body. It is never retried here.
type RequestError struct {
	Op         string // operation, e.g. "compare-pert"
	StatusCode int    // 0 when no response was received
	Message    string // human-readable description for the user
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Message, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Unwrap returns both the sentinel and the underlying cause.
func (e *RequestError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRequest}
	}
	return []error{ErrRequest, e.Err}
}
