package realtime

import (
	"errors"
	"fmt"
)

// ErrParse is wrapped by every ParseError.
var ErrParse = errors.New("unparseable push message")

// ParseError reports an inbound payload that is not valid JSON or matches
// neither the envelope nor the raw-result shape. The message is dropped.
type ParseError struct {
	Reason  string
	Payload string // truncated for logging
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse push message: %s (payload %q)", e.Reason, e.Payload)
}

// Unwrap allows errors.Is(err, ErrParse).
func (e *ParseError) Unwrap() error {
	return ErrParse
}

// ConnectionError reports a failed dial or an unexpected channel closure.
// It only drives the reconnect state machine and is never returned to callers.
type ConnectionError struct {
	Op  string // "dial" or "read"
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("channel %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
