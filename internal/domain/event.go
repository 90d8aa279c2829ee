package domain

import (
	"encoding/json"
	"time"
)

// EventKind classifies an UpdateEvent.
type EventKind string

const (
	EventCalculationComplete EventKind = "calculation_complete"
	EventTaskUpdated         EventKind = "task_updated"
	EventError               EventKind = "error"
	EventProgress            EventKind = "progress"
	EventInfo                EventKind = "info"
)

// String returns the string representation of EventKind.
func (k EventKind) String() string {
	return string(k)
}

// IsValid checks if the kind is a known value.
func (k EventKind) IsValid() bool {
	switch k {
	case EventCalculationComplete, EventTaskUpdated, EventError, EventProgress, EventInfo:
		return true
	}
	return false
}

// ParseEventKind maps a discriminator to a kind. Unknown values become EventInfo.
func ParseEventKind(s string) EventKind {
	k := EventKind(s)
	if k.IsValid() {
		return k
	}
	return EventInfo
}

// UpdateEvent is the canonical envelope for every push notification.
// Treat as immutable once created.
type UpdateEvent struct {
	Kind      EventKind       `json:"type"`
	Message   string          `json:"message"`
	Timestamp time.Time       `json:"timestamp"`
	Details   string          `json:"details,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Clone returns a copy that shares no memory with e.
func (e UpdateEvent) Clone() UpdateEvent {
	c := e
	if e.Data != nil {
		c.Data = append(json.RawMessage(nil), e.Data...)
	}
	return c
}
