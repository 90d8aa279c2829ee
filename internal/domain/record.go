package domain

import "time"

// EventRecord is an archived UpdateEvent.
type EventRecord struct {
	ID         string      `json:"id"` // uuid
	Event      UpdateEvent `json:"event"`
	ReceivedAt time.Time   `json:"received_at"`
}

// ComparisonRecord is a stored comparison result together with the size of
// the task set it was computed from.
type ComparisonRecord struct {
	ID        string           `json:"id"` // uuid
	TaskCount int              `json:"task_count"`
	Result    ComparisonResult `json:"result"`
	CreatedAt time.Time        `json:"created_at"`
}

// Clone returns a deep copy of the record.
func (r EventRecord) Clone() EventRecord {
	c := r
	c.Event = r.Event.Clone()
	return c
}

// Clone returns a deep copy of the record.
func (r ComparisonRecord) Clone() ComparisonRecord {
	c := r
	c.Result = r.Result.Clone()
	return c
}
