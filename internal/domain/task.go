package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrValidation is the sentinel wrapped by every ValidationError.
var ErrValidation = errors.New("validation failed")

// Task is a project task with a three-point duration estimate.
// Corresponds to the task objects exchanged with the analysis engine.
type Task struct {
	ID           string   `json:"id" yaml:"id"`
	Optimistic   float64  `json:"optimistic" yaml:"optimistic"`
	MostLikely   float64  `json:"most_likely" yaml:"most_likely"`
	Pessimistic  float64  `json:"pessimistic" yaml:"pessimistic"`
	Dependencies []string `json:"dependencies" yaml:"dependencies"`
}

// Clone returns a deep copy of the task.
func (t Task) Clone() Task {
	c := t
	if t.Dependencies != nil {
		c.Dependencies = append([]string(nil), t.Dependencies...)
	}
	return c
}

// ValidationError reports invalid task data supplied by the caller.
type ValidationError struct {
	TaskID string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.TaskID == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("task %q: invalid %s: %s", e.TaskID, e.Field, e.Reason)
}

// Unwrap allows errors.Is(err, ErrValidation).
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Validate checks a single task in isolation.
func (t Task) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return &ValidationError{Field: "id", Reason: "task id cannot be empty"}
	}

	durations := []struct {
		name  string
		value float64
	}{
		{"optimistic", t.Optimistic},
		{"most_likely", t.MostLikely},
		{"pessimistic", t.Pessimistic},
	}
	for _, d := range durations {
		if d.value < 0 {
			return &ValidationError{TaskID: t.ID, Field: d.name, Reason: "duration must be non-negative"}
		}
	}

	seen := make(map[string]struct{}, len(t.Dependencies))
	for _, dep := range t.Dependencies {
		if strings.TrimSpace(dep) == "" {
			return &ValidationError{TaskID: t.ID, Field: "dependencies", Reason: "dependency id cannot be empty"}
		}
		if dep == t.ID {
			return &ValidationError{TaskID: t.ID, Field: "dependencies", Reason: "task cannot depend on itself"}
		}
		if _, dup := seen[dep]; dup {
			return &ValidationError{TaskID: t.ID, Field: "dependencies", Reason: fmt.Sprintf("duplicate dependency %q", dep)}
		}
		seen[dep] = struct{}{}
	}

	return nil
}

// ValidateTasks checks a task set before submission: every task must be
// valid on its own, the set must be non-empty and ids must be unique.
func ValidateTasks(tasks []Task) error {
	if len(tasks) == 0 {
		return &ValidationError{Field: "tasks", Reason: "add tasks first"}
	}

	ids := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		if err := t.Validate(); err != nil {
			return err
		}
		if _, dup := ids[t.ID]; dup {
			return &ValidationError{TaskID: t.ID, Field: "id", Reason: "duplicate task id"}
		}
		ids[t.ID] = struct{}{}
	}

	return nil
}
