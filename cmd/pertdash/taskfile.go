package main

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"pert-dashboard/internal/domain"
)

// taskFile is the document form of a task set:
//
//	tasks:
//	  - id: design
//	    optimistic: 2
//	    most_likely: 4
//	    pessimistic: 8
//	    dependencies: []
//
// A bare list of tasks is accepted too. JSON is valid input.
type taskFile struct {
	Tasks []domain.Task `yaml:"tasks"`
}

// parseTasks decodes a task set and validates it.
func parseTasks(data []byte) ([]domain.Task, error) {
	var tasks []domain.Task

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '-' || trimmed[0] == '[') {
		if err := yaml.Unmarshal(data, &tasks); err != nil {
			return nil, fmt.Errorf("decode task list: %w", err)
		}
	} else {
		var doc taskFile
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode task file: %w", err)
		}
		tasks = doc.Tasks
	}

	if err := domain.ValidateTasks(tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// loadTasks reads and parses a task file.
func loadTasks(path string) ([]domain.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task file: %w", err)
	}
	tasks, err := parseTasks(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tasks, nil
}
