package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pert-dashboard/internal/domain"
)

func TestParseTasks_Document(t *testing.T) {
	tasks, err := parseTasks([]byte(`
tasks:
  - id: design
    optimistic: 2
    most_likely: 4
    pessimistic: 8
  - id: build
    optimistic: 5
    most_likely: 7
    pessimistic: 12
    dependencies: [design]
`))
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "design", tasks[0].ID)
	assert.Equal(t, 4.0, tasks[0].MostLikely)
	assert.Equal(t, []string{"design"}, tasks[1].Dependencies)
}

func TestParseTasks_BareList(t *testing.T) {
	tasks, err := parseTasks([]byte(`- {id: a, optimistic: 1, most_likely: 2, pessimistic: 3}`))
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, 3.0, tasks[0].Pessimistic)
}

func TestParseTasks_JSON(t *testing.T) {
	tasks, err := parseTasks([]byte(`[{"id": "a", "optimistic": 1, "most_likely": 2, "pessimistic": 3, "dependencies": []}]`))
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "a", tasks[0].ID)
}

func TestParseTasks_Invalid(t *testing.T) {
	_, err := parseTasks([]byte(`tasks: []`))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = parseTasks([]byte("tasks:\n  - id: a\n    optimistic: -1\n"))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = parseTasks([]byte("tasks: [unclosed"))
	assert.Error(t, err)
}

func TestLoadTasks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- id: only\n  most_likely: 1\n"), 0o600))

	tasks, err := loadTasks(path)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)

	_, err = loadTasks(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
