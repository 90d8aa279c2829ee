package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"pert-dashboard/internal/domain"
	"pert-dashboard/internal/storage"
)

func TestComparisonStore_InsertAndRecent(t *testing.T) {
	store := NewComparisonStore()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"c1", "c2", "c3"} {
		rec := &domain.ComparisonRecord{
			ID:        id,
			TaskCount: i + 1,
			Result: domain.ComparisonResult{
				Classical:  domain.ClassicalSummary{ProjectDuration: float64(10 * (i + 1)), CriticalPath: []string{}},
				Comparison: &domain.ComparisonDelta{Difference: float64(i)},
			},
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert %s failed: %v", id, err)
		}
	}

	recent, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recent))
	}
	if recent[0].ID != "c3" {
		t.Errorf("expected newest first, got %s", recent[0].ID)
	}

	// Returned records are copies
	recent[0].Result.Comparison.Difference = 99
	again, _ := store.Recent(ctx, 1)
	if again[0].Result.Comparison.Difference != 2 {
		t.Errorf("stored record mutated: %v", again[0].Result.Comparison.Difference)
	}
}

func TestComparisonStore_InsertDuplicate(t *testing.T) {
	store := NewComparisonStore()
	ctx := context.Background()

	rec := &domain.ComparisonRecord{ID: "c1", CreatedAt: time.Now()}
	_ = store.Insert(ctx, rec)
	if err := store.Insert(ctx, rec); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}
