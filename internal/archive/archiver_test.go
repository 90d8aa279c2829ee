package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pert-dashboard/internal/domain"
	"pert-dashboard/internal/storage/memory"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestArchiver_StoresPublishedEvents(t *testing.T) {
	store := memory.NewEventStore()
	a := New(Options{Store: store, Logger: quietLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	for i := 0; i < 3; i++ {
		require.True(t, a.Publish(domain.UpdateEvent{Kind: domain.EventProgress, Message: fmt.Sprintf("step %d", i)}))
	}

	require.Eventually(t, func() bool { return a.Stored() == 3 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	recent, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	ids := map[string]bool{}
	for _, r := range recent {
		assert.NotEmpty(t, r.ID)
		ids[r.ID] = true
	}
	assert.Len(t, ids, 3, "record ids are unique")
}

func TestArchiver_DropsWhenFull(t *testing.T) {
	a := New(Options{Store: memory.NewEventStore(), BufferSize: 2, Logger: quietLogger()})

	assert.True(t, a.Publish(domain.UpdateEvent{Message: "a"}))
	assert.True(t, a.Publish(domain.UpdateEvent{Message: "b"}))
	assert.False(t, a.Publish(domain.UpdateEvent{Message: "c"}))
	assert.Equal(t, int64(1), a.Dropped())
}

func TestArchiver_DrainsOnCancel(t *testing.T) {
	store := memory.NewEventStore()
	a := New(Options{Store: store, BufferSize: 8, Logger: quietLogger()})

	for i := 0; i < 5; i++ {
		a.Publish(domain.UpdateEvent{Message: fmt.Sprintf("e%d", i)})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, a.Run(ctx), context.Canceled)

	count, _ := store.Count(context.Background())
	assert.Equal(t, 5, count)
}

type failingStore struct {
	*memory.EventStore
	calls atomic.Int32
}

func (f *failingStore) Insert(context.Context, *domain.EventRecord) error {
	f.calls.Add(1)
	return errors.New("disk full")
}

func TestArchiver_StoreErrorsAreLogged(t *testing.T) {
	store := &failingStore{EventStore: memory.NewEventStore()}
	a := New(Options{Store: store, Logger: quietLogger()})

	a.Publish(domain.UpdateEvent{Message: "x"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = a.Run(ctx)

	assert.Equal(t, int32(1), store.calls.Load())
	assert.Zero(t, a.Stored())
}

func TestNew_NilLoggerDiscards(t *testing.T) {
	a := New(Options{Store: memory.NewEventStore()})
	require.NotNil(t, a.logger)
	assert.Equal(t, io.Discard, a.logger.Writer())
}
