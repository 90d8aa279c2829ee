// Package archive persists update events off the channel's hot path.
package archive

import (
	"context"
	"io"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"pert-dashboard/internal/domain"
	"pert-dashboard/internal/observability"
	"pert-dashboard/internal/storage"
)

// DefaultBufferSize is the number of events held while the store is slow.
const DefaultBufferSize = 256

// drainTimeout bounds the final flush after cancellation.
const drainTimeout = 5 * time.Second

// Options contains configuration for creating an Archiver.
type Options struct {
	Store      storage.EventStore
	BufferSize int // Default: 256
	Logger     *log.Logger
	Now        func() time.Time
	NewID      func() string // Default: uuid.NewString
}

// Archiver copies published events into an EventStore from a single
// goroutine. Publish never blocks: when the buffer is full the event is
// dropped and counted.
type Archiver struct {
	store   storage.EventStore
	events  chan domain.UpdateEvent
	logger  *log.Logger
	now     func() time.Time
	newID   func() string
	dropped atomic.Int64
	stored  atomic.Int64
}

// New creates a new Archiver.
func New(opts Options) *Archiver {
	size := opts.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	return &Archiver{
		store:  opts.Store,
		events: make(chan domain.UpdateEvent, size),
		logger: logger,
		now:    now,
		newID:  newID,
	}
}

// Publish queues an event. Returns false if the event was dropped.
// Suitable as a realtime.Options.OnEvent hook.
func (a *Archiver) Publish(e domain.UpdateEvent) bool {
	select {
	case a.events <- e.Clone():
		return true
	default:
		a.dropped.Add(1)
		observability.RecordMessageDropped("archive_full")
		return false
	}
}

// Dropped returns the number of events dropped because the buffer was full.
func (a *Archiver) Dropped() int64 {
	return a.dropped.Load()
}

// Stored returns the number of events written to the store.
func (a *Archiver) Stored() int64 {
	return a.stored.Load()
}

// Run writes queued events until ctx is cancelled, then drains what is
// already buffered and returns ctx.Err().
func (a *Archiver) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			a.drain(ctx)
			return ctx.Err()
		case e := <-a.events:
			a.write(ctx, e)
		}
	}
}

func (a *Archiver) drain(ctx context.Context) {
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()

	for {
		select {
		case e := <-a.events:
			a.write(flushCtx, e)
		default:
			return
		}
	}
}

func (a *Archiver) write(ctx context.Context, e domain.UpdateEvent) {
	record := &domain.EventRecord{
		ID:         a.newID(),
		Event:      e,
		ReceivedAt: a.now().UTC(),
	}
	if err := a.store.Insert(ctx, record); err != nil {
		a.logger.Printf("archive event %s: %v", e.Kind, err)
		return
	}
	a.stored.Add(1)
	observability.RecordEventArchived()
}
