package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stridehq/stride/internal/logging"
)

// SyncEvent marks one persisted progress mutation. PlanID is the zero UUID
// for mutations on a V1 record's implicit plan.
type SyncEvent struct {
	Email      string
	PlanID     uuid.UUID
	OccurredAt time.Time
}

// Pusher delivers a sync event downstream (client push, cache invalidation).
type Pusher func(ctx context.Context, event SyncEvent) error

// SyncQueue decouples progress writes from downstream notification. Enqueue
// never blocks: when the buffer is full the event is dropped and counted,
// since downstream consumers can always re-read current state.
type SyncQueue struct {
	events chan SyncEvent
	push   Pusher

	mu      sync.Mutex
	dropped int64
}

func NewSyncQueue(size int, push Pusher) *SyncQueue {
	if size <= 0 {
		size = 256
	}
	return &SyncQueue{events: make(chan SyncEvent, size), push: push}
}

// Enqueue offers an event to the queue without blocking.
func (q *SyncQueue) Enqueue(event SyncEvent) {
	select {
	case q.events <- event:
	default:
		q.mu.Lock()
		q.dropped++
		dropped := q.dropped
		q.mu.Unlock()
		logging.Warn("Sync queue full, dropping event", map[string]interface{}{
			"email":   event.Email,
			"dropped": dropped,
		})
	}
}

// Dropped reports how many events were discarded due to a full buffer.
func (q *SyncQueue) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Start consumes events until ctx is cancelled. Push failures are logged
// and skipped; the queue never retries.
func (q *SyncQueue) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-q.events:
				if q.push == nil {
					continue
				}
				if err := q.push(ctx, event); err != nil {
					logging.Error("Sync push failed", map[string]interface{}{
						"email": event.Email,
						"error": err.Error(),
					})
				}
			}
		}
	}()
}
