package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// QueueConfig contains queue configuration.
type QueueConfig struct {
	Capacity   int
	MaxRetries int
}

// DefaultQueueConfig returns default queue configuration.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Capacity:   100,
		MaxRetries: 5,
	}
}

// Queue is the ordered, capacity-bounded collection of pending changes.
// Entries are kept in insertion order; later updates to the same logical
// object must not be delivered before earlier ones. Safe for concurrent use:
// any number of call sites may enqueue while the orchestrator drains.
type Queue struct {
	mu      sync.Mutex
	entries []*Entry
	config  QueueConfig
	store   Store
}

// NewQueue creates a queue backed by the given store and loads the persisted
// snapshot from it.
func NewQueue(ctx context.Context, config QueueConfig, store Store) (*Queue, error) {
	if config.Capacity <= 0 {
		config.Capacity = DefaultQueueConfig().Capacity
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultQueueConfig().MaxRetries
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load queue snapshot: %w", err)
	}

	entries := make([]*Entry, 0, len(loaded))
	for i := range loaded {
		e := loaded[i]
		entries = append(entries, &e)
	}

	return &Queue{
		entries: entries,
		config:  config,
		store:   store,
	}, nil
}

// Enqueue appends a new pending entry and persists the queue. It fails only
// on missing or unknown entityType/action or a missing payload. When the
// queue is at capacity the oldest entry is evicted to admit the new one.
func (q *Queue) Enqueue(ctx context.Context, entityType EntityType, action Action, payload json.RawMessage) (string, error) {
	if entityType == "" {
		return "", ErrMissingEntityType
	}
	if !entityType.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownEntityType, entityType)
	}
	if action == "" {
		return "", ErrMissingAction
	}
	if !action.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if len(payload) == 0 {
		return "", ErrMissingPayload
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) >= q.config.Capacity {
		evicted := q.entries[0]
		q.entries = q.entries[1:]
		recordEviction()
		slog.Warn("queue at capacity, evicting oldest entry",
			"evicted_id", evicted.ID,
			"evicted_type", evicted.EntityType,
			"capacity", q.config.Capacity,
		)
	}

	entry := &Entry{
		ID:         uuid.New().String(),
		EntityType: entityType,
		Action:     action,
		Payload:    payload,
		Status:     StatusPending,
		CreatedAt:  time.Now(),
	}
	q.entries = append(q.entries, entry)

	if err := q.persistLocked(ctx); err != nil {
		return "", err
	}

	return entry.ID, nil
}

// ListPending returns pending entries in insertion order.
func (q *Queue) ListPending() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending := make([]Entry, 0, len(q.entries))
	for _, e := range q.entries {
		if e.Status == StatusPending {
			pending = append(pending, *e)
		}
	}
	return pending
}

// Get returns a copy of the entry with the given id.
func (q *Queue) Get(id string) (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if e := q.findLocked(id); e != nil {
		return *e, true
	}
	return Entry{}, false
}

// MarkSynced flips a pending entry to synced. Synced is terminal.
func (q *Queue) MarkSynced(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e := q.findLocked(id)
	if e == nil {
		return ErrEntryNotFound
	}
	if e.Status != StatusPending {
		return nil
	}

	e.Status = StatusSynced
	e.Error = ""
	return q.persistLocked(ctx)
}

// MarkFailed flips a pending entry to failed with the given reason. Failed
// is terminal; the entry stays in the queue until removed or retried
// explicitly by the user.
func (q *Queue) MarkFailed(ctx context.Context, id string, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e := q.findLocked(id)
	if e == nil {
		return ErrEntryNotFound
	}
	if e.Status != StatusPending {
		return nil
	}

	e.Status = StatusFailed
	if cause != nil {
		e.Error = cause.Error()
	}
	return q.persistLocked(ctx)
}

// IncrementRetry records a failed delivery attempt. Once RetryCount exceeds
// MaxRetries the entry flips to failed. Returns whether the entry is still
// eligible for another attempt.
func (q *Queue) IncrementRetry(ctx context.Context, id string, cause error) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e := q.findLocked(id)
	if e == nil {
		return false, ErrEntryNotFound
	}
	if e.Status != StatusPending {
		return false, nil
	}

	now := time.Now()
	e.RetryCount++
	e.LastAttemptAt = &now

	stillPending := e.RetryCount <= q.config.MaxRetries
	if !stillPending {
		e.Status = StatusFailed
		if cause != nil {
			e.Error = fmt.Sprintf("retries exhausted: %v", cause)
		} else {
			e.Error = "retries exhausted"
		}
	}

	if err := q.persistLocked(ctx); err != nil {
		return stillPending, err
	}
	return stillPending, nil
}

// Remove deletes an entry regardless of status.
func (q *Queue) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, e := range q.entries {
		if e.ID == id {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return q.persistLocked(ctx)
		}
	}
	return ErrEntryNotFound
}

// ClearSynced drops all synced entries. Returns how many were removed.
func (q *Queue) ClearSynced(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.entries[:0]
	removed := 0
	for _, e := range q.entries {
		if e.Status == StatusSynced {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	q.entries = kept

	if removed == 0 {
		return 0, nil
	}
	if err := q.persistLocked(ctx); err != nil {
		return removed, err
	}
	return removed, nil
}

// RetryFailed resets terminally failed entries back to pending on explicit
// user request. Returns how many were reset.
func (q *Queue) RetryFailed(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	count := 0
	for _, e := range q.entries {
		if e.Status == StatusFailed {
			e.Status = StatusPending
			e.RetryCount = 0
			e.Error = ""
			count++
		}
	}

	if count == 0 {
		return 0, nil
	}
	if err := q.persistLocked(ctx); err != nil {
		return count, err
	}
	return count, nil
}

// QueueStats summarizes queue contents.
type QueueStats struct {
	Total   int
	Pending int
	Synced  int
	Failed  int
	ByType  map[EntityType]int
}

// Stats returns queue statistics.
func (q *Queue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.statsLocked()
}

func (q *Queue) findLocked(id string) *Entry {
	for _, e := range q.entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// persistLocked writes the full snapshot to the store. Called with q.mu held
// after every in-memory change, so a mutation is never observable before it
// is durable.
func (q *Queue) persistLocked(ctx context.Context) error {
	snapshot := make([]Entry, 0, len(q.entries))
	for _, e := range q.entries {
		snapshot = append(snapshot, *e)
	}
	if err := q.store.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("persist queue snapshot: %w", err)
	}
	recordQueueStats(q.statsLocked())
	return nil
}

func (q *Queue) statsLocked() QueueStats {
	stats := QueueStats{ByType: make(map[EntityType]int)}
	for _, e := range q.entries {
		stats.Total++
		stats.ByType[e.EntityType]++
		switch e.Status {
		case StatusPending:
			stats.Pending++
		case StatusSynced:
			stats.Synced++
		case StatusFailed:
			stats.Failed++
		}
	}
	return stats
}
