package sync

import "context"

// Store is the device-local durable store behind the queue. Every queue
// mutation persists the full snapshot through it before returning, so a
// reload never observes a half-applied mutation.
type Store interface {
	Save(ctx context.Context, entries []Entry) error
	Load(ctx context.Context) ([]Entry, error)
}
