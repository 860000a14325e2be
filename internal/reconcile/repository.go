package reconcile

import "context"

// Repository defines the authoritative-store operations the endpoint needs.
// Every write is scoped to the owning user; upserts key on the record's
// identity-scoped natural key, which is what makes them safe under retried
// delivery.
type Repository interface {
	// Idempotent per-entry upserts (typed batch path).
	UpsertBookmark(ctx context.Context, userID string, p BookmarkPayload) error
	DeleteBookmark(ctx context.Context, userID string, surahID, verseID int) error
	UpsertJournalEntry(ctx context.Context, userID string, p JournalPayload) error
	DeleteJournalEntry(ctx context.Context, userID, clientID string) error
	UpsertMissionCompletion(ctx context.Context, userID string, p MissionCompletionPayload) error
	UpsertMissionProgress(ctx context.Context, userID string, p MissionProgressPayload) error
	UpsertDailyActivity(ctx context.Context, userID string, p DailyActivityPayload) error
	UpsertReadingState(ctx context.Context, userID string, p ReadingPositionPayload) error

	// MergeSettings folds the submitted fields into the stored blob; it
	// never replaces the blob wholesale.
	MergeSettings(ctx context.Context, userID string, fields map[string]any) error

	// Bulk insert-skip-duplicates (legacy path). Each call must issue one
	// bulk write, not N individual ones: this path migrates a user's whole
	// local history in one shot. Returns how many rows were inserted.
	BulkInsertBookmarks(ctx context.Context, userID string, items []BookmarkPayload) (int, error)
	BulkInsertJournalEntries(ctx context.Context, userID string, items []JournalPayload) (int, error)
	BulkInsertMissionCompletions(ctx context.Context, userID string, items []MissionCompletionPayload) (int, error)
}
