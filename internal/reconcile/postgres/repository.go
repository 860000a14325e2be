// Package postgres provides the PostgreSQL implementation of the
// reconciliation repository.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hasanat-app/hasanat/internal/reconcile"
)

// Repository implements reconcile.Repository using PostgreSQL. Idempotence
// comes from the identity-scoped unique constraints: a retried delivery hits
// ON CONFLICT and updates in place instead of duplicating.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// UpsertBookmark inserts or updates a bookmark keyed by
// (user_id, surah_id, verse_id).
func (r *Repository) UpsertBookmark(ctx context.Context, userID string, p reconcile.BookmarkPayload) error {
	query := `
		INSERT INTO bookmarks (user_id, surah_id, verse_id, label, color)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, surah_id, verse_id)
		DO UPDATE SET label = EXCLUDED.label, color = EXCLUDED.color, updated_at = NOW()
	`
	if _, err := r.db.Exec(ctx, query, userID, p.SurahID, p.VerseID, p.Label, p.Color); err != nil {
		return fmt.Errorf("upsert bookmark: %w", err)
	}
	return nil
}

// DeleteBookmark removes a bookmark. Deleting a bookmark that is already
// gone is a no-op so retried deletes stay idempotent.
func (r *Repository) DeleteBookmark(ctx context.Context, userID string, surahID, verseID int) error {
	query := `DELETE FROM bookmarks WHERE user_id = $1 AND surah_id = $2 AND verse_id = $3`
	if _, err := r.db.Exec(ctx, query, userID, surahID, verseID); err != nil {
		return fmt.Errorf("delete bookmark: %w", err)
	}
	return nil
}

// UpsertJournalEntry inserts or updates a journal entry keyed by its
// client-assigned id. client_id is globally unique, so a write that lands on
// another user's entry is rejected as forbidden instead of silently
// overwriting it.
func (r *Repository) UpsertJournalEntry(ctx context.Context, userID string, p reconcile.JournalPayload) error {
	query := `
		INSERT INTO journal_entries (user_id, client_id, title, body, mood)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (client_id) DO UPDATE
		SET title = EXCLUDED.title, body = EXCLUDED.body, mood = EXCLUDED.mood, updated_at = NOW()
		WHERE journal_entries.user_id = EXCLUDED.user_id
		RETURNING id
	`
	var id string
	err := r.db.QueryRow(ctx, query, userID, p.ClientID, p.Title, p.Body, p.Mood).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Conflict row exists but belongs to someone else.
			return reconcile.ErrForbidden
		}
		return fmt.Errorf("upsert journal entry: %w", err)
	}
	return nil
}

// DeleteJournalEntry removes a journal entry owned by the user. A missing
// entry is a no-op; an entry owned by another user is forbidden.
func (r *Repository) DeleteJournalEntry(ctx context.Context, userID, clientID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM journal_entries WHERE client_id = $1 AND user_id = $2`, clientID, userID)
	if err != nil {
		return fmt.Errorf("delete journal entry: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var owner string
	err = r.db.QueryRow(ctx, `SELECT user_id FROM journal_entries WHERE client_id = $1`, clientID).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check journal entry owner: %w", err)
	}
	return reconcile.ErrForbidden
}

// UpsertMissionCompletion records a finished mission, keyed by
// (user_id, mission_id, completed_date).
func (r *Repository) UpsertMissionCompletion(ctx context.Context, userID string, p reconcile.MissionCompletionPayload) error {
	query := `
		INSERT INTO mission_completions (user_id, mission_id, completed_date, points)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, mission_id, completed_date)
		DO UPDATE SET points = EXCLUDED.points
	`
	if _, err := r.db.Exec(ctx, query, userID, p.MissionID, p.CompletedDate, p.Points); err != nil {
		return fmt.Errorf("upsert mission completion: %w", err)
	}
	return nil
}

// UpsertMissionProgress stores partial progress keyed by (user_id, mission_id).
func (r *Repository) UpsertMissionProgress(ctx context.Context, userID string, p reconcile.MissionProgressPayload) error {
	query := `
		INSERT INTO mission_progress (user_id, mission_id, current, target)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, mission_id)
		DO UPDATE SET current = EXCLUDED.current, target = EXCLUDED.target, updated_at = NOW()
	`
	if _, err := r.db.Exec(ctx, query, userID, p.MissionID, p.Current, p.Target); err != nil {
		return fmt.Errorf("upsert mission progress: %w", err)
	}
	return nil
}

// UpsertDailyActivity stores the day's snapshot keyed by
// (user_id, activity_date).
func (r *Repository) UpsertDailyActivity(ctx context.Context, userID string, p reconcile.DailyActivityPayload) error {
	query := `
		INSERT INTO daily_activity (user_id, activity_date, verses_read, minutes_read, prayers_logged, streak_days)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, activity_date)
		DO UPDATE SET
			verses_read = EXCLUDED.verses_read,
			minutes_read = EXCLUDED.minutes_read,
			prayers_logged = EXCLUDED.prayers_logged,
			streak_days = EXCLUDED.streak_days,
			updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query, userID, p.ActivityDate, p.VersesRead, p.MinutesRead, p.PrayersLogged, p.StreakDays)
	if err != nil {
		return fmt.Errorf("upsert daily activity: %w", err)
	}
	return nil
}

// UpsertReadingState stores the last read position in its own record.
func (r *Repository) UpsertReadingState(ctx context.Context, userID string, p reconcile.ReadingPositionPayload) error {
	query := `
		INSERT INTO reading_state (user_id, surah_id, verse_id, page)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id)
		DO UPDATE SET surah_id = EXCLUDED.surah_id, verse_id = EXCLUDED.verse_id, page = EXCLUDED.page, updated_at = NOW()
	`
	if _, err := r.db.Exec(ctx, query, userID, p.SurahID, p.VerseID, p.Page); err != nil {
		return fmt.Errorf("upsert reading state: %w", err)
	}
	return nil
}

// MergeSettings folds the submitted fields into the stored blob with a jsonb
// concatenation, never replacing the blob wholesale.
func (r *Repository) MergeSettings(ctx context.Context, userID string, fields map[string]any) error {
	blob, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	query := `
		INSERT INTO user_settings (user_id, blob)
		VALUES ($1, $2)
		ON CONFLICT (user_id)
		DO UPDATE SET blob = user_settings.blob || EXCLUDED.blob, updated_at = NOW()
	`
	if _, err := r.db.Exec(ctx, query, userID, blob); err != nil {
		return fmt.Errorf("merge settings: %w", err)
	}
	return nil
}

// BulkInsertBookmarks writes the whole slice with a single statement,
// skipping rows that already exist. One round trip regardless of size; this
// path migrates a user's full local history.
func (r *Repository) BulkInsertBookmarks(ctx context.Context, userID string, items []reconcile.BookmarkPayload) (int, error) {
	surahs := make([]int32, len(items))
	verses := make([]int32, len(items))
	labels := make([]string, len(items))
	colors := make([]string, len(items))
	for i, b := range items {
		surahs[i] = int32(b.SurahID)
		verses[i] = int32(b.VerseID)
		labels[i] = b.Label
		colors[i] = b.Color
	}

	query := `
		INSERT INTO bookmarks (user_id, surah_id, verse_id, label, color)
		SELECT $1, t.surah_id, t.verse_id, t.label, t.color
		FROM unnest($2::int4[], $3::int4[], $4::text[], $5::text[]) AS t(surah_id, verse_id, label, color)
		ON CONFLICT (user_id, surah_id, verse_id) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query, userID, surahs, verses, labels, colors)
	if err != nil {
		return 0, fmt.Errorf("bulk insert bookmarks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// BulkInsertJournalEntries writes the whole slice with a single statement.
// Entries whose client_id already exists are skipped, including ones owned
// by other users: the legacy path migrates history, it never overwrites.
func (r *Repository) BulkInsertJournalEntries(ctx context.Context, userID string, items []reconcile.JournalPayload) (int, error) {
	clientIDs := make([]string, len(items))
	titles := make([]string, len(items))
	bodies := make([]string, len(items))
	moods := make([]string, len(items))
	for i, e := range items {
		clientIDs[i] = e.ClientID
		titles[i] = e.Title
		bodies[i] = e.Body
		moods[i] = e.Mood
	}

	query := `
		INSERT INTO journal_entries (user_id, client_id, title, body, mood)
		SELECT $1, t.client_id, t.title, t.body, t.mood
		FROM unnest($2::text[], $3::text[], $4::text[], $5::text[]) AS t(client_id, title, body, mood)
		ON CONFLICT (client_id) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query, userID, clientIDs, titles, bodies, moods)
	if err != nil {
		return 0, fmt.Errorf("bulk insert journal entries: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// BulkInsertMissionCompletions writes the whole slice with a single
// statement, skipping duplicates.
func (r *Repository) BulkInsertMissionCompletions(ctx context.Context, userID string, items []reconcile.MissionCompletionPayload) (int, error) {
	missionIDs := make([]string, len(items))
	dates := make([]string, len(items))
	points := make([]int32, len(items))
	for i, m := range items {
		missionIDs[i] = m.MissionID
		dates[i] = m.CompletedDate
		points[i] = int32(m.Points)
	}

	query := `
		INSERT INTO mission_completions (user_id, mission_id, completed_date, points)
		SELECT $1, t.mission_id, t.completed_date::date, t.points
		FROM unnest($2::text[], $3::text[], $4::int4[]) AS t(mission_id, completed_date, points)
		ON CONFLICT (user_id, mission_id, completed_date) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query, userID, missionIDs, dates, points)
	if err != nil {
		return 0, fmt.Errorf("bulk insert mission completions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
