//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncBatch_AppliesAndIsIdempotent(t *testing.T) {
	truncateAll(t)
	token := issueToken(t, "user-batch")

	entries := []map[string]any{
		entryJSON("e1", "bookmark", "create", map[string]any{"surah_id": 2, "verse_id": 255, "label": "Ayat al-Kursi"}),
		entryJSON("e2", "journal-entry", "create", map[string]any{"client_id": "j-100", "title": "morning dhikr"}),
		entryJSON("e3", "mission-completion", "create", map[string]any{"mission_id": "m-fajr", "completed_date": "2026-03-01", "points": 10}),
		entryJSON("e4", "mission-progress", "update", map[string]any{"mission_id": "m-juz", "current": 3, "target": 30}),
		entryJSON("e5", "daily-activity-snapshot", "update", map[string]any{"activity_date": "2026-03-01", "verses_read": 20, "streak_days": 4}),
		entryJSON("e6", "reading-position", "update", map[string]any{"surah_id": 18, "verse_id": 10, "page": 294}),
	}

	resp := syncBatch(t, token, entries)
	assert.True(t, resp.Success)
	assert.Equal(t, []string{"e1", "e2", "e3", "e4", "e5", "e6"}, resp.Synced)
	assert.Empty(t, resp.Failed)

	// The same batch again, as a client retry after a lost response.
	resp = syncBatch(t, token, entries)
	assert.Equal(t, []string{"e1", "e2", "e3", "e4", "e5", "e6"}, resp.Synced)

	assert.Equal(t, 1, countRows(t, "bookmarks", "user-batch"))
	assert.Equal(t, 1, countRows(t, "journal_entries", "user-batch"))
	assert.Equal(t, 1, countRows(t, "mission_completions", "user-batch"))
	assert.Equal(t, 1, countRows(t, "mission_progress", "user-batch"))
	assert.Equal(t, 1, countRows(t, "daily_activity", "user-batch"))

	var surahID, verseID, page int
	err := testDB.QueryRow(context.Background(),
		"SELECT surah_id, verse_id, page FROM reading_state WHERE user_id = $1", "user-batch").
		Scan(&surahID, &verseID, &page)
	require.NoError(t, err)
	assert.Equal(t, 18, surahID)
	assert.Equal(t, 10, verseID)
	assert.Equal(t, 294, page)
}

func TestSyncBatch_UpdateOverwritesByNaturalKey(t *testing.T) {
	truncateAll(t)
	token := issueToken(t, "user-nk")

	syncBatch(t, token, []map[string]any{
		entryJSON("e1", "bookmark", "create", map[string]any{"surah_id": 1, "verse_id": 1, "label": "start"}),
	})
	syncBatch(t, token, []map[string]any{
		entryJSON("e2", "bookmark", "update", map[string]any{"surah_id": 1, "verse_id": 1, "label": "al-Fatiha", "color": "green"}),
	})

	var label, color string
	err := testDB.QueryRow(context.Background(),
		"SELECT label, color FROM bookmarks WHERE user_id = $1 AND surah_id = 1 AND verse_id = 1", "user-nk").
		Scan(&label, &color)
	require.NoError(t, err)
	assert.Equal(t, "al-Fatiha", label)
	assert.Equal(t, "green", color)
	assert.Equal(t, 1, countRows(t, "bookmarks", "user-nk"))
}

func TestSyncBatch_DeleteIsIdempotent(t *testing.T) {
	truncateAll(t)
	token := issueToken(t, "user-del")

	syncBatch(t, token, []map[string]any{
		entryJSON("e1", "bookmark", "create", map[string]any{"surah_id": 3, "verse_id": 5}),
	})
	require.Equal(t, 1, countRows(t, "bookmarks", "user-del"))

	del := entryJSON("e2", "bookmark", "delete", map[string]any{"surah_id": 3, "verse_id": 5})
	resp := syncBatch(t, token, []map[string]any{del})
	assert.Equal(t, []string{"e2"}, resp.Synced)
	assert.Equal(t, 0, countRows(t, "bookmarks", "user-del"))

	// Retried delete after the record is already gone still succeeds.
	resp = syncBatch(t, token, []map[string]any{del})
	assert.Equal(t, []string{"e2"}, resp.Synced)
	assert.Empty(t, resp.Failed)
}

func TestSyncBatch_OwnershipConflict(t *testing.T) {
	truncateAll(t)
	ownerToken := issueToken(t, "user-owner")
	intruderToken := issueToken(t, "user-intruder")

	syncBatch(t, ownerToken, []map[string]any{
		entryJSON("e1", "journal-entry", "create", map[string]any{"client_id": "j-shared", "title": "mine"}),
	})

	resp := syncBatch(t, intruderToken, []map[string]any{
		entryJSON("e2", "journal-entry", "update", map[string]any{"client_id": "j-shared", "title": "stolen"}),
	})

	assert.Empty(t, resp.Synced)
	require.Len(t, resp.Failed, 1)
	assert.Equal(t, "e2", resp.Failed[0].ID)
	assert.Equal(t, "forbidden: record owned by another user", resp.Failed[0].Reason)

	var title string
	err := testDB.QueryRow(context.Background(),
		"SELECT title FROM journal_entries WHERE client_id = $1", "j-shared").Scan(&title)
	require.NoError(t, err)
	assert.Equal(t, "mine", title, "foreign write must not land")

	// Deleting someone else's entry is rejected the same way.
	resp = syncBatch(t, intruderToken, []map[string]any{
		entryJSON("e3", "journal-entry", "delete", map[string]any{"client_id": "j-shared"}),
	})
	require.Len(t, resp.Failed, 1)
	assert.Equal(t, 1, countRows(t, "journal_entries", "user-owner"))
}

func TestSyncBatch_PartialFailure(t *testing.T) {
	truncateAll(t)
	token := issueToken(t, "user-partial")

	resp := syncBatch(t, token, []map[string]any{
		entryJSON("ok-1", "bookmark", "create", map[string]any{"surah_id": 1, "verse_id": 1}),
		entryJSON("bad", "bookmark", "create", map[string]any{"surah_id": 999, "verse_id": 1}),
		entryJSON("ok-2", "bookmark", "create", map[string]any{"surah_id": 2, "verse_id": 2}),
	})

	assert.Equal(t, []string{"ok-1", "ok-2"}, resp.Synced)
	require.Len(t, resp.Failed, 1)
	assert.Equal(t, "bad", resp.Failed[0].ID)
	assert.Equal(t, 2, countRows(t, "bookmarks", "user-partial"))
}

func TestSyncBatch_SettingsMergeAndReadingState(t *testing.T) {
	truncateAll(t)
	token := issueToken(t, "user-settings")
	ctx := context.Background()

	syncBatch(t, token, []map[string]any{
		entryJSON("s1", "setting", "update", map[string]any{"theme": "dark", "fontSize": 14}),
	})
	syncBatch(t, token, []map[string]any{
		entryJSON("s2", "setting", "update", map[string]any{
			"fontSize":     18,
			"readingState": map[string]any{"surah_id": 36, "verse_id": 12, "page": 440},
		}),
	})

	// Field-level merge: theme from the first write survives the second.
	var theme string
	var fontSize int
	err := testDB.QueryRow(ctx,
		"SELECT blob->>'theme', (blob->>'fontSize')::int FROM user_settings WHERE user_id = $1", "user-settings").
		Scan(&theme, &fontSize)
	require.NoError(t, err)
	assert.Equal(t, "dark", theme)
	assert.Equal(t, 18, fontSize)

	var hasReadingState bool
	err = testDB.QueryRow(ctx,
		"SELECT blob ? 'readingState' FROM user_settings WHERE user_id = $1", "user-settings").
		Scan(&hasReadingState)
	require.NoError(t, err)
	assert.False(t, hasReadingState, "reading state must not land in the blob")

	var surahID int
	err = testDB.QueryRow(ctx,
		"SELECT surah_id FROM reading_state WHERE user_id = $1", "user-settings").Scan(&surahID)
	require.NoError(t, err)
	assert.Equal(t, 36, surahID)
}

func TestSyncBatch_BadRequests(t *testing.T) {
	truncateAll(t)
	token := issueToken(t, "user-bad")

	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"not json", "hello there"},
		{"empty batch", "[]"},
		{"empty legacy payload", "{}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := postSync(t, token, tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
		})
	}
}
