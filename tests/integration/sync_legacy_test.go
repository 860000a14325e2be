//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const legacyPayload = `{
	"bookmarks": [
		{"surah_id": 1, "verse_id": 1, "label": "opening"},
		{"surah_id": 2, "verse_id": 255, "label": "Ayat al-Kursi"},
		{"surah_id": 36, "verse_id": 1}
	],
	"intentions": [
		{"client_id": "legacy-j-1", "title": "gratitude"},
		{"client_id": "legacy-j-2", "title": "patience"}
	],
	"completedMissions": [
		{"mission_id": "m-fajr", "completed_date": "2026-02-27", "points": 10},
		{"mission_id": "m-fajr", "completed_date": "2026-02-28", "points": 10}
	],
	"dailyActivity": {"activity_date": "2026-02-28", "verses_read": 15, "streak_days": 2},
	"settings": {"theme": "light", "language": "ar"},
	"readingState": {"surah_id": 2, "verse_id": 100, "page": 16}
}`

func postLegacy(t *testing.T, token, body string) legacyResponse {
	t.Helper()
	status, data := postSync(t, token, body)
	require.Equal(t, http.StatusOK, status, "body: %s", data)

	var resp legacyResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	return resp
}

func TestSyncLegacy_ImportsWholeHistory(t *testing.T) {
	truncateAll(t)
	token := issueToken(t, "user-legacy")

	resp := postLegacy(t, token, legacyPayload)
	assert.True(t, resp.Success)
	assert.Equal(t, "imported 7 records (0 duplicates skipped)", resp.Message)

	assert.Equal(t, 3, countRows(t, "bookmarks", "user-legacy"))
	assert.Equal(t, 2, countRows(t, "journal_entries", "user-legacy"))
	assert.Equal(t, 2, countRows(t, "mission_completions", "user-legacy"))
	assert.Equal(t, 1, countRows(t, "daily_activity", "user-legacy"))

	var theme string
	err := testDB.QueryRow(context.Background(),
		"SELECT blob->>'theme' FROM user_settings WHERE user_id = $1", "user-legacy").Scan(&theme)
	require.NoError(t, err)
	assert.Equal(t, "light", theme)

	var page int
	err = testDB.QueryRow(context.Background(),
		"SELECT page FROM reading_state WHERE user_id = $1", "user-legacy").Scan(&page)
	require.NoError(t, err)
	assert.Equal(t, 16, page)
}

func TestSyncLegacy_ResendSkipsDuplicates(t *testing.T) {
	truncateAll(t)
	token := issueToken(t, "user-legacy-dup")

	first := postLegacy(t, token, legacyPayload)
	assert.Equal(t, "imported 7 records (0 duplicates skipped)", first.Message)

	// A resend of the whole export, as older clients do after reinstall.
	second := postLegacy(t, token, legacyPayload)
	assert.Equal(t, "imported 0 records (7 duplicates skipped)", second.Message)

	assert.Equal(t, 3, countRows(t, "bookmarks", "user-legacy-dup"))
	assert.Equal(t, 2, countRows(t, "journal_entries", "user-legacy-dup"))
	assert.Equal(t, 2, countRows(t, "mission_completions", "user-legacy-dup"))
}

func TestSyncLegacy_MergesIntoExistingSettings(t *testing.T) {
	truncateAll(t)
	token := issueToken(t, "user-legacy-merge")

	syncBatch(t, token, []map[string]any{
		entryJSON("s1", "setting", "update", map[string]any{"theme": "dark", "notifications": true}),
	})

	postLegacy(t, token, `{"settings": {"theme": "light"}}`)

	var theme string
	var notifications bool
	err := testDB.QueryRow(context.Background(),
		"SELECT blob->>'theme', (blob->>'notifications')::bool FROM user_settings WHERE user_id = $1",
		"user-legacy-merge").Scan(&theme, &notifications)
	require.NoError(t, err)
	assert.Equal(t, "light", theme, "incoming field overwrites")
	assert.True(t, notifications, "untouched field survives the merge")
}

func TestSyncLegacy_SharedHistoryAcrossUsers(t *testing.T) {
	truncateAll(t)

	// Two accounts importing the same bookmarks each keep their own copy.
	postLegacy(t, issueToken(t, "user-a"), `{"bookmarks": [{"surah_id": 1, "verse_id": 1}]}`)
	postLegacy(t, issueToken(t, "user-b"), `{"bookmarks": [{"surah_id": 1, "verse_id": 1}]}`)

	assert.Equal(t, 1, countRows(t, "bookmarks", "user-a"))
	assert.Equal(t, 1, countRows(t, "bookmarks", "user-b"))
}
