// Package reconcile implements the server-side reconciliation endpoint: it
// accepts batches of queued client changes (or the legacy whole-history bulk
// payload) and applies each one idempotently against the authoritative
// store.
package reconcile

import "encoding/json"

// SyncEntry is one queue entry as it arrives on the wire.
type SyncEntry struct {
	ID         string          `json:"id" validate:"required"`
	EntityType string          `json:"entityType" validate:"required"`
	Action     string          `json:"action" validate:"required,oneof=create update delete"`
	Payload    json.RawMessage `json:"payload" validate:"required"`
}

// Entity types accepted in a typed batch. Mirrors the client queue's closed
// set.
const (
	EntityBookmark          = "bookmark"
	EntitySetting           = "setting"
	EntityJournalEntry      = "journal-entry"
	EntityMissionCompletion = "mission-completion"
	EntityMissionProgress   = "mission-progress"
	EntityDailyActivity     = "daily-activity-snapshot"
	EntityReadingPosition   = "reading-position"
)

// BookmarkPayload is the entity-shaped payload for bookmark entries.
type BookmarkPayload struct {
	SurahID int    `json:"surah_id" validate:"required,min=1,max=114"`
	VerseID int    `json:"verse_id" validate:"required,min=1"`
	Label   string `json:"label"`
	Color   string `json:"color"`
}

// JournalPayload is the entity-shaped payload for journal (intention)
// entries. ClientID is assigned by the device that created the entry.
type JournalPayload struct {
	ClientID string `json:"client_id" validate:"required"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	Mood     string `json:"mood"`
}

// MissionCompletionPayload records a finished mission.
type MissionCompletionPayload struct {
	MissionID     string `json:"mission_id" validate:"required"`
	CompletedDate string `json:"completed_date" validate:"required,datetime=2006-01-02"`
	Points        int    `json:"points"`
}

// MissionProgressPayload records partial mission progress.
type MissionProgressPayload struct {
	MissionID string `json:"mission_id" validate:"required"`
	Current   int    `json:"current" validate:"min=0"`
	Target    int    `json:"target" validate:"required,min=1"`
}

// DailyActivityPayload is a per-day habit snapshot.
type DailyActivityPayload struct {
	ActivityDate  string `json:"activity_date" validate:"required,datetime=2006-01-02"`
	VersesRead    int    `json:"verses_read" validate:"min=0"`
	MinutesRead   int    `json:"minutes_read" validate:"min=0"`
	PrayersLogged int    `json:"prayers_logged" validate:"min=0"`
	StreakDays    int    `json:"streak_days" validate:"min=0"`
}

// ReadingPositionPayload is the user's last read position. Stored as its own
// record, never inside the settings blob.
type ReadingPositionPayload struct {
	SurahID int `json:"surah_id" validate:"required,min=1,max=114"`
	VerseID int `json:"verse_id" validate:"required,min=1"`
	Page    int `json:"page" validate:"min=0"`
}

// LegacyBulkPayload is the older whole-history migration format: arrays of
// raw records with no explicit action, applied as insert-skip-duplicates.
// It is detected by shape (a JSON object body) and treated as permanent
// input.
type LegacyBulkPayload struct {
	Bookmarks         []BookmarkPayload          `json:"bookmarks"`
	Intentions        []JournalPayload           `json:"intentions"`
	CompletedMissions []MissionCompletionPayload `json:"completedMissions"`
	DailyActivity     *DailyActivityPayload      `json:"dailyActivity"`
	Settings          map[string]any             `json:"settings"`
	ReadingState      *ReadingPositionPayload    `json:"readingState"`
}

// Empty reports whether the payload carries nothing to apply.
func (p *LegacyBulkPayload) Empty() bool {
	return len(p.Bookmarks) == 0 &&
		len(p.Intentions) == 0 &&
		len(p.CompletedMissions) == 0 &&
		p.DailyActivity == nil &&
		len(p.Settings) == 0 &&
		p.ReadingState == nil
}

// BatchResponse is the reply to a typed batch.
type BatchResponse struct {
	Success bool          `json:"success"`
	Synced  []string      `json:"synced"`
	Failed  []FailedEntry `json:"failed"`
}

// FailedEntry reports a per-entry failure with its reason.
type FailedEntry struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// LegacyResponse is the reply to a legacy bulk payload.
type LegacyResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
