// Package sync implements the client side of the offline-first sync
// pipeline: a durable change queue, the orchestrator that drains it, and the
// settings merge guard applied when cloud settings are restored.
package sync

import (
	"encoding/json"
	"time"
)

// EntityType identifies which kind of record a queue entry mutates.
type EntityType string

// Entity types accepted by the queue and the reconciliation endpoint.
const (
	EntityBookmark          EntityType = "bookmark"
	EntitySetting           EntityType = "setting"
	EntityJournalEntry      EntityType = "journal-entry"
	EntityMissionCompletion EntityType = "mission-completion"
	EntityMissionProgress   EntityType = "mission-progress"
	EntityDailyActivity     EntityType = "daily-activity-snapshot"
	EntityReadingPosition   EntityType = "reading-position"
)

// IsValid reports whether t is one of the known entity types.
func (t EntityType) IsValid() bool {
	switch t {
	case EntityBookmark, EntitySetting, EntityJournalEntry,
		EntityMissionCompletion, EntityMissionProgress,
		EntityDailyActivity, EntityReadingPosition:
		return true
	}
	return false
}

// Action is the mutation a queue entry carries.
type Action string

// Actions.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// IsValid reports whether a is a known action.
func (a Action) IsValid() bool {
	return a == ActionCreate || a == ActionUpdate || a == ActionDelete
}

// Status is the delivery state of a queue entry.
type Status string

// Entry statuses. Synced and failed are terminal.
const (
	StatusPending Status = "pending"
	StatusSynced  Status = "synced"
	StatusFailed  Status = "failed"
)

// Entry is one pending change awaiting delivery to the server.
type Entry struct {
	ID            string          `json:"id"`
	EntityType    EntityType      `json:"entityType"`
	Action        Action          `json:"action"`
	Payload       json.RawMessage `json:"payload"`
	Status        Status          `json:"status"`
	RetryCount    int             `json:"retryCount"`
	CreatedAt     time.Time       `json:"createdAt"`
	LastAttemptAt *time.Time      `json:"lastAttemptAt,omitempty"`
	Error         string          `json:"error,omitempty"`
}
