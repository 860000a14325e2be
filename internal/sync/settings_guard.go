package sync

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// DefaultGuardWindow is how recently a field must have been changed locally
// for a cloud restore to leave it alone.
const DefaultGuardWindow = 5 * time.Second

// SettingsGuard prevents a cloud-restore from clobbering a setting the user
// changed moments ago on this device. A value changed within the guard
// window reflects explicit, not-yet-synced user intent and wins over a stale
// cloud read that raced with it. Everything else is last-write-wins: the
// server value overwrites unconditionally.
type SettingsGuard struct {
	mu        sync.Mutex
	window    time.Duration
	changedAt map[string]time.Time
	now       func() time.Time
}

// NewSettingsGuard creates a guard with the given window; zero or negative
// selects DefaultGuardWindow.
func NewSettingsGuard(window time.Duration) *SettingsGuard {
	if window <= 0 {
		window = DefaultGuardWindow
	}
	return &SettingsGuard{
		window:    window,
		changedAt: make(map[string]time.Time),
		now:       time.Now,
	}
}

// RecordLocalChange notes that the user just changed a settings field on
// this device. Call it from the same code path that enqueues the change.
func (g *SettingsGuard) RecordLocalChange(field string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.changedAt[field] = g.now()
}

// Restore merges server settings into local ones. Fields the user touched
// within the guard window keep their local value; the rest take the server
// value. Returns the merged map and the fields that were protected.
func (g *SettingsGuard) Restore(local, incoming map[string]any) (map[string]any, []string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	merged := make(map[string]any, len(local)+len(incoming))
	for k, v := range local {
		merged[k] = v
	}

	now := g.now()
	var protected []string
	for field, serverValue := range incoming {
		if changed, ok := g.changedAt[field]; ok && now.Sub(changed) < g.window {
			protected = append(protected, field)
			continue
		}
		merged[field] = serverValue
	}
	sort.Strings(protected)

	if len(protected) > 0 {
		slog.Debug("settings restore skipped recently changed fields",
			"fields", protected,
			"window", g.window,
		)
	}

	return merged, protected
}
