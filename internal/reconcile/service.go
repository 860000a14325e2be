package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/hasanat-app/hasanat/internal/pkg/ctxlog"
)

// Service applies sync payloads against the repository.
type Service struct {
	repo     Repository
	validate *validator.Validate
}

// NewService creates a reconciliation service.
func NewService(repo Repository) *Service {
	return &Service{
		repo:     repo,
		validate: validator.New(),
	}
}

// ApplyBatch applies a typed batch entry by entry. Per-entry failures never
// abort the rest of the batch; partial success is the expected shape of the
// response.
func (s *Service) ApplyBatch(ctx context.Context, userID string, entries []SyncEntry) BatchResponse {
	resp := BatchResponse{
		Success: true,
		Synced:  make([]string, 0, len(entries)),
		Failed:  make([]FailedEntry, 0),
	}

	start := time.Now()
	for _, entry := range entries {
		if err := s.applyEntry(ctx, userID, entry); err != nil {
			ctxlog.FromContext(ctx).Warn("entry rejected",
				"entry_id", entry.ID,
				"entity_type", entry.EntityType,
				"action", entry.Action,
				"error", err,
			)
			resp.Failed = append(resp.Failed, FailedEntry{ID: entry.ID, Reason: failureReason(err)})
			recordEntryApplied(entry.EntityType, "failed")
			continue
		}
		resp.Synced = append(resp.Synced, entry.ID)
		recordEntryApplied(entry.EntityType, "applied")
	}
	recordBatch(len(entries), time.Since(start))

	return resp
}

// failureReason renders err for the per-entry failed list. Ownership
// conflicts keep a stable "forbidden" prefix the client keys off.
func failureReason(err error) string {
	if errors.Is(err, ErrForbidden) {
		return ErrForbidden.Error()
	}
	return err.Error()
}

func (s *Service) applyEntry(ctx context.Context, userID string, entry SyncEntry) error {
	if err := s.validate.Struct(entry); err != nil {
		return fmt.Errorf("invalid entry: %w", err)
	}

	switch entry.EntityType {
	case EntityBookmark:
		return s.applyBookmark(ctx, userID, entry)
	case EntityJournalEntry:
		return s.applyJournalEntry(ctx, userID, entry)
	case EntitySetting:
		return s.applySetting(ctx, userID, entry)
	case EntityMissionCompletion:
		return applyUpsert(s, entry, func(p MissionCompletionPayload) error {
			return s.repo.UpsertMissionCompletion(ctx, userID, p)
		})
	case EntityMissionProgress:
		return applyUpsert(s, entry, func(p MissionProgressPayload) error {
			return s.repo.UpsertMissionProgress(ctx, userID, p)
		})
	case EntityDailyActivity:
		return applyUpsert(s, entry, func(p DailyActivityPayload) error {
			return s.repo.UpsertDailyActivity(ctx, userID, p)
		})
	case EntityReadingPosition:
		return applyUpsert(s, entry, func(p ReadingPositionPayload) error {
			return s.repo.UpsertReadingState(ctx, userID, p)
		})
	default:
		return fmt.Errorf("unknown entity type %q", entry.EntityType)
	}
}

// applyUpsert decodes, validates and upserts an entity payload. Create and
// update both resolve to the same natural-key upsert, so a retried-but-
// actually-delivered entry lands on the existing record instead of
// duplicating it. Delete is not meaningful for these snapshot-style
// entities.
func applyUpsert[P any](s *Service, entry SyncEntry, upsert func(P) error) error {
	if entry.Action == "delete" {
		return fmt.Errorf("action %q not supported for %s", entry.Action, entry.EntityType)
	}
	var p P
	if err := json.Unmarshal(entry.Payload, &p); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}
	if err := s.validate.Struct(p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return upsert(p)
}

func (s *Service) applyBookmark(ctx context.Context, userID string, entry SyncEntry) error {
	var p BookmarkPayload
	if err := json.Unmarshal(entry.Payload, &p); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}
	if err := s.validate.Struct(p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	if entry.Action == "delete" {
		return s.repo.DeleteBookmark(ctx, userID, p.SurahID, p.VerseID)
	}
	return s.repo.UpsertBookmark(ctx, userID, p)
}

func (s *Service) applyJournalEntry(ctx context.Context, userID string, entry SyncEntry) error {
	var p JournalPayload
	if err := json.Unmarshal(entry.Payload, &p); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}
	if err := s.validate.Struct(p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	if entry.Action == "delete" {
		return s.repo.DeleteJournalEntry(ctx, userID, p.ClientID)
	}
	return s.repo.UpsertJournalEntry(ctx, userID, p)
}

func (s *Service) applySetting(ctx context.Context, userID string, entry SyncEntry) error {
	if entry.Action == "delete" {
		return fmt.Errorf("action %q not supported for %s", entry.Action, entry.EntityType)
	}

	var fields map[string]any
	if err := json.Unmarshal(entry.Payload, &fields); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}
	if len(fields) == 0 {
		return errors.New("empty settings payload")
	}

	// Reading position rides inside settings payloads on some client
	// versions but is stored in its own record: it changes at a different
	// cadence and must not be lost on partial blob merges.
	if raw, ok := fields["readingState"]; ok {
		delete(fields, "readingState")
		data, err := json.Marshal(raw)
		if err != nil {
			return fmt.Errorf("malformed reading state: %w", err)
		}
		var rp ReadingPositionPayload
		if err := json.Unmarshal(data, &rp); err != nil {
			return fmt.Errorf("malformed reading state: %w", err)
		}
		if err := s.validate.Struct(rp); err != nil {
			return fmt.Errorf("invalid reading state: %w", err)
		}
		if err := s.repo.UpsertReadingState(ctx, userID, rp); err != nil {
			return err
		}
	}

	if len(fields) == 0 {
		return nil
	}
	return s.repo.MergeSettings(ctx, userID, fields)
}

// ApplyLegacy applies the legacy whole-history payload. Each record
// collection is written with a single bulk insert-skip-duplicates operation;
// settings merge and the singleton records upsert.
func (s *Service) ApplyLegacy(ctx context.Context, userID string, p LegacyBulkPayload) (LegacyResponse, error) {
	inserted := 0

	if len(p.Bookmarks) > 0 {
		n, err := s.repo.BulkInsertBookmarks(ctx, userID, p.Bookmarks)
		if err != nil {
			return LegacyResponse{}, fmt.Errorf("bulk insert bookmarks: %w", err)
		}
		inserted += n
	}

	if len(p.Intentions) > 0 {
		n, err := s.repo.BulkInsertJournalEntries(ctx, userID, p.Intentions)
		if err != nil {
			return LegacyResponse{}, fmt.Errorf("bulk insert intentions: %w", err)
		}
		inserted += n
	}

	if len(p.CompletedMissions) > 0 {
		n, err := s.repo.BulkInsertMissionCompletions(ctx, userID, p.CompletedMissions)
		if err != nil {
			return LegacyResponse{}, fmt.Errorf("bulk insert mission completions: %w", err)
		}
		inserted += n
	}

	if p.DailyActivity != nil {
		if err := s.repo.UpsertDailyActivity(ctx, userID, *p.DailyActivity); err != nil {
			return LegacyResponse{}, fmt.Errorf("upsert daily activity: %w", err)
		}
	}

	if len(p.Settings) > 0 {
		if err := s.repo.MergeSettings(ctx, userID, p.Settings); err != nil {
			return LegacyResponse{}, fmt.Errorf("merge settings: %w", err)
		}
	}

	if p.ReadingState != nil {
		if err := s.repo.UpsertReadingState(ctx, userID, *p.ReadingState); err != nil {
			return LegacyResponse{}, fmt.Errorf("upsert reading state: %w", err)
		}
	}

	total := len(p.Bookmarks) + len(p.Intentions) + len(p.CompletedMissions)
	skipped := total - inserted
	recordLegacyBulk(total)

	ctxlog.FromContext(ctx).Info("legacy bulk payload applied",
		"records", total,
		"inserted", inserted,
		"skipped_duplicates", skipped,
	)

	return LegacyResponse{
		Success: true,
		Message: fmt.Sprintf("imported %d records (%d duplicates skipped)", inserted, skipped),
	}, nil
}
