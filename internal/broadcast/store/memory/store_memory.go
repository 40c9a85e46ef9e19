// Package memory provides in-process implementations of the broadcast stores.
// They back the unit tests and database-less local runs.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"brigade/internal/broadcast/models"
	"brigade/pkg/platform/sentinel"
)

// ActivityStore is an append-only in-memory audit log.
type ActivityStore struct {
	mu      sync.RWMutex
	entries []models.ActivityLogEntry
	ids     map[uuid.UUID]int
	diffs   []models.Diff
}

// NewActivityStore creates an empty ActivityStore.
func NewActivityStore() *ActivityStore {
	return &ActivityStore{ids: make(map[uuid.UUID]int)}
}

// InsertActivityLog appends entry and returns its id, generating one when unset.
func (s *ActivityStore) InsertActivityLog(_ context.Context, entry *models.ActivityLogEntry) (uuid.UUID, error) {
	if entry == nil {
		return uuid.Nil, fmt.Errorf("activity log entry is required: %w", sentinel.ErrInvalidState)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *entry
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	stored.Details = maps.Clone(entry.Details)
	stored.Metadata = maps.Clone(entry.Metadata)

	s.ids[stored.ID] = len(s.entries)
	s.entries = append(s.entries, stored)
	return stored.ID, nil
}

// InsertDiff stores diff under its parent entry. The parent must exist.
func (s *ActivityStore) InsertDiff(_ context.Context, activityLogID uuid.UUID, diff *models.Diff) error {
	if diff == nil {
		return fmt.Errorf("diff is required: %w", sentinel.ErrInvalidState)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[activityLogID]; !ok {
		return fmt.Errorf("activity log %s: %w", activityLogID, sentinel.ErrNotFound)
	}
	stored := *diff
	stored.ActivityLogID = activityLogID
	s.diffs = append(s.diffs, stored)
	return nil
}

// ListRecent returns up to limit entries of an organization, newest first.
func (s *ActivityStore) ListRecent(_ context.Context, organizationID string, limit int) ([]models.ActivityLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.ActivityLogEntry
	for i := len(s.entries) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if s.entries[i].OrganizationID == organizationID {
			out = append(out, s.entries[i])
		}
	}
	return out, nil
}

// Entries returns every stored entry in insertion order.
func (s *ActivityStore) Entries() []models.ActivityLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.entries)
}

// Diffs returns every stored diff in insertion order.
func (s *ActivityStore) Diffs() []models.Diff {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.diffs)
}

// Clear removes all entries and diffs.
func (s *ActivityStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.diffs = nil
	s.ids = make(map[uuid.UUID]int)
}
