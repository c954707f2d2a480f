package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/this-4mirho3ein/turkiye-temp-sub001/model"
)

// MemoryDraftStore is an in-memory DraftStore for single-node deployments
// and testing.
type MemoryDraftStore struct {
	mu     sync.RWMutex
	drafts map[string]model.Draft       // key: draft ID
	events map[string][]model.DraftEvent // key: draft ID
}

// NewMemoryDraftStore creates a new in-memory draft store.
func NewMemoryDraftStore() *MemoryDraftStore {
	return &MemoryDraftStore{
		drafts: make(map[string]model.Draft),
		events: make(map[string][]model.DraftEvent),
	}
}

// Create persists a new draft.
func (s *MemoryDraftStore) Create(_ context.Context, draft model.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.drafts[draft.ID]; exists {
		return model.NewConflictError(
			fmt.Sprintf("draft %q already exists", draft.ID),
		)
	}

	s.drafts[draft.ID] = draft
	return nil
}

// Get retrieves a draft by ID, scoped to its owner.
func (s *MemoryDraftStore) Get(_ context.Context, ownerID, draftID string) (model.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	draft, exists := s.drafts[draftID]
	if !exists || draft.OwnerID != ownerID {
		return model.Draft{}, model.NewNotFoundError(
			fmt.Sprintf("draft %q not found", draftID),
		)
	}
	return draft, nil
}

// Update persists an updated draft with optimistic locking.
func (s *MemoryDraftStore) Update(_ context.Context, draft model.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.drafts[draft.ID]
	if !exists {
		return model.NewNotFoundError(
			fmt.Sprintf("draft %q not found", draft.ID),
		)
	}

	// Optimistic lock check.
	if existing.Version != draft.Version {
		return model.NewConflictError(
			fmt.Sprintf("draft %q version conflict (expected %d, got %d)", draft.ID, draft.Version, existing.Version),
		)
	}

	draft.Version++
	draft.UpdatedAt = time.Now().UTC()
	s.drafts[draft.ID] = draft
	return nil
}

// AppendEvent adds an event to the draft's audit trail.
func (s *MemoryDraftStore) AppendEvent(_ context.Context, event model.DraftEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[event.DraftID] = append(s.events[event.DraftID], event)
	return nil
}

// GetEvents retrieves all events for a draft, ordered by timestamp.
func (s *MemoryDraftStore) GetEvents(_ context.Context, ownerID, draftID string) ([]model.DraftEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Verify owner access.
	draft, exists := s.drafts[draftID]
	if !exists || draft.OwnerID != ownerID {
		return nil, model.NewNotFoundError(
			fmt.Sprintf("draft %q not found", draftID),
		)
	}

	events := s.events[draftID]
	// Return sorted copy.
	result := make([]model.DraftEvent, len(events))
	copy(result, events)
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

// FindActive returns unpublished, unexpired drafts for an owner.
func (s *MemoryDraftStore) FindActive(_ context.Context, ownerID string, filters DraftFilters) ([]model.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Draft
	for _, draft := range s.drafts {
		if draft.OwnerID != ownerID {
			continue
		}
		if draft.Phase == model.PhasePublished || draft.Phase == model.PhaseExpired {
			continue
		}
		if filters.Phase != "" && draft.Phase != filters.Phase {
			continue
		}
		result = append(result, draft)
	}

	// Sort by created_at descending.
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	// Apply offset and limit.
	if filters.Offset > 0 {
		if filters.Offset >= len(result) {
			return []model.Draft{}, nil
		}
		result = result[filters.Offset:]
	}
	if filters.Limit > 0 && filters.Limit < len(result) {
		result = result[:filters.Limit]
	}

	return result, nil
}

// FindExpired returns unpublished drafts past their expiration time.
func (s *MemoryDraftStore) FindExpired(_ context.Context, cutoff time.Time) ([]model.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Draft
	for _, draft := range s.drafts {
		if draft.Phase == model.PhasePublished || draft.Phase == model.PhaseExpired {
			continue
		}
		if draft.ExpiresAt == nil || !draft.ExpiresAt.Before(cutoff) {
			continue
		}
		result = append(result, draft)
	}

	// Sort by expires_at ascending.
	sort.Slice(result, func(i, j int) bool {
		return result[i].ExpiresAt.Before(*result[j].ExpiresAt)
	})

	return result, nil
}

// Delete removes a draft and its events.
func (s *MemoryDraftStore) Delete(_ context.Context, ownerID, draftID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	draft, exists := s.drafts[draftID]
	if !exists || draft.OwnerID != ownerID {
		return model.NewNotFoundError(
			fmt.Sprintf("draft %q not found", draftID),
		)
	}

	delete(s.drafts, draftID)
	delete(s.events, draftID)
	return nil
}

// Len returns the total number of drafts. For testing.
func (s *MemoryDraftStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.drafts)
}
