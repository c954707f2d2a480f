package workflow

import (
	"context"
	"time"

	"github.com/this-4mirho3ein/turkiye-temp-sub001/model"
)

// DraftStore persists listing drafts and their audit trails.
type DraftStore interface {
	// Create persists a new draft.
	Create(ctx context.Context, draft model.Draft) error

	// Get retrieves a draft by ID, scoped to its owner. Returns NOT_FOUND
	// if the draft doesn't exist or belongs to a different owner.
	Get(ctx context.Context, ownerID, draftID string) (model.Draft, error)

	// Update persists an updated draft with optimistic locking. The version
	// must match the current stored version. Returns CONFLICT if the
	// version has changed.
	Update(ctx context.Context, draft model.Draft) error

	// AppendEvent adds an event to the draft's audit trail.
	AppendEvent(ctx context.Context, event model.DraftEvent) error

	// GetEvents retrieves all events for a draft, scoped to its owner.
	GetEvents(ctx context.Context, ownerID, draftID string) ([]model.DraftEvent, error)

	// FindActive returns unpublished, unexpired drafts for an owner.
	FindActive(ctx context.Context, ownerID string, filters DraftFilters) ([]model.Draft, error)

	// FindExpired returns unpublished drafts whose expires_at is before the
	// given cutoff time.
	FindExpired(ctx context.Context, cutoff time.Time) ([]model.Draft, error)

	// Delete removes a draft and its events.
	Delete(ctx context.Context, ownerID, draftID string) error
}

// DraftFilters are optional filters for listing drafts.
type DraftFilters struct {
	Phase  string
	Limit  int
	Offset int
}
