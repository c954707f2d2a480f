package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/this-4mirho3ein/turkiye-temp-sub001/model"
)

// PgDraftStore is a PostgreSQL-backed DraftStore using pgx/v5. The scalar
// workflow columns are first-class; the form content (classification,
// attributes, location, assets) travels in one JSONB body column.
type PgDraftStore struct {
	pool *pgxpool.Pool
}

// NewPgDraftStore creates a new PostgreSQL draft store.
func NewPgDraftStore(pool *pgxpool.Pool) *PgDraftStore {
	return &PgDraftStore{pool: pool}
}

// draftBody holds the JSONB portion of a stored draft.
type draftBody struct {
	DealType     model.LabeledValue          `json:"deal_type"`
	PropertyType model.LabeledValue          `json:"property_type"`
	Category     model.LabeledValue          `json:"category"`
	Title        string                      `json:"title"`
	Description  string                      `json:"description"`
	Price        string                      `json:"price"`
	Attributes   map[string]model.FieldValue `json:"attributes,omitempty"`
	Location     model.Location              `json:"location"`
	Assets       []model.MediaAsset          `json:"assets,omitempty"`
}

func bodyOf(d model.Draft) draftBody {
	return draftBody{
		DealType:     d.DealType,
		PropertyType: d.PropertyType,
		Category:     d.Category,
		Title:        d.Title,
		Description:  d.Description,
		Price:        d.Price,
		Attributes:   d.Attributes,
		Location:     d.Location,
		Assets:       d.Assets,
	}
}

func (b draftBody) applyTo(d *model.Draft) {
	d.DealType = b.DealType
	d.PropertyType = b.PropertyType
	d.Category = b.Category
	d.Title = b.Title
	d.Description = b.Description
	d.Price = b.Price
	d.Attributes = b.Attributes
	d.Location = b.Location
	d.Assets = b.Assets
}

// Create inserts a new draft.
func (s *PgDraftStore) Create(ctx context.Context, draft model.Draft) error {
	bodyJSON, err := json.Marshal(bodyOf(draft))
	if err != nil {
		return fmt.Errorf("marshal draft body: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO listing_drafts (
			id, owner_id, listing_id, published_id,
			phase, current_step, body, version,
			created_at, updated_at, expires_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11
		)`,
		draft.ID, draft.OwnerID, draft.ListingID, draft.PublishedID,
		draft.Phase, draft.CurrentStep, bodyJSON, draft.Version,
		draft.CreatedAt, draft.UpdatedAt, draft.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert draft: %w", err)
	}
	return nil
}

// Get retrieves a draft by ID, scoped to its owner.
func (s *PgDraftStore) Get(ctx context.Context, ownerID, draftID string) (model.Draft, error) {
	var draft model.Draft
	var bodyJSON []byte

	err := s.pool.QueryRow(ctx, `
		SELECT id, owner_id, listing_id, published_id,
		       phase, current_step, body, version,
		       created_at, updated_at, expires_at
		FROM listing_drafts
		WHERE id = $1 AND owner_id = $2`,
		draftID, ownerID,
	).Scan(
		&draft.ID, &draft.OwnerID, &draft.ListingID, &draft.PublishedID,
		&draft.Phase, &draft.CurrentStep, &bodyJSON, &draft.Version,
		&draft.CreatedAt, &draft.UpdatedAt, &draft.ExpiresAt,
	)
	if err == pgx.ErrNoRows {
		return model.Draft{}, model.NewNotFoundError(
			fmt.Sprintf("draft %q not found", draftID),
		)
	}
	if err != nil {
		return model.Draft{}, fmt.Errorf("query draft: %w", err)
	}

	if bodyJSON != nil {
		var body draftBody
		if err := json.Unmarshal(bodyJSON, &body); err != nil {
			return model.Draft{}, fmt.Errorf("unmarshal draft body: %w", err)
		}
		body.applyTo(&draft)
	}

	return draft, nil
}

// Update persists an updated draft with optimistic locking.
func (s *PgDraftStore) Update(ctx context.Context, draft model.Draft) error {
	bodyJSON, err := json.Marshal(bodyOf(draft))
	if err != nil {
		return fmt.Errorf("marshal draft body: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE listing_drafts SET
			listing_id = $1,
			published_id = $2,
			phase = $3,
			current_step = $4,
			body = $5,
			version = $6,
			updated_at = $7,
			expires_at = $8
		WHERE id = $9 AND version = $10`,
		draft.ListingID, draft.PublishedID, draft.Phase, draft.CurrentStep,
		bodyJSON, draft.Version+1, time.Now().UTC(), draft.ExpiresAt,
		draft.ID, draft.Version,
	)
	if err != nil {
		return fmt.Errorf("update draft: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewConflictError(
			fmt.Sprintf("draft %q version conflict (expected %d)", draft.ID, draft.Version),
		)
	}
	return nil
}

// AppendEvent adds an event to the draft audit trail.
func (s *PgDraftStore) AppendEvent(ctx context.Context, event model.DraftEvent) error {
	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO draft_events (
			id, draft_id, step, event, actor_id, data, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID, event.DraftID, event.Step, event.Event,
		event.ActorID, dataJSON, event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert draft event: %w", err)
	}
	return nil
}

// GetEvents retrieves all events for a draft.
func (s *PgDraftStore) GetEvents(ctx context.Context, ownerID, draftID string) ([]model.DraftEvent, error) {
	// Verify owner access.
	_, err := s.Get(ctx, ownerID, draftID)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, draft_id, step, event, actor_id, data, created_at
		FROM draft_events
		WHERE draft_id = $1
		ORDER BY created_at ASC`,
		draftID,
	)
	if err != nil {
		return nil, fmt.Errorf("query draft events: %w", err)
	}
	defer rows.Close()

	var events []model.DraftEvent
	for rows.Next() {
		var evt model.DraftEvent
		var dataJSON []byte
		if err := rows.Scan(
			&evt.ID, &evt.DraftID, &evt.Step, &evt.Event,
			&evt.ActorID, &dataJSON, &evt.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan draft event: %w", err)
		}
		if dataJSON != nil {
			_ = json.Unmarshal(dataJSON, &evt.Data)
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}

// FindActive returns unpublished, unexpired drafts for an owner.
func (s *PgDraftStore) FindActive(ctx context.Context, ownerID string, filters DraftFilters) ([]model.Draft, error) {
	query := `SELECT id, owner_id, listing_id, published_id,
	                 phase, current_step, body, version,
	                 created_at, updated_at, expires_at
	          FROM listing_drafts
	          WHERE owner_id = $1 AND phase NOT IN ('published', 'expired')`
	args := []any{ownerID}
	argIdx := 2

	if filters.Phase != "" {
		query += fmt.Sprintf(" AND phase = $%d", argIdx)
		args = append(args, filters.Phase)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filters.Limit)
		argIdx++
	}
	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, filters.Offset)
	}

	return s.queryDrafts(ctx, query, args...)
}

// FindExpired returns unpublished drafts past their expiration time.
func (s *PgDraftStore) FindExpired(ctx context.Context, cutoff time.Time) ([]model.Draft, error) {
	query := `SELECT id, owner_id, listing_id, published_id,
	                 phase, current_step, body, version,
	                 created_at, updated_at, expires_at
	          FROM listing_drafts
	          WHERE phase NOT IN ('published', 'expired')
	          AND expires_at IS NOT NULL AND expires_at < $1
	          ORDER BY expires_at ASC`
	return s.queryDrafts(ctx, query, cutoff)
}

// Delete removes a draft and its events.
func (s *PgDraftStore) Delete(ctx context.Context, ownerID, draftID string) error {
	// Delete events first (foreign key).
	_, err := s.pool.Exec(ctx, `
		DELETE FROM draft_events
		WHERE draft_id = $1
		AND draft_id IN (SELECT id FROM listing_drafts WHERE owner_id = $2)`,
		draftID, ownerID,
	)
	if err != nil {
		return fmt.Errorf("delete draft events: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		DELETE FROM listing_drafts
		WHERE id = $1 AND owner_id = $2`,
		draftID, ownerID,
	)
	if err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(
			fmt.Sprintf("draft %q not found", draftID),
		)
	}
	return nil
}

// queryDrafts executes a query and returns drafts.
func (s *PgDraftStore) queryDrafts(ctx context.Context, query string, args ...any) ([]model.Draft, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query drafts: %w", err)
	}
	defer rows.Close()

	var drafts []model.Draft
	for rows.Next() {
		var draft model.Draft
		var bodyJSON []byte
		if err := rows.Scan(
			&draft.ID, &draft.OwnerID, &draft.ListingID, &draft.PublishedID,
			&draft.Phase, &draft.CurrentStep, &bodyJSON, &draft.Version,
			&draft.CreatedAt, &draft.UpdatedAt, &draft.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("scan draft: %w", err)
		}
		if bodyJSON != nil {
			var body draftBody
			if err := json.Unmarshal(bodyJSON, &body); err == nil {
				body.applyTo(&draft)
			}
		}
		drafts = append(drafts, draft)
	}
	return drafts, rows.Err()
}
