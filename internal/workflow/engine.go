// Package workflow implements the four-phase listing submission workflow.
// Each phase commits server-side before the next unlocks; the identifier
// returned by the first commit threads through every later payload.
package workflow

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/attribute"
	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/backend"
	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/location"
	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/media"
	"github.com/this-4mirho3ein/turkiye-temp-sub001/model"
)

// Title and description bounds for the classification form.
const (
	titleMinLen       = 5
	titleMaxLen       = 100
	descriptionMinLen = 10
	descriptionMaxLen = 1000
)

// Audit trail event names.
const (
	eventCreated      = "created"
	eventSaved        = "saved"
	eventCommitted    = "committed"
	eventCommitFailed = "commit_failed"
	eventPublished    = "published"
	eventExpired      = "expired"
)

// PhaseSubmitter performs the four server-side phase commits.
type PhaseSubmitter interface {
	CreateStep1(ctx context.Context, rctx *model.RequestContext, p backend.Step1Payload) (string, error)
	CreateStep2(ctx context.Context, rctx *model.RequestContext, payload map[string]any) error
	CreateStep3(ctx context.Context, rctx *model.RequestContext, p backend.Step3Payload) error
	FinalizeStep4(ctx context.Context, rctx *model.RequestContext, elanID string, primaryIndex int, images []string) (string, error)
}

// MetricsRecorder receives workflow lifecycle counters. Implementations
// must be safe for concurrent use.
type MetricsRecorder interface {
	RecordDraftCreated()
	RecordDraftExpired()
	RecordPhaseCommit(step int, status string, duration time.Duration)
}

// Engine owns the draft lifecycle. All reads and writes are scoped to the
// caller's subject; a per-draft guard rejects concurrent phase commits.
type Engine struct {
	store      DraftStore
	backend    PhaseSubmitter
	attributes *attribute.Engine
	locations  *location.Resolver
	media      *media.Coordinator
	draftTTL   time.Duration
	logger     *zap.Logger
	metrics    MetricsRecorder

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewEngine creates a workflow engine.
func NewEngine(
	store DraftStore,
	phases PhaseSubmitter,
	attributes *attribute.Engine,
	locations *location.Resolver,
	mediaCoord *media.Coordinator,
	draftTTL time.Duration,
	logger *zap.Logger,
) *Engine {
	if draftTTL <= 0 {
		draftTTL = 24 * time.Hour
	}
	return &Engine{
		store:      store,
		backend:    phases,
		attributes: attributes,
		locations:  locations,
		media:      mediaCoord,
		draftTTL:   draftTTL,
		logger:     logger,
		inFlight:   make(map[string]bool),
	}
}

// SetMetricsRecorder attaches an optional metrics sink. Must be called
// before the engine starts serving requests.
func (e *Engine) SetMetricsRecorder(m MetricsRecorder) {
	e.metrics = m
}

// Step1Input is the classification and pricing form.
type Step1Input struct {
	DealType     model.LabeledValue `json:"deal_type"`
	PropertyType model.LabeledValue `json:"property_type"`
	Category     model.LabeledValue `json:"category"`
	Title        string             `json:"title"`
	Description  string             `json:"description"`
	Price        string             `json:"price"`
}

// CreateDraft starts a new empty draft for the caller.
func (e *Engine) CreateDraft(ctx context.Context, rctx *model.RequestContext) (model.Draft, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(e.draftTTL)

	draft := model.Draft{
		ID:          uuid.NewString(),
		OwnerID:     rctx.SubjectID,
		Phase:       model.PhaseUninitialized,
		CurrentStep: model.Step1,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   &expiresAt,
		Version:     1,
	}
	if err := e.store.Create(ctx, draft); err != nil {
		return model.Draft{}, err
	}
	if err := e.appendEvent(ctx, draft.ID, model.Step1, eventCreated, rctx.SubjectID, nil); err != nil {
		return model.Draft{}, err
	}

	if e.metrics != nil {
		e.metrics.RecordDraftCreated()
	}
	e.logger.Info("workflow: draft created",
		zap.String("draft_id", draft.ID),
		zap.String("owner_id", draft.OwnerID),
	)
	return draft, nil
}

// Get loads a draft for the caller, expiring it lazily when past its TTL.
func (e *Engine) Get(ctx context.Context, rctx *model.RequestContext, draftID string) (model.Draft, error) {
	draft, err := e.store.Get(ctx, rctx.SubjectID, draftID)
	if err != nil {
		return model.Draft{}, err
	}

	if draft.Phase != model.PhasePublished && draft.Phase != model.PhaseExpired &&
		draft.ExpiresAt != nil && draft.ExpiresAt.Before(time.Now().UTC()) {
		draft.Phase = model.PhaseExpired
		if err := e.store.Update(ctx, draft); err == nil {
			_ = e.appendEvent(ctx, draft.ID, draft.CurrentStep, eventExpired, "system", nil)
			if e.metrics != nil {
				e.metrics.RecordDraftExpired()
			}
		}
		draft.Version++
	}
	return draft, nil
}

// List returns the caller's active drafts.
func (e *Engine) List(ctx context.Context, rctx *model.RequestContext, filters DraftFilters) ([]model.Draft, error) {
	return e.store.FindActive(ctx, rctx.SubjectID, filters)
}

// Delete discards a draft and its audit trail.
func (e *Engine) Delete(ctx context.Context, rctx *model.RequestContext, draftID string) error {
	if err := e.store.Delete(ctx, rctx.SubjectID, draftID); err != nil {
		return err
	}
	e.logger.Info("workflow: draft deleted", zap.String("draft_id", draftID))
	return nil
}

// Describe builds the resolved draft view with step statuses and history.
func (e *Engine) Describe(ctx context.Context, rctx *model.RequestContext, draftID string) (model.DraftDescriptor, error) {
	draft, err := e.Get(ctx, rctx, draftID)
	if err != nil {
		return model.DraftDescriptor{}, err
	}
	events, err := e.store.GetEvents(ctx, rctx.SubjectID, draftID)
	if err != nil {
		return model.DraftDescriptor{}, err
	}

	steps := make([]model.StepSummary, 0, model.Step4)
	for step := model.Step1; step <= model.Step4; step++ {
		steps = append(steps, model.StepSummary{
			Step:   step,
			Name:   stepName(step),
			Status: stepStatus(step, draft),
		})
	}

	history := make([]model.HistoryEntry, 0, len(events))
	for _, evt := range events {
		history = append(history, model.HistoryEntry{
			Step:      evt.Step,
			Event:     evt.Event,
			Actor:     evt.ActorID,
			Timestamp: evt.Timestamp.UTC().Format(time.RFC3339),
		})
	}

	return model.DraftDescriptor{
		ID:          draft.ID,
		ListingID:   draft.ListingID,
		PublishedID: draft.PublishedID,
		Phase:       draft.Phase,
		CurrentStep: draft.CurrentStep,
		Steps:       steps,
		Draft:       &draft,
		History:     history,
	}, nil
}

// SaveStep1 updates the classification form locally without committing.
// Changing the property type discards the attribute map, because the
// attribute schema is keyed by property type.
func (e *Engine) SaveStep1(ctx context.Context, rctx *model.RequestContext, draftID string, input Step1Input) (model.Draft, error) {
	draft, err := e.loadEditable(ctx, rctx, draftID)
	if err != nil {
		return model.Draft{}, err
	}
	if err := validateStep1(input); err != nil {
		return model.Draft{}, err
	}

	if draft.PropertyType.Slug != "" && draft.PropertyType.Slug != input.PropertyType.Slug {
		draft.Attributes = nil
	}
	draft.DealType = input.DealType
	draft.PropertyType = input.PropertyType
	draft.Category = input.Category
	draft.Title = strings.TrimSpace(input.Title)
	draft.Description = strings.TrimSpace(input.Description)
	draft.Price = input.Price

	return e.persist(ctx, rctx, draft, model.Step1, eventSaved, nil)
}

// SubmitStep1 commits the classification form. The backend's identifier is
// stored on the draft and threads through every later phase.
func (e *Engine) SubmitStep1(ctx context.Context, rctx *model.RequestContext, draftID string) (model.Draft, error) {
	// 1. Load and guard.
	draft, err := e.loadEditable(ctx, rctx, draftID)
	if err != nil {
		return model.Draft{}, err
	}
	release, err := e.acquire(draft.ID)
	if err != nil {
		return model.Draft{}, err
	}
	defer release()

	// 2. Local validation before any network call.
	if err := validateStep1(step1InputOf(draft)); err != nil {
		return model.Draft{}, err
	}

	// 3. Commit server-side.
	price, _ := parsePrice(draft.Price)
	start := time.Now()
	listingID, err := e.backend.CreateStep1(ctx, rctx, backend.Step1Payload{
		DealType:     draft.DealType.Slug,
		PropertyType: draft.PropertyType.Slug,
		Category:     draft.Category.Slug,
		Title:        draft.Title,
		Description:  draft.Description,
		Price:        price,
	})
	e.recordCommitMetric(model.Step1, start, err)
	if err != nil {
		return draft, e.recordCommitFailure(ctx, draft, model.Step1, rctx.SubjectID, err)
	}

	// 4. Thread the identifier and advance.
	draft.ListingID = listingID
	draft.Phase = model.PhaseStep1Committed
	if draft.CurrentStep < model.Step2 {
		draft.CurrentStep = model.Step2
	}
	draft, err = e.persist(ctx, rctx, draft, model.Step1, eventCommitted,
		map[string]any{"listing_id": listingID})
	if err != nil {
		return model.Draft{}, err
	}

	e.logger.Info("workflow: phase 1 committed",
		zap.String("draft_id", draft.ID),
		zap.String("listing_id", listingID),
	)
	return draft, nil
}

// SaveAttributes validates raw attribute input against the property type's
// schema and merges the normalized values into the draft. A key submitted
// with an empty value clears that attribute.
func (e *Engine) SaveAttributes(ctx context.Context, rctx *model.RequestContext, draftID string, input map[string]any) (model.Draft, error) {
	draft, err := e.loadEditable(ctx, rctx, draftID)
	if err != nil {
		return model.Draft{}, err
	}
	if draft.CommittedThrough() < model.Step1 {
		return model.Draft{}, model.NewPhaseNotCommittedError("classification must be committed before attributes")
	}

	schema, err := e.attributes.Schema(ctx, draft.PropertyType.Slug)
	if err != nil {
		return model.Draft{}, err
	}
	normalized, err := e.attributes.Normalize(schema, input)
	if err != nil {
		return model.Draft{}, err
	}

	if draft.Attributes == nil {
		draft.Attributes = make(map[string]model.FieldValue, len(normalized))
	}
	for slug, value := range normalized {
		if value.IsEmpty() {
			delete(draft.Attributes, slug)
			continue
		}
		draft.Attributes[slug] = value
	}

	return e.persist(ctx, rctx, draft, model.Step2, eventSaved, nil)
}

// SubmitStep2 commits the attribute map. A missing listing identifier is a
// fatal precondition failure, never retried.
func (e *Engine) SubmitStep2(ctx context.Context, rctx *model.RequestContext, draftID string) (model.Draft, error) {
	draft, err := e.loadEditable(ctx, rctx, draftID)
	if err != nil {
		return model.Draft{}, err
	}
	release, err := e.acquire(draft.ID)
	if err != nil {
		return model.Draft{}, err
	}
	defer release()

	if draft.CommittedThrough() < model.Step1 {
		return model.Draft{}, model.NewPhaseNotCommittedError("classification must be committed before attributes")
	}
	if draft.ListingID == "" {
		return model.Draft{}, model.NewPreconditionError("draft has no listing identifier")
	}

	payload := e.attributes.Serialize(draft.Attributes, draft.ListingID)
	start := time.Now()
	err = e.backend.CreateStep2(ctx, rctx, payload)
	e.recordCommitMetric(model.Step2, start, err)
	if err != nil {
		return draft, e.recordCommitFailure(ctx, draft, model.Step2, rctx.SubjectID, err)
	}

	draft.Phase = model.PhaseStep2Committed
	if draft.CurrentStep < model.Step3 {
		draft.CurrentStep = model.Step3
	}
	draft, err = e.persist(ctx, rctx, draft, model.Step2, eventCommitted, nil)
	if err != nil {
		return model.Draft{}, err
	}

	e.logger.Info("workflow: phase 2 committed", zap.String("draft_id", draft.ID))
	return draft, nil
}

// SelectLocation sets one cascading level, clearing every deeper level.
func (e *Engine) SelectLocation(ctx context.Context, rctx *model.RequestContext, draftID, level, slug string) (model.Draft, error) {
	draft, err := e.loadEditable(ctx, rctx, draftID)
	if err != nil {
		return model.Draft{}, err
	}

	loc, err := e.locations.Select(ctx, draft.Location, level, slug)
	if err != nil {
		return model.Draft{}, err
	}
	draft.Location = loc

	return e.persist(ctx, rctx, draft, model.Step3, eventSaved, nil)
}

// SaveAddress sets the street address and optional map pin.
func (e *Engine) SaveAddress(ctx context.Context, rctx *model.RequestContext, draftID, address, latitude, longitude string) (model.Draft, error) {
	draft, err := e.loadEditable(ctx, rctx, draftID)
	if err != nil {
		return model.Draft{}, err
	}

	loc := e.locations.SetAddress(draft.Location, strings.TrimSpace(address))
	loc, err = e.locations.SetCoordinates(loc, latitude, longitude)
	if err != nil {
		return model.Draft{}, err
	}
	draft.Location = loc

	return e.persist(ctx, rctx, draft, model.Step3, eventSaved, nil)
}

// LocationOptions returns the selectable options for a level under the
// draft's current location state.
func (e *Engine) LocationOptions(ctx context.Context, rctx *model.RequestContext, draftID, level string) ([]backend.LocationOption, error) {
	draft, err := e.Get(ctx, rctx, draftID)
	if err != nil {
		return nil, err
	}
	return e.locations.Options(ctx, draft.Location, level)
}

// SubmitStep3 commits the location form.
func (e *Engine) SubmitStep3(ctx context.Context, rctx *model.RequestContext, draftID string) (model.Draft, error) {
	draft, err := e.loadEditable(ctx, rctx, draftID)
	if err != nil {
		return model.Draft{}, err
	}
	release, err := e.acquire(draft.ID)
	if err != nil {
		return model.Draft{}, err
	}
	defer release()

	if draft.CommittedThrough() < model.Step2 {
		return model.Draft{}, model.NewPhaseNotCommittedError("attributes must be committed before location")
	}
	if draft.ListingID == "" {
		return model.Draft{}, model.NewPreconditionError("draft has no listing identifier")
	}
	if err := location.ValidateForCommit(draft.Location); err != nil {
		return model.Draft{}, err
	}

	x, y := location.CoordinatePair(draft.Location)
	start := time.Now()
	err = e.backend.CreateStep3(ctx, rctx, backend.Step3Payload{
		ElanID:      draft.ListingID,
		Country:     draft.Location.Country,
		Province:    draft.Location.Province,
		City:        draft.Location.City,
		Nighborhood: draft.Location.Area,
		Address:     draft.Location.Address,
		X:           x,
		Y:           y,
	})
	e.recordCommitMetric(model.Step3, start, err)
	if err != nil {
		return draft, e.recordCommitFailure(ctx, draft, model.Step3, rctx.SubjectID, err)
	}

	draft.Phase = model.PhaseStep3Committed
	if draft.CurrentStep < model.Step4 {
		draft.CurrentStep = model.Step4
	}
	draft, err = e.persist(ctx, rctx, draft, model.Step3, eventCommitted, nil)
	if err != nil {
		return model.Draft{}, err
	}

	e.logger.Info("workflow: phase 3 committed", zap.String("draft_id", draft.ID))
	return draft, nil
}

// AddAsset attaches a media file to the draft.
func (e *Engine) AddAsset(ctx context.Context, rctx *model.RequestContext, draftID, fileName, contentType string, size int64) (model.Draft, model.MediaAsset, error) {
	draft, err := e.loadEditable(ctx, rctx, draftID)
	if err != nil {
		return model.Draft{}, model.MediaAsset{}, err
	}

	assets, asset, err := e.media.Add(draft.Assets, fileName, contentType, size)
	if err != nil {
		return model.Draft{}, model.MediaAsset{}, err
	}
	draft.Assets = assets

	draft, err = e.persist(ctx, rctx, draft, model.Step4, eventSaved,
		map[string]any{"file_name": fileName})
	return draft, asset, err
}

// RemoveAsset detaches a media file, promoting a new primary if needed.
func (e *Engine) RemoveAsset(ctx context.Context, rctx *model.RequestContext, draftID, localID string) (model.Draft, error) {
	draft, err := e.loadEditable(ctx, rctx, draftID)
	if err != nil {
		return model.Draft{}, err
	}

	assets, err := e.media.Remove(draft.Assets, localID)
	if err != nil {
		return model.Draft{}, err
	}
	draft.Assets = assets

	return e.persist(ctx, rctx, draft, model.Step4, eventSaved, nil)
}

// SetPrimaryAsset designates one asset as the listing's primary image.
func (e *Engine) SetPrimaryAsset(ctx context.Context, rctx *model.RequestContext, draftID, localID string) (model.Draft, error) {
	draft, err := e.loadEditable(ctx, rctx, draftID)
	if err != nil {
		return model.Draft{}, err
	}

	assets, err := e.media.SetPrimary(draft.Assets, localID)
	if err != nil {
		return model.Draft{}, err
	}
	draft.Assets = assets

	return e.persist(ctx, rctx, draft, model.Step4, eventSaved,
		map[string]any{"primary": localID})
}

// SubmitStep4 uploads every pending asset and publishes the listing. Upload
// progress is persisted even when a step fails, so completed assets are not
// re-uploaded on retry.
func (e *Engine) SubmitStep4(ctx context.Context, rctx *model.RequestContext, draftID string, payloads map[string][]byte) (model.Draft, error) {
	// 1. Load and guard.
	draft, err := e.loadEditable(ctx, rctx, draftID)
	if err != nil {
		return model.Draft{}, err
	}
	release, err := e.acquire(draft.ID)
	if err != nil {
		return model.Draft{}, err
	}
	defer release()

	// 2. Preconditions.
	if draft.CommittedThrough() < model.Step3 {
		return model.Draft{}, model.NewPhaseNotCommittedError("location must be committed before media")
	}
	if draft.ListingID == "" {
		return model.Draft{}, model.NewPreconditionError("draft has no listing identifier")
	}
	if len(draft.Assets) == 0 {
		return model.Draft{}, model.NewValidationError([]model.FieldError{{
			Field: "images", Code: model.ErrValidationError,
			Message: "at least one image is required",
		}})
	}

	// 3. Upload pending assets; keep whatever progress was made.
	assets, uploadErr := e.media.UploadAll(ctx, rctx, draft.Assets, payloads)
	draft.Assets = assets
	draft, persistErr := e.persist(ctx, rctx, draft, model.Step4, eventSaved, nil)
	if persistErr != nil {
		return model.Draft{}, persistErr
	}
	if uploadErr != nil {
		_ = e.appendEvent(ctx, draft.ID, model.Step4, eventCommitFailed, rctx.SubjectID,
			map[string]any{"error": uploadErr.Error()})
		return draft, uploadErr
	}

	// 4. Publish with the recomputed primary index.
	start := time.Now()
	publishedID, err := e.backend.FinalizeStep4(ctx, rctx, draft.ListingID,
		media.PrimaryIndex(draft.Assets), media.RemoteNames(draft.Assets))
	e.recordCommitMetric(model.Step4, start, err)
	if err != nil {
		return draft, e.recordCommitFailure(ctx, draft, model.Step4, rctx.SubjectID, err)
	}

	draft.PublishedID = publishedID
	draft.Phase = model.PhasePublished
	draft.ExpiresAt = nil
	draft, err = e.persist(ctx, rctx, draft, model.Step4, eventPublished,
		map[string]any{"published_id": publishedID})
	if err != nil {
		return model.Draft{}, err
	}

	e.logger.Info("workflow: listing published",
		zap.String("draft_id", draft.ID),
		zap.String("published_id", publishedID),
	)
	return draft, nil
}

// Advance moves the cursor forward. Only the step directly after the last
// committed phase is reachable.
func (e *Engine) Advance(ctx context.Context, rctx *model.RequestContext, draftID string) (model.Draft, error) {
	draft, err := e.loadEditable(ctx, rctx, draftID)
	if err != nil {
		return model.Draft{}, err
	}

	next := draft.CurrentStep + 1
	if next > model.Step4 {
		return model.Draft{}, model.NewBadRequestError("already at the last step")
	}
	if next > draft.CommittedThrough()+1 {
		return model.Draft{}, model.NewPhaseNotCommittedError(
			fmt.Sprintf("step %d must be committed first", draft.CurrentStep))
	}

	draft.CurrentStep = next
	return e.persist(ctx, rctx, draft, next, eventSaved, nil)
}

// Retreat moves the cursor backward. Committed phases stay committed;
// stepping back only repositions the cursor for editing.
func (e *Engine) Retreat(ctx context.Context, rctx *model.RequestContext, draftID string) (model.Draft, error) {
	draft, err := e.loadEditable(ctx, rctx, draftID)
	if err != nil {
		return model.Draft{}, err
	}

	if draft.CurrentStep <= model.Step1 {
		return model.Draft{}, model.NewBadRequestError("already at the first step")
	}
	draft.CurrentStep--
	return e.persist(ctx, rctx, draft, draft.CurrentStep, eventSaved, nil)
}

// ProcessExpirations marks every draft past its TTL as expired.
func (e *Engine) ProcessExpirations(ctx context.Context) error {
	expired, err := e.store.FindExpired(ctx, time.Now().UTC())
	if err != nil {
		return err
	}

	for _, draft := range expired {
		draft.Phase = model.PhaseExpired
		if err := e.store.Update(ctx, draft); err != nil {
			// A concurrent update moved the draft; the next sweep will
			// re-evaluate it.
			e.logger.Warn("workflow: expiry update skipped",
				zap.String("draft_id", draft.ID),
				zap.Error(err),
			)
			continue
		}
		_ = e.appendEvent(ctx, draft.ID, draft.CurrentStep, eventExpired, "system", nil)
		if e.metrics != nil {
			e.metrics.RecordDraftExpired()
		}
		e.logger.Info("workflow: draft expired", zap.String("draft_id", draft.ID))
	}
	return nil
}

// RunExpirySweep runs ProcessExpirations on a ticker until ctx is done.
func (e *Engine) RunExpirySweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.ProcessExpirations(ctx); err != nil {
				e.logger.Error("workflow: expiry sweep failed", zap.Error(err))
			}
		}
	}
}

// UploadSession reports transient upload progress for an asset.
func (e *Engine) UploadSession(localID string) (model.UploadSession, bool) {
	return e.media.Session(localID)
}

// loadEditable loads a draft and rejects edits on terminal phases.
func (e *Engine) loadEditable(ctx context.Context, rctx *model.RequestContext, draftID string) (model.Draft, error) {
	draft, err := e.Get(ctx, rctx, draftID)
	if err != nil {
		return model.Draft{}, err
	}
	switch draft.Phase {
	case model.PhasePublished:
		return model.Draft{}, model.NewConflictError("draft is already published")
	case model.PhaseExpired:
		return model.Draft{}, model.NewDraftExpiredError("draft has expired")
	}
	return draft, nil
}

// acquire takes the per-draft submit guard. The returned func releases it.
func (e *Engine) acquire(draftID string) (func(), error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.inFlight[draftID] {
		return nil, model.NewSubmitInFlightError("a submission is already in progress")
	}
	e.inFlight[draftID] = true
	return func() {
		e.mu.Lock()
		delete(e.inFlight, draftID)
		e.mu.Unlock()
	}, nil
}

// persist updates the draft and appends an audit event.
func (e *Engine) persist(ctx context.Context, rctx *model.RequestContext, draft model.Draft, step int, event string, data map[string]any) (model.Draft, error) {
	if err := e.store.Update(ctx, draft); err != nil {
		return model.Draft{}, err
	}
	draft.Version++
	if err := e.appendEvent(ctx, draft.ID, step, event, rctx.SubjectID, data); err != nil {
		return model.Draft{}, err
	}
	return draft, nil
}

// recordCommitMetric reports one commit attempt to the metrics sink.
func (e *Engine) recordCommitMetric(step int, start time.Time, err error) {
	if e.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "failed"
	}
	e.metrics.RecordPhaseCommit(step, status, time.Since(start))
}

// recordCommitFailure logs and audits a failed phase commit, returning the
// original error for the caller to surface.
func (e *Engine) recordCommitFailure(ctx context.Context, draft model.Draft, step int, actorID string, cause error) error {
	_ = e.appendEvent(ctx, draft.ID, step, eventCommitFailed, actorID,
		map[string]any{"error": cause.Error()})
	e.logger.Warn("workflow: phase commit failed",
		zap.String("draft_id", draft.ID),
		zap.Int("step", step),
		zap.Error(cause),
	)
	return cause
}

func (e *Engine) appendEvent(ctx context.Context, draftID string, step int, event, actorID string, data map[string]any) error {
	return e.store.AppendEvent(ctx, model.DraftEvent{
		ID:        uuid.NewString(),
		DraftID:   draftID,
		Step:      step,
		Event:     event,
		ActorID:   actorID,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// validateStep1 checks the classification form field by field, collecting
// every failure.
func validateStep1(input Step1Input) error {
	var details []model.FieldError

	if input.DealType.Slug == "" {
		details = append(details, model.FieldError{
			Field: "deal_type", Code: model.ErrValidationError, Message: "deal type is required",
		})
	}
	if input.PropertyType.Slug == "" {
		details = append(details, model.FieldError{
			Field: "property_type", Code: model.ErrValidationError, Message: "property type is required",
		})
	}
	if input.Category.Slug == "" {
		details = append(details, model.FieldError{
			Field: "category", Code: model.ErrValidationError, Message: "category is required",
		})
	}

	// Length bounds count characters, not bytes; titles are mostly
	// Turkish and Persian text.
	title := strings.TrimSpace(input.Title)
	if n := utf8.RuneCountInString(title); n < titleMinLen || n > titleMaxLen {
		details = append(details, model.FieldError{
			Field: "title", Code: model.ErrValidationError,
			Message: fmt.Sprintf("title must be between %d and %d characters", titleMinLen, titleMaxLen),
		})
	}

	description := strings.TrimSpace(input.Description)
	if n := utf8.RuneCountInString(description); n < descriptionMinLen || n > descriptionMaxLen {
		details = append(details, model.FieldError{
			Field: "description", Code: model.ErrValidationError,
			Message: fmt.Sprintf("description must be between %d and %d characters", descriptionMinLen, descriptionMaxLen),
		})
	}

	if _, err := parsePrice(input.Price); err != nil {
		details = append(details, model.FieldError{
			Field: "price", Code: model.ErrValidationError, Message: err.Error(),
		})
	}

	if len(details) > 0 {
		return model.NewValidationError(details)
	}
	return nil
}

// parsePrice accepts non-empty digit-only strings that fit in an int64.
func parsePrice(price string) (int64, error) {
	if price == "" {
		return 0, fmt.Errorf("price is required")
	}
	for _, r := range price {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("price must contain digits only")
		}
	}
	n, err := strconv.ParseInt(price, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("price is out of range")
	}
	return n, nil
}

func step1InputOf(draft model.Draft) Step1Input {
	return Step1Input{
		DealType:     draft.DealType,
		PropertyType: draft.PropertyType,
		Category:     draft.Category,
		Title:        draft.Title,
		Description:  draft.Description,
		Price:        draft.Price,
	}
}

func stepName(step int) string {
	switch step {
	case model.Step1:
		return "classification"
	case model.Step2:
		return "attributes"
	case model.Step3:
		return "location"
	case model.Step4:
		return "media"
	}
	return "unknown"
}

func stepStatus(step int, draft model.Draft) string {
	committed := draft.CommittedThrough()
	switch {
	case step <= committed:
		return model.StepStatusCompleted
	case step == draft.CurrentStep:
		return model.StepStatusInProgress
	default:
		return model.StepStatusFuture
	}
}
