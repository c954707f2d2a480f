package transport

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/workflow"
	"github.com/this-4mirho3ein/turkiye-temp-sub001/model"
)

// DraftHandler serves the draft lifecycle and phase endpoints.
type DraftHandler struct {
	engine *workflow.Engine
}

// NewDraftHandler creates a draft handler.
func NewDraftHandler(engine *workflow.Engine) *DraftHandler {
	return &DraftHandler{engine: engine}
}

// requestContext extracts the authenticated RequestContext, rejecting
// requests that somehow bypassed the auth middleware.
func requestContext(r *http.Request) (*model.RequestContext, error) {
	rctx := model.RequestContextFrom(r.Context())
	if rctx == nil || rctx.Validate() != nil {
		return nil, model.NewUnauthorizedError("Authentication required")
	}
	return rctx, nil
}

// Create starts a new empty draft.
// POST /api/drafts
func (h *DraftHandler) Create(w http.ResponseWriter, r *http.Request) {
	rctx, err := requestContext(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	draft, err := h.engine.CreateDraft(r.Context(), rctx)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, draft)
}

// List returns the caller's active drafts.
// GET /api/drafts?phase=&limit=&offset=
func (h *DraftHandler) List(w http.ResponseWriter, r *http.Request) {
	rctx, err := requestContext(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	filters := workflow.DraftFilters{
		Phase: r.URL.Query().Get("phase"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		filters.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		filters.Offset, _ = strconv.Atoi(v)
	}

	drafts, err := h.engine.List(r.Context(), rctx, filters)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"drafts": drafts})
}

// Describe returns the resolved draft view with step statuses and history.
// GET /api/drafts/{draftID}
func (h *DraftHandler) Describe(w http.ResponseWriter, r *http.Request) {
	rctx, err := requestContext(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	desc, err := h.engine.Describe(r.Context(), rctx, chi.URLParam(r, "draftID"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, desc)
}

// Delete discards a draft.
// DELETE /api/drafts/{draftID}
func (h *DraftHandler) Delete(w http.ResponseWriter, r *http.Request) {
	rctx, err := requestContext(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	if err := h.engine.Delete(r.Context(), rctx, chi.URLParam(r, "draftID")); err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusNoContent, nil)
}

// SavePhase1 updates the classification form without committing.
// PUT /api/drafts/{draftID}/phase1
func (h *DraftHandler) SavePhase1(w http.ResponseWriter, r *http.Request) {
	rctx, err := requestContext(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	var input workflow.Step1Input
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		WriteError(w, model.NewBadRequestError("invalid request body"))
		return
	}

	draft, err := h.engine.SaveStep1(r.Context(), rctx, chi.URLParam(r, "draftID"), input)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, draft)
}

// SubmitPhase1 commits the classification form server-side.
// POST /api/drafts/{draftID}/phase1
func (h *DraftHandler) SubmitPhase1(w http.ResponseWriter, r *http.Request) {
	rctx, err := requestContext(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	draft, err := h.engine.SubmitStep1(r.Context(), rctx, chi.URLParam(r, "draftID"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, draft)
}

// SaveAttributes merges validated attribute input into the draft.
// PUT /api/drafts/{draftID}/attributes
func (h *DraftHandler) SaveAttributes(w http.ResponseWriter, r *http.Request) {
	rctx, err := requestContext(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	var input map[string]any
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		WriteError(w, model.NewBadRequestError("invalid request body"))
		return
	}

	draft, err := h.engine.SaveAttributes(r.Context(), rctx, chi.URLParam(r, "draftID"), input)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, draft)
}

// SubmitPhase2 commits the attribute map server-side.
// POST /api/drafts/{draftID}/phase2
func (h *DraftHandler) SubmitPhase2(w http.ResponseWriter, r *http.Request) {
	rctx, err := requestContext(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	draft, err := h.engine.SubmitStep2(r.Context(), rctx, chi.URLParam(r, "draftID"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, draft)
}

// SelectLocation sets one cascading location level.
// PUT /api/drafts/{draftID}/location
func (h *DraftHandler) SelectLocation(w http.ResponseWriter, r *http.Request) {
	rctx, err := requestContext(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	var input struct {
		Level string `json:"level"`
		Slug  string `json:"slug"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		WriteError(w, model.NewBadRequestError("invalid request body"))
		return
	}

	draft, err := h.engine.SelectLocation(r.Context(), rctx, chi.URLParam(r, "draftID"), input.Level, input.Slug)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, draft)
}

// SaveAddress sets the street address and optional map pin.
// PUT /api/drafts/{draftID}/address
func (h *DraftHandler) SaveAddress(w http.ResponseWriter, r *http.Request) {
	rctx, err := requestContext(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	var input struct {
		Address   string `json:"address"`
		Latitude  string `json:"latitude"`
		Longitude string `json:"longitude"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		WriteError(w, model.NewBadRequestError("invalid request body"))
		return
	}

	draft, err := h.engine.SaveAddress(r.Context(), rctx, chi.URLParam(r, "draftID"),
		input.Address, input.Latitude, input.Longitude)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, draft)
}

// LocationOptions returns the options for one cascading level under the
// draft's current selections.
// GET /api/drafts/{draftID}/location/options?level=city
func (h *DraftHandler) LocationOptions(w http.ResponseWriter, r *http.Request) {
	rctx, err := requestContext(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	opts, err := h.engine.LocationOptions(r.Context(), rctx, chi.URLParam(r, "draftID"),
		r.URL.Query().Get("level"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"options": opts})
}

// SubmitPhase3 commits the location form server-side.
// POST /api/drafts/{draftID}/phase3
func (h *DraftHandler) SubmitPhase3(w http.ResponseWriter, r *http.Request) {
	rctx, err := requestContext(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	draft, err := h.engine.SubmitStep3(r.Context(), rctx, chi.URLParam(r, "draftID"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, draft)
}

// Advance moves the step cursor forward.
// POST /api/drafts/{draftID}/advance
func (h *DraftHandler) Advance(w http.ResponseWriter, r *http.Request) {
	rctx, err := requestContext(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	draft, err := h.engine.Advance(r.Context(), rctx, chi.URLParam(r, "draftID"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, draft)
}

// Retreat moves the step cursor backward without uncommitting.
// POST /api/drafts/{draftID}/retreat
func (h *DraftHandler) Retreat(w http.ResponseWriter, r *http.Request) {
	rctx, err := requestContext(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	draft, err := h.engine.Retreat(r.Context(), rctx, chi.URLParam(r, "draftID"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, draft)
}
