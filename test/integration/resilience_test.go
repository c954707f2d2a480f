package integration

import (
	"bytes"
	"net/http"
	"testing"
	"time"

	"github.com/this-4mirho3ein/turkiye-temp-sub001/model"
)

type errorBody struct {
	Error *model.ErrorEnvelope `json:"error"`
}

// commitThroughPhase3 fast-forwards a fresh draft to the committed-location
// state so media tests can start there.
func commitThroughPhase3(t *testing.T, h *TestHarness, token string) (model.Draft, string) {
	t.Helper()

	var draft model.Draft
	h.AssertJSON(t, h.POST("/api/drafts", nil, token), http.StatusCreated, &draft)
	base := "/api/drafts/" + draft.ID

	h.AssertJSON(t, h.PUT(base+"/phase1", Phase1Form(), token), http.StatusOK, &draft)
	h.AssertJSON(t, h.POST(base+"/phase1", nil, token), http.StatusOK, &draft)
	h.AssertJSON(t, h.PUT(base+"/attributes", map[string]any{"rooms": "two"}, token),
		http.StatusOK, &draft)
	h.AssertJSON(t, h.POST(base+"/phase2", nil, token), http.StatusOK, &draft)
	for _, sel := range []struct{ level, slug string }{
		{"country", "turkiye"},
		{"province", "istanbul"},
		{"city", "istanbul-city"},
	} {
		h.AssertJSON(t, h.PUT(base+"/location",
			map[string]string{"level": sel.level, "slug": sel.slug}, token), http.StatusOK, &draft)
	}
	h.AssertJSON(t, h.PUT(base+"/address",
		map[string]string{"address": "Moda Caddesi 12"}, token), http.StatusOK, &draft)
	h.AssertJSON(t, h.POST(base+"/phase3", nil, token), http.StatusOK, &draft)
	return draft, base
}

func TestBackendRejectionSurfacesVerbatim(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(SellerClaims())

	var draft model.Draft
	h.AssertJSON(t, h.POST("/api/drafts", nil, token), http.StatusCreated, &draft)
	base := "/api/drafts/" + draft.ID
	h.AssertJSON(t, h.PUT(base+"/phase1", Phase1Form(), token), http.StatusOK, &draft)

	h.Backend.Reject("/api/elan/step1", "Bu kategori için ilan limitine ulaştınız")

	var envelope errorBody
	resp := h.POST(base+"/phase1", nil, token)
	h.AssertJSON(t, resp, http.StatusUnprocessableEntity, &envelope)
	if envelope.Error.Code != model.ErrServerRejection {
		t.Errorf("error code = %q, want %q", envelope.Error.Code, model.ErrServerRejection)
	}
	if envelope.Error.Message != "Bu kategori için ilan limitine ulaştınız" {
		t.Errorf("message = %q, want the backend's message verbatim", envelope.Error.Message)
	}

	// The failed commit left the draft untouched.
	var desc model.DraftDescriptor
	h.AssertJSON(t, h.GET(base, token), http.StatusOK, &desc)
	if desc.Phase != model.PhaseUninitialized {
		t.Errorf("phase = %q after rejected commit, want uninitialized", desc.Phase)
	}
	if desc.ListingID != "" {
		t.Errorf("listing_id = %q after rejected commit, want empty", desc.ListingID)
	}

	// Clearing the rejection lets the same draft commit.
	h.Backend.ClearReject("/api/elan/step1")
	var committed model.Draft
	h.AssertJSON(t, h.POST(base+"/phase1", nil, token), http.StatusOK, &committed)
	if committed.ListingID == "" {
		t.Error("commit after clearing the rejection did not thread a listing id")
	}
}

func TestCircuitBreakerOpensAfterRepeatedServerErrors(t *testing.T) {
	h := NewTestHarness(t, WithBreakerThreshold(2))
	token := h.GenerateToken(SellerClaims())

	var draft model.Draft
	h.AssertJSON(t, h.POST("/api/drafts", nil, token), http.StatusCreated, &draft)
	base := "/api/drafts/" + draft.ID
	h.AssertJSON(t, h.PUT(base+"/phase1", Phase1Form(), token), http.StatusOK, &draft)

	h.Backend.FailWith500("/api/elan/step1")

	// The first two failures reach the backend and are reported as
	// rejections.
	for i := 0; i < 2; i++ {
		var envelope errorBody
		resp := h.POST(base+"/phase1", nil, token)
		h.AssertJSON(t, resp, http.StatusUnprocessableEntity, &envelope)
		if envelope.Error.Code != model.ErrServerRejection {
			t.Fatalf("attempt %d error code = %q, want %q", i+1,
				envelope.Error.Code, model.ErrServerRejection)
		}
	}

	// The breaker is now open; the next call fails fast without a request.
	var envelope errorBody
	resp := h.POST(base+"/phase1", nil, token)
	h.AssertJSON(t, resp, http.StatusBadGateway, &envelope)
	if envelope.Error.Code != model.ErrBackendUnavailable {
		t.Errorf("error code = %q, want %q", envelope.Error.Code, model.ErrBackendUnavailable)
	}
}

func TestSubmittingPhasesOutOfOrderIsRejected(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(SellerClaims())

	var draft model.Draft
	h.AssertJSON(t, h.POST("/api/drafts", nil, token), http.StatusCreated, &draft)
	base := "/api/drafts/" + draft.ID

	for _, path := range []string{"/phase2", "/phase3"} {
		var envelope errorBody
		resp := h.POST(base+path, nil, token)
		h.AssertJSON(t, resp, http.StatusConflict, &envelope)
		if envelope.Error.Code != model.ErrPhaseNotCommitted {
			t.Errorf("POST %s error code = %q, want %q", path,
				envelope.Error.Code, model.ErrPhaseNotCommitted)
		}
	}

	resp := h.PostMultipart(base+"/phase4", token, map[string]filePart{}, nil)
	var envelope errorBody
	h.AssertJSON(t, resp, http.StatusConflict, &envelope)
	if envelope.Error.Code != model.ErrPhaseNotCommitted {
		t.Errorf("phase4 error code = %q, want %q", envelope.Error.Code, model.ErrPhaseNotCommitted)
	}
}

func TestPublishRequiresAtLeastOneImage(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(SellerClaims())
	_, base := commitThroughPhase3(t, h, token)

	var envelope errorBody
	resp := h.PostMultipart(base+"/phase4", token, map[string]filePart{}, nil)
	h.AssertJSON(t, resp, http.StatusUnprocessableEntity, &envelope)
	if envelope.Error.Code != model.ErrValidationError {
		t.Errorf("error code = %q, want %q", envelope.Error.Code, model.ErrValidationError)
	}
}

func TestFailedUploadStepCanBeRetried(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(SellerClaims())
	_, base := commitThroughPhase3(t, h, token)

	photo := bytes.Repeat([]byte{0xAB}, 96)
	var added struct {
		Draft model.Draft      `json:"draft"`
		Asset model.MediaAsset `json:"asset"`
	}
	resp := h.PostMultipart(base+"/assets", token,
		map[string]filePart{"file": {fileName: "photo.jpg", contentType: "image/jpeg", data: photo}}, nil)
	h.AssertJSON(t, resp, http.StatusCreated, &added)

	// The confirmation step fails; the asset stays pending with the error
	// recorded, and the draft does not publish.
	h.Backend.Reject("/api/upload/confirm", "storage quota exceeded")

	parts := map[string]filePart{
		added.Asset.LocalID: {fileName: "photo.jpg", contentType: "image/jpeg", data: photo},
	}
	var envelope errorBody
	resp = h.PostMultipart(base+"/phase4", token, parts, nil)
	h.AssertJSON(t, resp, http.StatusBadGateway, &envelope)
	if envelope.Error.Code != model.ErrUploadStepError {
		t.Fatalf("error code = %q, want %q", envelope.Error.Code, model.ErrUploadStepError)
	}

	var desc model.DraftDescriptor
	h.AssertJSON(t, h.GET(base, token), http.StatusOK, &desc)
	if desc.Phase != model.PhaseStep3Committed {
		t.Errorf("phase = %q after failed upload, want step3_committed", desc.Phase)
	}
	if len(desc.Draft.Assets) != 1 || desc.Draft.Assets[0].LastError == "" {
		t.Errorf("asset error not recorded: %+v", desc.Draft.Assets)
	}

	// Retrying after the backend recovers publishes the listing.
	h.Backend.ClearReject("/api/upload/confirm")
	var draft model.Draft
	resp = h.PostMultipart(base+"/phase4", token, parts, nil)
	h.AssertJSON(t, resp, http.StatusOK, &draft)
	if draft.Phase != model.PhasePublished {
		t.Errorf("phase = %q after retry, want published", draft.Phase)
	}
}

func TestPublishWithMissingFileContentFails(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(SellerClaims())
	_, base := commitThroughPhase3(t, h, token)

	photo := bytes.Repeat([]byte{0xCD}, 64)
	var added struct {
		Draft model.Draft      `json:"draft"`
		Asset model.MediaAsset `json:"asset"`
	}
	resp := h.PostMultipart(base+"/assets", token,
		map[string]filePart{"file": {fileName: "photo.jpg", contentType: "image/jpeg", data: photo}}, nil)
	h.AssertJSON(t, resp, http.StatusCreated, &added)

	// The phase 4 form omits the asset's bytes.
	var envelope errorBody
	resp = h.PostMultipart(base+"/phase4", token, map[string]filePart{}, nil)
	h.AssertJSON(t, resp, http.StatusBadGateway, &envelope)
	if envelope.Error.Code != model.ErrUploadStepError {
		t.Errorf("error code = %q, want %q", envelope.Error.Code, model.ErrUploadStepError)
	}
}

func TestExpiredDraftRejectsEdits(t *testing.T) {
	h := NewTestHarness(t, WithDraftTTL(20*time.Millisecond))
	token := h.GenerateToken(SellerClaims())

	var draft model.Draft
	h.AssertJSON(t, h.POST("/api/drafts", nil, token), http.StatusCreated, &draft)
	base := "/api/drafts/" + draft.ID

	time.Sleep(50 * time.Millisecond)

	// Reading reports the expiry; editing is refused.
	var desc model.DraftDescriptor
	h.AssertJSON(t, h.GET(base, token), http.StatusOK, &desc)
	if desc.Phase != model.PhaseExpired {
		t.Fatalf("phase = %q after TTL, want expired", desc.Phase)
	}

	var envelope errorBody
	resp := h.PUT(base+"/phase1", Phase1Form(), token)
	h.AssertJSON(t, resp, http.StatusGone, &envelope)
	if envelope.Error.Code != model.ErrDraftExpired {
		t.Errorf("error code = %q, want %q", envelope.Error.Code, model.ErrDraftExpired)
	}
}

func TestPublishedDraftIsImmutable(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(SellerClaims())
	_, base := commitThroughPhase3(t, h, token)

	photo := bytes.Repeat([]byte{0xEF}, 32)
	var added struct {
		Draft model.Draft      `json:"draft"`
		Asset model.MediaAsset `json:"asset"`
	}
	resp := h.PostMultipart(base+"/assets", token,
		map[string]filePart{"file": {fileName: "photo.jpg", contentType: "image/jpeg", data: photo}}, nil)
	h.AssertJSON(t, resp, http.StatusCreated, &added)

	var draft model.Draft
	resp = h.PostMultipart(base+"/phase4", token, map[string]filePart{
		added.Asset.LocalID: {fileName: "photo.jpg", contentType: "image/jpeg", data: photo},
	}, nil)
	h.AssertJSON(t, resp, http.StatusOK, &draft)
	if draft.Phase != model.PhasePublished {
		t.Fatalf("phase = %q, want published", draft.Phase)
	}

	var envelope errorBody
	resp = h.PUT(base+"/phase1", Phase1Form(), token)
	h.AssertJSON(t, resp, http.StatusConflict, &envelope)
	if envelope.Error.Code != model.ErrConflict {
		t.Errorf("error code = %q, want %q", envelope.Error.Code, model.ErrConflict)
	}
}
