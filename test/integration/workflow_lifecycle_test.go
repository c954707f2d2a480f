package integration

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/this-4mirho3ein/turkiye-temp-sub001/model"
)

// TestFullPublishLifecycle drives a draft through every phase over HTTP and
// verifies the wire payloads the mock backend received along the way.
func TestFullPublishLifecycle(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(SellerClaims())

	// Phase 0: create an empty draft.
	var draft model.Draft
	resp := h.POST("/api/drafts", nil, token)
	h.AssertJSON(t, resp, http.StatusCreated, &draft)
	if draft.ID == "" {
		t.Fatal("created draft has no id")
	}
	if draft.Phase != model.PhaseUninitialized {
		t.Errorf("phase = %q, want %q", draft.Phase, model.PhaseUninitialized)
	}
	if draft.ExpiresAt == nil {
		t.Error("new draft has no expiry")
	}
	base := "/api/drafts/" + draft.ID

	// Phase 1: save and commit the classification form.
	resp = h.PUT(base+"/phase1", Phase1Form(), token)
	h.AssertJSON(t, resp, http.StatusOK, &draft)
	if draft.Title != "Bright two bedroom flat" {
		t.Errorf("title = %q after save", draft.Title)
	}

	resp = h.POST(base+"/phase1", nil, token)
	h.AssertJSON(t, resp, http.StatusOK, &draft)
	if draft.ListingID != "48213" {
		t.Errorf("listing_id = %q, want 48213", draft.ListingID)
	}
	if draft.Phase != model.PhaseStep1Committed {
		t.Errorf("phase = %q, want %q", draft.Phase, model.PhaseStep1Committed)
	}
	if draft.CurrentStep != model.Step2 {
		t.Errorf("current_step = %d, want %d", draft.CurrentStep, model.Step2)
	}

	// Phase 2: save attributes and commit.
	attrs := map[string]any{
		"rooms":     "two",
		"amenities": []string{"elevator", "parking"},
		"area-size": 85,
	}
	resp = h.PUT(base+"/attributes", attrs, token)
	h.AssertJSON(t, resp, http.StatusOK, &draft)

	resp = h.POST(base+"/phase2", nil, token)
	h.AssertJSON(t, resp, http.StatusOK, &draft)
	if draft.Phase != model.PhaseStep2Committed {
		t.Errorf("phase = %q, want %q", draft.Phase, model.PhaseStep2Committed)
	}

	payloads := h.Backend.Step2Payloads()
	if len(payloads) != 1 {
		t.Fatalf("backend received %d attribute payloads, want 1", len(payloads))
	}
	p2 := payloads[0]
	if p2["elan"] != "48213" {
		t.Errorf(`payload["elan"] = %v, want "48213"`, p2["elan"])
	}
	if p2["rooms"] != "two" {
		t.Errorf(`payload["rooms"] = %v, want slug "two"`, p2["rooms"])
	}
	amenities, ok := p2["amenities"].([]any)
	if !ok || len(amenities) != 2 || amenities[0] != "elevator" || amenities[1] != "parking" {
		t.Errorf(`payload["amenities"] = %v, want ["elevator" "parking"]`, p2["amenities"])
	}
	if p2["area-size"] != "85" {
		t.Errorf(`payload["area-size"] = %v, want "85"`, p2["area-size"])
	}

	// Phase 3: cascade selection, address, commit.
	for _, sel := range []struct{ level, slug string }{
		{"country", "turkiye"},
		{"province", "istanbul"},
		{"city", "istanbul-city"},
	} {
		resp = h.PUT(base+"/location", map[string]string{"level": sel.level, "slug": sel.slug}, token)
		h.AssertJSON(t, resp, http.StatusOK, &draft)
	}

	var opts struct {
		Options []struct {
			Name string `json:"name"`
			Slug string `json:"slug"`
		} `json:"options"`
	}
	resp = h.GET(base+"/location/options?level=area", token)
	h.AssertJSON(t, resp, http.StatusOK, &opts)
	if len(opts.Options) != 2 || opts.Options[0].Slug != "kadikoy" {
		t.Fatalf("area options = %+v, want kadikoy and besiktas", opts.Options)
	}

	resp = h.PUT(base+"/location", map[string]string{"level": "area", "slug": "kadikoy"}, token)
	h.AssertJSON(t, resp, http.StatusOK, &draft)

	resp = h.PUT(base+"/address", map[string]string{
		"address":   "Moda Caddesi 12",
		"latitude":  "40.987",
		"longitude": "29.036",
	}, token)
	h.AssertJSON(t, resp, http.StatusOK, &draft)

	resp = h.POST(base+"/phase3", nil, token)
	h.AssertJSON(t, resp, http.StatusOK, &draft)
	if draft.Phase != model.PhaseStep3Committed {
		t.Errorf("phase = %q, want %q", draft.Phase, model.PhaseStep3Committed)
	}

	step3 := h.Backend.Step3Payloads()
	if len(step3) != 1 {
		t.Fatalf("backend received %d location payloads, want 1", len(step3))
	}
	p3 := step3[0]
	if p3["elan_id"] != "48213" {
		t.Errorf(`payload["elan_id"] = %v, want "48213"`, p3["elan_id"])
	}
	if p3["nighborhood"] != "kadikoy" {
		t.Errorf(`payload["nighborhood"] = %v, want "kadikoy"`, p3["nighborhood"])
	}
	if p3["x"] == nil || p3["y"] == nil {
		t.Errorf("coordinates missing from payload: x=%v y=%v", p3["x"], p3["y"])
	}

	// Phase 4: attach two images, promote the second, publish.
	front := bytes.Repeat([]byte{0xFF, 0xD8, 0x01}, 64)
	side := bytes.Repeat([]byte{0xFF, 0xD8, 0x02}, 48)

	var added struct {
		Draft model.Draft      `json:"draft"`
		Asset model.MediaAsset `json:"asset"`
	}
	resp = h.PostMultipart(base+"/assets", token,
		map[string]filePart{"file": {fileName: "front.jpg", contentType: "image/jpeg", data: front}}, nil)
	h.AssertJSON(t, resp, http.StatusCreated, &added)
	first := added.Asset
	if !first.IsPrimary {
		t.Error("first attachment should be primary")
	}

	resp = h.PostMultipart(base+"/assets", token,
		map[string]filePart{"file": {fileName: "side.jpg", contentType: "image/jpeg", data: side}}, nil)
	h.AssertJSON(t, resp, http.StatusCreated, &added)
	second := added.Asset
	if second.IsPrimary {
		t.Error("second attachment should not be primary")
	}

	resp = h.PUT(base+"/assets/"+second.LocalID+"/primary", nil, token)
	h.AssertJSON(t, resp, http.StatusOK, &draft)

	resp = h.PostMultipart(base+"/phase4", token, map[string]filePart{
		first.LocalID:  {fileName: "front.jpg", contentType: "image/jpeg", data: front},
		second.LocalID: {fileName: "side.jpg", contentType: "image/jpeg", data: side},
	}, nil)
	h.AssertJSON(t, resp, http.StatusOK, &draft)
	if draft.Phase != model.PhasePublished {
		t.Fatalf("phase = %q, want %q", draft.Phase, model.PhasePublished)
	}
	if draft.PublishedID != "90011" {
		t.Errorf("published_id = %q, want 90011", draft.PublishedID)
	}
	if draft.ExpiresAt != nil {
		t.Error("published draft should not carry an expiry")
	}

	// The publish call carries the positional primary index and the remote
	// names in attachment order.
	publishes := h.Backend.Step4Requests()
	if len(publishes) != 1 {
		t.Fatalf("backend received %d publish calls, want 1", len(publishes))
	}
	pub := publishes[0]
	if pub.ElanID != "48213" {
		t.Errorf("publish elan id = %q, want 48213", pub.ElanID)
	}
	if pub.PrimaryImageIndex != "1" {
		t.Errorf("primaryImageIndex = %q, want 1", pub.PrimaryImageIndex)
	}
	if len(draft.Assets) != 2 {
		t.Fatalf("published draft has %d assets, want 2", len(draft.Assets))
	}
	wantImages := []string{draft.Assets[0].RemoteName, draft.Assets[1].RemoteName}
	if len(pub.Images) != 2 || pub.Images[0] != wantImages[0] || pub.Images[1] != wantImages[1] {
		t.Errorf("publish images = %v, want %v", pub.Images, wantImages)
	}

	// The signed upload protocol delivered the exact bytes.
	contentByLocalID := map[string][]byte{first.LocalID: front, second.LocalID: side}
	for _, asset := range draft.Assets {
		if asset.UploadPhase != model.UploadCompleted {
			t.Errorf("asset %s upload phase = %d, want completed", asset.LocalID, asset.UploadPhase)
		}
		stored, ok := h.Backend.StoredFile(asset.RemoteName)
		if !ok {
			t.Errorf("no stored bytes for %s", asset.RemoteName)
			continue
		}
		if !bytes.Equal(stored, contentByLocalID[asset.LocalID]) {
			t.Errorf("stored bytes for %s do not match the upload", asset.RemoteName)
		}
	}
	if got := len(h.Backend.Confirms()); got != 2 {
		t.Errorf("backend received %d upload confirmations, want 2", got)
	}
	slots := h.Backend.SlotRequests()
	if len(slots) != 2 {
		t.Fatalf("backend received %d slot requests, want 2", len(slots))
	}
	for _, slot := range slots {
		if slot["category"] != "elan" || slot["kind"] != "image" || slot["extension"] != "jpg" {
			t.Errorf("slot request = %v", slot)
		}
	}

	// The descriptor shows every step completed.
	var desc model.DraftDescriptor
	resp = h.GET(base, token)
	h.AssertJSON(t, resp, http.StatusOK, &desc)
	if desc.Phase != model.PhasePublished {
		t.Errorf("descriptor phase = %q, want published", desc.Phase)
	}
	for _, step := range desc.Steps {
		if step.Status != model.StepStatusCompleted {
			t.Errorf("step %d status = %q, want completed", step.Step, step.Status)
		}
	}
	if len(desc.History) == 0 {
		t.Error("descriptor has no history")
	}
}

func TestAttributesClearedWhenPropertyTypeChanges(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(SellerClaims())

	var draft model.Draft
	h.AssertJSON(t, h.POST("/api/drafts", nil, token), http.StatusCreated, &draft)
	base := "/api/drafts/" + draft.ID

	h.AssertJSON(t, h.PUT(base+"/phase1", Phase1Form(), token), http.StatusOK, &draft)
	h.AssertJSON(t, h.POST(base+"/phase1", nil, token), http.StatusOK, &draft)
	h.AssertJSON(t, h.PUT(base+"/attributes", map[string]any{"rooms": "three"}, token),
		http.StatusOK, &draft)
	if len(draft.Attributes) != 1 {
		t.Fatalf("attributes = %v, want rooms only", draft.Attributes)
	}

	form := Phase1Form()
	form["property_type"] = map[string]string{"value": "Villa", "slug": "villa"}
	h.AssertJSON(t, h.PUT(base+"/phase1", form, token), http.StatusOK, &draft)
	if len(draft.Attributes) != 0 {
		t.Errorf("attributes survived a property type change: %v", draft.Attributes)
	}
}

func TestSelectingShallowLevelClearsDeeperLevels(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(SellerClaims())

	var draft model.Draft
	h.AssertJSON(t, h.POST("/api/drafts", nil, token), http.StatusCreated, &draft)
	base := "/api/drafts/" + draft.ID

	for _, sel := range []struct{ level, slug string }{
		{"country", "turkiye"},
		{"province", "istanbul"},
		{"city", "istanbul-city"},
		{"area", "kadikoy"},
	} {
		h.AssertJSON(t, h.PUT(base+"/location",
			map[string]string{"level": sel.level, "slug": sel.slug}, token), http.StatusOK, &draft)
	}
	if draft.Location.Area != "kadikoy" {
		t.Fatalf("area = %q after full cascade", draft.Location.Area)
	}

	// Changing the province discards city and area.
	h.AssertJSON(t, h.PUT(base+"/location",
		map[string]string{"level": "province", "slug": "ankara"}, token), http.StatusOK, &draft)
	if draft.Location.Province != "ankara" {
		t.Errorf("province = %q, want ankara", draft.Location.Province)
	}
	if draft.Location.City != "" || draft.Location.Area != "" {
		t.Errorf("deeper levels survived: city=%q area=%q", draft.Location.City, draft.Location.Area)
	}

	// Re-selecting the current value leaves deeper levels alone.
	h.AssertJSON(t, h.PUT(base+"/location",
		map[string]string{"level": "province", "slug": "ankara"}, token), http.StatusOK, &draft)
	if draft.Location.Province != "ankara" {
		t.Errorf("province = %q after re-select", draft.Location.Province)
	}
}

func TestAdvanceAndRetreatMoveTheCursorOnly(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(SellerClaims())

	var draft model.Draft
	h.AssertJSON(t, h.POST("/api/drafts", nil, token), http.StatusCreated, &draft)
	base := "/api/drafts/" + draft.ID

	// Advancing past an uncommitted phase is rejected.
	resp := h.POST(base+"/advance", nil, token)
	var envelope struct {
		Error *model.ErrorEnvelope `json:"error"`
	}
	h.AssertJSON(t, resp, http.StatusConflict, &envelope)
	if envelope.Error.Code != model.ErrPhaseNotCommitted {
		t.Errorf("error code = %q, want %q", envelope.Error.Code, model.ErrPhaseNotCommitted)
	}

	h.AssertJSON(t, h.PUT(base+"/phase1", Phase1Form(), token), http.StatusOK, &draft)
	h.AssertJSON(t, h.POST(base+"/phase1", nil, token), http.StatusOK, &draft)
	if draft.CurrentStep != model.Step2 {
		t.Fatalf("current_step = %d after commit, want 2", draft.CurrentStep)
	}

	// Retreating never uncommits.
	h.AssertJSON(t, h.POST(base+"/retreat", nil, token), http.StatusOK, &draft)
	if draft.CurrentStep != model.Step1 {
		t.Errorf("current_step = %d after retreat, want 1", draft.CurrentStep)
	}
	if draft.Phase != model.PhaseStep1Committed {
		t.Errorf("phase = %q after retreat, want step1_committed", draft.Phase)
	}

	h.AssertJSON(t, h.POST(base+"/advance", nil, token), http.StatusOK, &draft)
	if draft.CurrentStep != model.Step2 {
		t.Errorf("current_step = %d after advance, want 2", draft.CurrentStep)
	}
}

func TestListAndDeleteDrafts(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(SellerClaims())

	var first, second model.Draft
	h.AssertJSON(t, h.POST("/api/drafts", nil, token), http.StatusCreated, &first)
	h.AssertJSON(t, h.POST("/api/drafts", nil, token), http.StatusCreated, &second)

	var listing struct {
		Drafts []model.Draft `json:"drafts"`
	}
	h.AssertJSON(t, h.GET("/api/drafts", token), http.StatusOK, &listing)
	if len(listing.Drafts) != 2 {
		t.Fatalf("list returned %d drafts, want 2", len(listing.Drafts))
	}

	resp := h.DELETE("/api/drafts/"+first.ID, token)
	h.AssertStatus(t, resp, http.StatusNoContent)

	h.AssertJSON(t, h.GET("/api/drafts", token), http.StatusOK, &listing)
	if len(listing.Drafts) != 1 || listing.Drafts[0].ID != second.ID {
		t.Errorf("list after delete = %+v, want only %s", listing.Drafts, second.ID)
	}

	resp = h.GET("/api/drafts/"+first.ID, token)
	h.AssertStatus(t, resp, http.StatusNotFound)
}
