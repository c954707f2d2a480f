package media

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/backend"
	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/config"
	"github.com/this-4mirho3ein/turkiye-temp-sub001/model"
)

type stubBackend struct {
	mu           sync.Mutex
	slotCalls    int
	putCalls     int
	confirmCalls int
	slotErr      error
	putErr       error
	confirmErr   error
	lastConfirm  map[string]string
}

func (s *stubBackend) GetUploadSlot(ctx context.Context, rctx *model.RequestContext, category, kind, extension string) (backend.UploadSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slotCalls++
	if s.slotErr != nil {
		return backend.UploadSlot{}, s.slotErr
	}
	return backend.UploadSlot{
		URL:      "https://storage.example/slot",
		FileName: "remote-" + extension,
	}, nil
}

func (s *stubBackend) ConfirmUpload(ctx context.Context, rctx *model.RequestContext, fileName, mimeType, category, originalName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmCalls++
	s.lastConfirm = map[string]string{
		"fileName": fileName, "mimeType": mimeType,
		"category": category, "originalName": originalName,
	}
	return s.confirmErr
}

func (s *stubBackend) Put(ctx context.Context, slotURL, contentType string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putCalls++
	return s.putErr
}

func newTestCoordinator(b *stubBackend) *Coordinator {
	return NewCoordinator(b, b, config.UploadConfig{Concurrency: 2, MaxAssetSize: 1 << 20}, zap.NewNop())
}

func rctx() *model.RequestContext {
	return &model.RequestContext{SubjectID: "user-1", BearerToken: "token"}
}

func TestAdd_FirstAttachmentBecomesPrimary(t *testing.T) {
	c := newTestCoordinator(&stubBackend{})

	assets, first, err := c.Add(nil, "kitchen.jpg", "image/jpeg", 1000)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !first.IsPrimary {
		t.Error("first attachment must be primary")
	}

	assets, second, err := c.Add(assets, "garden.png", "image/png", 2000)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if second.IsPrimary {
		t.Error("later attachments must not be primary")
	}
	if len(assets) != 2 {
		t.Fatalf("expected 2 assets, got %d", len(assets))
	}
}

func TestAdd_Rejections(t *testing.T) {
	c := newTestCoordinator(&stubBackend{})
	assets, _, _ := c.Add(nil, "kitchen.jpg", "image/jpeg", 1000)

	tests := []struct {
		name        string
		fileName    string
		contentType string
		size        int64
		wantCode    string
	}{
		{"duplicate name and size", "kitchen.jpg", "image/jpeg", 1000, model.ErrConflict},
		{"oversized", "big.jpg", "image/jpeg", 2 << 20, model.ErrValidationError},
		{"empty", "zero.jpg", "image/jpeg", 0, model.ErrValidationError},
		{"unsupported type", "doc.pdf", "application/pdf", 500, model.ErrValidationError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := c.Add(assets, tc.fileName, tc.contentType, tc.size)
			var ee *model.ErrorEnvelope
			if !errors.As(err, &ee) || ee.Code != tc.wantCode {
				t.Fatalf("expected %s, got %v", tc.wantCode, err)
			}
		})
	}

	// Same name with a different size is a different file.
	if _, _, err := c.Add(assets, "kitchen.jpg", "image/jpeg", 999); err != nil {
		t.Errorf("same name different size must be accepted: %v", err)
	}
}

func TestRemove_PromotesNewPrimary(t *testing.T) {
	c := newTestCoordinator(&stubBackend{})
	assets, first, _ := c.Add(nil, "a.jpg", "image/jpeg", 1)
	assets, second, _ := c.Add(assets, "b.jpg", "image/jpeg", 2)
	assets, _, _ = c.Add(assets, "c.jpg", "image/jpeg", 3)

	assets, err := c.Remove(assets, first.LocalID)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if len(assets) != 2 {
		t.Fatalf("expected 2 assets, got %d", len(assets))
	}
	if !assets[0].IsPrimary || assets[0].LocalID != second.LocalID {
		t.Errorf("first remaining asset must be promoted: %+v", assets)
	}

	if _, err := c.Remove(assets, "missing"); err == nil {
		t.Error("expected not found for unknown id")
	}
}

func TestSetPrimary_ExactlyOne(t *testing.T) {
	c := newTestCoordinator(&stubBackend{})
	assets, _, _ := c.Add(nil, "a.jpg", "image/jpeg", 1)
	assets, second, _ := c.Add(assets, "b.jpg", "image/jpeg", 2)

	assets, err := c.SetPrimary(assets, second.LocalID)
	if err != nil {
		t.Fatalf("SetPrimary: %v", err)
	}

	primaries := 0
	for _, a := range assets {
		if a.IsPrimary {
			primaries++
			if a.LocalID != second.LocalID {
				t.Errorf("wrong primary %s", a.LocalID)
			}
		}
	}
	if primaries != 1 {
		t.Errorf("expected exactly one primary, got %d", primaries)
	}

	if PrimaryIndex(assets) != 1 {
		t.Errorf("expected primary index 1, got %d", PrimaryIndex(assets))
	}
}

func TestUpload_RunsThreeStepsInOrder(t *testing.T) {
	b := &stubBackend{}
	c := newTestCoordinator(b)
	assets, asset, _ := c.Add(nil, "kitchen.jpg", "image/jpeg", 4)
	_ = assets

	updated, err := c.Upload(context.Background(), rctx(), asset, []byte("abcd"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !updated.Uploaded() {
		t.Errorf("expected completed phase, got %d", updated.UploadPhase)
	}
	if updated.RemoteName != "remote-jpg" {
		t.Errorf("unexpected remote name %q", updated.RemoteName)
	}
	if b.slotCalls != 1 || b.putCalls != 1 || b.confirmCalls != 1 {
		t.Errorf("expected one call per step, got %d/%d/%d", b.slotCalls, b.putCalls, b.confirmCalls)
	}
	if b.lastConfirm["originalName"] != "kitchen.jpg" || b.lastConfirm["fileName"] != "remote-jpg" {
		t.Errorf("unexpected confirm payload %+v", b.lastConfirm)
	}
	if _, ok := c.Session(asset.LocalID); ok {
		t.Error("session must be destroyed after success")
	}
}

func TestUpload_FailureResetsToIdle(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*stubBackend)
		puts  int
	}{
		{"slot request fails", func(b *stubBackend) { b.slotErr = model.NewNetworkError("refused") }, 0},
		{"transfer fails", func(b *stubBackend) { b.putErr = model.NewNetworkError("reset") }, 1},
		{"confirm fails", func(b *stubBackend) { b.confirmErr = model.NewServerRejectionError("bad file") }, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := &stubBackend{}
			tc.setup(b)
			c := newTestCoordinator(b)
			_, asset, _ := c.Add(nil, "kitchen.jpg", "image/jpeg", 4)

			updated, err := c.Upload(context.Background(), rctx(), asset, []byte("abcd"))
			var ee *model.ErrorEnvelope
			if !errors.As(err, &ee) || ee.Code != model.ErrUploadStepError {
				t.Fatalf("expected %s, got %v", model.ErrUploadStepError, err)
			}
			if updated.UploadPhase != model.UploadIdle {
				t.Errorf("expected reset to idle, got %d", updated.UploadPhase)
			}
			if updated.RemoteName != "" {
				t.Errorf("remote name must be cleared, got %q", updated.RemoteName)
			}
			if updated.LastError == "" {
				t.Error("expected failure message recorded")
			}
			if b.putCalls != tc.puts {
				t.Errorf("expected %d transfer calls, got %d", tc.puts, b.putCalls)
			}
		})
	}
}

func TestUpload_CompletedAssetIsNoOp(t *testing.T) {
	b := &stubBackend{}
	c := newTestCoordinator(b)
	asset := model.MediaAsset{LocalID: "x", UploadPhase: model.UploadCompleted, RemoteName: "remote-1"}

	got, err := c.Upload(context.Background(), rctx(), asset, nil)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if got.RemoteName != "remote-1" || b.slotCalls != 0 {
		t.Error("completed asset must not be re-uploaded")
	}
}

func TestUploadAll_UploadsPendingOnly(t *testing.T) {
	b := &stubBackend{}
	c := newTestCoordinator(b)

	assets, a1, _ := c.Add(nil, "a.jpg", "image/jpeg", 1)
	assets, a2, _ := c.Add(assets, "b.jpg", "image/jpeg", 1)
	assets[0].UploadPhase = model.UploadCompleted
	assets[0].RemoteName = "remote-a"
	_ = a1

	payloads := map[string][]byte{a2.LocalID: []byte("x")}
	out, err := c.UploadAll(context.Background(), rctx(), assets, payloads)
	if err != nil {
		t.Fatalf("UploadAll: %v", err)
	}
	if b.slotCalls != 1 {
		t.Errorf("expected 1 slot call, got %d", b.slotCalls)
	}
	for _, a := range out {
		if !a.Uploaded() {
			t.Errorf("expected all uploaded, got %+v", a)
		}
	}

	names := RemoteNames(out)
	if len(names) != 2 || names[0] != "remote-a" {
		t.Errorf("unexpected remote names %v", names)
	}
}

func TestUploadAll_MissingPayloadIsFailure(t *testing.T) {
	b := &stubBackend{}
	c := newTestCoordinator(b)
	assets, _, _ := c.Add(nil, "a.jpg", "image/jpeg", 1)

	_, err := c.UploadAll(context.Background(), rctx(), assets, nil)
	var ee *model.ErrorEnvelope
	if !errors.As(err, &ee) || ee.Code != model.ErrUploadStepError {
		t.Fatalf("expected %s, got %v", model.ErrUploadStepError, err)
	}
}
