package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/config"
	"github.com/this-4mirho3ein/turkiye-temp-sub001/model"
)

func TestTransferrer_PutWritesPayload(t *testing.T) {
	var received []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		if got := r.Header.Get("Content-Type"); got != "image/jpeg" {
			t.Errorf("unexpected content type %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("slot transfer must not carry authorization, got %q", got)
		}
		var err error
		received, err = io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := NewTransferrer(config.BackendConfig{UploadTimeout: 5 * time.Second}, zap.NewNop())
	payload := []byte{0xFF, 0xD8, 0xFF, 0xE0}
	if err := tr.Put(context.Background(), srv.URL, "image/jpeg", payload); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if string(received) != string(payload) {
		t.Errorf("payload mismatch: got %v", received)
	}
}

func TestTransferrer_PutRejectionIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	tr := NewTransferrer(config.BackendConfig{UploadTimeout: 5 * time.Second}, zap.NewNop())
	err := tr.Put(context.Background(), srv.URL, "image/jpeg", []byte("x"))
	var ee *model.ErrorEnvelope
	if !errors.As(err, &ee) || ee.Code != model.ErrNetworkError {
		t.Fatalf("expected %s, got %v", model.ErrNetworkError, err)
	}
}
