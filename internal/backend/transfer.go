package backend

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/config"
	"github.com/this-4mirho3ein/turkiye-temp-sub001/model"
)

// Transferrer writes raw binaries to pre-authorized upload destinations.
// The destination URL already embeds the authorization, so no bearer token
// is attached.
type Transferrer struct {
	rest   *resty.Client
	logger *zap.Logger
}

// NewTransferrer creates a transferrer with the configured upload timeout.
func NewTransferrer(cfg config.BackendConfig, logger *zap.Logger) *Transferrer {
	timeout := cfg.UploadTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	rest := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0)
	return &Transferrer{rest: rest, logger: logger}
}

// Put writes the binary payload to the slot URL with the asset's content
// type. Failures are transfer failures, never server rejections, so the
// asset can be reset and retried from the slot request.
func (t *Transferrer) Put(ctx context.Context, slotURL, contentType string, payload []byte) error {
	resp, err := t.rest.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentType).
		SetBody(payload).
		Put(slotURL)
	if err != nil {
		if ctx.Err() != nil {
			return model.NewBackendTimeoutError()
		}
		return model.NewNetworkError(err.Error())
	}
	if resp.IsError() {
		t.logger.Warn("backend: binary transfer rejected",
			zap.Int("status", resp.StatusCode()),
		)
		return model.NewNetworkError("transfer rejected with status " + resp.Status())
	}
	return nil
}
