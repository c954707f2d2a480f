// Package media implements the listing media coordinator: attachment
// bookkeeping with a single-primary invariant, and the three-step signed
// upload protocol against the backend.
package media

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/backend"
	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/config"
	"github.com/this-4mirho3ein/turkiye-temp-sub001/model"
)

// uploadCategory and uploadKind classify listing media on the backend side.
const (
	uploadCategory = "elan"
	uploadKind     = "image"
)

var allowedContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// SlotRequester performs the authenticated slot and confirmation calls.
type SlotRequester interface {
	GetUploadSlot(ctx context.Context, rctx *model.RequestContext, category, kind, extension string) (backend.UploadSlot, error)
	ConfirmUpload(ctx context.Context, rctx *model.RequestContext, fileName, mimeType, category, originalName string) error
}

// BinaryWriter transfers raw bytes to a pre-authorized destination.
type BinaryWriter interface {
	Put(ctx context.Context, slotURL, contentType string, payload []byte) error
}

// UploadRecorder receives upload outcome counters.
type UploadRecorder interface {
	RecordUpload(status string)
}

// Coordinator manages a draft's media attachments. Attachment transforms
// are pure functions over the asset list; upload progress is tracked in
// transient per-asset sessions keyed by local id.
type Coordinator struct {
	slots       SlotRequester
	writer      BinaryWriter
	concurrency int
	maxSize     int64
	logger      *zap.Logger
	metrics     UploadRecorder

	mu       sync.Mutex
	sessions map[string]model.UploadSession
}

// NewCoordinator creates a media coordinator.
func NewCoordinator(slots SlotRequester, writer BinaryWriter, cfg config.UploadConfig, logger *zap.Logger) *Coordinator {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 3
	}
	maxSize := cfg.MaxAssetSize
	if maxSize <= 0 {
		maxSize = 10 << 20
	}
	return &Coordinator{
		slots:       slots,
		writer:      writer,
		concurrency: concurrency,
		maxSize:     maxSize,
		logger:      logger,
		sessions:    make(map[string]model.UploadSession),
	}
}

// SetMetricsRecorder attaches an optional metrics sink. Must be called
// before uploads start.
func (c *Coordinator) SetMetricsRecorder(m UploadRecorder) {
	c.metrics = m
}

// Add appends a new asset to the list. Files already attached with the same
// name and size are rejected, as are oversized files and non-image content
// types. The first attachment becomes primary automatically.
func (c *Coordinator) Add(assets []model.MediaAsset, fileName, contentType string, size int64) ([]model.MediaAsset, model.MediaAsset, error) {
	if size <= 0 {
		return assets, model.MediaAsset{}, model.NewValidationError([]model.FieldError{{
			Field: "file", Code: model.ErrValidationError, Message: "file is empty",
		}})
	}
	if size > c.maxSize {
		return assets, model.MediaAsset{}, model.NewValidationError([]model.FieldError{{
			Field: "file", Code: model.ErrValidationError,
			Message: fmt.Sprintf("file exceeds the %d byte limit", c.maxSize),
		}})
	}
	if !allowedContentTypes[contentType] {
		return assets, model.MediaAsset{}, model.NewValidationError([]model.FieldError{{
			Field: "file", Code: model.ErrValidationError,
			Message: fmt.Sprintf("content type %q is not supported", contentType),
		}})
	}
	for _, a := range assets {
		if a.FileName == fileName && a.Size == size {
			return assets, model.MediaAsset{}, model.NewConflictError("file is already attached")
		}
	}

	asset := model.MediaAsset{
		LocalID:     uuid.NewString(),
		FileName:    fileName,
		ContentType: contentType,
		Size:        size,
		IsPrimary:   len(assets) == 0,
		UploadPhase: model.UploadIdle,
	}
	return append(assets, asset), asset, nil
}

// Remove drops an asset. When the primary is removed the first remaining
// asset is promoted so the single-primary invariant holds.
func (c *Coordinator) Remove(assets []model.MediaAsset, localID string) ([]model.MediaAsset, error) {
	idx := indexOf(assets, localID)
	if idx < 0 {
		return assets, model.NewNotFoundError("attachment not found")
	}
	wasPrimary := assets[idx].IsPrimary

	out := make([]model.MediaAsset, 0, len(assets)-1)
	out = append(out, assets[:idx]...)
	out = append(out, assets[idx+1:]...)
	if wasPrimary && len(out) > 0 {
		out[0].IsPrimary = true
	}

	c.dropSession(localID)
	return out, nil
}

// SetPrimary marks one asset primary and demotes the rest in the same pass.
func (c *Coordinator) SetPrimary(assets []model.MediaAsset, localID string) ([]model.MediaAsset, error) {
	if indexOf(assets, localID) < 0 {
		return assets, model.NewNotFoundError("attachment not found")
	}
	out := make([]model.MediaAsset, len(assets))
	copy(out, assets)
	for i := range out {
		out[i].IsPrimary = out[i].LocalID == localID
	}
	return out, nil
}

// PrimaryIndex returns the position of the primary asset. It is recomputed
// from the current order at submission time rather than stored, so removals
// and reorderings cannot leave a stale index.
func PrimaryIndex(assets []model.MediaAsset) int {
	for i, a := range assets {
		if a.IsPrimary {
			return i
		}
	}
	return 0
}

// RemoteNames returns the confirmed remote filenames in attachment order.
func RemoteNames(assets []model.MediaAsset) []string {
	names := make([]string, 0, len(assets))
	for _, a := range assets {
		if a.Uploaded() {
			names = append(names, a.RemoteName)
		}
	}
	return names
}

// Session reports the transient upload progress for an asset.
func (c *Coordinator) Session(localID string) (model.UploadSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[localID]
	return s, ok
}

// Upload runs the three-step protocol for one asset: request a slot,
// transfer the bytes, confirm. The steps are strictly sequential. On any
// failure the asset is reset to idle with the failure message recorded, so
// a retry starts over from the slot request.
func (c *Coordinator) Upload(ctx context.Context, rctx *model.RequestContext, asset model.MediaAsset, payload []byte) (model.MediaAsset, error) {
	if asset.Uploaded() {
		return asset, nil
	}
	if int64(len(payload)) != asset.Size {
		return c.failUpload(asset, "file content does not match the attachment")
	}

	c.startSession(asset.LocalID)

	c.trackStep(asset.LocalID, 1)
	slot, err := c.slots.GetUploadSlot(ctx, rctx, uploadCategory, uploadKind, extensionOf(asset.FileName))
	if err != nil {
		return c.failUpload(asset, stepMessage(err))
	}
	asset.UploadPhase = model.UploadSlotRequested

	c.trackStep(asset.LocalID, 2)
	if err := c.writer.Put(ctx, slot.URL, asset.ContentType, payload); err != nil {
		return c.failUpload(asset, stepMessage(err))
	}
	asset.UploadPhase = model.UploadTransferred

	c.trackStep(asset.LocalID, 3)
	if err := c.slots.ConfirmUpload(ctx, rctx, slot.FileName, asset.ContentType, uploadCategory, asset.FileName); err != nil {
		return c.failUpload(asset, stepMessage(err))
	}

	asset.RemoteName = slot.FileName
	asset.UploadPhase = model.UploadCompleted
	asset.LastError = ""
	c.dropSession(asset.LocalID)
	if c.metrics != nil {
		c.metrics.RecordUpload("ok")
	}
	c.logger.Info("media: upload completed",
		zap.String("local_id", asset.LocalID),
		zap.String("remote_name", asset.RemoteName),
	)
	return asset, nil
}

// UploadAll uploads every pending asset with bounded concurrency and
// returns the updated list. The first failure is reported after all
// in-flight uploads finish; completed assets keep their progress.
func (c *Coordinator) UploadAll(ctx context.Context, rctx *model.RequestContext, assets []model.MediaAsset, payloads map[string][]byte) ([]model.MediaAsset, error) {
	out := make([]model.MediaAsset, len(assets))
	copy(out, assets)

	sem := make(chan struct{}, c.concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i := range out {
		if out[i].Uploaded() {
			continue
		}
		payload, ok := payloads[out[i].LocalID]
		if !ok {
			mu.Lock()
			if firstErr == nil {
				firstErr = model.NewUploadStepError(out[i].LocalID, "file content is missing")
			}
			mu.Unlock()
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			updated, err := c.Upload(ctx, rctx, out[i], payload)
			mu.Lock()
			out[i] = updated
			if err != nil && firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	return out, firstErr
}

func (c *Coordinator) failUpload(asset model.MediaAsset, msg string) (model.MediaAsset, error) {
	asset.UploadPhase = model.UploadIdle
	asset.RemoteName = ""
	asset.LastError = msg
	c.dropSession(asset.LocalID)
	if c.metrics != nil {
		c.metrics.RecordUpload("failed")
	}
	return asset, model.NewUploadStepError(asset.LocalID, msg)
}

func (c *Coordinator) startSession(localID string) {
	c.mu.Lock()
	c.sessions[localID] = model.UploadSession{LocalID: localID, IsUploading: true}
	c.mu.Unlock()
}

func (c *Coordinator) trackStep(localID string, step int) {
	c.mu.Lock()
	s := c.sessions[localID]
	s.LocalID = localID
	s.Step = step
	s.IsUploading = true
	c.sessions[localID] = s
	c.mu.Unlock()
}

func (c *Coordinator) dropSession(localID string) {
	c.mu.Lock()
	delete(c.sessions, localID)
	c.mu.Unlock()
}

func indexOf(assets []model.MediaAsset, localID string) int {
	for i, a := range assets {
		if a.LocalID == localID {
			return i
		}
	}
	return -1
}

func extensionOf(fileName string) string {
	return strings.TrimPrefix(filepath.Ext(fileName), ".")
}

func stepMessage(err error) string {
	if ee, ok := err.(*model.ErrorEnvelope); ok && ee.Message != "" {
		return ee.Message
	}
	return err.Error()
}
