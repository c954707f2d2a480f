package transport

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/workflow"
	"github.com/this-4mirho3ein/turkiye-temp-sub001/model"
)

// MediaHandler exposes draft asset management and the final publish step.
type MediaHandler struct {
	engine  *workflow.Engine
	maxSize int64
}

// NewMediaHandler creates a media handler. maxSize bounds the multipart
// memory buffer and individual asset payloads.
func NewMediaHandler(engine *workflow.Engine, maxSize int64) *MediaHandler {
	return &MediaHandler{engine: engine, maxSize: maxSize}
}

// AddAsset registers an uploaded file's metadata on the draft. The file
// part is read to obtain its true size, then discarded; bytes are sent
// again during the publish step.
func (h *MediaHandler) AddAsset(w http.ResponseWriter, r *http.Request) {
	rctx, err := requestContext(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	draftID := chi.URLParam(r, "draftID")
	if err := r.ParseMultipartForm(h.maxSize); err != nil {
		WriteError(w, model.NewBadRequestError("Request body is not valid multipart form data"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, model.NewBadRequestError("Multipart form must include a file part named 'file'"))
		return
	}
	defer file.Close()

	size, err := io.Copy(io.Discard, file)
	if err != nil {
		WriteError(w, model.NewBadRequestError("Could not read the uploaded file"))
		return
	}

	contentType := header.Header.Get("Content-Type")
	draft, asset, err := h.engine.AddAsset(r.Context(), rctx, draftID, header.Filename, contentType, size)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, struct {
		Draft model.Draft      `json:"draft"`
		Asset model.MediaAsset `json:"asset"`
	}{Draft: draft, Asset: asset})
}

// RemoveAsset deletes an asset from the draft.
func (h *MediaHandler) RemoveAsset(w http.ResponseWriter, r *http.Request) {
	rctx, err := requestContext(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	draftID := chi.URLParam(r, "draftID")
	assetID := chi.URLParam(r, "assetID")
	draft, err := h.engine.RemoveAsset(r.Context(), rctx, draftID, assetID)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, draft)
}

// SetPrimary designates an asset as the listing's primary image.
func (h *MediaHandler) SetPrimary(w http.ResponseWriter, r *http.Request) {
	rctx, err := requestContext(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	draftID := chi.URLParam(r, "draftID")
	assetID := chi.URLParam(r, "assetID")
	draft, err := h.engine.SetPrimaryAsset(r.Context(), rctx, draftID, assetID)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, draft)
}

// UploadSession reports the per-asset upload progress tracked by the
// media coordinator.
func (h *MediaHandler) UploadSession(w http.ResponseWriter, r *http.Request) {
	if _, err := requestContext(r); err != nil {
		WriteError(w, err)
		return
	}

	assetID := chi.URLParam(r, "assetID")
	session, ok := h.engine.UploadSession(assetID)
	if !ok {
		WriteNotFound(w, "No upload session for asset "+assetID)
		return
	}
	WriteJSON(w, http.StatusOK, session)
}

// SubmitPhase4 uploads every pending asset and finalizes the listing.
// The multipart form carries one file part per asset, named by the
// asset's local ID.
func (h *MediaHandler) SubmitPhase4(w http.ResponseWriter, r *http.Request) {
	rctx, err := requestContext(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	draftID := chi.URLParam(r, "draftID")
	if err := r.ParseMultipartForm(h.maxSize); err != nil {
		WriteError(w, model.NewBadRequestError("Request body is not valid multipart form data"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	payloads := make(map[string][]byte, len(r.MultipartForm.File))
	for name, headers := range r.MultipartForm.File {
		if len(headers) == 0 {
			continue
		}
		file, err := headers[0].Open()
		if err != nil {
			WriteError(w, model.NewBadRequestError("Could not read the uploaded file for asset "+name))
			return
		}
		data, err := io.ReadAll(io.LimitReader(file, h.maxSize+1))
		file.Close()
		if err != nil {
			WriteError(w, model.NewBadRequestError("Could not read the uploaded file for asset "+name))
			return
		}
		if int64(len(data)) > h.maxSize {
			WriteError(w, model.NewBadRequestError("Uploaded file for asset "+name+" exceeds the size limit"))
			return
		}
		payloads[name] = data
	}

	draft, err := h.engine.SubmitStep4(r.Context(), rctx, draftID, payloads)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, draft)
}
