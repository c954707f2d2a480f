package model

// Per-asset upload phases. The three networked steps are strictly
// sequential; any failure returns the asset to UploadIdle.
const (
	UploadIdle          = 0
	UploadSlotRequested = 1
	UploadTransferred   = 2
	UploadConfirmed     = 3
	UploadCompleted     = 4
)

// MediaAsset is one media item attached to a draft. FileName and Size
// identify the local file for deduplication; RemoteName is set only after
// upload confirmation, at which point the binary handle is released.
type MediaAsset struct {
	LocalID     string `json:"local_id"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	PreviewURI  string `json:"preview_uri,omitempty"`
	RemoteName  string `json:"remote_name,omitempty"`
	IsPrimary   bool   `json:"is_primary"`
	UploadPhase int    `json:"upload_phase"`
	LastError   string `json:"last_error,omitempty"`
}

// Uploaded returns true once the asset has completed all three upload steps.
func (a MediaAsset) Uploaded() bool {
	return a.UploadPhase == UploadCompleted
}

// UploadSession is the transient per-asset progress record kept by the
// upload coordinator while an upload is running. It is destroyed on success
// and reset on failure.
type UploadSession struct {
	LocalID     string `json:"local_id"`
	Step        int    `json:"step"`
	IsUploading bool   `json:"is_uploading"`
	LastMessage string `json:"last_message,omitempty"`
}
