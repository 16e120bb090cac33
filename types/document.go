package types

import "time"

// UploadStatus is the lifecycle state of a queued document.
type UploadStatus string

const (
	UploadStatusQueued    UploadStatus = "queued"
	UploadStatusUploading UploadStatus = "uploading"
	UploadStatusCompleted UploadStatus = "completed"
	UploadStatusError     UploadStatus = "error"
	UploadStatusCancelled UploadStatus = "cancelled"
)

// IsTerminal reports whether no further automatic transition occurs from s
// without explicit user action.
func (s UploadStatus) IsTerminal() bool {
	switch s {
	case UploadStatusCompleted, UploadStatusError, UploadStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the status transition s -> next is allowed.
// The lifecycle is queued -> uploading -> {completed|error|cancelled};
// error -> queued (retry) is the only backward edge.
func (s UploadStatus) CanTransitionTo(next UploadStatus) bool {
	switch s {
	case UploadStatusQueued:
		return next == UploadStatusUploading
	case UploadStatusUploading:
		return next == UploadStatusCompleted ||
			next == UploadStatusError ||
			next == UploadStatusCancelled
	case UploadStatusError:
		return next == UploadStatusQueued
	default:
		return false
	}
}

// QueuedItem is a document accepted into the upload queue. Items returned
// from the queue manager are copies; mutations go through the manager only.
type QueuedItem struct {
	ID          string       `json:"id"`
	FileName    string       `json:"fileName"`
	Size        int64        `json:"size"`
	ContentType string       `json:"contentType"`
	Status      UploadStatus `json:"status"`
	// Progress is a percentage in [0,100]. It is monotonically
	// non-decreasing while Status is uploading and frozen in terminal states.
	Progress int    `json:"progress"`
	Error    string `json:"error,omitempty"`
	// Thumbnail is a base64-encoded JPEG preview. Best effort: absent when
	// preview generation failed or the payload is not a raster image.
	Thumbnail string    `json:"thumbnail,omitempty"`
	PageCount int       `json:"pageCount,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
