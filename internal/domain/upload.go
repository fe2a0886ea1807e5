package domain

import "time"

// UploadStatus represents the state of a queued upload
type UploadStatus string

const (
	UploadStatusPending    UploadStatus = "pending"
	UploadStatusProcessing UploadStatus = "processing"
	UploadStatusSuccess    UploadStatus = "success"
	UploadStatusError      UploadStatus = "error"
)

// UploadItem is the in-memory view of one file moving through the upload queue.
// Items are never resurrected: a retry is a new item.
type UploadItem struct {
	ID         string       `json:"id"`
	FileName   string       `json:"file_name"`
	Status     UploadStatus `json:"status"`
	Progress   string       `json:"progress,omitempty"`
	Error      string       `json:"error,omitempty"`
	DocumentID string       `json:"document_id,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

// IsTerminal reports whether the item has finished processing.
func (s UploadStatus) IsTerminal() bool {
	return s == UploadStatusSuccess || s == UploadStatusError
}

// CanTransition reports whether moving from s to next is allowed.
func (s UploadStatus) CanTransition(next UploadStatus) bool {
	switch s {
	case UploadStatusPending:
		return next == UploadStatusProcessing || next == UploadStatusError
	case UploadStatusProcessing:
		return next == UploadStatusSuccess || next == UploadStatusError
	}
	return false
}
