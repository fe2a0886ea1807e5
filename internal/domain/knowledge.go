package domain

import (
	"fmt"
	"time"
)

// SourceType marks where a knowledge document came from
type SourceType string

const (
	SourceTypeManual SourceType = "manual"
	SourceTypeFile   SourceType = "file"
)

// KnowledgeDocument represents one uploaded file or manual entry in the knowledge base
type KnowledgeDocument struct {
	ID          string
	Title       string
	Description string
	SourceType  SourceType
	FileName    string
	MimeType    string
	StoragePath *string // nil when the binary was not retained
	Metadata    map[string]any
	CreatedAt   time.Time
	CreatedBy   string
	ChunkCount  int // computed on read, never stored
}

// NewKnowledgeDocument creates a new KnowledgeDocument instance
func NewKnowledgeDocument(
	id, title, description string,
	sourceType SourceType,
	createdAt time.Time,
) *KnowledgeDocument {
	return &KnowledgeDocument{
		ID:          id,
		Title:       title,
		Description: description,
		SourceType:  sourceType,
		Metadata:    map[string]any{},
		CreatedAt:   createdAt,
	}
}

// HasStoredFile reports whether the raw binary was persisted to the blob store
func (d *KnowledgeDocument) HasStoredFile() bool {
	return d.StoragePath != nil && *d.StoragePath != ""
}

// ValidateKnowledgeDocument validates a KnowledgeDocument instance
func ValidateKnowledgeDocument(d *KnowledgeDocument) error {
	if d == nil {
		return fmt.Errorf("knowledge document cannot be nil")
	}

	if d.ID == "" {
		return fmt.Errorf("knowledge document ID is required")
	}

	if d.Title == "" {
		return fmt.Errorf("knowledge document Title is required")
	}

	if !isValidSourceType(d.SourceType) {
		return fmt.Errorf("knowledge document SourceType is invalid: %s", d.SourceType)
	}

	if d.SourceType == SourceTypeManual {
		if d.FileName != "" || d.MimeType != "" || d.StoragePath != nil {
			return fmt.Errorf("manual knowledge document cannot carry file fields")
		}
	}

	if d.SourceType == SourceTypeFile && d.FileName == "" {
		return fmt.Errorf("file knowledge document FileName is required")
	}

	return nil
}

func isValidSourceType(s SourceType) bool {
	switch s {
	case SourceTypeManual, SourceTypeFile:
		return true
	}
	return false
}

// StoredObject describes a raw upload after it was handed to the blob store.
type StoredObject struct {
	StoragePath *string
	MimeType    string
}
