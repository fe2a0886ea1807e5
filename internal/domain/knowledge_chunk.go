package domain

import (
	"fmt"
	"time"
)

// ChunkMetadata is stored alongside each chunk row.
type ChunkMetadata struct {
	Source      SourceType `json:"source"`
	Length      int        `json:"length"`
	FileName    string     `json:"file_name,omitempty"`
	StoragePath *string    `json:"storage_path"`
}

// KnowledgeChunk represents a chunked segment of a knowledge document for search.
type KnowledgeChunk struct {
	ID         string
	DocumentID string
	ChunkIndex int
	Content    string
	Embedding  []float32
	Metadata   ChunkMetadata
	CreatedAt  time.Time
}

// ValidateKnowledgeChunk checks a chunk against the expected embedding dimension.
func ValidateKnowledgeChunk(c *KnowledgeChunk, dimensions int) error {
	if c == nil {
		return fmt.Errorf("knowledge chunk cannot be nil")
	}
	if c.DocumentID == "" {
		return fmt.Errorf("knowledge chunk DocumentID is required")
	}
	if c.ChunkIndex < 0 {
		return fmt.Errorf("knowledge chunk ChunkIndex cannot be negative")
	}
	if c.Content == "" {
		return fmt.Errorf("knowledge chunk Content is required")
	}
	if len(c.Embedding) == 0 {
		return ErrEmptyEmbedding
	}
	if dimensions > 0 && len(c.Embedding) != dimensions {
		return NewDimensionMismatchError(dimensions, len(c.Embedding))
	}
	return nil
}
