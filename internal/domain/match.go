package domain

import "time"

// MatchSourceKnowledge is the logical partition holding knowledge base chunks.
const MatchSourceKnowledge = "knowledge"

// AiDocumentMatch is a single ranked similarity hit, produced fresh per query.
type AiDocumentMatch struct {
	Source     string         `json:"source"`
	RecordID   string         `json:"record_id"`
	Title      string         `json:"title"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Similarity float64        `json:"similarity"`
}

// RecordEmbedding is an embedded CRM record (product, organization, ...) searchable next to
// knowledge chunks. Source names the partition, usually the originating table.
type RecordEmbedding struct {
	ID        string
	Source    string
	RecordID  string
	Title     string
	Content   string
	Embedding []float32
	UpdatedAt time.Time
}
