package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceTypeConstants(t *testing.T) {
	assert.Equal(t, "manual", string(SourceTypeManual))
	assert.Equal(t, "file", string(SourceTypeFile))
}

func TestNewKnowledgeDocument(t *testing.T) {
	now := time.Now()
	doc := NewKnowledgeDocument("d1", "Pricing", "Price list", SourceTypeManual, now)

	assert.Equal(t, "d1", doc.ID)
	assert.Equal(t, "Pricing", doc.Title)
	assert.Equal(t, "Price list", doc.Description)
	assert.Equal(t, SourceTypeManual, doc.SourceType)
	assert.NotNil(t, doc.Metadata)
	assert.Equal(t, now, doc.CreatedAt)
	assert.False(t, doc.HasStoredFile())
}

func TestKnowledgeDocument_HasStoredFile(t *testing.T) {
	empty := ""
	path := "knowledge/abc/file.pdf"

	assert.False(t, (&KnowledgeDocument{StoragePath: &empty}).HasStoredFile())
	assert.True(t, (&KnowledgeDocument{StoragePath: &path}).HasStoredFile())
}

func TestValidateKnowledgeDocument(t *testing.T) {
	path := "knowledge/abc/file.pdf"

	tests := []struct {
		name    string
		doc     *KnowledgeDocument
		wantErr string
	}{
		{name: "nil", doc: nil, wantErr: "cannot be nil"},
		{name: "missing id", doc: &KnowledgeDocument{Title: "t", SourceType: SourceTypeManual}, wantErr: "ID is required"},
		{name: "missing title", doc: &KnowledgeDocument{ID: "d1", SourceType: SourceTypeManual}, wantErr: "Title is required"},
		{name: "bad source", doc: &KnowledgeDocument{ID: "d1", Title: "t", SourceType: "upload"}, wantErr: "SourceType is invalid"},
		{
			name:    "manual with file fields",
			doc:     &KnowledgeDocument{ID: "d1", Title: "t", SourceType: SourceTypeManual, FileName: "a.pdf"},
			wantErr: "cannot carry file fields",
		},
		{
			name:    "file without name",
			doc:     &KnowledgeDocument{ID: "d1", Title: "t", SourceType: SourceTypeFile},
			wantErr: "FileName is required",
		},
		{name: "valid manual", doc: &KnowledgeDocument{ID: "d1", Title: "t", SourceType: SourceTypeManual}},
		{
			name: "valid file without stored binary",
			doc:  &KnowledgeDocument{ID: "d1", Title: "t", SourceType: SourceTypeFile, FileName: "a.pdf", MimeType: "application/pdf"},
		},
		{
			name: "valid file with stored binary",
			doc:  &KnowledgeDocument{ID: "d1", Title: "t", SourceType: SourceTypeFile, FileName: "a.pdf", StoragePath: &path},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKnowledgeDocument(tt.doc)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateKnowledgeChunk(t *testing.T) {
	valid := &KnowledgeChunk{
		DocumentID: "d1",
		ChunkIndex: 0,
		Content:    "hello",
		Embedding:  make([]float32, 4),
	}
	assert.NoError(t, ValidateKnowledgeChunk(valid, 4))

	err := ValidateKnowledgeChunk(valid, 768)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Contains(t, err.Error(), "expected 768, got 4")

	noVector := *valid
	noVector.Embedding = nil
	assert.ErrorIs(t, ValidateKnowledgeChunk(&noVector, 4), ErrEmptyEmbedding)

	negative := *valid
	negative.ChunkIndex = -1
	assert.Error(t, ValidateKnowledgeChunk(&negative, 4))

	assert.Error(t, ValidateKnowledgeChunk(nil, 4))
}
