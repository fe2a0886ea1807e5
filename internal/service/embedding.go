package service

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/crmkb/internal/domain"
)

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// embedChunks embeds each chunk in index order, one call at a time. The first failure aborts
// the whole batch so a document is never stored with chunks missing their vector.
func embedChunks(
	ctx context.Context,
	client EmbeddingClient,
	doc *domain.KnowledgeDocument,
	contents []string,
	dimensions int,
	newID func() string,
	progress ProgressFunc,
) ([]domain.KnowledgeChunk, error) {
	chunks := make([]domain.KnowledgeChunk, 0, len(contents))
	for i, content := range contents {
		progress(fmt.Sprintf("embedding chunk %d of %d", i+1, len(contents)))

		vec, err := client.GenerateEmbedding(ctx, content)
		if err != nil {
			if domain.ErrorCode(err) == "" {
				err = domain.NewEmbeddingError(err)
			}
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}

		chunk := domain.KnowledgeChunk{
			ID:         newID(),
			DocumentID: doc.ID,
			ChunkIndex: i,
			Content:    content,
			Embedding:  vec,
			Metadata: domain.ChunkMetadata{
				Source:      doc.SourceType,
				Length:      len([]rune(content)),
				FileName:    doc.FileName,
				StoragePath: doc.StoragePath,
			},
		}
		if err := domain.ValidateKnowledgeChunk(&chunk, dimensions); err != nil {
			if domain.ErrorCode(err) == "" {
				err = domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "invalid chunk", err)
			}
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}
