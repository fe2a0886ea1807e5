package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/cloo-solutions/crmkb/internal/domain"
)

// KnowledgeChunkRepository handles persistence of embedded knowledge chunks.
type KnowledgeChunkRepository struct {
	db dbtx
}

func NewKnowledgeChunkRepository(pool *pgxpool.Pool) *KnowledgeChunkRepository {
	return &KnowledgeChunkRepository{db: pool}
}

func NewKnowledgeChunkRepositoryWithTx(tx dbtx) *KnowledgeChunkRepository {
	return &KnowledgeChunkRepository{db: tx}
}

// AppendChunks inserts chunks for a document in the given order. The first failing insert stops
// the batch; callers run this inside a transaction so earlier rows roll back with it.
func (r *KnowledgeChunkRepository) AppendChunks(ctx context.Context, documentID string, chunks []domain.KnowledgeChunk) error {
	for _, c := range chunks {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		_, err := r.db.Exec(ctx,
			`INSERT INTO knowledge_chunks
				(id, document_id, chunk_index, content, embedding, metadata, created_at)
			 VALUES
				($1, $2, $3, $4, $5, $6, $7)`,
			c.ID,
			documentID,
			c.ChunkIndex,
			c.Content,
			pgvector.NewVector(c.Embedding),
			c.Metadata,
			createdAt,
		)
		if err != nil {
			return domain.NewStoreError(fmt.Sprintf("insert knowledge chunk %d", c.ChunkIndex), err)
		}
	}

	return nil
}

// ListByDocument returns a document's chunks in index order, without their vectors.
func (r *KnowledgeChunkRepository) ListByDocument(ctx context.Context, documentID string) ([]domain.KnowledgeChunk, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, document_id, chunk_index, content, metadata, created_at
		 FROM knowledge_chunks WHERE document_id = $1
		 ORDER BY chunk_index`,
		documentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []domain.KnowledgeChunk
	for rows.Next() {
		var c domain.KnowledgeChunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Content, &c.Metadata, &c.CreatedAt); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
