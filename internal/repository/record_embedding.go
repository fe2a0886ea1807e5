package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/cloo-solutions/crmkb/internal/domain"
)

// RecordEmbeddingRepository stores embedded CRM records next to the knowledge base.
type RecordEmbeddingRepository struct {
	db dbtx
}

func NewRecordEmbeddingRepository(pool *pgxpool.Pool) *RecordEmbeddingRepository {
	return &RecordEmbeddingRepository{db: pool}
}

// Upsert inserts a record or replaces the content and vector of an existing (source, record_id).
// A nil Embedding stores NULL so the backfill picks the record up later.
func (r *RecordEmbeddingRepository) Upsert(ctx context.Context, rec *domain.RecordEmbedding) error {
	var embedding *pgvector.Vector
	if len(rec.Embedding) > 0 {
		v := pgvector.NewVector(rec.Embedding)
		embedding = &v
	}
	return r.db.QueryRow(ctx,
		`INSERT INTO crm_record_embeddings (id, source, record_id, title, content, embedding, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (source, record_id) DO UPDATE
		 SET title = EXCLUDED.title,
		     content = EXCLUDED.content,
		     embedding = EXCLUDED.embedding,
		     updated_at = EXCLUDED.updated_at
		 RETURNING id`,
		rec.ID, rec.Source, rec.RecordID, rec.Title, rec.Content, embedding, rec.UpdatedAt,
	).Scan(&rec.ID)
}

// ListMissing returns up to limit records that still have no vector, oldest first.
func (r *RecordEmbeddingRepository) ListMissing(ctx context.Context, limit int) ([]domain.RecordEmbedding, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, source, record_id, title, content, updated_at
		 FROM crm_record_embeddings
		 WHERE embedding IS NULL
		 ORDER BY updated_at, id
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.RecordEmbedding
	for rows.Next() {
		var rec domain.RecordEmbedding
		if err := rows.Scan(&rec.ID, &rec.Source, &rec.RecordID, &rec.Title, &rec.Content, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *RecordEmbeddingRepository) UpdateEmbedding(ctx context.Context, id string, embedding []float32) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE crm_record_embeddings SET embedding = $2, updated_at = NOW() WHERE id = $1`,
		id, pgvector.NewVector(embedding),
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}
