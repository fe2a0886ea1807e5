package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/cloo-solutions/crmkb/internal/domain"
)

// MatchRepository runs similarity queries through the match_crm_documents function.
type MatchRepository struct {
	db dbtx
}

func NewMatchRepository(pool *pgxpool.Pool) *MatchRepository {
	return &MatchRepository{db: pool}
}

// Match returns at most topK rows ranked by cosine similarity. An empty source searches every
// partition.
func (r *MatchRepository) Match(ctx context.Context, embedding []float32, topK int, source string) ([]domain.AiDocumentMatch, error) {
	if len(embedding) == 0 || topK <= 0 {
		return []domain.AiDocumentMatch{}, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT source, record_id, title, content, metadata, similarity
		 FROM match_crm_documents($1, $2, $3)`,
		pgvector.NewVector(embedding), topK, nullableString(source),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches := make([]domain.AiDocumentMatch, 0, topK)
	for rows.Next() {
		var m domain.AiDocumentMatch
		if err := rows.Scan(&m.Source, &m.RecordID, &m.Title, &m.Content, &m.Metadata, &m.Similarity); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}
