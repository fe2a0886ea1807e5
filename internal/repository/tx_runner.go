package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/crmkb/internal/service"
)

// TxRunner hands out document and chunk repositories bound to a single transaction.
type TxRunner struct {
	pool *pgxpool.Pool
}

func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// WithTx commits when fn returns nil and rolls back on an error or panic.
func (r *TxRunner) WithTx(ctx context.Context, fn func(repos service.TxRepositories) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(txRepos{
			documents: NewDocumentRepositoryWithTx(tx),
			chunks:    NewKnowledgeChunkRepositoryWithTx(tx),
		})
	})
}

type txRepos struct {
	documents *DocumentRepository
	chunks    *KnowledgeChunkRepository
}

func (r txRepos) Documents() service.DocumentRepositoryInterface { return r.documents }
func (r txRepos) Chunks() service.ChunkRepositoryInterface { return r.chunks }
