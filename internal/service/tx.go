package service

import "context"

// TxRepositories exposes the repositories that share one transaction during ingestion.
type TxRepositories interface {
	Documents() DocumentRepositoryInterface
	Chunks() ChunkRepositoryInterface
}

// TxRunner runs fn atomically: a non-nil error leaves neither the document row nor any chunk
// behind.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(repos TxRepositories) error) error
}
