package service

import "context"

type testTxRepos struct {
	documents DocumentRepositoryInterface
	chunks    ChunkRepositoryInterface
}

func (t *testTxRepos) Documents() DocumentRepositoryInterface {
	return t.documents
}

func (t *testTxRepos) Chunks() ChunkRepositoryInterface {
	return t.chunks
}

// testTxRunner records whether the callback committed or would have rolled back.
type testTxRunner struct {
	repos      TxRepositories
	called     bool
	committed  bool
	rolledBack bool
}

func (t *testTxRunner) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	t.called = true
	if err := fn(t.repos); err != nil {
		t.rolledBack = true
		return err
	}
	t.committed = true
	return nil
}
