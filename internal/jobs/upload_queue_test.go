package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/crmkb/internal/domain"
)

// MockUploadProcessor is a mock implementation of UploadProcessor
type MockUploadProcessor struct {
	mock.Mock
}

func (m *MockUploadProcessor) IngestUpload(ctx context.Context, fileName string, data []byte, progress func(string)) (string, error) {
	args := m.Called(ctx, fileName, data, progress)
	return args.String(0), args.Error(1)
}

type recorder struct {
	mu     sync.Mutex
	events []domain.UploadItem
}

func (r *recorder) observe(it domain.UploadItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, it)
}

func (r *recorder) statuses(fileName string) []domain.UploadStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.UploadStatus
	for _, e := range r.events {
		if e.FileName == fileName && (len(out) == 0 || out[len(out)-1] != e.Status) {
			out = append(out, e.Status)
		}
	}
	return out
}

func newTestQueue(p UploadProcessor, capacity int, rec *recorder) *UploadQueue {
	n := 0
	q := NewUploadQueue(p, capacity, WithObserver(rec.observe))
	q.newID = func() string {
		n++
		return fmt.Sprintf("item-%d", n)
	}
	return q
}

func startQueue(t *testing.T, q *UploadQueue) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go q.Start(ctx)
	t.Cleanup(func() {
		q.Stop()
		cancel()
	})
}

func waitTerminal(t *testing.T, q *UploadQueue, ids ...string) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, id := range ids {
			it, err := q.Get(id)
			if err != nil || !it.Status.IsTerminal() {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUploadQueue_SequentialFailureDoesNotBlock(t *testing.T) {
	p := new(MockUploadProcessor)
	rec := &recorder{}
	q := newTestQueue(p, 8, rec)

	var mu sync.Mutex
	var started, finished []string
	track := func(args mock.Arguments) {
		name := args.String(1)
		mu.Lock()
		started = append(started, name)
		mu.Unlock()
		args.Get(3).(func(string))("extracting text")
		mu.Lock()
		finished = append(finished, name)
		mu.Unlock()
	}
	p.On("IngestUpload", mock.Anything, "a.txt", mock.Anything, mock.Anything).Run(track).Return("doc-a", nil).Once()
	p.On("IngestUpload", mock.Anything, "b.txt", mock.Anything, mock.Anything).Run(track).
		Return("", domain.NewEmbeddingError(errors.New("rate limited"))).Once()
	p.On("IngestUpload", mock.Anything, "c.txt", mock.Anything, mock.Anything).Run(track).Return("doc-c", nil).Once()

	items, err := q.Enqueue(
		UploadFile{FileName: "a.txt", Data: []byte("a")},
		UploadFile{FileName: "b.txt", Data: []byte("b")},
		UploadFile{FileName: "c.txt", Data: []byte("c")},
	)
	require.NoError(t, err)
	require.Len(t, items, 3)
	for _, it := range items {
		assert.Equal(t, domain.UploadStatusPending, it.Status)
	}

	startQueue(t, q)
	waitTerminal(t, q, "item-1", "item-2", "item-3")

	a, _ := q.Get("item-1")
	b, _ := q.Get("item-2")
	c, _ := q.Get("item-3")
	assert.Equal(t, domain.UploadStatusSuccess, a.Status)
	assert.Equal(t, "doc-a", a.DocumentID)
	assert.Equal(t, "done", a.Progress)
	assert.Equal(t, domain.UploadStatusError, b.Status)
	assert.Contains(t, b.Error, "rate limited")
	assert.Equal(t, domain.UploadStatusSuccess, c.Status)

	mu.Lock()
	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt"}, started)
	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt"}, finished)
	mu.Unlock()

	assert.Equal(t, []domain.UploadStatus{
		domain.UploadStatusPending, domain.UploadStatusProcessing, domain.UploadStatusSuccess,
	}, rec.statuses("a.txt"))
	assert.Equal(t, []domain.UploadStatus{
		domain.UploadStatusPending, domain.UploadStatusProcessing, domain.UploadStatusError,
	}, rec.statuses("b.txt"))
	p.AssertExpectations(t)
}

func TestUploadQueue_EnqueueWhileProcessing(t *testing.T) {
	p := new(MockUploadProcessor)
	q := newTestQueue(p, 8, &recorder{})

	release := make(chan struct{})
	p.On("IngestUpload", mock.Anything, "slow.pdf", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { <-release }).Return("doc-1", nil).Once()
	p.On("IngestUpload", mock.Anything, "late.csv", mock.Anything, mock.Anything).Return("doc-2", nil).Once()

	startQueue(t, q)
	_, err := q.Enqueue(UploadFile{FileName: "slow.pdf"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		it, _ := q.Get("item-1")
		return it.Status == domain.UploadStatusProcessing
	}, time.Second, 5*time.Millisecond)

	_, err = q.Enqueue(UploadFile{FileName: "late.csv"})
	require.NoError(t, err)
	late, _ := q.Get("item-2")
	assert.Equal(t, domain.UploadStatusPending, late.Status)

	close(release)
	waitTerminal(t, q, "item-1", "item-2")
	p.AssertExpectations(t)
}

func TestUploadQueue_PanicBecomesItemError(t *testing.T) {
	p := new(MockUploadProcessor)
	q := newTestQueue(p, 8, &recorder{})

	p.On("IngestUpload", mock.Anything, "boom.docx", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { panic("corrupt archive") }).Return("", nil).Once()
	p.On("IngestUpload", mock.Anything, "ok.txt", mock.Anything, mock.Anything).Return("doc-2", nil).Once()

	_, err := q.Enqueue(UploadFile{FileName: "boom.docx"}, UploadFile{FileName: "ok.txt"})
	require.NoError(t, err)
	startQueue(t, q)
	waitTerminal(t, q, "item-1", "item-2")

	boom, _ := q.Get("item-1")
	ok, _ := q.Get("item-2")
	assert.Equal(t, domain.UploadStatusError, boom.Status)
	assert.Contains(t, boom.Error, "corrupt archive")
	assert.Equal(t, domain.UploadStatusSuccess, ok.Status)
}

func TestUploadQueue_CancelPending(t *testing.T) {
	p := new(MockUploadProcessor)
	q := newTestQueue(p, 8, &recorder{})

	_, err := q.Enqueue(UploadFile{FileName: "a.txt"}, UploadFile{FileName: "b.txt"})
	require.NoError(t, err)

	cancelled, err := q.Cancel("item-1")
	require.NoError(t, err)
	assert.Equal(t, domain.UploadStatusError, cancelled.Status)
	assert.Equal(t, "cancelled", cancelled.Error)

	_, err = q.Cancel("item-1")
	assert.ErrorIs(t, err, domain.ErrUploadNotPending)
	_, err = q.Cancel("nope")
	assert.ErrorIs(t, err, domain.ErrUploadItemNotFound)

	p.On("IngestUpload", mock.Anything, "b.txt", mock.Anything, mock.Anything).Return("doc-b", nil).Once()
	startQueue(t, q)
	waitTerminal(t, q, "item-2")

	p.AssertNotCalled(t, "IngestUpload", mock.Anything, "a.txt", mock.Anything, mock.Anything)
	p.AssertExpectations(t)
}

func TestUploadQueue_ClearCompleted(t *testing.T) {
	p := new(MockUploadProcessor)
	q := newTestQueue(p, 8, &recorder{})

	p.On("IngestUpload", mock.Anything, "a.txt", mock.Anything, mock.Anything).Return("doc-a", nil).Once()
	_, err := q.Enqueue(UploadFile{FileName: "a.txt"})
	require.NoError(t, err)
	startQueue(t, q)
	waitTerminal(t, q, "item-1")

	assert.Equal(t, 1, q.ClearCompleted())
	assert.Empty(t, q.Items())
	_, err = q.Get("item-1")
	assert.ErrorIs(t, err, domain.ErrUploadItemNotFound)
}

func TestUploadQueue_FullQueueRejectsItem(t *testing.T) {
	q := newTestQueue(new(MockUploadProcessor), 1, &recorder{})

	items, err := q.Enqueue(UploadFile{FileName: "a.txt"}, UploadFile{FileName: "b.txt"})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, domain.UploadStatusPending, items[0].Status)
	assert.Equal(t, domain.UploadStatusError, items[1].Status)
	assert.Equal(t, domain.ErrQueueFull.Error(), items[1].Error)

	all := q.Items()
	require.Len(t, all, 2)
	assert.Equal(t, "a.txt", all[0].FileName)
	assert.Equal(t, "b.txt", all[1].FileName)
}

func TestUploadQueue_EnqueueAfterStop(t *testing.T) {
	q := newTestQueue(new(MockUploadProcessor), 1, &recorder{})
	go q.Start(context.Background())
	q.Stop()

	_, err := q.Enqueue(UploadFile{FileName: "a.txt"})
	assert.ErrorIs(t, err, domain.ErrQueueStopped)
}

func TestUploadQueue_ShutdownLetsRunningItemFinish(t *testing.T) {
	p := new(MockUploadProcessor)
	q := newTestQueue(p, 8, &recorder{})

	started := make(chan struct{})
	release := make(chan struct{})
	var ctxErr error
	p.On("IngestUpload", mock.Anything, "deck.pdf", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			close(started)
			<-release
			ctxErr = args.Get(0).(context.Context).Err()
		}).Return("doc-1", nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	go q.Start(ctx)

	_, err := q.Enqueue(UploadFile{FileName: "deck.pdf"})
	require.NoError(t, err)
	<-started

	cancel()
	close(release)
	q.Stop()

	it, err := q.Get("item-1")
	require.NoError(t, err)
	assert.Equal(t, domain.UploadStatusSuccess, it.Status)
	assert.Equal(t, "doc-1", it.DocumentID)
	assert.NoError(t, ctxErr)
}

func TestUploadQueue_FinishRejectsIllegalTransition(t *testing.T) {
	q := newTestQueue(new(MockUploadProcessor), 8, &recorder{})

	_, err := q.Enqueue(UploadFile{FileName: "a.txt"}, UploadFile{FileName: "b.txt"})
	require.NoError(t, err)

	// pending items cannot jump straight to success
	assert.False(t, q.finish("item-1", domain.UploadStatusSuccess, func(*domain.UploadItem) {}))
	it, _ := q.Get("item-1")
	assert.Equal(t, domain.UploadStatusPending, it.Status)

	_, err = q.Cancel("item-2")
	require.NoError(t, err)
	assert.False(t, q.finish("item-2", domain.UploadStatusSuccess, func(it *domain.UploadItem) {
		it.DocumentID = "doc-x"
	}))
	it, _ = q.Get("item-2")
	assert.Equal(t, domain.UploadStatusError, it.Status)
	assert.Empty(t, it.DocumentID)

	_, _, ok := q.begin("item-2")
	assert.False(t, ok)
	assert.False(t, q.finish("missing", domain.UploadStatusError, func(*domain.UploadItem) {}))
}
