package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cloo-solutions/crmkb/internal/domain"
	"github.com/cloo-solutions/crmkb/internal/telemetry"
)

// DefaultQueueCapacity bounds how many items may wait for the worker at once.
const DefaultQueueCapacity = 64

const (
	progressInitialising = "initialising"
	progressDone         = "done"
	messageCancelled     = "cancelled"
)

// UploadProcessor ingests one file and returns the id of the stored document.
type UploadProcessor interface {
	IngestUpload(ctx context.Context, fileName string, data []byte, progress func(string)) (string, error)
}

// UploadFile is a file handed to the queue.
type UploadFile struct {
	FileName string
	Data     []byte
}

// Observer is notified with a copy of an item every time its state changes.
type Observer func(domain.UploadItem)

type queuedUpload struct {
	item domain.UploadItem
	data []byte
}

// UploadQueue processes uploaded files one at a time in enqueue order.
type UploadQueue struct {
	processor UploadProcessor
	observer  Observer
	logger    *zap.Logger
	newID     func() string
	now       func() time.Time

	mu      sync.Mutex
	items   map[string]*queuedUpload
	order   []string
	stopped bool

	ids      chan string
	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

// UploadQueueOption configures an UploadQueue.
type UploadQueueOption func(*UploadQueue)

// WithObserver registers a callback for item state changes.
func WithObserver(o Observer) UploadQueueOption {
	return func(q *UploadQueue) { q.observer = o }
}

// WithQueueLogger sets the queue logger.
func WithQueueLogger(l *zap.Logger) UploadQueueOption {
	return func(q *UploadQueue) {
		if l != nil {
			q.logger = l
		}
	}
}

// NewUploadQueue creates a queue holding at most capacity waiting items.
func NewUploadQueue(processor UploadProcessor, capacity int, opts ...UploadQueueOption) *UploadQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	q := &UploadQueue{
		processor: processor,
		logger:    zap.NewNop(),
		newID:     uuid.NewString,
		now:       func() time.Time { return time.Now().UTC() },
		items:     make(map[string]*queuedUpload),
		ids:       make(chan string, capacity),
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue adds files as pending items, in order. It may be called while another item is
// processing. A file that does not fit in the queue is recorded as an error item.
func (q *UploadQueue) Enqueue(files ...UploadFile) ([]domain.UploadItem, error) {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return nil, domain.ErrQueueStopped
	}

	added := make([]domain.UploadItem, 0, len(files))
	for _, f := range files {
		qu := &queuedUpload{
			item: domain.UploadItem{
				ID:        q.newID(),
				FileName:  f.FileName,
				Status:    domain.UploadStatusPending,
				CreatedAt: q.now(),
			},
			data: f.Data,
		}
		q.items[qu.item.ID] = qu
		q.order = append(q.order, qu.item.ID)

		select {
		case q.ids <- qu.item.ID:
		default:
			qu.item.Status = domain.UploadStatusError
			qu.item.Error = domain.ErrQueueFull.Error()
			qu.data = nil
			q.logger.Warn("upload queue full, rejecting file", zap.String("file_name", f.FileName))
		}
		added = append(added, qu.item)
	}
	q.mu.Unlock()

	for _, it := range added {
		q.notify(it)
	}
	return added, nil
}

// Items returns a snapshot of all visible items in enqueue order.
func (q *UploadQueue) Items() []domain.UploadItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]domain.UploadItem, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, q.items[id].item)
	}
	return out
}

// Get returns one item by id.
func (q *UploadQueue) Get(id string) (domain.UploadItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	qu, ok := q.items[id]
	if !ok {
		return domain.UploadItem{}, domain.ErrUploadItemNotFound
	}
	return qu.item, nil
}

// Cancel marks a pending item as failed so the worker skips it. Items already processing
// run to completion.
func (q *UploadQueue) Cancel(id string) (domain.UploadItem, error) {
	q.mu.Lock()
	qu, ok := q.items[id]
	if !ok {
		q.mu.Unlock()
		return domain.UploadItem{}, domain.ErrUploadItemNotFound
	}
	if qu.item.Status != domain.UploadStatusPending {
		q.mu.Unlock()
		return qu.item, domain.ErrUploadNotPending
	}
	qu.item.Status = domain.UploadStatusError
	qu.item.Error = messageCancelled
	qu.data = nil
	item := qu.item
	q.mu.Unlock()

	q.notify(item)
	return item, nil
}

// ClearCompleted removes success and error items from the visible queue and returns how
// many were removed. Stored documents are not touched.
func (q *UploadQueue) ClearCompleted() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.order[:0]
	removed := 0
	for _, id := range q.order {
		if q.items[id].item.Status.IsTerminal() {
			delete(q.items, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	q.order = kept
	return removed
}

// Start runs the worker loop until ctx is cancelled or Stop is called.
func (q *UploadQueue) Start(ctx context.Context) {
	defer close(q.doneChan)

	q.logger.Info("upload queue started", zap.Int("capacity", cap(q.ids)))

	for {
		select {
		case <-ctx.Done():
			q.logger.Info("upload queue stopped: context cancelled")
			return
		case <-q.stopChan:
			q.logger.Info("upload queue stopped: stop signal received")
			return
		case id := <-q.ids:
			q.process(ctx, id)
		}
	}
}

// Stop rejects further enqueues and waits for the current item to finish.
func (q *UploadQueue) Stop() {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.stopped = true
		q.mu.Unlock()
		close(q.stopChan)
	})
	<-q.doneChan
	q.logger.Info("upload queue shutdown complete")
}

func (q *UploadQueue) process(ctx context.Context, id string) {
	data, item, ok := q.begin(id)
	if !ok {
		return
	}
	q.notify(item)

	logger := q.logger.With(zap.String("upload_id", id), zap.String("file_name", item.FileName))
	logger.Info("processing upload")

	// A started item runs to completion; shutdown waits for it in Stop.
	runCtx := context.WithoutCancel(ctx)
	docID, err := q.run(runCtx, item.FileName, data, func(msg string) {
		telemetry.AddBreadcrumb(runCtx, "upload", item.FileName+": "+msg)
		q.update(id, func(it *domain.UploadItem) { it.Progress = msg })
	})
	if err != nil {
		logger.Error("upload failed", zap.Error(err))
		q.finish(id, domain.UploadStatusError, func(it *domain.UploadItem) {
			it.Error = err.Error()
		})
		return
	}

	logger.Info("upload processed", zap.String("document_id", docID))
	q.finish(id, domain.UploadStatusSuccess, func(it *domain.UploadItem) {
		it.Progress = progressDone
		it.DocumentID = docID
	})
}

// begin moves a pending item to processing and hands its payload to the caller.
func (q *UploadQueue) begin(id string) ([]byte, domain.UploadItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	qu, ok := q.items[id]
	if !ok || !qu.item.Status.CanTransition(domain.UploadStatusProcessing) {
		return nil, domain.UploadItem{}, false
	}
	qu.item.Status = domain.UploadStatusProcessing
	qu.item.Progress = progressInitialising
	data := qu.data
	qu.data = nil
	return data, qu.item, true
}

func (q *UploadQueue) run(ctx context.Context, fileName string, data []byte, progress func(string)) (docID string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processing %s panicked: %v", fileName, r)
			telemetry.CaptureError(ctx, err)
		}
	}()
	return q.processor.IngestUpload(ctx, fileName, data, progress)
}

// update mutates an item under the lock; items cleared meanwhile are ignored.
func (q *UploadQueue) update(id string, fn func(*domain.UploadItem)) {
	q.mu.Lock()
	qu, ok := q.items[id]
	if !ok {
		q.mu.Unlock()
		return
	}
	fn(&qu.item)
	item := qu.item
	q.mu.Unlock()

	q.notify(item)
}

// finish moves an item to a terminal status. Moves the state machine does not allow, such as
// finishing an item twice, are dropped.
func (q *UploadQueue) finish(id string, next domain.UploadStatus, fn func(*domain.UploadItem)) bool {
	q.mu.Lock()
	qu, ok := q.items[id]
	if !ok {
		q.mu.Unlock()
		return false
	}
	if from := qu.item.Status; !from.CanTransition(next) {
		q.mu.Unlock()
		q.logger.Warn("ignoring illegal upload transition",
			zap.String("upload_id", id),
			zap.String("from", string(from)),
			zap.String("to", string(next)))
		return false
	}
	qu.item.Status = next
	fn(&qu.item)
	item := qu.item
	q.mu.Unlock()

	q.notify(item)
	return true
}

func (q *UploadQueue) notify(item domain.UploadItem) {
	if q.observer != nil {
		q.observer(item)
	}
}
