package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cloo-solutions/crmkb/internal/api"
	"github.com/cloo-solutions/crmkb/internal/domain"
	"github.com/cloo-solutions/crmkb/internal/jobs"
)

// multipartMemory is how much of a multipart body is buffered in memory before spilling to disk.
const multipartMemory = 8 << 20

type UploadQueue interface {
	Enqueue(files ...jobs.UploadFile) ([]domain.UploadItem, error)
	Items() []domain.UploadItem
	Get(id string) (domain.UploadItem, error)
	Cancel(id string) (domain.UploadItem, error)
	ClearCompleted() int
}

type UploadHandler struct {
	queue UploadQueue
}

func NewUploadHandler(queue UploadQueue) *UploadHandler {
	return &UploadHandler{queue: queue}
}

// Create accepts one or more files in the "files" multipart field and enqueues them in order.
func (h *UploadHandler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.ErrorWithCode(w, http.StatusRequestEntityTooLarge, "request_too_large", "request body exceeds the upload limit")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["file"]
	}
	if len(headers) == 0 {
		api.Error(w, http.StatusBadRequest, "at least one file is required")
		return
	}

	files := make([]jobs.UploadFile, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			api.Error(w, http.StatusBadRequest, "failed to read "+fh.Filename)
			return
		}
		files = append(files, jobs.UploadFile{FileName: fh.Filename, Data: data})
	}

	items, err := h.queue.Enqueue(files...)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	if !anyAccepted(items) {
		api.ErrorWithCode(w, http.StatusServiceUnavailable, domain.ErrorCode(domain.ErrQueueFull), domain.ErrQueueFull.Error())
		return
	}

	api.Success(w, http.StatusAccepted, items)
}

// anyAccepted reports whether at least one file made it into the queue. Refused files come
// back as error items.
func anyAccepted(items []domain.UploadItem) bool {
	for _, it := range items {
		if it.Status != domain.UploadStatusError {
			return true
		}
	}
	return false
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (h *UploadHandler) List(w http.ResponseWriter, r *http.Request) {
	api.Success(w, http.StatusOK, h.queue.Items())
}

func (h *UploadHandler) Get(w http.ResponseWriter, r *http.Request) {
	item, err := h.queue.Get(chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, item)
}

// Cancel stops a pending upload from being processed.
func (h *UploadHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	item, err := h.queue.Cancel(chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, item)
}

func (h *UploadHandler) ClearCompleted(w http.ResponseWriter, r *http.Request) {
	removed := h.queue.ClearCompleted()
	api.Success(w, http.StatusOK, map[string]int{"removed": removed})
}
