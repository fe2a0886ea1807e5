package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cloo-solutions/crmkb/internal/api"
	"github.com/cloo-solutions/crmkb/internal/domain"
	"github.com/cloo-solutions/crmkb/internal/service"
)

type RecordService interface {
	IndexRecord(ctx context.Context, input service.RecordInput) (*domain.RecordEmbedding, error)
	Backfill(ctx context.Context) (service.BackfillResult, error)
}

type RecordHandler struct {
	svc RecordService
}

func NewRecordHandler(svc RecordService) *RecordHandler {
	return &RecordHandler{svc: svc}
}

type EmbedRecordRequest struct {
	Source   string `json:"source"`
	RecordID string `json:"record_id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
}

type RecordResponse struct {
	ID        string `json:"id"`
	Source    string `json:"source"`
	RecordID  string `json:"record_id"`
	Title     string `json:"title"`
	UpdatedAt string `json:"updated_at"`
}

type BackfillResponse struct {
	Embedded int `json:"embedded"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// Embed indexes one CRM record so it is matched alongside knowledge chunks.
func (h *RecordHandler) Embed(w http.ResponseWriter, r *http.Request) {
	var req EmbedRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Source == "" {
		api.Error(w, http.StatusBadRequest, "source is required")
		return
	}
	if req.RecordID == "" {
		api.Error(w, http.StatusBadRequest, "record_id is required")
		return
	}

	rec, err := h.svc.IndexRecord(r.Context(), service.RecordInput{
		Source:   req.Source,
		RecordID: req.RecordID,
		Title:    req.Title,
		Content:  req.Content,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, RecordResponse{
		ID:        rec.ID,
		Source:    rec.Source,
		RecordID:  rec.RecordID,
		Title:     rec.Title,
		UpdatedAt: rec.UpdatedAt.UTC().Format(time.RFC3339),
	})
}

// Backfill runs one pass over records that have no embedding yet.
func (h *RecordHandler) Backfill(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Backfill(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, BackfillResponse{Embedded: res.Embedded, Skipped: res.Skipped, Failed: res.Failed})
}
