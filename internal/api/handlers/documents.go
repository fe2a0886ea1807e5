package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cloo-solutions/crmkb/internal/api"
	"github.com/cloo-solutions/crmkb/internal/domain"
	"github.com/cloo-solutions/crmkb/internal/service"
)

type KnowledgeService interface {
	CreateManualEntry(ctx context.Context, input service.ManualEntryInput) (*domain.KnowledgeDocument, error)
	ListDocuments(ctx context.Context) ([]*domain.KnowledgeDocument, error)
	GetDocument(ctx context.Context, id string) (*domain.KnowledgeDocument, error)
	ListChunks(ctx context.Context, documentID string) ([]domain.KnowledgeChunk, error)
	DeleteDocument(ctx context.Context, id string) error
	FileURL(ctx context.Context, id string) (string, error)
}

type DocumentHandler struct {
	svc KnowledgeService
}

func NewDocumentHandler(svc KnowledgeService) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

type CreateDocumentRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"`
	CreatedBy   string `json:"created_by"`
}

type DocumentResponse struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	SourceType  string         `json:"source_type"`
	FileName    string         `json:"file_name,omitempty"`
	MimeType    string         `json:"mime_type,omitempty"`
	StoragePath *string        `json:"storage_path"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	ChunkCount  int            `json:"chunk_count"`
	CreatedBy   string         `json:"created_by,omitempty"`
	CreatedAt   string         `json:"created_at"`
}

type ChunkResponse struct {
	ID         string               `json:"id"`
	ChunkIndex int                  `json:"chunk_index"`
	Content    string               `json:"content"`
	Metadata   domain.ChunkMetadata `json:"metadata"`
}

func documentToResponse(d *domain.KnowledgeDocument) *DocumentResponse {
	return &DocumentResponse{
		ID:          d.ID,
		Title:       d.Title,
		Description: d.Description,
		SourceType:  string(d.SourceType),
		FileName:    d.FileName,
		MimeType:    d.MimeType,
		StoragePath: d.StoragePath,
		Metadata:    d.Metadata,
		ChunkCount:  d.ChunkCount,
		CreatedBy:   d.CreatedBy,
		CreatedAt:   d.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *DocumentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Title == "" {
		api.Error(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.Content == "" {
		api.Error(w, http.StatusBadRequest, "content is required")
		return
	}

	doc, err := h.svc.CreateManualEntry(r.Context(), service.ManualEntryInput{
		Title:       req.Title,
		Description: req.Description,
		Content:     req.Content,
		CreatedBy:   req.CreatedBy,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, documentToResponse(doc))
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	docs, err := h.svc.ListDocuments(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := make([]*DocumentResponse, 0, len(docs))
	for _, d := range docs {
		resp = append(resp, documentToResponse(d))
	}
	api.Success(w, http.StatusOK, resp)
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	doc, err := h.svc.GetDocument(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, documentToResponse(doc))
}

func (h *DocumentHandler) Chunks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	chunks, err := h.svc.ListChunks(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := make([]ChunkResponse, 0, len(chunks))
	for _, c := range chunks {
		resp = append(resp, ChunkResponse{ID: c.ID, ChunkIndex: c.ChunkIndex, Content: c.Content, Metadata: c.Metadata})
	}
	api.Success(w, http.StatusOK, resp)
}

// File redirects to a short-lived link for the retained original upload.
func (h *DocumentHandler) File(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	url, err := h.svc.FileURL(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	http.Redirect(w, r, url, http.StatusFound)
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.svc.DeleteDocument(r.Context(), id); err != nil {
		api.HandleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
