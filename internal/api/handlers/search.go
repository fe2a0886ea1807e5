package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cloo-solutions/crmkb/internal/api"
	"github.com/cloo-solutions/crmkb/internal/domain"
	"github.com/cloo-solutions/crmkb/internal/service"
)

type SearchService interface {
	Search(ctx context.Context, input service.SearchInput) ([]domain.AiDocumentMatch, error)
}

type SearchHandler struct {
	svc SearchService
}

func NewSearchHandler(svc SearchService) *SearchHandler {
	return &SearchHandler{svc: svc}
}

type SearchRequest struct {
	Query  string `json:"query"`
	TopK   int    `json:"top_k,omitempty"`
	Source string `json:"source,omitempty"`
}

type GroundingResponse struct {
	Matches []domain.AiDocumentMatch `json:"matches"`
	Context string                   `json:"context"`
}

func (h *SearchHandler) decode(w http.ResponseWriter, r *http.Request) (service.SearchInput, bool) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return service.SearchInput{}, false
	}
	if strings.TrimSpace(req.Query) == "" {
		api.Error(w, http.StatusBadRequest, "query is required")
		return service.SearchInput{}, false
	}
	if req.TopK < 0 {
		api.Error(w, http.StatusBadRequest, "top_k must not be negative")
		return service.SearchInput{}, false
	}
	return service.SearchInput{Query: req.Query, TopK: req.TopK, Source: req.Source}, true
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decode(w, r)
	if !ok {
		return
	}

	matches, err := h.svc.Search(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, matches)
}

// Context returns the matches together with the prompt block built from them.
func (h *SearchHandler) Context(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decode(w, r)
	if !ok {
		return
	}

	matches, err := h.svc.Search(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, GroundingResponse{
		Matches: matches,
		Context: service.BuildGroundingContext(matches),
	})
}
