package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cloo-solutions/crmkb/internal/domain"
	"github.com/cloo-solutions/crmkb/internal/telemetry"
)

const (
	// DefaultTopK is used when a search does not ask for a count
	DefaultTopK = 5
	// MaxTopK caps the number of matches a single search returns
	MaxTopK = 50
)

// MatchRepositoryInterface delegates ranking to the database-side similarity function
type MatchRepositoryInterface interface {
	Match(ctx context.Context, embedding []float32, topK int, source string) ([]domain.AiDocumentMatch, error)
}

// SearchInput represents a free-text similarity query
type SearchInput struct {
	Query  string
	TopK   int
	Source string
}

// SearchService embeds queries and returns ranked matches
type SearchService struct {
	embedder    EmbeddingClient
	matches     MatchRepositoryInterface
	defaultTopK int
	logger      *zap.Logger
}

// NewSearchService creates a new SearchService. defaultTopK <= 0 selects DefaultTopK.
func NewSearchService(embedder EmbeddingClient, matches MatchRepositoryInterface, defaultTopK int, logger *zap.Logger) *SearchService {
	if defaultTopK <= 0 {
		defaultTopK = DefaultTopK
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SearchService{
		embedder:    embedder,
		matches:     matches,
		defaultTopK: defaultTopK,
		logger:      logger,
	}
}

// Search embeds the query text and returns the most similar chunks and records. An empty query
// returns an empty list.
func (s *SearchService) Search(ctx context.Context, input SearchInput) ([]domain.AiDocumentMatch, error) {
	ctx, span := telemetry.StartSpan(ctx, "SearchService.Search", telemetry.SpanAttributes{
		Source:    input.Source,
		Operation: "search",
		TopK:      input.TopK,
	})
	defer span.End()

	query := NormalizeWhitespace(input.Query)
	if query == "" {
		return []domain.AiDocumentMatch{}, nil
	}

	embedding, err := s.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		if domain.ErrorCode(err) == "" {
			err = domain.NewEmbeddingError(err)
		}
		span.SetError(err)
		return nil, err
	}

	matches, err := s.SearchByEmbedding(ctx, embedding, input.TopK, input.Source)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	span.SetData("matches", len(matches))
	return matches, nil
}

// SearchByEmbedding ranks stored vectors against embedding. An empty vector returns an empty list.
func (s *SearchService) SearchByEmbedding(ctx context.Context, embedding []float32, topK int, source string) ([]domain.AiDocumentMatch, error) {
	if len(embedding) == 0 {
		return []domain.AiDocumentMatch{}, nil
	}

	topK = s.clampTopK(topK)
	matches, err := s.matches.Match(ctx, embedding, topK, strings.TrimSpace(source))
	if err != nil {
		if domain.ErrorCode(err) == "" {
			err = domain.NewStoreError("match documents", err)
		}
		return nil, err
	}
	if matches == nil {
		matches = []domain.AiDocumentMatch{}
	}

	s.logger.Debug("similarity search",
		zap.Int("top_k", topK),
		zap.String("source", source),
		zap.Int("matches", len(matches)))
	return matches, nil
}

func (s *SearchService) clampTopK(topK int) int {
	if topK <= 0 {
		topK = s.defaultTopK
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}
	return topK
}

// BuildGroundingContext renders matches as the reference block handed to the assistant prompt.
// It returns "" when there is nothing to ground on.
func BuildGroundingContext(matches []domain.AiDocumentMatch) string {
	if len(matches) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Relevant knowledge:\n")
	for i, m := range matches {
		title := strings.TrimSpace(m.Title)
		if title == "" {
			title = m.RecordID
		}
		fmt.Fprintf(&b, "\n[%d] %s (source: %s, similarity: %.3f)\n", i+1, title, m.Source, m.Similarity)
		b.WriteString(strings.TrimSpace(m.Content))
		b.WriteByte('\n')
	}
	return b.String()
}
