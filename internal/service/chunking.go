package service

import (
	"strings"

	"github.com/cloo-solutions/crmkb/internal/domain"
)

// ChunkConfig controls how extracted text is split for embedding. Both values are in runes.
type ChunkConfig struct {
	Size    int
	Overlap int
}

// DefaultChunkConfig provides the defaults used for knowledge ingestion.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		Size:    1200,
		Overlap: 150,
	}
}

// NormalizeWhitespace collapses every whitespace run to a single space and trims the result.
func NormalizeWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// ChunkText splits text into overlapping windows of cfg.Size runes.
//
// The window start always moves forward: when end-Overlap would not advance past the current
// start, the next window begins at end instead. Empty input yields no chunks.
func ChunkText(text string, cfg ChunkConfig) ([]string, error) {
	if cfg.Size <= 0 {
		return nil, domain.NewChunkingError("chunk size must be positive")
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = 0
	}

	clean := NormalizeWhitespace(text)
	if clean == "" {
		return nil, nil
	}
	runes := []rune(clean)
	if len(runes) <= cfg.Size {
		return []string{clean}, nil
	}

	chunks := make([]string, 0, len(runes)/cfg.Size+1)
	start := 0
	for {
		end := start + cfg.Size
		if end > len(runes) {
			end = len(runes)
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= len(runes) {
			break
		}

		next := end - cfg.Overlap
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks, nil
}
