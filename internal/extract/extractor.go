// Package extract converts uploaded file bytes into plain text.
//
// Formats are identified purely by file extension (case-insensitive); content is never sniffed.
// Each format is a strategy registered under its extension. Unknown extensions fall back to a
// best-effort UTF-8 decode.
package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cloo-solutions/crmkb/internal/domain"
)

// Extractor turns raw bytes of a single format into text.
type Extractor interface {
	Extract(data []byte) (string, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(data []byte) (string, error)

// Extract calls f(data).
func (f ExtractorFunc) Extract(data []byte) (string, error) {
	return f(data)
}

// Registry dispatches extraction to the strategy registered for a file's extension.
type Registry struct {
	byExt    map[string]Extractor
	fallback Extractor
}

// NewRegistry returns a Registry with every supported format registered.
func NewRegistry() *Registry {
	r := &Registry{
		byExt:    make(map[string]Extractor),
		fallback: ExtractorFunc(extractPlain),
	}

	plain := ExtractorFunc(extractPlain)
	r.Register(".txt", plain)
	r.Register(".md", plain)
	r.Register(".json", plain)
	r.Register(".csv", ExtractorFunc(extractCSV))
	r.Register(".xls", ExtractorFunc(extractSpreadsheet))
	r.Register(".xlsx", ExtractorFunc(extractSpreadsheet))
	r.Register(".docx", NewDocxExtractor())
	r.Register(".pdf", ExtractorFunc(extractPDF))

	return r
}

// Register installs e for ext, replacing any previous strategy. ext may omit the leading dot.
func (r *Registry) Register(ext string, e Extractor) {
	r.byExt[normalizeExt(ext)] = e
}

// Supports reports whether fileName has a dedicated strategy.
func (r *Registry) Supports(fileName string) bool {
	_, ok := r.byExt[Extension(fileName)]
	return ok
}

// Extensions lists the registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Extract returns the text content of data, choosing the strategy from fileName's extension.
// A whitespace-only result is reported as domain.ErrNoContent; every failure is wrapped in an
// extraction error naming the file.
func (r *Registry) Extract(ctx context.Context, data []byte, fileName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	e, ok := r.byExt[Extension(fileName)]
	if !ok {
		e = r.fallback
	}

	text, err := safeExtract(e, data)
	if err != nil {
		return "", domain.NewExtractionError(fileName, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", domain.NewExtractionError(fileName, domain.ErrNoContent)
	}
	return text, nil
}

// Extension returns the lower-cased extension of fileName including the leading dot.
func Extension(fileName string) string {
	return strings.ToLower(filepath.Ext(fileName))
}

// safeExtract converts parser panics on malformed input into errors.
func safeExtract(e Extractor, data []byte) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("parser panic: %v", rec)
		}
	}()
	return e.Extract(data)
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
