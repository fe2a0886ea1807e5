package storage

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/cloo-solutions/crmkb/internal/domain"
	"github.com/cloo-solutions/crmkb/internal/extract"
)

// DiscardStore keeps nothing: only the derived text of an upload is retained.
type DiscardStore struct{}

// Put reports the content type and a nil storage path.
func (DiscardStore) Put(_ context.Context, _ []byte, fileName string) (domain.StoredObject, error) {
	return domain.StoredObject{MimeType: extract.MimeType(fileName)}, nil
}

// Delete is a no-op.
func (DiscardStore) Delete(context.Context, string) error {
	return nil
}

// SafeFileName strips directories and characters that are awkward in object keys.
func SafeFileName(fileName string) string {
	base := filepath.Base(strings.ReplaceAll(fileName, `\`, "/"))
	base = strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == '/', r == '?', r == '#', r == '%':
			return '_'
		}
		return r
	}, base)
	if base == "." || base == "" {
		return "file"
	}
	return base
}
