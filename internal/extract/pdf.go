package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDF walks pages in order. Text runs of a page are joined with spaces and pages with
// newlines; a page that cannot be resolved still takes its line.
func extractPDF(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}

	numPages := r.NumPage()
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return "", fmt.Errorf("extract page %d: %w", i, err)
		}
		runs := make([]string, 0, len(rows))
		for _, row := range rows {
			var b strings.Builder
			for _, t := range row.Content {
				b.WriteString(t.S)
			}
			if run := strings.TrimSpace(b.String()); run != "" {
				runs = append(runs, run)
			}
		}
		pages = append(pages, strings.Join(runs, " "))
	}
	return strings.Join(pages, "\n"), nil
}
