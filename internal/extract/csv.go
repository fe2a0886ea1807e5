package extract

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

const cellSeparator = " | "

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// extractCSV renders each record as its non-empty cells joined by " | ", one record per line.
// Blank lines are skipped by the csv reader; records with no non-empty cell are dropped.
func extractCSV(content []byte) (string, error) {
	content = bytes.TrimPrefix(content, utf8BOM)

	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var lines []string
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse CSV: %w", err)
		}
		if line := joinCells(record); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// joinCells joins the non-empty cells of a row with the cell separator.
func joinCells(cells []string) string {
	kept := make([]string, 0, len(cells))
	for _, c := range cells {
		if c != "" {
			kept = append(kept, c)
		}
	}
	return strings.Join(kept, cellSeparator)
}
