package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractSpreadsheet linearises every sheet row by row under a "# <sheet>" header.
// Sheets are separated by a blank line.
func extractSpreadsheet(content []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	sections := make([]string, 0, len(sheets))
	for _, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("get rows for sheet %q: %w", sheet, err)
		}
		lines := make([]string, 0, len(rows))
		for _, row := range rows {
			if line := joinCells(row); line != "" {
				lines = append(lines, line)
			}
		}
		sections = append(sections, "# "+sheet+"\n"+strings.Join(lines, "\n"))
	}
	return strings.Join(sections, "\n\n"), nil
}
