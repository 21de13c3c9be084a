// Package spreadsheet reads and writes the .xlsx workbooks exchanged with the
// front desk.
package spreadsheet

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Table is the first sheet of a workbook: a header and the rows under it.
type Table struct {
	Sheet  string
	Header []string
	// HeaderRow is the 1-based spreadsheet row number of the header.
	HeaderRow int
	Rows      [][]string
}

// Record is one data row addressed by normalized column name.
type Record struct {
	// Line is the 1-based row number in the sheet, for error messages.
	Line   int
	Values map[string]string
}

func (r Record) Get(column string) string {
	return strings.TrimSpace(r.Values[column])
}

// ReadFirstSheet parses an .xlsx stream. The first non-empty row is taken as
// the header. Cells are read raw, so dates arrive as Excel serial numbers
// unless they were typed as text.
func ReadFirstSheet(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}

	t := &Table{Sheet: sheets[0]}
	for i, row := range rows {
		if t.Header == nil {
			if isBlank(row) {
				continue
			}
			t.Header = make([]string, len(row))
			for j, h := range row {
				t.Header[j] = NormalizeHeader(h)
			}
			t.HeaderRow = i + 1
			continue
		}
		t.Rows = append(t.Rows, row)
	}
	if t.Header == nil {
		return nil, fmt.Errorf("sheet %q is empty", sheets[0])
	}
	return t, nil
}

// Missing returns the required columns absent from the header.
func (t *Table) Missing(required ...string) []string {
	have := make(map[string]bool, len(t.Header))
	for _, h := range t.Header {
		have[h] = true
	}
	var missing []string
	for _, col := range required {
		if !have[col] {
			missing = append(missing, col)
		}
	}
	return missing
}

// Records maps every non-blank data row onto the header.
func (t *Table) Records() []Record {
	out := make([]Record, 0, len(t.Rows))
	for i, row := range t.Rows {
		if isBlank(row) {
			continue
		}
		values := make(map[string]string, len(t.Header))
		for j, col := range t.Header {
			if col == "" || j >= len(row) {
				continue
			}
			values[col] = row[j]
		}
		out = append(out, Record{Line: t.HeaderRow + 1 + i, Values: values})
	}
	return out
}

// NormalizeHeader lowercases a column title and folds spaces and dashes to
// underscores, so "Patient Name" and "patient_name" match.
func NormalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.NewReplacer(" ", "_", "-", "_").Replace(h)
	return strings.Trim(h, "_")
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
