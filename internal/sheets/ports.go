// Package sheets defines row sources that feed spreadsheet-shaped data into
// the ingestion pipeline, plus helpers shared by the adapters.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Table is a decoded sheet: the header row plus one map per data row keyed
// by header. Cells missing from short rows are nil.
type Table struct {
	Name    string
	Headers []string
	Rows    []map[string]any
}

// RowSource reads a whole sheet.
type RowSource interface {
	ReadRows(ctx context.Context) (Table, error)
}

// ErrNoHeader is returned when a sheet has no usable header row.
var ErrNoHeader = errors.New("sheet has no header row")

// FromMatrix converts a values matrix, header row first, into a Table.
// Blank header cells drop their column.
func FromMatrix(name string, values [][]any) (Table, error) {
	if len(values) == 0 {
		return Table{}, fmt.Errorf("%s: %w", name, ErrNoHeader)
	}
	headerRow := ToStrings(values[0])
	cols := make([]int, 0, len(headerRow))
	headers := make([]string, 0, len(headerRow))
	for i, h := range headerRow {
		if h == "" {
			continue
		}
		cols = append(cols, i)
		headers = append(headers, h)
	}
	if len(headers) == 0 {
		return Table{}, fmt.Errorf("%s: %w", name, ErrNoHeader)
	}

	rows := make([]map[string]any, 0, len(values)-1)
	for _, raw := range values[1:] {
		row := make(map[string]any, len(headers))
		for j, col := range cols {
			row[headers[j]] = SafeGet(raw, col)
		}
		rows = append(rows, row)
	}
	return Table{Name: name, Headers: headers, Rows: rows}, nil
}

// ToStrings renders a row of cells as trimmed strings.
func ToStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		if v == nil {
			continue
		}
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

// IndexOf finds a header case-insensitively, or returns -1.
func IndexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(target)) {
			return i
		}
	}
	return -1
}

// SafeGet returns arr[idx] or nil when out of range.
func SafeGet(arr []any, idx int) any {
	if idx < 0 || idx >= len(arr) {
		return nil
	}
	return arr[idx]
}
