// Package memory provides row sources backed by in-memory matrices and CSV
// or JSON files.
package memory

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"alloctrack/internal/sheets"
)

// Source serves a fixed matrix.
type Source struct {
	name   string
	values [][]any
}

var _ sheets.RowSource = (*Source)(nil)

// New returns a source for values, header row first.
func New(name string, values [][]any) *Source {
	return &Source{name: name, values: values}
}

// ReadRows implements sheets.RowSource.
func (s *Source) ReadRows(ctx context.Context) (sheets.Table, error) {
	if err := ctx.Err(); err != nil {
		return sheets.Table{}, err
	}
	return sheets.FromMatrix(s.name, s.values)
}

// FromCSV reads a CSV document with a header row. Cells stay strings.
func FromCSV(name string, r io.Reader) (*Source, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv %s: %w", name, err)
	}
	values := make([][]any, len(records))
	for i, rec := range records {
		row := make([]any, len(rec))
		for j, cell := range rec {
			if i == 0 && j == 0 {
				cell = strings.TrimPrefix(cell, "\ufeff")
			}
			row[j] = cell
		}
		values[i] = row
	}
	return New(name, values), nil
}

// jsonUpload is the body shape accepted by the upload endpoint.
type jsonUpload struct {
	Headers []string         `json:"headers"`
	Rows    []map[string]any `json:"rows"`
}

// JSONSource serves a decoded {headers, rows} document.
type JSONSource struct {
	table sheets.Table
}

var _ sheets.RowSource = (*JSONSource)(nil)

// FromJSON decodes {headers, rows}. Numbers keep their float64 form so
// serial dates survive.
func FromJSON(name string, r io.Reader) (*JSONSource, error) {
	var doc jsonUpload
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode json %s: %w", name, err)
	}
	if doc.Headers == nil {
		return nil, fmt.Errorf("%s: %w", name, sheets.ErrNoHeader)
	}
	if doc.Rows == nil {
		doc.Rows = []map[string]any{}
	}
	return &JSONSource{table: sheets.Table{Name: name, Headers: doc.Headers, Rows: doc.Rows}}, nil
}

// ReadRows implements sheets.RowSource.
func (s *JSONSource) ReadRows(ctx context.Context) (sheets.Table, error) {
	if err := ctx.Err(); err != nil {
		return sheets.Table{}, err
	}
	return s.table, nil
}

// FromFile opens a .csv or .json file by extension.
func FromFile(path string) (sheets.RowSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	name := filepath.Base(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FromCSV(name, f)
	case ".json":
		return FromJSON(name, f)
	default:
		return nil, fmt.Errorf("unsupported file type %q: use .csv or .json", filepath.Ext(path))
	}
}
