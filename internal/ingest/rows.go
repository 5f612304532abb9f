package ingest

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"alloctrack/internal/schema"
)

// MinCompleteness is the share of non-empty cells a row needs to be kept.
const MinCompleteness = 0.20

// HeaderPartition splits declared headers into those the family accepts and
// those it ignores.
type HeaderPartition struct {
	// Valid holds accepted declared headers in declaration order.
	Valid []string
	// Ignored holds rejected declared headers in declaration order.
	Ignored []string
	// Canonical maps each valid declared header to its canonical column.
	Canonical map[string]string
}

// PartitionHeaders resolves declared headers against the registry. Exact
// duplicates count once.
func PartitionHeaders(f schema.Family, declared []string) HeaderPartition {
	p := HeaderPartition{Canonical: make(map[string]string)}
	seen := make(map[string]bool, len(declared))
	for _, h := range declared {
		if seen[h] {
			continue
		}
		seen[h] = true
		if col, ok := schema.Resolve(f, h); ok {
			p.Valid = append(p.Valid, h)
			p.Canonical[h] = col
			continue
		}
		p.Ignored = append(p.Ignored, h)
	}
	return p
}

// Columns returns the distinct canonical columns covered, in first-seen order.
func (p HeaderPartition) Columns() []string {
	var cols []string
	for _, h := range p.Valid {
		if c := p.Canonical[h]; !slices.Contains(cols, c) {
			cols = append(cols, c)
		}
	}
	return cols
}

// IsEmpty reports whether a cell counts as empty: nil, "" or whitespace only.
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	default:
		return false
	}
}

// NonEmptyRatio is the share of non-empty cells in a row. A row without
// cells has ratio 0.
func NonEmptyRatio(row map[string]any) float64 {
	if len(row) == 0 {
		return 0
	}
	filled := 0
	for _, v := range row {
		if !IsEmpty(v) {
			filled++
		}
	}
	return float64(filled) / float64(len(row))
}

// IsComplete reports whether a row passes the completeness filter.
func IsComplete(row map[string]any) bool {
	return NonEmptyRatio(row) >= MinCompleteness
}

// projection is the result of projecting one raw row.
type projection struct {
	values   map[string]string
	unparsed int
}

// project keeps the valid headers only, normalizes date cells and renders
// every value as a string. When several headers feed one column the first
// non-empty one wins.
func project(p HeaderPartition, row map[string]any) projection {
	out := projection{values: make(map[string]string, len(p.Valid))}
	for _, h := range p.Valid {
		col := p.Canonical[h]
		if out.values[col] != "" {
			continue
		}
		raw := row[h]
		var cell string
		if schema.IsDateField(h) || schema.IsDateField(col) {
			res := NormalizeDate(raw)
			if !res.Recognized && !IsEmpty(raw) {
				out.unparsed++
			}
			cell = res.OrEmpty()
		} else {
			cell = cellString(raw)
		}
		out.values[col] = cell
	}
	return out
}

func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	case time.Time:
		return t.Format(DateLayout)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
