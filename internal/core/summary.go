package core

import "time"

// Bucket is one category of a breakdown.
type Bucket struct {
	Label      string `json:"label"`
	Count      int    `json:"count"`
	Percentage string `json:"percentage"`
}

// Breakdown is the categorized view of a record set. Bucket counts sum to Total.
type Breakdown struct {
	Total   int      `json:"total"`
	Buckets []Bucket `json:"buckets"`
}

// Count returns the count of the bucket with the given label, or 0.
func (b Breakdown) Count(label string) int {
	if bk, ok := b.Bucket(label); ok {
		return bk.Count
	}
	return 0
}

// Bucket looks up a bucket by label.
func (b Breakdown) Bucket(label string) (Bucket, bool) {
	for _, bk := range b.Buckets {
		if bk.Label == label {
			return bk, true
		}
	}
	return Bucket{}, false
}

// Stats flattens the breakdown to label -> count.
func (b Breakdown) Stats() map[string]int {
	out := make(map[string]int, len(b.Buckets))
	for _, bk := range b.Buckets {
		out[bk.Label] = bk.Count
	}
	return out
}

// SummaryLine is one row of the summary report. Percentages are against the
// document total at every depth.
type SummaryLine struct {
	Label      string        `json:"label"`
	Count      int           `json:"count"`
	Percentage string        `json:"percentage"`
	Children   []SummaryLine `json:"children,omitempty"`
}

// SummaryDocument is the structured summary report, ready for rendering.
type SummaryDocument struct {
	Title       string        `json:"title"`
	Total       int           `json:"total"`
	Lines       []SummaryLine `json:"lines"`
	GeneratedAt time.Time     `json:"generatedAt"`
}
