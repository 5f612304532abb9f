// Package categorize buckets records by a categorical field and reports
// counts and percentages per bucket.
package categorize

import (
	"sort"

	"github.com/shopspring/decimal"

	"alloctrack/internal/core"
)

var hundred = decimal.NewFromInt(100)

// Rules maps raw field values to bucket labels.
type Rules interface {
	// Label returns the bucket for a trimmed raw value, which may be empty.
	Label(raw string) string
	// Seed lists labels reported even when no record falls into them, in order.
	Seed() []string
	// Sorted reports whether buckets are ordered by descending count.
	Sorted() bool
}

// Categorize buckets records by the first non-empty value among fields.
// Every record lands in exactly one bucket, so counts sum to the total.
func Categorize(records []core.Record, fields []string, rules Rules) core.Breakdown {
	counts := make(map[string]int)
	var order []string
	for _, label := range rules.Seed() {
		if _, ok := counts[label]; !ok {
			counts[label] = 0
			order = append(order, label)
		}
	}

	for _, r := range records {
		label := rules.Label(r.Value(fields...))
		if _, ok := counts[label]; !ok {
			order = append(order, label)
		}
		counts[label]++
	}

	total := len(records)
	buckets := make([]core.Bucket, 0, len(order))
	for _, label := range order {
		buckets = append(buckets, core.Bucket{
			Label:      label,
			Count:      counts[label],
			Percentage: Percent(counts[label], total),
		})
	}

	if rules.Sorted() {
		sort.SliceStable(buckets, func(i, j int) bool {
			if buckets[i].Count != buckets[j].Count {
				return buckets[i].Count > buckets[j].Count
			}
			return buckets[i].Label < buckets[j].Label
		})
	}

	return core.Breakdown{Total: total, Buckets: buckets}
}

// Percent formats count/total as a percentage with one decimal place,
// e.g. "15.0%". A zero total yields "0%".
func Percent(count, total int) string {
	if total == 0 {
		return "0%"
	}
	pct := decimal.NewFromInt(int64(count)).Mul(hundred).Div(decimal.NewFromInt(int64(total)))
	return pct.StringFixed(1) + "%"
}
