package categorize

import "strings"

// Bucket labels.
const (
	Billable    = "Billable"
	NonBillable = "NonBillable"
	Unknown     = "Unknown"

	GenCGrade = "PAT,PA,A"

	NBLForMonth     = "NBL for month"
	AwaitingBilling = "Awaiting Billing"
	NBLPlain        = "NBL"
	Billed          = "Billed"
)

// BillingStatus buckets billing codes: BFD and BTM are billable, NBL is not,
// anything else is unknown.
type BillingStatus struct{}

func (BillingStatus) Label(raw string) string {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "BFD", "BTM":
		return Billable
	case "NBL":
		return NonBillable
	default:
		return Unknown
	}
}

func (BillingStatus) Seed() []string { return []string{Billable, NonBillable, Unknown} }
func (BillingStatus) Sorted() bool   { return false }

type relabel struct {
	from, to string
}

// gradeRelabels collapses the entry grades into one bucket. Matches are exact.
var gradeRelabels = []relabel{
	{"PAT", GenCGrade},
	{"PA", GenCGrade},
	{"A", GenCGrade},
}

// Grade buckets grade descriptions, relabeling the entry grades and passing
// every other value through.
type Grade struct{}

func (Grade) Label(raw string) string {
	v := strings.TrimSpace(raw)
	if v == "" {
		return Unknown
	}
	for _, r := range gradeRelabels {
		if v == r.from {
			return r.to
		}
	}
	return v
}

func (Grade) Seed() []string { return nil }
func (Grade) Sorted() bool   { return true }

// NBLCategory buckets free-text NBL categories. The first matching rule wins.
type NBLCategory struct{}

func (NBLCategory) Label(raw string) string {
	v := strings.TrimSpace(raw)
	lower := strings.ToLower(v)
	switch {
	case v == "":
		return Unknown
	case strings.Contains(lower, "nbl") && strings.Contains(lower, "month"):
		return NBLForMonth
	case strings.Contains(lower, "awaiting") && strings.Contains(lower, "bill"):
		return AwaitingBilling
	case lower == "nbl":
		return NBLPlain
	case lower == "billed":
		return Billed
	default:
		return v
	}
}

func (NBLCategory) Seed() []string { return nil }
func (NBLCategory) Sorted() bool   { return true }

// FreeText buckets by the trimmed value itself.
type FreeText struct{}

func (FreeText) Label(raw string) string {
	if v := strings.TrimSpace(raw); v != "" {
		return v
	}
	return Unknown
}

func (FreeText) Seed() []string { return nil }
func (FreeText) Sorted() bool   { return true }
