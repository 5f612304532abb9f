// Package report assembles categorized record sets into the summary document
// mailed after uploads and renders it as plain text and HTML.
package report

import (
	"time"

	"alloctrack/internal/categorize"
	"alloctrack/internal/core"
	"alloctrack/internal/schema"
)

// Summary line labels.
const (
	LabelGenC            = "GenC/PA"
	LabelNonGenC         = "Non-GenC"
	LabelBilled          = "Billed"
	LabelAwaitingBilling = "Awaiting Billing"
	LabelNBLForMonth     = "NBL for Month"

	DefaultTitle = "Allocation Summary"
)

// AllocationTotals splits the allocation table into the GenC grade bucket
// and everything else.
type AllocationTotals struct {
	Total   int
	GenC    int
	NonGenC int
}

// NBLBreakdown carries the named NBL category counts and the drill-down of
// the NBL-for-month bucket.
type NBLBreakdown struct {
	Billed          int
	AwaitingBilling int
	NBLForMonth     int
	SubCategories   []core.Bucket
}

// TotalsFromGrades derives AllocationTotals from a grade breakdown.
func TotalsFromGrades(grades core.Breakdown) AllocationTotals {
	genC := grades.Count(categorize.GenCGrade)
	return AllocationTotals{Total: grades.Total, GenC: genC, NonGenC: grades.Total - genC}
}

// BreakdownFromNBL derives the NBL breakdown from the records of the nbl
// family. Sub-categories come from the records labelled NBL for month.
func BreakdownFromNBL(records []core.Record) NBLBreakdown {
	categories := categorize.Categorize(records, schema.CategoryFields, categorize.NBLCategory{})

	var forMonth []core.Record
	rules := categorize.NBLCategory{}
	for _, r := range records {
		if rules.Label(r.Value(schema.CategoryFields...)) == categorize.NBLForMonth {
			forMonth = append(forMonth, r)
		}
	}
	subs := categorize.Categorize(forMonth, schema.SubCategoryFields, categorize.FreeText{})

	return NBLBreakdown{
		Billed:          categories.Count(categorize.Billed),
		AwaitingBilling: categories.Count(categorize.AwaitingBilling),
		NBLForMonth:     categories.Count(categorize.NBLForMonth),
		SubCategories:   subs.Buckets,
	}
}

// BuildSummary lays out the fixed summary shape. Every percentage, nested
// lines included, is against the allocation grand total.
func BuildSummary(totals AllocationTotals, nbl NBLBreakdown) core.SummaryDocument {
	total := totals.Total
	line := func(label string, count int) core.SummaryLine {
		return core.SummaryLine{Label: label, Count: count, Percentage: categorize.Percent(count, total)}
	}

	forMonth := line(LabelNBLForMonth, nbl.NBLForMonth)
	for _, sub := range nbl.SubCategories {
		forMonth.Children = append(forMonth.Children, line(sub.Label, sub.Count))
	}

	nonGenC := line(LabelNonGenC, totals.NonGenC)
	nonGenC.Children = []core.SummaryLine{
		line(LabelBilled, nbl.Billed),
		line(LabelAwaitingBilling, nbl.AwaitingBilling),
		forMonth,
	}

	return core.SummaryDocument{
		Title: DefaultTitle,
		Total: total,
		Lines: []core.SummaryLine{line(LabelGenC, totals.GenC), nonGenC},
	}
}

// Stamp returns doc with its generation time set.
func Stamp(doc core.SummaryDocument, at time.Time) core.SummaryDocument {
	doc.GeneratedAt = at
	return doc
}
