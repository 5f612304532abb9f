package core

import (
	"errors"
	"testing"

	"alloctrack/internal/schema"
)

func TestRecordValue(t *testing.T) {
	r := Record{Fields: map[string]string{"A": "  ", "B": " BFD ", "C": "NBL"}}
	if got := r.Value("A", "B", "C"); got != "BFD" {
		t.Fatalf("Value = %q, want BFD", got)
	}
	if got := r.Value("missing"); got != "" {
		t.Fatalf("Value(missing) = %q, want empty", got)
	}
}

func TestUploadBatchValidate(t *testing.T) {
	cases := []struct {
		name string
		b    UploadBatch
		ok   bool
	}{
		{"valid", UploadBatch{ID: "b1", Family: schema.Allocation, TotalRows: 2, InsertedRows: 2}, true},
		{"unknown family", UploadBatch{ID: "b1", Family: "payroll"}, false},
		{"empty id", UploadBatch{Family: schema.NBL}, false},
		{"inserted exceeds total", UploadBatch{ID: "b1", Family: schema.NBL, TotalRows: 1, InsertedRows: 2}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.b.Validate()
			if tc.ok && err != nil {
				t.Fatalf("expected ok, got %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("expected error")
			}
		})
	}

	err := UploadBatch{ID: "b1", Family: "payroll"}.Validate()
	if !errors.Is(err, ErrUnknownFamily) {
		t.Fatalf("expected ErrUnknownFamily, got %v", err)
	}
	var ve *ValidationError
	if !errors.As(UploadBatch{Family: schema.NBL}.Validate(), &ve) || ve.Field != "batch id" {
		t.Fatalf("expected ValidationError on batch id, got %v", ve)
	}
}

func TestBreakdownLookups(t *testing.T) {
	b := Breakdown{Total: 3, Buckets: []Bucket{{Label: "Billable", Count: 2}, {Label: "Unknown", Count: 1}}}
	if b.Count("Billable") != 2 || b.Count("NonBillable") != 0 {
		t.Fatalf("unexpected counts: %+v", b.Stats())
	}
	stats := b.Stats()
	if len(stats) != 2 || stats["Unknown"] != 1 {
		t.Fatalf("Stats = %v", stats)
	}
}
