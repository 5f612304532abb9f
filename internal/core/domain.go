package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"alloctrack/internal/schema"
)

type (
	// Record is one stored business row. Fields holds canonical columns only.
	Record struct {
		ID     int64
		Fields map[string]string
		Meta   RecordMeta
	}

	// RecordMeta is the upload bookkeeping attached to every stored row.
	RecordMeta struct {
		BatchID    string
		SourceFile string
		RowIndex   int
		UploadedAt time.Time
	}

	// UploadBatch describes one accepted upload.
	UploadBatch struct {
		ID              string        `json:"id"`
		Family          schema.Family `json:"family"`
		FileName        string        `json:"fileName"`
		UploadedAt      time.Time     `json:"uploadedAt"`
		TotalRows       int           `json:"totalRows"`
		InsertedRows    int           `json:"insertedRows"`
		AcceptedHeaders []string      `json:"acceptedHeaders"`
		IgnoredHeaders  []string      `json:"ignoredHeaders"`
	}

	// UploadResult is returned to the uploader.
	UploadResult struct {
		InsertedCount    int
		TotalReceived    int
		ValidColumnCount int
		IgnoredHeaders   []string

		BatchID           string
		FileName          string
		UploadedAt        time.Time
		AcceptedHeaders   []string
		DroppedIncomplete int
		FailedRows        int
		UnparsedDates     int
	}

	// LastUpload identifies the batch currently held by a table.
	LastUpload struct {
		FileName  string    `json:"fileName"`
		Timestamp time.Time `json:"timestamp"`
	}

	// DashboardStats is the dashboard payload for one family.
	DashboardStats struct {
		TotalRecords  int            `json:"totalRecords"`
		CategoryStats map[string]int `json:"categoryStats"`
		LastUpload    *LastUpload    `json:"lastUpload"`
	}
)

var (
	ErrUnknownFamily   = errors.New("unknown record family")
	ErrMissingRows     = errors.New("missing rows")
	ErrMissingHeaders  = errors.New("missing headers")
	ErrEmptyRecipients = errors.New("no mail recipients")
)

// ValidationError reports a rejected request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Value returns the first non-empty value among fields, trimmed.
func (r Record) Value(fields ...string) string {
	for _, f := range fields {
		if v := strings.TrimSpace(r.Fields[f]); v != "" {
			return v
		}
	}
	return ""
}

// Validate checks the batch against the registry.
func (b UploadBatch) Validate() error {
	if _, err := schema.Parse(string(b.Family)); err != nil {
		return fmt.Errorf("%w: %q", ErrUnknownFamily, b.Family)
	}
	if b.ID == "" {
		return &ValidationError{Field: "batch id", Reason: "empty"}
	}
	if b.InsertedRows > b.TotalRows {
		return &ValidationError{Field: "inserted rows", Reason: "exceeds total rows"}
	}
	return nil
}
