// Package ingest turns raw spreadsheet rows into stored records: header
// whitelisting, completeness filtering, date normalization, projection and a
// replace-all write of the family table.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"alloctrack/internal/core"
	"alloctrack/internal/log"
	"alloctrack/internal/schema"
	"alloctrack/internal/storage"
)

// Store is the persistence the pipeline writes through.
type Store interface {
	ReplaceRecords(ctx context.Context, batch core.UploadBatch, rows []storage.RecordRow) (storage.ReplaceOutcome, error)
	ClearRecords(ctx context.Context, f schema.Family) (int64, error)
}

// UploadRequest is one spreadsheet upload.
type UploadRequest struct {
	Family   schema.Family
	FileName string
	Headers  []string
	Rows     []map[string]any
}

// Validate checks the request shape before any processing.
func (r UploadRequest) Validate() error {
	if _, err := parseFamily(r.Family); err != nil {
		return err
	}
	if r.Rows == nil {
		return core.ErrMissingRows
	}
	if r.Headers == nil {
		return core.ErrMissingHeaders
	}
	return nil
}

// Pipeline runs uploads. Uploads for the same family never interleave.
type Pipeline struct {
	store  Store
	logger *log.Logger
	now    func() time.Time
	newID  func() string

	mu    sync.Mutex
	locks map[schema.Family]*sync.Mutex
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(l *log.Logger) Option {
	return func(p *Pipeline) { p.logger = l.WithComponent(log.ComponentIngest) }
}

// WithClock overrides the upload timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithIDs overrides the batch id generator.
func WithIDs(newID func() string) Option {
	return func(p *Pipeline) { p.newID = newID }
}

// New builds a pipeline writing to store.
func New(store Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:  store,
		logger: log.Discard(),
		now:    time.Now,
		newID:  uuid.NewString,
		locks:  make(map[schema.Family]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) lock(f schema.Family) func() {
	p.mu.Lock()
	l, ok := p.locks[f]
	if !ok {
		l = &sync.Mutex{}
		p.locks[f] = l
	}
	p.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Upload replaces the family table with the rows of req that survive the
// completeness filter, projected onto the accepted headers.
func (p *Pipeline) Upload(ctx context.Context, req UploadRequest) (core.UploadResult, error) {
	if err := req.Validate(); err != nil {
		return core.UploadResult{}, err
	}
	req.Family, _ = parseFamily(req.Family)
	unlock := p.lock(req.Family)
	defer unlock()

	headers := PartitionHeaders(req.Family, req.Headers)
	if len(headers.Ignored) > 0 {
		p.logger.InfoContext(ctx, "Ignoring headers outside the schema",
			log.FieldFamily, req.Family,
			log.FieldFileName, req.FileName,
			log.FieldIgnored, headers.Ignored)
	}

	rows := make([]storage.RecordRow, 0, len(req.Rows))
	dropped, unparsed := 0, 0
	for i, raw := range req.Rows {
		if !IsComplete(raw) {
			dropped++
			continue
		}
		proj := project(headers, raw)
		unparsed += proj.unparsed
		rows = append(rows, storage.RecordRow{Index: i, Values: proj.values})
	}

	batch := core.UploadBatch{
		ID:              p.newID(),
		Family:          req.Family,
		FileName:        req.FileName,
		UploadedAt:      p.now().UTC(),
		TotalRows:       len(req.Rows),
		AcceptedHeaders: headers.Valid,
		IgnoredHeaders:  headers.Ignored,
	}
	if err := batch.Validate(); err != nil {
		return core.UploadResult{}, err
	}

	outcome, err := p.store.ReplaceRecords(ctx, batch, rows)
	if err != nil {
		p.logger.ErrorContext(ctx, "Upload failed",
			log.NewFields().WithUpload(string(req.Family), req.FileName, batch.ID).WithError(err).ToSlice()...)
		return core.UploadResult{}, fmt.Errorf("store %s upload: %w", req.Family, err)
	}

	result := core.UploadResult{
		InsertedCount:     outcome.Inserted,
		TotalReceived:     len(req.Rows),
		ValidColumnCount:  len(headers.Valid),
		IgnoredHeaders:    nonNil(headers.Ignored),
		BatchID:           batch.ID,
		FileName:          batch.FileName,
		UploadedAt:        batch.UploadedAt,
		AcceptedHeaders:   nonNil(headers.Valid),
		DroppedIncomplete: dropped,
		FailedRows:        outcome.Failed,
		UnparsedDates:     unparsed,
	}

	p.logger.InfoContext(ctx, "Upload accepted",
		log.FieldFamily, req.Family,
		log.FieldFileName, req.FileName,
		log.FieldBatchID, batch.ID,
		log.FieldRowsReceived, result.TotalReceived,
		log.FieldRowsInserted, result.InsertedCount,
		log.FieldRowsDropped, result.DroppedIncomplete,
		log.FieldRowsFailed, result.FailedRows,
		log.FieldValidColumns, result.ValidColumnCount,
		log.FieldUnparsedDates, result.UnparsedDates)

	return result, nil
}

// Clear empties the family table.
func (p *Pipeline) Clear(ctx context.Context, f schema.Family) (int64, error) {
	f, err := parseFamily(f)
	if err != nil {
		return 0, err
	}
	unlock := p.lock(f)
	defer unlock()

	n, err := p.store.ClearRecords(ctx, f)
	if err != nil {
		return 0, err
	}
	p.logger.InfoContext(ctx, "Family cleared", log.FieldFamily, f, "deleted", n)
	return n, nil
}

// parseFamily returns the canonical spelling of f.
func parseFamily(f schema.Family) (schema.Family, error) {
	parsed, err := schema.Parse(string(f))
	if err != nil {
		return "", fmt.Errorf("%w: %q", core.ErrUnknownFamily, f)
	}
	return parsed, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
