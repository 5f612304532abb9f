// Package services orchestrates ingestion, analytics, events and mail on top
// of the snapshot store.
package services

import (
	"context"
	"errors"
	"fmt"

	"alloctrack/internal/amqp"
	"alloctrack/internal/core"
	"alloctrack/internal/ingest"
	"alloctrack/internal/log"
	"alloctrack/internal/metrics"
	"alloctrack/internal/schema"
	"alloctrack/internal/sheets"
)

// Pipeline is the ingestion surface the upload service drives.
type Pipeline interface {
	Upload(ctx context.Context, req ingest.UploadRequest) (core.UploadResult, error)
	Clear(ctx context.Context, f schema.Family) (int64, error)
}

// Publisher announces accepted uploads.
type Publisher interface {
	PublishUploadCompleted(ctx context.Context, msg *amqp.UploadCompletedMessage) error
}

// Invalidator drops derived read models of a family.
type Invalidator interface {
	Invalidate(f schema.Family)
}

// UploadMetrics counts uploads.
type UploadMetrics interface {
	RecordUpload(family, outcome string, received, dropped, inserted, failed int)
}

// UploadService saves uploads through the pipeline, then refreshes caches
// and publishes an event. Event failures never fail the upload.
type UploadService struct {
	pipeline  Pipeline
	publisher Publisher
	cache     Invalidator
	metrics   UploadMetrics
	logger    *log.Logger
}

// NewUploadService wires the upload path. publisher, cache and m may be nil.
func NewUploadService(pipeline Pipeline, publisher Publisher, cache Invalidator, m UploadMetrics, logger *log.Logger) *UploadService {
	if logger == nil {
		logger = log.Discard()
	}
	return &UploadService{
		pipeline:  pipeline,
		publisher: publisher,
		cache:     cache,
		metrics:   m,
		logger:    logger.WithComponent(log.ComponentIngest),
	}
}

// Upload runs one upload end to end.
func (s *UploadService) Upload(ctx context.Context, req ingest.UploadRequest) (core.UploadResult, error) {
	if f, err := parseFamily(req.Family); err == nil {
		req.Family = f
	}
	res, err := s.pipeline.Upload(ctx, req)
	if err != nil {
		s.record(req.Family, outcomeOf(err), core.UploadResult{})
		return core.UploadResult{}, err
	}
	s.record(req.Family, metrics.OutcomeSuccess, res)

	if s.cache != nil {
		s.cache.Invalidate(req.Family)
	}

	if err := s.publish(ctx, req.Family, res); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish upload event",
			log.NewFields().WithUpload(string(req.Family), res.FileName, res.BatchID).WithError(err).ToSlice()...)
	}
	return res, nil
}

// Import reads a whole row source and uploads it to family f.
func (s *UploadService) Import(ctx context.Context, f schema.Family, src sheets.RowSource) (core.UploadResult, error) {
	tbl, err := src.ReadRows(ctx)
	if err != nil {
		return core.UploadResult{}, fmt.Errorf("read rows: %w", err)
	}
	return s.Upload(ctx, ingest.UploadRequest{
		Family:   f,
		FileName: tbl.Name,
		Headers:  tbl.Headers,
		Rows:     tbl.Rows,
	})
}

// Clear empties a family table.
func (s *UploadService) Clear(ctx context.Context, f schema.Family) (int64, error) {
	if parsed, err := parseFamily(f); err == nil {
		f = parsed
	}
	n, err := s.pipeline.Clear(ctx, f)
	if err != nil {
		return 0, err
	}
	if s.cache != nil {
		s.cache.Invalidate(f)
	}
	return n, nil
}

func (s *UploadService) publish(ctx context.Context, f schema.Family, res core.UploadResult) error {
	if s.publisher == nil {
		s.logger.WarnContext(ctx, "Upload events disabled, skipping publish", log.FieldBatchID, res.BatchID)
		return nil
	}
	return s.publisher.PublishUploadCompleted(ctx, amqp.NewUploadCompletedMessage(f, res))
}

func (s *UploadService) record(f schema.Family, outcome string, res core.UploadResult) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordUpload(string(f), outcome, res.TotalReceived, res.DroppedIncomplete, res.InsertedCount, res.FailedRows)
}

func outcomeOf(err error) string {
	var vErr *core.ValidationError
	switch {
	case errors.Is(err, core.ErrUnknownFamily),
		errors.Is(err, core.ErrMissingRows),
		errors.Is(err, core.ErrMissingHeaders),
		errors.As(err, &vErr):
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeError
	}
}
