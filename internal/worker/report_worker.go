package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"alloctrack/internal/amqp"
	"alloctrack/internal/core"
	"alloctrack/internal/log"
	"alloctrack/internal/mail"
)

// SummarySender mails the current summary report.
type SummarySender interface {
	SendSummary(ctx context.Context, to []string) (mail.Receipt, error)
}

// SenderFactory opens a sender over a fresh view of the data. The returned
// release func is called once the report has been sent.
type SenderFactory func(ctx context.Context) (SummarySender, func() error, error)

// ReportWorker mails the summary report after every accepted upload.
type ReportWorker struct {
	open       SenderFactory
	recipients []string
	logger     *log.Logger

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

// NewReportWorker creates a worker that opens a sender per event through open
// and mails the summary to recipients.
func NewReportWorker(open SenderFactory, recipients []string, logger *log.Logger) *ReportWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &ReportWorker{
		open:       open,
		recipients: recipients,
		logger:     logger.WithComponent(log.ComponentWorker),
		lastSeen:   make(map[string]time.Time),
	}
}

// HandleUploadCompleted processes a single upload event from AMQP. Events
// older than one already reported for the same family are skipped, since
// the report they would trigger has been superseded.
func (w *ReportWorker) HandleUploadCompleted(ctx context.Context, msg *amqp.UploadCompletedMessage) error {
	w.logger.InfoContext(ctx, "Processing upload event",
		log.FieldFamily, msg.Family,
		log.FieldBatchID, msg.BatchID,
		log.FieldRowsInserted, msg.Inserted)

	if w.stale(msg) {
		w.logger.InfoContext(ctx, "Skipping superseded upload event",
			log.FieldFamily, msg.Family,
			log.FieldBatchID, msg.BatchID)
		return nil
	}

	if len(w.recipients) == 0 {
		w.logger.WarnContext(ctx, "No report recipients configured, skipping summary",
			log.FieldBatchID, msg.BatchID)
		return nil
	}

	sender, release, err := w.open(ctx)
	if err != nil {
		return fmt.Errorf("open report data: %w", err)
	}
	defer func() {
		if err := release(); err != nil {
			w.logger.ErrorContext(ctx, "Failed to release report data", log.FieldError, err)
		}
	}()

	receipt, err := sender.SendSummary(ctx, w.recipients)
	if err != nil {
		if errors.Is(err, core.ErrEmptyRecipients) {
			return nil
		}
		return fmt.Errorf("send summary for batch %s: %w", msg.BatchID, err)
	}

	w.markSeen(msg)
	w.logger.InfoContext(ctx, "Summary mailed after upload",
		log.FieldBatchID, msg.BatchID,
		log.FieldMessageID, receipt.MessageID,
		log.FieldRecipients, len(w.recipients))
	return nil
}

func (w *ReportWorker) stale(msg *amqp.UploadCompletedMessage) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	last, ok := w.lastSeen[msg.Family]
	return ok && msg.Timestamp.Before(last)
}

func (w *ReportWorker) markSeen(msg *amqp.UploadCompletedMessage) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if msg.Timestamp.After(w.lastSeen[msg.Family]) {
		w.lastSeen[msg.Family] = msg.Timestamp
	}
}
