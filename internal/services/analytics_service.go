package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"alloctrack/internal/cache"
	"alloctrack/internal/categorize"
	"alloctrack/internal/core"
	"alloctrack/internal/log"
	"alloctrack/internal/mail"
	"alloctrack/internal/report"
	"alloctrack/internal/schema"
)

// RecordReader is the read side of the store.
type RecordReader interface {
	LoadRecords(ctx context.Context, f schema.Family) ([]core.Record, error)
	LastUpload(ctx context.Context, f schema.Family) (*core.LastUpload, error)
	ListUploads(ctx context.Context, f schema.Family, limit int) ([]core.UploadBatch, error)
}

// AnalyticsMetrics counts report deliveries and cache lookups.
type AnalyticsMetrics interface {
	RecordReport(success bool)
	RecordCacheLookup(hit bool)
}

// AnalyticsService derives dashboards and the summary report from stored
// records.
type AnalyticsService struct {
	store      RecordReader
	dashboards cache.Cache[core.DashboardStats]
	mailer     mail.Mailer
	metrics    AnalyticsMetrics
	logger     *log.Logger
	subject    string
	defaultTo  []string
	now        func() time.Time

	// generations counts invalidations per family. A dashboard computed
	// under an older generation is not cached.
	genMu       sync.Mutex
	generations map[schema.Family]uint64
}

// AnalyticsOption configures an AnalyticsService.
type AnalyticsOption func(*AnalyticsService)

// WithDashboardCache caches dashboard payloads per family.
func WithDashboardCache(c cache.Cache[core.DashboardStats]) AnalyticsOption {
	return func(s *AnalyticsService) { s.dashboards = c }
}

// WithMailer sets the report transport and default recipients. An empty
// subject falls back to the summary title.
func WithMailer(m mail.Mailer, subject string, defaultTo []string) AnalyticsOption {
	return func(s *AnalyticsService) {
		s.mailer = m
		s.subject = subject
		s.defaultTo = defaultTo
	}
}

// WithAnalyticsMetrics records report and cache metrics.
func WithAnalyticsMetrics(m AnalyticsMetrics) AnalyticsOption {
	return func(s *AnalyticsService) { s.metrics = m }
}

// WithAnalyticsLogger sets the logger.
func WithAnalyticsLogger(l *log.Logger) AnalyticsOption {
	return func(s *AnalyticsService) { s.logger = l.WithComponent(log.ComponentReport) }
}

// WithAnalyticsClock overrides the report timestamp source.
func WithAnalyticsClock(now func() time.Time) AnalyticsOption {
	return func(s *AnalyticsService) { s.now = now }
}

// NewAnalyticsService creates an analytics service reading from store.
func NewAnalyticsService(store RecordReader, opts ...AnalyticsOption) *AnalyticsService {
	s := &AnalyticsService{
		store:       store,
		logger:      log.Discard(),
		now:         time.Now,
		generations: make(map[schema.Family]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func dashboardKey(f schema.Family) string { return "dashboard:" + string(f) }

// Invalidate implements Invalidator.
func (s *AnalyticsService) Invalidate(f schema.Family) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.generations[f]++
	if s.dashboards != nil {
		s.dashboards.Delete(dashboardKey(f))
	}
}

func (s *AnalyticsService) generation(f schema.Family) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.generations[f]
}

// cacheDashboard stores stats unless f was invalidated after gen was read.
func (s *AnalyticsService) cacheDashboard(f schema.Family, gen uint64, stats core.DashboardStats) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.generations[f] != gen {
		s.logger.Debug("Dashboard superseded by an upload, not caching", log.FieldFamily, f)
		return
	}
	s.dashboards.Set(dashboardKey(f), stats)
}

// Dashboard returns the record count, category stats and last upload of a
// family. Allocation records are grouped by billing status, NBL records by
// NBL category.
func (s *AnalyticsService) Dashboard(ctx context.Context, f schema.Family) (core.DashboardStats, error) {
	f, err := parseFamily(f)
	if err != nil {
		return core.DashboardStats{}, err
	}
	if s.dashboards != nil {
		stats, ok := s.dashboards.Get(dashboardKey(f))
		s.recordLookup(ok)
		if ok {
			return stats, nil
		}
	}

	gen := s.generation(f)
	records, err := s.store.LoadRecords(ctx, f)
	if err != nil {
		return core.DashboardStats{}, err
	}
	last, err := s.store.LastUpload(ctx, f)
	if err != nil {
		return core.DashboardStats{}, err
	}

	var breakdown core.Breakdown
	switch f {
	case schema.NBL:
		breakdown = categorize.Categorize(records, schema.CategoryFields, categorize.NBLCategory{})
	default:
		breakdown = categorize.Categorize(records, schema.BillingStatusFields, categorize.BillingStatus{})
	}

	stats := core.DashboardStats{
		TotalRecords:  breakdown.Total,
		CategoryStats: breakdown.Stats(),
		LastUpload:    last,
	}
	if s.dashboards != nil {
		s.cacheDashboard(f, gen, stats)
	}
	return stats, nil
}

// Grades returns the grade distribution of the allocation table, largest first.
func (s *AnalyticsService) Grades(ctx context.Context) (core.Breakdown, error) {
	records, err := s.store.LoadRecords(ctx, schema.Allocation)
	if err != nil {
		return core.Breakdown{}, err
	}
	return categorize.Categorize(records, schema.GradeFields, categorize.Grade{}), nil
}

// Summary builds the summary document from both families, read concurrently.
func (s *AnalyticsService) Summary(ctx context.Context) (core.SummaryDocument, error) {
	var allocations, nbl []core.Record
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		allocations, err = s.store.LoadRecords(gctx, schema.Allocation)
		return err
	})
	g.Go(func() error {
		var err error
		nbl, err = s.store.LoadRecords(gctx, schema.NBL)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.SummaryDocument{}, fmt.Errorf("load records: %w", err)
	}

	grades := categorize.Categorize(allocations, schema.GradeFields, categorize.Grade{})
	doc := report.BuildSummary(report.TotalsFromGrades(grades), report.BreakdownFromNBL(nbl))
	return report.Stamp(doc, s.now().UTC()), nil
}

// SendSummary mails the current summary to to, or to the default
// recipients when to is empty.
func (s *AnalyticsService) SendSummary(ctx context.Context, to []string) (mail.Receipt, error) {
	if len(to) == 0 {
		to = s.defaultTo
	}
	if len(to) == 0 {
		return mail.Receipt{Error: core.ErrEmptyRecipients.Error()}, core.ErrEmptyRecipients
	}
	if s.mailer == nil {
		err := fmt.Errorf("mail transport not configured")
		return mail.Receipt{Error: err.Error()}, err
	}

	doc, err := s.Summary(ctx)
	if err != nil {
		return mail.Receipt{Error: err.Error()}, err
	}
	msg, err := report.Message(doc, to, s.subject)
	if err != nil {
		return mail.Receipt{Error: err.Error()}, err
	}

	receipt, err := s.mailer.Send(ctx, msg)
	if s.metrics != nil {
		s.metrics.RecordReport(err == nil && receipt.Success)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Summary delivery failed", log.FieldError, err, log.FieldRecipients, len(to))
		return receipt, err
	}
	s.logger.InfoContext(ctx, "Summary sent",
		log.FieldMessageID, receipt.MessageID,
		log.FieldRecipients, len(to),
		"total", doc.Total)
	return receipt, nil
}

// ListUploads returns the upload history of a family, newest first.
func (s *AnalyticsService) ListUploads(ctx context.Context, f schema.Family, limit int) ([]core.UploadBatch, error) {
	f, err := parseFamily(f)
	if err != nil {
		return nil, err
	}
	return s.store.ListUploads(ctx, f, limit)
}

func (s *AnalyticsService) recordLookup(hit bool) {
	if s.metrics != nil {
		s.metrics.RecordCacheLookup(hit)
	}
}

func parseFamily(f schema.Family) (schema.Family, error) {
	parsed, err := schema.Parse(string(f))
	if err != nil {
		return "", fmt.Errorf("%w: %q", core.ErrUnknownFamily, f)
	}
	return parsed, nil
}
