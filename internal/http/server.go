package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"alloctrack/internal/core"
	"alloctrack/internal/ingest"
	"alloctrack/internal/log"
	"alloctrack/internal/mail"
	"alloctrack/internal/schema"
	"alloctrack/internal/sheets"
)

// Uploads is the write side the API drives.
type Uploads interface {
	Upload(ctx context.Context, req ingest.UploadRequest) (core.UploadResult, error)
	Import(ctx context.Context, f schema.Family, src sheets.RowSource) (core.UploadResult, error)
	Clear(ctx context.Context, f schema.Family) (int64, error)
}

// Analytics is the read side the API drives.
type Analytics interface {
	Dashboard(ctx context.Context, f schema.Family) (core.DashboardStats, error)
	Grades(ctx context.Context) (core.Breakdown, error)
	Summary(ctx context.Context) (core.SummaryDocument, error)
	SendSummary(ctx context.Context, to []string) (mail.Receipt, error)
	ListUploads(ctx context.Context, f schema.Family, limit int) ([]core.UploadBatch, error)
}

// SheetOpener returns a row source for the given range; an empty range
// means the configured one.
type SheetOpener func(rng string) sheets.RowSource

// Deps carries everything the server needs. Sheets, Ready, Metrics and
// Security are optional.
type Deps struct {
	Uploads   Uploads
	Analytics Analytics
	Sheets    SheetOpener
	Ready     func(ctx context.Context) error
	Metrics   http.Handler
	Security  SecurityRecorder
	Logger    *log.Logger

	MaxUploadBytes int64
	RateLimit      int // mutating requests per client per minute
}

const (
	defaultMaxUploadBytes = 32 << 20
	defaultRateLimit      = 60
	defaultUploadsLimit   = 50
)

type Server struct {
	http.Server
	deps        Deps
	logger      *log.Logger
	rateLimiter *rateLimiter

	shutdownOnce sync.Once
}

// NewServer configures routes, returning a ready-to-run http.Server.
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = log.Discard()
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = defaultMaxUploadBytes
	}
	if deps.RateLimit <= 0 {
		deps.RateLimit = defaultRateLimit
	}

	mux := http.NewServeMux()
	s := &Server{
		deps:        deps,
		logger:      deps.Logger.WithComponent(log.ComponentHTTP),
		rateLimiter: newRateLimiter(deps.RateLimit),
	}
	s.Server = http.Server{
		Addr:    addr,
		Handler: log.Middleware(s.logger)(s.withSecurity(mux)),
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics)
	}

	mux.HandleFunc("POST /api/{family}/upload", s.handleUpload)
	mux.HandleFunc("DELETE /api/{family}/records", s.handleClear)
	mux.HandleFunc("POST /api/{family}/import/sheets", s.handleSheetImport)
	mux.HandleFunc("GET /api/{family}/dashboard", s.handleDashboard)
	mux.HandleFunc("GET /api/{family}/uploads", s.handleUploads)
	mux.HandleFunc("GET /api/allocation/grades", s.handleGrades)
	mux.HandleFunc("GET /api/report/summary", s.handleSummary)
	mux.HandleFunc("POST /api/report/send", s.handleSend)

	return s
}

// withSecurity adds security headers, flags suspicious requests, rate limits
// mutating requests and caps request bodies.
func (s *Server) withSecurity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		clientIP := extractClientIP(r)

		if detectSuspiciousRequest(r) {
			log.FromContext(ctx).WarnContext(ctx, "Suspicious request",
				log.FieldClientIP, clientIP,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				"user_agent", r.Header.Get("User-Agent"))
			s.recordSecurity(eventSuspicious)
		}

		if (r.Method == http.MethodPost || r.Method == http.MethodDelete) && !s.rateLimiter.allow(clientIP) {
			log.FromContext(ctx).WarnContext(ctx, "Rate limit exceeded",
				log.FieldClientIP, clientIP, log.FieldMethod, r.Method, log.FieldPath, r.URL.Path)
			s.recordSecurity(eventRateLimited)
			ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, retry later").
				Header("Retry-After", "60").
				Write(w)
			return
		}

		setSecurityHeaders(w)
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.deps.MaxUploadBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) recordSecurity(event string) {
	if s.deps.Security != nil {
		s.deps.Security.RecordSecurityEvent(event)
	}
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			log.FromContext(ctx).WarnContext(ctx, "Readiness check failed", log.FieldError, err)
			ErrorResponse(http.StatusServiceUnavailable, "not ready").Write(w)
			return
		}
	}
	NewResponse().JSON(map[string]string{"status": "ready"}).Write(w)
}
