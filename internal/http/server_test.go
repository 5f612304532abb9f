package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alloctrack/internal/core"
	"alloctrack/internal/ingest"
	"alloctrack/internal/mail"
	"alloctrack/internal/metrics"
	"alloctrack/internal/schema"
	"alloctrack/internal/services"
	"alloctrack/internal/sheets"
	"alloctrack/internal/sheets/memory"
	"alloctrack/internal/storage"
)

type testEnv struct {
	srv     *Server
	store   *storage.Store
	metrics *metrics.Metrics
}

func newTestEnv(t *testing.T, opener SheetOpener) *testEnv {
	t.Helper()
	ctx := context.Background()
	store, err := storage.Open(ctx, filepath.Join(t.TempDir(), "snapshot.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	m, err := metrics.New()
	require.NoError(t, err)

	analytics := services.NewAnalyticsService(store,
		services.WithMailer(mail.NewLogMailer(nil), "", nil),
		services.WithAnalyticsMetrics(m))
	uploads := services.NewUploadService(ingest.New(store), nil, analytics, m, nil)

	srv := NewServer(":0", Deps{
		Uploads:   uploads,
		Analytics: analytics,
		Sheets:    opener,
		Ready: func(ctx context.Context) error {
			_, err := store.Query(ctx, "SELECT 1")
			return err
		},
		Metrics:  m.Handler(),
		Security: m,
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, store: store, metrics: m}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rr := env.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rr.Code, path)
	}

	rr := env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestReadyFailsWhenStoreClosed(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, env.store.Close())
	rr := env.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestUploadEnvelope(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(t, http.MethodPost, "/api/allocation/upload",
		`{"fileName":"a.xlsx","headers":["AssociateName","ProjectBillability","Shoe Size"],
		  "rows":[{"AssociateName":"X","ProjectBillability":"BFD","Shoe Size":"42"},{"AssociateName":"","ProjectBillability":""}]}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	assert.JSONEq(t, `{"success":true,"insertedRows":1,"totalRows":2,"ignoredColumns":["Shoe Size"]}`, rr.Body.String())

	rr = env.do(t, http.MethodGet, "/api/allocation/dashboard", "")
	require.Equal(t, http.StatusOK, rr.Code)
	stats := decode[core.DashboardStats](t, rr)
	assert.Equal(t, 1, stats.TotalRecords)
	assert.Equal(t, map[string]int{"Billable": 1, "NonBillable": 0, "Unknown": 0}, stats.CategoryStats)
	require.NotNil(t, stats.LastUpload)
	assert.Equal(t, "a.xlsx", stats.LastUpload.FileName)
}

func TestUploadOmitsEmptyIgnoredColumns(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(t, http.MethodPost, "/api/nbl/upload", `{"headers":["Category"],"rows":[{"Category":"Billed"}]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "ignoredColumns")
}

func TestUploadCSV(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/nbl/upload?fileName=nbl.csv",
		strings.NewReader("Category,SubCategory\nNBL for month,Bench\nBilled,\n"))
	req.Header.Set("Content-Type", "text/csv")
	rr := httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, 2, decode[uploadResponse](t, rr).InsertedRows)
}

func TestUploadValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	tests := []struct {
		name   string
		path   string
		body   string
		status int
		errMsg string
	}{
		{"missing rows", "/api/nbl/upload", `{"headers":["a"]}`, http.StatusBadRequest, "missing rows"},
		{"missing headers", "/api/nbl/upload", `{"rows":[]}`, http.StatusBadRequest, "missing headers"},
		{"bad json", "/api/nbl/upload", `{`, http.StatusBadRequest, "invalid JSON"},
		{"unknown family", "/api/payroll/upload", `{"headers":[],"rows":[]}`, http.StatusNotFound, "unknown record family"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, rr.Code)
			body := decode[errorBody](t, rr)
			assert.False(t, body.Success)
			assert.Contains(t, body.Error, tt.errMsg)
		})
	}
}

func TestUploadMalformedCSVIsBadRequest(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/allocation/upload", strings.NewReader("AssociateID\n\"open"))
	req.Header.Set("Content-Type", "text/csv")
	rr := httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	body := decode[errorBody](t, rr)
	assert.False(t, body.Success)
	assert.Contains(t, body.Error, "invalid body")
}

func TestUploadBodyLimit(t *testing.T) {
	ctx := context.Background()
	store, err := storage.Open(ctx, filepath.Join(t.TempDir(), "snapshot.sqlite"))
	require.NoError(t, err)
	defer store.Close()

	srv := NewServer(":0", Deps{
		Uploads:        services.NewUploadService(ingest.New(store), nil, nil, nil, nil),
		Analytics:      services.NewAnalyticsService(store),
		MaxUploadBytes: 32,
	})
	defer srv.Shutdown(ctx)

	req := httptest.NewRequest(http.MethodPost, "/api/nbl/upload",
		strings.NewReader(`{"headers":["Category"],"rows":[{"Category":"`+strings.Repeat("x", 64)+`"}]}`))
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestClearRecords(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(t, http.MethodPost, "/api/nbl/upload", `{"headers":["Category"],"rows":[{"Category":"Billed"},{"Category":"NBL"}]}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, http.MethodDelete, "/api/nbl/records", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success":true,"deletedRows":2}`, rr.Body.String())

	stats := decode[core.DashboardStats](t, env.do(t, http.MethodGet, "/api/nbl/dashboard", ""))
	assert.Zero(t, stats.TotalRecords)
	assert.Nil(t, stats.LastUpload)
}

func TestMethodMismatch(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(t, http.MethodGet, "/api/nbl/upload", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestGradesAndUploads(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(t, http.MethodPost, "/api/allocation/upload",
		`{"fileName":"g.csv","headers":["Grade"],"rows":[{"Grade":"PA"},{"Grade":"PAT"},{"Grade":"SA"}]}`)
	require.Equal(t, http.StatusOK, rr.Code)

	grades := decode[core.Breakdown](t, env.do(t, http.MethodGet, "/api/allocation/grades", ""))
	assert.Equal(t, 3, grades.Total)
	require.NotEmpty(t, grades.Buckets)
	assert.Equal(t, core.Bucket{Label: "PAT,PA,A", Count: 2, Percentage: "66.7%"}, grades.Buckets[0])

	uploads := decode[map[string][]core.UploadBatch](t, env.do(t, http.MethodGet, "/api/allocation/uploads?limit=5", ""))
	require.Len(t, uploads["uploads"], 1)
	assert.Equal(t, "g.csv", uploads["uploads"][0].FileName)
}

func TestSummaryFormats(t *testing.T) {
	env := newTestEnv(t, nil)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/allocation/upload",
		`{"headers":["Grade"],"rows":[{"Grade":"PA"},{"Grade":"SA"},{"Grade":"M"},{"Grade":"SM"}]}`).Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/nbl/upload",
		`{"headers":["Category","SubCategory"],"rows":[{"Category":"NBL for month","SubCategory":"Bench"}]}`).Code)

	doc := decode[core.SummaryDocument](t, env.do(t, http.MethodGet, "/api/report/summary", ""))
	assert.Equal(t, 4, doc.Total)
	require.Len(t, doc.Lines, 2)
	assert.Equal(t, "25.0%", doc.Lines[0].Percentage)

	rr := env.do(t, http.MethodGet, "/api/report/summary?format=text", "")
	assert.Equal(t, "text/plain; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), "  ↳ NBL for Month: 1 (25.0%)")

	rr = env.do(t, http.MethodGet, "/api/report/summary?format=html", "")
	assert.Equal(t, "text/html; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), "<table")
}

func TestSendSummary(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/api/report/send", `{"to":[]}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.False(t, decode[mail.Receipt](t, rr).Success)

	rr = env.do(t, http.MethodPost, "/api/report/send", `{"to":["ops@example.com"]}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	receipt := decode[mail.Receipt](t, rr)
	assert.True(t, receipt.Success)
	assert.NotEmpty(t, receipt.MessageID)
}

func TestSheetImport(t *testing.T) {
	var gotRange string
	opener := func(rng string) sheets.RowSource {
		gotRange = rng
		return memory.New("Allocations", [][]any{{"AssociateID", "StartDate"}, {"1", 45366.0}})
	}
	env := newTestEnv(t, opener)

	rr := env.do(t, http.MethodPost, "/api/nbl/import/sheets", `{"range":"NBL!A1:Z"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "NBL!A1:Z", gotRange)
	assert.Equal(t, 1, decode[uploadResponse](t, rr).InsertedRows)

	recs, err := env.store.LoadRecords(context.Background(), schema.NBL)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "03/15/2024", recs[0].Fields[schema.ColStartDate])
}

func TestSheetImportDisabled(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(t, http.MethodPost, "/api/nbl/import/sheets", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

type failingUploads struct{ err error }

func (f failingUploads) Upload(context.Context, ingest.UploadRequest) (core.UploadResult, error) {
	return core.UploadResult{}, f.err
}

func (f failingUploads) Import(context.Context, schema.Family, sheets.RowSource) (core.UploadResult, error) {
	return core.UploadResult{}, f.err
}

func (f failingUploads) Clear(context.Context, schema.Family) (int64, error) { return 0, f.err }

func TestPersistFailureIsInternalError(t *testing.T) {
	srv := NewServer(":0", Deps{Uploads: failingUploads{err: errors.Join(storage.ErrPersist, errors.New("disk full"))}})
	defer srv.Shutdown(context.Background())

	req := httptest.NewRequest(http.MethodPost, "/api/nbl/upload", strings.NewReader(`{"headers":[],"rows":[]}`))
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "disk full")
}

func TestRateLimitOnMutations(t *testing.T) {
	srv := NewServer(":0", Deps{Uploads: failingUploads{err: core.ErrMissingRows}, RateLimit: 2})
	defer srv.Shutdown(context.Background())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodDelete, "/api/nbl/records", nil)
		rr := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{http.StatusBadRequest, http.StatusBadRequest, http.StatusTooManyRequests}, codes)
}
