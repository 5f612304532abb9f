package http

import (
	"errors"
	"net/http"

	"alloctrack/internal/core"
	"alloctrack/internal/log"
	"alloctrack/internal/report"
)

// uploadResponse is the envelope returned by upload and import endpoints.
type uploadResponse struct {
	Success        bool     `json:"success"`
	InsertedRows   int      `json:"insertedRows"`
	TotalRows      int      `json:"totalRows"`
	IgnoredColumns []string `json:"ignoredColumns,omitempty"`
}

func newUploadResponse(res core.UploadResult) uploadResponse {
	return uploadResponse{
		Success:        true,
		InsertedRows:   res.InsertedCount,
		TotalRows:      res.TotalReceived,
		IgnoredColumns: res.IgnoredHeaders,
	}
}

type clearResponse struct {
	Success     bool  `json:"success"`
	DeletedRows int64 `json:"deletedRows"`
}

type sendRequest struct {
	To []string `json:"to"`
}

type sheetImportRequest struct {
	Range string `json:"range"`
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	logger := log.FromContext(ctx)
	fields := log.NewFields().WithOperation(op).WithError(err).ToSlice()
	if isClientError(err) {
		logger.WarnContext(ctx, "Request rejected", fields...)
	} else {
		logger.ErrorContext(ctx, "Request failed", fields...)
	}
	errorFor(err).Write(w)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	f, err := parseFamily(r)
	if err != nil {
		s.fail(w, r, log.OpUpload, err)
		return
	}
	req, err := NewRequestBodyParser(r).Upload(f)
	if err != nil {
		s.fail(w, r, log.OpUpload, err)
		return
	}
	res, err := s.deps.Uploads.Upload(r.Context(), req)
	if err != nil {
		s.fail(w, r, log.OpUpload, err)
		return
	}
	NewResponse().JSON(newUploadResponse(res)).Write(w)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	f, err := parseFamily(r)
	if err != nil {
		s.fail(w, r, log.OpClear, err)
		return
	}
	n, err := s.deps.Uploads.Clear(r.Context(), f)
	if err != nil {
		s.fail(w, r, log.OpClear, err)
		return
	}
	NewResponse().JSON(clearResponse{Success: true, DeletedRows: n}).Write(w)
}

func (s *Server) handleSheetImport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sheets == nil {
		ErrorResponse(http.StatusServiceUnavailable, "sheets import is not configured").Write(w)
		return
	}
	f, err := parseFamily(r)
	if err != nil {
		s.fail(w, r, log.OpImport, err)
		return
	}
	var body sheetImportRequest
	if err := NewRequestBodyParser(r).DecodeJSON(&body); err != nil {
		s.fail(w, r, log.OpImport, err)
		return
	}
	res, err := s.deps.Uploads.Import(r.Context(), f, s.deps.Sheets(sanitizeInput(body.Range)))
	if err != nil {
		s.fail(w, r, log.OpImport, err)
		return
	}
	NewResponse().JSON(newUploadResponse(res)).Write(w)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	f, err := parseFamily(r)
	if err != nil {
		s.fail(w, r, log.OpDashboard, err)
		return
	}
	stats, err := s.deps.Analytics.Dashboard(r.Context(), f)
	if err != nil {
		s.fail(w, r, log.OpDashboard, err)
		return
	}
	NewResponse().JSON(stats).Write(w)
}

func (s *Server) handleUploads(w http.ResponseWriter, r *http.Request) {
	f, err := parseFamily(r)
	if err != nil {
		s.fail(w, r, log.OpDashboard, err)
		return
	}
	batches, err := s.deps.Analytics.ListUploads(r.Context(), f, ParseLimit(r.URL.Query(), defaultUploadsLimit))
	if err != nil {
		s.fail(w, r, log.OpDashboard, err)
		return
	}
	if batches == nil {
		batches = []core.UploadBatch{}
	}
	NewResponse().JSON(map[string]any{"uploads": batches}).Write(w)
}

func (s *Server) handleGrades(w http.ResponseWriter, r *http.Request) {
	grades, err := s.deps.Analytics.Grades(r.Context())
	if err != nil {
		s.fail(w, r, log.OpDashboard, err)
		return
	}
	NewResponse().JSON(grades).Write(w)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	doc, err := s.deps.Analytics.Summary(r.Context())
	if err != nil {
		s.fail(w, r, log.OpSummary, err)
		return
	}

	switch ParseFormat(r.URL.Query()) {
	case "text":
		NewResponse().BodyText(report.RenderText(doc)).Write(w)
	case "html":
		rendered, err := report.Render(doc)
		if err != nil {
			s.fail(w, r, log.OpSummary, err)
			return
		}
		NewResponse().BodyHTML(rendered.HTML).Write(w)
	default:
		NewResponse().JSON(doc).Write(w)
	}
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var body sendRequest
	if err := NewRequestBodyParser(r).DecodeJSON(&body); err != nil {
		s.fail(w, r, log.OpSend, err)
		return
	}
	to := make([]string, 0, len(body.To))
	for _, addr := range body.To {
		if addr = sanitizeInput(addr); addr != "" {
			to = append(to, addr)
		}
	}

	receipt, err := s.deps.Analytics.SendSummary(r.Context(), to)
	switch {
	case err == nil:
		NewResponse().JSON(receipt).Write(w)
	case errors.Is(err, core.ErrEmptyRecipients):
		NewResponse().Status(http.StatusBadRequest).JSON(receipt).Write(w)
	default:
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Summary delivery failed",
			log.NewFields().WithOperation(log.OpSend).WithError(err).ToSlice()...)
		if receipt.Error == "" {
			receipt.Error = err.Error()
		}
		NewResponse().Status(http.StatusBadGateway).JSON(receipt).Write(w)
	}
}
