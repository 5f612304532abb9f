// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data:
// upload bodies in JSON or CSV form, small JSON command bodies and query
// parameters.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"alloctrack/internal/core"
	"alloctrack/internal/ingest"
	"alloctrack/internal/schema"
	"alloctrack/internal/sheets/memory"
)

// ErrBodyTooLarge is returned when a request body exceeds the server limit.
var ErrBodyTooLarge = errors.New("request body too large")

// uploadBody is the JSON upload shape. Missing headers or rows stay nil so
// the pipeline can reject them.
type uploadBody struct {
	FileName string           `json:"fileName"`
	Headers  []string         `json:"headers"`
	Rows     []map[string]any `json:"rows"`
}

// RequestBodyParser reads a request body once and decodes it by content type.
type RequestBodyParser struct {
	r           *http.Request
	body        []byte
	contentType string
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{r: r}
	if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err == nil {
		p.contentType = mt
	}
	p.body, p.err = io.ReadAll(r.Body)
	var maxErr *http.MaxBytesError
	if errors.As(p.err, &maxErr) {
		p.err = fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, maxErr.Limit)
	}
	return p
}

// ContentType returns the parsed media type of the request.
func (p *RequestBodyParser) ContentType() string {
	return p.contentType
}

// IsCSV reports whether the body is a CSV document.
func (p *RequestBodyParser) IsCSV() bool {
	return p.contentType == "text/csv"
}

// DecodeJSON unmarshals the body into v. An empty body leaves v untouched.
// A malformed body is a *core.ValidationError.
func (p *RequestBodyParser) DecodeJSON(v any) error {
	if p.err != nil {
		return p.err
	}
	if len(strings.TrimSpace(string(p.body))) == 0 {
		return nil
	}
	if err := json.Unmarshal(p.body, v); err != nil {
		return &core.ValidationError{Field: "body", Reason: "invalid JSON: " + err.Error()}
	}
	return nil
}

// Upload decodes the body as an upload for family f. JSON bodies carry
// {fileName, headers, rows}; CSV bodies take their file name from the
// fileName query parameter or the X-File-Name header.
func (p *RequestBodyParser) Upload(f schema.Family) (ingest.UploadRequest, error) {
	if p.err != nil {
		return ingest.UploadRequest{}, p.err
	}
	if p.IsCSV() {
		name := fileName(p.r)
		src, err := memory.FromCSV(name, strings.NewReader(string(p.body)))
		if err != nil {
			return ingest.UploadRequest{}, &core.ValidationError{Field: "body", Reason: err.Error()}
		}
		tbl, err := src.ReadRows(p.r.Context())
		if err != nil {
			return ingest.UploadRequest{}, &core.ValidationError{Field: "body", Reason: err.Error()}
		}
		return ingest.UploadRequest{Family: f, FileName: name, Headers: tbl.Headers, Rows: tbl.Rows}, nil
	}

	var body uploadBody
	if err := p.DecodeJSON(&body); err != nil {
		return ingest.UploadRequest{}, err
	}
	return ingest.UploadRequest{
		Family:   f,
		FileName: sanitizeInput(body.FileName),
		Headers:  body.Headers,
		Rows:     body.Rows,
	}, nil
}

func fileName(r *http.Request) string {
	if v := sanitizeInput(r.URL.Query().Get("fileName")); v != "" {
		return v
	}
	if v := sanitizeInput(r.Header.Get("X-File-Name")); v != "" {
		return v
	}
	return "upload.csv"
}

// ParseLimit reads a positive limit query parameter, falling back to def.
func ParseLimit(query url.Values, def int) int {
	v := strings.TrimSpace(query.Get("limit"))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// ParseFormat reads the report format query parameter. Unknown values fall
// back to json.
func ParseFormat(query url.Values) string {
	switch f := strings.ToLower(strings.TrimSpace(query.Get("format"))); f {
	case "text", "html":
		return f
	default:
		return "json"
	}
}
