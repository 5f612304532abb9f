package http

import (
	"errors"
	"net/http"
	"strings"

	"alloctrack/internal/core"
	"alloctrack/internal/schema"
	"alloctrack/internal/sheets"
	"alloctrack/internal/storage"
)

// parseFamily resolves the {family} path segment.
func parseFamily(r *http.Request) (schema.Family, error) {
	f, err := schema.Parse(r.PathValue("family"))
	if err != nil {
		return "", core.ErrUnknownFamily
	}
	return f, nil
}

// errorFor maps a service error onto the failure envelope. Internal errors
// are reported with a generic message.
func errorFor(err error) *ResponseBuilder {
	var vErr *core.ValidationError
	switch {
	case errors.Is(err, core.ErrUnknownFamily):
		return NotFoundError(err.Error())
	case errors.Is(err, core.ErrMissingRows),
		errors.Is(err, core.ErrMissingHeaders),
		errors.Is(err, core.ErrEmptyRecipients),
		errors.Is(err, sheets.ErrNoHeader),
		errors.As(err, &vErr):
		return BadRequestError(err.Error())
	case errors.Is(err, ErrBodyTooLarge):
		return ErrorResponse(http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, storage.ErrPersist):
		return InternalServerError("failed to persist data")
	default:
		return InternalServerError("internal error")
	}
}

// isClientError reports whether err was caused by the request rather than
// the server.
func isClientError(err error) bool {
	var vErr *core.ValidationError
	return errors.Is(err, core.ErrUnknownFamily) ||
		errors.Is(err, core.ErrMissingRows) ||
		errors.Is(err, core.ErrMissingHeaders) ||
		errors.Is(err, core.ErrEmptyRecipients) ||
		errors.Is(err, sheets.ErrNoHeader) ||
		errors.Is(err, ErrBodyTooLarge) ||
		errors.As(err, &vErr)
}

// sanitizeInput removes potentially dangerous characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}
