package http

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseBuilder_JSON(t *testing.T) {
	rr := httptest.NewRecorder()
	NewResponse().Status(http.StatusCreated).Header("X-Test", "1").JSON(map[string]int{"n": 2}).Write(rr)

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("X-Test"))
	assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"n":2}`, rr.Body.String())
}

func TestResponseBuilder_EncodeFailure(t *testing.T) {
	rr := httptest.NewRecorder()
	NewResponse().JSON(math.Inf(1)).Write(rr)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestResponseBuilder_Bodies(t *testing.T) {
	rr := httptest.NewRecorder()
	NewResponse().BodyText("hello").Write(rr)
	assert.Equal(t, "text/plain; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Equal(t, "hello", rr.Body.String())

	rr = httptest.NewRecorder()
	NewResponse().BodyHTML("<p>x</p>").Write(rr)
	assert.Equal(t, "text/html; charset=utf-8", rr.Header().Get("Content-Type"))
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name   string
		b      *ResponseBuilder
		status int
	}{
		{"bad request", BadRequestError("missing rows"), http.StatusBadRequest},
		{"not found", NotFoundError("unknown family"), http.StatusNotFound},
		{"internal", InternalServerError("boom"), http.StatusInternalServerError},
		{"method", MethodNotAllowedError("GET"), http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			tt.b.Write(rr)
			assert.Equal(t, tt.status, rr.Code)

			var body errorBody
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.NotEmpty(t, body.Error)
		})
	}

	rr := httptest.NewRecorder()
	MethodNotAllowedError("GET, POST").Write(rr)
	assert.Equal(t, "GET, POST", rr.Header().Get("Allow"))
}
