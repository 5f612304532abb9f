package google

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"alloctrack/internal/sheets"
)

func TestNewFromEnv_MissingSpreadsheetID(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "")

	_, err := NewFromEnv(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, "missing GOOGLE_SPREADSHEET_ID", err.Error())
}

func TestNewFromEnv_MissingRange(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "sheet-id")
	t.Setenv("GOOGLE_SHEET_RANGE", "")

	_, err := NewFromEnv(context.Background(), nil)
	assert.EqualError(t, err, "missing GOOGLE_SHEET_RANGE")
}

func TestNewFromEnv_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "sheet-id")
	t.Setenv("GOOGLE_SHEET_RANGE", "Allocations!A1:Z")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := NewFromEnv(context.Background(), nil)
	assert.ErrorContains(t, err, "missing service account credentials")
}

func fakeSheets(t *testing.T, handler http.HandlerFunc) *gsheet.Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()),
		goption.WithoutAuthentication())
	require.NoError(t, err)
	return svc
}

func TestClient_ReadRows(t *testing.T) {
	var gotQuery string
	svc := fakeSheets(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"range":"Allocations!A1:C3","majorDimension":"ROWS","values":[
			["AssociateID","Grade","AllocationStartDate"],
			["1","PA",45366],
			["2","SA"]
		]}`)
	})

	tbl, err := New(svc, "sheet-id", "'Allocations'!A1:C", nil).ReadRows(context.Background())
	require.NoError(t, err)

	assert.Contains(t, gotQuery, "valueRenderOption=UNFORMATTED_VALUE")
	assert.Equal(t, "Allocations", tbl.Name)
	assert.Equal(t, []string{"AssociateID", "Grade", "AllocationStartDate"}, tbl.Headers)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, 45366.0, tbl.Rows[0]["AllocationStartDate"])
	assert.Nil(t, tbl.Rows[1]["AllocationStartDate"])
}

func TestClient_ReadRowsEmptySheet(t *testing.T) {
	svc := fakeSheets(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"range":"Empty!A1:Z"}`)
	})

	_, err := New(svc, "sheet-id", "Empty!A1:Z", nil).ReadRows(context.Background())
	assert.ErrorIs(t, err, sheets.ErrNoHeader)
}

func TestClient_ReadRowsAPIError(t *testing.T) {
	svc := fakeSheets(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"denied"}}`, http.StatusForbidden)
	})

	_, err := New(svc, "sheet-id", "A1:Z", nil).ReadRows(context.Background())
	assert.ErrorContains(t, err, "read A1:Z")
}

func TestClient_NilService(t *testing.T) {
	_, err := (&Client{}).ReadRows(context.Background())
	assert.Error(t, err)
}

func TestWithRange(t *testing.T) {
	c := New(nil, "id", "A!A1:Z", nil)
	assert.Same(t, c, c.WithRange(" "))
	other := c.WithRange("B!A1:Z")
	assert.Equal(t, "B!A1:Z", other.readRange)
	assert.Equal(t, "A!A1:Z", c.readRange)
}

func TestSheetName(t *testing.T) {
	assert.Equal(t, "My Tab", sheetName("'My Tab'!A1:Z"))
	assert.Equal(t, "A1:Z", sheetName("A1:Z"))
}
