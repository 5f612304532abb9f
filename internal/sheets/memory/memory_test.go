package memory

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alloctrack/internal/sheets"
)

func TestSource_ReadRows(t *testing.T) {
	src := New("static", [][]any{{"A", "B"}, {1.0, "x"}})
	tbl, err := src.ReadRows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, tbl.Headers)
	assert.Equal(t, 1.0, tbl.Rows[0]["A"])
}

func TestSource_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New("static", [][]any{{"A"}}).ReadRows(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFromCSV(t *testing.T) {
	doc := "\ufeffAssociateID,Grade,Start Date\n1, PA,45366\n2,SA\n"
	src, err := FromCSV("alloc.csv", strings.NewReader(doc))
	require.NoError(t, err)

	tbl, err := src.ReadRows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"AssociateID", "Grade", "Start Date"}, tbl.Headers)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, "PA", tbl.Rows[0]["Grade"])
	assert.Equal(t, "45366", tbl.Rows[0]["Start Date"])
	assert.Nil(t, tbl.Rows[1]["Start Date"])
}

func TestFromCSV_Malformed(t *testing.T) {
	_, err := FromCSV("bad.csv", strings.NewReader("a,\"b\nc"))
	assert.Error(t, err)
}

func TestFromJSON(t *testing.T) {
	src, err := FromJSON("u.json", strings.NewReader(`{"headers":["AssociateID","StartDate"],"rows":[{"AssociateID":"1","StartDate":45366}]}`))
	require.NoError(t, err)
	tbl, err := src.ReadRows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 45366.0, tbl.Rows[0]["StartDate"])

	_, err = FromJSON("u.json", strings.NewReader(`{"rows":[]}`))
	assert.ErrorIs(t, err, sheets.ErrNoHeader)
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "alloc.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("A,B\n1,2\n"), 0o644))

	src, err := FromFile(csvPath)
	require.NoError(t, err)
	tbl, err := src.ReadRows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alloc.csv", tbl.Name)

	_, err = FromFile(filepath.Join(dir, "alloc.xlsx"))
	assert.Error(t, err)

	txt := filepath.Join(dir, "alloc.txt")
	require.NoError(t, os.WriteFile(txt, []byte("x"), 0o644))
	_, err = FromFile(txt)
	assert.ErrorContains(t, err, "unsupported file type")
}
