package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, snapshot string, args ...string) (string, error) {
	t.Helper()
	cmd := rootCommand(func(string) string { return "" })
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--snapshot", snapshot}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestImportStatsSummaryClear(t *testing.T) {
	dir := t.TempDir()
	snapshot := filepath.Join(dir, "data", "snapshot.sqlite")

	alloc := writeFile(t, dir, "alloc.csv", "AssociateID,Grade,Billability,Notes\n1,PA,BFD,x\n2,SA,NBL,y\n,,,\n")
	out, err := run(t, snapshot, "import", "--family", "allocation", "--file", alloc)
	require.NoError(t, err)
	assert.Contains(t, out, "inserted 2 of 3 rows")
	assert.Contains(t, out, "ignored columns: [Notes]")

	nbl := writeFile(t, dir, "nbl.json", `{"headers":["Category","SubCategory"],"rows":[{"Category":"NBL for month","SubCategory":"Bench"}]}`)
	_, err = run(t, snapshot, "import", "--family", "nbl", "--file", nbl)
	require.NoError(t, err)

	out, err = run(t, snapshot, "stats", "--family", "allocation")
	require.NoError(t, err)
	assert.Contains(t, out, "allocation: 2 records")
	assert.Contains(t, out, "last upload: alloc.csv")
	assert.Contains(t, out, "  Billable: 1\n")
	assert.Contains(t, out, "  NonBillable: 1\n")

	out, err = run(t, snapshot, "summary")
	require.NoError(t, err)
	assert.Contains(t, out, "GenC/PA: 1 (50.0%)")
	assert.Contains(t, out, "  ↳ NBL for Month: 1 (50.0%)")

	out, err = run(t, snapshot, "summary", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"total": 2`)

	out, err = run(t, snapshot, "clear", "--family", "nbl")
	require.NoError(t, err)
	assert.Equal(t, "deleted 1 rows from nbl\n", out)
}

func TestSendUsesLogMailerWithoutTransport(t *testing.T) {
	snapshot := filepath.Join(t.TempDir(), "snapshot.sqlite")
	out, err := run(t, snapshot, "send", "--to", "ops@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, `"success": true`)

	out, err = run(t, snapshot, "send")
	assert.Error(t, err)
	assert.Contains(t, out, `"success": false`)
}

func TestCommandErrors(t *testing.T) {
	snapshot := filepath.Join(t.TempDir(), "snapshot.sqlite")

	_, err := run(t, snapshot, "import", "--family", "payroll", "--file", "x.csv")
	assert.ErrorContains(t, err, "unknown record family")

	_, err = run(t, snapshot, "import", "--family", "nbl", "--file", "x.xlsx")
	assert.Error(t, err)

	_, err = run(t, snapshot, "summary", "--format", "pdf")
	assert.ErrorContains(t, err, "unknown format")

	_, err = run(t, snapshot, "clear")
	assert.ErrorContains(t, err, "required flag")
}
