package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"alloctrack/internal/schema"
)

// Reserved metadata columns present on every family table.
const (
	colBatchID    = "_batch_id"
	colSourceFile = "_source_file"
	colRowIndex   = "_row_index"
	colUploadedAt = "_uploaded_at"
)

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// ensureTables creates the family tables from the registry and adds any
// canonical column an older image lacks.
func ensureTables(ctx context.Context, db *sql.DB) error {
	for _, f := range schema.Families() {
		table := schema.Table(f)
		if _, err := db.ExecContext(ctx, createTableSQL(f)); err != nil {
			return fmt.Errorf("create table %s: %w", table, err)
		}

		existing, err := tableColumns(ctx, db, table)
		if err != nil {
			return err
		}
		for _, col := range schema.Columns(f) {
			if existing[col] {
				continue
			}
			stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s TEXT NOT NULL DEFAULT ''", quoteIdent(table), quoteIdent(col))
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("add column %s.%s: %w", table, col, err)
			}
		}
	}
	return nil
}

func createTableSQL(f schema.Family) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", quoteIdent(schema.Table(f)))
	b.WriteString("    id INTEGER PRIMARY KEY AUTOINCREMENT,\n")
	fmt.Fprintf(&b, "    %s TEXT NOT NULL DEFAULT '',\n", colBatchID)
	fmt.Fprintf(&b, "    %s TEXT NOT NULL DEFAULT '',\n", colSourceFile)
	fmt.Fprintf(&b, "    %s INTEGER NOT NULL DEFAULT 0,\n", colRowIndex)
	fmt.Fprintf(&b, "    %s TEXT NOT NULL DEFAULT ''", colUploadedAt)
	for _, col := range schema.Columns(f) {
		fmt.Fprintf(&b, ",\n    %s TEXT NOT NULL DEFAULT ''", quoteIdent(col))
	}
	b.WriteString("\n)")
	return b.String()
}

func tableColumns(ctx context.Context, db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	result, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	cols := make(map[string]bool, len(result))
	for _, r := range result {
		if name, ok := r["name"].(string); ok {
			cols[name] = true
		}
	}
	return cols, nil
}
