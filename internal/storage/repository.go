package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"alloctrack/internal/core"
	"alloctrack/internal/schema"
)

// RecordRow is one projected row ready for insertion. Values holds canonical
// columns; absent columns are stored as empty strings.
type RecordRow struct {
	Index  int
	Values map[string]string
}

// ReplaceOutcome reports how a replace-all went row by row.
type ReplaceOutcome struct {
	Inserted int
	Failed   int
}

// ReplaceRecords swaps the family table's content for rows in one
// transaction and records the batch in the upload history. A row that fails
// to insert is logged and skipped. Readers see either the previous batch or
// the new one, never a mix.
func (s *Store) ReplaceRecords(ctx context.Context, batch core.UploadBatch, rows []RecordRow) (ReplaceOutcome, error) {
	var out ReplaceOutcome
	table := quoteIdent(schema.Table(batch.Family))
	columns := schema.Columns(batch.Family)
	insert := insertSQL(batch.Family, columns)
	uploadedAt := formatTimestamp(batch.UploadedAt)

	err := s.Transact(ctx, func(tx *Tx) error {
		out = ReplaceOutcome{}
		if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}

		args := make([]any, 0, len(columns)+4)
		for _, row := range rows {
			if err := ctx.Err(); err != nil {
				return err
			}
			args = append(args[:0], batch.ID, batch.FileName, row.Index, uploadedAt)
			for _, col := range columns {
				args = append(args, row.Values[col])
			}
			if _, err := tx.Exec(ctx, insert, args...); err != nil {
				out.Failed++
				slog.WarnContext(ctx, "Skipping row that failed to insert",
					"family", batch.Family,
					"batch_id", batch.ID,
					"row_index", row.Index,
					"error", err)
				continue
			}
			out.Inserted++
		}

		batch.InsertedRows = out.Inserted
		return insertUpload(ctx, tx, batch, out.Failed)
	})
	if err != nil {
		return ReplaceOutcome{}, fmt.Errorf("replace %s records: %w", batch.Family, err)
	}

	slog.InfoContext(ctx, "Records replaced",
		"family", batch.Family,
		"batch_id", batch.ID,
		"file_name", batch.FileName,
		"inserted", out.Inserted,
		"failed", out.Failed)

	return out, nil
}

// ClearRecords empties the family table.
func (s *Store) ClearRecords(ctx context.Context, f schema.Family) (int64, error) {
	res, err := s.Execute(ctx, "DELETE FROM "+quoteIdent(schema.Table(f)))
	if err != nil {
		return 0, fmt.Errorf("clear %s records: %w", f, err)
	}
	slog.InfoContext(ctx, "Records cleared", "family", f, "deleted", res.RowsAffected)
	return res.RowsAffected, nil
}

// LoadRecords returns every stored row of the family in insertion order.
func (s *Store) LoadRecords(ctx context.Context, f schema.Family) ([]core.Record, error) {
	columns := schema.Columns(f)
	selectCols := []string{"id", colBatchID, colSourceFile, colRowIndex, colUploadedAt}
	for _, c := range columns {
		selectCols = append(selectCols, quoteIdent(c))
	}
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY id", strings.Join(selectCols, ", "), quoteIdent(schema.Table(f)))

	rows, err := s.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load %s records: %w", f, err)
	}

	records := make([]core.Record, 0, len(rows))
	for _, row := range rows {
		rec := core.Record{
			ID:     asInt64(row["id"]),
			Fields: make(map[string]string, len(columns)),
			Meta: core.RecordMeta{
				BatchID:    asString(row[colBatchID]),
				SourceFile: asString(row[colSourceFile]),
				RowIndex:   int(asInt64(row[colRowIndex])),
				UploadedAt: asTime(row[colUploadedAt]),
			},
		}
		for _, c := range columns {
			rec.Fields[c] = asString(row[c])
		}
		records = append(records, rec)
	}
	return records, nil
}

// CountRecords returns the number of stored rows of the family.
func (s *Store) CountRecords(ctx context.Context, f schema.Family) (int, error) {
	rows, err := s.Query(ctx, "SELECT COUNT(*) AS n FROM "+quoteIdent(schema.Table(f)))
	if err != nil {
		return 0, fmt.Errorf("count %s records: %w", f, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return int(asInt64(rows[0]["n"])), nil
}

// LastUpload describes the batch currently stored for the family, or nil
// when the table is empty.
func (s *Store) LastUpload(ctx context.Context, f schema.Family) (*core.LastUpload, error) {
	query := fmt.Sprintf("SELECT %s, %s FROM %s ORDER BY id DESC LIMIT 1",
		colSourceFile, colUploadedAt, quoteIdent(schema.Table(f)))
	rows, err := s.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("last %s upload: %w", f, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &core.LastUpload{
		FileName:  asString(rows[0][colSourceFile]),
		Timestamp: asTime(rows[0][colUploadedAt]),
	}, nil
}

// ListUploads returns the upload history of the family, newest first.
func (s *Store) ListUploads(ctx context.Context, f schema.Family, limit int) ([]core.UploadBatch, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.Query(ctx, `SELECT id, family, file_name, uploaded_at, total_rows, inserted_rows, accepted_headers, ignored_headers
		FROM uploads WHERE family = ? ORDER BY uploaded_at DESC, rowid DESC LIMIT ?`, string(f), limit)
	if err != nil {
		return nil, fmt.Errorf("list %s uploads: %w", f, err)
	}

	out := make([]core.UploadBatch, 0, len(rows))
	for _, row := range rows {
		b := core.UploadBatch{
			ID:           asString(row["id"]),
			Family:       schema.Family(asString(row["family"])),
			FileName:     asString(row["file_name"]),
			UploadedAt:   asTime(row["uploaded_at"]),
			TotalRows:    int(asInt64(row["total_rows"])),
			InsertedRows: int(asInt64(row["inserted_rows"])),
		}
		if err := json.Unmarshal([]byte(asString(row["accepted_headers"])), &b.AcceptedHeaders); err != nil {
			slog.WarnContext(ctx, "Unreadable accepted headers in upload history", "id", b.ID, "error", err)
		}
		if err := json.Unmarshal([]byte(asString(row["ignored_headers"])), &b.IgnoredHeaders); err != nil {
			slog.WarnContext(ctx, "Unreadable ignored headers in upload history", "id", b.ID, "error", err)
		}
		out = append(out, b)
	}
	return out, nil
}

func insertUpload(ctx context.Context, tx *Tx, batch core.UploadBatch, failed int) error {
	accepted, err := json.Marshal(nonNil(batch.AcceptedHeaders))
	if err != nil {
		return fmt.Errorf("marshal accepted headers: %w", err)
	}
	ignored, err := json.Marshal(nonNil(batch.IgnoredHeaders))
	if err != nil {
		return fmt.Errorf("marshal ignored headers: %w", err)
	}
	_, err = tx.Exec(ctx, `INSERT INTO uploads
		(id, family, file_name, uploaded_at, total_rows, inserted_rows, accepted_headers, ignored_headers, dropped_incomplete, failed_rows)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		batch.ID, string(batch.Family), batch.FileName, formatTimestamp(batch.UploadedAt),
		batch.TotalRows, batch.InsertedRows, string(accepted), string(ignored),
		batch.TotalRows-batch.InsertedRows-failed, failed)
	if err != nil {
		return fmt.Errorf("record upload: %w", err)
	}
	return nil
}

func insertSQL(f schema.Family, columns []string) string {
	names := []string{colBatchID, colSourceFile, colRowIndex, colUploadedAt}
	for _, c := range columns {
		names = append(names, quoteIdent(c))
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteIdent(schema.Table(f)), strings.Join(names, ", "), marks)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}

// timestampLayout is fixed width so stored timestamps sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return ts
		}
	}
	return time.Time{}
}
