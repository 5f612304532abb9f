// Package storage implements the snapshot-durable embedded store: an
// in-memory SQLite engine loaded from a single binary image file at open and
// rewritten in full after every committed mutation.
package storage

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"modernc.org/sqlite"
)

var (
	// ErrCorruptSnapshot is returned by Open when the durable file cannot be loaded.
	ErrCorruptSnapshot = errors.New("corrupt snapshot")
	// ErrPersist wraps failures to write the durable file. The in-memory state
	// has been restored to the last persisted image when it is returned.
	ErrPersist = errors.New("persist snapshot")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store closed")
	// ErrReadOnly is returned by mutations on a store opened with ReadOnly.
	ErrReadOnly = errors.New("store is read-only")
)

var sqliteMagic = []byte("SQLite format 3\x00")

type (
	// Row is one result row keyed by column name.
	Row map[string]any

	// Result reports the outcome of a mutation.
	Result struct {
		RowsAffected int64
		LastInsertID int64
	}

	// Observer receives persist timings and image sizes.
	Observer interface {
		ObservePersist(d time.Duration, size int, err error)
	}

	// Option configures a Store.
	Option func(*Store)
)

// WithObserver registers o for persist notifications.
func WithObserver(o Observer) Option {
	return func(s *Store) { s.observer = o }
}

// ReadOnly opens a view of the snapshot that never writes the durable file.
// Used by processes that only report on data another process owns.
func ReadOnly() Option {
	return func(s *Store) { s.readOnly = true }
}

// Store is the snapshot-durable engine. All mutations are serialized; reads
// run between mutations and never observe a half-applied or unpersisted change.
type Store struct {
	mu       sync.RWMutex
	db       *sql.DB
	path     string
	image    []byte
	observer Observer
	readOnly bool
	closed   bool
}

// Open loads the image at path into a fresh in-memory engine, or starts empty
// when no file exists. A file that is not a loadable image fails with
// ErrCorruptSnapshot. Bookkeeping migrations and family tables are applied
// and the resulting image is persisted before Open returns.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, errors.New("snapshot path is empty")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create snapshot directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite engine: %w", err)
	}
	// The engine lives in one connection; losing it loses the data.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	s := &Store{db: db, path: path}
	for _, opt := range opts {
		opt(s)
	}

	img, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		slog.InfoContext(ctx, "No snapshot found, starting empty", "path", path)
	case err != nil:
		db.Close()
		return nil, fmt.Errorf("read snapshot: %w", err)
	default:
		if err := s.load(ctx, img, path); err != nil {
			db.Close()
			return nil, err
		}
		slog.InfoContext(ctx, "Snapshot loaded", "path", path, "bytes", len(img))
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	if err := ensureTables(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure family tables: %w", err)
	}
	if s.readOnly {
		return s, nil
	}
	if err := s.persist(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// load copies the image file at src into the engine after checking the bytes
// read from it carry the SQLite header.
func (s *Store) load(ctx context.Context, img []byte, src string) error {
	if !bytes.HasPrefix(img, sqliteMagic) {
		return fmt.Errorf("%w: %s: missing sqlite header", ErrCorruptSnapshot, s.path)
	}
	if err := s.restoreFile(ctx, src); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCorruptSnapshot, s.path, err)
	}
	var status string
	if err := s.db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&status); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCorruptSnapshot, s.path, err)
	}
	if status != "ok" {
		return fmt.Errorf("%w: %s: %s", ErrCorruptSnapshot, s.path, status)
	}
	return nil
}

// Path returns the durable file location.
func (s *Store) Path() string { return s.path }

// SnapshotSize returns the byte size of the last persisted image.
func (s *Store) SnapshotSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.image)
}

// Query runs a read-only statement and materializes every row.
func (s *Store) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return scanRows(rows)
}

// Execute runs one mutating statement and persists the whole engine. If the
// persist fails the statement's effect is rolled back and the error returned.
func (s *Store) Execute(ctx context.Context, stmt string, args ...any) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Result{}, ErrClosed
	}
	if s.readOnly {
		return Result{}, ErrReadOnly
	}
	res, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return Result{}, fmt.Errorf("execute: %w", err)
	}
	out := toResult(res)
	if err := s.persistOrRestore(ctx); err != nil {
		return Result{}, err
	}
	return out, nil
}

// Transact runs fn inside one transaction and persists once after commit.
// An error from fn rolls the transaction back. A persist failure restores the
// last persisted image.
func (s *Store) Transact(ctx context.Context, fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.readOnly {
		return ErrReadOnly
	}
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&Tx{tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Failed to roll back transaction", "error", rbErr)
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return s.persistOrRestore(ctx)
}

// Close releases the engine. The durable file is left as last persisted.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) persistOrRestore(ctx context.Context) error {
	err := s.persist(ctx)
	if err == nil {
		return nil
	}
	slog.ErrorContext(ctx, "Snapshot persist failed, restoring last image", "path", s.path, "error", err)
	if len(s.image) == 0 {
		return err
	}
	if rerr := s.restoreImage(ctx); rerr != nil {
		slog.ErrorContext(ctx, "Failed to restore last image", "path", s.path, "error", rerr)
		return errors.Join(err, fmt.Errorf("restore last image: %w", rerr))
	}
	return err
}

func (s *Store) persist(ctx context.Context) error {
	start := time.Now()
	img, err := s.serialize(ctx)
	if err == nil {
		err = writeFileAtomic(s.path, img)
	}
	if s.observer != nil {
		s.observer.ObservePersist(time.Since(start), len(img), err)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPersist, s.path, err)
	}
	s.image = img
	slog.DebugContext(ctx, "Snapshot persisted", "path", s.path, "bytes", len(img), "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (s *Store) serialize(ctx context.Context) ([]byte, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	var img []byte
	err = conn.Raw(func(dc any) error {
		ser, ok := dc.(interface{ Serialize() ([]byte, error) })
		if !ok {
			return fmt.Errorf("driver connection %T cannot serialize", dc)
		}
		var err error
		img, err = ser.Serialize()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("serialize engine: %w", err)
	}
	return img, nil
}

// restoreImage reloads the last persisted image. The image is spilled to a
// temp file first; the durable file is the fallback when that fails, since
// the atomic write leaves it holding the same image.
func (s *Store) restoreImage(ctx context.Context) error {
	tmp, err := os.CreateTemp("", "snapshot-restore-*.sqlite")
	if err != nil {
		return s.restoreDurable(ctx, err)
	}
	defer os.Remove(tmp.Name())
	_, werr := tmp.Write(s.image)
	if cerr := tmp.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return s.restoreDurable(ctx, werr)
	}
	return s.restoreFile(ctx, tmp.Name())
}

func (s *Store) restoreDurable(ctx context.Context, spillErr error) error {
	slog.WarnContext(ctx, "Cannot spill last image, restoring from durable file", "path", s.path, "error", spillErr)
	// Opening a missing file would create an empty database.
	if _, err := os.Stat(s.path); err != nil {
		return fmt.Errorf("spill last image: %w", spillErr)
	}
	return s.restoreFile(ctx, s.path)
}

// restoreFile replaces the engine's main database with the one in src using
// the online backup API.
func (s *Store) restoreFile(ctx context.Context, src string) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	return conn.Raw(func(dc any) error {
		r, ok := dc.(interface {
			NewRestore(string) (*sqlite.Backup, error)
		})
		if !ok {
			return fmt.Errorf("driver connection %T cannot restore", dc)
		}
		bk, err := r.NewRestore(src)
		if err != nil {
			return fmt.Errorf("open %s: %w", src, err)
		}
		_, stepErr := bk.Step(-1)
		if err := bk.Finish(); stepErr == nil {
			stepErr = err
		}
		if stepErr != nil {
			return fmt.Errorf("restore from %s: %w", src, stepErr)
		}
		return nil
	})
}

// writeFileAtomic replaces path with data so that a crash leaves either the
// old or the new image on disk.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Tx is a transaction handle passed to Transact callbacks.
type Tx struct {
	tx *sql.Tx
}

// Exec runs a statement inside the transaction.
func (t *Tx) Exec(ctx context.Context, stmt string, args ...any) (Result, error) {
	res, err := t.tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		return Result{}, err
	}
	return toResult(res), nil
}

// Query runs a statement inside the transaction and materializes its rows.
func (t *Tx) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanRows(rows)
}

func toResult(res sql.Result) Result {
	var out Result
	out.RowsAffected, _ = res.RowsAffected()
	out.LastInsertID, _ = res.LastInsertId()
	return out
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}
