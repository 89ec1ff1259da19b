package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lazarolorenzi/Colorsensor-G1-IOT/internal/record"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

// SQLiteStore persists records in a single SQLite file.
// WAL mode lets queries run while the subscriber writes.
type SQLiteStore struct {
	db *sql.DB

	// writeMu serializes Insert so ids follow insertion order.
	writeMu sync.Mutex
}

// OpenSQLite creates or opens the database at path and applies the schema.
// Safe to call on an existing file.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite database: %w", err)
	}

	// SQLite has a single writer; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply sqlite schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Insert writes rec and stores the generated id back into it.
func (s *SQLiteStore) Insert(ctx context.Context, rec record.Record) error {
	if err := checkInsert(rec); err != nil {
		return err
	}
	t := sqlTables[rec.Kind()]
	cols := t.insertColumns()

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.name, joinColumns(cols), placeholders(len(cols), func(int) string { return "?" }))

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx, query, insertArgs(rec, rec.Base().Timestamp.UnixNano())...)
	if err != nil {
		return fmt.Errorf("insert into %s: %w", t.name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert into %s: %w", t.name, err)
	}
	rec.Base().ID = id
	return nil
}

// Query uses the ts index; ordering is ts DESC, id DESC.
func (s *SQLiteStore) Query(ctx context.Context, kind record.Kind, r Range) ([]record.Record, error) {
	t, ok := sqlTables[kind]
	if !ok {
		return nil, ErrUnknownKind
	}
	r = r.Clamped()

	query := fmt.Sprintf(`SELECT %s FROM %s
		WHERE ts >= ? AND ts <= ?
		ORDER BY ts DESC, id DESC
		LIMIT ? OFFSET ?`, t.selectColumns(), t.name)

	rows, err := s.db.QueryContext(ctx, query, unixNanos(r.Start), unixNanos(r.End), r.Limit, r.Offset)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t.name, err)
	}
	defer rows.Close()

	out := make([]record.Record, 0)
	for rows.Next() {
		rec, err := s.scan(kind, rows)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", t.name, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", t.name, err)
	}
	return out, nil
}

// Latest returns the newest row of kind.
func (s *SQLiteStore) Latest(ctx context.Context, kind record.Kind) (record.Record, error) {
	t, ok := sqlTables[kind]
	if !ok {
		return nil, ErrUnknownKind
	}

	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY ts DESC, id DESC LIMIT 1", t.selectColumns(), t.name)
	rec, err := s.scan(kind, s.db.QueryRowContext(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest %s: %w", t.name, err)
	}
	return rec, nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Bounds of what int64 nanoseconds since the epoch can represent.
var (
	minNanosTime = time.Unix(0, math.MinInt64)
	maxNanosTime = time.Unix(0, math.MaxInt64)
)

// unixNanos saturates instead of overflowing for far-away range bounds.
func unixNanos(t time.Time) int64 {
	switch {
	case t.Before(minNanosTime):
		return math.MinInt64
	case t.After(maxNanosTime):
		return math.MaxInt64
	}
	return t.UnixNano()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scan(kind record.Kind, row rowScanner) (record.Record, error) {
	rec := record.New(kind)
	var (
		tsNanos int64
		raw     []byte
	)
	if err := row.Scan(scanDests(rec, &tsNanos, &raw)...); err != nil {
		return nil, err
	}
	rec.Base().Timestamp = time.Unix(0, tsNanos).UTC()
	setRaw(rec, raw)
	return rec, nil
}
