package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lazarolorenzi/Colorsensor-G1-IOT/internal/record"
)

//go:embed schema_postgres.sql
var postgresSchema string

// PostgresStore persists records in Postgres (plain or TimescaleDB).
// The rest of the service only sees the Store contract, never SQL.
type PostgresStore struct {
	pool *pgxpool.Pool // connection pool, safe for concurrent use

	// writeMu keeps a single writer so BIGSERIAL ids commit in insertion order.
	writeMu sync.Mutex
}

// OpenPostgres connects, pings and applies the schema.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres configuration: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres is not reachable: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply postgres schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Insert writes rec and reads the id back with RETURNING.
// TIMESTAMPTZ keeps microseconds, so the record's timestamp is truncated to match what is stored.
func (s *PostgresStore) Insert(ctx context.Context, rec record.Record) error {
	if err := checkInsert(rec); err != nil {
		return err
	}
	m := rec.Base()
	m.Timestamp = m.Timestamp.UTC().Truncate(time.Microsecond)

	t := sqlTables[rec.Kind()]
	cols := t.insertColumns()
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		t.name, joinColumns(cols), placeholders(len(cols), pgPlaceholder))

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.pool.QueryRow(ctx, query, insertArgs(rec, m.Timestamp)...).Scan(&m.ID); err != nil {
		return fmt.Errorf("insert into %s: %w", t.name, err)
	}
	return nil
}

// Query relies on the (ts DESC, id DESC) index.
func (s *PostgresStore) Query(ctx context.Context, kind record.Kind, r Range) ([]record.Record, error) {
	t, ok := sqlTables[kind]
	if !ok {
		return nil, ErrUnknownKind
	}
	r = r.Clamped()

	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE ts >= $1 AND ts <= $2
		ORDER BY ts DESC, id DESC
		LIMIT $3 OFFSET $4
	`, t.selectColumns(), t.name)

	rows, err := s.pool.Query(ctx, query, r.Start.UTC(), r.End.UTC(), r.Limit, r.Offset)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t.name, err)
	}
	defer rows.Close() // returns the connection to the pool

	out := make([]record.Record, 0)
	for rows.Next() {
		rec, err := scanPostgres(kind, rows)
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
func (s *PostgresStore) Latest(ctx context.Context, kind record.Kind) (record.Record, error) {
	t, ok := sqlTables[kind]
	if !ok {
		return nil, ErrUnknownKind
	}

	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY ts DESC, id DESC LIMIT 1", t.selectColumns(), t.name)
	rec, err := scanPostgres(kind, s.pool.QueryRow(ctx, query))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest %s: %w", t.name, err)
	}
	return rec, nil
}

// Close releases every pooled connection.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func pgPlaceholder(i int) string {
	return "$" + strconv.Itoa(i)
}

func scanPostgres(kind record.Kind, row rowScanner) (record.Record, error) {
	rec := record.New(kind)
	var (
		ts  time.Time
		raw []byte
	)
	if err := row.Scan(scanDests(rec, &ts, &raw)...); err != nil {
		return nil, err
	}
	rec.Base().Timestamp = ts.UTC()
	setRaw(rec, raw)
	return rec, nil
}
