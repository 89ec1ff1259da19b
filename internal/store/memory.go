package store

import (
	"context"
	"sort"
	"sync"

	"github.com/lazarolorenzi/Colorsensor-G1-IOT/internal/record"
)

// MemoryStore keeps every record in process memory.
// Uses sync.RWMutex: queries share the read lock, Insert takes the write lock.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[record.Kind]*memTable
}

type memTable struct {
	nextID int64
	rows   []record.Record // insertion order, ids ascending
}

// NewMemoryStore creates an empty store with one table per kind.
func NewMemoryStore() *MemoryStore {
	tables := make(map[record.Kind]*memTable, len(record.Kinds))
	for _, k := range record.Kinds {
		tables[k] = &memTable{nextID: 1}
	}
	return &MemoryStore{tables: tables}
}

// Insert stores a copy of rec so later mutations by the caller are not visible.
func (m *MemoryStore) Insert(ctx context.Context, rec record.Record) error {
	if err := checkInsert(rec); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.tables[rec.Kind()]
	rec.Base().ID = t.nextID
	t.nextID++
	t.rows = append(t.rows, record.Clone(rec))
	return nil
}

// Query scans the table; the collection is small telemetry, not worth an index.
func (m *MemoryStore) Query(ctx context.Context, kind record.Kind, r Range) ([]record.Record, error) {
	if !kind.Valid() {
		return nil, ErrUnknownKind
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r = r.Clamped()

	m.mu.RLock()
	matched := make([]record.Record, 0)
	for _, rec := range m.tables[kind].rows {
		ts := rec.Base().Timestamp
		if ts.Before(r.Start) || ts.After(r.End) {
			continue
		}
		matched = append(matched, rec)
	}
	m.mu.RUnlock()

	sortNewestFirst(matched)

	if r.Offset >= len(matched) {
		return []record.Record{}, nil
	}
	matched = matched[r.Offset:]
	if len(matched) > r.Limit {
		matched = matched[:r.Limit]
	}

	out := make([]record.Record, len(matched))
	for i, rec := range matched {
		out[i] = record.Clone(rec)
	}
	return out, nil
}

// Latest returns the newest record by timestamp, then id.
func (m *MemoryStore) Latest(ctx context.Context, kind record.Kind) (record.Record, error) {
	if !kind.Valid() {
		return nil, ErrUnknownKind
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var best record.Record
	for _, rec := range m.tables[kind].rows {
		if best == nil || newer(rec, best) {
			best = rec
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return record.Clone(best), nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

func newer(a, b record.Record) bool {
	ta, tb := a.Base().Timestamp, b.Base().Timestamp
	if !ta.Equal(tb) {
		return ta.After(tb)
	}
	return a.Base().ID > b.Base().ID
}

func sortNewestFirst(recs []record.Record) {
	sort.SliceStable(recs, func(i, j int) bool { return newer(recs[i], recs[j]) })
}
