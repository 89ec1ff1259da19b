package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lazarolorenzi/Colorsensor-G1-IOT/internal/record"
)

// LatestTTL expires cached snapshots of a device that went quiet.
const LatestTTL = 24 * time.Hour

// CachedStore mirrors the newest record of each kind into Valkey/Redis.
// The wrapped store stays the source of truth; the cache is the hot path for Latest.
type CachedStore struct {
	Store
	redis  *redis.Client
	prefix string
	logger *slog.Logger
}

// NewCachedStore wraps inner. Keys look like "<prefix>:last:lux".
func NewCachedStore(inner Store, rdb *redis.Client, prefix string, logger *slog.Logger) *CachedStore {
	if prefix == "" {
		prefix = "ambient"
	}
	return &CachedStore{Store: inner, redis: rdb, prefix: prefix, logger: logger}
}

// ConnectValkey creates a client for addr and verifies it with PING.
func ConnectValkey(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("valkey is not reachable: %w", err)
	}
	return rdb, nil
}

func (c *CachedStore) key(kind record.Kind) string {
	return fmt.Sprintf("%s:last:%s", c.prefix, kind)
}

// Insert writes through to the inner store, then refreshes the cached snapshot.
// A cache failure is logged, not returned: the row is already durable.
func (c *CachedStore) Insert(ctx context.Context, rec record.Record) error {
	if err := c.Store.Insert(ctx, rec); err != nil {
		return err
	}

	data, err := encodeSnapshot(rec)
	if err != nil {
		c.logger.Warn("latest cache encode failed", "kind", rec.Kind(), "error", err)
		return nil
	}
	if err := c.redis.Set(ctx, c.key(rec.Kind()), data, LatestTTL).Err(); err != nil {
		c.logger.Warn("latest cache update failed", "kind", rec.Kind(), "error", err)
	}
	return nil
}

// Latest reads the cache first and falls back to the inner store on a miss.
func (c *CachedStore) Latest(ctx context.Context, kind record.Kind) (record.Record, error) {
	if !kind.Valid() {
		return nil, ErrUnknownKind
	}

	data, err := c.redis.Get(ctx, c.key(kind)).Bytes()
	switch {
	case err == nil:
		if rec, jerr := decodeSnapshot(kind, data); jerr == nil {
			return rec, nil
		}
		c.logger.Warn("latest cache entry unreadable", "kind", kind)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("latest cache read failed", "kind", kind, "error", err)
	}

	return c.Store.Latest(ctx, kind)
}

// snapshot is the cached form of a record. Raw travels as base64 next to the
// record because encoding/json compacts and escapes an embedded RawMessage.
type snapshot struct {
	Record json.RawMessage `json:"record"`
	Raw    []byte          `json:"raw"`
}

func encodeSnapshot(rec record.Record) ([]byte, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return json.Marshal(snapshot{Record: body, Raw: rec.Base().Raw})
}

func decodeSnapshot(kind record.Kind, data []byte) (record.Record, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	rec := record.New(kind)
	if err := json.Unmarshal(snap.Record, rec); err != nil {
		return nil, err
	}
	m := rec.Base()
	m.Timestamp = m.Timestamp.UTC()
	m.Raw = nil
	if snap.Raw != nil {
		m.Raw = json.RawMessage(snap.Raw)
	}
	return rec, nil
}

// Close closes the inner store and the Valkey client.
func (c *CachedStore) Close() error {
	return errors.Join(c.Store.Close(), c.redis.Close())
}
