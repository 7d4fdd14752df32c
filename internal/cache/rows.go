// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// rows.go caches the full category scan in Valkey. Tree and flat views are
// rebuilt from it, so a warm cache skips the database entirely.
//
// Every committed mutation bumps a generation counter and drops the entry in
// one MULTI. A miss hands out the generation it saw, and Save only writes
// when the counter is still at that value, so a scan that raced a commit
// never lands in the cache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"taxonomy/internal/models"
)

const (
	// rowsKey is the Valkey key holding the JSON-encoded scan.
	rowsKey = "taxonomy:rows"

	// genKey counts invalidations. It never expires.
	genKey = "taxonomy:rows:gen"

	// DefaultRowsTTL is how long a scan stays cached.
	DefaultRowsTTL = 30 * time.Second
)

// errStale aborts a Save whose generation has moved on.
var errStale = errors.New("row cache generation changed")

// RowCache implements taxonomy.RowCache on Valkey. Cache failures are
// logged and treated as misses.
type RowCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRowCache creates a row cache backed by the given Valkey client.
func NewRowCache(client *redis.Client, ttl time.Duration) *RowCache {
	if ttl <= 0 {
		ttl = DefaultRowsTTL
	}
	return &RowCache{client: client, ttl: ttl}
}

// Load returns the cached scan, if any. On a miss it also returns the
// current generation, which the caller passes back to Save.
func (rc *RowCache) Load(ctx context.Context) ([]models.Category, int64, bool) {
	vals, err := rc.client.MGet(ctx, rowsKey, genKey).Result()
	if err != nil {
		slog.Warn("row cache get error", "error", err)
		return nil, -1, false
	}

	gen, err := parseGen(vals[1])
	if err != nil {
		slog.Warn("row cache generation decode error", "error", err)
		return nil, -1, false
	}

	raw, ok := vals[0].(string)
	if !ok {
		return nil, gen, false
	}

	var rows []models.Category
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		slog.Warn("row cache decode error", "error", err)
		rc.Invalidate(ctx)
		return nil, -1, false
	}
	return rows, gen, true
}

// Save stores a scan with the configured TTL, unless the cache was
// invalidated since gen was read. A negative gen never saves.
func (rc *RowCache) Save(ctx context.Context, gen int64, rows []models.Category) {
	if gen < 0 {
		return
	}
	if rows == nil {
		rows = []models.Category{}
	}
	val, err := json.Marshal(rows)
	if err != nil {
		slog.Warn("row cache encode error", "error", err)
		return
	}

	err = rc.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, genKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		cur, err := parseGen(nilIfMissing(raw, err))
		if err != nil {
			return err
		}
		if cur != gen {
			return errStale
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, rowsKey, val, rc.ttl)
			return nil
		})
		return err
	}, genKey)

	switch {
	case err == nil:
	case errors.Is(err, errStale), errors.Is(err, redis.TxFailedErr):
		slog.Debug("row cache save skipped, generation moved on", "gen", gen)
	default:
		slog.Warn("row cache set error", "error", err)
	}
}

// Invalidate drops the cached scan and bumps the generation.
func (rc *RowCache) Invalidate(ctx context.Context) {
	_, err := rc.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, genKey)
		p.Del(ctx, rowsKey)
		return nil
	})
	if err != nil {
		slog.Warn("row cache invalidate error", "error", err)
		return
	}
	slog.Debug("row cache invalidated")
}

func nilIfMissing(raw string, err error) any {
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return raw
}

// parseGen decodes an MGET/GET reply for genKey. A missing key is
// generation zero.
func parseGen(v any) (int64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
