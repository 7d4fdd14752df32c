// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"taxonomy/internal/models"
)

// testValkeyClient returns a Redis client for tests.
// Skips if Valkey is unavailable.
func testValkeyClient(t *testing.T) *redis.Client {
	t.Helper()

	host := envOr("VALKEY_HOST", "localhost")
	port := envOr("VALKEY_PORT", "6379")
	password := os.Getenv("VALKEY_PASSWORD")

	client := redis.NewClient(&redis.Options{
		Addr:     host + ":" + port,
		Password: password,
		DB:       15, // Use DB 15 for tests.
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("skipping integration test: Valkey not reachable: %v", err)
	}

	t.Cleanup(func() {
		client.Del(ctx, rowsKey, genKey)
		client.Close()
	})

	return client
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestConnectValkey(t *testing.T) {
	host := envOr("VALKEY_HOST", "localhost")
	port := envOr("VALKEY_PORT", "6379")

	client, err := ConnectValkey(host, port, os.Getenv("VALKEY_PASSWORD"), 15)
	if err != nil {
		t.Skipf("skipping: Valkey not available: %v", err)
	}
	defer client.Close()

	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Errorf("ping after connect: %v", err)
	}
}

func TestConnectValkeyUnreachable(t *testing.T) {
	if _, err := ConnectValkey("localhost", "1", "", 0); err == nil {
		t.Error("expected error for unreachable Valkey")
	}
}

func TestRowCacheRoundTrip(t *testing.T) {
	client := testValkeyClient(t)
	ctx := context.Background()
	rc := NewRowCache(client, time.Minute)
	rc.Invalidate(ctx)

	_, gen, ok := rc.Load(ctx)
	if ok {
		t.Fatal("expected miss on empty cache")
	}

	parent := uuid.New()
	rows := []models.Category{
		{ID: parent, Name: "Jewelry", Slug: "jewelry", IsActive: true},
		{ID: uuid.New(), Name: "Rings", Slug: "rings", ParentID: &parent},
	}
	rc.Save(ctx, gen, rows)

	got, _, ok := rc.Load(ctx)
	if !ok {
		t.Fatal("expected hit after Save")
	}
	if len(got) != 2 || got[1].ParentID == nil || *got[1].ParentID != parent || got[1].IsActive {
		t.Errorf("loaded %+v", got)
	}

	ttl := client.TTL(ctx, rowsKey).Val()
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL = %v, want (0, 1m]", ttl)
	}

	rc.Invalidate(ctx)
	if _, _, ok := rc.Load(ctx); ok {
		t.Error("expected miss after Invalidate")
	}
}

func TestRowCacheEmptyScanIsAHit(t *testing.T) {
	client := testValkeyClient(t)
	ctx := context.Background()
	rc := NewRowCache(client, 0)

	_, gen, _ := rc.Load(ctx)
	rc.Save(ctx, gen, nil)
	got, _, ok := rc.Load(ctx)
	if !ok || len(got) != 0 {
		t.Errorf("Load = %v, %v; want empty hit", got, ok)
	}
}

// A scan read before a commit must not be cached after the commit's
// invalidation.
func TestRowCacheSaveAfterInvalidateIsDropped(t *testing.T) {
	client := testValkeyClient(t)
	ctx := context.Background()
	rc := NewRowCache(client, time.Minute)

	_, before, ok := rc.Load(ctx)
	if ok {
		t.Fatal("expected miss on empty cache")
	}

	rc.Invalidate(ctx)
	rc.Save(ctx, before, []models.Category{{ID: uuid.New(), Name: "Stale", Slug: "stale"}})

	if _, _, ok := rc.Load(ctx); ok {
		t.Error("stale snapshot was cached")
	}
	if n := client.Exists(ctx, rowsKey).Val(); n != 0 {
		t.Error("stale snapshot should not be written")
	}

	_, after, _ := rc.Load(ctx)
	if after <= before {
		t.Errorf("generation = %d after invalidate, want > %d", after, before)
	}
	rc.Save(ctx, after, nil)
	if _, _, ok := rc.Load(ctx); !ok {
		t.Error("save at the current generation should be cached")
	}
}

func TestRowCacheCorruptEntry(t *testing.T) {
	client := testValkeyClient(t)
	ctx := context.Background()
	rc := NewRowCache(client, time.Minute)

	client.Set(ctx, rowsKey, "not json", time.Minute)
	if _, _, ok := rc.Load(ctx); ok {
		t.Error("corrupt entry should be a miss")
	}
	if n := client.Exists(ctx, rowsKey).Val(); n != 0 {
		t.Error("corrupt entry should be dropped")
	}
}
