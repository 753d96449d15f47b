package resolvecache_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"podscribe/internal/resolvecache"
)

func openCache(t *testing.T) *resolvecache.Cache {
	t.Helper()
	cache, err := resolvecache.Open(filepath.Join(t.TempDir(), "resolve_cache.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { cache.Close() })
	return cache
}

func TestStoreAndLookup(t *testing.T) {
	cache := openCache(t)
	ctx := context.Background()

	entry := resolvecache.Entry{
		URL:       "https://www.xiaoyuzhoufm.com/episode/abc123",
		EpisodeID: "abc123",
		MediaURL:  "https://media.example.com/abc123.m4a",
		Title:     "第一期",
	}
	if err := cache.Store(ctx, entry); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	got, found, err := cache.Lookup(ctx, entry.URL)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if !found {
		t.Fatal("expected cache hit")
	}
	if got.EpisodeID != "abc123" || got.MediaURL != entry.MediaURL || got.Title != "第一期" {
		t.Fatalf("unexpected entry %+v", got)
	}
	if got.ResolvedAt.IsZero() {
		t.Fatal("resolved_at not recorded")
	}
}

func TestLookupMiss(t *testing.T) {
	cache := openCache(t)

	_, found, err := cache.Lookup(context.Background(), "https://www.xiaoyuzhoufm.com/episode/missing")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if found {
		t.Fatal("expected cache miss")
	}
}

func TestStoreUpserts(t *testing.T) {
	cache := openCache(t)
	ctx := context.Background()
	url := "https://www.xiaoyuzhoufm.com/episode/abc123"

	if err := cache.Store(ctx, resolvecache.Entry{URL: url, EpisodeID: "abc123", MediaURL: "https://a"}); err != nil {
		t.Fatalf("first Store failed: %v", err)
	}
	if err := cache.Store(ctx, resolvecache.Entry{
		URL: url, EpisodeID: "abc123", MediaURL: "https://b", ResolvedAt: time.Now(),
	}); err != nil {
		t.Fatalf("second Store failed: %v", err)
	}

	got, found, err := cache.Lookup(ctx, url)
	if err != nil || !found {
		t.Fatalf("Lookup failed: %v found=%v", err, found)
	}
	if got.MediaURL != "https://b" {
		t.Fatalf("expected updated media url, got %q", got.MediaURL)
	}
	count, err := cache.Count(ctx)
	if err != nil || count != 1 {
		t.Fatalf("expected one row, got %d (err=%v)", count, err)
	}
}

func TestNilCacheIsAlwaysMiss(t *testing.T) {
	var cache *resolvecache.Cache
	ctx := context.Background()

	if err := cache.Store(ctx, resolvecache.Entry{URL: "u", EpisodeID: "e"}); err != nil {
		t.Fatalf("nil cache Store should be a no-op, got %v", err)
	}
	_, found, err := cache.Lookup(ctx, "u")
	if err != nil || found {
		t.Fatalf("nil cache Lookup should miss, got found=%v err=%v", found, err)
	}
	if err := cache.Close(); err != nil {
		t.Fatalf("nil cache Close should be a no-op, got %v", err)
	}
}
