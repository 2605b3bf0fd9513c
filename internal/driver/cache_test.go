package driver_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/vmihailenco/msgpack/v5"

	"sierra2mlir/internal/driver"
)

func TestCache_PutGet(t *testing.T) {
	c, err := driver.OpenCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	key := driver.CacheKey(countdown, driver.Options{})
	if _, ok, err := c.Get(key); ok || err != nil {
		t.Fatalf("empty cache returned ok=%v err=%v", ok, err)
	}
	entry := &driver.CacheEntry{Schema: 1, Module: "text", Functions: []string{"f"}, Created: 42}
	if err := c.Put(key, entry); err != nil {
		t.Fatal(err)
	}
	got, ok, err := c.Get(key)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if diff := cmp.Diff(entry, got); diff != "" {
		t.Fatalf("entry mismatch (-want +got):\n%s", diff)
	}

	if err := c.DropAll(); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.Get(key); ok {
		t.Fatal("entry survived DropAll")
	}
}

func TestCache_SchemaMismatchIsMiss(t *testing.T) {
	dir := t.TempDir()
	c, err := driver.OpenCache(dir)
	if err != nil {
		t.Fatal(err)
	}
	key := driver.CacheKey("src", driver.Options{})
	if err := c.Put(key, &driver.CacheEntry{Schema: 1, Module: "x"}); err != nil {
		t.Fatal(err)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "modules", "*", "*.mp"))
	if len(matches) != 1 {
		t.Fatalf("expected one cache file, got %v", matches)
	}
	data, err := msgpack.Marshal(&driver.CacheEntry{Schema: 99, Module: "old"})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(matches[0], data, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := c.Get(key); ok || err != nil {
		t.Fatalf("stale schema returned ok=%v err=%v", ok, err)
	}
}

func TestCacheKey_CoversOptions(t *testing.T) {
	base := driver.CacheKey(countdown, driver.Options{})
	for name, opts := range map[string]driver.Options{
		"verify_moves": {VerifyMoves: true},
		"locations":    {PrintLocations: true},
		"target":       {Target: "x86_64-unknown-linux-gnu"},
	} {
		if driver.CacheKey(countdown, opts) == base {
			t.Errorf("%s does not change the cache key", name)
		}
	}
	if driver.CacheKey(countdown, driver.Options{MaxSteps: 5}) != base {
		t.Error("engine options must not change the cache key")
	}
	if driver.CacheKey(constantProgram, driver.Options{}) == base {
		t.Error("different sources share a key")
	}
}
