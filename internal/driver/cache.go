package driver

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"sierra2mlir/internal/mlir"
)

// cacheSchemaVersion is bumped whenever CacheEntry or the printer output
// changes shape.
const cacheSchemaVersion uint16 = 1

// Cache stores printed modules on disk under modules/<xx>/<rest>.mp, keyed
// by CacheKey. It is safe for concurrent use.
type Cache struct {
	mu  sync.RWMutex
	dir string
}

// CacheEntry is the msgpack payload of one cached compilation.
type CacheEntry struct {
	Schema uint16

	Module    string
	Functions []string
	Created   int64 // unix seconds
}

func newCacheEntry(m *mlir.Module, text string) *CacheEntry {
	e := &CacheEntry{Schema: cacheSchemaVersion, Module: text, Created: time.Now().Unix()}
	for _, f := range m.Functions() {
		e.Functions = append(e.Functions, mlir.SymbolName(f))
	}
	return e
}

// DefaultCacheDir is $XDG_CACHE_HOME/sierra2mlir, falling back to
// ~/.cache/sierra2mlir.
func DefaultCacheDir() (string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".cache")
	}
	return filepath.Join(base, "sierra2mlir"), nil
}

// OpenCache opens (creating if needed) a cache rooted at dir. An empty dir
// selects DefaultCacheDir.
func OpenCache(dir string) (*Cache, error) {
	if dir == "" {
		var err error
		if dir, err = DefaultCacheDir(); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir}, nil
}

// Dir returns the cache root.
func (c *Cache) Dir() string { return c.dir }

func (c *Cache) modules() string { return filepath.Join(c.dir, "modules") }

// pathFor shards entries by the first key byte.
func (c *Cache) pathFor(key Digest) string {
	name := hex.EncodeToString(key[:])
	return filepath.Join(c.modules(), name[:2], name[2:]+".mp")
}

// Put writes entry under key. Readers never observe a partial file.
func (c *Cache) Put(key Digest, entry *CacheEntry) error {
	if c == nil {
		return nil
	}
	data, err := msgpack.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	dst := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".put-*")
	if err != nil {
		return err
	}
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}

// Get loads the entry for key. A missing file or an entry from another
// schema is a miss, not an error.
func (c *Cache) Get(key Digest) (*CacheEntry, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	c.mu.RLock()
	data, err := os.ReadFile(c.pathFor(key))
	c.mu.RUnlock()
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	entry := new(CacheEntry)
	if err := msgpack.Unmarshal(data, entry); err != nil {
		return nil, false, fmt.Errorf("decode cache entry: %w", err)
	}
	if entry.Schema != cacheSchemaVersion {
		return nil, false, nil
	}
	return entry, true, nil
}

// DropAll deletes every cached module and leaves an empty cache behind.
func (c *Cache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.RemoveAll(c.modules()); err != nil {
		return err
	}
	return os.MkdirAll(c.modules(), 0o755)
}
