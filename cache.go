package prefixdb

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/exp/slices"
)

// Reader is the read-only view of a database handed out by a Cache.
type Reader[V any] interface {
	Len() uint64
	Search(ctx context.Context, text string) (V, bool)
	Lookup(ctx context.Context, text string) (OpResult, V, error)
	LookupPrefix(ctx context.Context, text string) (Key, OpResult, V, error)
	Walk(ctx context.Context, fn WalkerFn[V]) error
	WriteImage(ctx context.Context, w io.Writer) error
}

var _ Reader[NoValue] = &DB[NoValue]{}

// CacheConfig controls how long opened databases are kept and how often
// their files are checked for updates.
type CacheConfig struct {
	// Size is the maximum number of open databases.
	Size int
	// CheckInterval is the minimum time between two checks of a file's
	// modification time.
	CheckInterval time.Duration
	// SettleDelay is the minimum age of a modification before the file is
	// reloaded, so that files still being written are not picked up.
	SettleDelay time.Duration
	// Logger receives reload failures. Defaults to log.Default().
	Logger *log.Logger
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Size:          16,
		CheckInterval: 30 * time.Second,
		SettleDelay:   5 * time.Second,
	}
}

// Cache shares opened databases between callers, keyed by file path. A
// database is reloaded by the first Get after its file has been replaced;
// callers holding the previous Reader keep using the old data.
// Cache is safe for concurrent use.
type Cache[V any] struct {
	config     CacheConfig
	serializer Serializer[V]
	opts       []Option

	mu      sync.Mutex
	entries *lru.Cache[string, *cacheEntry[V]]

	now   func() time.Time
	mtime func(path string) (time.Time, error)
}

type cacheEntry[V any] struct {
	db       *DB[V]
	checked  time.Time
	modified time.Time
}

func fileModTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// NewCache creates a cache of databases with payloads serialized by s.
// The databases are opened with the given options plus WithRWMutex.
func NewCache[V any](config CacheConfig, s Serializer[V], opts ...Option) (*Cache[V], error) {
	if config.Size <= 0 {
		return nil, fmt.Errorf("invalid cache size %d", config.Size)
	}
	if nil == config.Logger {
		config.Logger = log.Default()
	}

	entries, err := lru.New[string, *cacheEntry[V]](config.Size)
	if err != nil {
		return nil, err
	}

	return &Cache[V]{
		config:     config,
		serializer: s,
		opts:       slices.Clone(opts),
		entries:    entries,
		now:        time.Now,
		mtime:      fileModTime,
	}, nil
}

// Get returns the database saved at path, opening it on first use. Errors
// are those of Open; a failed reload of an already cached database is
// logged and the previous content is served. Files are read without
// holding the cache lock, so a slow load does not delay other paths.
func (c *Cache[V]) Get(path string) (Reader[V], error) {
	c.mu.Lock()
	now := c.now()
	if entry, found := c.entries.Get(path); found {
		db, modified := entry.db, entry.modified
		due := now.Sub(entry.checked) >= c.config.CheckInterval
		if due {
			entry.checked = now
		}
		c.mu.Unlock()

		if !due {
			return db, nil
		}
		return c.refresh(path, entry, db, modified, now), nil
	}
	c.mu.Unlock()

	db, err := c.open(path)
	if err != nil {
		return nil, err
	}
	modified, err := c.mtime(path)
	if err != nil {
		modified = now
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Another caller may have loaded the same path meanwhile.
	if entry, found := c.entries.Get(path); found {
		return entry.db, nil
	}
	c.entries.Add(path, &cacheEntry[V]{db: db, checked: now, modified: modified})
	return db, nil
}

// open loads the database at path guarded by its own lock.
func (c *Cache[V]) open(path string) (*DB[V], error) {
	return Open(path, c.serializer, append(slices.Clone(c.opts), WithRWMutex())...)
}

// refresh reloads entry if its file changed since modified and has settled,
// and returns the database to serve.
func (c *Cache[V]) refresh(path string, entry *cacheEntry[V], db *DB[V], modified, now time.Time) *DB[V] {
	changed, err := c.mtime(path)
	if err != nil || !changed.After(modified) || changed.After(now.Add(-c.config.SettleDelay)) {
		return db
	}

	reloaded, err := c.open(path)
	if err != nil {
		c.config.Logger.Printf("cannot reload prefix database %q: %v", path, err)
		return db
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if entry.modified.Before(changed) {
		entry.db = reloaded
		entry.modified = changed
	}
	return entry.db
}

// Remove drops the database at path from the cache.
func (c *Cache[V]) Remove(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Remove(path)
}

// Paths returns the sorted paths of all cached databases.
func (c *Cache[V]) Paths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	paths := c.entries.Keys()
	slices.Sort(paths)
	return paths
}
