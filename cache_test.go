package prefixdb

import (
	"bytes"
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-uuid"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now      time.Time
	modified map[string]time.Time
}

func (c *fakeClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func (c *fakeClock) touch(path string) {
	c.modified[path] = c.now
}

func (c *fakeClock) mtime(path string) (time.Time, error) {
	if _, err := os.Stat(path); err != nil {
		return time.Time{}, err
	}
	return c.modified[path], nil
}

func newTestCache(t *testing.T, config CacheConfig) (*Cache[uint32], *fakeClock, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	config.Logger = log.New(&logs, "", 0)

	cache, err := NewCache[uint32](config, Uint32Serializer{})
	require.NoError(t, err)

	clock := &fakeClock{now: time.Unix(1700000000, 0), modified: map[string]time.Time{}}
	cache.now = func() time.Time { return clock.now }
	cache.mtime = clock.mtime
	return cache, clock, &logs
}

func writeDB(t *testing.T, clock *fakeClock, path string, prefixes map[string]uint32) {
	t.Helper()
	db := New[uint32](Uint32Serializer{})
	for text, value := range prefixes {
		require.Equal(t, OK, db.Add(context.Background(), text, value))
	}
	require.NoError(t, db.SaveFile(context.Background(), path))
	clock.touch(path)
}

func randomPath(t *testing.T, dir string) string {
	t.Helper()
	id, err := uuid.GenerateUUID()
	require.NoError(t, err)
	return filepath.Join(dir, id+".pfdb")
}

func TestCache_SharesHandles(t *testing.T) {
	cache, clock, _ := newTestCache(t, DefaultCacheConfig())
	path := randomPath(t, t.TempDir())
	writeDB(t, clock, path, map[string]uint32{"10.0.0.0/8": 1})

	first, err := cache.Get(path)
	require.NoError(t, err)
	second, err := cache.Get(path)
	require.NoError(t, err)
	require.Same(t, first, second)

	value, found := first.Search(context.Background(), "10.9.9.9")
	require.True(t, found)
	require.Equal(t, uint32(1), value)

	require.Equal(t, []string{path}, cache.Paths())
	cache.Remove(path)
	require.Empty(t, cache.Paths())
}

func TestCache_Reload(t *testing.T) {
	config := DefaultCacheConfig()
	cache, clock, _ := newTestCache(t, config)
	path := randomPath(t, t.TempDir())
	ctx := context.Background()

	writeDB(t, clock, path, map[string]uint32{"10.0.0.0/8": 1})
	old, err := cache.Get(path)
	require.NoError(t, err)

	clock.advance(time.Minute)
	writeDB(t, clock, path, map[string]uint32{"10.0.0.0/8": 2})

	// the modification has not settled yet
	clock.advance(2 * time.Second)
	reader, err := cache.Get(path)
	require.NoError(t, err)
	require.Same(t, old, reader)

	// checks are rate limited
	clock.advance(config.SettleDelay)
	reader, err = cache.Get(path)
	require.NoError(t, err)
	require.Same(t, old, reader)

	clock.advance(config.CheckInterval)
	reader, err = cache.Get(path)
	require.NoError(t, err)
	require.NotSame(t, old, reader)

	value, _ := reader.Search(ctx, "10.0.0.1")
	require.Equal(t, uint32(2), value)

	// handles given out earlier keep their content
	value, _ = old.Search(ctx, "10.0.0.1")
	require.Equal(t, uint32(1), value)
}

func TestCache_ReloadFailureKeepsOldContent(t *testing.T) {
	config := DefaultCacheConfig()
	cache, clock, logs := newTestCache(t, config)
	path := randomPath(t, t.TempDir())

	writeDB(t, clock, path, map[string]uint32{"10.0.0.0/8": 1})
	old, err := cache.Get(path)
	require.NoError(t, err)

	clock.advance(time.Minute)
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0644))
	clock.touch(path)

	clock.advance(time.Minute)
	reader, err := cache.Get(path)
	require.NoError(t, err)
	require.Same(t, old, reader)
	require.Contains(t, logs.String(), "cannot reload")
}

func TestCache_Errors(t *testing.T) {
	_, err := NewCache[uint32](CacheConfig{}, Uint32Serializer{})
	require.Error(t, err)

	cache, _, _ := newTestCache(t, DefaultCacheConfig())
	_, err = cache.Get(filepath.Join(t.TempDir(), "missing.pfdb"))
	require.ErrorIs(t, err, ErrIO)
	require.Empty(t, cache.Paths())
}

func TestCache_Eviction(t *testing.T) {
	config := DefaultCacheConfig()
	config.Size = 2
	cache, clock, _ := newTestCache(t, config)
	dir := t.TempDir()

	paths := []string{randomPath(t, dir), randomPath(t, dir), randomPath(t, dir)}
	for _, path := range paths {
		writeDB(t, clock, path, map[string]uint32{"10.0.0.0/8": 1})
		_, err := cache.Get(path)
		require.NoError(t, err)
	}
	require.Len(t, cache.Paths(), 2)
	require.NotContains(t, cache.Paths(), paths[0])
}

func TestCache_ServesImages(t *testing.T) {
	cache, clock, _ := newTestCache(t, DefaultCacheConfig())
	path := randomPath(t, t.TempDir())
	writeDB(t, clock, path, map[string]uint32{"10.0.0.0/8": 1})

	reader, err := cache.Get(path)
	require.NoError(t, err)
	require.Equal(t, uint64(1), reader.Len())

	var buf bytes.Buffer
	require.NoError(t, reader.WriteImage(context.Background(), &buf))
	require.Equal(t, ImageSize(9, 1, 4), int64(buf.Len()))

	saved, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, saved, buf.Bytes())
}

// gatedFileSystem holds Open calls for one path until released.
type gatedFileSystem struct {
	FileSystem
	path    string
	entered chan struct{}
	release chan struct{}
}

func (fs *gatedFileSystem) Open(name string) (io.ReadCloser, int64, error) {
	if name == fs.path {
		close(fs.entered)
		<-fs.release
	}
	return fs.FileSystem.Open(name)
}

func TestCache_SlowLoadDoesNotBlockOtherPaths(t *testing.T) {
	dir := t.TempDir()
	slow, fast := randomPath(t, dir), randomPath(t, dir)
	clock := &fakeClock{now: time.Unix(1700000000, 0), modified: map[string]time.Time{}}
	writeDB(t, clock, slow, map[string]uint32{"10.0.0.0/8": 1})
	writeDB(t, clock, fast, map[string]uint32{"10.0.0.0/8": 2})

	fs := &gatedFileSystem{
		FileSystem: OSFileSystem(),
		path:       slow,
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	cache, err := NewCache[uint32](DefaultCacheConfig(), Uint32Serializer{}, WithFileSystem(fs))
	require.NoError(t, err)

	slowDone := make(chan error, 1)
	go func() {
		_, err := cache.Get(slow)
		slowDone <- err
	}()
	<-fs.entered

	fastDone := make(chan error, 1)
	go func() {
		_, err := cache.Get(fast)
		fastDone <- err
	}()

	select {
	case err := <-fastDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		close(fs.release)
		t.Fatalf("Get of %s blocked by the load of %s", fast, slow)
	}

	close(fs.release)
	require.NoError(t, <-slowDone)
	require.ElementsMatch(t, []string{slow, fast}, cache.Paths())
}
