package ldbstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/camelinx/prefixdb"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// TableSpace divides the key-value storage into spaces by adding a prefix
// to the key.
type TableSpace byte

const (
	// ImageKey is the table space of database images.
	ImageKey TableSpace = 'I'
	// StatsKey is the table space of per-image prefix and node counts.
	StatsKey TableSpace = 'S'
)

const ErrNotFound = prefixdb.ConstError("database not found in catalog")

// Stats summarizes a stored image without loading it.
type Stats = prefixdb.ImageStats

// Catalog keeps named prefix databases in a LevelDB instance. Every
// database is stored as its binary image, so a catalog entry can be
// exported to a file and back without conversion.
type Catalog[V any] struct {
	db         *leveldb.DB
	serializer prefixdb.Serializer[V]
	opts       []prefixdb.Option
}

// Open opens or creates the catalog in directory dir. Databases loaded from
// it are created with the given options.
func Open[V any](dir string, s prefixdb.Serializer[V], opts ...prefixdb.Option) (*Catalog[V], error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog %s: %w", dir, err)
	}
	return &Catalog[V]{
		db:         db,
		serializer: s,
		opts:       opts,
	}, nil
}

func tableKey(table TableSpace, name string) []byte {
	key := make([]byte, 0, 1+len(name))
	key = append(key, byte(table))
	return append(key, name...)
}

// Put stores db under name, replacing any previous entry. The image and
// its stats are written in one batch.
func (c *Catalog[V]) Put(ctx context.Context, name string, db *prefixdb.DB[V]) error {
	if name == "" {
		return fmt.Errorf("empty database name: %w", prefixdb.ErrInvalidFormat)
	}

	var image bytes.Buffer
	counts, err := db.WriteImageStats(ctx, &image)
	if err != nil {
		return err
	}

	var stats [16]byte
	binary.BigEndian.PutUint64(stats[0:], counts.Prefixes)
	binary.BigEndian.PutUint64(stats[8:], counts.Nodes)

	batch := new(leveldb.Batch)
	batch.Put(tableKey(ImageKey, name), image.Bytes())
	batch.Put(tableKey(StatsKey, name), stats[:])
	return c.db.Write(batch, &opt.WriteOptions{Sync: true})
}

// Get loads the database stored under name. It returns ErrNotFound if
// there is none.
func (c *Catalog[V]) Get(name string) (*prefixdb.DB[V], error) {
	image, err := c.db.Get(tableKey(ImageKey, name), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	tree, err := prefixdb.DecodeSized(bytes.NewReader(image), int64(len(image)), c.serializer)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", name, err)
	}
	return prefixdb.FromTree(tree, c.serializer, c.opts...), nil
}

// Stats returns the counts recorded for the database stored under name.
func (c *Catalog[V]) Stats(name string) (Stats, error) {
	value, err := c.db.Get(tableKey(StatsKey, name), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return Stats{}, fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	if err != nil {
		return Stats{}, err
	}
	if len(value) != 16 {
		return Stats{}, fmt.Errorf("%q: stats of %d bytes: %w", name, len(value), prefixdb.ErrCorruptData)
	}
	return Stats{
		Prefixes: binary.BigEndian.Uint64(value[0:]),
		Nodes:    binary.BigEndian.Uint64(value[8:]),
	}, nil
}

// Delete removes the database stored under name. Deleting a missing entry
// is not an error.
func (c *Catalog[V]) Delete(name string) error {
	batch := new(leveldb.Batch)
	batch.Delete(tableKey(ImageKey, name))
	batch.Delete(tableKey(StatsKey, name))
	return c.db.Write(batch, nil)
}

// Names returns the names of all stored databases in ascending order.
func (c *Catalog[V]) Names() ([]string, error) {
	iter := c.db.NewIterator(util.BytesPrefix([]byte{byte(ImageKey)}), nil)
	defer iter.Release()

	names := []string{}
	for iter.Next() {
		names = append(names, string(iter.Key()[1:]))
	}
	return names, iter.Error()
}

// Close closes the underlying LevelDB instance.
func (c *Catalog[V]) Close() error {
	return c.db.Close()
}
