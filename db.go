package prefixdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// DB is a handle on one prefix database: a prefix tree, the serializer of
// its payloads and the file system it is saved to. There is no default
// database; every caller owns the handles it creates.
//
// Without options a DB must not be mutated concurrently with any other
// call. WithRWMutex makes all methods safe for concurrent use.
type DB[V any] struct {
	tree       *Tree[V]
	serializer Serializer[V]
	fs         FileSystem
}

type options struct {
	fs        FileSystem
	rlockFn   ReadLockFn
	runlockFn ReadUnlockFn
	wlockFn   WriteLockFn
	unlockFn  UnlockFn
}

// Option configures a DB.
type Option func(*options)

// WithFileSystem replaces the operating system file system used by Open
// and Save.
func WithFileSystem(fs FileSystem) Option {
	return func(o *options) {
		o.fs = fs
	}
}

// WithLockHandlers installs custom lock handlers on the database's tree.
func WithLockHandlers(rlockFn ReadLockFn, runlockFn ReadUnlockFn, wlockFn WriteLockFn, unlockFn UnlockFn) Option {
	return func(o *options) {
		o.rlockFn, o.runlockFn, o.wlockFn, o.unlockFn = rlockFn, runlockFn, wlockFn, unlockFn
	}
}

// WithRWMutex guards the database with a readers-writer lock: searches and
// saves share it, additions and compaction hold it exclusively.
func WithRWMutex() Option {
	mu := &sync.RWMutex{}
	return WithLockHandlers(
		func(context.Context) { mu.RLock() },
		func(context.Context) { mu.RUnlock() },
		func(context.Context) { mu.Lock() },
		func(context.Context) { mu.Unlock() },
	)
}

func newDB[V any](tree *Tree[V], s Serializer[V], opts []Option) *DB[V] {
	o := options{fs: OSFileSystem()}
	for _, opt := range opts {
		opt(&o)
	}
	tree.SetLockHandlers(o.rlockFn, o.runlockFn, o.wlockFn, o.unlockFn)
	return &DB[V]{
		tree:       tree,
		serializer: s,
		fs:         o.fs,
	}
}

// New returns an empty database whose payloads are serialized by s.
func New[V any](s Serializer[V], opts ...Option) *DB[V] {
	return newDB(NewTree[V](), s, opts)
}

// FromTree wraps a tree, such as one returned by Decode, in a database.
// The tree's lock handlers are replaced by those of the options.
func FromTree[V any](tree *Tree[V], s Serializer[V], opts ...Option) *DB[V] {
	return newDB(tree, s, opts)
}

// Open loads the database saved at path. It fails rather than returning an
// empty database: the error wraps ErrIO if the file cannot be read and
// ErrCorruptData if its content is not a valid image for s.
func Open[V any](path string, s Serializer[V], opts ...Option) (db *DB[V], err error) {
	o := options{fs: OSFileSystem()}
	for _, opt := range opts {
		opt(&o)
	}

	file, size, err := o.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, errors.Join(ErrIO, err))
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			db, err = nil, fmt.Errorf("closing %s: %w", path, errors.Join(ErrIO, closeErr))
		}
	}()

	tree, err := DecodeSized(file, size, s)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return newDB(tree, s, opts), nil
}

// ReadImage loads a database from an image produced by WriteImage or Save.
func ReadImage[V any](r io.Reader, s Serializer[V], opts ...Option) (*DB[V], error) {
	tree, err := Decode(r, s)
	if err != nil {
		return nil, err
	}
	return newDB(tree, s, opts), nil
}

// Len returns the number of stored prefixes.
func (db *DB[V]) Len() uint64 {
	return db.tree.Len()
}

// Nodes returns the number of trie nodes.
func (db *DB[V]) Nodes() uint64 {
	return db.tree.Nodes()
}

// Add stores the prefix given in CIDR notation with the given value. A
// prefix that is already stored gets its value replaced. The database is
// left unchanged unless OK is returned.
func (db *DB[V]) Add(ctx context.Context, text string, value V) ErrorCode {
	key, err := ParsePrefix(text)
	if err != nil {
		return InvalidFormat
	}
	_, err = db.tree.Insert(ctx, key, value)
	return CodeOf(err)
}

// Lookup returns the value of the longest stored prefix containing the
// address given in dotted-quad notation.
func (db *DB[V]) Lookup(ctx context.Context, text string) (OpResult, V, error) {
	_, res, value, err := db.LookupPrefix(ctx, text)
	return res, value, err
}

// LookupPrefix is like Lookup but also returns the matching prefix.
func (db *DB[V]) LookupPrefix(ctx context.Context, text string) (Key, OpResult, V, error) {
	var zero V
	key, err := ParseAddress(text)
	if err != nil {
		return Key{}, Error, zero, err
	}
	return db.tree.LookupKey(ctx, key.Addr)
}

// Search returns the value of the longest stored prefix containing the
// address, and false if there is none or the address is malformed.
func (db *DB[V]) Search(ctx context.Context, text string) (V, bool) {
	res, value, _ := db.Lookup(ctx, text)
	return value, res == Match
}

// Walk calls fn for every stored prefix in address order. fn must not
// modify the database.
func (db *DB[V]) Walk(ctx context.Context, fn WalkerFn[V]) error {
	return db.tree.Walk(ctx, fn)
}

// Compact drops prefixes that do not affect any search result, comparing
// values by their serialized form, and returns how many were dropped.
func (db *DB[V]) Compact(ctx context.Context) (int, error) {
	return db.tree.Compact(ctx, equalBySerializer(db.serializer))
}

// WriteImage writes the database image to w.
func (db *DB[V]) WriteImage(ctx context.Context, w io.Writer) error {
	_, err := encode(ctx, w, db.tree, db.serializer)
	return err
}

// WriteImageStats is WriteImage also returning the counts of the written
// image. Concurrent additions cannot make them disagree with the image.
func (db *DB[V]) WriteImageStats(ctx context.Context, w io.Writer) (ImageStats, error) {
	return encode(ctx, w, db.tree, db.serializer)
}

// SaveFile atomically replaces the file at path with the database image.
func (db *DB[V]) SaveFile(ctx context.Context, path string) error {
	err := writeFileAtomic(db.fs, path, func(w io.Writer) error {
		return db.WriteImage(ctx, w)
	})
	if err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	return nil
}

// Save is SaveFile reporting OK or IOError.
func (db *DB[V]) Save(ctx context.Context, path string) ErrorCode {
	if err := db.SaveFile(ctx, path); err != nil {
		return IOError
	}
	return OK
}
