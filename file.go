package prefixdb

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-uuid"
)

//go:generate mockgen -source file.go -destination file_mocks.go -package prefixdb

// File represents the methods of os.File used when writing a database.
// This interface is provided to enable mocking.
type File interface {
	io.Writer
	Sync() error
	Close() error
	Name() string
}

// FileSystem represents the file operations needed to save and open
// databases. This interface is provided to enable mocking.
type FileSystem interface {
	Create(name string) (File, error)
	Open(name string) (io.ReadCloser, int64, error)
	Rename(oldpath, newpath string) error
	Remove(name string) error
}

type osFileSystem struct{}

// OSFileSystem returns the FileSystem backed by the operating system.
func OSFileSystem() FileSystem {
	return osFileSystem{}
}

func (osFileSystem) Create(name string) (File, error) {
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (osFileSystem) Open(name string) (io.ReadCloser, int64, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		return nil, 0, errors.Join(err, f.Close())
	}
	return f, info.Size(), nil
}

func (osFileSystem) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

func (osFileSystem) Remove(name string) error {
	return os.Remove(name)
}

// tempName returns a unique sibling of path, so the final rename stays on
// the same file system.
func tempName(path string) (string, error) {
	id, err := uuid.GenerateUUID()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(path), fmt.Sprintf(".%s.%s.tmp", filepath.Base(path), id)), nil
}

// writeFileAtomic writes the content produced by write into path. The data
// is written to a temporary file which is synced and then renamed over
// path, so readers see either the old or the new file, never a partial one.
// On failure the temporary file is removed and path is left untouched.
func writeFileAtomic(fs FileSystem, path string, write func(io.Writer) error) (err error) {
	tmp, err := tempName(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	file, err := fs.Create(tmp)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	committed := false
	defer func() {
		if !committed {
			if removeErr := fs.Remove(tmp); removeErr != nil {
				err = errors.Join(err, removeErr)
			}
		}
	}()

	if err := write(file); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, errors.Join(err, file.Close()))
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, errors.Join(err, file.Close()))
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	if err := fs.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	committed = true
	return nil
}
