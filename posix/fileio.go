// Package posix implements the POSIX tiered-storage dataset engine: path
// building, segment maps, the open-file cache, the reservation engine,
// manifest codec, and the dataset lifecycle (open/close/unlink/list) that
// together back hio.Module against an ordinary directory tree.
package posix

import (
	"context"
	"os"
	"path/filepath"

	"github.com/sethvargo/go-retry"

	"github.com/hio-engine/libhio"
)

// FileIO is the filesystem surface the posix engine drives. The default
// implementation delegates to os with retry handling for transient errors
// (e.g. NFS hiccups); errors hio.ShouldRetry treats as permanent, such as
// EMFILE or ENOSPC, are returned at once. Tests can substitute a fake to
// exercise error paths.
type FileIO interface {
	WriteFile(ctx context.Context, name string, data []byte, perm os.FileMode) error
	ReadFile(ctx context.Context, name string) ([]byte, error)
	OpenFile(ctx context.Context, name string, flag int, perm os.FileMode) (*os.File, error)
	Remove(ctx context.Context, name string) error
	RemoveAll(ctx context.Context, path string) error
	MkdirAll(ctx context.Context, path string, perm os.FileMode) error
	ReadDir(ctx context.Context, dir string) ([]os.DirEntry, error)
	Stat(ctx context.Context, name string) (os.FileInfo, error)
	Exists(ctx context.Context, path string) bool
}

type defaultFileIO struct{}

// NewFileIO returns a FileIO backed directly by the os package, retrying
// transient failures per hio.ShouldRetry.
func NewFileIO() FileIO { return defaultFileIO{} }

func (defaultFileIO) WriteFile(ctx context.Context, name string, data []byte, perm os.FileMode) error {
	if err := os.WriteFile(name, data, perm); err != nil {
		if derr := os.MkdirAll(filepath.Dir(name), 0o755); derr == nil {
			return retryIO(ctx, func(context.Context) error { return os.WriteFile(name, data, perm) })
		}
		return err
	}
	return nil
}

func (defaultFileIO) ReadFile(ctx context.Context, name string) ([]byte, error) {
	var ba []byte
	err := retryIO(ctx, func(context.Context) error {
		var e error
		ba, e = os.ReadFile(name)
		return e
	})
	return ba, err
}

// OpenFile opens name with flag/perm, creating parent directories first when
// flag includes O_CREATE. Retried on transient errors like the other ops.
func (defaultFileIO) OpenFile(ctx context.Context, name string, flag int, perm os.FileMode) (*os.File, error) {
	var f *os.File
	err := retryIO(ctx, func(context.Context) error {
		var e error
		f, e = os.OpenFile(name, flag, perm)
		if e != nil && flag&os.O_CREATE != 0 {
			if derr := os.MkdirAll(filepath.Dir(name), 0o755); derr == nil {
				f, e = os.OpenFile(name, flag, perm)
			}
		}
		return e
	})
	return f, err
}

func (defaultFileIO) Remove(ctx context.Context, name string) error {
	return retryIO(ctx, func(context.Context) error { return os.Remove(name) })
}

func (defaultFileIO) RemoveAll(ctx context.Context, path string) error {
	return retryIO(ctx, func(context.Context) error { return os.RemoveAll(path) })
}

func (defaultFileIO) MkdirAll(ctx context.Context, path string, perm os.FileMode) error {
	return retryIO(ctx, func(context.Context) error { return os.MkdirAll(path, perm) })
}

func (defaultFileIO) ReadDir(ctx context.Context, dir string) ([]os.DirEntry, error) {
	var r []os.DirEntry
	err := retryIO(ctx, func(context.Context) error {
		var e error
		r, e = os.ReadDir(dir)
		return e
	})
	return r, err
}

func (defaultFileIO) Stat(ctx context.Context, name string) (os.FileInfo, error) {
	var fi os.FileInfo
	err := retryIO(ctx, func(context.Context) error {
		var e error
		fi, e = os.Stat(name)
		return e
	})
	return fi, err
}

func (defaultFileIO) Exists(ctx context.Context, path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// retryIO drives every posix filesystem op through hio.Retry's Fibonacci
// backoff, classifying errors via hio.ShouldRetry so a permanent condition
// (ENOSPC, EROFS, EACCES, ...) fails fast instead of burning every attempt.
func retryIO(ctx context.Context, task func(ctx context.Context) error) error {
	return libhio.Retry(ctx, func(ctx context.Context) error {
		if err := task(ctx); err != nil {
			if libhio.ShouldRetry(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	}, nil)
}
