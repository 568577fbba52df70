package posix

import (
	"errors"
	"os"
	"syscall"

	"github.com/hio-engine/libhio"
)

// classifyErrno is the single projection from a raw filesystem error into
// the engine's error kind taxonomy. Every posix.* function that returns a
// *libhio.Error routes through here instead of inventing its own mapping.
func classifyErrno(err error) libhio.ErrorCode {
	if err == nil {
		return libhio.Generic
	}
	switch {
	case errors.Is(err, os.ErrNotExist), errors.Is(err, syscall.ENOENT):
		return libhio.NotFound
	case errors.Is(err, os.ErrPermission), errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		return libhio.Perm
	case errors.Is(err, syscall.ENOSPC), errors.Is(err, syscall.EDQUOT), errors.Is(err, syscall.EMFILE), errors.Is(err, syscall.ENFILE):
		return libhio.OutOfResource
	case errors.Is(err, syscall.EINVAL):
		return libhio.BadParam
	}
	if libhio.IsFailoverQualifiedIOError(err) {
		return libhio.IOPermanent
	}
	if libhio.ShouldRetry(err) {
		return libhio.IOTemporary
	}
	return libhio.Generic
}

// wrapErr builds a *libhio.Error for op/path from a raw error, or returns
// nil if err is nil.
func wrapErr(rank int, op, path string, err error) *libhio.Error {
	if err == nil {
		return nil
	}
	return libhio.NewError(classifyErrno(err), rank, op, path, err)
}
