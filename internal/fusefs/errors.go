//go:build linux || freebsd

package fusefs

import (
	"errors"

	"golang.org/x/sys/unix"

	vfs "github.com/s0up4200/go-udfvfs/internal/fs"
)

// toErrno converts filesystem errors into the errno FUSE replies with.
func toErrno(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, vfs.ErrFileNotFound):
		return unix.ENOENT
	case errors.Is(err, vfs.ErrNotADirectory):
		return unix.ENOTDIR
	case errors.Is(err, vfs.ErrNotAFile):
		return unix.EISDIR
	case errors.Is(err, vfs.ErrNotSupported):
		return unix.EROFS
	default:
		log.Debugf("unmapped error, returning EIO: %v", err)
		return unix.EIO
	}
}
