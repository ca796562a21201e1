//go:build !linux && !freebsd

package fusefs

import (
	"context"
	"errors"

	vfs "github.com/s0up4200/go-udfvfs/internal/fs"
)

// Options tune a mount.
type Options struct {
	FSName     string
	AllowOther bool
}

// Mount is not available on this platform.
func Mount(ctx context.Context, fsys vfs.FileSystem, mountpoint string, opts Options) error {
	return errors.New("fuse mounts are not supported on this platform")
}
