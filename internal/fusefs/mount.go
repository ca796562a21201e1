//go:build linux || freebsd

package fusefs

import (
	"context"
	"fmt"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"

	vfs "github.com/s0up4200/go-udfvfs/internal/fs"
)

// Options tune a mount.
type Options struct {
	FSName     string
	AllowOther bool
}

// Mount serves fsys at mountpoint until ctx is cancelled or the
// filesystem is unmounted externally.
func Mount(ctx context.Context, fsys vfs.FileSystem, mountpoint string, opts Options) error {
	if opts.FSName == "" {
		opts.FSName = "udfvfs"
	}

	mountOpts := []fuse.MountOption{
		fuse.FSName(opts.FSName),
		fuse.Subtype("udfvfs"),
		fuse.ReadOnly(),
		fuse.DefaultPermissions(),
	}
	if opts.AllowOther {
		mountOpts = append(mountOpts, fuse.AllowOther())
	}

	c, err := fuse.Mount(mountpoint, mountOpts...)
	if err != nil {
		return fmt.Errorf("mount %s: %w", mountpoint, err)
	}
	defer c.Close()

	done := make(chan error, 1)
	go func() {
		log.Infof("serving %s", mountpoint)
		done <- fusefs.Serve(c, New(fsys))
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		log.Infof("unmounting %s", mountpoint)
		if err := fuse.Unmount(mountpoint); err != nil {
			return fmt.Errorf("unmount %s: %w", mountpoint, err)
		}
		return <-done
	}
}
