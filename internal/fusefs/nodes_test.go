//go:build linux || freebsd

package fusefs

import (
	"context"
	"os"
	"testing"

	"bazil.org/fuse"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	vfs "github.com/s0up4200/go-udfvfs/internal/fs"
	"github.com/s0up4200/go-udfvfs/internal/fs/udf/udftest"
)

func newTestFS(t *testing.T) *FS {
	t.Helper()
	fsys := vfs.NewUDFFileSystem()
	require.NoError(t, fsys.Mount(udftest.Write(t,
		udftest.Dir("BDMV", udftest.File("index.bdmv", []byte("INDX0200"))),
		udftest.File("README.TXT", udftest.Pattern(5000)),
	)))
	t.Cleanup(func() { fsys.Unmount() })
	return New(fsys)
}

func TestDir_LookupAndReadDirAll(t *testing.T) {
	ctx := context.Background()
	f := newTestFS(t)

	root, err := f.Root()
	require.NoError(t, err)
	dir := root.(*Dir)

	entries, err := dir.ReadDirAll(ctx)
	require.NoError(t, err)
	require.Equal(t, []fuse.Dirent{
		{Name: "BDMV", Type: fuse.DT_Dir},
		{Name: "README.TXT", Type: fuse.DT_File},
	}, entries)

	node, err := dir.Lookup(ctx, "BDMV")
	require.NoError(t, err)
	require.IsType(t, &Dir{}, node)

	var a fuse.Attr
	require.NoError(t, node.Attr(ctx, &a))
	require.True(t, a.Mode.IsDir())

	_, err = dir.Lookup(ctx, "missing")
	require.ErrorIs(t, err, unix.ENOENT)

	_, err = dir.Mkdir(ctx, &fuse.MkdirRequest{Name: "new"})
	require.ErrorIs(t, err, unix.EROFS)
}

func TestFile_OpenAndRead(t *testing.T) {
	ctx := context.Background()
	f := newTestFS(t)

	root, _ := f.Root()
	node, err := root.(*Dir).Lookup(ctx, "README.TXT")
	require.NoError(t, err)
	file := node.(*File)

	var a fuse.Attr
	require.NoError(t, file.Attr(ctx, &a))
	require.EqualValues(t, 5000, a.Size)
	require.EqualValues(t, 1, a.Nlink)

	_, err = file.Open(ctx, &fuse.OpenRequest{Flags: fuse.OpenFlags(os.O_RDWR)}, &fuse.OpenResponse{})
	require.ErrorIs(t, err, unix.EROFS)

	h, err := file.Open(ctx, &fuse.OpenRequest{Flags: fuse.OpenReadOnly}, &fuse.OpenResponse{})
	require.NoError(t, err)
	fh := h.(*FileHandle)

	resp := &fuse.ReadResponse{}
	require.NoError(t, fh.Read(ctx, &fuse.ReadRequest{Offset: 4900, Size: 4096}, resp))
	require.Equal(t, udftest.Pattern(5000)[4900:], resp.Data)

	require.NoError(t, fh.Release(ctx, &fuse.ReleaseRequest{}))
}

func TestToErrno(t *testing.T) {
	require.NoError(t, toErrno(nil))
	require.Equal(t, unix.ENOENT, toErrno(vfs.NewError(vfs.OpLookup, "/x", vfs.ErrFileNotFound)))
	require.Equal(t, unix.EISDIR, toErrno(vfs.NewError(vfs.OpOpen, "/x", vfs.ErrNotAFile)))
	require.Equal(t, unix.ENOTDIR, toErrno(vfs.NewError(vfs.OpReadDir, "/x", vfs.ErrNotADirectory)))
	require.Equal(t, unix.EROFS, toErrno(vfs.ErrNotSupported))
	require.Equal(t, unix.EIO, toErrno(vfs.ErrIO))
}
