//go:build linux || freebsd

package fusefs

import (
	"context"
	"io"
	"os"
	"path"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
	"golang.org/x/sys/unix"

	vfs "github.com/s0up4200/go-udfvfs/internal/fs"
	"github.com/s0up4200/go-udfvfs/internal/logging"
)

var log = logging.Component("fusefs")

// FS serves a read-only FileSystem over FUSE.
type FS struct {
	fsys vfs.FileSystem
	uid  uint32
	gid  uint32
}

var _ fusefs.FS = (*FS)(nil)

// New returns a FUSE tree for fsys. Files are owned by the mounting user.
func New(fsys vfs.FileSystem) *FS {
	return &FS{
		fsys: fsys,
		uid:  uint32(os.Getuid()),
		gid:  uint32(os.Getgid()),
	}
}

func (f *FS) Root() (fusefs.Node, error) {
	return &Dir{fs: f, path: "/"}, nil
}

func (f *FS) attr(p string, a *fuse.Attr) error {
	md, err := f.fsys.Metadata(p)
	if err != nil {
		return toErrno(err)
	}

	a.Mode = md.Mode
	if md.LengthKnown {
		a.Size = uint64(md.Length)
		a.Blocks = (a.Size + 511) / 512
	}
	a.Nlink = uint32(max(md.Links, 1))
	a.Mtime = md.ModTime
	a.Atime = md.ModTime
	a.Ctime = md.ModTime
	a.Uid = f.uid
	a.Gid = f.gid
	a.BlockSize = 2048
	return nil
}

// Dir is a directory node.
type Dir struct {
	fs   *FS
	path string
}

var (
	_ fusefs.Node               = (*Dir)(nil)
	_ fusefs.NodeStringLookuper = (*Dir)(nil)
	_ fusefs.HandleReadDirAller = (*Dir)(nil)
	_ fusefs.NodeMkdirer        = (*Dir)(nil)
	_ fusefs.NodeCreater        = (*Dir)(nil)
	_ fusefs.NodeRemover        = (*Dir)(nil)
)

func (d *Dir) Attr(_ context.Context, a *fuse.Attr) error {
	log.Tracef("attr %q", d.path)
	return d.fs.attr(d.path, a)
}

func (d *Dir) Lookup(_ context.Context, name string) (fusefs.Node, error) {
	child := path.Join(d.path, name)
	log.Debugf("lookup %q", child)

	md, err := d.fs.fsys.Metadata(child)
	if err != nil {
		return nil, toErrno(err)
	}
	if md.IsDir {
		return &Dir{fs: d.fs, path: child}, nil
	}
	return &File{fs: d.fs, path: child}, nil
}

func (d *Dir) ReadDirAll(_ context.Context) ([]fuse.Dirent, error) {
	log.Debugf("readdir %q", d.path)

	names, err := d.fs.fsys.ReadDir(d.path)
	if err != nil {
		return nil, toErrno(err)
	}

	entries := make([]fuse.Dirent, 0, len(names))
	for _, name := range names {
		ent := fuse.Dirent{Name: name, Type: fuse.DT_File}
		if md, err := d.fs.fsys.Metadata(path.Join(d.path, name)); err == nil && md.IsDir {
			ent.Type = fuse.DT_Dir
		}
		entries = append(entries, ent)
	}
	return entries, nil
}

func (d *Dir) Mkdir(_ context.Context, req *fuse.MkdirRequest) (fusefs.Node, error) {
	return nil, unix.EROFS
}

func (d *Dir) Create(_ context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse) (fusefs.Node, fusefs.Handle, error) {
	return nil, nil, unix.EROFS
}

func (d *Dir) Remove(_ context.Context, req *fuse.RemoveRequest) error {
	return unix.EROFS
}

// File is a regular file node.
type File struct {
	fs   *FS
	path string
}

var (
	_ fusefs.Node       = (*File)(nil)
	_ fusefs.NodeOpener = (*File)(nil)
)

func (f *File) Attr(_ context.Context, a *fuse.Attr) error {
	log.Tracef("attr %q", f.path)
	return f.fs.attr(f.path, a)
}

func (f *File) Open(_ context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fusefs.Handle, error) {
	if !req.Flags.IsReadOnly() {
		log.Warnf("write access to read-only file %q refused", f.path)
		return nil, unix.EROFS
	}

	file, err := f.fs.fsys.OpenFile(f.path)
	if err != nil {
		return nil, toErrno(err)
	}
	resp.Flags |= fuse.OpenKeepCache
	log.Debugf("opened %q", f.path)
	return &FileHandle{file: file, path: f.path}, nil
}

// FileHandle is an open file.
type FileHandle struct {
	file vfs.File
	path string
}

var (
	_ fusefs.HandleReader   = (*FileHandle)(nil)
	_ fusefs.HandleReleaser = (*FileHandle)(nil)
)

func (fh *FileHandle) Read(_ context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	log.Tracef("read %q size=%d off=%d", fh.path, req.Size, req.Offset)

	resp.Data = make([]byte, req.Size)
	n, err := fh.file.ReadAt(resp.Data, req.Offset)
	if err != nil && err != io.EOF {
		log.Errorf("read %q: %v", fh.path, err)
		return toErrno(err)
	}
	resp.Data = resp.Data[:n]
	return nil
}

func (fh *FileHandle) Release(_ context.Context, _ *fuse.ReleaseRequest) error {
	log.Debugf("release %q", fh.path)
	return fh.file.Close()
}
