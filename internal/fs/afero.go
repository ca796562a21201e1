package fs

import (
	"errors"
	"io"
	iofs "io/fs"
	"os"
	"path"
	"time"

	"github.com/spf13/afero"
)

// AferoFs exposes a FileSystem as a read-only afero.Fs.
type AferoFs struct {
	fsys FileSystem
	name string
}

var _ afero.Fs = (*AferoFs)(nil)

// NewAferoFs wraps fsys. Mutating calls fail with an *os.PathError
// wrapping ErrNotSupported.
func NewAferoFs(fsys FileSystem, name string) *AferoFs {
	return &AferoFs{fsys: fsys, name: name}
}

func (a *AferoFs) Name() string { return a.name }

func (a *AferoFs) Open(name string) (afero.File, error) {
	md, err := a.fsys.Metadata(name)
	if err != nil {
		return nil, pathError("open", name, err)
	}

	f := &aferoFile{fsys: a.fsys, name: name, md: md}
	if md.IsDir {
		return f, nil
	}
	f.f, err = a.fsys.OpenFile(name)
	if err != nil {
		return nil, pathError("open", name, err)
	}
	return f, nil
}

func (a *AferoFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_APPEND|os.O_CREATE|os.O_TRUNC) != 0 {
		return nil, pathError("open", name, ErrNotSupported)
	}
	return a.Open(name)
}

func (a *AferoFs) Stat(name string) (os.FileInfo, error) {
	md, err := a.fsys.Metadata(name)
	if err != nil {
		return nil, pathError("stat", name, err)
	}
	return fileInfo{md}, nil
}

func (a *AferoFs) Create(name string) (afero.File, error) {
	return nil, pathError("create", name, ErrNotSupported)
}

func (a *AferoFs) Mkdir(name string, perm os.FileMode) error {
	return pathError("mkdir", name, ErrNotSupported)
}

func (a *AferoFs) MkdirAll(p string, perm os.FileMode) error {
	return pathError("mkdir", p, ErrNotSupported)
}

func (a *AferoFs) Remove(name string) error {
	return pathError("remove", name, ErrNotSupported)
}

func (a *AferoFs) RemoveAll(p string) error {
	return pathError("remove", p, ErrNotSupported)
}

func (a *AferoFs) Rename(oldname, newname string) error {
	return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: ErrNotSupported}
}

func (a *AferoFs) Chmod(name string, mode os.FileMode) error {
	return pathError("chmod", name, ErrNotSupported)
}

func (a *AferoFs) Chown(name string, uid, gid int) error {
	return pathError("chown", name, ErrNotSupported)
}

func (a *AferoFs) Chtimes(name string, atime time.Time, mtime time.Time) error {
	return pathError("chtimes", name, ErrNotSupported)
}

// pathError converts contract errors into the os errors afero callers test for.
func pathError(op, name string, err error) error {
	switch {
	case errors.Is(err, ErrFileNotFound):
		err = iofs.ErrNotExist
	case errors.Is(err, ErrNotSupported):
		err = ErrNotSupported
	}
	return &os.PathError{Op: op, Path: name, Err: err}
}

type fileInfo struct {
	md Metadata
}

func (fi fileInfo) Name() string       { return fi.md.Name }
func (fi fileInfo) Size() int64        { return fi.md.Length }
func (fi fileInfo) Mode() os.FileMode  { return fi.md.Mode }
func (fi fileInfo) ModTime() time.Time { return fi.md.ModTime }
func (fi fileInfo) IsDir() bool        { return fi.md.IsDir }
func (fi fileInfo) Sys() any           { return fi.md }

type aferoFile struct {
	fsys FileSystem
	name string
	md   Metadata
	f    File // nil for directories

	names  []string
	dirPos int
	listed bool
	dirErr error
}

func (f *aferoFile) Name() string { return f.name }

func (f *aferoFile) Stat() (os.FileInfo, error) { return fileInfo{f.md}, nil }

func (f *aferoFile) Close() error {
	if f.f == nil {
		return nil
	}
	return f.f.Close()
}

func (f *aferoFile) Read(p []byte) (int, error) {
	if f.f == nil {
		return 0, pathError("read", f.name, ErrNotAFile)
	}
	return f.f.Read(p)
}

func (f *aferoFile) ReadAt(p []byte, off int64) (int, error) {
	if f.f == nil {
		return 0, pathError("read", f.name, ErrNotAFile)
	}
	return f.f.ReadAt(p, off)
}

func (f *aferoFile) Seek(offset int64, whence int) (int64, error) {
	if f.f == nil {
		return 0, pathError("seek", f.name, ErrNotAFile)
	}
	return f.f.Seek(offset, whence)
}

func (f *aferoFile) Readdirnames(n int) ([]string, error) {
	if !f.md.IsDir {
		return nil, pathError("readdir", f.name, ErrNotADirectory)
	}
	if !f.listed {
		f.names, f.dirErr = f.fsys.ReadDir(f.name)
		f.listed = true
	}
	if f.dirErr != nil {
		return nil, pathError("readdir", f.name, f.dirErr)
	}

	rest := f.names[f.dirPos:]
	if n <= 0 {
		f.dirPos = len(f.names)
		return rest, nil
	}
	if len(rest) == 0 {
		return nil, io.EOF
	}
	rest = rest[:min(n, len(rest))]
	f.dirPos += len(rest)
	return rest, nil
}

func (f *aferoFile) Readdir(count int) ([]os.FileInfo, error) {
	names, err := f.Readdirnames(count)
	if err != nil {
		return nil, err
	}

	infos := make([]os.FileInfo, 0, len(names))
	for _, name := range names {
		md, err := f.fsys.Metadata(path.Join(f.name, name))
		if err != nil {
			return infos, pathError("lstat", path.Join(f.name, name), err)
		}
		md.Name = name
		infos = append(infos, fileInfo{md})
	}
	return infos, nil
}

func (f *aferoFile) Write(p []byte) (int, error) {
	return 0, pathError("write", f.name, ErrNotSupported)
}

func (f *aferoFile) WriteAt(p []byte, off int64) (int, error) {
	return 0, pathError("write", f.name, ErrNotSupported)
}

func (f *aferoFile) WriteString(s string) (int, error) {
	return 0, pathError("write", f.name, ErrNotSupported)
}

func (f *aferoFile) Truncate(size int64) error {
	return pathError("truncate", f.name, ErrNotSupported)
}

func (f *aferoFile) Sync() error { return nil }
