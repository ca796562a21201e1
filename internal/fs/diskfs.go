package fs

import (
	"errors"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"syscall"
)

// DiskFileSystem implements FileSystem for a directory on disk. It is
// read-only like the image file systems so the tools behave the same on
// extracted discs.
type DiskFileSystem struct {
	root string
}

var _ FileSystem = (*DiskFileSystem)(nil)

// NewDiskFileSystem creates a file system rooted at dir.
func NewDiskFileSystem(dir string) *DiskFileSystem {
	return &DiskFileSystem{root: dir}
}

// hostPath maps a slash path onto the host without escaping the root.
func (fs *DiskFileSystem) hostPath(p string) string {
	return filepath.Join(fs.root, filepath.FromSlash(normalizePath(p)))
}

func (fs *DiskFileSystem) ReadDir(p string) ([]string, error) {
	entries, err := os.ReadDir(fs.hostPath(p))
	if err != nil {
		return nil, diskError(OpReadDir, p, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names, nil
}

func (fs *DiskFileSystem) OpenFile(p string) (File, error) {
	host := fs.hostPath(p)
	info, err := os.Stat(host)
	if err != nil {
		return nil, diskError(OpOpen, p, err)
	}
	if info.IsDir() {
		return nil, NewError(OpOpen, p, ErrNotAFile)
	}
	f, err := os.Open(host)
	if err != nil {
		return nil, diskError(OpOpen, p, err)
	}
	return f, nil
}

func (fs *DiskFileSystem) Metadata(p string) (Metadata, error) {
	info, err := os.Stat(fs.hostPath(p))
	if err != nil {
		return Metadata{}, diskError(OpStat, p, err)
	}

	md := Metadata{
		Name:        info.Name(),
		IsDir:       info.IsDir(),
		Length:      info.Size(),
		LengthKnown: true,
		Mode:        info.Mode(),
		ModTime:     info.ModTime(),
	}
	return md, nil
}

func (fs *DiskFileSystem) Exists(p string) (bool, error) {
	_, err := os.Stat(fs.hostPath(p))
	if errors.Is(err, iofs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, diskError(OpLookup, p, err)
	}
	return true, nil
}

func (fs *DiskFileSystem) CreateDir(p string) error {
	return NewError(OpMkdir, p, ErrNotSupported)
}

func (fs *DiskFileSystem) CreateFile(p string) (io.WriteCloser, error) {
	return nil, NewError(OpCreate, p, ErrNotSupported)
}

func (fs *DiskFileSystem) AppendFile(p string) (io.WriteCloser, error) {
	return nil, NewError(OpAppend, p, ErrNotSupported)
}

func (fs *DiskFileSystem) RemoveFile(p string) error {
	return NewError(OpRemove, p, ErrNotSupported)
}

func (fs *DiskFileSystem) RemoveDir(p string) error {
	return NewError(OpRemoveDir, p, ErrNotSupported)
}

func diskError(op, p string, err error) error {
	switch {
	case errors.Is(err, iofs.ErrNotExist):
		return NewError(op, p, ErrFileNotFound)
	case errors.Is(err, syscall.ENOTDIR):
		return NewError(op, p, ErrNotADirectory)
	default:
		return NewError(op, p, err)
	}
}
