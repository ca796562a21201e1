package fs

import (
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/s0up4200/go-udfvfs/internal/logging"
	"github.com/s0up4200/go-udfvfs/pkg/udf"
)

// UDFFileSystem implements FileSystem over a UDF image.
type UDFFileSystem struct {
	imagePath string
	vol       *udf.Volume
	log       *log.Entry
}

var _ FileSystem = (*UDFFileSystem)(nil)

// NewUDFFileSystem creates an unmounted UDF file system.
func NewUDFFileSystem() *UDFFileSystem {
	return &UDFFileSystem{log: logging.Component("udffs")}
}

// Mount opens the image and prepares it for reading.
func (fs *UDFFileSystem) Mount(imagePath string, opts ...udf.Option) error {
	if fs.vol != nil {
		return NewError(OpMount, imagePath, errors.New("image already mounted"))
	}

	opts = append([]udf.Option{udf.WithLogger(fs.log)}, opts...)
	vol, err := udf.Open(imagePath, opts...)
	if err != nil {
		return NewError(OpMount, imagePath, err)
	}

	fs.vol = vol
	fs.imagePath = imagePath
	fs.log.Debugf("mounted %s label=%q", imagePath, vol.Label())
	return nil
}

// Unmount closes the image.
func (fs *UDFFileSystem) Unmount() error {
	if fs.vol == nil {
		return nil
	}
	err := fs.vol.Close()
	fs.vol = nil
	return err
}

// GetVolumeLabel returns the volume label of the mounted image.
func (fs *UDFFileSystem) GetVolumeLabel() string {
	if fs.vol == nil {
		return ""
	}
	return fs.vol.Label()
}

// Volume returns the mounted volume, or nil.
func (fs *UDFFileSystem) Volume() *udf.Volume {
	return fs.vol
}

func (fs *UDFFileSystem) ReadDir(p string) ([]string, error) {
	e, err := fs.resolve(OpReadDir, p)
	if err != nil {
		return nil, err
	}
	defer e.Close()

	if !e.IsDir() {
		return nil, NewError(OpReadDir, p, ErrNotADirectory)
	}

	names := []string{}
	for c := e.Child(); c != nil; c = c.NextSibling() {
		name, ok := c.FileName()
		if !ok {
			continue
		}
		names = append(names, string(name))
	}
	return names, nil
}

func (fs *UDFFileSystem) OpenFile(p string) (File, error) {
	e, err := fs.resolve(OpOpen, p)
	if err != nil {
		return nil, err
	}
	if e.IsDir() {
		e.Close()
		return nil, NewError(OpOpen, p, ErrNotAFile)
	}
	return &udfFile{r: udf.NewFileReader(e), path: normalizePath(p)}, nil
}

func (fs *UDFFileSystem) Metadata(p string) (Metadata, error) {
	e, err := fs.resolve(OpStat, p)
	if err != nil {
		return Metadata{}, err
	}
	defer e.Close()

	md := Metadata{
		Name:    path.Base(normalizePath(p)),
		IsDir:   e.IsDir(),
		Mode:    e.Mode(),
		ModTime: e.ModTime(),
	}
	md.Length, md.LengthKnown = e.FileLength()
	md.Links, _ = e.LinkCount()
	return md, nil
}

func (fs *UDFFileSystem) Exists(p string) (bool, error) {
	e, err := fs.resolve(OpLookup, p)
	if errors.Is(err, ErrFileNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	e.Close()
	return true, nil
}

func (fs *UDFFileSystem) CreateDir(p string) error {
	return NewError(OpMkdir, p, ErrNotSupported)
}

func (fs *UDFFileSystem) CreateFile(p string) (io.WriteCloser, error) {
	return nil, NewError(OpCreate, p, ErrNotSupported)
}

func (fs *UDFFileSystem) AppendFile(p string) (io.WriteCloser, error) {
	return nil, NewError(OpAppend, p, ErrNotSupported)
}

func (fs *UDFFileSystem) RemoveFile(p string) error {
	return NewError(OpRemove, p, ErrNotSupported)
}

func (fs *UDFFileSystem) RemoveDir(p string) error {
	return NewError(OpRemoveDir, p, ErrNotSupported)
}

// resolve returns an entry for p that the caller must close.
func (fs *UDFFileSystem) resolve(op, p string) (*udf.DirectoryEntry, error) {
	if fs.vol == nil {
		return nil, NewError(op, p, ErrNotMounted)
	}
	e := fs.vol.Fopen(normalizePath(p))
	if e == nil {
		return nil, NewError(op, p, ErrFileNotFound)
	}
	return e, nil
}

// normalizePath normalizes a path for UDF access
func normalizePath(p string) string {
	p = strings.TrimPrefix(p, "./")
	return path.Clean("/" + p)
}

// udfFile reports read failures in the package error vocabulary.
type udfFile struct {
	r    *udf.FileReader
	path string
}

func (f *udfFile) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)
	return n, f.wrap(err)
}

func (f *udfFile) ReadAt(p []byte, off int64) (int, error) {
	n, err := f.r.ReadAt(p, off)
	return n, f.wrap(err)
}

func (f *udfFile) Seek(offset int64, whence int) (int64, error) {
	return f.r.Seek(offset, whence)
}

func (f *udfFile) Close() error {
	return f.r.Close()
}

func (f *udfFile) wrap(err error) error {
	switch {
	case err == nil, err == io.EOF:
		return err
	case errors.Is(err, udf.ErrIO), errors.Is(err, udf.ErrLengthUnknown):
		return NewError(OpRead, f.path, fmt.Errorf("%w: %w", ErrIO, err))
	default:
		return NewError(OpRead, f.path, err)
	}
}
