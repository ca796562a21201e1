// Package fs defines the read-side filesystem contract used by the tools,
// with implementations backed by UDF images and by host directories.
package fs

import (
	"io"
	"io/fs"
	"time"
)

// FileSystem is the contract generic file tooling is written against.
// Paths are slash-separated and relative to the filesystem root; a leading
// slash is accepted.
type FileSystem interface {
	// ReadDir returns the names in a directory, in the order the backend
	// lists them.
	ReadDir(path string) ([]string, error)
	OpenFile(path string) (File, error)
	Metadata(path string) (Metadata, error)
	Exists(path string) (bool, error)

	CreateDir(path string) error
	CreateFile(path string) (io.WriteCloser, error)
	AppendFile(path string) (io.WriteCloser, error)
	RemoveFile(path string) error
	RemoveDir(path string) error
}

// File is an open, readable file.
type File interface {
	io.Reader
	io.ReaderAt
	io.Seeker
	io.Closer
}

// Metadata describes one path.
type Metadata struct {
	Name        string
	IsDir       bool
	Length      int64
	LengthKnown bool
	Mode        fs.FileMode
	ModTime     time.Time
	Links       uint16 // 0 when the backend does not report links
}
