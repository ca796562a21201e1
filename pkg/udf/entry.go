package udf

import (
	"bytes"
	"io/fs"
	"time"

	native "github.com/s0up4200/go-udfvfs/internal/fs/udf"
)

// DirectoryEntry is one file or directory record of a Volume. It owns a
// single handle of the volume, released by Close or consumed by NextSibling.
//
// Metadata accessors may be called concurrently. Traversal replaces the
// handle and must not race with other use of the same entry.
type DirectoryEntry struct {
	vol *Volume
	d   *native.Dirent // nil once released or consumed
}

// acquire locks the volume for one native call. It panics when the entry
// has been released or its volume closed.
func (e *DirectoryEntry) acquire() {
	e.vol.mu.Lock()
	if e.d == nil {
		e.vol.mu.Unlock()
		panic("udf: use of released directory entry")
	}
	if e.vol.closed {
		e.vol.mu.Unlock()
		panic("udf: use of directory entry after its volume was closed")
	}
}

func (e *DirectoryEntry) release() { e.vol.mu.Unlock() }

func (e *DirectoryEntry) wrap(d *native.Dirent) *DirectoryEntry {
	if d == nil {
		return nil
	}
	return &DirectoryEntry{vol: e.vol, d: d}
}

// FileName returns the raw name bytes. The root entry has no name.
func (e *DirectoryEntry) FileName() ([]byte, bool) {
	e.acquire()
	defer e.release()

	name := e.d.Filename()
	if name == nil {
		return nil, false
	}
	return bytes.Clone(name), true
}

// IsDir reports whether the entry is a directory.
func (e *DirectoryEntry) IsDir() bool {
	e.acquire()
	defer e.release()
	return e.d.IsDir()
}

// LinkCount returns the number of hard links. ok is false when the volume
// reports no count.
func (e *DirectoryEntry) LinkCount() (n uint16, ok bool) {
	e.acquire()
	defer e.release()

	n = e.d.LinkCount()
	if n == 0 {
		return 0, false
	}
	return n, true
}

// FileLength returns the length in bytes. ok is false when the volume
// cannot determine it.
func (e *DirectoryEntry) FileLength() (n int64, ok bool) {
	e.acquire()
	defer e.release()

	n = e.d.FileLength()
	if n == native.LengthUnknown || n < 0 {
		return 0, false
	}
	return n, true
}

// Mode returns the type and permission bits.
func (e *DirectoryEntry) Mode() fs.FileMode {
	e.acquire()
	defer e.release()
	return fileMode(e.d.PosixMode())
}

// ModTime returns the modification time, or the zero time when unknown.
func (e *DirectoryEntry) ModTime() time.Time {
	e.acquire()
	defer e.release()
	return e.d.ModTime()
}

// Idx returns the logical block of the entry's control block. It is meant
// for diagnostics and for telling entries apart across lookups.
func (e *DirectoryEntry) Idx() uint32 {
	e.acquire()
	defer e.release()
	return e.d.Loc()
}

// addr returns the full address of the entry's control block.
func (e *DirectoryEntry) addr() native.LBAddr {
	e.acquire()
	defer e.release()
	return e.d.Addr()
}

// Child returns the first entry of this directory, or nil when the entry
// is not a directory or the directory is empty.
func (e *DirectoryEntry) Child() *DirectoryEntry {
	e.acquire()
	defer e.release()
	return e.wrap(e.d.Opendir())
}

// NextSibling consumes e and returns the next entry of the same directory,
// or nil at the end of the listing. e must not be used afterwards; closing
// it is a no-op.
func (e *DirectoryEntry) NextSibling() *DirectoryEntry {
	e.acquire()
	defer e.release()

	d := e.d
	e.d = nil
	return e.wrap(d.Readdir())
}

// Fopen resolves a slash-separated path relative to e, or returns nil when
// any component is missing.
func (e *DirectoryEntry) Fopen(path string) *DirectoryEntry {
	e.acquire()
	defer e.release()
	return e.wrap(e.d.Fopen(path))
}

// ReadBlock reads count whole blocks of file content starting at file block
// first. buf must be exactly count*BlockSize bytes. It returns the number
// of bytes of buf that hold file data. Bytes past that may hold whatever
// the device recorded after the end of the file.
func (e *DirectoryEntry) ReadBlock(buf []byte, first uint32, count int) (int, error) {
	e.acquire()
	defer e.release()

	n := e.d.ReadBlock(buf, first, count)
	if n < 0 {
		ioErr := &IOError{Block: first, Count: count, Code: n}
		if n == native.DriverOpError {
			ioErr.Err = e.vol.r.Err()
		}
		return 0, ioErr
	}
	return int(n), nil
}

// Close releases the entry. It is safe to call more than once, and after
// the volume has been closed.
func (e *DirectoryEntry) Close() error {
	e.vol.mu.Lock()
	defer e.vol.mu.Unlock()

	if e.d == nil {
		return nil
	}
	if !e.vol.closed {
		e.d.Free()
	}
	e.d = nil
	return nil
}
