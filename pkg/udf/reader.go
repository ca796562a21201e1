package udf

import (
	"errors"
	"fmt"
	"io"
)

var errSeekRange = errors.New("udf: seek position out of range")

// FileReader reads the content of a file entry as a byte stream.
type FileReader struct {
	e         *DirectoryEntry
	size      int64
	known     bool
	pos       int64
	maxBlocks int64
	staging   []byte
}

// NewFileReader takes ownership of e, which should be a regular file.
// Closing the reader closes e.
func NewFileReader(e *DirectoryEntry) *FileReader {
	size, ok := e.FileLength()
	return &FileReader{
		e:         e,
		size:      size,
		known:     ok,
		maxBlocks: int64(e.vol.maxReadBlocks),
	}
}

// Size returns the file length. ok is false when it is unknown.
func (f *FileReader) Size() (int64, bool) { return f.size, f.known }

// Read reads up to len(p) bytes at the cursor. It returns 0, io.EOF once
// the cursor reaches the end of the file.
func (f *FileReader) Read(p []byte) (int, error) {
	if !f.known {
		return 0, ErrLengthUnknown
	}
	if f.pos >= f.size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	n, err := f.readSpan(p, f.pos, &f.staging)
	f.pos += int64(n)
	return n, err
}

// ReadAt implements io.ReaderAt. It does not move the cursor.
func (f *FileReader) ReadAt(p []byte, off int64) (int, error) {
	if !f.known {
		return 0, ErrLengthUnknown
	}
	if off < 0 {
		return 0, fmt.Errorf("udf: negative offset %d", off)
	}

	var staging []byte
	var total int
	for total < len(p) {
		if off >= f.size {
			return total, io.EOF
		}
		n, err := f.readSpan(p[total:], off, &staging)
		total += n
		off += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Seek implements io.Seeker. The position must stay within the file.
func (f *FileReader) Seek(offset int64, whence int) (int64, error) {
	if !f.known {
		return 0, ErrLengthUnknown
	}

	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = f.pos + offset
	case io.SeekEnd:
		pos = f.size + offset
	default:
		return 0, fmt.Errorf("udf: invalid whence %d", whence)
	}
	if pos < 0 || pos > f.size {
		return 0, fmt.Errorf("%w: %d", errSeekRange, pos)
	}
	f.pos = pos
	return pos, nil
}

// Close releases the file entry.
func (f *FileReader) Close() error {
	f.staging = nil
	return f.e.Close()
}

// readSpan serves one block-aligned read for the bytes at off, never past
// the end of the file. staging is grown as needed and reused.
func (f *FileReader) readSpan(p []byte, off int64, staging *[]byte) (int, error) {
	want := min(int64(len(p)), f.size-off)
	first, count := blockSpan(off, want)
	if count > f.maxBlocks {
		count = f.maxBlocks
		want = count*BlockSize - (off - first*BlockSize)
	}

	need := int(count * BlockSize)
	if cap(*staging) < need {
		*staging = make([]byte, need)
	}
	buf := (*staging)[:need]

	got, err := f.e.ReadBlock(buf, uint32(first), int(count))
	if err != nil {
		return 0, err
	}

	skip := int(off - first*BlockSize)
	end := skip + int(want)
	if got < end {
		n := copy(p, buf[skip:max(skip, got)])
		return n, &IOError{Block: uint32(first), Count: int(count), Code: int64(got), Err: io.ErrUnexpectedEOF}
	}
	return copy(p, buf[skip:end]), nil
}
