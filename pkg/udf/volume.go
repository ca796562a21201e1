// Package udf provides read-only access to UDF volumes inside disc images.
//
// A Volume is opened by path. Its directory tree is walked lazily through
// DirectoryEntry values, each of which owns one handle of the volume and
// must be closed once, and file content is read through a FileReader.
// Entries are only valid while their Volume is open; using one after the
// volume is closed panics.
package udf

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	native "github.com/s0up4200/go-udfvfs/internal/fs/udf"
	"github.com/s0up4200/go-udfvfs/internal/logging"
)

// Volume is an open UDF filesystem.
type Volume struct {
	mu     sync.Mutex // held for every call into the reader
	r      *native.Reader
	path   string
	label  string
	closed bool

	maxReadBlocks int
	log           *log.Entry
}

type options struct {
	logger        *log.Entry
	foldCase      bool
	maxReadBlocks int
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the logger used by the volume. The default discards.
func WithLogger(l *log.Entry) Option {
	return func(o *options) { o.logger = l }
}

// WithFoldCase makes path lookups case-insensitive.
func WithFoldCase(fold bool) Option {
	return func(o *options) { o.foldCase = fold }
}

// WithMaxReadBlocks bounds the blocks a FileReader fetches per read call.
func WithMaxReadBlocks(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxReadBlocks = n
		}
	}
}

// Open opens the UDF filesystem in the image at path. Errors match
// ErrVolumeOpen and wrap the underlying cause.
func Open(path string, opts ...Option) (*Volume, error) {
	o := options{maxReadBlocks: DefaultMaxReadBlocks}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.Discard()
	}

	r, err := native.NewReader(path, native.WithFoldCase(o.foldCase))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrVolumeOpen, path, err)
	}
	if bs := r.BlockSize(); bs != BlockSize {
		r.Close()
		return nil, fmt.Errorf("%w: %s: logical block size %d, expected %d", ErrVolumeOpen, path, bs, BlockSize)
	}

	v := &Volume{
		r:             r,
		path:          path,
		label:         r.GetVolumeLabel(),
		maxReadBlocks: o.maxReadBlocks,
		log:           o.logger.WithField("volume", path),
	}
	v.log.Debugf("opened volume label=%q partitionStart=%d fileSet=%d", v.label, r.PartitionStart(), r.FileSetLocation())
	return v, nil
}

// Label returns the volume identifier.
func (v *Volume) Label() string { return v.label }

// Path returns the image path the volume was opened from.
func (v *Volume) Path() string { return v.path }

// LiveEntries returns the number of directory entries not yet closed.
func (v *Volume) LiveEntries() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.r.OpenDirents()
}

// Root returns the root directory entry, or nil when the volume cannot
// produce one.
func (v *Volume) Root() *DirectoryEntry {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.checkOpen()

	d := v.r.Root()
	if d == nil {
		v.log.Debugf("root unavailable: %v", v.r.Err())
		return nil
	}
	return &DirectoryEntry{vol: v, d: d}
}

// Fopen resolves path from the root directory. It returns nil when the
// root is unavailable or the path does not resolve.
func (v *Volume) Fopen(path string) *DirectoryEntry {
	root := v.Root()
	if root == nil {
		return nil
	}
	defer root.Close()
	return root.Fopen(path)
}

// OpenFile resolves path and returns a reader over its content.
func (v *Volume) OpenFile(path string) (*FileReader, error) {
	e := v.Fopen(path)
	if e == nil {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, path)
	}
	if e.IsDir() {
		e.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotAFile, path)
	}
	return NewFileReader(e), nil
}

// Close closes the volume. Further calls return nil.
func (v *Volume) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	v.closed = true

	if n := v.r.OpenDirents(); n > 0 {
		v.log.Warnf("closing volume with %d directory entries still open", n)
	}
	if err := v.r.Close(); err != nil {
		return fmt.Errorf("close %s: %w", v.path, err)
	}
	v.log.Debug("closed volume")
	return nil
}

func (v *Volume) checkOpen() {
	if v.closed {
		panic("udf: use of closed volume")
	}
}
