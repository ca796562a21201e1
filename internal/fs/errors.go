package fs

import (
	"errors"
	"fmt"

	"github.com/s0up4200/go-udfvfs/internal/logging"
)

var (
	errLogger = logging.Component("fs")

	// ErrFileNotFound indicates the path does not resolve
	ErrFileNotFound = errors.New("file not found")

	// ErrNotAFile indicates a file operation on a directory
	ErrNotAFile = errors.New("not a file")

	// ErrNotADirectory indicates a directory operation on a file
	ErrNotADirectory = errors.New("not a directory")

	// ErrNotSupported indicates a mutating operation on a read-only filesystem
	ErrNotSupported = errors.New("operation not supported on read-only filesystem")

	// ErrIO indicates the backing storage failed a read
	ErrIO = errors.New("i/o error")

	// ErrNotMounted indicates the filesystem has no open volume
	ErrNotMounted = errors.New("filesystem not mounted")
)

// Error wraps filesystem errors with the operation and path that failed.
type Error struct {
	Op   string // Operation that failed (e.g., "lookup", "readdir")
	Path string // Affected path
	Err  error  // Underlying error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("operation %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("operation %s on %s failed: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error for the given operation, path and cause.
func NewError(op string, path string, err error) *Error {
	fsErr := &Error{
		Op:   op,
		Path: path,
		Err:  err,
	}
	errLogger.Debugf("created error: %v", fsErr)
	return fsErr
}

// Operation names used in errors and logs.
const (
	OpLookup    = "lookup"
	OpReadDir   = "readdir"
	OpOpen      = "open"
	OpRead      = "read"
	OpStat      = "stat"
	OpMkdir     = "mkdir"
	OpCreate    = "create"
	OpAppend    = "append"
	OpRemove    = "remove"
	OpRemoveDir = "rmdir"
	OpMount     = "mount"
)
