package udf

import (
	"errors"
	"fmt"

	native "github.com/s0up4200/go-udfvfs/internal/fs/udf"
)

var (
	// ErrVolumeOpen is returned by Open when the image cannot be read as UDF.
	ErrVolumeOpen = errors.New("udf: cannot open volume")

	// ErrRootUnavailable is returned when a volume cannot produce its root directory.
	ErrRootUnavailable = errors.New("udf: root directory unavailable")

	ErrEntryNotFound = errors.New("udf: entry not found")
	ErrNotAFile      = errors.New("udf: not a file")
	ErrNotADirectory = errors.New("udf: not a directory")

	// ErrIO matches every *IOError.
	ErrIO = errors.New("udf: i/o error")

	// ErrLengthUnknown is returned when reading a file whose length the
	// volume cannot determine.
	ErrLengthUnknown = errors.New("udf: file length unknown")
)

// IOError describes a failed block read.
type IOError struct {
	Block uint32 // first file block of the request
	Count int    // blocks requested
	Code  int64  // negative driver code, or the byte count of a short read
	Err   error  // cause reported by the volume, if any
}

func (e *IOError) Error() string {
	msg := fmt.Sprintf("udf: read of %d block(s) at %d failed", e.Count, e.Block)
	switch e.Code {
	case native.DriverOpError:
		msg += ": driver error"
	case native.DriverOpBadParameter:
		msg += ": bad parameter"
	case native.DriverOpUnsupported:
		msg += ": unsupported"
	default:
		if e.Code >= 0 {
			msg += fmt.Sprintf(": short read of %d bytes", e.Code)
		} else {
			msg += fmt.Sprintf(": code %d", e.Code)
		}
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *IOError) Unwrap() error { return e.Err }

// Is reports whether target is ErrIO.
func (e *IOError) Is(target error) bool { return target == ErrIO }
