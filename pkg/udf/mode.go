package udf

import (
	"io/fs"

	native "github.com/s0up4200/go-udfvfs/internal/fs/udf"
)

// fileMode converts POSIX st_mode bits into an fs.FileMode.
func fileMode(posix uint32) fs.FileMode {
	m := fs.FileMode(posix & 0o777)

	switch posix & native.ModeTypeMask {
	case native.ModeDirectory:
		m |= fs.ModeDir
	case native.ModeSymlink:
		m |= fs.ModeSymlink
	case native.ModeBlock:
		m |= fs.ModeDevice
	case native.ModeCharDevice:
		m |= fs.ModeDevice | fs.ModeCharDevice
	case native.ModeFIFO:
		m |= fs.ModeNamedPipe
	case native.ModeSocket:
		m |= fs.ModeSocket
	}

	if posix&native.ModeSetUID != 0 {
		m |= fs.ModeSetuid
	}
	if posix&native.ModeSetGID != 0 {
		m |= fs.ModeSetgid
	}
	if posix&native.ModeSticky != 0 {
		m |= fs.ModeSticky
	}
	return m
}
