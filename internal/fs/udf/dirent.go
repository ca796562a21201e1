package udf

import (
	"bytes"
	"strings"
	"time"
)

// Dirent is a handle to one directory entry of an open Reader.
//
// Handles are manually managed: every Dirent returned by Root, Opendir or
// Fopen must be released with Free exactly once, unless Readdir released it
// on reaching the end of its listing. A Dirent is only valid while its Reader
// is open. Accessors report failures with sentinel values instead of errors;
// Reader.Err holds the cause of the last one.
type Dirent struct {
	r      *Reader
	name   []byte
	isDir  bool
	isRoot bool
	icb    LongAD
	info   *fileInfo // nil when the file entry could not be read

	listing []fileIdentifier
	pos     int
	freed   bool
}

func (r *Reader) newDirent() *Dirent {
	r.live++
	return &Dirent{r: r, pos: -1}
}

// Root returns a new handle on the root directory, or nil.
func (r *Reader) Root() *Dirent {
	info, err := r.readFileInfo(r.rootICB)
	if err != nil {
		r.lastErr = err
		return nil
	}

	d := r.newDirent()
	d.isRoot = true
	d.isDir = true
	d.icb = r.rootICB
	d.info = info
	return d
}

// Free releases the handle. Freeing a handle twice panics.
func (d *Dirent) Free() {
	if d.freed {
		panic("udf: dirent freed twice")
	}
	d.freed = true
	d.listing = nil
	d.info = nil
	d.r.live--
}

func (d *Dirent) check() {
	if d.freed {
		panic("udf: use of freed dirent")
	}
}

// Filename returns the decoded name, or nil for the root entry. The slice
// is only valid until the next Readdir on this handle.
func (d *Dirent) Filename() []byte {
	d.check()
	if d.isRoot {
		return nil
	}
	return d.name
}

// IsDir reports whether the entry is a directory.
func (d *Dirent) IsDir() bool {
	d.check()
	return d.isDir
}

// LinkCount returns the file link count, or 0 when it is not available.
func (d *Dirent) LinkCount() uint16 {
	d.check()
	if d.info == nil {
		return 0
	}
	return d.info.linkCount
}

// FileLength returns the information length, or LengthUnknown.
func (d *Dirent) FileLength() int64 {
	d.check()
	if d.info == nil || d.info.length > uint64(1<<63-1) {
		return LengthUnknown
	}
	return int64(d.info.length)
}

// ModTime returns the modification time, or the zero time.
func (d *Dirent) ModTime() time.Time {
	d.check()
	if d.info == nil {
		return time.Time{}
	}
	return d.info.modTime
}

// Loc returns the logical block of the entry's ICB.
func (d *Dirent) Loc() uint32 {
	d.check()
	return d.icb.ExtentLocation.LogicalBlockNumber
}

// Addr returns the partition-qualified address of the entry's ICB.
func (d *Dirent) Addr() LBAddr {
	d.check()
	return d.icb.ExtentLocation
}

// PosixMode returns the entry's mode as POSIX st_mode bits.
func (d *Dirent) PosixMode() uint32 {
	d.check()

	var mode uint32
	if d.info == nil {
		if d.isDir {
			return ModeDirectory
		}
		return ModeRegular
	}

	switch d.info.fileType {
	case ICBFileTypeDirectory, ICBFileTypeStreamDir:
		mode = ModeDirectory
	case ICBFileTypeSymlink:
		mode = ModeSymlink
	case ICBFileTypeBlockDevice:
		mode = ModeBlock
	case ICBFileTypeCharDevice:
		mode = ModeCharDevice
	case ICBFileTypeFIFO:
		mode = ModeFIFO
	case ICBFileTypeSocket:
		mode = ModeSocket
	default:
		if d.isDir {
			mode = ModeDirectory
		} else {
			mode = ModeRegular
		}
	}

	perms := d.info.permissions
	for _, p := range []struct{ udf, posix uint32 }{
		{PermOwnerRead, 0o400}, {PermOwnerWrite, 0o200}, {PermOwnerExec, 0o100},
		{PermGroupRead, 0o040}, {PermGroupWrite, 0o020}, {PermGroupExec, 0o010},
		{PermOtherRead, 0o004}, {PermOtherWrite, 0o002}, {PermOtherExec, 0o001},
	} {
		if perms&p.udf != 0 {
			mode |= p.posix
		}
	}

	flags := d.info.flags
	if flags&ICBFlagSetUID != 0 {
		mode |= ModeSetUID
	}
	if flags&ICBFlagSetGID != 0 {
		mode |= ModeSetGID
	}
	if flags&ICBFlagSticky != 0 {
		mode |= ModeSticky
	}
	return mode
}

// Opendir returns a new handle on the first entry of the directory, or nil
// when the entry is not a directory, is empty, or cannot be read.
func (d *Dirent) Opendir() *Dirent {
	d.check()
	if !d.isDir || d.info == nil {
		return nil
	}

	fids, err := d.r.readDirectory(d.info)
	if err != nil {
		d.r.lastErr = err
		return nil
	}

	child := d.r.newDirent()
	child.listing = fids
	if !child.advance() {
		child.Free()
		return nil
	}
	return child
}

// Readdir advances the handle to the next entry of its directory and
// returns it. At the end of the listing the handle is freed and nil is
// returned.
func (d *Dirent) Readdir() *Dirent {
	d.check()
	if d.advance() {
		return d
	}
	d.Free()
	return nil
}

// advance moves to the next live, non-parent identifier of the listing.
func (d *Dirent) advance() bool {
	for d.pos++; d.pos < len(d.listing); d.pos++ {
		fid := d.listing[d.pos]
		if fid.isParent() || fid.isDeleted() {
			continue
		}

		d.name = fid.name
		d.isDir = fid.isDir()
		d.icb = fid.icb
		info, err := d.r.readFileInfo(fid.icb)
		if err != nil {
			d.r.lastErr = err
			info = nil
		}
		d.info = info
		return true
	}
	d.name = nil
	d.info = nil
	return false
}

// Fopen resolves a slash-separated path relative to this directory and
// returns a new handle on the entry it names, or nil. An empty path yields
// a new handle on this entry. A trailing slash only matches a directory.
func (d *Dirent) Fopen(path string) *Dirent {
	d.check()

	cur := d.dup()
	for _, part := range strings.Split(path, "/") {
		if part == "" || part == "." {
			continue
		}
		next := cur.lookup(part)
		cur.Free()
		if next == nil {
			return nil
		}
		cur = next
	}
	if strings.HasSuffix(path, "/") && !cur.isDir {
		cur.Free()
		return nil
	}
	return cur
}

func (d *Dirent) lookup(name string) *Dirent {
	for e := d.Opendir(); e != nil; e = e.Readdir() {
		if d.r.nameMatches(e.name, name) {
			return e
		}
	}
	return nil
}

func (r *Reader) nameMatches(have []byte, want string) bool {
	if r.foldCase {
		return strings.EqualFold(string(have), want)
	}
	return bytes.Equal(have, []byte(want))
}

func (d *Dirent) dup() *Dirent {
	c := d.r.newDirent()
	c.name = d.name
	c.isDir = d.isDir
	c.isRoot = d.isRoot
	c.icb = d.icb
	c.info = d.info
	c.listing = d.listing
	c.pos = d.pos
	return c
}

// ReadBlock reads count logical blocks of file data, starting at file block
// first, into buf, which must be exactly count blocks long. It returns the
// number of bytes of buf that lie within the file, 0 past the end of the
// file, or a negative driver code on failure.
func (d *Dirent) ReadBlock(buf []byte, first uint32, count int) int64 {
	d.check()

	bs := int64(d.r.blockSize)
	if count < 0 || int64(len(buf)) != int64(count)*bs {
		return DriverOpBadParameter
	}
	if d.info == nil {
		d.r.lastErr = errNoFileEntry
		return DriverOpError
	}
	if d.r.file == nil {
		d.r.lastErr = errReaderClosed
		return DriverOpError
	}

	size := int64(d.info.length)
	start := int64(first) * bs
	if count == 0 || start >= size {
		return 0
	}

	valid := min(size-start, int64(len(buf)))
	if err := d.r.readFileData(d.info, buf, start, int(valid)); err != nil {
		d.r.lastErr = err
		return DriverOpError
	}
	return valid
}
