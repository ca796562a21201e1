package udf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"
)

// Fixed sizes of the file entry records before their extended attributes.
const (
	fileEntrySize         = 176
	extendedFileEntrySize = 216
	fidHeaderSize         = 38
	maxAllocationExtents  = 64
)

var (
	errNoFileEntry  = errors.New("file entry not available")
	errReaderClosed = os.ErrClosed
)

// FileEntry represents a UDF file entry
type FileEntry struct {
	DescriptorTag                 Tag
	ICBTag                        ICBTag
	UID                           uint32
	GID                           uint32
	Permissions                   uint32
	FileLinkCount                 uint16
	RecordFormat                  uint8
	RecordDisplayAttributes       uint8
	RecordLength                  uint32
	InformationLength             uint64
	LogicalBlocksRecorded         uint64
	AccessTime                    Timestamp
	ModificationTime              Timestamp
	AttributeTime                 Timestamp
	Checkpoint                    uint32
	ExtendedAttributeICB          LongAD
	ImplementationIdentifier      EntityID
	UniqueID                      uint64
	LengthOfExtendedAttributes    uint32
	LengthOfAllocationDescriptors uint32
	// Extended attributes and allocation descriptors follow
}

// ExtendedFileEntry for large files
type ExtendedFileEntry struct {
	DescriptorTag                 Tag
	ICBTag                        ICBTag
	UID                           uint32
	GID                           uint32
	Permissions                   uint32
	FileLinkCount                 uint16
	RecordFormat                  uint8
	RecordDisplayAttributes       uint8
	RecordLength                  uint32
	InformationLength             uint64
	ObjectSize                    uint64
	LogicalBlocksRecorded         uint64
	AccessTime                    Timestamp
	ModificationTime              Timestamp
	CreateTime                    Timestamp
	AttributeTime                 Timestamp
	Checkpoint                    uint32
	Reserved                      [4]byte
	ExtendedAttributeICB          LongAD
	StreamDirectoryICB            LongAD
	ImplementationIdentifier      EntityID
	UniqueID                      uint64
	LengthOfExtendedAttributes    uint32
	LengthOfAllocationDescriptors uint32
}

// ICBTag represents Information Control Block tag
type ICBTag struct {
	PriorRecordedNumberOfDirectEntries uint32  // 0-3
	StrategyType                       uint16  // 4-5
	StrategyParameter                  [2]byte // 6-7
	MaximumNumberOfEntries             uint16  // 8-9
	Reserved                           byte    // 10
	FileType                           uint8   // 11
	ParentICBLocation                  LBAddr  // 12-17 (6 bytes)
	Flags                              uint16  // 18-19
}

// fileInfo is the decoded subset of a (extended) file entry.
type fileInfo struct {
	fileType    uint8
	flags       uint16
	permissions uint32
	linkCount   uint16
	length      uint64
	modTime     time.Time

	// Exactly one of extents and embedded describes the data.
	extents  []allocationDescriptor
	embedded []byte
}

type allocationDescriptor struct {
	// length in bytes (top 2 bits cleared)
	length uint32
	kind   uint8
	lbn    uint32
	pref   uint16
}

// fileIdentifier is one parsed File Identifier Descriptor.
type fileIdentifier struct {
	characteristics uint8
	icb             LongAD
	name            []byte
}

func (f fileIdentifier) isParent() bool  { return f.characteristics&FileCharParent != 0 }
func (f fileIdentifier) isDeleted() bool { return f.characteristics&FileCharDeleted != 0 }
func (f fileIdentifier) isDir() bool     { return f.characteristics&FileCharDirectory != 0 }

func (r *Reader) readFileEntryWithData(icb LongAD) (any, []byte, error) {
	location, err := r.resolveLBAddr(icb.ExtentLocation)
	if err != nil {
		return nil, nil, err
	}

	block, err := r.readBlock(location)
	if err != nil {
		return nil, nil, err
	}

	switch tag := binary.LittleEndian.Uint16(block[0:2]); tag {
	case TagFile:
		var fe FileEntry
		if err := binary.Read(bytes.NewReader(block), binary.LittleEndian, &fe); err != nil {
			return nil, nil, err
		}
		return &fe, block, nil

	case TagExtendedFileEntry:
		var efe ExtendedFileEntry
		if err := binary.Read(bytes.NewReader(block), binary.LittleEndian, &efe); err != nil {
			return nil, nil, err
		}
		return &efe, block, nil

	default:
		return nil, nil, fmt.Errorf("unexpected tag type: %d at location %d", tag, location)
	}
}

// readFileInfo reads and decodes the file entry an ICB points to.
func (r *Reader) readFileInfo(icb LongAD) (*fileInfo, error) {
	entry, data, err := r.readFileEntryWithData(icb)
	if err != nil {
		return nil, err
	}

	info := &fileInfo{}
	var baseSize int64
	var extAttribLength, allocDescLength uint32

	switch e := entry.(type) {
	case *FileEntry:
		baseSize = fileEntrySize
		info.fileType = e.ICBTag.FileType
		info.flags = e.ICBTag.Flags
		info.permissions = e.Permissions
		info.linkCount = e.FileLinkCount
		info.length = e.InformationLength
		info.modTime = convertTimestamp(e.ModificationTime)
		extAttribLength = e.LengthOfExtendedAttributes
		allocDescLength = e.LengthOfAllocationDescriptors
	case *ExtendedFileEntry:
		baseSize = extendedFileEntrySize
		info.fileType = e.ICBTag.FileType
		info.flags = e.ICBTag.Flags
		info.permissions = e.Permissions
		info.linkCount = e.FileLinkCount
		info.length = e.InformationLength
		info.modTime = convertTimestamp(e.ModificationTime)
		extAttribLength = e.LengthOfExtendedAttributes
		allocDescLength = e.LengthOfAllocationDescriptors
	}

	start := baseSize + int64(extAttribLength)
	end := start + int64(allocDescLength)
	if start < 0 || end > int64(len(data)) {
		return nil, fmt.Errorf("allocation descriptors out of range (offset=%d length=%d)", start, allocDescLength)
	}
	area := data[start:end]

	allocType := info.flags & ICBFlagAllocMask
	if allocType == ADEmbedded {
		info.embedded = append([]byte{}, area...)
		return info, nil
	}

	info.extents, err = r.readAllocationDescriptors(area, allocType, icb.ExtentLocation.PartitionReferenceNumber, 0)
	if err != nil {
		return nil, err
	}
	return info, nil
}

// readAllocationDescriptors decodes short_ad or long_ad records, following
// allocation extent descriptors. If the descriptor format doesn't contain a
// partition reference (short_ad), defaultPref is used.
func (r *Reader) readAllocationDescriptors(area []byte, allocType uint16, defaultPref uint16, depth int) ([]allocationDescriptor, error) {
	var size int
	switch allocType {
	case ADShort:
		size = 8
	case ADLong:
		size = 16
	case ADExtended:
		return nil, errors.New("extended allocation descriptors are not supported")
	default:
		return nil, fmt.Errorf("unknown allocation descriptor type %d", allocType)
	}

	var descs []allocationDescriptor
	for off := 0; off+size <= len(area); off += size {
		raw := binary.LittleEndian.Uint32(area[off : off+4])
		ad := allocationDescriptor{
			length: raw & 0x3FFFFFFF,
			kind:   uint8(raw >> 30),
			lbn:    binary.LittleEndian.Uint32(area[off+4 : off+8]),
			pref:   defaultPref,
		}
		if allocType == ADLong {
			ad.pref = binary.LittleEndian.Uint16(area[off+8 : off+10])
		}

		if ad.length == 0 {
			break
		}
		if ad.kind == ExtentNextAllocationExtents {
			if depth >= maxAllocationExtents {
				return nil, errors.New("too many allocation extent descriptors")
			}
			more, err := r.readAllocationExtent(ad, allocType, depth+1)
			if err != nil {
				return nil, err
			}
			descs = append(descs, more...)
			break
		}
		descs = append(descs, ad)
	}

	return descs, nil
}

// readAllocationExtent reads a continuation block of allocation descriptors.
func (r *Reader) readAllocationExtent(ad allocationDescriptor, allocType uint16, depth int) ([]allocationDescriptor, error) {
	location, err := r.resolvePartitionBlock(ad.pref, ad.lbn)
	if err != nil {
		return nil, err
	}
	block, err := r.readBlock(location)
	if err != nil {
		return nil, err
	}
	if tag := binary.LittleEndian.Uint16(block[0:2]); tag != TagAllocationExtent {
		return nil, fmt.Errorf("unexpected tag type: %d at location %d (expected allocation extent)", tag, location)
	}

	// tag (16) + previous extent location (4) + length of descriptors (4)
	length := int(binary.LittleEndian.Uint32(block[20:24]))
	if 24+length > len(block) {
		return nil, fmt.Errorf("allocation extent at %d overflows its block", location)
	}
	return r.readAllocationDescriptors(block[24:24+length], allocType, ad.pref, depth)
}

// readFileData reads the logical range [off, off+len(p)) of a file into p.
// Bytes of p that no recorded extent covers are zeroed. An error is returned
// only when the range [off, off+valid) could not be read.
func (r *Reader) readFileData(info *fileInfo, p []byte, off int64, valid int) error {
	if info.embedded != nil {
		var n int
		if off < int64(len(info.embedded)) {
			n = copy(p, info.embedded[off:])
		}
		clear(p[n:])
		if n < valid {
			return fmt.Errorf("embedded data holds %d bytes, need %d", n, valid)
		}
		return nil
	}

	clear(p)
	bs := int64(r.blockSize)
	end := off + int64(len(p))
	covered := off
	var extStart int64
	for _, ad := range info.extents {
		extEnd := extStart + int64(ad.length)
		if extEnd <= off {
			extStart = extEnd
			continue
		}
		if extStart >= end {
			break
		}

		segStart := max(off, extStart)
		segEnd := min(end, extEnd)
		// The tail of a short final extent is read up to its block boundary.
		if segEnd == extEnd {
			segEnd = min(end, extStart+roundUp(int64(ad.length), bs))
		}
		dst := p[segStart-off : segEnd-off]
		need := int(max(0, min(segEnd, off+int64(valid))-segStart))

		if ad.kind == ExtentRecorded {
			if err := r.readPartitionRange(ad.pref, ad.lbn, segStart-extStart, dst, need); err != nil {
				return err
			}
		}
		if segStart <= covered {
			covered = max(covered, min(extEnd, segEnd))
		}
		extStart = extEnd
	}

	if covered < off+int64(valid) {
		return fmt.Errorf("allocation descriptors end at %d, file data extends to %d", covered, off+int64(valid))
	}
	return nil
}

// readPartitionRange reads len(p) bytes starting rel bytes into the extent at
// partition block lbn. At least need bytes must be read.
func (r *Reader) readPartitionRange(pref uint16, lbn uint32, rel int64, p []byte, need int) error {
	if r.file == nil {
		return errReaderClosed
	}
	bs := int64(r.blockSize)
	indirect := int(pref) < len(r.partitionMaps) && r.partitionMaps[pref].isMetadata

	if !indirect {
		sector, err := r.resolvePartitionBlock(pref, lbn)
		if err != nil {
			return err
		}
		n, err := r.file.ReadAt(p, int64(sector)*bs+rel)
		if n < need {
			if err == nil {
				err = fmt.Errorf("short read: %d of %d bytes", n, need)
			}
			return err
		}
		return nil
	}

	// Metadata partition blocks are not contiguous on disc.
	for done := 0; done < len(p); {
		blk := uint32((rel + int64(done)) / bs)
		inBlock := (rel + int64(done)) % bs
		sector, err := r.resolvePartitionBlock(pref, lbn+blk)
		if err != nil {
			return err
		}
		chunk := min(len(p)-done, int(bs-inBlock))
		n, err := r.file.ReadAt(p[done:done+chunk], int64(sector)*bs+inBlock)
		done += n
		if n < chunk {
			if done >= need {
				return nil
			}
			if err == nil {
				err = fmt.Errorf("short read: %d of %d bytes", done, need)
			}
			return err
		}
	}
	return nil
}

func roundUp(n, to int64) int64 {
	return (n + to - 1) / to * to
}

// readDirectory returns the file identifiers recorded in a directory's data.
func (r *Reader) readDirectory(info *fileInfo) ([]fileIdentifier, error) {
	if info.length > uint64(maxDirectorySize) {
		return nil, fmt.Errorf("directory too large: %d bytes", info.length)
	}

	data := make([]byte, info.length)
	if err := r.readFileData(info, data, 0, len(data)); err != nil {
		return nil, err
	}
	return parseFileIdentifiers(data), nil
}

// maxDirectorySize bounds the directory data read into memory at once.
const maxDirectorySize = 64 << 20

// parseFileIdentifiers parses a stream of File Identifier Descriptors.
func parseFileIdentifiers(data []byte) []fileIdentifier {
	var fids []fileIdentifier
	length := len(data)

	for offset := 0; offset+fidHeaderSize <= length; {
		d := data[offset:]
		if binary.LittleEndian.Uint16(d[0:2]) != TagFileIdentifier {
			break
		}

		fid := fileIdentifier{characteristics: d[18]}
		nameLen := int(d[19])

		// ICB LongAD (16 bytes, offset 20-35)
		fid.icb.ExtentLength = binary.LittleEndian.Uint32(d[20:24])
		fid.icb.ExtentLocation.LogicalBlockNumber = binary.LittleEndian.Uint32(d[24:28])
		fid.icb.ExtentLocation.PartitionReferenceNumber = binary.LittleEndian.Uint16(d[28:30])
		copy(fid.icb.ImplementationUse[:], d[30:36])

		implUseLen := int(binary.LittleEndian.Uint16(d[36:38]))
		nameOffset := fidHeaderSize + implUseLen
		if nameLen > 0 && nameOffset+nameLen <= len(d) {
			fid.name = decodeCS0(d[nameOffset : nameOffset+nameLen])
		}

		fids = append(fids, fid)

		// Calculate total FID size (must be 4-byte aligned)
		fidSize := fidHeaderSize + implUseLen + nameLen
		fidSize = (fidSize + 3) &^ 3
		offset += fidSize
	}

	return fids
}

// convertTimestamp converts UDF timestamp to Go time.Time
func convertTimestamp(ts Timestamp) time.Time {
	if ts.Year == 0 && ts.Month == 0 && ts.Day == 0 {
		return time.Time{}
	}

	loc := time.UTC
	// Type 1 is local time with a signed 12-bit minute offset; -2047 means unspecified.
	if ts.TypeAndTimezone>>12 == 1 {
		tz := int16(ts.TypeAndTimezone<<4) >> 4
		if tz != -2047 {
			loc = time.FixedZone("", int(tz)*60)
		}
	}

	nsec := int(ts.Centiseconds)*10_000_000 +
		int(ts.HundredsOfMicroseconds)*100_000 +
		int(ts.Microseconds)*1000

	return time.Date(
		int(ts.Year),
		time.Month(ts.Month),
		int(ts.Day),
		int(ts.Hour),
		int(ts.Minute),
		int(ts.Second),
		nsec,
		loc,
	)
}
