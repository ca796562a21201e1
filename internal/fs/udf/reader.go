package udf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// Reader provides UDF file system reading capabilities.
//
// A Reader is not safe for concurrent use; callers serialize access.
type Reader struct {
	file            *os.File
	size            int64
	volumeLabel     string
	blockSize       uint32
	partitionStart  uint32
	partitionSize   uint32
	partitionStarts map[uint16]uint32
	partitionMaps   []partitionMap
	metadataFileICB *LongAD
	metadataExtents []allocationDescriptor
	metadataLoaded  bool
	rootICB         LongAD
	fileSetDesc     *FileSetDescriptor
	fileSetLocation uint32
	fileSetPref     uint16
	fileSetFound    bool

	foldCase bool
	live     int
	lastErr  error
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithFoldCase makes Fopen match path components case-insensitively.
func WithFoldCase(fold bool) ReaderOption {
	return func(r *Reader) {
		r.foldCase = fold
	}
}

// NewReader creates a new UDF reader
func NewReader(path string, opts ...ReaderOption) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat image: %w", err)
	}

	reader := &Reader{
		file:            file,
		size:            info.Size(),
		blockSize:       SectorSize,
		partitionStarts: make(map[uint16]uint32),
	}
	for _, opt := range opts {
		opt(reader)
	}

	if err := reader.initialize(); err != nil {
		file.Close()
		return nil, err
	}

	return reader, nil
}

// Close closes the UDF reader
func (r *Reader) Close() error {
	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		return err
	}
	return nil
}

// GetVolumeLabel returns the volume label
func (r *Reader) GetVolumeLabel() string {
	return r.volumeLabel
}

// BlockSize returns the logical block size recorded in the logical volume descriptor.
func (r *Reader) BlockSize() uint32 { return r.blockSize }

// PartitionStart returns the first sector of the main partition.
func (r *Reader) PartitionStart() uint32 { return r.partitionStart }

// FileSetLocation returns the partition-relative block of the file set descriptor.
func (r *Reader) FileSetLocation() uint32 { return r.fileSetLocation }

// RootICB returns the root directory ICB from the file set descriptor.
func (r *Reader) RootICB() LongAD { return r.rootICB }

// OpenDirents returns the number of Dirent handles that have not been freed.
func (r *Reader) OpenDirents() int { return r.live }

// Err returns the error behind the most recent sentinel result, if any.
func (r *Reader) Err() error { return r.lastErr }

// initialize reads UDF structures and prepares for file access
func (r *Reader) initialize() error {
	if err := r.verifyVolume(); err != nil {
		return fmt.Errorf("not a valid UDF volume: %w", err)
	}

	anchor, err := r.findAnchorVolumeDescriptor()
	if err != nil {
		return fmt.Errorf("failed to find anchor volume descriptor: %w", err)
	}

	if err := r.readVolumeDescriptorSequence(anchor.MainVolumeDescriptorSequenceExtent); err != nil {
		return fmt.Errorf("failed to read volume descriptor sequence: %w", err)
	}

	if len(r.partitionStarts) == 0 {
		return errors.New("no partition descriptor found")
	}
	if !r.fileSetFound {
		return fmt.Errorf("file set location not determined")
	}

	location, err := r.resolvePartitionBlock(r.fileSetPref, r.fileSetLocation)
	if err != nil {
		return fmt.Errorf("failed to resolve file set descriptor: %w", err)
	}

	block, err := r.readBlock(location)
	if err != nil {
		return fmt.Errorf("failed to read file set descriptor: %w", err)
	}

	var fsd FileSetDescriptor
	if err := binary.Read(bytes.NewReader(block), binary.LittleEndian, &fsd); err != nil {
		return fmt.Errorf("failed to decode file set descriptor: %w", err)
	}

	if fsd.DescriptorTag.TagIdentifier != TagFileSet {
		return fmt.Errorf("invalid file set descriptor tag: %d (expected %d) at location %d (partition start: %d, fileSetLocation: %d)",
			fsd.DescriptorTag.TagIdentifier, TagFileSet, location, r.partitionStart, r.fileSetLocation)
	}

	r.fileSetDesc = &fsd
	r.rootICB = fsd.RootDirectoryICB

	return nil
}

// verifyVolume checks for UDF volume recognition sequence
func (r *Reader) verifyVolume() error {
	foundNSR := false
	foundTerminator := false
	descriptors := []string{} // Track what we find for debugging

	for i := 0; i < 16 && !foundTerminator; i++ { // Check up to 16 sectors
		off := int64(VRSOffset) + int64(i)*SectorSize
		if off+SectorSize > r.size {
			break
		}

		sector := make([]byte, SectorSize)
		if err := r.readFullAt(off, sector); err != nil {
			return err
		}

		var vrs VolumeRecognitionDescriptor
		if err := binary.Read(bytes.NewReader(sector), binary.LittleEndian, &vrs); err != nil {
			return err
		}

		identifier := strings.TrimRight(string(vrs.StandardIdentifier[:]), "\x00")
		descriptors = append(descriptors, fmt.Sprintf("Sector %d: '%s' (raw: %x)", 16+i, identifier, vrs.StandardIdentifier))

		switch identifier {
		case StandardIDBEA01:
			continue
		case StandardIDNSR02, StandardIDNSR03:
			foundNSR = true
		case StandardIDTEA01:
			foundTerminator = true
		case "":
			foundTerminator = true
		default:
			// ISO 9660 descriptors (CD001) precede BEA01 on bridge discs.
			if strings.HasPrefix(identifier, "CD") {
				continue
			}
			if !foundNSR {
				return fmt.Errorf("NSR descriptor not found in VRS. Found descriptors: %v", descriptors)
			}
			foundTerminator = true
		}
	}

	if !foundNSR {
		return fmt.Errorf("NSR descriptor not found. Scanned descriptors: %v", descriptors)
	}

	return nil
}

// findAnchorVolumeDescriptor locates the anchor volume descriptor
func (r *Reader) findAnchorVolumeDescriptor() (*AnchorVolumeDescriptorPointer, error) {
	totalSectors := r.size / SectorSize
	locations := []int64{256, 512, totalSectors - 257, totalSectors - 1}

	for _, sector := range locations {
		if sector < 0 || (sector+1)*SectorSize > r.size {
			continue
		}

		block := make([]byte, SectorSize)
		if err := r.readFullAt(sector*SectorSize, block); err != nil {
			continue
		}

		if binary.LittleEndian.Uint16(block[0:2]) != TagAnchorVolume {
			continue
		}

		anchor := &AnchorVolumeDescriptorPointer{}
		if err := binary.Read(bytes.NewReader(block), binary.LittleEndian, anchor); err != nil {
			continue
		}
		return anchor, nil
	}

	return nil, fmt.Errorf("anchor volume descriptor not found")
}

// readVolumeDescriptorSequence reads the main volume descriptor sequence
func (r *Reader) readVolumeDescriptorSequence(extent ExtentAD) error {
	sectors := extent.Length / SectorSize
	if sectors == 0 {
		return errors.New("empty volume descriptor sequence")
	}

	for i := uint32(0); i < sectors; i++ {
		block := make([]byte, SectorSize)
		if err := r.readFullAt(int64(extent.Location+i)*SectorSize, block); err != nil {
			return err
		}
		rd := bytes.NewReader(block)

		switch binary.LittleEndian.Uint16(block[0:2]) {
		case TagPrimaryVolume:
			var pvd PrimaryVolumeDescriptor
			if err := binary.Read(rd, binary.LittleEndian, &pvd); err != nil {
				return err
			}
			r.volumeLabel = decodeDString(pvd.VolumeIdentifier[:])

		case TagPartition:
			var pd PartitionDescriptor
			if err := binary.Read(rd, binary.LittleEndian, &pd); err != nil {
				return err
			}
			if len(r.partitionStarts) == 0 {
				r.partitionStart = pd.PartitionStartingLocation
				r.partitionSize = pd.PartitionLength
			}
			r.partitionStarts[pd.PartitionNumber] = pd.PartitionStartingLocation

		case TagLogicalVolume:
			var lvd LogicalVolumeDescriptor
			if err := binary.Read(rd, binary.LittleEndian, &lvd); err != nil {
				return err
			}
			if lvd.LogicalBlockSize != 0 {
				r.blockSize = lvd.LogicalBlockSize
			}

			// The contents use field holds the file set descriptor as a long_ad.
			fileSetLength := binary.LittleEndian.Uint32(lvd.LogicalVolumeContentsUse[0:4])
			r.fileSetLocation = binary.LittleEndian.Uint32(lvd.LogicalVolumeContentsUse[4:8])
			r.fileSetPref = binary.LittleEndian.Uint16(lvd.LogicalVolumeContentsUse[8:10])
			if fileSetLength == 0 && r.fileSetLocation == 0 {
				// Some BD-ROM masters leave the field empty; the FSD then
				// sits at partition block 32.
				r.fileSetLocation = 32
			}
			r.fileSetFound = true

			mapsStart := binary.Size(lvd)
			mapsEnd := mapsStart + int(lvd.MapTableLength)
			if mapsEnd > len(block) {
				return fmt.Errorf("partition map table out of range (length=%d)", lvd.MapTableLength)
			}
			if err := r.parsePartitionMaps(block[mapsStart:mapsEnd], int(lvd.NumberOfPartitionMaps)); err != nil {
				return err
			}

		case TagTerminating:
			return nil
		}
	}

	return nil
}

func (r *Reader) readFullAt(off int64, p []byte) error {
	if r.file == nil {
		return os.ErrClosed
	}
	sr := io.NewSectionReader(r.file, off, int64(len(p)))
	_, err := io.ReadFull(sr, p)
	return err
}

func (r *Reader) readBlock(block uint32) ([]byte, error) {
	if r.blockSize == 0 {
		return nil, fmt.Errorf("udf: block size not set")
	}
	b := make([]byte, r.blockSize)
	if err := r.readFullAt(int64(block)*int64(r.blockSize), b); err != nil {
		return nil, err
	}
	return b, nil
}

// decodeString decodes an OSTA compressed unicode (CS0) string to UTF-8.
// Decoding stops at the first NUL character.
func (r *Reader) decodeString(data []byte) string {
	return string(decodeCS0(data))
}

func decodeCS0(data []byte) []byte {
	if len(data) == 0 {
		return nil
	}

	switch data[0] {
	case 8:
		out := make([]byte, 0, len(data)-1)
		for _, b := range data[1:] {
			if b == 0 {
				break
			}
			out = utf8.AppendRune(out, rune(b))
		}
		return out
	case 16:
		units := make([]uint16, 0, (len(data)-1)/2)
		for i := 1; i+1 < len(data); i += 2 {
			u := binary.BigEndian.Uint16(data[i : i+2])
			if u == 0 {
				break
			}
			units = append(units, u)
		}
		out := make([]byte, 0, len(units))
		for _, c := range utf16.Decode(units) {
			out = utf8.AppendRune(out, c)
		}
		return out
	}

	return nil
}

// decodeDString decodes a fixed-size dstring whose last byte holds the used length.
func decodeDString(field []byte) string {
	if len(field) == 0 {
		return ""
	}
	n := int(field[len(field)-1])
	if n == 0 || n > len(field)-1 {
		n = len(field) - 1
	}
	return strings.TrimRight(string(decodeCS0(field[:n])), " ")
}

// Volume Recognition Descriptor
type VolumeRecognitionDescriptor struct {
	StructureType      uint8
	StandardIdentifier [5]byte
	StructureVersion   uint8
	Reserved           byte
	StructureData      [2040]byte
}

// Anchor Volume Descriptor Pointer
type AnchorVolumeDescriptorPointer struct {
	DescriptorTag                         Tag
	MainVolumeDescriptorSequenceExtent    ExtentAD
	ReserveVolumeDescriptorSequenceExtent ExtentAD
	Reserved                              [480]byte
}

// Primary Volume Descriptor
type PrimaryVolumeDescriptor struct {
	DescriptorTag                               Tag
	VolumeDescriptorSequenceNumber              uint32
	PrimaryVolumeDescriptorNumber               uint32
	VolumeIdentifier                            [32]byte
	VolumeSequenceNumber                        uint16
	MaximumVolumeSequenceNumber                 uint16
	InterchangeLevel                            uint16
	MaximumInterchangeLevel                     uint16
	CharacterSetList                            uint32
	MaximumCharacterSetList                     uint32
	VolumeSetIdentifier                         [128]byte
	DescriptorCharacterSet                      CharSpec
	ExplanatoryCharacterSet                     CharSpec
	VolumeAbstract                              ExtentAD
	VolumeCopyrightNotice                       ExtentAD
	ApplicationIdentifier                       EntityID
	RecordingDateAndTime                        Timestamp
	ImplementationIdentifier                    EntityID
	ImplementationUse                           [64]byte
	PredecessorVolumeDescriptorSequenceLocation uint32
	Flags                                       uint16
	Reserved                                    [22]byte
}

// Partition Descriptor
type PartitionDescriptor struct {
	DescriptorTag                  Tag
	VolumeDescriptorSequenceNumber uint32
	PartitionFlags                 uint16
	PartitionNumber                uint16
	PartitionContents              EntityID
	PartitionContentsUse           [128]byte
	AccessType                     uint32
	PartitionStartingLocation      uint32
	PartitionLength                uint32
	ImplementationIdentifier       EntityID
	ImplementationUse              [128]byte
	Reserved                       [156]byte
}

// Logical Volume Descriptor
type LogicalVolumeDescriptor struct {
	DescriptorTag                  Tag
	VolumeDescriptorSequenceNumber uint32
	DescriptorCharacterSet         CharSpec
	LogicalVolumeIdentifier        [128]byte
	LogicalBlockSize               uint32
	DomainIdentifier               EntityID
	LogicalVolumeContentsUse       [16]byte
	MapTableLength                 uint32
	NumberOfPartitionMaps          uint32
	ImplementationIdentifier       EntityID
	ImplementationUse              [128]byte
	IntegritySequenceExtent        ExtentAD
	// Partition maps follow (variable length)
}

// File Set Descriptor
type FileSetDescriptor struct {
	DescriptorTag                       Tag
	RecordingDateAndTime                Timestamp
	InterchangeLevel                    uint16
	MaximumInterchangeLevel             uint16
	CharacterSetList                    uint32
	MaximumCharacterSetList             uint32
	FileSetNumber                       uint32
	FileSetDescriptorNumber             uint32
	LogicalVolumeIdentifierCharacterSet CharSpec
	LogicalVolumeIdentifier             [128]byte
	FileSetCharacterSet                 CharSpec
	FileSetIdentifier                   [32]byte
	CopyrightFileIdentifier             [32]byte
	AbstractFileIdentifier              [32]byte
	RootDirectoryICB                    LongAD
	DomainIdentifier                    EntityID
	NextExtent                          LongAD
	SystemStreamDirectoryICB            LongAD
	Reserved                            [32]byte
}
