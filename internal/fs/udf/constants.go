package udf

// UDF constants (ECMA-167 / OSTA UDF 1.02 through 2.60)
const (
	// Sector size for optical media
	SectorSize = 2048

	// Volume Recognition Sequence
	VRSOffset = 16 * SectorSize // Starting at sector 16

	// Standard identifiers
	StandardIDBEA01 = "BEA01"
	StandardIDNSR02 = "NSR02"
	StandardIDNSR03 = "NSR03"
	StandardIDTEA01 = "TEA01"

	// Descriptor tags
	TagPrimaryVolume        = 1
	TagAnchorVolume         = 2
	TagVolumePointer        = 3
	TagImplementationVolume = 4
	TagPartition            = 5
	TagLogicalVolume        = 6
	TagUnallocatedSpace     = 7
	TagTerminating          = 8
	TagFileSet              = 256
	TagFileIdentifier       = 257
	TagAllocationExtent     = 258
	TagIndirect             = 259
	TagTerminalEntry        = 260
	TagFile                 = 261
	TagExtendedAttribute    = 262
	TagExtendedFileEntry    = 266

	// File characteristics
	FileCharHidden    = 0x01
	FileCharDirectory = 0x02
	FileCharDeleted   = 0x04
	FileCharParent    = 0x08
	FileCharMetadata  = 0x10

	// ICB file types
	ICBFileTypeDirectory    = 4
	ICBFileTypeFile         = 5
	ICBFileTypeBlockDevice  = 6
	ICBFileTypeCharDevice   = 7
	ICBFileTypeFIFO         = 9
	ICBFileTypeSocket       = 10
	ICBFileTypeSymlink      = 12
	ICBFileTypeStreamDir    = 13
	ICBFileTypeMetadataFile = 250

	// ICB flags
	ICBFlagAllocMask = 0x0007
	ICBFlagSetUID    = 0x0040
	ICBFlagSetGID    = 0x0080
	ICBFlagSticky    = 0x0100

	// Allocation descriptor types (ICB flags bits 0-2)
	ADShort    = 0
	ADLong     = 1
	ADExtended = 2
	ADEmbedded = 3

	// Extent types (top two bits of an extent length)
	ExtentRecorded              = 0
	ExtentAllocatedNotRecorded  = 1
	ExtentNotAllocated          = 2
	ExtentNextAllocationExtents = 3
)

// File entry permission bits (ECMA-167 4/14.9.5)
const (
	PermOtherExec   = 0x0001
	PermOtherWrite  = 0x0002
	PermOtherRead   = 0x0004
	PermOtherChattr = 0x0008
	PermOtherDelete = 0x0010
	PermGroupExec   = 0x0020
	PermGroupWrite  = 0x0040
	PermGroupRead   = 0x0080
	PermGroupChattr = 0x0100
	PermGroupDelete = 0x0200
	PermOwnerExec   = 0x0400
	PermOwnerWrite  = 0x0800
	PermOwnerRead   = 0x1000
	PermOwnerChattr = 0x2000
	PermOwnerDelete = 0x4000
)

// Sentinels and driver codes returned by the Dirent API.
const (
	// LengthUnknown is returned by FileLength when the entry's file entry
	// could not be read.
	LengthUnknown int64 = 2147483647

	DriverOpSuccess      int64 = 0
	DriverOpError        int64 = -1
	DriverOpUnsupported  int64 = -2
	DriverOpBadParameter int64 = -5
)

// POSIX st_mode bits produced by PosixMode.
const (
	ModeTypeMask   = 0o170000
	ModeSocket     = 0o140000
	ModeSymlink    = 0o120000
	ModeRegular    = 0o100000
	ModeBlock      = 0o060000
	ModeDirectory  = 0o040000
	ModeCharDevice = 0o020000
	ModeFIFO       = 0o010000
	ModeSetUID     = 0o4000
	ModeSetGID     = 0o2000
	ModeSticky     = 0o1000
)

// EntityID represents UDF entity identifier
type EntityID struct {
	Flags      byte
	Identifier [23]byte
	Suffix     [8]byte
}

// ExtentAD represents extent address descriptor
type ExtentAD struct {
	Length   uint32
	Location uint32
}

// LBAddr represents a logical block address (ECMA-167).
// LogicalBlockNumber is relative to the referenced partition.
type LBAddr struct {
	LogicalBlockNumber       uint32
	PartitionReferenceNumber uint16
}

// LongAD represents long allocation descriptor
type LongAD struct {
	ExtentLength      uint32
	ExtentLocation    LBAddr
	ImplementationUse [6]byte
}

// ShortAD represents short allocation descriptor
type ShortAD struct {
	ExtentLength   uint32
	ExtentPosition uint32
}

// Timestamp represents UDF timestamp (12 bytes)
type Timestamp struct {
	TypeAndTimezone        uint16 // Bits 12-15: Type, Bits 0-11: Timezone
	Year                   uint16
	Month                  uint8
	Day                    uint8
	Hour                   uint8
	Minute                 uint8
	Second                 uint8
	Centiseconds           uint8
	HundredsOfMicroseconds uint8
	Microseconds           uint8
}

// Tag represents descriptor tag
type Tag struct {
	TagIdentifier       uint16
	DescriptorVersion   uint16
	TagChecksum         uint8
	Reserved            uint8
	TagSerialNumber     uint16
	DescriptorCRC       uint16
	DescriptorCRCLength uint16
	TagLocation         uint32
}

// CharSpec represents character set specification
type CharSpec struct {
	CharacterSetType uint8
	CharacterSetInfo [63]byte
}
