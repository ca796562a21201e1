package udf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

const (
	metadataPartitionID = "*UDF Metadata Partition"
	sparablePartitionID = "*UDF Sparable Partition"
	virtualPartitionID  = "*UDF Virtual Partition"
)

var errVirtualPartition = errors.New("virtual partitions are not supported")

// partitionMap is one entry of the logical volume's partition map table.
type partitionMap struct {
	mapType         uint8
	volumeSequence  uint16
	partitionNumber uint16
	identifier      string
	isMetadata      bool
	isVirtual       bool
	metadataFile    uint32
	metadataMirror  uint32
}

func (pm partitionMap) String() string {
	switch {
	case pm.isMetadata:
		return fmt.Sprintf("metadata(part=%d file=%d mirror=%d)", pm.partitionNumber, pm.metadataFile, pm.metadataMirror)
	case pm.isVirtual:
		return fmt.Sprintf("virtual(part=%d)", pm.partitionNumber)
	case pm.mapType == 2:
		return fmt.Sprintf("type2(%q part=%d)", pm.identifier, pm.partitionNumber)
	default:
		return fmt.Sprintf("physical(part=%d)", pm.partitionNumber)
	}
}

// DebugPartitionMaps describes the parsed partition maps.
func (r *Reader) DebugPartitionMaps() []string {
	out := make([]string, 0, len(r.partitionMaps))
	for _, pm := range r.partitionMaps {
		out = append(out, pm.String())
	}
	return out
}

// parsePartitionMaps decodes the partition map table of a logical volume descriptor.
func (r *Reader) parsePartitionMaps(data []byte, count int) error {
	off := 0
	for i := 0; i < count; i++ {
		if off+2 > len(data) {
			return fmt.Errorf("partition map %d out of range", i)
		}
		mapType := data[off]
		mapLen := int(data[off+1])
		if mapLen < 2 || off+mapLen > len(data) {
			return fmt.Errorf("partition map %d has invalid length %d", i, mapLen)
		}
		m := data[off : off+mapLen]

		pm := partitionMap{mapType: mapType}
		switch mapType {
		case 1:
			if mapLen < 6 {
				return fmt.Errorf("type 1 partition map %d too short", i)
			}
			pm.volumeSequence = binary.LittleEndian.Uint16(m[2:4])
			pm.partitionNumber = binary.LittleEndian.Uint16(m[4:6])
		case 2:
			if mapLen < 40 {
				return fmt.Errorf("type 2 partition map %d too short", i)
			}
			// EntityID at offset 4: flags (1) + identifier (23) + suffix (8)
			pm.identifier = strings.TrimRight(string(m[5:28]), "\x00")
			pm.volumeSequence = binary.LittleEndian.Uint16(m[36:38])
			pm.partitionNumber = binary.LittleEndian.Uint16(m[38:40])
			switch pm.identifier {
			case metadataPartitionID:
				if mapLen < 48 {
					return fmt.Errorf("metadata partition map %d too short", i)
				}
				pm.isMetadata = true
				pm.metadataFile = binary.LittleEndian.Uint32(m[40:44])
				pm.metadataMirror = binary.LittleEndian.Uint32(m[44:48])
			case virtualPartitionID:
				pm.isVirtual = true
			case sparablePartitionID:
				// Read-only media never remaps, so the packets are read in place.
			}
		default:
			return fmt.Errorf("unknown partition map type %d", mapType)
		}

		r.partitionMaps = append(r.partitionMaps, pm)
		off += mapLen
	}

	for _, pm := range r.partitionMaps {
		if !pm.isMetadata {
			continue
		}
		phys, ok := r.physicalMapFor(pm.partitionNumber)
		if !ok {
			return fmt.Errorf("metadata partition refers to unknown partition %d", pm.partitionNumber)
		}
		r.metadataFileICB = &LongAD{
			ExtentLocation: LBAddr{
				LogicalBlockNumber:       pm.metadataFile,
				PartitionReferenceNumber: phys,
			},
		}
		r.metadataExtents = nil
		r.metadataLoaded = false
		break
	}

	return nil
}

// physicalMapFor returns the index of the non-metadata map for a partition number.
func (r *Reader) physicalMapFor(partitionNumber uint16) (uint16, bool) {
	for i, pm := range r.partitionMaps {
		if !pm.isMetadata && !pm.isVirtual && pm.partitionNumber == partitionNumber {
			return uint16(i), true
		}
	}
	return 0, false
}

func (r *Reader) resolveLBAddr(addr LBAddr) (uint32, error) {
	return r.resolvePartitionBlock(addr.PartitionReferenceNumber, addr.LogicalBlockNumber)
}

// resolvePartitionBlock maps a partition-relative block to an absolute sector.
func (r *Reader) resolvePartitionBlock(pref uint16, lbn uint32) (uint32, error) {
	if len(r.partitionMaps) == 0 {
		return r.partitionStart + lbn, nil
	}
	if int(pref) >= len(r.partitionMaps) {
		return 0, fmt.Errorf("partition reference %d out of range", pref)
	}

	pm := r.partitionMaps[pref]
	switch {
	case pm.isVirtual:
		return 0, errVirtualPartition
	case pm.isMetadata:
		return r.resolveMetadataBlock(lbn)
	}

	start, ok := r.partitionStarts[pm.partitionNumber]
	if !ok {
		start = r.partitionStart
	}
	return start + lbn, nil
}

// resolveMetadataBlock maps a metadata partition block through the metadata file extents.
func (r *Reader) resolveMetadataBlock(lbn uint32) (uint32, error) {
	if err := r.loadMetadataExtents(); err != nil {
		return 0, err
	}

	bs := int64(r.blockSize)
	off := int64(lbn) * bs
	var fileOff int64
	for _, ad := range r.metadataExtents {
		if off < fileOff+int64(ad.length) {
			if ad.kind != ExtentRecorded {
				return 0, fmt.Errorf("metadata block %d is not recorded", lbn)
			}
			if int(ad.pref) < len(r.partitionMaps) && r.partitionMaps[ad.pref].isMetadata {
				return 0, fmt.Errorf("metadata file extent refers to the metadata partition")
			}
			rel := uint32((off - fileOff) / bs)
			return r.resolvePartitionBlock(ad.pref, ad.lbn+rel)
		}
		fileOff += int64(ad.length)
	}

	return 0, fmt.Errorf("metadata block %d beyond metadata file", lbn)
}

func (r *Reader) loadMetadataExtents() error {
	if r.metadataLoaded {
		return nil
	}
	if r.metadataFileICB == nil {
		return errors.New("no metadata file")
	}

	info, err := r.readFileInfo(*r.metadataFileICB)
	if err != nil {
		return fmt.Errorf("failed to read metadata file entry: %w", err)
	}
	if info.embedded != nil {
		return errors.New("embedded metadata file is not supported")
	}

	r.metadataExtents = info.extents
	r.metadataLoaded = true
	return nil
}
