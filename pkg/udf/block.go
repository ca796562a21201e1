package udf

import native "github.com/s0up4200/go-udfvfs/internal/fs/udf"

// BlockSize is the logical block size every length to block conversion uses.
// Open refuses volumes whose recorded block size differs.
const BlockSize = native.SectorSize

// DefaultMaxReadBlocks bounds the blocks a FileReader fetches per call.
const DefaultMaxReadBlocks = 512

// blockSpan returns the first block and the number of blocks covering
// n bytes at byte offset off.
func blockSpan(off, n int64) (first int64, count int64) {
	first = off / BlockSize
	last := (off + n + BlockSize - 1) / BlockSize
	return first, last - first
}
