// Package udftest synthesizes small UDF images for tests.
//
// Images have a 2048-byte block size, one physical partition and a file
// set whose directory tree is given as a slice of Nodes. Entries are recorded
// in the order given, so listings come back in that order.
package udftest

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"unicode/utf16"
)

const (
	blockSize      = 2048
	vdsLocation    = 32
	anchorLocation = 256
	partitionStart = 260

	// Default permissions: 0644 for files, 0755 for directories.
	filePerms = 0x1000 | 0x0800 | 0x0080 | 0x0004
	dirPerms  = filePerms | 0x0400 | 0x0020 | 0x0001
)

// Node describes one file or directory of a synthesized image.
type Node struct {
	Name     string
	Dir      bool
	Data     []byte
	Children []*Node

	// Perms overrides the UDF permission bits.
	Perms uint32
	// Links is written as the link count; 0 writes 1 unless ZeroLinks is set.
	Links     uint16
	ZeroLinks bool
	// Length overrides the recorded information length.
	Length uint64
	// Embedded stores the data inside the file entry.
	Embedded bool
	// Fragmented records the data as one-block extents separated by gaps.
	Fragmented bool
	// Extended records an extended file entry instead of a file entry.
	Extended bool
	// Broken points the identifier at a block without a file entry.
	Broken bool

	feBlock uint32
}

// File returns a regular file node.
func File(name string, data []byte) *Node {
	return &Node{Name: name, Data: data}
}

// Dir returns a directory node.
func Dir(name string, children ...*Node) *Node {
	return &Node{Name: name, Dir: true, Children: children}
}

// Options tunes the volume descriptors.
type Options struct {
	Label string
	// EmptyContentsUse leaves the LVD contents use empty and places the
	// file set descriptor at partition block 32.
	EmptyContentsUse bool
}

type builder struct {
	blocks map[uint32][]byte // partition-relative
	next   uint32
	serial uint16
}

// Write builds an image from the root entries and returns its path.
func Write(t testing.TB, root ...*Node) string {
	t.Helper()
	return WriteWith(t, Options{}, root...)
}

// WriteWith is Write with explicit options.
func WriteWith(t testing.TB, opts Options, root ...*Node) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "image.udf")
	if err := os.WriteFile(path, Image(opts, root...), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	return path
}

// Image returns the bytes of an image holding the given root entries.
func Image(opts Options, root ...*Node) []byte {
	if opts.Label == "" {
		opts.Label = "UDFTEST"
	}

	b := &builder{blocks: make(map[uint32][]byte)}
	fsdBlock := uint32(0)
	if opts.EmptyContentsUse {
		fsdBlock = 32
	}
	b.next = fsdBlock + 1

	rootNode := &Node{Dir: true, Children: root}
	b.assign(rootNode)
	b.write(rootNode, rootNode)

	fsd := make([]byte, blockSize)
	putTimestamp(fsd[16:])
	binary.LittleEndian.PutUint16(fsd[28:], 3) // interchange level
	binary.LittleEndian.PutUint16(fsd[30:], 3)
	putLongAD(fsd[400:], blockSize, rootNode.feBlock)
	b.tag(fsd, 256, fsdBlock, 512)
	b.blocks[fsdBlock] = fsd

	partLen := b.next + 1
	total := partitionStart + partLen + 1
	img := make([]byte, int(total)*blockSize)

	// Volume recognition sequence
	for i, id := range []string{"BEA01", "NSR02", "TEA01"} {
		s := img[(16+i)*blockSize:]
		s[0] = 0
		copy(s[1:6], id)
		s[6] = 1
	}

	// Main volume descriptor sequence
	vds := img[vdsLocation*blockSize:]
	pvd := vds[0:blockSize]
	binary.LittleEndian.PutUint32(pvd[16:], 1)
	putDString(pvd[24:56], opts.Label)
	binary.LittleEndian.PutUint16(pvd[56:], 1)
	binary.LittleEndian.PutUint16(pvd[58:], 1)
	b.tag(pvd, 1, vdsLocation, 496)

	pd := vds[blockSize : 2*blockSize]
	binary.LittleEndian.PutUint32(pd[16:], 2)
	binary.LittleEndian.PutUint16(pd[20:], 1) // allocated
	binary.LittleEndian.PutUint16(pd[22:], 0) // partition number
	copy(pd[25:], "+NSR02")
	binary.LittleEndian.PutUint32(pd[184:], 1) // read-only access
	binary.LittleEndian.PutUint32(pd[188:], partitionStart)
	binary.LittleEndian.PutUint32(pd[192:], partLen)
	b.tag(pd, 5, vdsLocation+1, 496)

	lvd := vds[2*blockSize : 3*blockSize]
	binary.LittleEndian.PutUint32(lvd[16:], 3)
	binary.LittleEndian.PutUint32(lvd[212:], blockSize)
	copy(lvd[217:], "*OSTA UDF Compliant")
	if !opts.EmptyContentsUse {
		putLongAD(lvd[248:], blockSize, fsdBlock)
	}
	binary.LittleEndian.PutUint32(lvd[264:], 6) // map table length
	binary.LittleEndian.PutUint32(lvd[268:], 1) // number of maps
	lvd[440] = 1
	lvd[441] = 6
	binary.LittleEndian.PutUint16(lvd[442:], 1)
	binary.LittleEndian.PutUint16(lvd[444:], 0)
	b.tag(lvd, 6, vdsLocation+2, 446-16)

	td := vds[3*blockSize : 4*blockSize]
	b.tag(td, 8, vdsLocation+3, 496)

	// Anchor
	avdp := img[anchorLocation*blockSize:]
	binary.LittleEndian.PutUint32(avdp[16:], 4*blockSize)
	binary.LittleEndian.PutUint32(avdp[20:], vdsLocation)
	binary.LittleEndian.PutUint32(avdp[24:], 4*blockSize)
	binary.LittleEndian.PutUint32(avdp[28:], vdsLocation)
	b.tag(avdp[:blockSize], 2, anchorLocation, 496)

	for lbn, data := range b.blocks {
		copy(img[int(partitionStart+lbn)*blockSize:], data)
	}
	return img
}

// assign gives every node a file entry block, parents first.
func (b *builder) assign(n *Node) {
	n.feBlock = b.alloc(1)
	for _, c := range n.Children {
		b.assign(c)
	}
}

func (b *builder) alloc(count uint32) uint32 {
	lbn := b.next
	b.next += count
	return lbn
}

func (b *builder) write(n, parent *Node) {
	if n.Broken {
		b.blocks[n.feBlock] = make([]byte, blockSize)
		return
	}

	data := n.Data
	if n.Dir {
		data = b.directoryData(n, parent)
		for _, c := range n.Children {
			b.write(c, n)
		}
	}

	fe := make([]byte, blockSize)
	base := 176
	if n.Extended {
		base = 216
	}

	fileType := byte(5)
	perms := uint32(filePerms)
	if n.Dir {
		fileType = 4
		perms = dirPerms
	}
	if n.Perms != 0 {
		perms = n.Perms
	}

	// ICB tag
	binary.LittleEndian.PutUint16(fe[20:], 4) // strategy type
	binary.LittleEndian.PutUint16(fe[24:], 1) // max entries
	fe[27] = fileType

	binary.LittleEndian.PutUint32(fe[36:], 0xFFFFFFFF) // uid
	binary.LittleEndian.PutUint32(fe[40:], 0xFFFFFFFF) // gid
	binary.LittleEndian.PutUint32(fe[44:], perms)

	links := n.Links
	if links == 0 && !n.ZeroLinks {
		links = 1
	}
	binary.LittleEndian.PutUint16(fe[48:], links)

	length := uint64(len(data))
	if n.Length != 0 {
		length = n.Length
	}
	binary.LittleEndian.PutUint64(fe[56:], length)

	var ads []byte
	var flags uint16
	switch {
	case n.Embedded:
		flags = 3
		ads = data
	case n.Fragmented:
		for off := 0; off < len(data); off += blockSize {
			chunk := data[off:min(off+blockSize, len(data))]
			lbn := b.alloc(2) // one block of data, one block gap
			b.blocks[lbn] = append(make([]byte, 0, blockSize), chunk...)
			b.blocks[lbn+1] = filler(blockSize)
			ads = appendShortAD(ads, uint32(len(chunk)), lbn)
		}
	case len(data) > 0:
		count := uint32((len(data) + blockSize - 1) / blockSize)
		lbn := b.alloc(count)
		for i := uint32(0); i < count; i++ {
			chunk := data[int(i)*blockSize : min(int(i+1)*blockSize, len(data))]
			block := filler(blockSize)
			copy(block, chunk)
			b.blocks[lbn+i] = block
		}
		ads = appendShortAD(ads, uint32(len(data)), lbn)
	}
	binary.LittleEndian.PutUint16(fe[34:], flags)

	if n.Extended {
		binary.LittleEndian.PutUint64(fe[64:], length) // object size
		putTimestamp(fe[92:])                          // modification time
		binary.LittleEndian.PutUint32(fe[208:], 0)     // L_EA
		binary.LittleEndian.PutUint32(fe[212:], uint32(len(ads)))
	} else {
		putTimestamp(fe[84:]) // modification time
		binary.LittleEndian.PutUint32(fe[168:], 0)
		binary.LittleEndian.PutUint32(fe[172:], uint32(len(ads)))
	}
	copy(fe[base:], ads)

	tagID := uint16(261)
	if n.Extended {
		tagID = 266
	}
	b.tag(fe, tagID, n.feBlock, uint16(base+len(ads)-16))
	b.blocks[n.feBlock] = fe
}

// directoryData returns the FID stream of a directory: parent entry first.
func (b *builder) directoryData(n, parent *Node) []byte {
	var out []byte
	out = b.appendFID(out, 0x0A, nil, parent.feBlock)
	for _, c := range n.Children {
		var chars byte
		if c.Dir {
			chars |= 0x02
		}
		out = b.appendFID(out, chars, encodeName(c.Name), c.feBlock)
	}
	return out
}

func (b *builder) appendFID(out []byte, chars byte, name []byte, icb uint32) []byte {
	size := 38 + len(name)
	padded := (size + 3) &^ 3
	fid := make([]byte, padded)
	binary.LittleEndian.PutUint16(fid[16:], 1)
	fid[18] = chars
	fid[19] = byte(len(name))
	putLongAD(fid[20:], blockSize, icb)
	copy(fid[38:], name)
	b.tag(fid, 257, icb, uint16(size-16))
	return append(out, fid...)
}

// encodeName produces a CS0 identifier: 8-bit when every rune fits, UCS-2 otherwise.
func encodeName(name string) []byte {
	runes := []rune(name)
	narrow := true
	for _, r := range runes {
		if r > 0xFF {
			narrow = false
			break
		}
	}
	if narrow {
		out := []byte{8}
		for _, r := range runes {
			out = append(out, byte(r))
		}
		return out
	}
	out := []byte{16}
	for _, u := range utf16.Encode(runes) {
		out = binary.BigEndian.AppendUint16(out, u)
	}
	return out
}

func (b *builder) tag(d []byte, id uint16, location uint32, crcLen uint16) {
	b.serial++
	binary.LittleEndian.PutUint16(d[0:], id)
	binary.LittleEndian.PutUint16(d[2:], 2)
	binary.LittleEndian.PutUint16(d[6:], b.serial)
	binary.LittleEndian.PutUint16(d[10:], crcLen)
	binary.LittleEndian.PutUint32(d[12:], location)
	var sum byte
	for i := 0; i < 16; i++ {
		if i != 4 {
			sum += d[i]
		}
	}
	d[4] = sum
}

func putLongAD(d []byte, length, lbn uint32) {
	binary.LittleEndian.PutUint32(d[0:], length)
	binary.LittleEndian.PutUint32(d[4:], lbn)
	binary.LittleEndian.PutUint16(d[8:], 0)
}

func appendShortAD(d []byte, length, lbn uint32) []byte {
	d = binary.LittleEndian.AppendUint32(d, length)
	return binary.LittleEndian.AppendUint32(d, lbn)
}

func putDString(d []byte, s string) {
	d[0] = 8
	n := copy(d[1:len(d)-1], s)
	d[len(d)-1] = byte(n + 1)
}

// putTimestamp writes 2023-02-01 12:30:00 UTC.
func putTimestamp(d []byte) {
	binary.LittleEndian.PutUint16(d[0:], 1<<12)
	binary.LittleEndian.PutUint16(d[2:], 2023)
	d[4] = 2
	d[5] = 1
	d[6] = 12
	d[7] = 30
}

// filler returns a block of non-zero bytes so reads past the end of a file
// would be visible.
func filler(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = 0xEE
	}
	return b
}

// Pattern returns n bytes of a repeating, position-dependent pattern.
func Pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + i/251)
	}
	return b
}
