package udf

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/s0up4200/go-udfvfs/internal/fs/udf/udftest"
)

func TestDecodeString_UCS2BE(t *testing.T) {
	r := &Reader{}

	// compID=16 + UCS-2BE bytes for "BRITNEY_SPEARS" + terminator
	data := []byte{
		16,
		0x00, 'B',
		0x00, 'R',
		0x00, 'I',
		0x00, 'T',
		0x00, 'N',
		0x00, 'E',
		0x00, 'Y',
		0x00, '_',
		0x00, 'S',
		0x00, 'P',
		0x00, 'E',
		0x00, 'A',
		0x00, 'R',
		0x00, 'S',
		0x00, 0x00,
	}

	if got, want := r.decodeString(data), "BRITNEY_SPEARS"; got != want {
		t.Fatalf("decodeString(UCS2)=%q want %q", got, want)
	}
}

func TestDecodeString_8BitStopsAtNUL(t *testing.T) {
	r := &Reader{}
	if got, want := r.decodeString([]byte{8, 'A', 'B', 0, 'C'}), "AB"; got != want {
		t.Fatalf("decodeString(8bit)=%q want %q", got, want)
	}
}

func TestDecodeString_Latin1ToUTF8(t *testing.T) {
	r := &Reader{}
	if got, want := r.decodeString([]byte{8, 'F', 0xE9, 'e'}), "Fée"; got != want {
		t.Fatalf("decodeString(latin1)=%q want %q", got, want)
	}
}

func TestDecodeDString_UsesLengthByte(t *testing.T) {
	field := make([]byte, 32)
	field[0] = 8
	copy(field[1:], "LABEL   junk")
	field[31] = 9 // compID + "LABEL   "
	if got, want := decodeDString(field), "LABEL"; got != want {
		t.Fatalf("decodeDString=%q want %q", got, want)
	}
}

func TestParsePartitionMaps_MetadataPartition(t *testing.T) {
	// Partition map table bytes from a UDF 2.50+ BD-ROM (metadata partition map).
	pm := []byte{
		0x01, 0x06, 0x01, 0x00, 0x00, 0x00, // type 1, len 6, volseq=1, part=0
		0x02, 0x40, 0x00, 0x00, // type 2, len 64, reserved
		0x00, // EntityID flags
		'*', 'U', 'D', 'F', ' ', 'M', 'e', 't', 'a', 'd', 'a', 't', 'a', ' ', 'P', 'a', 'r', 't', 'i', 't', 'i', 'o', 'n',
		0x50, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // suffix (opaque)
		// volume sequence 1, partition 0, metadata file location 0
		0x01, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		// mirror, bitmap, allocation unit, alignment/flags, reserved
		0x3f, 0xca, 0xb9, 0x00,
		0xff, 0xff, 0xff, 0xff,
		0x20, 0x00, 0x00, 0x00,
		0x20, 0x00, 0x01, 0x00,
		0x00, 0x00, 0x00, 0x00,
	}

	r := &Reader{}
	if err := r.parsePartitionMaps(pm, 2); err != nil {
		t.Fatalf("parsePartitionMaps err: %v", err)
	}
	if got := len(r.partitionMaps); got != 2 {
		t.Fatalf("partitionMaps len=%d want 2", got)
	}
	if !r.partitionMaps[1].isMetadata {
		t.Fatalf("partitionMaps[1].isMetadata=false want true")
	}
	if r.metadataFileICB == nil {
		t.Fatalf("metadataFileICB=nil want non-nil")
	}
	if got, want := r.metadataFileICB.ExtentLocation.LogicalBlockNumber, uint32(0); got != want {
		t.Fatalf("metadataFileICB lbn=%d want %d", got, want)
	}
	if got, want := r.metadataFileICB.ExtentLocation.PartitionReferenceNumber, uint16(0); got != want {
		t.Fatalf("metadataFileICB pref=%d want %d", got, want)
	}
	if got, want := r.partitionMaps[1].metadataMirror, uint32(0x00b9ca3f); got != want {
		t.Fatalf("metadataMirror=%#x want %#x", got, want)
	}
}

func TestResolveMetadataBlock(t *testing.T) {
	r := &Reader{
		blockSize:       SectorSize,
		partitionStarts: map[uint16]uint32{0: 1000},
		partitionMaps: []partitionMap{
			{mapType: 1, partitionNumber: 0},
			{mapType: 2, partitionNumber: 0, isMetadata: true},
		},
		metadataLoaded: true,
		metadataExtents: []allocationDescriptor{
			{length: 2 * SectorSize, lbn: 50},
			{length: 4 * SectorSize, lbn: 90},
		},
	}

	tests := []struct {
		lbn  uint32
		want uint32
	}{
		{0, 1050},
		{1, 1051},
		{2, 1090},
		{5, 1093},
	}
	for _, tt := range tests {
		got, err := r.resolvePartitionBlock(1, tt.lbn)
		if err != nil {
			t.Fatalf("resolvePartitionBlock(1, %d) err: %v", tt.lbn, err)
		}
		if got != tt.want {
			t.Fatalf("resolvePartitionBlock(1, %d)=%d want %d", tt.lbn, got, tt.want)
		}
	}

	if _, err := r.resolvePartitionBlock(1, 6); err == nil {
		t.Fatalf("expected error past the metadata file")
	}
}

func TestReadFileData_ReadsAcrossExtents(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "udf-extents-*")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	a := bytes.Repeat([]byte("A"), SectorSize)
	b := bytes.Repeat([]byte("B"), 1024)

	if _, err := f.WriteAt(a, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteAt(b, 4*SectorSize); err != nil {
		t.Fatal(err)
	}

	r := &Reader{file: f, blockSize: SectorSize}
	info := &fileInfo{
		length: SectorSize + 1024,
		extents: []allocationDescriptor{
			{length: SectorSize, lbn: 0},
			{length: 1024, lbn: 4},
		},
	}

	got := make([]byte, 2*SectorSize)
	if err := r.readFileData(info, got, 0, SectorSize+1024); err != nil {
		t.Fatalf("readFileData err: %v", err)
	}
	want := append(append([]byte{}, a...), b...)
	if !bytes.Equal(got[:len(want)], want) {
		t.Fatalf("data mismatch")
	}
}

func TestReadFileData_UnrecordedExtentIsZero(t *testing.T) {
	r := &Reader{blockSize: SectorSize}
	info := &fileInfo{
		length:  SectorSize,
		extents: []allocationDescriptor{{length: SectorSize, kind: ExtentNotAllocated}},
	}
	r.file, _ = os.Open(os.DevNull)
	defer r.file.Close()

	got := bytes.Repeat([]byte{0xFF}, SectorSize)
	if err := r.readFileData(info, got, 0, SectorSize); err != nil {
		t.Fatalf("readFileData err: %v", err)
	}
	if !bytes.Equal(got, make([]byte, SectorSize)) {
		t.Fatalf("unrecorded extent not zero filled")
	}
}

func TestParseFileIdentifiers_StopsAtPadding(t *testing.T) {
	data := make([]byte, 128)
	data[0] = TagFileIdentifier & 0xFF
	data[1] = TagFileIdentifier >> 8
	data[18] = FileCharParent | FileCharDirectory

	fids := parseFileIdentifiers(data)
	if len(fids) != 1 {
		t.Fatalf("fids len=%d want 1", len(fids))
	}
	if !fids[0].isParent() {
		t.Fatalf("first identifier should be the parent entry")
	}
}

func openImage(t *testing.T, nodes ...*udftest.Node) *Reader {
	t.Helper()
	r, err := NewReader(udftest.Write(t, nodes...))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestNewReader_RejectsNonUDF(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "not-udf-*")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write(make([]byte, 300*SectorSize)); err != nil {
		t.Fatal(err)
	}
	f.Close()

	if _, err := NewReader(f.Name()); err == nil {
		t.Fatalf("expected error for zeroed image")
	}
	if _, err := NewReader(f.Name() + ".missing"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err=%v want ErrNotExist", err)
	}
}

func TestNewReader_VolumeFields(t *testing.T) {
	r := openImage(t, udftest.File("a", []byte("x")))

	if got := r.GetVolumeLabel(); got != "UDFTEST" {
		t.Fatalf("label=%q want UDFTEST", got)
	}
	if got := r.BlockSize(); got != SectorSize {
		t.Fatalf("blockSize=%d want %d", got, SectorSize)
	}
	if got := r.PartitionStart(); got != 260 {
		t.Fatalf("partitionStart=%d want 260", got)
	}
}

func TestNewReader_EmptyContentsUseFallsBackToBlock32(t *testing.T) {
	path := udftest.WriteWith(t, udftest.Options{EmptyContentsUse: true}, udftest.File("a", []byte("x")))
	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	if got := r.FileSetLocation(); got != 32 {
		t.Fatalf("fileSetLocation=%d want 32", got)
	}
}

func TestDirent_WalkAndFree(t *testing.T) {
	r := openImage(t,
		udftest.File("one", []byte("1")),
		udftest.Dir("two", udftest.File("inner", nil)),
		udftest.File("three", []byte("333")),
	)

	root := r.Root()
	if root == nil {
		t.Fatalf("Root()=nil: %v", r.Err())
	}
	if root.Filename() != nil {
		t.Fatalf("root Filename()=%q want nil", root.Filename())
	}

	var names []string
	for d := root.Opendir(); d != nil; d = d.Readdir() {
		names = append(names, string(d.Filename()))
	}
	root.Free()

	if got, want := names, []string{"one", "two", "three"}; !equalStrings(got, want) {
		t.Fatalf("names=%q want %q", got, want)
	}
	if n := r.OpenDirents(); n != 0 {
		t.Fatalf("OpenDirents=%d want 0", n)
	}
}

func TestDirent_FreeTwicePanics(t *testing.T) {
	r := openImage(t, udftest.File("a", nil))
	root := r.Root()
	root.Free()

	defer func() {
		if recover() == nil {
			t.Fatalf("second Free did not panic")
		}
	}()
	root.Free()
}

func TestDirent_Sentinels(t *testing.T) {
	r := openImage(t,
		&udftest.Node{Name: "broken", Broken: true},
		&udftest.Node{Name: "nolinks", Data: []byte("x"), ZeroLinks: true},
	)
	root := r.Root()
	defer root.Free()

	broken := root.Fopen("broken")
	if broken == nil {
		t.Fatalf("Fopen(broken)=nil")
	}
	defer broken.Free()
	if got := broken.FileLength(); got != LengthUnknown {
		t.Fatalf("FileLength=%d want LengthUnknown", got)
	}
	if got := broken.LinkCount(); got != 0 {
		t.Fatalf("LinkCount=%d want 0", got)
	}
	if got := broken.ReadBlock(make([]byte, SectorSize), 0, 1); got != DriverOpError {
		t.Fatalf("ReadBlock=%d want DriverOpError", got)
	}
	if r.Err() == nil {
		t.Fatalf("Err()=nil after failed read")
	}

	nolinks := root.Fopen("/nolinks")
	if nolinks == nil {
		t.Fatalf("Fopen(nolinks)=nil")
	}
	defer nolinks.Free()
	if got := nolinks.LinkCount(); got != 0 {
		t.Fatalf("LinkCount=%d want 0", got)
	}
	if got := nolinks.FileLength(); got != 1 {
		t.Fatalf("FileLength=%d want 1", got)
	}
}

func TestDirent_FopenNested(t *testing.T) {
	r := openImage(t,
		udftest.Dir("BDMV",
			udftest.Dir("PLAYLIST", udftest.File("00000.mpls", []byte("MPLS0200"))),
		),
	)
	root := r.Root()
	defer root.Free()

	d := root.Fopen("BDMV/PLAYLIST/00000.mpls")
	if d == nil {
		t.Fatalf("Fopen nested=nil")
	}
	if d.IsDir() {
		t.Fatalf("IsDir=true for file")
	}
	d.Free()

	if d := root.Fopen("BDMV/missing/00000.mpls"); d != nil {
		t.Fatalf("Fopen missing=%q want nil", d.Filename())
	}
	if d := root.Fopen("bdmv"); d != nil {
		t.Fatalf("case-sensitive lookup matched %q", d.Filename())
	}
	if n := r.OpenDirents(); n != 1 {
		t.Fatalf("OpenDirents=%d want 1 (root)", n)
	}
}

func TestDirent_FopenTrailingSlashNeedsDirectory(t *testing.T) {
	r := openImage(t,
		udftest.File("one", []byte("1")),
		udftest.Dir("BDMV", udftest.File("index.bdmv", nil)),
	)
	root := r.Root()
	defer root.Free()

	if d := root.Fopen("one/"); d != nil {
		t.Fatalf("Fopen(one/)=%q want nil for a regular file", d.Filename())
	}
	if d := root.Fopen("BDMV/index.bdmv/"); d != nil {
		t.Fatalf("Fopen(BDMV/index.bdmv/)=%q want nil", d.Filename())
	}
	for _, p := range []string{"one", "BDMV/", "BDMV", "/"} {
		d := root.Fopen(p)
		if d == nil {
			t.Fatalf("Fopen(%q)=nil", p)
		}
		d.Free()
	}
	if n := r.OpenDirents(); n != 1 {
		t.Fatalf("OpenDirents=%d want 1 (root)", n)
	}
}

func TestDirent_AddrIncludesPartition(t *testing.T) {
	r := openImage(t, udftest.Dir("BDMV"))
	root := r.Root()
	defer root.Free()

	if got, want := root.Addr(), r.RootICB().ExtentLocation; got != want {
		t.Fatalf("root Addr=%+v want %+v", got, want)
	}
	d := root.Opendir()
	if d == nil {
		t.Fatalf("Opendir=nil")
	}
	defer d.Free()
	if got := d.Addr(); got.LogicalBlockNumber != d.Loc() || got.PartitionReferenceNumber != 0 {
		t.Fatalf("child Addr=%+v Loc=%d", got, d.Loc())
	}
}

func TestDirent_FopenFoldCase(t *testing.T) {
	path := udftest.Write(t, udftest.Dir("BDMV", udftest.File("index.bdmv", []byte("INDX"))))
	r, err := NewReader(path, WithFoldCase(true))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	root := r.Root()
	defer root.Free()
	d := root.Fopen("bdmv/INDEX.BDMV")
	if d == nil {
		t.Fatalf("folded lookup failed")
	}
	d.Free()
}

func TestDirent_ReadBlock(t *testing.T) {
	data := udftest.Pattern(5000)
	r := openImage(t,
		udftest.File("plain", data),
		&udftest.Node{Name: "frag", Data: data, Fragmented: true},
		&udftest.Node{Name: "small", Data: []byte("inline"), Embedded: true},
		&udftest.Node{Name: "efe", Data: data, Extended: true},
	)
	root := r.Root()
	defer root.Free()

	for _, name := range []string{"plain", "frag", "efe"} {
		d := root.Fopen(name)
		if d == nil {
			t.Fatalf("Fopen(%s)=nil", name)
		}

		buf := make([]byte, 3*SectorSize)
		if got := d.ReadBlock(buf, 0, 3); got != 5000 {
			t.Fatalf("%s: ReadBlock=%d want 5000", name, got)
		}
		if !bytes.Equal(buf[:5000], data) {
			t.Fatalf("%s: data mismatch", name)
		}

		one := make([]byte, SectorSize)
		if got := d.ReadBlock(one, 2, 1); got != 5000-2*SectorSize {
			t.Fatalf("%s: ReadBlock(2)=%d", name, got)
		}
		if !bytes.Equal(one[:5000-2*SectorSize], data[2*SectorSize:]) {
			t.Fatalf("%s: tail mismatch", name)
		}
		if got := d.ReadBlock(one, 3, 1); got != 0 {
			t.Fatalf("%s: ReadBlock past end=%d want 0", name, got)
		}
		if got := d.ReadBlock(one, 0, 2); got != DriverOpBadParameter {
			t.Fatalf("%s: ReadBlock bad size=%d want DriverOpBadParameter", name, got)
		}
		d.Free()
	}

	small := root.Fopen("small")
	defer small.Free()
	buf := make([]byte, SectorSize)
	if got := small.ReadBlock(buf, 0, 1); got != 6 {
		t.Fatalf("embedded ReadBlock=%d want 6", got)
	}
	if string(buf[:6]) != "inline" {
		t.Fatalf("embedded data=%q", buf[:6])
	}
}

func TestDirent_PosixMode(t *testing.T) {
	r := openImage(t,
		udftest.File("f", nil),
		udftest.Dir("d"),
		&udftest.Node{Name: "x", Perms: PermOwnerRead | PermOwnerExec},
	)
	root := r.Root()
	defer root.Free()

	tests := []struct {
		name string
		want uint32
	}{
		{"f", ModeRegular | 0o644},
		{"d", ModeDirectory | 0o755},
		{"x", ModeRegular | 0o500},
	}
	for _, tt := range tests {
		d := root.Fopen(tt.name)
		if d == nil {
			t.Fatalf("Fopen(%s)=nil", tt.name)
		}
		if got := d.PosixMode(); got != tt.want {
			t.Fatalf("%s: PosixMode=%o want %o", tt.name, got, tt.want)
		}
		d.Free()
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
