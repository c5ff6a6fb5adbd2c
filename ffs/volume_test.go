package ffs

import (
	"encoding/binary"
	"io"
	"testing"

	"github.com/dissect-go/go-ffs/testhelper"
)

// fixtureImage builds a tiny, hand-laid-out single-cylinder-group UFS2
// volume in memory:
//
//	/            (root, inum 2)
//	/hello.txt   (inum 3, "hello world")
//	/subdir/     (inum 4, empty)
//	/link        (inum 5, symlink -> hello.txt)
//	/sparse.bin  (inum 6, 6000 bytes, first 4096 a hole)
//	inum 7       (directory not linked from root: one entry followed by a
//	              zero-reclen record)
type fixtureImage struct {
	buf []byte
	sb  *superblock
}

func newFixtureSuperblock() *superblock {
	return &superblock{
		magic:         fsUFS2Magic,
		cblkno:        8,
		iblkno:        16,
		dblkno:        24,
		ncg:           1,
		bsize:         4096,
		fsize:         1024,
		frag:          4,
		fragshift:     2,
		fsbtodb:       1,
		nindir:        128,
		inopb:         16,
		ipg:           32,
		fpg:           2000,
		maxsymlinklen: 120,
	}
}

const fixtureInodeSize = 256 // bsize/inopb == 4096/16

func buildFixture(t *testing.T) *fixtureImage {
	t.Helper()
	sb := newFixtureSuperblock()

	// Big enough to hold every region the fixture touches.
	image := make([]byte, 64*1024)

	writeCG(image, sb)
	writeBitmap(image, sb, 2, 3, 4, 5, 6, 7)

	writeDinode(image, sb, 2, ifDir|0o755, 92, [ndaddr]int64{24}, nil)
	writeDinode(image, sb, 3, ifReg|0o644, 11, [ndaddr]int64{28}, nil)
	writeDinodeExtra(image, sb, 3, 1000, 1000, 1, 0x10, 2)
	writeDinode(image, sb, 4, ifDir|0o755, 24, [ndaddr]int64{32}, nil)
	writeSymlinkDinode(image, sb, 5, "hello.txt")
	writeDinode(image, sb, 6, ifReg|0o644, 6000, [ndaddr]int64{0, 36}, nil)
	writeDinode(image, sb, 7, ifDir|0o755, 28, [ndaddr]int64{40}, nil)

	writeDataBlock(image, sb, 24, buildDirBlock(
		dirEnt{2, dtDir, "."},
		dirEnt{2, dtDir, ".."},
		dirEnt{3, dtReg, "hello.txt"},
		dirEnt{4, dtDir, "subdir"},
		dirEnt{5, dtLnk, "link"},
		dirEnt{6, dtReg, "sparse.bin"},
	))
	writeDataBlock(image, sb, 28, []byte("hello world"))
	writeDataBlock(image, sb, 32, buildDirBlock(
		dirEnt{4, dtDir, "."},
		dirEnt{2, dtDir, ".."},
	))

	sparseBlock := make([]byte, 1904)
	for i := range sparseBlock {
		sparseBlock[i] = 0xAB
	}
	writeDataBlock(image, sb, 36, sparseBlock)

	baddirBlock := buildDirBlock(dirEnt{3, dtReg, "ok"})
	baddirBlock = append(baddirBlock, make([]byte, 16)...) // zero-reclen tail
	writeDataBlock(image, sb, 40, baddirBlock)

	return &fixtureImage{buf: image, sb: sb}
}

func (f *fixtureImage) volume() *Volume {
	v := &Volume{
		src:        testhelper.NewMemSource(f.buf),
		sb:         f.sb,
		cgCache:    newLRUCache[int64, *cylinderGroup](16),
		inodeCache: newLRUCache[int64, *dinode](16),
		log:        nopLogEntry(),
	}
	v.root = v.inode(rootIno, "/", ifDir)
	return v
}

func byteOffsetForFsb(sb *superblock, fsb int64) int64 {
	return fsbtodb(sb, fsb) * devBsize
}

func writeCG(image []byte, sb *superblock) {
	off := byteOffsetForFsb(sb, int64(sb.cblkno))
	le := binary.LittleEndian
	le.PutUint32(image[off+cgOffMagic:], cgMagic)
	le.PutUint32(image[off+cgOffIusedoff:], 200)
}

func writeBitmap(image []byte, sb *superblock, inums ...int64) {
	off := byteOffsetForFsb(sb, int64(sb.cblkno)) + 200
	for _, inum := range inums {
		rel := inum % int64(sb.ipg)
		image[off+rel/8] |= 1 << uint(rel%8)
	}
}

func inodeByteOffset(sb *superblock, inum int64) int64 {
	fsba := inoToFsba(sb, inum)
	fsbo := inoToFsbo(sb, inum)
	return fsbtodb(sb, fsba)*devBsize + fsbo*sb.inodeSize()
}

func writeDinode(image []byte, sb *superblock, inum int64, mode uint16, size uint64, db [ndaddr]int64, ib *[niaddr]int64) {
	off := inodeByteOffset(sb, inum)
	rec := image[off : off+fixtureInodeSize]
	le := binary.LittleEndian

	le.PutUint16(rec[0:2], mode)
	le.PutUint16(rec[2:4], 1)
	le.PutUint64(rec[16:24], size)
	for i, v := range db {
		o := 112 + i*8
		le.PutUint64(rec[o:o+8], uint64(v))
	}
	if ib != nil {
		for i, v := range ib {
			o := 208 + i*8
			le.PutUint64(rec[o:o+8], uint64(v))
		}
	}
}

// writeDinodeExtra pokes the UFS2 fields writeDinode leaves zeroed, for
// tests that need to observe Uid/Gid/Nlink/Flags/Nblocks.
func writeDinodeExtra(image []byte, sb *superblock, inum int64, uid, gid uint32, nlink int16, flags uint32, blocks int64) {
	off := inodeByteOffset(sb, inum)
	rec := image[off : off+fixtureInodeSize]
	le := binary.LittleEndian

	le.PutUint16(rec[2:4], uint16(nlink))
	le.PutUint32(rec[4:8], uid)
	le.PutUint32(rec[8:12], gid)
	le.PutUint64(rec[24:32], uint64(blocks))
	le.PutUint32(rec[88:92], flags)
}

func writeSymlinkDinode(image []byte, sb *superblock, inum int64, target string) {
	off := inodeByteOffset(sb, inum)
	rec := image[off : off+fixtureInodeSize]
	le := binary.LittleEndian

	le.PutUint16(rec[0:2], ifLnk|0o777)
	le.PutUint16(rec[2:4], 1)
	le.PutUint64(rec[16:24], uint64(len(target)))
	copy(rec[112:], target)
}

func writeDataBlock(image []byte, sb *superblock, fsb int64, data []byte) {
	off := byteOffsetForFsb(sb, fsb)
	copy(image[off:], data)
}

type dirEnt struct {
	ino  uint32
	typ  uint8
	name string
}

func align4(n int) int { return (n + 3) &^ 3 }

func buildDirBlock(entries ...dirEnt) []byte {
	var out []byte
	le := binary.LittleEndian
	for _, e := range entries {
		reclen := align4(8 + len(e.name))
		rec := make([]byte, reclen)
		le.PutUint32(rec[0:4], e.ino)
		le.PutUint16(rec[4:6], uint16(reclen))
		rec[6] = e.typ
		rec[7] = uint8(len(e.name))
		copy(rec[8:], e.name)
		out = append(out, rec...)
	}
	return out
}

func TestVolumeGetAndIterdir(t *testing.T) {
	v := buildFixture(t).volume()

	entries, err := v.Root().Iterdir()
	if err != nil {
		t.Fatalf("Iterdir: %v", err)
	}
	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name()] = true
	}
	for _, want := range []string{".", "..", "hello.txt", "subdir", "link", "sparse.bin"} {
		if !names[want] {
			t.Errorf("root directory missing entry %q", want)
		}
	}

	n, err := v.Get("/hello.txt")
	if err != nil {
		t.Fatalf("Get(/hello.txt): %v", err)
	}
	isFile, err := n.IsFile()
	if err != nil || !isFile {
		t.Errorf("IsFile() = %v, %v; want true, nil", isFile, err)
	}

	r, err := n.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	buf := make([]byte, r.Size())
	if _, err := r.ReadAt(buf, 0); err != nil && err != io.EOF {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(buf) != "hello world" {
		t.Errorf("content = %q, want %q", buf, "hello world")
	}
}

func TestInodeAccessorsAndListdir(t *testing.T) {
	v := buildFixture(t).volume()

	if got := v.Version(); got != 2 {
		t.Errorf("Version() = %d, want 2", got)
	}
	if got := v.BlockSize(); got != 4096 {
		t.Errorf("BlockSize() = %d, want 4096", got)
	}

	n, err := v.Get("/hello.txt")
	if err != nil {
		t.Fatalf("Get(/hello.txt): %v", err)
	}
	if uid, err := n.Uid(); err != nil || uid != 1000 {
		t.Errorf("Uid() = %d, %v; want 1000, nil", uid, err)
	}
	if gid, err := n.Gid(); err != nil || gid != 1000 {
		t.Errorf("Gid() = %d, %v; want 1000, nil", gid, err)
	}
	if nlink, err := n.Nlink(); err != nil || nlink != 1 {
		t.Errorf("Nlink() = %d, %v; want 1, nil", nlink, err)
	}
	if flags, err := n.Flags(); err != nil || flags != 0x10 {
		t.Errorf("Flags() = %#x, %v; want 0x10, nil", flags, err)
	}
	if blocks, err := n.Nblocks(); err != nil || blocks != 2 {
		t.Errorf("Nblocks() = %d, %v; want 2, nil", blocks, err)
	}

	listing, err := v.Root().Listdir()
	if err != nil {
		t.Fatalf("Listdir: %v", err)
	}
	for _, want := range []string{".", "..", "hello.txt", "subdir", "link", "sparse.bin"} {
		if _, ok := listing[want]; !ok {
			t.Errorf("Listdir() missing entry %q", want)
		}
	}
	if listing["."].Inum != v.Root().Inum {
		t.Errorf("Listdir()[\".\"] inum = %d, want %d", listing["."].Inum, v.Root().Inum)
	}
}

func TestVolumeGetNestedAndNotFound(t *testing.T) {
	v := buildFixture(t).volume()

	n, err := v.Get("/subdir")
	if err != nil {
		t.Fatalf("Get(/subdir): %v", err)
	}
	isDir, err := n.IsDir()
	if err != nil || !isDir {
		t.Errorf("IsDir() = %v, %v; want true, nil", isDir, err)
	}

	if _, err := v.Get("/nope"); err == nil {
		t.Errorf("Get(/nope) should have failed")
	}
}

func TestSymlinkResolution(t *testing.T) {
	v := buildFixture(t).volume()

	link, err := v.Get("/link")
	if err != nil {
		t.Fatalf("Get(/link): %v", err)
	}
	target, err := link.Link()
	if err != nil {
		t.Fatalf("Link(): %v", err)
	}
	if target != "hello.txt" {
		t.Errorf("Link() = %q, want hello.txt", target)
	}

	resolved, err := v.ResolveSymlink(link, "/")
	if err != nil {
		t.Fatalf("ResolveSymlink: %v", err)
	}
	isFile, _ := resolved.IsFile()
	if !isFile {
		t.Errorf("resolved target is not a regular file")
	}
}

func TestSparseFileReadsZeroFillHole(t *testing.T) {
	v := buildFixture(t).volume()

	n, err := v.Get("/sparse.bin")
	if err != nil {
		t.Fatalf("Get(/sparse.bin): %v", err)
	}

	r, err := n.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	hole := make([]byte, 4096)
	if _, err := r.ReadAt(hole, 0); err != nil && err != io.EOF {
		t.Fatalf("ReadAt(hole): %v", err)
	}
	for i, b := range hole {
		if b != 0 {
			t.Fatalf("hole byte %d = %#x, want 0", i, b)
		}
	}

	tail := make([]byte, r.Size()-4096)
	if _, err := r.ReadAt(tail, 4096); err != nil && err != io.EOF {
		t.Fatalf("ReadAt(tail): %v", err)
	}
	for i, b := range tail {
		if b != 0xAB {
			t.Fatalf("tail byte %d = %#x, want 0xab", i, b)
		}
	}
}

func TestIterdirStopsOnZeroReclen(t *testing.T) {
	v := buildFixture(t).volume()

	bad := v.inode(7, "baddir", ifDir)
	entries, err := bad.Iterdir()
	if err != nil {
		t.Fatalf("Iterdir(baddir): %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "ok" {
		t.Fatalf("entries = %v, want exactly [ok]", entries)
	}
}

func TestIterInodesVisitsAllocatedInodes(t *testing.T) {
	v := buildFixture(t).volume()

	seen := map[int64]bool{}
	it := v.IterInodes()
	for {
		n, ok, err := it.Next()
		if err != nil {
			t.Fatalf("IterInodes.Next: %v", err)
		}
		if !ok {
			break
		}
		seen[n.Inum] = true
	}

	for _, want := range []int64{2, 3, 4, 5, 6, 7} {
		if !seen[want] {
			t.Errorf("IterInodes did not visit inode %d", want)
		}
	}
}
