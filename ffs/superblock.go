package ffs

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/dissect-go/go-ffs/backend"
)

// Superblock magic numbers and search offsets, straight out of FreeBSD's
// sys/ufs/ffs/fs.h. UFS1 and UFS2 superblocks are both SBLOCKSIZE bytes and
// share an identical leading field layout through fs_magic.
const (
	fsUFS1Magic uint32 = 0x011954
	fsUFS2Magic uint32 = 0x19540119

	sblockFloppy = 0
	sblockUFS1   = 8192
	sblockUFS2   = 65536
	sblockPiggy  = 262144
	sblockSize   = 8192

	minBsize = 4096
	maxBsize = 65536

	// superblockRecordSize is the fixed byte span of struct fs through
	// fs_magic, its final field.
	superblockRecordSize = 1376

	offMagic           = 1372
	offSblkno          = 8
	offCblkno          = 12
	offIblkno          = 16
	offDblkno          = 20
	offOldCgoffset     = 24
	offOldCgmask       = 28
	offNcg             = 44
	offBsize           = 48
	offFsize           = 52
	offFrag            = 56
	offFragshift       = 96
	offFsbtodb         = 100
	offSbsize          = 104
	offNindir          = 116
	offInopb           = 120
	offCssize          = 156
	offIpg             = 184
	offFpg             = 188
	offFsmnt           = 212
	fsmntLen           = 468
	offVolname         = 680
	volnameLen         = 32
	offMaxsymlinklen   = 1320
	offMaxfilesize     = 1328

	// rootIno is the fixed inode number of the filesystem root directory.
	rootIno = 2

	// ndaddr and niaddr are the number of direct and indirect block
	// pointers carried in every dinode, independent of UFS1 vs UFS2.
	ndaddr = 12
	niaddr = 3
)

// sblockSearch lists the byte offsets a real newfs/kernel may have placed
// the superblock at, in probe order.
var sblockSearch = []int64{sblockUFS2, sblockUFS1, sblockFloppy, sblockPiggy}

// superblock holds the decoded fields of an FFS superblock needed to
// navigate the rest of the filesystem. Fields the spec never consults
// (rotational-layout hints, checksums, snapshot bookkeeping) are not kept.
type superblock struct {
	magic uint32

	sblkno int32
	cblkno int32
	iblkno int32
	dblkno int32

	oldCgoffset int32
	oldCgmask   int32

	ncg       uint32
	bsize     int32
	fsize     int32
	frag      int32
	fragshift int32
	fsbtodb   int32
	sbsize    int32

	nindir int32
	inopb  uint32
	cssize int32

	ipg uint32
	fpg int32

	maxsymlinklen int32
	maxfilesize   uint64

	fsmnt   string
	volname string
}

// version reports 1 for a UFS1 superblock and 2 for UFS2.
func (sb *superblock) version() int {
	if sb.magic == fsUFS1Magic {
		return 1
	}
	return 2
}

// inodeSize returns the on-disk size of a single dinode record.
func (sb *superblock) inodeSize() int64 {
	return int64(sb.bsize) / int64(sb.inopb)
}

// readSuperblock probes each candidate offset in sblockSearch and returns
// the first plausible superblock found.
func readSuperblock(src backend.Source) (*superblock, error) {
	for _, off := range sblockSearch {
		sb, err := decodeSuperblockAt(src, off)
		if err != nil {
			continue
		}
		return sb, nil
	}
	return nil, ErrSuperblockNotFound
}

func decodeSuperblockAt(src backend.Source, offset int64) (*superblock, error) {
	buf := make([]byte, superblockRecordSize)
	if _, err := src.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("read superblock at %d: %w", offset, err)
	}

	sb, err := superblockFromBytes(buf)
	if err != nil {
		return nil, err
	}
	return sb, nil
}

// superblockFromBytes decodes a raw SBLOCKSIZE-capable record into a
// superblock, validating the same fields FreeBSD's fsck checks before
// trusting a candidate location: magic, cylinder-group count, block size
// bounds, and recorded superblock size.
func superblockFromBytes(b []byte) (*superblock, error) {
	if len(b) < superblockRecordSize {
		return nil, fmt.Errorf("superblock record too short: %d bytes", len(b))
	}

	le := binary.LittleEndian
	magic := le.Uint32(b[offMagic : offMagic+4])
	if magic != fsUFS1Magic && magic != fsUFS2Magic {
		return nil, ErrSuperblockNotFound
	}

	sb := &superblock{
		magic:         magic,
		sblkno:        int32(le.Uint32(b[offSblkno : offSblkno+4])),
		cblkno:        int32(le.Uint32(b[offCblkno : offCblkno+4])),
		iblkno:        int32(le.Uint32(b[offIblkno : offIblkno+4])),
		dblkno:        int32(le.Uint32(b[offDblkno : offDblkno+4])),
		oldCgoffset:   int32(le.Uint32(b[offOldCgoffset : offOldCgoffset+4])),
		oldCgmask:     int32(le.Uint32(b[offOldCgmask : offOldCgmask+4])),
		ncg:           le.Uint32(b[offNcg : offNcg+4]),
		bsize:         int32(le.Uint32(b[offBsize : offBsize+4])),
		fsize:         int32(le.Uint32(b[offFsize : offFsize+4])),
		frag:          int32(le.Uint32(b[offFrag : offFrag+4])),
		fragshift:     int32(le.Uint32(b[offFragshift : offFragshift+4])),
		fsbtodb:       int32(le.Uint32(b[offFsbtodb : offFsbtodb+4])),
		sbsize:        int32(le.Uint32(b[offSbsize : offSbsize+4])),
		nindir:        int32(le.Uint32(b[offNindir : offNindir+4])),
		inopb:         le.Uint32(b[offInopb : offInopb+4]),
		cssize:        int32(le.Uint32(b[offCssize : offCssize+4])),
		ipg:           le.Uint32(b[offIpg : offIpg+4]),
		fpg:           int32(le.Uint32(b[offFpg : offFpg+4])),
		maxsymlinklen: int32(le.Uint32(b[offMaxsymlinklen : offMaxsymlinklen+4])),
		maxfilesize:   le.Uint64(b[offMaxfilesize : offMaxfilesize+8]),
		fsmnt:         nullTerminated(b[offFsmnt : offFsmnt+fsmntLen]),
		volname:       nullTerminated(b[offVolname : offVolname+volnameLen]),
	}

	if sb.ncg < 1 || sb.bsize < minBsize || sb.bsize > maxBsize || sb.sbsize > sblockSize {
		return nil, ErrSuperblockNotFound
	}
	if sb.inopb == 0 || sb.frag == 0 {
		return nil, ErrSuperblockNotFound
	}

	return sb, nil
}

func nullTerminated(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
