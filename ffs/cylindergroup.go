package ffs

import (
	"encoding/binary"
	"fmt"

	"github.com/dissect-go/go-ffs/backend"
	"github.com/dissect-go/go-ffs/util/bitmap"
)

const (
	cgMagic = 0x090255

	cgOffMagic     = 4
	cgOffIusedoff  = 92
)

// cylinderGroup is the decoded header of one cylinder group block, plus a
// read-only view over its inode allocation bitmap.
type cylinderGroup struct {
	num    int64
	offset int64 // byte offset of the cg block within the source

	iusedoff int32

	bitmap *bitmap.Bitmap
}

// readCylinderGroup reads and validates cylinder group num directly off
// src. The whole fs_bsize-sized block is read so the inode bitmap trailing
// the fixed header is available without a second I/O round trip.
func readCylinderGroup(src backend.Source, sb *superblock, num int64) (*cylinderGroup, error) {
	block := fsbtodb(sb, cgtod(sb, num))
	offset := block * devBsize

	buf := make([]byte, sb.bsize)
	if _, err := src.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("read cylinder group %d at %d: %w", num, offset, err)
	}

	le := binary.LittleEndian
	magic := le.Uint32(buf[cgOffMagic : cgOffMagic+4])
	if magic != cgMagic {
		return nil, fmt.Errorf("cylinder group %d: %w", num, ErrCylinderGroupCorrupt)
	}

	iusedoff := int32(le.Uint32(buf[cgOffIusedoff : cgOffIusedoff+4]))

	return &cylinderGroup{
		num:      num,
		offset:   offset,
		iusedoff: iusedoff,
		bitmap:   bitmap.FromBytes(buf[iusedoff:]),
	}, nil
}

// inodeAllocated reports whether inum's bit is set in this group's used
// inode bitmap.
func (cg *cylinderGroup) inodeAllocated(sb *superblock, inum int64) (bool, error) {
	relInum := inum % int64(sb.ipg)
	return cg.bitmap.IsSet(int(relInum))
}
