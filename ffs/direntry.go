package ffs

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

const direntHeaderSize = 8

// direntHeader is the fixed portion of a directory entry (struct direct);
// the variable-length name follows immediately after.
type direntHeader struct {
	ino    uint32
	reclen uint16
	typ    uint8
	namlen uint8
}

func direntHeaderFromBytes(b []byte) direntHeader {
	le := binary.LittleEndian
	return direntHeader{
		ino:    le.Uint32(b[0:4]),
		reclen: le.Uint16(b[4:6]),
		typ:    b[6],
		namlen: b[7],
	}
}

// Iterdir returns the directory entries of this Inode in on-disk order,
// including the "." and ".." pseudo-entries: both are real on-disk direct
// records and are yielded first, exactly as they appear in the directory
// block. It returns ErrNotADirectory if the Inode is not a directory.
func (n *Inode) Iterdir() ([]*Inode, error) {
	isDir, err := n.IsDir()
	if err != nil {
		return nil, err
	}
	if !isDir {
		return nil, fmt.Errorf("inode %d: %w", n.Inum, ErrNotADirectory)
	}

	size, err := n.Size()
	if err != nil {
		return nil, err
	}

	r, err := n.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var entries []*Inode
	hdr := make([]byte, direntHeaderSize)

	var offset int64
	for offset < size-direntHeaderSize {
		if _, err := r.ReadAt(hdr, offset); err != nil && err != io.EOF {
			return nil, fmt.Errorf("read directory entry at %d: %w", offset, err)
		}
		de := direntHeaderFromBytes(hdr)

		if de.reclen == 0 {
			n.vol.log.WithFields(logrus.Fields{
				"inode":  n.Inum,
				"offset": offset,
			}).Error("directory entry has zero record length, stopping scan to avoid an infinite loop")
			break
		}

		if de.ino != 0 && de.namlen > 0 {
			name := make([]byte, de.namlen)
			if _, err := r.ReadAt(name, offset+direntHeaderSize); err != nil && err != io.EOF {
				return nil, fmt.Errorf("read directory entry name at %d: %w", offset, err)
			}
			entries = append(entries, n.vol.inode(int64(de.ino), string(name), uint16(de.typ)<<12))
		}

		offset += int64(de.reclen)
	}

	return entries, nil
}

// Listdir returns this Inode's directory entries keyed by name, including
// "." and "..". It returns ErrNotADirectory if the Inode is not a
// directory.
func (n *Inode) Listdir() (map[string]*Inode, error) {
	entries, err := n.Iterdir()
	if err != nil {
		return nil, err
	}

	out := make(map[string]*Inode, len(entries))
	for _, e := range entries {
		out[e.Name()] = e
	}
	return out, nil
}
