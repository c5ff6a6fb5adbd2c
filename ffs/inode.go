package ffs

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// File type bits, taken from the IFMT portion of di_mode (identical
// encoding to POSIX stat.S_IFMT and friends).
const (
	ifmt   = 0xF000
	ifDir  = 0x4000
	ifReg  = 0x8000
	ifLnk  = 0xA000
)

// direntType values, shifted into IFMT form by (d_type << 12) to match
// ifDir/ifReg/ifLnk above.
const (
	dtUnknown = 0
	dtDir     = 4
	dtReg     = 8
	dtLnk     = 10
)

// dinode is the decoded subset of a UFS1 or UFS2 on-disk inode record that
// the rest of this package needs.
type dinode struct {
	mode   uint16
	nlink  int16
	uid    uint32
	gid    uint32
	size   uint64
	blocks int64
	flags  uint32

	atimeSec, atimeNsec   int64
	mtimeSec, mtimeNsec   int64
	ctimeSec, ctimeNsec   int64
	birthSec, birthNsec   int64

	db [ndaddr]int64
	ib [niaddr]int64
}

func dinodeFromBytes(b []byte, version int) (*dinode, error) {
	le := binary.LittleEndian
	d := &dinode{}

	if version == 1 {
		if len(b) < 128 {
			return nil, fmt.Errorf("ufs1 dinode record too short: %d bytes", len(b))
		}
		d.mode = le.Uint16(b[0:2])
		d.nlink = int16(le.Uint16(b[2:4]))
		d.size = le.Uint64(b[8:16])
		d.atimeSec = int64(int32(le.Uint32(b[16:20])))
		d.atimeNsec = int64(int32(le.Uint32(b[20:24])))
		d.mtimeSec = int64(int32(le.Uint32(b[24:28])))
		d.mtimeNsec = int64(int32(le.Uint32(b[28:32])))
		d.ctimeSec = int64(int32(le.Uint32(b[32:36])))
		d.ctimeNsec = int64(int32(le.Uint32(b[36:40])))
		for i := 0; i < ndaddr; i++ {
			off := 40 + i*4
			d.db[i] = int64(int32(le.Uint32(b[off : off+4])))
		}
		for i := 0; i < niaddr; i++ {
			off := 88 + i*4
			d.ib[i] = int64(int32(le.Uint32(b[off : off+4])))
		}
		d.flags = le.Uint32(b[100:104])
		d.blocks = int64(le.Uint32(b[104:108]))
		d.uid = le.Uint32(b[112:116])
		d.gid = le.Uint32(b[116:120])
		return d, nil
	}

	if len(b) < 256 {
		return nil, fmt.Errorf("ufs2 dinode record too short: %d bytes", len(b))
	}
	d.mode = le.Uint16(b[0:2])
	d.nlink = int16(le.Uint16(b[2:4]))
	d.uid = le.Uint32(b[4:8])
	d.gid = le.Uint32(b[8:12])
	d.size = le.Uint64(b[16:24])
	d.blocks = int64(le.Uint64(b[24:32]))
	d.atimeSec = int64(le.Uint64(b[32:40]))
	d.mtimeSec = int64(le.Uint64(b[40:48]))
	d.ctimeSec = int64(le.Uint64(b[48:56]))
	d.birthSec = int64(le.Uint64(b[56:64]))
	d.mtimeNsec = int64(int32(le.Uint32(b[64:68])))
	d.atimeNsec = int64(int32(le.Uint32(b[68:72])))
	d.ctimeNsec = int64(int32(le.Uint32(b[72:76])))
	d.birthNsec = int64(int32(le.Uint32(b[76:80])))
	d.flags = le.Uint32(b[88:92])
	for i := 0; i < ndaddr; i++ {
		off := 112 + i*8
		d.db[i] = int64(le.Uint64(b[off : off+8]))
	}
	for i := 0; i < niaddr; i++ {
		off := 208 + i*8
		d.ib[i] = int64(le.Uint64(b[off : off+8]))
	}
	return d, nil
}

// Inode is a handle to one file, directory, or symlink within a Volume. It
// is cheap to create (see Volume.Get/IterInodes) and memoizes the on-disk
// record it wraps the first time any accessor is called.
type Inode struct {
	vol  *Volume
	Inum int64

	// name and typeHint come from the directory entry that produced this
	// Inode, when known; typeHint is 0 when the Inode was constructed from
	// a bare inode number (Volume.GetInode) or Volume.IterInodes.
	name     string
	typeHint uint16

	once sync.Once
	node *dinode
	err  error

	runlistOnce sync.Once
	runlist     []run
}

// Name returns the directory-entry name this Inode was reached through,
// "/" for the root, or "" for an Inode obtained directly by number.
func (n *Inode) Name() string { return n.name }

func (n *Inode) decode() (*dinode, error) {
	n.once.Do(func() {
		n.node, n.err = n.vol.readInode(n.Inum)
	})
	return n.node, n.err
}

// Size returns the file's byte length as recorded in its inode.
func (n *Inode) Size() (int64, error) {
	d, err := n.decode()
	if err != nil {
		return 0, err
	}
	return int64(d.size), nil
}

// Mode returns the raw on-disk permission and type bits (di_mode).
func (n *Inode) Mode() (uint16, error) {
	d, err := n.decode()
	if err != nil {
		return 0, err
	}
	return d.mode, nil
}

// Nblocks returns the number of 512-byte sectors actually allocated to the
// file (di_blocks), which can be less than Size()/512 for sparse files or
// more for files with indirect blocks.
func (n *Inode) Nblocks() (int64, error) {
	d, err := n.decode()
	if err != nil {
		return 0, err
	}
	return d.blocks, nil
}

// Uid returns the inode's owning user ID (di_uid).
func (n *Inode) Uid() (uint32, error) {
	d, err := n.decode()
	if err != nil {
		return 0, err
	}
	return d.uid, nil
}

// Gid returns the inode's owning group ID (di_gid).
func (n *Inode) Gid() (uint32, error) {
	d, err := n.decode()
	if err != nil {
		return 0, err
	}
	return d.gid, nil
}

// Nlink returns the inode's hard-link count (di_nlink).
func (n *Inode) Nlink() (int16, error) {
	d, err := n.decode()
	if err != nil {
		return 0, err
	}
	return d.nlink, nil
}

// Flags returns the inode's chflags status bits (di_flags).
func (n *Inode) Flags() (uint32, error) {
	d, err := n.decode()
	if err != nil {
		return 0, err
	}
	return d.flags, nil
}

// Type returns the IFMT file-type bits, preferring the hint carried by the
// directory entry that produced this Inode (avoiding an inode read for
// plain is_dir/is_file/is_symlink checks during directory walks) and
// falling back to decoding the inode's di_mode otherwise.
func (n *Inode) Type() (uint16, error) {
	if n.typeHint != 0 {
		return n.typeHint, nil
	}
	d, err := n.decode()
	if err != nil {
		return 0, err
	}
	return uint16(d.mode) & ifmt, nil
}

// IsDir reports whether this Inode is a directory.
func (n *Inode) IsDir() (bool, error) {
	t, err := n.Type()
	return t == ifDir, err
}

// IsFile reports whether this Inode is a regular file.
func (n *Inode) IsFile() (bool, error) {
	t, err := n.Type()
	return t == ifReg, err
}

// IsSymlink reports whether this Inode is a symbolic link.
func (n *Inode) IsSymlink() (bool, error) {
	t, err := n.Type()
	return t == ifLnk, err
}

// AccessTimeNs, ModTimeNs, ChangeTimeNs and BirthTimeNs return the inode's
// timestamps as nanoseconds since the Unix epoch. BirthTimeNs is 0 for
// UFS1, which has no creation-time field.
func (n *Inode) AccessTimeNs() (int64, error) { return n.timeNs(func(d *dinode) (int64, int64) { return d.atimeSec, d.atimeNsec }) }
func (n *Inode) ModTimeNs() (int64, error)    { return n.timeNs(func(d *dinode) (int64, int64) { return d.mtimeSec, d.mtimeNsec }) }
func (n *Inode) ChangeTimeNs() (int64, error) { return n.timeNs(func(d *dinode) (int64, int64) { return d.ctimeSec, d.ctimeNsec }) }
func (n *Inode) BirthTimeNs() (int64, error)  { return n.timeNs(func(d *dinode) (int64, int64) { return d.birthSec, d.birthNsec }) }

func (n *Inode) timeNs(pick func(*dinode) (int64, int64)) (int64, error) {
	d, err := n.decode()
	if err != nil {
		return 0, err
	}
	sec, nsec := pick(d)
	return sec*1_000_000_000 + nsec, nil
}

// Link returns a symlink's target path. It returns ErrNotASymlink for
// anything else.
func (n *Inode) Link() (string, error) {
	isLnk, err := n.IsSymlink()
	if err != nil {
		return "", err
	}
	if !isLnk {
		return "", fmt.Errorf("inode %d: %w", n.Inum, ErrNotASymlink)
	}
	r, err := n.Open()
	if err != nil {
		return "", err
	}
	defer r.Close()
	buf := make([]byte, r.Size())
	if _, err := r.ReadAt(buf, 0); err != nil {
		return "", fmt.Errorf("read symlink target: %w", err)
	}
	return string(buf), nil
}
