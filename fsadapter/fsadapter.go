// Package fsadapter exposes a read-only *ffs.Volume as a standard io/fs.FS,
// so it can be walked with fs.WalkDir or copied out with os.CopyFS without
// any ffs-specific code in the caller.
package fsadapter

import (
	"io"
	"io/fs"
	"path"
	"time"

	"github.com/dissect-go/go-ffs/ffs"
)

type volumeFS struct {
	vol *ffs.Volume
}

// FS wraps vol as a read-only io/fs.FS.
func FS(vol *ffs.Volume) fs.FS {
	return &volumeFS{vol: vol}
}

func (v *volumeFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}

	node, err := v.vol.Get(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}

	isDir, err := node.IsDir()
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}

	info := &fileInfo{name: path.Base(name), node: node, isDir: isDir}

	if isDir {
		return &dirFile{info: info}, nil
	}

	r, err := node.Open()
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return &regularFile{info: info, r: r}, nil
}

func (v *volumeFS) ReadDir(name string) ([]fs.DirEntry, error) {
	node, err := v.vol.Get(name)
	if err != nil {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: err}
	}

	children, err := node.Iterdir()
	if err != nil {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: err}
	}

	entries := make([]fs.DirEntry, 0, len(children))
	for _, c := range children {
		// ffs.Iterdir yields "." and ".." as real on-disk records; io/fs's
		// ReadDir contract forbids them, so the adapter drops them here.
		if c.Name() == "." || c.Name() == ".." {
			continue
		}
		isDir, err := c.IsDir()
		if err != nil {
			return nil, &fs.PathError{Op: "readdir", Path: name, Err: err}
		}
		entries = append(entries, &fileInfo{name: c.Name(), node: c, isDir: isDir})
	}
	return entries, nil
}

// fileInfo implements both fs.FileInfo and fs.DirEntry over an *ffs.Inode.
type fileInfo struct {
	name  string
	node  *ffs.Inode
	isDir bool
}

func (fi *fileInfo) Name() string { return fi.name }

func (fi *fileInfo) Size() int64 {
	n, err := fi.node.Size()
	if err != nil {
		return 0
	}
	return n
}

func (fi *fileInfo) Mode() fs.FileMode {
	mode, err := fi.node.Mode()
	if err != nil {
		return 0
	}
	m := fs.FileMode(mode & 0o777)
	if fi.isDir {
		m |= fs.ModeDir
	}
	isLnk, _ := fi.node.IsSymlink()
	if isLnk {
		m |= fs.ModeSymlink
	}
	return m
}

func (fi *fileInfo) ModTime() time.Time {
	ns, err := fi.node.ModTimeNs()
	if err != nil {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

func (fi *fileInfo) IsDir() bool { return fi.isDir }
func (fi *fileInfo) Sys() any    { return fi.node }

func (fi *fileInfo) Type() fs.FileMode          { return fi.Mode().Type() }
func (fi *fileInfo) Info() (fs.FileInfo, error) { return fi, nil }

// regularFile adapts an ffs.Reader to fs.File.
type regularFile struct {
	info   *fileInfo
	r      ffs.Reader
	offset int64
}

func (f *regularFile) Stat() (fs.FileInfo, error) { return f.info, nil }

func (f *regularFile) Read(p []byte) (int, error) {
	n, err := f.r.ReadAt(p, f.offset)
	f.offset += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

func (f *regularFile) Close() error { return f.r.Close() }

// dirFile adapts a directory Inode to fs.File (Read is unsupported, as for
// os.File on a directory).
type dirFile struct {
	info *fileInfo
}

func (d *dirFile) Stat() (fs.FileInfo, error) { return d.info, nil }
func (d *dirFile) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.info.name, Err: fs.ErrInvalid}
}
func (d *dirFile) Close() error { return nil }
