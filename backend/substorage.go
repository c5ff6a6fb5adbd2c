package backend

import (
	"io"
	"io/fs"
)

// SubSource is a read-only view over a byte range of an underlying
// Source — e.g. the bytes of one partition within a larger disk image.
// It lets an ffs.Volume be opened directly against a partition without
// copying the partition out of the image first. Seek (from the end) and
// Size use the range's end; ReadAt and Read are not clamped to it, so a
// read that runs past offset+size returns the underlying bytes that follow
// the range.
type SubSource struct {
	underlying Source
	offset     int64
	size       int64
}

// Sub returns a Source over the [offset, offset+size) byte range of u,
// re-based so offset 0 in the returned Source is offset in u.
func Sub(u Source, offset, size int64) Source {
	return SubSource{
		underlying: u,
		offset:     offset,
		size:       size,
	}
}

func (s SubSource) Stat() (fs.FileInfo, error) {
	return s.underlying.Stat()
}

func (s SubSource) Read(b []byte) (int, error) {
	return s.underlying.Read(b)
}

func (s SubSource) Close() error {
	return s.underlying.Close()
}

func (s SubSource) ReadAt(p []byte, off int64) (n int, err error) {
	return s.underlying.ReadAt(p, s.offset+off)
}

func (s SubSource) Seek(offset int64, whence int) (int64, error) {
	var (
		pos int64
		err error
	)

	switch whence {
	case io.SeekStart:
		pos, err = s.underlying.Seek(offset+s.offset, io.SeekStart)
	case io.SeekCurrent:
		pos, err = s.underlying.Seek(offset, io.SeekCurrent)
	case io.SeekEnd:
		pos, err = s.underlying.Seek(s.offset+s.size+offset, io.SeekStart)
	default:
		return -1, ErrNotSuitable
	}

	if err != nil {
		return -1, err
	}

	return pos - s.offset, nil
}

// Size reports the bounded region's size directly, without relying on
// the underlying Source's Stat (which reports the whole image's size).
func (s SubSource) Size() (int64, error) {
	return s.size, nil
}
