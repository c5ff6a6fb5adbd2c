// Package backend provides the seekable byte-source abstraction that the
// ffs decoding engine reads through. It knows nothing about any on-disk
// filesystem format; it only knows how to present a raw disk image, a
// block device, or a byte-range within either, as a random-access source.
package backend

import (
	"errors"
	"io"
	"io/fs"
	"os"
)

// ErrNotSuitable is returned when an operation is requested that the
// underlying concrete source cannot support (e.g. Sys() on something
// that isn't backed by an *os.File).
var ErrNotSuitable = errors.New("backing source is not suitable for this operation")

// Source is a read-only, randomly-addressable byte source: a disk image
// file, a block device, or a bounded view over either.
type Source interface {
	fs.File
	io.ReaderAt
	io.Seeker
	io.Closer
}

// Sized optionally reports the number of bytes a Source covers, when that
// can be determined without relying on Stat (e.g. a device where Stat's
// reported size is unreliable). Implementations that cannot determine
// this more precisely than Stat need not implement it.
type Sized interface {
	Size() (int64, error)
}

// Sys exposes the OS-level handle backing a Source, for callers that need
// to issue ioctls (e.g. probing a block device's true size). Not every
// Source is backed by a real *os.File.
type Sys interface {
	Sys() (*os.File, error)
}
