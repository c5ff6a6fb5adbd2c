// Package file provides backend.Source implementations backed by a real
// file on disk: a raw disk image, or a block device such as /dev/sda.
package file

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/dissect-go/go-ffs/backend"
)

type rawSource struct {
	storage fs.File
}

// New creates a backend.Source from an already-open fs.File.
func New(f fs.File) backend.Source {
	return rawSource{storage: f}
}

// OpenFromPath opens a path to a raw disk image or block device
// (e.g. /tmp/foo.img or /dev/sda) read-only. The path must already exist.
func OpenFromPath(pathName string) (backend.Source, error) {
	if pathName == "" {
		return nil, errors.New("must pass a device or file name")
	}
	if _, err := os.Stat(pathName); os.IsNotExist(err) {
		return nil, fmt.Errorf("provided device/file %s does not exist", pathName)
	}

	f, err := os.OpenFile(pathName, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("could not open device %s: %w", pathName, err)
	}

	return rawSource{storage: f}, nil
}

// backend.Source interface guard
var _ backend.Source = (*rawSource)(nil)

// Sys exposes the underlying *os.File, for device-size ioctls.
func (f rawSource) Sys() (*os.File, error) {
	if osFile, ok := f.storage.(*os.File); ok {
		return osFile, nil
	}
	return nil, backend.ErrNotSuitable
}

func (f rawSource) Stat() (fs.FileInfo, error) {
	return f.storage.Stat()
}

func (f rawSource) Read(b []byte) (int, error) {
	return f.storage.Read(b)
}

func (f rawSource) Close() error {
	return f.storage.Close()
}

func (f rawSource) ReadAt(p []byte, off int64) (n int, err error) {
	if readerAt, ok := f.storage.(io.ReaderAt); ok {
		return readerAt.ReadAt(p, off)
	}
	return -1, backend.ErrNotSuitable
}

func (f rawSource) Seek(offset int64, whence int) (int64, error) {
	if seeker, ok := f.storage.(io.Seeker); ok {
		return seeker.Seek(offset, whence)
	}
	return -1, backend.ErrNotSuitable
}

// Size reports the true size of the backing file or device. For a regular
// file, Stat's size is authoritative. For a block device, Stat often
// reports 0, so Size falls back to the OS-specific ioctl in
// size_linux.go / size_other.go.
func Size(src backend.Source) (int64, error) {
	info, err := src.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat backing source: %w", err)
	}
	if info.Mode()&os.ModeDevice == 0 {
		return info.Size(), nil
	}
	sysSrc, ok := src.(backend.Sys)
	if !ok {
		return info.Size(), nil
	}
	osFile, err := sysSrc.Sys()
	if err != nil {
		return info.Size(), nil //nolint:nilerr // best-effort fallback to Stat's (possibly zero) size
	}
	if sz, err := deviceSize(osFile); err == nil {
		return sz, nil
	}
	return info.Size(), nil
}
