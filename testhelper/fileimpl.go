// Package testhelper provides small, dependency-free fixtures for testing
// package ffs without needing a real disk image on disk: an in-memory
// backend.Source and byte-diffing helpers for exact round-trip assertions.
package testhelper

import (
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/dissect-go/go-ffs/util"
)

// MemSource is an in-memory backend.Source backed by a single byte slice,
// used to synthesize tiny FFS images (a superblock, a cylinder group, a
// handful of inodes) directly in test code.
type MemSource struct {
	buf []byte
	pos int64
}

// NewMemSource wraps b (not copied) as a backend.Source.
func NewMemSource(b []byte) *MemSource {
	return &MemSource{buf: b}
}

func (m *MemSource) Stat() (fs.FileInfo, error) {
	return memInfo{size: int64(len(m.buf))}, nil
}

func (m *MemSource) Read(b []byte) (int, error) {
	n, err := m.ReadAt(b, m.pos)
	m.pos += int64(n)
	return n, err
}

func (m *MemSource) ReadAt(b []byte, offset int64) (int, error) {
	if offset < 0 || offset >= int64(len(m.buf)) {
		return 0, fmt.Errorf("read at %d: %w", offset, fs.ErrInvalid)
	}
	n := copy(b, m.buf[offset:])
	return n, nil
}

func (m *MemSource) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case 0:
		pos = offset
	case 1:
		pos = m.pos + offset
	case 2:
		pos = int64(len(m.buf)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if pos < 0 {
		return 0, fmt.Errorf("negative seek position %d", pos)
	}
	m.pos = pos
	return pos, nil
}

func (m *MemSource) Close() error { return nil }

type memInfo struct {
	size int64
}

func (m memInfo) Name() string       { return "mem" }
func (m memInfo) Size() int64        { return m.size }
func (m memInfo) Mode() fs.FileMode  { return 0o644 }
func (m memInfo) ModTime() time.Time { return time.Time{} }
func (m memInfo) IsDir() bool        { return false }
func (m memInfo) Sys() any           { return nil }

var _ os.FileInfo = memInfo{}

// DumpByteSlicesWithDiffs wraps util.DumpByteSlicesWithDiffs, the byte-exact
// comparison helper used throughout the ffs package's encode/decode tests.
func DumpByteSlicesWithDiffs(a, b []byte, bytesPerRow int, showASCII, showPosHex, showPosDec bool) (bool, string) {
	return util.DumpByteSlicesWithDiffs(a, b, bytesPerRow, showASCII, showPosHex, showPosDec)
}
