//go:build linux

package file

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// blkgetsize64 is BLKGETSIZE64 from linux/fs.h: returns device size in bytes.
const blkgetsize64 = 0x80081272

// deviceSize asks the kernel for the true byte size of a block device via
// ioctl, since os.Stat on a device node reports 0.
func deviceSize(f *os.File) (int64, error) {
	var size uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), blkgetsize64, uintptr(unsafe.Pointer(&size))) //nolint:gosec // required for the BLKGETSIZE64 ioctl contract
	if errno != 0 {
		return 0, fmt.Errorf("BLKGETSIZE64 ioctl: %w", errno)
	}
	return int64(size), nil
}
