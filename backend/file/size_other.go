//go:build !linux

package file

import (
	"errors"
	"os"
)

// deviceSize has no portable implementation outside Linux; callers fall
// back to Stat's reported size.
func deviceSize(_ *os.File) (int64, error) {
	return 0, errors.New("device size ioctl not supported on this platform")
}
