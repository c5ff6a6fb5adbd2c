package ffs

import "errors"

// Sentinel errors returned by package ffs. Callers should compare against
// these with errors.Is rather than matching on message text.
var (
	ErrSuperblockNotFound   = errors.New("ffs: superblock not found")
	ErrCylinderGroupCorrupt = errors.New("ffs: cylinder group magic mismatch")
	ErrPathNotFound         = errors.New("ffs: path not found")
	ErrNotADirectory        = errors.New("ffs: not a directory")
	ErrNotASymlink          = errors.New("ffs: not a symlink")
	ErrTooManySymlinks      = errors.New("ffs: too many levels of symbolic links")
)
