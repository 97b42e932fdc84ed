package bbfs

import "errors"

var (
	ErrNotTable         = errors.New("not a filesystem block")
	ErrNoFilesystem     = errors.New("no valid filesystem block")
	ErrNotLoaded        = errors.New("filesystem not loaded")
	ErrCorrupt          = errors.New("filesystem corrupt")
	ErrNoSpace          = errors.New("not enough free blocks")
	ErrDirectoryFull    = errors.New("file table full")
	ErrNoSlot           = errors.New("no writable filesystem slot")
	ErrChecksumMismatch = errors.New("device checksum mismatch")
	ErrGeometry         = errors.New("unsupported device geometry")
	ErrName             = errors.New("no usable device name")
)
