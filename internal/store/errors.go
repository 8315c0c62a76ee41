package store

import "errors"

// Sentinel errors returned by the block store, matching the error
// taxonomy in spec.md §7. Callers use errors.Is against these rather
// than comparing strings.
var (
	// ErrInvalidImage is returned by OpenOrCreate when an existing image
	// file's superblock magic or version does not match. Fatal to the
	// caller (spec.md: "fatal to the process").
	ErrInvalidImage = errors.New("store: invalid image superblock")

	// ErrStorageFull is returned by AllocBlock when the free list is
	// exhausted.
	ErrStorageFull = errors.New("store: no free blocks")

	// ErrInvalidArg is returned for out-of-range block indices passed to
	// FreeBlock or BlockView.
	ErrInvalidArg = errors.New("store: invalid block index")

	// ErrClosed is returned by any operation performed after Close.
	ErrClosed = errors.New("store: closed")

	// ErrLocked is returned by OpenOrCreate when another process already
	// holds the image's exclusive advisory lock, per spec.md §5's
	// single-writer guarantee.
	ErrLocked = errors.New("store: image already locked by another process")
)
