// Package store implements the persistent, memory-mapped block store
// described in spec.md §3-4.1: a fixed-size image file holding a
// superblock at block 0, a singly-linked free list threaded through
// the first four bytes of each free block, and raw block access for
// higher layers (the directory and KV engine) to build on.
//
// Grounded on _examples/rclone-rclone/backend/cache/storage_persistent.go
// for the open-or-create / connect lifecycle shape, generalised from a
// bbolt file handle to a hand-rolled mmap image since the whole point
// of this layer is the on-disk format itself. The mmap is
// file-backed via github.com/edsrzf/mmap-go (the ecosystem library
// erigon-lib uses for this, rather than rclone's own lib/mmap, which
// only wraps anonymous memory). The single-writer guarantee spec.md §5
// requires is an advisory golang.org/x/sys/unix.Flock held for the
// lifetime of the Store; unix.Fdatasync backstops unix.Msync on Close
// and superblock writes so the file's data survives a crash even if the
// mapping is never touched again before the process dies.
package store

import (
	"fmt"
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"
	"golang.org/x/sys/unix"

	"github.com/Disant-codes/keystore-filesystem/internal/klog"
)

// Store owns the memory-mapped image file backing a keyvalued instance.
// One Store guards its own free list and superblock mutation behind mu,
// as required by spec.md §5 ("BS: one mutex guards the free list and
// superblock mutation"). Bulk block bodies are not covered by mu — the
// caller must own the block (via AllocBlock) before writing it.
type Store struct {
	path string

	file *os.File
	data mmap.MMap

	mu     sync.Mutex
	super  Superblock
	closed bool
}

// OpenOrCreate opens the image at path, creating and formatting it with
// the default hash bucket count if it does not exist. blockSize and
// numBlocks are only used for a fresh image; an existing image's own
// superblock values are authoritative.
func OpenOrCreate(path string, blockSize, numBlocks uint32) (*Store, error) {
	return OpenOrCreateConfig(path, blockSize, numBlocks, DefaultHashBucketCount)
}

// OpenOrCreateConfig is OpenOrCreate with an explicit hash bucket
// count, used by cmd/keyvalued to honor a configured --hash-buckets
// flag on a fresh image.
func OpenOrCreateConfig(path string, blockSize, numBlocks, hashBucketCount uint32) (*Store, error) {
	_, statErr := os.Stat(path)
	switch {
	case os.IsNotExist(statErr):
		return create(path, blockSize, numBlocks, hashBucketCount)
	case statErr != nil:
		return nil, fmt.Errorf("store: stat %q: %w", path, statErr)
	default:
		return open(path)
	}
}

// flockExclusive takes a non-blocking exclusive advisory lock on f's
// file descriptor, per spec.md §5's single-writer guarantee: a second
// keyvalued instance pointed at the same image fails fast at startup
// instead of corrupting it via concurrent unsynchronised mmaps.
func flockExclusive(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		if err == unix.EWOULDBLOCK {
			return fmt.Errorf("store: lock %q: %w", f.Name(), ErrLocked)
		}
		return fmt.Errorf("store: lock %q: %w", f.Name(), err)
	}
	return nil
}

func create(path string, blockSize, numBlocks, hashBucketCount uint32) (*Store, error) {
	if blockSize == 0 {
		blockSize = DefaultBlockSize
	}
	if numBlocks == 0 {
		numBlocks = DefaultNumBlocks
	}
	if hashBucketCount == 0 {
		hashBucketCount = DefaultHashBucketCount
	}
	totalSize := uint64(blockSize) * uint64(numBlocks)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("store: create %q: %w", path, err)
	}
	if err := flockExclusive(f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, err
	}
	if err := f.Truncate(int64(totalSize)); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("store: size %q: %w", path, err)
	}

	data, err := mmap.MapRegion(f, int(totalSize), mmap.RDWR, 0, 0)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("store: mmap %q: %w", path, err)
	}

	s := &Store{
		path: path,
		file: f,
		data: data,
		super: Superblock{
			Magic:           Magic,
			Version:         Version,
			TotalSize:       totalSize,
			BlockSize:       blockSize,
			NumBlocks:       numBlocks,
			HashBucketCount: hashBucketCount,
		},
	}
	if err := s.formatFreeList(); err != nil {
		_ = data.Unmap()
		_ = f.Close()
		_ = os.Remove(path)
		return nil, err
	}
	s.writeSuperblock()
	if err := s.flushRange(0, int(blockSize)); err != nil {
		_ = data.Unmap()
		_ = f.Close()
		_ = os.Remove(path)
		return nil, err
	}
	klog.Infof("store", "created image %q: %d blocks of %d bytes", path, numBlocks, blockSize)
	return s, nil
}

func open(path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}
	if err := flockExclusive(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("store: stat %q: %w", path, err)
	}
	data, err := mmap.MapRegion(f, int(fi.Size()), mmap.RDWR, 0, 0)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("store: mmap %q: %w", path, err)
	}
	if len(data) < superblockEncodedSize {
		_ = data.Unmap()
		_ = f.Close()
		return nil, fmt.Errorf("store: %q: %w", path, ErrInvalidImage)
	}
	super := decodeSuperblock(data)
	if super.Magic != Magic || super.Version != Version {
		_ = data.Unmap()
		_ = f.Close()
		return nil, fmt.Errorf("store: %q: %w", path, ErrInvalidImage)
	}
	if super.TotalSize != uint64(super.BlockSize)*uint64(super.NumBlocks) {
		_ = data.Unmap()
		_ = f.Close()
		return nil, fmt.Errorf("store: %q: size mismatch: %w", path, ErrInvalidImage)
	}
	klog.Infof("store", "opened image %q: %d blocks of %d bytes, %d free", path, super.NumBlocks, super.BlockSize, super.FreeBlockCount)
	return &Store{path: path, file: f, data: data, super: super}, nil
}

// Close flushes the entire mapped region, unmaps it and closes the
// backing file descriptor. Safe to call once; subsequent calls are a
// no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var firstErr error
	if err := s.data.Flush(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("store: flush on close: %w", err)
	}
	if err := unix.Fdatasync(int(s.file.Fd())); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("store: fdatasync on close: %w", err)
	}
	if err := s.data.Unmap(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("store: unmap: %w", err)
	}
	if err := s.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("store: close fd: %w", err)
	}
	return firstErr
}

// BlockSize returns the image's fixed block size.
func (s *Store) BlockSize() uint32 { return s.super.BlockSize }

// NumBlocks returns the image's fixed block count.
func (s *Store) NumBlocks() uint32 { return s.super.NumBlocks }

// HashBucketCount returns the configured directory bucket count.
func (s *Store) HashBucketCount() uint32 { return s.super.HashBucketCount }

// HashBucketsBlock returns the block index of the bucket array, or 0 if
// the directory has not been initialised yet.
func (s *Store) HashBucketsBlock() uint32 { return s.super.HashBucketsBlock }

// SetHashBucketsBlock records the bucket array's block index in the
// superblock and flushes it. Called once by the directory layer via
// EnsureBucketBlock.
func (s *Store) SetHashBucketsBlock(block uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.super.HashBucketsBlock = block
	s.writeSuperblock()
	return s.flushRange(0, int(s.super.BlockSize))
}

// BlockView returns the bounds-checked, addressable region for block
// index. The returned slice aliases the mapped file; writes to it are
// only durable once Flush is called on it (or a range covering it).
func (s *Store) BlockView(index uint32) ([]byte, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	return s.blockView(index)
}

// blockView is the lock-free bounds-checked accessor used internally by
// code that already holds s.mu (or that has established ownership of
// the block, e.g. right after AllocBlock).
func (s *Store) blockView(index uint32) ([]byte, error) {
	if index >= s.super.NumBlocks {
		return nil, fmt.Errorf("store: block %d: %w", index, ErrInvalidArg)
	}
	bs := int(s.super.BlockSize)
	start := int(index) * bs
	return s.data[start : start+bs], nil
}

// Flush durably writes back the byte range of the mapping that region
// aliases. region must be (a sub-slice of) a slice previously returned
// by BlockView.
func (s *Store) Flush(region []byte) error {
	offset, length, err := s.regionOffset(region)
	if err != nil {
		return err
	}
	return s.flushRange(offset, length)
}

// regionOffset computes region's byte offset within the mapping.
func (s *Store) regionOffset(region []byte) (offset, length int, err error) {
	if len(region) == 0 {
		return 0, 0, nil
	}
	base := &s.data[0]
	regionBase := &region[0]
	offset = int(uintptrDiff(regionBase, base))
	if offset < 0 || offset+len(region) > len(s.data) {
		return 0, 0, fmt.Errorf("store: flush region out of bounds")
	}
	return offset, len(region), nil
}

// flushRange issues a page-aligned msync covering [offset, offset+length).
func (s *Store) flushRange(offset, length int) error {
	if length <= 0 {
		return nil
	}
	pageSize := os.Getpagesize()
	alignedStart := (offset / pageSize) * pageSize
	alignedEnd := offset + length
	if rem := alignedEnd % pageSize; rem != 0 {
		alignedEnd += pageSize - rem
	}
	if alignedEnd > len(s.data) {
		alignedEnd = len(s.data)
	}
	if err := unix.Msync(s.data[alignedStart:alignedEnd], unix.MS_SYNC); err != nil {
		return fmt.Errorf("store: msync: %w", err)
	}
	if err := unix.Fdatasync(int(s.file.Fd())); err != nil {
		return fmt.Errorf("store: fdatasync: %w", err)
	}
	return nil
}

// writeSuperblock encodes the in-memory superblock into block 0. Caller
// must hold s.mu and follow up with a flush of block 0.
func (s *Store) writeSuperblock() {
	s.super.encode(s.data[:superblockEncodedSize])
}
