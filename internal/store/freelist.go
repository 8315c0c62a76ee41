package store

import "encoding/binary"

// formatFreeList threads blocks [1, NumBlocks) into an ascending free
// chain (1 -> 2 -> ... -> 0), per spec.md §4.1. Caller must hold no
// lock (only called from create, before the Store is published).
func (s *Store) formatFreeList() error {
	for i := uint32(1); i < s.super.NumBlocks; i++ {
		block, err := s.blockView(i)
		if err != nil {
			return err
		}
		next := uint32(0)
		if i+1 < s.super.NumBlocks {
			next = i + 1
		}
		binary.LittleEndian.PutUint32(block[0:4], next)
	}
	s.super.FreeListHead = 1
	s.super.FreeBlockCount = s.super.NumBlocks - 1
	return nil
}

// AllocBlock pops the head of the free list, updates and flushes the
// superblock, and returns the allocated block's index. Returns
// ErrStorageFull if the free list is empty, per spec.md §4.1.
func (s *Store) AllocBlock() (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	if s.super.FreeListHead == 0 || s.super.FreeBlockCount == 0 {
		return 0, ErrStorageFull
	}
	head := s.super.FreeListHead
	block, err := s.blockView(head)
	if err != nil {
		return 0, err
	}
	next := binary.LittleEndian.Uint32(block[0:4])

	s.super.FreeListHead = next
	s.super.FreeBlockCount--
	s.writeSuperblock()
	if err := s.flushRange(0, int(s.super.BlockSize)); err != nil {
		return 0, err
	}
	return head, nil
}

// FreeBlock pushes blockIndex onto the head of the free list (LIFO),
// updates and flushes the superblock. Rejects block 0 and any index
// outside the image with ErrInvalidArg. Double-free is caller error and
// is not detected here, per spec.md §4.1.
func (s *Store) FreeBlock(blockIndex uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if blockIndex == 0 || blockIndex >= s.super.NumBlocks {
		return ErrInvalidArg
	}
	block, err := s.blockView(blockIndex)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(block[0:4], s.super.FreeListHead)
	s.super.FreeListHead = blockIndex
	s.super.FreeBlockCount++
	s.writeSuperblock()
	return s.flushRange(0, int(s.super.BlockSize))
}

// FreeBlockCount returns the current count of blocks on the free list.
func (s *Store) FreeBlockCount() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.super.FreeBlockCount
}

// FreeListHead returns the current head of the free list (0 = empty).
func (s *Store) FreeListHead() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.super.FreeListHead
}
