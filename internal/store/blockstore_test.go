package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, numBlocks uint32) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keystored.img")
	s, err := OpenOrCreate(path, 4096, numBlocks)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// S1: fresh image -> free_block_count == 15, free_list_head == 1
// (block_size=4096, num_blocks=16).
func TestFreshImageFreeList(t *testing.T) {
	s := newTestStore(t, 16)
	require.Equal(t, uint32(15), s.FreeBlockCount())
	require.Equal(t, uint32(1), s.FreeListHead())
}

func TestAllocFreeRoundTrip(t *testing.T) {
	s := newTestStore(t, 16)
	before := s.FreeBlockCount()

	idx, err := s.AllocBlock()
	require.NoError(t, err)
	require.NotZero(t, idx)
	require.Equal(t, before-1, s.FreeBlockCount())

	require.NoError(t, s.FreeBlock(idx))
	require.Equal(t, before, s.FreeBlockCount())
}

func TestAllocExhaustion(t *testing.T) {
	s := newTestStore(t, 4) // 3 allocatable blocks
	for i := 0; i < 3; i++ {
		_, err := s.AllocBlock()
		require.NoError(t, err)
	}
	_, err := s.AllocBlock()
	require.ErrorIs(t, err, ErrStorageFull)
}

func TestAllocLastBlockLeavesHeadZeroCountZero(t *testing.T) {
	s := newTestStore(t, 2) // exactly one allocatable block
	idx, err := s.AllocBlock()
	require.NoError(t, err)
	require.Equal(t, uint32(0), s.FreeListHead())
	require.Equal(t, uint32(0), s.FreeBlockCount())

	require.NoError(t, s.FreeBlock(idx))
	require.Equal(t, idx, s.FreeListHead())
	require.Equal(t, uint32(1), s.FreeBlockCount())
}

func TestFreeBlockZeroRejected(t *testing.T) {
	s := newTestStore(t, 16)
	err := s.FreeBlock(0)
	require.ErrorIs(t, err, ErrInvalidArg)
}

func TestFreeBlockOutOfRangeRejected(t *testing.T) {
	s := newTestStore(t, 16)
	err := s.FreeBlock(100)
	require.ErrorIs(t, err, ErrInvalidArg)
}

func TestBlockViewBounds(t *testing.T) {
	s := newTestStore(t, 16)
	view, err := s.BlockView(1)
	require.NoError(t, err)
	require.Len(t, view, 4096)

	_, err = s.BlockView(16)
	require.ErrorIs(t, err, ErrInvalidArg)
}

// S6: PUT via direct block write, close and reopen -> data survives.
func TestReopenPreservesState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keystored.img")
	s, err := OpenOrCreate(path, 4096, 16)
	require.NoError(t, err)

	idx, err := s.AllocBlock()
	require.NoError(t, err)
	view, err := s.BlockView(idx)
	require.NoError(t, err)
	copy(view[4:9], []byte("hello"))
	require.NoError(t, s.Flush(view))
	require.NoError(t, s.Close())

	s2, err := OpenOrCreate(path, 4096, 16)
	require.NoError(t, err)
	defer s2.Close()

	require.Equal(t, uint32(14), s2.FreeBlockCount())
	view2, err := s2.BlockView(idx)
	require.NoError(t, err)
	require.Equal(t, "hello", string(view2[4:9]))
}

func TestInvalidImageMagicMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keystored.img")
	s, err := OpenOrCreate(path, 4096, 16)
	require.NoError(t, err)
	view, err := s.BlockView(0)
	require.NoError(t, err)
	view[0] ^= 0xFF // corrupt magic
	require.NoError(t, s.Flush(view))
	require.NoError(t, s.Close())

	_, err = OpenOrCreate(path, 4096, 16)
	require.True(t, errors.Is(err, ErrInvalidImage))
}

// S7: a second instance pointed at an already-open image fails fast
// with ErrLocked instead of mapping the file concurrently, per spec.md
// §5's single-writer guarantee.
func TestOpenOrCreateRejectsSecondWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keystored.img")
	s, err := OpenOrCreate(path, 4096, 16)
	require.NoError(t, err)
	defer s.Close()

	_, err = OpenOrCreate(path, 4096, 16)
	require.True(t, errors.Is(err, ErrLocked))
}

func TestBlockZeroNeverOnFreeList(t *testing.T) {
	s := newTestStore(t, 16)
	for i := 0; i < 15; i++ {
		idx, err := s.AllocBlock()
		require.NoError(t, err)
		require.NotZero(t, idx)
	}
}
