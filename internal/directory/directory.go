// Package directory implements the hash-bucket index (DIR) from
// spec.md §3-4.2: a single bucket-array block mapping FNV-1a(key) mod
// hash_bucket_count to the head of a singly-linked chain of record
// blocks inside the block store.
//
// Grounded on _examples/rclone-rclone/backend/cache/storage_persistent.go's
// getBucket/AddDir/GetDirEntries shape (locate-a-container, then
// read/write a leaf value inside it, with an explicit flush/commit
// step) generalised from bbolt's nested-bucket tree to a single
// fixed-size hash-bucket block over the block store, since directory.go
// — unlike storage_persistent.go — sits directly atop spec.md's custom
// free-list format rather than an embedded database engine.
package directory

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/Disant-codes/keystore-filesystem/internal/store"
)

// Directory indexes keys stored in a Store. All bucket-array and
// record-chain mutations are serialised by mu, which spec.md §5
// requires to be acquired strictly after any Store-internal lock use
// (Store's lock is fully encapsulated inside AllocBlock/FreeBlock/
// BlockView, so this is a non-nesting ordering by construction).
type Directory struct {
	mu sync.Mutex
	bs *store.Store
}

// New wraps bs with a directory index. Callers must call
// EnsureBucketBlock once before any lookup/insert/erase.
func New(bs *store.Store) *Directory {
	return &Directory{bs: bs}
}

// EnsureBucketBlock allocates and zeroes the bucket array block if the
// image doesn't have one yet, per spec.md §4.2.
func (d *Directory) EnsureBucketBlock() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bs.HashBucketsBlock() != 0 {
		return nil
	}
	idx, err := d.bs.AllocBlock()
	if err != nil {
		return err
	}
	view, err := d.bs.BlockView(idx)
	if err != nil {
		return err
	}
	bucketBytes := int(d.bs.HashBucketCount()) * 4
	if bucketBytes > len(view) {
		return fmt.Errorf("directory: hash_bucket_count*4 exceeds block_size")
	}
	for i := range view[:bucketBytes] {
		view[i] = 0
	}
	if err := d.bs.Flush(view[:bucketBytes]); err != nil {
		return err
	}
	return d.bs.SetHashBucketsBlock(idx)
}

// bucketHead reads the current chain head for bucket.
func (d *Directory) bucketHead(bucket uint32) (uint32, error) {
	view, err := d.bs.BlockView(d.bs.HashBucketsBlock())
	if err != nil {
		return 0, err
	}
	off := int(bucket) * 4
	return binary.LittleEndian.Uint32(view[off : off+4]), nil
}

// setBucketHead rewrites and flushes a single bucket word.
func (d *Directory) setBucketHead(bucket, head uint32) error {
	view, err := d.bs.BlockView(d.bs.HashBucketsBlock())
	if err != nil {
		return err
	}
	off := int(bucket) * 4
	binary.LittleEndian.PutUint32(view[off:off+4], head)
	return d.bs.Flush(view[off : off+4])
}

// Lookup walks bucket's chain for key. If found, recordBlock is its
// block index and prevBlock is the previous block in the chain (0 if
// it's the bucket head). If not found, recordBlock is 0.
func (d *Directory) Lookup(key []byte) (bucket, prevBlock, recordBlock uint32, err error) {
	if err := validateKey(key); err != nil {
		return 0, 0, 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lookupLocked(key)
}

func (d *Directory) lookupLocked(key []byte) (bucket, prevBlock, recordBlock uint32, err error) {
	bucket = bucketIndex(key, d.bs.HashBucketCount())
	head, err := d.bucketHead(bucket)
	if err != nil {
		return bucket, 0, 0, err
	}

	var prev uint32
	cur := head
	for cur != 0 {
		view, err := d.bs.BlockView(cur)
		if err != nil {
			return bucket, 0, 0, err
		}
		if recordKeyEquals(view, key) {
			return bucket, prev, cur, nil
		}
		prev = cur
		cur = recordNext(view)
	}
	return bucket, 0, 0, nil
}

// InsertOrReplace overwrites the value if key already exists (record
// block reused in place), otherwise allocates a new record block and
// prepends it to the bucket chain (head insertion, per spec.md §4.2).
// The record-then-bucket flush ordering in spec.md §4.2 is preserved:
// the record block is always flushed before the bucket head is
// rewritten.
func (d *Directory) InsertOrReplace(key, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := validateValue(value); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	bucket, _, recordBlock, err := d.lookupLocked(key)
	if err != nil {
		return err
	}

	if recordBlock != 0 {
		view, err := d.bs.BlockView(recordBlock)
		if err != nil {
			return err
		}
		next := recordNext(view)
		encodeRecord(view, next, key, value)
		return d.bs.Flush(view[:recordHeaderSize+len(key)+len(value)])
	}

	head, err := d.bucketHead(bucket)
	if err != nil {
		return err
	}
	idx, err := d.bs.AllocBlock()
	if err != nil {
		return err
	}
	view, err := d.bs.BlockView(idx)
	if err != nil {
		return err
	}
	encodeRecord(view, head, key, value)
	if err := d.bs.Flush(view[:recordHeaderSize+len(key)+len(value)]); err != nil {
		return err
	}
	return d.setBucketHead(bucket, idx)
}

// Erase unlinks key's record from its bucket chain and frees its
// block. Returns ErrKeyNotFound if key is absent.
func (d *Directory) Erase(key []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	bucket, prevBlock, recordBlock, err := d.lookupLocked(key)
	if err != nil {
		return err
	}
	if recordBlock == 0 {
		return ErrKeyNotFound
	}

	view, err := d.bs.BlockView(recordBlock)
	if err != nil {
		return err
	}
	next := recordNext(view)

	if prevBlock == 0 {
		if err := d.setBucketHead(bucket, next); err != nil {
			return err
		}
	} else {
		prevView, err := d.bs.BlockView(prevBlock)
		if err != nil {
			return err
		}
		setRecordNext(prevView, next)
		if err := d.bs.Flush(prevView[:4]); err != nil {
			return err
		}
	}
	return d.bs.FreeBlock(recordBlock)
}

// GetValue returns the value stored for key, or ErrKeyNotFound.
func (d *Directory) GetValue(key []byte) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	_, _, recordBlock, err := d.lookupLocked(key)
	if err != nil {
		return nil, err
	}
	if recordBlock == 0 {
		return nil, ErrKeyNotFound
	}
	view, err := d.bs.BlockView(recordBlock)
	if err != nil {
		return nil, err
	}
	rec := decodeRecord(view)
	return rec.value, nil
}

// Walk calls fn once for every key/value pair currently stored,
// iterating bucket by bucket and chain by chain. Used by
// internal/snapshot to export the store's contents; fn must not mutate
// the directory, since Walk holds mu for its entire traversal.
func (d *Directory) Walk(fn func(key, value []byte) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.bs.HashBucketsBlock() == 0 {
		return nil
	}
	for bucket := uint32(0); bucket < d.bs.HashBucketCount(); bucket++ {
		head, err := d.bucketHead(bucket)
		if err != nil {
			return err
		}
		for cur := head; cur != 0; {
			view, err := d.bs.BlockView(cur)
			if err != nil {
				return err
			}
			rec := decodeRecord(view)
			if err := fn(rec.key, rec.value); err != nil {
				return err
			}
			cur = rec.next
		}
	}
	return nil
}

func validateKey(key []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	if len(key) > MaxKeyLen {
		return ErrKeyTooLong
	}
	return nil
}

func validateValue(value []byte) error {
	if len(value) > MaxValueLen {
		return ErrValueTooLong
	}
	return nil
}
