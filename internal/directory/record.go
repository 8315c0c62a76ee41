package directory

import "encoding/binary"

const (
	// MaxKeyLen and MaxValueLen are the fixed record capacities from
	// spec.md §3.
	MaxKeyLen   = 128
	MaxValueLen = 1024

	// recordHeaderSize is next(4) + key_len(2) + value_len(2).
	recordHeaderSize = 4 + 2 + 2
)

// record is the decoded form of one on-disk record block (spec.md §3).
type record struct {
	next  uint32
	key   []byte
	value []byte
}

// encodeRecord writes next/key/value into dst (a full block view) in
// the layout spec.md §3 specifies. dst must be at least
// recordHeaderSize+len(key)+len(value) bytes.
func encodeRecord(dst []byte, next uint32, key, value []byte) {
	binary.LittleEndian.PutUint32(dst[0:4], next)
	binary.LittleEndian.PutUint16(dst[4:6], uint16(len(key)))
	binary.LittleEndian.PutUint16(dst[6:8], uint16(len(value)))
	off := recordHeaderSize
	copy(dst[off:off+len(key)], key)
	off += len(key)
	copy(dst[off:off+len(value)], value)
}

// decodeRecord reads a record out of a block view previously written by
// encodeRecord.
func decodeRecord(src []byte) record {
	next := binary.LittleEndian.Uint32(src[0:4])
	keyLen := binary.LittleEndian.Uint16(src[4:6])
	valueLen := binary.LittleEndian.Uint16(src[6:8])
	off := recordHeaderSize
	key := make([]byte, keyLen)
	copy(key, src[off:off+int(keyLen)])
	off += int(keyLen)
	value := make([]byte, valueLen)
	copy(value, src[off:off+int(valueLen)])
	return record{next: next, key: key, value: value}
}

// recordNext reads just the chain pointer, avoiding a full decode when
// only walking the chain.
func recordNext(src []byte) uint32 {
	return binary.LittleEndian.Uint32(src[0:4])
}

// recordKeyEquals compares a block's stored key against key without a
// full decode, per spec.md's "length then bytes" comparison.
func recordKeyEquals(src []byte, key []byte) bool {
	keyLen := binary.LittleEndian.Uint16(src[4:6])
	if int(keyLen) != len(key) {
		return false
	}
	off := recordHeaderSize
	for i, b := range key {
		if src[off+i] != b {
			return false
		}
	}
	return true
}

// setRecordNext rewrites only the chain pointer of an existing record
// block.
func setRecordNext(dst []byte, next uint32) {
	binary.LittleEndian.PutUint32(dst[0:4], next)
}
