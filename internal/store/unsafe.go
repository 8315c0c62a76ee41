package store

import "unsafe"

// uintptrDiff returns the byte distance from base to p, assuming both
// point into the same backing array (true for any sub-slice of
// Store.data). Used to translate a BlockView-derived slice back into an
// offset for a partial msync.
func uintptrDiff(p, base *byte) int64 {
	return int64(uintptr(unsafe.Pointer(p)) - uintptr(unsafe.Pointer(base)))
}
