package directory

import "hash/fnv"

// bucketIndex hashes key with FNV-1a/32 and reduces it modulo
// bucketCount, per spec.md §3 ("Hash function: FNV-1a over key bytes,
// modulo hash_bucket_count").
func bucketIndex(key []byte, bucketCount uint32) uint32 {
	h := fnv.New32a()
	_, _ = h.Write(key) // fnv.Write never errors
	return h.Sum32() % bucketCount
}
