// Package snapshot implements the export/import tool that backs
// `keyvaluectl snapshot export` and `keyvaluectl snapshot import`, a
// feature the original C daemon never had (neither spec.md nor
// original_source describe any backup path for the fixed-size mmap
// image). It walks a live Directory and serialises every key/value
// pair into a single portable bbolt database file — a format the
// fixed-size block image cannot itself serve, since it has no
// resize-on-export story.
//
// Grounded on _examples/rclone-rclone/backend/cache/storage_persistent.go's
// db.Update/CreateBucketIfNotExists/Put transactional style, adapted
// here from a directory-entry cache to a flat key/value bucket.
package snapshot

import (
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/Disant-codes/keystore-filesystem/internal/directory"
)

// recordsBucket is the single top-level bolt bucket holding every
// key/value pair, mirroring storage_persistent.go's RootBucket.
const recordsBucket = "records"

// Export walks every bucket chain in dir and writes each key/value pair
// into the bbolt database at destPath, creating the file if it does not
// exist. Records already in an existing file's bucket are kept; the
// returned count covers only the pairs written by this call.
func Export(dir *directory.Directory, destPath string) (int, error) {
	db, err := bolt.Open(destPath, 0o644, nil)
	if err != nil {
		return 0, fmt.Errorf("snapshot: open %q: %w", destPath, err)
	}
	defer db.Close()

	count := 0
	err = db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(recordsBucket))
		if err != nil {
			return fmt.Errorf("snapshot: create bucket: %w", err)
		}
		return dir.Walk(func(key, value []byte) error {
			if err := bucket.Put(key, value); err != nil {
				return err
			}
			count++
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("snapshot: export %q: %w", destPath, err)
	}
	return count, nil
}

// Import reads every key/value pair out of the bbolt database at
// srcPath and inserts it into dst via InsertOrReplace, overwriting any
// existing value for a given key.
func Import(srcPath string, dst *directory.Directory) (int, error) {
	db, err := bolt.Open(srcPath, 0o644, &bolt.Options{ReadOnly: true})
	if err != nil {
		return 0, fmt.Errorf("snapshot: open %q: %w", srcPath, err)
	}
	defer db.Close()

	count := 0
	err = db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(recordsBucket))
		if bucket == nil {
			return fmt.Errorf("snapshot: %q has no %s bucket", srcPath, recordsBucket)
		}
		return bucket.ForEach(func(key, value []byte) error {
			if err := dst.InsertOrReplace(key, value); err != nil {
				return fmt.Errorf("snapshot: insert %q: %w", key, err)
			}
			count++
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("snapshot: import %q: %w", srcPath, err)
	}
	return count, nil
}
