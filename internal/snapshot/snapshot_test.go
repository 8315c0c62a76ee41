package snapshot_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Disant-codes/keystore-filesystem/internal/directory"
	"github.com/Disant-codes/keystore-filesystem/internal/snapshot"
	"github.com/Disant-codes/keystore-filesystem/internal/store"
)

func newTestDirectory(t *testing.T) *directory.Directory {
	t.Helper()
	path := filepath.Join(t.TempDir(), "image.kvs")
	bs, err := store.OpenOrCreate(path, store.DefaultBlockSize, 64)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bs.Close() })

	dir := directory.New(bs)
	require.NoError(t, dir.EnsureBucketBlock())
	return dir
}

func TestExportImportRoundTrip(t *testing.T) {
	src := newTestDirectory(t)
	require.NoError(t, src.InsertOrReplace([]byte("alpha"), []byte("1")))
	require.NoError(t, src.InsertOrReplace([]byte("beta"), []byte("2")))
	require.NoError(t, src.InsertOrReplace([]byte("gamma"), []byte("3")))

	dbPath := filepath.Join(t.TempDir(), "snap.db")
	n, err := snapshot.Export(src, dbPath)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	dst := newTestDirectory(t)
	m, err := snapshot.Import(dbPath, dst)
	require.NoError(t, err)
	assert.Equal(t, 3, m)

	for _, kv := range [][2]string{{"alpha", "1"}, {"beta", "2"}, {"gamma", "3"}} {
		v, err := dst.GetValue([]byte(kv[0]))
		require.NoError(t, err)
		assert.Equal(t, kv[1], string(v))
	}
}

func TestExportEmptyDirectory(t *testing.T) {
	src := newTestDirectory(t)
	dbPath := filepath.Join(t.TempDir(), "snap.db")
	n, err := snapshot.Export(src, dbPath)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestImportOverwritesExistingKey(t *testing.T) {
	src := newTestDirectory(t)
	require.NoError(t, src.InsertOrReplace([]byte("k"), []byte("new")))
	dbPath := filepath.Join(t.TempDir(), "snap.db")
	_, err := snapshot.Export(src, dbPath)
	require.NoError(t, err)

	dst := newTestDirectory(t)
	require.NoError(t, dst.InsertOrReplace([]byte("k"), []byte("old")))

	_, err = snapshot.Import(dbPath, dst)
	require.NoError(t, err)

	v, err := dst.GetValue([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(v))
}
