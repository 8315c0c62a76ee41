package kv_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Disant-codes/keystore-filesystem/internal/directory"
	"github.com/Disant-codes/keystore-filesystem/internal/job"
	"github.com/Disant-codes/keystore-filesystem/internal/kv"
	"github.com/Disant-codes/keystore-filesystem/internal/store"
)

func newTestEngine(t *testing.T) *kv.Engine {
	t.Helper()
	path := filepath.Join(t.TempDir(), "image.kvs")
	bs, err := store.OpenOrCreate(path, store.DefaultBlockSize, 64)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bs.Close() })

	dir := directory.New(bs)
	require.NoError(t, dir.EnsureBucketBlock())
	return kv.New(dir)
}

// apply runs req through e and asserts that Apply reported no storage
// IO error, since every existing call site here exercises a taxonomy
// outcome (success, validation, STORAGE_FULL, KEY_NOT_FOUND), all of
// which are expressed through resp with a nil Apply error.
func apply(t *testing.T, e *kv.Engine, req *job.Request) *job.Response {
	t.Helper()
	resp := &job.Response{Type: req.Type, Status: job.NotStarted, Error: job.NoError}
	require.NoError(t, e.Apply(req, resp))
	return resp
}

func TestEnginePutGetDelete(t *testing.T) {
	e := newTestEngine(t)

	put := apply(t, e, &job.Request{Type: job.Put, Key: []byte("alpha"), Value: []byte("one")})
	assert.Equal(t, job.Completed, put.Status)
	assert.Equal(t, job.NoError, put.Error)

	get := apply(t, e, &job.Request{Type: job.Get, Key: []byte("alpha")})
	assert.Equal(t, job.Completed, get.Status)
	assert.Equal(t, job.NoError, get.Error)
	assert.Equal(t, []byte("one"), get.Data)

	del := apply(t, e, &job.Request{Type: job.Delete, Key: []byte("alpha")})
	assert.Equal(t, job.Completed, del.Status)
	assert.Equal(t, job.NoError, del.Error)

	missing := apply(t, e, &job.Request{Type: job.Get, Key: []byte("alpha")})
	assert.Equal(t, job.Completed, missing.Status)
	assert.Equal(t, job.ErrKeyNotFound, missing.Error)
}

func TestEngineGetMissingKeyIsCompletedNotFailed(t *testing.T) {
	e := newTestEngine(t)
	resp := apply(t, e, &job.Request{Type: job.Get, Key: []byte("nope")})
	assert.Equal(t, job.Completed, resp.Status)
	assert.Equal(t, job.ErrKeyNotFound, resp.Error)
}

func TestEngineDeleteMissingKey(t *testing.T) {
	e := newTestEngine(t)
	resp := apply(t, e, &job.Request{Type: job.Delete, Key: []byte("nope")})
	assert.Equal(t, job.Completed, resp.Status)
	assert.Equal(t, job.ErrKeyNotFound, resp.Error)
}

func TestEnginePutEmptyKeyFails(t *testing.T) {
	e := newTestEngine(t)
	resp := apply(t, e, &job.Request{Type: job.Put, Key: nil, Value: []byte("x")})
	assert.Equal(t, job.Failed, resp.Status)
	assert.Equal(t, job.ErrInvalidArg, resp.Error)
}

func TestEnginePutOversizeKeyFails(t *testing.T) {
	e := newTestEngine(t)
	bigKey := make([]byte, directory.MaxKeyLen+1)
	resp := apply(t, e, &job.Request{Type: job.Put, Key: bigKey, Value: []byte("x")})
	assert.Equal(t, job.Failed, resp.Status)
	assert.Equal(t, job.ErrInvalidArg, resp.Error)
}

func TestEnginePutOversizeValueFails(t *testing.T) {
	e := newTestEngine(t)
	bigValue := make([]byte, directory.MaxValueLen+1)
	resp := apply(t, e, &job.Request{Type: job.Put, Key: []byte("k"), Value: bigValue})
	assert.Equal(t, job.Failed, resp.Status)
	assert.Equal(t, job.ErrInvalidArg, resp.Error)
}

func TestEngineInvalidTypeFails(t *testing.T) {
	e := newTestEngine(t)
	resp := apply(t, e, &job.Request{Type: job.Invalid, Key: []byte("k")})
	assert.Equal(t, job.Failed, resp.Status)
	assert.Equal(t, job.ErrInvalidArg, resp.Error)
}

func TestEngineStorageFullSurfacesAsFailed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.kvs")
	bs, err := store.OpenOrCreate(path, store.DefaultBlockSize, 2)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bs.Close() })

	dir := directory.New(bs)
	require.NoError(t, dir.EnsureBucketBlock())
	e := kv.New(dir)

	// The only remaining free block has already gone to the bucket
	// directory, so even a single record cannot be allocated.
	resp := apply(t, e, &job.Request{Type: job.Put, Key: []byte("k"), Value: []byte("v")})
	assert.Equal(t, job.Failed, resp.Status)
	assert.Equal(t, job.ErrStorageFull, resp.Error)
}

func TestEngineStorageIOErrorSurfacesAsApplyError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.kvs")
	bs, err := store.OpenOrCreate(path, store.DefaultBlockSize, 64)
	require.NoError(t, err)

	dir := directory.New(bs)
	require.NoError(t, dir.EnsureBucketBlock())
	e := kv.New(dir)

	// Closing the store out from under the engine forces every
	// directory call to fail with store.ErrClosed: a genuine storage IO
	// error, not one of the put/get/delete taxonomy outcomes. Apply must
	// report this as an error so the caller tears the connection down
	// instead of sending a normal response.
	require.NoError(t, bs.Close())

	resp := &job.Response{Type: job.Get, Status: job.NotStarted, Error: job.NoError}
	applyErr := e.Apply(&job.Request{Type: job.Get, Key: []byte("k")}, resp)
	assert.Error(t, applyErr)
	assert.NotEqual(t, job.Completed, resp.Status)
}
