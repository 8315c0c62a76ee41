// Package kv implements the KV Engine (KVE) from spec.md §4.3: it
// dispatches PUT/GET/DELETE requests onto the directory+block store,
// translating directory-layer errors into the job_response error
// taxonomy of spec.md §7.
//
// Grounded on _examples/rclone-rclone/backend/kvfs/kvfs.go's
// List/NewObject/Put/Remove dispatch shape (validate input, call into
// the backing store, map its errors onto the Fs-level error values)
// generalised from a filesystem Fs interface to the three fixed
// request types spec.md's job_executor.h declares.
package kv

import (
	"errors"
	"fmt"

	"github.com/Disant-codes/keystore-filesystem/internal/directory"
	"github.com/Disant-codes/keystore-filesystem/internal/job"
	"github.com/Disant-codes/keystore-filesystem/internal/klog"
	"github.com/Disant-codes/keystore-filesystem/internal/metrics"
	"github.com/Disant-codes/keystore-filesystem/internal/store"
)

// Engine applies job requests to a Directory.
type Engine struct {
	dir *directory.Directory
}

// New returns an Engine backed by dir.
func New(dir *directory.Directory) *Engine {
	return &Engine{dir: dir}
}

// Apply executes req and fills in resp's terminal fields, per spec.md
// §4.3. Its return value distinguishes the two kinds of failure spec.md
// §7 calls out: taxonomy outcomes (STORAGE_FULL, KEY_NOT_FOUND,
// INVALID_ARG) are always expressed through resp with a nil error, but
// a genuine storage IO error — not one of directory/store's named
// taxonomy errors — is returned as an error instead, so the caller
// tears the connection down (spec.md line 182: "Storage IO errors are
// logged and the connection is torn down") rather than completing the
// job normally.
func (e *Engine) Apply(req *job.Request, resp *job.Response) error {
	var err error
	switch req.Type {
	case job.Put:
		err = e.put(req, resp)
	case job.Get:
		err = e.get(req, resp)
	case job.Delete:
		err = e.delete(req, resp)
	default:
		resp.Status = job.Failed
		resp.Error = job.ErrInvalidArg
	}
	metrics.ObserveOperation(req.Type.String(), resp.Status.String(), resp.Error.String())
	return err
}

func (e *Engine) put(req *job.Request, resp *job.Response) error {
	err := e.dir.InsertOrReplace(req.Key, req.Value)
	switch {
	case err == nil:
		resp.Status = job.Completed
		resp.Error = job.NoError
		return nil
	case errors.Is(err, store.ErrStorageFull):
		resp.Status = job.Failed
		resp.Error = job.ErrStorageFull
		return nil
	case isValidationErr(err):
		resp.Status = job.Failed
		resp.Error = job.ErrInvalidArg
		return nil
	default:
		klog.Errorf("kv", "put %q: %v", req.Key, err)
		return fmt.Errorf("kv: put %q: %w", req.Key, err)
	}
}

func (e *Engine) get(req *job.Request, resp *job.Response) error {
	value, err := e.dir.GetValue(req.Key)
	switch {
	case err == nil:
		resp.Status = job.Completed
		resp.Error = job.NoError
		resp.Data = value
		return nil
	case errors.Is(err, directory.ErrKeyNotFound):
		resp.Status = job.Completed
		resp.Error = job.ErrKeyNotFound
		return nil
	case isValidationErr(err):
		resp.Status = job.Failed
		resp.Error = job.ErrInvalidArg
		return nil
	default:
		klog.Errorf("kv", "get %q: %v", req.Key, err)
		return fmt.Errorf("kv: get %q: %w", req.Key, err)
	}
}

func (e *Engine) delete(req *job.Request, resp *job.Response) error {
	err := e.dir.Erase(req.Key)
	switch {
	case err == nil:
		resp.Status = job.Completed
		resp.Error = job.NoError
		return nil
	case errors.Is(err, directory.ErrKeyNotFound):
		resp.Status = job.Completed
		resp.Error = job.ErrKeyNotFound
		return nil
	case isValidationErr(err):
		resp.Status = job.Failed
		resp.Error = job.ErrInvalidArg
		return nil
	default:
		klog.Errorf("kv", "delete %q: %v", req.Key, err)
		return fmt.Errorf("kv: delete %q: %w", req.Key, err)
	}
}

func isValidationErr(err error) bool {
	return errors.Is(err, directory.ErrEmptyKey) ||
		errors.Is(err, directory.ErrKeyTooLong) ||
		errors.Is(err, directory.ErrValueTooLong)
}
