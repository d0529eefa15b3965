// Package driver implements the thin report loop: materialise an
// iterator, prefetch, then fetch and hand off each revision in turn.
package driver

import (
	"errors"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/pepperstats/pepperstats/internal/vcs"
)

// ErrTerminated is returned when a run is cut short by Terminate.
var ErrTerminated = errors.New("driver: terminated")

// Callback receives each fetched Revision in iterator order. The
// Revision is only valid for the duration of the call.
type Callback func(vcs.Revision) error

// Driver runs one report pass over a Backend (typically a
// cache-wrapped one).
type Driver struct {
	backend   vcs.Backend
	log       *zap.Logger
	terminate atomic.Bool
}

// New constructs a Driver over backend.
func New(backend vcs.Backend, log *zap.Logger) *Driver {
	return &Driver{backend: backend, log: log}
}

// Terminate requests that a running Run stop at the next poll point.
// Safe to call from a signal handler goroutine.
func (d *Driver) Terminate() {
	d.terminate.Store(true)
}

// Run iterates branch's revisions between [start, end] (unix seconds;
// zero means unbounded), prefetches them, and invokes cb for each in
// order. It polls the terminate flag between revisions and calls
// Finalize on the backend before returning, whether it completed,
// failed, or was terminated.
func (d *Driver) Run(branch string, start, end int64, cb Callback) error {
	defer d.backend.Finalize()

	ids, err := d.backend.Iterator(branch, start, end)
	if err != nil {
		return vcs.WrapErr("Run", branch, err)
	}
	if len(ids) == 0 {
		return nil
	}

	d.backend.Prefetch(ids)
	d.log.Info("prefetch scheduled", zap.String("branch", branch), zap.Int("revisions", len(ids)))

	for _, id := range ids {
		if d.terminate.Load() {
			d.log.Info("run terminated", zap.String("branch", branch), zap.String("last_id", id))
			return ErrTerminated
		}
		rev, err := d.backend.Revision(id)
		if err != nil {
			return vcs.WrapErr("Run", id, err)
		}
		if err := cb(rev); err != nil {
			return err
		}
	}
	return nil
}
