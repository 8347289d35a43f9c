package wcadm

import (
	"context"
	"os"
	"time"

	"github.com/orneryd/vcsfs/internal/vcserr"
	"github.com/orneryd/vcsfs/internal/vcslog"
)

// Lock is the exclusive, non-reentrant, per-directory working-copy lock
// of spec.md §4.3: its presence as a file on disk, not an flock, is the
// lock — any process that can see adm/lock considers the directory
// locked, which is what lets a crashed process's lock be found and
// cleared by a later "cleanup" pass.
type Lock struct {
	layout *Layout
}

// Acquire creates adm/lock, retrying with backoff until timeout elapses.
// Returns a vcserr.CodeAlreadyLocked error if the lock is still held when
// the timeout expires.
func Acquire(ctx context.Context, layout *Layout, timeout time.Duration) (*Lock, error) {
	deadline := time.Now().Add(timeout)
	backoff := 10 * time.Millisecond

	for {
		f, err := os.OpenFile(layout.LockPath(), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_ = f.Close()
			return &Lock{layout: layout}, nil
		}
		if !os.IsExist(err) {
			return nil, vcserr.Wrap(vcserr.CodeIO, layout.LockPath(), err)
		}

		if time.Now().After(deadline) {
			return nil, vcserr.New(vcserr.CodeAlreadyLocked, layout.WCDir, "working copy directory is locked")
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 500*time.Millisecond {
			backoff *= 2
		}
	}
}

// Release removes adm/lock. Releasing an already-released lock is a
// no-op, mirroring the idempotent cleanup the log-replay path depends on.
func (l *Lock) Release() error {
	err := os.Remove(l.layout.LockPath())
	if err != nil && !os.IsNotExist(err) {
		return vcserr.Wrap(vcserr.CodeIO, l.layout.LockPath(), err)
	}
	return nil
}

// IsLocked reports whether a lock file is currently present, without
// attempting to acquire it.
func IsLocked(layout *Layout) bool {
	_, err := os.Stat(layout.LockPath())
	return err == nil
}

// Steal forcibly removes a stale lock left behind by a crashed process
// (spec.md §4.3's "cleanup" recovery path) and logs the recovery.
func Steal(layout *Layout) error {
	if err := os.Remove(layout.LockPath()); err != nil && !os.IsNotExist(err) {
		return vcserr.Wrap(vcserr.CodeIO, layout.LockPath(), err)
	}
	vcslog.Warnf("wcadm: stole stale lock at %s", layout.LockPath())
	return nil
}
