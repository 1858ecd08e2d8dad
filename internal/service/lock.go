package service

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// Lock bounds. The wait is deliberately long relative to a resolution
// (seconds of remote round-trips at most) but bounded: a resolver that
// cannot get the lock proceeds without it rather than blocking a worker's
// upload indefinitely.
const (
	lockWait = 30 * time.Second
	lockPoll = 250 * time.Millisecond
)

// FolderLock is the named mutual-exclusion lock guarding folder
// resolution. Coarse-grained by design: one lock covers the whole
// lookup+create sequence, since the hierarchy is only two levels deep.
// File-based so it also excludes across processes sharing a drive root.
type FolderLock struct {
	path   string
	wait   time.Duration
	logger *slog.Logger
}

// NewFolderLock creates the lock using a lock file inside dir.
func NewFolderLock(dir string, logger *slog.Logger) *FolderLock {
	if logger == nil {
		logger = slog.Default()
	}

	return &FolderLock{
		path:   filepath.Join(dir, "resolver.lock"),
		wait:   lockWait,
		logger: logger,
	}
}

// Acquire tries to take the lock, polling for at most the bounded wait.
// The returned release function is safe to call on every exit path
// regardless of outcome. held reports whether the lock was actually
// acquired: on timeout the caller proceeds WITHOUT the lock, accepting the
// small risk of a duplicate folder over blocking indefinitely. Do not
// tighten this policy; callers depend on the availability behavior.
func (l *FolderLock) Acquire(ctx context.Context) (release func(), held bool) {
	fl := flock.New(l.path)

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	locked, err := fl.TryLockContext(waitCtx, lockPoll)
	if err != nil || !locked {
		if ctx.Err() == nil {
			l.logger.Warn("folder lock wait exceeded, proceeding without lock",
				slog.String("path", l.path),
				slog.Duration("waited", l.wait),
			)
		}

		return func() {}, false
	}

	return func() {
		if unlockErr := fl.Unlock(); unlockErr != nil {
			l.logger.Error("folder lock release failed",
				slog.String("path", l.path),
				slog.String("error", unlockErr.Error()),
			)
		}
	}, true
}
