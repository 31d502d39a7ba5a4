package ingest

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"
)

// lockRetryInterval is how often an ingest waiting on another process's
// staging lock re-attempts acquisition.
const lockRetryInterval = 250 * time.Millisecond

// acquireStagingLock takes an exclusive advisory lock next to the staged
// source file so two processes cannot ingest the same file at once. The
// returned release func unlocks and removes the lock file; call it exactly
// once. Blocks until the lock is acquired or ctx expires.
func acquireStagingLock(ctx context.Context, srcPath string) (func(), error) {
	lock := flock.New(srcPath + ".lock")
	ok, err := lock.TryLockContext(ctx, lockRetryInterval)
	if err != nil {
		return nil, fmt.Errorf("acquire staging lock %s: %w", lock.Path(), err)
	}
	if !ok {
		return nil, fmt.Errorf("acquire staging lock %s: not acquired", lock.Path())
	}
	release := func() {
		_ = lock.Unlock()
		_ = os.Remove(lock.Path())
	}
	return release, nil
}
