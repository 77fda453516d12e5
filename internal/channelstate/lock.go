package channelstate

import (
	"context"
	"fmt"
	"time"
)

// DefaultLockTimeout bounds how long a caller waits to acquire a channel's
// critical section before failing fast with ErrChannelBusy. Channels are
// in-memory entities owned by a single process, so — unlike
// internal/ticket/lock.go's flock-based file lock, which guards against
// other OS processes and inode-recreate races — this only needs to
// serialize goroutines within this orchestrator. See DESIGN.md's note on
// why a file lock isn't needed here.
const DefaultLockTimeout = 2 * time.Second

// chanLock is a per-channel critical section implemented as a
// single-slot buffered channel, which supports context-bounded acquire
// the way sync.Mutex does not.
type chanLock chan struct{}

func newChanLock() chanLock {
	return make(chanLock, 1)
}

// acquire blocks until the lock is free, ctx is done, or timeout elapses,
// whichever comes first — mirroring acquireLockWithTimeout's
// deadline-loop shape in internal/ticket/lock.go, minus the
// inode-verification step that only matters for on-disk locks.
func (l chanLock) acquire(ctx context.Context, id string, timeout time.Duration) (func(), error) {
	select {
	case l <- struct{}{}:
		return func() { <-l }, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case l <- struct{}{}:
		return func() { <-l }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %w", ErrChannelBusy, id, ctx.Err())
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s", ErrChannelBusy, id)
	}
}
