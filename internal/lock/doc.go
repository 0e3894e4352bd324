// Package lock provides a mutual exclusion guard with mandatory timeouts.
//
//	lease, err := indexLock.Acquire(ctx, 30*time.Second)
//	if err != nil {
//	    return err // ErrLockTimeout, ErrOperationCancelled or ErrLockClosed
//	}
//	defer lease.Release()
//
// Timeouts and cancellations are reported with different errors so callers
// can retry the first (IsRetryable) and give up on the second.
package lock
