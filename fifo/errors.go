package fifo

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy means a poll did not see the TSG leave a PBDMA or engine before
	// its timeout or retry ceiling.
	ErrBusy = errors.New("preempt pending")
	// ErrInvalidTarget marks an unbound channel or a TSG without a runlist.
	// Preempt treats it as success with nothing to do.
	ErrInvalidTarget = errors.New("nothing to preempt")
	// ErrMutexUnavailable means the co-processor mutex could not be taken.
	// The caller proceeds without it.
	ErrMutexUnavailable = errors.New("co-processor mutex unavailable")
	// ErrTimeoutInit means a poll deadline could not be constructed.
	ErrTimeoutInit = errors.New("timeout init failed")
	// ErrUnknownID means a channel, TSG or runlist id is not registered.
	ErrUnknownID = errors.New("unknown id")
)

// PendingError aggregates every failed PBDMA and engine poll of one
// IsPreemptPending pass. Unwrap yields the first failure, so
// errors.Is(err, ErrBusy) holds when any poll timed out.
type PendingError struct {
	TSGID         uint32
	RunlistID     uint32
	FailedPbdmas  Bitmask
	FailedEngines Bitmask
	first         error
}

func (e *PendingError) Error() string {
	return fmt.Sprintf("tsg %d on runlist %d: pbdmas %v engines %v: %v",
		e.TSGID, e.RunlistID, e.FailedPbdmas, e.FailedEngines, e.first)
}

func (e *PendingError) Unwrap() error { return e.first }

// record notes a failure, keeping the first error seen.
func (e *PendingError) record(err error) {
	if e.first == nil {
		e.first = err
	}
}

func (e *PendingError) failed() bool {
	return e.first != nil
}
