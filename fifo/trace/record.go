// Package trace provides preempt-trace recording for post-mortem analysis of
// poll loops and recovery decisions.
// This package has no dependencies on fifo/; it stores pure data types.
package trace

// Unit kinds for PollRecord.
const (
	UnitPbdma  = "pbdma"
	UnitEngine = "engine"
)

// Poll outcomes.
const (
	OutcomeDone             = "done"
	OutcomeTimedOut         = "timed_out"
	OutcomeRetriesExhausted = "retries_exhausted"
	OutcomeInitFailed       = "init_failed"
)

// Preempt outcomes.
const (
	PreemptOK     = "ok"
	PreemptNoop   = "noop"
	PreemptFailed = "failed"
)

// PollRecord captures a single PBDMA or engine poll loop.
type PollRecord struct {
	Unit       string `msgpack:"unit"`
	UnitID     uint32 `msgpack:"unit_id"`
	TSGID      uint32 `msgpack:"tsg_id"`
	Iterations int    `msgpack:"iterations"`
	Outcome    string `msgpack:"outcome"`
	LastStatus uint32 `msgpack:"last_status"` // raw status word of the final sample
	ResetCause string `msgpack:"reset_cause"` // engine polls only; empty when no reset
	ElapsedNs  int64  `msgpack:"elapsed_ns"`
}

// PreemptRecord captures one TSG preempt orchestration.
type PreemptRecord struct {
	Target    string `msgpack:"target"` // e.g. "tsg:7", "channel:3"
	TSGID     uint32 `msgpack:"tsg_id"`
	RunlistID uint32 `msgpack:"runlist_id"`
	Outcome   string `msgpack:"outcome"`
	Error     string `msgpack:"error,omitempty"`
	ResetMask uint32 `msgpack:"reset_mask"`
	MutexHeld bool   `msgpack:"mutex_held"`
}

// MassPreemptRecord captures one recovery-path runlist preempt.
type MassPreemptRecord struct {
	RunlistMask uint32 `msgpack:"runlist_mask"`
	MutexHeld   bool   `msgpack:"mutex_held"`
}
