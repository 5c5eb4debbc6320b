package fifo

import (
	"errors"

	"github.com/inference-sim/preempt-sim/fifo/trace"
)

// Preempt evicts the TSG named by id (or owning the channel named by id)
// from every PBDMA and engine of its runlist.
//
// An unbound channel or a TSG without a runlist is nothing to do and returns
// nil without touching hardware. Otherwise, under the runlist lock, the TSG's
// runlist is taken off the scheduler, the preempt is triggered and polled,
// and scheduling is restored before the lock is dropped, on every path. A
// failure is then handed to the RecoveryPolicy.
func (f *Fifo) Preempt(id Identifier) error {
	tsg, rl, err := f.resolve(id)
	if err != nil {
		if errors.Is(err, ErrInvalidTarget) {
			f.log.WithField("code", CodeNothingToPreempt).Infof("%v", err)
			f.trace.RecordPreempt(trace.PreemptRecord{Target: id.String(), Outcome: trace.PreemptNoop,
				TSGID: InvalidTSGID, RunlistID: InvalidRunlistID})
			return nil
		}
		return err
	}
	f.log.Debugf("%v: tsgid %d runlist_id %d", id, tsg.TSGID, rl.ID)

	resetMask, held, err := f.preemptLocked(tsg, rl)

	record := trace.PreemptRecord{
		Target:    id.String(),
		TSGID:     tsg.TSGID,
		RunlistID: rl.ID,
		Outcome:   trace.PreemptOK,
		ResetMask: uint32(resetMask),
		MutexHeld: held,
	}
	if err != nil {
		record.Outcome = trace.PreemptFailed
		record.Error = err.Error()
	}
	f.trace.RecordPreempt(record)

	if err != nil {
		return f.policy.HandlePreemptFailure(f.log, f.recovery, PreemptFailure{TSG: tsg, ResetMask: resetMask, Err: err})
	}
	if !resetMask.IsEmpty() {
		f.log.WithField("code", CodeEngineResetRequired).
			Warnf("tsgid %d preempted, engines %v need reset", tsg.TSGID, resetMask)
	}
	return nil
}

// preemptLocked runs the locked section and returns the reset mask as seen
// under the lock and whether the co-processor mutex was held.
func (f *Fifo) preemptLocked(tsg *TSG, rl *Runlist) (Bitmask, bool, error) {
	rl.Lock()
	defer rl.Unlock()

	// The scheduler could otherwise re-admit the TSG mid-preempt.
	f.disableSched(rl)
	defer f.enableSched(rl)

	token, held := f.acquireMutex()
	if held {
		defer f.releaseMutex(token)
	}

	f.Trigger(TSGID(tsg.TSGID))
	err := f.isPreemptPending(tsg.TSGID, rl)
	return rl.ResetEngBitmask, held, err
}
