package fifo

import (
	"github.com/sirupsen/logrus"

	"github.com/inference-sim/preempt-sim/fifo/trace"
)

// PreemptFailure is what the orchestrator hands to a RecoveryPolicy after a
// preempt could not be confirmed. ResetMask is a snapshot taken under the
// runlist lock.
type PreemptFailure struct {
	TSG       *TSG
	ResetMask Bitmask
	Err       error
}

// RecoveryPolicy decides what happens after a failed preempt, once every
// lock has been released. The returned error is what Preempt returns.
type RecoveryPolicy interface {
	HandlePreemptFailure(log *logrus.Entry, rec Recovery, failure PreemptFailure) error
}

// DeferToWatchdog is the silicon policy: the context-switch timeout
// watchdog will trigger recovery, so the failure is only reported.
type DeferToWatchdog struct{}

// HandlePreemptFailure implements RecoveryPolicy.
func (DeferToWatchdog) HandlePreemptFailure(log *logrus.Entry, _ Recovery, failure PreemptFailure) error {
	log.WithField("code", CodePreemptFailed).Errorf(
		"preempt timed out for tsgid: %d, ctxsw timeout will trigger recovery if needed",
		failure.TSG.TSGID)
	return failure.Err
}

// RecoverInline is the simulation policy: no watchdog exists, so the
// engines are reset and the TSG timeout escalated synchronously.
type RecoverInline struct{}

// HandlePreemptFailure implements RecoveryPolicy.
func (RecoverInline) HandlePreemptFailure(log *logrus.Entry, rec Recovery, failure PreemptFailure) error {
	log.WithField("code", CodeRecoveryInline).Warnf(
		"preempt timed out for tsgid: %d, recovering engines %v", failure.TSG.TSGID, failure.ResetMask)
	if !failure.ResetMask.IsEmpty() {
		rec.ResetEngines(failure.ResetMask)
	}
	rec.EscalateTimeout(failure.TSG)
	return failure.Err
}

// PolicyForPlatform picks the recovery policy for a target.
func PolicyForPlatform(p Platform) RecoveryPolicy {
	if p.IsSilicon() {
		return DeferToWatchdog{}
	}
	return RecoverInline{}
}

// LockRunlists takes the lock of every registered runlist in mask, in
// ascending id order. Unknown ids are skipped.
func (f *Fifo) LockRunlists(mask Bitmask) {
	for id := range mask.All() {
		if rl, ok := f.runlists[id]; ok {
			rl.Lock()
		}
	}
}

// UnlockRunlists releases what LockRunlists took.
func (f *Fifo) UnlockRunlists(mask Bitmask) {
	for id := range mask.All() {
		if rl, ok := f.runlists[id]; ok {
			rl.Unlock()
		}
	}
}

// MassPreemptForRecovery preempts every runlist in mask for fatal-error
// teardown. Preemption is assumed never to complete here, so nothing is
// polled: every engine of every preempted runlist is marked for reset.
//
// The caller must hold the lock of every runlist in mask and have
// scheduling disabled. Never blocks beyond the mutex timeout, never fails.
func (f *Fifo) MassPreemptForRecovery(mask Bitmask) {
	f.log.Debugf("preempt runlists_mask: %v", mask)

	token, held := f.acquireMutex()
	f.IssueRunlistPreempt(mask)

	for _, id := range f.RunlistIDs() {
		if !mask.Has(id) {
			continue
		}
		rl := f.runlists[id]
		rl.clearReset()
		for engineID := range rl.EngineMask.All() {
			rl.markReset(engineID, ResetCauseRecovery)
		}
	}

	if held {
		f.releaseMutex(token)
	}
	f.trace.RecordMassPreempt(trace.MassPreemptRecord{RunlistMask: uint32(mask), MutexHeld: held})
}

// ResetEngines hands mask to the bound Recovery. With the recovery feature
// off nothing is reset.
func (f *Fifo) ResetEngines(mask Bitmask) {
	if mask.IsEmpty() {
		return
	}
	f.recovery.ResetEngines(mask)
}

// acquireMutex takes the FIFO co-processor mutex. Failure is logged and
// tolerated: the mutex covers a narrow race and blocking would be worse.
func (f *Fifo) acquireMutex() (MutexToken, bool) {
	token, err := f.mutex.Acquire(MutexIDFifo, f.poll.MutexTimeout)
	if err != nil {
		f.log.WithField("code", CodeMutexUnavailable).Warnf("%v: proceeding without it: %v", ErrMutexUnavailable, err)
		return InvalidMutexToken, false
	}
	return token, token != InvalidMutexToken
}

func (f *Fifo) releaseMutex(token MutexToken) {
	if err := f.mutex.Release(MutexIDFifo, token); err != nil {
		f.log.WithField("code", CodeMutexRelease).Errorf("PMU_MUTEX_ID_FIFO not released err=%v", err)
	}
}
