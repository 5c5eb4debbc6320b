package fifo

import (
	"errors"
	"fmt"
	"time"

	"github.com/inference-sim/preempt-sim/fifo/trace"
)

// PollOutcome is how a poll loop ended.
type PollOutcome int

const (
	// PollDone: eviction confirmed.
	PollDone PollOutcome = iota
	// PollBusy: the loop gave up without confirmation.
	PollBusy
	// PollTimedOut: an engine loop gave up; ResetMask names the engine.
	PollTimedOut
)

func (o PollOutcome) String() string {
	switch o {
	case PollDone:
		return "done"
	case PollBusy:
		return "busy"
	case PollTimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("PollOutcome(%d)", int(o))
	}
}

// PollResult describes one finished poll loop.
type PollResult struct {
	Outcome PollOutcome
	// ResetMask holds the engine bit when the engine must be reset, either
	// from an interrupt tie-break (Outcome PollDone) or a timeout.
	ResetMask  Bitmask
	Iterations int
	// RetriesExhausted is set when the pre-silicon retry ceiling, rather
	// than the wall-clock deadline, ended the loop.
	RetriesExhausted bool
	LastStatus       uint32
	Elapsed          time.Duration
}

// loopStats is what the shared poll loop reports back to a unit poller.
type loopStats struct {
	done       bool
	iterations int
	exhausted  bool
	elapsed    time.Duration
}

// pollUntil samples until sample reports done, the deadline passes or, on
// non-silicon targets, the retry ceiling is hit. Both bounds are kept; on a
// slow simulator the ceiling usually fires first, on a fast one the deadline.
func (f *Fifo) pollUntil(d time.Duration, sample func() bool) (loopStats, error) {
	timeout, err := NewTimeout(f.clock, d)
	if err != nil {
		f.log.WithField("code", CodeTimeoutInit).Errorf("timeout_init failed: %v", err)
		return loopStats{}, err
	}
	backoff := NewBackoff(f.poll.PollDelayMin, f.poll.PollDelayMax)
	silicon := f.platform.IsSilicon()

	var st loopStats
	for {
		if !silicon && st.iterations >= f.poll.PreSiliconRetries {
			st.exhausted = true
			break
		}
		st.iterations++
		if sample() {
			st.done = true
			break
		}
		backoff.Wait(f.clock)
		if timeout.Expired() {
			break
		}
	}
	st.elapsed = timeout.Elapsed()
	return st, nil
}

func traceOutcome(st loopStats) string {
	switch {
	case st.done:
		return trace.OutcomeDone
	case st.exhausted:
		return trace.OutcomeRetriesExhausted
	default:
		return trace.OutcomeTimedOut
	}
}

// PollPbdma waits for tsgID to leave the PBDMA.
func (f *Fifo) PollPbdma(tsgID, pbdmaID uint32, d time.Duration) (PollResult, error) {
	f.log.Debugf("wait preempt pbdma %d", pbdmaID)

	var last PbdmaStatus
	st, err := f.pollUntil(d, func() bool {
		last = f.ReadPbdmaStatus(pbdmaID)
		return CheckTSGOnPbdma(tsgID, last)
	})
	if err != nil {
		f.recordPoll(trace.UnitPbdma, pbdmaID, tsgID, st, trace.OutcomeInitFailed, 0, "")
		return PollResult{Outcome: PollBusy}, err
	}
	f.recordPoll(trace.UnitPbdma, pbdmaID, tsgID, st, traceOutcome(st), last.Raw, "")

	res := PollResult{
		Outcome:          PollDone,
		Iterations:       st.iterations,
		RetriesExhausted: st.exhausted,
		LastStatus:       last.Raw,
		Elapsed:          st.elapsed,
	}
	if st.done {
		return res, nil
	}
	res.Outcome = PollBusy
	f.logPollFailure(st, "pbdma", pbdmaID, tsgID, last.Raw)
	return res, fmt.Errorf("%w: pbdma %d tsgid %d pbdma_stat 0x%08x", ErrBusy, pbdmaID, tsgID, last.Raw)
}

// PollEngine waits for tsgID to save off the engine or for the engine to be
// found hung. Engines that must be reset are recorded in rl (if non-nil)
// with their cause. A timeout alone marks the engine: a stalling interrupt
// elsewhere, a memory-system hang or a context-switch hang all look the same.
func (f *Fifo) PollEngine(tsgID, engineID uint32, d time.Duration, rl *Runlist) (PollResult, error) {
	f.log.Debugf("wait preempt act engine id: %d", engineID)

	var (
		last      EngineStatus
		intrReset bool
	)
	st, err := f.pollUntil(d, func() bool {
		last = f.ReadEngineStatus(engineID)
		if last.IntrPending {
			f.log.WithField("code", CodeStallIntr).
				Debugf("engine %d: stall intr set, preemption might not finish", engineID)
		}
		done, reset := CheckEngine(tsgID, last)
		intrReset = reset
		return done
	})
	if err != nil {
		f.recordPoll(trace.UnitEngine, engineID, tsgID, st, trace.OutcomeInitFailed, 0, "")
		return PollResult{Outcome: PollBusy}, err
	}

	res := PollResult{
		Outcome:          PollDone,
		Iterations:       st.iterations,
		RetriesExhausted: st.exhausted,
		LastStatus:       last.Raw,
		Elapsed:          st.elapsed,
	}
	if st.done {
		cause := ""
		if intrReset {
			res.ResetMask = Bit(engineID)
			cause = string(ResetCauseInterrupt)
			if rl != nil {
				rl.markReset(engineID, ResetCauseInterrupt)
			}
		}
		f.recordPoll(trace.UnitEngine, engineID, tsgID, st, trace.OutcomeDone, last.Raw, cause)
		return res, nil
	}

	res.Outcome = PollTimedOut
	res.ResetMask = Bit(engineID)
	if rl != nil {
		rl.markReset(engineID, ResetCauseTimeout)
	}
	f.recordPoll(trace.UnitEngine, engineID, tsgID, st, traceOutcome(st), last.Raw, string(ResetCauseTimeout))
	f.logPollFailure(st, "eng", engineID, tsgID, last.Raw)
	return res, fmt.Errorf("%w: eng %d tsgid %d ctx_stat %v", ErrBusy, engineID, tsgID, last.Phase)
}

func (f *Fifo) logPollFailure(st loopStats, unit string, unitID, tsgID, raw uint32) {
	if st.exhausted {
		f.log.WithField("code", CodeRetriesExhausted).
			Errorf("preempt %s retries: %d (%s %d tsgid %d stat 0x%08x)", unit, st.iterations, unit, unitID, tsgID, raw)
		return
	}
	f.log.WithField("code", CodePreemptTimeout).
		Errorf("preempt timeout %s: %d stat: 0x%08x tsgid: %d", unit, unitID, raw, tsgID)
}

func (f *Fifo) recordPoll(unit string, unitID, tsgID uint32, st loopStats, outcome string, raw uint32, cause string) {
	f.trace.RecordPoll(trace.PollRecord{
		Unit:       unit,
		UnitID:     unitID,
		TSGID:      tsgID,
		Iterations: st.iterations,
		Outcome:    outcome,
		LastStatus: raw,
		ResetCause: cause,
		ElapsedNs:  st.elapsed.Nanoseconds(),
	})
}

// IsPreemptPending polls every PBDMA and engine of the identifier's runlist
// until the TSG is off all of them. It does not stop at the first failure:
// every unit is polled and the runlist's ResetEngBitmask reflects every
// engine that needs a reset. The returned *PendingError wraps the first
// failure. A deadline that cannot be built (ErrTimeoutInit) aborts at once.
//
// The caller must hold the runlist lock.
func (f *Fifo) IsPreemptPending(id Identifier) error {
	tsg, rl, err := f.resolve(id)
	if err != nil {
		if errors.Is(err, ErrInvalidTarget) {
			f.log.WithField("code", CodeNothingToPreempt).Infof("%v", err)
			return nil
		}
		return err
	}
	return f.isPreemptPending(tsg.TSGID, rl)
}

func (f *Fifo) isPreemptPending(tsgID uint32, rl *Runlist) error {
	f.log.Debugf("Check preempt pending for tsgid = %d", tsgID)

	perr := &PendingError{TSGID: tsgID, RunlistID: rl.ID}
	rl.clearReset()

	for pbdmaID := range rl.PbdmaMask.All() {
		if _, err := f.PollPbdma(tsgID, pbdmaID, f.poll.PreemptTimeout); err != nil {
			if errors.Is(err, ErrTimeoutInit) {
				return err
			}
			perr.FailedPbdmas = perr.FailedPbdmas.With(pbdmaID)
			perr.record(err)
		}
	}
	for engineID := range rl.EngineMask.All() {
		if _, err := f.PollEngine(tsgID, engineID, f.poll.PreemptTimeout, rl); err != nil {
			if errors.Is(err, ErrTimeoutInit) {
				return err
			}
			perr.FailedEngines = perr.FailedEngines.With(engineID)
			perr.record(err)
		}
	}

	if perr.failed() {
		return perr
	}
	return nil
}
