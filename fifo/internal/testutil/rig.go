package testutil

import (
	"testing"

	"github.com/inference-sim/preempt-sim/fifo"
	"github.com/inference-sim/preempt-sim/fifo/pmu"
	"github.com/inference-sim/preempt-sim/fifo/simhw"
	"github.com/inference-sim/preempt-sim/fifo/trace"
)

// Rig is a Fifo wired to simulated registers, a virtual clock, a PMU mutex
// table and a recovery recorder. Tracing records every poll.
type Rig struct {
	Fifo     *fifo.Fifo
	Regs     *simhw.Registers
	Clock    *fifo.VirtualClock
	Mutex    *pmu.Mutex
	Recovery *simhw.Recorder
	Trace    *trace.PreemptTrace
}

// NewRig builds a Rig for platform with both optional features enabled and
// the default poll tuning. tune, if non-nil, adjusts the config before the
// Fifo is built.
func NewRig(t testing.TB, platform fifo.Platform, tune func(*fifo.Config)) *Rig {
	t.Helper()

	clock := fifo.NewVirtualClock()
	r := &Rig{
		Regs:     simhw.NewRegisters(),
		Clock:    clock,
		Mutex:    pmu.New(clock),
		Recovery: simhw.NewRecorder(),
		Trace:    trace.NewPreemptTrace(trace.TraceLevelPolls),
	}
	cfg := fifo.Config{
		Poll:     fifo.DefaultPollConfig(),
		Features: fifo.Features{CoprocMutex: true, Recovery: true},
		Platform: platform,
		Regs:     r.Regs,
		Clock:    clock,
		Mutex:    r.Mutex,
		Recovery: r.Recovery,
		Trace:    r.Trace,
	}
	if tune != nil {
		tune(&cfg)
	}
	f, err := fifo.New(cfg)
	if err != nil {
		t.Fatalf("fifo.New: %v", err)
	}
	r.Fifo = f
	return r
}

// AddRunlist registers a runlist and returns it.
func (r *Rig) AddRunlist(t testing.TB, id uint32, pbdmas, engines fifo.Bitmask) *fifo.Runlist {
	t.Helper()
	rl := fifo.NewRunlist(id, pbdmas, engines)
	if err := r.Fifo.AddRunlist(rl); err != nil {
		t.Fatalf("AddRunlist(%d): %v", id, err)
	}
	return rl
}

// AddTSG registers a TSG on runlistID (InvalidRunlistID for unassigned).
func (r *Rig) AddTSG(t testing.TB, tsgID, runlistID uint32) {
	t.Helper()
	if err := r.Fifo.AddTSG(&fifo.TSG{TSGID: tsgID, RunlistID: runlistID}); err != nil {
		t.Fatalf("AddTSG(%d): %v", tsgID, err)
	}
}

// AddChannel registers a channel bound to tsgID (InvalidTSGID for unbound).
func (r *Rig) AddChannel(t testing.TB, chID, tsgID uint32) {
	t.Helper()
	if err := r.Fifo.AddChannel(&fifo.Channel{ChID: chID, TSGID: tsgID}); err != nil {
		t.Fatalf("AddChannel(%d): %v", chID, err)
	}
}

// Valid is a status sample with the switch status valid and current id id.
func Valid(id uint32) simhw.Status {
	return simhw.Status{Phase: uint32(fifo.PhaseValid), ID: id}
}

// Invalid is an idle status sample.
func Invalid() simhw.Status {
	return simhw.Status{Phase: uint32(fifo.PhaseInvalid)}
}
