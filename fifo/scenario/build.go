package scenario

import (
	"fmt"

	"github.com/inference-sim/preempt-sim/fifo"
	"github.com/inference-sim/preempt-sim/fifo/pmu"
	"github.com/inference-sim/preempt-sim/fifo/simhw"
	"github.com/inference-sim/preempt-sim/fifo/trace"
)

// Target is a Fifo wired to simulated hardware, with handles on every
// simulated collaborator for inspection after a run.
type Target struct {
	Fifo     *fifo.Fifo
	Regs     *simhw.Registers
	Clock    fifo.Clock
	Mutex    *pmu.Mutex
	Recovery *simhw.Recorder
	Trace    *trace.PreemptTrace
}

// BuildOptions tune Build.
type BuildOptions struct {
	// RealClock sleeps on the wall clock instead of a VirtualClock.
	RealClock bool
	// TraceLevel overrides the scenario's trace level when non-empty.
	TraceLevel trace.TraceLevel
}

// Build validates sc and assembles a Target from it.
func Build(sc *Scenario, opts BuildOptions) (*Target, error) {
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	var clock fifo.Clock = fifo.NewVirtualClock()
	if opts.RealClock {
		clock = fifo.RealClock{}
	}
	level := trace.TraceLevel(sc.Trace)
	if opts.TraceLevel != "" {
		level = opts.TraceLevel
	}

	t := &Target{
		Regs:     simhw.NewRegisters(),
		Clock:    clock,
		Mutex:    pmu.New(clock),
		Recovery: simhw.NewRecorder(),
		Trace:    trace.NewPreemptTrace(level),
	}
	if err := scriptHardware(t, sc.Hardware); err != nil {
		return nil, err
	}

	platform := fifo.Simulation
	if sc.IsSilicon() {
		platform = fifo.Silicon
	}
	f, err := fifo.New(fifo.Config{
		Poll:     sc.PollConfig(),
		Features: sc.Features,
		Platform: platform,
		Regs:     t.Regs,
		Clock:    clock,
		Mutex:    t.Mutex,
		Recovery: t.Recovery,
		Trace:    t.Trace,
	})
	if err != nil {
		return nil, err
	}
	if err := addTopology(f, sc); err != nil {
		return nil, err
	}
	t.Fifo = f
	return t, nil
}

func addTopology(f *fifo.Fifo, sc *Scenario) error {
	for _, spec := range sc.Runlists {
		id, err := unitID("runlist", spec.ID)
		if err != nil {
			return err
		}
		pbdmas, err := maskOf("pbdma", spec.Pbdmas)
		if err != nil {
			return err
		}
		engines, err := maskOf("engine", spec.Engines)
		if err != nil {
			return err
		}
		if err := f.AddRunlist(fifo.NewRunlist(id, pbdmas, engines)); err != nil {
			return err
		}
	}
	for _, spec := range sc.TSGs {
		id, err := tsgID("tsg", spec.ID)
		if err != nil {
			return err
		}
		runlist := fifo.InvalidRunlistID
		if spec.Runlist != nil {
			if runlist, err = unitID("runlist", *spec.Runlist); err != nil {
				return err
			}
		}
		if err := f.AddTSG(&fifo.TSG{TSGID: id, RunlistID: runlist}); err != nil {
			return err
		}
	}
	for _, spec := range sc.Channels {
		id, err := toU32("channel", spec.ID)
		if err != nil {
			return err
		}
		tsg := fifo.InvalidTSGID
		if spec.TSG != nil {
			if tsg, err = tsgID("tsg", *spec.TSG); err != nil {
				return err
			}
		}
		if err := f.AddChannel(&fifo.Channel{ChID: id, TSGID: tsg}); err != nil {
			return err
		}
	}
	return nil
}

func scriptHardware(t *Target, hw HardwareSpec) error {
	for _, u := range hw.Pbdmas {
		id, err := unitID("pbdma", u.ID)
		if err != nil {
			return err
		}
		samples, err := toSamples(u.Samples)
		if err != nil {
			return fmt.Errorf("pbdma %d: %w", id, err)
		}
		t.Regs.ScriptPbdma(id, samples...)
		if u.Intr != 0 {
			t.Regs.RaisePbdmaIntr(id, u.Intr)
		}
	}
	for _, u := range hw.Engines {
		id, err := unitID("engine", u.ID)
		if err != nil {
			return err
		}
		samples, err := toSamples(u.Samples)
		if err != nil {
			return fmt.Errorf("engine %d: %w", id, err)
		}
		t.Regs.ScriptEngine(id, samples...)
		if u.StallIntr {
			t.Regs.RaiseStallIntr(id)
		}
	}
	if hw.CoprocHoldsMutex {
		t.Mutex.HoldForCoproc(fifo.MutexIDFifo)
	}
	return nil
}

func toSamples(specs []StatusSpec) ([]simhw.Status, error) {
	out := make([]simhw.Status, 0, len(specs))
	for _, s := range specs {
		phase, err := fifo.ParsePhase(s.Phase)
		if err != nil {
			return nil, err
		}
		id, err := tsgID("status", s.ID)
		if err != nil {
			return nil, err
		}
		next, err := tsgID("status next", s.NextID)
		if err != nil {
			return nil, err
		}
		out = append(out, simhw.Status{Phase: uint32(phase), ID: id, NextID: next})
	}
	return out, nil
}
