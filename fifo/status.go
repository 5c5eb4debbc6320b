package fifo

import (
	"fmt"

	"github.com/inference-sim/preempt-sim/fifo/regs"
)

// Phase is a context-switch (engine) or channel-switch (PBDMA) status.
type Phase uint32

const (
	PhaseInvalid = Phase(regs.PhaseInvalid)
	PhaseValid   = Phase(regs.PhaseValid)
	PhaseLoad    = Phase(regs.PhaseLoad)
	PhaseSave    = Phase(regs.PhaseSave)
	PhaseSwitch  = Phase(regs.PhaseSwitch)
)

var phaseNames = map[Phase]string{
	PhaseInvalid: "invalid",
	PhaseValid:   "valid",
	PhaseLoad:    "load",
	PhaseSave:    "save",
	PhaseSwitch:  "switch",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", uint32(p))
}

// ParsePhase maps a phase name back to its value.
func ParsePhase(name string) (Phase, error) {
	for p, n := range phaseNames {
		if n == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown phase %q", name)
}

// PbdmaStatus is one sample of a PBDMA status register.
type PbdmaStatus struct {
	Phase  Phase
	ID     uint32
	NextID uint32
	Raw    uint32
}

// EngineStatus is one sample of an engine status register plus the engine's
// stalling interrupt line.
type EngineStatus struct {
	Phase       Phase
	ID          uint32
	NextID      uint32
	IntrPending bool
	Raw         uint32
}

func decodePbdmaStatus(raw uint32) PbdmaStatus {
	return PbdmaStatus{
		Phase:  Phase(regs.StatusPhase(raw)),
		ID:     regs.StatusID(raw),
		NextID: regs.StatusNextID(raw),
		Raw:    raw,
	}
}

// ReadPbdmaStatus samples a PBDMA. Pending PBDMA interrupts are cleared as
// part of the read: a PBDMA with a stalling interrupt will not save out on
// a preempt until the bit is cleared, and a deterministic fault re-asserts
// once the channel is reloaded.
func (f *Fifo) ReadPbdmaStatus(pbdmaID uint32) PbdmaStatus {
	if intr := f.regs.Read(regs.PbdmaIntr(pbdmaID)); intr != 0 {
		f.regs.Write(regs.PbdmaIntr(pbdmaID), intr)
		f.log.WithField("code", CodePbdmaIntrCleared).
			Debugf("pbdma %d: cleared intr 0x%08x", pbdmaID, intr)
	}
	return decodePbdmaStatus(f.regs.Read(regs.PbdmaStatus(pbdmaID)))
}

// IsStallIntrPending reports whether the engine's stalling interrupt is set.
func (f *Fifo) IsStallIntrPending(engineID uint32) bool {
	return Bit(engineID) != 0 && f.regs.Read(regs.McIntrStall)&uint32(Bit(engineID)) != 0
}

// ReadEngineStatus samples an engine and its stalling interrupt.
func (f *Fifo) ReadEngineStatus(engineID uint32) EngineStatus {
	raw := f.regs.Read(regs.EngineStatus(engineID))
	return EngineStatus{
		Phase:       Phase(regs.StatusPhase(raw)),
		ID:          regs.StatusID(raw),
		NextID:      regs.StatusNextID(raw),
		IntrPending: f.IsStallIntrPending(engineID),
		Raw:         raw,
	}
}

// CheckTSGOnPbdma reports whether tsgID has left the PBDMA.
func CheckTSGOnPbdma(tsgID uint32, st PbdmaStatus) bool {
	switch st.Phase {
	case PhaseValid, PhaseSave:
		return st.ID != tsgID
	case PhaseLoad:
		return st.NextID != tsgID
	case PhaseSwitch:
		return st.ID != tsgID && st.NextID != tsgID
	case PhaseInvalid:
		return true
	default:
		return false
	}
}

// CheckEngine reports whether polling of the engine is finished for tsgID,
// and whether the engine must be reset. An interrupt forces a reset only
// while tsgID is the context occupying the engine; an engine busy with
// something else is never reset on the target's behalf.
func CheckEngine(tsgID uint32, st EngineStatus) (done, reset bool) {
	switch st.Phase {
	case PhaseSwitch:
		// Save has not started. An interrupt means it never will.
		if st.IntrPending {
			return true, true
		}
		return false, false
	case PhaseValid, PhaseSave:
		return occupiedCheck(st.ID == tsgID, st.IntrPending)
	case PhaseLoad:
		return occupiedCheck(st.NextID == tsgID, st.IntrPending)
	default:
		return true, false
	}
}

func occupiedCheck(occupied, intr bool) (done, reset bool) {
	if !occupied {
		return true, false
	}
	if intr {
		return true, true
	}
	return false, false
}
