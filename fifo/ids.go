package fifo

import (
	"fmt"
	"sync"
)

// IDType tags an Identifier.
type IDType int

const (
	IDTypeChannel IDType = iota
	IDTypeTSG
)

func (t IDType) String() string {
	switch t {
	case IDTypeChannel:
		return "channel"
	case IDTypeTSG:
		return "tsg"
	default:
		return fmt.Sprintf("IDType(%d)", int(t))
	}
}

// Identifier names the target of a preempt: a channel or a TSG.
type Identifier struct {
	Type  IDType
	Value uint32
}

// ChannelID returns the Identifier of channel id.
func ChannelID(id uint32) Identifier { return Identifier{Type: IDTypeChannel, Value: id} }

// TSGID returns the Identifier of TSG id.
func TSGID(id uint32) Identifier { return Identifier{Type: IDTypeTSG, Value: id} }

func (id Identifier) String() string {
	return fmt.Sprintf("%s:%d", id.Type, id.Value)
}

// InvalidRunlistID marks a TSG that is not assigned to any runlist.
const InvalidRunlistID = ^uint32(0)

// InvalidTSGID marks a channel that is not bound to any TSG.
const InvalidTSGID = ^uint32(0)

// Channel is a command stream. Preempting it preempts its TSG.
type Channel struct {
	ChID  uint32
	TSGID uint32 // InvalidTSGID when unbound
}

// TSG is a Time-Slice Group, the unit the hardware schedules and preempts.
type TSG struct {
	TSGID     uint32
	RunlistID uint32 // InvalidRunlistID when unassigned
}

// ResetCause records why an engine was marked for reset.
type ResetCause string

const (
	// ResetCauseInterrupt: a stalling interrupt was pending while the
	// target occupied the engine; save cannot complete.
	ResetCauseInterrupt ResetCause = "interrupt"
	// ResetCauseTimeout: the engine never confirmed eviction.
	ResetCauseTimeout ResetCause = "timeout"
	// ResetCauseRecovery: the runlist was mass-preempted for teardown.
	ResetCauseRecovery ResetCause = "recovery"
)

// Runlist is the scheduler list feeding a set of PBDMAs and engines. It is
// also the lock granularity of preemption.
type Runlist struct {
	ID         uint32
	PbdmaMask  Bitmask
	EngineMask Bitmask

	mu sync.Mutex

	// ResetEngBitmask holds the engines the last preempt attempt could not
	// evict. Written only with the runlist lock held.
	ResetEngBitmask Bitmask
	// ResetCauses maps each engine in ResetEngBitmask to the first reason it
	// was marked.
	ResetCauses map[uint32]ResetCause
}

// NewRunlist returns a runlist serving the given PBDMAs and engines.
func NewRunlist(id uint32, pbdmas, engines Bitmask) *Runlist {
	return &Runlist{
		ID:          id,
		PbdmaMask:   pbdmas,
		EngineMask:  engines,
		ResetCauses: make(map[uint32]ResetCause),
	}
}

// Lock takes the runlist lock. It is not reentrant.
func (r *Runlist) Lock() { r.mu.Lock() }

// Unlock releases the runlist lock.
func (r *Runlist) Unlock() { r.mu.Unlock() }

func (r *Runlist) clearReset() {
	r.ResetEngBitmask = 0
	clear(r.ResetCauses)
}

func (r *Runlist) markReset(engineID uint32, cause ResetCause) {
	if !r.ResetEngBitmask.Has(engineID) {
		r.ResetCauses[engineID] = cause
	}
	r.ResetEngBitmask = r.ResetEngBitmask.With(engineID)
}
