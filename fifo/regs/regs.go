// Package regs describes the FIFO register layout the preempt logic touches:
// addresses, field encoders and field decoders. It holds no state.
package regs

// NumBits is the width of the per-unit registers (SchedDisable,
// RunlistPreempt, McIntrStall): one bit per runlist or engine.
const NumBits = 32

// MaxID is the largest id the Preempt register and the status id fields
// can carry.
const MaxID uint32 = 0x00000fff

// Register addresses.
const (
	// SchedDisable has one bit per runlist; a set bit stops the scheduler
	// from admitting new work from that runlist.
	SchedDisable uint32 = 0x00002630
	// Preempt takes a TSG id and a type field; writing it requests a preempt.
	Preempt uint32 = 0x00002634
	// RunlistPreempt has one bit per runlist; set bits preempt whole runlists.
	RunlistPreempt uint32 = 0x00002638
	// McIntrStall is the stalling interrupt summary, one bit per engine.
	McIntrStall uint32 = 0x00000100

	engineStatusBase uint32 = 0x00002640
	engineStatusStep uint32 = 0x00000008
	pbdmaStatusBase  uint32 = 0x00003080
	pbdmaStatusStep  uint32 = 0x00000004
	pbdmaIntrBase    uint32 = 0x00040108
	pbdmaIntrStep    uint32 = 0x00002000
)

// EngineStatus returns the status register of an engine.
func EngineStatus(engineID uint32) uint32 {
	return engineStatusBase + engineID*engineStatusStep
}

// PbdmaStatus returns the status register of a PBDMA.
func PbdmaStatus(pbdmaID uint32) uint32 {
	return pbdmaStatusBase + pbdmaID*pbdmaStatusStep
}

// PbdmaIntr returns the write-1-to-clear interrupt register of a PBDMA.
func PbdmaIntr(pbdmaID uint32) uint32 {
	return pbdmaIntrBase + pbdmaID*pbdmaIntrStep
}

// Preempt register fields.
const (
	preemptIDMask   uint32 = MaxID
	PreemptTypeTSG  uint32 = 1 << 24
	PreemptTypeMask uint32 = 3 << 24
)

// PreemptID encodes a TSG id into the Preempt register id field.
func PreemptID(id uint32) uint32 {
	return id & preemptIDMask
}

// PreemptValue is the full Preempt register value for a TSG preempt request.
func PreemptValue(tsgID uint32) uint32 {
	return PreemptID(tsgID) | PreemptTypeTSG
}

// RunlistBit is the RunlistPreempt (and SchedDisable) bit for a runlist.
func RunlistBit(runlistID uint32) uint32 {
	if runlistID >= NumBits {
		return 0
	}
	return 1 << runlistID
}

// Status word layout shared by engine and PBDMA status registers:
//
//	[11:0]  current id
//	[12]    current id type (1 = TSG)
//	[15:13] context/channel switch status
//	[27:16] next id
//	[28]    next id type
//	[31]    engine busy (engine status only)
const (
	statusIDShift     = 0
	statusIDMask      = MaxID
	statusPhaseShift  = 13
	statusPhaseMask   = 0x7
	statusNextIDShift = 16
	statusNextIDMask  = MaxID
	statusIDTypeTSG   = 1 << 12
	statusNextTypeTSG = 1 << 28
	statusEngineBusy  = 1 << 31
)

// Context/channel switch status values.
const (
	PhaseInvalid uint32 = 0
	PhaseValid   uint32 = 1
	PhaseLoad    uint32 = 5
	PhaseSave    uint32 = 6
	PhaseSwitch  uint32 = 7
)

// StatusID decodes the current id.
func StatusID(v uint32) uint32 { return (v >> statusIDShift) & statusIDMask }

// StatusNextID decodes the next id.
func StatusNextID(v uint32) uint32 { return (v >> statusNextIDShift) & statusNextIDMask }

// StatusPhase decodes the switch status.
func StatusPhase(v uint32) uint32 { return (v >> statusPhaseShift) & statusPhaseMask }

// StatusBusy decodes the engine busy bit.
func StatusBusy(v uint32) bool { return v&statusEngineBusy != 0 }

// EncodeStatus builds a status word. Both ids are tagged as TSG ids, which is
// the only id type the preempt path compares against.
func EncodeStatus(phase, id, nextID uint32) uint32 {
	v := (phase&statusPhaseMask)<<statusPhaseShift |
		(id&statusIDMask)<<statusIDShift |
		(nextID&statusNextIDMask)<<statusNextIDShift |
		statusIDTypeTSG | statusNextTypeTSG
	if phase != PhaseInvalid {
		v |= statusEngineBusy
	}
	return v
}
