package fifo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/preempt-sim/fifo/regs"
)

// mapRegs is a minimal Registers for tests inside the package, where simhw
// cannot be imported. Writes are logged; PbdmaIntr registers clear on write.
type mapRegs struct {
	values map[uint32]uint32
	writes []uint32
}

func newMapRegs() *mapRegs {
	return &mapRegs{values: make(map[uint32]uint32)}
}

func (r *mapRegs) Read(addr uint32) uint32 { return r.values[addr] }

func (r *mapRegs) Write(addr, value uint32) {
	r.writes = append(r.writes, addr)
	for id := uint32(0); id < MaxUnits; id++ {
		if addr == regs.PbdmaIntr(id) {
			r.values[addr] &^= value
			return
		}
	}
	r.values[addr] = value
}

func newTestFifo(t *testing.T, r Registers) *Fifo {
	t.Helper()
	f, err := New(Config{Poll: DefaultPollConfig(), Platform: Simulation, Regs: r, Clock: NewVirtualClock()})
	require.NoError(t, err)
	return f
}

func TestParsePhase_RoundTripsNames(t *testing.T) {
	for _, p := range []Phase{PhaseInvalid, PhaseValid, PhaseLoad, PhaseSave, PhaseSwitch} {
		got, err := ParsePhase(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	_, err := ParsePhase("saving")
	assert.Error(t, err)
	assert.Equal(t, "phase(3)", Phase(3).String())
}

func TestCheckTSGOnPbdma_UndefinedPhaseIsBusy(t *testing.T) {
	// GIVEN a switch status value with no defined meaning
	st := PbdmaStatus{Phase: Phase(2), ID: 9, NextID: 9}

	// THEN the PBDMA is not considered evicted
	assert.False(t, CheckTSGOnPbdma(7, st))
}

func TestCheckEngine_UndefinedPhaseIsDoneWithoutReset(t *testing.T) {
	done, reset := CheckEngine(7, EngineStatus{Phase: Phase(3), ID: 7, IntrPending: true})
	assert.True(t, done)
	assert.False(t, reset)
}

func TestReadPbdmaStatus_ClearsPendingIntr(t *testing.T) {
	// GIVEN a PBDMA with interrupt bits pending and a valid status
	r := newMapRegs()
	r.values[regs.PbdmaIntr(2)] = 0x50
	r.values[regs.PbdmaStatus(2)] = regs.EncodeStatus(regs.PhaseLoad, 4, 7)
	f := newTestFifo(t, r)

	// WHEN it is sampled
	st := f.ReadPbdmaStatus(2)

	// THEN the status decodes and the interrupt is cleared by writing it back
	assert.Equal(t, PhaseLoad, st.Phase)
	assert.Equal(t, uint32(4), st.ID)
	assert.Equal(t, uint32(7), st.NextID)
	assert.Equal(t, uint32(0), r.values[regs.PbdmaIntr(2)])
	assert.Equal(t, []uint32{regs.PbdmaIntr(2)}, r.writes)

	// AND a second sample with nothing pending writes nothing
	f.ReadPbdmaStatus(2)
	assert.Len(t, r.writes, 1)
}

func TestReadEngineStatus_ReportsStallIntrPerEngine(t *testing.T) {
	r := newMapRegs()
	r.values[regs.EngineStatus(1)] = regs.EncodeStatus(regs.PhaseValid, 7, 0)
	r.values[regs.McIntrStall] = 1 << 1
	f := newTestFifo(t, r)

	st := f.ReadEngineStatus(1)
	assert.Equal(t, PhaseValid, st.Phase)
	assert.Equal(t, uint32(7), st.ID)
	assert.True(t, st.IntrPending)
	assert.True(t, regs.StatusBusy(st.Raw))

	assert.False(t, f.ReadEngineStatus(0).IntrPending)
	assert.False(t, f.IsStallIntrPending(MaxUnits))
}
