package fifo

import (
	"github.com/inference-sim/preempt-sim/fifo/regs"
)

// Trigger issues the hardware preempt request for id. Only TSGs are
// preempted by hardware; a channel request is a no-op.
func (f *Fifo) Trigger(id Identifier) {
	if id.Type != IDTypeTSG {
		f.log.WithField("code", CodeChannelPreemptNoop).Infof("%v: channel preempt is noop", id)
		return
	}
	f.log.WithField("code", CodePreemptTrigger).Debugf("preempt tsgid %d", id.Value)
	f.regs.Write(regs.Preempt, regs.PreemptValue(id.Value))
}

// IssueRunlistPreempt sets the preempt bit of every runlist in mask with a
// single register write. Nothing waits for the preempt to land.
func (f *Fifo) IssueRunlistPreempt(runlists Bitmask) {
	val := f.regs.Read(regs.RunlistPreempt)
	for id := range runlists.All() {
		val |= regs.RunlistBit(id)
	}
	f.regs.Write(regs.RunlistPreempt, val)
	f.log.WithField("code", CodeRunlistPreempt).Debugf("runlist preempt mask %v", runlists)
}

// disableSched stops the scheduler from re-admitting work from the TSG's
// runlist while it is being preempted.
func (f *Fifo) disableSched(rl *Runlist) {
	f.schedMu.Lock()
	defer f.schedMu.Unlock()
	f.regs.Write(regs.SchedDisable, f.regs.Read(regs.SchedDisable)|regs.RunlistBit(rl.ID))
}

func (f *Fifo) enableSched(rl *Runlist) {
	f.schedMu.Lock()
	defer f.schedMu.Unlock()
	f.regs.Write(regs.SchedDisable, f.regs.Read(regs.SchedDisable)&^regs.RunlistBit(rl.ID))
}

// SchedDisabled reports whether scheduling is disabled for the runlist.
func (f *Fifo) SchedDisabled(runlistID uint32) bool {
	return f.regs.Read(regs.SchedDisable)&regs.RunlistBit(runlistID) != 0
}

// SetRunlistsSched enables or disables scheduling for every runlist in mask
// with one register write. Teardown uses it before MassPreemptForRecovery.
func (f *Fifo) SetRunlistsSched(mask Bitmask, enabled bool) {
	f.schedMu.Lock()
	defer f.schedMu.Unlock()
	var bits uint32
	for id := range mask.All() {
		bits |= regs.RunlistBit(id)
	}
	val := f.regs.Read(regs.SchedDisable)
	if enabled {
		val &^= bits
	} else {
		val |= bits
	}
	f.regs.Write(regs.SchedDisable, val)
}
