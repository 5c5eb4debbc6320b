// Package fifo implements TSG preemption and runlist control for a GPU
// command-processing front end.
//
// # Reading Guide
//
// Start with these three files:
//   - preempt.go: the Preempt orchestration (lock, sched disable, mutex, trigger, poll, recovery)
//   - poll.go: the bounded poll loops for PBDMAs and engines, and IsPreemptPending
//   - status.go: status register decoding and the eviction decision tables
//
// # Architecture
//
// The package talks to hardware only through capabilities passed in Config:
//   - Registers: addressed 32-bit reads and writes (layout in fifo/regs)
//   - Clock: monotonic time and sleep (RealClock, VirtualClock)
//   - Platform: silicon or simulation
//   - CoprocMutex: the mutex shared with the co-processor (fifo/pmu)
//   - Recovery: engine reset and TSG timeout escalation
//
// Optional subsystems are selected by Features at New time and replaced by
// no-op capabilities when off. What happens after a failed preempt is a
// RecoveryPolicy: DeferToWatchdog on silicon, RecoverInline in simulation.
//
// Sub-packages:
//   - fifo/regs/: register addresses and field codecs
//   - fifo/pmu/: simulated co-processor mutex
//   - fifo/simhw/: scripted register file and recovery recorder
//   - fifo/trace/: poll and preempt trace records
//   - fifo/scenario/: scenario files and the runner behind the CLI
//
// # Locking
//
// At most one preempt runs per runlist, under Runlist.Lock. Runlists are
// independent and may be preempted from different goroutines. The lock is
// not reentrant. MassPreemptForRecovery expects the caller to hold the locks
// (LockRunlists).
package fifo
