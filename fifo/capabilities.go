package fifo

import "time"

// Registers is the addressed read/write capability of the GPU.
type Registers interface {
	Read(addr uint32) uint32
	Write(addr, value uint32)
}

// Platform tells the preempt path what kind of target it drives.
type Platform interface {
	// IsSilicon is false on emulators and simulators, where wall-clock
	// timeouts are not meaningful and no context-switch watchdog exists.
	IsSilicon() bool
}

// StaticPlatform is a Platform fixed at construction.
type StaticPlatform bool

// IsSilicon implements Platform.
func (p StaticPlatform) IsSilicon() bool { return bool(p) }

const (
	// Silicon is a real-hardware target.
	Silicon = StaticPlatform(true)
	// Simulation is an emulated or simulated target.
	Simulation = StaticPlatform(false)
)

// MutexToken identifies the owner of an acquired co-processor mutex.
type MutexToken uint32

// InvalidMutexToken is never handed out by an acquisition.
const InvalidMutexToken MutexToken = 0

// MutexIDFifo is the co-processor mutex slot guarding FIFO preempts.
const MutexIDFifo uint32 = 6

// CoprocMutex is a hardware mutex shared with a co-processor.
type CoprocMutex interface {
	Acquire(id uint32, timeout time.Duration) (MutexToken, error)
	Release(id uint32, token MutexToken) error
}

// NoopMutex is used when the co-processor mutex feature is off. Acquire
// succeeds with InvalidMutexToken, which the preempt path never releases.
type NoopMutex struct{}

// Acquire implements CoprocMutex.
func (NoopMutex) Acquire(uint32, time.Duration) (MutexToken, error) {
	return InvalidMutexToken, nil
}

// Release implements CoprocMutex.
func (NoopMutex) Release(uint32, MutexToken) error { return nil }

// Recovery is the reset path invoked when a preempt cannot be confirmed.
type Recovery interface {
	ResetEngines(mask Bitmask)
	EscalateTimeout(tsg *TSG)
}

// NoopRecovery drops every request. It backs configurations with the
// recovery feature disabled.
type NoopRecovery struct{}

// ResetEngines implements Recovery.
func (NoopRecovery) ResetEngines(Bitmask) {}

// EscalateTimeout implements Recovery.
func (NoopRecovery) EscalateTimeout(*TSG) {}
