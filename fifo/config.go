package fifo

import (
	"fmt"
	"time"

	"github.com/inference-sim/preempt-sim/fifo/trace"
)

// Default poll tuning.
const (
	DefaultPreemptTimeout    = 3000 * time.Millisecond
	DefaultPollDelayMin      = 20 * time.Microsecond
	DefaultPollDelayMax      = 2 * time.Millisecond
	DefaultPreSiliconRetries = 200000
	DefaultMutexTimeout      = 40 * time.Millisecond
)

// PollConfig groups the bounds of every preempt poll loop.
type PollConfig struct {
	PreemptTimeout    time.Duration `yaml:"preempt_timeout" toml:"preempt_timeout"`         // per-unit poll deadline
	PollDelayMin      time.Duration `yaml:"poll_delay_min" toml:"poll_delay_min"`           // first backoff sleep
	PollDelayMax      time.Duration `yaml:"poll_delay_max" toml:"poll_delay_max"`           // backoff cap
	PreSiliconRetries int           `yaml:"pre_silicon_retries" toml:"pre_silicon_retries"` // iteration ceiling on non-silicon targets
	MutexTimeout      time.Duration `yaml:"mutex_timeout" toml:"mutex_timeout"`             // co-processor mutex acquisition bound
}

// DefaultPollConfig returns the stock tuning.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		PreemptTimeout:    DefaultPreemptTimeout,
		PollDelayMin:      DefaultPollDelayMin,
		PollDelayMax:      DefaultPollDelayMax,
		PreSiliconRetries: DefaultPreSiliconRetries,
		MutexTimeout:      DefaultMutexTimeout,
	}
}

// Validate checks ranges. A zero PreemptTimeout is left for NewTimeout to
// reject, so that misconfiguration surfaces as ErrTimeoutInit at poll time.
func (c PollConfig) Validate() error {
	if c.PreemptTimeout < 0 {
		return fmt.Errorf("preempt_timeout must be non-negative, got %v", c.PreemptTimeout)
	}
	if c.PollDelayMin <= 0 {
		return fmt.Errorf("poll_delay_min must be positive, got %v", c.PollDelayMin)
	}
	if c.PollDelayMax < c.PollDelayMin {
		return fmt.Errorf("poll_delay_max (%v) must be >= poll_delay_min (%v)", c.PollDelayMax, c.PollDelayMin)
	}
	if c.PreSiliconRetries <= 0 {
		return fmt.Errorf("pre_silicon_retries must be positive, got %d", c.PreSiliconRetries)
	}
	if c.MutexTimeout < 0 {
		return fmt.Errorf("mutex_timeout must be non-negative, got %v", c.MutexTimeout)
	}
	return nil
}

// Features selects optional subsystems. Disabled features are replaced by
// no-op capabilities when the Fifo is built.
type Features struct {
	CoprocMutex bool `yaml:"coproc_mutex" toml:"coproc_mutex"`
	Recovery    bool `yaml:"recovery" toml:"recovery"`
}

// Config groups everything New needs besides the topology.
type Config struct {
	Poll     PollConfig
	Features Features
	Platform Platform
	Regs     Registers
	Clock    Clock       // nil = RealClock
	Mutex    CoprocMutex // ignored unless Features.CoprocMutex
	Recovery Recovery    // ignored unless Features.Recovery
	// Policy overrides the recovery policy picked from Platform.
	Policy RecoveryPolicy
	Trace  *trace.PreemptTrace // nil = no tracing
}
