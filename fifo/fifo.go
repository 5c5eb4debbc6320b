package fifo

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/preempt-sim/fifo/regs"
	"github.com/inference-sim/preempt-sim/fifo/trace"
)

// Log codes attached to every event as the "code" field.
const (
	CodeChannelPreemptNoop  = "channel_preempt_noop"
	CodeNothingToPreempt    = "nothing_to_preempt"
	CodePreemptTrigger      = "preempt_trigger"
	CodeRunlistPreempt      = "runlist_preempt"
	CodePreemptTimeout      = "preempt_timeout"
	CodeRetriesExhausted    = "preempt_retries_exhausted"
	CodeTimeoutInit         = "timeout_init_failed"
	CodeStallIntr           = "stall_intr_pending"
	CodePbdmaIntrCleared    = "pbdma_intr_cleared"
	CodeMutexUnavailable    = "mutex_unavailable"
	CodeMutexRelease        = "mutex_release_failed"
	CodePreemptFailed       = "preempt_failed"
	CodeRecoveryInline      = "recovery_inline"
	CodeEngineResetRequired = "engine_reset_required"
)

// Fifo is the device handle of the preempt subsystem. It owns the topology
// and the injected hardware capabilities; nothing is global.
type Fifo struct {
	poll     PollConfig
	regs     Registers
	clock    Clock
	platform Platform
	mutex    CoprocMutex
	recovery Recovery
	policy   RecoveryPolicy
	trace    *trace.PreemptTrace
	log      *logrus.Entry

	// schedMu serializes read-modify-write of the shared SchedDisable
	// register between runlists preempting concurrently.
	schedMu sync.Mutex

	runlists map[uint32]*Runlist
	tsgs     map[uint32]*TSG
	channels map[uint32]*Channel
}

// New builds a Fifo from a config. Disabled features are bound to no-op
// capabilities here, once.
func New(cfg Config) (*Fifo, error) {
	if cfg.Regs == nil {
		return nil, errors.New("fifo: registers are required")
	}
	if cfg.Platform == nil {
		return nil, errors.New("fifo: platform is required")
	}
	if err := cfg.Poll.Validate(); err != nil {
		return nil, fmt.Errorf("fifo: %w", err)
	}
	f := &Fifo{
		poll:     cfg.Poll,
		regs:     cfg.Regs,
		clock:    cfg.Clock,
		platform: cfg.Platform,
		mutex:    NoopMutex{},
		recovery: NoopRecovery{},
		policy:   cfg.Policy,
		trace:    cfg.Trace,
		log:      logrus.WithField("component", "fifo"),
		runlists: make(map[uint32]*Runlist),
		tsgs:     make(map[uint32]*TSG),
		channels: make(map[uint32]*Channel),
	}
	if f.clock == nil {
		f.clock = RealClock{}
	}
	if cfg.Features.CoprocMutex && cfg.Mutex != nil {
		f.mutex = cfg.Mutex
	}
	if cfg.Features.Recovery && cfg.Recovery != nil {
		f.recovery = cfg.Recovery
	}
	if f.policy == nil {
		f.policy = PolicyForPlatform(cfg.Platform)
	}
	return f, nil
}

// SetLogger replaces the log entry. The "component" field is kept.
func (f *Fifo) SetLogger(entry *logrus.Entry) {
	f.log = entry.WithField("component", "fifo")
}

// AddRunlist registers a runlist. Ids must fit in a Bitmask.
func (f *Fifo) AddRunlist(rl *Runlist) error {
	if rl.ID >= MaxUnits {
		return fmt.Errorf("runlist id %d out of range [0, %d)", rl.ID, MaxUnits)
	}
	if _, dup := f.runlists[rl.ID]; dup {
		return fmt.Errorf("runlist %d already registered", rl.ID)
	}
	if rl.ResetCauses == nil {
		rl.ResetCauses = make(map[uint32]ResetCause)
	}
	f.runlists[rl.ID] = rl
	return nil
}

// AddTSG registers a TSG. Its id must fit the register id field and its
// runlist must exist unless unassigned.
func (f *Fifo) AddTSG(tsg *TSG) error {
	if tsg.TSGID > regs.MaxID {
		return fmt.Errorf("tsg id %d out of range [0, %d]", tsg.TSGID, regs.MaxID)
	}
	if _, dup := f.tsgs[tsg.TSGID]; dup {
		return fmt.Errorf("tsg %d already registered", tsg.TSGID)
	}
	if tsg.RunlistID != InvalidRunlistID {
		if _, ok := f.runlists[tsg.RunlistID]; !ok {
			return fmt.Errorf("tsg %d: %w: runlist %d", tsg.TSGID, ErrUnknownID, tsg.RunlistID)
		}
	}
	f.tsgs[tsg.TSGID] = tsg
	return nil
}

// AddChannel registers a channel. Its TSG must exist unless unbound.
func (f *Fifo) AddChannel(ch *Channel) error {
	if _, dup := f.channels[ch.ChID]; dup {
		return fmt.Errorf("channel %d already registered", ch.ChID)
	}
	if ch.TSGID != InvalidTSGID {
		if _, ok := f.tsgs[ch.TSGID]; !ok {
			return fmt.Errorf("channel %d: %w: tsg %d", ch.ChID, ErrUnknownID, ch.TSGID)
		}
	}
	f.channels[ch.ChID] = ch
	return nil
}

// Runlist returns a registered runlist.
func (f *Fifo) Runlist(id uint32) (*Runlist, bool) {
	rl, ok := f.runlists[id]
	return rl, ok
}

// TSG returns a registered TSG.
func (f *Fifo) TSG(id uint32) (*TSG, bool) {
	tsg, ok := f.tsgs[id]
	return tsg, ok
}

// ChannelTSG returns the TSG a channel is bound to, or InvalidTSGID.
func (f *Fifo) ChannelTSG(chID uint32) uint32 {
	if ch, ok := f.channels[chID]; ok {
		return ch.TSGID
	}
	return InvalidTSGID
}

// RunlistIDs returns the registered runlist ids in ascending order.
func (f *Fifo) RunlistIDs() []uint32 {
	ids := make([]uint32, 0, len(f.runlists))
	for id := range f.runlists {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// resolve maps an identifier to its TSG and runlist. ErrInvalidTarget is
// returned for an unbound channel or an unassigned TSG.
func (f *Fifo) resolve(id Identifier) (*TSG, *Runlist, error) {
	var tsg *TSG
	switch id.Type {
	case IDTypeChannel:
		ch, ok := f.channels[id.Value]
		if !ok {
			return nil, nil, fmt.Errorf("%w: %v", ErrUnknownID, id)
		}
		if ch.TSGID == InvalidTSGID {
			return nil, nil, fmt.Errorf("%w: chid %d is not bound to a tsg", ErrInvalidTarget, ch.ChID)
		}
		tsg = f.tsgs[ch.TSGID]
	case IDTypeTSG:
		t, ok := f.tsgs[id.Value]
		if !ok {
			return nil, nil, fmt.Errorf("%w: %v", ErrUnknownID, id)
		}
		tsg = t
	default:
		return nil, nil, fmt.Errorf("%w: %v", ErrUnknownID, id)
	}
	if tsg.RunlistID == InvalidRunlistID {
		return tsg, nil, fmt.Errorf("%w: tsgid %d has no runlist", ErrInvalidTarget, tsg.TSGID)
	}
	rl, ok := f.runlists[tsg.RunlistID]
	if !ok {
		return tsg, nil, fmt.Errorf("%w: tsgid %d has no runlist", ErrInvalidTarget, tsg.TSGID)
	}
	return tsg, rl, nil
}
