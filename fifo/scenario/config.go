// Package scenario loads scenario files describing a simulated FIFO target
// (topology, scripted hardware, ordered preempt steps) and runs them.
package scenario

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"fortio.org/safecast"
	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/inference-sim/preempt-sim/fifo"
	"github.com/inference-sim/preempt-sim/fifo/regs"
	"github.com/inference-sim/preempt-sim/fifo/trace"
)

// Scenario is the full scenario file structure.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type Scenario struct {
	Name     string        `yaml:"name" toml:"name"`
	Platform string        `yaml:"platform" toml:"platform"` // "silicon" or "simulation" (default)
	Features fifo.Features `yaml:"features" toml:"features"`
	Poll     PollSpec      `yaml:"poll" toml:"poll"`
	Trace    string        `yaml:"trace" toml:"trace"` // trace level, see trace.TraceLevel
	Runlists []RunlistSpec `yaml:"runlists" toml:"runlists"`
	TSGs     []TSGSpec     `yaml:"tsgs" toml:"tsgs"`
	Channels []ChannelSpec `yaml:"channels" toml:"channels"`
	Hardware HardwareSpec  `yaml:"hardware" toml:"hardware"`
	Steps    []Step        `yaml:"steps" toml:"steps"`
}

// PollSpec overrides fifo.DefaultPollConfig. Nil fields keep the default.
type PollSpec struct {
	PreemptTimeout    *time.Duration `yaml:"preempt_timeout" toml:"preempt_timeout"`
	PollDelayMin      *time.Duration `yaml:"poll_delay_min" toml:"poll_delay_min"`
	PollDelayMax      *time.Duration `yaml:"poll_delay_max" toml:"poll_delay_max"`
	PreSiliconRetries *int           `yaml:"pre_silicon_retries" toml:"pre_silicon_retries"`
	MutexTimeout      *time.Duration `yaml:"mutex_timeout" toml:"mutex_timeout"`
}

// RunlistSpec describes one runlist and the units it serves.
type RunlistSpec struct {
	ID      int   `yaml:"id" toml:"id"`
	Pbdmas  []int `yaml:"pbdmas" toml:"pbdmas"`
	Engines []int `yaml:"engines" toml:"engines"`
}

// TSGSpec describes a TSG. A nil Runlist leaves it unassigned.
type TSGSpec struct {
	ID      int  `yaml:"id" toml:"id"`
	Runlist *int `yaml:"runlist" toml:"runlist"`
}

// ChannelSpec describes a channel. A nil TSG leaves it unbound.
type ChannelSpec struct {
	ID  int  `yaml:"id" toml:"id"`
	TSG *int `yaml:"tsg" toml:"tsg"`
}

// HardwareSpec scripts the simulated registers.
type HardwareSpec struct {
	Pbdmas []UnitScript `yaml:"pbdmas" toml:"pbdmas"`
	// Engines list scripted engine samples. StallIntr raises the engine's
	// stalling interrupt for the whole run.
	Engines []UnitScript `yaml:"engines" toml:"engines"`
	// CoprocHoldsMutex makes the co-processor own the FIFO mutex, so every
	// acquisition times out.
	CoprocHoldsMutex bool `yaml:"coproc_holds_mutex" toml:"coproc_holds_mutex"`
}

// UnitScript is the sample sequence of one PBDMA or engine; the last sample repeats.
type UnitScript struct {
	ID        int          `yaml:"id" toml:"id"`
	Samples   []StatusSpec `yaml:"samples" toml:"samples"`
	Intr      uint32       `yaml:"intr" toml:"intr"` // PBDMA interrupt bits pending at start
	StallIntr bool         `yaml:"stall_intr" toml:"stall_intr"`
}

// StatusSpec is one status sample.
type StatusSpec struct {
	Phase  string `yaml:"phase" toml:"phase"`
	ID     int    `yaml:"id" toml:"id"`
	NextID int    `yaml:"next_id" toml:"next_id"`
}

// Expectations for Step.Expect.
const (
	ExpectAny  = ""
	ExpectOK   = "ok"
	ExpectFail = "fail"
)

// Step is one scenario action. Exactly one of Preempt and MassPreempt is set.
type Step struct {
	Preempt     string `yaml:"preempt" toml:"preempt"`           // "tsg:<id>" or "channel:<id>"
	MassPreempt []int  `yaml:"mass_preempt" toml:"mass_preempt"` // runlist ids
	Expect      string `yaml:"expect" toml:"expect"`
}

// ValidPlatforms is the set of recognized platform names.
var ValidPlatforms = map[string]bool{"": true, "silicon": true, "simulation": true}

// Load reads a scenario file. Files ending in .toml are decoded as TOML,
// everything else as YAML. Unknown fields are errors in both formats.
func Load(path string) (*Scenario, error) {
	var sc Scenario
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		meta, err := toml.DecodeFile(path, &sc)
		if err != nil {
			return nil, fmt.Errorf("parsing scenario %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("parsing scenario %s: unknown keys %v", path, undecoded)
		}
		return &sc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&sc); err != nil {
		return nil, fmt.Errorf("parsing scenario %s: %w", path, err)
	}
	return &sc, nil
}

// IsSilicon reports the platform the scenario targets.
func (s *Scenario) IsSilicon() bool {
	return s.Platform == "silicon"
}

// PollConfig applies the overrides to the defaults.
func (s *Scenario) PollConfig() fifo.PollConfig {
	cfg := fifo.DefaultPollConfig()
	if s.Poll.PreemptTimeout != nil {
		cfg.PreemptTimeout = *s.Poll.PreemptTimeout
	}
	if s.Poll.PollDelayMin != nil {
		cfg.PollDelayMin = *s.Poll.PollDelayMin
	}
	if s.Poll.PollDelayMax != nil {
		cfg.PollDelayMax = *s.Poll.PollDelayMax
	}
	if s.Poll.PreSiliconRetries != nil {
		cfg.PreSiliconRetries = *s.Poll.PreSiliconRetries
	}
	if s.Poll.MutexTimeout != nil {
		cfg.MutexTimeout = *s.Poll.MutexTimeout
	}
	return cfg
}

// Validate checks names, id ranges and step shapes.
func (s *Scenario) Validate() error {
	if !ValidPlatforms[s.Platform] {
		return fmt.Errorf("unknown platform %q", s.Platform)
	}
	if !trace.IsValidTraceLevel(s.Trace) {
		return fmt.Errorf("unknown trace level %q", s.Trace)
	}
	if err := s.PollConfig().Validate(); err != nil {
		return err
	}
	for _, rl := range s.Runlists {
		if _, err := unitID("runlist", rl.ID); err != nil {
			return err
		}
		for _, id := range append(append([]int(nil), rl.Pbdmas...), rl.Engines...) {
			if _, err := unitID(fmt.Sprintf("runlist %d unit", rl.ID), id); err != nil {
				return err
			}
		}
	}
	for _, u := range append(append([]UnitScript(nil), s.Hardware.Pbdmas...), s.Hardware.Engines...) {
		if _, err := unitID("scripted unit", u.ID); err != nil {
			return err
		}
		for _, smp := range u.Samples {
			if _, err := fifo.ParsePhase(smp.Phase); err != nil {
				return fmt.Errorf("unit %d: %w", u.ID, err)
			}
			if _, err := tsgID(fmt.Sprintf("unit %d status", u.ID), smp.ID); err != nil {
				return err
			}
			if _, err := tsgID(fmt.Sprintf("unit %d status next", u.ID), smp.NextID); err != nil {
				return err
			}
		}
	}
	for _, tsg := range s.TSGs {
		if _, err := tsgID("tsg", tsg.ID); err != nil {
			return err
		}
	}
	for _, ch := range s.Channels {
		if ch.TSG == nil {
			continue
		}
		if _, err := tsgID(fmt.Sprintf("channel %d tsg", ch.ID), *ch.TSG); err != nil {
			return err
		}
	}
	for i, st := range s.Steps {
		hasPreempt, hasMass := st.Preempt != "", len(st.MassPreempt) > 0
		if hasPreempt == hasMass {
			return fmt.Errorf("step %d: exactly one of preempt and mass_preempt must be set", i)
		}
		if hasPreempt {
			if _, err := ParseIdentifier(st.Preempt); err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
		}
		for _, id := range st.MassPreempt {
			if _, err := unitID(fmt.Sprintf("step %d runlist", i), id); err != nil {
				return err
			}
		}
		if st.Expect != ExpectAny && st.Expect != ExpectOK && st.Expect != ExpectFail {
			return fmt.Errorf("step %d: unknown expect %q", i, st.Expect)
		}
	}
	return nil
}

// ParseIdentifier parses "tsg:<id>" or "channel:<id>".
func ParseIdentifier(s string) (fifo.Identifier, error) {
	kind, num, ok := strings.Cut(s, ":")
	if !ok {
		return fifo.Identifier{}, fmt.Errorf("identifier %q: want tsg:<id> or channel:<id>", s)
	}
	n, err := strconv.Atoi(num)
	if err != nil {
		return fifo.Identifier{}, fmt.Errorf("identifier %q: %w", s, err)
	}
	id, err := safecast.Conv[uint32](n)
	if err != nil {
		return fifo.Identifier{}, fmt.Errorf("identifier %q: %w", s, err)
	}
	switch kind {
	case "tsg":
		return fifo.TSGID(id), nil
	case "channel", "ch":
		return fifo.ChannelID(id), nil
	default:
		return fifo.Identifier{}, fmt.Errorf("identifier %q: unknown kind %q", s, kind)
	}
}

// toU32 narrows a scenario id.
func toU32(what string, v int) (uint32, error) {
	id, err := safecast.Conv[uint32](v)
	if err != nil {
		return 0, fmt.Errorf("%s id %d: %w", what, v, err)
	}
	return id, nil
}

// tsgID narrows a TSG id, which must fit the register id field. Status
// sample ids use the same field.
func tsgID(what string, v int) (uint32, error) {
	id, err := toU32(what, v)
	if err != nil {
		return 0, err
	}
	if id > regs.MaxID {
		return 0, fmt.Errorf("%s id %d out of range [0, %d]", what, v, regs.MaxID)
	}
	return id, nil
}

// unitID narrows a PBDMA, engine or runlist id, which must fit in a Bitmask.
func unitID(what string, v int) (uint32, error) {
	id, err := toU32(what, v)
	if err != nil {
		return 0, err
	}
	if id >= fifo.MaxUnits {
		return 0, fmt.Errorf("%s id %d out of range [0, %d)", what, v, fifo.MaxUnits)
	}
	return id, nil
}

func maskOf(what string, ids []int) (fifo.Bitmask, error) {
	var m fifo.Bitmask
	for _, v := range ids {
		id, err := unitID(what, v)
		if err != nil {
			return 0, err
		}
		m = m.With(id)
	}
	return m, nil
}
