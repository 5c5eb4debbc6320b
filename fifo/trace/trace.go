package trace

import (
	"fmt"
	"io"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// TraceLevel controls the verbosity of preempt tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing.
	TraceLevelNone TraceLevel = "none"
	// TraceLevelPreempts records orchestrations and mass preempts only.
	TraceLevelPreempts TraceLevel = "preempts"
	// TraceLevelPolls additionally records every poll loop.
	TraceLevelPolls TraceLevel = "polls"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:     true,
	TraceLevelPreempts: true,
	TraceLevelPolls:    true,
	"":                 true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// PreemptTrace collects records from a Fifo. Safe for concurrent use:
// preempts on different runlists record from different goroutines.
type PreemptTrace struct {
	mu sync.Mutex

	Level        TraceLevel          `msgpack:"level"`
	Polls        []PollRecord        `msgpack:"polls"`
	Preempts     []PreemptRecord     `msgpack:"preempts"`
	MassPreempts []MassPreemptRecord `msgpack:"mass_preempts"`
}

// NewPreemptTrace creates a PreemptTrace ready for recording.
func NewPreemptTrace(level TraceLevel) *PreemptTrace {
	return &PreemptTrace{
		Level:        level,
		Polls:        make([]PollRecord, 0),
		Preempts:     make([]PreemptRecord, 0),
		MassPreempts: make([]MassPreemptRecord, 0),
	}
}

func (pt *PreemptTrace) records(level TraceLevel) bool {
	if pt == nil {
		return false
	}
	switch pt.Level {
	case TraceLevelPolls:
		return true
	case TraceLevelPreempts:
		return level == TraceLevelPreempts
	default:
		return false
	}
}

// RecordPoll appends a poll record. No-op on a nil trace or below TraceLevelPolls.
func (pt *PreemptTrace) RecordPoll(record PollRecord) {
	if !pt.records(TraceLevelPolls) {
		return
	}
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.Polls = append(pt.Polls, record)
}

// RecordPreempt appends an orchestration record.
func (pt *PreemptTrace) RecordPreempt(record PreemptRecord) {
	if !pt.records(TraceLevelPreempts) {
		return
	}
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.Preempts = append(pt.Preempts, record)
}

// RecordMassPreempt appends a mass-preempt record.
func (pt *PreemptTrace) RecordMassPreempt(record MassPreemptRecord) {
	if !pt.records(TraceLevelPreempts) {
		return
	}
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.MassPreempts = append(pt.MassPreempts, record)
}

// WriteMsgpack encodes the trace to w.
func (pt *PreemptTrace) WriteMsgpack(w io.Writer) error {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	if err := msgpack.NewEncoder(w).Encode(pt); err != nil {
		return fmt.Errorf("encoding trace: %w", err)
	}
	return nil
}

// ReadMsgpack decodes a trace written by WriteMsgpack.
func ReadMsgpack(r io.Reader) (*PreemptTrace, error) {
	pt := NewPreemptTrace(TraceLevelNone)
	if err := msgpack.NewDecoder(r).Decode(pt); err != nil {
		return nil, fmt.Errorf("decoding trace: %w", err)
	}
	return pt, nil
}
