package simhw

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/preempt-sim/fifo"
)

// Recorder is a fifo.Recovery that records what it was asked to do.
type Recorder struct {
	mu          sync.Mutex
	resets      []fifo.Bitmask
	escalations []uint32
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// ResetEngines implements fifo.Recovery.
func (r *Recorder) ResetEngines(mask fifo.Bitmask) {
	logrus.Infof("[recovery] reset engines %v", mask)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets = append(r.resets, mask)
}

// EscalateTimeout implements fifo.Recovery.
func (r *Recorder) EscalateTimeout(tsg *fifo.TSG) {
	logrus.Infof("[recovery] preempt timeout escalated for tsgid %d", tsg.TSGID)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.escalations = append(r.escalations, tsg.TSGID)
}

// Resets returns every engine mask passed to ResetEngines.
func (r *Recorder) Resets() []fifo.Bitmask {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]fifo.Bitmask(nil), r.resets...)
}

// Escalations returns every TSG id passed to EscalateTimeout.
func (r *Recorder) Escalations() []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint32(nil), r.escalations...)
}
