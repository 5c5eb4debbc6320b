// Package simhw is a simulated FIFO target: a scriptable register file and a
// recorder for recovery requests. Scenarios and tests drive the preempt code
// against it.
package simhw

import (
	"sync"

	"github.com/inference-sim/preempt-sim/fifo/regs"
)

// Write is one logged register write.
type Write struct {
	Addr  uint32
	Value uint32
}

// Registers is a register file implementing fifo.Registers.
//
// A scripted address returns its values in order, one per read, and then
// keeps returning the last one. Write-1-to-clear addresses clear the written
// bits instead of storing the value. Every access is counted.
type Registers struct {
	mu      sync.Mutex
	values  map[uint32]uint32
	scripts map[uint32][]uint32
	w1c     map[uint32]bool
	reads   map[uint32]int
	writes  []Write
}

// NewRegisters returns an all-zero register file.
func NewRegisters() *Registers {
	return &Registers{
		values:  make(map[uint32]uint32),
		scripts: make(map[uint32][]uint32),
		w1c:     make(map[uint32]bool),
		reads:   make(map[uint32]int),
	}
}

// Read implements fifo.Registers.
func (r *Registers) Read(addr uint32) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads[addr]++
	if s := r.scripts[addr]; len(s) > 0 {
		v := s[0]
		if len(s) == 1 {
			delete(r.scripts, addr)
			r.values[addr] = v
		} else {
			r.scripts[addr] = s[1:]
		}
		return v
	}
	return r.values[addr]
}

// Write implements fifo.Registers.
func (r *Registers) Write(addr, value uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = append(r.writes, Write{Addr: addr, Value: value})
	if r.w1c[addr] {
		r.values[addr] &^= value
		return
	}
	r.values[addr] = value
}

// Set stores a value without logging a write and drops any script.
func (r *Registers) Set(addr, value uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.scripts, addr)
	r.values[addr] = value
}

// Script queues values to be returned by successive reads of addr.
func (r *Registers) Script(addr uint32, values ...uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scripts[addr] = append(r.scripts[addr], values...)
}

// MarkW1C makes addr write-1-to-clear.
func (r *Registers) MarkW1C(addr uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.w1c[addr] = true
}

// Value returns the stored value of addr without counting a read.
func (r *Registers) Value(addr uint32) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.values[addr]
}

// Reads returns how many times addr was read.
func (r *Registers) Reads(addr uint32) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads[addr]
}

// Writes returns a copy of the write log.
func (r *Registers) Writes() []Write {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Write(nil), r.writes...)
}

// WritesTo returns the values written to addr, in order.
func (r *Registers) WritesTo(addr uint32) []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []uint32
	for _, w := range r.writes {
		if w.Addr == addr {
			out = append(out, w.Value)
		}
	}
	return out
}

// Status is one scripted engine or PBDMA status sample.
type Status struct {
	Phase  uint32
	ID     uint32
	NextID uint32
}

// Encode returns the raw status word.
func (s Status) Encode() uint32 {
	return regs.EncodeStatus(s.Phase, s.ID, s.NextID)
}

func encodeAll(samples []Status) []uint32 {
	out := make([]uint32, len(samples))
	for i, s := range samples {
		out[i] = s.Encode()
	}
	return out
}

// ScriptPbdma queues status samples for a PBDMA.
func (r *Registers) ScriptPbdma(pbdmaID uint32, samples ...Status) {
	r.Script(regs.PbdmaStatus(pbdmaID), encodeAll(samples)...)
}

// ScriptEngine queues status samples for an engine.
func (r *Registers) ScriptEngine(engineID uint32, samples ...Status) {
	r.Script(regs.EngineStatus(engineID), encodeAll(samples)...)
}

// RaisePbdmaIntr sets interrupt bits on a PBDMA. The register becomes
// write-1-to-clear.
func (r *Registers) RaisePbdmaIntr(pbdmaID, bits uint32) {
	addr := regs.PbdmaIntr(pbdmaID)
	r.MarkW1C(addr)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[addr] |= bits
}

// RaiseStallIntr sets the stalling interrupt of an engine.
func (r *Registers) RaiseStallIntr(engineID uint32) {
	if engineID >= regs.NumBits {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[regs.McIntrStall] |= 1 << engineID
}

// PbdmaSamples returns how many times a PBDMA status was sampled.
func (r *Registers) PbdmaSamples(pbdmaID uint32) int {
	return r.Reads(regs.PbdmaStatus(pbdmaID))
}

// EngineSamples returns how many times an engine status was sampled.
func (r *Registers) EngineSamples(engineID uint32) int {
	return r.Reads(regs.EngineStatus(engineID))
}
