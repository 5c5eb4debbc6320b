package fifo

import (
	"fmt"
	"iter"
	"math/bits"
	"strings"

	"github.com/inference-sim/preempt-sim/fifo/regs"
)

// MaxUnits is the width of a Bitmask: the largest number of PBDMAs, engines
// or runlists a single mask can address.
const MaxUnits = regs.NumBits

// Bitmask is a fixed-width set of hardware unit ids (PBDMA, engine or runlist).
type Bitmask uint32

// Bit returns a mask with only id set. Ids outside [0, MaxUnits) yield an empty mask.
func Bit(id uint32) Bitmask {
	if id >= MaxUnits {
		return 0
	}
	return Bitmask(1) << id
}

// MaskOf builds a mask from a list of ids.
func MaskOf(ids ...uint32) Bitmask {
	var m Bitmask
	for _, id := range ids {
		m |= Bit(id)
	}
	return m
}

// Has reports whether id is in the mask.
func (m Bitmask) Has(id uint32) bool {
	return m&Bit(id) != 0
}

// With returns m with id added.
func (m Bitmask) With(id uint32) Bitmask {
	return m | Bit(id)
}

// Len returns the number of set bits.
func (m Bitmask) Len() int {
	return bits.OnesCount32(uint32(m))
}

// IsEmpty reports whether no bit is set.
func (m Bitmask) IsEmpty() bool {
	return m == 0
}

// All iterates the set positions in ascending order.
func (m Bitmask) All() iter.Seq[uint32] {
	return func(yield func(uint32) bool) {
		rest := uint32(m)
		for rest != 0 {
			id := uint32(bits.TrailingZeros32(rest))
			if !yield(id) {
				return
			}
			rest &^= 1 << id
		}
	}
}

// IDs returns the set positions as a slice.
func (m Bitmask) IDs() []uint32 {
	ids := make([]uint32, 0, m.Len())
	for id := range m.All() {
		ids = append(ids, id)
	}
	return ids
}

// String renders the mask as "0x%08x{ids}", e.g. 0x0000000a{1,3}.
func (m Bitmask) String() string {
	parts := make([]string, 0, m.Len())
	for id := range m.All() {
		parts = append(parts, fmt.Sprint(id))
	}
	return fmt.Sprintf("0x%08x{%s}", uint32(m), strings.Join(parts, ","))
}
