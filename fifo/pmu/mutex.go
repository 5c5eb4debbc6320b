// Package pmu simulates the hardware mutex table shared between the host
// driver and the power-management co-processor.
package pmu

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/preempt-sim/fifo"
)

// NumMutexes is the number of mutex slots in the table.
const NumMutexes = 16

var (
	// ErrMutexTimeout means the slot stayed owned for the whole acquisition timeout.
	ErrMutexTimeout = errors.New("pmu mutex acquire timed out")
	// ErrNotOwner means a release presented a token that does not own the slot.
	ErrNotOwner = errors.New("pmu mutex not owned by token")
	// ErrBadMutexID means the slot id is outside the table.
	ErrBadMutexID = errors.New("pmu mutex id out of range")
)

// Mutex is a table of owner-token mutex slots. It implements fifo.CoprocMutex.
type Mutex struct {
	mu     sync.Mutex
	clock  fifo.Clock
	owners [NumMutexes]fifo.MutexToken
	next   uint32

	delayMin time.Duration
	delayMax time.Duration
}

// New returns an empty mutex table whose acquisitions back off on clock.
func New(clock fifo.Clock) *Mutex {
	return &Mutex{
		clock:    clock,
		delayMin: fifo.DefaultPollDelayMin,
		delayMax: fifo.DefaultPollDelayMax,
	}
}

// Acquire takes slot id, retrying with backoff until timeout. A non-positive
// timeout makes a single attempt.
func (m *Mutex) Acquire(id uint32, timeout time.Duration) (fifo.MutexToken, error) {
	if id >= NumMutexes {
		return fifo.InvalidMutexToken, fmt.Errorf("%w: %d", ErrBadMutexID, id)
	}
	if tok, ok := m.tryAcquire(id); ok {
		return tok, nil
	}
	if timeout <= 0 {
		return fifo.InvalidMutexToken, fmt.Errorf("%w: id %d", ErrMutexTimeout, id)
	}
	deadline, err := fifo.NewTimeout(m.clock, timeout)
	if err != nil {
		return fifo.InvalidMutexToken, err
	}
	backoff := fifo.NewBackoff(m.delayMin, m.delayMax)
	for !deadline.Expired() {
		backoff.Wait(m.clock)
		if tok, ok := m.tryAcquire(id); ok {
			return tok, nil
		}
	}
	logrus.Debugf("pmu mutex %d still owned by token %d after %v", id, m.Owner(id), timeout)
	return fifo.InvalidMutexToken, fmt.Errorf("%w: id %d after %v", ErrMutexTimeout, id, timeout)
}

func (m *Mutex) tryAcquire(id uint32) (fifo.MutexToken, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owners[id] != fifo.InvalidMutexToken {
		return fifo.InvalidMutexToken, false
	}
	m.next++
	if m.next == uint32(fifo.InvalidMutexToken) {
		m.next++
	}
	m.owners[id] = fifo.MutexToken(m.next)
	return m.owners[id], true
}

// Release frees slot id if token owns it.
func (m *Mutex) Release(id uint32, token fifo.MutexToken) error {
	if id >= NumMutexes {
		return fmt.Errorf("%w: %d", ErrBadMutexID, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if token == fifo.InvalidMutexToken || m.owners[id] != token {
		return fmt.Errorf("%w: id %d token %d owner %d", ErrNotOwner, id, token, m.owners[id])
	}
	m.owners[id] = fifo.InvalidMutexToken
	return nil
}

// Owner returns the token holding slot id, or InvalidMutexToken.
func (m *Mutex) Owner(id uint32) fifo.MutexToken {
	if id >= NumMutexes {
		return fifo.InvalidMutexToken
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owners[id]
}

// HoldForCoproc takes slot id on behalf of the co-processor, as if its
// firmware held the mutex. Returns false if the slot is already owned.
func (m *Mutex) HoldForCoproc(id uint32) (fifo.MutexToken, bool) {
	if id >= NumMutexes {
		return fifo.InvalidMutexToken, false
	}
	return m.tryAcquire(id)
}
