package parklock

import (
	"sync/atomic"
	"unsafe"

	"github.com/parklock/parklock/internal/parkinglot"
)

// Mutex is a standard mutual-exclusion lock: a fast uncontended path and
// a parking-based slow path, with no fairness guarantee — once unlocked,
// any subsequent acquirer may win, not necessarily the longest-waiting
// one. For strict FIFO acquisition order, use [FairMutex].
//
// The zero value is an unlocked Mutex. A Mutex must not be copied after
// first use, and must be unlocked with no waiters before it is discarded.
type Mutex struct {
	_     noCopy
	state atomic.Int32
}

// TryLock acquires the lock without blocking, reporting whether it
// succeeded.
func (m *Mutex) TryLock() bool {
	return m.state.CompareAndSwap(wordUnlocked, wordLocked)
}

// IsLocked reports whether the lock currently appears held. The result
// is advisory: it can be stale the instant it's returned.
func (m *Mutex) IsLocked() bool {
	return m.state.Load() != wordUnlocked
}

// Lock acquires the mutex, blocking until it is available.
func (m *Mutex) Lock() {
	if m.state.CompareAndSwap(wordUnlocked, wordLocked) {
		return
	}
	m.lockSlow()
}

func (m *Mutex) lockSlow() {
	for {
		s := m.state.Load()
		switch s {
		case wordUnlocked:
			// CAS to CONTENDED, not LOCKED: this goroutine reached the
			// slow path at least once, so another goroutine may still be
			// parked in the lot from an earlier iteration. Acquiring via
			// UNLOCKED->LOCKED here would erase that hint and cause a
			// later Unlock to skip lot.Unpark, stranding that waiter.
			if m.state.CompareAndSwap(wordUnlocked, wordContended) {
				return
			}
		case wordContended:
			m.park()
		default: // wordLocked
			if m.state.CompareAndSwap(wordLocked, wordContended) {
				m.park()
			}
		}
	}
}

func (m *Mutex) park() {
	lot.Park(unsafe.Pointer(m), nil, func() bool {
		return m.state.Load() == wordContended
	}, nil)
}

// Unlock releases the mutex. It is a run-time error if m is not locked on
// entry to Unlock.
func (m *Mutex) Unlock() {
	switch m.state.Swap(wordUnlocked) {
	case wordUnlocked:
		throw("unlock of unlocked mutex")
	case wordContended:
		lot.Unpark(unsafe.Pointer(m), func(any) parkinglot.FilterOp {
			return parkinglot.RemoveBreak
		})
	}
}
