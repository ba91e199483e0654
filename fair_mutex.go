package parklock

import (
	"sync/atomic"
	"unsafe"

	"github.com/parklock/parklock/internal/parkinglot"
	"github.com/parklock/parklock/internal/threadid"
)

// fairWaiter is the payload a goroutine waiting on a fair mutex stores in
// the parking lot: spec.md's WaitNodeData, minus the deadlock fields the
// lean variant has no use for.
type fairWaiter struct {
	tid threadid.ID
}

// FairMutex is a strictly FIFO mutex: at Unlock, ownership transfers
// directly to the longest-waiting goroutine instead of being published as
// merely "unlocked", so no newly-arriving goroutine can barge ahead of an
// existing waiter. For the cheaper, non-fair alternative, use [Mutex].
//
// Unlike [Mutex], the zero value is not usable (the packed word's
// unlocked state needs a non-zero holder sentinel) — create one with
// [NewFairMutex]. A FairMutex must not be copied after first use, and
// must be unlocked with no waiters before it is discarded.
type FairMutex struct {
	_    noCopy
	word atomic.Uint64
}

// NewFairMutex returns an unlocked FairMutex.
func NewFairMutex() *FairMutex {
	m := &FairMutex{}
	m.word.Store(fairPack(invalidHolder, 0))
	return m
}

// TryLock acquires the lock without blocking, reporting whether it
// succeeded.
func (m *FairMutex) TryLock() bool {
	self := uint32(threadid.Current())
	return m.word.CompareAndSwap(fairPack(invalidHolder, 0), fairPack(self, 0))
}

// IsLocked reports whether the lock currently appears held. The result
// is advisory.
func (m *FairMutex) IsLocked() bool {
	holder, _ := fairUnpack(m.word.Load())
	return holder != invalidHolder
}

// Lock acquires the mutex, blocking until this goroutine has been handed
// ownership.
func (m *FairMutex) Lock() {
	self := uint32(threadid.Current())
	if m.word.CompareAndSwap(fairPack(invalidHolder, 0), fairPack(self, 0)) {
		return
	}
	m.lockSlow(self)
}

func (m *FairMutex) lockSlow(self uint32) {
	for {
		w := m.word.Load()
		holder, waiters := fairUnpack(w)
		if holder == invalidHolder {
			if m.word.CompareAndSwap(w, fairPack(self, 0)) {
				return
			}
			continue
		}
		if !m.word.CompareAndSwap(w, fairPack(holder, waiters+1)) {
			continue
		}

		data := &fairWaiter{tid: threadid.ID(self)}
		res := lot.Park(unsafe.Pointer(m), data, func() bool {
			h, _ := fairUnpack(m.word.Load())
			return h != self
		}, nil)
		if res == parkinglot.Skip {
			// Resolved Open Question (spec.md §9): re-check directly
			// rather than unconditionally decrementing and retrying.
			h, _ := fairUnpack(m.word.Load())
			if h == self {
				return
			}
			m.decrementWaiters()
			continue
		}
		// Unparked: Release's CAS already installed us as holder and
		// already accounted for the decrement.
		return
	}
}

func (m *FairMutex) decrementWaiters() {
	for {
		w := m.word.Load()
		holder, waiters := fairUnpack(w)
		if m.word.CompareAndSwap(w, fairPack(holder, waiters-1)) {
			return
		}
	}
}

// Unlock releases the mutex, handing it directly to the longest-waiting
// goroutine if one exists. It must be called by the goroutine holding m.
// It panics if m is not locked on entry; it does not check which
// goroutine holds m.
func (m *FairMutex) Unlock() {
	for {
		w := m.word.Load()
		holder, waiters := fairUnpack(w)
		if holder == invalidHolder {
			throw("unlock of unlocked mutex")
		}
		if waiters == 0 {
			if m.word.CompareAndSwap(w, fairPack(invalidHolder, 0)) {
				return
			}
			continue
		}

		transferred := false
		lot.Unpark(unsafe.Pointer(m), func(data any) parkinglot.FilterOp {
			fw := data.(*fairWaiter)
			for {
				w2 := m.word.Load()
				_, waiters2 := fairUnpack(w2)
				if waiters2 == 0 {
					return parkinglot.RetainBreak
				}
				if m.word.CompareAndSwap(w2, fairPack(uint32(fw.tid), waiters2-1)) {
					transferred = true
					return parkinglot.RemoveBreak
				}
			}
		})
		if transferred {
			return
		}
		// num_waiters said someone should be in the lot, but the
		// increment-then-park race means they haven't landed yet.
		// Spin and retry.
	}
}
