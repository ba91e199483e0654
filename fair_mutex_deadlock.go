package parklock

import (
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/parklock/parklock/internal/opt"
	"github.com/parklock/parklock/internal/parkinglot"
	"github.com/parklock/parklock/internal/threadid"
)

// fairDeadlockWaiter is spec.md's WaitNodeData in full: {tid, wait_token,
// is_deadlocked_ptr}.
type fairDeadlockWaiter struct {
	tid        threadid.ID
	waitToken  uint64
	deadlocked *atomic.Bool
}

// threadWaitInfo is spec.md's ThreadWaitInfo, one per thread,
// cache-line isolated so one thread's wait announcement never shares a
// line with another's.
type threadWaitInfo struct {
	waitingOn        atomic.Pointer[FairDeadlockMutex]
	waitStartNanos   atomic.Int64
	currentWaitToken atomic.Uint64
	_                [padSize]byte
}

// padSize rounds threadWaitInfo up to a full cache line, the same
// computation the teacher's internal/opt.CounterStripe_ uses.
const padSize = (opt.CacheLineSize_ - unsafe.Sizeof(struct {
	a atomic.Pointer[FairDeadlockMutex]
	b atomic.Int64
	c atomic.Uint64
}{})%opt.CacheLineSize_) % opt.CacheLineSize_

var fairWaitInfos [threadid.MaxThreads]threadWaitInfo

// FairDeadlockMutex is the deadlock-safe counterpart to [FairMutex]: the
// same FIFO hand-off protocol, but Lock can return [ErrDeadlock] when the
// calling goroutine is chosen as the victim of a cycle discovered by
// [DetectDeadlocks].
//
// Unlike [FairMutex] without detection, nothing about FairDeadlockMutex's
// own locking is automatic: detection only happens when some
// operator-chosen goroutine calls [DetectDeadlocks]. A program using
// FairDeadlockMutex is expected to run it periodically (e.g. from a
// ticker loop) the same way a database runs a deadlock monitor.
//
// As with [FairMutex], the zero value is not usable — create one with
// [NewFairDeadlockMutex]. A FairDeadlockMutex must not be copied after
// first use, and must be unlocked with no waiters before it is discarded.
type FairDeadlockMutex struct {
	_    noCopy
	word atomic.Uint64
}

// NewFairDeadlockMutex returns an unlocked FairDeadlockMutex.
func NewFairDeadlockMutex() *FairDeadlockMutex {
	m := &FairDeadlockMutex{}
	m.word.Store(fairPack(invalidHolder, 0))
	return m
}

// TryLock acquires the lock without blocking, reporting whether it
// succeeded.
func (m *FairDeadlockMutex) TryLock() bool {
	self := uint32(threadid.Current())
	return m.word.CompareAndSwap(fairPack(invalidHolder, 0), fairPack(self, 0))
}

// IsLocked reports whether the lock currently appears held. The result
// is advisory.
func (m *FairDeadlockMutex) IsLocked() bool {
	holder, _ := fairUnpack(m.word.Load())
	return holder != invalidHolder
}

// Lock acquires the mutex, blocking until this goroutine is handed
// ownership or is chosen as a deadlock victim by [DetectDeadlocks].
func (m *FairDeadlockMutex) Lock() error {
	self := uint32(threadid.Current())
	if m.word.CompareAndSwap(fairPack(invalidHolder, 0), fairPack(self, 0)) {
		return nil
	}
	return m.lockSlow(self)
}

func (m *FairDeadlockMutex) lockSlow(self uint32) error {
	tid := threadid.ID(self)
	for {
		w := m.word.Load()
		holder, waiters := fairUnpack(w)
		if holder == invalidHolder {
			if m.word.CompareAndSwap(w, fairPack(self, 0)) {
				return nil
			}
			continue
		}
		if !m.word.CompareAndSwap(w, fairPack(holder, waiters+1)) {
			continue
		}

		switch m.parkOne(tid) {
		case parkAcquired:
			return nil
		case parkDeadlocked:
			return ErrDeadlock
		case parkRetry:
			// word changed under us (or we were briefly but
			// incorrectly registered); re-read and try again.
		}
	}
}

// parkOutcome is what one park episode resolved to.
type parkOutcome int

const (
	parkAcquired parkOutcome = iota
	parkDeadlocked
	parkRetry
)

// parkOne runs one park episode: announce the wait, park, denounce, and
// interpret the result.
func (m *FairDeadlockMutex) parkOne(tid threadid.ID) parkOutcome {
	info := &fairWaitInfos[tid]
	info.waitStartNanos.Store(time.Now().UnixNano())
	token := info.currentWaitToken.Add(1)
	info.waitingOn.Store(m)
	defer info.waitingOn.Store(nil)

	var deadlocked atomic.Bool
	data := &fairDeadlockWaiter{tid: tid, waitToken: token, deadlocked: &deadlocked}

	res := lot.Park(unsafe.Pointer(m), data, func() bool {
		h, _ := fairUnpack(m.word.Load())
		return h != uint32(tid) && !deadlocked.Load()
	}, nil)

	switch res {
	case parkinglot.Skip:
		// Resolved Open Question (spec.md §9): re-check directly.
		if deadlocked.Load() {
			m.decrementWaiters()
			return parkDeadlocked
		}
		h, _ := fairUnpack(m.word.Load())
		if h == uint32(tid) {
			return parkAcquired
		}
		m.decrementWaiters()
		return parkRetry
	default: // Unparked
		if deadlocked.Load() {
			m.decrementWaiters()
			return parkDeadlocked
		}
		return parkAcquired
	}
}

func (m *FairDeadlockMutex) decrementWaiters() {
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
func (m *FairDeadlockMutex) Unlock() {
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
			fw := data.(*fairDeadlockWaiter)
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
	}
}
