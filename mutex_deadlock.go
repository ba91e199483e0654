package parklock

import (
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/parklock/parklock/internal/parkinglot"
	"github.com/parklock/parklock/internal/threadid"
)

// deadlockCheckTimeout is how long lockSlow waits before running the
// inline cycle check. It must not be shorter than the worst-case time a
// checkDeadlock pass takes, since a shorter timeout would start a new
// scan before the previous one could possibly have made progress; it is
// deliberately not configurable (see DESIGN.md).
const deadlockCheckTimeout = time.Second

// waitingOn is a global table indexed by threadid.ID: waitingOn[t] holds
// the DeadlockMutex thread t is currently blocked on, or nil. It is
// written only by its own thread and read by any thread running
// checkDeadlock.
var waitingOn [threadid.MaxThreads]atomic.Pointer[DeadlockMutex]

// verifyMu serializes standard-variant deadlock confirmations so two
// threads in the same cycle can't both declare themselves deadlocked. It
// is a plain sync.Mutex, not one of this package's own types: the
// detector must never itself be able to deadlock.
var verifyMu sync.Mutex

// DeadlockMutex is the deadlock-safe counterpart to [Mutex]: same
// fast/slow acquire protocol and the same lack of fairness, but Lock can
// return [ErrDeadlock] when the calling goroutine is chosen as the victim
// of a detected wait-for cycle.
//
// Unlike [Mutex], the zero value is not usable: the safe lock word's
// unlocked sentinel is non-zero, so a DeadlockMutex must be created with
// [NewDeadlockMutex]. A DeadlockMutex must not be copied after first use,
// and must be unlocked with no waiters before it is discarded.
type DeadlockMutex struct {
	_     noCopy
	state atomic.Int32
}

// NewDeadlockMutex returns an unlocked DeadlockMutex.
func NewDeadlockMutex() *DeadlockMutex {
	m := &DeadlockMutex{}
	m.state.Store(unlockedSafe)
	return m
}

// TryLock acquires the lock without blocking, reporting whether it
// succeeded.
func (m *DeadlockMutex) TryLock() bool {
	self := int32(threadid.Current())
	return m.state.CompareAndSwap(unlockedSafe, safeWithHolder(self))
}

// IsLocked reports whether the lock currently appears held. The result
// is advisory.
func (m *DeadlockMutex) IsLocked() bool {
	return !safeIsUnlocked(m.state.Load())
}

// Lock acquires the mutex, blocking until it is available or a cycle
// involving this call is detected and resolved in this goroutine's favor.
func (m *DeadlockMutex) Lock() error {
	self := int32(threadid.Current())
	if m.state.CompareAndSwap(unlockedSafe, safeWithHolder(self)) {
		return nil
	}
	return m.lockSlow(self)
}

func (m *DeadlockMutex) lockSlow(self int32) error {
	tid := threadid.ID(self)
	for {
		w := m.state.Load()
		switch {
		case safeIsUnlocked(w):
			// CAS in with the contention bit already set, mirroring
			// mutex.go's lockSlow: a waiter may still be parked in the
			// lot from an earlier iteration, and acquiring without the
			// bit would make a later Unlock skip lot.Unpark.
			if m.state.CompareAndSwap(w, safeWithContention(safeWithHolder(self))) {
				return nil
			}
		case safeIsContended(w):
			if deadlocked := m.park(tid); deadlocked {
				return ErrDeadlock
			}
		default:
			if m.state.CompareAndSwap(w, safeWithContention(w)) {
				if deadlocked := m.park(tid); deadlocked {
					return ErrDeadlock
				}
			}
		}
	}
}

// park announces tid's wait, parks with a timeout, and on timeout runs
// the inline detector. It returns true iff this call was confirmed as a
// deadlock victim.
func (m *DeadlockMutex) park(tid threadid.ID) bool {
	waitingOn[tid].Store(m)
	defer waitingOn[tid].Store(nil)

	for {
		res := lot.ParkFor(unsafe.Pointer(m), nil, func() bool {
			return safeIsContended(m.state.Load())
		}, nil, deadlockCheckTimeout)
		switch res {
		case parkinglot.Unparked, parkinglot.Skip:
			return false
		case parkinglot.TimedOut:
			if checkDeadlock(tid) {
				return true
			}
			// Not part of a cycle (or the cycle was resolved by
			// someone else already); keep waiting.
		}
	}
}

// Unlock releases the mutex. It must be called by the goroutine holding
// m. It panics if m is not locked on entry; it does not check which
// goroutine holds m.
func (m *DeadlockMutex) Unlock() {
	prev := m.state.Swap(unlockedSafe)
	if safeIsUnlocked(prev) {
		throw("unlock of unlocked mutex")
	}
	if safeIsContended(prev) {
		lot.Unpark(unsafe.Pointer(m), func(any) parkinglot.FilterOp {
			return parkinglot.RemoveBreak
		})
	}
}

// checkDeadlock implements the standard-variant detector of spec.md
// §4.4: a two-phase search-then-verify walk of the global waitingOn
// table, run inline by the waiter whose park timed out.
//
// The search follows waitingOn from self until it either runs off the
// graph (the thread at the end of the chain isn't blocked, so there's no
// cycle yet) or revisits a thread already on the walk. A revisit of a
// thread other than self means a cycle exists somewhere in the graph, but
// not one that includes self (self is the tail of a "tadpole": it depends
// on a cycle without being part of it) — that cycle's own members will
// find it on their own timeouts, so self just keeps waiting.
func checkDeadlock(self threadid.ID) bool {
	visited := map[threadid.ID]bool{self: true}
	order := []threadid.ID{self}

	cur := self
	for {
		lk := waitingOn[cur].Load()
		if lk == nil {
			return false
		}
		w := lk.state.Load()
		if safeIsUnlocked(w) {
			return false
		}
		holder := threadid.ID(safeHolder(w))
		if holder == self {
			break // cycle closes back on self
		}
		if visited[holder] {
			return false // cycle exists, but doesn't include self
		}
		visited[holder] = true
		order = append(order, holder)
		cur = holder
	}

	verifyMu.Lock()
	defer verifyMu.Unlock()

	for i, t := range order {
		lk := waitingOn[t].Load()
		if lk == nil {
			return false // stale: this leg of the cycle has since resolved
		}
		w := lk.state.Load()
		if safeIsUnlocked(w) {
			return false
		}
		next := order[(i+1)%len(order)]
		if threadid.ID(safeHolder(w)) != next {
			return false
		}
	}

	waitingOn[self].Store(nil)
	return true
}
