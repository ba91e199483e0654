package parklock

import (
	"unsafe"

	"github.com/parklock/parklock/internal/parkinglot"
	"github.com/parklock/parklock/internal/threadid"
)

// waiterObservation is what one detection pass records about a thread
// found genuinely parked on a [FairDeadlockMutex].
type waiterObservation struct {
	lock      *FairDeadlockMutex
	waitToken uint64
	waitStart int64
}

// DetectDeadlocks runs [Run] repeatedly until it finds nothing left to
// resolve, returning the number of deadlocks it broke. It is not called
// automatically: a program using [FairDeadlockMutex] must run it from
// some operator-chosen goroutine, e.g. a periodic ticker.
func DetectDeadlocks() int {
	n := 0
	for Run() {
		n++
	}
	return n
}

// Run performs a single detection pass: observe every thread's
// announced wait, search for a cycle, verify it, and resolve at most one
// cycle by waking its victim with ErrDeadlock. It returns true iff it
// resolved a deadlock.
func Run() bool {
	waiters, holders := observe()
	for tid := range waiters {
		cycle := findCycle(tid, waiters, holders)
		if cycle == nil {
			continue
		}
		if resolveCycle(cycle, waiters) {
			return true
		}
	}
	return false
}

// observe is spec.md §4.3 Stage 1: for each thread slot, snapshot its
// announced (lock, wait_token), then confirm the thread is actually
// present in the parking lot for that lock and the lock is still held —
// rejecting stale announcements where a thread has announced but not yet
// parked, or has just been handed the lock.
func observe() (map[threadid.ID]waiterObservation, map[*FairDeadlockMutex]threadid.ID) {
	waiters := make(map[threadid.ID]waiterObservation)
	holders := make(map[*FairDeadlockMutex]threadid.ID)

	for i := range threadid.ID(threadid.MaxThreads) {
		info := &fairWaitInfos[i]
		lk := info.waitingOn.Load()
		if lk == nil {
			continue
		}
		token := info.currentWaitToken.Load()
		start := info.waitStartNanos.Load()
		tid := i

		lot.Unpark(unsafe.Pointer(lk), func(data any) parkinglot.FilterOp {
			fw, ok := data.(*fairDeadlockWaiter)
			if !ok || fw.tid != tid {
				return parkinglot.RetainContinue
			}
			h, _ := fairUnpack(lk.word.Load())
			if h != invalidHolder {
				waiters[tid] = waiterObservation{lock: lk, waitToken: token, waitStart: start}
				holders[lk] = threadid.ID(h)
			}
			return parkinglot.RetainBreak
		})
	}
	return waiters, holders
}

// findCycle is spec.md §4.3 Stage 2: walk holders/waiters from tid until
// either the chain runs off the graph (no cycle through tid) or a thread
// recurs, closing a cycle.
func findCycle(tid threadid.ID, waiters map[threadid.ID]waiterObservation, holders map[*FairDeadlockMutex]threadid.ID) map[threadid.ID]*FairDeadlockMutex {
	type step struct {
		tid  threadid.ID
		lock *FairDeadlockMutex
	}

	path := []step{{tid, waiters[tid].lock}}
	seenAt := map[threadid.ID]int{tid: 0}

	for {
		lk := path[len(path)-1].lock
		holder, ok := holders[lk]
		if !ok {
			return nil // no holder recorded for lk: no cycle here
		}
		if idx, seen := seenAt[holder]; seen {
			cycle := make(map[threadid.ID]*FairDeadlockMutex, len(path)-idx)
			for _, s := range path[idx:] {
				cycle[s.tid] = s.lock
			}
			return cycle
		}
		wi, ok := waiters[holder]
		if !ok {
			return nil // holder is running, not blocked: no cycle here
		}
		seenAt[holder] = len(path)
		path = append(path, step{holder, wi.lock})
	}
}

// resolveCycle is spec.md §4.3 Stage 3: verify every cycle member is
// still announced as waiting on the lock recorded for it, pick the
// victim (the member that started waiting most recently, ties broken by
// thread id), and mark that member's specific wait episode deadlocked.
func resolveCycle(cycle map[threadid.ID]*FairDeadlockMutex, waiters map[threadid.ID]waiterObservation) bool {
	for tid, lk := range cycle {
		if fairWaitInfos[tid].waitingOn.Load() != lk {
			return false // stale: this leg has since resolved
		}
	}

	var victim threadid.ID
	var victimStart int64 = -1
	first := true
	for tid := range cycle {
		start := fairWaitInfos[tid].waitStartNanos.Load()
		if first || start > victimStart || (start == victimStart && tid > victim) {
			victim, victimStart, first = tid, start, false
		}
	}

	wi := waiters[victim]
	resolved := false
	lot.Unpark(unsafe.Pointer(wi.lock), func(data any) parkinglot.FilterOp {
		fw, ok := data.(*fairDeadlockWaiter)
		if !ok || fw.tid != victim || fw.waitToken != wi.waitToken {
			return parkinglot.RetainContinue
		}
		fw.deadlocked.Store(true)
		resolved = true
		return parkinglot.RemoveBreak
	})
	return resolved
}
