// Package parklock provides user-space mutual-exclusion locks with
// optional runtime deadlock detection.
//
// Two lock shapes are offered. [Mutex] and [DeadlockMutex] are the
// "standard" variant: a compact lock word, a fast uncontended CAS, and a
// parking-based slow path; the lock may be taken by any waiter once it's
// released, not necessarily the one that's waited longest. [FairMutex]
// and [FairDeadlockMutex] are the "fair" variant: ownership is handed off
// directly to the longest-waiting goroutine at Unlock time, so acquisition
// order is strictly FIFO.
//
// Each shape comes in a lean form (Mutex, FairMutex) with no deadlock
// detection, and a deadlock-safe form (DeadlockMutex, FairDeadlockMutex)
// whose Lock can return [ErrDeadlock] instead of blocking forever. The
// two forms are separate types, not a runtime flag on one type, so the
// lean form pays no cost for detection it never uses.
//
// None of these types support recursive locking, reader/writer semantics,
// or use across process boundaries.
package parklock
