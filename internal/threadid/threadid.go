// Package threadid stands in for the "Thread Registry" that the mutex
// design assumes is externally available: a bounded, dense numeric
// identifier for the calling thread, stable for that thread's lifetime.
//
// Go has no goroutine-local storage and no public goroutine id, so this
// package derives one from runtime.Stack parsing the same way the one
// goroutine-identity implementation in the retrieved pack does
// (monkeydluffy772-racedetector's getGoroutineID/TID-pool), cached so the
// slow parse only happens once per goroutine.
package threadid

import (
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/parklock/parklock/internal/opt"
)

// ID is a dense identifier in [0, MaxThreads).
type ID uint32

// MaxThreads is the compile-time cap on live thread ids, selected via the
// parklock_maxthreads_* build tags (see internal/opt).
const MaxThreads = opt.MaxThreads_

// Invalid is the sentinel identifier, distinct from every valid id.
const Invalid ID = MaxThreads

var (
	mu     sync.Mutex
	byGoID = make(map[int64]ID)
	nextID ID
	inUse  atomic.Int64
)

// Current returns the calling goroutine's dense thread id, assigning one
// on first use. It panics if MaxThreads is exhausted: per the contract
// this type implements, exceeding the compile-time thread cap is a
// configuration error, not a runtime condition callers can recover from.
func Current() ID {
	gid := goroutineID()

	mu.Lock()
	defer mu.Unlock()

	if id, ok := byGoID[gid]; ok {
		return id
	}
	if nextID >= MaxThreads {
		panic("threadid: MAX_THREADS exceeded; rebuild with a larger parklock_maxthreads_* tag")
	}
	id := nextID
	nextID++
	byGoID[gid] = id
	inUse.Add(1)
	return id
}

// InUse reports how many distinct thread ids have been handed out so
// far. Exposed so a caller sizing MAX_THREADS for their workload can
// observe actual usage instead of guessing.
func InUse() int64 {
	return inUse.Load()
}

// goroutineID extracts the numeric id the runtime prints at the head of
// a stack trace ("goroutine 123 [running]: ..."). This is the same
// technique the pack's one goroutine-identity implementation uses; it is
// slow (a stack trace per call) and deliberately not hidden behind a
// faster getg()-linkname path, since that accesses runtime internals this
// module has no business depending on.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]

	const prefix = "goroutine "
	if len(b) < len(prefix) || string(b[:len(prefix)]) != prefix {
		panic("threadid: unexpected runtime.Stack format")
	}
	b = b[len(prefix):]

	i := 0
	for i < len(b) && b[i] != ' ' {
		i++
	}
	id, err := strconv.ParseInt(string(b[:i]), 10, 64)
	if err != nil {
		panic("threadid: unexpected runtime.Stack format: " + err.Error())
	}
	return id
}
