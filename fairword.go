package parklock

import "github.com/parklock/parklock/internal/threadid"

// The fair mutex packs {holder, num_waiters} into one atomic.Uint64 so
// every state transition — the fast-path acquire, waiter registration,
// and the hand-off at Unlock — is a single CAS.
const invalidHolder = uint32(threadid.MaxThreads)

func fairPack(holder, waiters uint32) uint64 {
	return uint64(holder)<<32 | uint64(waiters)
}

func fairUnpack(w uint64) (holder, waiters uint32) {
	return uint32(w >> 32), uint32(w)
}
