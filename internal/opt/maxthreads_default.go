//go:build !parklock_maxthreads_1024 && !parklock_maxthreads_4096 && !parklock_maxthreads_65536

package opt

// MaxThreads_ bounds the dense ThreadID space. The default favors
// processes with a few thousand concurrent lock-using goroutines;
// build with one of the parklock_maxthreads_* tags to change it.
const MaxThreads_ = 16384
