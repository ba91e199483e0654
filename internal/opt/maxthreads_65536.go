//go:build parklock_maxthreads_65536

package opt

// MaxThreads_ is force-set to 65536 via the parklock_maxthreads_65536
// build tag. Use: go build -tags=parklock_maxthreads_65536
const MaxThreads_ = 65536
