//go:build parklock_maxthreads_1024

package opt

// MaxThreads_ is force-set to 1024 via the parklock_maxthreads_1024
// build tag. Use: go build -tags=parklock_maxthreads_1024
const MaxThreads_ = 1024
