//go:build parklock_maxthreads_4096

package opt

// MaxThreads_ is force-set to 4096 via the parklock_maxthreads_4096
// build tag. Use: go build -tags=parklock_maxthreads_4096
const MaxThreads_ = 4096
