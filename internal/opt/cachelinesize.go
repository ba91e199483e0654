// Package opt holds small build-tag-selected knobs shared by the rest of
// the module: cache-line sizing and the compile-time MAX_THREADS cap.
package opt

import (
	"unsafe"

	"golang.org/x/sys/cpu"
)

// CacheLineSize_ is used to pad hot per-thread structures apart so
// concurrent writers never share a cache line.
const CacheLineSize_ = unsafe.Sizeof(cpu.CacheLinePad{})
