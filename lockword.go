package parklock

// Lean-mode lock word: three states, no holder identity.
const (
	wordUnlocked int32 = iota
	wordLocked
	wordContended
)

// Safe-mode lock word: a signed int32 where the high bit is the
// contention flag and the low 31 bits hold the current holder's
// threadid.ID. unlockedSafe is the all-ones-but-high-bit sentinel,
// distinct from every valid thread id as long as MaxThreads < 1<<31.
const (
	contentionBit int32 = -1 << 31
	unlockedSafe  int32 = ^contentionBit // 0x7fffffff
)

func safeHolder(w int32) int32 {
	return w &^ contentionBit
}

func safeIsUnlocked(w int32) bool {
	return w == unlockedSafe
}

func safeIsContended(w int32) bool {
	return w&contentionBit != 0
}

func safeWithHolder(holder int32) int32 {
	return holder
}

func safeWithContention(w int32) int32 {
	return w | contentionBit
}
