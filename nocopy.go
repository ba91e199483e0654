package parklock

// noCopy may be embedded in structs which must not be copied after
// first use, since their address is their identity in the parking lot.
//
// See https://golang.org/issues/8005#issuecomment-190753527 for details.
type noCopy struct{}

// Lock and Unlock are no-ops, present only so `go vet`'s -copylocks
// check flags any accidental copy of the struct embedding this type.
func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
