package parklock

import "github.com/parklock/parklock/internal/parkinglot"

// lot is the single process-wide parking lot all mutex types in this
// package park on and unpark from, keyed by each mutex's own address.
var lot parkinglot.Lot
