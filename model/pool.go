package model

// PoolState is the advisory lifecycle state of a resource pool. Reservations
// do not consult it.
type PoolState int

const (
	PoolOffline PoolState = iota
	PoolOnline
	PoolBusy
)

func (s PoolState) String() string {
	switch s {
	case PoolOffline:
		return "offline"
	case PoolOnline:
		return "online"
	case PoolBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// PoolStatus is a coarse load classification derived from available and
// capacity.
type PoolStatus int

const (
	// StatusOK means nothing is reserved.
	StatusOK PoolStatus = iota
	// StatusBusy means more than half of the capacity is still available.
	StatusBusy
	// StatusOverload means at most half of the capacity is available.
	StatusOverload
)

func (s PoolStatus) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusBusy:
		return "BUSY"
	case StatusOverload:
		return "OVERLOAD"
	default:
		return "UNKNOWN"
	}
}

// ClassifyLoad applies the two-bucket load heuristic. The thresholds use
// integer division on capacity.
func ClassifyLoad(available, capacity int) PoolStatus {
	switch {
	case available == capacity:
		return StatusOK
	case available > capacity/2:
		return StatusBusy
	default:
		return StatusOverload
	}
}
