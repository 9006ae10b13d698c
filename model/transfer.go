package model

import "time"

// TransferRequest describes one capacity transfer between two pools. It only
// lives for the duration of a routing call.
type TransferRequest struct {
	Amount   int
	Src      string
	Dst      string
	Priority int
	// Kind is a free-form tag, e.g. "cpu" or "memory-allocation".
	Kind string
}

// TransferState is the per-request position in the routing state machine.
type TransferState int

const (
	TransferPending TransferState = iota
	TransferRouting
	TransferReserving
	TransferTransferring
	TransferReleased
	TransferFailed
)

func (s TransferState) String() string {
	switch s {
	case TransferPending:
		return "PENDING"
	case TransferRouting:
		return "ROUTING"
	case TransferReserving:
		return "RESERVING"
	case TransferTransferring:
		return "TRANSFERRING"
	case TransferReleased:
		return "RELEASED"
	case TransferFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transitions follow s.
func (s TransferState) Terminal() bool {
	return s == TransferReleased || s == TransferFailed
}

// Hop is one traversal step of a routed transfer.
type Hop struct {
	From   string
	To     string
	LinkID string
}

// TransferSpec is a scripted transfer loaded from a topology document.
type TransferSpec struct {
	TransferRequest
	// Timeout, when non-zero, turns the transfer into a timed send whose
	// source reservation is held as a lease for this long.
	Timeout time.Duration
	// Policy overrides the controller default when set.
	Policy *RoutingPolicy
}
