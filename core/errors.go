package core

import (
	"context"
	"errors"
)

// Routing and reservation failures. These are ordinary results returned to
// the caller of a send; none of them is fatal.
var (
	ErrSameEndpoint          = errors.New("source and destination are the same pool")
	ErrNoRouteFound          = errors.New("no route found")
	ErrInsufficientResources = errors.New("insufficient resources")
	ErrLinkDisabled          = errors.New("link disabled")
	ErrPermissionDenied      = errors.New("link forbids routing policy")
)

// Topology errors.
var (
	ErrPoolExists   = errors.New("pool already exists")
	ErrPoolNotFound = errors.New("pool not found")
	ErrPoolAttached = errors.New("pool already belongs to a network")
	ErrPoolBadInput = errors.New("invalid pool")
	ErrLinkNotFound = errors.New("link not found")
	ErrLinkBadInput = errors.New("invalid link")
)

// Failure kinds used as log fields and metric labels.
const (
	KindOK                    = "ok"
	KindSameEndpoint          = "same_endpoint"
	KindNoRouteFound          = "no_route_found"
	KindInsufficientResources = "insufficient_resources"
	KindLinkDisabled          = "link_disabled"
	KindPermissionDenied      = "permission_denied"
	KindCanceled              = "canceled"
	KindOther                 = "error"
)

// FailureKind classifies err into one of the Kind* labels.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return KindOK
	case errors.Is(err, ErrSameEndpoint):
		return KindSameEndpoint
	case errors.Is(err, ErrNoRouteFound):
		return KindNoRouteFound
	case errors.Is(err, ErrInsufficientResources):
		return KindInsufficientResources
	case errors.Is(err, ErrLinkDisabled):
		return KindLinkDisabled
	case errors.Is(err, ErrPermissionDenied):
		return KindPermissionDenied
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindOther
	}
}
