package controller

import (
	"context"
	"time"

	"github.com/signalsfoundry/resource-fabric/lease"
	"github.com/signalsfoundry/resource-fabric/model"
	"github.com/signalsfoundry/resource-fabric/routing"
)

// Result describes a finished send.
type Result struct {
	ID      string
	Request model.TransferRequest
	Policy  model.RoutingPolicy
	// Path is empty when the send failed before routing succeeded.
	Path  routing.Path
	State model.TransferState
	// Lease is the timed source hold of a SendTimed, if one was granted.
	Lease    *lease.Lease
	Duration time.Duration
	Err      error
}

// OK reports whether the transfer reached RELEASED.
func (r *Result) OK() bool {
	return r != nil && r.State == model.TransferReleased
}

// Transfer is the handle of a send started with SendAsync.
type Transfer struct {
	ID string

	done chan struct{}
	res  *Result
	err  error
}

func newTransfer(id string) *Transfer {
	return &Transfer{ID: id, done: make(chan struct{})}
}

func (t *Transfer) complete(res *Result, err error) {
	t.res, t.err = res, err
	close(t.done)
}

// Done is closed when the send has finished.
func (t *Transfer) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the send finishes or ctx is done. Abandoning the wait
// does not stop the send.
func (t *Transfer) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-t.done:
		return t.res, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the outcome without blocking. ok is false while the send
// is still running.
func (t *Transfer) Result() (res *Result, ok bool) {
	select {
	case <-t.done:
		return t.res, true
	default:
		return nil, false
	}
}
