package core

import (
	"context"
	"fmt"
	"time"

	"github.com/signalsfoundry/resource-fabric/model"
	"github.com/signalsfoundry/resource-fabric/timectrl"
)

// MigrationDelayPerUnit is the simulated time to move one capacity unit
// between pools during a migration.
const MigrationDelayPerUnit = 50 * time.Millisecond

// Aggregate builds a new pool, not attached to any network, whose capacity
// and available are the sums over pools at the moment of the call. The
// result has no live relationship to its constituents.
func Aggregate(pools []*ResourcePool, name, typ string) *ResourcePool {
	totalCapacity, totalAvailable := 0, 0
	for _, p := range pools {
		if p == nil {
			continue
		}
		totalCapacity += p.Capacity()
		totalAvailable += p.Monitor()
	}
	agg := NewPool(name, typ, totalCapacity)
	agg.available = totalAvailable
	return agg
}

// SliceNode carves amount units out of parent into a new unattached pool with
// capacity == available == amount. The units stay reserved on parent until
// the caller releases them explicitly.
func SliceNode(parent *ResourcePool, name string, amount int) (*ResourcePool, error) {
	if parent == nil {
		return nil, fmt.Errorf("%w: nil parent", ErrPoolBadInput)
	}
	if amount < 0 {
		return nil, fmt.Errorf("%w: negative slice amount %d", ErrPoolBadInput, amount)
	}
	if !parent.Reserve(amount) {
		return nil, fmt.Errorf("%w: cannot slice %d units from %s (only %d available)",
			ErrInsufficientResources, amount, parent.Name(), parent.Monitor())
	}
	return NewPool(name, parent.Type(), amount), nil
}

// Migrate moves req.Amount units from one pool to another. The destination
// is reserved first; if that fails, from is left untouched. After the
// simulated transfer the units are released at from.
//
// This is not a two-phase commit: during the transfer window the units are
// held at the destination and still held at the source.
// If delay fails (ctx done), the destination hold is returned.
func Migrate(ctx context.Context, req model.TransferRequest, from, to *ResourcePool, delay timectrl.DelayFunc) error {
	if from == nil || to == nil {
		return fmt.Errorf("%w: nil migration endpoint", ErrPoolBadInput)
	}
	if delay == nil {
		delay = timectrl.NoDelay
	}
	if !to.Reserve(req.Amount) {
		return fmt.Errorf("%w: target pool %s cannot take %d units", ErrInsufficientResources, to.Name(), req.Amount)
	}
	if err := delay(ctx, time.Duration(req.Amount)*MigrationDelayPerUnit); err != nil {
		to.Release(req.Amount)
		return fmt.Errorf("migrate %s -> %s: %w", from.Name(), to.Name(), err)
	}
	from.Release(req.Amount)
	return nil
}
