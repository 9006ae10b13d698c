package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/signalsfoundry/resource-fabric/model"
)

func TestAggregateIsPointInTimeCopy(t *testing.T) {
	a := NewPool("A", "CPU", 10)
	b := NewPool("B", "CPU", 20)
	b.Reserve(5)

	agg := Aggregate([]*ResourcePool{a, nil, b}, "ALL", "CPU")
	if agg.Capacity() != 30 || agg.Monitor() != 25 {
		t.Fatalf("Aggregate = (cap %d, avail %d), want (30, 25)", agg.Capacity(), agg.Monitor())
	}

	a.Reserve(10)
	if agg.Monitor() != 25 {
		t.Fatalf("aggregate tracked constituent change: avail %d", agg.Monitor())
	}
	agg.Reserve(25)
	if b.Monitor() != 15 {
		t.Fatalf("aggregate reserve leaked into constituent: b avail %d", b.Monitor())
	}
}

func TestAggregateEmpty(t *testing.T) {
	agg := Aggregate(nil, "NONE", "CPU")
	if agg.Capacity() != 0 || agg.Monitor() != 0 {
		t.Fatalf("empty aggregate = (%d, %d), want (0, 0)", agg.Capacity(), agg.Monitor())
	}
}

func TestSliceNode(t *testing.T) {
	parent := NewPool("GPU", "GPU", 50)

	slice, err := SliceNode(parent, "GPU-slice", 20)
	if err != nil {
		t.Fatalf("SliceNode: %v", err)
	}
	if slice.Capacity() != 20 || slice.Monitor() != 20 || slice.Type() != "GPU" {
		t.Fatalf("slice = %s, want GPU cap 20 avail 20", slice)
	}
	if parent.Monitor() != 30 {
		t.Fatalf("parent avail = %d, want 30", parent.Monitor())
	}

	if _, err := SliceNode(parent, "too-big", 31); !errors.Is(err, ErrInsufficientResources) {
		t.Fatalf("oversized slice error = %v, want ErrInsufficientResources", err)
	}
	if parent.Monitor() != 30 {
		t.Fatalf("failed slice changed parent: avail %d", parent.Monitor())
	}

	// Slice units return to the parent only on explicit release.
	parent.Release(20)
	if parent.Monitor() != 50 {
		t.Fatalf("parent avail after release = %d, want 50", parent.Monitor())
	}
}

func TestMigrateMovesUnits(t *testing.T) {
	from := NewPool("SRC", "CPU", 40)
	to := NewPool("DST", "CPU", 40)
	from.Reserve(10) // units being migrated are held at the source

	var waited time.Duration
	delay := func(_ context.Context, d time.Duration) error {
		waited = d
		if from.Monitor() != 30 || to.Monitor() != 30 {
			t.Errorf("during migration: src %d dst %d, want 30/30", from.Monitor(), to.Monitor())
		}
		return nil
	}

	req := model.TransferRequest{Amount: 10, Src: "SRC", Dst: "DST"}
	if err := Migrate(context.Background(), req, from, to, delay); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if waited != 10*MigrationDelayPerUnit {
		t.Fatalf("migration delay = %v, want %v", waited, 10*MigrationDelayPerUnit)
	}
	if from.Monitor() != 40 || to.Monitor() != 30 {
		t.Fatalf("after migration: src %d dst %d, want 40/30", from.Monitor(), to.Monitor())
	}
}

func TestMigrateInsufficientTargetLeavesSource(t *testing.T) {
	from := NewPool("SRC", "CPU", 40)
	to := NewPool("DST", "CPU", 5)
	from.Reserve(10)

	err := Migrate(context.Background(), model.TransferRequest{Amount: 10}, from, to, nil)
	if !errors.Is(err, ErrInsufficientResources) {
		t.Fatalf("Migrate error = %v, want ErrInsufficientResources", err)
	}
	if from.Monitor() != 30 || to.Monitor() != 5 {
		t.Fatalf("failed migration changed pools: src %d dst %d", from.Monitor(), to.Monitor())
	}
}

func TestMigrateCanceledRollsBackTarget(t *testing.T) {
	from := NewPool("SRC", "CPU", 40)
	to := NewPool("DST", "CPU", 40)
	from.Reserve(10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Migrate(ctx, model.TransferRequest{Amount: 10}, from, to, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Migrate error = %v, want context.Canceled", err)
	}
	if from.Monitor() != 30 || to.Monitor() != 40 {
		t.Fatalf("canceled migration: src %d dst %d, want 30/40", from.Monitor(), to.Monitor())
	}
}
