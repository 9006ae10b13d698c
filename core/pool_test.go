package core

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/signalsfoundry/resource-fabric/model"
)

func assertPoolInvariant(t *testing.T, p *ResourcePool) {
	t.Helper()
	if avail := p.Monitor(); avail < 0 || avail > p.Capacity() {
		t.Fatalf("pool %s available = %d, want within [0, %d]", p.Name(), avail, p.Capacity())
	}
}

func TestReserveAllOrNothing(t *testing.T) {
	p := NewPool("CPU", "compute", 100)

	if !p.Reserve(60) {
		t.Fatalf("Reserve(60) failed on a fresh pool")
	}
	if got := p.Monitor(); got != 40 {
		t.Fatalf("Monitor() = %d, want 40", got)
	}
	if p.Reserve(41) {
		t.Fatalf("Reserve(41) succeeded with only 40 available")
	}
	if got := p.Monitor(); got != 40 {
		t.Fatalf("failed reservation changed available to %d", got)
	}
	if !p.Reserve(40) {
		t.Fatalf("Reserve(40) failed with exactly 40 available")
	}
	if got := p.Monitor(); got != 0 {
		t.Fatalf("Monitor() = %d, want 0", got)
	}
	if p.Reserve(-1) {
		t.Fatalf("Reserve(-1) succeeded")
	}
	assertPoolInvariant(t, p)
}

func TestReleaseClampsAtCapacity(t *testing.T) {
	p := NewPool("MEM", "memory", 50)
	p.Reserve(10)

	for i := 0; i < 5; i++ {
		p.Release(30)
		assertPoolInvariant(t, p)
	}
	if got := p.Monitor(); got != 50 {
		t.Fatalf("Monitor() = %d after over-release, want 50", got)
	}
	p.Release(-20)
	if got := p.Monitor(); got != 50 {
		t.Fatalf("negative release changed available to %d", got)
	}
}

func TestStatusThresholds(t *testing.T) {
	cases := []struct {
		capacity, reserve int
		want              model.PoolStatus
	}{
		{100, 0, model.StatusOK},
		{100, 1, model.StatusBusy},
		{100, 49, model.StatusBusy},
		{100, 50, model.StatusOverload},
		{100, 100, model.StatusOverload},
		{5, 2, model.StatusBusy},     // 3 > 5/2 (=2)
		{5, 3, model.StatusOverload}, // 2 == 5/2
		{0, 0, model.StatusOK},
	}
	for _, tc := range cases {
		p := NewPool("p", "t", tc.capacity)
		p.Reserve(tc.reserve)
		if got := p.Status(); got != tc.want {
			t.Fatalf("capacity=%d reserved=%d: Status() = %v, want %v", tc.capacity, tc.reserve, got, tc.want)
		}
	}
}

func TestConcurrentReservesNeverOversubscribe(t *testing.T) {
	p := NewPool("GPU", "gpu", 100)

	var wg sync.WaitGroup
	var granted atomic.Int64
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if p.Reserve(7) {
				granted.Add(7)
			}
			assertPoolInvariant(t, p)
		}()
	}
	wg.Wait()

	if got := granted.Load(); got != 98 {
		t.Fatalf("granted %d units, want 98 (14 reservations of 7)", got)
	}
	if got := p.Monitor(); got != 2 {
		t.Fatalf("Monitor() = %d, want 2", got)
	}
}

func TestConcurrentReserveReleaseKeepsInvariant(t *testing.T) {
	p := NewPool("STO", "storage", 10)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if p.Reserve(i%4 + 1) {
					p.Release(i%4 + 1)
				}
				p.Release(1)
				assertPoolInvariant(t, p)
			}
		}(i)
	}
	wg.Wait()

	if got := p.Monitor(); got != 10 {
		t.Fatalf("Monitor() = %d after balanced traffic, want 10", got)
	}
}

type recordingObserver struct {
	mu   sync.Mutex
	last map[string]int
}

func (r *recordingObserver) PoolAvailabilityChanged(pool string, available int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		r.last = make(map[string]int)
	}
	r.last[pool] = available
}

func (r *recordingObserver) get(pool string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.last[pool]
	return v, ok
}

func TestPoolObserverSeesChanges(t *testing.T) {
	obs := &recordingObserver{}
	net := NewNetwork(WithPoolObserver(obs))
	p := NewPool("CPU", "compute", 10)
	if err := net.AddPool(p); err != nil {
		t.Fatalf("AddPool: %v", err)
	}
	if v, ok := obs.get("CPU"); !ok || v != 10 {
		t.Fatalf("observer after AddPool = (%d, %v), want (10, true)", v, ok)
	}
	p.Reserve(4)
	if v, _ := obs.get("CPU"); v != 6 {
		t.Fatalf("observer after Reserve = %d, want 6", v)
	}
	p.Release(4)
	if v, _ := obs.get("CPU"); v != 10 {
		t.Fatalf("observer after Release = %d, want 10", v)
	}
}

func TestPoolStateAndMetadata(t *testing.T) {
	p := NewPool("CPU", "compute", 8)
	if p.State() != model.PoolOnline {
		t.Fatalf("new pool state = %v, want online", p.State())
	}
	p.SetState(model.PoolBusy)
	if p.State() != model.PoolBusy {
		t.Fatalf("State() = %v, want busy", p.State())
	}
	// State is advisory only.
	if !p.Reserve(8) {
		t.Fatalf("Reserve on a busy pool should still succeed")
	}
	p.SetMetadata(map[string]string{"rack": "r1"})
	if md, ok := p.Metadata().(map[string]string); !ok || md["rack"] != "r1" {
		t.Fatalf("Metadata() = %#v", p.Metadata())
	}
	if got := NewPool("neg", "t", -5).Capacity(); got != 0 {
		t.Fatalf("negative capacity clamped to %d, want 0", got)
	}
}
