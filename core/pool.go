package core

import (
	"fmt"
	"sync"

	"github.com/signalsfoundry/resource-fabric/model"
)

// PoolObserver is notified with the new available value after every change
// to a pool's available capacity. It runs while the pool lock is held and
// must not call back into the pool.
type PoolObserver interface {
	PoolAvailabilityChanged(pool string, available int)
}

// ResourcePool is a named holder of reservable capacity: the node of the
// resource graph.
//
// The pool lock guards available, state, metadata and the incident-link list.
// No pool operation ever takes a second pool's lock.
type ResourcePool struct {
	name     string
	typ      string
	capacity int

	mu        sync.Mutex
	available int
	state     model.PoolState
	metadata  any
	// links holds IDs of incident links. The owning Network holds the links
	// themselves.
	links    []string
	attached bool
	observer PoolObserver
}

// NewPool creates an online pool with available == capacity. A negative
// capacity is treated as zero.
func NewPool(name, typ string, capacity int) *ResourcePool {
	if capacity < 0 {
		capacity = 0
	}
	return &ResourcePool{
		name:      name,
		typ:       typ,
		capacity:  capacity,
		available: capacity,
		state:     model.PoolOnline,
	}
}

func (p *ResourcePool) Name() string  { return p.name }
func (p *ResourcePool) Type() string  { return p.typ }
func (p *ResourcePool) Capacity() int { return p.capacity }

// Reserve takes amount units iff amount <= available. There is no partial
// reservation.
func (p *ResourcePool) Reserve(amount int) bool {
	if amount < 0 {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if amount > p.available {
		return false
	}
	p.available -= amount
	p.notifyLocked()
	return true
}

// Release returns amount units to the pool. Anything that would push
// available above capacity is dropped.
func (p *ResourcePool) Release(amount int) {
	if amount <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.available += amount
	if p.available > p.capacity {
		p.available = p.capacity
	}
	p.notifyLocked()
}

// Monitor returns the currently available units.
func (p *ResourcePool) Monitor() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.available
}

// Status classifies the pool's current load.
func (p *ResourcePool) Status() model.PoolStatus {
	return model.ClassifyLoad(p.Monitor(), p.capacity)
}

func (p *ResourcePool) State() model.PoolState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// SetState records an advisory lifecycle state.
func (p *ResourcePool) SetState(s model.PoolState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *ResourcePool) Metadata() any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metadata
}

// SetMetadata attaches opaque user data to the pool.
func (p *ResourcePool) SetMetadata(v any) {
	p.mu.Lock()
	p.metadata = v
	p.mu.Unlock()
}

// Links returns the IDs of the links incident to the pool, in the order they
// were attached.
func (p *ResourcePool) Links() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.links...)
}

func (p *ResourcePool) String() string {
	return fmt.Sprintf("%s (%s, %d/%d)", p.name, p.typ, p.Monitor(), p.capacity)
}

func (p *ResourcePool) notifyLocked() {
	if p.observer != nil {
		p.observer.PoolAvailabilityChanged(p.name, p.available)
	}
}

// attach marks the pool as owned by a network. It fails if another network
// already owns it.
func (p *ResourcePool) attach(obs PoolObserver) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.attached {
		return false
	}
	p.attached = true
	p.observer = obs
	p.notifyLocked()
	return true
}

func (p *ResourcePool) detach() {
	p.mu.Lock()
	p.attached = false
	p.observer = nil
	p.links = nil
	p.mu.Unlock()
}

func (p *ResourcePool) addLink(id string) {
	p.mu.Lock()
	p.links = append(p.links, id)
	p.mu.Unlock()
}

func (p *ResourcePool) removeLink(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, l := range p.links {
		if l == id {
			p.links = append(p.links[:i], p.links[i+1:]...)
			return
		}
	}
}
