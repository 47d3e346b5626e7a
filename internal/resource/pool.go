package resource

import (
	"container/list"
	"errors"
	"fmt"
	"math/bits"
	"sync"
)

// Pool errors.
var (
	// ErrBudgetExceeded is returned when an allocation cannot fit in the
	// budget even after evicting every idle item.
	ErrBudgetExceeded = errors.New("resource: pool budget exceeded")

	// ErrPoolClosed is returned when acquiring from a closed pool.
	ErrPoolClosed = errors.New("resource: pool closed")
)

// Pool sizing defaults.
const (
	// DefaultBudgetMB is the default pool budget (256 MB).
	DefaultBudgetMB = 256

	// MinBudgetMB is the smallest accepted budget (16 MB).
	MinBudgetMB = 16

	// MinClassSize is the smallest size class (64 KB).
	MinClassSize = 64 << 10
)

// ClassSize rounds size up to its power-of-two size class.
func ClassSize(size uint64) uint64 {
	if size <= MinClassSize {
		return MinClassSize
	}
	return 1 << bits.Len64(size-1)
}

// Allocator creates and destroys the pooled items.
type Allocator[T comparable] interface {
	Alloc(size uint64) (T, error)
	Free(item T)
}

// PoolStats is a snapshot of pool usage.
type PoolStats struct {
	BudgetBytes uint64
	UsedBytes   uint64
	IdleBytes   uint64
	Items       int
	Idle        int
	Reuses      uint64
	Allocs      uint64
	Evictions   uint64
	Frees       uint64
}

// String returns a human-readable summary.
func (s PoolStats) String() string {
	return fmt.Sprintf("Pool[%d/%d MB, %d items (%d idle), %d reuses, %d allocs, %d evictions, %d frees]",
		s.UsedBytes>>20, s.BudgetBytes>>20, s.Items, s.Idle, s.Reuses, s.Allocs, s.Evictions, s.Frees)
}

type poolEntry[T comparable] struct {
	item    T
	size    uint64
	element *list.Element // position in idle list, nil while checked out
}

// Pool recycles fixed-size items by size class within a byte budget.
// Items are checked out with Acquire and returned with Release. Idle items
// are evicted least recently released first when an allocation needs room.
//
// Pool is safe for concurrent use.
type Pool[T comparable] struct {
	mu     sync.Mutex
	alloc  Allocator[T]
	budget uint64
	used   uint64

	entries map[T]*poolEntry[T]
	idle    map[uint64][]*poolEntry[T] // by size class
	lru     *list.List                 // front = most recently released

	reuses, allocs, evictions, frees uint64
	closed                           bool
}

// NewPool creates a pool. Budgets below MinBudgetMB fall back to
// DefaultBudgetMB.
func NewPool[T comparable](alloc Allocator[T], budgetMB int) *Pool[T] {
	if budgetMB < MinBudgetMB {
		budgetMB = DefaultBudgetMB
	}
	return &Pool[T]{
		alloc:   alloc,
		budget:  uint64(budgetMB) << 20,
		entries: make(map[T]*poolEntry[T]),
		idle:    make(map[uint64][]*poolEntry[T]),
		lru:     list.New(),
	}
}

// Acquire returns an item of at least size bytes and its actual size.
func (p *Pool[T]) Acquire(size uint64) (T, uint64, error) {
	var zero T
	class := ClassSize(size)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return zero, 0, ErrPoolClosed
	}

	if stack := p.idle[class]; len(stack) > 0 {
		e := stack[len(stack)-1]
		p.idle[class] = stack[:len(stack)-1]
		p.lru.Remove(e.element)
		e.element = nil
		p.reuses++
		return e.item, e.size, nil
	}

	if class > p.budget {
		return zero, 0, fmt.Errorf("%w: %d MB request exceeds %d MB budget",
			ErrBudgetExceeded, class>>20, p.budget>>20)
	}
	for p.used+class > p.budget && p.lru.Len() > 0 {
		p.evictOldestLocked()
	}
	if p.used+class > p.budget {
		return zero, 0, fmt.Errorf("%w: need %d bytes, %d in use", ErrBudgetExceeded, class, p.used)
	}

	item, err := p.alloc.Alloc(class)
	if err != nil {
		return zero, 0, err
	}
	p.entries[item] = &poolEntry[T]{item: item, size: class}
	p.used += class
	p.allocs++
	return item, class, nil
}

// Release returns item to the pool. Items the pool does not own are freed
// directly. After Close, Release only forgets the item and never calls the
// allocator.
func (p *Pool[T]) Release(item T) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[item]
	if p.closed {
		if ok {
			delete(p.entries, item)
			p.used -= e.size
		}
		return
	}
	if !ok {
		p.freeLocked(item)
		return
	}
	if e.element != nil {
		return
	}
	e.element = p.lru.PushFront(e)
	p.idle[e.size] = append(p.idle[e.size], e)
}

// Stats returns a usage snapshot.
func (p *Pool[T]) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	var idleBytes uint64
	for el := p.lru.Front(); el != nil; el = el.Next() {
		idleBytes += el.Value.(*poolEntry[T]).size
	}
	return PoolStats{
		BudgetBytes: p.budget,
		UsedBytes:   p.used,
		IdleBytes:   idleBytes,
		Items:       len(p.entries),
		Idle:        p.lru.Len(),
		Reuses:      p.reuses,
		Allocs:      p.allocs,
		Evictions:   p.evictions,
		Frees:       p.frees,
	}
}

// Trim frees every idle item.
func (p *Pool[T]) Trim() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.lru.Len() > 0 {
		p.evictOldestLocked()
	}
}

// Close frees idle items and rejects further Acquire calls. Items still
// checked out are not freed; owners must release them before Close.
func (p *Pool[T]) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	for p.lru.Len() > 0 {
		p.evictOldestLocked()
	}
	p.closed = true
}

// Caller must hold p.mu and ensure the idle list is non-empty.
func (p *Pool[T]) evictOldestLocked() {
	el := p.lru.Back()
	e := el.Value.(*poolEntry[T])
	p.lru.Remove(el)
	e.element = nil

	stack := p.idle[e.size]
	for i, s := range stack {
		if s == e {
			p.idle[e.size] = append(stack[:i], stack[i+1:]...)
			break
		}
	}
	delete(p.entries, e.item)
	p.used -= e.size
	p.evictions++
	p.freeLocked(e.item)
}

func (p *Pool[T]) freeLocked(item T) {
	p.frees++
	p.alloc.Free(item)
}
