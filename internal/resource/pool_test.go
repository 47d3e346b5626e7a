package resource

import (
	"errors"
	"testing"
)

type fakeBuffer struct {
	id   int
	size uint64
}

type fakeAllocator struct {
	next  int
	live  map[*fakeBuffer]bool
	freed int
	fail  error
}

func newFakeAllocator() *fakeAllocator {
	return &fakeAllocator{live: make(map[*fakeBuffer]bool)}
}

func (a *fakeAllocator) Alloc(size uint64) (*fakeBuffer, error) {
	if a.fail != nil {
		return nil, a.fail
	}
	a.next++
	b := &fakeBuffer{id: a.next, size: size}
	a.live[b] = true
	return b, nil
}

func (a *fakeAllocator) Free(b *fakeBuffer) {
	delete(a.live, b)
	a.freed++
}

func TestClassSize(t *testing.T) {
	tests := []struct {
		in, want uint64
	}{
		{0, MinClassSize},
		{1, MinClassSize},
		{MinClassSize, MinClassSize},
		{MinClassSize + 1, 2 * MinClassSize},
		{1 << 20, 1 << 20},
		{(1 << 20) + 1, 2 << 20},
	}
	for _, tt := range tests {
		if got := ClassSize(tt.in); got != tt.want {
			t.Errorf("ClassSize(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestPoolReusesReleasedItems(t *testing.T) {
	alloc := newFakeAllocator()
	p := NewPool[*fakeBuffer](alloc, 16)

	a, size, err := p.Acquire(100_000)
	if err != nil {
		t.Fatal(err)
	}
	if size != 128<<10 {
		t.Errorf("size = %d, want %d", size, 128<<10)
	}
	p.Release(a)

	b, _, err := p.Acquire(120_000)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("same size class did not reuse the idle item")
	}
	s := p.Stats()
	if s.Reuses != 1 || s.Allocs != 1 || s.Items != 1 || s.Idle != 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestPoolEvictsIdleUnderPressure(t *testing.T) {
	alloc := newFakeAllocator()
	p := NewPool[*fakeBuffer](alloc, 16)

	first, _, _ := p.Acquire(8 << 20)
	second, _, _ := p.Acquire(4 << 20)
	p.Release(first)
	p.Release(second)

	// 8 MB + 4 MB idle; a new 8 MB class needs room, oldest goes first.
	if _, _, err := p.Acquire(9 << 20); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if alloc.live[first] {
		t.Error("least recently released item was not evicted")
	}
	if s := p.Stats(); s.Evictions == 0 {
		t.Errorf("no evictions recorded: %+v", s)
	}
}

func TestPoolBudgetExceeded(t *testing.T) {
	p := NewPool[*fakeBuffer](newFakeAllocator(), 16)
	if _, _, err := p.Acquire(32 << 20); !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("oversized Acquire: err = %v, want ErrBudgetExceeded", err)
	}

	held, _, err := p.Acquire(16 << 20)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := p.Acquire(1); !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("Acquire with budget checked out: err = %v", err)
	}
	p.Release(held)
}

func TestPoolAllocError(t *testing.T) {
	alloc := newFakeAllocator()
	alloc.fail = errors.New("device lost")
	p := NewPool[*fakeBuffer](alloc, 16)
	if _, _, err := p.Acquire(10); err == nil {
		t.Fatal("allocation error swallowed")
	}
	if s := p.Stats(); s.UsedBytes != 0 {
		t.Errorf("failed allocation counted: %+v", s)
	}
}

func TestPoolClose(t *testing.T) {
	alloc := newFakeAllocator()
	p := NewPool[*fakeBuffer](alloc, 16)

	idle, _, _ := p.Acquire(10)
	held, _, _ := p.Acquire(10)
	p.Release(idle)
	p.Close()

	if alloc.live[idle] {
		t.Error("Close kept an idle item alive")
	}
	if !alloc.live[held] {
		t.Error("Close freed an item still checked out")
	}
	freed := alloc.freed
	p.Release(held)
	if alloc.freed != freed {
		t.Error("release after Close called the allocator")
	}
	if _, _, err := p.Acquire(10); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Acquire after Close: err = %v", err)
	}
	if s := p.Stats(); s.UsedBytes != 0 || s.Items != 0 {
		t.Errorf("stats after Close = %+v", s)
	}
}

func TestPoolTrim(t *testing.T) {
	alloc := newFakeAllocator()
	p := NewPool[*fakeBuffer](alloc, 16)

	a, _, _ := p.Acquire(10)
	b, _, _ := p.Acquire(MinClassSize * 4)
	held, _, _ := p.Acquire(10)
	p.Release(a)
	p.Release(b)
	p.Trim()

	if alloc.live[a] || alloc.live[b] {
		t.Error("Trim kept an idle item alive")
	}
	if !alloc.live[held] {
		t.Error("Trim freed an item still checked out")
	}
	s := p.Stats()
	if s.Idle != 0 || s.Items != 1 || s.UsedBytes != MinClassSize || s.Frees != 2 {
		t.Errorf("stats after Trim = %+v", s)
	}

	// The pool stays usable.
	c, _, err := p.Acquire(10)
	if err != nil {
		t.Fatalf("Acquire after Trim: %v", err)
	}
	p.Release(c)
	p.Release(held)
}
