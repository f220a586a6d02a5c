// Package handles tracks which resource handles depend on which, so that
// closing one handle invalidates everything created beneath it.
//
// Handles live in slots of a Table. A Ref remembers the slot and the slot's
// generation at registration time; invalidating a handle bumps the
// generation, so a validity check is one atomic load and a compare.
package handles

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrDeadParent is returned by Register when a parent is no longer valid.
var ErrDeadParent = errors.New("handles: parent handle is no longer valid")

const initialSlots = 64

// pruneAt is the child-list length at which dead links are compacted.
const pruneAt = 16

type slot struct {
	index    uint32
	gen      atomic.Uint64
	release  func()
	children []Ref
}

// Ref names one registration of a handle. The zero Ref is never live.
type Ref struct {
	s   *slot
	gen uint64
}

// Live reports whether the handle has not been invalidated.
func (r Ref) Live() bool {
	return r.s != nil && r.s.gen.Load() == r.gen
}

// Table is the dependency graph of one environment.
type Table struct {
	mu    sync.Mutex
	slots []*slot
	used  *bitmap
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{
		slots: make([]*slot, initialSlots),
		used:  newBitmap(initialSlots),
	}
}

// Root registers a handle with no parents, such as an environment.
func (t *Table) Root(release func()) Ref {
	r, _ := t.Register(release)
	return r
}

// Register adds a handle beneath every parent. release runs once, when the
// handle is invalidated, after every handle beneath it has been released.
func (t *Table) Register(release func(), parents ...Ref) (Ref, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, p := range parents {
		if !p.Live() {
			return Ref{}, ErrDeadParent
		}
	}

	idx, ok := t.used.allocate()
	if !ok {
		n := uint32(len(t.slots))
		t.used.grow(n * 2)
		t.slots = append(t.slots, make([]*slot, n)...)
		idx, _ = t.used.allocate()
	}
	s := t.slots[idx]
	if s == nil {
		s = &slot{index: idx}
		t.slots[idx] = s
	}
	s.release = release
	ref := Ref{s: s, gen: s.gen.Load()}

	for _, p := range parents {
		p.s.addChild(ref)
	}
	return ref, nil
}

func (s *slot) addChild(child Ref) {
	if len(s.children) >= pruneAt && len(s.children) == cap(s.children) {
		live := s.children[:0]
		for _, c := range s.children {
			if c.Live() {
				live = append(live, c)
			}
		}
		clear(s.children[len(live):])
		s.children = live
	}
	for _, c := range s.children {
		if c == child {
			return
		}
	}
	s.children = append(s.children, child)
}

// Invalidate marks r and everything beneath it invalid, then runs the
// release functions children first. It reports whether r was live.
// Invalidating a dead Ref is a no-op.
func (t *Table) Invalidate(r Ref) bool {
	t.mu.Lock()
	if !r.Live() {
		t.mu.Unlock()
		return false
	}
	var releases []func()
	t.collect(r, &releases)
	t.mu.Unlock()

	for _, fn := range releases {
		fn()
	}
	return true
}

// collect kills r before descending so that no child can attach to it while
// its subtree is torn down, and appends release functions in post-order.
func (t *Table) collect(r Ref, out *[]func()) {
	s := r.s
	s.gen.Add(1)
	children := s.children
	release := s.release
	s.children = nil
	s.release = nil
	t.used.free(s.index)

	for _, c := range children {
		if c.Live() {
			t.collect(c, out)
		}
	}
	if release != nil {
		*out = append(*out, release)
	}
}

// Len returns the number of live handles.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.used.count()
}
