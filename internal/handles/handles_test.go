package handles

import (
	"errors"
	"slices"
	"sync"
	"testing"
)

func TestInvalidateCascade(t *testing.T) {
	tbl := NewTable()
	var order []string
	rec := func(name string) func() {
		return func() { order = append(order, name) }
	}

	env := tbl.Root(rec("env"))
	db, err := tbl.Register(rec("db"), env)
	if err != nil {
		t.Fatalf("Register(db) failed: %v", err)
	}
	txn, _ := tbl.Register(rec("txn"), env)
	cur, err := tbl.Register(rec("cursor"), txn, db)
	if err != nil {
		t.Fatalf("Register(cursor) failed: %v", err)
	}

	if !tbl.Invalidate(env) {
		t.Fatal("Invalidate(env) reported a dead ref")
	}
	for name, r := range map[string]Ref{"env": env, "db": db, "txn": txn, "cursor": cur} {
		if r.Live() {
			t.Errorf("%s still live after env invalidation", name)
		}
	}

	// Every release ran exactly once and children precede parents.
	if len(order) != 4 {
		t.Fatalf("releases = %v, want 4 entries", order)
	}
	pos := func(name string) int { return slices.Index(order, name) }
	if pos("cursor") > pos("txn") || pos("cursor") > pos("db") {
		t.Errorf("cursor released after a parent: %v", order)
	}
	if pos("env") != 3 {
		t.Errorf("env not released last: %v", order)
	}
	if tbl.Len() != 0 {
		t.Errorf("Len() = %d, want 0", tbl.Len())
	}
}

func TestInvalidateIdempotent(t *testing.T) {
	tbl := NewTable()
	calls := 0
	root, _ := tbl.Register(func() { calls++ })

	tbl.Invalidate(root)
	if tbl.Invalidate(root) {
		t.Error("second Invalidate reported a live ref")
	}
	if calls != 1 {
		t.Errorf("release ran %d times, want 1", calls)
	}
}

func TestInvalidateSubtreeOnly(t *testing.T) {
	tbl := NewTable()
	env, _ := tbl.Register(nil)
	txn, _ := tbl.Register(nil, env)
	cur, _ := tbl.Register(nil, txn)
	db, _ := tbl.Register(nil, env)

	tbl.Invalidate(txn)
	if cur.Live() || txn.Live() {
		t.Error("txn subtree still live")
	}
	if !env.Live() || !db.Live() {
		t.Error("siblings and ancestors must survive")
	}
}

func TestRegisterUnderDeadParent(t *testing.T) {
	tbl := NewTable()
	env, _ := tbl.Register(nil)
	txn, _ := tbl.Register(nil, env)
	tbl.Invalidate(txn)

	if _, err := tbl.Register(nil, env, txn); !errors.Is(err, ErrDeadParent) {
		t.Fatalf("Register under dead parent: err = %v, want ErrDeadParent", err)
	}
	if tbl.Len() != 1 {
		t.Errorf("Len() = %d, want 1", tbl.Len())
	}
}

func TestSlotReuseKeepsOldRefDead(t *testing.T) {
	tbl := NewTable()
	env, _ := tbl.Register(nil)
	old, _ := tbl.Register(nil, env)
	tbl.Invalidate(old)

	fresh, _ := tbl.Register(nil, env)
	if fresh.s != old.s {
		t.Fatalf("slot was not reused")
	}
	if old.Live() {
		t.Error("stale ref became live after slot reuse")
	}
	if !fresh.Live() {
		t.Error("fresh ref not live")
	}
}

func TestGrowth(t *testing.T) {
	tbl := NewTable()
	env, _ := tbl.Register(nil)
	refs := make([]Ref, 1000)
	for i := range refs {
		r, err := tbl.Register(nil, env)
		if err != nil {
			t.Fatalf("Register(%d) failed: %v", i, err)
		}
		refs[i] = r
	}
	if tbl.Len() != 1001 {
		t.Fatalf("Len() = %d, want 1001", tbl.Len())
	}
	tbl.Invalidate(env)
	for i, r := range refs {
		if r.Live() {
			t.Fatalf("ref %d survived env invalidation", i)
		}
	}
}

func TestChildPruning(t *testing.T) {
	tbl := NewTable()
	env, _ := tbl.Register(nil)
	for i := 0; i < 1000; i++ {
		r, _ := tbl.Register(nil, env)
		tbl.Invalidate(r)
	}
	if n := len(env.s.children); n > 2*pruneAt {
		t.Errorf("env holds %d child links after churn", n)
	}
}

func TestConcurrentRegister(t *testing.T) {
	tbl := NewTable()
	env, _ := tbl.Register(nil)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				r, err := tbl.Register(nil, env)
				if err != nil {
					return
				}
				tbl.Invalidate(r)
			}
		}()
	}
	wg.Wait()
	if tbl.Len() != 1 {
		t.Errorf("Len() = %d, want 1", tbl.Len())
	}
}

func TestBitmap(t *testing.T) {
	b := newBitmap(4)
	for i := uint32(0); i < 4; i++ {
		slot, ok := b.allocate()
		if !ok || slot != i {
			t.Fatalf("allocate() = %d, %v; want %d, true", slot, ok, i)
		}
	}
	if _, ok := b.allocate(); ok {
		t.Fatal("allocate on full bitmap succeeded")
	}
	b.free(2)
	if b.isAllocated(2) {
		t.Error("slot 2 still allocated")
	}
	if slot, _ := b.allocate(); slot != 2 {
		t.Errorf("allocate() = %d, want 2", slot)
	}
	b.grow(130)
	if slot, _ := b.allocate(); slot != 4 {
		t.Errorf("allocate() after grow = %d, want 4", slot)
	}
	if b.count() != 5 {
		t.Errorf("count() = %d, want 5", b.count())
	}
}
