package fastmap

import (
	"math/rand"
	"testing"
)

type dummy struct {
	x int
}

func TestUint32Map(t *testing.T) {
	m := &Uint32Map[*dummy]{}

	if _, ok := m.Get(1); ok {
		t.Error("Expected miss on empty map")
	}

	d1 := &dummy{100}
	d2 := &dummy{200}
	m.Set(1, d1)
	m.Set(2, d2)

	if v, _ := m.Get(1); v != d1 {
		t.Error("Get(1) failed")
	}
	if v, _ := m.Get(2); v != d2 {
		t.Error("Get(2) failed")
	}
	if _, ok := m.Get(3); ok {
		t.Error("Get(3) should miss")
	}

	// Update
	d3 := &dummy{300}
	m.Set(1, d3)
	if v, _ := m.Get(1); v != d3 {
		t.Error("Update failed")
	}
	if m.Len() != 2 {
		t.Errorf("Expected len=2, got %d", m.Len())
	}

	m.Clear()
	if m.Len() != 0 {
		t.Error("Clear failed")
	}
	if _, ok := m.Get(1); ok {
		t.Error("Get after clear should miss")
	}
}

func TestUint32MapGrowth(t *testing.T) {
	m := &Uint32Map[int]{}

	n := 10000
	for i := 0; i < n; i++ {
		m.Set(uint32(i), i*10)
	}
	if m.Len() != n {
		t.Errorf("Expected len=%d, got %d", n, m.Len())
	}
	for i := 0; i < n; i++ {
		if v, ok := m.Get(uint32(i)); !ok || v != i*10 {
			t.Errorf("Get(%d) = %d, %v", i, v, ok)
		}
	}
}

func TestUint32MapZeroKey(t *testing.T) {
	m := &Uint32Map[string]{}
	m.Set(0, "zero")

	if v, ok := m.Get(0); !ok || v != "zero" {
		t.Error("Zero key failed")
	}
	if m.Len() != 1 {
		t.Error("Len should be 1")
	}
}

func TestUint32MapDelete(t *testing.T) {
	m := &Uint32Map[int]{}
	for i := 0; i < 1000; i++ {
		m.Set(uint32(i), i)
	}

	// Remove every third key and check the survivors are still reachable
	// through the collision runs that passed the removed buckets.
	for i := 0; i < 1000; i += 3 {
		if !m.Delete(uint32(i)) {
			t.Fatalf("Delete(%d) reported missing key", i)
		}
	}
	if m.Delete(0) {
		t.Error("Delete of removed key succeeded")
	}
	for i := 0; i < 1000; i++ {
		v, ok := m.Get(uint32(i))
		if i%3 == 0 {
			if ok {
				t.Errorf("Get(%d) found deleted key", i)
			}
			continue
		}
		if !ok || v != i {
			t.Errorf("Get(%d) = %d, %v; want %d, true", i, v, ok, i)
		}
	}
	if want := 1000 - 334; m.Len() != want {
		t.Errorf("Len() = %d, want %d", m.Len(), want)
	}
}

func TestUint32MapRandomAgainstBuiltin(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	m := &Uint32Map[uint32]{}
	ref := make(map[uint32]uint32)

	for i := 0; i < 20000; i++ {
		k := uint32(rng.Intn(512))
		switch rng.Intn(3) {
		case 0, 1:
			m.Set(k, uint32(i))
			ref[k] = uint32(i)
		case 2:
			_, want := ref[k]
			if got := m.Delete(k); got != want {
				t.Fatalf("Delete(%d) = %v, want %v", k, got, want)
			}
			delete(ref, k)
		}
	}
	if m.Len() != len(ref) {
		t.Fatalf("Len() = %d, want %d", m.Len(), len(ref))
	}
	for k, want := range ref {
		if got, ok := m.Get(k); !ok || got != want {
			t.Errorf("Get(%d) = %d, %v; want %d", k, got, ok, want)
		}
	}
	seen := 0
	m.ForEach(func(uint32, uint32) { seen++ })
	if seen != len(ref) {
		t.Errorf("ForEach visited %d entries, want %d", seen, len(ref))
	}
}

func BenchmarkFastMapSeqRead(b *testing.B) {
	m := &Uint32Map[int]{}
	for i := 0; i < 100000; i++ {
		m.Set(uint32(i), i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = m.Get(uint32(i % 100000))
	}
}

func BenchmarkGoMapSeqRead(b *testing.B) {
	m := make(map[uint32]int)
	for i := 0; i < 100000; i++ {
		m[uint32(i)] = i
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m[uint32(i%100000)]
	}
}

func BenchmarkFastMapRandRead(b *testing.B) {
	m := &Uint32Map[int]{}
	keys := make([]uint32, 100000)
	for i := range keys {
		keys[i] = rand.Uint32()
		m.Set(keys[i], i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = m.Get(keys[i%100000])
	}
}
