// Package fastmap provides a small open-addressing hash map for uint32 keys.
// Sequential keys, such as table handles, spread well under fibonacci hashing.
package fastmap

// Uint32Map maps uint32 keys to values of type V.
// The zero value is an empty map ready to use. It is not safe for
// concurrent use.
type Uint32Map[V any] struct {
	buckets []bucket[V]
	count   int
	mask    uint32
}

type bucket[V any] struct {
	key   uint32
	value V
	used  bool // key 0 is a valid key
}

// 2^32 / golden ratio
const fibHash32 = 2654435769

func (m *Uint32Map[V]) index(key uint32) uint32 {
	return (key * fibHash32) & m.mask
}

// Get returns the value stored for key.
func (m *Uint32Map[V]) Get(key uint32) (V, bool) {
	var zero V
	if len(m.buckets) == 0 {
		return zero, false
	}
	idx := m.index(key)
	for {
		b := &m.buckets[idx]
		if !b.used {
			return zero, false
		}
		if b.key == key {
			return b.value, true
		}
		idx = (idx + 1) & m.mask
	}
}

// Set stores value under key, replacing any previous value.
func (m *Uint32Map[V]) Set(key uint32, value V) {
	if len(m.buckets) == 0 {
		m.buckets = make([]bucket[V], 16)
		m.mask = 15
	} else if m.count >= len(m.buckets)*3/4 {
		m.grow()
	}

	idx := m.index(key)
	for {
		b := &m.buckets[idx]
		if !b.used {
			b.key = key
			b.value = value
			b.used = true
			m.count++
			return
		}
		if b.key == key {
			b.value = value
			return
		}
		idx = (idx + 1) & m.mask
	}
}

// Delete removes key and reports whether it was present.
// Later entries of the collision run are shifted back so lookups never stop at
// a hole left by the deletion.
func (m *Uint32Map[V]) Delete(key uint32) bool {
	if len(m.buckets) == 0 {
		return false
	}
	idx := m.index(key)
	for {
		b := &m.buckets[idx]
		if !b.used {
			return false
		}
		if b.key == key {
			break
		}
		idx = (idx + 1) & m.mask
	}

	hole := idx
	next := (hole + 1) & m.mask
	for m.buckets[next].used {
		home := m.index(m.buckets[next].key)
		// Move the entry unless its home lies cyclically in (hole, next].
		if (next-home)&m.mask >= (next-hole)&m.mask {
			m.buckets[hole] = m.buckets[next]
			hole = next
		}
		next = (next + 1) & m.mask
	}
	m.buckets[hole] = bucket[V]{}
	m.count--
	return true
}

// grow doubles the table size.
func (m *Uint32Map[V]) grow() {
	old := m.buckets
	size := len(old) * 2
	m.buckets = make([]bucket[V], size)
	m.mask = uint32(size - 1)
	m.count = 0

	for i := range old {
		if old[i].used {
			m.Set(old[i].key, old[i].value)
		}
	}
}

// ForEach calls fn for every entry in unspecified order.
func (m *Uint32Map[V]) ForEach(fn func(uint32, V)) {
	for i := range m.buckets {
		if m.buckets[i].used {
			fn(m.buckets[i].key, m.buckets[i].value)
		}
	}
}

// Clear removes all entries but keeps the backing array.
func (m *Uint32Map[V]) Clear() {
	clear(m.buckets)
	m.count = 0
}

// Len returns the number of entries.
func (m *Uint32Map[V]) Len() int {
	return m.count
}
