package handles

import "math/bits"

// bitmap tracks slot allocation using uint64 words.
type bitmap struct {
	words    []uint64
	numSlots uint32
	freeHint uint32
}

func newBitmap(numSlots uint32) *bitmap {
	return &bitmap{
		words:    make([]uint64, (numSlots+63)/64),
		numSlots: numSlots,
	}
}

// allocate marks the first free slot at or after freeHint, wrapping around.
func (b *bitmap) allocate() (uint32, bool) {
	numWords := uint32(len(b.words))
	if numWords == 0 {
		return 0, false
	}
	startWord := b.freeHint / 64
	for i := uint32(0); i < numWords; i++ {
		wordIdx := (startWord + i) % numWords
		word := b.words[wordIdx]
		if word == ^uint64(0) {
			continue
		}
		bitPos := bits.TrailingZeros64(^word)
		slot := wordIdx*64 + uint32(bitPos)
		if slot >= b.numSlots {
			continue
		}
		b.words[wordIdx] |= 1 << bitPos
		b.freeHint = slot + 1
		return slot, true
	}
	return 0, false
}

func (b *bitmap) free(slot uint32) {
	if slot >= b.numSlots {
		return
	}
	b.words[slot/64] &^= 1 << (slot % 64)
	if slot < b.freeHint {
		b.freeHint = slot
	}
}

// grow raises capacity to newCap slots; shrinking is ignored.
func (b *bitmap) grow(newCap uint32) {
	if newCap <= b.numSlots {
		return
	}
	if n := (newCap + 63) / 64; n > uint32(len(b.words)) {
		words := make([]uint64, n)
		copy(words, b.words)
		b.words = words
	}
	b.numSlots = newCap
}

func (b *bitmap) isAllocated(slot uint32) bool {
	if slot >= b.numSlots {
		return false
	}
	return b.words[slot/64]&(1<<(slot%64)) != 0
}

func (b *bitmap) count() int {
	var n int
	for _, w := range b.words {
		n += bits.OnesCount64(w)
	}
	return n
}
