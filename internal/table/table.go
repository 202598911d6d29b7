// Package table holds the fixed set of cache slots used by the block cache.
package table

import "iter"

// Invalid is the block id of a slot that holds no block.
const Invalid int64 = -1

type (
	// Table is a fixed-length array of [Slot]s.
	// Table is not safe for concurrent use.
	Table struct {
		slots     []Slot
		blockSize int
	}
	// Slot is one cache-resident unit: a block-sized buffer
	// and the [Metadata] describing what it holds.
	Slot struct {
		// Buffer is owned by the slot for its lifetime.
		// Its contents are only meaningful while the slot is resident.
		Buffer []byte
		Metadata
	}
	// Metadata stores the clock state of a cache slot.
	Metadata struct {
		// Block is the device block id held by this slot,
		// or [Invalid].
		Block int64
		// Referenced is true if the slot was accessed
		// since the victim selector last passed over it.
		Referenced bool
		// Dirty is true if Buffer differs from the
		// device's copy of Block.
		Dirty bool
	}
	// Class is the replacement preference of a slot.
	// Lower classes are reclaimed first.
	Class uint8
)

const (
	// Clean is neither referenced nor dirty: reclaimable without I/O.
	Clean Class = iota
	// Dirty is unreferenced but modified: reclaimable after a write-back.
	Dirty
	// Referenced is recently used but unmodified.
	Referenced
	// ReferencedDirty is recently used and modified.
	ReferencedDirty
)

func (c Class) String() string {
	switch c {
	case Clean:
		return "clean"
	case Dirty:
		return "dirty"
	case Referenced:
		return "referenced"
	case ReferencedDirty:
		return "referenced+dirty"
	default:
		return "unknown"
	}
}

// New creates a table of capacity empty slots,
// each owning a buffer of blockSize bytes.
func New(capacity, blockSize int) *Table {
	var (
		slots = make([]Slot, capacity)
		// One backing array keeps the buffers contiguous.
		backing = make([]byte, capacity*blockSize)
	)
	for i := range slots {
		start := i * blockSize
		slots[i] = Slot{
			Buffer:   backing[start : start+blockSize : start+blockSize],
			Metadata: Metadata{Block: Invalid},
		}
	}
	return &Table{
		slots:     slots,
		blockSize: blockSize,
	}
}

// Len returns the number of slots (the table's capacity).
func (t *Table) Len() int { return len(t.slots) }

// BlockSize returns the size of every slot's buffer.
func (t *Table) BlockSize() int { return t.blockSize }

// At returns the slot at index i.
func (t *Table) At(i int) *Slot { return &t.slots[i] }

// Find returns the index of the slot holding block.
func (t *Table) Find(block int64) (int, bool) {
	if block == Invalid {
		return 0, false
	}
	for i := range t.slots {
		if t.slots[i].Block == block {
			return i, true
		}
	}
	return 0, false
}

// FindFree returns the index of the first slot that holds no block.
func (t *Table) FindFree() (int, bool) {
	for i := range t.slots {
		if !t.slots[i].Resident() {
			return i, true
		}
	}
	return 0, false
}

// Resident returns the number of slots holding a block.
func (t *Table) Resident() int {
	var count int
	for i := range t.slots {
		if t.slots[i].Resident() {
			count++
		}
	}
	return count
}

// All returns an iterator over every slot, in index order.
func (t *Table) All() iter.Seq2[int, *Slot] {
	return func(yield func(int, *Slot) bool) {
		for i := range t.slots {
			if !yield(i, &t.slots[i]) {
				return
			}
		}
	}
}

// Resident reports whether the slot holds a block.
func (s *Slot) Resident() bool { return s.Block != Invalid }

// Install marks the slot as holding block.
// A freshly installed slot is always referenced.
func (s *Slot) Install(block int64, dirty bool) {
	s.Block = block
	s.Referenced = true
	s.Dirty = dirty
}

// Invalidate empties the slot.
// The buffer is retained for reuse but its contents are undefined.
func (s *Slot) Invalidate() {
	s.Metadata = Metadata{Block: Invalid}
}

// Class returns the replacement class of the slot.
// Empty slots are always [Clean].
func (m *Metadata) Class() Class {
	var class Class
	if m.Block == Invalid {
		return Clean
	}
	if m.Dirty {
		class |= Dirty
	}
	if m.Referenced {
		class |= Referenced
	}
	return class
}
