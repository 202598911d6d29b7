// Package clock implements victim selection for the block cache
// using the enhanced (four class) second-chance algorithm.
//
// Slots are ranked by their (referenced, dirty) bits:
//
//   - [table.Clean] (0,0): reclaim immediately.
//   - [table.Dirty] (0,1): reclaim after a write-back.
//   - [table.Referenced] (1,0): spared; aged towards Clean.
//   - [table.ReferencedDirty] (1,1): spared; aged towards Dirty.
//
// A pass consists of two circular sweeps over the table,
// both starting one slot past the previous victim.
// The first sweep looks for a Clean slot and changes nothing.
// The second sweep looks for a Dirty slot and clears the
// reference bit of every slot it passes over.
// A pass that selects nothing leaves every slot unreferenced,
// so the following pass must select; [MaxPasses] bounds the scan.
package clock

import "github.com/djdv/go-blockcache/internal/table"

// MaxPasses is the upper bound on passes needed by [Select].
const MaxPasses = 2

// Selection is the result of [Select].
type Selection struct {
	// Victim is the index of the slot to reclaim.
	Victim int
	// Cursor is the value to pass to the next call of [Select].
	Cursor int
	// Passes is the number of passes the scan started.
	Passes int
}

// Select chooses a slot of t to reclaim, scanning from cursor+1.
// Reference bits of spared slots are cleared as a side effect;
// no other slot state is changed.
// The victim is never referenced, but may be dirty;
// callers must write it back before reuse.
//
// t must have at least one slot and cursor must index a slot of t.
func Select(t *table.Table, cursor int) Selection {
	var (
		length = t.Len()
		start  = (cursor + 1) % length
	)
	for pass := 1; ; pass++ {
		if victim, ok := sweep(t, start, table.Clean, false); ok {
			return selected(victim, pass)
		}
		if victim, ok := sweep(t, start, table.Dirty, true); ok {
			return selected(victim, pass)
		}
		if pass == MaxPasses {
			// Unreachable: the previous sweep aged every slot.
			panic("clock: no victim after aging every slot")
		}
	}
}

func selected(victim, passes int) Selection {
	return Selection{
		Victim: victim,
		Cursor: victim,
		Passes: passes,
	}
}

// sweep walks the table once, circularly from start,
// returning the first slot in class want.
// If age is set, slots passed over lose their reference bit.
func sweep(t *table.Table, start int, want table.Class, age bool) (int, bool) {
	length := t.Len()
	for offset := range length {
		var (
			index = (start + offset) % length
			slot  = t.At(index)
		)
		if slot.Class() == want {
			return index, true
		}
		if age {
			slot.Referenced = false
		}
	}
	return 0, false
}
