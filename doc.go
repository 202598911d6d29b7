// Package blockcache implements a fixed-capacity, write-back [Cache]
// of device blocks, using the enhanced CLOCK (second chance)
// replacement algorithm to choose which block to evict.
//
// The cache sits between callers that read and write whole blocks
// by numeric id and a [device.Device] that performs the actual I/O.
// Writes only touch the cache; the device sees a block again when it
// is evicted, or when [Cache.Sync] or [Cache.Flush] is called.
//
// The following is a summary (intended for maintainers).
//
// Glossary and invariants:
//
//   - Slot holds one block-sized buffer plus metadata.
//
//     A slot owns its buffer; data is always copied in and out.
//
//   - Resident
//
//     The slot holds a block. At most one slot holds any given block id.
//     Empty slots are never referenced or dirty.
//
//   - Referenced
//
//     Set whenever the slot is hit or filled;
//     cleared by the clock hand as it passes over the slot.
//
//   - Dirty
//
//     The buffer differs from the device's copy of the block.
//     Cleared only after the buffer was successfully written back.
//
// Replacement classes, from most to least preferred victim:
//
//   - (referenced=0, dirty=0): reclaimed without I/O.
//   - (referenced=0, dirty=1): reclaimed after a write-back.
//   - (referenced=1, dirty=0): spared, reference bit cleared.
//   - (referenced=1, dirty=1): spared, reference bit cleared.
//
// Hand:
//
//   - cursor
//
//     The index of the last victim. Each selection starts one slot past it,
//     so repeated eviction sweeps the slots round-robin.
//     A selection first sweeps for an unreferenced clean slot,
//     then for an unreferenced dirty slot while aging every slot it passes.
//     One aging sweep leaves no slot referenced,
//     so a selection never takes more than two such passes.
//
// Concurrency:
//
//   - A single mutex guards the whole cache.
//
//     Each operation holds it until it returns,
//     including while waiting for the device.
//
// Errors:
//
//   - Negative block ids are rejected with [ErrInvalidBlockID]
//     and reported to the configured [Reporter]; nothing else happens.
//
//   - Device errors are returned wrapped, never retried.
//     A block whose write-back failed stays resident and dirty.
package blockcache
