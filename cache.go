package blockcache

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/djdv/go-blockcache/device"
	"github.com/djdv/go-blockcache/internal/clock"
	"github.com/djdv/go-blockcache/internal/table"
)

type (
	// Cache is a write-back cache of fixed-size device blocks.
	// It is safe for concurrent use; every operation holds
	// a single lock for its full duration, device I/O included.
	// Constructed by [New].
	Cache struct {
		mu       sync.Mutex
		slots    *table.Table
		device   device.Device
		logger   *slog.Logger
		report   Reporter
		observer Observer
		stats    Stats
		cursor   int
		closed   bool
	}
	// SlotState describes the contents of one cache slot.
	SlotState struct {
		// Block is the resident block id, or -1 if the slot is empty.
		Block      int64
		Referenced bool
		Dirty      bool
	}
)

// MinimumCapacity defines the lowest value supported by [New].
const MinimumCapacity = 1

// New creates a [Cache] of capacity slots, each holding
// one blockSize byte block of dev.
// blockSize must match the block size dev was created with.
func New(blockSize, capacity int, dev device.Device, opts ...Option) (*Cache, error) {
	switch {
	case capacity < MinimumCapacity:
		return nil, minCapacityError(capacity)
	case blockSize < 1:
		return nil, blockSizeError(blockSize)
	case dev == nil:
		return nil, ErrNilDevice
	}
	settings := newOptions(opts)
	return &Cache{
		slots:    table.New(capacity, blockSize),
		device:   dev,
		logger:   settings.logger,
		report:   settings.reporter,
		observer: settings.observer,
		cursor:   capacity - 1,
	}, nil
}

// Read copies block id into dst.
// On a miss the block is loaded from the device,
// reclaiming a slot if the cache is full.
func (c *Cache) Read(id int64, dst []byte) error {
	const op = "read"
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkRequest(op, id, dst); err != nil {
		return err
	}
	if index, hit := c.slots.Find(id); hit {
		slot := c.slots.At(index)
		copy(dst, slot.Buffer)
		slot.Referenced = true
		c.hit(op, id, index)
		return nil
	}
	c.miss(op, id)
	index, err := c.reclaim()
	if err != nil {
		return err
	}
	slot := c.slots.At(index)
	if err := c.device.ReadBlock(id, slot.Buffer); err != nil {
		c.logger.Error("device read failed",
			"block", id,
			"slot", index,
			"error", err,
		)
		return fmt.Errorf("read block %d: %w", id, err)
	}
	c.stats.DeviceReads++
	slot.Install(id, false)
	copy(dst, slot.Buffer)
	c.checkInvariants()
	return nil
}

// Write replaces the contents of block id with src.
// The device is not written until the block is evicted,
// or [Cache.Sync] or [Cache.Flush] is called.
func (c *Cache) Write(id int64, src []byte) error {
	const op = "write"
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkRequest(op, id, src); err != nil {
		return err
	}
	if index, hit := c.slots.Find(id); hit {
		slot := c.slots.At(index)
		copy(slot.Buffer, src)
		slot.Referenced = true
		slot.Dirty = true
		c.hit(op, id, index)
		return nil
	}
	c.miss(op, id)
	index, err := c.reclaim()
	if err != nil {
		return err
	}
	slot := c.slots.At(index)
	copy(slot.Buffer, src)
	slot.Install(id, true)
	c.checkInvariants()
	return nil
}

// Sync writes every dirty block to the device and then syncs the device.
// Resident blocks stay cached.
func (c *Cache) Sync() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	var (
		start       = time.Now()
		writes, err = c.writeBackAll(false)
	)
	c.observer.OnSync(time.Since(start), writes, err)
	c.logger.Debug("sync",
		"writes", writes,
		"error", err,
	)
	return err
}

// Flush writes every dirty block to the device,
// empties the cache, and then syncs the device.
func (c *Cache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return c.flush()
}

func (c *Cache) flush() error {
	var (
		start       = time.Now()
		writes, err = c.writeBackAll(true)
	)
	if err == nil {
		c.stats.Flushes++
	}
	c.observer.OnFlush(time.Since(start), writes, err)
	c.logger.Debug("flush",
		"writes", writes,
		"error", err,
	)
	return err
}

// Close flushes the cache and closes the device if it implements [io.Closer].
// If the flush fails the cache remains open so it may be retried.
// Subsequent calls return nil; other operations return [ErrClosed].
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	if err := c.flush(); err != nil {
		return err
	}
	c.closed = true
	if closer, ok := c.device.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("close device: %w", err)
		}
	}
	return nil
}

// BlockSize returns the size of every cached block.
func (c *Cache) BlockSize() int { return c.slots.BlockSize() }

// Capacity returns the number of slots.
func (c *Cache) Capacity() int { return c.slots.Len() }

// Len returns the number of resident blocks.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slots.Resident()
}

// Contains reports whether block id is resident,
// without marking it as referenced.
func (c *Cache) Contains(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, found := c.slots.Find(id)
	return found
}

// Stats returns the counters accumulated since construction.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Snapshot returns the state of every slot in slot order.
func (c *Cache) Snapshot() []SlotState {
	c.mu.Lock()
	defer c.mu.Unlock()
	states := make([]SlotState, 0, c.slots.Len())
	for _, slot := range c.slots.All() {
		states = append(states, SlotState{
			Block:      slot.Block,
			Referenced: slot.Referenced,
			Dirty:      slot.Dirty,
		})
	}
	return states
}

func (c *Cache) checkRequest(op string, id int64, buffer []byte) error {
	if c.closed {
		return ErrClosed
	}
	if id < 0 {
		c.stats.InvalidRequests++
		c.report(fmt.Sprintf("blockcache: invalid block id %d for %s", id, op))
		return invalidBlockError(op, id)
	}
	if blockSize := c.slots.BlockSize(); len(buffer) != blockSize {
		c.stats.InvalidRequests++
		return bufferSizeError(op, len(buffer), blockSize)
	}
	return nil
}

func (c *Cache) hit(op string, id int64, index int) {
	c.stats.Hits++
	c.observer.OnHit(id)
	c.logger.Debug("hit",
		"op", op,
		"block", id,
		"slot", index,
	)
}

func (c *Cache) miss(op string, id int64) {
	c.stats.Misses++
	c.observer.OnMiss(id)
	c.logger.Debug("miss",
		"op", op,
		"block", id,
	)
}

// reclaim returns the index of an empty slot,
// evicting the clock's victim if none is free.
func (c *Cache) reclaim() (int, error) {
	if index, free := c.slots.FindFree(); free {
		return index, nil
	}
	selection := clock.Select(c.slots, c.cursor)
	c.cursor = selection.Cursor
	var (
		victim = c.slots.At(selection.Victim)
		block  = victim.Block
		dirty  = victim.Dirty
	)
	if debugging {
		assert(selection.Passes <= clock.MaxPasses,
			"victim selection exceeded its pass bound")
		assert(!victim.Referenced,
			"victim selection returned a referenced slot")
	}
	if err := c.writeBack(selection.Victim); err != nil {
		return 0, err
	}
	victim.Invalidate()
	c.stats.Evictions++
	c.observer.OnEviction(block, dirty)
	c.logger.Debug("evict",
		"block", block,
		"slot", selection.Victim,
		"dirty", dirty,
		"passes", selection.Passes,
	)
	return selection.Victim, nil
}

// writeBack stores the slot's buffer if it is resident and dirty.
// The slot stays dirty if the device rejects the write.
func (c *Cache) writeBack(index int) error {
	slot := c.slots.At(index)
	if !slot.Resident() || !slot.Dirty {
		return nil
	}
	var (
		start = time.Now()
		err   = c.device.WriteBlock(slot.Block, slot.Buffer)
	)
	c.observer.OnWriteBack(time.Since(start), err)
	if err != nil {
		c.logger.Error("write-back failed",
			"block", slot.Block,
			"slot", index,
			"error", err,
		)
		return fmt.Errorf("write back block %d: %w", slot.Block, err)
	}
	slot.Dirty = false
	c.stats.WriteBacks++
	return nil
}

// writeBackAll writes back every slot, optionally emptying each
// once it is clean, then syncs the device.
// It returns the number of blocks written.
func (c *Cache) writeBackAll(invalidate bool) (int, error) {
	var writes int
	for index, slot := range c.slots.All() {
		dirty := slot.Resident() && slot.Dirty
		if err := c.writeBack(index); err != nil {
			return writes, err
		}
		if dirty {
			writes++
		}
		if invalidate {
			slot.Invalidate()
		}
	}
	if err := c.device.Sync(); err != nil {
		c.logger.Error("device sync failed", "error", err)
		return writes, fmt.Errorf("sync device: %w", err)
	}
	c.stats.Syncs++
	c.checkInvariants()
	return writes, nil
}

func (c *Cache) checkInvariants() {
	if !debugging {
		return
	}
	assert(c.cursor >= 0 && c.cursor < c.slots.Len(),
		"cursor out of range")
	seen := make(map[int64]struct{}, c.slots.Len())
	for _, slot := range c.slots.All() {
		if !slot.Resident() {
			assert(!slot.Dirty && !slot.Referenced,
				"empty slot carries state")
			continue
		}
		_, duplicate := seen[slot.Block]
		assert(!duplicate, "block resident in more than one slot")
		seen[slot.Block] = struct{}{}
	}
}
