package blockcache_test

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/djdv/go-blockcache"
	"github.com/djdv/go-blockcache/device"
)

const (
	testBlockSize = 4
	testBlocks    = 64
)

func TestCache(t *testing.T) {
	t.Run("invalid construction", invalidConstruction)
	t.Run("invalid block id", invalidBlockID)
	t.Run("buffer size", bufferSize)
	t.Run("read miss", readMiss)
	t.Run("read hit", readHit)
	t.Run("write hit", writeHit)
	t.Run("write then read", writeThenRead)
	t.Run("eviction scenario", evictionScenario)
	t.Run("round robin eviction", roundRobinEviction)
	t.Run("sync", syncKeepsResidents)
	t.Run("flush", flushEmpties)
	t.Run("close", closeCache)
	t.Run("random workload", randomWorkload)
	t.Run("contains does not reference", containsDoesNotReference)
}

func invalidConstruction(t *testing.T) {
	t.Parallel()
	dev := newDevice(t)
	for _, test := range []struct {
		name      string
		blockSize int
		capacity  int
		dev       device.Device
		want      error
	}{
		{"zero capacity", testBlockSize, 0, dev, blockcache.ErrInvalidCapacity},
		{"negative capacity", testBlockSize, -1, dev, blockcache.ErrInvalidCapacity},
		{"zero block size", 0, 1, dev, blockcache.ErrInvalidBlockSize},
		{"nil device", testBlockSize, 1, nil, blockcache.ErrNilDevice},
	} {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			cache, err := blockcache.New(test.blockSize, test.capacity, test.dev)
			if cache != nil || !errors.Is(err, test.want) {
				t.Errorf(
					"New did not reject invalid arguments"+
						"\n\tgot: %v, %v"+
						"\n\twant: nil, %v",
					cache, err, test.want)
			}
		})
	}
}

func invalidBlockID(t *testing.T) {
	t.Parallel()
	var reports []string
	cache, dev := newCache(t, 2,
		blockcache.WithReporter(func(message string) {
			reports = append(reports, message)
		}),
	)
	mustWrite(t, cache, 1, fill(1))
	before := cache.Snapshot()
	dev.Reset()
	buf := fill(9)
	for _, test := range []struct {
		name string
		call func() error
	}{
		{"read", func() error { return cache.Read(-1, buf) }},
		{"write", func() error { return cache.Write(-1, buf) }},
	} {
		t.Run(test.name, func(t *testing.T) {
			if err := test.call(); !errors.Is(err, blockcache.ErrInvalidBlockID) {
				t.Fatalf("expected %v but got: %v", blockcache.ErrInvalidBlockID, err)
			}
		})
	}
	checkSnapshot(t, cache, before, "after invalid requests")
	checkCounts(t, dev, device.Counts{}, "after invalid requests")
	if !bytes.Equal(buf, fill(9)) {
		t.Errorf("invalid read modified the caller's buffer: %v", buf)
	}
	want := []string{
		"blockcache: invalid block id -1 for read",
		"blockcache: invalid block id -1 for write",
	}
	if !slices.Equal(reports, want) {
		t.Errorf(
			"unexpected diagnostics"+
				"\n\tgot: %q"+
				"\n\twant: %q",
			reports, want)
	}
	if got := cache.Stats().InvalidRequests; got != 2 {
		t.Errorf("expected 2 invalid requests but got %d", got)
	}
}

func bufferSize(t *testing.T) {
	t.Parallel()
	cache, dev := newCache(t, 2)
	for _, size := range []int{0, testBlockSize - 1, testBlockSize + 1} {
		buf := make([]byte, size)
		if err := cache.Read(1, buf); !errors.Is(err, blockcache.ErrBufferSize) {
			t.Errorf("read with %d bytes: expected %v but got: %v",
				size, blockcache.ErrBufferSize, err)
		}
		if err := cache.Write(1, buf); !errors.Is(err, blockcache.ErrBufferSize) {
			t.Errorf("write with %d bytes: expected %v but got: %v",
				size, blockcache.ErrBufferSize, err)
		}
	}
	checkLen(t, cache, 0, "after rejected requests")
	checkCounts(t, dev, device.Counts{}, "after rejected requests")
}

func readMiss(t *testing.T) {
	t.Parallel()
	cache, dev := newCache(t, 2)
	seedDevice(t, dev, 5, fill(5))
	checkRead(t, cache, 5, fill(5), "cold read")
	checkCounts(t, dev, device.Counts{Reads: 1}, "after cold read")
	checkSnapshot(t, cache, []blockcache.SlotState{
		{Block: 5, Referenced: true},
		{Block: -1},
	}, "after cold read")
}

func readHit(t *testing.T) {
	t.Parallel()
	cache, dev := newCache(t, 2)
	seedDevice(t, dev, 5, fill(5))
	checkRead(t, cache, 5, fill(5), "cold read")
	checkRead(t, cache, 5, fill(5), "warm read")
	checkCounts(t, dev, device.Counts{Reads: 1}, "after warm read")
	stats := cache.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("expected 1 hit and 1 miss but got %+v", stats)
	}
	// The returned buffer is a copy.
	out := make([]byte, testBlockSize)
	mustRead(t, cache, 5, out)
	out[0] = 0xff
	checkRead(t, cache, 5, fill(5), "after mutating a returned buffer")
}

func writeHit(t *testing.T) {
	t.Parallel()
	cache, dev := newCache(t, 2)
	seedDevice(t, dev, 3, fill(3))
	checkRead(t, cache, 3, fill(3), "cold read")
	dev.Reset()
	mustWrite(t, cache, 3, fill(4))
	checkCounts(t, dev, device.Counts{}, "write hit is not written through")
	checkSnapshot(t, cache, []blockcache.SlotState{
		{Block: 3, Referenced: true, Dirty: true},
		{Block: -1},
	}, "after write hit")
	checkRead(t, cache, 3, fill(4), "after write hit")
}

func writeThenRead(t *testing.T) {
	t.Parallel()
	cache, dev := newCache(t, 3)
	src := []byte{1, 2, 3, 4}
	mustWrite(t, cache, 7, src)
	src[0] = 0xff // The cache owns its copy.
	checkRead(t, cache, 7, []byte{1, 2, 3, 4}, "write then read")
	checkCounts(t, dev, device.Counts{}, "write miss needs no device I/O")
}

func evictionScenario(t *testing.T) {
	t.Parallel()
	cache, dev := newCache(t, 2)
	t.Run("fill cache", func(t *testing.T) {
		mustWrite(t, cache, 10, fill(1))
		mustWrite(t, cache, 11, fill(2))
		checkCounts(t, dev, device.Counts{}, "after filling")
	})
	t.Run("evict", func(t *testing.T) {
		// Both slots are referenced and dirty;
		// aging makes slot 0 (block 10) the first candidate.
		mustWrite(t, cache, 12, fill(3))
		want := []device.Request{{Op: device.OpWrite, Block: 10}}
		if got := dev.Requests(); !slices.Equal(got, want) {
			t.Fatalf(
				"expected a single write-back"+
					"\n\tgot: %v"+
					"\n\twant: %v",
				got, want)
		}
		if got := dev.Peek(10); !bytes.Equal(got, fill(1)) {
			t.Errorf("evicted contents not on device: %v", got)
		}
	})
	checkRead(t, cache, 12, fill(3), "after eviction")
	checkSnapshot(t, cache, []blockcache.SlotState{
		{Block: 12, Referenced: true, Dirty: true},
		{Block: 11, Dirty: true},
	}, "after eviction")
	checkRead(t, cache, 10, fill(1), "reloading evicted block")
}

func roundRobinEviction(t *testing.T) {
	t.Parallel()
	const capacity = 4
	cache, dev := newCache(t, capacity)
	for id := range int64(capacity) {
		seedDevice(t, dev, id, fill(byte(id)))
		checkRead(t, cache, id, fill(byte(id)), "fill")
	}
	// Every slot is referenced and clean; each miss should
	// claim the next slot in order.
	for round := range capacity * 2 {
		id := int64(capacity + round)
		seedDevice(t, dev, id, fill(byte(id)))
		checkRead(t, cache, id, fill(byte(id)), "evicting read")
		snapshot := cache.Snapshot()
		if got := snapshot[round%capacity].Block; got != id {
			t.Fatalf("round %d: block %d landed in the wrong slot: %+v",
				round, id, snapshot)
		}
	}
	if got := dev.Counts().Writes; got != 0 {
		t.Errorf("clean evictions wrote %d blocks", got)
	}
}

func syncKeepsResidents(t *testing.T) {
	t.Parallel()
	cache, dev := newCache(t, 3)
	seedDevice(t, dev, 1, fill(1))
	checkRead(t, cache, 1, fill(1), "clean resident")
	mustWrite(t, cache, 2, fill(2))
	mustWrite(t, cache, 3, fill(3))
	before := cache.Snapshot()
	dev.Reset()
	if err := cache.Sync(); err != nil {
		t.Fatal(err)
	}
	checkCounts(t, dev, device.Counts{Writes: 2, Syncs: 1}, "after sync")
	after := cache.Snapshot()
	for i := range before {
		if before[i].Block != after[i].Block ||
			before[i].Referenced != after[i].Referenced {
			t.Errorf("sync changed slot %d: %+v -> %+v", i, before[i], after[i])
		}
		if after[i].Dirty {
			t.Errorf("slot %d still dirty after sync", i)
		}
	}
	checkDevice(t, dev, 2, fill(2))
	checkDevice(t, dev, 3, fill(3))

	dev.Reset()
	if err := cache.Sync(); err != nil {
		t.Fatal(err)
	}
	checkCounts(t, dev, device.Counts{Syncs: 1}, "after second sync")
}

func flushEmpties(t *testing.T) {
	t.Parallel()
	const capacity = 3
	cache, dev := newCache(t, capacity)
	seedDevice(t, dev, 1, fill(1))
	checkRead(t, cache, 1, fill(1), "clean resident")
	mustWrite(t, cache, 2, fill(2))
	dev.Reset()
	if err := cache.Flush(); err != nil {
		t.Fatal(err)
	}
	want := []device.Request{
		{Op: device.OpWrite, Block: 2},
		{Op: device.OpSync, Block: -1},
	}
	if got := dev.Requests(); !slices.Equal(got, want) {
		t.Errorf(
			"unexpected flush I/O"+
				"\n\tgot: %v"+
				"\n\twant: %v",
			got, want)
	}
	empty := slices.Repeat([]blockcache.SlotState{{Block: -1}}, capacity)
	checkSnapshot(t, cache, empty, "after flush")
	checkLen(t, cache, 0, "after flush")
	checkDevice(t, dev, 2, fill(2))
	checkRead(t, cache, 2, fill(2), "read after flush")
}

func closeCache(t *testing.T) {
	t.Parallel()
	cache, dev := newCache(t, 2)
	mustWrite(t, cache, 4, fill(4))
	if err := cache.Close(); err != nil {
		t.Fatal(err)
	}
	checkDevice(t, dev, 4, fill(4))
	if err := cache.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
	buf := make([]byte, testBlockSize)
	for name, err := range map[string]error{
		"read":  cache.Read(4, buf),
		"write": cache.Write(4, buf),
		"sync":  cache.Sync(),
		"flush": cache.Flush(),
	} {
		if !errors.Is(err, blockcache.ErrClosed) {
			t.Errorf("%s after close: expected %v but got: %v",
				name, blockcache.ErrClosed, err)
		}
	}
}

func containsDoesNotReference(t *testing.T) {
	t.Parallel()
	cache, _ := newCache(t, 2)
	mustWrite(t, cache, 10, fill(1))
	mustWrite(t, cache, 11, fill(2))
	mustWrite(t, cache, 12, fill(3)) // Ages both slots, evicts 10.
	if cache.Contains(10) {
		t.Fatal("evicted block still resident")
	}
	if !cache.Contains(11) {
		t.Fatal("aged block not resident")
	}
	if got := cache.Snapshot()[1]; got.Block != 11 || got.Referenced {
		t.Fatalf("expected block 11 to stay unreferenced: %+v", got)
	}
}

// randomWorkload checks the cache against a model of the device
// for every capacity up to a small bound.
func randomWorkload(t *testing.T) {
	for capacity := 1; capacity <= 8; capacity++ {
		t.Run(fmt.Sprintf("capacity %d", capacity), func(t *testing.T) {
			t.Parallel()
			var (
				evictions []int64
				observer  = &recordingObserver{evicted: &evictions}
				rng       = newReproducibleRNG()
				model     = make(map[int64][]byte)
				universe  = int64(capacity * 3)
			)
			cache, dev := newCache(t, capacity, blockcache.WithObserver(observer))
			for step := range 2000 {
				id := rng.Int63n(universe)
				if rng.Intn(2) == 0 {
					data := fill(byte(rng.Intn(256)))
					mustWrite(t, cache, id, data)
					model[id] = data
				} else {
					want, ok := model[id]
					if !ok {
						want = make([]byte, testBlockSize)
					}
					checkRead(t, cache, id, want, fmt.Sprintf("step %d", step))
				}
				checkResidency(t, cache, capacity)
			}
			stats := cache.Stats()
			if counts := dev.Counts(); uint64(counts.Writes) != stats.WriteBacks {
				t.Errorf("device writes (%d) != write-backs (%d)",
					counts.Writes, stats.WriteBacks)
			}
			if uint64(len(evictions)) != stats.Evictions {
				t.Errorf("observed evictions (%d) != counted evictions (%d)",
					len(evictions), stats.Evictions)
			}
			if err := cache.Flush(); err != nil {
				t.Fatal(err)
			}
			for id, want := range model {
				checkDevice(t, dev, id, want)
			}
		})
	}
}

func newDevice(tb testing.TB) *device.Mem {
	tb.Helper()
	dev, err := device.NewMem(testBlockSize, testBlocks)
	if err != nil {
		tb.Fatal(err)
	}
	dev.SetTrace(true)
	return dev
}

func newCache(tb testing.TB, capacity int, opts ...blockcache.Option) (*blockcache.Cache, *device.Mem) {
	tb.Helper()
	dev := newDevice(tb)
	cache, err := blockcache.New(testBlockSize, capacity, dev, opts...)
	if err != nil {
		tb.Fatal(err)
	}
	return cache, dev
}

func fill(b byte) []byte {
	return bytes.Repeat([]byte{b}, testBlockSize)
}

func seedDevice(tb testing.TB, dev *device.Mem, id int64, data []byte) {
	tb.Helper()
	if err := dev.WriteBlock(id, data); err != nil {
		tb.Fatal(err)
	}
	dev.Reset()
}

func mustWrite(tb testing.TB, cache *blockcache.Cache, id int64, data []byte) {
	tb.Helper()
	if err := cache.Write(id, data); err != nil {
		tb.Fatalf("write %d: %v", id, err)
	}
}

func mustRead(tb testing.TB, cache *blockcache.Cache, id int64, out []byte) {
	tb.Helper()
	if err := cache.Read(id, out); err != nil {
		tb.Fatalf("read %d: %v", id, err)
	}
}

func checkRead(tb testing.TB, cache *blockcache.Cache, id int64, want []byte, msg string) {
	tb.Helper()
	got := make([]byte, len(want))
	mustRead(tb, cache, id, got)
	if bytes.Equal(got, want) {
		return
	}
	tb.Fatalf(
		"expected block %d to match %s"+
			"\n\tgot: %v"+
			"\n\twant: %v",
		id, msg, got, want)
}

func checkDevice(tb testing.TB, dev *device.Mem, id int64, want []byte) {
	tb.Helper()
	if got := dev.Peek(id); !bytes.Equal(got, want) {
		tb.Fatalf(
			"expected device block %d to match"+
				"\n\tgot: %v"+
				"\n\twant: %v",
			id, got, want)
	}
}

func checkCounts(tb testing.TB, dev *device.Mem, want device.Counts, msg string) {
	tb.Helper()
	if got := dev.Counts(); got != want {
		tb.Fatalf(
			"unexpected device requests %s"+
				"\n\tgot: %+v"+
				"\n\twant: %+v",
			msg, got, want)
	}
}

func checkLen(tb testing.TB, cache *blockcache.Cache, want int, msg string) {
	tb.Helper()
	if got := cache.Len(); got != want {
		tb.Fatalf(
			"expected cache to be specific size %s"+
				"\n\tgot: %d"+
				"\n\twant: %d",
			msg, got, want)
	}
}

func checkSnapshot(tb testing.TB, cache *blockcache.Cache, want []blockcache.SlotState, msg string) {
	tb.Helper()
	if got := cache.Snapshot(); !slices.Equal(got, want) {
		tb.Fatalf(
			"unexpected slots %s"+
				"\n\tgot: %+v"+
				"\n\twant: %+v",
			msg, got, want)
	}
}

// checkResidency verifies the capacity bound, that no block
// is resident twice, and that empty slots carry no state.
func checkResidency(tb testing.TB, cache *blockcache.Cache, capacity int) {
	tb.Helper()
	var (
		snapshot = cache.Snapshot()
		seen     = make(map[int64]bool, len(snapshot))
	)
	if len(snapshot) != capacity {
		tb.Fatalf("expected %d slots but got %d", capacity, len(snapshot))
	}
	for i, slot := range snapshot {
		if slot.Block == -1 {
			if slot.Dirty || slot.Referenced {
				tb.Fatalf("empty slot %d carries state: %+v", i, slot)
			}
			continue
		}
		if seen[slot.Block] {
			tb.Fatalf("block %d resident twice: %+v", slot.Block, snapshot)
		}
		seen[slot.Block] = true
	}
}

type recordingObserver struct {
	blockcache.NoopObserver
	evicted *[]int64
}

func (o *recordingObserver) OnEviction(block int64, _ bool) {
	*o.evicted = append(*o.evicted, block)
}
