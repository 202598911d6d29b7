package device

import (
	"io"
	"time"

	"github.com/djdv/go-blockcache/internal/stats"
)

// Timed wraps a [Device] and records the latency of every request.
type Timed struct {
	d   Device
	ops [3]stats.Op
}

var (
	_ Device    = (*Timed)(nil)
	_ io.Closer = (*Timed)(nil)
)

var opNames = []string{"device.Read", "device.Write", "device.Sync"}

// NewTimed wraps d.
func NewTimed(d Device) *Timed {
	return &Timed{d: d}
}

func (t *Timed) ReadBlock(id int64, dst []byte) error {
	defer t.ops[OpRead].Record(time.Now())
	return t.d.ReadBlock(id, dst)
}

func (t *Timed) WriteBlock(id int64, src []byte) error {
	defer t.ops[OpWrite].Record(time.Now())
	return t.d.WriteBlock(id, src)
}

func (t *Timed) Sync() error {
	defer t.ops[OpSync].Record(time.Now())
	return t.d.Sync()
}

// Close closes the wrapped device if it implements [io.Closer].
func (t *Timed) Close() error {
	if closer, ok := t.d.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Unwrap returns the wrapped device.
func (t *Timed) Unwrap() Device { return t.d }

// Count returns how many requests of kind op were issued.
func (t *Timed) Count(op Op) uint64 { return t.ops[op].Count() }

// WriteStats renders per-request latency as a table.
func (t *Timed) WriteStats(w io.Writer) {
	stats.WriteTable(w, opNames, t.opList())
}

// ResetStats zeroes all recorded latencies.
func (t *Timed) ResetStats() {
	for i := range t.ops {
		t.ops[i].Reset()
	}
}

func (t *Timed) opList() []*stats.Op {
	ops := make([]*stats.Op, len(t.ops))
	for i := range t.ops {
		ops[i] = &t.ops[i]
	}
	return ops
}
