// Package stats tracks operation counts and latencies.
package stats

import (
	"bytes"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/rodaine/table"
)

// Op accumulates the count and total duration of one kind of operation.
// The zero value is ready to use and safe for concurrent use.
type Op struct {
	count atomic.Uint64
	nanos atomic.Uint64
}

// Record adds one operation that began at start.
func (op *Op) Record(start time.Time) {
	op.count.Add(1)
	op.nanos.Add(uint64(time.Since(start).Nanoseconds()))
}

// Count returns the number of recorded operations.
func (op *Op) Count() uint64 { return op.count.Load() }

// Total returns the summed duration of recorded operations.
func (op *Op) Total() time.Duration { return time.Duration(op.nanos.Load()) }

// MicrosPerOp returns the mean latency in microseconds.
func (op *Op) MicrosPerOp() float64 {
	count := op.count.Load()
	if count == 0 {
		return 0
	}
	return float64(op.nanos.Load()) / float64(count) / 1e3
}

// Reset zeroes the counters.
func (op *Op) Reset() {
	op.count.Store(0)
	op.nanos.Store(0)
}

// WriteTable renders one row per named op plus a total row.
func WriteTable(w io.Writer, names []string, ops []*Op) {
	if len(names) != len(ops) {
		panic("mismatched names and ops lists")
	}
	var (
		tbl                   = table.New("op", "count", "latency").WithWriter(w)
		totalCount, totalNano uint64
	)
	for i, name := range names {
		var (
			count = ops[i].Count()
			nanos = uint64(ops[i].Total())
		)
		totalCount += count
		totalNano += nanos
		tbl.AddRow(name, count, fmt.Sprintf("%0.1f us/op", ops[i].MicrosPerOp()))
	}
	totalMicros := float64(totalNano) / 1e3
	tbl.AddRow("total", totalCount, fmt.Sprintf("%0.1f us", totalMicros))
	tbl.Print()
}

// FormatTable is like [WriteTable] but returns the rendered table.
func FormatTable(names []string, ops []*Op) string {
	buf := new(bytes.Buffer)
	WriteTable(buf, names, ops)
	return buf.String()
}
