package device

import (
	"sync"
)

type (
	// Mem is a [Device] held entirely in memory.
	// Besides storage it counts I/O requests and,
	// when tracing is enabled, logs them in order.
	// Constructed by [NewMem].
	Mem struct {
		mu        sync.Mutex
		blocks    [][]byte
		blockSize int
		counts    Counts
		log       []Request
		trace     bool
	}
	// Counts tallies requests issued to a [Mem].
	Counts struct {
		Reads, Writes, Syncs int
	}
	// Op identifies a device request kind.
	Op uint8
	// Request is one entry of a [Mem]'s request log.
	// See [Mem.SetTrace].
	// Block is -1 for [OpSync].
	Request struct {
		Op    Op
		Block int64
	}
)

const (
	OpRead Op = iota
	OpWrite
	OpSync
)

func (op Op) String() string {
	switch op {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpSync:
		return "sync"
	default:
		return "unknown"
	}
}

var _ Device = (*Mem)(nil)

// NewMem creates a zero-filled device of blocks blocks.
func NewMem(blockSize int, blocks int64) (*Mem, error) {
	if err := checkGeometry(blockSize, blocks); err != nil {
		return nil, err
	}
	var (
		storage = make([][]byte, blocks)
		backing = make([]byte, int64(blockSize)*blocks)
	)
	for i := range storage {
		start := i * blockSize
		storage[i] = backing[start : start+blockSize : start+blockSize]
	}
	return &Mem{
		blocks:    storage,
		blockSize: blockSize,
	}, nil
}

func (m *Mem) ReadBlock(id int64, dst []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := checkAccess(id, int64(len(m.blocks)), dst, m.blockSize); err != nil {
		return err
	}
	copy(dst, m.blocks[id])
	m.counts.Reads++
	m.record(OpRead, id)
	return nil
}

func (m *Mem) WriteBlock(id int64, src []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := checkAccess(id, int64(len(m.blocks)), src, m.blockSize); err != nil {
		return err
	}
	copy(m.blocks[id], src)
	m.counts.Writes++
	m.record(OpWrite, id)
	return nil
}

func (m *Mem) Sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts.Syncs++
	m.record(OpSync, -1)
	return nil
}

func (m *Mem) record(op Op, id int64) {
	if m.trace {
		m.log = append(m.log, Request{Op: op, Block: id})
	}
}

// SetTrace enables or disables the request log.
// Disabling it discards the log.
func (m *Mem) SetTrace(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trace = enabled
	if !enabled {
		m.log = nil
	}
}

// BlockSize returns the size of each block in bytes.
func (m *Mem) BlockSize() int { return m.blockSize }

// Blocks returns the number of addressable blocks.
func (m *Mem) Blocks() int64 { return int64(len(m.blocks)) }

// Counts returns the number of requests served so far.
func (m *Mem) Counts() Counts {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts
}

// Requests returns a copy of the request log.
func (m *Mem) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.log...)
}

// Reset clears the request counts and log; block contents are kept.
func (m *Mem) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts = Counts{}
	m.log = nil
}

// Peek returns a copy of block id without recording a request.
func (m *Mem) Peek(id int64) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.blocks[id]...)
}
