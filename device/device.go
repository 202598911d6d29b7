// Package device defines the block device consumed by the cache
// and provides memory, file, and goose disk backed implementations.
//
// Devices address fixed-size blocks by non-negative id.
// They perform raw I/O only: no caching, no retries.
package device

import "fmt"

// Device is raw, block-granular storage.
// Implementations must be safe for concurrent use.
type Device interface {
	// ReadBlock fills dst with the contents of block id.
	// len(dst) must equal the device's block size.
	ReadBlock(id int64, dst []byte) error
	// WriteBlock stores src as the contents of block id.
	// len(src) must equal the device's block size.
	WriteBlock(id int64, src []byte) error
	// Sync makes previously written blocks durable.
	Sync() error
}

type constError string

func (errStr constError) Error() string { return string(errStr) }

const (
	// ErrOutOfRange is returned for block ids the device cannot address.
	ErrOutOfRange = constError("block out of range")
	// ErrBlockSize is returned when a buffer is not exactly one block.
	ErrBlockSize = constError("buffer is not block sized")
	// ErrClosed is returned by devices used after Close.
	ErrClosed = constError("device closed")
	// ErrInvalidGeometry is returned by constructors given
	// a non-positive block size or block count.
	ErrInvalidGeometry = constError("invalid device geometry")
)

func checkAccess(id, blocks int64, buf []byte, blockSize int) error {
	if id < 0 || id >= blocks {
		return fmt.Errorf(
			"%w: block %d not in [0,%d)",
			ErrOutOfRange, id, blocks)
	}
	if len(buf) != blockSize {
		return fmt.Errorf(
			"%w: got %d bytes, want %d",
			ErrBlockSize, len(buf), blockSize)
	}
	return nil
}

func checkGeometry(blockSize int, blocks int64) error {
	if blockSize < 1 || blocks < 1 {
		return fmt.Errorf(
			"%w: %d blocks of %d bytes",
			ErrInvalidGeometry, blocks, blockSize)
	}
	return nil
}
