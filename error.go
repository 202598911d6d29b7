package blockcache

import "fmt"

type constError string

const (
	// ErrInvalidCapacity may be returned from [New].
	ErrInvalidCapacity = constError("invalid capacity")
	// ErrInvalidBlockSize may be returned from [New].
	ErrInvalidBlockSize = constError("invalid block size")
	// ErrNilDevice may be returned from [New].
	ErrNilDevice = constError("nil device")
	// ErrInvalidBlockID is returned by [Cache.Read] and [Cache.Write]
	// when given a negative block id.
	ErrInvalidBlockID = constError("invalid block id")
	// ErrBufferSize is returned by [Cache.Read] and [Cache.Write]
	// when the caller's buffer is not exactly one block long.
	ErrBufferSize = constError("buffer is not block sized")
	// ErrClosed is returned by operations on a closed [Cache].
	ErrClosed = constError("cache closed")
)

func (errStr constError) Error() string { return string(errStr) }

func minCapacityError(capacity int) error {
	return fmt.Errorf(
		"%w: must be >=%d but %d was requested",
		ErrInvalidCapacity, MinimumCapacity, capacity)
}

func blockSizeError(blockSize int) error {
	return fmt.Errorf(
		"%w: must be >=1 but %d was requested",
		ErrInvalidBlockSize, blockSize)
}

func invalidBlockError(op string, id int64) error {
	return fmt.Errorf("%w: %d for %s", ErrInvalidBlockID, id, op)
}

func bufferSizeError(op string, got, want int) error {
	return fmt.Errorf(
		"%w: %s given %d bytes but blocks are %d",
		ErrBufferSize, op, got, want)
}
