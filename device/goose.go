package device

import (
	"io"
	"sync"

	"github.com/tchajed/goose/machine/disk"
)

// Goose adapts a goose [disk.Disk] to [Device].
// Its block size is always [disk.BlockSize].
// Constructed by [NewGoose], [NewGooseMem], or [OpenGooseFile].
type Goose struct {
	d      disk.Disk
	blocks int64
	closer sync.Once
}

// GooseBlockSize is the block size of every [Goose] device.
const GooseBlockSize = int(disk.BlockSize)

var (
	_ Device    = (*Goose)(nil)
	_ io.Closer = (*Goose)(nil)
)

// NewGoose wraps d.
func NewGoose(d disk.Disk) *Goose {
	return &Goose{
		d:      d,
		blocks: int64(d.Size()),
	}
}

// NewGooseMem creates a goose in-memory disk of blocks blocks.
func NewGooseMem(blocks int64) (*Goose, error) {
	if err := checkGeometry(GooseBlockSize, blocks); err != nil {
		return nil, err
	}
	return NewGoose(disk.NewMemDisk(uint64(blocks))), nil
}

// OpenGooseFile creates a goose file disk at path of blocks blocks.
func OpenGooseFile(path string, blocks int64) (*Goose, error) {
	if err := checkGeometry(GooseBlockSize, blocks); err != nil {
		return nil, err
	}
	d, err := disk.NewFileDisk(path, uint64(blocks))
	if err != nil {
		return nil, err
	}
	return NewGoose(d), nil
}

func (g *Goose) ReadBlock(id int64, dst []byte) error {
	if err := checkAccess(id, g.blocks, dst, GooseBlockSize); err != nil {
		return err
	}
	copy(dst, g.d.Read(uint64(id)))
	return nil
}

func (g *Goose) WriteBlock(id int64, src []byte) error {
	if err := checkAccess(id, g.blocks, src, GooseBlockSize); err != nil {
		return err
	}
	// The disk may retain the block, so it gets its own copy.
	block := make(disk.Block, GooseBlockSize)
	copy(block, src)
	g.d.Write(uint64(id), block)
	return nil
}

func (g *Goose) Sync() error {
	g.d.Barrier()
	return nil
}

// Close closes the underlying disk.
func (g *Goose) Close() error {
	g.closer.Do(g.d.Close)
	return nil
}

// Blocks returns the number of addressable blocks.
func (g *Goose) Blocks() int64 { return g.blocks }
