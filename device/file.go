package device

import (
	"fmt"
	"io"
	"sync"

	"golang.org/x/sys/unix"
)

// File is a [Device] backed by a regular file or raw block device node.
// Constructed by [OpenFile].
type File struct {
	mu        sync.RWMutex // Guards fd against Close.
	fd        int
	blockSize int
	blocks    int64
}

var (
	_ Device    = (*File)(nil)
	_ io.Closer = (*File)(nil)
)

// OpenFile opens (creating if needed) path as a device of blocks blocks.
// The file is extended to the full device size if it is shorter.
func OpenFile(path string, blockSize int, blocks int64) (*File, error) {
	if err := checkGeometry(blockSize, blocks); err != nil {
		return nil, err
	}
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_CLOEXEC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	var (
		stat unix.Stat_t
		size = int64(blockSize) * blocks
	)
	if err := unix.Fstat(fd, &stat); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if stat.Mode&unix.S_IFMT == unix.S_IFREG && stat.Size < size {
		if err := unix.Ftruncate(fd, size); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("extend %s to %d bytes: %w", path, size, err)
		}
	}
	return &File{
		fd:        fd,
		blockSize: blockSize,
		blocks:    blocks,
	}, nil
}

func (f *File) ReadBlock(id int64, dst []byte) error {
	if err := checkAccess(id, f.blocks, dst, f.blockSize); err != nil {
		return err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.fd < 0 {
		return ErrClosed
	}
	offset := id * int64(f.blockSize)
	for done := 0; done < len(dst); {
		n, err := unix.Pread(f.fd, dst[done:], offset+int64(done))
		if err != nil {
			return fmt.Errorf("read block %d: %w", id, err)
		}
		if n == 0 {
			return fmt.Errorf("read block %d: %w", id, io.ErrUnexpectedEOF)
		}
		done += n
	}
	return nil
}

func (f *File) WriteBlock(id int64, src []byte) error {
	if err := checkAccess(id, f.blocks, src, f.blockSize); err != nil {
		return err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.fd < 0 {
		return ErrClosed
	}
	offset := id * int64(f.blockSize)
	for done := 0; done < len(src); {
		n, err := unix.Pwrite(f.fd, src[done:], offset+int64(done))
		if err != nil {
			return fmt.Errorf("write block %d: %w", id, err)
		}
		done += n
	}
	return nil
}

func (f *File) Sync() error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.fd < 0 {
		return ErrClosed
	}
	if err := unix.Fsync(f.fd); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	return nil
}

// Close releases the file descriptor.
// Calling Close more than once returns [ErrClosed].
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fd < 0 {
		return ErrClosed
	}
	err := unix.Close(f.fd)
	f.fd = -1
	return err
}

// BlockSize returns the size of each block in bytes.
func (f *File) BlockSize() int { return f.blockSize }

// Blocks returns the number of addressable blocks.
func (f *File) Blocks() int64 { return f.blocks }
