//go:build linux

package mmap

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DevMem is the physical memory device used for register access
const DevMem = "/dev/mem"

// MemoryMap represents a memory mapped region
type MemoryMap struct {
	addr   uintptr
	size   uintptr
	region []byte
}

// NewMemoryMap maps size bytes of physical memory starting at addr
func NewMemoryMap(addr, size uintptr) (*MemoryMap, error) {
	return Open(DevMem, addr, size)
}

// Open maps size bytes of the file at path starting at offset addr.
// Both addr and size must be page aligned.
func Open(path string, addr, size uintptr) (*MemoryMap, error) {
	if size == 0 || size%4 != 0 {
		return nil, fmt.Errorf("mmap: invalid size 0x%x", size)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	// The mapping stays valid after the descriptor is closed.
	defer f.Close()

	region, err := unix.Mmap(
		int(f.Fd()),
		int64(addr),
		int(size),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED,
	)
	if err != nil {
		return nil, fmt.Errorf("mmap failed at 0x%x: %w", addr, err)
	}

	return &MemoryMap{
		addr:   addr,
		size:   size,
		region: region,
	}, nil
}

// Close unmaps the memory region
func (m *MemoryMap) Close() error {
	if m.region == nil {
		return nil
	}
	err := unix.Munmap(m.region)
	m.region = nil
	return err
}

// Addr returns the physical address the region starts at
func (m *MemoryMap) Addr() uintptr {
	return m.addr
}

// Size returns the length of the region in bytes
func (m *MemoryMap) Size() uintptr {
	return m.size
}

func (m *MemoryMap) word(offset uintptr) *uint32 {
	return (*uint32)(unsafe.Pointer(&m.region[offset]))
}

// Read32 reads a 32-bit register at offset
func (m *MemoryMap) Read32(offset uintptr) uint32 {
	return atomic.LoadUint32(m.word(offset))
}

// Write32 writes a 32-bit register at offset
func (m *MemoryMap) Write32(offset uintptr, value uint32) {
	atomic.StoreUint32(m.word(offset), value)
}

// Words returns n 32-bit words of the region starting at offset.
// The slice aliases the mapping and must not be used after Close.
func (m *MemoryMap) Words(offset uintptr, n int) ([]uint32, error) {
	if offset%4 != 0 {
		return nil, fmt.Errorf("mmap: unaligned offset 0x%x", offset)
	}
	if offset+uintptr(n)*4 > m.size {
		return nil, fmt.Errorf("mmap: %d words at 0x%x exceed region of 0x%x bytes", n, offset, m.size)
	}
	return unsafe.Slice(m.word(offset), n), nil
}
