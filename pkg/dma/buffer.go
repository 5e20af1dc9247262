package dma

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrNoMemory is returned when an allocator cannot satisfy a request
var ErrNoMemory = errors.New("dma: out of transfer memory")

// Allocator hands out memory a DMA channel can reach by bus address
type Allocator interface {
	Alloc(n int) (Buffer, error)
}

// Buffer is a run of 32-bit words together with the bus address of its first
// word. Word access is atomic so the CPU and the transfer engine may touch the
// same words concurrently.
type Buffer struct {
	words []uint32
	addr  uint32
}

// Len returns the number of words in the buffer
func (b Buffer) Len() int {
	return len(b.words)
}

// Addr returns the bus address of the first word
func (b Buffer) Addr() uint32 {
	return b.addr
}

// AddrOf returns the bus address of word i
func (b Buffer) AddrOf(i int) uint32 {
	return b.addr + uint32(i)*4
}

// Load reads word i
func (b Buffer) Load(i int) uint32 {
	return atomic.LoadUint32(&b.words[i])
}

// Store writes word i
func (b Buffer) Store(i int, v uint32) {
	atomic.StoreUint32(&b.words[i], v)
}

// Arena is a bump allocator over a fixed window of transfer memory. Buffers are
// never returned to it.
type Arena struct {
	mu    sync.Mutex
	words []uint32
	base  uint32
	next  int
}

// NewArena creates an arena over words whose first word sits at bus address base
func NewArena(words []uint32, base uint32) *Arena {
	return &Arena{words: words, base: base}
}

// Alloc reserves n zeroed words
func (a *Arena) Alloc(n int) (Buffer, error) {
	if n <= 0 {
		return Buffer{}, fmt.Errorf("dma: invalid allocation of %d words", n)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.next+n > len(a.words) {
		return Buffer{}, fmt.Errorf("%w: %d words requested, %d free", ErrNoMemory, n, len(a.words)-a.next)
	}
	b := Buffer{
		words: a.words[a.next : a.next+n : a.next+n],
		addr:  a.base + uint32(a.next)*4,
	}
	for i := range b.words {
		atomic.StoreUint32(&b.words[i], 0)
	}
	a.next += n
	return b, nil
}

// Contains reports whether addr falls inside the arena window
func (a *Arena) Contains(addr uint32) bool {
	return addr >= a.base && addr-a.base < uint32(len(a.words))*4
}

// Load reads the word at bus address addr
func (a *Arena) Load(addr uint32) uint32 {
	return atomic.LoadUint32(&a.words[(addr-a.base)/4])
}

// Store writes the word at bus address addr
func (a *Arena) Store(addr, v uint32) {
	atomic.StoreUint32(&a.words[(addr-a.base)/4], v)
}
