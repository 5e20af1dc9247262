// Package emu emulates the parts of an RP2040-style chip the panel driver
// touches: two PIO blocks, the DMA controller, a window of bus memory and a
// HUB75 panel wired to the GPIOs.
//
// The emulation is transaction level. DMA channels move one word per beat,
// paced by FIFO state; state machines are recognised by their pin mapping and
// consume FIFO words the way the scan programs do. Nothing runs on its own:
// Step, RunRows and Run advance the machine and deliver the DMA interrupt to
// the installed handler on the calling goroutine.
package emu

import (
	"context"
	"fmt"
	"sync"

	"github.com/fkcurrie/hub75-golang/pkg/dma"
	"github.com/fkcurrie/hub75-golang/pkg/pio"
)

// Bus addresses of the emulated peripherals
const (
	MemoryBase = 0x20000000
	DMABase    = 0x50000000
	PIO0Base   = 0x50200000
	PIO1Base   = 0x50300000
)

// DefaultMemoryWords is the size of the default memory window
const DefaultMemoryWords = 64 * 1024

// Config describes the emulated board
type Config struct {
	Panel       PanelConfig
	MemoryWords int
}

// Machine is an emulated chip with a panel attached
type Machine struct {
	mu sync.Mutex

	mem    *dma.Arena
	blocks [2]*pioBlock
	dma    dmaState
	panel  *Panel
	gpio   [32]uint8
	faults []error

	handler func()
	kick    chan struct{}

	pioViews []*pio.Block
	ctrl     *dma.Controller
}

// New creates a machine
func New(cfg Config) (*Machine, error) {
	if err := cfg.Panel.validate(); err != nil {
		return nil, err
	}
	words := cfg.MemoryWords
	if words <= 0 {
		words = DefaultMemoryWords
	}

	m := &Machine{
		mem:  dma.NewArena(make([]uint32, words), MemoryBase),
		kick: make(chan struct{}, 1),
	}
	m.panel = newPanel(&m.mu, cfg.Panel)
	for i := range m.blocks {
		m.blocks[i] = newPIOBlock(i, uint32(PIO0Base+i*(PIO1Base-PIO0Base)))
		m.pioViews = append(m.pioViews, pio.NewBlock(i, &pioRegs{m: m, b: m.blocks[i]}, m.blocks[i].base, m))
	}
	m.ctrl = dma.NewController(&dmaRegs{m: m})
	return m, nil
}

// Blocks returns the PIO blocks
func (m *Machine) Blocks() []*pio.Block {
	return m.pioViews
}

// Controller returns the DMA controller
func (m *Machine) Controller() *dma.Controller {
	return m.ctrl
}

// Memory returns the allocator over the bus memory window
func (m *Machine) Memory() *dma.Arena {
	return m.mem
}

// Panel returns the attached panel
func (m *Machine) Panel() *Panel {
	return m.panel
}

// SetFunction routes a GPIO to a peripheral
func (m *Machine) SetFunction(pin, function uint8) error {
	if pin >= 30 {
		return fmt.Errorf("emu: no GPIO%d", pin)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gpio[pin] = function
	return nil
}

// GPIOFunction returns the function a GPIO is routed to
func (m *Machine) GPIOFunction(pin uint8) uint8 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gpio[pin&31]
}

// PinDirs returns the output enables set by the state machines of all blocks
func (m *Machine) PinDirs() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var dirs uint32
	for _, b := range m.blocks {
		dirs |= b.pindirs
	}
	return dirs
}

// Faults returns the bus errors and program errors seen so far
func (m *Machine) Faults() []error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]error(nil), m.faults...)
}

func (m *Machine) fault(format string, args ...any) {
	m.faults = append(m.faults, fmt.Errorf("emu: "+format, args...))
}

// SetHandler installs the exclusive DMA interrupt 0 handler
func (m *Machine) SetHandler(h func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handler != nil {
		return dma.ErrHandlerInstalled
	}
	m.handler = h
	return nil
}

// ClearHandler removes the interrupt handler
func (m *Machine) ClearHandler() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = nil
}

func (m *Machine) poke() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

// Step runs transfers and state machines until nothing can move, then
// delivers a pending interrupt. It reports whether the handler ran.
func (m *Machine) Step() bool {
	m.mu.Lock()
	m.settle()
	pending := m.dma.ints0() != 0
	h := m.handler
	m.mu.Unlock()

	if pending && h != nil {
		h()
		return true
	}
	return false
}

// RunRows steps until the handler has run n times or the machine stalls, and
// returns how many times it ran.
func (m *Machine) RunRows(n int) int {
	for i := 0; i < n; i++ {
		if !m.Step() {
			return i
		}
	}
	return n
}

// Run steps the machine until ctx is done, sleeping while it is stalled
func (m *Machine) Run(ctx context.Context) error {
	for {
		if m.Step() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.kick:
		}
	}
}

// settle alternates DMA beats and state machine work until neither moves.
// State machines run after every beat so FIFOs drain as they fill.
func (m *Machine) settle() {
	for progress := true; progress; {
		progress = false
		for ch := range m.dma.ch {
			if m.beat(ch) {
				progress = true
				m.runPIO()
			}
		}
		if m.runPIO() {
			progress = true
		}
	}
}

func (m *Machine) blockAt(addr uint32) (*pioBlock, uintptr, bool) {
	for _, b := range m.blocks {
		if addr >= b.base && addr-b.base < pio.PIOMemSize {
			return b, uintptr(addr - b.base), true
		}
	}
	return nil, 0, false
}

func (m *Machine) busRead(addr uint32) (uint32, error) {
	if addr%4 != 0 {
		return 0, fmt.Errorf("unaligned read at 0x%08x", addr)
	}
	if m.mem.Contains(addr) {
		return m.mem.Load(addr), nil
	}
	if b, off, ok := m.blockAt(addr); ok {
		return b.read(off), nil
	}
	return 0, fmt.Errorf("read from unmapped 0x%08x", addr)
}

func (m *Machine) busWrite(addr, v uint32) error {
	if addr%4 != 0 {
		return fmt.Errorf("unaligned write at 0x%08x", addr)
	}
	if m.mem.Contains(addr) {
		m.mem.Store(addr, v)
		return nil
	}
	if b, off, ok := m.blockAt(addr); ok {
		b.write(off, v)
		return nil
	}
	return fmt.Errorf("write to unmapped 0x%08x", addr)
}
