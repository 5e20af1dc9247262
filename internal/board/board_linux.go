//go:build linux

package board

import (
	"fmt"
	"log"
	"os"

	"github.com/fkcurrie/hub75-golang/internal/config"
	"github.com/fkcurrie/hub75-golang/pkg/dma"
	"github.com/fkcurrie/hub75-golang/pkg/gpio"
	"github.com/fkcurrie/hub75-golang/pkg/hub75"
	"github.com/fkcurrie/hub75-golang/pkg/mmap"
	"github.com/fkcurrie/hub75-golang/pkg/pio"
)

// dmaMemSize covers the channel registers and the global control block
const dmaMemSize = 0x1000

// Board is the mapped hardware of one chip
type Board struct {
	maps   []*mmap.MemoryMap
	pins   *PinMux
	poller *dma.Poller
	hw     hub75.Hardware
}

// Open maps the register blocks and the transfer memory window described by
// cfg.
func Open(cfg config.BoardConfig) (*Board, error) {
	b := &Board{}
	ok := false
	defer func() {
		if !ok {
			b.Close()
		}
	}()

	bank, err := b.mapRegion(cfg.MemDevice, cfg.IOBank0, IOBank0MemSize)
	if err != nil {
		return nil, err
	}
	b.pins = NewPinMux(bank)

	for i, base := range cfg.PIOBases {
		regs, err := b.mapRegion(cfg.MemDevice, base, pio.PIOMemSize)
		if err != nil {
			return nil, err
		}
		b.hw.PIO = append(b.hw.PIO, pio.NewBlock(i, regs, base, b.pins))
	}

	regs, err := b.mapRegion(cfg.MemDevice, cfg.DMABase, dmaMemSize)
	if err != nil {
		return nil, err
	}
	b.hw.DMA = dma.NewController(regs)
	b.poller = dma.NewPoller(b.hw.DMA)
	b.hw.IRQ = b.poller

	size := uintptr(cfg.SRAMWords) * 4
	if page := uintptr(os.Getpagesize()); size%page != 0 {
		size += page - size%page
	}
	sram, err := b.mapRegion(cfg.MemDevice, cfg.SRAMBase, size)
	if err != nil {
		return nil, err
	}
	words, err := sram.Words(0, cfg.SRAMWords)
	if err != nil {
		return nil, err
	}
	b.hw.Memory = dma.NewArena(words, cfg.SRAMBase)

	log.Printf("Mapped %d PIO blocks, DMA at 0x%08x, %d words of transfer memory at 0x%08x",
		len(b.hw.PIO), cfg.DMABase, cfg.SRAMWords, cfg.SRAMBase)
	ok = true
	return b, nil
}

func (b *Board) mapRegion(dev string, base uint32, size uintptr) (*mmap.MemoryMap, error) {
	m, err := mmap.Open(dev, uintptr(base), size)
	if err != nil {
		return nil, fmt.Errorf("board: failed to map 0x%08x: %w", base, err)
	}
	b.maps = append(b.maps, m)
	return m, nil
}

// Hardware returns the resources the driver claims from
func (b *Board) Hardware() hub75.Hardware {
	return b.hw
}

// Pins returns the GPIO function router
func (b *Board) Pins() *PinMux {
	return b.pins
}

// Close stops interrupt delivery and unmaps every region
func (b *Board) Close() error {
	if b.poller != nil {
		b.poller.ClearHandler()
	}
	var first error
	for i := len(b.maps) - 1; i >= 0; i-- {
		if err := b.maps[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	b.maps = nil
	return first
}

// Blank checks the wiring's lines are free on chip and parks them at their
// idle levels before the scan programs take them over.
func Blank(chip string, w hub75.Wiring) error {
	offsets, values := IdleLevels(w)
	if err := gpio.CheckFree(chip, offsets); err != nil {
		return err
	}
	lines, err := gpio.Request(chip, offsets, values)
	if err != nil {
		return err
	}
	return lines.Close()
}
