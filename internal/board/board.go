// Package board wires the scan driver to real hardware: register blocks and
// transfer memory mapped from the physical memory device, GPIO routing through
// IO_BANK0 and a polled DMA interrupt.
package board

import (
	"fmt"
	"sort"

	"github.com/fkcurrie/hub75-golang/pkg/hub75"
	"github.com/fkcurrie/hub75-golang/pkg/pio"
)

// IO_BANK0 register layout
const (
	GPIO_CTRL0     = 0x004
	GPIO_STRIDE    = 0x008
	GPIO_FUNCSEL   = 0x1f
	IOBank0MemSize = 0x1000

	numGPIO = 30
)

// PinMux selects GPIO functions through IO_BANK0
type PinMux struct {
	regs pio.Registers
}

// NewPinMux returns a pin mux over the IO_BANK0 registers
func NewPinMux(regs pio.Registers) *PinMux {
	return &PinMux{regs: regs}
}

// SetFunction routes pin to function fn with default pad overrides
func (m *PinMux) SetFunction(pin uint8, fn uint8) error {
	if pin >= numGPIO {
		return fmt.Errorf("board: GPIO%d out of range", pin)
	}
	m.regs.Write32(GPIO_CTRL0+uintptr(pin)*GPIO_STRIDE, uint32(fn)&GPIO_FUNCSEL)
	return nil
}

// Function returns the function pin is routed to
func (m *PinMux) Function(pin uint8) uint8 {
	return uint8(m.regs.Read32(GPIO_CTRL0+uintptr(pin)*GPIO_STRIDE) & GPIO_FUNCSEL)
}

// IdleLevels returns the wiring's lines in ascending order with the levels that
// keep the panel dark: OEn high, everything else low.
func IdleLevels(w hub75.Wiring) (offsets, values []int) {
	for _, pin := range w.Pins() {
		offsets = append(offsets, int(pin))
	}
	sort.Ints(offsets)
	values = make([]int, len(offsets))
	for i, o := range offsets {
		if o == int(w.OutputEnable) {
			values[i] = 1
		}
	}
	return offsets, values
}
