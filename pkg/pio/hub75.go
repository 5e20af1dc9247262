package pio

import "fmt"

// Program is an assembled PIO program
type Program struct {
	Name         string
	Instructions []uint16
	Origin       int8 // -1 loads anywhere
	WrapTarget   uint8
	Wrap         uint8
	SideSetCount uint8 // side-set bits including the enable bit when optional
	SideSetOpt   bool
}

// DefaultConfig returns a state machine configuration for the program loaded
// at offset.
func (p *Program) DefaultConfig(offset uint8) SMConfig {
	c := DefaultSMConfig()
	c.SetWrap(offset+p.WrapTarget, offset+p.Wrap)
	c.SetSideset(p.SideSetCount, p.SideSetOpt, false)
	return c
}

// HUB75 data program labels
const (
	HUB75DataEntryPoint = 0
	HUB75DataShift0     = 0
	HUB75DataShift1     = 7
)

// HUB75DataProgram shifts one bit-plane of two interleaved RGB888-style
// pixel words per clock. Each word carries three 10-bit channels; the two
// shift slots are patched to select the plane.
//
//	.program hub75_data_rgb888
//	.side_set 1
//	public entry_point:
//	.wrap_target
//	public shift0:
//	    pull             side 0
//	    in osr, 1        side 0
//	    out null, 10     side 0
//	    in osr, 1        side 0
//	    out null, 10     side 0
//	    in osr, 1        side 0
//	    out null, 32     side 0
//	public shift1:
//	    pull             side 0
//	    in osr, 1        side 1
//	    out null, 10     side 1
//	    in osr, 1        side 1
//	    out null, 10     side 1
//	    in osr, 1        side 1
//	    out null, 32     side 1
//	    in null, 26      side 1
//	    mov pins, ::isr  side 1
//	.wrap
var HUB75DataProgram = Program{
	Name: "hub75_data_rgb888",
	Instructions: []uint16{
		0x80a0, //  0: pull   block           side 0
		0x40e1, //  1: in     osr, 1          side 0
		0x606a, //  2: out    null, 10        side 0
		0x40e1, //  3: in     osr, 1          side 0
		0x606a, //  4: out    null, 10        side 0
		0x40e1, //  5: in     osr, 1          side 0
		0x6060, //  6: out    null, 32        side 0
		0x80a0, //  7: pull   block           side 0
		0x50e1, //  8: in     osr, 1          side 1
		0x706a, //  9: out    null, 10        side 1
		0x50e1, // 10: in     osr, 1          side 1
		0x706a, // 11: out    null, 10        side 1
		0x50e1, // 12: in     osr, 1          side 1
		0x7060, // 13: out    null, 32        side 1
		0x507a, // 14: in     null, 26        side 1
		0xb016, // 15: mov    pins, ::isr     side 1
	},
	Origin:       -1,
	WrapTarget:   0,
	Wrap:         15,
	SideSetCount: 1,
}

// HUB75RowProgram selects a row, pulses the latch and holds OEn asserted for
// the pulse width in the descriptor. The final IN pushes a word to the RX
// FIFO so a DMA channel can signal the end of the pulse.
//
//	.program hub75_row
//	.side_set 2
//	.wrap_target
//	    out pins, 5 [1]    side 0x2
//	    out x, 27   [1]    side 0x3
//	pulse_loop:
//	    jmp x-- pulse_loop side 0x0
//	    in null, 32        side 0x2
//	.wrap
var HUB75RowProgram = Program{
	Name: "hub75_row",
	Instructions: []uint16{
		0x7105, //  0: out    pins, 5         side 2 [1]
		0x793b, //  1: out    x, 27           side 3 [1]
		0x0042, //  2: jmp    x--, 2          side 0
		0x5060, //  3: in     null, 32        side 2
	},
	Origin:       -1,
	WrapTarget:   0,
	Wrap:         3,
	SideSetCount: 2,
}

// DataShiftInstr returns the instruction placed in both shift slots of the
// data program to output bit-plane plane.
func DataShiftInstr(plane uint8) uint16 {
	if plane == 0 {
		return EncodePull(false, true)
	}
	return EncodeOut(Null, plane)
}

// InitHUB75Data configures sm to run the data program loaded at offset, driving
// six colour lines from rgbBase and the pixel clock on clockPin.
func InitHUB75Data(sm *StateMachine, offset, rgbBase, clockPin uint8) error {
	sm.SetPindirsConsecutive(rgbBase, 6, true)
	sm.SetPindirsConsecutive(clockPin, 1, true)
	for pin := rgbBase; pin < rgbBase+6; pin++ {
		if err := sm.Block().GPIOInit(pin); err != nil {
			return fmt.Errorf("failed to init data pin: %w", err)
		}
	}
	if err := sm.Block().GPIOInit(clockPin); err != nil {
		return fmt.Errorf("failed to init clock pin: %w", err)
	}

	c := HUB75DataProgram.DefaultConfig(offset)
	c.SetOutPins(rgbBase, 6)
	c.SetSidesetPins(clockPin)
	c.SetOutShift(true, true, 32)
	// ISR shifts left so R0 ends up at the top before the reversing MOV
	c.SetInShift(false, false, 32)
	c.SetFIFOJoin(JoinTX)
	sm.Init(offset, c)
	sm.Exec(EncodeJmp(offset + HUB75DataEntryPoint))
	sm.SetEnabled(true)
	return nil
}

// InitHUB75Row configures sm to run the row program loaded at offset, driving
// rowPins address lines from rowBase and the latch and OEn lines from
// latchBase.
func InitHUB75Row(sm *StateMachine, offset, rowBase, rowPins, latchBase uint8) error {
	sm.SetPindirsConsecutive(rowBase, rowPins, true)
	sm.SetPindirsConsecutive(latchBase, 2, true)
	for pin := rowBase; pin < rowBase+rowPins; pin++ {
		if err := sm.Block().GPIOInit(pin); err != nil {
			return fmt.Errorf("failed to init row pin: %w", err)
		}
	}
	for pin := latchBase; pin < latchBase+2; pin++ {
		if err := sm.Block().GPIOInit(pin); err != nil {
			return fmt.Errorf("failed to init latch pin: %w", err)
		}
	}

	c := HUB75RowProgram.DefaultConfig(offset)
	c.SetOutPins(rowBase, rowPins)
	c.SetSidesetPins(latchBase)
	c.SetOutShift(true, true, 32)
	c.SetInShift(true, true, 32)
	sm.Init(offset, c)
	sm.SetEnabled(true)
	return nil
}
