package pio

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
)

// EXECCTRL fields
const (
	EXECCTRL_SIDE_EN          = 1 << 30
	EXECCTRL_SIDE_PINDIR      = 1 << 29
	EXECCTRL_WRAP_TOP_POS     = 12
	EXECCTRL_WRAP_BOTTOM_POS  = 7
	EXECCTRL_WRAP_TOP_MASK    = 0x1f << EXECCTRL_WRAP_TOP_POS
	EXECCTRL_WRAP_BOTTOM_MASK = 0x1f << EXECCTRL_WRAP_BOTTOM_POS
)

// SHIFTCTRL fields
const (
	SHIFTCTRL_FJOIN_RX         = 1 << 31
	SHIFTCTRL_FJOIN_TX         = 1 << 30
	SHIFTCTRL_PULL_THRESH_POS  = 25
	SHIFTCTRL_PUSH_THRESH_POS  = 20
	SHIFTCTRL_OUT_SHIFTDIR     = 1 << 19
	SHIFTCTRL_IN_SHIFTDIR      = 1 << 18
	SHIFTCTRL_AUTOPULL         = 1 << 17
	SHIFTCTRL_AUTOPUSH         = 1 << 16
	SHIFTCTRL_PULL_THRESH_MASK = 0x1f << SHIFTCTRL_PULL_THRESH_POS
	SHIFTCTRL_PUSH_THRESH_MASK = 0x1f << SHIFTCTRL_PUSH_THRESH_POS
)

// PINCTRL fields
const (
	PINCTRL_SIDESET_COUNT_POS = 29
	PINCTRL_SET_COUNT_POS     = 26
	PINCTRL_OUT_COUNT_POS     = 20
	PINCTRL_IN_BASE_POS       = 15
	PINCTRL_SIDESET_BASE_POS  = 10
	PINCTRL_SET_BASE_POS      = 5
	PINCTRL_OUT_BASE_POS      = 0
)

// CLKDIV fields
const (
	CLKDIV_INT_POS  = 16
	CLKDIV_FRAC_POS = 8
)

// FIFOJoin selects how the two FIFOs of a state machine are combined
type FIFOJoin uint8

const (
	JoinNone FIFOJoin = iota
	JoinTX
	JoinRX
)

// SMConfig holds the four configuration registers of a state machine
type SMConfig struct {
	ClkDiv    uint32
	ExecCtrl  uint32
	ShiftCtrl uint32
	PinCtrl   uint32
}

// DefaultSMConfig returns the reset configuration: full speed, wrapping over
// the whole instruction memory, both shift registers shifting right.
func DefaultSMConfig() SMConfig {
	return SMConfig{
		ClkDiv:    1 << CLKDIV_INT_POS,
		ExecCtrl:  31 << EXECCTRL_WRAP_TOP_POS,
		ShiftCtrl: SHIFTCTRL_OUT_SHIFTDIR | SHIFTCTRL_IN_SHIFTDIR,
	}
}

func field(reg uint32, pos uint, width uint, v uint32) uint32 {
	mask := uint32(1)<<width - 1
	return reg&^(mask<<pos) | (v&mask)<<pos
}

// SetOutPins maps OUT to count pins starting at base
func (c *SMConfig) SetOutPins(base, count uint8) {
	c.PinCtrl = field(c.PinCtrl, PINCTRL_OUT_BASE_POS, 5, uint32(base))
	c.PinCtrl = field(c.PinCtrl, PINCTRL_OUT_COUNT_POS, 6, uint32(count))
}

// SetSetPins maps SET to count pins starting at base
func (c *SMConfig) SetSetPins(base, count uint8) {
	c.PinCtrl = field(c.PinCtrl, PINCTRL_SET_BASE_POS, 5, uint32(base))
	c.PinCtrl = field(c.PinCtrl, PINCTRL_SET_COUNT_POS, 3, uint32(count))
}

// SetInPins maps IN to pins starting at base
func (c *SMConfig) SetInPins(base uint8) {
	c.PinCtrl = field(c.PinCtrl, PINCTRL_IN_BASE_POS, 5, uint32(base))
}

// SetSidesetPins maps side-set to pins starting at base
func (c *SMConfig) SetSidesetPins(base uint8) {
	c.PinCtrl = field(c.PinCtrl, PINCTRL_SIDESET_BASE_POS, 5, uint32(base))
}

// SetSideset sets the number of side-set bits, including the enable bit when
// optional.
func (c *SMConfig) SetSideset(bitCount uint8, optional, pindirs bool) {
	c.PinCtrl = field(c.PinCtrl, PINCTRL_SIDESET_COUNT_POS, 3, uint32(bitCount))
	c.ExecCtrl &^= EXECCTRL_SIDE_EN | EXECCTRL_SIDE_PINDIR
	if optional {
		c.ExecCtrl |= EXECCTRL_SIDE_EN
	}
	if pindirs {
		c.ExecCtrl |= EXECCTRL_SIDE_PINDIR
	}
}

// SetWrap sets the wrap target and the instruction after which it wraps
func (c *SMConfig) SetWrap(target, wrap uint8) {
	c.ExecCtrl = field(c.ExecCtrl, EXECCTRL_WRAP_BOTTOM_POS, 5, uint32(target))
	c.ExecCtrl = field(c.ExecCtrl, EXECCTRL_WRAP_TOP_POS, 5, uint32(wrap))
}

// Wrap returns the wrap target and wrap instruction
func (c SMConfig) Wrap() (target, wrap uint8) {
	return uint8(c.ExecCtrl>>EXECCTRL_WRAP_BOTTOM_POS) & 31, uint8(c.ExecCtrl>>EXECCTRL_WRAP_TOP_POS) & 31
}

// SetOutShift configures the output shift register. A threshold of 32 is
// encoded as 0.
func (c *SMConfig) SetOutShift(right, autopull bool, threshold uint8) {
	c.ShiftCtrl = setBit(c.ShiftCtrl, SHIFTCTRL_OUT_SHIFTDIR, right)
	c.ShiftCtrl = setBit(c.ShiftCtrl, SHIFTCTRL_AUTOPULL, autopull)
	c.ShiftCtrl = field(c.ShiftCtrl, SHIFTCTRL_PULL_THRESH_POS, 5, uint32(threshold))
}

// SetInShift configures the input shift register
func (c *SMConfig) SetInShift(right, autopush bool, threshold uint8) {
	c.ShiftCtrl = setBit(c.ShiftCtrl, SHIFTCTRL_IN_SHIFTDIR, right)
	c.ShiftCtrl = setBit(c.ShiftCtrl, SHIFTCTRL_AUTOPUSH, autopush)
	c.ShiftCtrl = field(c.ShiftCtrl, SHIFTCTRL_PUSH_THRESH_POS, 5, uint32(threshold))
}

// SetFIFOJoin joins both FIFOs into one deeper FIFO
func (c *SMConfig) SetFIFOJoin(join FIFOJoin) {
	c.ShiftCtrl &^= SHIFTCTRL_FJOIN_TX | SHIFTCTRL_FJOIN_RX
	switch join {
	case JoinTX:
		c.ShiftCtrl |= SHIFTCTRL_FJOIN_TX
	case JoinRX:
		c.ShiftCtrl |= SHIFTCTRL_FJOIN_RX
	}
}

// SetClkDiv sets the clock divider as an integer part and 1/256 fraction
func (c *SMConfig) SetClkDiv(integer uint16, frac uint8) {
	c.ClkDiv = uint32(integer)<<CLKDIV_INT_POS | uint32(frac)<<CLKDIV_FRAC_POS
}

// SetClockFrequency derives the divider that runs the state machine at target
// from a system clock of sys.
func (c *SMConfig) SetClockFrequency(sys, target physic.Frequency) error {
	sysHz := int64(sys / physic.Hertz)
	targetHz := int64(target / physic.Hertz)
	if sysHz <= 0 || targetHz <= 0 {
		return fmt.Errorf("pio: invalid clock %s from %s", target, sys)
	}
	if targetHz > sysHz {
		return fmt.Errorf("pio: clock %s exceeds system clock %s", target, sys)
	}

	div := sysHz * 256 / targetHz
	integer := div >> 8
	if integer > 0xffff {
		return fmt.Errorf("pio: clock %s too slow for system clock %s", target, sys)
	}
	c.SetClkDiv(uint16(integer), uint8(div&0xff))
	return nil
}

func setBit(reg, bit uint32, set bool) uint32 {
	if set {
		return reg | bit
	}
	return reg &^ bit
}
