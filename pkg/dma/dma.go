// Package dma drives an RP2040-style DMA controller through its register block.
//
// Channels are claimed once, configured with a ChannelConfig and re-armed by
// writing their read or write address through the triggering register aliases.
// None of the per-transfer operations take locks, so they may be called from the
// interrupt handler that services channel completion.
package dma

import (
	"errors"
	"fmt"
	"sync"
)

// Register offsets within the DMA block
const (
	CH_READ_ADDR   = 0x000
	CH_WRITE_ADDR  = 0x004
	CH_TRANS_COUNT = 0x008
	CH_CTRL_TRIG   = 0x00c

	CH_AL1_CTRL             = 0x010
	CH_AL1_READ_ADDR        = 0x014
	CH_AL1_WRITE_ADDR       = 0x018
	CH_AL1_TRANS_COUNT_TRIG = 0x01c
	CH_AL2_WRITE_ADDR_TRIG  = 0x02c
	CH_AL3_READ_ADDR_TRIG   = 0x03c

	// Channel register stride
	CH_STRIDE = 0x040

	INTR  = 0x400
	INTE0 = 0x404
	INTF0 = 0x408
	INTS0 = 0x40c

	MULTI_CHAN_TRIGGER = 0x430
	CHAN_ABORT         = 0x444
)

// CTRL register fields
const (
	CTRL_EN            = 1 << 0
	CTRL_HIGH_PRIORITY = 1 << 1
	CTRL_DATA_SIZE_POS = 2
	CTRL_INCR_READ     = 1 << 4
	CTRL_INCR_WRITE    = 1 << 5
	CTRL_CHAIN_TO_POS  = 11
	CTRL_TREQ_SEL_POS  = 15
	CTRL_IRQ_QUIET     = 1 << 21
	CTRL_BUSY          = 1 << 24
	CTRL_READ_ERROR    = 1 << 30

	CTRL_CHAIN_TO_MASK = 0xf
	CTRL_TREQ_SEL_MASK = 0x3f
)

// NumChannels is the number of channels in the controller
const NumChannels = 12

// TreqPermanent makes a channel transfer as fast as possible, unpaced
const TreqPermanent = 0x3f

// DataSize is the width of a single transfer
type DataSize uint8

const (
	Size8  DataSize = 0
	Size16 DataSize = 1
	Size32 DataSize = 2
)

// Bytes returns the transfer width in bytes
func (s DataSize) Bytes() uint32 {
	return 1 << s
}

// ErrNoChannel is returned when every channel is already claimed
var ErrNoChannel = errors.New("dma: no free channel")

// Registers is 32-bit access to the DMA register block
type Registers interface {
	Read32(offset uintptr) uint32
	Write32(offset uintptr, value uint32)
}

// ChannelConfig mirrors the channel CTRL register
type ChannelConfig struct {
	DataSize     DataSize
	IncrRead     bool
	IncrWrite    bool
	Treq         uint8
	ChainTo      int // a channel chaining to itself does not chain
	HighPriority bool
	IRQQuiet     bool
}

// DefaultConfig returns the reset configuration for channel ch: 32-bit
// transfers, incrementing reads, unpaced, no chaining.
func DefaultConfig(ch int) ChannelConfig {
	return ChannelConfig{
		DataSize: Size32,
		IncrRead: true,
		Treq:     TreqPermanent,
		ChainTo:  ch,
	}
}

// Ctrl encodes the configuration as an enabled CTRL register value
func (c ChannelConfig) Ctrl() uint32 {
	v := uint32(CTRL_EN)
	v |= uint32(c.DataSize&3) << CTRL_DATA_SIZE_POS
	v |= uint32(c.ChainTo&CTRL_CHAIN_TO_MASK) << CTRL_CHAIN_TO_POS
	v |= uint32(c.Treq&CTRL_TREQ_SEL_MASK) << CTRL_TREQ_SEL_POS
	if c.IncrRead {
		v |= CTRL_INCR_READ
	}
	if c.IncrWrite {
		v |= CTRL_INCR_WRITE
	}
	if c.HighPriority {
		v |= CTRL_HIGH_PRIORITY
	}
	if c.IRQQuiet {
		v |= CTRL_IRQ_QUIET
	}
	return v
}

// Controller hands out channels and programs them
type Controller struct {
	regs Registers

	mu      sync.Mutex
	claimed uint16
}

// NewController creates a controller over the given register block
func NewController(regs Registers) *Controller {
	return &Controller{regs: regs}
}

func chanReg(ch int, reg uintptr) uintptr {
	return uintptr(ch)*CH_STRIDE + reg
}

// Claim reserves the lowest free channel
func (c *Controller) Claim() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for ch := 0; ch < NumChannels; ch++ {
		if c.claimed&(1<<ch) == 0 {
			c.claimed |= 1 << ch
			return ch, nil
		}
	}
	return -1, ErrNoChannel
}

// Unclaim releases a channel obtained from Claim
func (c *Controller) Unclaim(ch int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.claimed &^= 1 << ch
}

// Claimed reports whether ch is currently claimed
func (c *Controller) Claimed(ch int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.claimed&(1<<ch) != 0
}

// Configure programs addresses, transfer count and control for ch. When trigger
// is set the channel starts immediately.
func (c *Controller) Configure(ch int, cfg ChannelConfig, write, read, count uint32, trigger bool) error {
	if ch < 0 || ch >= NumChannels {
		return fmt.Errorf("dma: channel %d out of range", ch)
	}
	c.regs.Write32(chanReg(ch, CH_READ_ADDR), read)
	c.regs.Write32(chanReg(ch, CH_WRITE_ADDR), write)
	c.regs.Write32(chanReg(ch, CH_TRANS_COUNT), count)
	if trigger {
		c.regs.Write32(chanReg(ch, CH_CTRL_TRIG), cfg.Ctrl())
	} else {
		c.regs.Write32(chanReg(ch, CH_AL1_CTRL), cfg.Ctrl())
	}
	return nil
}

// SetReadAddr points ch at a new source, optionally starting it
func (c *Controller) SetReadAddr(ch int, addr uint32, trigger bool) {
	if trigger {
		c.regs.Write32(chanReg(ch, CH_AL3_READ_ADDR_TRIG), addr)
		return
	}
	c.regs.Write32(chanReg(ch, CH_READ_ADDR), addr)
}

// SetWriteAddr points ch at a new destination, optionally starting it
func (c *Controller) SetWriteAddr(ch int, addr uint32, trigger bool) {
	if trigger {
		c.regs.Write32(chanReg(ch, CH_AL2_WRITE_ADDR_TRIG), addr)
		return
	}
	c.regs.Write32(chanReg(ch, CH_WRITE_ADDR), addr)
}

// Busy reports whether ch has a transfer in flight
func (c *Controller) Busy(ch int) bool {
	return c.regs.Read32(chanReg(ch, CH_CTRL_TRIG))&CTRL_BUSY != 0
}

// Abort stops ch and waits for the abort to take effect
func (c *Controller) Abort(ch int) {
	c.regs.Write32(CHAN_ABORT, 1<<ch)
	for c.regs.Read32(CHAN_ABORT)&(1<<ch) != 0 {
	}
}

// SetIRQ0Enabled routes completion of ch to interrupt line 0
func (c *Controller) SetIRQ0Enabled(ch int, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := c.regs.Read32(INTE0)
	if enabled {
		v |= 1 << ch
	} else {
		v &^= 1 << ch
	}
	c.regs.Write32(INTE0, v)
}

// IRQ0Status returns the masked interrupt status of line 0
func (c *Controller) IRQ0Status() uint32 {
	return c.regs.Read32(INTS0)
}

// AckIRQ0 clears the pending line 0 interrupt of ch
func (c *Controller) AckIRQ0(ch int) {
	c.regs.Write32(INTS0, 1<<ch)
}
