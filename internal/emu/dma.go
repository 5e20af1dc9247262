package emu

import (
	"github.com/fkcurrie/hub75-golang/pkg/dma"
)

type dmaChannel struct {
	read      uint32
	write     uint32
	count     uint32 // reload value
	remaining uint32
	ctrl      uint32
	busy      bool
}

func (c *dmaChannel) chainTo() int {
	return int(c.ctrl>>dma.CTRL_CHAIN_TO_POS) & dma.CTRL_CHAIN_TO_MASK
}

func (c *dmaChannel) treq() uint8 {
	return uint8(c.ctrl>>dma.CTRL_TREQ_SEL_POS) & dma.CTRL_TREQ_SEL_MASK
}

type dmaState struct {
	ch    [dma.NumChannels]dmaChannel
	intr  uint32
	inte0 uint32
	intf0 uint32
}

func (s *dmaState) ints0() uint32 {
	return s.intr&s.inte0 | s.intf0
}

// field selectors for the four register aliases of a channel
const (
	fCtrl = iota
	fRead
	fWrite
	fCount
)

// aliasMap maps a channel register offset to its field and whether writing it
// triggers the channel.
var aliasMap = map[uintptr]struct {
	field   int
	trigger bool
}{
	0x00: {fRead, false},
	0x04: {fWrite, false},
	0x08: {fCount, false},
	0x0c: {fCtrl, true},
	0x10: {fCtrl, false},
	0x14: {fRead, false},
	0x18: {fWrite, false},
	0x1c: {fCount, true},
	0x20: {fCtrl, false},
	0x24: {fCount, false},
	0x28: {fRead, false},
	0x2c: {fWrite, true},
	0x30: {fCtrl, false},
	0x34: {fWrite, false},
	0x38: {fCount, false},
	0x3c: {fRead, true},
}

// dmaRegs is the register view of the emulated controller
type dmaRegs struct {
	m *Machine
}

func (r *dmaRegs) Read32(off uintptr) uint32 {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &m.dma
	switch off {
	case dma.INTR:
		return s.intr
	case dma.INTE0:
		return s.inte0
	case dma.INTF0:
		return s.intf0
	case dma.INTS0:
		return s.ints0()
	case dma.CHAN_ABORT, dma.MULTI_CHAN_TRIGGER:
		return 0
	}

	ch := int(off / dma.CH_STRIDE)
	if ch >= dma.NumChannels {
		return 0
	}
	c := &s.ch[ch]
	alias, ok := aliasMap[off%dma.CH_STRIDE]
	if !ok {
		return 0
	}
	switch alias.field {
	case fRead:
		return c.read
	case fWrite:
		return c.write
	case fCount:
		return c.remaining
	default:
		v := c.ctrl
		if c.busy {
			v |= dma.CTRL_BUSY
		}
		return v
	}
}

func (r *dmaRegs) Write32(off uintptr, v uint32) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.poke()

	s := &m.dma
	switch off {
	case dma.INTR, dma.INTS0:
		s.intr &^= v
		return
	case dma.INTE0:
		s.inte0 = v
		return
	case dma.INTF0:
		s.intf0 = v
		return
	case dma.CHAN_ABORT:
		for ch := range s.ch {
			if v&(1<<ch) != 0 {
				s.ch[ch].busy = false
			}
		}
		return
	case dma.MULTI_CHAN_TRIGGER:
		for ch := range s.ch {
			if v&(1<<ch) != 0 {
				m.trigger(ch)
			}
		}
		return
	}

	ch := int(off / dma.CH_STRIDE)
	alias, ok := aliasMap[off%dma.CH_STRIDE]
	if ch >= dma.NumChannels || !ok {
		m.fault("write to unknown DMA register 0x%03x", off)
		return
	}
	c := &s.ch[ch]
	switch alias.field {
	case fRead:
		c.read = v
	case fWrite:
		c.write = v
	case fCount:
		c.count = v
	default:
		c.ctrl = v &^ (dma.CTRL_BUSY | dma.CTRL_READ_ERROR)
	}
	if alias.trigger {
		m.trigger(ch)
	}
}

func (m *Machine) trigger(ch int) {
	c := &m.dma.ch[ch]
	if c.ctrl&dma.CTRL_EN == 0 {
		return
	}
	c.remaining = c.count
	c.busy = c.remaining > 0
}

func (m *Machine) dreqReady(treq uint8) bool {
	if treq == dma.TreqPermanent {
		return true
	}
	bi := int(treq / 8)
	if bi >= len(m.blocks) {
		return false
	}
	b := m.blocks[bi]
	sm := &b.sm[treq%4]
	if treq%8 < 4 {
		return !sm.txFull()
	}
	return len(sm.rx) > 0
}

// beat moves one word on channel ch if it is busy and paced in
func (m *Machine) beat(ch int) bool {
	c := &m.dma.ch[ch]
	if !c.busy || !m.dreqReady(c.treq()) {
		return false
	}

	if size := dma.DataSize(c.ctrl>>dma.CTRL_DATA_SIZE_POS) & 3; size != dma.Size32 {
		m.fault("channel %d: unsupported transfer size %d", ch, size.Bytes())
		c.busy = false
		return true
	}

	v, err := m.busRead(c.read)
	if err == nil {
		err = m.busWrite(c.write, v)
	}
	if err != nil {
		m.fault("channel %d: %v", ch, err)
		c.ctrl |= dma.CTRL_READ_ERROR
		c.busy = false
		return true
	}

	if c.ctrl&dma.CTRL_INCR_READ != 0 {
		c.read += 4
	}
	if c.ctrl&dma.CTRL_INCR_WRITE != 0 {
		c.write += 4
	}
	c.remaining--
	if c.remaining > 0 {
		return true
	}

	c.busy = false
	if c.ctrl&dma.CTRL_IRQ_QUIET == 0 {
		m.dma.intr |= 1 << ch
	}
	if next := c.chainTo(); next != ch && next < dma.NumChannels {
		m.trigger(next)
	}
	return true
}
