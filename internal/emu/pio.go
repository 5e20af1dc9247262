package emu

import (
	"github.com/fkcurrie/hub75-golang/pkg/pio"
)

type stateMachine struct {
	clkdiv    uint32
	execctrl  uint32
	shiftctrl uint32
	pinctrl   uint32
	addr      uint8
	instr     uint16

	tx      []uint32
	rx      []uint32
	pending []uint32
}

func (sm *stateMachine) txCap() int {
	switch {
	case sm.shiftctrl&pio.SHIFTCTRL_FJOIN_TX != 0:
		return 8
	case sm.shiftctrl&pio.SHIFTCTRL_FJOIN_RX != 0:
		return 0
	}
	return 4
}

func (sm *stateMachine) rxCap() int {
	switch {
	case sm.shiftctrl&pio.SHIFTCTRL_FJOIN_RX != 0:
		return 8
	case sm.shiftctrl&pio.SHIFTCTRL_FJOIN_TX != 0:
		return 0
	}
	return 4
}

func (sm *stateMachine) txFull() bool {
	return len(sm.tx) >= sm.txCap()
}

func (sm *stateMachine) rxFull() bool {
	return len(sm.rx) >= sm.rxCap()
}

func (sm *stateMachine) wrapBottom() uint8 {
	return uint8(sm.execctrl>>pio.EXECCTRL_WRAP_BOTTOM_POS) & 31
}

func (sm *stateMachine) outPins() (base, count uint8) {
	return uint8(sm.pinctrl>>pio.PINCTRL_OUT_BASE_POS) & 31, uint8(sm.pinctrl>>pio.PINCTRL_OUT_COUNT_POS) & 63
}

type pioBlock struct {
	index   int
	base    uint32
	ctrl    uint32
	fdebug  uint32
	instr   [pio.InstructionMemorySize]uint16
	sm      [pio.NumStateMachines]stateMachine
	pindirs uint32
}

func newPIOBlock(index int, base uint32) *pioBlock {
	b := &pioBlock{index: index, base: base}
	for i := range b.sm {
		b.sm[i].clkdiv = 1 << pio.CLKDIV_INT_POS
		b.sm[i].execctrl = 31 << pio.EXECCTRL_WRAP_TOP_POS
		b.sm[i].shiftctrl = pio.SHIFTCTRL_OUT_SHIFTDIR | pio.SHIFTCTRL_IN_SHIFTDIR
	}
	return b
}

func (b *pioBlock) enabled(i int) bool {
	return b.ctrl&(1<<i) != 0
}

func (b *pioBlock) fstat() uint32 {
	var v uint32
	for i := range b.sm {
		sm := &b.sm[i]
		if sm.rxFull() {
			v |= 1 << (pio.FSTAT_RXFULL_POS + i)
		}
		if len(sm.rx) == 0 {
			v |= 1 << (pio.FSTAT_RXEMPTY_POS + i)
		}
		if sm.txFull() {
			v |= 1 << (pio.FSTAT_TXFULL_POS + i)
		}
		if len(sm.tx) == 0 {
			v |= 1 << (pio.FSTAT_TXEMPTY_POS + i)
		}
	}
	return v
}

func smRegister(off uintptr) (sm int, reg uintptr, ok bool) {
	if off < pio.SM0_CLKDIV || off >= pio.SM0_CLKDIV+pio.NumStateMachines*pio.SM_STRIDE {
		return 0, 0, false
	}
	rel := off - pio.SM0_CLKDIV
	return int(rel / pio.SM_STRIDE), pio.SM0_CLKDIV + rel%pio.SM_STRIDE, true
}

func (b *pioBlock) read(off uintptr) uint32 {
	switch {
	case off == pio.CTRL:
		return b.ctrl & 0xf
	case off == pio.FSTAT:
		return b.fstat()
	case off == pio.FDEBUG:
		return b.fdebug
	case off == pio.FLEVEL:
		var v uint32
		for i := range b.sm {
			v |= uint32(len(b.sm[i].tx)&15)<<(8*i) | uint32(len(b.sm[i].rx)&15)<<(8*i+4)
		}
		return v
	case off >= pio.RXF0 && off < pio.RXF0+16:
		sm := &b.sm[(off-pio.RXF0)/4]
		if len(sm.rx) == 0 {
			b.fdebug |= 1 << (8 + (off-pio.RXF0)/4) // RXUNDER
			return 0
		}
		v := sm.rx[0]
		sm.rx = sm.rx[1:]
		return v
	case off >= pio.INSTR_MEM0 && off < pio.INSTR_MEM0+pio.InstructionMemorySize*4:
		return uint32(b.instr[(off-pio.INSTR_MEM0)/4])
	}

	i, reg, ok := smRegister(off)
	if !ok {
		return 0
	}
	sm := &b.sm[i]
	switch reg {
	case pio.SM0_CLKDIV:
		return sm.clkdiv
	case pio.SM0_EXECCTRL:
		return sm.execctrl
	case pio.SM0_SHIFTCTRL:
		return sm.shiftctrl
	case pio.SM0_ADDR:
		return uint32(sm.addr)
	case pio.SM0_INSTR:
		return uint32(sm.instr)
	case pio.SM0_PINCTRL:
		return sm.pinctrl
	}
	return 0
}

func (b *pioBlock) write(off uintptr, v uint32) {
	switch {
	case off == pio.CTRL:
		b.ctrl = v & 0xf
		for i := range b.sm {
			if v&(1<<(pio.CTRL_SM_RESTART_POS+i)) != 0 {
				b.sm[i].pending = nil
			}
		}
		return
	case off == pio.FDEBUG:
		b.fdebug &^= v
		return
	case off >= pio.TXF0 && off < pio.TXF0+16:
		i := (off - pio.TXF0) / 4
		sm := &b.sm[i]
		if sm.txFull() {
			b.fdebug |= 1 << (16 + i) // TXOVER
			return
		}
		sm.tx = append(sm.tx, v)
		return
	case off >= pio.INSTR_MEM0 && off < pio.INSTR_MEM0+pio.InstructionMemorySize*4:
		b.instr[(off-pio.INSTR_MEM0)/4] = uint16(v)
		return
	}

	i, reg, ok := smRegister(off)
	if !ok {
		return
	}
	sm := &b.sm[i]
	switch reg {
	case pio.SM0_CLKDIV:
		sm.clkdiv = v
	case pio.SM0_EXECCTRL:
		sm.execctrl = v
	case pio.SM0_SHIFTCTRL:
		joins := uint32(pio.SHIFTCTRL_FJOIN_TX | pio.SHIFTCTRL_FJOIN_RX)
		if (sm.shiftctrl^v)&joins != 0 {
			sm.tx, sm.rx = nil, nil
		}
		sm.shiftctrl = v
	case pio.SM0_INSTR:
		sm.instr = uint16(v)
		b.exec(sm, uint16(v))
	case pio.SM0_PINCTRL:
		sm.pinctrl = v
	}
}

// exec runs an instruction written to SMx_INSTR. Only jumps and SET PINDIRS
// have an effect.
func (b *pioBlock) exec(sm *stateMachine, instr uint16) {
	d := pio.Decode(instr)
	switch {
	case pio.IsJmp(instr) && d.Arg1 == uint8(pio.JmpAlways):
		sm.addr = d.Arg2
	case instr&0xe000 == 0xe000 && pio.SrcDest(d.Arg1) == pio.PinDirs:
		base := uint8(sm.pinctrl>>pio.PINCTRL_SET_BASE_POS) & 31
		count := uint8(sm.pinctrl>>pio.PINCTRL_SET_COUNT_POS) & 7
		for i := uint8(0); i < count; i++ {
			pin := (base + i) & 31
			if d.Arg2&(1<<i) != 0 {
				b.pindirs |= 1 << pin
			} else {
				b.pindirs &^= 1 << pin
			}
		}
	}
}

// pioRegs is the register view of one emulated block
type pioRegs struct {
	m *Machine
	b *pioBlock
}

func (r *pioRegs) Read32(off uintptr) uint32 {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.b.read(off)
}

func (r *pioRegs) Write32(off uintptr, v uint32) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	defer r.m.poke()
	r.b.write(off, v)
}

// runPIO lets every enabled state machine that drives the panel consume its
// FIFOs.
func (m *Machine) runPIO() bool {
	progress := false
	for _, b := range m.blocks {
		for i := range b.sm {
			if !b.enabled(i) {
				continue
			}
			sm := &b.sm[i]
			base, count := sm.outPins()
			switch {
			case base == m.panel.cfg.DataBase && count == 6:
				if m.runData(b, sm) {
					progress = true
				}
			case base == m.panel.cfg.RowBase:
				if m.runRow(b, sm) {
					progress = true
				}
			}
		}
	}
	return progress
}

func (m *Machine) shiftAt(b *pioBlock, sm *stateMachine, label uint8) (uint8, bool) {
	instr := b.instr[(sm.wrapBottom()+label)&31]
	if pio.IsPull(instr) {
		return 0, true
	}
	if n, ok := pio.IsOut(instr, pio.Null); ok && n < 32 {
		return n, true
	}
	m.fault("PIO%d: data shift slot %d holds 0x%04x", b.index, label, instr)
	return 0, false
}

// runData clocks pixel pairs from the TX FIFO into the panel, each word
// shifted by the plane patched into its slot.
func (m *Machine) runData(b *pioBlock, sm *stateMachine) bool {
	progress := false
	for len(sm.tx) > 0 {
		sm.pending = append(sm.pending, sm.tx[0])
		sm.tx = sm.tx[1:]
		progress = true
		if len(sm.pending) < 2 {
			continue
		}

		s0, ok0 := m.shiftAt(b, sm, pio.HUB75DataShift0)
		s1, ok1 := m.shiftAt(b, sm, pio.HUB75DataShift1)
		top, bottom := sm.pending[0], sm.pending[1]
		sm.pending = sm.pending[:0]
		if !ok0 || !ok1 {
			continue
		}
		m.panel.clock(top>>s0, bottom>>s1)
	}
	return progress
}

// runRow takes one descriptor per call: the low bits select the row, the rest
// is the OEn pulse count. The completion word goes to the RX FIFO.
func (m *Machine) runRow(b *pioBlock, sm *stateMachine) bool {
	if len(sm.tx) == 0 || sm.rxFull() {
		return false
	}
	d := sm.tx[0]
	sm.tx = sm.tx[1:]

	rowBits, ok := pio.IsOut(b.instr[sm.wrapBottom()], pio.Pins)
	if !ok {
		m.fault("PIO%d: row program does not start with out pins", b.index)
		return true
	}
	_, count := sm.outPins()
	row := int(d & (1<<count - 1))
	pulse := d >> rowBits

	if err := m.panel.latch(row, uint64(pulse)+1); err != nil {
		m.fault("%v", err)
	}
	sm.rx = append(sm.rx, 0)
	return true
}
