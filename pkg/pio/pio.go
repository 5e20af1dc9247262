// Package pio programs RP2040-style programmable I/O blocks: instruction memory
// allocation, state machine configuration and the FIFO addresses DMA channels
// use to feed them.
package pio

import (
	"errors"
	"fmt"
	"sync"
)

const (
	// PIO memory size (4KB per PIO block)
	PIOMemSize = 0x1000

	// Block register offsets
	CTRL       = 0x000
	FSTAT      = 0x004
	FDEBUG     = 0x008
	FLEVEL     = 0x00c
	TXF0       = 0x010
	RXF0       = 0x020
	INSTR_MEM0 = 0x048

	// State machine register offsets
	SM0_CLKDIV    = 0x0c8
	SM0_EXECCTRL  = 0x0cc
	SM0_SHIFTCTRL = 0x0d0
	SM0_ADDR      = 0x0d4
	SM0_INSTR     = 0x0d8
	SM0_PINCTRL   = 0x0dc

	// State machine register stride
	SM_STRIDE = 0x018

	// CTRL fields
	CTRL_SM_ENABLE_POS      = 0
	CTRL_SM_RESTART_POS     = 4
	CTRL_CLKDIV_RESTART_POS = 8

	// FSTAT fields
	FSTAT_RXFULL_POS  = 0
	FSTAT_RXEMPTY_POS = 8
	FSTAT_TXFULL_POS  = 16
	FSTAT_TXEMPTY_POS = 24

	// FDEBUG clears on write, all stall and overflow flags
	FDEBUG_ALL = 0x0f0f0f0f
)

// NumStateMachines is the number of state machines per block
const NumStateMachines = 4

// InstructionMemorySize is the number of instruction slots per block
const InstructionMemorySize = 32

var (
	// ErrNoStateMachine is returned when every state machine of a block is claimed
	ErrNoStateMachine = errors.New("pio: no free state machine")
	// ErrNoProgramSpace is returned when a program does not fit in instruction memory
	ErrNoProgramSpace = errors.New("pio: no program space")
)

// Registers is 32-bit access to a PIO register block
type Registers interface {
	Read32(offset uintptr) uint32
	Write32(offset uintptr, value uint32)
}

// PinMux routes GPIO pins to a peripheral function
type PinMux interface {
	SetFunction(pin uint8, function uint8) error
}

// GPIO function select of PIO block 0; block n uses FuncPIO0+n
const FuncPIO0 = 6

// Block is one PIO block with its instruction memory and four state machines
type Block struct {
	regs  Registers
	index int
	bus   uint32
	pins  PinMux

	mu      sync.Mutex
	claimed uint8
	used    uint32
}

// NewBlock creates block number index whose registers sit at bus address bus.
// pins may be nil when GPIO routing is handled elsewhere.
func NewBlock(index int, regs Registers, bus uint32, pins PinMux) *Block {
	return &Block{
		regs:  regs,
		index: index,
		bus:   bus,
		pins:  pins,
	}
}

// Index returns the block number
func (b *Block) Index() int {
	return b.index
}

// ClaimStateMachine reserves the lowest free state machine
func (b *Block) ClaimStateMachine() (*StateMachine, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := uint8(0); i < NumStateMachines; i++ {
		if b.claimed&(1<<i) == 0 {
			b.claimed |= 1 << i
			return &StateMachine{block: b, index: i}, nil
		}
	}
	return nil, ErrNoStateMachine
}

func (b *Block) findOffset(p *Program) int {
	n := len(p.Instructions)
	if n == 0 || n > InstructionMemorySize {
		return -1
	}
	mask := uint32(1)<<n - 1
	if n == InstructionMemorySize {
		mask = ^uint32(0)
	}

	if p.Origin >= 0 {
		if int(p.Origin)+n > InstructionMemorySize || b.used&(mask<<p.Origin) != 0 {
			return -1
		}
		return int(p.Origin)
	}
	for off := InstructionMemorySize - n; off >= 0; off-- {
		if b.used&(mask<<off) == 0 {
			return off
		}
	}
	return -1
}

// CanAddProgram reports whether p fits in the free instruction memory
func (b *Block) CanAddProgram(p *Program) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.findOffset(p) >= 0
}

// AddProgram loads p into free instruction memory, relocating its jumps, and
// returns the load offset.
func (b *Block) AddProgram(p *Program) (uint8, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	off := b.findOffset(p)
	if off < 0 {
		return 0, fmt.Errorf("%w: %s needs %d slots in PIO%d", ErrNoProgramSpace, p.Name, len(p.Instructions), b.index)
	}

	for i, instr := range p.Instructions {
		if instr&0xe000 == instrJmp {
			instr += uint16(off)
		}
		b.regs.Write32(INSTR_MEM0+uintptr(off+i)*4, uint32(instr))
		b.used |= 1 << (off + i)
	}
	return uint8(off), nil
}

// RemoveProgram frees the instruction memory used by p at offset
func (b *Block) RemoveProgram(p *Program, offset uint8) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range p.Instructions {
		slot := int(offset) + i
		b.regs.Write32(INSTR_MEM0+uintptr(slot)*4, uint32(EncodeJmp(uint8(slot))))
		b.used &^= 1 << slot
	}
}

// WriteInstr replaces the instruction at addr. It takes no lock, the slot
// must belong to a program the caller loaded.
func (b *Block) WriteInstr(addr uint8, instr uint16) {
	b.regs.Write32(INSTR_MEM0+uintptr(addr&31)*4, uint32(instr))
}

// GPIOInit hands pin over to this block
func (b *Block) GPIOInit(pin uint8) error {
	if b.pins == nil {
		return nil
	}
	if err := b.pins.SetFunction(pin, FuncPIO0+uint8(b.index)); err != nil {
		return fmt.Errorf("failed to route GPIO%d to PIO%d: %w", pin, b.index, err)
	}
	return nil
}

// ClaimAndAddProgram finds the first block with both a free state machine and
// room for p, claims the state machine and loads p there.
func ClaimAndAddProgram(blocks []*Block, p *Program) (*StateMachine, uint8, error) {
	var lastErr error = ErrNoStateMachine
	for _, b := range blocks {
		if !b.CanAddProgram(p) {
			lastErr = fmt.Errorf("%w: %s", ErrNoProgramSpace, p.Name)
			continue
		}
		sm, err := b.ClaimStateMachine()
		if err != nil {
			lastErr = err
			continue
		}
		off, err := b.AddProgram(p)
		if err != nil {
			sm.Unclaim()
			lastErr = err
			continue
		}
		return sm, off, nil
	}
	return nil, 0, lastErr
}

// StateMachine is a claimed state machine of a block
type StateMachine struct {
	block *Block
	index uint8
}

// Block returns the block the state machine belongs to
func (sm *StateMachine) Block() *Block {
	return sm.block
}

// Index returns the state machine number within its block
func (sm *StateMachine) Index() uint8 {
	return sm.index
}

func (sm *StateMachine) reg(offset uintptr) uintptr {
	return offset + uintptr(sm.index)*SM_STRIDE
}

// Unclaim disables the state machine and returns it to its block
func (sm *StateMachine) Unclaim() {
	sm.SetEnabled(false)

	sm.block.mu.Lock()
	defer sm.block.mu.Unlock()
	sm.block.claimed &^= 1 << sm.index
}

// SetConfig writes cfg to the state machine registers
func (sm *StateMachine) SetConfig(cfg SMConfig) {
	regs := sm.block.regs
	regs.Write32(sm.reg(SM0_CLKDIV), cfg.ClkDiv)
	regs.Write32(sm.reg(SM0_EXECCTRL), cfg.ExecCtrl)
	regs.Write32(sm.reg(SM0_SHIFTCTRL), cfg.ShiftCtrl)
	regs.Write32(sm.reg(SM0_PINCTRL), cfg.PinCtrl)
}

// Init stops the state machine, applies cfg, empties its FIFOs and points it
// at offset. The state machine is left disabled.
func (sm *StateMachine) Init(offset uint8, cfg SMConfig) {
	sm.SetEnabled(false)
	sm.SetConfig(cfg)
	sm.ClearFIFOs()

	regs := sm.block.regs
	regs.Write32(FDEBUG, (1<<24|1<<16|1<<8|1)<<sm.index)

	sm.Restart()
	sm.ClkDivRestart()
	sm.Exec(EncodeJmp(offset))
}

func (sm *StateMachine) setCtrlBits(pos uint, set bool) {
	b := sm.block
	b.mu.Lock()
	defer b.mu.Unlock()

	v := b.regs.Read32(CTRL)
	if set {
		v |= 1 << (pos + uint(sm.index))
	} else {
		v &^= 1 << (pos + uint(sm.index))
	}
	b.regs.Write32(CTRL, v)
}

// SetEnabled starts or stops the state machine
func (sm *StateMachine) SetEnabled(enabled bool) {
	sm.setCtrlBits(CTRL_SM_ENABLE_POS, enabled)
}

// Enabled reports whether the state machine is running
func (sm *StateMachine) Enabled() bool {
	return sm.block.regs.Read32(CTRL)&(1<<sm.index) != 0
}

// Restart clears the internal state of the state machine
func (sm *StateMachine) Restart() {
	sm.setCtrlBits(CTRL_SM_RESTART_POS, true)
}

// ClkDivRestart resets the clock divider phase
func (sm *StateMachine) ClkDivRestart() {
	sm.setCtrlBits(CTRL_CLKDIV_RESTART_POS, true)
}

// SetClkDiv replaces the clock divider of a running state machine
func (sm *StateMachine) SetClkDiv(div uint32) {
	sm.block.regs.Write32(sm.reg(SM0_CLKDIV), div)
	sm.ClkDivRestart()
}

// ClearFIFOs drops anything queued in either FIFO by toggling the RX join
func (sm *StateMachine) ClearFIFOs() {
	regs := sm.block.regs
	shift := regs.Read32(sm.reg(SM0_SHIFTCTRL))
	regs.Write32(sm.reg(SM0_SHIFTCTRL), shift^SHIFTCTRL_FJOIN_RX)
	regs.Write32(sm.reg(SM0_SHIFTCTRL), shift)
}

// Exec executes instr immediately
func (sm *StateMachine) Exec(instr uint16) {
	sm.block.regs.Write32(sm.reg(SM0_INSTR), uint32(instr))
}

// PC returns the current program counter
func (sm *StateMachine) PC() uint8 {
	return uint8(sm.block.regs.Read32(sm.reg(SM0_ADDR)) & 31)
}

// SetPindirsConsecutive sets the direction of count pins from base by
// executing SET PINDIRS with a temporary pin mapping.
func (sm *StateMachine) SetPindirsConsecutive(base, count uint8, out bool) {
	regs := sm.block.regs
	saved := regs.Read32(sm.reg(SM0_PINCTRL))

	var dir uint8
	if out {
		dir = 0x1f
	}
	for count > 0 {
		n := count
		if n > 5 {
			n = 5
		}
		regs.Write32(sm.reg(SM0_PINCTRL), uint32(n)<<PINCTRL_SET_COUNT_POS|uint32(base&31)<<PINCTRL_SET_BASE_POS)
		sm.Exec(EncodeSet(PinDirs, dir&(1<<n-1)))
		base += n
		count -= n
	}

	regs.Write32(sm.reg(SM0_PINCTRL), saved)
}

// TxFull reports whether the TX FIFO is full
func (sm *StateMachine) TxFull() bool {
	return sm.block.regs.Read32(FSTAT)&(1<<(FSTAT_TXFULL_POS+sm.index)) != 0
}

// RxEmpty reports whether the RX FIFO is empty
func (sm *StateMachine) RxEmpty() bool {
	return sm.block.regs.Read32(FSTAT)&(1<<(FSTAT_RXEMPTY_POS+sm.index)) != 0
}

// Put writes v to the TX FIFO without checking for space
func (sm *StateMachine) Put(v uint32) {
	sm.block.regs.Write32(TXF0+uintptr(sm.index)*4, v)
}

// Get reads one word from the RX FIFO without checking for data
func (sm *StateMachine) Get() uint32 {
	return sm.block.regs.Read32(RXF0 + uintptr(sm.index)*4)
}

// TxFIFOAddr returns the bus address a DMA channel writes to feed the TX FIFO
func (sm *StateMachine) TxFIFOAddr() uint32 {
	return sm.block.bus + TXF0 + uint32(sm.index)*4
}

// RxFIFOAddr returns the bus address a DMA channel reads to drain the RX FIFO
func (sm *StateMachine) RxFIFOAddr() uint32 {
	return sm.block.bus + RXF0 + uint32(sm.index)*4
}

// DreqTx returns the DMA request line paced by TX FIFO space
func (sm *StateMachine) DreqTx() uint8 {
	return uint8(sm.block.index*8) + sm.index
}

// DreqRx returns the DMA request line paced by RX FIFO data
func (sm *StateMachine) DreqRx() uint8 {
	return uint8(sm.block.index*8) + 4 + sm.index
}
