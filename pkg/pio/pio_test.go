package pio

import (
	"errors"
	"testing"

	"periph.io/x/conn/v3/physic"
)

type fakeRegs map[uintptr]uint32

func (f fakeRegs) Read32(off uintptr) uint32     { return f[off] }
func (f fakeRegs) Write32(off uintptr, v uint32) { f[off] = v }

type fakeMux map[uint8]uint8

func (m fakeMux) SetFunction(pin, fn uint8) error {
	m[pin] = fn
	return nil
}

func instrAt(regs fakeRegs, addr int) uint16 {
	return uint16(regs[INSTR_MEM0+uintptr(addr)*4])
}

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		got  uint16
		want uint16
	}{
		{"pull block", EncodePull(false, true), 0x80a0},
		{"pull noblock", EncodePull(false, false), 0x8080},
		{"push block", EncodePush(false, true), 0x8020},
		{"out null 10", EncodeOut(Null, 10), 0x606a},
		{"out null 32", EncodeOut(Null, 32), 0x6060},
		{"out pins 5", EncodeOut(Pins, 5), 0x6005},
		{"in osr 1", EncodeIn(OSR, 1), 0x40e1},
		{"in null 32", EncodeIn(Null, 32), 0x4060},
		{"jmp 7", EncodeJmp(7), 0x0007},
		{"jmp x-- 2", EncodeJmpCond(JmpXDec, 2), 0x0042},
		{"set pindirs 31", EncodeSet(PinDirs, 31), 0xe09f},
		{"nop", EncodeNop(), 0xa042},
		{"out pins side 2 delay 1", EncodeOut(Pins, 5) | EncodeSideSet(2, 2) | EncodeDelay(1), 0x7105},
		{"in osr side 1", EncodeIn(OSR, 1) | EncodeSideSet(1, 1), 0x50e1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got 0x%04x, want 0x%04x", tt.got, tt.want)
			}
		})
	}
}

func TestDataShiftInstr(t *testing.T) {
	if got := DataShiftInstr(0); got != 0x80a0 {
		t.Errorf("DataShiftInstr(0) = 0x%04x, want pull block", got)
	}
	for plane := uint8(1); plane < 10; plane++ {
		got := DataShiftInstr(plane)
		n, ok := IsOut(got, Null)
		if !ok || n != plane {
			t.Errorf("DataShiftInstr(%d) = 0x%04x, want out null, %d", plane, got, plane)
		}
	}
}

func TestDecode(t *testing.T) {
	if !IsPull(HUB75DataProgram.Instructions[HUB75DataShift0]) {
		t.Error("shift0 slot is not a pull")
	}
	if !IsPull(HUB75DataProgram.Instructions[HUB75DataShift1]) {
		t.Error("shift1 slot is not a pull")
	}
	if IsPull(EncodePush(false, true)) {
		t.Error("push decoded as pull")
	}
	if n, ok := IsOut(0x706a, Null); !ok || n != 10 {
		t.Errorf("IsOut(0x706a) = %d, %v, want 10, true", n, ok)
	}
	if _, ok := IsOut(0x7105, Null); ok {
		t.Error("out pins decoded as out null")
	}
}

func TestAddProgram(t *testing.T) {
	regs := fakeRegs{}
	b := NewBlock(0, regs, 0x50200000, nil)

	dataOff, err := b.AddProgram(&HUB75DataProgram)
	if err != nil {
		t.Fatalf("AddProgram(data) error = %v", err)
	}
	if dataOff != 16 {
		t.Errorf("data offset = %d, want 16", dataOff)
	}

	rowOff, err := b.AddProgram(&HUB75RowProgram)
	if err != nil {
		t.Fatalf("AddProgram(row) error = %v", err)
	}
	if rowOff != 12 {
		t.Errorf("row offset = %d, want 12", rowOff)
	}

	// the jmp x-- is relocated, everything else is copied
	if got, want := instrAt(regs, int(rowOff)+2), uint16(0x0042)+uint16(rowOff); got != want {
		t.Errorf("relocated jmp = 0x%04x, want 0x%04x", got, want)
	}
	if got := instrAt(regs, int(rowOff)); got != 0x7105 {
		t.Errorf("row instr 0 = 0x%04x, want 0x7105", got)
	}
	if got := instrAt(regs, int(dataOff)+15); got != 0xb016 {
		t.Errorf("data instr 15 = 0x%04x, want 0xb016", got)
	}

	big := Program{Name: "big", Instructions: make([]uint16, 13), Origin: -1}
	if _, err := b.AddProgram(&big); !errors.Is(err, ErrNoProgramSpace) {
		t.Errorf("AddProgram(big) error = %v, want ErrNoProgramSpace", err)
	}

	b.RemoveProgram(&HUB75DataProgram, dataOff)
	if !b.CanAddProgram(&big) {
		t.Error("CanAddProgram() false after RemoveProgram")
	}
}

func TestAddProgramOrigin(t *testing.T) {
	b := NewBlock(0, fakeRegs{}, 0, nil)
	p := Program{Name: "fixed", Instructions: []uint16{0xa042, 0x0000}, Origin: 4}

	off, err := b.AddProgram(&p)
	if err != nil || off != 4 {
		t.Fatalf("AddProgram() = %d, %v, want 4, nil", off, err)
	}
	if _, err := b.AddProgram(&p); !errors.Is(err, ErrNoProgramSpace) {
		t.Errorf("second AddProgram() at same origin error = %v, want ErrNoProgramSpace", err)
	}
}

func TestClaimStateMachine(t *testing.T) {
	b := NewBlock(1, fakeRegs{}, 0x50300000, nil)

	var sms []*StateMachine
	for i := 0; i < NumStateMachines; i++ {
		sm, err := b.ClaimStateMachine()
		if err != nil {
			t.Fatalf("ClaimStateMachine() error = %v", err)
		}
		sms = append(sms, sm)
	}
	if _, err := b.ClaimStateMachine(); !errors.Is(err, ErrNoStateMachine) {
		t.Errorf("ClaimStateMachine() error = %v, want ErrNoStateMachine", err)
	}

	sm := sms[2]
	if got := sm.DreqTx(); got != 10 {
		t.Errorf("DreqTx() = %d, want 10", got)
	}
	if got := sm.DreqRx(); got != 14 {
		t.Errorf("DreqRx() = %d, want 14", got)
	}
	if got := sm.TxFIFOAddr(); got != 0x50300018 {
		t.Errorf("TxFIFOAddr() = 0x%x, want 0x50300018", got)
	}
	if got := sm.RxFIFOAddr(); got != 0x50300028 {
		t.Errorf("RxFIFOAddr() = 0x%x, want 0x50300028", got)
	}

	sm.Unclaim()
	again, err := b.ClaimStateMachine()
	if err != nil || again.Index() != 2 {
		t.Errorf("ClaimStateMachine() after Unclaim = %v, %v, want index 2", again, err)
	}
}

func TestClaimAndAddProgram(t *testing.T) {
	full := NewBlock(0, fakeRegs{}, 0x50200000, nil)
	for i := 0; i < NumStateMachines; i++ {
		if _, err := full.ClaimStateMachine(); err != nil {
			t.Fatal(err)
		}
	}
	free := NewBlock(1, fakeRegs{}, 0x50300000, nil)

	sm, off, err := ClaimAndAddProgram([]*Block{full, free}, &HUB75RowProgram)
	if err != nil {
		t.Fatalf("ClaimAndAddProgram() error = %v", err)
	}
	if sm.Block() != free {
		t.Error("program placed in block without a free state machine")
	}
	if off != 28 {
		t.Errorf("offset = %d, want 28", off)
	}

	if _, _, err := ClaimAndAddProgram([]*Block{full}, &HUB75RowProgram); !errors.Is(err, ErrNoStateMachine) {
		t.Errorf("ClaimAndAddProgram() on full block error = %v, want ErrNoStateMachine", err)
	}
}

func TestInitHUB75Data(t *testing.T) {
	regs := fakeRegs{}
	mux := fakeMux{}
	b := NewBlock(1, regs, 0x50300000, mux)
	sm, err := b.ClaimStateMachine()
	if err != nil {
		t.Fatal(err)
	}
	off, err := b.AddProgram(&HUB75DataProgram)
	if err != nil {
		t.Fatal(err)
	}

	if err := InitHUB75Data(sm, off, 0, 11); err != nil {
		t.Fatalf("InitHUB75Data() error = %v", err)
	}

	pinctrl := regs[SM0_PINCTRL]
	if base := pinctrl & 0x1f; base != 0 {
		t.Errorf("OUT_BASE = %d, want 0", base)
	}
	if count := pinctrl >> PINCTRL_OUT_COUNT_POS & 0x3f; count != 6 {
		t.Errorf("OUT_COUNT = %d, want 6", count)
	}
	if side := pinctrl >> PINCTRL_SIDESET_BASE_POS & 0x1f; side != 11 {
		t.Errorf("SIDESET_BASE = %d, want 11", side)
	}
	if n := pinctrl >> PINCTRL_SIDESET_COUNT_POS; n != 1 {
		t.Errorf("SIDESET_COUNT = %d, want 1", n)
	}

	shift := regs[SM0_SHIFTCTRL]
	want := uint32(SHIFTCTRL_FJOIN_TX | SHIFTCTRL_OUT_SHIFTDIR | SHIFTCTRL_AUTOPULL)
	if shift != want {
		t.Errorf("SHIFTCTRL = 0x%08x, want 0x%08x", shift, want)
	}

	c := SMConfig{ExecCtrl: regs[SM0_EXECCTRL]}
	if target, wrap := c.Wrap(); target != off || wrap != off+15 {
		t.Errorf("wrap = %d..%d, want %d..%d", target, wrap, off, off+15)
	}

	if regs[CTRL]&1 == 0 {
		t.Error("state machine not enabled")
	}
	if got := uint16(regs[SM0_INSTR]); got != EncodeJmp(off) {
		t.Errorf("last executed = 0x%04x, want jmp %d", got, off)
	}

	for _, pin := range []uint8{0, 1, 2, 3, 4, 5, 11} {
		if mux[pin] != FuncPIO0+1 {
			t.Errorf("GPIO%d function = %d, want %d", pin, mux[pin], FuncPIO0+1)
		}
	}
}

func TestSetClockFrequency(t *testing.T) {
	tests := []struct {
		name    string
		sys     physic.Frequency
		target  physic.Frequency
		want    uint32
		wantErr bool
	}{
		{"full speed", 125 * physic.MegaHertz, 125 * physic.MegaHertz, 1 << 16, false},
		{"half speed", 125 * physic.MegaHertz, 62500 * physic.KiloHertz, 2 << 16, false},
		{"fractional", 125 * physic.MegaHertz, 50 * physic.MegaHertz, 2<<16 | 0x80<<8, false},
		{"faster than system", 125 * physic.MegaHertz, 200 * physic.MegaHertz, 0, true},
		{"zero", 125 * physic.MegaHertz, 0, 0, true},
		{"too slow", 125 * physic.MegaHertz, physic.Hertz, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultSMConfig()
			err := c.SetClockFrequency(tt.sys, tt.target)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SetClockFrequency() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && c.ClkDiv != tt.want {
				t.Errorf("ClkDiv = 0x%08x, want 0x%08x", c.ClkDiv, tt.want)
			}
		})
	}
}
