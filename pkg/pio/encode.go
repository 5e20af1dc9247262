package pio

// Instruction major opcodes
const (
	instrJmp  = 0x0000
	instrWait = 0x2000
	instrIn   = 0x4000
	instrOut  = 0x6000
	instrPush = 0x8000
	instrPull = 0x8080
	instrMov  = 0xa000
	instrIrq  = 0xc000
	instrSet  = 0xe000
)

// SrcDest is an operand of IN, OUT, SET and MOV
type SrcDest uint8

const (
	Pins    SrcDest = 0
	X       SrcDest = 1
	Y       SrcDest = 2
	Null    SrcDest = 3
	PinDirs SrcDest = 4
	PC      SrcDest = 5
	ISR     SrcDest = 6
	OSR     SrcDest = 7
)

// JmpCond is the condition field of JMP
type JmpCond uint8

const (
	JmpAlways      JmpCond = 0
	JmpXZero       JmpCond = 1
	JmpXDec        JmpCond = 2
	JmpYZero       JmpCond = 3
	JmpYDec        JmpCond = 4
	JmpXNotEqualY  JmpCond = 5
	JmpPin         JmpCond = 6
	JmpOSRNotEmpty JmpCond = 7
)

func encode(major uint16, arg1 uint8, arg2 uint8) uint16 {
	return major | uint16(arg1&7)<<5 | uint16(arg2&31)
}

// EncodeJmp encodes an unconditional JMP to addr
func EncodeJmp(addr uint8) uint16 {
	return encode(instrJmp, uint8(JmpAlways), addr)
}

// EncodeJmpCond encodes a conditional JMP to addr
func EncodeJmpCond(cond JmpCond, addr uint8) uint16 {
	return encode(instrJmp, uint8(cond), addr)
}

// EncodeIn encodes IN src, count. A count of 32 is encoded as 0.
func EncodeIn(src SrcDest, count uint8) uint16 {
	return encode(instrIn, uint8(src), count)
}

// EncodeOut encodes OUT dest, count. A count of 32 is encoded as 0.
func EncodeOut(dest SrcDest, count uint8) uint16 {
	return encode(instrOut, uint8(dest), count)
}

// EncodePull encodes PULL with its ifempty and block flags
func EncodePull(ifEmpty, block bool) uint16 {
	return instrPull | flag(ifEmpty)<<6 | flag(block)<<5
}

// EncodePush encodes PUSH with its iffull and block flags
func EncodePush(ifFull, block bool) uint16 {
	return instrPush | flag(ifFull)<<6 | flag(block)<<5
}

// EncodeSet encodes SET dest, value
func EncodeSet(dest SrcDest, value uint8) uint16 {
	return encode(instrSet, uint8(dest), value)
}

// EncodeMov encodes MOV dest, src
func EncodeMov(dest, src SrcDest) uint16 {
	return encode(instrMov, uint8(dest), uint8(src))
}

// EncodeNop encodes MOV Y, Y
func EncodeNop() uint16 {
	return EncodeMov(Y, Y)
}

// EncodeSideSet returns the side-set field for value in a program using
// bitCount side-set bits. Combine it with an instruction using OR.
func EncodeSideSet(bitCount, value uint8) uint16 {
	return uint16(value) << (13 - bitCount)
}

// EncodeDelay returns the delay field for cycles extra cycles
func EncodeDelay(cycles uint8) uint16 {
	return uint16(cycles) << 8
}

// Decoded is an instruction split into its fields, ignoring side-set and delay
type Decoded struct {
	Major uint16
	Arg1  uint8
	Arg2  uint8
}

// Decode splits instr into opcode and operands
func Decode(instr uint16) Decoded {
	major := instr & 0xe000
	if major == instrPush && instr&0x0080 != 0 {
		major = instrPull
	}
	return Decoded{
		Major: major,
		Arg1:  uint8(instr>>5) & 7,
		Arg2:  uint8(instr) & 31,
	}
}

// IsPull reports whether instr is a PULL
func IsPull(instr uint16) bool {
	return Decode(instr).Major == instrPull
}

// IsOut reports whether instr is OUT to dest, returning its bit count
func IsOut(instr uint16, dest SrcDest) (uint8, bool) {
	d := Decode(instr)
	if d.Major != instrOut || SrcDest(d.Arg1) != dest {
		return 0, false
	}
	if d.Arg2 == 0 {
		return 32, true
	}
	return d.Arg2, true
}

// IsJmp reports whether instr is a JMP
func IsJmp(instr uint16) bool {
	return instr&0xe000 == instrJmp
}

func flag(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}
