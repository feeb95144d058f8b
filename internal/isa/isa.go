// Package isa implements the instruction encoder and program buffer
// for the kernel's in-process bytecode virtual machine. It builds
// individual 8-byte instruction words from symbolic operands and
// validates only operand widths — verifier rules are the kernel's
// problem, not this package's.
//
// The opcode bit layout (3-bit instruction class, ALU/jump operation
// in the upper nibble, a single source-is-register bit) matches the
// classic eBPF wire format used by every kernel-facing BPF assembler.
package isa

import (
	"encoding/binary"
	"fmt"
)

// Reg is a VM general-purpose register. R0..R9 are allocatable; R10 is
// the read-only frame pointer and must never be a write destination.
type Reg uint8

const (
	R0 Reg = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	R8
	R9
	R10 // frame pointer — read-only, never an ALU/move destination
)

// NumGPRegs is the number of allocatable general-purpose registers.
const NumGPRegs = 10

// instruction class (low 3 bits of the opcode byte)
const (
	classLoadImm  uint8 = 0x0
	classLoadReg  uint8 = 0x1
	classStoreImm uint8 = 0x2
	classStoreReg uint8 = 0x3
	classALU32    uint8 = 0x4
	classJump64   uint8 = 0x5
	classALU64    uint8 = 0x7
)

// memory mode / size (upper bits of load/store opcodes)
const (
	modeMem uint8 = 0x60 // 0b011_00_000

	sizeW  uint8 = 0x00 // 32-bit
	sizeH  uint8 = 0x08 // 16-bit
	sizeB  uint8 = 0x10 // 8-bit
	sizeDW uint8 = 0x18 // 64-bit
)

// source operand: immediate or register (bit 0x08 of ALU/jump opcodes)
const (
	srcImm uint8 = 0x00
	srcReg uint8 = 0x08
)

// AluOp enumerates the target VM's ALU operations.
type AluOp uint8

const (
	AluAdd AluOp = 0x00
	AluSub AluOp = 0x10
	AluMul AluOp = 0x20
	AluDiv AluOp = 0x30
	AluOr  AluOp = 0x40
	AluAnd AluOp = 0x50
	AluLsh AluOp = 0x60
	AluRsh AluOp = 0x70
	AluNeg AluOp = 0x80
	AluMod AluOp = 0x90
	AluXor AluOp = 0xa0
	AluMov AluOp = 0xb0
)

func (op AluOp) String() string {
	names := map[AluOp]string{
		AluAdd: "add", AluSub: "sub", AluMul: "mul", AluDiv: "div",
		AluOr: "or", AluAnd: "and", AluLsh: "lsh", AluRsh: "rsh",
		AluNeg: "neg", AluMod: "mod", AluXor: "xor", AluMov: "mov",
	}
	if s, ok := names[op]; ok {
		return s
	}
	return "?alu?"
}

// JmpOp enumerates the target VM's jump/call/exit operations.
type JmpOp uint8

const (
	JmpJa   JmpOp = 0x00
	JmpEq   JmpOp = 0x10
	JmpGt   JmpOp = 0x20
	JmpGe   JmpOp = 0x30
	JmpNe   JmpOp = 0x50
	JmpSgt  JmpOp = 0x60
	JmpSge  JmpOp = 0x70
	JmpCall JmpOp = 0x80
	JmpExit JmpOp = 0x90
)

func (op JmpOp) String() string {
	names := map[JmpOp]string{
		JmpJa: "ja", JmpEq: "jeq", JmpGt: "jgt", JmpGe: "jge", JmpNe: "jne",
		JmpSgt: "jsgt", JmpSge: "jsge", JmpCall: "call", JmpExit: "exit",
	}
	if s, ok := names[op]; ok {
		return s
	}
	return "?jmp?"
}

// BinOpToJmp maps a comparison onto a jump opcode this ISA actually
// has, plus an invert flag for the two operators ("<", "<=") that have
// no direct opcode. The target only exposes greater-than/greater-or-
// equal variants (signed and unsigned), so "<" is lowered as the
// logical negation of ">=" (JmpSge with the 0/1 result swapped) and
// "<=" as the negation of ">" (JmpSgt, swapped) — the emitter is
// responsible for actually swapping which branch produces which
// result when invert is true.
func BinOpToJmp(op string) (JmpOp, bool) {
	switch op {
	case "==":
		return JmpEq, false
	case "!=":
		return JmpNe, false
	case "<":
		return JmpSge, true
	case "<=":
		return JmpSgt, true
	case ">":
		return JmpSgt, false
	case ">=":
		return JmpSge, false
	default:
		return JmpJa, false
	}
}

// Insn is one 8-byte VM instruction word: opcode, dst/src register
// nibble, a 16-bit signed offset, and a 32-bit immediate/argument.
type Insn struct {
	OpCode uint8
	Dst    Reg
	Src    Reg
	Off    int16
	Imm    int32
}

// Encode writes n's 8-byte wire representation into buf, which must be
// at least 8 bytes long.
func (n Insn) Encode(buf []byte) {
	buf[0] = n.OpCode
	buf[1] = uint8(n.Dst) | uint8(n.Src)<<4
	binary.LittleEndian.PutUint16(buf[2:4], uint16(n.Off))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(n.Imm))
}

// MOV emits a 64-bit register-to-register move: dst = src.
func MOV(dst, src Reg) Insn {
	return Insn{OpCode: classALU64 | srcReg | uint8(AluMov), Dst: dst, Src: src}
}

// MOV_IMM emits dst = imm (sign-extended to 64 bits), for values that
// fit in a signed 32-bit immediate.
func MOV_IMM(dst Reg, imm int32) Insn {
	return Insn{OpCode: classALU64 | srcImm | uint8(AluMov), Dst: dst, Imm: imm}
}

// ALU emits dst = dst <op> src.
func ALU(op AluOp, dst, src Reg) Insn {
	return Insn{OpCode: classALU64 | srcReg | uint8(op), Dst: dst, Src: src}
}

// ALU_IMM emits dst = dst <op> imm.
func ALU_IMM(op AluOp, dst Reg, imm int32) Insn {
	return Insn{OpCode: classALU64 | srcImm | uint8(op), Dst: dst, Imm: imm}
}

// JMP emits a register-operand conditional (or unconditional, for
// JmpJa/JmpCall/JmpExit) jump. off is measured in instructions from
// the instruction following this one.
func JMP(op JmpOp, dst, src Reg, off int16) Insn {
	return Insn{OpCode: classJump64 | srcReg | uint8(op), Dst: dst, Src: src, Off: off}
}

// JMP_IMM emits an immediate-operand conditional jump, or (with
// op==JmpJa) an unconditional one, or (op==JmpCall) a helper call
// where imm is the helper id, or (op==JmpExit) a program exit.
func JMP_IMM(op JmpOp, dst Reg, imm int32, off int16) Insn {
	return Insn{OpCode: classJump64 | srcImm | uint8(op), Dst: dst, Imm: imm, Off: off}
}

// CALL invokes a kernel-side helper by numeric id; helperID values are
// fixed by the target kernel's helper ABI table.
func CALL(helperID int32) Insn {
	return JMP_IMM(JmpCall, R0, helperID, 0)
}

// EXIT terminates the program; the return value is whatever is
// currently in R0.
func EXIT() Insn {
	return JMP_IMM(JmpExit, R0, 0, 0)
}

func stxOp(size uint8) uint8 { return classStoreReg | modeMem | size }
func ldxOp(size uint8) uint8 { return classLoadReg | modeMem | size }
func stOp(size uint8) uint8  { return classStoreImm | modeMem | size }

// STXB/STXH/STXW/STXDW store src to [base+off] at the given width.
func STXB(base Reg, off int16, src Reg) Insn  { return Insn{OpCode: stxOp(sizeB), Dst: base, Src: src, Off: off} }
func STXH(base Reg, off int16, src Reg) Insn  { return Insn{OpCode: stxOp(sizeH), Dst: base, Src: src, Off: off} }
func STXW(base Reg, off int16, src Reg) Insn  { return Insn{OpCode: stxOp(sizeW), Dst: base, Src: src, Off: off} }
func STXDW(base Reg, off int16, src Reg) Insn { return Insn{OpCode: stxOp(sizeDW), Dst: base, Src: src, Off: off} }

// LDXB/LDXH/LDXW/LDXDW load [base+off] of the given width into dst,
// zero-extended for widths narrower than 64 bits.
func LDXB(dst Reg, off int16, base Reg) Insn  { return Insn{OpCode: ldxOp(sizeB), Dst: dst, Src: base, Off: off} }
func LDXH(dst Reg, off int16, base Reg) Insn  { return Insn{OpCode: ldxOp(sizeH), Dst: dst, Src: base, Off: off} }
func LDXW(dst Reg, off int16, base Reg) Insn  { return Insn{OpCode: ldxOp(sizeW), Dst: dst, Src: base, Off: off} }
func LDXDW(dst Reg, off int16, base Reg) Insn { return Insn{OpCode: ldxOp(sizeDW), Dst: dst, Src: base, Off: off} }

// ST_W_IMM stores a 32-bit immediate to [base+off].
func ST_W_IMM(base Reg, off int16, imm int32) Insn {
	return Insn{OpCode: stOp(sizeW), Dst: base, Off: off, Imm: imm}
}

// LD_MAPFD materializes a map file descriptor in dst. This is a
// two-word pseudo instruction: the first word carries the low 32 bits
// of fd in Imm and a pseudo "map fd" source marker, the second carries
// the (always zero, for a 32-bit fd) high half.
func LD_MAPFD(dst Reg, fd uint32) [2]Insn {
	const pseudoMapFD Reg = 1
	first := Insn{OpCode: classLoadImm | modeMem | sizeDW, Dst: dst, Src: pseudoMapFD, Imm: int32(fd)}
	second := Insn{}
	return [2]Insn{first, second}
}

// LD_IMM64 materializes an arbitrary 64-bit constant in dst as a
// two-word pseudo instruction: the first word's Imm carries the low
// 32 bits, the second word's Imm carries the high 32 bits. Unlike an
// ALU-based shift/or synthesis, neither half is sign-extended — the
// two raw 32-bit patterns are concatenated directly — so this is the
// only correct path for constants that don't fit a signed 32-bit
// immediate.
func LD_IMM64(dst Reg, imm int64) [2]Insn {
	first := Insn{OpCode: classLoadImm | modeMem | sizeDW, Dst: dst, Imm: int32(uint32(imm))}
	second := Insn{Imm: int32(uint32(imm >> 32))}
	return [2]Insn{first, second}
}

// String renders n in disassembly form: mnemonic and operands, with
// memory operands as [rN ± 0xOFF].
func (n Insn) String() string {
	class := n.OpCode & 0x07
	switch class {
	case classALU64, classALU32:
		op := AluOp(n.OpCode & 0xf0)
		if n.OpCode&srcReg != 0 {
			return fmt.Sprintf("%s\tr%d, r%d", op, n.Dst, n.Src)
		}
		return fmt.Sprintf("%s\tr%d, %#x", op, n.Dst, uint32(n.Imm))
	case classJump64:
		op := JmpOp(n.OpCode & 0xf0)
		switch op {
		case JmpExit:
			return "exit"
		case JmpCall:
			if name, ok := HelperName(n.Imm); ok {
				return fmt.Sprintf("call\t%s", name)
			}
			return fmt.Sprintf("call\t#%d", n.Imm)
		case JmpJa:
			return fmt.Sprintf("ja\t%+d", n.Off)
		default:
			if n.OpCode&srcReg != 0 {
				return fmt.Sprintf("%s\tr%d, r%d, %+d", op, n.Dst, n.Src, n.Off)
			}
			return fmt.Sprintf("%s\tr%d, %#x, %+d", op, n.Dst, uint32(n.Imm), n.Off)
		}
	case classLoadReg:
		return fmt.Sprintf("ldx%s\tr%d, %s", sizeSuffix(n.OpCode), n.Dst, memOperand(n.Src, n.Off))
	case classStoreReg:
		return fmt.Sprintf("stx%s\t%s, r%d", sizeSuffix(n.OpCode), memOperand(n.Dst, n.Off), n.Src)
	case classStoreImm:
		return fmt.Sprintf("st%s\t%s, %#x", sizeSuffix(n.OpCode), memOperand(n.Dst, n.Off), uint32(n.Imm))
	case classLoadImm:
		return fmt.Sprintf("lddw\tr%d, map-fd(%d)", n.Dst, n.Imm)
	default:
		return fmt.Sprintf("?op(%#02x)?", n.OpCode)
	}
}

func sizeSuffix(opcode uint8) string {
	switch opcode & 0x18 {
	case sizeB:
		return "b"
	case sizeH:
		return "h"
	case sizeDW:
		return "dw"
	default:
		return "w"
	}
}

func memOperand(base Reg, off int16) string {
	if off < 0 {
		return fmt.Sprintf("[r%d - %#x]", base, -off)
	}
	return fmt.Sprintf("[r%d + %#x]", base, off)
}
