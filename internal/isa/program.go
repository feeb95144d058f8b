package isa

import (
	"errors"
	"fmt"
	"strings"
)

// MaxProgramInsns bounds the instruction buffer the same way the
// target VM's verifier does; overflow is a fatal emit error.
const MaxProgramInsns = 4096

// ErrProgramTooLarge is returned by Emit when appending would exceed
// MaxProgramInsns.
var ErrProgramTooLarge = errors.New("isa: program-too-large")

// Program is an append-only instruction stream with a current
// instruction-pointer cursor. Capacity is bounded by the VM's maximum
// program length. A Program is owned by the probe it is compiled for
// and is produced by compilation, consumed by the attachment layer,
// and never touched again by the back end.
type Program struct {
	Insns []Insn

	Debug bool
	dump  strings.Builder
}

// NewProgram returns an empty program buffer, optionally in debug mode
// (each Emit also appends a disassembled line to the debug stream).
func NewProgram(debug bool) *Program {
	return &Program{Debug: debug}
}

// Len returns the current instruction pointer (equivalently, the
// number of instructions emitted so far).
func (p *Program) Len() int { return len(p.Insns) }

// Emit appends insn to the stream, returning its index (the
// instruction pointer it was written at). In debug mode it also
// disassembles the instruction to the debug stream with that index.
func (p *Program) Emit(insn Insn) (int, error) {
	if len(p.Insns) >= MaxProgramInsns {
		return 0, ErrProgramTooLarge
	}
	ip := len(p.Insns)
	p.Insns = append(p.Insns, insn)
	if p.Debug {
		fmt.Fprintf(&p.dump, "%d:\t%s\n", ip, insn.String())
	}
	return ip, nil
}

// EmitWide appends a two-word pseudo instruction (LD_MAPFD or a
// 64-bit immediate split), returning the index of its first word.
func (p *Program) EmitWide(words [2]Insn) (int, error) {
	if len(p.Insns)+1 >= MaxProgramInsns {
		return 0, ErrProgramTooLarge
	}
	ip, err := p.Emit(words[0])
	if err != nil {
		return 0, err
	}
	if _, err := p.Emit(words[1]); err != nil {
		return 0, err
	}
	return ip, nil
}

// PatchOffset rewrites the relative jump offset of the instruction at
// ip. Used by emitters that must back-patch a forward branch once the
// target instruction's address is known.
func (p *Program) PatchOffset(ip int, off int16) {
	p.Insns[ip].Off = off
}

// Dump returns the accumulated disassembly (empty unless Debug was
// set at construction time).
func (p *Program) Dump() string {
	return p.dump.String()
}

// EndsInExit reports whether the last emitted instruction is an exit —
// a required property of every compiled probe.
func (p *Program) EndsInExit() bool {
	if len(p.Insns) == 0 {
		return false
	}
	last := p.Insns[len(p.Insns)-1]
	return last.OpCode&0x07 == classJump64 && JmpOp(last.OpCode&0xf0) == JmpExit
}

// Bytes encodes every instruction into the flat wire stream the
// kernel's BPF_PROG_LOAD command expects: 8 bytes per instruction,
// concatenated in program order with no header.
func (p *Program) Bytes() []byte {
	buf := make([]byte, len(p.Insns)*8)
	for i, insn := range p.Insns {
		insn.Encode(buf[i*8 : i*8+8])
	}
	return buf
}
