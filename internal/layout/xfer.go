package layout

import (
	"ply/internal/ast"
	"ply/internal/cerr"
	"ply/internal/isa"
)

// Emitter is the minimal instruction sink the transfer primitives
// write to. internal/isa.Program satisfies it; tests can substitute a
// recording stub.
type Emitter interface {
	Emit(insn isa.Insn) (int, error)
	EmitWide(words [2]isa.Insn) (int, error)
}

// EmitXfer moves the value held by from into the storage location
// already assigned to to. It is the sole cross-storage-class data
// mover every higher-level emitter composes from: every other path
// that needs to get a value from one place to another — assignment,
// call argument marshaling, map key construction — ultimately calls
// this.
func EmitXfer(p Emitter, to, from *ast.Node, scratch isa.Reg) error {
	if to.Dyn == nil || to.Dyn.Loc == ast.LocNowhere || to.Dyn.Loc == ast.LocVirtual {
		return cerr.New(cerr.KindDestinationUnknown, to.Kind.String(), "transfer target has no resolved storage location")
	}
	if from.Kind == ast.KindInt {
		return xferLiteralInt(p, to, from.IntVal)
	}
	if from.Kind == ast.KindStr {
		return xferLiteralStr(p, to, from.StrVal)
	}
	if from.Dyn == nil || from.Dyn.Loc == ast.LocNowhere || from.Dyn.Loc == ast.LocVirtual {
		return cerr.New(cerr.KindSourceUnknown, from.Kind.String(), "transfer source has no resolved storage location")
	}

	switch {
	case from.Dyn.Loc == ast.LocReg:
		return xferRegToDyn(p, to, isa.Reg(from.Dyn.Reg))
	case from.Dyn.Loc == ast.LocStack && to.Dyn.Loc == ast.LocStack:
		return xferStackToStack(p, to, from, scratch)
	case from.Dyn.Loc == ast.LocStack:
		return xferStackToDyn(p, to, from, scratch)
	default:
		return cerr.New(cerr.KindUnsupportedTransfer, from.Kind.String(), "source location %s has no transfer path", from.Dyn.Loc)
	}
}

// xferLiteralInt writes an integer constant into to's location. Values
// that fit a signed 32-bit immediate take one MOV_IMM (or one ST_W_IMM
// for a stack destination). Wider values use the two-word LD_IMM64
// pseudo instruction when the destination is a register; a wider value
// bound for a stack destination is rejected with
// KindUnsupportedTransfer.
func xferLiteralInt(p Emitter, to *ast.Node, v int64) error {
	if to.Dyn.Loc == ast.LocReg {
		dst := isa.Reg(to.Dyn.Reg)
		if FitsImmediate32(v) {
			_, err := p.Emit(isa.MOV_IMM(dst, int32(v)))
			return err
		}
		_, err := p.EmitWide(isa.LD_IMM64(dst, v))
		return err
	}
	// LocStack
	if FitsImmediate32(v) {
		_, err := p.Emit(isa.ST_W_IMM(isa.R10, int16(to.Dyn.Addr), int32(v)))
		return err
	}
	return cerr.New(cerr.KindUnsupportedTransfer, to.Kind.String(), "64-bit literal %d requires a register destination", v)
}

// xferLiteralStr decomposes a string constant into ascending ST_W_IMM
// stores, four bytes at a time, little-endian, zero-padding the final
// partial word and the NUL terminator. Strings are never register
// candidates: they do not fit in a single machine word.
func xferLiteralStr(p Emitter, to *ast.Node, s string) error {
	if to.Dyn.Loc != ast.LocStack {
		return cerr.New(cerr.KindUnsupportedTransfer, to.Kind.String(), "string literal requires a stack destination")
	}
	buf := make([]byte, to.Dyn.Size)
	copy(buf, s) // remaining bytes, including the NUL terminator, stay zero

	base := int16(to.Dyn.Addr)
	for i := 0; i < len(buf); i += 4 {
		var word int32
		for j := 0; j < 4 && i+j < len(buf); j++ {
			word |= int32(buf[i+j]) << uint(j*8)
		}
		if _, err := p.Emit(isa.ST_W_IMM(isa.R10, base+int16(i), word)); err != nil {
			return err
		}
	}
	return nil
}

// xferRegToDyn moves a value already resident in src into to's
// location: a register-to-register MOV, or a 64-bit store to the
// stack.
func xferRegToDyn(p Emitter, to *ast.Node, src isa.Reg) error {
	if to.Dyn.Loc == ast.LocReg {
		dst := isa.Reg(to.Dyn.Reg)
		if dst == src {
			return nil
		}
		_, err := p.Emit(isa.MOV(dst, src))
		return err
	}
	_, err := p.Emit(isa.STXDW(isa.R10, int16(to.Dyn.Addr), src))
	return err
}

// xferStackToDyn loads from's stack slot into scratch, then completes
// the transfer as a register-resident value. scratch must not be one
// of the statement's dyn regs if the destination itself needs to
// survive a subsequent helper call.
func xferStackToDyn(p Emitter, to, from *ast.Node, scratch isa.Reg) error {
	if _, err := p.Emit(isa.LDXDW(scratch, int16(from.Dyn.Addr), isa.R10)); err != nil {
		return err
	}
	return xferRegToDyn(p, to, scratch)
}

// xferStackToStack has no direct instruction-level path on this VM: a
// store cannot read its own source from memory, so a stack-to-stack
// move loads into scratch and stores from there. This path is taken
// whenever both sides were spilled to the stack (once the dyn regs are
// exhausted); string values are rejected here.
func xferStackToStack(p Emitter, to, from *ast.Node, scratch isa.Reg) error {
	if from.Dyn.Type == ast.TypeStr || to.Dyn.Type == ast.TypeStr {
		return cerr.New(cerr.KindUnsupportedTransfer, from.Kind.String(), "stack-to-stack transfer of a string value is not supported")
	}
	if _, err := p.Emit(isa.LDXDW(scratch, int16(from.Dyn.Addr), isa.R10)); err != nil {
		return err
	}
	_, err := p.Emit(isa.STXDW(isa.R10, int16(to.Dyn.Addr), scratch))
	return err
}
