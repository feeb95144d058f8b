package layout

import (
	"ply/internal/ast"
)

// DefaultLocAssign implements the generic location-assignment policy:
// a scalar value is placed in one of the dyn regs (r6-r8) while one
// is free and spilled to the stack otherwise; strings and
// record/map-key fields are always placed on the stack.
//
// Providers call this for ordinary expression nodes from their own
// LocAssign hook, overriding only the kinds that need provider-specific
// treatment (builtin calls, in particular).
func DefaultLocAssign(n *ast.Node, regs *uint16, frame *StackFrame) error {
	switch n.Kind {
	case ast.KindRec:
		assignContiguousFields(n.Children, frame)
		return nil // already LocVirtual from annotateNodeSizeType
	case ast.KindMap:
		if len(n.Children) == 0 {
			// scalar map, no explicit key: reserve a fixed zero key so
			// every reference resolves to the same single element.
			n.Dyn.KeyAddr = frame.Alloc(8)
		} else {
			assignContiguousFields(n.Children, frame)
			n.Dyn.KeyAddr = n.Children[0].Dyn.Addr
		}
		assignMapValue(n, regs, frame)
		return nil
	case ast.KindReturn, ast.KindScript, ast.KindProbe:
		return nil // virtual, no runtime value of their own
	case ast.KindAssign:
		if n.AssignOp == ast.AssignMov || n.AssignOp == ast.AssignDelete {
			return nil // virtual, already set in the size/type pass
		}
		return assignScalar(n, regs, frame)
	case ast.KindStr:
		n.Dyn.Loc = ast.LocStack
		n.Dyn.Addr = frame.Alloc(n.Dyn.Size)
		return nil
	default:
		return assignScalar(n, regs, frame)
	}
}

// assignScalar places an 8-byte-wide value (int, binop/not result,
// builtin call result, map value) into a register if one is free,
// otherwise spills it to the stack.
//
// A sibling visited later in the same statement (the next argument
// to a printf, the next statement in a method's aggregation, ...) may
// itself lower to a helper call, and a helper call clobbers r0-r5
// unconditionally, regardless of what the allocator's own bookkeeping
// says is "in use". The only registers that can safely hold a value
// across a later call are r6-r8, so a register-resident scalar is
// always drawn from there first; once those are exhausted the stack
// is the only location left to guarantee against clobbering.
func assignScalar(n *ast.Node, regs *uint16, frame *StackFrame) error {
	if reg, ok := AcquireDynReg(regs); ok {
		n.Dyn.Loc = ast.LocReg
		n.Dyn.Reg = int(reg)
		return nil
	}
	n.Dyn.Loc = ast.LocStack
	n.Dyn.Addr = frame.Alloc(n.Dyn.Size)
	return nil
}

// assignMapValue always reserves a stack slot for a map's looked-up
// value — the helper that populates it can only write to memory — and
// additionally places it in a register when one is free. Addr then
// doubles as scratch transit memory that the emitter reads into Reg
// with one extra load, matching the helper-call data path.
//
// The register, like assignScalar's, is only ever drawn from the
// dyn-reg range (r6-r8): a map value already loaded into r0-r5 would
// be destroyed by the very next sibling builtin call in the same
// statement, and the map lookup that produced this value is itself
// already behind a helper call, so its result needs the same
// survives-a-call guarantee any other scalar does.
func assignMapValue(n *ast.Node, regs *uint16, frame *StackFrame) {
	addr := frame.Alloc(n.Dyn.Size)
	if reg, ok := AcquireDynReg(regs); ok {
		n.Dyn.Loc = ast.LocReg
		n.Dyn.Reg = int(reg)
		n.Dyn.Addr = addr
		return
	}
	n.Dyn.Loc = ast.LocStack
	n.Dyn.Addr = addr
}

// assignContiguousFields lays fields out as one contiguous stack
// region: the region's base address (the most negative offset, i.e.
// the one allocated first) becomes each field's starting point, and
// fields occupy ascending offsets from there, so the record's own
// addr always points at its first field.
func assignContiguousFields(fields []*ast.Node, frame *StackFrame) {
	total := 0
	for _, f := range fields {
		total += ast.AlignUp(f.Dyn.Size)
	}
	if total == 0 {
		return
	}
	base := frame.Alloc(total)
	offset := base
	for _, f := range fields {
		f.Dyn.Loc = ast.LocStack
		f.Dyn.Addr = offset
		offset += ast.AlignUp(f.Dyn.Size)
	}
}

// ReserveDynReg allocates one of the provider-reserved dyn regs
// (r6..r8) and marks n resident there — used for values that a
// provider needs to keep alive across a helper call within a probe.
func ReserveDynReg(n *ast.Node, used *uint16) bool {
	reg, ok := AcquireDynReg(used)
	if !ok {
		return false
	}
	n.Dyn.Loc = ast.LocReg
	n.Dyn.Reg = int(reg)
	return true
}

// FitsImmediate32 reports whether v fits in a signed 32-bit immediate,
// the threshold used to decide between an immediate operand and a
// materialized register for binop right-hand operands.
func FitsImmediate32(v int64) bool {
	return v >= -(1<<31) && v <= (1<<31)-1
}
