package provider

import (
	"ply/internal/ast"
	"ply/internal/isa"
	"ply/internal/layout"
)

// emitLog2Raw computes a log2 bucket of src into dst via a binary
// search, halving the remaining bit range each step: floor(log2(src))+1
// for a positive src, 0 for zero and -1 for a negative src. Negative
// and zero inputs get their own short-circuit preamble.
//
// The jump offsets below encode the exact branch structure of that
// binary search, one instruction word per step — valid as written
// because MOV_IMM/ALU_IMM/JMP_IMM/JMP each correspond to exactly one
// instruction word in this encoder.
func emitLog2Raw(p *isa.Program, dst, src isa.Reg) error {
	cmp := isa.R5

	if _, err := p.Emit(isa.MOV_IMM(dst, 0)); err != nil {
		return err
	}

	// negative?
	if _, err := p.Emit(isa.JMP_IMM(isa.JmpSge, src, 0, 2)); err != nil {
		return err
	}
	if _, err := p.Emit(isa.ALU_IMM(isa.AluSub, dst, 1)); err != nil {
		return err
	}
	if _, err := p.Emit(isa.JMP_IMM(isa.JmpJa, 0, 0, 8+5*4)); err != nil {
		return err
	}

	// zero?
	if _, err := p.Emit(isa.JMP_IMM(isa.JmpEq, src, 0, 7+5*4)); err != nil {
		return err
	}

	if _, err := p.Emit(isa.ALU_IMM(isa.AluAdd, dst, 1)); err != nil {
		return err
	}

	if _, err := p.Emit(isa.MOV_IMM(cmp, 1)); err != nil {
		return err
	}
	if _, err := p.Emit(isa.ALU_IMM(isa.AluLsh, cmp, 32)); err != nil {
		return err
	}

	if _, err := p.Emit(isa.JMP(isa.JmpSge, src, cmp, 1)); err != nil {
		return err
	}
	if _, err := p.Emit(isa.JMP_IMM(isa.JmpJa, 0, 0, 2)); err != nil {
		return err
	}
	if _, err := p.Emit(isa.ALU_IMM(isa.AluAdd, dst, 32)); err != nil {
		return err
	}
	if _, err := p.Emit(isa.ALU_IMM(isa.AluRsh, src, 32)); err != nil {
		return err
	}

	for _, bit := range []int32{16, 8, 4, 2, 1} {
		if err := emitLog2Cmp(p, dst, src, bit); err != nil {
			return err
		}
	}
	return nil
}

func emitLog2Cmp(p *isa.Program, dst, src isa.Reg, bit int32) error {
	if _, err := p.Emit(isa.JMP_IMM(isa.JmpSge, src, int32(1)<<uint(bit), 1)); err != nil {
		return err
	}
	if _, err := p.Emit(isa.JMP_IMM(isa.JmpJa, 0, 0, 2)); err != nil {
		return err
	}
	if _, err := p.Emit(isa.ALU_IMM(isa.AluAdd, dst, bit)); err != nil {
		return err
	}
	_, err := p.Emit(isa.ALU_IMM(isa.AluRsh, src, bit))
	return err
}

// compileLog2Call lowers a bare log2(x) call: materialize the
// argument into a register distinct from the result register (the
// search overwrites src in place), run the bisection, then transfer
// the bucket into the call's own declared location.
func compileLog2Call(pv *Provider, p *isa.Program, n *ast.Node) error {
	arg := n.Children[0]

	srcReg := isa.R1
	if arg.Dyn.Loc == ast.LocReg {
		srcReg = isa.Reg(arg.Dyn.Reg)
	}
	if arg.Kind == ast.KindInt || arg.Dyn.Loc != ast.LocReg {
		if err := layout.EmitXfer(p, regAt(srcReg), arg, scratchReg); err != nil {
			return err
		}
	}

	dstReg := isa.R0
	if n.Dyn.Loc == ast.LocReg {
		dstReg = isa.Reg(n.Dyn.Reg)
	}
	if dstReg == srcReg {
		dstReg = isa.R2
	}

	if err := emitLog2Raw(p, dstReg, srcReg); err != nil {
		return err
	}
	return layout.EmitXfer(p, n, regAt(dstReg), scratchReg)
}

// compileCountMethod lowers @map.count()'s nested call: increment the
// map's already-loaded value by one, writing the result back into the
// map node's own dyn slot — emitMethod (internal/emit/assign.go) does
// the final map_update_elem once this returns.
//
// The generic method-call emitter performs no ALU work of its own —
// just the trailing map_update_elem — so the aggregation itself is
// this builtin's job: it writes into the map's stack-resident value
// slot directly, and the trailing map_update_elem picks up what was
// written there.
func compileCountMethod(pv *Provider, p *isa.Program, call *ast.Node) error {
	mapNode := methodReceiver(call)
	return bumpMapValue(p, mapNode, 1)
}

// compileQuantizeMethod lowers @map.quantize(x): the map's value
// becomes the log2 bucket of the sampled argument. A full histogram
// (one counter per bucket) would need a map keyed by bucket, which is
// out of scope here (see DESIGN.md); this implementation tracks the
// single latest bucket a sample fell into, which is what a single
// scalar map cell can represent.
func compileQuantizeMethod(pv *Provider, p *isa.Program, call *ast.Node) error {
	mapNode := methodReceiver(call)
	arg := call.Children[0]

	srcReg := isa.R1
	if arg.Dyn.Loc == ast.LocReg {
		srcReg = isa.Reg(arg.Dyn.Reg)
	}
	if arg.Kind == ast.KindInt || arg.Dyn.Loc != ast.LocReg {
		if err := layout.EmitXfer(p, regAt(srcReg), arg, scratchReg); err != nil {
			return err
		}
	}
	dstReg := isa.R2
	if err := emitLog2Raw(p, dstReg, srcReg); err != nil {
		return err
	}
	_, err := p.Emit(isa.STXDW(isa.R10, int16(mapNode.Dyn.Addr), dstReg))
	return err
}

// methodReceiver resolves a nested aggregation call's owning map node
// (method.Left), relying on the parser having set call.Parent to the
// enclosing KindMethod node — the same Parent back-link invariant
// internal/ast.ParentIsMovAssignLValue relies on for assignment
// l-values.
func methodReceiver(call *ast.Node) *ast.Node {
	return call.Parent.Left
}

// bumpMapValue adds delta to the map's current value in place: load
// from its stack slot, add, store back. The register copy (if the map
// node also resolved to one) is left stale — nothing downstream reads
// it once the method statement's map_update_elem runs.
func bumpMapValue(p *isa.Program, mapNode *ast.Node, delta int32) error {
	if _, err := p.Emit(isa.LDXDW(scratchReg, int16(mapNode.Dyn.Addr), isa.R10)); err != nil {
		return err
	}
	if _, err := p.Emit(isa.ALU_IMM(isa.AluAdd, scratchReg, delta)); err != nil {
		return err
	}
	_, err := p.Emit(isa.STXDW(isa.R10, int16(mapNode.Dyn.Addr), scratchReg))
	return err
}
