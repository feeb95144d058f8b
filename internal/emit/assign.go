package emit

import (
	"ply/internal/ast"
	"ply/internal/cerr"
	"ply/internal/isa"
	"ply/internal/layout"
)

// emitAssign lowers a map assignment: delete (no right-hand side),
// plain replacement (mov), or a read-modify-write compound op
// (+=, -=, ...). All three end by writing the map's value slot back
// through the kernel's map_update_elem helper, except delete which
// calls map_delete_elem instead and returns immediately.
func emitAssign(p *isa.Program, assign *ast.Node) error {
	mapNode, expr := assign.Left, assign.Right

	md := mapDynOf(mapNode)
	if md == nil {
		return cerr.New(cerr.KindSourceUnknown, mapNode.Name, "no map descriptor registered for %q", mapNode.Name)
	}

	if assign.AssignOp == ast.AssignDelete {
		return emitMapDeleteRaw(p, md.FD, mapNode.Dyn.KeyAddr)
	}

	if assign.AssignOp == ast.AssignMov {
		if err := layout.EmitXfer(p, mapNode, expr, scratchReg); err != nil {
			return err
		}
	} else {
		// read the map's current value (already loaded into mapNode's
		// dyn by emit_map_load, run earlier in the same post-order
		// walk) into the assign node's own scratch location, combine
		// it with expr, then write the result back into the map's
		// value slot.
		if err := layout.EmitXfer(p, assign, mapNode, scratchReg); err != nil {
			return err
		}
		if err := applyCompoundOp(p, assign, expr); err != nil {
			return err
		}
		if err := layout.EmitXfer(p, mapNode, assign, scratchReg); err != nil {
			return err
		}
	}

	// map_update_elem reads the value from the stack slot, so a
	// register-resident map value is stored there as well.
	if mapNode.Dyn.Loc == ast.LocReg {
		if _, err := p.Emit(isa.STXDW(isa.R10, int16(mapNode.Dyn.Addr), isa.Reg(mapNode.Dyn.Reg))); err != nil {
			return err
		}
	}

	return emitMapUpdateRaw(p, md.FD, mapNode.Dyn.KeyAddr, mapNode.Dyn.Addr)
}

// applyCompoundOp combines assign's current value (already transferred
// into its own dyn location) with expr in place, spilling through a
// scratch register when assign is stack-resident since the ALU
// instructions only operate on registers.
func applyCompoundOp(p *isa.Program, assign, expr *ast.Node) error {
	reg := scratchReg
	if assign.Dyn.Loc == ast.LocReg {
		reg = isa.Reg(assign.Dyn.Reg)
	} else if _, err := p.Emit(isa.LDXDW(reg, int16(assign.Dyn.Addr), isa.R10)); err != nil {
		return err
	}

	op := aluOpFor(assign.AssignOp.ToBinOp())
	if expr.Kind == ast.KindInt && layout.FitsImmediate32(expr.IntVal) {
		if _, err := p.Emit(isa.ALU_IMM(op, reg, int32(expr.IntVal))); err != nil {
			return err
		}
	} else {
		rhs := isa.R1
		if rhs == reg {
			rhs = isa.R2
		}
		if err := layout.EmitXfer(p, regAt(rhs), expr, scratchReg); err != nil {
			return err
		}
		if _, err := p.Emit(isa.ALU(op, reg, rhs)); err != nil {
			return err
		}
	}

	if assign.Dyn.Loc != ast.LocReg {
		_, err := p.Emit(isa.STXDW(isa.R10, int16(assign.Dyn.Addr), reg))
		return err
	}
	return nil
}

// emitMethod lowers a map aggregation call such as count() or
// quantize(x): by the time this runs, the map's current value has
// already been loaded (emit_map_load, over mapNode) and the builtin's
// own provider compile step (over the nested call node) has combined
// it with the new sample and written the result back into the map
// node's own dyn slot — emitMethod's only remaining job is persisting
// that slot back into the map.
func emitMethod(p *isa.Program, method *ast.Node) error {
	mapNode := method.Left

	md := mapDynOf(mapNode)
	if md == nil {
		return cerr.New(cerr.KindSourceUnknown, mapNode.Name, "no map descriptor registered for %q", mapNode.Name)
	}
	return emitMapUpdateRaw(p, md.FD, mapNode.Dyn.KeyAddr, mapNode.Dyn.Addr)
}
