package emit

import (
	"ply/internal/ast"
	"ply/internal/isa"
	"ply/internal/layout"
)

// emitNot lowers a logical negation: !0 -> 1, anything else -> 0.
func emitNot(p *isa.Program, not *ast.Node) error {
	expr := not.Left
	src := scratchReg
	if expr.Dyn.Loc == ast.LocReg {
		src = isa.Reg(expr.Dyn.Reg)
	}
	if err := layout.EmitXfer(p, regAt(src), expr, scratchReg); err != nil {
		return err
	}

	if _, err := p.Emit(isa.JMP_IMM(isa.JmpNe, src, 0, 2)); err != nil {
		return err
	}
	if _, err := p.Emit(isa.MOV_IMM(src, 1)); err != nil {
		return err
	}
	if _, err := p.Emit(isa.JMP_IMM(isa.JmpJa, 0, 0, 1)); err != nil {
		return err
	}
	if _, err := p.Emit(isa.MOV_IMM(src, 0)); err != nil {
		return err
	}

	return layout.EmitXfer(p, not, regAt(src), scratchReg)
}

// regAt builds a throwaway node whose only purpose is to act as an
// EmitXfer source/destination already resident in reg r — used when
// an intermediate value lives in a register with no AST node of its
// own to carry that Dyn. Kind is deliberately KindNone (never
// KindInt/KindStr): EmitXfer special-cases those two kinds as literal
// sources regardless of Dyn, which a synthetic register reference
// must not trigger.
func regAt(r isa.Reg) *ast.Node {
	return &ast.Node{Kind: ast.KindNone, Dyn: &ast.Dyn{Type: ast.TypeInt, Size: 8, Loc: ast.LocReg, Reg: int(r)}}
}

// emitBinop lowers an arithmetic or comparison binary operation. An
// operand already resident in a register is used in place; a literal
// or stack-resident operand is first materialized into its own
// register if it has one, otherwise into r0 (left) or r1 (right). The
// result is then transferred into the node's own dyn location.
func emitBinop(p *isa.Program, binop *ast.Node) error {
	l, r := binop.Left, binop.Right

	lReg := isa.R0
	if l.Dyn.Loc == ast.LocReg {
		lReg = isa.Reg(l.Dyn.Reg)
	}
	if l.Kind == ast.KindInt || l.Dyn.Loc != ast.LocReg {
		if err := layout.EmitXfer(p, regAt(lReg), l, scratchReg); err != nil {
			return err
		}
	}

	rReg := isa.R1
	imm, immOK := int32(0), false
	if r.Dyn.Loc == ast.LocReg {
		rReg = isa.Reg(r.Dyn.Reg)
	}
	if r.Kind == ast.KindInt || r.Dyn.Loc != ast.LocReg {
		if r.Kind == ast.KindInt && layout.FitsImmediate32(r.IntVal) {
			imm, immOK = int32(r.IntVal), true
		} else if err := layout.EmitXfer(p, regAt(rReg), r, scratchReg); err != nil {
			return err
		}
	}

	if binop.BinOp.IsComparison() {
		if err := emitBinopJmp(p, binop, lReg, rReg, imm, immOK); err != nil {
			return err
		}
	} else if err := emitBinopAlu(p, binop, lReg, rReg, imm, immOK); err != nil {
		return err
	}

	return layout.EmitXfer(p, binop, regAt(lReg), scratchReg)
}

func emitBinopAlu(p *isa.Program, binop *ast.Node, lReg, rReg isa.Reg, imm int32, immOK bool) error {
	op := aluOpFor(binop.BinOp)
	if immOK {
		_, err := p.Emit(isa.ALU_IMM(op, lReg, imm))
		return err
	}
	_, err := p.Emit(isa.ALU(op, lReg, rReg))
	return err
}

// emitBinopJmp lowers a comparison by branching on its jump-opcode
// counterpart into a 0/1 result, matching the original interpreter's
// "skip the false-branch mov" idiom rather than a conditional-move
// instruction the target ISA doesn't have. "<" and "<=" have no direct
// opcode on this target, so BinOpToJmp hands back the negated
// comparison (">=" / ">") along with invert=true, and the 0/1 branches
// below swap places to undo the negation.
func emitBinopJmp(p *isa.Program, binop *ast.Node, lReg, rReg isa.Reg, imm int32, immOK bool) error {
	jmp, invert := isa.BinOpToJmp(binop.BinOp.String())
	trueVal, falseVal := int32(1), int32(0)
	if invert {
		trueVal, falseVal = falseVal, trueVal
	}

	if immOK {
		if _, err := p.Emit(isa.JMP_IMM(jmp, lReg, imm, 2)); err != nil {
			return err
		}
	} else if _, err := p.Emit(isa.JMP(jmp, lReg, rReg, 2)); err != nil {
		return err
	}
	if _, err := p.Emit(isa.MOV_IMM(lReg, falseVal)); err != nil {
		return err
	}
	if _, err := p.Emit(isa.JMP_IMM(isa.JmpJa, 0, 0, 1)); err != nil {
		return err
	}
	_, err := p.Emit(isa.MOV_IMM(lReg, trueVal))
	return err
}

func aluOpFor(op ast.BinOp) isa.AluOp {
	switch op {
	case ast.OpAdd:
		return isa.AluAdd
	case ast.OpSub:
		return isa.AluSub
	case ast.OpMul:
		return isa.AluMul
	case ast.OpDiv:
		return isa.AluDiv
	case ast.OpMod:
		return isa.AluMod
	case ast.OpAnd:
		return isa.AluAnd
	case ast.OpOr:
		return isa.AluOr
	case ast.OpXor:
		return isa.AluXor
	case ast.OpLsh:
		return isa.AluLsh
	default:
		return isa.AluRsh
	}
}
