package provider

import (
	"ply/internal/ast"
	"ply/internal/isa"
	"ply/internal/layout"
)

// compilePrintf serializes the format id and every value argument
// into printf's own staging buffer (one 8-byte slot each, allocated
// by annotatePrintf/LocAssign), then invokes trace_printk with the
// buffer's pointer and length.
func compilePrintf(pv *Provider, p *isa.Program, n *ast.Node) error {
	fmtNode := n.Children[0]
	fmtID := n.Script.Dyn.InternFormat(fmtNode.StrVal)

	base := n.Dyn.Addr
	if _, err := p.Emit(isa.ST_W_IMM(isa.R10, int16(base), int32(fmtID))); err != nil {
		return err
	}

	for i, arg := range n.Children[1:] {
		slot := &ast.Node{
			Kind: ast.KindNone,
			Dyn:  &ast.Dyn{Type: ast.TypeInt, Size: 8, Loc: ast.LocStack, Addr: base + 8*(i+1)},
		}
		if err := layout.EmitXfer(p, slot, arg, scratchReg); err != nil {
			return err
		}
	}

	if _, err := p.Emit(isa.MOV(isa.R1, isa.R10)); err != nil {
		return err
	}
	if _, err := p.Emit(isa.ALU_IMM(isa.AluAdd, isa.R1, int32(base))); err != nil {
		return err
	}
	if _, err := p.Emit(isa.MOV_IMM(isa.R2, int32(n.Dyn.Size))); err != nil {
		return err
	}
	_, err := p.Emit(isa.CALL(isa.HelperTracePrintk))
	return err
}
