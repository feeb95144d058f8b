package emit

import (
	"ply/internal/ast"
	"ply/internal/isa"
	"ply/internal/layout"
)

// emitStackZero writes zero across n's stack region, 4 bytes at a
// time. Used before a map lookup whose result area must read as zero
// if the kernel returns a null pointer (key not found).
func emitStackZero(p *isa.Program, addr, size int) error {
	for i := 0; i < size; i += 4 {
		if _, err := p.Emit(isa.ST_W_IMM(isa.R10, int16(addr+i), 0)); err != nil {
			return err
		}
	}
	return nil
}

// emitReadRaw copies size bytes from the pointer in src into the
// stack at offset to, via the kernel's probe_read helper.
func emitReadRaw(p *isa.Program, to int, src isa.Reg, size int) error {
	if _, err := p.Emit(isa.MOV(isa.R1, isa.R10)); err != nil {
		return err
	}
	if _, err := p.Emit(isa.ALU_IMM(isa.AluAdd, isa.R1, int32(to))); err != nil {
		return err
	}
	if _, err := p.Emit(isa.MOV_IMM(isa.R2, int32(size))); err != nil {
		return err
	}
	if _, err := p.Emit(isa.MOV(isa.R3, src)); err != nil {
		return err
	}
	_, err := p.Emit(isa.CALL(isa.HelperProbeRead))
	return err
}

// emitMapLookupRaw issues map_lookup_elem(fd, &stack[keyAddr]),
// leaving the result pointer (or NULL) in r0.
func emitMapLookupRaw(p *isa.Program, fd uint32, keyAddr int) error {
	if _, err := p.EmitWide(isa.LD_MAPFD(isa.R1, fd)); err != nil {
		return err
	}
	if _, err := p.Emit(isa.MOV(isa.R2, isa.R10)); err != nil {
		return err
	}
	_, err := p.Emit(isa.ALU_IMM(isa.AluAdd, isa.R2, int32(keyAddr)))
	if err != nil {
		return err
	}
	_, err = p.Emit(isa.CALL(isa.HelperMapLookupElem))
	return err
}

// emitMapUpdateRaw issues map_update_elem(fd, &stack[keyAddr],
// &stack[valAddr], BPF_ANY).
func emitMapUpdateRaw(p *isa.Program, fd uint32, keyAddr, valAddr int) error {
	if _, err := p.EmitWide(isa.LD_MAPFD(isa.R1, fd)); err != nil {
		return err
	}
	if _, err := p.Emit(isa.MOV(isa.R2, isa.R10)); err != nil {
		return err
	}
	if _, err := p.Emit(isa.ALU_IMM(isa.AluAdd, isa.R2, int32(keyAddr))); err != nil {
		return err
	}
	if _, err := p.Emit(isa.MOV(isa.R3, isa.R10)); err != nil {
		return err
	}
	if _, err := p.Emit(isa.ALU_IMM(isa.AluAdd, isa.R3, int32(valAddr))); err != nil {
		return err
	}
	if _, err := p.Emit(isa.MOV_IMM(isa.R4, 0)); err != nil {
		return err
	}
	_, err := p.Emit(isa.CALL(isa.HelperMapUpdateElem))
	return err
}

// emitMapDeleteRaw issues map_delete_elem(fd, &stack[keyAddr]).
func emitMapDeleteRaw(p *isa.Program, fd uint32, keyAddr int) error {
	if _, err := p.EmitWide(isa.LD_MAPFD(isa.R1, fd)); err != nil {
		return err
	}
	if _, err := p.Emit(isa.MOV(isa.R2, isa.R10)); err != nil {
		return err
	}
	if _, err := p.Emit(isa.ALU_IMM(isa.AluAdd, isa.R2, int32(keyAddr))); err != nil {
		return err
	}
	_, err := p.Emit(isa.CALL(isa.HelperMapDeleteElem))
	return err
}

// mapDynOf resolves n's (a KindMap node's) map descriptor from the
// owning script's map table.
func mapDynOf(n *ast.Node) *ast.MapDyn {
	return layout.ResolveMapDyn(n)
}
