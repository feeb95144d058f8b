package emit

import (
	"ply/internal/ast"
	"ply/internal/cerr"
	"ply/internal/isa"
)

// emitMapLoad reads a map's current value into its own dyn location.
// If n is the l-value of a plain mov-assignment its prior value is
// never read (the assignment is about to replace it outright), so the
// lookup is skipped entirely.
//
// n.Dyn.Addr is always a valid stack slot for a map node regardless
// of its final Loc (internal/layout.assignMapValue guarantees this):
// the lookup helper can only write to memory, so a register-resident
// result still needs that slot as scratch transit space.
func emitMapLoad(p *isa.Program, n *ast.Node) error {
	if n.ParentIsMovAssignLValue() {
		return nil
	}

	md := mapDynOf(n)
	if md == nil {
		return cerr.New(cerr.KindSourceUnknown, n.Name, "no map descriptor registered for %q", n.Name)
	}

	if err := emitStackZero(p, n.Dyn.Addr, n.Dyn.Size); err != nil {
		return err
	}
	if err := emitMapLookupRaw(p, md.FD, n.Dyn.KeyAddr); err != nil {
		return err
	}

	// null result (key not found): skip the copy, leaving the
	// zeroed value in place.
	skip, err := p.Emit(isa.JMP_IMM(isa.JmpEq, isa.R0, 0, 0))
	if err != nil {
		return err
	}
	if err := emitReadRaw(p, n.Dyn.Addr, isa.R0, n.Dyn.Size); err != nil {
		return err
	}

	end := p.Len()
	p.PatchOffset(skip, int16(end-skip-1))

	if n.Dyn.Loc == ast.LocReg {
		_, err := p.Emit(isa.LDXDW(isa.Reg(n.Dyn.Reg), int16(n.Dyn.Addr), isa.R10))
		return err
	}
	return nil
}
