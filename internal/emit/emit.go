// Package emit lowers an annotated AST into a linear bytecode stream:
// the node emitters for each expression/statement kind, the
// post-order walker that drives them, and CompileProbe, the package's
// single entry point.
package emit

import (
	"ply/internal/ast"
	"ply/internal/cerr"
	"ply/internal/isa"
	"ply/internal/layout"
)

// scratchReg is the register the emitters reach for when a value must
// pass through a register but no statement-local allocation applies
// (stack-to-stack transfers, map lookup pointers). r0 is always safe
// here: it is clobbered by every helper call anyway, and never holds
// a statement's live value across one.
const scratchReg = isa.R0

// Provider is the compile-time hook builtin/method calls dispatch
// through. internal/provider's concrete Provider type satisfies this
// structurally; emit never imports that package directly, avoiding a
// cycle.
type Provider interface {
	ast.ProviderHandle
	Compile(p *isa.Program, call *ast.Node) error
}

// CompileProbe lowers one annotated probe into a Program. probe.Dyn
// must already carry a resolved Provider handle and every descendant
// must carry a resolved Dyn (see internal/layout.Annotate).
func CompileProbe(probe *ast.Node, debug bool) (*isa.Program, error) {
	if probe.Kind != ast.KindProbe {
		return nil, cerr.New(cerr.KindUnlowerableNode, probe.Kind.String(), "CompileProbe requires a probe node")
	}

	prov, _ := probe.Dyn.Provider.(Provider)

	prog := isa.NewProgram(debug)
	if _, err := prog.Emit(isa.MOV(isa.R9, isa.R1)); err != nil {
		return nil, err
	}

	if probe.Pred != nil {
		if err := compilePred(prog, probe.Pred, prov); err != nil {
			return nil, err
		}
	}

	var last *ast.Node
	for _, stmt := range probe.Children {
		if err := compileWalk(prog, stmt, prov); err != nil {
			return nil, err
		}
		last = stmt
	}

	if last == nil || last.Kind != ast.KindReturn {
		if _, err := prog.Emit(isa.MOV_IMM(isa.R0, 0)); err != nil {
			return nil, err
		}
		if _, err := prog.Emit(isa.EXIT()); err != nil {
			return nil, err
		}
	}
	return prog, nil
}

// compilePred lowers a probe's predicate: if it evaluates false,
// exit the probe immediately.
func compilePred(p *isa.Program, pred *ast.Node, prov Provider) error {
	if err := compileWalk(p, pred, prov); err != nil {
		return err
	}
	if pred.Dyn.Loc != ast.LocReg {
		return cerr.New(cerr.KindPredicateNotInRegister, pred.Kind.String(), "predicate result was not placed in a register")
	}
	if pred.Kind == ast.KindInt {
		if err := layout.EmitXfer(p, pred, pred, scratchReg); err != nil {
			return err
		}
	}
	if _, err := p.Emit(isa.JMP_IMM(isa.JmpNe, isa.Reg(pred.Dyn.Reg), 0, 2)); err != nil {
		return err
	}
	if _, err := p.Emit(isa.MOV_IMM(isa.R0, 0)); err != nil {
		return err
	}
	_, err := p.Emit(isa.EXIT())
	return err
}

// compileWalk visits n's children post-order, then lowers n itself.
func compileWalk(p *isa.Program, n *ast.Node, prov Provider) error {
	for _, c := range layout.Children(n) {
		if err := compileWalk(p, c, prov); err != nil {
			return err
		}
	}
	return compileNode(p, n, prov)
}

func compileNode(p *isa.Program, n *ast.Node, prov Provider) error {
	switch n.Kind {
	case ast.KindInt:
		if n.Dyn.Loc != ast.LocStack {
			return nil // register-resident literals are materialized lazily at first use
		}
		return layout.EmitXfer(p, n, n, scratchReg)
	case ast.KindStr:
		return layout.EmitXfer(p, n, n, scratchReg)
	case ast.KindRec:
		return nil // fields already emitted their own bytes during the walk
	case ast.KindMap:
		return emitMapLoad(p, n)
	case ast.KindNot:
		return emitNot(p, n)
	case ast.KindBinop:
		return emitBinop(p, n)
	case ast.KindAssign:
		return emitAssign(p, n)
	case ast.KindMethod:
		return emitMethod(p, n)
	case ast.KindCall, ast.KindStackID, ast.KindStackMap:
		// all three are builtin-dispatch kinds (the provider's Annotate
		// pass types each of them): a stack
		// capture needs the probe's stackmap fd and the get_stackid
		// helper the same way an ordinary builtin call needs its own
		// helper, so both route through the provider's compile hook
		// rather than a kind-specific emitter here.
		if prov == nil {
			return cerr.New(cerr.KindUnknownBuiltin, n.Name, "no provider compile hook bound to this probe")
		}
		return prov.Compile(p, n)
	case ast.KindReturn:
		return emitReturn(p, n)
	case ast.KindScript, ast.KindProbe, ast.KindNone:
		return cerr.New(cerr.KindUnlowerableNode, n.Kind.String(), "node variant has no direct lowering")
	default:
		return cerr.New(cerr.KindUnlowerableNode, n.Kind.String(), "unhandled node kind")
	}
}

// emitReturn places the return expression's value in r0 (the VM's
// single return-value register) and exits the program immediately,
// skipping any statements that would otherwise follow.
func emitReturn(p *isa.Program, n *ast.Node) error {
	if n.Left != nil {
		r0 := &ast.Node{Kind: ast.KindReturn, Dyn: &ast.Dyn{Loc: ast.LocReg, Reg: int(isa.R0)}}
		if err := layout.EmitXfer(p, r0, n.Left, scratchReg); err != nil {
			return err
		}
	} else if _, err := p.Emit(isa.MOV_IMM(isa.R0, 0)); err != nil {
		return err
	}
	_, err := p.Emit(isa.EXIT())
	return err
}
