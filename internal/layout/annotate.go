package layout

import (
	"ply/internal/ast"
	"ply/internal/cerr"
)

// Provider is the subset of a tracing provider's callback record that
// the annotation pass needs. internal/provider's concrete Provider
// type satisfies this interface structurally.
type Provider interface {
	ast.ProviderHandle

	// Annotate performs semantic validation of probe arguments and
	// builtin calls.
	Annotate(n *ast.Node) error

	// LocAssign decides n's dyn.Loc (and, for registers, dyn.Reg; for
	// stack, dyn.Addr) given the statement's live register set and
	// the probe's stack frame.
	LocAssign(n *ast.Node, regs *uint16, frame *StackFrame) error
}

// Annotate runs the full dyn-layout pass over script: stack-pointer
// init, post-order size/type propagation, and provider-driven
// location assignment, for every probe in the script.
func Annotate(script *ast.Node, lookup func(namespace string) (Provider, bool)) error {
	for _, probe := range script.Children {
		if probe.Kind != ast.KindProbe {
			continue
		}
		namespace := providerNamespace(probe.Name)
		prov, ok := lookup(namespace)
		if !ok {
			return cerr.New(cerr.KindUnknownBuiltin, probe.Name, "no provider registered for namespace %q", namespace)
		}
		probe.Dyn = ast.NewDyn()
		probe.Dyn.Loc = ast.LocVirtual
		probe.Dyn.Provider = prov

		if err := prov.Annotate(probe); err != nil {
			return cerr.Wrap(probe.Name, err)
		}

		frame := &StackFrame{}
		if err := annotateSizeType(probe); err != nil {
			return cerr.Wrap(probe.Name, err)
		}
		if probe.Pred != nil {
			if err := locAssignStatement(probe.Pred, prov, frame); err != nil {
				return cerr.Wrap(probe.Name, err)
			}
		}
		for _, stmt := range probe.Children {
			if err := locAssignStatement(stmt, prov, frame); err != nil {
				return cerr.Wrap(probe.Name, err)
			}
		}
		probe.Dyn.StackPointer = frame.SP()
	}
	return nil
}

func providerNamespace(probeSpec string) string {
	for i, r := range probeSpec {
		if r == ':' {
			return probeSpec[:i]
		}
	}
	return probeSpec
}

// locAssignStatement runs location assignment over one statement's
// subtree using a fresh per-statement register set: free_regs never
// carries over between statements.
func locAssignStatement(stmt *ast.Node, prov Provider, frame *StackFrame) error {
	regs := NewStatementRegSet()
	return locAssignNode(stmt, prov, &regs, frame)
}

func locAssignNode(n *ast.Node, prov Provider, regs *uint16, frame *StackFrame) error {
	for _, c := range childrenOf(n) {
		if err := locAssignNode(c, prov, regs, frame); err != nil {
			return err
		}
	}
	if n.Dyn == nil {
		n.Dyn = ast.NewDyn()
	}
	return prov.LocAssign(n, regs, frame)
}

// Children enumerates every AST child pointer a node may hold,
// regardless of which kind-specific field it lives in. internal/emit
// reuses this so post-order traversal stays defined in one place.
func Children(n *ast.Node) []*ast.Node {
	return childrenOf(n)
}

func childrenOf(n *ast.Node) []*ast.Node {
	var out []*ast.Node
	if n.Left != nil {
		out = append(out, n.Left)
	}
	if n.Right != nil {
		out = append(out, n.Right)
	}
	out = append(out, n.Children...)
	return out
}

// annotateSizeType performs the post-order size/type propagation step,
// independent of location assignment.
func annotateSizeType(probe *ast.Node) error {
	if probe.Pred != nil {
		if err := annotateNodeSizeType(probe.Pred); err != nil {
			return err
		}
	}
	for _, stmt := range probe.Children {
		if err := annotateNodeSizeType(stmt); err != nil {
			return err
		}
	}
	return nil
}

func annotateNodeSizeType(n *ast.Node) error {
	for _, c := range childrenOf(n) {
		if err := annotateNodeSizeType(c); err != nil {
			return err
		}
	}
	if n.Dyn == nil {
		n.Dyn = ast.NewDyn()
	}

	switch n.Kind {
	case ast.KindInt, ast.KindStackID:
		n.Dyn.Type = ast.TypeInt
		n.Dyn.Size = 8
	case ast.KindStr:
		n.Dyn.Type = ast.TypeStr
		n.Dyn.Size = ast.AlignUp(len(n.StrVal) + 1)
	case ast.KindBinop:
		n.Dyn.Type = ast.TypeInt
		n.Dyn.Size = wider(n.Left, n.Right)
	case ast.KindNot:
		n.Dyn.Type = ast.TypeInt
		n.Dyn.Size = 8
	case ast.KindMap:
		md := resolveMapDyn(n)
		if md != nil {
			n.Dyn.Type = md.ValueType
			n.Dyn.Size = md.ValueSize
		} else {
			n.Dyn.Type = ast.TypeInt
			n.Dyn.Size = 8
		}
	case ast.KindRec:
		total := 0
		for _, f := range n.Children {
			total += ast.AlignUp(f.Dyn.Size)
		}
		n.Dyn.Type = ast.TypeRec
		n.Dyn.Size = total
		n.Dyn.Loc = ast.LocVirtual // rec nodes are virtual; fields carry the value (invariant 4)
	case ast.KindCall, ast.KindMethod, ast.KindStackMap:
		// type/size for these depends on the provider's builtin table;
		// the provider's Annotate pass (run before this function) is
		// responsible for having already set a concrete type, falling
		// back to int if it declined to.
		if n.Dyn.Type == ast.TypeNone {
			n.Dyn.Type = ast.TypeInt
			n.Dyn.Size = 8
		}
	case ast.KindReturn:
		n.Dyn.Loc = ast.LocVirtual
	case ast.KindAssign:
		if n.AssignOp == ast.AssignMov || n.AssignOp == ast.AssignDelete {
			n.Dyn.Loc = ast.LocVirtual
		} else {
			// a compound assignment (+=, -=, ...) needs a real scratch
			// location to hold the map's current value while the ALU op
			// combines it with the right-hand expression.
			n.Dyn.Type = ast.TypeInt
			n.Dyn.Size = 8
		}
	}
	return nil
}

func wider(l, r *ast.Node) int {
	size := 8
	if l != nil && l.Dyn != nil && l.Dyn.Size > size {
		size = l.Dyn.Size
	}
	if r != nil && r.Dyn != nil && r.Dyn.Size > size {
		size = r.Dyn.Size
	}
	return size
}

// ResolveMapDyn looks up n's (a KindMap node's) map descriptor from
// the owning script's map table.
func ResolveMapDyn(n *ast.Node) *ast.MapDyn {
	return resolveMapDyn(n)
}

func resolveMapDyn(n *ast.Node) *ast.MapDyn {
	if n.Script == nil || n.Script.Dyn == nil {
		return nil
	}
	for _, m := range n.Script.Dyn.Maps {
		if m.Name == n.Name {
			return m
		}
	}
	return nil
}
