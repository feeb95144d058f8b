package lang

import (
	"ply/internal/ast"
	"ply/internal/layout"
)

// inferMaps walks every probe's predicate and statement tree, finds
// every distinct map name referenced, and builds its MapDyn ahead of
// annotation: one descriptor per name, typed from its first
// occurrence. internal/layout.resolveMapDyn looks these up purely by
// name, so they must already exist on script.Dyn.Maps before
// internal/layout.Annotate runs — there is no separate map-declaration
// syntax in the DSL, so first use is the only signal available.
//
// This is a parser-owned design decision, not ported from any
// retrieved reference: the file fragments pulled from the original C
// sources stop short of the map type-inference pass itself.
func inferMaps(script *ast.Node) {
	seen := make(map[string]*ast.MapDyn)
	var order []string

	var walk func(n *ast.Node)
	walk = func(n *ast.Node) {
		if n == nil {
			return
		}
		for _, c := range layout.Children(n) {
			walk(c)
		}
		if n.Kind == ast.KindMap {
			if _, ok := seen[n.Name]; !ok {
				seen[n.Name] = buildMapDyn(n)
				order = append(order, n.Name)
			}
		}
	}

	for _, probe := range script.Children {
		if probe.Pred != nil {
			walk(probe.Pred)
		}
		for _, stmt := range probe.Children {
			walk(stmt)
		}
	}

	for _, name := range order {
		script.Dyn.Maps = append(script.Dyn.Maps, seen[name])
	}
}

func buildMapDyn(n *ast.Node) *ast.MapDyn {
	kt, ks := keyShape(n)
	vt, vs := valueShape(n)
	return &ast.MapDyn{Name: n.Name, KeyType: kt, KeySize: ks, ValueType: vt, ValueSize: vs}
}

// keyShape gives a map reference's key type/size from its bracketed
// field list: no fields is the fixed scalar key every scalar
// accumulator shares; one field takes that field's own static shape;
// more than one is a multi-field record key, its fields laid out
// contiguously in ascending order.
func keyShape(n *ast.Node) (ast.Type, int) {
	switch len(n.Children) {
	case 0:
		return ast.TypeInt, 8
	case 1:
		return staticShape(n.Children[0])
	default:
		total := 0
		for _, f := range n.Children {
			_, sz := staticShape(f)
			total += ast.AlignUp(sz)
		}
		return ast.TypeRec, total
	}
}

// valueShape infers a map's value type/size from how its first
// occurrence is used: an aggregation method (count/quantize) always
// produces an int bucket; a plain replacement assignment takes its
// right-hand side's static shape; anything else (read-only reference,
// compound assignment) defaults to a plain 8-byte int, the shape every
// counter-style map already needs.
func valueShape(n *ast.Node) (ast.Type, int) {
	p := n.Parent
	if p == nil {
		return ast.TypeInt, 8
	}
	switch p.Kind {
	case ast.KindMethod:
		return ast.TypeInt, 8
	case ast.KindAssign:
		if p.AssignOp == ast.AssignMov && p.Right != nil {
			return staticShape(p.Right)
		}
		return ast.TypeInt, 8
	default:
		return ast.TypeInt, 8
	}
}

// staticShape gives a syntax-level type/size estimate for an
// expression node, used before annotation has run (when Dyn.Size
// isn't populated yet). Only literals carry enough static information
// to differ from the int/8 default — everything else (builtin calls,
// binops, nested map reads) is assumed int-valued, matching this back
// end's only non-int builtin (comm) being the sole exception callers
// must special-case themselves if they ever key or store by it.
func staticShape(n *ast.Node) (ast.Type, int) {
	switch n.Kind {
	case ast.KindStr:
		return ast.TypeStr, ast.AlignUp(len(n.StrVal) + 1)
	default:
		return ast.TypeInt, 8
	}
}
