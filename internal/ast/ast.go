// Package ast defines the tracing DSL's abstract syntax tree: a
// discriminated node variant, its Dyn storage descriptor, and the map
// descriptor shared by a script's map references.
//
// The tree is a closed sum type. Dispatch on Kind, never on a Go
// interface hierarchy: provider callbacks are the only open
// polymorphism this package admits (see internal/provider).
package ast

// Kind discriminates a Node's variant. The set is closed.
type Kind int

const (
	KindNone Kind = iota
	KindScript
	KindProbe
	KindCall
	KindAssign
	KindMethod
	KindReturn
	KindBinop
	KindNot
	KindMap
	KindStackID
	KindStackMap
	KindRec
	KindInt
	KindStr
)

func (k Kind) String() string {
	switch k {
	case KindScript:
		return "script"
	case KindProbe:
		return "probe"
	case KindCall:
		return "call"
	case KindAssign:
		return "assign"
	case KindMethod:
		return "method"
	case KindReturn:
		return "return"
	case KindBinop:
		return "binop"
	case KindNot:
		return "not"
	case KindMap:
		return "map"
	case KindStackID:
		return "stack-id"
	case KindStackMap:
		return "stackmap"
	case KindRec:
		return "rec"
	case KindInt:
		return "int"
	case KindStr:
		return "str"
	default:
		return "none"
	}
}

// BinOp enumerates the arithmetic and comparison operators a Binop
// node can carry.
type BinOp int

const (
	OpAdd BinOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpAnd
	OpOr
	OpXor
	OpLsh
	OpRsh
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

// IsComparison reports whether op produces a 0/1 truth value rather
// than an arithmetic result.
func (op BinOp) IsComparison() bool {
	return op >= OpEq
}

func (op BinOp) String() string {
	names := [...]string{"+", "-", "*", "/", "%", "&", "|", "^", "<<", ">>", "==", "!=", "<", "<=", ">", ">="}
	if int(op) < len(names) {
		return names[op]
	}
	return "?"
}

// AssignOp enumerates the compound-assignment operators an Assign
// node can carry. AssignMov is a plain replacement; AssignDelete (no
// right-hand side) removes the key from the map.
type AssignOp int

const (
	AssignMov AssignOp = iota
	AssignDelete
	AssignAdd
	AssignSub
	AssignMul
	AssignDiv
	AssignAnd
	AssignOr
	AssignXor
)

// ToBinOp converts a read-modify-write assignment operator into the
// arithmetic BinOp applied between the current map value and the
// right-hand expression. Panics on AssignMov/AssignDelete, which have
// no arithmetic counterpart — callers must check those cases first.
func (op AssignOp) ToBinOp() BinOp {
	switch op {
	case AssignAdd:
		return OpAdd
	case AssignSub:
		return OpSub
	case AssignMul:
		return OpMul
	case AssignDiv:
		return OpDiv
	case AssignAnd:
		return OpAnd
	case AssignOr:
		return OpOr
	case AssignXor:
		return OpXor
	default:
		panic("ast: AssignOp has no arithmetic counterpart")
	}
}

// Node is a single AST element. Only the fields relevant to its Kind
// are populated; see the per-kind accessor helpers below.
type Node struct {
	Kind   Kind
	Parent *Node // non-owning back-link; always valid because the parent outlives the child
	Name   string

	Children []*Node // generic child list (script: probes; probe: statements; rec: fields; call/method: args)
	Left     *Node   // binop left / not operand / assign map-ref / method receiver / return expr
	Right    *Node   // binop right / assign rhs (nil for AssignDelete) / method's nested builtin call
	Pred     *Node   // probe predicate, nil if none

	BinOp    BinOp
	AssignOp AssignOp

	IntVal int64
	StrVal string

	Dyn *Dyn

	Script *Node // back-pointer to the owning script, valid on every node
}

// NewNode allocates a node of the given kind, wiring the parent
// back-link and propagating the owning script pointer.
func NewNode(kind Kind, parent *Node) *Node {
	n := &Node{Kind: kind, Parent: parent}
	if parent != nil {
		n.Script = parent.Script
	}
	return n
}

// AddChild appends c to n's generic child list and fixes up c's
// parent/script links.
func (n *Node) AddChild(c *Node) {
	c.Parent = n
	c.Script = n.Script
	n.Children = append(n.Children, c)
}

// IsAssignMov reports whether n (an Assign node) is a plain value
// replacement — the case the map-load emitter must skip: if the map
// reference is the l-value of a mov-assignment, its prior value is
// never read.
func (n *Node) IsAssignMov() bool {
	return n.Kind == KindAssign && n.AssignOp == AssignMov
}

// ParentIsMovAssignLValue reports whether n is the left-hand map
// reference of a plain mov assignment — used by the map-load emitter
// to decide whether the prior value can be skipped.
func (n *Node) ParentIsMovAssignLValue() bool {
	p := n.Parent
	return p != nil && p.Kind == KindAssign && p.Left == n && p.AssignOp == AssignMov
}
