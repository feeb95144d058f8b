package lang

import (
	"fmt"

	"ply/internal/ast"
)

var compoundAssignOf = map[tokKind]ast.AssignOp{
	tokAddEq: ast.AssignAdd,
	tokSubEq: ast.AssignSub,
	tokMulEq: ast.AssignMul,
	tokDivEq: ast.AssignDiv,
	tokAndEq: ast.AssignAnd,
	tokOrEq:  ast.AssignOr,
	tokXorEq: ast.AssignXor,
}

// parseStmtList parses a probe body's statement sequence. A semicolon
// after a statement is optional, both between statements and at the
// end.
func (p *parser) parseStmtList() ([]*ast.Node, error) {
	var stmts []*ast.Node
	for {
		if p.lexErr != nil {
			return nil, p.lexErr
		}
		if p.tok.kind == tokEOF {
			return stmts, nil
		}
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
		if p.tok.kind == tokSemi {
			p.advance()
		}
	}
}

func (p *parser) parseStmt() (*ast.Node, error) {
	if p.tok.kind == tokReturn {
		p.advance()
		n := newLeaf(p.script, ast.KindReturn)
		if p.tok.kind != tokSemi && p.tok.kind != tokEOF {
			expr, err := p.parseExpr(0)
			if err != nil {
				return nil, err
			}
			n.Left = expr
			setChild(n, expr)
		}
		return n, nil
	}

	head, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	if p.tok.kind == tokDot {
		return p.parseMethodTail(head)
	}
	if p.tok.kind == tokAssign {
		return p.parseAssignTail(head)
	}
	if op, ok := compoundAssignOf[p.tok.kind]; ok {
		p.advance()
		rhs, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		n := newLeaf(p.script, ast.KindAssign)
		n.AssignOp = op
		n.Left, n.Right = head, rhs
		setChild(n, head)
		setChild(n, rhs)
		return n, nil
	}
	return head, nil
}

// parseMethodTail parses the `.name(args)` suffix on a map reference
// — the alternate spelling of a method statement alongside
// `mapref = count()`/`mapref = quantize(x)`.
func (p *parser) parseMethodTail(receiver *ast.Node) (*ast.Node, error) {
	p.advance() // '.'
	if p.tok.kind != tokIdent {
		return nil, fmt.Errorf("lang: expected method name after '.', got %v", p.tok)
	}
	call, err := p.parseIdentOrCall()
	if err != nil {
		return nil, err
	}
	n := newLeaf(p.script, ast.KindMethod)
	n.Left, n.Right = receiver, call
	setChild(n, receiver)
	setChild(n, call)
	return n, nil
}

// parseAssignTail parses the `= rhs` / `= nil` suffix on a map
// reference. A right-hand side that is itself a call to one of the
// aggregation builtins (count/quantize) is method-call sugar: it
// lowers to the same KindMethod shape `mapref.count()` would, since
// both forms write their result into the map's value slot directly
// rather than going through a plain value transfer.
func (p *parser) parseAssignTail(lval *ast.Node) (*ast.Node, error) {
	p.advance() // '='
	if p.tok.kind == tokNil {
		p.advance()
		n := newLeaf(p.script, ast.KindAssign)
		n.AssignOp = ast.AssignDelete
		n.Left = lval
		setChild(n, lval)
		return n, nil
	}

	rhs, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}
	if rhs.Kind == ast.KindCall && (rhs.Name == "count" || rhs.Name == "quantize") {
		n := newLeaf(p.script, ast.KindMethod)
		n.Left, n.Right = lval, rhs
		setChild(n, lval)
		setChild(n, rhs)
		return n, nil
	}

	n := newLeaf(p.script, ast.KindAssign)
	n.AssignOp = ast.AssignMov
	n.Left, n.Right = lval, rhs
	setChild(n, lval)
	setChild(n, rhs)
	return n, nil
}
