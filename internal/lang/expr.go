package lang

import (
	"fmt"

	"ply/internal/ast"
)

// binPrec gives each binary operator token its precedence tier;
// higher binds tighter. Logical && / || have no tier here — the DSL
// has no boolean connective beyond comparison and bitwise ops, so a
// predicate like `pid == 42` is itself the whole boolean value.
var binPrec = map[tokKind]int{
	tokPipe:  1,
	tokCaret: 2,
	tokAmp:   3,
	tokEq:    4, tokNe: 4,
	tokLt: 5, tokLe: 5, tokGt: 5, tokGe: 5,
	tokShl: 6, tokShr: 6,
	tokPlus: 7, tokMinus: 7,
	tokStar: 8, tokSlash: 8, tokPercent: 8,
}

var binOpOf = map[tokKind]ast.BinOp{
	tokPlus: ast.OpAdd, tokMinus: ast.OpSub, tokStar: ast.OpMul, tokSlash: ast.OpDiv, tokPercent: ast.OpMod,
	tokAmp: ast.OpAnd, tokPipe: ast.OpOr, tokCaret: ast.OpXor, tokShl: ast.OpLsh, tokShr: ast.OpRsh,
	tokEq: ast.OpEq, tokNe: ast.OpNe, tokLt: ast.OpLt, tokLe: ast.OpLe, tokGt: ast.OpGt, tokGe: ast.OpGe,
}

// parseExpr implements precedence climbing: parseExpr(0) is a full
// expression; recursive calls raise minPrec to bind tighter on the
// right-hand side of a just-consumed operator.
func (p *parser) parseExpr(minPrec int) (*ast.Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		prec, ok := binPrec[p.tok.kind]
		if !ok || prec < minPrec {
			return left, nil
		}
		opTok := p.tok.kind
		p.advance()
		right, err := p.parseExpr(prec + 1)
		if err != nil {
			return nil, err
		}
		n := newLeaf(p.script, ast.KindBinop)
		n.BinOp = binOpOf[opTok]
		n.Left, n.Right = left, right
		setChild(n, left)
		setChild(n, right)
		left = n
	}
}

func (p *parser) parseUnary() (*ast.Node, error) {
	switch p.tok.kind {
	case tokNot:
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		n := newLeaf(p.script, ast.KindNot)
		n.Left = operand
		setChild(n, operand)
		return n, nil
	case tokMinus:
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		zero := newLeaf(p.script, ast.KindInt)
		n := newLeaf(p.script, ast.KindBinop)
		n.BinOp = ast.OpSub
		n.Left, n.Right = zero, operand
		setChild(n, zero)
		setChild(n, operand)
		return n, nil
	default:
		return p.parsePrimary()
	}
}

func (p *parser) parsePrimary() (*ast.Node, error) {
	if p.lexErr != nil {
		return nil, p.lexErr
	}
	switch p.tok.kind {
	case tokInt:
		n := newLeaf(p.script, ast.KindInt)
		n.IntVal = p.tok.ival
		p.advance()
		return n, nil
	case tokString:
		n := newLeaf(p.script, ast.KindStr)
		n.StrVal = p.tok.text
		p.advance()
		return n, nil
	case tokLParen:
		p.advance()
		e, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRParen {
			return nil, fmt.Errorf("lang: expected ')', got %v", p.tok)
		}
		p.advance()
		return e, nil
	case tokAt:
		return p.parseMapRef()
	case tokIdent:
		return p.parseIdentOrCall()
	default:
		return nil, fmt.Errorf("lang: unexpected token %v", p.tok)
	}
}

// parseMapRef parses `@`, `@name`, `@[k1, k2]`, `@name[k1, k2]`: a
// scalar accumulator when there is no bracketed key, otherwise a
// keyed map whose key fields are this node's own Children (no
// separate rec wrapper — internal/layout.DefaultLocAssign lays a
// KindMap's Children out as the key region directly).
func (p *parser) parseMapRef() (*ast.Node, error) {
	p.advance() // '@'
	n := newLeaf(p.script, ast.KindMap)
	if p.tok.kind == tokIdent {
		n.Name = p.tok.text
		p.advance()
	}
	if p.tok.kind == tokLBracket {
		p.advance()
		for {
			field, err := p.parseExpr(0)
			if err != nil {
				return nil, err
			}
			n.AddChild(field)
			if p.tok.kind == tokComma {
				p.advance()
				continue
			}
			break
		}
		if p.tok.kind != tokRBracket {
			return nil, fmt.Errorf("lang: expected ']', got %v", p.tok)
		}
		p.advance()
	}
	return n, nil
}

// parseIdentOrCall parses a bare builtin reference (`pid`, `comm`,
// `arg0`, `retval`, ...) or a call with an argument list (`count()`,
// `quantize(x)`, `printf("...", x)`). Which names are valid and how
// many arguments they take is the provider's concern
// (internal/provider's annotate pass), not this parser's — syntax and
// semantic validation are deliberately kept apart.
func (p *parser) parseIdentOrCall() (*ast.Node, error) {
	name := p.tok.text
	p.advance()
	n := newLeaf(p.script, ast.KindCall)
	n.Name = name
	if p.tok.kind != tokLParen {
		return n, nil
	}
	p.advance()
	if p.tok.kind != tokRParen {
		for {
			arg, err := p.parseExpr(0)
			if err != nil {
				return nil, err
			}
			n.AddChild(arg)
			if p.tok.kind == tokComma {
				p.advance()
				continue
			}
			break
		}
	}
	if p.tok.kind != tokRParen {
		return nil, fmt.Errorf("lang: expected ')', got %v", p.tok)
	}
	p.advance()
	return n, nil
}
