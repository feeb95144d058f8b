package lang

import (
	"fmt"
	"regexp"
	"strings"

	"ply/internal/ast"
)

// probeBlockPattern peels the outer probe/predicate/body shape off a
// script with a single precompiled regexp — the same "handle the
// coarse structure with a regexp, then deal with the inner detail
// separately" idiom a line-oriented preprocessor (stripping comments
// and labels before tokenizing instructions) would use. The DSL has
// no nested braces within a probe body, so a non-greedy body match is
// exact, not an approximation.
var probeBlockPattern = regexp.MustCompile(`(?s)([A-Za-z_][A-Za-z0-9_*.:]*)\s*(?:/(.*?)/)?\s*\{(.*?)\}`)

// Parse lexes and parses src (one or more probe definitions) into a
// script node ready for internal/layout.Annotate.
func Parse(src string) (*ast.Node, error) {
	script := &ast.Node{Kind: ast.KindScript}
	script.Script = script
	script.Dyn = ast.NewDyn()

	blocks, err := splitProbes(src)
	if err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, fmt.Errorf("lang: no probe definitions found in source")
	}

	for _, b := range blocks {
		probe, err := parseProbeBlock(script, b)
		if err != nil {
			return nil, err
		}
		script.AddChild(probe)
	}

	inferMaps(script)
	return script, nil
}

type probeBlock struct {
	spec string
	pred string
	body string
}

// splitProbes extracts every top-level probe block and verifies the
// matches cover the entire (whitespace/comment-trimmed) source —
// anything left over is a syntax error rather than silently ignored.
func splitProbes(src string) ([]probeBlock, error) {
	idx := probeBlockPattern.FindAllStringSubmatchIndex(src, -1)
	if idx == nil {
		return nil, fmt.Errorf("lang: source does not match `provider:target /pred/ { ... }`")
	}

	var blocks []probeBlock
	cursor := 0
	for _, m := range idx {
		gap := src[cursor:m[0]]
		if strings.TrimSpace(stripLineComments(gap)) != "" {
			return nil, fmt.Errorf("lang: unrecognized text before byte %d: %q", m[0], strings.TrimSpace(gap))
		}
		spec := src[m[2]:m[3]]
		pred := ""
		if m[4] >= 0 {
			pred = src[m[4]:m[5]]
		}
		body := src[m[6]:m[7]]
		blocks = append(blocks, probeBlock{spec: spec, pred: pred, body: body})
		cursor = m[1]
	}
	if strings.TrimSpace(stripLineComments(src[cursor:])) != "" {
		return nil, fmt.Errorf("lang: unrecognized trailing text: %q", strings.TrimSpace(src[cursor:]))
	}
	return blocks, nil
}

var lineCommentPattern = regexp.MustCompile(`//[^\n]*`)

func stripLineComments(s string) string {
	return lineCommentPattern.ReplaceAllString(s, "")
}

func parseProbeBlock(script *ast.Node, b probeBlock) (*ast.Node, error) {
	probe := ast.NewNode(ast.KindProbe, script)
	probe.Name = strings.TrimSpace(b.spec)
	probe.Dyn = ast.NewDyn()
	probe.Dyn.Loc = ast.LocVirtual

	if b.pred != "" {
		p := newParser(script, b.pred)
		pred, err := p.parseExpr(0)
		if err != nil {
			return nil, fmt.Errorf("lang: probe %q: predicate: %w", probe.Name, err)
		}
		if err := p.expectEOF(); err != nil {
			return nil, fmt.Errorf("lang: probe %q: predicate: %w", probe.Name, err)
		}
		setChild(probe, pred)
		probe.Pred = pred
	}

	p := newParser(script, b.body)
	stmts, err := p.parseStmtList()
	if err != nil {
		return nil, fmt.Errorf("lang: probe %q: %w", probe.Name, err)
	}
	for _, s := range stmts {
		probe.AddChild(s)
	}
	return probe, nil
}

// parser is a recursive-descent expression/statement parser over one
// fragment (a predicate or a probe body) already isolated by
// splitProbes.
type parser struct {
	lx     *lexer
	script *ast.Node
	tok    token
	lexErr error
}

func newParser(script *ast.Node, src string) *parser {
	p := &parser{lx: newLexer(src), script: script}
	p.advance()
	return p
}

func (p *parser) advance() {
	tok, err := p.lx.next()
	if err != nil {
		// surfaced on next expect/parse call via a sentinel EOF-shaped
		// token carrying no useful data; the lexer error itself is
		// stashed in lexErr, which parseStmtList, parsePrimary and
		// expectEOF check and return to the caller.
		p.tok = token{kind: tokEOF}
		p.lexErr = err
		return
	}
	p.tok = tok
}

func (p *parser) expectEOF() error {
	if p.lexErr != nil {
		return p.lexErr
	}
	if p.tok.kind != tokEOF {
		return fmt.Errorf("lang: unexpected trailing token %v", p.tok)
	}
	return nil
}

func setChild(parent, child *ast.Node) {
	if child == nil {
		return
	}
	child.Parent = parent
	child.Script = parent.Script
}

func newLeaf(script *ast.Node, kind ast.Kind) *ast.Node {
	return &ast.Node{Kind: kind, Script: script}
}
