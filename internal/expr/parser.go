package expr

import (
	"fmt"

	"github.com/san-kum/formulize/internal/formula"
)

// Formula is a parsed "{target} = expression" string. Target is empty when
// the source has no left-hand side.
type Formula struct {
	Source string
	Target string
	Root   Node
}

// Reads returns the variables referenced on the right-hand side.
func (f *Formula) Reads() []string { return Vars(f.Root) }

func (f *Formula) Eval(lookup Lookup) (float64, error) { return f.Root.Eval(lookup) }

type parser struct {
	src string
	l   lexer
	cur token
}

// ParseFormula parses an optional "{target} =" prefix followed by an
// expression.
func ParseFormula(src string) (*Formula, error) {
	p := newParser(src)
	f := &Formula{Source: src}

	if p.cur.kind == tokVar {
		save, saveCur := p.l.i, p.cur
		p.next()
		if p.cur.kind == tokAssign {
			f.Target = saveCur.text
			p.next()
		} else {
			p.l.i, p.cur = save, saveCur
		}
	}

	root, err := p.parseAll()
	if err != nil {
		return nil, err
	}
	f.Root = root
	return f, nil
}

// Parse parses a bare expression.
func Parse(src string) (Node, error) {
	return newParser(src).parseAll()
}

func newParser(src string) *parser {
	p := &parser{src: src, l: lexer{s: src}}
	p.next()
	return p
}

func (p *parser) next() { p.cur = p.l.next() }

func (p *parser) errorf(pos int, format string, args ...any) error {
	return &formula.ParseError{Input: p.src, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) unexpected() error {
	switch p.cur.kind {
	case tokIllegal:
		return p.errorf(p.cur.pos, "%s", p.cur.text)
	case tokEOF:
		return p.errorf(p.cur.pos, "unexpected end of expression")
	}
	return p.errorf(p.cur.pos, "unexpected %q", p.cur.text)
}

func (p *parser) parseAll() (Node, error) {
	if p.cur.kind == tokEOF {
		return nil, p.errorf(0, "empty expression")
	}
	n, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	if p.cur.kind == tokRParen {
		return nil, p.errorf(p.cur.pos, "unbalanced ')'")
	}
	if p.cur.kind != tokEOF {
		return nil, p.unexpected()
	}
	return n, nil
}

func (p *parser) parseSum() (Node, error) {
	left, err := p.parseProduct()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokPlus || p.cur.kind == tokMinus {
		op := p.cur.text[0]
		p.next()
		right, err := p.parseProduct()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseProduct() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokStar || p.cur.kind == tokSlash {
		op := p.cur.text[0]
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
	return left, nil
}

// parseUnary binds looser than '^', so -{v}^2 is -({v}^2).
func (p *parser) parseUnary() (Node, error) {
	if p.cur.kind == tokPlus || p.cur.kind == tokMinus {
		op := p.cur.text[0]
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: op, x: x}, nil
	}
	return p.parsePower()
}

func (p *parser) parsePower() (Node, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if p.cur.kind == tokCaret {
		p.next()
		exp, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return binaryNode{op: '^', left: base, right: exp}, nil
	}
	return base, nil
}

func (p *parser) parsePrimary() (Node, error) {
	switch p.cur.kind {
	case tokNumber:
		v := p.cur.num
		p.next()
		return numberNode{v: v}, nil
	case tokVar:
		name := p.cur.text
		p.next()
		return varNode{name: name}, nil
	case tokIdent:
		tok := p.cur
		p.next()
		if c, ok := constants[tok.text]; ok && p.cur.kind != tokLParen {
			return numberNode{v: c}, nil
		}
		fn, ok := functions[tok.text]
		if !ok {
			return nil, p.errorf(tok.pos, "unknown identifier %q (variables are written {name})", tok.text)
		}
		if p.cur.kind != tokLParen {
			return nil, p.errorf(p.cur.pos, "expected '(' after %s", tok.text)
		}
		open := p.cur.pos
		p.next()
		arg, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		if p.cur.kind != tokRParen {
			return nil, p.errorf(open, "unbalanced '('")
		}
		p.next()
		return callNode{name: tok.text, fn: fn, arg: arg}, nil
	case tokLParen:
		open := p.cur.pos
		p.next()
		x, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		if p.cur.kind != tokRParen {
			return nil, p.errorf(open, "unbalanced '('")
		}
		p.next()
		return x, nil
	default:
		return nil, p.unexpected()
	}
}
