package meta

import (
	"fmt"
	"strconv"

	"github.com/mrjoshuak/go-idx2/internal/idxerr"
)

// Kind is the type of an expression.
type Kind int

const (
	List Kind = iota
	Ident
	String
	Int
	Float
)

// Expr is a parsed S-expression.
type Expr struct {
	Kind  Kind
	List  []Expr
	Str   string // Ident and String
	Int   int64
	Float float64 // also set for Int
	Line  int
}

// Number reports whether e is an Int or a Float.
func (e Expr) Number() bool { return e.Kind == Int || e.Kind == Float }

type parser struct {
	src  []byte
	pos  int
	line int
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("line %d: %s: %w", p.line, fmt.Sprintf(format, args...), idxerr.SyntaxError)
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) {
		switch c := p.src[p.pos]; {
		case c == '\n':
			p.line++
			p.pos++
		case c == ' ' || c == '\t' || c == '\r':
			p.pos++
		case c == ';':
			for p.pos < len(p.src) && p.src[p.pos] != '\n' {
				p.pos++
			}
		default:
			return
		}
	}
}

func isDelim(c byte) bool {
	return c == '(' || c == ')' || c == '"' || c == ';' || c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func (p *parser) parseExpr(depth int) (Expr, error) {
	if depth > 64 {
		return Expr{}, p.errorf("nesting too deep")
	}
	p.skipSpace()
	if p.pos >= len(p.src) {
		return Expr{}, p.errorf("unexpected end of input")
	}
	e := Expr{Line: p.line}
	switch c := p.src[p.pos]; c {
	case '(':
		p.pos++
		e.Kind = List
		for {
			p.skipSpace()
			if p.pos >= len(p.src) {
				return Expr{}, p.errorf("unclosed list opened on line %d", e.Line)
			}
			if p.src[p.pos] == ')' {
				p.pos++
				return e, nil
			}
			sub, err := p.parseExpr(depth + 1)
			if err != nil {
				return Expr{}, err
			}
			e.List = append(e.List, sub)
		}
	case ')':
		return Expr{}, p.errorf("unexpected ')'")
	case '"':
		p.pos++
		start := p.pos
		for p.pos < len(p.src) && p.src[p.pos] != '"' {
			if p.src[p.pos] == '\n' {
				p.line++
			}
			p.pos++
		}
		if p.pos >= len(p.src) {
			return Expr{}, p.errorf("unterminated string")
		}
		e.Kind = String
		e.Str = string(p.src[start:p.pos])
		p.pos++
		return e, nil
	}
	start := p.pos
	for p.pos < len(p.src) && !isDelim(p.src[p.pos]) {
		p.pos++
	}
	tok := string(p.src[start:p.pos])
	if i, err := strconv.ParseInt(tok, 10, 64); err == nil {
		e.Kind, e.Int, e.Float = Int, i, float64(i)
		return e, nil
	}
	if f, err := strconv.ParseFloat(tok, 64); err == nil {
		e.Kind, e.Float = Float, f
		return e, nil
	}
	e.Kind, e.Str = Ident, tok
	return e, nil
}

// ParseExpr parses exactly one expression from src.
func ParseExpr(src []byte) (Expr, error) {
	p := &parser{src: src, line: 1}
	e, err := p.parseExpr(0)
	if err != nil {
		return Expr{}, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return Expr{}, p.errorf("trailing data after expression")
	}
	return e, nil
}

// Walk calls fn for every list whose first element is an identifier, with
// that identifier and the remaining elements, depth first.
func Walk(e Expr, fn func(key string, args []Expr) error) error {
	if e.Kind != List {
		return nil
	}
	if len(e.List) > 0 && e.List[0].Kind == Ident {
		if err := fn(e.List[0].Str, e.List[1:]); err != nil {
			return err
		}
	}
	for _, sub := range e.List {
		if err := Walk(sub, fn); err != nil {
			return err
		}
	}
	return nil
}
