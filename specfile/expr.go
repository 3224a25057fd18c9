package specfile

import (
	"errors"
	"fmt"
	"strings"
)

// ErrFilterSyntax is returned for any malformed `if="…"` expression (spec
// §4.2(b), error taxonomy §7 FilterSyntaxError).
var ErrFilterSyntax = errors.New("specfile: invalid if expression")

// tokenKind distinguishes the handful of token shapes the grammar needs.
type tokenKind int

const (
	tokWord tokenKind = iota
	tokNot
	tokAnd
	tokOr
	tokLParen
	tokRParen
	tokEOF
)

type token struct {
	kind tokenKind
	text string
}

// tokenize splits expr into the grammar's terminals. WORD matches
// `[a-z][-0-9a-z_]*`; any other character outside whitespace/parens/`!` is
// rejected here with ErrFilterSyntax.
func tokenize(expr string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(expr) {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case c == '!':
			toks = append(toks, token{tokNot, "!"})
			i++
		case isWordStart(c):
			j := i + 1
			for j < len(expr) && isWordRune(expr[j]) {
				j++
			}
			word := expr[i:j]
			switch word {
			case "and":
				toks = append(toks, token{tokAnd, word})
			case "or":
				toks = append(toks, token{tokOr, word})
			default:
				toks = append(toks, token{tokWord, word})
			}
			i = j
		default:
			return nil, fmt.Errorf("%w: unexpected character %q", ErrFilterSyntax, c)
		}
	}
	toks = append(toks, token{tokEOF, ""})
	return toks, nil
}

func isWordStart(c byte) bool { return c >= 'a' && c <= 'z' }
func isWordRune(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

// exprParser implements the recursive-descent grammar from spec §4.2(b).
type exprParser struct {
	toks []token
	pos  int
}

func (p *exprParser) peek() token { return p.toks[p.pos] }
func (p *exprParser) next() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *exprParser) parseOr(terms map[string]bool) (bool, error) {
	v, err := p.parseAnd(terms)
	if err != nil {
		return false, err
	}
	for p.peek().kind == tokOr {
		p.next()
		rhs, err := p.parseAnd(terms)
		if err != nil {
			return false, err
		}
		v = v || rhs
	}
	return v, nil
}

func (p *exprParser) parseAnd(terms map[string]bool) (bool, error) {
	v, err := p.parseUnary(terms)
	if err != nil {
		return false, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		rhs, err := p.parseUnary(terms)
		if err != nil {
			return false, err
		}
		v = v && rhs
	}
	return v, nil
}

func (p *exprParser) parseUnary(terms map[string]bool) (bool, error) {
	if p.peek().kind == tokNot {
		p.next()
		v, err := p.parseUnary(terms)
		if err != nil {
			return false, err
		}
		return !v, nil
	}
	return p.parseAtom(terms)
}

func (p *exprParser) parseAtom(terms map[string]bool) (bool, error) {
	tok := p.next()
	switch tok.kind {
	case tokWord:
		switch tok.text {
		case "true":
			return true, nil
		case "false":
			return false, nil
		default:
			return terms[tok.text], nil
		}
	case tokLParen:
		v, err := p.parseOr(terms)
		if err != nil {
			return false, err
		}
		if p.peek().kind != tokRParen {
			return false, fmt.Errorf("%w: expected ')'", ErrFilterSyntax)
		}
		p.next()
		return v, nil
	default:
		return false, fmt.Errorf("%w: unexpected token %q", ErrFilterSyntax, tok.text)
	}
}

// Eval evaluates an `if="…"` expression against trueTerms. An empty
// expression is always true (spec §4.2(b)).
func Eval(expr string, trueTerms map[string]bool) (bool, error) {
	if strings.TrimSpace(expr) == "" {
		return true, nil
	}

	toks, err := tokenize(expr)
	if err != nil {
		return false, err
	}

	p := &exprParser{toks: toks}
	v, err := p.parseOr(trueTerms)
	if err != nil {
		return false, err
	}
	if p.peek().kind != tokEOF {
		return false, fmt.Errorf("%w: trailing input at %q", ErrFilterSyntax, p.peek().text)
	}
	return v, nil
}
