// Package expr evaluates boolean guard expressions against a run's shared
// variables. Expressions guard edges out of CONDITION nodes and drive LOOP
// continuation checks.
//
// Grammar (precedence low to high):
//
//	or     := and  { "||" and }
//	and    := cmp  { "&&" cmp }
//	cmp    := unary [ ("=="|"!="|">"|"<"|">="|"<=") unary ]
//	unary  := "!" unary | primary
//	primary:= number | string | true | false | ident | "(" or ")"
//
// Identifiers resolve against the variable map with dot-path traversal, so
// "result.score" reads vars["result"].(map[string]any)["score"]. Unknown
// variables resolve to nil, which compares as less than every non-nil value
// and is falsy.
package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Evaluate parses and evaluates expression src against vars and returns the
// truthiness of the result. An empty expression evaluates to false.
func Evaluate(src string, vars map[string]any) (bool, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return false, nil
	}

	toks, err := scan(src)
	if err != nil {
		return false, err
	}

	p := parser{toks: toks, vars: vars}
	v, err := p.or()
	if err != nil {
		return false, err
	}
	if p.pos != len(p.toks) {
		return false, fmt.Errorf("expr: trailing token %q", p.toks[p.pos].text)
	}
	return truthy(v), nil
}

// Lookup resolves a dot-separated path against vars. It returns nil when any
// segment is missing or a non-map value is traversed into.
func Lookup(path string, vars map[string]any) any {
	cur := any(vars)
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		if cur, ok = m[seg]; !ok {
			return nil
		}
	}
	return cur
}

type kind int

const (
	kindNum kind = iota
	kindStr
	kindIdent
	kindOp
	kindLParen
	kindRParen
)

type tok struct {
	kind kind
	text string
}

func scan(src string) ([]tok, error) {
	var out []tok
	rs := []rune(src)
	for i := 0; i < len(rs); {
		c := rs[i]
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '(':
			out = append(out, tok{kindLParen, "("})
			i++
		case c == ')':
			out = append(out, tok{kindRParen, ")"})
			i++
		case c == '"':
			s, next, err := scanString(rs, i)
			if err != nil {
				return nil, err
			}
			out = append(out, tok{kindStr, s})
			i = next
		case isTwoCharOp(rs, i):
			out = append(out, tok{kindOp, string(rs[i : i+2])})
			i += 2
		case c == '>' || c == '<' || c == '!':
			out = append(out, tok{kindOp, string(c)})
			i++
		case isDigit(c) || (c == '-' && i+1 < len(rs) && isDigit(rs[i+1]) && negAllowed(out)):
			s, next := scanNumber(rs, i)
			out = append(out, tok{kindNum, s})
			i = next
		case unicode.IsLetter(c) || c == '_':
			s, next := scanIdent(rs, i)
			out = append(out, tok{kindIdent, s})
			i = next
		default:
			return nil, fmt.Errorf("expr: unexpected character %q at offset %d", string(c), i)
		}
	}
	return out, nil
}

func isTwoCharOp(rs []rune, i int) bool {
	if i+1 >= len(rs) {
		return false
	}
	switch string(rs[i : i+2]) {
	case "==", "!=", ">=", "<=", "&&", "||":
		return true
	}
	return false
}

func scanString(rs []rune, start int) (string, int, error) {
	var b strings.Builder
	for i := start + 1; i < len(rs); i++ {
		switch rs[i] {
		case '\\':
			if i+1 < len(rs) {
				i++
				b.WriteRune(rs[i])
			}
		case '"':
			return b.String(), i + 1, nil
		default:
			b.WriteRune(rs[i])
		}
	}
	return "", 0, fmt.Errorf("expr: unterminated string at offset %d", start)
}

func scanNumber(rs []rune, start int) (string, int) {
	i := start
	if rs[i] == '-' {
		i++
	}
	for i < len(rs) && isDigit(rs[i]) {
		i++
	}
	if i < len(rs) && rs[i] == '.' {
		i++
		for i < len(rs) && isDigit(rs[i]) {
			i++
		}
	}
	return string(rs[start:i]), i
}

func scanIdent(rs []rune, start int) (string, int) {
	i := start
	for i < len(rs) && (unicode.IsLetter(rs[i]) || isDigit(rs[i]) || rs[i] == '_' || rs[i] == '.') {
		i++
	}
	return string(rs[start:i]), i
}

func isDigit(c rune) bool { return c >= '0' && c <= '9' }

// negAllowed reports whether a '-' at the current position starts a negative
// literal; true at expression start, after an operator, or after "(".
func negAllowed(prev []tok) bool {
	if len(prev) == 0 {
		return true
	}
	last := prev[len(prev)-1]
	return last.kind == kindOp || last.kind == kindLParen
}

type parser struct {
	toks []tok
	pos  int
	vars map[string]any
}

func (p *parser) peek() *tok {
	if p.pos < len(p.toks) {
		return &p.toks[p.pos]
	}
	return nil
}

func (p *parser) next() tok {
	t := p.toks[p.pos]
	p.pos++
	return t
}

func (p *parser) or() (any, error) {
	left, err := p.and()
	if err != nil {
		return nil, err
	}
	for t := p.peek(); t != nil && t.kind == kindOp && t.text == "||"; t = p.peek() {
		p.next()
		right, err := p.and()
		if err != nil {
			return nil, err
		}
		left = truthy(left) || truthy(right)
	}
	return left, nil
}

func (p *parser) and() (any, error) {
	left, err := p.cmp()
	if err != nil {
		return nil, err
	}
	for t := p.peek(); t != nil && t.kind == kindOp && t.text == "&&"; t = p.peek() {
		p.next()
		right, err := p.cmp()
		if err != nil {
			return nil, err
		}
		left = truthy(left) && truthy(right)
	}
	return left, nil
}

func (p *parser) cmp() (any, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t != nil && t.kind == kindOp {
		switch t.text {
		case "==", "!=", ">", "<", ">=", "<=":
			op := p.next().text
			right, err := p.unary()
			if err != nil {
				return nil, err
			}
			return compare(left, op, right), nil
		}
	}
	return left, nil
}

func (p *parser) unary() (any, error) {
	if t := p.peek(); t != nil && t.kind == kindOp && t.text == "!" {
		p.next()
		v, err := p.unary()
		if err != nil {
			return nil, err
		}
		return !truthy(v), nil
	}
	return p.primary()
}

func (p *parser) primary() (any, error) {
	t := p.peek()
	if t == nil {
		return nil, fmt.Errorf("expr: unexpected end of expression")
	}
	switch t.kind {
	case kindNum:
		p.next()
		return strconv.ParseFloat(t.text, 64)
	case kindStr:
		p.next()
		return t.text, nil
	case kindIdent:
		p.next()
		switch t.text {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return Lookup(t.text, p.vars), nil
	case kindLParen:
		p.next()
		v, err := p.or()
		if err != nil {
			return nil, err
		}
		if t := p.peek(); t == nil || t.kind != kindRParen {
			return nil, fmt.Errorf("expr: missing closing parenthesis")
		}
		p.next()
		return v, nil
	}
	return nil, fmt.Errorf("expr: unexpected token %q", t.text)
}

// compare evaluates left op right. Values that both convert to numbers are
// compared numerically, otherwise the comparison falls back to the string
// forms. nil orders below every non-nil value.
func compare(left any, op string, right any) bool {
	if left == nil && right == nil {
		return op == "==" || op == ">=" || op == "<="
	}
	if left == nil || right == nil {
		switch op {
		case "!=":
			return true
		case "==":
			return false
		}
		if left == nil {
			return op == "<" || op == "<="
		}
		return op == ">" || op == ">="
	}

	if lf, lok := number(left); lok {
		if rf, rok := number(right); rok {
			return ordered(lf, op, rf)
		}
	}
	return ordered(fmt.Sprintf("%v", left), op, fmt.Sprintf("%v", right))
}

func ordered[T float64 | string](l T, op string, r T) bool {
	switch op {
	case "==":
		return l == r
	case "!=":
		return l != r
	case ">":
		return l > r
	case "<":
		return l < r
	case ">=":
		return l >= r
	case "<=":
		return l <= r
	}
	return false
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0
	case int:
		return val != 0
	case string:
		return val != "" && val != "false" && val != "0"
	default:
		return true
	}
}

func number(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	}
	return 0, false
}
