package verifier

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"
)

var ErrUntranslatable = errors.New("statement cannot be translated to SMT-LIB")

// ToSMTLIB turns a statement into an SMT-LIB script whose check-sat answers
// "unsat" exactly when the statement is valid.
//
// Three input forms are accepted:
//   - a full SMT-LIB script containing (check-sat), passed through unchanged
//   - a single SMT-LIB boolean term such as (= (+ 2 2) 4)
//   - infix integer arithmetic such as "2+2=4" or "forall x. x*0 = 0",
//     with && || ! => and the usual comparison operators
//
// Free variables of the infix form are integer constants. A leading forall
// only names them; validity of the body over all values is what is checked.
func ToSMTLIB(statement string) (string, error) {
	s := strings.TrimSpace(statement)
	if s == "" {
		return "", fmt.Errorf("%w: empty statement", ErrUntranslatable)
	}
	switch rawForm(s) {
	case rawScript:
		return s + "\n", nil
	case rawTerm:
		return "(assert (not " + s + "))\n(check-sat)\n(get-model)\n", nil
	}

	toks, err := tokenize(s)
	if err != nil {
		return "", err
	}
	p := &infixParser{toks: toks, vars: make(map[string]bool)}
	p.skipQuantifier()
	term, isBool, err := p.parseImplies()
	if err != nil {
		return "", err
	}
	if p.pos < len(p.toks) {
		return "", fmt.Errorf("%w: unexpected %q", ErrUntranslatable, p.toks[p.pos])
	}
	if !isBool {
		return "", fmt.Errorf("%w: %q is not a proposition", ErrUntranslatable, s)
	}

	names := make([]string, 0, len(p.vars))
	for v := range p.vars {
		names = append(names, v)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, v := range names {
		fmt.Fprintf(&b, "(declare-const %s Int)\n", v)
	}
	fmt.Fprintf(&b, "(assert (not %s))\n(check-sat)\n(get-model)\n", term)
	return b.String(), nil
}

type smtForm int

const (
	infixForm smtForm = iota
	rawScript
	rawTerm
)

// smtHeads are the symbols that may open an s-expression we pass through.
var smtHeads = map[string]bool{
	"=": true, "+": true, "-": true, "*": true, "/": true, "<": true, "<=": true,
	">": true, ">=": true, "=>": true, "div": true, "mod": true, "abs": true,
	"and": true, "or": true, "not": true, "xor": true, "ite": true, "distinct": true,
	"let": true, "forall": true, "exists": true,
	"assert": true, "check-sat": true, "get-model": true, "push": true, "pop": true,
}

var smtCommandPrefixes = []string{"declare-", "define-", "set-", "get-"}

// rawForm decides whether s is already SMT-LIB. It must have balanced
// parentheses and open with a known head; a bare term must also be a single
// s-expression. Everything else goes through the infix parser.
func rawForm(s string) smtForm {
	if !strings.HasPrefix(s, "(") {
		return infixForm
	}
	depth, firstClose := 0, -1
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return infixForm
			}
			if depth == 0 && firstClose < 0 {
				firstClose = i
			}
		}
	}
	if depth != 0 {
		return infixForm
	}

	head := strings.TrimLeftFunc(s[1:], unicode.IsSpace)
	if end := strings.IndexFunc(head, func(r rune) bool { return unicode.IsSpace(r) || r == '(' || r == ')' }); end >= 0 {
		head = head[:end]
	}
	command := false
	for _, prefix := range smtCommandPrefixes {
		if strings.HasPrefix(head, prefix) {
			command = true
		}
	}

	switch {
	case strings.Contains(s, "(check-sat)") && (command || smtHeads[head]):
		return rawScript
	case smtHeads[head] && firstClose == len(s)-1:
		return rawTerm
	}
	return infixForm
}

var multiCharOps = []string{"<=>", "=>", "->", "&&", "||", "==", "!=", "<=", ">="}

func tokenize(s string) ([]string, error) {
	var toks []string
	rs := []rune(s)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case unicode.IsDigit(r):
			j := i
			for j < len(rs) && unicode.IsDigit(rs[j]) {
				j++
			}
			toks = append(toks, string(rs[i:j]))
			i = j
		case unicode.IsLetter(r) || r == '_':
			j := i
			for j < len(rs) && (unicode.IsLetter(rs[j]) || unicode.IsDigit(rs[j]) || rs[j] == '_') {
				j++
			}
			toks = append(toks, string(rs[i:j]))
			i = j
		default:
			matched := false
			for _, op := range multiCharOps {
				if strings.HasPrefix(string(rs[i:]), op) {
					toks = append(toks, op)
					i += len([]rune(op))
					matched = true
					break
				}
			}
			if matched {
				continue
			}
			if !strings.ContainsRune("+-*/%()=<>!.,", r) {
				return nil, fmt.Errorf("%w: unexpected character %q", ErrUntranslatable, r)
			}
			toks = append(toks, string(r))
			i++
		}
	}
	return toks, nil
}

type infixParser struct {
	toks []string
	pos  int
	vars map[string]bool
}

func (p *infixParser) peek() string {
	if p.pos < len(p.toks) {
		return p.toks[p.pos]
	}
	return ""
}

func (p *infixParser) next() string {
	t := p.peek()
	p.pos++
	return t
}

// skipQuantifier consumes "forall x, y." or "forall x y:" prefixes.
func (p *infixParser) skipQuantifier() {
	if !strings.EqualFold(p.peek(), "forall") {
		return
	}
	start := p.pos
	p.pos++
	for p.pos < len(p.toks) {
		switch t := p.peek(); {
		case t == ".":
			p.pos++
			return
		case t == ",":
			p.pos++
		case isIdent(t):
			p.pos++
		default:
			p.pos = start
			return
		}
	}
	p.pos = start
}

func (p *infixParser) parseImplies() (string, bool, error) {
	lhs, lb, err := p.parseOr()
	if err != nil {
		return "", false, err
	}
	switch op := p.peek(); op {
	case "=>", "->", "<=>":
		p.pos++
		rhs, rb, err := p.parseImplies()
		if err != nil {
			return "", false, err
		}
		if !lb || !rb {
			return "", false, fmt.Errorf("%w: %s needs propositions", ErrUntranslatable, op)
		}
		if op == "<=>" {
			return "(= " + lhs + " " + rhs + ")", true, nil
		}
		return "(=> " + lhs + " " + rhs + ")", true, nil
	}
	return lhs, lb, nil
}

func (p *infixParser) parseOr() (string, bool, error) {
	return p.parseLogical(p.parseAnd, "or", "||", "or")
}

func (p *infixParser) parseAnd() (string, bool, error) {
	return p.parseLogical(p.parseNot, "and", "&&", "and")
}

func (p *infixParser) parseLogical(sub func() (string, bool, error), smtOp string, ops ...string) (string, bool, error) {
	first, fb, err := sub()
	if err != nil {
		return "", false, err
	}
	terms := []string{first}
	for matchesAny(p.peek(), ops) {
		p.pos++
		t, tb, err := sub()
		if err != nil {
			return "", false, err
		}
		if !fb || !tb {
			return "", false, fmt.Errorf("%w: %s needs propositions", ErrUntranslatable, smtOp)
		}
		terms = append(terms, t)
	}
	if len(terms) == 1 {
		return first, fb, nil
	}
	return "(" + smtOp + " " + strings.Join(terms, " ") + ")", true, nil
}

func (p *infixParser) parseNot() (string, bool, error) {
	if t := p.peek(); t == "!" || t == "not" {
		p.pos++
		inner, b, err := p.parseNot()
		if err != nil {
			return "", false, err
		}
		if !b {
			return "", false, fmt.Errorf("%w: negation needs a proposition", ErrUntranslatable)
		}
		return "(not " + inner + ")", true, nil
	}
	return p.parseCompare()
}

func (p *infixParser) parseCompare() (string, bool, error) {
	lhs, lb, err := p.parseSum()
	if err != nil {
		return "", false, err
	}
	op := p.peek()
	switch op {
	case "=", "==", "!=", "<", "<=", ">", ">=":
	default:
		return lhs, lb, nil
	}
	p.pos++
	rhs, rb, err := p.parseSum()
	if err != nil {
		return "", false, err
	}
	if lb != rb {
		return "", false, fmt.Errorf("%w: cannot compare a proposition with a number", ErrUntranslatable)
	}
	if lb && op != "=" && op != "==" && op != "!=" {
		return "", false, fmt.Errorf("%w: %s needs numbers", ErrUntranslatable, op)
	}
	switch op {
	case "=", "==":
		return "(= " + lhs + " " + rhs + ")", true, nil
	case "!=":
		return "(not (= " + lhs + " " + rhs + "))", true, nil
	}
	return "(" + op + " " + lhs + " " + rhs + ")", true, nil
}

func (p *infixParser) parseSum() (string, bool, error) {
	return p.parseArith(p.parseProduct, map[string]string{"+": "+", "-": "-"})
}

func (p *infixParser) parseProduct() (string, bool, error) {
	return p.parseArith(p.parseUnary, map[string]string{"*": "*", "/": "div", "%": "mod"})
}

func (p *infixParser) parseArith(sub func() (string, bool, error), ops map[string]string) (string, bool, error) {
	lhs, lb, err := sub()
	if err != nil {
		return "", false, err
	}
	for {
		smtOp, ok := ops[p.peek()]
		if !ok {
			return lhs, lb, nil
		}
		tok := p.next()
		rhs, rb, err := sub()
		if err != nil {
			return "", false, err
		}
		if lb || rb {
			return "", false, fmt.Errorf("%w: %s needs numbers", ErrUntranslatable, tok)
		}
		lhs = "(" + smtOp + " " + lhs + " " + rhs + ")"
	}
}

func (p *infixParser) parseUnary() (string, bool, error) {
	if p.peek() == "-" {
		p.pos++
		inner, b, err := p.parseUnary()
		if err != nil {
			return "", false, err
		}
		if b {
			return "", false, fmt.Errorf("%w: cannot negate a proposition arithmetically", ErrUntranslatable)
		}
		return "(- " + inner + ")", false, nil
	}
	return p.parseAtom()
}

func (p *infixParser) parseAtom() (string, bool, error) {
	t := p.next()
	switch {
	case t == "":
		return "", false, fmt.Errorf("%w: unexpected end of statement", ErrUntranslatable)
	case t == "(":
		inner, b, err := p.parseImplies()
		if err != nil {
			return "", false, err
		}
		if p.next() != ")" {
			return "", false, fmt.Errorf("%w: missing )", ErrUntranslatable)
		}
		return inner, b, nil
	case t == "true" || t == "false":
		return t, true, nil
	case unicode.IsDigit([]rune(t)[0]):
		return t, false, nil
	case isIdent(t) && !isKeyword(t):
		p.vars[t] = true
		return t, false, nil
	}
	return "", false, fmt.Errorf("%w: unexpected %q", ErrUntranslatable, t)
}

func isIdent(t string) bool {
	if t == "" {
		return false
	}
	r := []rune(t)[0]
	return unicode.IsLetter(r) || r == '_'
}

func isKeyword(t string) bool {
	switch t {
	case "and", "or", "not", "forall", "true", "false":
		return true
	}
	return false
}

func matchesAny(t string, ops []string) bool {
	for _, op := range ops {
		if t == op {
			return true
		}
	}
	return false
}
