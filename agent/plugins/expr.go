package plugins

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	ErrInvalidExpression = errors.New("invalid expression")
	ErrDivisionByZero    = errors.New("division by zero")
)

// Digits, whitespace, decimal points, operators and parentheses only.
var expressionPattern = regexp.MustCompile(`^[\d\s\+\-\*/%\^\(\)\.]+$`)

// Evaluate computes an arithmetic expression with + - * / % ^, unary signs
// and parentheses. ^ is right associative and binds tighter than * / %.
func Evaluate(expression string) (float64, error) {
	expression = strings.TrimSpace(expression)
	if err := checkExpression(expression); err != nil {
		return 0, err
	}

	p := &exprParser{input: expression}
	value, err := p.parseBinary(0)
	if err != nil {
		return 0, err
	}
	p.skipSpaces()
	if p.hasNext() {
		return 0, fmt.Errorf("%w: unexpected %q at position %d", ErrInvalidExpression, p.peek(), p.pos)
	}
	if math.IsInf(value, 0) || math.IsNaN(value) {
		return 0, fmt.Errorf("%w: result is not a finite number", ErrInvalidExpression)
	}
	return value, nil
}

// FormatNumber renders v without a trailing ".0" for whole numbers.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func checkExpression(expression string) error {
	if expression == "" {
		return fmt.Errorf("%w: expression is empty", ErrInvalidExpression)
	}
	if !expressionPattern.MatchString(expression) {
		return fmt.Errorf("%w: expression contains invalid characters", ErrInvalidExpression)
	}

	depth := 0
	for _, ch := range expression {
		switch ch {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return fmt.Errorf("%w: unbalanced parentheses", ErrInvalidExpression)
			}
		}
	}
	if depth != 0 {
		return fmt.Errorf("%w: unbalanced parentheses", ErrInvalidExpression)
	}
	return nil
}

type binaryOp struct {
	prec       int
	rightAssoc bool
	apply      func(a, b float64) (float64, error)
}

var binaryOps = map[byte]binaryOp{
	'+': {prec: 1, apply: func(a, b float64) (float64, error) { return a + b, nil }},
	'-': {prec: 1, apply: func(a, b float64) (float64, error) { return a - b, nil }},
	'*': {prec: 2, apply: func(a, b float64) (float64, error) { return a * b, nil }},
	'/': {prec: 2, apply: func(a, b float64) (float64, error) {
		if b == 0 {
			return 0, ErrDivisionByZero
		}
		return a / b, nil
	}},
	'%': {prec: 2, apply: func(a, b float64) (float64, error) {
		if b == 0 {
			return 0, fmt.Errorf("%w: modulo", ErrDivisionByZero)
		}
		return math.Mod(a, b), nil
	}},
	'^': {prec: 3, rightAssoc: true, apply: func(a, b float64) (float64, error) { return math.Pow(a, b), nil }},
}

type exprParser struct {
	input string
	pos   int
}

// parseBinary is a precedence climber over binaryOps.
func (p *exprParser) parseBinary(minPrec int) (float64, error) {
	left, err := p.parseUnary()
	if err != nil {
		return 0, err
	}

	for {
		p.skipSpaces()
		if !p.hasNext() {
			return left, nil
		}
		op, ok := binaryOps[p.peek()]
		if !ok || op.prec < minPrec {
			return left, nil
		}
		p.pos++

		next := op.prec + 1
		if op.rightAssoc {
			next = op.prec
		}
		right, err := p.parseBinary(next)
		if err != nil {
			return 0, err
		}
		if left, err = op.apply(left, right); err != nil {
			return 0, err
		}
	}
}

func (p *exprParser) parseUnary() (float64, error) {
	p.skipSpaces()
	switch {
	case p.match('+'):
		return p.parseUnary()
	case p.match('-'):
		value, err := p.parseUnary()
		return -value, err
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() (float64, error) {
	p.skipSpaces()
	if !p.match('(') {
		return p.parseNumber()
	}
	value, err := p.parseBinary(0)
	if err != nil {
		return 0, err
	}
	p.skipSpaces()
	if !p.match(')') {
		return 0, fmt.Errorf("%w: missing closing parenthesis at position %d", ErrInvalidExpression, p.pos)
	}
	return value, nil
}

func (p *exprParser) parseNumber() (float64, error) {
	start := p.pos
	for p.hasNext() && (p.peek() == '.' || (p.peek() >= '0' && p.peek() <= '9')) {
		p.pos++
	}
	raw := p.input[start:p.pos]
	if raw == "" {
		return 0, fmt.Errorf("%w: expected number at position %d", ErrInvalidExpression, start)
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad number %q", ErrInvalidExpression, raw)
	}
	return value, nil
}

func (p *exprParser) skipSpaces() {
	for p.hasNext() && (p.peek() == ' ' || p.peek() == '\t') {
		p.pos++
	}
}

func (p *exprParser) hasNext() bool {
	return p.pos < len(p.input)
}

func (p *exprParser) peek() byte {
	return p.input[p.pos]
}

func (p *exprParser) match(expected byte) bool {
	if p.hasNext() && p.peek() == expected {
		p.pos++
		return true
	}
	return false
}
