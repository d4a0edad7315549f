package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/chatrelay/plugin/ai"
)

const maxExpressionDepth = 64

// Calculator evaluates arithmetic over numbers, + - * / and parentheses.
type Calculator struct{}

func (Calculator) Definition() ai.ToolDefinition {
	return ai.ToolDefinition{
		Name:        "calculate",
		Description: "Perform mathematical calculations",
		Parameters: objectSchema(map[string]string{
			"expression": "The mathematical expression to evaluate",
		}, "expression"),
	}
}

func (Calculator) Run(_ context.Context, args map[string]any) (string, error) {
	expression := stringArg(args, "expression")
	result, err := Evaluate(expression)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Calculation: %s = %s", expression, strconv.FormatFloat(result, 'f', -1, 64)), nil
}

func (Calculator) FormatError(args map[string]any, err error) string {
	return fmt.Sprintf("Error calculating '%s': %v", stringArg(args, "expression"), err)
}

// Evaluate parses and evaluates an arithmetic expression. Only digits, the
// operators + - * /, parentheses, the decimal point and whitespace are accepted.
func Evaluate(expression string) (float64, error) {
	for _, r := range expression {
		if !isExpressionRune(r) {
			return 0, errors.Errorf("invalid character %q in expression", r)
		}
	}
	if strings.TrimSpace(expression) == "" {
		return 0, errors.New("empty expression")
	}

	p := &exprParser{input: expression}
	value, err := p.parseExpr(0)
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos < len(p.input) {
		return 0, errors.Errorf("unexpected %q at position %d", p.input[p.pos], p.pos)
	}
	return value, nil
}

func isExpressionRune(r rune) bool {
	switch {
	case r >= '0' && r <= '9':
		return true
	case strings.ContainsRune("+-*/().", r):
		return true
	case r == ' ' || r == '\t' || r == '\n' || r == '\r':
		return true
	}
	return false
}

// exprParser is a recursive-descent parser:
//
//	expr   = term { ("+" | "-") term }
//	term   = factor { ("*" | "/") factor }
//	factor = ("+" | "-") factor | number | "(" expr ")"
type exprParser struct {
	input string
	pos   int
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.input) && strings.IndexByte(" \t\n\r", p.input[p.pos]) >= 0 {
		p.pos++
	}
}

func (p *exprParser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *exprParser) parseExpr(depth int) (float64, error) {
	left, err := p.parseTerm(depth)
	if err != nil {
		return 0, err
	}
	for {
		op := p.peek()
		if op != '+' && op != '-' {
			return left, nil
		}
		p.pos++
		right, err := p.parseTerm(depth)
		if err != nil {
			return 0, err
		}
		if op == '+' {
			left += right
		} else {
			left -= right
		}
	}
}

func (p *exprParser) parseTerm(depth int) (float64, error) {
	left, err := p.parseFactor(depth)
	if err != nil {
		return 0, err
	}
	for {
		op := p.peek()
		if op != '*' && op != '/' {
			return left, nil
		}
		p.pos++
		right, err := p.parseFactor(depth)
		if err != nil {
			return 0, err
		}
		if op == '*' {
			left *= right
			continue
		}
		if right == 0 {
			return 0, errors.New("division by zero")
		}
		left /= right
	}
}

func (p *exprParser) parseFactor(depth int) (float64, error) {
	if depth > maxExpressionDepth {
		return 0, errors.New("expression nested too deeply")
	}

	switch c := p.peek(); {
	case c == '+' || c == '-':
		p.pos++
		value, err := p.parseFactor(depth + 1)
		if err != nil {
			return 0, err
		}
		if c == '-' {
			value = -value
		}
		return value, nil
	case c == '(':
		p.pos++
		value, err := p.parseExpr(depth + 1)
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, errors.New("missing closing parenthesis")
		}
		p.pos++
		return value, nil
	case c == '.' || (c >= '0' && c <= '9'):
		return p.parseNumber()
	case c == 0:
		return 0, errors.New("unexpected end of expression")
	default:
		return 0, errors.Errorf("unexpected %q at position %d", c, p.pos)
	}
}

func (p *exprParser) parseNumber() (float64, error) {
	start := p.pos
	for p.pos < len(p.input) && (p.input[p.pos] == '.' || (p.input[p.pos] >= '0' && p.input[p.pos] <= '9')) {
		p.pos++
	}
	literal := p.input[start:p.pos]
	value, err := strconv.ParseFloat(literal, 64)
	if err != nil {
		return 0, errors.Errorf("invalid number %q", literal)
	}
	return value, nil
}
