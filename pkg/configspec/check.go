package configspec

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Check is a parsed check expression such as
// `integer(min=0, default=1)`. The reserved kwargs default and aliasof are
// lifted out of Kwargs.
type Check struct {
	Name       string
	Args       []any
	Kwargs     map[string]any
	Default    any
	HasDefault bool
	AliasOf    string
}

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokString
	tokFloat
	tokInt
	tokPunct
	tokEOF
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// The alternation order matters: floats must be tried before ints.
var tokenPattern = regexp.MustCompile(`^(?:` +
	`(\s+)` +
	`|("(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*')` +
	`|([-+]?(?:\d+\.\d*|\.\d+)(?:[eE][-+]?\d+)?)` +
	`|([-+]?\d+)` +
	`|([A-Za-z_][A-Za-z0-9_\-.:/]*)` +
	`|([(),=])` +
	`)`)

func tokenize(expr string) ([]token, error) {
	var out []token
	pos := 0
	for pos < len(expr) {
		m := tokenPattern.FindStringSubmatchIndex(expr[pos:])
		if m == nil {
			return nil, fmt.Errorf("unexpected character %q at offset %d", expr[pos], pos)
		}
		text := expr[pos : pos+m[1]]
		switch {
		case m[2] >= 0:
			// whitespace
		case m[4] >= 0:
			out = append(out, token{kind: tokString, text: text, pos: pos})
		case m[6] >= 0:
			out = append(out, token{kind: tokFloat, text: text, pos: pos})
		case m[8] >= 0:
			out = append(out, token{kind: tokInt, text: text, pos: pos})
		case m[10] >= 0:
			out = append(out, token{kind: tokIdent, text: text, pos: pos})
		case m[12] >= 0:
			out = append(out, token{kind: tokPunct, text: text, pos: pos})
		}
		pos += m[1]
	}
	out = append(out, token{kind: tokEOF, pos: len(expr)})
	return out, nil
}

type checkParser struct {
	expr   string
	tokens []token
	i      int
}

// ParseCheck parses a single check expression.
func ParseCheck(expr string) (*Check, error) {
	tokens, err := tokenize(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid check %q: %w", expr, err)
	}
	p := &checkParser{expr: expr, tokens: tokens}
	check, err := p.check()
	if err != nil {
		return nil, fmt.Errorf("invalid check %q: %w", expr, err)
	}
	return check, nil
}

func (p *checkParser) peek() token { return p.tokens[p.i] }

func (p *checkParser) next() token {
	t := p.tokens[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *checkParser) isPunct(s string) bool {
	t := p.peek()
	return t.kind == tokPunct && t.text == s
}

func (p *checkParser) expectPunct(s string) error {
	t := p.next()
	if t.kind != tokPunct || t.text != s {
		return fmt.Errorf("expected %q at offset %d", s, t.pos)
	}
	return nil
}

func (p *checkParser) check() (*Check, error) {
	name := p.next()
	if name.kind != tokIdent {
		return nil, fmt.Errorf("expected check name at offset %d", name.pos)
	}
	c := &Check{Name: name.text, Kwargs: map[string]any{}}

	if p.isPunct("(") {
		p.next()
		args, kwargs, err := p.argList()
		if err != nil {
			return nil, err
		}
		c.Args = args
		c.Kwargs = kwargs
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q at offset %d", t.text, t.pos)
	}

	if v, ok := c.Kwargs["default"]; ok {
		c.Default = v
		c.HasDefault = true
		delete(c.Kwargs, "default")
	}
	if v, ok := c.Kwargs["aliasof"]; ok {
		s, isString := v.(string)
		if !isString || s == "" {
			return nil, fmt.Errorf("aliasof must name a key")
		}
		c.AliasOf = s
		delete(c.Kwargs, "aliasof")
	}
	return c, nil
}

// argList parses up to and including the closing parenthesis.
func (p *checkParser) argList() ([]any, map[string]any, error) {
	args := []any{}
	kwargs := map[string]any{}
	if p.isPunct(")") {
		p.next()
		return args, kwargs, nil
	}
	for {
		t := p.peek()
		after := p.tokens[min(p.i+1, len(p.tokens)-1)]
		if t.kind == tokIdent && after.kind == tokPunct && after.text == "=" {
			p.next()
			p.next()
			v, err := p.value()
			if err != nil {
				return nil, nil, err
			}
			kwargs[t.text] = v
		} else {
			if len(kwargs) > 0 {
				return nil, nil, fmt.Errorf("positional argument after keyword argument at offset %d", t.pos)
			}
			v, err := p.value()
			if err != nil {
				return nil, nil, err
			}
			args = append(args, v)
		}

		if p.isPunct(",") {
			p.next()
			if p.isPunct(")") {
				p.next()
				return args, kwargs, nil
			}
			continue
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, nil, err
		}
		return args, kwargs, nil
	}
}

func (p *checkParser) value() (any, error) {
	t := p.next()
	switch t.kind {
	case tokString:
		return unescape(t.text[1 : len(t.text)-1]), nil
	case tokInt:
		n, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad integer %q: %w", t.text, err)
		}
		return n, nil
	case tokFloat:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("bad float %q: %w", t.text, err)
		}
		return f, nil
	case tokIdent:
		switch t.text {
		case "None":
			return nil, nil
		case "True":
			return true, nil
		case "False":
			return false, nil
		case "list":
			if p.isPunct("(") {
				p.next()
				args, kwargs, err := p.argList()
				if err != nil {
					return nil, err
				}
				if len(kwargs) > 0 {
					return nil, fmt.Errorf("list() takes no keyword arguments")
				}
				return args, nil
			}
		}
		return t.text, nil
	case tokEOF:
		return nil, fmt.Errorf("unexpected end of expression")
	}
	return nil, fmt.Errorf("unexpected %q at offset %d", t.text, t.pos)
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(s[i])
			}
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
