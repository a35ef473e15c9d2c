package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// SyntaxError reports a malformed line in a config file.
type SyntaxError struct {
	File string
	Line int
	Msg  string
	Err  error
}

func (e *SyntaxError) Error() string {
	file := e.File
	if file == "" {
		file = "<string>"
	}
	return fmt.Sprintf("%s:%d: %s", file, e.Line, e.Msg)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

// ErrIncludeCycle is wrapped by the SyntaxError returned for recursive includes.
var ErrIncludeCycle = errors.New("include cycle")

// logicalLine is one key/header/directive after continuation lines have been folded in.
type logicalLine struct {
	text string
	line int
}

// Parse reads a config from r. name is used for diagnostics and as the
// base for relative %include paths; when empty, includes resolve against
// the working directory.
func Parse(r io.Reader, name string) (*Config, error) {
	p := &parser{}
	if name != "" {
		if abs, err := filepath.Abs(name); err == nil {
			p.stack = append(p.stack, abs)
		}
	}
	return p.parse(r, name)
}

// ParseString parses a config held in memory.
func ParseString(s string) (*Config, error) {
	return Parse(strings.NewReader(s), "")
}

// ReadFile reads and parses a single config file.
func ReadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f, path)
}

// Read parses every path in order and merges them; later files override
// earlier ones. The returned config carries the last path.
func Read(paths ...string) (*Config, error) {
	out := New()
	for _, path := range paths {
		cfg, err := ReadFile(path)
		if err != nil {
			return nil, err
		}
		out.Merge(cfg)
		out.Path = cfg.Path
	}
	return out, nil
}

type parser struct {
	// stack holds the absolute paths of the files currently being read,
	// outermost first, for include cycle detection.
	stack []string
}

func (p *parser) parse(r io.Reader, name string) (*Config, error) {
	lines, err := foldLines(r, name)
	if err != nil {
		return nil, err
	}

	root := New()
	root.Path = name
	current := root

	for _, ll := range lines {
		text := ll.text
		switch {
		case strings.HasPrefix(text, "%include"):
			target := strings.TrimSpace(strings.TrimPrefix(text, "%include"))
			target = unquote(stripInlineComment(target))
			if target == "" {
				return nil, &SyntaxError{File: name, Line: ll.line, Msg: "%include requires a path"}
			}
			included, err := p.include(name, ll.line, target)
			if err != nil {
				return nil, err
			}
			// Keys outside of a section in the included file land in the
			// section that is open at the include site.
			for _, k := range included.keys {
				v := included.values[k]
				if sec, ok := v.(*Config); ok {
					root.EnsureSection(k).Merge(sec)
					continue
				}
				current.Set(k, v)
			}

		case strings.HasPrefix(text, "["):
			end := strings.Index(text, "]")
			if end < 0 {
				return nil, &SyntaxError{File: name, Line: ll.line, Msg: "unterminated section header"}
			}
			if rest := strings.TrimSpace(text[end+1:]); rest != "" && !isComment(rest) {
				return nil, &SyntaxError{File: name, Line: ll.line, Msg: "unexpected text after section header"}
			}
			section := NormalizeSection(text[1:end])
			if section == "" {
				return nil, &SyntaxError{File: name, Line: ll.line, Msg: "empty section name"}
			}
			current = root.EnsureSection(section)

		default:
			key, value, err := parseKeyValue(text)
			if err != nil {
				return nil, &SyntaxError{File: name, Line: ll.line, Msg: err.Error()}
			}
			if existing := current.Section(key); existing != nil {
				return nil, &SyntaxError{File: name, Line: ll.line, Msg: fmt.Sprintf("key %q collides with a section", key)}
			}
			current.Set(key, value)
		}
	}
	return root, nil
}

func (p *parser) include(from string, line int, target string) (*Config, error) {
	if !filepath.IsAbs(target) {
		base := "."
		if from != "" {
			base = filepath.Dir(from)
		}
		target = filepath.Join(base, target)
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return nil, &SyntaxError{File: from, Line: line, Msg: err.Error()}
	}
	if slices.Contains(p.stack, abs) {
		return nil, &SyntaxError{File: from, Line: line, Msg: fmt.Sprintf("%v: %s", ErrIncludeCycle, target), Err: ErrIncludeCycle}
	}

	f, err := os.Open(abs)
	if err != nil {
		return nil, &SyntaxError{File: from, Line: line, Msg: fmt.Sprintf("cannot include %s: %v", target, err), Err: err}
	}
	defer f.Close()

	p.stack = append(p.stack, abs)
	defer func() { p.stack = p.stack[:len(p.stack)-1] }()
	return p.parse(f, target)
}

// foldLines drops blank and comment lines and appends indented
// continuation lines to the key line above them, joined by a single space.
func foldLines(r io.Reader, name string) ([]logicalLine, error) {
	var out []logicalLine
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	// continuable is true while the previous logical line is a key/value.
	continuable := false

	for scanner.Scan() {
		lineNo++
		raw := strings.TrimRight(scanner.Text(), "\r")
		trimmed := strings.TrimSpace(raw)

		if trimmed == "" {
			continuable = false
			continue
		}
		if isComment(trimmed) {
			continue
		}

		indented := raw[0] == ' ' || raw[0] == '\t'
		if indented && continuable {
			last := &out[len(out)-1]
			last.text += " " + trimmed
			continue
		}

		out = append(out, logicalLine{text: trimmed, line: lineNo})
		continuable = !strings.HasPrefix(trimmed, "[") && !strings.HasPrefix(trimmed, "%")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return out, nil
}

func isComment(s string) bool {
	return strings.HasPrefix(s, "#") || strings.HasPrefix(s, ";")
}

func parseKeyValue(text string) (string, string, error) {
	idx := strings.IndexByte(text, '=')
	if idx < 0 {
		return "", "", fmt.Errorf("expected 'key = value', got %q", text)
	}
	key := NormalizeKey(text[:idx])
	if key == "" {
		return "", "", errors.New("empty key")
	}
	raw := strings.TrimSpace(text[idx+1:])
	if raw == "" {
		return key, "", nil
	}
	if raw[0] == '"' || raw[0] == '\'' {
		value, rest, err := scanQuoted(raw)
		if err != nil {
			return "", "", err
		}
		rest = strings.TrimSpace(rest)
		if rest != "" && !isComment(rest) {
			// Quoted items followed by more text form a list; keep the raw
			// form so list checks can split it.
			return key, stripInlineComment(raw), nil
		}
		return key, value, nil
	}
	return key, stripInlineComment(raw), nil
}

// scanQuoted reads a quoted string starting at s[0] and returns its
// unescaped contents plus the remainder after the closing quote.
func scanQuoted(s string) (string, string, error) {
	q := s[0]
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(s[i])
			}
		case c == q:
			return b.String(), s[i+1:], nil
		default:
			b.WriteByte(c)
		}
	}
	return "", "", errors.New("unterminated quoted string")
}

// stripInlineComment removes a trailing " # comment" or " ; comment" from a
// bare value. The marker must follow whitespace so values like "a#b" survive.
func stripInlineComment(s string) string {
	inQuote := byte(0)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuote != 0:
			if c == '\\' {
				i++
			} else if c == inQuote {
				inQuote = 0
			}
		case c == '"' || c == '\'':
			inQuote = c
		case (c == '#' || c == ';') && i > 0 && (s[i-1] == ' ' || s[i-1] == '\t'):
			return strings.TrimSpace(s[:i])
		}
	}
	return strings.TrimSpace(s)
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') {
		if v, rest, err := scanQuoted(s); err == nil && strings.TrimSpace(rest) == "" {
			return v
		}
	}
	return s
}
