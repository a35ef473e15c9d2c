package configspec

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/kballard/go-shellquote"

	"github.com/paulschiretz/holland/pkg/config"
	"github.com/paulschiretz/holland/pkg/plog"
)

// CheckFunc validates and coerces a single value. value is either a raw
// string from a config file, the check's default, or a value that has
// already been coerced by an earlier validation pass.
type CheckFunc func(value any, args []any, kwargs map[string]any) (any, error)

var (
	checksMu sync.RWMutex
	checks   = map[string]CheckFunc{}
)

// RegisterCheck adds or replaces a named check.
func RegisterCheck(name string, fn CheckFunc) {
	checksMu.Lock()
	defer checksMu.Unlock()
	checks[name] = fn
}

func lookupCheck(name string) (CheckFunc, bool) {
	checksMu.RLock()
	defer checksMu.RUnlock()
	fn, ok := checks[name]
	return fn, ok
}

func init() {
	RegisterCheck("boolean", checkBoolean)
	RegisterCheck("integer", checkInteger)
	RegisterCheck("float", checkFloat)
	RegisterCheck("string", checkString)
	RegisterCheck("option", checkOption)
	RegisterCheck("list", checkList)
	RegisterCheck("force_list", checkList)
	RegisterCheck("tuple", checkList)
	RegisterCheck("cmdline", checkCmdline)
	RegisterCheck("log_level", checkLogLevel)
}

// param returns the named kwarg, falling back to the positional arg at idx.
func param(args []any, kwargs map[string]any, name string, idx int) (any, bool) {
	if v, ok := kwargs[name]; ok {
		return v, v != nil
	}
	if idx < len(args) && args[idx] != nil {
		return args[idx], true
	}
	return nil, false
}

func asInt(v any) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case float64:
		if t != math.Trunc(t) {
			return 0, fmt.Errorf("%v is not an integer", t)
		}
		return int64(t), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(t), 10, 64)
	}
	return 0, fmt.Errorf("%v is not an integer", v)
}

func asFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int64:
		return float64(t), nil
	case int:
		return float64(t), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(t), 64)
	}
	return 0, fmt.Errorf("%v is not a number", v)
}

func scalarString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case []string, []any:
		return "", fmt.Errorf("expected a single value, found a list")
	}
	s, _ := config.FormatValue(v)
	return s, nil
}

func checkBoolean(value any, _ []any, _ map[string]any) (any, error) {
	switch t := value.(type) {
	case bool:
		return t, nil
	case int64:
		if t == 0 || t == 1 {
			return t == 1, nil
		}
	case string:
		return config.ParseBool(t)
	}
	return nil, fmt.Errorf("%v is not a boolean", value)
}

func checkInteger(value any, args []any, kwargs map[string]any) (any, error) {
	base := int64(10)
	if b, ok := param(args, kwargs, "base", 2); ok {
		n, err := asInt(b)
		if err != nil {
			return nil, fmt.Errorf("bad base: %w", err)
		}
		base = n
	}

	var n int64
	switch t := value.(type) {
	case string:
		s := strings.TrimSpace(t)
		parsed, err := strconv.ParseInt(s, int(base), 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", t)
		}
		n = parsed
	default:
		parsed, err := asInt(value)
		if err != nil {
			return nil, err
		}
		n = parsed
	}

	if lo, ok := param(args, kwargs, "min", 0); ok {
		m, err := asInt(lo)
		if err != nil {
			return nil, fmt.Errorf("bad min: %w", err)
		}
		if n < m {
			return nil, fmt.Errorf("value %d is below the minimum of %d", n, m)
		}
	}
	if hi, ok := param(args, kwargs, "max", 1); ok {
		m, err := asInt(hi)
		if err != nil {
			return nil, fmt.Errorf("bad max: %w", err)
		}
		if n > m {
			return nil, fmt.Errorf("value %d is above the maximum of %d", n, m)
		}
	}
	return n, nil
}

func checkFloat(value any, args []any, kwargs map[string]any) (any, error) {
	f, err := asFloat(value)
	if err != nil {
		return nil, fmt.Errorf("%v is not a number", value)
	}
	if lo, ok := param(args, kwargs, "min", 0); ok {
		m, err := asFloat(lo)
		if err != nil {
			return nil, fmt.Errorf("bad min: %w", err)
		}
		if f < m {
			return nil, fmt.Errorf("value %v is below the minimum of %v", f, m)
		}
	}
	if hi, ok := param(args, kwargs, "max", 1); ok {
		m, err := asFloat(hi)
		if err != nil {
			return nil, fmt.Errorf("bad max: %w", err)
		}
		if f > m {
			return nil, fmt.Errorf("value %v is above the maximum of %v", f, m)
		}
	}
	return f, nil
}

func checkString(value any, args []any, kwargs map[string]any) (any, error) {
	s, err := scalarString(value)
	if err != nil {
		return nil, err
	}
	if lo, ok := param(args, kwargs, "min", 0); ok {
		if m, err := asInt(lo); err == nil && int64(len(s)) < m {
			return nil, fmt.Errorf("value is shorter than %d characters", m)
		}
	}
	if hi, ok := param(args, kwargs, "max", 1); ok {
		if m, err := asInt(hi); err == nil && int64(len(s)) > m {
			return nil, fmt.Errorf("value is longer than %d characters", m)
		}
	}
	return s, nil
}

func checkOption(value any, args []any, _ map[string]any) (any, error) {
	s, err := scalarString(value)
	if err != nil {
		return nil, err
	}
	choices := make([]string, 0, len(args))
	for _, a := range args {
		c, _ := config.FormatValue(a)
		choices = append(choices, c)
	}
	if slices.Contains(choices, s) {
		return s, nil
	}
	return nil, fmt.Errorf("%q is not one of %s", s, strings.Join(choices, ", "))
}

func checkList(value any, args []any, kwargs map[string]any) (any, error) {
	var items []string
	switch t := value.(type) {
	case nil:
		items = []string{}
	case []string:
		items = slices.Clone(t)
	case []any:
		items = make([]string, 0, len(t))
		for _, v := range t {
			s, _ := config.FormatValue(v)
			items = append(items, s)
		}
	case string:
		items = config.SplitList(t)
	default:
		s, _ := config.FormatValue(t)
		items = []string{s}
	}
	if lo, ok := param(args, kwargs, "min", 0); ok {
		if m, err := asInt(lo); err == nil && int64(len(items)) < m {
			return nil, fmt.Errorf("list needs at least %d items", m)
		}
	}
	if hi, ok := param(args, kwargs, "max", 1); ok {
		if m, err := asInt(hi); err == nil && int64(len(items)) > m {
			return nil, fmt.Errorf("list allows at most %d items", m)
		}
	}
	return items, nil
}

func checkCmdline(value any, _ []any, _ map[string]any) (any, error) {
	switch t := value.(type) {
	case []string:
		return slices.Clone(t), nil
	case nil:
		return []string{}, nil
	}
	s, err := scalarString(value)
	if err != nil {
		return nil, err
	}
	words, err := shellquote.Split(s)
	if err != nil {
		return nil, fmt.Errorf("could not split command line: %w", err)
	}
	return words, nil
}

func checkLogLevel(value any, _ []any, _ map[string]any) (any, error) {
	switch t := value.(type) {
	case slog.Level:
		return t, nil
	case int64:
		return slog.Level(t), nil
	}
	s, err := scalarString(value)
	if err != nil {
		return nil, err
	}
	return plog.ParseLevel(s)
}
