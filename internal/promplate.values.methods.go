package internal

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"
)

// boundMethod is a builtin method bound to its receiver, e.g. "a,b".split.
type boundMethod struct {
	recv any
	name string
	fn   methodFunc
}

type methodFunc func(recv any, args []any, kwargs map[string]any) (any, error)

func (m *boundMethod) call(args []any, kwargs map[string]any) (any, error) {
	return m.fn(m.recv, args, kwargs)
}

// String implements fmt.Stringer.
func (m *boundMethod) String() string {
	return fmt.Sprintf("<built-in method %s of %s object>", m.name, TypeName(m.recv))
}

var stringMethods = map[string]methodFunc{
	"upper": strMethod0(strings.ToUpper),
	"lower": strMethod0(strings.ToLower),
	"title": strMethod0(func(s string) string {
		prev := ' '
		return strings.Map(func(r rune) rune {
			defer func() { prev = r }()
			if unicode.IsLetter(prev) {
				return unicode.ToLower(r)
			}
			return unicode.ToTitle(r)
		}, s)
	}),
	"capitalize": strMethod0(func(s string) string {
		if s == "" {
			return s
		}
		r := []rune(strings.ToLower(s))
		r[0] = unicode.ToUpper(r[0])
		return string(r)
	}),
	"strip":  stripMethod(strings.TrimSpace, strings.Trim),
	"lstrip": stripMethod(func(s string) string { return strings.TrimLeftFunc(s, unicode.IsSpace) }, strings.TrimLeft),
	"rstrip": stripMethod(func(s string) string { return strings.TrimRightFunc(s, unicode.IsSpace) }, strings.TrimRight),
	"split": func(recv any, args []any, _ map[string]any) (any, error) {
		s := recv.(string)
		if len(args) == 0 || args[0] == nil {
			return toAnySlice(strings.Fields(s)), nil
		}
		sep, ok := args[0].(string)
		if !ok {
			return nil, badArg("split", TypeNameStr, args[0])
		}
		n := -1
		if len(args) > 1 {
			if i, _, isInt, ok := number(args[1]); ok && isInt && i >= 0 {
				n = i + 1
			}
		}
		return toAnySlice(strings.SplitN(s, sep, n)), nil
	},
	"splitlines": func(recv any, _ []any, _ map[string]any) (any, error) {
		s := strings.TrimSuffix(recv.(string), "\n")
		if s == "" {
			return []any{}, nil
		}
		return toAnySlice(strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")), nil
	},
	"join": func(recv any, args []any, _ map[string]any) (any, error) {
		if len(args) != 1 {
			return nil, argCount("join", "exactly one", len(args))
		}
		items, err := Iterate(args[0])
		if err != nil {
			return nil, err
		}
		parts := make([]string, len(items))
		for i, it := range items {
			s, ok := it.(string)
			if !ok {
				return nil, NewEvalError(ErrKindType, fmt.Sprintf("sequence item %d: expected str instance, %s found", i, TypeName(it)))
			}
			parts[i] = s
		}
		return strings.Join(parts, recv.(string)), nil
	},
	"replace": func(recv any, args []any, _ map[string]any) (any, error) {
		if len(args) < 2 {
			return nil, argCount("replace", "at least 2", len(args))
		}
		old, ok1 := args[0].(string)
		repl, ok2 := args[1].(string)
		if !ok1 || !ok2 {
			return nil, badArg("replace", TypeNameStr, args[0])
		}
		n := -1
		if len(args) > 2 {
			if i, _, isInt, ok := number(args[2]); ok && isInt {
				n = i
			}
		}
		return strings.Replace(recv.(string), old, repl, n), nil
	},
	"startswith": affixMethod(strings.HasPrefix),
	"endswith":   affixMethod(strings.HasSuffix),
	"count": func(recv any, args []any, _ map[string]any) (any, error) {
		if len(args) != 1 {
			return nil, argCount("count", "exactly one", len(args))
		}
		sub, ok := args[0].(string)
		if !ok {
			return nil, badArg("count", TypeNameStr, args[0])
		}
		return strings.Count(recv.(string), sub), nil
	},
	"find": func(recv any, args []any, _ map[string]any) (any, error) {
		if len(args) != 1 {
			return nil, argCount("find", "exactly one", len(args))
		}
		sub, ok := args[0].(string)
		if !ok {
			return nil, badArg("find", TypeNameStr, args[0])
		}
		idx := strings.Index(recv.(string), sub)
		if idx < 0 {
			return -1, nil
		}
		return len([]rune(recv.(string)[:idx])), nil
	},
	"format": func(recv any, args []any, kwargs map[string]any) (any, error) {
		return formatString(recv.(string), args, kwargs)
	},
}

var listMethods = map[string]methodFunc{
	"index": func(recv any, args []any, _ map[string]any) (any, error) {
		if len(args) != 1 {
			return nil, argCount("index", "exactly one", len(args))
		}
		items, _ := Iterate(recv)
		for i, it := range items {
			if Equal(it, args[0]) {
				return i, nil
			}
		}
		return nil, NewEvalError(ErrKindValue, fmt.Sprintf("%s is not in list", Repr(args[0])))
	},
	"count": func(recv any, args []any, _ map[string]any) (any, error) {
		if len(args) != 1 {
			return nil, argCount("count", "exactly one", len(args))
		}
		items, _ := Iterate(recv)
		n := 0
		for _, it := range items {
			if Equal(it, args[0]) {
				n++
			}
		}
		return n, nil
	},
}

var dictMethods = map[string]methodFunc{
	"keys": func(recv any, _ []any, _ map[string]any) (any, error) {
		return Iterate(recv)
	},
	"values": func(recv any, _ []any, _ map[string]any) (any, error) {
		rv := reflect.ValueOf(recv)
		keys := sortedKeys(rv)
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = rv.MapIndex(k).Interface()
		}
		return out, nil
	},
	"items": func(recv any, _ []any, _ map[string]any) (any, error) {
		rv := reflect.ValueOf(recv)
		keys := sortedKeys(rv)
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = []any{k.Interface(), rv.MapIndex(k).Interface()}
		}
		return out, nil
	},
	"get": func(recv any, args []any, _ map[string]any) (any, error) {
		if len(args) < 1 || len(args) > 2 {
			return nil, argCount("get", "1 or 2", len(args))
		}
		if v, ok := mapLookup(reflect.ValueOf(recv), args[0]); ok {
			return v, nil
		}
		if len(args) == 2 {
			return args[1], nil
		}
		return nil, nil
	},
}

// lookupMethod finds a builtin method for strings, sequences and maps.
func lookupMethod(v any, name string) (*boundMethod, bool) {
	var table map[string]methodFunc
	switch {
	case v == nil:
		return nil, false
	case reflect.TypeOf(v).Kind() == reflect.String:
		if _, ok := v.(string); !ok {
			v = reflect.ValueOf(v).String()
		}
		table = stringMethods
	case isSequence(v):
		table = listMethods
	case reflect.TypeOf(v).Kind() == reflect.Map:
		table = dictMethods
	default:
		return nil, false
	}
	fn, ok := table[name]
	if !ok {
		return nil, false
	}
	return &boundMethod{recv: v, name: name, fn: fn}, true
}

func strMethod0(f func(string) string) methodFunc {
	return func(recv any, args []any, _ map[string]any) (any, error) {
		if len(args) != 0 {
			return nil, argCount("method", "no", len(args))
		}
		return f(recv.(string)), nil
	}
}

func stripMethod(space func(string) string, cut func(string, string) string) methodFunc {
	return func(recv any, args []any, _ map[string]any) (any, error) {
		if len(args) == 0 || args[0] == nil {
			return space(recv.(string)), nil
		}
		chars, ok := args[0].(string)
		if !ok {
			return nil, badArg("strip", TypeNameStr, args[0])
		}
		return cut(recv.(string), chars), nil
	}
}

func affixMethod(test func(string, string) bool) methodFunc {
	return func(recv any, args []any, _ map[string]any) (any, error) {
		if len(args) != 1 {
			return nil, argCount("startswith", "exactly one", len(args))
		}
		s := recv.(string)
		if affix, ok := args[0].(string); ok {
			return test(s, affix), nil
		}
		if isSequence(args[0]) {
			options, _ := Iterate(args[0])
			for _, o := range options {
				if affix, ok := o.(string); ok && test(s, affix) {
					return true, nil
				}
			}
			return false, nil
		}
		return nil, badArg("startswith", TypeNameStr, args[0])
	}
}

// formatString implements str.format with {}, {0} and {name} fields.
func formatString(s string, args []any, kwargs map[string]any) (string, error) {
	var sb strings.Builder
	auto := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '{' && i+1 < len(s) && s[i+1] == '{' {
			sb.WriteByte('{')
			i++
			continue
		}
		if c == '}' && i+1 < len(s) && s[i+1] == '}' {
			sb.WriteByte('}')
			i++
			continue
		}
		if c != '{' {
			sb.WriteByte(c)
			continue
		}
		end := strings.IndexByte(s[i:], '}')
		if end < 0 {
			return "", NewEvalError(ErrKindValue, "Single '{' encountered in format string")
		}
		field := s[i+1 : i+end]
		i += end

		var value any
		switch {
		case field == "":
			if auto >= len(args) {
				return "", NewEvalError(ErrKindIndex, "Replacement index out of range")
			}
			value = args[auto]
			auto++
		case field[0] >= '0' && field[0] <= '9':
			var idx int
			if _, err := fmt.Sscanf(field, "%d", &idx); err != nil || idx >= len(args) {
				return "", NewEvalError(ErrKindIndex, "Replacement index out of range")
			}
			value = args[idx]
		default:
			v, ok := kwargs[field]
			if !ok {
				return "", NewEvalError(ErrKindKey, Repr(field))
			}
			value = v
		}
		sb.WriteString(Str(value))
	}
	return sb.String(), nil
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func argCount(name, expected string, got int) error {
	return NewEvalError(ErrKindType, fmt.Sprintf(ErrMsgArgCount, name, expected, got))
}

func badArg(name, expected string, got any) error {
	return NewEvalError(ErrKindType, fmt.Sprintf(ErrMsgBadArgType, name, expected, TypeName(got)))
}
