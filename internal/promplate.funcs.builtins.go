package internal

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

func registerConversionFuncs(r *FuncRegistry) {
	r.MustRegister(&Func{
		Name: "str", MinArgs: 0, MaxArgs: 1,
		Fn: func(args []any, _ map[string]any) (any, error) {
			if len(args) == 0 {
				return "", nil
			}
			return Str(args[0]), nil
		},
	})

	r.MustRegister(&Func{
		Name: "repr", MinArgs: 1, MaxArgs: 1,
		Fn: func(args []any, _ map[string]any) (any, error) {
			return Repr(args[0]), nil
		},
	})

	r.MustRegister(&Func{
		Name: "int", MinArgs: 0, MaxArgs: 1,
		Fn: func(args []any, _ map[string]any) (any, error) {
			if len(args) == 0 {
				return 0, nil
			}
			if s, ok := args[0].(string); ok {
				n, err := strconv.Atoi(strings.TrimSpace(strings.ReplaceAll(s, "_", "")))
				if err != nil {
					return nil, NewEvalError(ErrKindValue, fmt.Sprintf(ErrMsgInvalidLiteral, "int", Repr(s)))
				}
				return n, nil
			}
			i, f, isInt, ok := number(args[0])
			if !ok {
				return nil, badArg("int", "a string or a number", args[0])
			}
			if isInt {
				return i, nil
			}
			return int(math.Trunc(f)), nil
		},
	})

	r.MustRegister(&Func{
		Name: "float", MinArgs: 0, MaxArgs: 1,
		Fn: func(args []any, _ map[string]any) (any, error) {
			if len(args) == 0 {
				return 0.0, nil
			}
			if s, ok := args[0].(string); ok {
				f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
				if err != nil {
					return nil, NewEvalError(ErrKindValue, fmt.Sprintf(ErrMsgInvalidLiteral, "float", Repr(s)))
				}
				return f, nil
			}
			_, f, _, ok := number(args[0])
			if !ok {
				return nil, badArg("float", "a string or a number", args[0])
			}
			return f, nil
		},
	})

	r.MustRegister(&Func{
		Name: "bool", MinArgs: 0, MaxArgs: 1,
		Fn: func(args []any, _ map[string]any) (any, error) {
			if len(args) == 0 {
				return false, nil
			}
			return Truthy(args[0]), nil
		},
	})

	r.MustRegister(&Func{
		Name: "list", MinArgs: 0, MaxArgs: 1,
		Fn: func(args []any, _ map[string]any) (any, error) {
			if len(args) == 0 {
				return []any{}, nil
			}
			items, err := Iterate(args[0])
			if err != nil {
				return nil, err
			}
			return append([]any{}, items...), nil
		},
	})

	r.MustRegister(&Func{
		Name: "dict", MinArgs: 0, MaxArgs: 1,
		Fn: func(args []any, kwargs map[string]any) (any, error) {
			out := make(map[string]any, len(kwargs))
			if len(args) == 1 {
				if err := MergeMapping(out, args[0]); err != nil {
					return nil, err
				}
			}
			for k, v := range kwargs {
				out[k] = v
			}
			return out, nil
		},
	})
}

func registerSequenceFuncs(r *FuncRegistry) {
	r.MustRegister(&Func{
		Name: "len", MinArgs: 1, MaxArgs: 1,
		Fn: func(args []any, _ map[string]any) (any, error) {
			return Length(args[0])
		},
	})

	r.MustRegister(&Func{
		Name: "range", MinArgs: 1, MaxArgs: 3,
		Fn: func(args []any, _ map[string]any) (any, error) {
			bounds := make([]int, len(args))
			for i, a := range args {
				n, _, isInt, ok := number(a)
				if !ok || !isInt {
					return nil, badArg("range", TypeNameInt, a)
				}
				bounds[i] = n
			}
			start, stop, step := 0, 0, 1
			switch len(bounds) {
			case 1:
				stop = bounds[0]
			case 2:
				start, stop = bounds[0], bounds[1]
			default:
				start, stop, step = bounds[0], bounds[1], bounds[2]
			}
			if step == 0 {
				return nil, NewEvalError(ErrKindValue, "range() arg 3 must not be zero")
			}
			out := []any{}
			for i := start; (step > 0 && i < stop) || (step < 0 && i > stop); i += step {
				out = append(out, i)
			}
			return out, nil
		},
	})

	r.MustRegister(&Func{
		Name: "enumerate", MinArgs: 1, MaxArgs: 2,
		Fn: func(args []any, kwargs map[string]any) (any, error) {
			items, err := Iterate(args[0])
			if err != nil {
				return nil, err
			}
			start := 0
			if len(args) == 2 {
				start, _, _, _ = number(args[1])
			} else if s, ok := kwargs["start"]; ok {
				start, _, _, _ = number(s)
			}
			out := make([]any, len(items))
			for i, it := range items {
				out[i] = []any{start + i, it}
			}
			return out, nil
		},
	})

	r.MustRegister(&Func{
		Name: "zip", MinArgs: 0, MaxArgs: -1,
		Fn: func(args []any, _ map[string]any) (any, error) {
			lists := make([][]any, len(args))
			shortest := -1
			for i, a := range args {
				items, err := Iterate(a)
				if err != nil {
					return nil, err
				}
				lists[i] = items
				if shortest < 0 || len(items) < shortest {
					shortest = len(items)
				}
			}
			out := make([]any, 0, max(shortest, 0))
			for i := 0; i < shortest; i++ {
				row := make([]any, len(lists))
				for j := range lists {
					row[j] = lists[j][i]
				}
				out = append(out, row)
			}
			return out, nil
		},
	})

	r.MustRegister(&Func{
		Name: "sorted", MinArgs: 1, MaxArgs: 1,
		Fn: func(args []any, kwargs map[string]any) (any, error) {
			items, err := Iterate(args[0])
			if err != nil {
				return nil, err
			}
			out := append([]any{}, items...)
			var sortErr error
			sort.SliceStable(out, func(i, j int) bool {
				c, err := order("<", out[i], out[j])
				if err != nil && sortErr == nil {
					sortErr = err
				}
				return c < 0
			})
			if sortErr != nil {
				return nil, sortErr
			}
			if Truthy(kwargs["reverse"]) {
				for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
					out[i], out[j] = out[j], out[i]
				}
			}
			return out, nil
		},
	})

	r.MustRegister(&Func{
		Name: "reversed", MinArgs: 1, MaxArgs: 1,
		Fn: func(args []any, _ map[string]any) (any, error) {
			items, err := Iterate(args[0])
			if err != nil {
				return nil, err
			}
			out := make([]any, len(items))
			for i, it := range items {
				out[len(items)-1-i] = it
			}
			return out, nil
		},
	})
}

func registerNumericFuncs(r *FuncRegistry) {
	extreme := func(name string, want int) *Func {
		return &Func{
			Name: name, MinArgs: 1, MaxArgs: -1,
			Fn: func(args []any, kwargs map[string]any) (any, error) {
				items := args
				if len(args) == 1 {
					var err error
					if items, err = Iterate(args[0]); err != nil {
						return nil, err
					}
				}
				if len(items) == 0 {
					if d, ok := kwargs["default"]; ok {
						return d, nil
					}
					return nil, NewEvalError(ErrKindValue, name+"() arg is an empty sequence")
				}
				best := items[0]
				for _, it := range items[1:] {
					c, err := order("<", it, best)
					if err != nil {
						return nil, err
					}
					if (want < 0 && c < 0) || (want > 0 && c > 0) {
						best = it
					}
				}
				return best, nil
			},
		}
	}
	r.MustRegister(extreme("min", -1))
	r.MustRegister(extreme("max", 1))

	r.MustRegister(&Func{
		Name: "sum", MinArgs: 1, MaxArgs: 2,
		Fn: func(args []any, _ map[string]any) (any, error) {
			items, err := Iterate(args[0])
			if err != nil {
				return nil, err
			}
			var total any = 0
			if len(args) == 2 {
				total = args[1]
			}
			for _, it := range items {
				if total, err = Arith("+", total, it); err != nil {
					return nil, err
				}
			}
			return total, nil
		},
	})

	r.MustRegister(&Func{
		Name: "abs", MinArgs: 1, MaxArgs: 1,
		Fn: func(args []any, _ map[string]any) (any, error) {
			i, f, isInt, ok := number(args[0])
			if !ok {
				return nil, NewEvalError(ErrKindType, fmt.Sprintf(ErrMsgUnsupportedUnary, "abs()", TypeName(args[0])))
			}
			if isInt {
				if i < 0 {
					return -i, nil
				}
				return i, nil
			}
			return math.Abs(f), nil
		},
	})

	r.MustRegister(&Func{
		Name: "round", MinArgs: 1, MaxArgs: 2,
		Fn: func(args []any, _ map[string]any) (any, error) {
			i, f, isInt, ok := number(args[0])
			if !ok {
				return nil, badArg("round", "a number", args[0])
			}
			if len(args) == 1 || args[1] == nil {
				if isInt {
					return i, nil
				}
				return int(math.RoundToEven(f)), nil
			}
			digits, _, _, _ := number(args[1])
			if isInt && digits >= 0 {
				return i, nil
			}
			scale := math.Pow(10, float64(digits))
			return math.RoundToEven(f*scale) / scale, nil
		},
	})
}

// MergeMapping copies every key of a mapping value into dst.
// Keys are stringified; a list of pairs is accepted like dict() does.
func MergeMapping(dst map[string]any, src any) error {
	if src == nil {
		return nil
	}
	if m, ok := src.(map[string]any); ok {
		for k, v := range m {
			dst[k] = v
		}
		return nil
	}
	rv := reflect.ValueOf(src)
	if rv.Kind() == reflect.Map {
		for _, k := range rv.MapKeys() {
			dst[Str(k.Interface())] = rv.MapIndex(k).Interface()
		}
		return nil
	}
	if isSequence(src) {
		pairs, _ := Iterate(src)
		for _, p := range pairs {
			kv, err := Iterate(p)
			if err != nil || len(kv) != 2 {
				return NewEvalError(ErrKindValue, "dictionary update sequence element has wrong length")
			}
			dst[Str(kv[0])] = kv[1]
		}
		return nil
	}
	if mapper, ok := src.(interface{ Flatten() map[string]any }); ok {
		for k, v := range mapper.Flatten() {
			dst[k] = v
		}
		return nil
	}
	return NewEvalError(ErrKindType, fmt.Sprintf(ErrMsgNotMapping, TypeName(src)))
}
