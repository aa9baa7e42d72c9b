package internal

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// The value model is plain Go values: nil, bool, int, float64, string, []any and
// map[string]any for everything the language creates itself, plus arbitrary Go
// values reached through the render context (inspected with reflect).

// TypeName returns the Python-style type name of a value.
func TypeName(v any) string {
	switch v.(type) {
	case nil:
		return TypeNameNone
	case bool:
		return TypeNameBool
	case string:
		return TypeNameStr
	case *Func, *boundMethod:
		return TypeNameFunction
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return TypeNameInt
	case reflect.Float32, reflect.Float64:
		return TypeNameFloat
	case reflect.Slice, reflect.Array:
		return TypeNameList
	case reflect.Map:
		return TypeNameDict
	case reflect.Func:
		return TypeNameFunction
	}
	return rv.Type().String()
}

// Str converts a value to text the way Python's str() does.
func Str(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case string:
		return x
	case bool:
		if x {
			return "True"
		}
		return "False"
	case int:
		return strconv.Itoa(x)
	case float64:
		return formatFloat(x)
	case float32:
		return formatFloat(float64(x))
	case error:
		return x.Error()
	case fmt.Stringer:
		return x.String()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Slice, reflect.Array, reflect.Map:
		return Repr(v)
	}
	return fmt.Sprint(v)
}

// Repr returns the Python-style representation of a value.
func Repr(v any) string {
	switch x := v.(type) {
	case string:
		return quoteString(x)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = Repr(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return "None"
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return "b" + quoteString(string(rv.Bytes()))
		}
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = Repr(rv.Index(i).Interface())
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case reflect.Map:
		keys := sortedKeys(rv)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = Repr(k.Interface()) + ": " + Repr(rv.MapIndex(k).Interface())
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return Str(v)
}

func quoteString(s string) string {
	quote := "'"
	if strings.Contains(s, "'") && !strings.Contains(s, "\"") {
		quote = "\""
	}
	var sb strings.Builder
	sb.WriteString(quote)
	for _, r := range s {
		switch r {
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '\r':
			sb.WriteString(`\r`)
		default:
			if string(r) == quote {
				sb.WriteString(`\` + quote)
			} else {
				sb.WriteRune(r)
			}
		}
	}
	sb.WriteString(quote)
	return sb.String()
}

func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	abs := math.Abs(f)
	if abs != 0 && (abs >= 1e16 || abs < 1e-4) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// Truthy reports the truth value of v using Python rules.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Slice, reflect.Map, reflect.Array, reflect.String, reflect.Chan:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface, reflect.Func:
		return !rv.IsNil()
	}
	return true
}

// number extracts a numeric value; bools count as ints like in Python.
func number(v any) (i int, f float64, isInt bool, ok bool) {
	switch x := v.(type) {
	case int:
		return x, float64(x), true, true
	case float64:
		return 0, x, false, true
	case bool:
		if x {
			return 1, 1, true, true
		}
		return 0, 0, true, true
	case nil, string:
		return 0, 0, false, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := int(rv.Int())
		return n, float64(n), true, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n := int(rv.Uint())
		return n, float64(n), true, true
	case reflect.Float32, reflect.Float64:
		return 0, rv.Float(), false, true
	}
	return 0, 0, false, false
}

// Arith applies a binary arithmetic operator.
func Arith(op string, l, r any) (any, error) {
	li, lf, lInt, lNum := number(l)
	ri, rf, rInt, rNum := number(r)
	if lNum && rNum {
		return numericOp(op, li, lf, lInt, ri, rf, rInt, l, r)
	}

	switch op {
	case "+":
		if ls, ok := l.(string); ok {
			if rs, ok := r.(string); ok {
				return ls + rs, nil
			}
		}
		if isSequence(l) && isSequence(r) {
			la, _ := Iterate(l)
			ra, _ := Iterate(r)
			out := make([]any, 0, len(la)+len(ra))
			return append(append(out, la...), ra...), nil
		}
	case "*":
		if s, ok := l.(string); ok && rInt {
			return strings.Repeat(s, max(ri, 0)), nil
		}
		if s, ok := r.(string); ok && lInt {
			return strings.Repeat(s, max(li, 0)), nil
		}
		if isSequence(l) && rInt {
			return repeatList(l, ri), nil
		}
		if isSequence(r) && lInt {
			return repeatList(r, li), nil
		}
	}
	return nil, NewEvalError(ErrKindType, fmt.Sprintf(ErrMsgUnsupportedOp, op, TypeName(l), TypeName(r)))
}

func numericOp(op string, li int, lf float64, lInt bool, ri int, rf float64, rInt bool, l, r any) (any, error) {
	bothInt := lInt && rInt
	switch op {
	case "+":
		if bothInt {
			return checkedInt(op, li+ri, (li >= 0) == (ri >= 0) && (li+ri >= 0) != (li >= 0))
		}
		return lf + rf, nil
	case "-":
		if bothInt {
			return checkedInt(op, li-ri, (li >= 0) != (ri >= 0) && (li-ri >= 0) != (li >= 0))
		}
		return lf - rf, nil
	case "*":
		if bothInt {
			p, ok := mulInt(li, ri)
			return checkedInt(op, p, !ok)
		}
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, NewEvalError(ErrKindZeroDiv, ErrMsgDivisionByZero)
		}
		return lf / rf, nil
	case "//":
		if rf == 0 {
			return nil, NewEvalError(ErrKindZeroDiv, ErrMsgDivisionByZero)
		}
		if bothInt {
			if li == math.MinInt && ri == -1 {
				return checkedInt(op, 0, true)
			}
			q := li / ri
			if (li%ri != 0) && ((li < 0) != (ri < 0)) {
				q--
			}
			return q, nil
		}
		return math.Floor(lf / rf), nil
	case "%":
		if rf == 0 {
			return nil, NewEvalError(ErrKindZeroDiv, ErrMsgDivisionByZero)
		}
		if bothInt {
			m := li % ri
			if m != 0 && ((m < 0) != (ri < 0)) {
				m += ri
			}
			return m, nil
		}
		m := math.Mod(lf, rf)
		if m != 0 && ((m < 0) != (rf < 0)) {
			m += rf
		}
		return m, nil
	case "**":
		if bothInt && ri >= 0 {
			p, ok := powInt(li, ri)
			return checkedInt(op, p, !ok)
		}
		return math.Pow(lf, rf), nil
	}
	return nil, NewEvalError(ErrKindType, fmt.Sprintf(ErrMsgUnsupportedOp, op, TypeName(l), TypeName(r)))
}

// checkedInt reports an OverflowError in place of a result that wrapped around.
func checkedInt(op string, v int, overflow bool) (any, error) {
	if overflow {
		return nil, NewEvalError(ErrKindOverflow, fmt.Sprintf(ErrMsgIntOverflow, op))
	}
	return v, nil
}

func mulInt(a, b int) (int, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	p := a * b
	if p/b != a || (a == -1 && b == math.MinInt) || (b == -1 && a == math.MinInt) {
		return 0, false
	}
	return p, true
}

// powInt raises base to exp by squaring.
func powInt(base, exp int) (int, bool) {
	result := 1
	ok := true
	for exp > 0 {
		if exp&1 == 1 {
			if result, ok = mulInt(result, base); !ok {
				return 0, false
			}
		}
		exp >>= 1
		if exp > 0 {
			if base, ok = mulInt(base, base); !ok {
				return 0, false
			}
		}
	}
	return result, true
}

func repeatList(v any, n int) []any {
	items, _ := Iterate(v)
	out := make([]any, 0, len(items)*max(n, 0))
	for i := 0; i < n; i++ {
		out = append(out, items...)
	}
	return out
}

// Unary applies a unary operator.
func Unary(op string, v any) (any, error) {
	if op == "not" {
		return !Truthy(v), nil
	}
	i, f, isInt, ok := number(v)
	if !ok {
		return nil, NewEvalError(ErrKindType, fmt.Sprintf(ErrMsgUnsupportedUnary, op, TypeName(v)))
	}
	switch op {
	case "-":
		if isInt {
			return -i, nil
		}
		return -f, nil
	default:
		if isInt {
			return i, nil
		}
		return f, nil
	}
}

// Equal reports Python-style equality.
func Equal(l, r any) bool {
	if l == nil || r == nil {
		return l == nil && r == nil
	}
	li, lf, lInt, lNum := number(l)
	ri, rf, rInt, rNum := number(r)
	if lNum && rNum {
		if lInt && rInt {
			return li == ri
		}
		return lf == rf
	}
	if ls, ok := l.(string); ok {
		rs, ok := r.(string)
		return ok && ls == rs
	}
	if isSequence(l) && isSequence(r) {
		la, _ := Iterate(l)
		ra, _ := Iterate(r)
		if len(la) != len(ra) {
			return false
		}
		for i := range la {
			if !Equal(la[i], ra[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(l, r)
}

// Compare evaluates a single comparison operator.
func Compare(op string, l, r any) (bool, error) {
	switch op {
	case "==":
		return Equal(l, r), nil
	case "!=":
		return !Equal(l, r), nil
	case "in":
		return Contains(r, l)
	case "not in":
		ok, err := Contains(r, l)
		return !ok, err
	case "is":
		return identical(l, r), nil
	case "is not":
		return !identical(l, r), nil
	}

	cmp, err := order(op, l, r)
	if err != nil {
		return false, err
	}
	switch op {
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	case ">":
		return cmp > 0, nil
	default:
		return cmp >= 0, nil
	}
}

func order(op string, l, r any) (int, error) {
	_, lf, _, lNum := number(l)
	_, rf, _, rNum := number(r)
	if lNum && rNum {
		switch {
		case lf < rf:
			return -1, nil
		case lf > rf:
			return 1, nil
		}
		return 0, nil
	}
	if ls, ok := l.(string); ok {
		if rs, ok := r.(string); ok {
			return strings.Compare(ls, rs), nil
		}
	}
	if isSequence(l) && isSequence(r) {
		la, _ := Iterate(l)
		ra, _ := Iterate(r)
		for i := 0; i < len(la) && i < len(ra); i++ {
			if Equal(la[i], ra[i]) {
				continue
			}
			return order(op, la[i], ra[i])
		}
		return len(la) - len(ra), nil
	}
	return 0, NewEvalError(ErrKindType, fmt.Sprintf(ErrMsgNotComparable, op, TypeName(l), TypeName(r)))
}

func identical(l, r any) bool {
	if l == nil || r == nil {
		return l == nil && r == nil
	}
	lv, rv := reflect.ValueOf(l), reflect.ValueOf(r)
	if lv.Type() != rv.Type() {
		return false
	}
	switch lv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return lv.Pointer() == rv.Pointer()
	}
	if lv.Type().Comparable() {
		return l == r
	}
	return false
}

// Contains implements the "in" operator.
func Contains(container, item any) (bool, error) {
	if s, ok := container.(string); ok {
		sub, ok := item.(string)
		if !ok {
			return false, NewEvalError(ErrKindType, fmt.Sprintf("'in <string>' requires string as left operand, not %s", TypeName(item)))
		}
		return strings.Contains(s, sub), nil
	}
	rv := reflect.ValueOf(container)
	switch rv.Kind() {
	case reflect.Map:
		_, found := mapLookup(rv, item)
		return found, nil
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if Equal(rv.Index(i).Interface(), item) {
				return true, nil
			}
		}
		return false, nil
	}
	return false, NewEvalError(ErrKindType, fmt.Sprintf("argument of type '%s' is not iterable", TypeName(container)))
}

func isSequence(v any) bool {
	if v == nil {
		return false
	}
	if _, ok := v.(string); ok {
		return false
	}
	k := reflect.ValueOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

// Length returns len(v) for sized values.
func Length(v any) (int, error) {
	if s, ok := v.(string); ok {
		return len([]rune(s)), nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Chan:
		return rv.Len(), nil
	}
	return 0, NewEvalError(ErrKindType, fmt.Sprintf("object of type '%s' has no len()", TypeName(v)))
}

// Iterate materialises an iterable: sequences, strings (by rune) and maps (sorted keys).
func Iterate(v any) ([]any, error) {
	switch x := v.(type) {
	case []any:
		return x, nil
	case string:
		out := make([]any, 0, len(x))
		for _, r := range x {
			out = append(out, string(r))
		}
		return out, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, nil
	case reflect.Map:
		keys := sortedKeys(rv)
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = k.Interface()
		}
		return out, nil
	}
	return nil, NewEvalError(ErrKindType, fmt.Sprintf(ErrMsgNotIterable, TypeName(v)))
}

func sortedKeys(rv reflect.Value) []reflect.Value {
	keys := rv.MapKeys()
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i].Interface(), keys[j].Interface()
		if c, err := order("<", a, b); err == nil {
			return c < 0
		}
		return Str(a) < Str(b)
	})
	return keys
}

func mapLookup(rv reflect.Value, key any) (any, bool) {
	kt := rv.Type().Key()
	var kv reflect.Value
	if key == nil {
		if kt.Kind() != reflect.Interface {
			return nil, false
		}
		kv = reflect.Zero(kt)
	} else {
		kv = reflect.ValueOf(key)
		switch {
		case kv.Type().AssignableTo(kt):
		case kv.Type().ConvertibleTo(kt) && kv.Kind() == kt.Kind():
			kv = kv.Convert(kt)
		default:
			if _, _, _, ok := number(key); ok && isNumericKind(kt.Kind()) {
				kv = kv.Convert(kt)
			} else {
				return nil, false
			}
		}
	}
	val := rv.MapIndex(kv)
	if !val.IsValid() {
		return nil, false
	}
	return val.Interface(), true
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// GetItem implements v[key]
func GetItem(v, key any) (any, error) {
	if s, ok := v.(string); ok {
		runes := []rune(s)
		idx, err := sequenceIndex(key, len(runes), TypeNameStr)
		if err != nil {
			return nil, err
		}
		return string(runes[idx]), nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Elem().Kind() != reflect.Struct {
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		val, ok := mapLookup(rv, key)
		if !ok {
			return nil, NewEvalError(ErrKindKey, Repr(key))
		}
		return val, nil
	case reflect.Slice, reflect.Array:
		idx, err := sequenceIndex(key, rv.Len(), TypeNameList)
		if err != nil {
			return nil, err
		}
		return rv.Index(idx).Interface(), nil
	}
	return nil, NewEvalError(ErrKindType, fmt.Sprintf(ErrMsgNotSubscript, TypeName(v)))
}

func sequenceIndex(key any, length int, typeName string) (int, error) {
	i, _, isInt, ok := number(key)
	if !ok || !isInt {
		return 0, NewEvalError(ErrKindType, fmt.Sprintf("%s indices must be integers, not %s", typeName, TypeName(key)))
	}
	if i < 0 {
		i += length
	}
	if i < 0 || i >= length {
		return 0, NewEvalError(ErrKindIndex, fmt.Sprintf(ErrMsgIndexRange, typeName))
	}
	return i, nil
}

// Slice implements v[low:high:step]; nil bounds are open.
func Slice(v, low, high, step any) (any, error) {
	st := 1
	if step != nil {
		s, _, isInt, ok := number(step)
		if !ok || !isInt {
			return nil, NewEvalError(ErrKindType, "slice indices must be integers or None")
		}
		if s == 0 {
			return nil, NewEvalError(ErrKindValue, "slice step cannot be zero")
		}
		st = s
	}

	var items []any
	str, isStr := v.(string)
	if isStr {
		for _, r := range str {
			items = append(items, string(r))
		}
	} else if isSequence(v) {
		items, _ = Iterate(v)
	} else {
		return nil, NewEvalError(ErrKindType, fmt.Sprintf(ErrMsgNotSubscript, TypeName(v)))
	}

	n := len(items)
	bound := func(b any, def int) (int, error) {
		if b == nil {
			return def, nil
		}
		i, _, isInt, ok := number(b)
		if !ok || !isInt {
			return 0, NewEvalError(ErrKindType, "slice indices must be integers or None")
		}
		if i < 0 {
			i += n
		}
		lo, hi := 0, n
		if st < 0 {
			lo, hi = -1, n-1
		}
		return min(max(i, lo), hi), nil
	}

	var start, stop int
	var err error
	if st > 0 {
		if start, err = bound(low, 0); err != nil {
			return nil, err
		}
		if stop, err = bound(high, n); err != nil {
			return nil, err
		}
	} else {
		if start, err = bound(low, n-1); err != nil {
			return nil, err
		}
		if stop, err = bound(high, -1); err != nil {
			return nil, err
		}
	}

	out := []any{}
	for i := start; (st > 0 && i < stop) || (st < 0 && i > stop); i += st {
		out = append(out, items[i])
	}
	if isStr {
		var sb strings.Builder
		for _, s := range out {
			sb.WriteString(s.(string))
		}
		return sb.String(), nil
	}
	return out, nil
}

// SetItem implements container[key] = value for maps and lists.
func SetItem(container, key, value any) error {
	rv := reflect.ValueOf(container)
	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() {
			break
		}
		kt, vt := rv.Type().Key(), rv.Type().Elem()
		kv, err := convertTo(key, kt)
		if err != nil {
			return err
		}
		vv, err := convertTo(value, vt)
		if err != nil {
			return err
		}
		rv.SetMapIndex(kv, vv)
		return nil
	case reflect.Slice:
		idx, err := sequenceIndex(key, rv.Len(), TypeNameList)
		if err != nil {
			return err
		}
		vv, err := convertTo(value, rv.Type().Elem())
		if err != nil {
			return err
		}
		rv.Index(idx).Set(vv)
		return nil
	}
	return NewEvalError(ErrKindType, fmt.Sprintf(ErrMsgAssignUnsupport, TypeName(container)))
}

// SetAttr implements obj.name = value for string-keyed maps and struct pointers.
func SetAttr(obj any, name string, value any) error {
	rv := reflect.ValueOf(obj)
	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		return SetItem(obj, name, value)
	}
	if rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Elem().Kind() == reflect.Struct {
		field := structField(rv.Elem(), name)
		if field.IsValid() && field.CanSet() {
			vv, err := convertTo(value, field.Type())
			if err != nil {
				return err
			}
			field.Set(vv)
			return nil
		}
	}
	return NewEvalError(ErrKindAttribute, fmt.Sprintf(ErrMsgNoAttribute, TypeName(obj), name))
}

func convertTo(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		switch t.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, NewEvalError(ErrKindType, fmt.Sprintf("cannot use None as %s", t))
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	if _, _, _, ok := number(v); ok && isNumericKind(t.Kind()) && isNumericKind(rv.Kind()) {
		return rv.Convert(t), nil
	}
	if rv.Type().ConvertibleTo(t) && rv.Kind() == t.Kind() {
		return rv.Convert(t), nil
	}
	return reflect.Value{}, NewEvalError(ErrKindType, fmt.Sprintf("cannot use %s as %s", TypeName(v), t))
}

// GetAttr implements v.name.
func GetAttr(v any, name string) (any, error) {
	if m, ok := lookupMethod(v, name); ok {
		return m, nil
	}

	rv := reflect.ValueOf(v)
	if rv.IsValid() {
		base := rv
		for base.Kind() == reflect.Pointer || base.Kind() == reflect.Interface {
			if base.IsNil() {
				break
			}
			base = base.Elem()
		}
		switch base.Kind() {
		case reflect.Map:
			if val, ok := mapLookup(base, name); ok {
				return val, nil
			}
		case reflect.Struct:
			if field := structField(base, name); field.IsValid() && field.CanInterface() {
				return field.Interface(), nil
			}
		}
		for _, candidate := range []string{name, exported(name)} {
			if method := rv.MethodByName(candidate); method.IsValid() {
				return method.Interface(), nil
			}
		}
	}
	return nil, NewEvalError(ErrKindAttribute, fmt.Sprintf(ErrMsgNoAttribute, TypeName(v), name))
}

func structField(rv reflect.Value, name string) reflect.Value {
	if f := rv.FieldByName(name); f.IsValid() && f.CanInterface() {
		return f
	}
	if f := rv.FieldByName(exported(name)); f.IsValid() && f.CanInterface() {
		return f
	}
	// match by json-style tag or case-insensitively as a last resort
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		tag := strings.Split(sf.Tag.Get("json"), ",")[0]
		if tag == name || strings.EqualFold(sf.Name, name) {
			return rv.Field(i)
		}
	}
	return reflect.Value{}
}

func exported(name string) string {
	if name == "" {
		return name
	}
	r := []rune(name)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
