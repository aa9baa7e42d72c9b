package internal

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Scope resolves names that are not template locals.
type Scope interface {
	Lookup(name string) (any, bool)
}

// ComponentHost renders sub-components invoked with {% name args %}.
// vars holds the caller's locals merged with the invocation arguments.
type ComponentHost interface {
	RenderComponent(ctx context.Context, name string, component any, vars map[string]any, async bool) (string, error)
}

// Awaitable is a pending value that an async program may await.
type Awaitable interface {
	Await(ctx context.Context) (any, error)
}

// Env is everything a program needs at run time besides its locals.
type Env struct {
	Globals Scope
	Funcs   *FuncRegistry
	Host    ComponentHost
}

// Program is a compiled template: a tree of instructions plus its listing.
type Program struct {
	Name      string
	Async     bool
	FreeNames []string

	body    []Instr
	builder *CodeBuilder
	logger  *zap.Logger
}

// Script returns the program listing with indentStr per indentation level.
func (p *Program) Script(indentStr string) string {
	return p.builder.Render(indentStr)
}

// Run executes the program and returns the rendered text.
func (p *Program) Run(ctx context.Context, env Env) (string, error) {
	if env.Funcs == nil {
		env.Funcs = DefaultBuiltins()
	}
	p.logger.Debug(LogMsgProgramRun, zap.String(LogFieldTemplate, p.Name), zap.Bool(LogFieldAsync, p.Async))

	ex := &execution{
		ctx:    ctx,
		prog:   p,
		env:    env,
		locals: make(map[string]any),
	}
	if _, err := ex.block(p.body); err != nil {
		return "", err
	}
	return ex.out.String(), nil
}

// flow is the control outcome of executing an instruction.
type flow int

const (
	flowNormal flow = iota
	flowBreak
	flowContinue
)

// Instr is an executable line.
type Instr interface {
	Line
	exec(ex *execution) (flow, error)
	sourceLine() int
}

type execution struct {
	ctx    context.Context
	prog   *Program
	env    Env
	locals map[string]any
	out    strings.Builder
}

func (ex *execution) block(instrs []Instr) (flow, error) {
	for _, in := range instrs {
		f, err := in.exec(ex)
		if err != nil {
			return flowNormal, ex.locate(err, in.sourceLine())
		}
		if f != flowNormal {
			return f, nil
		}
	}
	return flowNormal, nil
}

// locate attaches template name and line to evaluation errors raised here.
func (ex *execution) locate(err error, line int) error {
	if ee, ok := err.(*EvalError); ok && ee.Line == 0 {
		ee.Line = line
		ee.Template = ex.prog.Name
	}
	return err
}

// =============================================================================
// Simple instructions
// =============================================================================

type appendTextInstr struct {
	text string
	line int
}

func (i *appendTextInstr) Source() string  { return fmt.Sprintf(ScriptAppendFmt, Repr(i.text)) }
func (i *appendTextInstr) sourceLine() int { return i.line }

func (i *appendTextInstr) exec(ex *execution) (flow, error) {
	ex.out.WriteString(i.text)
	return flowNormal, nil
}

type appendExprInstr struct {
	expr ExprNode
	line int
}

func (i *appendExprInstr) Source() string  { return fmt.Sprintf(ScriptAppendFmt, i.expr) }
func (i *appendExprInstr) sourceLine() int { return i.line }

func (i *appendExprInstr) exec(ex *execution) (flow, error) {
	v, err := ex.eval(i.expr)
	if err != nil {
		return flowNormal, err
	}
	ex.out.WriteString(Str(v))
	return flowNormal, nil
}

type execInstr struct {
	stmt StmtNode
	line int
}

func (i *execInstr) Source() string  { return i.stmt.String() }
func (i *execInstr) sourceLine() int { return i.line }

func (i *execInstr) exec(ex *execution) (flow, error) {
	switch s := i.stmt.(type) {
	case *BreakStmt:
		return flowBreak, nil
	case *ContinueStmt:
		return flowContinue, nil
	case *PassStmt:
		return flowNormal, nil
	case *ExprStmt:
		_, err := ex.eval(s.X)
		return flowNormal, err
	case *AssignStmt:
		v, err := ex.eval(s.Value)
		if err != nil {
			return flowNormal, err
		}
		for _, t := range s.Targets {
			if err := ex.assign(t, v); err != nil {
				return flowNormal, err
			}
		}
		return flowNormal, nil
	case *AugAssignStmt:
		cur, err := ex.eval(s.Target)
		if err != nil {
			return flowNormal, err
		}
		rhs, err := ex.eval(s.Value)
		if err != nil {
			return flowNormal, err
		}
		v, err := Arith(s.Op, cur, rhs)
		if err != nil {
			return flowNormal, err
		}
		return flowNormal, ex.assign(s.Target, v)
	}
	return flowNormal, nil
}

type renderInstr struct {
	name  string
	args  []Argument
	async bool
	line  int
}

func (i *renderInstr) sourceLine() int { return i.line }

func (i *renderInstr) Source() string {
	params := ScriptLocals
	if len(i.args) > 0 {
		parts := make([]string, len(i.args))
		for j, a := range i.args {
			parts[j] = a.String()
		}
		params = ScriptLocals + " | dict(" + strings.Join(parts, ", ") + ")"
	}
	if i.async {
		return fmt.Sprintf(ScriptARenderFmt, i.name, params)
	}
	return fmt.Sprintf(ScriptRenderFmt, i.name, params)
}

func (i *renderInstr) exec(ex *execution) (flow, error) {
	component, err := ex.lookup(i.name)
	if err != nil {
		return flowNormal, err
	}

	vars := make(map[string]any, len(ex.locals)+len(i.args))
	for k, v := range ex.locals {
		vars[k] = v
	}
	for _, a := range i.args {
		switch a.Kind {
		case ArgStar:
			if a.Value == nil {
				continue // bare * spreads the locals, which are already in place
			}
			v, err := ex.eval(a.Value)
			if err != nil {
				return flowNormal, err
			}
			if err := MergeMapping(vars, v); err != nil {
				return flowNormal, err
			}
		case ArgPositional, ArgStarStar:
			v, err := ex.eval(a.Value)
			if err != nil {
				return flowNormal, err
			}
			if err := MergeMapping(vars, v); err != nil {
				return flowNormal, err
			}
		case ArgKeyword:
			v, err := ex.eval(a.Value)
			if err != nil {
				return flowNormal, err
			}
			vars[a.Name] = v
		}
	}

	if ex.env.Host == nil {
		return flowNormal, NewEvalError(ErrKindAttribute, fmt.Sprintf(ErrMsgNotAComponent, TypeName(component)))
	}
	ex.prog.logger.Debug(LogMsgComponentRender, zap.String(LogFieldComponent, i.name))
	text, err := ex.env.Host.RenderComponent(ex.ctx, i.name, component, vars, i.async)
	if err != nil {
		return flowNormal, err
	}
	ex.out.WriteString(text)
	return flowNormal, nil
}

// =============================================================================
// Block headers (consumed while assembling) and compound instructions
// =============================================================================

type ifHeader struct {
	cond ExprNode
	src  string
	line int
}

type elifHeader struct {
	cond ExprNode
	src  string
	line int
}

type elseHeader struct {
	line int
}

type forHeader struct {
	targets []ExprNode
	iter    ExprNode
	src     string
	line    int
}

type whileHeader struct {
	cond ExprNode
	src  string
	line int
}

func (h *ifHeader) Source() string    { return h.src + ":" }
func (h *elifHeader) Source() string  { return h.src + ":" }
func (h *elseHeader) Source() string  { return KeywordElse + ":" }
func (h *forHeader) Source() string   { return h.src + ":" }
func (h *whileHeader) Source() string { return h.src + ":" }

type compound interface {
	elseTaken() bool
	setElse(body []Instr)
}

type condBranch struct {
	cond ExprNode
	body []Instr
}

type ifInstr struct {
	branches []condBranch
	orelse   []Instr
	hasElse  bool
	line     int
}

func (i *ifInstr) Source() string        { return KeywordIf + " " + i.branches[0].cond.String() + ":" }
func (i *ifInstr) sourceLine() int       { return i.line }
func (i *ifInstr) elseTaken() bool       { return i.hasElse }
func (i *ifInstr) setElse(body []Instr) { i.orelse, i.hasElse = body, true }

func (i *ifInstr) exec(ex *execution) (flow, error) {
	for _, br := range i.branches {
		v, err := ex.eval(br.cond)
		if err != nil {
			return flowNormal, err
		}
		if Truthy(v) {
			return ex.block(br.body)
		}
	}
	return ex.block(i.orelse)
}

type forInstr struct {
	targets []ExprNode
	iter    ExprNode
	body    []Instr
	orelse  []Instr
	hasElse bool
	line    int
}

func (i *forInstr) Source() string        { return KeywordFor + " ... " + KeywordIn + " " + i.iter.String() + ":" }
func (i *forInstr) sourceLine() int       { return i.line }
func (i *forInstr) elseTaken() bool       { return i.hasElse }
func (i *forInstr) setElse(body []Instr) { i.orelse, i.hasElse = body, true }

func (i *forInstr) exec(ex *execution) (flow, error) {
	seq, err := ex.eval(i.iter)
	if err != nil {
		return flowNormal, err
	}
	items, err := Iterate(seq)
	if err != nil {
		return flowNormal, err
	}

	var target ExprNode = &ListNode{Elems: i.targets, Tuple: true}
	if len(i.targets) == 1 {
		target = i.targets[0]
	}

	for _, item := range items {
		if err := ex.ctx.Err(); err != nil {
			return flowNormal, err
		}
		if err := ex.assign(target, item); err != nil {
			return flowNormal, err
		}
		f, err := ex.block(i.body)
		if err != nil {
			return flowNormal, err
		}
		if f == flowBreak {
			return flowNormal, nil
		}
	}
	return ex.block(i.orelse)
}

type whileInstr struct {
	cond    ExprNode
	body    []Instr
	orelse  []Instr
	hasElse bool
	line    int
}

func (i *whileInstr) Source() string        { return KeywordWhile + " " + i.cond.String() + ":" }
func (i *whileInstr) sourceLine() int       { return i.line }
func (i *whileInstr) elseTaken() bool       { return i.hasElse }
func (i *whileInstr) setElse(body []Instr) { i.orelse, i.hasElse = body, true }

func (i *whileInstr) exec(ex *execution) (flow, error) {
	for {
		if err := ex.ctx.Err(); err != nil {
			return flowNormal, err
		}
		v, err := ex.eval(i.cond)
		if err != nil {
			return flowNormal, err
		}
		if !Truthy(v) {
			break
		}
		f, err := ex.block(i.body)
		if err != nil {
			return flowNormal, err
		}
		if f == flowBreak {
			return flowNormal, nil
		}
	}
	return ex.block(i.orelse)
}

// =============================================================================
// Names and assignment
// =============================================================================

func (ex *execution) lookup(name string) (any, error) {
	if v, ok := ex.locals[name]; ok {
		return v, nil
	}
	if ex.env.Globals != nil {
		if v, ok := ex.env.Globals.Lookup(name); ok {
			return v, nil
		}
	}
	if f, ok := ex.env.Funcs.Get(name); ok {
		return f, nil
	}
	return nil, NewNameError(name)
}

func (ex *execution) assign(target ExprNode, v any) error {
	switch t := target.(type) {
	case *NameNode:
		ex.locals[t.Name] = v
		return nil
	case *AttrNode:
		obj, err := ex.eval(t.Target)
		if err != nil {
			return err
		}
		return SetAttr(obj, t.Name, v)
	case *IndexNode:
		obj, err := ex.eval(t.Target)
		if err != nil {
			return err
		}
		key, err := ex.eval(t.Index)
		if err != nil {
			return err
		}
		return SetItem(obj, key, v)
	case *ListNode:
		items, err := Iterate(v)
		if err != nil {
			return err
		}
		if len(items) != len(t.Elems) {
			return NewEvalError(ErrKindValue, fmt.Sprintf(ErrMsgUnpackMismatch, len(items), len(t.Elems)))
		}
		for j, el := range t.Elems {
			if err := ex.assign(el, items[j]); err != nil {
				return err
			}
		}
		return nil
	}
	return NewEvalError(ErrKindSyntax, ErrMsgInvalidTarget)
}

// =============================================================================
// Expressions
// =============================================================================

func (ex *execution) eval(node ExprNode) (any, error) {
	switch n := node.(type) {
	case *LiteralNode:
		return n.Value, nil
	case *NameNode:
		return ex.lookup(n.Name)
	case *AttrNode:
		obj, err := ex.eval(n.Target)
		if err != nil {
			return nil, err
		}
		return GetAttr(obj, n.Name)
	case *IndexNode:
		obj, err := ex.eval(n.Target)
		if err != nil {
			return nil, err
		}
		key, err := ex.eval(n.Index)
		if err != nil {
			return nil, err
		}
		return GetItem(obj, key)
	case *SliceNode:
		return ex.evalSlice(n)
	case *CallNode:
		return ex.evalCall(n)
	case *UnaryNode:
		v, err := ex.eval(n.Operand)
		if err != nil {
			return nil, err
		}
		return Unary(n.Op, v)
	case *BinaryNode:
		l, err := ex.eval(n.Left)
		if err != nil {
			return nil, err
		}
		r, err := ex.eval(n.Right)
		if err != nil {
			return nil, err
		}
		return Arith(n.Op, l, r)
	case *BoolNode:
		l, err := ex.eval(n.Left)
		if err != nil {
			return nil, err
		}
		if (n.Op == "and") != Truthy(l) {
			return l, nil
		}
		return ex.eval(n.Right)
	case *CompareNode:
		left, err := ex.eval(n.Left)
		if err != nil {
			return nil, err
		}
		for j, op := range n.Ops {
			right, err := ex.eval(n.Rights[j])
			if err != nil {
				return nil, err
			}
			ok, err := Compare(op, left, right)
			if err != nil {
				return nil, err
			}
			if !ok {
				return false, nil
			}
			left = right
		}
		return true, nil
	case *CondNode:
		c, err := ex.eval(n.Cond)
		if err != nil {
			return nil, err
		}
		if Truthy(c) {
			return ex.eval(n.Then)
		}
		return ex.eval(n.Otherwise)
	case *ListNode:
		out := make([]any, len(n.Elems))
		for j, el := range n.Elems {
			v, err := ex.eval(el)
			if err != nil {
				return nil, err
			}
			out[j] = v
		}
		return out, nil
	case *DictNode:
		return ex.evalDict(n)
	case *AwaitNode:
		return ex.evalAwait(n)
	}
	return nil, NewEvalError(ErrKindSyntax, fmt.Sprintf("%s %s", ErrMsgUnexpectedToken, node))
}

func (ex *execution) evalSlice(n *SliceNode) (any, error) {
	obj, err := ex.eval(n.Target)
	if err != nil {
		return nil, err
	}
	var bounds [3]any
	for j, b := range []ExprNode{n.Low, n.High, n.Step} {
		if b == nil {
			continue
		}
		if bounds[j], err = ex.eval(b); err != nil {
			return nil, err
		}
	}
	return Slice(obj, bounds[0], bounds[1], bounds[2])
}

func (ex *execution) evalDict(n *DictNode) (any, error) {
	keys := make([]any, len(n.Keys))
	values := make([]any, len(n.Keys))
	allStrings := true
	for j := range n.Keys {
		k, err := ex.eval(n.Keys[j])
		if err != nil {
			return nil, err
		}
		v, err := ex.eval(n.Values[j])
		if err != nil {
			return nil, err
		}
		if _, ok := k.(string); !ok {
			allStrings = false
		}
		keys[j], values[j] = k, v
	}
	if allStrings {
		out := make(map[string]any, len(keys))
		for j, k := range keys {
			out[k.(string)] = values[j]
		}
		return out, nil
	}
	out := make(map[any]any, len(keys))
	for j, k := range keys {
		if k != nil && !reflect.TypeOf(k).Comparable() {
			return nil, NewEvalError(ErrKindType, fmt.Sprintf("unhashable type: '%s'", TypeName(k)))
		}
		out[k] = values[j]
	}
	return out, nil
}

func (ex *execution) evalAwait(n *AwaitNode) (any, error) {
	if !ex.prog.Async {
		return nil, NewEvalError(ErrKindSyntax, ErrMsgAwaitOutsideAsync)
	}
	v, err := ex.eval(n.Value)
	if err != nil {
		return nil, err
	}
	if a, ok := v.(Awaitable); ok {
		return a.Await(ex.ctx)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Chan && rv.Type().ChanDir()&reflect.RecvDir != 0 {
		cases := []reflect.SelectCase{
			{Dir: reflect.SelectRecv, Chan: rv},
			{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ex.ctx.Done())},
		}
		chosen, recv, ok := reflect.Select(cases)
		if chosen == 1 {
			return nil, ex.ctx.Err()
		}
		if !ok {
			return nil, nil
		}
		return recv.Interface(), nil
	}
	return nil, NewEvalError(ErrKindType, fmt.Sprintf(ErrMsgNotAwaitable, TypeName(v)))
}

func (ex *execution) evalCall(n *CallNode) (any, error) {
	fn, err := ex.eval(n.Func)
	if err != nil {
		return nil, err
	}
	var args []any
	var kwargs map[string]any
	for _, a := range n.Args {
		switch a.Kind {
		case ArgPositional:
			v, err := ex.eval(a.Value)
			if err != nil {
				return nil, err
			}
			args = append(args, v)
		case ArgStar:
			if a.Value == nil {
				return nil, NewEvalError(ErrKindSyntax, "iterable argument unpacking requires an expression")
			}
			v, err := ex.eval(a.Value)
			if err != nil {
				return nil, err
			}
			items, err := Iterate(v)
			if err != nil {
				return nil, err
			}
			args = append(args, items...)
		case ArgKeyword:
			v, err := ex.eval(a.Value)
			if err != nil {
				return nil, err
			}
			if kwargs == nil {
				kwargs = make(map[string]any)
			}
			kwargs[a.Name] = v
		case ArgStarStar:
			v, err := ex.eval(a.Value)
			if err != nil {
				return nil, err
			}
			if kwargs == nil {
				kwargs = make(map[string]any)
			}
			if err := MergeMapping(kwargs, v); err != nil {
				return nil, err
			}
		}
	}
	return ex.call(fn, args, kwargs)
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// call invokes builtins, bound methods and arbitrary Go functions.
// A Go function whose first parameter is a context.Context receives the render context.
func (ex *execution) call(fn any, args []any, kwargs map[string]any) (any, error) {
	switch f := fn.(type) {
	case *Func:
		return f.Call(args, kwargs)
	case *boundMethod:
		return f.call(args, kwargs)
	}

	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func || rv.IsNil() {
		return nil, NewEvalError(ErrKindType, fmt.Sprintf(ErrMsgNotCallable, TypeName(fn)))
	}
	if len(kwargs) > 0 {
		names := make([]string, 0, len(kwargs))
		for k := range kwargs {
			names = append(names, k)
		}
		sort.Strings(names)
		return nil, NewEvalError(ErrKindType, fmt.Sprintf(ErrMsgUnexpectedKwarg, TypeName(fn), names[0]))
	}

	ft := rv.Type()
	in := make([]reflect.Value, 0, len(args)+1)
	params := ft.NumIn()
	offset := 0
	if params > 0 && ft.In(0) == contextType {
		in = append(in, reflect.ValueOf(ex.ctx))
		offset = 1
	}
	fixed := params - offset
	if ft.IsVariadic() {
		fixed--
	}
	if len(args) < fixed || (!ft.IsVariadic() && len(args) > fixed) {
		return nil, argCount(TypeNameFunction, fmt.Sprint(fixed), len(args))
	}
	for j, a := range args {
		var pt reflect.Type
		if j < fixed {
			pt = ft.In(j + offset)
		} else {
			pt = ft.In(params - 1).Elem()
		}
		v, err := convertTo(a, pt)
		if err != nil {
			return nil, err
		}
		in = append(in, v)
	}

	out := rv.Call(in)
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if ft.Out(0) == errorType {
			if out[0].IsNil() {
				return nil, nil
			}
			return nil, out[0].Interface().(error)
		}
		return out[0].Interface(), nil
	default:
		last := out[len(out)-1]
		if ft.Out(len(out)-1) == errorType && !last.IsNil() {
			return nil, last.Interface().(error)
		}
		return out[0].Interface(), nil
	}
}

// =============================================================================
// Errors
// =============================================================================

// EvalError is raised while running a program. Kind follows Python's exception names.
type EvalError struct {
	Kind     string
	Message  string
	Name     string // the missing name for NameError
	Template string
	Line     int
}

// NewEvalError creates a new evaluation error.
func NewEvalError(kind, message string) *EvalError {
	return &EvalError{Kind: kind, Message: message}
}

// NewNameError creates the error raised for an undefined name.
func NewNameError(name string) *EvalError {
	return &EvalError{Kind: ErrKindName, Message: fmt.Sprintf(ErrMsgNameNotDefined, name), Name: name}
}

// Error implements the error interface.
func (e *EvalError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind)
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.Template != "" || e.Line > 0 {
		sb.WriteString(fmt.Sprintf(" (template %q, line %d)", e.Template, e.Line))
	}
	return sb.String()
}
