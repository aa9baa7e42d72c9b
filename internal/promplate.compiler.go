package internal

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"
)

// CompilerConfig holds the settings for one compilation.
type CompilerConfig struct {
	Name   string
	Async  bool
	Logger *zap.Logger
}

// blockFrame is an open {% if %}, {% for %} or {% while %} block.
type blockFrame struct {
	keyword string
	pos     Position
	hasElse bool
}

type compiler struct {
	cfg     CompilerConfig
	logger  *zap.Logger
	builder *CodeBuilder
	stack   []blockFrame
	names   *nameCollector
}

// Compile turns template source into an executable program.
func Compile(source string, cfg CompilerConfig) (*Program, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug(LogMsgCompileStart, zap.String(LogFieldTemplate, cfg.Name), zap.Bool(LogFieldAsync, cfg.Async))

	c := &compiler{
		cfg:     cfg,
		logger:  logger,
		builder: NewBaseBuilder(cfg.Async),
		names:   newNameCollector(),
	}
	requires := c.builder.AddSection()

	for _, seg := range NewLexer(source, logger).Tokenize() {
		if err := c.segment(seg); err != nil {
			return nil, err
		}
	}
	if len(c.stack) > 0 {
		open := c.stack[len(c.stack)-1]
		return nil, c.fail(NewCompileError(ErrMsgUnclosedBlock, open.keyword, open.pos))
	}

	c.builder.AddLine(textLine(ScriptReturn)).Dedent()

	free := c.names.free()
	if len(free) > 0 {
		requires.AddLine(textLine(ScriptRequires + strings.Join(free, ", ")))
	}

	body, err := c.builder.Compile()
	if err != nil {
		return nil, c.fail(err)
	}

	logger.Debug(LogMsgCompileDone, zap.String(LogFieldTemplate, cfg.Name), zap.Int(LogFieldLines, len(c.builder.flatten())))
	return &Program{
		Name:      cfg.Name,
		Async:     cfg.Async,
		FreeNames: free,
		body:      body,
		builder:   c.builder,
		logger:    logger,
	}, nil
}

func (c *compiler) fail(err error) error {
	var ce *CompileError
	if errors.As(err, &ce) && ce.Template == "" {
		ce.Template = c.cfg.Name
	}
	c.logger.Debug(LogMsgCompileFailed, zap.String(LogFieldTemplate, c.cfg.Name), zap.Error(err))
	return err
}

func (c *compiler) segment(seg Segment) error {
	switch seg.Kind {
	case SegmentExpression:
		return c.expression(seg)
	case SegmentCode:
		return c.code(seg)
	case SegmentStatement:
		return c.statement(seg)
	default:
		if seg.Raw != "" {
			c.builder.AddLine(&appendTextInstr{text: seg.Raw, line: seg.Pos.Line})
		}
		return nil
	}
}

// expression handles {{ }}. A multi-line body may start with statements but must end with an expression.
func (c *compiler) expression(seg Segment) error {
	inner := seg.Inner()
	line := seg.InnerLine()
	if inner == "" {
		return c.fail(NewCompileError(ErrMsgEmptyExpression, "", seg.Pos))
	}

	if !strings.Contains(inner, "\n") {
		expr, err := ParseExpression(inner)
		if err != nil {
			return c.fail(c.parseError(err, seg, line))
		}
		c.names.load(expr)
		c.builder.AddLine(&appendExprInstr{expr: expr, line: line})
		return nil
	}

	stmts, err := ParseStatements(inner)
	if err != nil {
		return c.fail(c.parseError(err, seg, line))
	}
	if len(stmts) == 0 {
		return c.fail(NewCompileError(ErrMsgEmptyExpression, "", seg.Pos))
	}
	last, ok := stmts[len(stmts)-1].(*ExprStmt)
	if !ok {
		return c.fail(NewCompileError(ErrMsgEvalNeedsExpr, "", c.at(seg, line+stmts[len(stmts)-1].Line()-1)))
	}
	if err := c.statements(seg, line, stmts[:len(stmts)-1]); err != nil {
		return err
	}
	c.names.load(last.X)
	c.builder.AddLine(&appendExprInstr{expr: last.X, line: line + last.Pos - 1})
	return nil
}

// code handles {# #}: statements run for their side effects.
func (c *compiler) code(seg Segment) error {
	inner := seg.Inner()
	if inner == "" {
		return nil
	}
	line := seg.InnerLine()
	stmts, err := ParseStatements(inner)
	if err != nil {
		return c.fail(c.parseError(err, seg, line))
	}
	return c.statements(seg, line, stmts)
}

func (c *compiler) statements(seg Segment, line int, stmts []StmtNode) error {
	for _, s := range stmts {
		at := line + s.Line() - 1
		switch st := s.(type) {
		case *BreakStmt, *ContinueStmt:
			if !c.inLoop() {
				return c.fail(NewCompileError(fmt.Sprintf("'%s' %s", st, ErrMsgLoopControlOutside), st.String(), c.at(seg, at)))
			}
		case *AssignStmt:
			for _, t := range st.Targets {
				c.names.store(t)
			}
			c.names.load(st.Value)
		case *AugAssignStmt:
			c.names.load(st.Target)
			c.names.store(st.Target)
			c.names.load(st.Value)
		case *ExprStmt:
			c.names.load(st.X)
		}
		c.builder.AddLine(&execInstr{stmt: s, line: at})
	}
	return nil
}

// statement handles {% %}: block tags, loop control and component invocations.
func (c *compiler) statement(seg Segment) error {
	inner := seg.Inner()
	line := seg.InnerLine()
	op, rest := splitKeyword(inner)

	if strings.HasPrefix(op, KeywordEnd) {
		if rest != "" {
			return c.fail(NewCompileError(ErrMsgUnmatchedEnd, inner, seg.Pos))
		}
		return c.end(seg, strings.TrimPrefix(op, KeywordEnd))
	}

	switch op {
	case KeywordIf, KeywordWhile:
		if rest == "" {
			return c.fail(NewCompileError(ErrMsgEmptyCondition+" '"+op+"'", op, seg.Pos))
		}
		cond, err := ParseExpression(rest)
		if err != nil {
			return c.fail(c.parseError(err, seg, line))
		}
		c.names.load(cond)
		if op == KeywordIf {
			c.builder.AddLine(&ifHeader{cond: cond, src: inner, line: line})
		} else {
			c.builder.AddLine(&whileHeader{cond: cond, src: inner, line: line})
		}
		c.open(op, seg.Pos)
		return nil

	case KeywordFor:
		targets, iter, err := ParseForClause(rest)
		if err != nil {
			if rest == "" {
				return c.fail(NewCompileError(ErrMsgMalformedFor, op, seg.Pos))
			}
			return c.fail(c.parseError(err, seg, line))
		}
		c.names.load(iter)
		for _, t := range targets {
			c.names.store(t)
		}
		c.builder.AddLine(&forHeader{targets: targets, iter: iter, src: inner, line: line})
		c.open(op, seg.Pos)
		return nil

	case KeywordElif, KeywordElse:
		return c.branch(seg, op, rest, inner, line)

	case KeywordBreak, KeywordContinue, KeywordPass:
		if rest != "" {
			return c.fail(NewCompileError(ErrMsgUnexpectedToken+" after '"+op+"'", op, seg.Pos))
		}
		stmts, err := ParseStatements(op)
		if err != nil {
			return c.fail(c.parseError(err, seg, line))
		}
		return c.statements(seg, line, stmts)
	}

	return c.component(seg, op, rest, line)
}

func (c *compiler) open(keyword string, pos Position) {
	c.stack = append(c.stack, blockFrame{keyword: keyword, pos: pos})
	c.builder.Indent()
}

func (c *compiler) end(seg Segment, keyword string) error {
	if len(c.stack) == 0 {
		return c.fail(NewCompileError(ErrMsgUnexpectedEnd, KeywordEnd+keyword, seg.Pos))
	}
	top := c.stack[len(c.stack)-1]
	if top.keyword != keyword {
		return c.fail(NewCompileError(fmt.Sprintf("%s: expected 'end%s'", ErrMsgUnmatchedEnd, top.keyword), KeywordEnd+keyword, seg.Pos))
	}
	c.stack = c.stack[:len(c.stack)-1]
	c.builder.Dedent()
	return nil
}

func (c *compiler) branch(seg Segment, op, rest, inner string, line int) error {
	if len(c.stack) == 0 {
		return c.fail(NewCompileError(ErrMsgOrphanBranch, op, seg.Pos))
	}
	top := &c.stack[len(c.stack)-1]
	if top.hasElse {
		return c.fail(NewCompileError(ErrMsgDuplicateElse, op, seg.Pos))
	}

	var header Line
	if op == KeywordElif {
		if top.keyword != KeywordIf {
			return c.fail(NewCompileError(ErrMsgOrphanBranch, op, seg.Pos))
		}
		if rest == "" {
			return c.fail(NewCompileError(ErrMsgEmptyCondition+" '"+op+"'", op, seg.Pos))
		}
		cond, err := ParseExpression(rest)
		if err != nil {
			return c.fail(c.parseError(err, seg, line))
		}
		c.names.load(cond)
		header = &elifHeader{cond: cond, src: inner, line: line}
	} else {
		if rest != "" {
			return c.fail(NewCompileError(ErrMsgUnexpectedToken+" after 'else'", op, seg.Pos))
		}
		top.hasElse = true
		header = &elseHeader{line: line}
	}

	c.builder.Dedent().AddLine(header).Indent()
	return nil
}

// component handles {% name args %}, rendering name with the locals plus args.
func (c *compiler) component(seg Segment, name, rest string, line int) error {
	if !isIdentifier(name) {
		return c.fail(NewCompileError(fmt.Sprintf("%s %q", ErrMsgInvalidComponent, name), name, seg.Pos))
	}
	var args []Argument
	if rest != "" {
		var err error
		if args, err = ParseArguments(rest); err != nil {
			return c.fail(c.parseError(err, seg, line))
		}
	}
	c.names.loadName(name)
	for _, a := range args {
		if a.Value != nil {
			c.names.load(a.Value)
		}
	}
	c.builder.AddLine(&renderInstr{name: name, args: args, async: c.cfg.Async, line: line})
	return nil
}

func (c *compiler) inLoop() bool {
	for _, f := range c.stack {
		if f.keyword == KeywordFor || f.keyword == KeywordWhile {
			return true
		}
	}
	return false
}

func (c *compiler) at(seg Segment, line int) Position {
	if line == seg.Pos.Line {
		return seg.Pos
	}
	return Position{Offset: seg.Pos.Offset, Line: line, Column: 1}
}

// parseError converts an expression syntax error into a template compile error.
func (c *compiler) parseError(err error, seg Segment, line int) error {
	var pe *ExprParseError
	if !errors.As(err, &pe) {
		return err
	}
	pos := c.at(seg, line+pe.Line-1)
	ce := NewCompileError(pe.Message, "", pos)
	ce.Cause = err
	return ce
}

// splitKeyword splits "name rest of tag" at the first whitespace.
func splitKeyword(inner string) (string, string) {
	idx := strings.IndexFunc(inner, unicode.IsSpace)
	if idx < 0 {
		return inner, ""
	}
	return inner[:idx], strings.TrimSpace(inner[idx:])
}

func isIdentifier(s string) bool {
	if s == "" || exprKeywords[s] {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}

// =============================================================================
// Free variables
// =============================================================================

// nameCollector records names a template reads before it binds them itself.
type nameCollector struct {
	bound map[string]bool
	seen  map[string]bool
	order []string
}

func newNameCollector() *nameCollector {
	return &nameCollector{bound: make(map[string]bool), seen: make(map[string]bool)}
}

func (n *nameCollector) loadName(name string) {
	if n.bound[name] || n.seen[name] || DefaultBuiltins().Has(name) {
		return
	}
	n.seen[name] = true
	n.order = append(n.order, name)
}

func (n *nameCollector) load(e ExprNode) {
	switch x := e.(type) {
	case *NameNode:
		n.loadName(x.Name)
	case *AttrNode:
		n.load(x.Target)
	case *IndexNode:
		n.load(x.Target)
		n.load(x.Index)
	case *SliceNode:
		n.load(x.Target)
		for _, b := range []ExprNode{x.Low, x.High, x.Step} {
			if b != nil {
				n.load(b)
			}
		}
	case *CallNode:
		n.load(x.Func)
		for _, a := range x.Args {
			if a.Value != nil {
				n.load(a.Value)
			}
		}
	case *UnaryNode:
		n.load(x.Operand)
	case *BinaryNode:
		n.load(x.Left)
		n.load(x.Right)
	case *BoolNode:
		n.load(x.Left)
		n.load(x.Right)
	case *CompareNode:
		n.load(x.Left)
		for _, r := range x.Rights {
			n.load(r)
		}
	case *CondNode:
		n.load(x.Cond)
		n.load(x.Then)
		n.load(x.Otherwise)
	case *ListNode:
		for _, el := range x.Elems {
			n.load(el)
		}
	case *DictNode:
		for i := range x.Keys {
			n.load(x.Keys[i])
			n.load(x.Values[i])
		}
	case *AwaitNode:
		n.load(x.Value)
	}
}

// store marks assignment targets as bound. Attribute and index targets read their base.
func (n *nameCollector) store(target ExprNode) {
	switch t := target.(type) {
	case *NameNode:
		n.bound[t.Name] = true
	case *ListNode:
		for _, el := range t.Elems {
			n.store(el)
		}
	case *AttrNode:
		n.load(t.Target)
	case *IndexNode:
		n.load(t.Target)
		n.load(t.Index)
	}
}

func (n *nameCollector) free() []string {
	return append([]string(nil), n.order...)
}

// =============================================================================
// Errors
// =============================================================================

// CompileError is a syntax error found while compiling a template.
type CompileError struct {
	Message  string
	Keyword  string
	Template string
	Pos      Position
	Cause    error
}

// NewCompileError creates a new compile error.
func NewCompileError(message, keyword string, pos Position) *CompileError {
	return &CompileError{Message: message, Keyword: keyword, Pos: pos}
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	var sb strings.Builder
	sb.WriteString(ErrKindSyntax)
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.Keyword != "" {
		sb.WriteString(fmt.Sprintf(" [%s]", e.Keyword))
	}
	if e.Pos.Line > 0 {
		sb.WriteString(fmt.Sprintf(" (template %q, line %d, column %d)", e.Template, e.Pos.Line, e.Pos.Column))
	}
	return sb.String()
}

// Unwrap returns the underlying parse error, if any.
func (e *CompileError) Unwrap() error {
	return e.Cause
}
