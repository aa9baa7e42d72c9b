package internal

import (
	"fmt"
	"strconv"
)

// ExprParser is a recursive-descent parser for the statement/expression language.
//
// Precedence, lowest first:
//
//	x if c else y
//	or ||
//	and &&
//	not !
//	comparisons (== != < <= > >= in, not in, is, is not), chained
//	+ -
//	* / // %
//	unary - +
//	**
//	await
//	postfix: .name [index] [a:b] (args)
type ExprParser struct {
	tokens []ExprToken
	pos    int
}

// NewExprParser creates a parser over a token stream.
func NewExprParser(tokens []ExprToken) *ExprParser {
	return &ExprParser{tokens: tokens}
}

// ParseExpression parses source that must hold exactly one expression.
func ParseExpression(src string) (ExprNode, error) {
	p, err := newParserFor(src)
	if err != nil {
		return nil, err
	}
	if p.atEnd() {
		return nil, NewExprParseError(ErrMsgEmptyExpression, 1, 1)
	}
	expr, err := p.parseTestList()
	if err != nil {
		return nil, err
	}
	p.skipNewlines()
	if !p.atEnd() {
		return nil, p.unexpected()
	}
	return expr, nil
}

// ParseStatements parses one statement per logical line.
func ParseStatements(src string) ([]StmtNode, error) {
	p, err := newParserFor(src)
	if err != nil {
		return nil, err
	}
	var stmts []StmtNode
	for {
		p.skipSeparators()
		if p.atEnd() {
			return stmts, nil
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
		tok := p.peek()
		if tok.Type != ExprTokenEOF && tok.Type != ExprTokenNewline && !p.isOp(";") {
			return nil, p.unexpected()
		}
	}
}

// ParseForClause parses "target[, target...] in iterable".
func ParseForClause(src string) ([]ExprNode, ExprNode, error) {
	p, err := newParserFor(src)
	if err != nil {
		return nil, nil, err
	}
	var targets []ExprNode
	for {
		target, err := p.parsePostfix()
		if err != nil {
			return nil, nil, err
		}
		if !isAssignable(target) {
			return nil, nil, p.errorAt(ErrMsgInvalidTarget)
		}
		targets = append(targets, target)
		if !p.isOp(",") {
			break
		}
		p.advance()
	}
	if !p.isKeyword(KeywordIn) {
		return nil, nil, p.errorAt(ErrMsgMalformedFor)
	}
	p.advance()
	if p.atEnd() {
		return nil, nil, p.errorAt(ErrMsgMalformedFor)
	}
	iter, err := p.parseTestList()
	if err != nil {
		return nil, nil, err
	}
	if !p.atEnd() {
		return nil, nil, p.unexpected()
	}
	return targets, iter, nil
}

// ParseArguments parses a comma separated argument list without parentheses.
func ParseArguments(src string) ([]Argument, error) {
	p, err := newParserFor(src)
	if err != nil {
		return nil, err
	}
	args, err := p.parseArgs(ExprTokenEOF, "")
	if err != nil {
		return nil, err
	}
	if !p.atEnd() {
		return nil, p.unexpected()
	}
	return args, nil
}

func newParserFor(src string) (*ExprParser, error) {
	tokens, err := NewExprLexer(src).Tokenize()
	if err != nil {
		return nil, err
	}
	return NewExprParser(tokens), nil
}

// =============================================================================
// Statements
// =============================================================================

func (p *ExprParser) parseStatement() (StmtNode, error) {
	tok := p.peek()
	if tok.Type == ExprTokenKeyword {
		switch tok.Value {
		case KeywordPass:
			p.advance()
			return &PassStmt{Pos: tok.Line}, nil
		case KeywordBreak:
			p.advance()
			return &BreakStmt{Pos: tok.Line}, nil
		case KeywordContinue:
			p.advance()
			return &ContinueStmt{Pos: tok.Line}, nil
		case "def", "class", "for", "while", "if", "elif", "else", "return", "import", "from",
			"del", "with", "try", "raise", "yield", "global", "lambda":
			return nil, NewExprParseError(fmt.Sprintf("%s %q", ErrMsgUnsupportedStmt, tok.Value), tok.Line, tok.Col)
		}
	}

	first, err := p.parseTestList()
	if err != nil {
		return nil, err
	}

	if p.isOp("=") {
		targets := []ExprNode{first}
		for p.isOp("=") {
			p.advance()
			next, err := p.parseTestList()
			if err != nil {
				return nil, err
			}
			targets = append(targets, next)
		}
		value := targets[len(targets)-1]
		targets = targets[:len(targets)-1]
		for _, t := range targets {
			if !isAssignable(t) {
				return nil, NewExprParseError(ErrMsgInvalidTarget, tok.Line, tok.Col)
			}
		}
		return &AssignStmt{Targets: targets, Value: value, Pos: tok.Line}, nil
	}

	if op := p.peek(); op.Type == ExprTokenOp && isAugOp(op.Value) {
		if !isAssignable(first) {
			return nil, NewExprParseError(ErrMsgInvalidTarget, tok.Line, tok.Col)
		}
		if list, ok := first.(*ListNode); ok && list.Tuple {
			return nil, NewExprParseError(ErrMsgInvalidTarget, tok.Line, tok.Col)
		}
		p.advance()
		value, err := p.parseTestList()
		if err != nil {
			return nil, err
		}
		return &AugAssignStmt{Target: first, Op: op.Value[:len(op.Value)-1], Value: value, Pos: tok.Line}, nil
	}

	return &ExprStmt{X: first, Pos: tok.Line}, nil
}

func isAugOp(op string) bool {
	switch op {
	case "+=", "-=", "*=", "/=", "//=", "%=", "**=":
		return true
	}
	return false
}

func isAssignable(e ExprNode) bool {
	switch n := e.(type) {
	case *NameNode, *AttrNode, *IndexNode:
		return true
	case *ListNode:
		for _, el := range n.Elems {
			if !isAssignable(el) {
				return false
			}
		}
		return len(n.Elems) > 0
	}
	return false
}

// =============================================================================
// Expressions
// =============================================================================

// parseTestList parses an expression, collecting a bare comma list into a tuple.
func (p *ExprParser) parseTestList() (ExprNode, error) {
	first, err := p.parseTest()
	if err != nil {
		return nil, err
	}
	if !p.isOp(",") {
		return first, nil
	}
	elems := []ExprNode{first}
	for p.isOp(",") {
		p.advance()
		if p.endsTestList() {
			break
		}
		next, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		elems = append(elems, next)
	}
	return &ListNode{Elems: elems, Tuple: true}, nil
}

func (p *ExprParser) endsTestList() bool {
	tok := p.peek()
	if tok.Type == ExprTokenEOF || tok.Type == ExprTokenNewline {
		return true
	}
	return tok.Type == ExprTokenOp && (tok.Value == "=" || tok.Value == ")" || tok.Value == ";" || isAugOp(tok.Value))
}

func (p *ExprParser) parseTest() (ExprNode, error) {
	then, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.isKeyword("if") {
		return then, nil
	}
	p.advance()
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword(KeywordElse); err != nil {
		return nil, err
	}
	otherwise, err := p.parseTest()
	if err != nil {
		return nil, err
	}
	return &CondNode{Cond: cond, Then: then, Otherwise: otherwise}, nil
}

func (p *ExprParser) parseOr() (ExprNode, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("or") || p.isOp("||") {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BoolNode{Op: "or", Left: left, Right: right}
	}
	return left, nil
}

func (p *ExprParser) parseAnd() (ExprNode, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("and") || p.isOp("&&") {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &BoolNode{Op: "and", Left: left, Right: right}
	}
	return left, nil
}

func (p *ExprParser) parseNot() (ExprNode, error) {
	if p.isKeyword("not") || p.isOp("!") {
		p.advance()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &UnaryNode{Op: "not", Operand: operand}, nil
	}
	return p.parseComparison()
}

func (p *ExprParser) parseComparison() (ExprNode, error) {
	left, err := p.parseArith()
	if err != nil {
		return nil, err
	}
	var ops []string
	var rights []ExprNode
	for {
		op, ok := p.comparisonOp()
		if !ok {
			break
		}
		right, err := p.parseArith()
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
		rights = append(rights, right)
	}
	if len(ops) == 0 {
		return left, nil
	}
	return &CompareNode{Left: left, Ops: ops, Rights: rights}, nil
}

// comparisonOp consumes a comparison operator if one is next.
func (p *ExprParser) comparisonOp() (string, bool) {
	tok := p.peek()
	switch {
	case tok.Type == ExprTokenOp:
		switch tok.Value {
		case "==", "!=", "<", "<=", ">", ">=":
			p.advance()
			return tok.Value, true
		}
	case tok.Type == ExprTokenKeyword && tok.Value == KeywordIn:
		p.advance()
		return "in", true
	case tok.Type == ExprTokenKeyword && tok.Value == "not" && p.peekAt(1).Type == ExprTokenKeyword && p.peekAt(1).Value == KeywordIn:
		p.advance()
		p.advance()
		return "not in", true
	case tok.Type == ExprTokenKeyword && tok.Value == "is":
		p.advance()
		if p.isKeyword("not") {
			p.advance()
			return "is not", true
		}
		return "is", true
	}
	return "", false
}

func (p *ExprParser) parseArith() (ExprNode, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.isOp("+") || p.isOp("-") {
		op := p.advance().Value
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &BinaryNode{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *ExprParser) parseTerm() (ExprNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isOp("*") || p.isOp("/") || p.isOp("//") || p.isOp("%") {
		op := p.advance().Value
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryNode{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *ExprParser) parseUnary() (ExprNode, error) {
	if p.isOp("-") || p.isOp("+") {
		op := p.advance().Value
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryNode{Op: op, Operand: operand}, nil
	}
	return p.parsePower()
}

func (p *ExprParser) parsePower() (ExprNode, error) {
	base, err := p.parseAwait()
	if err != nil {
		return nil, err
	}
	if p.isOp("**") {
		p.advance()
		exp, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &BinaryNode{Op: "**", Left: base, Right: exp}, nil
	}
	return base, nil
}

func (p *ExprParser) parseAwait() (ExprNode, error) {
	if p.isKeyword(KeywordAwait) {
		p.advance()
		value, err := p.parsePostfix()
		if err != nil {
			return nil, err
		}
		return &AwaitNode{Value: value}, nil
	}
	return p.parsePostfix()
}

func (p *ExprParser) parsePostfix() (ExprNode, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.isOp("."):
			p.advance()
			tok := p.peek()
			if tok.Type != ExprTokenIdent && tok.Type != ExprTokenKeyword {
				return nil, p.unexpected()
			}
			p.advance()
			expr = &AttrNode{Target: expr, Name: tok.Value}
		case p.isOp("["):
			p.advance()
			expr, err = p.parseSubscript(expr)
			if err != nil {
				return nil, err
			}
		case p.isOp("("):
			p.advance()
			args, err := p.parseArgs(ExprTokenOp, ")")
			if err != nil {
				return nil, err
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			expr = &CallNode{Func: expr, Args: args}
		default:
			return expr, nil
		}
	}
}

func (p *ExprParser) parseSubscript(target ExprNode) (ExprNode, error) {
	var parts [3]ExprNode
	colons := 0
	for {
		if p.isOp("]") {
			p.advance()
			break
		}
		if p.isOp(":") {
			p.advance()
			colons++
			if colons > 2 {
				return nil, p.unexpected()
			}
			continue
		}
		if parts[colons] != nil {
			return nil, p.unexpected()
		}
		e, err := p.parseTestList()
		if err != nil {
			return nil, err
		}
		parts[colons] = e
	}
	if colons == 0 {
		if parts[0] == nil {
			return nil, p.errorAt(ErrMsgEmptyExpression)
		}
		return &IndexNode{Target: target, Index: parts[0]}, nil
	}
	return &SliceNode{Target: target, Low: parts[0], High: parts[1], Step: parts[2]}, nil
}

// parseArgs parses arguments until the closing token (not consumed).
func (p *ExprParser) parseArgs(endType ExprTokenType, endValue string) ([]Argument, error) {
	var args []Argument
	isEnd := func() bool {
		tok := p.peek()
		if tok.Type == ExprTokenEOF {
			return true
		}
		return tok.Type == endType && tok.Value == endValue
	}
	for !isEnd() {
		switch {
		case p.isOp("**"):
			p.advance()
			v, err := p.parseTest()
			if err != nil {
				return nil, err
			}
			args = append(args, Argument{Kind: ArgStarStar, Value: v})
		case p.isOp("*"):
			p.advance()
			if p.isOp(",") || isEnd() {
				args = append(args, Argument{Kind: ArgStar})
				break
			}
			v, err := p.parseTest()
			if err != nil {
				return nil, err
			}
			args = append(args, Argument{Kind: ArgStar, Value: v})
		case p.peek().Type == ExprTokenIdent && p.peekAt(1).Type == ExprTokenOp && p.peekAt(1).Value == "=":
			name := p.advance().Value
			p.advance()
			v, err := p.parseTest()
			if err != nil {
				return nil, err
			}
			args = append(args, Argument{Kind: ArgKeyword, Name: name, Value: v})
		default:
			v, err := p.parseTest()
			if err != nil {
				return nil, err
			}
			args = append(args, Argument{Kind: ArgPositional, Value: v})
		}
		if !p.isOp(",") {
			break
		}
		p.advance()
	}
	return args, nil
}

func (p *ExprParser) parsePrimary() (ExprNode, error) {
	tok := p.peek()
	switch tok.Type {
	case ExprTokenInt:
		p.advance()
		v, err := strconv.Atoi(tok.Value)
		if err != nil {
			return nil, NewExprParseError(ErrMsgInvalidNumber, tok.Line, tok.Col)
		}
		return &LiteralNode{Value: v}, nil
	case ExprTokenFloat:
		p.advance()
		v, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return nil, NewExprParseError(ErrMsgInvalidNumber, tok.Line, tok.Col)
		}
		return &LiteralNode{Value: v}, nil
	case ExprTokenString:
		p.advance()
		value := tok.Value
		// adjacent literals concatenate
		for p.peek().Type == ExprTokenString {
			value += p.advance().Value
		}
		return &LiteralNode{Value: value}, nil
	case ExprTokenIdent:
		p.advance()
		return &NameNode{Name: tok.Value}, nil
	case ExprTokenKeyword:
		switch tok.Value {
		case "True", "true":
			p.advance()
			return &LiteralNode{Value: true}, nil
		case "False", "false":
			p.advance()
			return &LiteralNode{Value: false}, nil
		case "None", "nil":
			p.advance()
			return &LiteralNode{Value: nil}, nil
		}
	case ExprTokenOp:
		switch tok.Value {
		case "(":
			p.advance()
			return p.parseParen()
		case "[":
			p.advance()
			return p.parseListDisplay()
		case "{":
			p.advance()
			return p.parseDictDisplay()
		}
	}
	return nil, p.unexpected()
}

func (p *ExprParser) parseParen() (ExprNode, error) {
	if p.isOp(")") {
		p.advance()
		return &ListNode{Tuple: true}, nil
	}
	first, err := p.parseTest()
	if err != nil {
		return nil, err
	}
	if p.isOp(")") {
		p.advance()
		return first, nil
	}
	elems := []ExprNode{first}
	for p.isOp(",") {
		p.advance()
		if p.isOp(")") {
			break
		}
		next, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		elems = append(elems, next)
	}
	if err := p.expectOp(")"); err != nil {
		return nil, err
	}
	return &ListNode{Elems: elems, Tuple: true}, nil
}

func (p *ExprParser) parseListDisplay() (ExprNode, error) {
	var elems []ExprNode
	for !p.isOp("]") {
		e, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		elems = append(elems, e)
		if !p.isOp(",") {
			break
		}
		p.advance()
	}
	if err := p.expectOp("]"); err != nil {
		return nil, err
	}
	return &ListNode{Elems: elems}, nil
}

func (p *ExprParser) parseDictDisplay() (ExprNode, error) {
	node := &DictNode{}
	for !p.isOp("}") {
		k, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		if err := p.expectOp(":"); err != nil {
			return nil, err
		}
		v, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		node.Keys = append(node.Keys, k)
		node.Values = append(node.Values, v)
		if !p.isOp(",") {
			break
		}
		p.advance()
	}
	if err := p.expectOp("}"); err != nil {
		return nil, err
	}
	return node, nil
}

// =============================================================================
// Token helpers
// =============================================================================

func (p *ExprParser) peek() ExprToken {
	return p.peekAt(0)
}

func (p *ExprParser) peekAt(offset int) ExprToken {
	if p.pos+offset >= len(p.tokens) {
		return ExprToken{Type: ExprTokenEOF}
	}
	return p.tokens[p.pos+offset]
}

func (p *ExprParser) advance() ExprToken {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

func (p *ExprParser) atEnd() bool {
	return p.peek().Type == ExprTokenEOF
}

func (p *ExprParser) isOp(op string) bool {
	tok := p.peek()
	return tok.Type == ExprTokenOp && tok.Value == op
}

func (p *ExprParser) isKeyword(kw string) bool {
	tok := p.peek()
	return tok.Type == ExprTokenKeyword && tok.Value == kw
}

func (p *ExprParser) skipNewlines() {
	for p.peek().Type == ExprTokenNewline {
		p.advance()
	}
}

func (p *ExprParser) skipSeparators() {
	for p.peek().Type == ExprTokenNewline || p.isOp(";") {
		p.advance()
	}
}

func (p *ExprParser) expectOp(op string) error {
	if !p.isOp(op) {
		tok := p.peek()
		return NewExprParseError(fmt.Sprintf("%s %q, got %q", ErrMsgExpectedToken, op, tok.Value), tok.Line, tok.Col)
	}
	p.advance()
	return nil
}

func (p *ExprParser) expectKeyword(kw string) error {
	if !p.isKeyword(kw) {
		tok := p.peek()
		return NewExprParseError(fmt.Sprintf("%s %q, got %q", ErrMsgExpectedToken, kw, tok.Value), tok.Line, tok.Col)
	}
	p.advance()
	return nil
}

func (p *ExprParser) unexpected() error {
	tok := p.peek()
	if tok.Type == ExprTokenEOF {
		return NewExprParseError(ErrMsgUnexpectedToken+" EOF", tok.Line, tok.Col)
	}
	return NewExprParseError(fmt.Sprintf("%s %q", ErrMsgUnexpectedToken, tok.Value), tok.Line, tok.Col)
}

func (p *ExprParser) errorAt(msg string) error {
	tok := p.peek()
	return NewExprParseError(msg, tok.Line, tok.Col)
}

// ExprParseError represents a syntax error in an expression or statement.
type ExprParseError struct {
	Message string
	Line    int
	Col     int
}

// NewExprParseError creates a new parse error.
func NewExprParseError(message string, line, col int) *ExprParseError {
	return &ExprParseError{Message: message, Line: line, Col: col}
}

// Error implements the error interface.
func (e *ExprParseError) Error() string {
	return fmt.Sprintf("%s at line %d, column %d", e.Message, e.Line, e.Col)
}
