package internal

// SegmentKind classifies a piece of template source produced by the tokenizer.
type SegmentKind int

// Segment kinds.
const (
	SegmentLiteral SegmentKind = iota
	SegmentExpression
	SegmentStatement
	SegmentCode
)

// Segment kind names for debugging.
const (
	SegmentKindNameLiteral    = "LITERAL"
	SegmentKindNameExpression = "EXPRESSION"
	SegmentKindNameStatement  = "STATEMENT"
	SegmentKindNameCode       = "CODE"
)

// String returns the string representation of the segment kind.
func (k SegmentKind) String() string {
	switch k {
	case SegmentExpression:
		return SegmentKindNameExpression
	case SegmentStatement:
		return SegmentKindNameStatement
	case SegmentCode:
		return SegmentKindNameCode
	default:
		return SegmentKindNameLiteral
	}
}

// Template delimiters.
const (
	StrExprOpen   = "{{"
	StrExprClose  = "}}"
	StrStmtOpen   = "{%"
	StrStmtClose  = "%}"
	StrCodeOpen   = "{#"
	StrCodeClose  = "#}"
	StrTrimMarker = "-"
	DelimLen      = 2
)

// Control keywords recognised inside {% %}
const (
	KeywordIf       = "if"
	KeywordElif     = "elif"
	KeywordElse     = "else"
	KeywordFor      = "for"
	KeywordWhile    = "while"
	KeywordIn       = "in"
	KeywordEnd      = "end"
	KeywordBreak    = "break"
	KeywordContinue = "continue"
	KeywordPass     = "pass"
	KeywordAwait    = "await"
)

// Generated listing vocabulary.
const (
	ScriptRenderSync  = "def render():"
	ScriptRenderAsync = "async def render():"
	ScriptPartsInit   = "__parts__ = []"
	ScriptAppendInit  = "__append__ = __parts__.append"
	ScriptReturn      = "return ''.join(map(str, __parts__))"
	ScriptRequires    = "# requires: "
	ScriptAppendFmt   = "__append__(%s)"
	ScriptRenderFmt   = "__append__(%s.render(%s))"
	ScriptARenderFmt  = "__append__(await %s.arender(%s))"
	ScriptLocals      = "locals()"
	DefaultIndent     = "\t"
)

// Python-flavoured error kinds raised while evaluating a program.
const (
	ErrKindName        = "NameError"
	ErrKindType        = "TypeError"
	ErrKindAttribute   = "AttributeError"
	ErrKindKey         = "KeyError"
	ErrKindIndex       = "IndexError"
	ErrKindValue       = "ValueError"
	ErrKindZeroDiv     = "ZeroDivisionError"
	ErrKindOverflow    = "OverflowError"
	ErrKindSyntax      = "SyntaxError"
	ErrKindInterrupted = "Interrupted"
)

// Compile error messages.
const (
	ErrMsgEmptyCondition     = "missing condition after"
	ErrMsgMalformedFor       = "malformed for clause, expected 'for <target> in <iterable>'"
	ErrMsgUnmatchedEnd       = "end tag does not match the open block"
	ErrMsgUnexpectedEnd      = "end tag without an open block"
	ErrMsgUnclosedBlock      = "block is never closed"
	ErrMsgOrphanBranch       = "branch tag outside a matching block"
	ErrMsgDuplicateElse      = "block already has an else branch"
	ErrMsgEvalNeedsExpr      = "{{ }} block must end with an expression, or you should use {# #} block"
	ErrMsgEmptyExpression    = "empty expression"
	ErrMsgLoopControlOutside = "outside loop"
	ErrMsgAwaitOutsideAsync  = "'await' outside async render"
	ErrMsgIndentNotZero      = "code builder indentation has not returned to zero"
	ErrMsgInvalidComponent   = "invalid component name"
	ErrMsgUnsupportedStmt    = "unsupported statement"
	ErrMsgUnexpectedToken    = "unexpected token"
	ErrMsgUnterminatedString = "unterminated string literal"
	ErrMsgInvalidNumber      = "invalid number literal"
	ErrMsgInvalidTarget      = "cannot assign to expression"
	ErrMsgExpectedToken      = "expected"
	ErrMsgUnexpectedChar     = "unexpected character"
)

// Evaluation error messages.
const (
	ErrMsgNameNotDefined   = "name '%s' is not defined"
	ErrMsgNoAttribute      = "'%s' object has no attribute '%s'"
	ErrMsgNotSubscript     = "'%s' object is not subscriptable"
	ErrMsgIndexRange       = "%s index out of range"
	ErrMsgKeyMissing       = "%s"
	ErrMsgNotIterable      = "'%s' object is not iterable"
	ErrMsgNotCallable      = "'%s' object is not callable"
	ErrMsgUnsupportedOp    = "unsupported operand type(s) for %s: '%s' and '%s'"
	ErrMsgUnsupportedUnary = "bad operand type for unary %s: '%s'"
	ErrMsgNotComparable    = "'%s' not supported between instances of '%s' and '%s'"
	ErrMsgDivisionByZero   = "division by zero"
	ErrMsgIntOverflow      = "integer result of %s is too large"
	ErrMsgUnpackMismatch   = "cannot unpack %d values into %d targets"
	ErrMsgNotAComponent    = "'%s' object has no attribute 'render'"
	ErrMsgNotAwaitable     = "object %s can't be used in 'await' expression"
	ErrMsgArgCount         = "%s() takes %s arguments (%d given)"
	ErrMsgBadArgType       = "%s() argument must be %s, not '%s'"
	ErrMsgInvalidLiteral   = "invalid literal for %s(): %s"
	ErrMsgNotMapping       = "'%s' object is not a mapping"
	ErrMsgUnexpectedKwarg  = "%s() got an unexpected keyword argument '%s'"
	ErrMsgAssignUnsupport  = "'%s' object does not support item assignment"
)

// Function registry messages.
const (
	ErrMsgFuncNilFunc       = "function cannot be nil"
	ErrMsgFuncEmptyName     = "function name cannot be empty"
	ErrMsgFuncAlreadyExists = "function already registered"
	ErrMsgFuncNotFound      = "function not found"
	ErrMsgFuncTooFewArgs    = "too few arguments"
	ErrMsgFuncTooManyArgs   = "too many arguments"
)

// Log messages.
const (
	LogMsgLexerCreated      = "lexer created"
	LogMsgTokenizeDone      = "tokenization complete"
	LogMsgCompileStart      = "compiling template"
	LogMsgCompileDone       = "template compiled"
	LogMsgCompileFailed     = "template compilation failed"
	LogMsgProgramRun        = "running template program"
	LogMsgComponentRender   = "rendering component"
	LogMsgUnclosedConstruct = "unclosed construct kept as literal text"
)

// Log field names.
const (
	LogFieldSource    = "source_length"
	LogFieldSegments  = "segments"
	LogFieldTemplate  = "template"
	LogFieldAsync     = "async"
	LogFieldLines     = "lines"
	LogFieldComponent = "component"
	LogFieldOffset    = "offset"
	LogFieldError     = "error"
)

// Python type names used in error messages.
const (
	TypeNameNone     = "NoneType"
	TypeNameBool     = "bool"
	TypeNameInt      = "int"
	TypeNameFloat    = "float"
	TypeNameStr      = "str"
	TypeNameList     = "list"
	TypeNameDict     = "dict"
	TypeNameFunction = "function"
)
