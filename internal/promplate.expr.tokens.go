package internal

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ExprTokenType represents the type of an expression token.
type ExprTokenType int

// Expression token types.
const (
	ExprTokenEOF ExprTokenType = iota
	ExprTokenNewline
	ExprTokenIdent
	ExprTokenKeyword
	ExprTokenInt
	ExprTokenFloat
	ExprTokenString
	ExprTokenOp
)

var exprTokenNames = map[ExprTokenType]string{
	ExprTokenEOF:     "EOF",
	ExprTokenNewline: "NEWLINE",
	ExprTokenIdent:   "IDENT",
	ExprTokenKeyword: "KEYWORD",
	ExprTokenInt:     "INT",
	ExprTokenFloat:   "FLOAT",
	ExprTokenString:  "STRING",
	ExprTokenOp:      "OP",
}

// String returns the string representation of the token type.
func (t ExprTokenType) String() string {
	if name, ok := exprTokenNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// ExprToken is a single token of the statement/expression language.
type ExprToken struct {
	Type  ExprTokenType
	Value string
	Line  int // 1-indexed, relative to the tokenized text
	Col   int
}

// String returns a debug representation of the token.
func (t ExprToken) String() string {
	return fmt.Sprintf("%s(%q)", t.Type, t.Value)
}

var exprKeywords = map[string]bool{
	"and": true, "or": true, "not": true, "in": true, "is": true,
	"if": true, "else": true, "True": true, "False": true, "None": true,
	"true": true, "false": true, "nil": true,
	KeywordAwait: true, KeywordBreak: true, KeywordContinue: true, KeywordPass: true,
	"def": true, "class": true, "for": true, "while": true, "elif": true,
	"return": true, "import": true, "from": true, "lambda": true, "del": true,
	"with": true, "try": true, "raise": true, "yield": true, "global": true,
}

// longest operators first so prefix matching picks the right one.
var exprOperators = []string{
	"**=", "//=",
	"**", "//", "==", "!=", "<=", ">=", "+=", "-=", "*=", "/=", "%=", "&&", "||",
	"+", "-", "*", "/", "%", "<", ">", "=", "(", ")", "[", "]", "{", "}", ",", ":", ".", "!", ";",
}

// ExprLexer tokenizes statement and expression source.
type ExprLexer struct {
	src   string
	pos   int
	line  int
	col   int
	depth int // bracket nesting; newlines inside brackets are insignificant
}

// NewExprLexer creates a lexer for the given source.
func NewExprLexer(src string) *ExprLexer {
	return &ExprLexer{src: src, line: 1, col: 1}
}

// Tokenize returns all tokens, always terminated by an EOF token.
func (l *ExprLexer) Tokenize() ([]ExprToken, error) {
	var tokens []ExprToken
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		if tok.Type == ExprTokenNewline && (len(tokens) == 0 || tokens[len(tokens)-1].Type == ExprTokenNewline) {
			continue
		}
		tokens = append(tokens, tok)
		if tok.Type == ExprTokenEOF {
			return tokens, nil
		}
	}
}

func (l *ExprLexer) next() (ExprToken, error) {
	l.skipInsignificant()
	if l.pos >= len(l.src) {
		return ExprToken{Type: ExprTokenEOF, Line: l.line, Col: l.col}, nil
	}

	line, col := l.line, l.col
	c := l.src[l.pos]

	switch {
	case c == '\n':
		l.advance(1)
		return ExprToken{Type: ExprTokenNewline, Value: "\n", Line: line, Col: col}, nil
	case c == '"' || c == '\'':
		s, err := l.scanString()
		if err != nil {
			return ExprToken{}, err
		}
		return ExprToken{Type: ExprTokenString, Value: s, Line: line, Col: col}, nil
	case isDigit(c) || (c == '.' && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1])):
		return l.scanNumber(line, col)
	}

	r, _ := utf8.DecodeRuneInString(l.src[l.pos:])
	if r == '_' || unicode.IsLetter(r) {
		start := l.pos
		for l.pos < len(l.src) {
			r, size := utf8.DecodeRuneInString(l.src[l.pos:])
			if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
				break
			}
			l.advance(size)
		}
		word := l.src[start:l.pos]
		if exprKeywords[word] {
			return ExprToken{Type: ExprTokenKeyword, Value: word, Line: line, Col: col}, nil
		}
		return ExprToken{Type: ExprTokenIdent, Value: word, Line: line, Col: col}, nil
	}

	for _, op := range exprOperators {
		if strings.HasPrefix(l.src[l.pos:], op) {
			l.advance(len(op))
			switch op {
			case "(", "[", "{":
				l.depth++
			case ")", "]", "}":
				if l.depth > 0 {
					l.depth--
				}
			}
			return ExprToken{Type: ExprTokenOp, Value: op, Line: line, Col: col}, nil
		}
	}

	return ExprToken{}, NewExprParseError(fmt.Sprintf("%s %q", ErrMsgUnexpectedChar, r), line, col)
}

// skipInsignificant skips blanks, comments, line continuations and bracketed newlines.
func (l *ExprLexer) skipInsignificant() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\f':
			l.advance(1)
		case c == '\\' && l.pos+1 < len(l.src) && l.src[l.pos+1] == '\n':
			l.advance(2)
		case c == '#':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.advance(1)
			}
		case c == '\n' && l.depth > 0:
			l.advance(1)
		default:
			return
		}
	}
}

func (l *ExprLexer) advance(n int) {
	for i := 0; i < n && l.pos < len(l.src); i++ {
		if l.src[l.pos] == '\n' {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
		l.pos++
	}
}

func (l *ExprLexer) scanNumber(line, col int) (ExprToken, error) {
	start := l.pos
	isFloat := false
scan:
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case isDigit(c) || c == '_':
			l.advance(1)
		case c == '.' && !isFloat && !l.identStartsAt(l.pos+1):
			isFloat = true
			l.advance(1)
		case (c == 'e' || c == 'E') && l.pos+1 < len(l.src):
			isFloat = true
			l.advance(1)
			if l.src[l.pos] == '+' || l.src[l.pos] == '-' {
				l.advance(1)
			}
		default:
			break scan
		}
	}
	text := strings.ReplaceAll(l.src[start:l.pos], "_", "")
	if isFloat {
		if _, err := strconv.ParseFloat(text, 64); err != nil {
			return ExprToken{}, NewExprParseError(fmt.Sprintf("%s %q", ErrMsgInvalidNumber, text), line, col)
		}
		return ExprToken{Type: ExprTokenFloat, Value: text, Line: line, Col: col}, nil
	}
	if _, err := strconv.Atoi(text); err != nil {
		return ExprToken{}, NewExprParseError(fmt.Sprintf("%s %q", ErrMsgInvalidNumber, text), line, col)
	}
	return ExprToken{Type: ExprTokenInt, Value: text, Line: line, Col: col}, nil
}

func (l *ExprLexer) scanString() (string, error) {
	line, col := l.line, l.col
	quote := l.src[l.pos]
	triple := strings.HasPrefix(l.src[l.pos:], strings.Repeat(string(quote), 3))
	if triple {
		l.advance(3)
	} else {
		l.advance(1)
	}

	var sb strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == quote {
			if !triple {
				l.advance(1)
				return sb.String(), nil
			}
			if strings.HasPrefix(l.src[l.pos:], strings.Repeat(string(quote), 3)) {
				l.advance(3)
				return sb.String(), nil
			}
		}
		if c == '\n' && !triple {
			break
		}
		if c == '\\' && l.pos+1 < len(l.src) {
			l.advance(1)
			esc := l.src[l.pos]
			switch esc {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '0':
				sb.WriteByte(0)
			case '\\', '\'', '"':
				sb.WriteByte(esc)
			case '\n':
			case 'x', 'u':
				width := 2
				if esc == 'u' {
					width = 4
				}
				if l.pos+width < len(l.src) {
					if code, err := strconv.ParseUint(l.src[l.pos+1:l.pos+1+width], 16, 32); err == nil {
						sb.WriteRune(rune(code))
						l.advance(width + 1)
						continue
					}
				}
				sb.WriteByte('\\')
				sb.WriteByte(esc)
			default:
				sb.WriteByte('\\')
				sb.WriteByte(esc)
			}
			l.advance(1)
			continue
		}
		sb.WriteByte(c)
		l.advance(1)
	}
	return "", NewExprParseError(ErrMsgUnterminatedString, line, col)
}

func (l *ExprLexer) identStartsAt(i int) bool {
	if i >= len(l.src) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(l.src[i:])
	return r == '_' || unicode.IsLetter(r)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
