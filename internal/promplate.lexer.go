package internal

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Lexer splits template source into literal text and delimited constructs.
//
// A construct closes at the first matching close marker after its opener. A hyphen
// directly inside a delimiter ({{- or -}}) swallows exactly one whitespace character
// on that side. An opener that never closes stays literal text, as does a {% %}
// statement that spans several lines.
type Lexer struct {
	source     string
	lineStarts []int
	logger     *zap.Logger
}

// NewLexer creates a new lexer for the given source.
func NewLexer(source string, logger *zap.Logger) *Lexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug(LogMsgLexerCreated, zap.Int(LogFieldSource, len(source)))

	starts := []int{0}
	for i := 0; i < len(source); i++ {
		if source[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &Lexer{
		source:     source,
		lineStarts: starts,
		logger:     logger,
	}
}

// Tokenize processes the source and returns the segment stream.
// Adjacent literal pieces are merged so no two literal segments follow each other.
func (l *Lexer) Tokenize() []Segment {
	var (
		segments []Segment
		literal  strings.Builder
		litStart = 0
		pos      = 0
	)

	flush := func() {
		if literal.Len() > 0 {
			segments = append(segments, NewLiteralSegment(literal.String(), l.position(litStart)))
			literal.Reset()
		}
	}

	src := l.source
	for pos < len(src) {
		open := l.nextOpener(pos)
		if open < 0 {
			if literal.Len() == 0 {
				litStart = pos
			}
			literal.WriteString(src[pos:])
			break
		}

		closer := closerFor(src[open+1])
		rel := strings.Index(src[open+DelimLen:], closer)
		if rel < 0 {
			// Not a construct: keep the brace as text and keep scanning.
			l.logger.Debug(LogMsgUnclosedConstruct, zap.Int(LogFieldOffset, open))
			if literal.Len() == 0 {
				litStart = pos
			}
			literal.WriteString(src[pos : open+1])
			pos = open + 1
			continue
		}
		end := open + DelimLen + rel + DelimLen

		if literal.Len() == 0 {
			litStart = pos
		}
		literal.WriteString(src[pos:open])

		start := open
		body := src[open:end]
		if strings.HasPrefix(src[open+DelimLen:], StrTrimMarker) && literal.Len() > 0 {
			text := literal.String()
			r, size := utf8.DecodeLastRuneInString(text)
			if unicode.IsSpace(r) {
				literal.Reset()
				literal.WriteString(text[:len(text)-size])
				start = open - size
				body = src[start:end]
			}
		}
		if end-DelimLen-1 >= open+DelimLen && src[end-DelimLen-1] == StrTrimMarker[0] && end < len(src) {
			r, size := utf8.DecodeRuneInString(src[end:])
			if unicode.IsSpace(r) {
				end += size
				body = src[start:end]
			}
		}

		kind := kindFor(src[open+1])
		if kind == SegmentStatement && strings.Contains(strings.TrimSpace(body), "\n") {
			if literal.Len() == 0 {
				litStart = start
			}
			literal.WriteString(body)
			pos = end
			continue
		}

		flush()
		segments = append(segments, Segment{Kind: kind, Raw: body, Pos: l.position(start)})
		pos = end
	}
	flush()

	l.logger.Debug(LogMsgTokenizeDone, zap.Int(LogFieldSegments, len(segments)))
	return segments
}

// nextOpener returns the offset of the next "{{", "{%" or "{#" at or after from.
func (l *Lexer) nextOpener(from int) int {
	src := l.source
	for i := from; i < len(src)-1; i++ {
		if src[i] != '{' {
			continue
		}
		switch src[i+1] {
		case '{', '%', '#':
			return i
		}
	}
	return -1
}

// position converts a byte offset into a line/column position.
func (l *Lexer) position(offset int) Position {
	line := sort.Search(len(l.lineStarts), func(i int) bool {
		return l.lineStarts[i] > offset
	})
	return Position{
		Offset: offset,
		Line:   line,
		Column: offset - l.lineStarts[line-1] + 1,
	}
}

func closerFor(marker byte) string {
	switch marker {
	case '%':
		return StrStmtClose
	case '#':
		return StrCodeClose
	default:
		return StrExprClose
	}
}

func kindFor(marker byte) SegmentKind {
	switch marker {
	case '%':
		return SegmentStatement
	case '#':
		return SegmentCode
	default:
		return SegmentExpression
	}
}
