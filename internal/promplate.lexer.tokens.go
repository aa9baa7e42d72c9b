package internal

import (
	"strings"
	"unicode"
)

// Position represents a location in the template source.
type Position struct {
	Offset int // Byte offset from start
	Line   int // 1-indexed line number
	Column int // 1-indexed column number
}

// Segment is one piece of template source: literal text or a delimited construct.
// Raw keeps the exact source text, including whitespace swallowed by trim markers.
type Segment struct {
	Kind SegmentKind
	Raw  string
	Pos  Position
}

// NewLiteralSegment creates a literal text segment.
func NewLiteralSegment(text string, pos Position) Segment {
	return Segment{Kind: SegmentLiteral, Raw: text, Pos: pos}
}

// Inner returns the content between the delimiters with trim markers removed,
// common indentation dedented and surrounding whitespace stripped.
func (s Segment) Inner() string {
	if s.Kind == SegmentLiteral {
		return s.Raw
	}
	body := strings.TrimSpace(s.Raw)
	body = body[DelimLen : len(body)-DelimLen]
	body = strings.Trim(body, StrTrimMarker)
	return strings.TrimSpace(Dedent(body))
}

// InnerLine returns the source line on which the inner content starts.
func (s Segment) InnerLine() int {
	body := s.Raw
	idx := strings.Index(body, "{")
	if idx < 0 {
		return s.Pos.Line
	}
	rest := body[idx+DelimLen:]
	rest = strings.TrimLeft(rest, StrTrimMarker)
	lead := len(rest) - len(strings.TrimLeftFunc(rest, unicode.IsSpace))
	return s.Pos.Line + strings.Count(body[:idx], "\n") + strings.Count(rest[:lead], "\n")
}

// Dedent removes any common leading whitespace from every non-blank line.
// Lines made only of whitespace are normalised to empty lines.
func Dedent(text string) string {
	lines := strings.Split(text, "\n")
	margin := ""
	first := true
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		if first {
			margin = indent
			first = false
			continue
		}
		margin = commonPrefix(margin, indent)
	}
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			lines[i] = ""
			continue
		}
		lines[i] = line[len(margin):]
	}
	return strings.Join(lines, "\n")
}

func commonPrefix(a, b string) string {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return a[:i]
		}
	}
	return a[:n]
}
