package internal

import (
	"strings"
)

// Line is one line of generated program text. Executable lines also implement Instr.
type Line interface {
	Source() string
}

// textLine is a listing-only line with no runtime effect.
type textLine string

// Source implements Line.
func (t textLine) Source() string { return string(t) }

type builderItem struct {
	depth   int
	line    Line
	section *CodeBuilder
}

// CodeBuilder accumulates indented program lines.
//
// Sections are nested builders placed at the current position whose lines are
// filled in later, which is how the free-variable declarations end up at the top
// of the listing once every use is known.
type CodeBuilder struct {
	items       []builderItem
	indentLevel int
}

// NewCodeBuilder creates a builder starting at the given indentation level.
func NewCodeBuilder(indentLevel int) *CodeBuilder {
	return &CodeBuilder{indentLevel: indentLevel}
}

// NewBaseBuilder creates the builder every template program starts from:
// the render function header and the output accumulator.
func NewBaseBuilder(async bool) *CodeBuilder {
	header := ScriptRenderSync
	if async {
		header = ScriptRenderAsync
	}
	return NewCodeBuilder(0).
		AddLine(textLine(header)).
		Indent().
		AddLine(textLine(ScriptPartsInit)).
		AddLine(textLine(ScriptAppendInit))
}

// AddLine appends one line at the current indentation.
func (b *CodeBuilder) AddLine(line Line) *CodeBuilder {
	b.items = append(b.items, builderItem{depth: b.indentLevel, line: line})
	return b
}

// AddSection inserts a nested builder at the current position and indentation.
func (b *CodeBuilder) AddSection() *CodeBuilder {
	section := NewCodeBuilder(b.indentLevel)
	b.items = append(b.items, builderItem{depth: b.indentLevel, section: section})
	return section
}

// Indent increases the indentation of following lines.
func (b *CodeBuilder) Indent() *CodeBuilder {
	b.indentLevel++
	return b
}

// Dedent decreases the indentation of following lines.
func (b *CodeBuilder) Dedent() *CodeBuilder {
	b.indentLevel--
	return b
}

// IndentLevel returns the current indentation depth.
func (b *CodeBuilder) IndentLevel() int {
	return b.indentLevel
}

// Render returns the listing using indentStr for each indentation level.
func (b *CodeBuilder) Render(indentStr string) string {
	var sb strings.Builder
	for _, item := range b.flatten() {
		sb.WriteString(strings.Repeat(indentStr, item.depth))
		sb.WriteString(item.line.Source())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// flatten expands sections in place.
func (b *CodeBuilder) flatten() []builderItem {
	out := make([]builderItem, 0, len(b.items))
	for _, item := range b.items {
		if item.section != nil {
			out = append(out, item.section.flatten()...)
			continue
		}
		out = append(out, item)
	}
	return out
}

// Compile turns the accumulated lines into an executable block tree.
// The indentation must have returned to zero.
func (b *CodeBuilder) Compile() ([]Instr, error) {
	if b.indentLevel != 0 {
		return nil, NewCompileError(ErrMsgIndentNotZero, "", Position{})
	}
	items := b.flatten()

	// the body is everything nested under the render header
	var body []builderItem
	for _, item := range items {
		if item.depth > 0 {
			body = append(body, item)
		}
	}
	instrs, next, err := assemble(body, 0, 1)
	if err != nil {
		return nil, err
	}
	if next != len(body) {
		return nil, NewCompileError(ErrMsgUnexpectedToken, "", Position{})
	}
	return instrs, nil
}

// assemble builds the instructions at one depth, attaching indented bodies to headers.
func assemble(items []builderItem, start, depth int) ([]Instr, int, error) {
	var out []Instr
	var open compound // the last compound statement, which a branch line may extend
	i := start
	for i < len(items) && items[i].depth >= depth {
		item := items[i]
		if item.depth > depth {
			return nil, i, NewCompileError(ErrMsgUnexpectedToken, "", Position{})
		}
		i++

		switch h := item.line.(type) {
		case *ifHeader:
			body, next, err := assemble(items, i, depth+1)
			if err != nil {
				return nil, next, err
			}
			node := &ifInstr{branches: []condBranch{{cond: h.cond, body: body}}, line: h.line}
			out = append(out, node)
			open, i = node, next
		case *forHeader:
			body, next, err := assemble(items, i, depth+1)
			if err != nil {
				return nil, next, err
			}
			node := &forInstr{targets: h.targets, iter: h.iter, body: body, line: h.line}
			out = append(out, node)
			open, i = node, next
		case *whileHeader:
			body, next, err := assemble(items, i, depth+1)
			if err != nil {
				return nil, next, err
			}
			node := &whileInstr{cond: h.cond, body: body, line: h.line}
			out = append(out, node)
			open, i = node, next
		case *elifHeader:
			node, ok := open.(*ifInstr)
			if !ok || node.hasElse {
				return nil, i, NewCompileError(ErrMsgOrphanBranch, KeywordElif, Position{Line: h.line})
			}
			body, next, err := assemble(items, i, depth+1)
			if err != nil {
				return nil, next, err
			}
			node.branches = append(node.branches, condBranch{cond: h.cond, body: body})
			i = next
		case *elseHeader:
			if open == nil || open.elseTaken() {
				return nil, i, NewCompileError(ErrMsgOrphanBranch, KeywordElse, Position{Line: h.line})
			}
			body, next, err := assemble(items, i, depth+1)
			if err != nil {
				return nil, next, err
			}
			open.setElse(body)
			i = next
		case Instr:
			out = append(out, h)
			open = nil
		}
	}
	return out, i, nil
}
