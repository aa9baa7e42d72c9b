package internal

import (
	"fmt"
	"strings"
)

// ExprType identifies expression node types.
type ExprType int

// Expression node types.
const (
	ExprLiteral ExprType = iota
	ExprName
	ExprAttr
	ExprIndex
	ExprSlice
	ExprCall
	ExprUnary
	ExprBinary
	ExprBool
	ExprCompare
	ExprCond
	ExprList
	ExprDict
	ExprAwait
)

// ExprNode is the interface implemented by every expression node.
type ExprNode interface {
	Type() ExprType
	String() string
	exprNode()
}

// LiteralNode is a constant value.
type LiteralNode struct {
	Value any
}

// NameNode is a variable reference.
type NameNode struct {
	Name string
}

// AttrNode is x.name.
type AttrNode struct {
	Target ExprNode
	Name   string
}

// IndexNode is x[i]
type IndexNode struct {
	Target ExprNode
	Index  ExprNode
}

// SliceNode is x[low:high:step]; nil bounds are open.
type SliceNode struct {
	Target ExprNode
	Low    ExprNode
	High   ExprNode
	Step   ExprNode
}

// ArgKind distinguishes call argument forms.
type ArgKind int

// Argument kinds.
const (
	ArgPositional ArgKind = iota
	ArgKeyword
	ArgStarStar
	ArgStar
)

// Argument is one argument of a call or component invocation.
type Argument struct {
	Kind  ArgKind
	Name  string
	Value ExprNode // nil for a bare *
}

// String renders the argument in source form.
func (a Argument) String() string {
	switch a.Kind {
	case ArgKeyword:
		return a.Name + "=" + a.Value.String()
	case ArgStarStar:
		return "**" + a.Value.String()
	case ArgStar:
		if a.Value == nil {
			return "*"
		}
		return "*" + a.Value.String()
	default:
		return a.Value.String()
	}
}

// CallNode is f(args).
type CallNode struct {
	Func ExprNode
	Args []Argument
}

// UnaryNode is -x, +x or not x.
type UnaryNode struct {
	Op      string
	Operand ExprNode
}

// BinaryNode is an arithmetic operation.
type BinaryNode struct {
	Op    string
	Left  ExprNode
	Right ExprNode
}

// BoolNode is a short-circuit and/or.
type BoolNode struct {
	Op    string
	Left  ExprNode
	Right ExprNode
}

// CompareNode is a (possibly chained) comparison: a < b <= c.
type CompareNode struct {
	Left   ExprNode
	Ops    []string
	Rights []ExprNode
}

// CondNode is then if cond else otherwise.
type CondNode struct {
	Cond      ExprNode
	Then      ExprNode
	Otherwise ExprNode
}

// ListNode is a list or tuple display.
type ListNode struct {
	Elems []ExprNode
	Tuple bool
}

// DictNode is a dict display.
type DictNode struct {
	Keys   []ExprNode
	Values []ExprNode
}

// AwaitNode is await x.
type AwaitNode struct {
	Value ExprNode
}

func (*LiteralNode) Type() ExprType { return ExprLiteral }
func (*NameNode) Type() ExprType    { return ExprName }
func (*AttrNode) Type() ExprType    { return ExprAttr }
func (*IndexNode) Type() ExprType   { return ExprIndex }
func (*SliceNode) Type() ExprType   { return ExprSlice }
func (*CallNode) Type() ExprType    { return ExprCall }
func (*UnaryNode) Type() ExprType   { return ExprUnary }
func (*BinaryNode) Type() ExprType  { return ExprBinary }
func (*BoolNode) Type() ExprType    { return ExprBool }
func (*CompareNode) Type() ExprType { return ExprCompare }
func (*CondNode) Type() ExprType    { return ExprCond }
func (*ListNode) Type() ExprType    { return ExprList }
func (*DictNode) Type() ExprType    { return ExprDict }
func (*AwaitNode) Type() ExprType   { return ExprAwait }

func (*LiteralNode) exprNode() {}
func (*NameNode) exprNode()    {}
func (*AttrNode) exprNode()    {}
func (*IndexNode) exprNode()   {}
func (*SliceNode) exprNode()   {}
func (*CallNode) exprNode()    {}
func (*UnaryNode) exprNode()   {}
func (*BinaryNode) exprNode()  {}
func (*BoolNode) exprNode()    {}
func (*CompareNode) exprNode() {}
func (*CondNode) exprNode()    {}
func (*ListNode) exprNode()    {}
func (*DictNode) exprNode()    {}
func (*AwaitNode) exprNode()   {}

func (n *LiteralNode) String() string { return Repr(n.Value) }
func (n *NameNode) String() string    { return n.Name }
func (n *AttrNode) String() string    { return n.Target.String() + "." + n.Name }

func (n *IndexNode) String() string {
	return n.Target.String() + "[" + n.Index.String() + "]"
}

func (n *SliceNode) String() string {
	part := func(e ExprNode) string {
		if e == nil {
			return ""
		}
		return e.String()
	}
	s := part(n.Low) + ":" + part(n.High)
	if n.Step != nil {
		s += ":" + n.Step.String()
	}
	return n.Target.String() + "[" + s + "]"
}

func (n *CallNode) String() string {
	args := make([]string, len(n.Args))
	for i, a := range n.Args {
		args[i] = a.String()
	}
	return n.Func.String() + "(" + strings.Join(args, ", ") + ")"
}

func (n *UnaryNode) String() string {
	if n.Op == "not" {
		return "not " + n.Operand.String()
	}
	return n.Op + n.Operand.String()
}

func (n *BinaryNode) String() string {
	return fmt.Sprintf("(%s %s %s)", n.Left, n.Op, n.Right)
}

func (n *BoolNode) String() string {
	return fmt.Sprintf("(%s %s %s)", n.Left, n.Op, n.Right)
}

func (n *CompareNode) String() string {
	var sb strings.Builder
	sb.WriteString(n.Left.String())
	for i, op := range n.Ops {
		sb.WriteString(" " + op + " ")
		sb.WriteString(n.Rights[i].String())
	}
	return sb.String()
}

func (n *CondNode) String() string {
	return fmt.Sprintf("(%s if %s else %s)", n.Then, n.Cond, n.Otherwise)
}

func (n *ListNode) String() string {
	elems := make([]string, len(n.Elems))
	for i, e := range n.Elems {
		elems[i] = e.String()
	}
	if n.Tuple {
		if len(elems) == 1 {
			return "(" + elems[0] + ",)"
		}
		return "(" + strings.Join(elems, ", ") + ")"
	}
	return "[" + strings.Join(elems, ", ") + "]"
}

func (n *DictNode) String() string {
	items := make([]string, len(n.Keys))
	for i := range n.Keys {
		items[i] = n.Keys[i].String() + ": " + n.Values[i].String()
	}
	return "{" + strings.Join(items, ", ") + "}"
}

func (n *AwaitNode) String() string { return "await " + n.Value.String() }

// StmtNode is the interface implemented by every statement node.
type StmtNode interface {
	Line() int
	String() string
	stmtNode()
}

// AssignStmt is target = value, possibly chained (a = b = 1).
type AssignStmt struct {
	Targets []ExprNode
	Value   ExprNode
	Pos     int
}

// AugAssignStmt is target op= value.
type AugAssignStmt struct {
	Target ExprNode
	Op     string // the arithmetic operator without "="
	Value  ExprNode
	Pos    int
}

// ExprStmt evaluates an expression for its side effects.
type ExprStmt struct {
	X   ExprNode
	Pos int
}

// PassStmt does nothing.
type PassStmt struct{ Pos int }

// BreakStmt leaves the innermost loop.
type BreakStmt struct{ Pos int }

// ContinueStmt starts the next iteration of the innermost loop.
type ContinueStmt struct{ Pos int }

func (s *AssignStmt) Line() int    { return s.Pos }
func (s *AugAssignStmt) Line() int { return s.Pos }
func (s *ExprStmt) Line() int      { return s.Pos }
func (s *PassStmt) Line() int      { return s.Pos }
func (s *BreakStmt) Line() int     { return s.Pos }
func (s *ContinueStmt) Line() int  { return s.Pos }

func (*AssignStmt) stmtNode()    {}
func (*AugAssignStmt) stmtNode() {}
func (*ExprStmt) stmtNode()      {}
func (*PassStmt) stmtNode()      {}
func (*BreakStmt) stmtNode()     {}
func (*ContinueStmt) stmtNode()  {}

func (s *AssignStmt) String() string {
	parts := make([]string, 0, len(s.Targets)+1)
	for _, t := range s.Targets {
		parts = append(parts, t.String())
	}
	parts = append(parts, s.Value.String())
	return strings.Join(parts, " = ")
}

func (s *AugAssignStmt) String() string {
	return fmt.Sprintf("%s %s= %s", s.Target, s.Op, s.Value)
}

func (s *ExprStmt) String() string     { return s.X.String() }
func (s *PassStmt) String() string     { return KeywordPass }
func (s *BreakStmt) String() string    { return KeywordBreak }
func (s *ContinueStmt) String() string { return KeywordContinue }
