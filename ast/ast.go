// Package ast defines TILT's syntax tree (spec component C3) and the
// closed Type enumeration (spec §3.1) shared with package ir — the
// same relationship the original implementation had between its
// tilt-ast and tilt-ir crates ("use tilt_ast::Type as IRType").
//
// Every string field here borrows the source buffer the Program was
// parsed from; an ast.Program must not outlive that buffer (spec
// §3.2, §3.5).
package ast

import "github.com/tiltlang/tilt/token"

// Type is TILT's closed set of value types (spec §3.1). Void is only
// valid as a function return type and never the type of an SSA value.
type Type int

const (
	I32 Type = iota
	I64
	F32
	F64
	Usize
	Void
)

func (t Type) String() string {
	switch t {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	case Usize:
		return "usize"
	case Void:
		return "void"
	default:
		return "<invalid type>"
	}
}

// TokenToType maps a type-name token.Kind to the corresponding Type.
// ok is false for any other Kind.
func TokenToType(k token.Kind) (Type, bool) {
	switch k {
	case token.I32:
		return I32, true
	case token.I64:
		return I64, true
	case token.F32:
		return F32, true
	case token.F64:
		return F64, true
	case token.Usize:
		return Usize, true
	case token.Void:
		return Void, true
	default:
		return 0, false
	}
}

// TypedIdent is an `ident : Type` pair: a function/import parameter or
// a block parameter.
type TypedIdent struct {
	Name string
	Type Type
	Pos  token.Pos
}

// Program is an ordered sequence of top-level items (spec §3.2).
type Program struct {
	Imports []*Import
	Funcs   []*FunctionDef
}

// Import declares a host-provided function (spec §3.2).
type Import struct {
	Module   string // first string literal, e.g. "host"
	Name     string // second string literal, the host function name
	CallConv string // optional calling-convention tag; "" if absent
	Params   []TypedIdent
	Return   Type
	Pos      token.Pos
}

// FunctionDef is a user-defined TILT function. Blocks[0] is the entry
// block (spec §3.2).
type FunctionDef struct {
	Name   string
	Params []TypedIdent
	Return Type
	Blocks []*Block
	Pos    token.Pos
}

// Block is a labelled sequence of instructions ending in exactly one
// Terminator. Params serve as phi inputs from predecessor terminators
// (spec §3.2, §9 "Phis as block parameters").
type Block struct {
	Label  string
	Params []TypedIdent
	Instrs []*Instr
	Term   Terminator
	Pos    token.Pos
}

// ValueKind distinguishes the two operand forms TILT source admits.
type ValueKind int

const (
	ValIdent ValueKind = iota
	ValInt
)

// Value is an instruction/terminator operand: either a variable
// reference or a bare integer literal (spec §3.2, §4.3.4).
type Value struct {
	Kind ValueKind
	Name string // valid when Kind == ValIdent
	Int  int64  // valid when Kind == ValInt
	Pos  token.Pos
}

// Expr is the right-hand side of an assigning or expression-statement
// Instr (spec grammar, §4.2).
type Expr interface{ exprNode() }

// CallExpr covers both call forms of the grammar:
//
//	'call' ident '(' Args? ')'   (Explicit == true)
//	ident '(' Args? ')'          (Explicit == false; may be an op
//	                               mnemonic like "i32.add" or a bare
//	                               user function call)
type CallExpr struct {
	Callee   string
	Args     []Value
	Explicit bool
	Pos      token.Pos
}

func (*CallExpr) exprNode() {}

// LitExpr is a bare integer-literal expression (rare; spec §4.2).
type LitExpr struct {
	Value int64
	Pos   token.Pos
}

func (*LitExpr) exprNode() {}

// Instr is either an assigning instruction (Dest != nil) or an
// expression-statement (Dest == nil) (spec §4.2).
type Instr struct {
	Dest *TypedIdent
	Expr Expr
	Pos  token.Pos
}

// Terminator is the single instruction ending a basic block: exactly
// one of Ret, Br, BrIf (spec §3.2, GLOSSARY).
type Terminator interface{ termNode() }

// RetTerm returns from the enclosing function. Value is nil for a
// value-less return.
type RetTerm struct {
	Value *Value
	Pos   token.Pos
}

func (*RetTerm) termNode() {}

// BrTerm is an unconditional branch, passing Args positionally to
// Target's block parameters.
type BrTerm struct {
	Target string
	Args   []Value
	Pos    token.Pos
}

func (*BrTerm) termNode() {}

// BrIfTerm is a conditional branch; Cond is truthy when non-zero
// (spec §4.3.6).
type BrIfTerm struct {
	Cond        Value
	TrueTarget  string
	TrueArgs    []Value
	FalseTarget string
	FalseArgs   []Value
	Pos         token.Pos
}

func (*BrIfTerm) termNode() {}
