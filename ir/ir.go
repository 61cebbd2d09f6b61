// Package ir implements TILT's SSA intermediate representation (spec
// component C5): a typed graph of functions, basic blocks with
// parameters standing in for phi nodes, and single-result
// instructions. See spec §3.3–§3.4 for the full data model and its
// invariants; package lower is the only producer of well-formed IR,
// and package vm/jit are its two consumers.
package ir

import (
	"fmt"

	"github.com/tiltlang/tilt/ast"
)

// Type re-exports ast.Type: the IR shares its closed type enumeration
// with the AST, exactly as the original implementation's tilt-ir
// crate used `tilt_ast::Type` directly rather than duplicating it.
type Type = ast.Type

const (
	I32   = ast.I32
	I64   = ast.I64
	F32   = ast.F32
	F64   = ast.F64
	Usize = ast.Usize
	Void  = ast.Void
)

// SizeOf returns the fixed width in bytes of t on this platform (spec
// §4.6.4, §8.1 "Size correctness"). PointerSize is injected by the
// caller (vm/jit each know their own address width) so this package
// has no platform dependency of its own.
func SizeOf(t Type, pointerSize int) int {
	switch t {
	case I32, F32:
		return 4
	case I64, F64:
		return 8
	case Usize:
		return pointerSize
	case Void:
		return 0
	default:
		panic(fmt.Sprintf("ir: SizeOf: invalid type %v", t))
	}
}

// BlockId is an opaque dense index into a Function's block list.
type BlockId int

// ValueId is an opaque dense index, unique within a Function.
type ValueId int

// Program is a lowered TILT program: resolved imports plus functions.
type Program struct {
	Imports []*Import
	Funcs   []*Function
}

// FuncByName returns the function named name, or nil.
func (p *Program) FuncByName(name string) *Function {
	for _, f := range p.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// ImportByName returns the import named name, or nil.
func (p *Program) ImportByName(name string) *Import {
	for _, imp := range p.Imports {
		if imp.Name == name {
			return imp
		}
	}
	return nil
}

// Import is a resolved host-function signature (spec §3.3).
type Import struct {
	Module   string
	Name     string
	CallConv string
	Params   []Type
	Return   Type
}

// Constant is a literal value materialized in a Function's constants
// table rather than by an explicit Const instruction (spec §4.4, §9
// "Constants table vs Const instructions").
type Constant struct {
	Literal int64
	Type    Type
}

// BlockParam is one (ValueId, Type) pair bound at the top of a
// BasicBlock; it plays the role of a phi node (spec §3.3, GLOSSARY).
type BlockParam struct {
	Value ValueId
	Type  Type
}

// BasicBlock is id, its original source label (kept for diagnostics),
// its parameters, its instructions, and exactly one terminator (spec
// §3.3).
type BasicBlock struct {
	ID     BlockId
	Label  string
	Params []BlockParam
	Instrs []Instruction
	Term   Terminator
}

// ParamType returns the type of the i'th block parameter.
func (b *BasicBlock) ParamType(i int) Type { return b.Params[i].Type }

// Function is a typed SSA function: parameter/return types, an
// ordered list of basic blocks, the entry block id, the next-ValueId
// counter, and the per-function constants side table (spec §3.3).
type Function struct {
	Name       string
	ParamTypes []Type
	ReturnType Type
	Blocks     []*BasicBlock
	Entry      BlockId
	Constants  map[ValueId]Constant

	nextValue ValueId
}

// NewFunction returns an empty Function ready for a builder (package
// lower) to populate.
func NewFunction(name string, paramTypes []Type, returnType Type) *Function {
	return &Function{
		Name:       name,
		ParamTypes: paramTypes,
		ReturnType: returnType,
		Constants:  make(map[ValueId]Constant),
	}
}

// AllocValue returns a fresh ValueId, unique within f.
func (f *Function) AllocValue() ValueId {
	id := f.nextValue
	f.nextValue++
	return id
}

// NumValues reports how many distinct ValueIds have been allocated in
// f, i.e. one past the largest ValueId in use. package jit uses this
// to size a function's stack frame.
func (f *Function) NumValues() int { return int(f.nextValue) }

// AddConstant materializes literal as a fresh ValueId in f's
// constants table and returns it. This is how the lowerer turns a
// literal operand into a uniform ValueId operand without a defining
// instruction (spec §4.3.4).
func (f *Function) AddConstant(literal int64, typ Type) ValueId {
	id := f.AllocValue()
	f.Constants[id] = Constant{Literal: literal, Type: typ}
	return id
}

// AddBlock appends a new block with the given label and returns its
// id. The label need not be unique in f (duplicate detection is the
// lowerer's job, spec §3.4 invariant 8); the BlockId always is.
func (f *Function) AddBlock(label string) *BasicBlock {
	b := &BasicBlock{ID: BlockId(len(f.Blocks)), Label: label}
	f.Blocks = append(f.Blocks, b)
	return b
}

// Block returns the block with the given id.
func (f *Function) Block(id BlockId) *BasicBlock { return f.Blocks[id] }

// BlockByLabel returns the first block whose original label equals
// label, or nil.
func (f *Function) BlockByLabel(label string) *BasicBlock {
	for _, b := range f.Blocks {
		if b.Label == label {
			return b
		}
	}
	return nil
}
