// Package vm implements TILT's tree-walking interpreter (spec
// component C7): a straightforward stack-machine that executes IR
// directly, calling out to a hostabi.HostABI for host functions and
// guest memory (spec §4.6). It is one of TILT's two execution
// backends; package jit is the other, and the two must agree on every
// well-typed program (spec §8.1 "Backend equivalence").
package vm

import (
	"github.com/tiltlang/tilt/hostabi"
	"github.com/tiltlang/tilt/ir"
)

// DefaultMaxDepth is the call-stack depth cap of spec §4.6.1; a
// recursive guest program that exceeds it surfaces StackOverflow
// rather than crashing the host process.
const DefaultMaxDepth = 1000

// StackFrame is one activation record (spec §4.6.1): the function
// being executed, the current value bindings, and the instruction
// cursor (block + offset within it).
type StackFrame struct {
	FuncName string
	Values   map[ir.ValueId]hostabi.RuntimeValue
	Block    ir.BlockId
	IP       int
}

// VM executes a single ir.Program against a HostABI. It is not safe
// for concurrent use by multiple goroutines; run one VM per
// goroutine, the way package driver's parallel compilation runs one
// JIT module per goroutine.
type VM struct {
	Program  *ir.Program
	HostABI  hostabi.HostABI
	MaxDepth int

	callStack []*StackFrame
}

// New returns a VM ready to call functions in program. maxDepth <= 0
// selects DefaultMaxDepth.
func New(program *ir.Program, abi hostabi.HostABI, maxDepth int) *VM {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &VM{Program: program, HostABI: abi, MaxDepth: maxDepth}
}

// CallFunction is the function-entry protocol of spec §4.6.2.
func (v *VM) CallFunction(name string, args []hostabi.RuntimeValue) (hostabi.RuntimeValue, error) {
	fn := v.Program.FuncByName(name)
	if fn == nil {
		return hostabi.RuntimeValue{}, errFunctionNotFound(name)
	}

	if len(args) != len(fn.ParamTypes) {
		return hostabi.RuntimeValue{}, errTypeMismatch("argument count for "+name, intStringer(len(fn.ParamTypes)), intStringer(len(args)))
	}
	for i, a := range args {
		if a.Type != fn.ParamTypes[i] {
			return hostabi.RuntimeValue{}, errTypeMismatch("argument", stringStringer(fn.ParamTypes[i].String()), stringStringer(a.Type.String()))
		}
	}
	if len(v.callStack) >= v.MaxDepth {
		return hostabi.RuntimeValue{}, errStackOverflow(v.MaxDepth)
	}

	values := make(map[ir.ValueId]hostabi.RuntimeValue, len(args)+len(fn.Constants))
	for i, a := range args {
		values[ir.ValueId(i)] = a
	}
	for id, c := range fn.Constants {
		values[id] = hostabi.FromLiteral(c.Literal, c.Type)
	}

	frame := &StackFrame{FuncName: fn.Name, Values: values, Block: fn.Entry, IP: 0}
	v.callStack = append(v.callStack, frame)
	defer func() { v.callStack = v.callStack[:len(v.callStack)-1] }()

	return v.dispatch(fn, frame)
}
