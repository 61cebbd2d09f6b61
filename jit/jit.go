// Package jit implements TILT's native compiler (spec component C8):
// the other of the two backends that must agree with package vm on
// every well-typed program (spec §8.1 "Backend equivalence"). It
// translates ir.Function bodies directly into amd64 machine code
// (package internal/asm does the instruction encoding) and runs them
// in anonymous executable memory.
//
// A Module follows the same Declare/Translate/Finalize shape as the
// original implementation's Cranelift-backed translator: Declare
// registers every function's signature up front (so forward and
// mutually-recursive calls can be resolved), Translate emits each
// function's machine code into its own executable buffer with its call
// sites left as patchable placeholders, and Finalize backpatches those
// placeholders to the now-known absolute addresses.
package jit

import (
	"fmt"
	"io"

	"github.com/ebitengine/purego"
	"github.com/tiltlang/tilt/ast"
	"github.com/tiltlang/tilt/hostabi"
	"github.com/tiltlang/tilt/internal/asm"
	"github.com/tiltlang/tilt/ir"
)

// Module owns the compiled machine code and host trampolines for one
// ir.Program. It is not safe for concurrent use, the same restriction
// package vm places on VM: run one Module per goroutine (spec §8.1).
type Module struct {
	ABI hostabi.HostABI

	program     *ir.Program
	sigs        map[string]signature
	compiled    map[string]*compiledFunc
	trampolines map[string]uintptr // host import name -> purego callback address
	trace       io.Writer

	pendingCallSites map[string][]callFixup
	divZeroTrampoline uintptr
	memTrampolines    map[string]uintptr

	// lastErr carries a runtime failure (DivisionByZero, HostCallError)
	// raised from inside a native call chain back out to CallFunction.
	// Safe as plain module state because a Module runs on one goroutine
	// at a time, same as VM.callStack.
	lastErr error
}

type signature struct {
	params []ast.Type
	ret    ast.Type
}

type compiledFunc struct {
	name       string
	buf        *asm.ExecBuf
	paramTypes []ast.Type
	returnType ast.Type
}

// NewModule prepares a Module for program, resolving host imports
// against abi. Declare/Translate/Finalize must run before any
// CallFunction.
func NewModule(program *ir.Program, abi hostabi.HostABI) *Module {
	return &Module{
		ABI:            abi,
		program:        program,
		sigs:           make(map[string]signature),
		compiled:       make(map[string]*compiledFunc),
		trampolines:    make(map[string]uintptr),
		memTrampolines: make(map[string]uintptr),
	}
}

// memOpTrampoline lazily builds (and caches) the purego callback for
// one of the four built-in memory operations at a specific operand
// type, since load/store are generic over <type> (spec §4.3.3) but a
// native trampoline must commit to one marshaling scheme.
func (m *Module) memOpTrampoline(op string, typ ast.Type) uintptr {
	key := fmt.Sprintf("%s:%v", op, typ)
	if addr, ok := m.memTrampolines[key]; ok {
		return addr
	}

	var fn func(a0, a1 uintptr) uintptr
	switch op {
	case "load":
		fn = func(addr, _ uintptr) uintptr {
			v, err := m.ABI.ReadMemoryValue(uint64(addr), typ)
			if err != nil {
				m.lastErr = fmt.Errorf("jit: load: %w", err)
				return 0
			}
			return uintptr(runtimeValueToInt(v))
		}
	case "store":
		fn = func(addr, raw uintptr) uintptr {
			v := intToRuntimeValue(int64(raw), typ)
			if err := m.ABI.WriteMemoryValue(uint64(addr), v); err != nil {
				m.lastErr = fmt.Errorf("jit: store: %w", err)
			}
			return 0
		}
	case "alloc":
		fn = func(size, _ uintptr) uintptr {
			result, err := m.ABI.CallHostFunction("alloc", []hostabi.RuntimeValue{hostabi.UsizeValue(uint64(size))})
			if err != nil {
				m.lastErr = fmt.Errorf("jit: alloc: %w", err)
				return 0
			}
			return uintptr(runtimeValueToInt(result))
		}
	case "free":
		fn = func(ptr, _ uintptr) uintptr {
			if _, err := m.ABI.CallHostFunction("free", []hostabi.RuntimeValue{hostabi.UsizeValue(uint64(ptr))}); err != nil {
				m.lastErr = fmt.Errorf("jit: free: %w", err)
			}
			return 0
		}
	default:
		panic("jit: unknown memory operation " + op)
	}

	addr := purego.NewCallback(fn)
	m.memTrampolines[key] = addr
	return addr
}

// SetTrace directs Translate to log each function's IR, instruction by
// instruction under each block label, as it is compiled (block
// terminators are not printed) — the JIT's equivalent of the
// original implementation's --show-cranelift-ir flag.
func (m *Module) SetTrace(w io.Writer) { m.trace = w }

// Declare registers every import and function signature in the
// program (spec §4.7.1) and builds a purego callback trampoline for
// each import, so host calls can be emitted as ordinary native CALLs.
func (m *Module) Declare() error {
	m.divZeroTrampoline = m.divisionByZeroTrampoline()
	for _, imp := range m.program.Imports {
		m.sigs[imp.Name] = signature{params: imp.Params, ret: imp.Return}
		m.trampolines[imp.Name] = m.makeHostTrampoline(imp.Name, imp.Params)
	}
	for _, fn := range m.program.Funcs {
		if _, dup := m.sigs[fn.Name]; dup {
			return fmt.Errorf("jit: duplicate symbol %q", fn.Name)
		}
		m.sigs[fn.Name] = signature{params: fn.ParamTypes, ret: fn.ReturnType}
	}
	return nil
}

// Translate compiles every function body in the program into machine
// code, each in its own executable buffer. Cross-function call sites
// are left with placeholder MOVABS immediates; Finalize patches them.
func (m *Module) Translate() error {
	callSites := make(map[string][]callFixup) // callee name -> fixups still to patch

	for _, fn := range m.program.Funcs {
		t := newTranslator(m, fn)
		code, fixups, err := t.run()
		if err != nil {
			return fmt.Errorf("jit: translating %s: %w", fn.Name, err)
		}
		buf, err := asm.AllocExec(len(code))
		if err != nil {
			return fmt.Errorf("jit: allocating code for %s: %w", fn.Name, err)
		}
		copy(buf.Bytes(), code)
		m.compiled[fn.Name] = &compiledFunc{
			name: fn.Name, buf: buf,
			paramTypes: fn.ParamTypes, returnType: fn.ReturnType,
		}
		for _, fx := range fixups {
			callSites[fx.callee] = append(callSites[fx.callee], callFixup{caller: fn.Name, offset: fx.offset})
		}
	}

	m.pendingCallSites = callSites
	return nil
}

type callFixup struct {
	caller string
	offset int
}

// Finalize backpatches every recorded call site to the now-fixed
// mmap address of its callee, then flips every function's page from
// writable to executable (spec §4.7.1's third pass).
func (m *Module) Finalize() error {
	for calleeName, sites := range m.pendingCallSites {
		target, ok := m.compiled[calleeName]
		var addr uint64
		if ok {
			addr = uint64(target.buf.Addr())
		} else if tramp, ok := m.trampolines[calleeName]; ok {
			addr = uint64(tramp)
		} else {
			return fmt.Errorf("jit: call to undefined symbol %q", calleeName)
		}
		for _, site := range sites {
			caller := m.compiled[site.caller]
			asm.PatchImm64(caller.buf.Bytes(), site.offset, addr)
		}
	}
	for _, cf := range m.compiled {
		if err := cf.buf.MakeExecutable(); err != nil {
			return fmt.Errorf("jit: making %s executable: %w", cf.name, err)
		}
	}
	return nil
}

// CallFunction invokes a compiled TILT function by name, following
// the same boundary validation CallFunction performs in package vm
// (spec §4.6.2, applied identically here for backend equivalence).
func (m *Module) CallFunction(name string, args []hostabi.RuntimeValue) (hostabi.RuntimeValue, error) {
	cf, ok := m.compiled[name]
	if !ok {
		return hostabi.RuntimeValue{}, fmt.Errorf("jit: function %q not found", name)
	}
	if len(args) != len(cf.paramTypes) {
		return hostabi.RuntimeValue{}, fmt.Errorf("jit: %s: expected %d arguments, got %d", name, len(cf.paramTypes), len(args))
	}
	if len(args) > 6 {
		return hostabi.RuntimeValue{}, fmt.Errorf("jit: %s: more than 6 parameters is unsupported by the native calling convention", name)
	}
	for i, a := range args {
		if a.Type != cf.paramTypes[i] {
			return hostabi.RuntimeValue{}, fmt.Errorf("jit: %s: argument %d: expected %v, got %v", name, i, cf.paramTypes[i], a.Type)
		}
	}

	var raw [6]int64
	for i, a := range args {
		raw[i] = runtimeValueToInt(a)
	}

	m.lastErr = nil
	result := asm.CallNative(cf.buf.Addr(), raw)
	if m.lastErr != nil {
		err := m.lastErr
		m.lastErr = nil
		return hostabi.RuntimeValue{}, err
	}
	return intToRuntimeValue(result, cf.returnType), nil
}

// makeHostTrampoline wraps a host import as a purego callback: a real
// C-ABI function pointer, callable directly from JIT-generated code,
// that marshals the incoming register arguments into RuntimeValues,
// calls into the Go-side HostABI, and records any error on m so
// CallFunction can surface it once the native call chain unwinds.
func (m *Module) makeHostTrampoline(name string, params []ast.Type) uintptr {
	fn := func(a0, a1, a2, a3, a4, a5 uintptr) uintptr {
		raw := [6]int64{int64(a0), int64(a1), int64(a2), int64(a3), int64(a4), int64(a5)}
		args := make([]hostabi.RuntimeValue, len(params))
		for i, t := range params {
			args[i] = intToRuntimeValue(raw[i], t)
		}
		result, err := m.ABI.CallHostFunction(name, args)
		if err != nil {
			m.lastErr = fmt.Errorf("jit: host call %s: %w", name, err)
			return 0
		}
		return uintptr(runtimeValueToInt(result))
	}
	return purego.NewCallback(fn)
}

// raiseDivisionByZero is invoked from generated code immediately
// before what would otherwise be a trapping IDIV/DIV; it records the
// failure the way evalI32/evalI64/evalUsize do in package vm, so
// CallFunction surfaces the same error either backend would.
func (m *Module) raiseDivisionByZero(_ uintptr) uintptr {
	m.lastErr = fmt.Errorf("jit: division by zero")
	return 0
}

func (m *Module) divisionByZeroTrampoline() uintptr {
	return purego.NewCallback(m.raiseDivisionByZero)
}
