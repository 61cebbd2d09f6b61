// Package driver wires the core pipeline (lexer, parser, lower, vm,
// jit) into the end-to-end compilation surface spec.md names but
// leaves as an external collaborator (§6.4): turning source text into
// a running program, picking a backend, and compiling several
// programs in parallel (§5).
package driver

import (
	"bytes"
	"fmt"
	"time"

	"github.com/tiltlang/tilt/ast"
	"github.com/tiltlang/tilt/hostabi"
	"github.com/tiltlang/tilt/ir"
	"github.com/tiltlang/tilt/jit"
	"github.com/tiltlang/tilt/lexer"
	"github.com/tiltlang/tilt/lower"
	"github.com/tiltlang/tilt/parser"
	"github.com/tiltlang/tilt/token"
	"github.com/tiltlang/tilt/vm"
)

// Backend selects which of the two execution backends (spec §8.1)
// Compile runs the program on.
type Backend int

const (
	VM Backend = iota
	JIT
	Both
)

// Options configures one Compile call. It plays the role ssa.BuilderMode
// plays in the teacher (go/ssa.Program): a plain value threaded through
// the pipeline rather than a chain of functional options, because the
// set of knobs is small and fixed.
type Options struct {
	ShowTokens bool
	ShowAST    bool
	ShowIR     bool
	ShowTrace  bool // jit.Module.SetTrace

	Backend Backend

	// MaxCallDepth bounds vm.VM's call stack (spec §4.6.2 StackOverflow).
	// Zero (or any value <= 0) selects vm.DefaultMaxDepth, as in vm.New.
	MaxCallDepth int

	ABI hostabi.HostABI
}

// Result carries every artifact Compile produced, so a caller (cmd/tiltc
// or a test) can inspect intermediate stages without re-running them.
type Result struct {
	Tokens []token.Token
	AST    *ast.Program
	IR     *ir.Program

	VM  *vm.VM
	JIT *jit.Module

	Trace bytes.Buffer

	// Elapsed is always populated: Compile itself always measures, and
	// callers decide whether to report it (cmd/tiltc does so under
	// --time).
	Elapsed time.Duration
}

// Compile runs src through lex/parse/lower and then prepares whichever
// backend(s) opts.Backend selects. It does not invoke any function;
// call Result.VM.CallFunction or Result.JIT.CallFunction (via Run) to
// execute one.
func Compile(src string, opts Options) (*Result, error) {
	start := time.Now()
	res := &Result{}

	toks, err := lexer.Tokenize(src)
	if err != nil {
		return nil, fmt.Errorf("driver: lex: %w", err)
	}
	res.Tokens = toks

	prog, err := parser.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("driver: parse: %w", err)
	}
	res.AST = prog

	irProg, errs := lower.Lower(prog, src)
	if len(errs) != 0 {
		return res, &LowerError{Errors: errs}
	}
	res.IR = irProg

	abi := opts.ABI
	if abi == nil {
		abi = hostabi.Null{}
	}

	if opts.Backend == VM || opts.Backend == Both {
		res.VM = vm.New(irProg, abi, opts.MaxCallDepth)
	}
	if opts.Backend == JIT || opts.Backend == Both {
		m := jit.NewModule(irProg, abi)
		if opts.ShowTrace {
			m.SetTrace(&res.Trace)
		}
		if err := m.Declare(); err != nil {
			return res, fmt.Errorf("driver: jit declare: %w", err)
		}
		if err := m.Translate(); err != nil {
			return res, fmt.Errorf("driver: jit translate: %w", err)
		}
		if err := m.Finalize(); err != nil {
			return res, fmt.Errorf("driver: jit finalize: %w", err)
		}
		res.JIT = m
	}

	res.Elapsed = time.Since(start)
	return res, nil
}

// LowerError wraps the (possibly multiple) semantic errors lower.Lower
// reports, the way the teacher's go/packages surfaces a list of
// *packages.Error as one error value.
type LowerError struct {
	Errors []*lower.SemanticError
}

func (e *LowerError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d semantic errors, first: %s", len(e.Errors), e.Errors[0].Error())
}

// Run calls name on whichever backend(s) Result carries, returning the
// VM's result first when opts.Backend == Both (the two backends must
// agree, spec §8.1; CallBoth exists for the case where a caller wants
// to verify that directly).
func (r *Result) Run(name string, args []hostabi.RuntimeValue) (hostabi.RuntimeValue, error) {
	switch {
	case r.VM != nil:
		return r.VM.CallFunction(name, args)
	case r.JIT != nil:
		return r.JIT.CallFunction(name, args)
	default:
		return hostabi.RuntimeValue{}, fmt.Errorf("driver: no backend compiled")
	}
}

// CallBoth runs name on both backends and reports a BackendMismatch
// error if they disagree, the direct expression of spec §8.1's
// equivalence requirement. Both Result.VM and Result.JIT must be
// non-nil (i.e. opts.Backend was Both).
func (r *Result) CallBoth(name string, args []hostabi.RuntimeValue) (hostabi.RuntimeValue, error) {
	if r.VM == nil || r.JIT == nil {
		return hostabi.RuntimeValue{}, fmt.Errorf("driver: CallBoth requires Backend: Both")
	}
	vmResult, vmErr := r.VM.CallFunction(name, args)
	jitResult, jitErr := r.JIT.CallFunction(name, args)

	if (vmErr == nil) != (jitErr == nil) {
		return hostabi.RuntimeValue{}, &BackendMismatch{Func: name, VMResult: vmResult, VMErr: vmErr, JITResult: jitResult, JITErr: jitErr}
	}
	if vmErr != nil {
		return hostabi.RuntimeValue{}, vmErr
	}
	if vmResult != jitResult {
		return hostabi.RuntimeValue{}, &BackendMismatch{Func: name, VMResult: vmResult, JITResult: jitResult}
	}
	return vmResult, nil
}

// BackendMismatch reports the two backends disagreeing on a call that
// spec §8.1 requires them to agree on — a defect in this
// implementation, never a property of a well-typed TILT program.
type BackendMismatch struct {
	Func                 string
	VMResult, JITResult  hostabi.RuntimeValue
	VMErr, JITErr        error
}

func (e *BackendMismatch) Error() string {
	return fmt.Sprintf("driver: backend mismatch calling %s: vm=(%v, %v) jit=(%v, %v)",
		e.Func, e.VMResult, e.VMErr, e.JITResult, e.JITErr)
}
