// Package hostabi implements TILT's Host ABI (spec component C6): the
// polymorphic contract both the VM and the JIT use to reach
// host-provided functions and guest memory, so that the two backends
// observe identical host behavior (spec §4.5, §4.7.3).
package hostabi

import (
	"fmt"

	"github.com/tiltlang/tilt/ast"
	"golang.org/x/xerrors"
)

// RuntimeValue is a tagged union over I32, I64, Usize and Void (spec
// §4.5) — a boundary value crossing into or out of a host function or
// guest memory. The zero value is Void.
type RuntimeValue struct {
	Type ast.Type
	bits int64 // reinterpreted per Type; Usize stores its bit pattern via uint64(bits)
}

func I32Value(v int32) RuntimeValue   { return RuntimeValue{Type: ast.I32, bits: int64(v)} }
func I64Value(v int64) RuntimeValue   { return RuntimeValue{Type: ast.I64, bits: v} }
func UsizeValue(v uint64) RuntimeValue { return RuntimeValue{Type: ast.Usize, bits: int64(v)} }
func VoidValue() RuntimeValue         { return RuntimeValue{Type: ast.Void} }

// FromLiteral reinterprets a constants-table literal (spec §3.3) as a
// RuntimeValue of typ, the way StackFrame population does in the VM
// (spec §4.6.2 step 6).
func FromLiteral(literal int64, typ ast.Type) RuntimeValue {
	switch typ {
	case ast.I32:
		return I32Value(int32(literal))
	case ast.I64:
		return I64Value(literal)
	case ast.Usize:
		return UsizeValue(uint64(literal))
	case ast.Void:
		return VoidValue()
	default:
		panic(fmt.Sprintf("hostabi: FromLiteral: unsupported type %v", typ))
	}
}

func (r RuntimeValue) AsI32() int32 {
	if r.Type != ast.I32 {
		panic(fmt.Sprintf("hostabi: AsI32 called on a %v value", r.Type))
	}
	return int32(r.bits)
}

func (r RuntimeValue) AsI64() int64 {
	if r.Type != ast.I64 {
		panic(fmt.Sprintf("hostabi: AsI64 called on a %v value", r.Type))
	}
	return r.bits
}

func (r RuntimeValue) AsUsize() uint64 {
	if r.Type != ast.Usize {
		panic(fmt.Sprintf("hostabi: AsUsize called on a %v value", r.Type))
	}
	return uint64(r.bits)
}

func (r RuntimeValue) String() string {
	switch r.Type {
	case ast.I32:
		return fmt.Sprintf("i32(%d)", r.AsI32())
	case ast.I64:
		return fmt.Sprintf("i64(%d)", r.AsI64())
	case ast.Usize:
		return fmt.Sprintf("usize(%d)", r.AsUsize())
	case ast.Void:
		return "void"
	default:
		return fmt.Sprintf("<invalid RuntimeValue type %v>", r.Type)
	}
}

// HostABI is the polymorphic contract of spec §4.5. Implementations
// must validate argument count and type at the boundary themselves
// and return an error rather than panicking — this is the one place
// in the core where malformed input from outside the guest program
// (a bad host registration, a stale JIT memory handle) must not crash
// the caller.
type HostABI interface {
	CallHostFunction(name string, args []RuntimeValue) (RuntimeValue, error)
	AvailableFunctions() []string
	HasFunction(name string) bool

	// ReadMemoryValue and WriteMemoryValue default to failing with
	// ErrMemoryUnsupported; only the Memory implementations override
	// them (spec §4.5).
	ReadMemoryValue(addr uint64, typ ast.Type) (RuntimeValue, error)
	WriteMemoryValue(addr uint64, value RuntimeValue) error
}

// ErrMemoryUnsupported is returned by ReadMemoryValue/WriteMemoryValue
// on a HostABI that carries no guest memory (spec §4.5's stated
// default).
var ErrMemoryUnsupported = xerrors.New("hostabi: memory operations unsupported")

// checkArgs validates a host call's argument count and types against
// want, producing the free-form error string spec §4.5 calls for
// ("Arg count and type are validated at the boundary; a mismatch
// produces an Err(String)").
func checkArgs(name string, args []RuntimeValue, want []ast.Type) error {
	if len(args) != len(want) {
		return xerrors.Errorf("hostabi: %s: expected %d arguments, got %d", name, len(want), len(args))
	}
	for i, t := range want {
		if args[i].Type != t {
			return xerrors.Errorf("hostabi: %s: argument %d: expected %v, got %v", name, i, t, args[i].Type)
		}
	}
	return nil
}

func errUnknownFunction(name string) error {
	return xerrors.Errorf("hostabi: no host function named %q", name)
}
