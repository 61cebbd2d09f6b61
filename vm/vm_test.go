package vm_test

import (
	"testing"

	"github.com/tiltlang/tilt/hostabi"
	"github.com/tiltlang/tilt/lower"
	"github.com/tiltlang/tilt/parser"
	"github.com/tiltlang/tilt/vm"
)

func compile(t *testing.T, src string) *vm.VM {
	t.Helper()
	prog, err := parser.Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	irProg, errs := lower.Lower(prog, src)
	if len(errs) != 0 {
		t.Fatalf("lower: %v", errs)
	}
	return vm.New(irProg, hostabi.Null{}, 0)
}

func TestVMArithmetic(t *testing.T) {
	m := compile(t, `
fn add(a: i32, b: i32) -> i32 {
entry:
    r:i32 = i32.add(a, b)
    ret r
}
`)
	result, err := m.CallFunction("add", []hostabi.RuntimeValue{hostabi.I32Value(2), hostabi.I32Value(3)})
	if err != nil {
		t.Fatal(err)
	}
	if result.AsI32() != 5 {
		t.Fatalf("got %d, want 5", result.AsI32())
	}
}

func TestVMMaxViaBranches(t *testing.T) {
	m := compile(t, `
fn max(a: i32, b: i32) -> i32 {
entry:
    cond:i32 = i32.gt(a, b)
    br_if cond, take_a, take_b
take_a:
    ret a
take_b:
    ret b
}
`)
	result, err := m.CallFunction("max", []hostabi.RuntimeValue{hostabi.I32Value(10), hostabi.I32Value(4)})
	if err != nil {
		t.Fatal(err)
	}
	if result.AsI32() != 10 {
		t.Fatalf("got %d, want 10", result.AsI32())
	}
	result, err = m.CallFunction("max", []hostabi.RuntimeValue{hostabi.I32Value(1), hostabi.I32Value(9)})
	if err != nil {
		t.Fatal(err)
	}
	if result.AsI32() != 9 {
		t.Fatalf("got %d, want 9", result.AsI32())
	}
}

func TestVMRecursiveFactorial(t *testing.T) {
	m := compile(t, `
fn fact(n: i32) -> i32 {
entry:
    base:i32 = i32.eq(n, 0)
    br_if base, is_zero, recurse
is_zero:
    ret 1
recurse:
    one:i32 = i32.const(1)
    nm1:i32 = i32.sub(n, one)
    sub:i32 = call fact(nm1)
    r:i32 = i32.mul(n, sub)
    ret r
}
`)
	result, err := m.CallFunction("fact", []hostabi.RuntimeValue{hostabi.I32Value(5)})
	if err != nil {
		t.Fatal(err)
	}
	if result.AsI32() != 120 {
		t.Fatalf("got %d, want 120", result.AsI32())
	}
}

func TestVMLoopWithBlockParams(t *testing.T) {
	m := compile(t, `
fn sum_to(n: i32) -> i32 {
entry:
    zero:i32 = i32.const(0)
    br loop(zero, n)
loop(acc: i32, remaining: i32):
    done:i32 = i32.eq(remaining, 0)
    br_if done, finish(acc), body(acc, remaining)
body(a2: i32, r2: i32):
    one:i32 = i32.const(1)
    nacc:i32 = i32.add(a2, r2)
    nrem:i32 = i32.sub(r2, one)
    br loop(nacc, nrem)
finish(result: i32):
    ret result
}
`)
	result, err := m.CallFunction("sum_to", []hostabi.RuntimeValue{hostabi.I32Value(5)})
	if err != nil {
		t.Fatal(err)
	}
	if result.AsI32() != 15 {
		t.Fatalf("got %d, want 15", result.AsI32())
	}
}

func TestVMDivisionByZero(t *testing.T) {
	m := compile(t, `
fn divide(a: i32, b: i32) -> i32 {
entry:
    r:i32 = i32.div(a, b)
    ret r
}
`)
	_, err := m.CallFunction("divide", []hostabi.RuntimeValue{hostabi.I32Value(1), hostabi.I32Value(0)})
	if err == nil {
		t.Fatal("expected a DivisionByZero error")
	}
	verr, ok := err.(*vm.VMError)
	if !ok {
		t.Fatalf("want *vm.VMError, got %T", err)
	}
	if verr.Kind != vm.DivisionByZero {
		t.Fatalf("got %v, want DivisionByZero", verr.Kind)
	}
}

func TestVMStackOverflow(t *testing.T) {
	prog, err := parser.Parse(`
fn loopy(n: i32) -> i32 {
entry:
    r:i32 = call loopy(n)
    ret r
}
`)
	if err != nil {
		t.Fatal(err)
	}
	irProg, errs := lower.Lower(prog, "")
	if len(errs) != 0 {
		t.Fatalf("lower: %v", errs)
	}
	m := vm.New(irProg, hostabi.Null{}, 16)
	_, err = m.CallFunction("loopy", []hostabi.RuntimeValue{hostabi.I32Value(0)})
	if err == nil {
		t.Fatal("expected a StackOverflow error")
	}
	verr, ok := err.(*vm.VMError)
	if !ok || verr.Kind != vm.StackOverflow {
		t.Fatalf("got %v, want StackOverflow", err)
	}
}

func TestVMMemoryRoundTrip(t *testing.T) {
	prog, err := parser.Parse(`
fn roundtrip() -> i32 {
entry:
    n:usize = sizeof.i32()
    p:usize = alloc(n)
    one:i32 = i32.const(42)
    i32.store(p, one)
    v:i32 = i32.load(p)
    free(p)
    ret v
}
`)
	if err != nil {
		t.Fatal(err)
	}
	irProg, errs := lower.Lower(prog, "")
	if len(errs) != 0 {
		t.Fatalf("lower: %v", errs)
	}
	m := vm.New(irProg, hostabi.NewVMMemory(), 0)
	result, err := m.CallFunction("roundtrip", nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.AsI32() != 42 {
		t.Fatalf("got %d, want 42", result.AsI32())
	}
}
