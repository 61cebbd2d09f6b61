package jit_test

import (
	"strings"
	"testing"

	"github.com/tiltlang/tilt/hostabi"
	"github.com/tiltlang/tilt/jit"
	"github.com/tiltlang/tilt/lower"
	"github.com/tiltlang/tilt/parser"
)

func compile(t *testing.T, src string) *jit.Module {
	t.Helper()
	prog, err := parser.Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	irProg, errs := lower.Lower(prog, src)
	if len(errs) != 0 {
		t.Fatalf("lower: %v", errs)
	}
	m := jit.NewModule(irProg, hostabi.Null{})
	if err := m.Declare(); err != nil {
		t.Fatalf("declare: %v", err)
	}
	if err := m.Translate(); err != nil {
		t.Fatalf("translate: %v", err)
	}
	if err := m.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	return m
}

func TestJITArithmetic(t *testing.T) {
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

func TestJITMaxViaBranches(t *testing.T) {
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

func TestJITRecursiveFactorial(t *testing.T) {
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

func TestJITLoopWithBlockParams(t *testing.T) {
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

// TestJITWideBranchCondition guards the backend-equivalence bug once
// present here: an i64 br_if condition must be checked against all 64
// bits, not just the low 32, or a value like 1<<32 would be (wrongly)
// treated as falsy.
func TestJITWideBranchCondition(t *testing.T) {
	m := compile(t, `
fn classify(n: i64) -> i32 {
entry:
    br_if n, nonzero, is_zero
is_zero:
    ret 0
nonzero:
    ret 1
}
`)
	result, err := m.CallFunction("classify", []hostabi.RuntimeValue{hostabi.I64Value(1 << 32)})
	if err != nil {
		t.Fatal(err)
	}
	if result.AsI32() != 1 {
		t.Fatalf("got %d, want 1 (nonzero high bits must not read as falsy)", result.AsI32())
	}
}

func TestJITDivisionByZero(t *testing.T) {
	m := compile(t, `
fn divide(a: i32, b: i32) -> i32 {
entry:
    r:i32 = i32.div(a, b)
    ret r
}
`)
	_, err := m.CallFunction("divide", []hostabi.RuntimeValue{hostabi.I32Value(1), hostabi.I32Value(0)})
	if err == nil {
		t.Fatal("expected a division-by-zero error")
	}
}

func TestJITMemoryRoundTrip(t *testing.T) {
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
	m := jit.NewModule(irProg, hostabi.NewVMMemory())
	if err := m.Declare(); err != nil {
		t.Fatalf("declare: %v", err)
	}
	if err := m.Translate(); err != nil {
		t.Fatalf("translate: %v", err)
	}
	if err := m.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	result, err := m.CallFunction("roundtrip", nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.AsI32() != 42 {
		t.Fatalf("got %d, want 42", result.AsI32())
	}
}

func TestJITTrace(t *testing.T) {
	prog, err := parser.Parse(`
fn double(a: i32) -> i32 {
entry:
    r:i32 = i32.add(a, a)
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
	m := jit.NewModule(irProg, hostabi.Null{})
	var buf strings.Builder
	m.SetTrace(&buf)
	if err := m.Declare(); err != nil {
		t.Fatalf("declare: %v", err)
	}
	if err := m.Translate(); err != nil {
		t.Fatalf("translate: %v", err)
	}
	if err := m.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("expected trace output, got none")
	}
}
