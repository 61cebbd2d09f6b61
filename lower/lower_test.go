package lower_test

import (
	"testing"

	"github.com/tiltlang/tilt/ast"
	"github.com/tiltlang/tilt/ir"
	"github.com/tiltlang/tilt/lower"
	"github.com/tiltlang/tilt/parser"
)

func mustLower(t *testing.T, src string) *ir.Program {
	t.Helper()
	prog, err := parser.Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	out, errs := lower.Lower(prog, src)
	if len(errs) != 0 {
		t.Fatalf("unexpected lowering errors: %v", errs)
	}
	return out
}

func lowerErrors(t *testing.T, src string) []*lower.SemanticError {
	t.Helper()
	prog, err := parser.Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	_, errs := lower.Lower(prog, src)
	return errs
}

func TestLowerArithmetic(t *testing.T) {
	out := mustLower(t, `
fn add(a: i32, b: i32) -> i32 {
entry:
    r:i32 = i32.add(a, b)
    ret r
}
`)
	fn := out.FuncByName("add")
	if fn == nil {
		t.Fatal("function add not found")
	}
	if len(fn.Blocks) != 1 {
		t.Fatalf("want 1 block, got %d", len(fn.Blocks))
	}
	if len(fn.Blocks[0].Instrs) != 1 {
		t.Fatalf("want 1 instr, got %d", len(fn.Blocks[0].Instrs))
	}
	bin, ok := fn.Blocks[0].Instrs[0].(*ir.BinaryOp)
	if !ok {
		t.Fatalf("want *ir.BinaryOp, got %T", fn.Blocks[0].Instrs[0])
	}
	if bin.Op != ir.Add || bin.Type != ast.I32 {
		t.Fatalf("unexpected binop %+v", bin)
	}
	if _, ok := fn.Blocks[0].Term.(*ir.Ret); !ok {
		t.Fatalf("want *ir.Ret terminator, got %T", fn.Blocks[0].Term)
	}
}

func TestLowerBranchWithBlockParams(t *testing.T) {
	out := mustLower(t, `
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
	fn := out.FuncByName("max")
	entry := fn.Blocks[0]
	brIf, ok := entry.Term.(*ir.BrIf)
	if !ok {
		t.Fatalf("want *ir.BrIf, got %T", entry.Term)
	}
	if fn.Block(brIf.TrueTarget).Label != "take_a" {
		t.Fatalf("true target mismatch: %s", fn.Block(brIf.TrueTarget).Label)
	}
	if fn.Block(brIf.FalseTarget).Label != "take_b" {
		t.Fatalf("false target mismatch: %s", fn.Block(brIf.FalseTarget).Label)
	}
}

func TestLowerLoopWithPhiBlockParams(t *testing.T) {
	out := mustLower(t, `
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
	fn := out.FuncByName("sum_to")
	loopBlock := fn.BlockByLabel("loop")
	if loopBlock == nil || len(loopBlock.Params) != 2 {
		t.Fatalf("loop block params: %+v", loopBlock)
	}
	if !ir.SanityCheck(fn, discard{}) {
		t.Fatal("expected sane IR")
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestLowerUndefinedIdentifier(t *testing.T) {
	errs := lowerErrors(t, `
fn f() -> i32 {
entry:
    r:i32 = i32.add(x, 1)
    ret r
}
`)
	requireKind(t, errs, lower.UndefinedIdentifier)
}

func TestLowerDuplicateDefinition(t *testing.T) {
	errs := lowerErrors(t, `
fn f() -> i32 {
entry:
    x:i32 = i32.const(1)
    x:i32 = i32.const(2)
    ret x
}
`)
	requireKind(t, errs, lower.DuplicateDefinition)
}

func TestLowerTypeMismatch(t *testing.T) {
	errs := lowerErrors(t, `
fn f(a: i32) -> i32 {
entry:
    r:i64 = i32.add(a, 1)
    ret r
}
`)
	requireKind(t, errs, lower.TypeMismatch)
}

func TestLowerUndefinedBlock(t *testing.T) {
	errs := lowerErrors(t, `
fn f() -> i32 {
entry:
    br nowhere
}
`)
	requireKind(t, errs, lower.UndefinedBlock)
}

func TestLowerFunctionNotFound(t *testing.T) {
	errs := lowerErrors(t, `
fn f() -> i32 {
entry:
    r:i32 = call missing()
    ret r
}
`)
	requireKind(t, errs, lower.FunctionNotFound)
}

func TestLowerArgumentMismatch(t *testing.T) {
	errs := lowerErrors(t, `
fn g(a: i32) -> i32 {
entry:
    ret a
}
fn f() -> i32 {
entry:
    r:i32 = call g()
    ret r
}
`)
	requireKind(t, errs, lower.ArgumentMismatch)
}

func TestLowerInvalidOperation(t *testing.T) {
	errs := lowerErrors(t, `
fn f() -> i32 {
entry:
    p:usize = alloc(4)
    bad:usize = free(p)
    ret 0
}
`)
	requireKind(t, errs, lower.InvalidOperation)
}

func TestLowerSizeOfAndAllocFree(t *testing.T) {
	out := mustLower(t, `
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
	fn := out.FuncByName("roundtrip")
	var sawAlloc, sawFree, sawSizeOf bool
	for _, instr := range fn.Blocks[0].Instrs {
		switch instr.(type) {
		case *ir.Alloc:
			sawAlloc = true
		case *ir.Free:
			sawFree = true
		case *ir.SizeOfInstr:
			sawSizeOf = true
		}
	}
	if !sawAlloc || !sawFree || !sawSizeOf {
		t.Fatalf("missing expected instructions: alloc=%v free=%v sizeof=%v", sawAlloc, sawFree, sawSizeOf)
	}
}

func TestLowerConvertExtendTruncTo(t *testing.T) {
	out := mustLower(t, `
fn convert(a: i32) -> usize {
entry:
    w:i64 = i64.extend(a)
    u:usize = i64.to_usize(w)
    n:i32 = i32.trunc(u)
    r:usize = i32.to_usize(n)
    ret r
}
`)
	fn := out.FuncByName("convert")
	var conversions int
	for _, instr := range fn.Blocks[0].Instrs {
		if _, ok := instr.(*ir.Convert); ok {
			conversions++
		}
	}
	if conversions != 4 {
		t.Fatalf("want 4 conversions, got %d", conversions)
	}
}

func requireKind(t *testing.T, errs []*lower.SemanticError, want lower.ErrorKind) {
	t.Helper()
	for _, e := range errs {
		if e.Kind == want {
			return
		}
	}
	t.Fatalf("want an error of kind %v, got %v", want, errs)
}
