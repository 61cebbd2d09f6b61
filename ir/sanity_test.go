package ir_test

import (
	"bytes"
	"testing"

	"github.com/tiltlang/tilt/ast"
	"github.com/tiltlang/tilt/ir"
)

func wellFormedFunc() *ir.Function {
	fn := ir.NewFunction("add", []ast.Type{ast.I32, ast.I32}, ast.I32)
	entry := fn.AddBlock("entry")
	a := fn.AllocValue() // v0
	b := fn.AllocValue() // v1
	entry.Params = []ir.BlockParam{{Value: a, Type: ast.I32}, {Value: b, Type: ast.I32}}
	r := fn.AllocValue()
	entry.Instrs = []ir.Instruction{&ir.BinaryOp{DestID: r, Op: ir.Add, Type: ast.I32, Lhs: a, Rhs: b}}
	entry.Term = &ir.Ret{Value: &r}
	return fn
}

func TestSanityCheckAcceptsWellFormedFunction(t *testing.T) {
	fn := wellFormedFunc()
	if !ir.SanityCheck(fn, nil) {
		t.Fatal("expected a well-formed function to pass")
	}
}

func TestSanityCheckCatchesDoubleDefinition(t *testing.T) {
	fn := wellFormedFunc()
	// Redefine v0 (the first parameter) via a spurious Const, which
	// should never happen from package lower but must be caught here.
	fn.Blocks[0].Instrs = append(fn.Blocks[0].Instrs, &ir.Const{DestID: 0, Literal: 1, Type: ast.I32})

	var buf bytes.Buffer
	if ir.SanityCheck(fn, &buf) {
		t.Fatal("expected double definition to be rejected")
	}
	if buf.Len() == 0 {
		t.Fatal("expected a diagnostic to be written")
	}
}

func TestSanityCheckCatchesBranchArityMismatch(t *testing.T) {
	fn := ir.NewFunction("f", nil, ast.Void)
	entry := fn.AddBlock("entry")
	target := fn.AddBlock("target")
	p := fn.AllocValue()
	target.Params = []ir.BlockParam{{Value: p, Type: ast.I32}}
	target.Term = &ir.Ret{}
	entry.Term = &ir.Br{Target: target.ID} // missing the one required arg

	if ir.SanityCheck(fn, nil) {
		t.Fatal("expected branch arity mismatch to be rejected")
	}
}

func TestSanityCheckCatchesMissingTerminator(t *testing.T) {
	fn := ir.NewFunction("f", nil, ast.Void)
	fn.AddBlock("entry")
	if ir.SanityCheck(fn, nil) {
		t.Fatal("expected a missing terminator to be rejected")
	}
}

func TestMustSanityCheckPanicsOnFailure(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected MustSanityCheck to panic on an insane function")
		}
	}()
	fn := ir.NewFunction("f", nil, ast.Void)
	fn.AddBlock("entry") // no terminator
	ir.MustSanityCheck(fn)
}
