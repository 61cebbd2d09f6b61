//go:build amd64

package asm_test

import (
	"testing"

	"github.com/tiltlang/tilt/internal/asm"
)

// buildAndRun assembles code, mmaps it executable, and calls it with
// args via the System V trampoline.
func buildAndRun(t *testing.T, build func(a *asm.Assembler), args [6]int64) int64 {
	t.Helper()
	a := asm.New()
	build(a)
	code := a.Finalize()

	buf, err := asm.AllocExec(len(code))
	if err != nil {
		t.Fatalf("alloc exec: %v", err)
	}
	copy(buf.Bytes(), code)
	if err := buf.MakeExecutable(); err != nil {
		t.Fatalf("make executable: %v", err)
	}
	defer buf.Close()

	return asm.CallNative(buf.Addr(), args)
}

func TestAddTwoRegisters(t *testing.T) {
	result := buildAndRun(t, func(a *asm.Assembler) {
		// func(a, b int64) int64 { return a + b }
		a.MovRegReg(true, asm.RAX, asm.RDI)
		a.AddRegReg(true, asm.RAX, asm.RSI)
		a.Ret()
	}, [6]int64{7, 35})

	if result != 42 {
		t.Fatalf("got %d, want 42", result)
	}
}

func TestImmediateLoadAndSub(t *testing.T) {
	result := buildAndRun(t, func(a *asm.Assembler) {
		a.MovImm64(asm.RAX, 100)
		a.MovRegReg(true, asm.RCX, asm.RDI)
		a.SubRegReg(true, asm.RAX, asm.RCX)
		a.Ret()
	}, [6]int64{58})

	if result != 42 {
		t.Fatalf("got %d, want 42", result)
	}
}

func TestConditionalBranch(t *testing.T) {
	result := buildAndRun(t, func(a *asm.Assembler) {
		// func(a, b int64) int64 { if a > b { return a }; return b }
		elseLabel := a.NewLabel()
		doneLabel := a.NewLabel()
		a.CmpRegReg(true, asm.RDI, asm.RSI)
		a.JccLabel(asm.CondLE, elseLabel)
		a.MovRegReg(true, asm.RAX, asm.RDI)
		a.JmpLabel(doneLabel)
		a.Bind(elseLabel)
		a.MovRegReg(true, asm.RAX, asm.RSI)
		a.Bind(doneLabel)
		a.Ret()
	}, [6]int64{10, 4})

	if result != 10 {
		t.Fatalf("got %d, want 10", result)
	}
}

func TestSetccProducesBoolean(t *testing.T) {
	result := buildAndRun(t, func(a *asm.Assembler) {
		a.CmpRegReg(true, asm.RDI, asm.RSI)
		a.SetccToReg(asm.CondL, asm.RAX)
		a.Ret()
	}, [6]int64{3, 9})

	if result != 1 {
		t.Fatalf("got %d, want 1", result)
	}
}

func TestSignedDivision(t *testing.T) {
	result := buildAndRun(t, func(a *asm.Assembler) {
		// func(a, b int64) int64 { return a / b }
		a.MovRegReg(true, asm.RAX, asm.RDI)
		a.Cqo()
		a.MovRegReg(true, asm.RCX, asm.RSI)
		a.IdivReg(true, asm.RCX)
		a.Ret()
	}, [6]int64{-84, 2})

	if result != -42 {
		t.Fatalf("got %d, want -42", result)
	}
}

func TestShiftUsesCL(t *testing.T) {
	result := buildAndRun(t, func(a *asm.Assembler) {
		a.MovRegReg(true, asm.RAX, asm.RDI)
		a.MovRegReg(true, asm.RCX, asm.RSI)
		a.ShlRegCL(true, asm.RAX)
		a.Ret()
	}, [6]int64{1, 5})

	if result != 32 {
		t.Fatalf("got %d, want 32", result)
	}
}

func TestExtendedRegistersEncodeCorrectly(t *testing.T) {
	result := buildAndRun(t, func(a *asm.Assembler) {
		a.MovRegReg(true, asm.R8, asm.RDI)
		a.MovRegReg(true, asm.R9, asm.RSI)
		a.AddRegReg(true, asm.R8, asm.R9)
		a.MovRegReg(true, asm.RAX, asm.R8)
		a.Ret()
	}, [6]int64{19, 23})

	if result != 42 {
		t.Fatalf("got %d, want 42", result)
	}
}
