package jit

import (
	"fmt"

	"github.com/tiltlang/tilt/ast"
	"github.com/tiltlang/tilt/internal/asm"
	"github.com/tiltlang/tilt/ir"
)

func (t *translator) translateInstr(instr ir.Instruction) error {
	switch i := instr.(type) {
	case *ir.Const:
		t.a.MovImm64(asm.RAX, uint64(i.Literal))
		t.storeSlot(wideOf(i.Type), asm.RAX, i.DestID)
		return nil

	case *ir.BinaryOp:
		return t.translateBinaryOp(i)

	case *ir.UnaryOp:
		wide := wideOf(i.Type)
		t.loadSlot(wide, asm.RAX, i.Operand)
		if i.Op == ir.Neg {
			t.a.NegReg(wide, asm.RAX)
		} else {
			t.a.NotReg(wide, asm.RAX)
		}
		t.storeSlot(wide, asm.RAX, i.DestID)
		return nil

	case *ir.Call:
		if err := t.translateCall(i.Callee, i.Args); err != nil {
			return err
		}
		t.storeSlot(wideOf(i.Type), asm.RAX, i.DestID)
		return nil

	case *ir.CallVoid:
		return t.translateCall(i.Callee, i.Args)

	case *ir.Load:
		return t.translateHostOp("load", i.Type, i.DestID, i.Type, []ir.ValueId{i.Address})

	case *ir.Store:
		return t.translateHostVoidOp("store", i.Type, []ir.ValueId{i.Address, i.Value})

	case *ir.PtrAdd:
		t.loadSlot(true, asm.RAX, i.Ptr)
		t.loadSlot(true, asm.RCX, i.Offset)
		t.a.AddRegReg(true, asm.RAX, asm.RCX)
		t.storeSlot(true, asm.RAX, i.DestID)
		return nil

	case *ir.SizeOfInstr:
		t.a.MovImm64(asm.RAX, uint64(ir.SizeOf(i.Type, pointerSize)))
		t.storeSlot(true, asm.RAX, i.DestID)
		return nil

	case *ir.Alloc:
		return t.translateHostOp("alloc", ast.Void, i.DestID, ast.Usize, []ir.ValueId{i.Size})

	case *ir.Free:
		return t.translateHostVoidOp("free", ast.Void, []ir.ValueId{i.Ptr})

	case *ir.Convert:
		return t.translateConvert(i)

	default:
		return fmt.Errorf("jit: unsupported instruction %T", i)
	}
}

func (t *translator) translateBinaryOp(i *ir.BinaryOp) error {
	wide := wideOf(i.Type)
	if i.Op.IsComparison() {
		t.loadSlot(wide, asm.RAX, i.Lhs)
		t.loadSlot(wide, asm.RCX, i.Rhs)
		t.a.CmpRegReg(wide, asm.RAX, asm.RCX)
		t.a.SetccToReg(condFor(i.Op, i.Type), asm.RAX)
		t.storeSlot(false, asm.RAX, i.DestID) // comparisons always yield i32
		return nil
	}

	switch i.Op {
	case ir.Add, ir.Sub, ir.And, ir.Or, ir.Xor:
		t.loadSlot(wide, asm.RAX, i.Lhs)
		t.loadSlot(wide, asm.RCX, i.Rhs)
		switch i.Op {
		case ir.Add:
			t.a.AddRegReg(wide, asm.RAX, asm.RCX)
		case ir.Sub:
			t.a.SubRegReg(wide, asm.RAX, asm.RCX)
		case ir.And:
			t.a.AndRegReg(wide, asm.RAX, asm.RCX)
		case ir.Or:
			t.a.OrRegReg(wide, asm.RAX, asm.RCX)
		case ir.Xor:
			t.a.XorRegReg(wide, asm.RAX, asm.RCX)
		}
		t.storeSlot(wide, asm.RAX, i.DestID)
		return nil

	case ir.Mul:
		t.loadSlot(wide, asm.RAX, i.Lhs)
		t.loadSlot(wide, asm.RCX, i.Rhs)
		t.a.ImulRegReg(wide, asm.RAX, asm.RCX)
		t.storeSlot(wide, asm.RAX, i.DestID)
		return nil

	case ir.Div, ir.Rem:
		return t.translateDivRem(i, wide)

	case ir.Shl, ir.Shr:
		t.loadSlot(wide, asm.RAX, i.Lhs)
		t.loadSlot(wide, asm.RCX, i.Rhs) // shift count must be in CL
		if i.Op == ir.Shl {
			t.a.ShlRegCL(wide, asm.RAX)
		} else if i.Type == ast.Usize {
			t.a.ShrRegCL(wide, asm.RAX) // logical shift for an unsigned type
		} else {
			t.a.SarRegCL(wide, asm.RAX) // arithmetic shift preserves sign for i32/i64
		}
		t.storeSlot(wide, asm.RAX, i.DestID)
		return nil

	default:
		return fmt.Errorf("jit: unsupported binary op %s", i.Op)
	}
}

// translateDivRem guards the hardware DIV/IDIV against a zero divisor
// (which would otherwise raise SIGFPE and crash the process, not just
// the guest program) by checking first and routing to
// Module.raiseDivisionByZero, mirroring evalI32/evalI64/evalUsize's
// explicit check in package vm.
func (t *translator) translateDivRem(i *ir.BinaryOp, wide bool) error {
	t.loadSlot(wide, asm.RAX, i.Lhs)
	t.loadSlot(wide, asm.RCX, i.Rhs)

	skipDivide := t.a.NewLabel()
	doDivide := t.a.NewLabel()
	done := t.a.NewLabel()

	zero := asm.RDX
	t.a.XorRegReg(true, zero, zero)
	t.a.CmpRegReg(wide, asm.RCX, zero)
	t.a.JccLabel(asm.CondNE, doDivide)

	t.a.Bind(skipDivide)
	t.emitAbsoluteCall(t.m.divZeroTrampoline, nil)
	t.a.MovImm64(asm.RAX, 0)
	t.a.JmpLabel(done)

	t.a.Bind(doDivide)
	if i.Type == ast.Usize {
		t.a.XorRegReg(true, asm.RDX, asm.RDX)
		t.a.DivReg(wide, asm.RCX)
	} else if wide {
		t.a.Cqo()
		t.a.IdivReg(wide, asm.RCX)
	} else {
		t.a.Cdq()
		t.a.IdivReg(wide, asm.RCX)
	}
	if i.Op == ir.Rem {
		t.a.MovRegReg(wide, asm.RAX, asm.RDX)
	}

	t.a.Bind(done)
	t.storeSlot(wide, asm.RAX, i.DestID)
	return nil
}

func condFor(op ir.BinOp, typ ast.Type) asm.CondCode {
	unsigned := typ == ast.Usize
	switch op {
	case ir.Eq:
		return asm.CondE
	case ir.Ne:
		return asm.CondNE
	case ir.Lt:
		if unsigned {
			return asm.CondB
		}
		return asm.CondL
	case ir.Le:
		if unsigned {
			return asm.CondBE
		}
		return asm.CondLE
	case ir.Gt:
		if unsigned {
			return asm.CondA
		}
		return asm.CondG
	default: // ir.Ge
		if unsigned {
			return asm.CondAE
		}
		return asm.CondGE
	}
}

func (t *translator) translateConvert(i *ir.Convert) error {
	switch {
	case i.From == ast.I32 && (i.To == ast.I64 || i.To == ast.Usize):
		t.loadSlot(false, asm.RAX, i.Src)
		t.a.SignExtend32To64(asm.RAX)
		t.storeSlot(true, asm.RAX, i.DestID)
	case (i.From == ast.I64 || i.From == ast.Usize) && i.To == ast.I32:
		t.loadSlot(true, asm.RAX, i.Src)
		t.storeSlot(false, asm.RAX, i.DestID) // a 32-bit store keeps only the low half
	default:
		// same width: a bitcast, the register contents are already right
		t.loadSlot(wideOf(i.From), asm.RAX, i.Src)
		t.storeSlot(wideOf(i.To), asm.RAX, i.DestID)
	}
	return nil
}

// translateHostOp emits a call into the HostABI for a value-producing
// operation (Load, Alloc), routed the same way a user import is: via
// a purego callback trampoline rather than direct memory access, so
// JIT and VM observe identical HostABI behavior (spec §4.7.3).
func (t *translator) translateHostOp(name string, memType ast.Type, dest ir.ValueId, resultType ast.Type, args []ir.ValueId) error {
	if err := t.emitHostCall(name, memType, args); err != nil {
		return err
	}
	t.storeSlot(wideOf(resultType), asm.RAX, dest)
	return nil
}

func (t *translator) translateHostVoidOp(name string, memType ast.Type, args []ir.ValueId) error {
	return t.emitHostCall(name, memType, args)
}

func (t *translator) emitHostCall(name string, memType ast.Type, args []ir.ValueId) error {
	tramp := t.m.memOpTrampoline(name, memType)
	argRegs := []asm.Reg{asm.RDI, asm.RSI, asm.RDX, asm.RCX, asm.R8, asm.R9}
	for i, id := range args {
		t.loadSlot(true, argRegs[i], id)
	}
	t.emitAbsoluteCall(tramp, nil)
	return nil
}

func (t *translator) translateCall(callee string, args []ir.ValueId) error {
	argRegs := []asm.Reg{asm.RDI, asm.RSI, asm.RDX, asm.RCX, asm.R8, asm.R9}
	if len(args) > len(argRegs) {
		return fmt.Errorf("jit: call to %s passes more than 6 arguments", callee)
	}
	for i, id := range args {
		t.loadSlot(true, argRegs[i], id)
	}
	if tramp, ok := t.m.trampolines[callee]; ok {
		t.emitAbsoluteCall(tramp, nil)
		return nil
	}
	t.emitAbsoluteCall(0, &callee)
	return nil
}

// emitAbsoluteCall loads a 64-bit address into a scratch register and
// calls through it. When addr is already known (a host import, the
// div-by-zero trampoline) it's embedded directly; when calleeName is
// set instead, a zero placeholder is emitted and its offset recorded
// so Module.Finalize can patch in the real address once every
// function has a fixed home in memory.
func (t *translator) emitAbsoluteCall(addr uintptr, calleeName *string) {
	if calleeName == nil {
		t.a.MovImm64(asm.R11, uint64(addr))
	} else {
		off := t.a.MovImm64At(asm.R11)
		t.fixups = append(t.fixups, translatorFixup{callee: *calleeName, offset: off})
	}
	t.a.CallReg(asm.R11)
}

func (t *translator) translateTerm(b *ir.BasicBlock) error {
	switch term := b.Term.(type) {
	case *ir.Ret:
		if term.Value != nil {
			t.loadSlot(true, asm.RAX, *term.Value)
		}
		t.epilogue()
		return nil

	case *ir.Br:
		t.emitBranch(b.ID, term.Target, term.Args)
		t.a.JmpLabel(t.blocks[term.Target])
		return nil

	case *ir.BrIf:
		condWide := wideOf(t.valueType[term.Cond])
		t.loadSlot(condWide, asm.RAX, term.Cond)
		t.a.MovImm32(condWide, asm.RCX, 0)
		t.a.CmpRegReg(condWide, asm.RAX, asm.RCX)
		trueLabel := t.a.NewLabel()
		t.a.JccLabel(asm.CondNE, trueLabel)
		t.emitBranch(b.ID, term.FalseTarget, term.FalseArgs)
		t.a.JmpLabel(t.blocks[term.FalseTarget])
		t.a.Bind(trueLabel)
		t.emitBranch(b.ID, term.TrueTarget, term.TrueArgs)
		t.a.JmpLabel(t.blocks[term.TrueTarget])
		return nil

	default:
		return fmt.Errorf("jit: block %q has no terminator", b.Label)
	}
}

// emitBranch copies each arg's value into the target block's
// corresponding parameter slot. A block may pass its own parameters
// back to itself, permuted (e.g. br loop(j, i)), so an arg ValueId can
// coincide with a destination-block parameter ValueId that an earlier
// iteration of this same loop is about to overwrite. Mirror the VM's
// takeBranch: load every arg into a scratch area first, then store
// into the parameter slots, so no store can clobber a value a later
// iteration still needs to read.
func (t *translator) emitBranch(from ir.BlockId, to ir.BlockId, args []ir.ValueId) {
	target := t.fn.Block(to)
	for i, arg := range args {
		wide := wideOf(target.Params[i].Type)
		t.loadSlot(wide, asm.RAX, arg)
		t.storeScratch(wide, asm.RAX, i)
	}
	for i := range args {
		wide := wideOf(target.Params[i].Type)
		t.loadScratch(wide, asm.RAX, i)
		t.storeSlot(wide, asm.RAX, target.Params[i].Value)
	}
}
