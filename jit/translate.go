package jit

import (
	"fmt"

	"github.com/tiltlang/tilt/ast"
	"github.com/tiltlang/tilt/internal/asm"
	"github.com/tiltlang/tilt/ir"
)

// translator compiles one ir.Function to amd64 machine code. It uses
// no register allocation: every ValueId gets a fixed 8-byte stack
// slot, loaded into a scratch register before use and stored back
// after definition. This is deliberately the simplest correct
// strategy (spec §9 notes the original Cranelift backend delegated
// register allocation entirely to the backend; here there is no
// backend to delegate to, so slots stand in for it) — it trades
// performance for a translator short enough to read end to end.
type translator struct {
	m         *Module
	fn        *ir.Function
	a         *asm.Assembler
	slot      []int       // ValueId -> byte offset from RBP (negative)
	valueType []ast.Type  // ValueId -> static type, needed wherever a consumer has no other way to know a value's width (e.g. a BrIf condition)
	blocks    []asm.Label
	fixups    []translatorFixup
	scratch   []int // branch-argument staging slots, distinct from every ValueId's slot
}

type translatorFixup struct {
	callee string
	offset int
}

const pointerSize = 8 // this JIT targets LP64 amd64; Usize is always 8 bytes here

func newTranslator(m *Module, fn *ir.Function) *translator {
	return &translator{m: m, fn: fn, a: asm.New()}
}

func (t *translator) run() ([]byte, []translatorFixup, error) {
	n := t.fn.NumValues()
	t.slot = make([]int, n)
	for i := 0; i < n; i++ {
		t.slot[i] = -pointerSize * (i + 1)
	}

	maxParams := 0
	for _, b := range t.fn.Blocks {
		if len(b.Params) > maxParams {
			maxParams = len(b.Params)
		}
	}
	t.scratch = make([]int, maxParams)
	for i := range t.scratch {
		t.scratch[i] = -pointerSize * (n + i + 1)
	}

	frameSize := pointerSize * (n + maxParams)
	if frameSize%16 != 0 {
		frameSize += 16 - frameSize%16
	}

	t.valueType = make([]ast.Type, n)
	for i, pt := range t.fn.ParamTypes {
		t.valueType[i] = pt
	}
	for id, c := range t.fn.Constants {
		t.valueType[id] = c.Type
	}
	for _, b := range t.fn.Blocks {
		for _, p := range b.Params {
			t.valueType[p.Value] = p.Type
		}
		for _, instr := range b.Instrs {
			if id, typ, ok := destType(instr); ok {
				t.valueType[id] = typ
			}
		}
	}

	t.blocks = make([]asm.Label, len(t.fn.Blocks))
	for i := range t.blocks {
		t.blocks[i] = t.a.NewLabel()
	}

	t.trace("func %s", t.fn.Name)
	t.prologue(frameSize)

	argRegs := []asm.Reg{asm.RDI, asm.RSI, asm.RDX, asm.RCX, asm.R8, asm.R9}
	if len(t.fn.ParamTypes) > len(argRegs) {
		return nil, nil, fmt.Errorf("function %s takes more than 6 parameters", t.fn.Name)
	}
	for i, pt := range t.fn.ParamTypes {
		t.storeSlot(wideOf(pt), argRegs[i], ir.ValueId(i))
	}
	for id, c := range t.fn.Constants {
		t.a.MovImm64(asm.RAX, uint64(c.Literal))
		t.storeSlot(wideOf(c.Type), asm.RAX, id)
	}

	for _, b := range t.fn.Blocks {
		t.a.Bind(t.blocks[b.ID])
		t.trace("%s:", b.Label)
		for _, instr := range b.Instrs {
			t.trace("  %s", instr)
			if err := t.translateInstr(instr); err != nil {
				return nil, nil, err
			}
		}
		if err := t.translateTerm(b); err != nil {
			return nil, nil, err
		}
	}

	return t.a.Finalize(), t.fixups, nil
}

func (t *translator) trace(format string, args ...interface{}) {
	if t.m.trace != nil {
		fmt.Fprintf(t.m.trace, format+"\n", args...)
	}
}

func wideOf(typ ast.Type) bool { return typ == ast.I64 || typ == ast.Usize }

// destType reports the ValueId and static type an instruction defines,
// mirroring the type each instruction's String() method already
// implies. Comparisons are the one case where the result type (always
// I32, spec §3.4 invariant 4) differs from the instruction's declared
// operand Type.
func destType(instr ir.Instruction) (ir.ValueId, ast.Type, bool) {
	switch i := instr.(type) {
	case *ir.Const:
		return i.DestID, i.Type, true
	case *ir.BinaryOp:
		if i.Op.IsComparison() {
			return i.DestID, ast.I32, true
		}
		return i.DestID, i.Type, true
	case *ir.UnaryOp:
		return i.DestID, i.Type, true
	case *ir.Call:
		return i.DestID, i.Type, true
	case *ir.Load:
		return i.DestID, i.Type, true
	case *ir.PtrAdd:
		return i.DestID, ast.Usize, true
	case *ir.SizeOfInstr:
		return i.DestID, ast.Usize, true
	case *ir.Alloc:
		return i.DestID, ast.Usize, true
	case *ir.Convert:
		return i.DestID, i.To, true
	default:
		return 0, ast.Void, false
	}
}

// loadSlot loads ValueId id's stack slot into dst.
func (t *translator) loadSlot(wide bool, dst asm.Reg, id ir.ValueId) {
	t.a.LoadFrame(wide, dst, asm.RBP, int32(t.slot[id]))
}

func (t *translator) storeSlot(wide bool, src asm.Reg, id ir.ValueId) {
	t.a.StoreFrame(wide, asm.RBP, int32(t.slot[id]), src)
}

// loadScratch and storeScratch address the i'th branch-argument
// staging slot, used by emitBranch to hold copied values across a
// block-parameter permutation without clobbering a slot another arg
// still needs to read.
func (t *translator) loadScratch(wide bool, dst asm.Reg, i int) {
	t.a.LoadFrame(wide, dst, asm.RBP, int32(t.scratch[i]))
}

func (t *translator) storeScratch(wide bool, src asm.Reg, i int) {
	t.a.StoreFrame(wide, asm.RBP, int32(t.scratch[i]), src)
}

func (t *translator) prologue(frameSize int) {
	t.a.PushReg(asm.RBP)
	t.a.MovRegReg(true, asm.RBP, asm.RSP)
	if frameSize > 0 {
		t.a.SubRSPImm32(uint32(frameSize))
	}
}

func (t *translator) epilogue() {
	t.a.MovRegReg(true, asm.RSP, asm.RBP)
	t.a.PopReg(asm.RBP)
	t.a.Ret()
}
