package lower

import (
	"fmt"
	"strings"

	"github.com/tiltlang/tilt/ast"
	"github.com/tiltlang/tilt/ir"
)

var typeByName = map[string]ast.Type{
	"i32": ast.I32, "i64": ast.I64, "f32": ast.F32, "f64": ast.F64,
	"usize": ast.Usize, "void": ast.Void,
}

var arithOps = map[string]ir.BinOp{
	"add": ir.Add, "sub": ir.Sub, "mul": ir.Mul, "div": ir.Div, "rem": ir.Rem,
	"and": ir.And, "or": ir.Or, "xor": ir.Xor, "shl": ir.Shl, "shr": ir.Shr,
}

var cmpOps = map[string]ir.BinOp{
	"eq": ir.Eq, "ne": ir.Ne, "lt": ir.Lt, "le": ir.Le, "gt": ir.Gt, "ge": ir.Ge,
}

func isArithOp(op string) bool { _, ok := arithOps[op]; return ok }
func isCmpOp(op string) bool   { _, ok := cmpOps[op]; return ok }

// lowerInstr lowers one ast.Instr against block, appending at most one
// ir.Instruction and, for an assigning form, binding its destination
// in scope.
func (l *lowerer) lowerInstr(fn *ast.FunctionDef, irFn *ir.Function, block *ir.BasicBlock, scope map[string]scopeEntry, instr *ast.Instr) {
	switch e := instr.Expr.(type) {
	case *ast.LitExpr:
		if instr.Dest == nil {
			l.errorAt(e.Pos, InvalidOperation, "a bare integer literal has no effect as an expression statement")
			return
		}
		id := irFn.AddConstant(e.Value, instr.Dest.Type)
		l.bindDest(fn.Name, scope, instr.Dest, id)

	case *ast.CallExpr:
		l.lowerCallExpr(fn, irFn, block, scope, instr.Dest, e)

	default:
		panic(fmt.Sprintf("lower: unreachable Expr type %T", e))
	}
}

// lowerCallExpr dispatches a CallExpr to the matching builtin
// operation (spec §4.3.3's `<type>.<op>` mnemonics, plus the bare
// `alloc`/`free` forms) or, failing that, to a user/host function
// call.
func (l *lowerer) lowerCallExpr(fn *ast.FunctionDef, irFn *ir.Function, block *ir.BasicBlock, scope map[string]scopeEntry, dest *ast.TypedIdent, e *ast.CallExpr) {
	if !e.Explicit {
		if l.tryBuiltin(fn, irFn, block, scope, dest, e) {
			return
		}
	}
	l.lowerFunctionCall(fn, irFn, block, scope, dest, e)
}

// tryBuiltin attempts to interpret e as one of the fixed operation
// mnemonics. It returns false (having emitted no diagnostic and no
// instruction) when e.Callee matches none of them, so the caller can
// fall back to a user function-call lookup.
func (l *lowerer) tryBuiltin(fn *ast.FunctionDef, irFn *ir.Function, block *ir.BasicBlock, scope map[string]scopeEntry, dest *ast.TypedIdent, e *ast.CallExpr) bool {
	switch e.Callee {
	case "alloc":
		l.lowerAlloc(fn, irFn, block, scope, dest, e)
		return true
	case "free":
		l.lowerFree(fn, irFn, block, scope, dest, e)
		return true
	}

	prefix, op, hasDot := strings.Cut(e.Callee, ".")
	if !hasDot {
		return false
	}

	if prefix == "sizeof" {
		l.lowerSizeOf(fn, irFn, block, scope, dest, e, op)
		return true
	}

	typ, isType := typeByName[prefix]
	if !isType {
		return false
	}

	switch {
	case isArithOp(op):
		l.lowerArith(fn, irFn, block, scope, dest, e, typ, op)
		return true
	case isCmpOp(op):
		l.lowerCompare(fn, irFn, block, scope, dest, e, typ, op)
		return true
	case op == "neg" || op == "not":
		l.lowerUnary(fn, irFn, block, scope, dest, e, typ, op)
		return true
	case op == "const":
		l.lowerConstOp(fn, irFn, block, scope, dest, e, typ)
		return true
	case op == "load":
		l.lowerLoad(fn, irFn, block, scope, dest, e, typ)
		return true
	case op == "store":
		l.lowerStore(fn, irFn, block, scope, dest, e, typ)
		return true
	case op == "extend":
		l.lowerExtend(fn, irFn, block, scope, dest, e, typ)
		return true
	case op == "trunc":
		l.lowerTrunc(fn, irFn, block, scope, dest, e, typ)
		return true
	case strings.HasPrefix(op, "to_"):
		l.lowerConvertTo(fn, irFn, block, scope, dest, e, typ, strings.TrimPrefix(op, "to_"))
		return true
	}
	return false
}

func (l *lowerer) checkArity(e *ast.CallExpr, want int) bool {
	if len(e.Args) != want {
		l.argumentMismatch(e.Pos, fmt.Sprintf("operation %q", e.Callee), want, len(e.Args))
		return false
	}
	return true
}

// requireDest enforces the non-void-result convention shared by every
// value-producing builtin (spec §4.3.3): an assigning destination is
// required, and its declared type must equal the operation's result
// type.
func (l *lowerer) requireDest(e *ast.CallExpr, dest *ast.TypedIdent, result ast.Type) bool {
	if dest == nil {
		l.errorAt(e.Pos, InvalidOperation, "operation %q produces a value and requires an assigning destination", e.Callee)
		return false
	}
	if dest.Type != result {
		l.typeMismatch(dest.Pos, fmt.Sprintf("destination of %q", e.Callee), result, dest.Type)
		return false
	}
	return true
}

// requireNoDest enforces the void-result convention: the instruction
// must appear as an expression-statement.
func (l *lowerer) requireNoDest(e *ast.CallExpr, dest *ast.TypedIdent) bool {
	if dest != nil {
		l.errorAt(e.Pos, InvalidOperation, "operation %q produces no value and must be an expression statement", e.Callee)
		return false
	}
	return true
}

func (l *lowerer) lowerArith(fn *ast.FunctionDef, irFn *ir.Function, block *ir.BasicBlock, scope map[string]scopeEntry, dest *ast.TypedIdent, e *ast.CallExpr, typ ast.Type, op string) {
	if !l.checkArity(e, 2) || !l.requireDest(e, dest, typ) {
		return
	}
	lhs, ok1 := l.resolveOperand(scope, irFn, e.Args[0], typ, "left operand of "+e.Callee)
	rhs, ok2 := l.resolveOperand(scope, irFn, e.Args[1], typ, "right operand of "+e.Callee)
	if !ok1 || !ok2 {
		return
	}
	destID := irFn.AllocValue()
	if typ == ast.Usize && op == "add" {
		block.Instrs = append(block.Instrs, &ir.PtrAdd{DestID: destID, Ptr: lhs, Offset: rhs})
	} else {
		block.Instrs = append(block.Instrs, &ir.BinaryOp{DestID: destID, Op: arithOps[op], Type: typ, Lhs: lhs, Rhs: rhs})
	}
	l.bindDest(fn.Name, scope, dest, destID)
}

func (l *lowerer) lowerCompare(fn *ast.FunctionDef, irFn *ir.Function, block *ir.BasicBlock, scope map[string]scopeEntry, dest *ast.TypedIdent, e *ast.CallExpr, typ ast.Type, op string) {
	if !l.checkArity(e, 2) || !l.requireDest(e, dest, ast.I32) {
		return
	}
	lhs, ok1 := l.resolveOperand(scope, irFn, e.Args[0], typ, "left operand of "+e.Callee)
	rhs, ok2 := l.resolveOperand(scope, irFn, e.Args[1], typ, "right operand of "+e.Callee)
	if !ok1 || !ok2 {
		return
	}
	destID := irFn.AllocValue()
	block.Instrs = append(block.Instrs, &ir.BinaryOp{DestID: destID, Op: cmpOps[op], Type: typ, Lhs: lhs, Rhs: rhs})
	l.bindDest(fn.Name, scope, dest, destID)
}

func (l *lowerer) lowerUnary(fn *ast.FunctionDef, irFn *ir.Function, block *ir.BasicBlock, scope map[string]scopeEntry, dest *ast.TypedIdent, e *ast.CallExpr, typ ast.Type, op string) {
	if !l.checkArity(e, 1) || !l.requireDest(e, dest, typ) {
		return
	}
	operand, ok := l.resolveOperand(scope, irFn, e.Args[0], typ, "operand of "+e.Callee)
	if !ok {
		return
	}
	destID := irFn.AllocValue()
	unop := ir.Neg
	if op == "not" {
		unop = ir.Not
	}
	block.Instrs = append(block.Instrs, &ir.UnaryOp{DestID: destID, Op: unop, Type: typ, Operand: operand})
	l.bindDest(fn.Name, scope, dest, destID)
}

func (l *lowerer) lowerConstOp(fn *ast.FunctionDef, irFn *ir.Function, block *ir.BasicBlock, scope map[string]scopeEntry, dest *ast.TypedIdent, e *ast.CallExpr, typ ast.Type) {
	if !l.checkArity(e, 1) || !l.requireDest(e, dest, typ) {
		return
	}
	if e.Args[0].Kind != ast.ValInt {
		l.errorAt(e.Args[0].Pos, InvalidOperation, "%q requires a literal operand", e.Callee)
		return
	}
	destID := irFn.AllocValue()
	block.Instrs = append(block.Instrs, &ir.Const{DestID: destID, Literal: e.Args[0].Int, Type: typ})
	l.bindDest(fn.Name, scope, dest, destID)
}

func (l *lowerer) lowerLoad(fn *ast.FunctionDef, irFn *ir.Function, block *ir.BasicBlock, scope map[string]scopeEntry, dest *ast.TypedIdent, e *ast.CallExpr, typ ast.Type) {
	if !l.checkArity(e, 1) || !l.requireDest(e, dest, typ) {
		return
	}
	addr, ok := l.resolveOperand(scope, irFn, e.Args[0], ast.Usize, "address operand of "+e.Callee)
	if !ok {
		return
	}
	destID := irFn.AllocValue()
	block.Instrs = append(block.Instrs, &ir.Load{DestID: destID, Type: typ, Address: addr})
	l.bindDest(fn.Name, scope, dest, destID)
}

func (l *lowerer) lowerStore(fn *ast.FunctionDef, irFn *ir.Function, block *ir.BasicBlock, scope map[string]scopeEntry, dest *ast.TypedIdent, e *ast.CallExpr, typ ast.Type) {
	if !l.checkArity(e, 2) || !l.requireNoDest(e, dest) {
		return
	}
	addr, ok1 := l.resolveOperand(scope, irFn, e.Args[0], ast.Usize, "address operand of "+e.Callee)
	val, ok2 := l.resolveOperand(scope, irFn, e.Args[1], typ, "value operand of "+e.Callee)
	if !ok1 || !ok2 {
		return
	}
	block.Instrs = append(block.Instrs, &ir.Store{Address: addr, Value: val, Type: typ})
}

func (l *lowerer) lowerSizeOf(fn *ast.FunctionDef, irFn *ir.Function, block *ir.BasicBlock, scope map[string]scopeEntry, dest *ast.TypedIdent, e *ast.CallExpr, typeName string) {
	typ, ok := typeByName[typeName]
	if !ok {
		l.errorAt(e.Pos, InvalidOperation, "sizeof: unknown type %q", typeName)
		return
	}
	if !l.checkArity(e, 0) || !l.requireDest(e, dest, ast.Usize) {
		return
	}
	destID := irFn.AllocValue()
	block.Instrs = append(block.Instrs, &ir.SizeOfInstr{DestID: destID, Type: typ})
	l.bindDest(fn.Name, scope, dest, destID)
}

func (l *lowerer) lowerAlloc(fn *ast.FunctionDef, irFn *ir.Function, block *ir.BasicBlock, scope map[string]scopeEntry, dest *ast.TypedIdent, e *ast.CallExpr) {
	if !l.checkArity(e, 1) || !l.requireDest(e, dest, ast.Usize) {
		return
	}
	size, ok := l.resolveOperand(scope, irFn, e.Args[0], ast.Usize, "size operand of alloc")
	if !ok {
		return
	}
	destID := irFn.AllocValue()
	block.Instrs = append(block.Instrs, &ir.Alloc{DestID: destID, Size: size})
	l.bindDest(fn.Name, scope, dest, destID)
}

func (l *lowerer) lowerFree(fn *ast.FunctionDef, irFn *ir.Function, block *ir.BasicBlock, scope map[string]scopeEntry, dest *ast.TypedIdent, e *ast.CallExpr) {
	if !l.checkArity(e, 1) || !l.requireNoDest(e, dest) {
		return
	}
	ptr, ok := l.resolveOperand(scope, irFn, e.Args[0], ast.Usize, "operand of free")
	if !ok {
		return
	}
	block.Instrs = append(block.Instrs, &ir.Free{Ptr: ptr})
}

// integerWidth assumes a 64-bit target for the purpose of validating
// extend/trunc direction (spec's Open Question on pointer width is
// resolved in SPEC_FULL.md: the lowerer reasons about a fixed 64-bit
// model, matching the JIT's amd64 target and the VM's uint64 usize
// values with a fixed 8-byte size).
func integerWidth(t ast.Type) int { return ir.SizeOf(t, 8) }

func (l *lowerer) lowerExtend(fn *ast.FunctionDef, irFn *ir.Function, block *ir.BasicBlock, scope map[string]scopeEntry, dest *ast.TypedIdent, e *ast.CallExpr, to ast.Type) {
	if !l.checkArity(e, 1) || !l.requireDest(e, dest, to) {
		return
	}
	src, from, ok := l.resolveTypedOperand(scope, e.Args[0], e.Callee)
	if !ok {
		return
	}
	if integerWidth(from) >= integerWidth(to) {
		l.errorAt(e.Args[0].Pos, InvalidOperation, "%s: source type %v is not narrower than %v; use %v.to_%v", e.Callee, from, to, from, to)
		return
	}
	destID := irFn.AllocValue()
	block.Instrs = append(block.Instrs, &ir.Convert{DestID: destID, Src: src, From: from, To: to})
	l.bindDest(fn.Name, scope, dest, destID)
}

func (l *lowerer) lowerTrunc(fn *ast.FunctionDef, irFn *ir.Function, block *ir.BasicBlock, scope map[string]scopeEntry, dest *ast.TypedIdent, e *ast.CallExpr, to ast.Type) {
	if !l.checkArity(e, 1) || !l.requireDest(e, dest, to) {
		return
	}
	src, from, ok := l.resolveTypedOperand(scope, e.Args[0], e.Callee)
	if !ok {
		return
	}
	if integerWidth(from) <= integerWidth(to) {
		l.errorAt(e.Args[0].Pos, InvalidOperation, "%s: source type %v is not wider than %v; use %v.to_%v", e.Callee, from, to, from, to)
		return
	}
	destID := irFn.AllocValue()
	block.Instrs = append(block.Instrs, &ir.Convert{DestID: destID, Src: src, From: from, To: to})
	l.bindDest(fn.Name, scope, dest, destID)
}

func (l *lowerer) lowerConvertTo(fn *ast.FunctionDef, irFn *ir.Function, block *ir.BasicBlock, scope map[string]scopeEntry, dest *ast.TypedIdent, e *ast.CallExpr, from ast.Type, dstName string) {
	to, isType := typeByName[dstName]
	if !isType {
		l.errorAt(e.Pos, InvalidOperation, "%s: unknown destination type %q", e.Callee, dstName)
		return
	}
	if !l.checkArity(e, 1) || !l.requireDest(e, dest, to) {
		return
	}
	src, ok := l.resolveOperand(scope, irFn, e.Args[0], from, "operand of "+e.Callee)
	if !ok {
		return
	}
	destID := irFn.AllocValue()
	block.Instrs = append(block.Instrs, &ir.Convert{DestID: destID, Src: src, From: from, To: to})
	l.bindDest(fn.Name, scope, dest, destID)
}

// lowerFunctionCall handles both the explicit `call name(...)` form
// and the implicit `name(...)` form once no builtin mnemonic matched
// (spec §4.3.3's final fallback: name lookup in the signature table).
func (l *lowerer) lowerFunctionCall(fn *ast.FunctionDef, irFn *ir.Function, block *ir.BasicBlock, scope map[string]scopeEntry, dest *ast.TypedIdent, e *ast.CallExpr) {
	sig, ok := l.sigs[e.Callee]
	if !ok {
		l.errorAt(e.Pos, FunctionNotFound, "no function or host import named %q", e.Callee)
		return
	}
	if len(e.Args) != len(sig.params) {
		l.argumentMismatch(e.Pos, fmt.Sprintf("call to %q", e.Callee), len(sig.params), len(e.Args))
		return
	}

	args := make([]ir.ValueId, len(e.Args))
	ok2 := true
	for i, a := range e.Args {
		id, argOK := l.resolveOperand(scope, irFn, a, sig.params[i], fmt.Sprintf("argument %d of call to %q", i+1, e.Callee))
		args[i] = id
		ok2 = ok2 && argOK
	}
	if !ok2 {
		return
	}

	if sig.ret == ast.Void {
		if dest != nil {
			l.errorAt(e.Pos, InvalidOperation, "call to %q returns void and must be an expression statement", e.Callee)
			return
		}
		block.Instrs = append(block.Instrs, &ir.CallVoid{Callee: e.Callee, Args: args})
		return
	}

	if dest == nil {
		l.errorAt(e.Pos, InvalidOperation, "call to %q returns %v and requires an assigning destination", e.Callee, sig.ret)
		return
	}
	if dest.Type != sig.ret {
		l.typeMismatch(dest.Pos, fmt.Sprintf("destination of call to %q", e.Callee), sig.ret, dest.Type)
		return
	}
	destID := irFn.AllocValue()
	block.Instrs = append(block.Instrs, &ir.Call{DestID: destID, Callee: e.Callee, Args: args, Type: sig.ret})
	l.bindDest(fn.Name, scope, dest, destID)
}
