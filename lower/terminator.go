package lower

import (
	"github.com/tiltlang/tilt/ast"
	"github.com/tiltlang/tilt/ir"
)

// lowerTerminator lowers the one ast.Terminator ending a block (spec
// §4.3.5, §4.3.6). A nil term (should not occur: the parser always
// produces one) is reported as MissingTerminator defensively.
func (l *lowerer) lowerTerminator(fn *ast.FunctionDef, irFn *ir.Function, block *ir.BasicBlock, scope map[string]scopeEntry, term ast.Terminator) {
	switch t := term.(type) {
	case nil:
		l.errorAt(0, MissingTerminator, "block %q has no terminator", block.Label)
	case *ast.RetTerm:
		l.lowerRet(fn, irFn, block, scope, t)
	case *ast.BrTerm:
		l.lowerBr(fn, irFn, block, scope, t)
	case *ast.BrIfTerm:
		l.lowerBrIf(fn, irFn, block, scope, t)
	}
}

func (l *lowerer) lowerRet(fn *ast.FunctionDef, irFn *ir.Function, block *ir.BasicBlock, scope map[string]scopeEntry, t *ast.RetTerm) {
	if t.Value == nil {
		if irFn.ReturnType != ast.Void {
			l.typeMismatch(t.Pos, "return", irFn.ReturnType, ast.Void)
			return
		}
		block.Term = &ir.Ret{}
		return
	}
	id, ok := l.resolveOperand(scope, irFn, *t.Value, irFn.ReturnType, "return value")
	if !ok {
		return
	}
	block.Term = &ir.Ret{Value: &id}
}

// resolveBranch looks up target's block by label and lowers args
// positionally against its parameter types (spec §3.4 invariant 6).
func (l *lowerer) resolveBranch(fn *ast.FunctionDef, irFn *ir.Function, scope map[string]scopeEntry, target string, args []ast.Value, pos ast.Value) (ir.BlockId, []ir.ValueId, bool) {
	id, ok := l.blockIndex[fn.Name][target]
	if !ok {
		l.errorAt(pos.Pos, UndefinedBlock, "undefined block %q", target)
		return 0, nil, false
	}
	want := irFn.Block(id)
	if len(args) != len(want.Params) {
		l.argumentMismatch(pos.Pos, "branch to "+target, len(want.Params), len(args))
		return id, nil, false
	}
	out := make([]ir.ValueId, len(args))
	allOK := true
	for i, a := range args {
		vid, ok := l.resolveOperand(scope, irFn, a, want.ParamType(i), "branch argument to "+target)
		out[i] = vid
		allOK = allOK && ok
	}
	return id, out, allOK
}

func (l *lowerer) lowerBr(fn *ast.FunctionDef, irFn *ir.Function, block *ir.BasicBlock, scope map[string]scopeEntry, t *ast.BrTerm) {
	marker := ast.Value{Pos: t.Pos}
	target, args, ok := l.resolveBranch(fn, irFn, scope, t.Target, t.Args, marker)
	if !ok {
		return
	}
	block.Term = &ir.Br{Target: target, Args: args}
}

func (l *lowerer) lowerBrIf(fn *ast.FunctionDef, irFn *ir.Function, block *ir.BasicBlock, scope map[string]scopeEntry, t *ast.BrIfTerm) {
	cond, condOK := l.resolveCondOperand(scope, irFn, t.Cond)

	marker := ast.Value{Pos: t.Pos}
	trueTarget, trueArgs, trueOK := l.resolveBranch(fn, irFn, scope, t.TrueTarget, t.TrueArgs, marker)
	falseTarget, falseArgs, falseOK := l.resolveBranch(fn, irFn, scope, t.FalseTarget, t.FalseArgs, marker)

	if !condOK || !trueOK || !falseOK {
		return
	}
	block.Term = &ir.BrIf{
		Cond:        cond,
		TrueTarget:  trueTarget,
		TrueArgs:    trueArgs,
		FalseTarget: falseTarget,
		FalseArgs:   falseArgs,
	}
}
