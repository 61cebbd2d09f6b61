// Package lower implements TILT's lowerer (spec component C4): a
// single-pass translation from package ast's syntax tree to package
// ir's SSA form, performing semantic analysis as it goes (spec §4.3).
//
// Lowering proceeds in two phases per spec §4.3.2: phase one walks
// every import and function signature (diagnosing duplicate names up
// front, independent of body order), phase two walks each function's
// body, binding a single per-function scope table as it visits blocks
// in source order; phase two is skipped when phase one reported any
// error. Within a phase the lowerer does not stop at the first error: it
// accumulates every SemanticError it finds and returns them all
// (spec §4.3, preamble), the way go/types accumulates into a
// types.Error list rather than failing on the first bad declaration.
package lower

import (
	"github.com/tiltlang/tilt/ast"
	"github.com/tiltlang/tilt/ir"
	"github.com/tiltlang/tilt/token"
)

// signature is the phase-one-resolved shape of anything callable by
// name: a user function or a host import.
type signature struct {
	params   []ast.Type
	ret      ast.Type
	isImport bool
	pos      token.Pos
}

// scopeEntry binds a source identifier to its SSA value and static
// type for the remainder of the enclosing function (spec §4.3.2).
type scopeEntry struct {
	id  ir.ValueId
	typ ast.Type
}

type lowerer struct {
	src  string
	errs []*SemanticError

	sigs        map[string]signature
	blockIndex  map[string]map[string]ir.BlockId // func name -> label -> block id
	definedName map[string]map[string]bool       // func name -> variable name -> defined
}

// Lower translates prog (parsed from src) into an ir.Program. It
// always returns every accumulated *SemanticError. Function bodies are
// lowered only when phase one reported no errors, so a duplicate name
// or block label hides any errors inside the bodies. Callers should
// treat a non-empty error slice as "do not trust the ir.Program",
// since partially-lowered functions are left in a best-effort state
// for diagnostic purposes only.
func Lower(prog *ast.Program, src string) (*ir.Program, []*SemanticError) {
	l := &lowerer{
		src:         src,
		sigs:        make(map[string]signature),
		blockIndex:  make(map[string]map[string]ir.BlockId),
		definedName: make(map[string]map[string]bool),
	}

	out := &ir.Program{}

	l.phase1Signatures(prog, out)
	if len(l.errs) == 0 {
		l.phase2Bodies(prog, out)
	}

	return out, l.errs
}

// phase1Signatures registers every import and function's name/shape,
// diagnosing DuplicateDefinition across the shared callee namespace
// (imports and functions are both invoked as `call name(...)`, so a
// function cannot shadow an import or vice versa), and pre-builds
// each function's skeleton (blocks with ids and labels, no bodies
// yet) so phase two can resolve branch targets regardless of forward
// reference.
func (l *lowerer) phase1Signatures(prog *ast.Program, out *ir.Program) {
	for _, imp := range prog.Imports {
		paramTypes := make([]ast.Type, len(imp.Params))
		for i, p := range imp.Params {
			paramTypes[i] = p.Type
		}
		if existing, ok := l.sigs[imp.Name]; ok {
			l.errorAt(imp.Pos, DuplicateDefinition, "%q redeclared (previously declared at %s)", imp.Name, l.locate(existing.pos))
			continue
		}
		l.sigs[imp.Name] = signature{params: paramTypes, ret: imp.Return, isImport: true, pos: imp.Pos}
		out.Imports = append(out.Imports, &ir.Import{
			Module: imp.Module, Name: imp.Name, CallConv: imp.CallConv,
			Params: paramTypes, Return: imp.Return,
		})
	}

	for _, fn := range prog.Funcs {
		paramTypes := make([]ast.Type, len(fn.Params))
		for i, p := range fn.Params {
			paramTypes[i] = p.Type
		}
		if existing, ok := l.sigs[fn.Name]; ok {
			l.errorAt(fn.Pos, DuplicateDefinition, "%q redeclared (previously declared at %s)", fn.Name, l.locate(existing.pos))
			continue
		}
		l.sigs[fn.Name] = signature{params: paramTypes, ret: fn.Return, pos: fn.Pos}

		irFn := ir.NewFunction(fn.Name, paramTypes, fn.Return)
		labels := make(map[string]ir.BlockId)
		for _, b := range fn.Blocks {
			if _, dup := labels[b.Label]; dup {
				l.errorAt(b.Pos, DuplicateDefinition, "block label %q redeclared in function %q", b.Label, fn.Name)
				continue
			}
			id := irFn.AddBlock(b.Label).ID
			labels[b.Label] = id
		}
		l.blockIndex[fn.Name] = labels
		l.definedName[fn.Name] = make(map[string]bool)
		out.Funcs = append(out.Funcs, irFn)
	}
}

// phase2Bodies lowers every function body against the signatures and
// block skeletons phase one built.
func (l *lowerer) phase2Bodies(prog *ast.Program, out *ir.Program) {
	for _, fn := range prog.Funcs {
		irFn := out.FuncByName(fn.Name)
		if irFn == nil {
			continue // its signature failed to register in phase 1
		}
		l.lowerFunctionBody(fn, irFn)
	}
}

// defineName records name as bound within fn, diagnosing
// DuplicateDefinition on reuse (spec §3.4 invariant 8: variable names
// are unique within a function, not just within a block).
func (l *lowerer) defineName(fnName, name string, pos token.Pos) bool {
	defined := l.definedName[fnName]
	if defined[name] {
		l.errorAt(pos, DuplicateDefinition, "%q redefined within function %q", name, fnName)
		return false
	}
	defined[name] = true
	return true
}

func (l *lowerer) lowerFunctionBody(fn *ast.FunctionDef, irFn *ir.Function) {
	scope := make(map[string]scopeEntry, len(fn.Params))

	// Bind function parameters to ValueIds 0..N-1 (spec §3.4 invariant
	// 7, spec §4.6.2 step 5's call protocol depends on this).
	paramIDs := make([]ir.ValueId, len(fn.Params))
	for i, p := range fn.Params {
		id := irFn.AllocValue()
		paramIDs[i] = id
		l.defineName(fn.Name, p.Name, p.Pos)
		scope[p.Name] = scopeEntry{id: id, typ: p.Type}
	}

	entry := irFn.Block(0)
	entry.Params = make([]ir.BlockParam, len(paramIDs))
	for i, id := range paramIDs {
		entry.Params[i] = ir.BlockParam{Value: id, Type: fn.Params[i].Type}
	}
	if len(fn.Blocks[0].Params) > 0 {
		l.errorAt(fn.Blocks[0].Pos, DuplicateDefinition,
			"entry block %q must not redeclare function parameters as block parameters", fn.Blocks[0].Label)
	}

	// Give every non-entry block its parameter ValueIds before any body
	// is lowered, so a forward branch can check its arguments against
	// them; the names enter scope when their block is visited below.
	for i, astBlock := range fn.Blocks[1:] {
		irBlock := irFn.Block(ir.BlockId(i + 1))
		for _, bp := range astBlock.Params {
			irBlock.Params = append(irBlock.Params, ir.BlockParam{Value: irFn.AllocValue(), Type: bp.Type})
		}
	}

	for i, astBlock := range fn.Blocks {
		id := ir.BlockId(i)
		irBlock := irFn.Block(id)

		if i != 0 {
			for j, bp := range astBlock.Params {
				l.defineName(fn.Name, bp.Name, bp.Pos)
				scope[bp.Name] = scopeEntry{id: irBlock.Params[j].Value, typ: bp.Type}
			}
		}

		for _, instr := range astBlock.Instrs {
			l.lowerInstr(fn, irFn, irBlock, scope, instr)
		}

		l.lowerTerminator(fn, irFn, irBlock, scope, astBlock.Term)
	}
}
