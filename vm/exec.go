package vm

import (
	"fmt"

	"github.com/tiltlang/tilt/hostabi"
	"github.com/tiltlang/tilt/ir"
)

// dispatch is the fetch/execute loop of spec §4.6.3: one instruction
// at a time until the block's terminator returns, branches, or
// branches conditionally.
func (v *VM) dispatch(fn *ir.Function, frame *StackFrame) (hostabi.RuntimeValue, error) {
	for {
		block := fn.Block(frame.Block)

		if frame.IP < len(block.Instrs) {
			if err := v.execInstr(fn, frame, block.Instrs[frame.IP]); err != nil {
				return hostabi.RuntimeValue{}, err
			}
			frame.IP++
			continue
		}

		switch t := block.Term.(type) {
		case *ir.Ret:
			if t.Value == nil {
				return hostabi.VoidValue(), nil
			}
			val, ok := frame.Values[*t.Value]
			if !ok {
				return hostabi.RuntimeValue{}, errValueNotFound(fmt.Sprintf("ret operand v%d", *t.Value))
			}
			return val, nil

		case *ir.Br:
			if err := v.takeBranch(fn, frame, t.Target, t.Args); err != nil {
				return hostabi.RuntimeValue{}, err
			}

		case *ir.BrIf:
			cond, ok := frame.Values[t.Cond]
			if !ok {
				return hostabi.RuntimeValue{}, errValueNotFound(fmt.Sprintf("br_if condition v%d", t.Cond))
			}
			truthy, err := isTruthy(cond)
			if err != nil {
				return hostabi.RuntimeValue{}, err
			}
			target, args := t.FalseTarget, t.FalseArgs
			if truthy {
				target, args = t.TrueTarget, t.TrueArgs
			}
			if err := v.takeBranch(fn, frame, target, args); err != nil {
				return hostabi.RuntimeValue{}, err
			}

		case nil:
			return hostabi.RuntimeValue{}, errInvalidInstruction("block %q has no terminator", block.Label)

		default:
			return hostabi.RuntimeValue{}, errInvalidInstruction("unknown terminator type %T", t)
		}
	}
}

func isTruthy(v hostabi.RuntimeValue) (bool, error) {
	switch v.Type {
	case ir.I32:
		return v.AsI32() != 0, nil
	case ir.I64:
		return v.AsI64() != 0, nil
	default:
		return false, errTypeMismatch("branch condition", stringStringer("i32 or i64"), stringStringer(v.Type.String()))
	}
}

// takeBranch resolves args against the current frame and rebinds
// target's block parameters (spec §4.6.3's Br/BrIf protocol). Since
// ValueIds are unique per function (spec §3.4 invariant 8), rebinding
// just writes into the same frame.Values map under the target's
// parameter ids.
func (v *VM) takeBranch(fn *ir.Function, frame *StackFrame, target ir.BlockId, args []ir.ValueId) error {
	targetBlock := fn.Block(target)
	if len(args) != len(targetBlock.Params) {
		return errBlockNotFound(fmt.Sprintf("branch to %q passes %d args, wants %d", targetBlock.Label, len(args), len(targetBlock.Params)))
	}
	resolved := make([]hostabi.RuntimeValue, len(args))
	for i, id := range args {
		val, ok := frame.Values[id]
		if !ok {
			return errValueNotFound(fmt.Sprintf("branch argument v%d", id))
		}
		resolved[i] = val
	}
	for i, p := range targetBlock.Params {
		frame.Values[p.Value] = resolved[i]
	}
	frame.Block = target
	frame.IP = 0
	return nil
}

// execInstr executes one non-terminator instruction, binding its
// result (if any) into frame.Values (spec §4.6.4).
func (v *VM) execInstr(fn *ir.Function, frame *StackFrame, instr ir.Instruction) error {
	switch i := instr.(type) {
	case *ir.Const:
		frame.Values[i.DestID] = hostabi.FromLiteral(i.Literal, i.Type)
		return nil

	case *ir.BinaryOp:
		lhs, ok1 := frame.Values[i.Lhs]
		rhs, ok2 := frame.Values[i.Rhs]
		if !ok1 || !ok2 {
			return errValueNotFound(fmt.Sprintf("operand of %v.%s", i.Type, i.Op))
		}
		result, err := evalBinaryOp(i.Op, i.Type, lhs, rhs)
		if err != nil {
			return err
		}
		frame.Values[i.DestID] = result
		return nil

	case *ir.UnaryOp:
		operand, ok := frame.Values[i.Operand]
		if !ok {
			return errValueNotFound(fmt.Sprintf("operand of %v.%s", i.Type, i.Op))
		}
		frame.Values[i.DestID] = evalUnaryOp(i.Op, i.Type, operand)
		return nil

	case *ir.Call:
		args, err := v.resolveArgs(frame, i.Args)
		if err != nil {
			return err
		}
		result, err := v.invoke(i.Callee, args)
		if err != nil {
			return err
		}
		frame.Values[i.DestID] = result
		return nil

	case *ir.CallVoid:
		args, err := v.resolveArgs(frame, i.Args)
		if err != nil {
			return err
		}
		_, err = v.invoke(i.Callee, args)
		return err

	case *ir.Load:
		addr, ok := frame.Values[i.Address]
		if !ok {
			return errValueNotFound(fmt.Sprintf("load address v%d", i.Address))
		}
		result, err := v.HostABI.ReadMemoryValue(addr.AsUsize(), i.Type)
		if err != nil {
			return errHostCall("load: %v", err)
		}
		frame.Values[i.DestID] = result
		return nil

	case *ir.Store:
		addr, ok1 := frame.Values[i.Address]
		val, ok2 := frame.Values[i.Value]
		if !ok1 || !ok2 {
			return errValueNotFound(fmt.Sprintf("store operand at %v.store", i.Type))
		}
		if err := v.HostABI.WriteMemoryValue(addr.AsUsize(), val); err != nil {
			return errHostCall("store: %v", err)
		}
		return nil

	case *ir.PtrAdd:
		ptr, ok1 := frame.Values[i.Ptr]
		off, ok2 := frame.Values[i.Offset]
		if !ok1 || !ok2 {
			return errValueNotFound("operand of usize.add")
		}
		frame.Values[i.DestID] = hostabi.UsizeValue(ptr.AsUsize() + off.AsUsize())
		return nil

	case *ir.SizeOfInstr:
		frame.Values[i.DestID] = hostabi.UsizeValue(uint64(ir.SizeOf(i.Type, 8)))
		return nil

	case *ir.Alloc:
		size, ok := frame.Values[i.Size]
		if !ok {
			return errValueNotFound(fmt.Sprintf("alloc size v%d", i.Size))
		}
		result, err := v.HostABI.CallHostFunction("alloc", []hostabi.RuntimeValue{size})
		if err != nil {
			return errHostCall("alloc: %v", err)
		}
		frame.Values[i.DestID] = result
		return nil

	case *ir.Free:
		ptr, ok := frame.Values[i.Ptr]
		if !ok {
			return errValueNotFound(fmt.Sprintf("free operand v%d", i.Ptr))
		}
		if _, err := v.HostABI.CallHostFunction("free", []hostabi.RuntimeValue{ptr}); err != nil {
			return errHostCall("free: %v", err)
		}
		return nil

	case *ir.Convert:
		src, ok := frame.Values[i.Src]
		if !ok {
			return errValueNotFound(fmt.Sprintf("convert operand v%d", i.Src))
		}
		frame.Values[i.DestID] = convertValue(src, i.From, i.To)
		return nil

	default:
		return errInvalidInstruction("unknown instruction type %T", i)
	}
}

func (v *VM) resolveArgs(frame *StackFrame, ids []ir.ValueId) ([]hostabi.RuntimeValue, error) {
	args := make([]hostabi.RuntimeValue, len(ids))
	for i, id := range ids {
		val, ok := frame.Values[id]
		if !ok {
			return nil, errValueNotFound(fmt.Sprintf("call argument v%d", id))
		}
		args[i] = val
	}
	return args, nil
}

// invoke routes a call to the host ABI if it knows the name, else
// recurses into another guest function (spec §4.6.4's Call/CallVoid
// semantics).
func (v *VM) invoke(callee string, args []hostabi.RuntimeValue) (hostabi.RuntimeValue, error) {
	if v.HostABI != nil && v.HostABI.HasFunction(callee) {
		result, err := v.HostABI.CallHostFunction(callee, args)
		if err != nil {
			return hostabi.RuntimeValue{}, errHostCall("%s: %v", callee, err)
		}
		return result, nil
	}
	return v.CallFunction(callee, args)
}
