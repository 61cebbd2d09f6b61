package jit

import (
	"github.com/tiltlang/tilt/ast"
	"github.com/tiltlang/tilt/hostabi"
)

// runtimeValueToInt and intToRuntimeValue cross the native/Go boundary
// at every call site and host trampoline: registers only ever hold
// raw 64-bit words, so a RuntimeValue's tag has to be threaded through
// separately (the signature's declared type), exactly the way the
// native calling convention doesn't carry type tags either.
func runtimeValueToInt(v hostabi.RuntimeValue) int64 {
	switch v.Type {
	case ast.I32:
		return int64(v.AsI32())
	case ast.I64:
		return v.AsI64()
	case ast.Usize:
		return int64(v.AsUsize())
	case ast.Void:
		return 0
	default:
		return 0
	}
}

func intToRuntimeValue(raw int64, typ ast.Type) hostabi.RuntimeValue {
	switch typ {
	case ast.I32:
		return hostabi.I32Value(int32(raw))
	case ast.I64:
		return hostabi.I64Value(raw)
	case ast.Usize:
		return hostabi.UsizeValue(uint64(raw))
	case ast.Void:
		return hostabi.VoidValue()
	default:
		return hostabi.VoidValue()
	}
}
