package vm

import (
	"fmt"

	"github.com/tiltlang/tilt/ast"
	"github.com/tiltlang/tilt/hostabi"
	"github.com/tiltlang/tilt/ir"
)

// evalBinaryOp implements spec §4.6.4: integer Add/Sub/Mul wrap
// modulo 2^N (Go's fixed-width integer arithmetic already does this,
// so no explicit masking is needed), Div/Rem with a zero divisor
// produce DivisionByZero, and comparisons always yield I32(0) or
// I32(1) regardless of operand type (spec §3.4 invariant 4).
func evalBinaryOp(op ir.BinOp, typ ast.Type, lhs, rhs hostabi.RuntimeValue) (hostabi.RuntimeValue, error) {
	if op.IsComparison() {
		result, err := compare(op, typ, lhs, rhs)
		if err != nil {
			return hostabi.RuntimeValue{}, err
		}
		if result {
			return hostabi.I32Value(1), nil
		}
		return hostabi.I32Value(0), nil
	}

	switch typ {
	case ast.I32:
		return evalI32(op, lhs.AsI32(), rhs.AsI32())
	case ast.I64:
		return evalI64(op, lhs.AsI64(), rhs.AsI64())
	case ast.Usize:
		return evalUsize(op, lhs.AsUsize(), rhs.AsUsize())
	default:
		return hostabi.RuntimeValue{}, errInvalidInstruction("binary op on unsupported type %v", typ)
	}
}

func evalI32(op ir.BinOp, a, b int32) (hostabi.RuntimeValue, error) {
	switch op {
	case ir.Add:
		return hostabi.I32Value(a + b), nil
	case ir.Sub:
		return hostabi.I32Value(a - b), nil
	case ir.Mul:
		return hostabi.I32Value(a * b), nil
	case ir.Div:
		if b == 0 {
			return hostabi.RuntimeValue{}, errDivisionByZero("i32.div")
		}
		return hostabi.I32Value(a / b), nil
	case ir.Rem:
		if b == 0 {
			return hostabi.RuntimeValue{}, errDivisionByZero("i32.rem")
		}
		return hostabi.I32Value(a % b), nil
	case ir.And:
		return hostabi.I32Value(a & b), nil
	case ir.Or:
		return hostabi.I32Value(a | b), nil
	case ir.Xor:
		return hostabi.I32Value(a ^ b), nil
	case ir.Shl:
		return hostabi.I32Value(a << uint32(b)), nil
	case ir.Shr:
		return hostabi.I32Value(a >> uint32(b)), nil
	default:
		return hostabi.RuntimeValue{}, errInvalidInstruction("unsupported i32 binary op %s", op)
	}
}

func evalI64(op ir.BinOp, a, b int64) (hostabi.RuntimeValue, error) {
	switch op {
	case ir.Add:
		return hostabi.I64Value(a + b), nil
	case ir.Sub:
		return hostabi.I64Value(a - b), nil
	case ir.Mul:
		return hostabi.I64Value(a * b), nil
	case ir.Div:
		if b == 0 {
			return hostabi.RuntimeValue{}, errDivisionByZero("i64.div")
		}
		return hostabi.I64Value(a / b), nil
	case ir.Rem:
		if b == 0 {
			return hostabi.RuntimeValue{}, errDivisionByZero("i64.rem")
		}
		return hostabi.I64Value(a % b), nil
	case ir.And:
		return hostabi.I64Value(a & b), nil
	case ir.Or:
		return hostabi.I64Value(a | b), nil
	case ir.Xor:
		return hostabi.I64Value(a ^ b), nil
	case ir.Shl:
		return hostabi.I64Value(a << uint64(b)), nil
	case ir.Shr:
		return hostabi.I64Value(a >> uint64(b)), nil
	default:
		return hostabi.RuntimeValue{}, errInvalidInstruction("unsupported i64 binary op %s", op)
	}
}

func evalUsize(op ir.BinOp, a, b uint64) (hostabi.RuntimeValue, error) {
	switch op {
	case ir.Add:
		return hostabi.UsizeValue(a + b), nil
	case ir.Sub:
		return hostabi.UsizeValue(a - b), nil
	case ir.Mul:
		return hostabi.UsizeValue(a * b), nil
	case ir.Div:
		if b == 0 {
			return hostabi.RuntimeValue{}, errDivisionByZero("usize.div")
		}
		return hostabi.UsizeValue(a / b), nil
	case ir.Rem:
		if b == 0 {
			return hostabi.RuntimeValue{}, errDivisionByZero("usize.rem")
		}
		return hostabi.UsizeValue(a % b), nil
	case ir.And:
		return hostabi.UsizeValue(a & b), nil
	case ir.Or:
		return hostabi.UsizeValue(a | b), nil
	case ir.Xor:
		return hostabi.UsizeValue(a ^ b), nil
	case ir.Shl:
		return hostabi.UsizeValue(a << b), nil
	case ir.Shr:
		return hostabi.UsizeValue(a >> b), nil
	default:
		return hostabi.RuntimeValue{}, errInvalidInstruction("unsupported usize binary op %s", op)
	}
}

func compare(op ir.BinOp, typ ast.Type, lhs, rhs hostabi.RuntimeValue) (bool, error) {
	switch typ {
	case ast.I32:
		return compareOrdered(op, lhs.AsI32(), rhs.AsI32())
	case ast.I64:
		return compareOrdered(op, lhs.AsI64(), rhs.AsI64())
	case ast.Usize:
		return compareOrdered(op, lhs.AsUsize(), rhs.AsUsize())
	default:
		return false, errInvalidInstruction("comparison on unsupported type %v", typ)
	}
}

// ordered is satisfied by every TILT integer's Go representation.
type ordered interface{ ~int32 | ~int64 | ~uint64 }

func compareOrdered[T ordered](op ir.BinOp, a, b T) (bool, error) {
	switch op {
	case ir.Eq:
		return a == b, nil
	case ir.Ne:
		return a != b, nil
	case ir.Lt:
		return a < b, nil
	case ir.Le:
		return a <= b, nil
	case ir.Gt:
		return a > b, nil
	case ir.Ge:
		return a >= b, nil
	default:
		return false, errInvalidInstruction("unsupported comparison op %s", op)
	}
}

// evalUnaryOp implements Neg (wrapping arithmetic negation) and Not
// (bitwise complement), per spec §4.6.4.
func evalUnaryOp(op ir.UnOp, typ ast.Type, operand hostabi.RuntimeValue) hostabi.RuntimeValue {
	switch typ {
	case ast.I32:
		v := operand.AsI32()
		if op == ir.Neg {
			return hostabi.I32Value(-v)
		}
		return hostabi.I32Value(^v)
	case ast.I64:
		v := operand.AsI64()
		if op == ir.Neg {
			return hostabi.I64Value(-v)
		}
		return hostabi.I64Value(^v)
	case ast.Usize:
		v := operand.AsUsize()
		if op == ir.Neg {
			return hostabi.UsizeValue(-v)
		}
		return hostabi.UsizeValue(^v)
	default:
		panic(fmt.Sprintf("vm: unary op on unsupported type %v", typ))
	}
}

// convertValue implements Convert (spec §4.6.4, §4.3.3): widen with
// sign extension, narrow with truncation, or bitcast when the source
// and destination share a width — all expressed as a round trip
// through a 64-bit signed register, which is exactly how the widths
// of I32/I64/Usize (assumed pointer-width 8) relate on this VM's
// target model.
func convertValue(v hostabi.RuntimeValue, from, to ast.Type) hostabi.RuntimeValue {
	var raw int64
	switch from {
	case ast.I32:
		raw = int64(v.AsI32())
	case ast.I64:
		raw = v.AsI64()
	case ast.Usize:
		raw = int64(v.AsUsize())
	default:
		panic(fmt.Sprintf("vm: convert from unsupported type %v", from))
	}

	switch to {
	case ast.I32:
		return hostabi.I32Value(int32(raw))
	case ast.I64:
		return hostabi.I64Value(raw)
	case ast.Usize:
		return hostabi.UsizeValue(uint64(raw))
	default:
		panic(fmt.Sprintf("vm: convert to unsupported type %v", to))
	}
}
