package hostabi

import (
	"bufio"
	"fmt"
	"io"

	"github.com/tiltlang/tilt/ast"
	"golang.org/x/xerrors"
)

// Console implements the stdio-backed host functions required by
// spec §4.5: print_hello, print_i32, print_i64, print_char, println,
// read_i32.
type Console struct {
	Out io.Writer
	In  *bufio.Reader
}

// NewConsole wraps out/in; a nil in disables read_i32.
func NewConsole(out io.Writer, in io.Reader) *Console {
	c := &Console{Out: out}
	if in != nil {
		c.In = bufio.NewReader(in)
	}
	return c
}

var consoleFunctions = []string{"print_hello", "print_i32", "print_i64", "print_char", "println", "read_i32"}

func (c *Console) AvailableFunctions() []string { return append([]string(nil), consoleFunctions...) }

func (c *Console) HasFunction(name string) bool {
	for _, n := range consoleFunctions {
		if n == name {
			return true
		}
	}
	return false
}

func (c *Console) CallHostFunction(name string, args []RuntimeValue) (RuntimeValue, error) {
	switch name {
	case "print_hello":
		if err := checkArgs(name, args, nil); err != nil {
			return RuntimeValue{}, err
		}
		fmt.Fprint(c.Out, "hello")
		return VoidValue(), nil

	case "print_i32":
		if err := checkArgs(name, args, []ast.Type{ast.I32}); err != nil {
			return RuntimeValue{}, err
		}
		fmt.Fprint(c.Out, args[0].AsI32())
		return VoidValue(), nil

	case "print_i64":
		if err := checkArgs(name, args, []ast.Type{ast.I64}); err != nil {
			return RuntimeValue{}, err
		}
		fmt.Fprint(c.Out, args[0].AsI64())
		return VoidValue(), nil

	case "print_char":
		if err := checkArgs(name, args, []ast.Type{ast.I32}); err != nil {
			return RuntimeValue{}, err
		}
		fmt.Fprint(c.Out, string(rune(args[0].AsI32())))
		return VoidValue(), nil

	case "println":
		if err := checkArgs(name, args, nil); err != nil {
			return RuntimeValue{}, err
		}
		fmt.Fprintln(c.Out)
		return VoidValue(), nil

	case "read_i32":
		if err := checkArgs(name, args, nil); err != nil {
			return RuntimeValue{}, err
		}
		if c.In == nil {
			return RuntimeValue{}, xerrors.New("hostabi: read_i32: no input configured")
		}
		var v int32
		if _, err := fmt.Fscan(c.In, &v); err != nil {
			return RuntimeValue{}, xerrors.Errorf("hostabi: read_i32: %w", err)
		}
		return I32Value(v), nil

	default:
		return RuntimeValue{}, errUnknownFunction(name)
	}
}

func (c *Console) ReadMemoryValue(addr uint64, typ ast.Type) (RuntimeValue, error) {
	return RuntimeValue{}, ErrMemoryUnsupported
}

func (c *Console) WriteMemoryValue(addr uint64, value RuntimeValue) error {
	return ErrMemoryUnsupported
}
