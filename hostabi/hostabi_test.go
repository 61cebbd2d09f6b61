package hostabi_test

import (
	"bytes"
	"testing"

	"github.com/tiltlang/tilt/ast"
	"github.com/tiltlang/tilt/hostabi"
)

func TestConsolePrintI32(t *testing.T) {
	var buf bytes.Buffer
	c := hostabi.NewConsole(&buf, nil)
	if _, err := c.CallHostFunction("print_i32", []hostabi.RuntimeValue{hostabi.I32Value(42)}); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "42" {
		t.Fatalf("got %q", buf.String())
	}
}

func TestConsoleArgMismatch(t *testing.T) {
	var buf bytes.Buffer
	c := hostabi.NewConsole(&buf, nil)
	if _, err := c.CallHostFunction("print_i32", nil); err == nil {
		t.Fatal("expected an error for missing argument")
	}
	if _, err := c.CallHostFunction("print_i32", []hostabi.RuntimeValue{hostabi.I64Value(1)}); err == nil {
		t.Fatal("expected an error for wrong argument type")
	}
}

func TestVMMemoryRoundTrip(t *testing.T) {
	m := hostabi.NewVMMemory()
	addrVal, err := m.CallHostFunction("alloc", []hostabi.RuntimeValue{hostabi.UsizeValue(8)})
	if err != nil {
		t.Fatal(err)
	}
	addr := addrVal.AsUsize()

	if err := m.WriteMemoryValue(addr, hostabi.I32Value(123)); err != nil {
		t.Fatal(err)
	}
	got, err := m.ReadMemoryValue(addr, ast.I32)
	if err != nil {
		t.Fatal(err)
	}
	if got.AsI32() != 123 {
		t.Fatalf("got %d, want 123", got.AsI32())
	}

	if _, err := m.CallHostFunction("free", []hostabi.RuntimeValue{addrVal}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.CallHostFunction("free", []hostabi.RuntimeValue{addrVal}); err == nil {
		t.Fatal("expected double-free to error")
	}
}

func TestVMMemoryFreeZeroIsNoop(t *testing.T) {
	m := hostabi.NewVMMemory()
	if _, err := m.CallHostFunction("free", []hostabi.RuntimeValue{hostabi.UsizeValue(0)}); err != nil {
		t.Fatalf("free(0) should be a no-op, got %v", err)
	}
}

func TestVMMemoryOutOfBounds(t *testing.T) {
	m := hostabi.NewVMMemory()
	if _, err := m.ReadMemoryValue(0xdeadbeef, ast.I32); err == nil {
		t.Fatal("expected an out-of-bounds read to error")
	}
}

func TestComposedRoutesToMemoryThenConsole(t *testing.T) {
	var buf bytes.Buffer
	c := &hostabi.Composed{Memory: hostabi.NewVMMemory(), Console: hostabi.NewConsole(&buf, nil)}

	if !c.HasFunction("alloc") || !c.HasFunction("print_i32") {
		t.Fatal("composed ABI should expose both memory and console functions")
	}
	if _, err := c.CallHostFunction("print_i32", []hostabi.RuntimeValue{hostabi.I32Value(7)}); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "7" {
		t.Fatalf("got %q", buf.String())
	}
	if _, err := c.CallHostFunction("nonexistent", nil); err == nil {
		t.Fatal("expected an error for an unknown function")
	}
}

func TestNullFailsEverything(t *testing.T) {
	var n hostabi.Null
	if _, err := n.CallHostFunction("alloc", nil); err == nil {
		t.Fatal("expected Null to fail every call")
	}
	if _, err := n.ReadMemoryValue(0, ast.I32); err == nil {
		t.Fatal("expected Null to fail memory reads")
	}
}
