package driver_test

import (
	"testing"

	"github.com/tiltlang/tilt/driver"
	"github.com/tiltlang/tilt/hostabi"
)

const addSrc = `
fn add(a: i32, b: i32) -> i32 {
entry:
    r:i32 = i32.add(a, b)
    ret r
}
`

func TestCompileAndRunOnVM(t *testing.T) {
	res, err := driver.Compile(addSrc, driver.Options{Backend: driver.VM})
	if err != nil {
		t.Fatal(err)
	}
	result, err := res.Run("add", []hostabi.RuntimeValue{hostabi.I32Value(2), hostabi.I32Value(3)})
	if err != nil {
		t.Fatal(err)
	}
	if result.AsI32() != 5 {
		t.Fatalf("got %d, want 5", result.AsI32())
	}
}

func TestCompileAndRunOnJIT(t *testing.T) {
	res, err := driver.Compile(addSrc, driver.Options{Backend: driver.JIT})
	if err != nil {
		t.Fatal(err)
	}
	result, err := res.Run("add", []hostabi.RuntimeValue{hostabi.I32Value(10), hostabi.I32Value(20)})
	if err != nil {
		t.Fatal(err)
	}
	if result.AsI32() != 30 {
		t.Fatalf("got %d, want 30", result.AsI32())
	}
}

func TestCompileBothBackendsAgree(t *testing.T) {
	res, err := driver.Compile(addSrc, driver.Options{Backend: driver.Both})
	if err != nil {
		t.Fatal(err)
	}
	result, err := res.CallBoth("add", []hostabi.RuntimeValue{hostabi.I32Value(7), hostabi.I32Value(8)})
	if err != nil {
		t.Fatal(err)
	}
	if result.AsI32() != 15 {
		t.Fatalf("got %d, want 15", result.AsI32())
	}
}

func TestCompileReportsSemanticErrors(t *testing.T) {
	_, err := driver.Compile(`
fn f() -> i32 {
entry:
    ret
}
`, driver.Options{Backend: driver.VM})
	if err == nil {
		t.Fatal("expected a semantic error for a void return from an i32 function")
	}
	if _, ok := err.(*driver.LowerError); !ok {
		t.Fatalf("want *driver.LowerError, got %T", err)
	}
}

func TestCompileAllRunsProgramsConcurrently(t *testing.T) {
	sources := []string{addSrc, addSrc, addSrc}
	results, err := driver.CompileAll(sources, driver.Options{Backend: driver.VM})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for i, res := range results {
		result, err := res.Run("add", []hostabi.RuntimeValue{hostabi.I32Value(1), hostabi.I32Value(int32(i))})
		if err != nil {
			t.Fatal(err)
		}
		if result.AsI32() != int32(1+i) {
			t.Fatalf("program %d: got %d, want %d", i, result.AsI32(), 1+i)
		}
	}
}
