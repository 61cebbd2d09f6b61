package hostabi

import "github.com/tiltlang/tilt/ast"

// Null fails every call; it exists for tests that need a HostABI
// value but expect the guest program never to actually reach the
// host (spec §4.5).
type Null struct{}

func (Null) AvailableFunctions() []string { return nil }
func (Null) HasFunction(string) bool      { return false }

func (Null) CallHostFunction(name string, args []RuntimeValue) (RuntimeValue, error) {
	return RuntimeValue{}, errUnknownFunction(name)
}

func (Null) ReadMemoryValue(addr uint64, typ ast.Type) (RuntimeValue, error) {
	return RuntimeValue{}, ErrMemoryUnsupported
}

func (Null) WriteMemoryValue(addr uint64, value RuntimeValue) error {
	return ErrMemoryUnsupported
}
