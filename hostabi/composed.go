package hostabi

import "github.com/tiltlang/tilt/ast"

// Composed delegates memory operations to Memory and every other host
// function to Console, the "memory + console" composition spec §4.5
// calls out by name. Memory may be nil to get a console-only ABI.
type Composed struct {
	Memory  HostABI
	Console HostABI
}

func (c *Composed) AvailableFunctions() []string {
	var names []string
	if c.Memory != nil {
		names = append(names, c.Memory.AvailableFunctions()...)
	}
	if c.Console != nil {
		names = append(names, c.Console.AvailableFunctions()...)
	}
	return names
}

func (c *Composed) HasFunction(name string) bool {
	return (c.Memory != nil && c.Memory.HasFunction(name)) || (c.Console != nil && c.Console.HasFunction(name))
}

func (c *Composed) CallHostFunction(name string, args []RuntimeValue) (RuntimeValue, error) {
	if c.Memory != nil && c.Memory.HasFunction(name) {
		return c.Memory.CallHostFunction(name, args)
	}
	if c.Console != nil && c.Console.HasFunction(name) {
		return c.Console.CallHostFunction(name, args)
	}
	return RuntimeValue{}, errUnknownFunction(name)
}

func (c *Composed) ReadMemoryValue(addr uint64, typ ast.Type) (RuntimeValue, error) {
	if c.Memory != nil {
		return c.Memory.ReadMemoryValue(addr, typ)
	}
	return RuntimeValue{}, ErrMemoryUnsupported
}

func (c *Composed) WriteMemoryValue(addr uint64, value RuntimeValue) error {
	if c.Memory != nil {
		return c.Memory.WriteMemoryValue(addr, value)
	}
	return ErrMemoryUnsupported
}
