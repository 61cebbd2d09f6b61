package hostabi

import (
	"encoding/binary"
	"sync"
	"unsafe"

	"github.com/tiltlang/tilt/ast"
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

// JITMemory is the "Memory (JIT)" implementation of spec §4.5: alloc
// calls the real system allocator (anonymous mmap) and hands back a
// real address. Every access goes through ReadMemoryValue and
// WriteMemoryValue, including the loads and stores of JIT-generated
// code, which reach them through package jit's memory-op trampolines;
// generated code does not load or store through the address directly.
//
// The spec leaves free's bookkeeping an open question (the original
// implementation never tracked allocation sizes and simply leaked).
// This implementation tracks address→size so a double free or a free
// of an address this allocator never returned is a reported error
// instead of a silent leak or corruption; free(0) remains the
// documented no-op (spec §7).
type JITMemory struct {
	mu     sync.Mutex
	allocs map[uint64][]byte
}

func NewJITMemory() *JITMemory {
	return &JITMemory{allocs: make(map[uint64][]byte)}
}

var jitMemoryFunctions = []string{"alloc", "free"}

func (m *JITMemory) AvailableFunctions() []string { return append([]string(nil), jitMemoryFunctions...) }

func (m *JITMemory) HasFunction(name string) bool { return name == "alloc" || name == "free" }

func (m *JITMemory) CallHostFunction(name string, args []RuntimeValue) (RuntimeValue, error) {
	switch name {
	case "alloc":
		if err := checkArgs(name, args, []ast.Type{ast.Usize}); err != nil {
			return RuntimeValue{}, err
		}
		addr, err := m.alloc(args[0].AsUsize())
		if err != nil {
			return RuntimeValue{}, err
		}
		return UsizeValue(addr), nil
	case "free":
		if err := checkArgs(name, args, []ast.Type{ast.Usize}); err != nil {
			return RuntimeValue{}, err
		}
		if err := m.free(args[0].AsUsize()); err != nil {
			return RuntimeValue{}, err
		}
		return VoidValue(), nil
	default:
		return RuntimeValue{}, errUnknownFunction(name)
	}
}

func (m *JITMemory) alloc(size uint64) (uint64, error) {
	if size == 0 {
		size = 1
	}
	buf, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return 0, xerrors.Errorf("hostabi: alloc: mmap: %w", err)
	}
	addr := uint64(uintptr(unsafe.Pointer(&buf[0])))

	m.mu.Lock()
	m.allocs[addr] = buf
	m.mu.Unlock()
	return addr, nil
}

func (m *JITMemory) free(ptr uint64) error {
	if ptr == 0 {
		return nil
	}
	m.mu.Lock()
	buf, ok := m.allocs[ptr]
	if ok {
		delete(m.allocs, ptr)
	}
	m.mu.Unlock()
	if !ok {
		return xerrors.Errorf("hostabi: free: unknown or already-freed address %#x", ptr)
	}
	return unix.Munmap(buf)
}

// Close unmaps every outstanding allocation; callers tear a JITMemory
// down with this rather than relying on process exit.
func (m *JITMemory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for addr, buf := range m.allocs {
		if err := unix.Munmap(buf); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.allocs, addr)
	}
	return firstErr
}

func (m *JITMemory) findAllocation(addr, width uint64) ([]byte, uint64, bool) {
	for base, buf := range m.allocs {
		if addr >= base && addr+width <= base+uint64(len(buf)) {
			return buf, addr - base, true
		}
	}
	return nil, 0, false
}

func (m *JITMemory) ReadMemoryValue(addr uint64, typ ast.Type) (RuntimeValue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch typ {
	case ast.I32:
		buf, off, ok := m.findAllocation(addr, 4)
		if !ok {
			return RuntimeValue{}, xerrors.Errorf("hostabi: read: address %#x out of bounds", addr)
		}
		return I32Value(int32(binary.LittleEndian.Uint32(buf[off : off+4]))), nil
	case ast.I64:
		buf, off, ok := m.findAllocation(addr, 8)
		if !ok {
			return RuntimeValue{}, xerrors.Errorf("hostabi: read: address %#x out of bounds", addr)
		}
		return I64Value(int64(binary.LittleEndian.Uint64(buf[off : off+8]))), nil
	case ast.Usize:
		buf, off, ok := m.findAllocation(addr, 8)
		if !ok {
			return RuntimeValue{}, xerrors.Errorf("hostabi: read: address %#x out of bounds", addr)
		}
		return UsizeValue(binary.LittleEndian.Uint64(buf[off : off+8])), nil
	default:
		return RuntimeValue{}, xerrors.Errorf("hostabi: read: unsupported type %v", typ)
	}
}

func (m *JITMemory) WriteMemoryValue(addr uint64, value RuntimeValue) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch value.Type {
	case ast.I32:
		buf, off, ok := m.findAllocation(addr, 4)
		if !ok {
			return xerrors.Errorf("hostabi: write: address %#x out of bounds", addr)
		}
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(value.AsI32()))
		return nil
	case ast.I64:
		buf, off, ok := m.findAllocation(addr, 8)
		if !ok {
			return xerrors.Errorf("hostabi: write: address %#x out of bounds", addr)
		}
		binary.LittleEndian.PutUint64(buf[off:off+8], uint64(value.AsI64()))
		return nil
	case ast.Usize:
		buf, off, ok := m.findAllocation(addr, 8)
		if !ok {
			return xerrors.Errorf("hostabi: write: address %#x out of bounds", addr)
		}
		binary.LittleEndian.PutUint64(buf[off:off+8], value.AsUsize())
		return nil
	default:
		return xerrors.Errorf("hostabi: write: unsupported type %v", value.Type)
	}
}
