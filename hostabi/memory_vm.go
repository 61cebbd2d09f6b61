package hostabi

import (
	"encoding/binary"
	"sync"

	"github.com/tiltlang/tilt/ast"
	"golang.org/x/xerrors"
)

// VMMemory is the "Memory (interpreter)" implementation of spec §4.5:
// it tracks allocations in an in-process map from synthetic Usize
// base addresses to owned byte buffers and never hands out a real
// machine address. Only alloc, free, ReadMemoryValue and
// WriteMemoryValue are served; every other call is unknown (compose
// with Console via Composed for a full ABI).
type VMMemory struct {
	mu     sync.Mutex
	allocs map[uint64][]byte
	next   uint64
}

// NewVMMemory returns an empty VMMemory. Addresses start at 0x1000 so
// that 0 is never a live allocation, keeping Free's "address zero is
// a no-op" rule (spec §7) unambiguous.
func NewVMMemory() *VMMemory {
	return &VMMemory{allocs: make(map[uint64][]byte), next: 0x1000}
}

var vmMemoryFunctions = []string{"alloc", "free"}

func (m *VMMemory) AvailableFunctions() []string { return append([]string(nil), vmMemoryFunctions...) }

func (m *VMMemory) HasFunction(name string) bool { return name == "alloc" || name == "free" }

func (m *VMMemory) CallHostFunction(name string, args []RuntimeValue) (RuntimeValue, error) {
	switch name {
	case "alloc":
		if err := checkArgs(name, args, []ast.Type{ast.Usize}); err != nil {
			return RuntimeValue{}, err
		}
		return UsizeValue(m.alloc(args[0].AsUsize())), nil
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

func (m *VMMemory) alloc(size uint64) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	addr := m.next
	buf := make([]byte, size)
	m.allocs[addr] = buf
	// 8-byte alignment keeps every Usize/I64 access within a single
	// allocation naturally aligned, matching what a real allocator
	// would hand back.
	m.next += (size + 7) &^ 7
	if size == 0 {
		m.next += 8
	}
	return addr
}

func (m *VMMemory) free(ptr uint64) error {
	if ptr == 0 {
		return nil // documented no-op, spec §7
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.allocs[ptr]; !ok {
		return xerrors.Errorf("hostabi: free: unknown or already-freed address %#x", ptr)
	}
	delete(m.allocs, ptr)
	return nil
}

// findAllocation returns the buffer that addr falls within.
func (m *VMMemory) findAllocation(addr uint64, width uint64) ([]byte, uint64, bool) {
	for base, buf := range m.allocs {
		if addr >= base && addr+width <= base+uint64(len(buf)) {
			return buf, addr - base, true
		}
	}
	return nil, 0, false
}

func (m *VMMemory) ReadMemoryValue(addr uint64, typ ast.Type) (RuntimeValue, error) {
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

func (m *VMMemory) WriteMemoryValue(addr uint64, value RuntimeValue) error {
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
