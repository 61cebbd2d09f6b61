package asm

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// ExecBuf is a page of memory that can hold machine code: writable
// while code is being copied in, then flipped read+execute once
// Finalize has resolved every fixup.
type ExecBuf struct {
	data []byte
	addr uintptr
}

// AllocExec reserves size bytes (rounded up to a page) of anonymous,
// private memory.
func AllocExec(size int) (*ExecBuf, error) {
	if size == 0 {
		size = 1
	}
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}
	return &ExecBuf{data: data, addr: uintptr(unsafe.Pointer(&data[0]))}, nil
}

// Bytes exposes the buffer for writing machine code into before the
// page is made executable.
func (e *ExecBuf) Bytes() []byte { return e.data }

// Addr is the buffer's base address, stable for the buffer's lifetime
// since it is never moved by the Go garbage collector (mmap'd memory
// is not GC-managed).
func (e *ExecBuf) Addr() uintptr { return e.addr }

// MakeExecutable flips the page from writable to executable. Once
// called, writing to Bytes() again is undefined; TILT never needs to
// patch code after this point because call targets are computed
// before any function's page is finalized (see jit.Module.Finalize).
func (e *ExecBuf) MakeExecutable() error {
	return unix.Mprotect(e.data, unix.PROT_READ|unix.PROT_EXEC)
}

// Close unmaps the buffer.
func (e *ExecBuf) Close() error {
	return unix.Munmap(e.data)
}
