// Package memio implements the cross-process memory bridge (spec C1): typed
// reads and writes of guest address space from the supervisor process.
//
// Grounded on IreliaTable-gvisor's pkg/sentry/platform/systrap/subprocess.go,
// which performs every cross-process interaction as a single raw syscall
// against a traced thread (ptrace GETREGS/SETREGS, raw SYS_PTRACE calls) and
// treats any failure as a hard error rather than something to retry. The
// concrete transport here is /proc/<pid>/mem pread/pwrite, the same
// technique other_examples/nestybox-sysbox-fs uses in its seccomp tracer's
// processMemParse to read syscall string arguments out of a stopped tracee.
package memio

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/sandboxrun/bvisor/internal/ids"
)

// MemoryFault is returned when a guest memory access fails; per spec §7 this
// maps to EFAULT at the handler layer.
type MemoryFault struct {
	Pid  ids.AbsTid
	Addr uintptr
	Err  error
}

func (e *MemoryFault) Error() string {
	return fmt.Sprintf("memory fault reading pid %v at %#x: %v", e.Pid, e.Addr, e.Err)
}

func (e *MemoryFault) Unwrap() error { return e.Err }

// Bridge reads and writes bytes in a guest's address space. Implementations
// must make each ReadSlice/WriteSlice call atomic from the supervisor's
// point of view: a single transfer, not byte-by-byte.
type Bridge interface {
	// ReadSlice copies len(dst) bytes from guest memory at addr into dst.
	ReadSlice(pid ids.AbsTid, addr uintptr, dst []byte) error
	// WriteSlice copies src into guest memory at addr.
	WriteSlice(pid ids.AbsTid, addr uintptr, src []byte) error
}

// ReadCString reads a NUL-terminated string from guest memory, capped at
// maxLen bytes (PATH_MAX-sized callers should pass 4096).
func ReadCString(b Bridge, pid ids.AbsTid, addr uintptr, maxLen int) (string, error) {
	const chunk = 256
	buf := make([]byte, 0, chunk)
	tmp := make([]byte, chunk)
	for len(buf) < maxLen {
		n := chunk
		if len(buf)+n > maxLen {
			n = maxLen - len(buf)
		}
		if err := b.ReadSlice(pid, addr+uintptr(len(buf)), tmp[:n]); err != nil {
			return "", err
		}
		for i, c := range tmp[:n] {
			if c == 0 {
				buf = append(buf, tmp[:i]...)
				return string(buf), nil
			}
		}
		buf = append(buf, tmp[:n]...)
	}
	return "", &MemoryFault{Pid: pid, Addr: addr, Err: fmt.Errorf("string exceeds %d bytes", maxLen)}
}

// ReadUint64 reads a single little-endian uint64 — the natural width of a
// seccomp-unotify syscall argument word.
func ReadUint64(b Bridge, pid ids.AbsTid, addr uintptr) (uint64, error) {
	var buf [8]byte
	if err := b.ReadSlice(pid, addr, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// WriteUint64 writes a single little-endian uint64 into guest memory.
func WriteUint64(b Bridge, pid ids.AbsTid, addr uintptr, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return b.WriteSlice(pid, addr, buf[:])
}

// procMemBridge is the real Bridge, backed by /proc/<pid>/mem.
type procMemBridge struct{}

// NewProcMemBridge returns the production Bridge implementation.
func NewProcMemBridge() Bridge { return procMemBridge{} }

func (procMemBridge) ReadSlice(pid ids.AbsTid, addr uintptr, dst []byte) error {
	f, err := openMem(pid)
	if err != nil {
		return &MemoryFault{Pid: pid, Addr: addr, Err: err}
	}
	defer f.Close()
	if _, err := f.ReadAt(dst, int64(addr)); err != nil {
		return &MemoryFault{Pid: pid, Addr: addr, Err: err}
	}
	return nil
}

func (procMemBridge) WriteSlice(pid ids.AbsTid, addr uintptr, src []byte) error {
	f, err := openMem(pid)
	if err != nil {
		return &MemoryFault{Pid: pid, Addr: addr, Err: err}
	}
	defer f.Close()
	if _, err := f.WriteAt(src, int64(addr)); err != nil {
		return &MemoryFault{Pid: pid, Addr: addr, Err: err}
	}
	return nil
}

func openMem(pid ids.AbsTid) (*os.File, error) {
	return os.OpenFile(fmt.Sprintf("/proc/%d/mem", pid), os.O_RDWR, 0)
}
