package memio

import (
	"unsafe"

	"github.com/sandboxrun/bvisor/internal/ids"
)

// LocalBridge is a no-op Bridge that dereferences addresses in the
// supervisor's own process, exactly as spec §4.1 requires: "The bridge MUST
// be implementable as a no-op that dereferences the address in the local
// process when the handler is under unit test, enabling handler logic to be
// exercised without a real guest." The pid argument is ignored.
//
// This is unsafe outside of tests: addr must point at memory the supervisor
// process actually owns (e.g. a []byte the test allocated and took the
// address of).
type LocalBridge struct{}

func (LocalBridge) ReadSlice(_ ids.AbsTid, addr uintptr, dst []byte) error {
	src := unsafe.Slice((*byte)(unsafe.Pointer(addr)), len(dst))
	copy(dst, src)
	return nil
}

func (LocalBridge) WriteSlice(_ ids.AbsTid, addr uintptr, src []byte) error {
	dst := unsafe.Slice((*byte)(unsafe.Pointer(addr)), len(src))
	copy(dst, src)
	return nil
}
