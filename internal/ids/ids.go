// Package ids defines the typed identifiers used throughout bvisor to keep
// absolute (kernel-visible) and namespaced (guest-visible) process and file
// descriptor numbers from being accidentally compared or mixed.
package ids

import "fmt"

// AbsTid is a real kernel thread identifier (what Linux calls a "pid" at the
// task level). It is globally unique on the host while the thread lives.
type AbsTid int32

// AbsTgid is a real kernel thread-group identifier.
type AbsTgid int32

// NsTid is a thread identifier as observed from within one specific PID
// namespace. A single thread has one NsTid per namespace it is visible in.
type NsTid int32

// NsTgid is a thread-group identifier as observed from within one specific
// PID namespace.
type NsTgid int32

// VFD is a supervisor-assigned virtual file descriptor, as seen by the
// guest. VFDs 0, 1 and 2 are reserved for stdio; allocation starts at 3 and
// is monotonic per FdTable — a VFD is never reused after it is closed.
type VFD int32

// SupervisorFD is a real kernel file descriptor owned by the supervisor
// process itself (as opposed to a VFD, which only has meaning inside one
// guest FdTable).
type SupervisorFD int32

// ReservedStdio reports whether vfd names one of the three inherited stdio
// slots, which handlers generally leave to Continue rather than emulate.
func ReservedStdio(vfd VFD) bool {
	return vfd >= 0 && vfd <= 2
}

func (t AbsTid) String() string  { return fmt.Sprintf("abs-tid:%d", int32(t)) }
func (t AbsTgid) String() string { return fmt.Sprintf("abs-tgid:%d", int32(t)) }
func (t NsTid) String() string   { return fmt.Sprintf("ns-tid:%d", int32(t)) }
func (t NsTgid) String() string  { return fmt.Sprintf("ns-tgid:%d", int32(t)) }
func (v VFD) String() string     { return fmt.Sprintf("vfd:%d", int32(v)) }
