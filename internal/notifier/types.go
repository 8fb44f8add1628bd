// Package notifier implements the seccomp user-notifier transport (spec
// C2): receiving fixed-layout notification records and sending back
// Continue/Return responses with the "bit-exact" wire format of spec §6.
//
// Grounded on other_examples/nestybox-sysbox-fs's seccomp tracer
// (seccomp-tracer.go), which is the pack's only example of a userspace
// seccomp-unotify loop: NotifReceive/NotifRespond/NotifIdValid from
// github.com/seccomp/libseccomp-golang, and a per-fd serial dispatch loop
// that swallows EINTR and keeps going. The request/response shapes below
// mirror sysRequest/sysResponse in that file but are spec's own types so
// that syscall handlers never import the cgo seccomp binding directly.
package notifier

import "github.com/sandboxrun/bvisor/internal/ids"

// Data carries the fixed six-argument-word syscall payload of a
// notification, per spec §6.
type Data struct {
	Nr               int32
	Arch             uint32
	InstructionPointer uint64
	Args             [6]uint64
}

// Notif is one seccomp-unotify notification, bit-exact with spec §6.
type Notif struct {
	ID    uint64
	Pid   ids.AbsTid
	Flags uint32
	Data  Data
}

// RespFlag mirrors the kernel's USER_NOTIF_FLAG_CONTINUE bit.
type RespFlag uint32

// ContinueFlag, when set on a Response, tells the kernel to execute the
// syscall normally with its original arguments (spec §4.2, §6).
const ContinueFlag RespFlag = 1

// Response is what the supervisor sends back for a given notification ID.
type Response struct {
	ID    uint64
	Val   int64
	Error int32
	Flags RespFlag
}

// Continue builds the "run it normally" response for id.
func Continue(id uint64) Response {
	return Response{ID: id, Flags: ContinueFlag}
}

// Return builds a response that surfaces val/errno to the guest without the
// kernel executing the syscall. errno should be a positive Linux errno
// value; it is negated internally to match the kernel ABI (spec §6: "error:
// i32 (negative errno if emulated; zero otherwise)").
func Return(id uint64, val int64, errno int32) Response {
	e := errno
	if e > 0 {
		e = -e
	}
	return Response{ID: id, Val: val, Error: e}
}
