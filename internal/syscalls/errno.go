// Package syscalls implements the syscall handlers (spec §4.9, §6, §7):
// the dispatcher receiving a notifier.Notif, routing it to a per-number
// handler, and the central error-to-errno mapping every handler shares.
package syscalls

import (
	"golang.org/x/sys/unix"

	"github.com/sandboxrun/bvisor/internal/fdtable"
	"github.com/sandboxrun/bvisor/internal/ids"
	"github.com/sandboxrun/bvisor/internal/memio"
	"github.com/sandboxrun/bvisor/internal/overlay"
	"github.com/sandboxrun/bvisor/internal/registry"
	"github.com/sandboxrun/bvisor/internal/vfile"
)

// PathBlocked is returned by path resolution when the router's verdict
// is VerdictBlock (spec §7: "Path-routed block" -> EPERM).
type PathBlocked struct {
	Path string
}

func (e *PathBlocked) Error() string { return "syscalls: path blocked by policy: " + e.Path }

// BadTarget is returned when a kill/tkill target is non-positive (spec
// §4.9: "reject non-positive targets with EINVAL").
type BadTarget struct {
	Target int64
}

func (e *BadTarget) Error() string { return "syscalls: non-positive signal target" }

// NotVisible is returned when a kill/tkill target resolves to a thread
// outside the caller's namespace (spec §4.9: "signal delivery beyond the
// caller's namespace MUST return ESRCH").
type NotVisible struct {
	Target ids.NsTid
}

func (e *NotVisible) Error() string { return "syscalls: target not visible in caller's namespace" }

// Errno converts an internal error into the guest-visible errno, as a
// positive value that notifier.Return negates into Response.Error, per
// the mapping table in spec §7. Unrecognised errors fall through to
// EIO: spec §7 marks genuinely unexpected internal failures as fatal
// rather than guest-visible, so callers that might hit a truly
// unanticipated error are expected to have already logged and
// terminated before reaching here.
func Errno(err error) int32 {
	if err == nil {
		return 0
	}

	switch err.(type) {
	case *fdtable.BadFileDescriptor, *fdtable.VfdInUse:
		return int32(unix.EBADF)
	case *PathBlocked:
		return int32(unix.EPERM)
	case *BlockedSyscall:
		return int32(unix.ENOSYS)
	case *registry.ThreadNotRegistered, *registry.ThreadNotInSandbox:
		return int32(unix.ESRCH)
	case *NotVisible:
		return int32(unix.ESRCH)
	case *BadTarget:
		return int32(unix.EINVAL)
	case *overlay.InvalidPath:
		return int32(unix.EINVAL)
	case *vfile.ReadOnlyFileSystem:
		return int32(unix.EROFS)
	case *vfile.NotPermitted:
		return int32(unix.EPERM)
	case *memio.MemoryFault:
		return int32(unix.EFAULT)
	}

	if err == unix.ENOENT {
		return int32(unix.ENOENT)
	}
	if errno, ok := err.(unix.Errno); ok {
		return int32(errno)
	}

	return int32(unix.EIO)
}
