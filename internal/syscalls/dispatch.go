package syscalls

import (
	"golang.org/x/sys/unix"

	"github.com/sandboxrun/bvisor/internal/notifier"
	"github.com/sandboxrun/bvisor/internal/procgraph"
)

// Handler performs one syscall's effect and produces a Response.
type Handler func(s *State, t *procgraph.Thread, n *notifier.Notif) notifier.Response

// handlers maps syscall numbers to their Handler. Numbers not present
// here fall through to Continue in Dispatch (spec §4.9: "handlers that
// do not recognise a syscall number return Continue").
var handlers = map[int32]Handler{
	unix.SYS_OPENAT:      Openat,
	unix.SYS_CLOSE:       Close,
	unix.SYS_READ:        Read,
	unix.SYS_WRITE:       Write,
	unix.SYS_READV:       Readv,
	unix.SYS_WRITEV:      Writev,
	unix.SYS_PREAD64:     Pread,
	unix.SYS_PWRITE64:    Pwrite,
	unix.SYS_LSEEK:       Lseek,
	unix.SYS_DUP:         Dup,
	unix.SYS_DUP3:        Dup3,
	unix.SYS_FSTAT:       Fstat,
	unix.SYS_NEWFSTATAT:  FstatAt,
	unix.SYS_FACCESSAT:   Faccessat,
	unix.SYS_GETCWD:      Getcwd,
	unix.SYS_CHDIR:       Chdir,
	unix.SYS_READLINKAT:  Readlinkat,
	unix.SYS_PIPE2:       Pipe2,
	unix.SYS_GETPID:      Getpid,
	unix.SYS_GETPPID:     Getppid,
	unix.SYS_GETTID:      Gettid,
	unix.SYS_KILL:        Kill,
	unix.SYS_TKILL:       Tkill,
	unix.SYS_EXIT:        Exit,
	unix.SYS_EXIT_GROUP:  Exit,
	unix.SYS_UNAME:       Uname,
	unix.SYS_SYSINFO:     Sysinfo,
}

// Dispatch routes one notification to its handler (spec §4.9, §4.10).
// Blocked syscalls are rejected before the thread is even looked up
// (spec §6). An unregistered caller thread surfaces as ESRCH rather
// than a dropped notification (spec §8 scenario 9: "unknown tid").
func Dispatch(s *State, n *notifier.Notif) notifier.Response {
	if IsBlocked(n.Data.Nr) {
		return notifier.Return(n.ID, -1, int32(unix.ENOSYS))
	}

	h, ok := handlers[n.Data.Nr]
	if !ok {
		return notifier.Continue(n.ID)
	}

	t, err := s.Registry.Get(n.Pid)
	if err != nil {
		return notifier.Return(n.ID, -1, Errno(err))
	}

	return h(s, t, n)
}
