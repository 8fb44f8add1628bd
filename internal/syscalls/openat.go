package syscalls

import (
	"golang.org/x/sys/unix"

	"github.com/sandboxrun/bvisor/internal/ids"
	"github.com/sandboxrun/bvisor/internal/notifier"
	"github.com/sandboxrun/bvisor/internal/procgraph"
	"github.com/sandboxrun/bvisor/internal/vfile"
)

// Openat implements spec §4.9's openat handler: resolve the path,
// consult the router, allocate a File of the chosen backend, insert
// into the caller's FdTable honouring O_CLOEXEC.
func Openat(s *State, t *procgraph.Thread, n *notifier.Notif) notifier.Response {
	dirfd := ids.VFD(int32(n.Data.Args[0]))
	flags := int(int32(n.Data.Args[2]))
	mode := uint32(n.Data.Args[3])

	path, err := readPath(s, n.Pid, uintptr(n.Data.Args[1]))
	if err != nil {
		return notifier.Return(n.ID, 0, Errno(err))
	}

	backend, openedPath, err := openBackend(s, t, dirfd, path, flags, mode)
	if err != nil {
		return notifier.Return(n.ID, 0, Errno(err))
	}

	f := vfile.New(backend, openedPath)
	vfd := t.FdTable().Insert(f, flags&unix.O_CLOEXEC != 0)
	return notifier.Return(n.ID, int64(vfd), 0)
}
