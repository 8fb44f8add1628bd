package syscalls

import (
	"golang.org/x/sys/unix"

	"github.com/sandboxrun/bvisor/internal/ids"
	"github.com/sandboxrun/bvisor/internal/notifier"
	"github.com/sandboxrun/bvisor/internal/procgraph"
	"github.com/sandboxrun/bvisor/internal/vfile"
)

// Close implements spec §4.9's close handler: lookup + remove, EBADF if
// the vfd is unknown.
func Close(s *State, t *procgraph.Thread, n *notifier.Notif) notifier.Response {
	vfd := ids.VFD(int32(n.Data.Args[0]))
	if !t.FdTable().Remove(vfd) {
		return notifier.Return(n.ID, -1, int32(unix.EBADF))
	}
	return notifier.Return(n.ID, 0, 0)
}

// Dup implements spec §4.9's dup handler: allocate the next vfd sharing
// the same File.
func Dup(s *State, t *procgraph.Thread, n *notifier.Notif) notifier.Response {
	oldfd := ids.VFD(int32(n.Data.Args[0]))
	newfd, err := t.FdTable().Dup(oldfd)
	if err != nil {
		return notifier.Return(n.ID, -1, Errno(err))
	}
	return notifier.Return(n.ID, int64(newfd), 0)
}

// Dup3 implements spec §4.9's dup3 handler: oldfd == newfd is EINVAL;
// else remove any existing newfd, then dup to newfd honouring
// O_CLOEXEC in the flags argument.
func Dup3(s *State, t *procgraph.Thread, n *notifier.Notif) notifier.Response {
	oldfd := ids.VFD(int32(n.Data.Args[0]))
	newfd := ids.VFD(int32(n.Data.Args[1]))
	flags := int(int32(n.Data.Args[2]))

	if oldfd == newfd {
		return notifier.Return(n.ID, -1, int32(unix.EINVAL))
	}
	if err := t.FdTable().DupAt(oldfd, newfd, flags&unix.O_CLOEXEC != 0); err != nil {
		return notifier.Return(n.ID, -1, Errno(err))
	}
	return notifier.Return(n.ID, int64(newfd), 0)
}

// Lseek implements spec §4.9's lseek handler: dispatch to the backend.
func Lseek(s *State, t *procgraph.Thread, n *notifier.Notif) notifier.Response {
	vfd := ids.VFD(int32(n.Data.Args[0]))
	off := int64(n.Data.Args[1])
	whence := vfile.Whence(int32(n.Data.Args[2]))

	f, err := t.FdTable().GetRef(vfd)
	if err != nil {
		return notifier.Return(n.ID, -1, Errno(err))
	}
	defer f.Unref()

	newOff, err := f.Lseek(off, whence)
	if err != nil {
		return notifier.Return(n.ID, -1, Errno(err))
	}
	return notifier.Return(n.ID, newOff, 0)
}
