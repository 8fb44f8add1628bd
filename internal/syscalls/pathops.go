package syscalls

import (
	"golang.org/x/sys/unix"

	"github.com/sandboxrun/bvisor/internal/ids"
	"github.com/sandboxrun/bvisor/internal/notifier"
	"github.com/sandboxrun/bvisor/internal/procgraph"
	"github.com/sandboxrun/bvisor/internal/router"
	"github.com/sandboxrun/bvisor/internal/vfile"
)

// Faccessat implements spec §4.9's faccessat handler, routed through
// C3/C4 to resolve the path then checked against the real kernel.
func Faccessat(s *State, t *procgraph.Thread, n *notifier.Notif) notifier.Response {
	dirfd := ids.VFD(int32(n.Data.Args[0]))
	mode := uint32(n.Data.Args[2])

	path, err := readPath(s, n.Pid, uintptr(n.Data.Args[1]))
	if err != nil {
		return notifier.Return(n.ID, -1, Errno(err))
	}
	hostPath, err := resolveHostPath(s, t, dirfd, path)
	if err != nil {
		return notifier.Return(n.ID, -1, Errno(err))
	}
	if err := unix.Access(hostPath, mode); err != nil {
		return notifier.Return(n.ID, -1, int32(err.(unix.Errno)))
	}
	return notifier.Return(n.ID, 0, 0)
}

// Getcwd implements spec §4.9's getcwd handler: write the caller's
// FsInfo.Cwd into the guest buffer.
func Getcwd(s *State, t *procgraph.Thread, n *notifier.Notif) notifier.Response {
	cwd := t.FsInfo().GetCwd()
	buf := append([]byte(cwd), 0)
	if uint64(len(buf)) > n.Data.Args[1] {
		return notifier.Return(n.ID, -1, int32(unix.ERANGE))
	}
	if err := s.Bridge.WriteSlice(n.Pid, uintptr(n.Data.Args[0]), buf); err != nil {
		return notifier.Return(n.ID, -1, Errno(err))
	}
	return notifier.Return(n.ID, int64(len(buf)), 0)
}

// Chdir implements spec §4.9's chdir handler: resolve the path and
// update the caller's FsInfo.Cwd after confirming it exists.
func Chdir(s *State, t *procgraph.Thread, n *notifier.Notif) notifier.Response {
	path, err := readPath(s, n.Pid, uintptr(n.Data.Args[0]))
	if err != nil {
		return notifier.Return(n.ID, -1, Errno(err))
	}
	hostPath, err := resolveHostPath(s, t, ids.VFD(unix.AT_FDCWD), path)
	if err != nil {
		return notifier.Return(n.ID, -1, Errno(err))
	}
	var st unix.Stat_t
	if err := unix.Stat(hostPath, &st); err != nil {
		return notifier.Return(n.ID, -1, int32(err.(unix.Errno)))
	}
	base, _ := resolveBase(t, ids.VFD(unix.AT_FDCWD))
	t.FsInfo().SetCwd(router.Resolve(base, path))
	return notifier.Return(n.ID, 0, 0)
}

// Readlinkat implements spec §4.9's readlinkat handler.
func Readlinkat(s *State, t *procgraph.Thread, n *notifier.Notif) notifier.Response {
	dirfd := ids.VFD(int32(n.Data.Args[0]))
	bufAddr := uintptr(n.Data.Args[2])
	bufSize := n.Data.Args[3]

	path, err := readPath(s, n.Pid, uintptr(n.Data.Args[1]))
	if err != nil {
		return notifier.Return(n.ID, -1, Errno(err))
	}
	hostPath, err := resolveHostPath(s, t, dirfd, path)
	if err != nil {
		return notifier.Return(n.ID, -1, Errno(err))
	}

	target := make([]byte, bufSize)
	n2, err := unix.Readlink(hostPath, target)
	if err != nil {
		return notifier.Return(n.ID, -1, int32(err.(unix.Errno)))
	}
	if err := s.Bridge.WriteSlice(n.Pid, bufAddr, target[:n2]); err != nil {
		return notifier.Return(n.ID, -1, Errno(err))
	}
	return notifier.Return(n.ID, int64(n2), 0)
}

// Pipe2 implements spec §4.9's pipe2 handler: create a real kernel pipe
// and insert both ends as passthrough Files in the caller's FdTable.
func Pipe2(s *State, t *procgraph.Thread, n *notifier.Notif) notifier.Response {
	flags := int(int32(n.Data.Args[1]))

	var fds [2]int
	if err := unix.Pipe2(fds[:], flags); err != nil {
		return notifier.Return(n.ID, -1, int32(err.(unix.Errno)))
	}

	cloexec := flags&unix.O_CLOEXEC != 0
	readFile := vfile.New(vfile.WrapPassthroughFd(ids.SupervisorFD(fds[0])), "")
	writeFile := vfile.New(vfile.WrapPassthroughFd(ids.SupervisorFD(fds[1])), "")
	rvfd := t.FdTable().Insert(readFile, cloexec)
	wvfd := t.FdTable().Insert(writeFile, cloexec)

	out := make([]byte, 8)
	putU32(out[0:4], uint32(rvfd))
	putU32(out[4:8], uint32(wvfd))
	if err := s.Bridge.WriteSlice(n.Pid, uintptr(n.Data.Args[0]), out); err != nil {
		return notifier.Return(n.ID, -1, Errno(err))
	}
	return notifier.Return(n.ID, 0, 0)
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
