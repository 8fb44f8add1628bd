package syscalls

import (
	"golang.org/x/sys/unix"

	"github.com/sandboxrun/bvisor/internal/ids"
	"github.com/sandboxrun/bvisor/internal/notifier"
	"github.com/sandboxrun/bvisor/internal/procgraph"
)

// Kill implements spec §4.9's kill handler: parse the namespaced target,
// reject non-positive with EINVAL, translate to an absolute leader tid
// via C8, issue the real signal. Registry state is never modified here
// (only exit_group removes threads).
func Kill(s *State, t *procgraph.Thread, n *notifier.Notif) notifier.Response {
	target := int64(int32(n.Data.Args[0]))
	sig := int(int32(n.Data.Args[1]))

	if target <= 0 {
		return notifier.Return(n.ID, -1, int32(unix.EINVAL))
	}

	leader, err := s.Registry.GetNamespaced(t, ids.NsTid(target))
	if err != nil {
		return notifier.Return(n.ID, -1, int32(unix.ESRCH))
	}
	if err := unix.Kill(int(leader.Tid), sig); err != nil {
		return notifier.Return(n.ID, -1, int32(err.(unix.Errno)))
	}
	return notifier.Return(n.ID, 0, 0)
}

// Tkill implements spec §4.9's tkill handler: identical to Kill but
// targets an exact thread id rather than requiring a group leader, and
// issues tgkill-equivalent per-thread delivery via the real kernel.
func Tkill(s *State, t *procgraph.Thread, n *notifier.Notif) notifier.Response {
	target := int64(int32(n.Data.Args[0]))
	sig := int(int32(n.Data.Args[1]))

	if target <= 0 {
		return notifier.Return(n.ID, -1, int32(unix.EINVAL))
	}

	victim, ok := t.Namespace().Lookup(ids.NsTid(target))
	if !ok {
		return notifier.Return(n.ID, -1, int32(unix.ESRCH))
	}
	if err := unix.Tgkill(int(victim.Tgid()), int(victim.Tid), sig); err != nil {
		return notifier.Return(n.ID, -1, int32(err.(unix.Errno)))
	}
	return notifier.Return(n.ID, 0, 0)
}
