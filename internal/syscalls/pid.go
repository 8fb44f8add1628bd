package syscalls

import (
	"github.com/sandboxrun/bvisor/internal/notifier"
	"github.com/sandboxrun/bvisor/internal/procgraph"
)

// Getpid implements spec §4.9's getpid handler: the appropriate NsTid
// for the caller's thread-group leader, from the caller's own
// namespace.
func Getpid(s *State, t *procgraph.Thread, n *notifier.Notif) notifier.Response {
	leader, ok := t.ThreadGroup().Leader()
	if !ok {
		return notifier.Return(n.ID, int64(t.OwnNsTid()), 0)
	}
	nstid, ok := leader.NsTid(t.Namespace())
	if !ok {
		return notifier.Return(n.ID, int64(t.OwnNsTid()), 0)
	}
	return notifier.Return(n.ID, int64(nstid), 0)
}

// Getppid implements spec §4.9's getppid handler: the caller's parent's
// NsTid in the caller's own namespace, or 1 (the sandbox's init) if the
// parent is not visible there.
func Getppid(s *State, t *procgraph.Thread, n *notifier.Notif) notifier.Response {
	parent := t.Parent()
	if parent == nil {
		return notifier.Return(n.ID, 0, 0)
	}
	nstid, ok := parent.NsTid(t.Namespace())
	if !ok {
		return notifier.Return(n.ID, 1, 0)
	}
	return notifier.Return(n.ID, int64(nstid), 0)
}

// Gettid implements spec §4.9's gettid handler: the caller's own NsTid.
func Gettid(s *State, t *procgraph.Thread, n *notifier.Notif) notifier.Response {
	return notifier.Return(n.ID, int64(t.OwnNsTid()), 0)
}
