package syscalls

import (
	"github.com/sandboxrun/bvisor/internal/notifier"
	"github.com/sandboxrun/bvisor/internal/procgraph"
)

// Exit implements spec §4.9's exit/exit_group handler: apply §4.7 exit
// semantics, then Continue so the kernel actually terminates the
// thread.
func Exit(s *State, t *procgraph.Thread, n *notifier.Notif) notifier.Response {
	s.Registry.Exit(t)
	return notifier.Continue(n.ID)
}
