package syscalls

import (
	"github.com/sandboxrun/bvisor/internal/memio"
	"github.com/sandboxrun/bvisor/internal/overlay"
	"github.com/sandboxrun/bvisor/internal/registry"
	"github.com/sandboxrun/bvisor/internal/router"
)

// State bundles everything a handler needs: cross-process memory access
// (C1), the path router (C3), the overlay filesystem (C4), and the
// thread registry (C8). Supervisor (C10) constructs one State per
// sandbox and shares it across every dispatched notification.
type State struct {
	Bridge   memio.Bridge
	Router   *router.Router
	Overlay  *overlay.Root
	Registry *registry.Registry
}
