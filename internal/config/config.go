// Package config holds the supervisor's ambient configuration: the
// overlay root path, the already-open notifier fd, and the sandbox's
// root thread id. Bootstrapping the guest and the seccomp filter program
// that installs the notifier is out of scope for this supervisor (spec
// Non-goals); the fd is handed to it already open.
package config

import "github.com/sandboxrun/bvisor/internal/ids"

// Config is the supervisor's top-level configuration, populated from
// CLI flags by cmd/bvisor.
type Config struct {
	// OverlayRoot is the directory under which per-sandbox cow/ and tmp/
	// trees are created (spec §6, default /tmp/.bvisor).
	OverlayRoot string

	// NotifierFD is the already-open SECCOMP_RET_USER_NOTIF fd for this
	// sandbox.
	NotifierFD ids.SupervisorFD

	// RootTid is the guest's initial thread id, as seen by the host
	// kernel.
	RootTid ids.AbsTid

	// LogLevel is a logrus level name ("debug", "info", "warn", "error").
	LogLevel string
}

// DefaultOverlayRoot is spec §6's stated default.
const DefaultOverlayRoot = "/tmp/.bvisor"
