package syscalls

import (
	"encoding/binary"

	"github.com/sandboxrun/bvisor/internal/notifier"
	"github.com/sandboxrun/bvisor/internal/procgraph"
)

// utsFieldLen is struct utsname's per-field length on Linux (65 bytes:
// 64 chars + NUL).
const utsFieldLen = 65

// virtualHostname is the hostname this supervisor reports to every
// guest, regardless of the host's real one (spec §4.9: "synthesise
// structures with virtualised hostname/uptime fields").
const virtualHostname = "bvisor"

func utsField(s string) []byte {
	b := make([]byte, utsFieldLen)
	copy(b, s)
	return b
}

// Uname implements spec §4.9's uname handler.
func Uname(s *State, t *procgraph.Thread, n *notifier.Notif) notifier.Response {
	buf := make([]byte, 0, utsFieldLen*6)
	buf = append(buf, utsField("Linux")...)
	buf = append(buf, utsField(virtualHostname)...)
	buf = append(buf, utsField("5.15.0-bvisor")...)
	buf = append(buf, utsField("#1 SMP")...)
	buf = append(buf, utsField("x86_64")...)
	buf = append(buf, utsField("")...)

	if err := s.Bridge.WriteSlice(n.Pid, uintptr(n.Data.Args[0]), buf); err != nil {
		return notifier.Return(n.ID, -1, Errno(err))
	}
	return notifier.Return(n.ID, 0, 0)
}

// sysinfoSize is struct sysinfo's size on Linux x86-64.
const sysinfoSize = 112

// virtualUptimeSeconds is the sandbox's reported uptime: the supervisor
// does not track real guest start time in this model, so a fixed,
// plausible value is synthesised rather than leaking the host's uptime.
const virtualUptimeSeconds = 0

// Sysinfo implements spec §4.9's sysinfo handler: populates the uptime
// field (loads and memory fields are left zeroed, since no backend in
// this supervisor models guest memory accounting).
func Sysinfo(s *State, t *procgraph.Thread, n *notifier.Notif) notifier.Response {
	buf := make([]byte, sysinfoSize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(virtualUptimeSeconds))

	if err := s.Bridge.WriteSlice(n.Pid, uintptr(n.Data.Args[0]), buf); err != nil {
		return notifier.Return(n.ID, -1, Errno(err))
	}
	return notifier.Return(n.ID, 0, 0)
}
