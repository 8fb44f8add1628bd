package syscalls

import (
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/sandboxrun/bvisor/internal/ids"
	"github.com/sandboxrun/bvisor/internal/memio"
	"github.com/sandboxrun/bvisor/internal/procgraph"
	"github.com/sandboxrun/bvisor/internal/router"
	"github.com/sandboxrun/bvisor/internal/vfile"
)

const maxPathLen = 4096

// readPath reads a NUL-terminated path string out of the guest's address
// space via C1 (spec §4.1, §4.9).
func readPath(s *State, t ids.AbsTid, addr uintptr) (string, error) {
	return memio.ReadCString(s.Bridge, t, addr, maxPathLen)
}

// resolveBase returns the base path a relative openat-family path is
// joined against: dirfd's recorded opened path, or the thread's cwd for
// AT_FDCWD (spec §4.3: "concatenates with the FD's recorded path, or the
// thread's cwd").
func resolveBase(caller *procgraph.Thread, dirfd ids.VFD) (string, error) {
	if int32(dirfd) == unix.AT_FDCWD {
		return caller.FsInfo().GetCwd(), nil
	}
	f, err := caller.FdTable().GetRef(dirfd)
	if err != nil {
		return "", err
	}
	defer f.Unref()
	return f.OpenedPath(), nil
}

// openBackend resolves path against dirfd, applies the router's verdict,
// and returns the concrete File backend it selects (spec §4.3-§4.5, §4.9
// openat). caller is the thread issuing the request, used for /proc/self
// rendering and cwd resolution.
func openBackend(s *State, caller *procgraph.Thread, dirfd ids.VFD, path string, flags int, mode uint32) (vfile.Backend, string, error) {
	base, err := resolveBase(caller, dirfd)
	if err != nil {
		return nil, "", err
	}
	normalized := router.Resolve(base, path)

	rule, _ := s.Router.Route(normalized)
	switch rule.Verdict {
	case router.VerdictBlock:
		return nil, normalized, &PathBlocked{Path: normalized}

	case router.VerdictPassthrough:
		b, err := vfile.NewPassthrough(normalized, flags, mode)
		return b, normalized, err

	case router.VerdictProc:
		content, err := renderProc(s, caller, rule.ProcKind, normalized)
		if err != nil {
			return nil, normalized, err
		}
		return vfile.NewProc(content), normalized, nil

	case router.VerdictTmp:
		resolved, err := s.Overlay.ResolveTmp(normalized)
		if err != nil {
			return nil, normalized, err
		}
		b, err := vfile.OpenTmp(resolved, flags, mode)
		return b, normalized, err

	default: // VerdictCow
		b, err := vfile.OpenCow(s.Overlay, normalized, flags, mode)
		return b, normalized, err
	}
}

// resolveHostPath mirrors openBackend's routing decision but returns a
// real, host-accessible path instead of opening a backend, for handlers
// that only need to stat/access/readlink a path (faccessat, readlinkat).
func resolveHostPath(s *State, caller *procgraph.Thread, dirfd ids.VFD, path string) (string, error) {
	base, err := resolveBase(caller, dirfd)
	if err != nil {
		return "", err
	}
	normalized := router.Resolve(base, path)

	rule, _ := s.Router.Route(normalized)
	switch rule.Verdict {
	case router.VerdictBlock:
		return "", &PathBlocked{Path: normalized}
	case router.VerdictTmp:
		return s.Overlay.ResolveTmp(normalized)
	case router.VerdictCow:
		if s.Overlay.CowExists(normalized) {
			return s.Overlay.ResolveCow(normalized), nil
		}
		return normalized, nil
	default: // Passthrough, Proc
		return normalized, nil
	}
}

// renderProc synthesises the content of a /proc path at open time (spec
// §4.5, §6: "/proc/self -> <NsTid>\n"; other /proc/<pid> paths translate
// to the corresponding Thread's NsTid or fail ESRCH if not visible").
func renderProc(s *State, caller *procgraph.Thread, kind router.ProcKind, normalized string) (string, error) {
	if kind == router.ProcSelf {
		return strconv.Itoa(int(caller.OwnNsTid())) + "\n", nil
	}

	rest := strings.TrimPrefix(normalized, "/proc/")
	rest, _, _ = strings.Cut(rest, "/")
	targetNsTid, err := strconv.Atoi(rest)
	if err != nil {
		return "", unix.ENOENT
	}

	target, ok := caller.Namespace().Lookup(ids.NsTid(targetNsTid))
	if !ok {
		return "", &NotVisible{Target: ids.NsTid(targetNsTid)}
	}
	return strconv.Itoa(int(target.OwnNsTid())) + "\n", nil
}
