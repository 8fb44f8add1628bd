// Package router implements the path router and normalizer (spec C3):
// resolving a syscall's (dirfd, path) pair to an absolute, normalized path
// and then matching it against an ordered table of prefix rules to produce
// a routing Verdict.
//
// Path normalization follows the teacher's general discipline of doing all
// security-relevant decisions on the supervisor side before any real
// syscall runs (subprocess.go never lets a raw, unvalidated address reach
// the kernel) — here that means resolving ".." lexically, without ever
// following a symlink, per spec §4.3.
package router

import (
	"path"
	"strings"
)

// Verdict is the routing outcome for a normalized path.
type Verdict int

const (
	// VerdictCow is the default: open via the copy-on-write backend.
	VerdictCow Verdict = iota
	VerdictBlock
	VerdictPassthrough
	VerdictProc
	VerdictTmp
)

func (v Verdict) String() string {
	switch v {
	case VerdictBlock:
		return "block"
	case VerdictPassthrough:
		return "passthrough"
	case VerdictProc:
		return "proc"
	case VerdictTmp:
		return "tmp"
	default:
		return "cow"
	}
}

// ProcKind distinguishes which synthetic /proc file a VerdictProc routes to.
type ProcKind int

const (
	ProcSelf ProcKind = iota
	ProcOtherPid
)

// Rule is one entry in the ordered prefix table.
type Rule struct {
	Prefix   string
	Verdict  Verdict
	ProcKind ProcKind
}

// DefaultRules is the prefix table from spec §4.3 and §6: /dev passthrough
// devices, blocked /sys and /run subtrees, /proc synthesis, and /tmp
// redirection. Anything else falls through to the zero-value Cow default.
var DefaultRules = []Rule{
	{Prefix: "/dev/null", Verdict: VerdictPassthrough},
	{Prefix: "/dev/zero", Verdict: VerdictPassthrough},
	{Prefix: "/dev/random", Verdict: VerdictPassthrough},
	{Prefix: "/dev/urandom", Verdict: VerdictPassthrough},
	{Prefix: "/sys", Verdict: VerdictBlock},
	{Prefix: "/run", Verdict: VerdictBlock},
	{Prefix: "/proc/self", Verdict: VerdictProc, ProcKind: ProcSelf},
	{Prefix: "/proc", Verdict: VerdictProc, ProcKind: ProcOtherPid},
	{Prefix: "/tmp", Verdict: VerdictTmp},
}

// PathResolver looks up the string a relative path should be resolved
// against: a dirfd's recorded path, or a thread's cwd when dirfd is
// AT_FDCWD. It is satisfied by the FD table and FsInfo respectively; kept
// as an interface here so the router has no dependency on those packages.
type PathResolver interface {
	// BasePath returns the directory a relative path should be joined
	// against, or ok=false if the base (e.g. an unknown dirfd) cannot be
	// resolved.
	BasePath() (string, bool)
}

// Router normalizes and routes guest paths.
type Router struct {
	rules []Rule
}

// New builds a Router over rules, which must already be in the intended
// tie-break order (longest-prefix-wins, ties resolved in declaration order
// per spec §4.3).
func New(rules []Rule) *Router {
	return &Router{rules: rules}
}

// Resolve joins a possibly-relative path against base (when not already
// absolute) and normalizes it per spec §4.3: collapse ".", resolve ".."
// lexically, never following a symlink.
func Resolve(base, p string) string {
	if !strings.HasPrefix(p, "/") {
		p = path.Join(base, p)
	}
	return normalize(p)
}

// normalize collapses "." and lexically resolves ".." without touching the
// filesystem, so "foo/../bar" becomes "bar" even if foo were a symlink —
// the security property spec §4.3 calls out explicitly.
func normalize(p string) string {
	if p == "" {
		return "/"
	}
	segments := strings.Split(p, "/")
	out := make([]string, 0, len(segments))
	for _, s := range segments {
		switch s {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, s)
		}
	}
	return "/" + strings.Join(out, "/")
}

// Route matches a normalized absolute path against the rule table and
// returns the winning Rule with ok=true, tie-breaking on longest prefix
// then declaration order (spec §4.3). When no rule matches it returns a
// Rule with VerdictCow and ok=false.
func (r *Router) Route(normalizedPath string) (Rule, bool) {
	best := -1
	bestLen := -1
	for i, rule := range r.rules {
		if !isPrefix(rule.Prefix, normalizedPath) {
			continue
		}
		if len(rule.Prefix) > bestLen {
			bestLen = len(rule.Prefix)
			best = i
		}
	}
	if best < 0 {
		return Rule{Verdict: VerdictCow}, false
	}
	return r.rules[best], true
}

// isPrefix reports whether prefix matches path at a path-component
// boundary: "/tmp" matches "/tmp/x" but not "/tmpfoo".
func isPrefix(prefix, p string) bool {
	if prefix == p {
		return true
	}
	if !strings.HasPrefix(p, prefix) {
		return false
	}
	return strings.HasPrefix(p[len(prefix):], "/")
}
