// Package overlay implements the per-sandbox copy-on-write overlay
// filesystem (spec C4): a private directory tree under a root like
// /tmp/.bvisor/sb/<uid>/ containing a cow/ mirror of materialised copies
// and a tmp/ subtree that serves as the guest's /tmp.
//
// Grounded on tomponline-lxd's heavy use of github.com/google/uuid for
// per-resource identifiers (LXD mints a UUID per instance/operation the
// same way this package mints one per sandbox), and on the teacher's
// discipline of failing loudly rather than silently ignoring filesystem
// errors (subprocess.go panics rather than swallow an unexpected errno;
// overlay instead returns errors, since these are host-filesystem
// operations a caller can reasonably want to retry or report).
package overlay

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// InvalidPath is returned by ResolveTmp for guest paths outside /tmp.
type InvalidPath struct {
	Path string
}

func (e *InvalidPath) Error() string { return fmt.Sprintf("invalid path for overlay: %q", e.Path) }

// Root is one sandbox's private overlay tree.
type Root struct {
	base string // root/sb/<uid>
	uid  string
}

// NewRoot creates root/sb/<uid>/cow and root/sb/<uid>/tmp, generating a
// fresh 16-byte random UID per spec §4.4/§6 (a UUIDv4 payload is exactly 16
// bytes; its hex string rendering is the "ASCII" encoding spec §6 asks
// for). The UID namespaces concurrent sandboxes from each other.
func NewRoot(root string) (*Root, error) {
	id := uuid.New()
	uidStr := strings.ReplaceAll(id.String(), "-", "")
	base := filepath.Join(root, "sb", uidStr)

	for _, sub := range []string{"cow", "tmp"} {
		if err := os.MkdirAll(filepath.Join(base, sub), 0o755); err != nil {
			return nil, fmt.Errorf("overlay: create %s: %w", sub, err)
		}
	}

	return &Root{base: base, uid: uidStr}, nil
}

// UID returns the sandbox's overlay UID.
func (r *Root) UID() string { return r.uid }

// Cleanup removes the sandbox's entire overlay tree (cow/ and tmp/).
// Overlay state does not persist across runs (spec Non-goals), so the
// supervisor calls this once the guest is gone.
func (r *Root) Cleanup() error {
	return os.RemoveAll(r.base)
}

// cowDir and tmpDir are the two overlay subtrees (spec §6).
func (r *Root) cowDir() string { return filepath.Join(r.base, "cow") }
func (r *Root) tmpDir() string { return filepath.Join(r.base, "tmp") }

// ResolveCow concatenates the cow/ subtree with the guest path, mirroring
// the host layout (spec §4.4).
func (r *Root) ResolveCow(guestPath string) string {
	return filepath.Join(r.cowDir(), guestPath)
}

// ResolveTmp strips the /tmp/ prefix from a guest path and rewrites it
// under the overlay's tmp/ subtree. Paths not starting with /tmp/ (or
// exactly "/tmp") are rejected.
func (r *Root) ResolveTmp(guestPath string) (string, error) {
	if guestPath != "/tmp" && !strings.HasPrefix(guestPath, "/tmp/") {
		return "", &InvalidPath{Path: guestPath}
	}
	rel := strings.TrimPrefix(guestPath, "/tmp")
	rel = strings.TrimPrefix(rel, "/")
	return filepath.Join(r.tmpDir(), rel), nil
}

// CowExists reports whether guestPath has already been materialised into
// the overlay for this sandbox.
func (r *Root) CowExists(guestPath string) bool {
	_, err := os.Stat(r.ResolveCow(guestPath))
	return err == nil
}

// CreateCowParentDirs idempotently creates the ancestor directories of
// guestPath inside the cow/ subtree (spec §4.4).
func (r *Root) CreateCowParentDirs(guestPath string) error {
	dir := filepath.Dir(r.ResolveCow(guestPath))
	return os.MkdirAll(dir, 0o755)
}

// MaterializeCow byte-copies the host original at guestPath into the
// overlay cow/ subtree, creating parent directories first. It is a no-op
// error (returns nil) if the copy already exists — materialisation is
// idempotent and "once per path per sandbox" per spec §4.5.
func (r *Root) MaterializeCow(guestPath string) error {
	if r.CowExists(guestPath) {
		return nil
	}
	if err := r.CreateCowParentDirs(guestPath); err != nil {
		return err
	}

	src, err := os.Open(guestPath)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}

	dstPath := r.ResolveCow(guestPath)
	dst, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		if os.IsExist(err) {
			// Lost a materialisation race within this sandbox; the
			// existing copy is authoritative.
			return nil
		}
		return err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(dstPath)
		return err
	}
	return nil
}
