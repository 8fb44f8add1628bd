// Package fdtable implements the per-threadgroup virtual file descriptor
// table (spec §3, §4.6): a map from VFD to File, with POSIX dup/dup2/dup3
// and CLONE_FILES sharing semantics.
package fdtable

import (
	"fmt"
	"sync"

	"github.com/sandboxrun/bvisor/internal/ids"
	"github.com/sandboxrun/bvisor/internal/vfile"
)

// firstFreeVFD is the lowest VFD ever handed out by insert/dup; 0-2 are
// reserved for stdio and are only ever populated via insert_at during
// sandbox bootstrap (spec §4.6).
const firstFreeVFD = 3

// BadFileDescriptor is returned when a VFD has no live entry.
type BadFileDescriptor struct {
	Vfd ids.VFD
}

func (e *BadFileDescriptor) Error() string {
	return fmt.Sprintf("fdtable: no entry at vfd %d", e.Vfd)
}

// VfdInUse is returned by insert_at/dup_at when the requested slot is
// already occupied.
type VfdInUse struct {
	Vfd ids.VFD
}

func (e *VfdInUse) Error() string {
	return fmt.Sprintf("fdtable: vfd %d already in use", e.Vfd)
}

// Entry is one slot in the table.
type Entry struct {
	File    *vfile.File
	Cloexec bool
}

// Table is a refcounted, mutex-guarded VFD->Entry map. A Table is shared
// between threads in the same thread group unless CLONE_FILES is absent
// from a clone, in which case Clone produces an independent copy (spec
// §4.6, §8 scenario 5/13).
type Table struct {
	mu      sync.Mutex
	entries map[ids.VFD]Entry
	nextVfd ids.VFD
	refs    int64
}

// New returns an empty table with refcount 1.
func New() *Table {
	return &Table{
		entries: make(map[ids.VFD]Entry),
		nextVfd: firstFreeVFD,
		refs:    1,
	}
}

// Ref increments the table's refcount. Used when a clone shares this table
// via CLONE_FILES.
func (t *Table) Ref() {
	t.mu.Lock()
	t.refs++
	t.mu.Unlock()
}

// Unref decrements the table's refcount. At zero, every contained File is
// unreferenced (closing any backend that reaches refcount zero itself).
func (t *Table) Unref() {
	t.mu.Lock()
	t.refs--
	drop := t.refs == 0
	var files []*vfile.File
	if drop {
		for _, e := range t.entries {
			files = append(files, e.File)
		}
		t.entries = nil
	}
	t.mu.Unlock()

	if !drop {
		return
	}
	for _, f := range files {
		_ = f.Unref()
	}
}

// Insert allocates the next VFD at or above firstFreeVFD, takes ownership
// of file (which must already be at refcount 1, per spec §4.6's "insert
// takes ownership" invariant), and returns the new VFD. VFDs are
// monotonically allocated and never reused after close (spec §3: "VFDs
// are monotonically allocated within a table and are never reused after
// close").
func (t *Table) Insert(file *vfile.File, cloexec bool) ids.VFD {
	t.mu.Lock()
	defer t.mu.Unlock()

	vfd := t.nextVfd
	t.nextVfd++
	t.entries[vfd] = Entry{File: file, Cloexec: cloexec}
	return vfd
}

// InsertAt places file at exactly vfd, reserved for stdio bootstrap (vfd
// 0-2) or dup2/dup3-style callers that already resolved the target slot
// via Remove. Returns VfdInUse if vfd is occupied.
func (t *Table) InsertAt(file *vfile.File, vfd ids.VFD, cloexec bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[vfd]; ok {
		return &VfdInUse{Vfd: vfd}
	}
	t.entries[vfd] = Entry{File: file, Cloexec: cloexec}
	if vfd >= t.nextVfd {
		t.nextVfd = vfd + 1
	}
	return nil
}

// Dup implements dup(2): take a new ref on the file at oldVfd and insert
// it at the lowest free VFD. The cloexec flag is never inherited (POSIX).
func (t *Table) Dup(oldVfd ids.VFD) (ids.VFD, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[oldVfd]
	if !ok {
		return 0, &BadFileDescriptor{Vfd: oldVfd}
	}
	e.File.Ref()
	newVfd := t.nextVfd
	t.nextVfd++
	t.entries[newVfd] = Entry{File: e.File, Cloexec: false}
	return newVfd, nil
}

// DupAt implements dup3(2)/dup2(2): take a new ref on the file at oldVfd
// and install it at newVfd, closing (unreffing) whatever previously
// occupied newVfd. cloexec carries dup3's O_CLOEXEC flag; dup2 always
// passes false.
func (t *Table) DupAt(oldVfd, newVfd ids.VFD, cloexec bool) error {
	if oldVfd == newVfd {
		t.mu.Lock()
		_, ok := t.entries[oldVfd]
		t.mu.Unlock()
		if !ok {
			return &BadFileDescriptor{Vfd: oldVfd}
		}
		return nil
	}

	t.mu.Lock()
	e, ok := t.entries[oldVfd]
	if !ok {
		t.mu.Unlock()
		return &BadFileDescriptor{Vfd: oldVfd}
	}
	e.File.Ref()
	prev, hadPrev := t.entries[newVfd]
	t.entries[newVfd] = Entry{File: e.File, Cloexec: cloexec}
	if newVfd >= t.nextVfd {
		t.nextVfd = newVfd + 1
	}
	t.mu.Unlock()

	if hadPrev {
		_ = prev.File.Unref()
	}
	return nil
}

// GetRef returns a new reference to the file at vfd. Callers must Unref
// it when done (spec §4.6: "get_ref returns a ref the caller must
// release").
func (t *Table) GetRef(vfd ids.VFD) (*vfile.File, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[vfd]
	if !ok {
		return nil, &BadFileDescriptor{Vfd: vfd}
	}
	e.File.Ref()
	return e.File, nil
}

// GetEntry returns the Entry at vfd without taking a new reference, for
// inspecting Cloexec.
func (t *Table) GetEntry(vfd ids.VFD) (Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[vfd]
	if !ok {
		return Entry{}, &BadFileDescriptor{Vfd: vfd}
	}
	return e, nil
}

// Remove drops the table's reference to vfd's entry (unreffing the File,
// closing its backend at refcount zero) and returns whether an entry was
// present.
func (t *Table) Remove(vfd ids.VFD) bool {
	t.mu.Lock()
	e, ok := t.entries[vfd]
	if ok {
		delete(t.entries, vfd)
	}
	t.mu.Unlock()

	if ok {
		_ = e.File.Unref()
	}
	return ok
}

// Clone returns an independent table (refcount 1) containing a Ref'd copy
// of every entry, used when a thread clones without CLONE_FILES (spec
// §4.6, §8 scenario 13: clones without CLONE_FILES are isolated, so a
// close in one does not affect the other).
func (t *Table) Clone() *Table {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := New()
	n.nextVfd = t.nextVfd
	for vfd, e := range t.entries {
		e.File.Ref()
		n.entries[vfd] = e
	}
	return n
}

// CloseOnExec removes every entry whose Cloexec flag is set, called on
// execve (not otherwise reachable from SPEC_FULL's syscall set, kept for
// the table's own completeness per spec §4.6).
func (t *Table) CloseOnExec() {
	t.mu.Lock()
	var toClose []*vfile.File
	for vfd, e := range t.entries {
		if e.Cloexec {
			toClose = append(toClose, e.File)
			delete(t.entries, vfd)
		}
	}
	t.mu.Unlock()

	for _, f := range toClose {
		_ = f.Unref()
	}
}
