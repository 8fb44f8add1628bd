// Package vfile implements the polymorphic File handle and its four
// concrete backends (spec C5): Passthrough, Cow, Tmp and Proc. Every
// backend exposes the same read/write/lseek/statx/close contract so that
// the FD table and syscall handlers never need to know which one they are
// holding.
package vfile

import (
	"fmt"
	"sync/atomic"
)

// Whence mirrors the POSIX lseek whence values.
type Whence int

const (
	SeekSet Whence = iota
	SeekCur
	SeekEnd
)

// ReadOnlyFileSystem is returned by Write on a Cow Readthrough backend.
type ReadOnlyFileSystem struct{ Path string }

func (e *ReadOnlyFileSystem) Error() string {
	return fmt.Sprintf("read-only filesystem: %s", e.Path)
}

// NotPermitted is returned by Write on a Proc backend.
type NotPermitted struct{ Op string }

func (e *NotPermitted) Error() string { return fmt.Sprintf("operation not permitted: %s", e.Op) }

// Backend is the per-storage-strategy implementation a File wraps.
type Backend interface {
	Read(buf []byte) (int, error)
	Write(data []byte) (int, error)
	Lseek(off int64, whence Whence) (int64, error)
	Statx() (Statx, error)
	Close() error
	// Discriminator names the backend kind ("passthrough", "cow", "tmp"
	// or "proc").
	Discriminator() string
}

// File is the refcounted, polymorphic handle stored in an FdTable entry
// (spec §3 Data model: "File. Refcounted polymorphic handle."). ref_count
// starts at 1 on creation; FdTable.dup increments it, FdTable.remove
// decrements it, and the backend's Close runs exactly once, at the final
// decrement (spec §4.6, §5).
type File struct {
	refCount   atomic.Int64
	backend    Backend
	openedPath string
}

// New wraps backend into a File with refcount 1 and the path it was opened
// from recorded (spec §3: "an optional recorded opened_path").
func New(backend Backend, openedPath string) *File {
	f := &File{backend: backend, openedPath: openedPath}
	f.refCount.Store(1)
	return f
}

// OpenedPath returns the path this File was opened from, if any.
func (f *File) OpenedPath() string { return f.openedPath }

// Discriminator exposes the backend kind.
func (f *File) Discriminator() string { return f.backend.Discriminator() }

// RefCount returns the current reference count, for invariant assertions
// (spec §3: "ref_count >= 1 for every live refcounted object").
func (f *File) RefCount() int64 { return f.refCount.Load() }

// Ref increments the refcount the POSIX-dup way: acquire semantics, no
// destructor can run concurrently with an increment from >=1.
func (f *File) Ref() {
	f.refCount.Add(1)
}

// Unref decrements the refcount with release semantics; at 0 the backend
// is closed exactly once (spec §3, §5: "File.close on the backend runs
// exactly once, at File destruction").
func (f *File) Unref() error {
	if f.refCount.Add(-1) == 0 {
		return f.backend.Close()
	}
	return nil
}

func (f *File) Read(buf []byte) (int, error)            { return f.backend.Read(buf) }
func (f *File) Write(data []byte) (int, error)           { return f.backend.Write(data) }
func (f *File) Lseek(off int64, w Whence) (int64, error) { return f.backend.Lseek(off, w) }
func (f *File) Statx() (Statx, error)                    { return f.backend.Statx() }
