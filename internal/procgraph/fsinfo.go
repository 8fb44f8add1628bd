package procgraph

import "sync"

// FsInfo is the refcounted holder of a thread's cwd, root and umask (spec
// §4.2, §4.7), shared between threads iff CLONE_FS was set at clone time.
type FsInfo struct {
	mu     sync.Mutex
	refs   int64
	Cwd    string
	Root   string
	Umask  uint32
}

// NewFsInfo returns an FsInfo at refcount 1.
func NewFsInfo(cwd, root string, umask uint32) *FsInfo {
	return &FsInfo{refs: 1, Cwd: cwd, Root: root, Umask: umask}
}

func (f *FsInfo) Ref() {
	f.mu.Lock()
	f.refs++
	f.mu.Unlock()
}

// Unref decrements the refcount and reports whether this was the last
// reference.
func (f *FsInfo) Unref() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refs--
	return f.refs == 0
}

// Clone returns an independent FsInfo copying the current values, for a
// child created without CLONE_FS.
func (f *FsInfo) Clone() *FsInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return NewFsInfo(f.Cwd, f.Root, f.Umask)
}

func (f *FsInfo) GetCwd() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Cwd
}

func (f *FsInfo) SetCwd(cwd string) {
	f.mu.Lock()
	f.Cwd = cwd
	f.mu.Unlock()
}
