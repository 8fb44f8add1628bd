// Package registry implements the thread registry (spec §3, §4.8): the
// single AbsTid -> Thread map that is the entry point for every syscall
// handler, with lazy reconciliation from the real kernel for threads the
// supervisor has not yet observed.
package registry

import (
	"fmt"
	"sync"

	"github.com/sandboxrun/bvisor/internal/ids"
	"github.com/sandboxrun/bvisor/internal/procgraph"
)

// ThreadNotRegistered is returned by Get when tid is still unknown after
// a sync pass.
type ThreadNotRegistered struct {
	Tid ids.AbsTid
}

func (e *ThreadNotRegistered) Error() string {
	return fmt.Sprintf("registry: thread %s is not registered", e.Tid)
}

// ThreadNotInSandbox is returned when the ancestor walk reaches a
// kernel-reported parent tid <= 1 without finding a registered ancestor
// (spec §4.7: "stop at tid <= 1, treated as outside sandbox").
type ThreadNotInSandbox struct {
	Tid ids.AbsTid
}

func (e *ThreadNotInSandbox) Error() string {
	return fmt.Sprintf("registry: tid %s lies outside the sandboxed tree", e.Tid)
}

// Kernel is everything the registry needs to query from the real kernel
// in order to reconcile an unseen AbsTid (spec §4.7 "registration
// protocol" and "lazy sync rationale"). ProcKernel is the production
// implementation (it reads /proc/<tid>/status and compares the
// /proc/<tid>/fd and /proc/<tid>/root inodes); tests use a fake.
type Kernel interface {
	// ParentTid returns tid's parent as reported by the kernel.
	ParentTid(tid ids.AbsTid) (ids.AbsTid, error)
	// Tgid returns tid's thread-group id as reported by the kernel.
	Tgid(tid ids.AbsTid) (ids.AbsTgid, error)
	// NsTidChain returns tid's namespace TID chain, outermost first.
	NsTidChain(tid ids.AbsTid) ([]ids.NsTid, error)
	// SharesFdTable reports whether tid was created with CLONE_FILES
	// relative to parent.
	SharesFdTable(tid, parent ids.AbsTid) (bool, error)
	// SharesFsInfo reports whether tid was created with CLONE_FS
	// relative to parent.
	SharesFsInfo(tid, parent ids.AbsTid) (bool, error)
}

// Registry owns the flat AbsTid -> Thread map plus the mutex that
// serialises graph-topology mutations (spec §4.9: "the registry mutex
// serialises the graph topology changes against themselves").
type Registry struct {
	kernel Kernel

	mu      sync.Mutex
	threads map[ids.AbsTid]*procgraph.Thread
}

// New returns an empty registry backed by kernel for lazy sync.
func New(kernel Kernel) *Registry {
	return &Registry{kernel: kernel, threads: make(map[ids.AbsTid]*procgraph.Thread)}
}

// InitRoot installs the sandbox's root thread directly, bypassing sync
// (spec §4.1: "a root Thread is created on sandbox entry").
func (r *Registry) InitRoot(tid ids.AbsTid) *procgraph.Thread {
	root := procgraph.NewSandboxRoot(tid)
	r.mu.Lock()
	r.threads[tid] = root
	r.mu.Unlock()
	return root
}

// Get returns the Thread for tid, triggering a sync pass and retrying
// once if it is not yet known (spec §4.8).
func (r *Registry) Get(tid ids.AbsTid) (*procgraph.Thread, error) {
	if t, ok := r.lookup(tid); ok {
		return t, nil
	}
	if err := r.sync(tid); err != nil {
		return nil, err
	}
	if t, ok := r.lookup(tid); ok {
		return t, nil
	}
	return nil, &ThreadNotRegistered{Tid: tid}
}

// GetNamespaced looks up nsTgid inside caller's own namespace, triggering
// a sync pass on miss, and requires the resolved thread to be a
// thread-group leader (spec §4.8: "the result must additionally be a
// thread-group leader").
func (r *Registry) GetNamespaced(caller *procgraph.Thread, nsTgid ids.NsTid) (*procgraph.Thread, error) {
	t, ok := caller.Namespace().Lookup(nsTgid)
	if !ok {
		if err := r.sync(ids.AbsTid(nsTgid)); err == nil {
			t, ok = caller.Namespace().Lookup(nsTgid)
		}
	}
	if !ok || !t.IsGroupLeader() {
		return nil, &ThreadNotRegistered{Tid: ids.AbsTid(nsTgid)}
	}
	return t, nil
}

func (r *Registry) lookup(tid ids.AbsTid) (*procgraph.Thread, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.threads[tid]
	return t, ok
}

// sync reconciles tid (and, recursively, any unregistered ancestors)
// against the real kernel (spec §4.7 steps 1-4).
func (r *Registry) sync(tid ids.AbsTid) error {
	if _, ok := r.lookup(tid); ok {
		return nil
	}
	if tid <= 1 {
		return &ThreadNotInSandbox{Tid: tid}
	}

	parentTid, err := r.kernel.ParentTid(tid)
	if err != nil {
		return err
	}
	parent, ok := r.lookup(parentTid)
	if !ok {
		if err := r.sync(parentTid); err != nil {
			return err
		}
		parent, ok = r.lookup(parentTid)
		if !ok {
			return &ThreadNotInSandbox{Tid: parentTid}
		}
	}

	nsChain, err := r.kernel.NsTidChain(tid)
	if err != nil {
		return err
	}
	flags, err := r.inferFlags(tid, parentTid, parent, nsChain)
	if err != nil {
		return err
	}

	child, err := procgraph.Attach(parent, procgraph.AttachParams{
		Tid:     tid,
		Flags:   flags,
		NsChain: nsChain,
	})
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.threads[tid] = child
	r.mu.Unlock()
	return nil
}

// inferFlags reconstructs the clone flags that must have applied to
// produce tid's observed kernel state, by comparing it against its
// parent (spec §4.7 step 4: "detect the clone flags by comparing
// namespaces/groups/tables of parent and child").
func (r *Registry) inferFlags(tid, parentTid ids.AbsTid, parent *procgraph.Thread, nsChain []ids.NsTid) (procgraph.CloneFlag, error) {
	var flags procgraph.CloneFlag

	if len(nsChain) == parent.Namespace().Depth() {
		// Same depth: shares the parent's namespace (no CLONE_NEWPID).
	} else if len(nsChain) == parent.Namespace().Depth()+1 {
		flags |= procgraph.CloneNewPID
	}

	tgid, err := r.kernel.Tgid(tid)
	if err != nil {
		return 0, err
	}
	if ids.AbsTid(tgid) != tid {
		flags |= procgraph.CloneThread
	}

	sharesFiles, err := r.kernel.SharesFdTable(tid, parentTid)
	if err != nil {
		return 0, err
	}
	if sharesFiles {
		flags |= procgraph.CloneFiles
	}

	sharesFs, err := r.kernel.SharesFsInfo(tid, parentTid)
	if err != nil {
		return 0, err
	}
	if sharesFs {
		flags |= procgraph.CloneFS
	}

	return flags, nil
}

// Exit removes t from the registry (and, if it is a namespace root,
// every thread sharing its namespace), releasing each removed thread's
// container references (spec §4.7, §6 exit/exit_group).
func (r *Registry) Exit(t *procgraph.Thread) {
	removed := procgraph.Exit(t, r.snapshot)

	r.mu.Lock()
	for _, rt := range removed {
		delete(r.threads, rt.Tid)
	}
	r.mu.Unlock()

	for _, rt := range removed {
		procgraph.Release(rt)
	}
}

func (r *Registry) snapshot() []*procgraph.Thread {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*procgraph.Thread, 0, len(r.threads))
	for _, t := range r.threads {
		out = append(out, t)
	}
	return out
}
