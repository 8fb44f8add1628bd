package procgraph

import (
	"github.com/sandboxrun/bvisor/internal/fdtable"
	"github.com/sandboxrun/bvisor/internal/ids"
)

// Thread is one kernel-visible guest thread (spec §3, §4.1, §4.7).
// Parent is a non-owning raw pointer per the cycle-breaking rule in
// spec §9: members hold strong references to their containers, but a
// Thread holds no reference on its parent Thread (only on its parent
// Namespace/ThreadGroup, transitively, via those containers' own parent
// refs), so threads are collected while descendants still live.
type Thread struct {
	Tid ids.AbsTid

	threadGroup *ThreadGroup
	namespace   *Namespace
	fdTable     *fdtable.Table
	fsInfo      *FsInfo
	parent      *Thread

	// nsTids maps every Namespace this thread is registered in (its own
	// namespace plus every ancestor) to the NsTid it holds there.
	nsTids map[*Namespace]ids.NsTid
}

func (t *Thread) ThreadGroup() *ThreadGroup   { return t.threadGroup }
func (t *Thread) Namespace() *Namespace       { return t.namespace }
func (t *Thread) FdTable() *fdtable.Table     { return t.fdTable }
func (t *Thread) FsInfo() *FsInfo             { return t.fsInfo }
func (t *Thread) Parent() *Thread             { return t.parent }

// Tgid reads the thread's tgid through its ThreadGroup (spec §4.1:
// "a thread's tgid is read through its ThreadGroup").
func (t *Thread) Tgid() ids.AbsTgid { return t.threadGroup.Tgid }

// IsGroupLeader reports tid == tgid.
func (t *Thread) IsGroupLeader() bool { return ids.AbsTgid(t.Tid) == t.threadGroup.Tgid }

// IsNamespaceRoot reports whether t has no parent, or its parent lives
// in a different namespace (spec §4.1).
func (t *Thread) IsNamespaceRoot() bool {
	return t.parent == nil || t.parent.namespace != t.namespace
}

// NsTid returns t's identifier as observed from ns, if t is registered
// there.
func (t *Thread) NsTid(ns *Namespace) (ids.NsTid, bool) {
	nstid, ok := t.nsTids[ns]
	return nstid, ok
}

// OwnNsTid returns t's identifier in its own (innermost) namespace —
// what /proc/self reports for t.
func (t *Thread) OwnNsTid() ids.NsTid {
	return t.nsTids[t.namespace]
}

// CanSee implements spec §4.7's visibility rule: A.can_see(B) iff B is a
// member of A's namespace.
func (a *Thread) CanSee(b *Thread) bool {
	_, ok := b.nsTids[a.namespace]
	return ok
}

// NewSandboxRoot creates the first thread of a sandbox: fresh
// ThreadGroup, Namespace, FdTable, FsInfo (spec §4.1 "a root Thread is
// created on sandbox entry").
func NewSandboxRoot(tid ids.AbsTid) *Thread {
	ns := NewRootNamespace()
	tg := NewThreadGroup(ids.AbsTgid(tid), nil)
	t := &Thread{
		Tid:         tid,
		threadGroup: tg,
		namespace:   ns,
		fdTable:     fdtable.New(),
		fsInfo:      NewFsInfo("/", "/", 0o022),
		nsTids:      map[*Namespace]ids.NsTid{ns: 1},
	}
	ns.register(1, t)
	tg.register(t)
	return t
}

// AttachParams carries the per-clone decisions spec §4.7's table maps
// each CLONE_* flag onto.
type AttachParams struct {
	Tid     ids.AbsTid
	Flags   CloneFlag
	NsChain []ids.NsTid // outermost namespace first, child's own namespace last
}

// Attach links a new child Thread under parent according to the clone
// flags in p, per the table in spec §4.7. Returns UnsupportedCloneFlag
// if an unsupported flag is present.
func Attach(parent *Thread, p AttachParams) (*Thread, error) {
	if err := CheckSupported(p.Flags); err != nil {
		return nil, err
	}

	var ns *Namespace
	if p.Flags.Has(CloneNewPID) {
		ns = NewChildNamespace(parent.namespace)
	} else {
		parent.namespace.Ref()
		ns = parent.namespace
	}

	var tg *ThreadGroup
	if p.Flags.Has(CloneThread) {
		parent.threadGroup.Ref()
		tg = parent.threadGroup
	} else {
		tg = NewThreadGroup(ids.AbsTgid(p.Tid), parent.threadGroup)
	}

	var fdt *fdtable.Table
	if p.Flags.Has(CloneFiles) {
		parent.fdTable.Ref()
		fdt = parent.fdTable
	} else {
		fdt = parent.fdTable.Clone()
	}

	var fs *FsInfo
	if p.Flags.Has(CloneFS) {
		parent.fsInfo.Ref()
		fs = parent.fsInfo
	} else {
		fs = parent.fsInfo.Clone()
	}

	effectiveParent := parent
	if p.Flags.Has(CloneParent) {
		effectiveParent = parent.parent
	}

	child := &Thread{
		Tid:         p.Tid,
		threadGroup: tg,
		namespace:   ns,
		fdTable:     fdt,
		fsInfo:      fs,
		parent:      effectiveParent,
		nsTids:      make(map[*Namespace]ids.NsTid, ns.depth),
	}

	// Assign nsTids by walking ns's ancestor chain against NsChain,
	// outermost-first (spec §4.7 registration protocol).
	n := ns
	for i := ns.depth - 1; i >= 0; i-- {
		child.nsTids[n] = p.NsChain[i]
		n.register(p.NsChain[i], child)
		n = n.parent
	}

	tg.register(child)
	return child, nil
}

// Exit implements spec §4.7's destruction rule: if t is a namespace
// root, every thread sharing its namespace is collected and returned for
// the caller to deinitialise (cascades to descendant-namespace roots
// automatically, since a sub-namespace's root holds a ref on its parent
// namespace, transitively chaining the walk). Otherwise t's direct
// children are reparented to their namespace's root and only t is
// removed. The caller is responsible for calling Release on every
// returned thread exactly once.
func Exit(t *Thread, allThreads func() []*Thread) []*Thread {
	if t.IsNamespaceRoot() {
		var collected []*Thread
		for _, other := range allThreads() {
			if other.namespace == t.namespace {
				collected = append(collected, other)
			}
		}
		for _, other := range collected {
			deregister(other)
		}
		return collected
	}

	root, ok := t.namespace.Lookup(1)
	if ok {
		for _, child := range allThreads() {
			if child.parent == t {
				child.parent = root
			}
		}
	}
	deregister(t)
	return []*Thread{t}
}

func deregister(t *Thread) {
	for ns, nstid := range t.nsTids {
		ns.unregister(nstid)
	}
	t.threadGroup.unregister(t.Tid)
}

// Release drops t's references on its ThreadGroup, Namespace, FdTable
// and FsInfo, called once per thread returned by Exit.
func Release(t *Thread) {
	t.threadGroup.Unref()
	t.namespace.Unref()
	t.fdTable.Unref()
	t.fsInfo.Unref()
}
