package procgraph

import (
	"sync"
	"sync/atomic"

	"github.com/sandboxrun/bvisor/internal/ids"
)

// Namespace is a node in the tree of PID namespaces (spec §3, §4.7).
// Containers hold non-owning pointers to their members; members hold a
// strong reference to their container's parent chain, so a Namespace
// holds one ref on its own parent but none on the threads in its map.
type Namespace struct {
	parent *Namespace
	depth  int // 1 for the sandbox root namespace

	refs atomic.Int64

	mu      sync.Mutex
	threads map[ids.NsTid]*Thread
}

// NewRootNamespace returns the sandbox's outermost namespace, at
// refcount 1 and depth 1.
func NewRootNamespace() *Namespace {
	n := &Namespace{depth: 1, threads: make(map[ids.NsTid]*Thread)}
	n.refs.Store(1)
	return n
}

// NewChildNamespace returns a fresh namespace one level below parent,
// holding a ref on parent (spec §4.7: "a Namespace holds one ref on its
// parent").
func NewChildNamespace(parent *Namespace) *Namespace {
	parent.Ref()
	n := &Namespace{parent: parent, depth: parent.depth + 1, threads: make(map[ids.NsTid]*Thread)}
	n.refs.Store(1)
	return n
}

func (n *Namespace) Parent() *Namespace { return n.parent }
func (n *Namespace) Depth() int         { return n.depth }

func (n *Namespace) Ref() { n.refs.Add(1) }

// Unref releases a reference; at zero it releases the reference the
// Namespace itself holds on its parent, recursively tearing down an
// entire chain of now-unreferenced ancestor namespaces.
func (n *Namespace) Unref() {
	if n.refs.Add(-1) != 0 {
		return
	}
	if n.parent != nil {
		n.parent.Unref()
	}
}

// register inserts t into this namespace's map at nstid. Non-owning: does
// not take a reference on t.
func (n *Namespace) register(nstid ids.NsTid, t *Thread) {
	n.mu.Lock()
	n.threads[nstid] = t
	n.mu.Unlock()
}

func (n *Namespace) unregister(nstid ids.NsTid) {
	n.mu.Lock()
	delete(n.threads, nstid)
	n.mu.Unlock()
}

// Lookup returns the thread registered at nstid in this namespace, for
// getpid/kill-style translations.
func (n *Namespace) Lookup(nstid ids.NsTid) (*Thread, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	t, ok := n.threads[nstid]
	return t, ok
}

// Members returns every thread currently visible at this namespace's
// level, used by Exit's namespace-root cascade.
func (n *Namespace) Members() []*Thread {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*Thread, 0, len(n.threads))
	for _, t := range n.threads {
		out = append(out, t)
	}
	return out
}
