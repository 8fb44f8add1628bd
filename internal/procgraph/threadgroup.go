package procgraph

import (
	"sync"
	"sync/atomic"

	"github.com/sandboxrun/bvisor/internal/ids"
)

// ThreadGroup is the refcounted aggregate of threads sharing an address
// space (spec §3, §4.7) — one POSIX "process". The member whose Tid
// equals Tgid is the leader.
type ThreadGroup struct {
	Tgid   ids.AbsTgid
	parent *ThreadGroup

	refs atomic.Int64

	mu      sync.Mutex
	members map[ids.AbsTid]*Thread
}

// NewThreadGroup returns a fresh group led by tgid, at refcount 1.
func NewThreadGroup(tgid ids.AbsTgid, parent *ThreadGroup) *ThreadGroup {
	if parent != nil {
		parent.Ref()
	}
	g := &ThreadGroup{Tgid: tgid, parent: parent, members: make(map[ids.AbsTid]*Thread)}
	g.refs.Store(1)
	return g
}

func (g *ThreadGroup) Parent() *ThreadGroup { return g.parent }

func (g *ThreadGroup) Ref() { g.refs.Add(1) }

func (g *ThreadGroup) Unref() {
	if g.refs.Add(-1) != 0 {
		return
	}
	if g.parent != nil {
		g.parent.Unref()
	}
}

func (g *ThreadGroup) register(t *Thread) {
	g.mu.Lock()
	g.members[t.Tid] = t
	g.mu.Unlock()
}

func (g *ThreadGroup) unregister(tid ids.AbsTid) {
	g.mu.Lock()
	delete(g.members, tid)
	g.mu.Unlock()
}

// Leader returns the group's leader thread (Tid == Tgid), if still
// registered.
func (g *ThreadGroup) Leader() (*Thread, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.members[ids.AbsTid(g.Tgid)]
	return t, ok
}

func (g *ThreadGroup) Members() []*Thread {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*Thread, 0, len(g.members))
	for _, t := range g.members {
		out = append(out, t)
	}
	return out
}
