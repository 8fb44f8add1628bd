package registry

import (
	"testing"

	"github.com/sandboxrun/bvisor/internal/ids"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeKernel models a small process tree for sync tests without touching
// /proc.
type fakeKernel struct {
	parent      map[ids.AbsTid]ids.AbsTid
	tgid        map[ids.AbsTid]ids.AbsTgid
	nsChain     map[ids.AbsTid][]ids.NsTid
	sharesFiles map[ids.AbsTid]bool
	sharesFs    map[ids.AbsTid]bool
}

func newFakeKernel() *fakeKernel {
	return &fakeKernel{
		parent:      map[ids.AbsTid]ids.AbsTid{},
		tgid:        map[ids.AbsTid]ids.AbsTgid{},
		nsChain:     map[ids.AbsTid][]ids.NsTid{},
		sharesFiles: map[ids.AbsTid]bool{},
		sharesFs:    map[ids.AbsTid]bool{},
	}
}

func (k *fakeKernel) ParentTid(tid ids.AbsTid) (ids.AbsTid, error) { return k.parent[tid], nil }
func (k *fakeKernel) Tgid(tid ids.AbsTid) (ids.AbsTgid, error)     { return k.tgid[tid], nil }
func (k *fakeKernel) NsTidChain(tid ids.AbsTid) ([]ids.NsTid, error) {
	return k.nsChain[tid], nil
}
func (k *fakeKernel) SharesFdTable(tid, parent ids.AbsTid) (bool, error) {
	return k.sharesFiles[tid], nil
}
func (k *fakeKernel) SharesFsInfo(tid, parent ids.AbsTid) (bool, error) {
	return k.sharesFs[tid], nil
}

func TestGetSyncsUnseenThreadFromKernel(t *testing.T) {
	k := newFakeKernel()
	r := New(k)
	root := r.InitRoot(ids.AbsTid(100))
	_ = root

	k.parent[200] = 100
	k.tgid[200] = 200 // new group: CLONE_THREAD absent
	k.nsChain[200] = []ids.NsTid{2}
	k.sharesFiles[200] = true
	k.sharesFs[200] = true

	child, err := r.Get(ids.AbsTid(200))
	require.NoError(t, err)
	assert.True(t, child.IsGroupLeader())
	assert.Equal(t, root.FdTable(), child.FdTable(), "CLONE_FILES inferred from kernel state")
}

func TestGetRecursesThroughUnregisteredAncestors(t *testing.T) {
	k := newFakeKernel()
	r := New(k)
	r.InitRoot(ids.AbsTid(100))

	k.parent[200] = 100
	k.tgid[200] = 200
	k.nsChain[200] = []ids.NsTid{2}

	k.parent[300] = 200
	k.tgid[300] = 200 // CLONE_THREAD: joins 200's group
	k.nsChain[300] = []ids.NsTid{3}

	grandchild, err := r.Get(ids.AbsTid(300))
	require.NoError(t, err)
	assert.False(t, grandchild.IsGroupLeader())

	// The intermediate ancestor must now also be registered.
	mid, err := r.Get(ids.AbsTid(200))
	require.NoError(t, err)
	assert.Equal(t, mid.ThreadGroup(), grandchild.ThreadGroup())
}

func TestGetStopsAtTidOneWithThreadNotInSandbox(t *testing.T) {
	k := newFakeKernel()
	r := New(k)
	r.InitRoot(ids.AbsTid(100))

	k.parent[200] = 1 // parent is PID 1: outside the sandbox
	k.tgid[200] = 200
	k.nsChain[200] = []ids.NsTid{2}

	_, err := r.Get(ids.AbsTid(200))
	var notInSandbox *ThreadNotInSandbox
	assert.ErrorAs(t, err, &notInSandbox)
}

func TestGetUnknownTidWithNoKernelRecordFails(t *testing.T) {
	k := newFakeKernel()
	r := New(k)
	r.InitRoot(ids.AbsTid(100))

	// No kernel bookkeeping at all for 999: ParentTid falls back to the
	// zero value (0), which is <= 1 and fails ThreadNotInSandbox further
	// up the chain, which Get surfaces as-is.
	_, err := r.Get(ids.AbsTid(999))
	assert.Error(t, err)
}

func TestExitNamespaceRootRemovesWholeNamespaceFromRegistry(t *testing.T) {
	k := newFakeKernel()
	r := New(k)
	root := r.InitRoot(ids.AbsTid(100))

	k.parent[200] = 100
	k.tgid[200] = 200
	k.nsChain[200] = []ids.NsTid{2, 1}

	nsRoot, err := r.Get(ids.AbsTid(200))
	require.NoError(t, err)
	assert.True(t, nsRoot.IsNamespaceRoot())

	r.Exit(nsRoot)
	// The kernel reaps the exited thread, so a later sync finds no record.
	delete(k.parent, 200)
	delete(k.tgid, 200)
	delete(k.nsChain, 200)
	_, err = r.Get(ids.AbsTid(200))
	assert.Error(t, err)
	_ = root
}
