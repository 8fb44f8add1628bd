package fdtable

import (
	"testing"

	"github.com/sandboxrun/bvisor/internal/ids"
	"github.com/sandboxrun/bvisor/internal/vfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	closed bool
}

func (f *fakeBackend) Read(p []byte) (int, error)  { return 0, nil }
func (f *fakeBackend) Write(p []byte) (int, error) { return len(p), nil }
func (f *fakeBackend) Lseek(off int64, w vfile.Whence) (int64, error) {
	return off, nil
}
func (f *fakeBackend) Statx() (vfile.Statx, error) { return vfile.Statx{}, nil }
func (f *fakeBackend) Close() error {
	f.closed = true
	return nil
}
func (f *fakeBackend) Discriminator() string { return "fake" }

func newFile() (*vfile.File, *fakeBackend) {
	b := &fakeBackend{}
	return vfile.New(b, "/fake"), b
}

func TestInsertStartsAtFirstFreeVfdAndIsMonotonic(t *testing.T) {
	tbl := New()
	f1, _ := newFile()
	v1 := tbl.Insert(f1, false)
	assert.EqualValues(t, firstFreeVFD, v1)

	f2, _ := newFile()
	v2 := tbl.Insert(f2, false)
	assert.Equal(t, v1+1, v2)
}

func TestInsertNeverReusesAFreedSlot(t *testing.T) {
	tbl := New()
	f1, _ := newFile()
	f2, _ := newFile()
	v1 := tbl.Insert(f1, false)
	v2 := tbl.Insert(f2, false)

	assert.True(t, tbl.Remove(v1))

	f3, _ := newFile()
	v3 := tbl.Insert(f3, false)
	assert.Greater(t, v3, v2, "freed slot must not be reused; vfds are monotonic")
}

func TestInsertAtStdioSlotsAndRejectsCollision(t *testing.T) {
	tbl := New()
	f0, _ := newFile()
	require.NoError(t, tbl.InsertAt(f0, ids.VFD(0), false))

	f0b, _ := newFile()
	err := tbl.InsertAt(f0b, ids.VFD(0), false)
	var inUse *VfdInUse
	assert.ErrorAs(t, err, &inUse)
}

func TestGetRefReturnsAdditionalReferenceCallerMustUnref(t *testing.T) {
	tbl := New()
	f, _ := newFile()
	vfd := tbl.Insert(f, false)

	got, err := tbl.GetRef(vfd)
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.RefCount())
	require.NoError(t, got.Unref())
	assert.EqualValues(t, 1, f.RefCount())
}

func TestGetRefUnknownVfdIsBadFileDescriptor(t *testing.T) {
	tbl := New()
	_, err := tbl.GetRef(ids.VFD(99))
	var bad *BadFileDescriptor
	assert.ErrorAs(t, err, &bad)
}

func TestRemoveClosesBackendAtZeroRefcount(t *testing.T) {
	tbl := New()
	f, backend := newFile()
	vfd := tbl.Insert(f, false)

	assert.True(t, tbl.Remove(vfd))
	assert.True(t, backend.closed)
}

func TestDupCreatesIndependentVfdSharingFile(t *testing.T) {
	tbl := New()
	f, backend := newFile()
	vfd := tbl.Insert(f, false)

	dupVfd, err := tbl.Dup(vfd)
	require.NoError(t, err)
	assert.NotEqual(t, vfd, dupVfd)

	tbl.Remove(vfd)
	assert.False(t, backend.closed, "backend stays open while dup'd vfd holds a ref")

	tbl.Remove(dupVfd)
	assert.True(t, backend.closed)
}

func TestDupAtClosesPriorOccupantOfTarget(t *testing.T) {
	tbl := New()
	src, _ := newFile()
	svfd := tbl.Insert(src, false)

	victim, victimBackend := newFile()
	vvfd := tbl.Insert(victim, false)

	require.NoError(t, tbl.DupAt(svfd, vvfd, false))
	assert.True(t, victimBackend.closed)

	e, err := tbl.GetEntry(vvfd)
	require.NoError(t, err)
	assert.Equal(t, src, e.File)
}

func TestDupAtSameFdIsNoopPerPosix(t *testing.T) {
	tbl := New()
	f, backend := newFile()
	vfd := tbl.Insert(f, false)

	require.NoError(t, tbl.DupAt(vfd, vfd, false))
	assert.False(t, backend.closed)
	assert.EqualValues(t, 1, f.RefCount())
}

func TestCloneProducesIndependentTableSharingFiles(t *testing.T) {
	tbl := New()
	f, backend := newFile()
	vfd := tbl.Insert(f, false)

	clone := tbl.Clone()

	// Closing in the clone must not affect the original (spec §8 scenario
	// 13: clone without CLONE_FILES is isolated).
	assert.True(t, clone.Remove(vfd))
	assert.False(t, backend.closed)

	e, err := tbl.GetEntry(vfd)
	require.NoError(t, err)
	assert.EqualValues(t, 1, e.File.RefCount())
}

func TestRefUnrefSharesSameTableAcrossCloneFiles(t *testing.T) {
	tbl := New()
	f, backend := newFile()
	vfd := tbl.Insert(f, false)

	tbl.Ref() // second thread shares this table via CLONE_FILES
	tbl.Unref()
	assert.False(t, backend.closed, "one unref of two must not tear down shared entries")

	tbl.Unref()
	_, err := tbl.GetEntry(vfd)
	assert.Error(t, err, "after the last unref the table is torn down")
	assert.True(t, backend.closed)
}

func TestCloseOnExecRemovesOnlyFlaggedEntries(t *testing.T) {
	tbl := New()
	keep, keepBackend := newFile()
	kvfd := tbl.Insert(keep, false)
	cloex, cloexBackend := newFile()
	cvfd := tbl.Insert(cloex, true)

	tbl.CloseOnExec()

	assert.False(t, keepBackend.closed)
	assert.True(t, cloexBackend.closed)

	_, err := tbl.GetEntry(kvfd)
	assert.NoError(t, err)
	_, err = tbl.GetEntry(cvfd)
	assert.Error(t, err)
}
