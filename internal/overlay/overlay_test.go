package overlay

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCreatesCowAndTmpDirs(t *testing.T) {
	tmpRoot := t.TempDir()
	r, err := NewRoot(tmpRoot)
	require.NoError(t, err)

	assert.DirExists(t, filepath.Join(tmpRoot, "sb", r.UID(), "cow"))
	assert.DirExists(t, filepath.Join(tmpRoot, "sb", r.UID(), "tmp"))
}

func TestTwoRootsGetDistinctUIDs(t *testing.T) {
	tmpRoot := t.TempDir()
	r1, err := NewRoot(tmpRoot)
	require.NoError(t, err)
	r2, err := NewRoot(tmpRoot)
	require.NoError(t, err)

	assert.NotEqual(t, r1.UID(), r2.UID())
}

func TestResolveTmpRejectsNonTmpPaths(t *testing.T) {
	tmpRoot := t.TempDir()
	r, err := NewRoot(tmpRoot)
	require.NoError(t, err)

	_, err = r.ResolveTmp("/etc/passwd")
	require.Error(t, err)
	var ip *InvalidPath
	assert.ErrorAs(t, err, &ip)

	p, err := r.ResolveTmp("/tmp/e2e.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tmpRoot, "sb", r.UID(), "tmp", "e2e.txt"), p)
}

func TestMaterializeCowIsOncePerSandbox(t *testing.T) {
	tmpRoot := t.TempDir()
	host := t.TempDir()
	hostFile := filepath.Join(host, "shared.txt")
	require.NoError(t, os.WriteFile(hostFile, []byte("original"), 0o644))

	r, err := NewRoot(tmpRoot)
	require.NoError(t, err)

	assert.False(t, r.CowExists(hostFile))
	require.NoError(t, r.MaterializeCow(hostFile))
	assert.True(t, r.CowExists(hostFile))

	// Mutate the overlay copy directly, then re-materialize: since it
	// already exists, the host original must not be re-copied over it.
	cowPath := r.ResolveCow(hostFile)
	require.NoError(t, os.WriteFile(cowPath, []byte("mutated"), 0o644))
	require.NoError(t, r.MaterializeCow(hostFile))

	b, err := os.ReadFile(cowPath)
	require.NoError(t, err)
	assert.Equal(t, "mutated", string(b))

	hostBytes, err := os.ReadFile(hostFile)
	require.NoError(t, err)
	assert.Equal(t, "original", string(hostBytes), "host file must never be touched by materialisation")
}

func TestTwoSandboxesGetIndependentCowCopies(t *testing.T) {
	tmpRoot := t.TempDir()
	host := t.TempDir()
	hostFile := filepath.Join(host, "shared.txt")
	require.NoError(t, os.WriteFile(hostFile, []byte("original"), 0o644))

	r1, err := NewRoot(tmpRoot)
	require.NoError(t, err)
	r2, err := NewRoot(tmpRoot)
	require.NoError(t, err)

	require.NoError(t, r1.MaterializeCow(hostFile))
	require.NoError(t, r2.MaterializeCow(hostFile))

	require.NoError(t, os.WriteFile(r1.ResolveCow(hostFile), []byte("sandbox-1-write"), 0o644))

	b2, err := os.ReadFile(r2.ResolveCow(hostFile))
	require.NoError(t, err)
	assert.Equal(t, "original", string(b2), "sandbox 2's overlay must be unaffected by sandbox 1's write")
}
