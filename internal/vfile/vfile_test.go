package vfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcReadWritesExactBytes(t *testing.T) {
	// Scenario 1 from spec §8: /proc/self read returns "100\n" exactly.
	p := NewProc("100\n")
	buf := make([]byte, 64)
	n, err := p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "100\n", string(buf[:n]))

	// Second read is EOF (n=0, nil error per spec §4.1/§4.5 "0 means EOF").
	n2, err := p.Read(buf)
	require.NoError(t, err)
	assert.Zero(t, n2)
}

func TestProcWriteIsNotPermitted(t *testing.T) {
	p := NewProc("1\n")
	_, err := p.Write([]byte("x"))
	var np *NotPermitted
	assert.ErrorAs(t, err, &np)
}

func TestProcStatxReportsFixedAttributes(t *testing.T) {
	p := NewProc("100\n")
	st, err := p.Statx()
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.Nlink)
	assert.EqualValues(t, 4, st.Size)
	assert.EqualValues(t, 4096, st.Blksize)
	assert.EqualValues(t, sIFREG|0o444, st.Mode)
}

func TestMakedevRecombinesMajorMinor(t *testing.T) {
	// Round-trip law from spec §8: makedev must match the literal formula
	// in spec §4.5.
	dev := Makedev(5, 3)
	assert.EqualValues(t, (uint64(3)&0xff)|(uint64(5)&0xfff)<<8, dev)
}

func TestStatxToStatHonoursMaskBits(t *testing.T) {
	s := Statx{
		Mask:     StatxMode | StatxSize,
		Mode:     0o644,
		Size:     123,
		Nlink:    7, // present but mask bit not set: must not appear in Stat
		DevMajor: 8, DevMinor: 1,
	}
	st := StatxToStat(s)
	assert.EqualValues(t, 0o644, st.Mode)
	assert.EqualValues(t, 123, st.Size)
	assert.Zero(t, st.Nlink, "Nlink mask bit unset: field must stay zero")
	assert.Equal(t, Makedev(8, 1), st.Dev)
}

type fakeMaterializer struct {
	root      string
	materialized map[string]bool
}

func newFakeMaterializer(root string) *fakeMaterializer {
	return &fakeMaterializer{root: root, materialized: map[string]bool{}}
}

func (f *fakeMaterializer) ResolveCow(guestPath string) string {
	return filepath.Join(f.root, guestPath)
}

func (f *fakeMaterializer) CowExists(guestPath string) bool {
	return f.materialized[guestPath]
}

func (f *fakeMaterializer) MaterializeCow(guestPath string) error {
	dst := f.ResolveCow(guestPath)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	src, err := os.ReadFile(guestPath)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, src, 0o644); err != nil {
		return err
	}
	f.materialized[guestPath] = true
	return nil
}

func TestOpenCowReadonlyIsReadthroughAndRejectsWrite(t *testing.T) {
	host := t.TempDir()
	hostFile := filepath.Join(host, "f.txt")
	require.NoError(t, os.WriteFile(hostFile, []byte("data"), 0o644))

	m := newFakeMaterializer(t.TempDir())

	c, err := OpenCow(m, hostFile, os.O_RDONLY, 0)
	require.NoError(t, err)
	defer c.Close()

	assert.False(t, c.IsWritecopy())
	_, err = c.Write([]byte("x"))
	var rofs *ReadOnlyFileSystem
	assert.ErrorAs(t, err, &rofs)
}

func TestOpenCowWriteIntentMaterializesOnce(t *testing.T) {
	host := t.TempDir()
	hostFile := filepath.Join(host, "f.txt")
	require.NoError(t, os.WriteFile(hostFile, []byte("data"), 0o644))

	m := newFakeMaterializer(t.TempDir())

	c1, err := OpenCow(m, hostFile, os.O_RDWR, 0)
	require.NoError(t, err)
	assert.True(t, c1.IsWritecopy())
	c1.Close()

	// Even a read-only open after materialisation stays Writecopy.
	c2, err := OpenCow(m, hostFile, os.O_RDONLY, 0)
	require.NoError(t, err)
	assert.True(t, c2.IsWritecopy())
	c2.Close()
}
