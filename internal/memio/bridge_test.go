package memio

import (
	"testing"
	"unsafe"

	"github.com/sandboxrun/bvisor/internal/ids"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unsafePointer(b []byte) unsafe.Pointer { return unsafe.Pointer(&b[0]) }

func TestLocalBridgeRoundTrip(t *testing.T) {
	var b LocalBridge
	buf := make([]byte, 16)
	addr := uintptr(unsafePointer(buf))

	require.NoError(t, b.WriteSlice(ids.AbsTid(1), addr, []byte("hello world!")))

	out := make([]byte, 12)
	require.NoError(t, b.ReadSlice(ids.AbsTid(1), addr, out))
	assert.Equal(t, "hello world!", string(out))
}

func TestReadCStringStopsAtNUL(t *testing.T) {
	var b LocalBridge
	buf := make([]byte, 32)
	copy(buf, "abc\x00garbage-after-nul")
	addr := uintptr(unsafePointer(buf))

	s, err := ReadCString(b, ids.AbsTid(1), addr, 4096)
	require.NoError(t, err)
	assert.Equal(t, "abc", s)
}

func TestReadWriteUint64(t *testing.T) {
	var b LocalBridge
	buf := make([]byte, 8)
	addr := uintptr(unsafePointer(buf))

	require.NoError(t, WriteUint64(b, ids.AbsTid(1), addr, 0xdeadbeefcafe))
	v, err := ReadUint64(b, ids.AbsTid(1), addr)
	require.NoError(t, err)
	assert.EqualValues(t, 0xdeadbeefcafe, v)
}
