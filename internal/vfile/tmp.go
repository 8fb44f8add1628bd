package vfile

import (
	"github.com/sandboxrun/bvisor/internal/ids"
	"golang.org/x/sys/unix"
)

// Tmp is a file in the per-sandbox overlay /tmp directory (spec §3, §4.5).
type Tmp struct {
	fd ids.SupervisorFD
}

// OpenTmp opens resolvedPath (already rewritten under the overlay's tmp/
// subtree by overlay.Root.ResolveTmp) with the real kernel.
func OpenTmp(resolvedPath string, flags int, mode uint32) (*Tmp, error) {
	fd, err := unix.Open(resolvedPath, flags, mode)
	if err != nil {
		return nil, err
	}
	return &Tmp{fd: ids.SupervisorFD(fd)}, nil
}

func (t *Tmp) Read(buf []byte) (int, error) {
	n, err := unix.Read(int(t.fd), buf)
	return n, err
}

func (t *Tmp) Write(data []byte) (int, error) {
	n, err := unix.Write(int(t.fd), data)
	return n, err
}

func (t *Tmp) Lseek(off int64, whence Whence) (int64, error) {
	n, err := unix.Seek(int(t.fd), off, int(whence))
	return n, err
}

func (t *Tmp) Statx() (Statx, error) {
	var st unix.Stat_t
	if err := unix.Fstat(int(t.fd), &st); err != nil {
		return Statx{}, err
	}
	return Statx{
		Mask:      StatxMode | StatxNlink | StatxSize,
		Mode:      uint16(st.Mode),
		Nlink:     uint32(st.Nlink),
		Size:      uint64(st.Size),
		Blksize:   uint32(st.Blksize),
		DevMajor:  uint32(unix.Major(st.Dev)),
		DevMinor:  uint32(unix.Minor(st.Dev)),
		RdevMajor: uint32(unix.Major(st.Rdev)),
		RdevMinor: uint32(unix.Minor(st.Rdev)),
	}, nil
}

func (t *Tmp) Close() error { return unix.Close(int(t.fd)) }

func (t *Tmp) Discriminator() string { return "tmp" }
