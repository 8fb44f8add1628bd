package vfile

import (
	"github.com/sandboxrun/bvisor/internal/ids"
	"golang.org/x/sys/unix"
)

// Passthrough wraps a supervisor-owned kernel FD; every operation
// delegates to the real kernel (spec §3, §4.5).
type Passthrough struct {
	fd ids.SupervisorFD
}

// NewPassthrough opens path with the real kernel and wraps the resulting
// fd. Used for /dev/null, /dev/zero, /dev/random, /dev/urandom and any
// other path the router marks VerdictPassthrough.
func NewPassthrough(path string, flags int, mode uint32) (*Passthrough, error) {
	fd, err := unix.Open(path, flags, mode)
	if err != nil {
		return nil, err
	}
	return &Passthrough{fd: ids.SupervisorFD(fd)}, nil
}

// WrapPassthroughFd wraps an already-open kernel fd with no backing
// path, e.g. one end of a pipe2(2) pair.
func WrapPassthroughFd(fd ids.SupervisorFD) *Passthrough {
	return &Passthrough{fd: fd}
}

func (p *Passthrough) Read(buf []byte) (int, error) {
	n, err := unix.Read(int(p.fd), buf)
	return n, err
}

func (p *Passthrough) Write(data []byte) (int, error) {
	n, err := unix.Write(int(p.fd), data)
	return n, err
}

func (p *Passthrough) Lseek(off int64, whence Whence) (int64, error) {
	n, err := unix.Seek(int(p.fd), off, int(whence))
	return n, err
}

func (p *Passthrough) Statx() (Statx, error) {
	var st unix.Stat_t
	if err := unix.Fstat(int(p.fd), &st); err != nil {
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

func (p *Passthrough) Close() error { return unix.Close(int(p.fd)) }

func (p *Passthrough) Discriminator() string { return "passthrough" }
