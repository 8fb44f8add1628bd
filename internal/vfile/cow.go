package vfile

import (
	"github.com/sandboxrun/bvisor/internal/ids"
	"golang.org/x/sys/unix"
)

// cowState distinguishes the two phases of a COW-backed file (spec §3,
// §4.5): Readthrough reads the host original directly; Writecopy reads and
// writes the sandbox-private overlay copy.
type cowState int

const (
	cowReadthrough cowState = iota
	cowWritecopy
)

// CowMaterializer is the subset of overlay.Root a Cow backend needs to
// decide whether to materialise a copy-up, kept as an interface so vfile
// does not import overlay directly.
type CowMaterializer interface {
	CowExists(guestPath string) bool
	ResolveCow(guestPath string) string
	MaterializeCow(guestPath string) error
}

// Cow is the copy-on-write backend (spec §3, §4.5).
type Cow struct {
	fd    ids.SupervisorFD
	state cowState
}

const (
	writeIntentFlags = unix.O_WRONLY | unix.O_RDWR | unix.O_CREAT | unix.O_TRUNC
)

// OpenCow implements the decision tree of spec §4.5:
//
//  1. If a COW copy already exists, open that copy as Writecopy.
//  2. Else if any write-intent flag is present, materialise (copy the host
//     original into the overlay) and open the overlay copy as Writecopy.
//  3. Else open the host original directly as Readthrough.
//
// Once a path has been materialised for a sandbox, it stays Writecopy for
// every subsequent open of that path from that sandbox, even read-only
// ones — single materialisation per path per sandbox.
func OpenCow(m CowMaterializer, guestPath string, flags int, mode uint32) (*Cow, error) {
	if m.CowExists(guestPath) {
		fd, err := unix.Open(m.ResolveCow(guestPath), flags, mode)
		if err != nil {
			return nil, err
		}
		return &Cow{fd: ids.SupervisorFD(fd), state: cowWritecopy}, nil
	}

	if flags&writeIntentFlags != 0 {
		if err := m.MaterializeCow(guestPath); err != nil {
			return nil, err
		}
		fd, err := unix.Open(m.ResolveCow(guestPath), flags, mode)
		if err != nil {
			return nil, err
		}
		return &Cow{fd: ids.SupervisorFD(fd), state: cowWritecopy}, nil
	}

	fd, err := unix.Open(guestPath, flags&^writeIntentFlags, mode)
	if err != nil {
		return nil, err
	}
	return &Cow{fd: ids.SupervisorFD(fd), state: cowReadthrough}, nil
}

func (c *Cow) Read(buf []byte) (int, error) {
	n, err := unix.Read(int(c.fd), buf)
	return n, err
}

func (c *Cow) Write(data []byte) (int, error) {
	if c.state == cowReadthrough {
		return 0, &ReadOnlyFileSystem{}
	}
	n, err := unix.Write(int(c.fd), data)
	return n, err
}

func (c *Cow) Lseek(off int64, whence Whence) (int64, error) {
	n, err := unix.Seek(int(c.fd), off, int(whence))
	return n, err
}

func (c *Cow) Statx() (Statx, error) {
	var st unix.Stat_t
	if err := unix.Fstat(int(c.fd), &st); err != nil {
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

func (c *Cow) Close() error { return unix.Close(int(c.fd)) }

func (c *Cow) Discriminator() string { return "cow" }

// IsWritecopy reports whether this handle has materialised, for tests and
// invariant assertions.
func (c *Cow) IsWritecopy() bool { return c.state == cowWritecopy }
