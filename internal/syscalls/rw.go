package syscalls

import (
	"github.com/sandboxrun/bvisor/internal/ids"
	"github.com/sandboxrun/bvisor/internal/notifier"
	"github.com/sandboxrun/bvisor/internal/procgraph"
	"github.com/sandboxrun/bvisor/internal/vfile"
)

const rwChunk = 64 * 1024

// Read implements spec §4.9's read handler: lookup File by VFD, transfer
// bytes between the guest buffer (via C1) and the backend.
func Read(s *State, t *procgraph.Thread, n *notifier.Notif) notifier.Response {
	vfd := ids.VFD(int32(n.Data.Args[0]))
	addr := uintptr(n.Data.Args[1])
	count := n.Data.Args[2]

	f, err := t.FdTable().GetRef(vfd)
	if err != nil {
		return notifier.Return(n.ID, -1, Errno(err))
	}
	defer f.Unref()

	total, err := readInto(s, n.Pid, f, addr, count)
	if err != nil {
		return notifier.Return(n.ID, -1, Errno(err))
	}
	return notifier.Return(n.ID, int64(total), 0)
}

// Write implements spec §4.9's write handler, the mirror of Read.
func Write(s *State, t *procgraph.Thread, n *notifier.Notif) notifier.Response {
	vfd := ids.VFD(int32(n.Data.Args[0]))
	addr := uintptr(n.Data.Args[1])
	count := n.Data.Args[2]

	f, err := t.FdTable().GetRef(vfd)
	if err != nil {
		return notifier.Return(n.ID, -1, Errno(err))
	}
	defer f.Unref()

	total, err := writeFrom(s, n.Pid, f, addr, count)
	if err != nil {
		return notifier.Return(n.ID, -1, Errno(err))
	}
	return notifier.Return(n.ID, int64(total), 0)
}

// Pread implements spec §4.9's pread handler: like Read but seeks to a
// given offset first without disturbing the file's running position.
func Pread(s *State, t *procgraph.Thread, n *notifier.Notif) notifier.Response {
	vfd := ids.VFD(int32(n.Data.Args[0]))
	addr := uintptr(n.Data.Args[1])
	count := n.Data.Args[2]
	offset := int64(n.Data.Args[3])

	f, err := t.FdTable().GetRef(vfd)
	if err != nil {
		return notifier.Return(n.ID, -1, Errno(err))
	}
	defer f.Unref()

	cur, err := f.Lseek(0, vfile.SeekCur)
	if err != nil {
		return notifier.Return(n.ID, -1, Errno(err))
	}
	if _, err := f.Lseek(offset, vfile.SeekSet); err != nil {
		return notifier.Return(n.ID, -1, Errno(err))
	}
	total, rerr := readInto(s, n.Pid, f, addr, count)
	f.Lseek(cur, vfile.SeekSet)
	if rerr != nil {
		return notifier.Return(n.ID, -1, Errno(rerr))
	}
	return notifier.Return(n.ID, int64(total), 0)
}

// Pwrite implements spec §4.9's pwrite handler, the mirror of Pread.
func Pwrite(s *State, t *procgraph.Thread, n *notifier.Notif) notifier.Response {
	vfd := ids.VFD(int32(n.Data.Args[0]))
	addr := uintptr(n.Data.Args[1])
	count := n.Data.Args[2]
	offset := int64(n.Data.Args[3])

	f, err := t.FdTable().GetRef(vfd)
	if err != nil {
		return notifier.Return(n.ID, -1, Errno(err))
	}
	defer f.Unref()

	cur, err := f.Lseek(0, vfile.SeekCur)
	if err != nil {
		return notifier.Return(n.ID, -1, Errno(err))
	}
	if _, err := f.Lseek(offset, vfile.SeekSet); err != nil {
		return notifier.Return(n.ID, -1, Errno(err))
	}
	total, werr := writeFrom(s, n.Pid, f, addr, count)
	f.Lseek(cur, vfile.SeekSet)
	if werr != nil {
		return notifier.Return(n.ID, -1, Errno(werr))
	}
	return notifier.Return(n.ID, int64(total), 0)
}

// iovec mirrors Linux x86-64's struct iovec layout (spec §4.9: "for
// vector ops, read the iovec array first, then loop, accumulating the
// byte count").
type iovec struct {
	base uint64
	len  uint64
}

const iovecSize = 16

func readIovecs(s *State, pid ids.AbsTid, addr uintptr, count int) ([]iovec, error) {
	out := make([]iovec, count)
	for i := 0; i < count; i++ {
		var raw [iovecSize]byte
		if err := s.Bridge.ReadSlice(pid, addr+uintptr(i*iovecSize), raw[:]); err != nil {
			return nil, err
		}
		out[i] = iovec{
			base: leUint64(raw[0:8]),
			len:  leUint64(raw[8:16]),
		}
	}
	return out, nil
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// Readv implements spec §4.9's readv handler: scatter reads preserving
// iovec order.
func Readv(s *State, t *procgraph.Thread, n *notifier.Notif) notifier.Response {
	vfd := ids.VFD(int32(n.Data.Args[0]))
	iovAddr := uintptr(n.Data.Args[1])
	iovCnt := int(int32(n.Data.Args[2]))

	f, err := t.FdTable().GetRef(vfd)
	if err != nil {
		return notifier.Return(n.ID, -1, Errno(err))
	}
	defer f.Unref()

	iovs, err := readIovecs(s, n.Pid, iovAddr, iovCnt)
	if err != nil {
		return notifier.Return(n.ID, -1, Errno(err))
	}

	var total int64
	for _, iov := range iovs {
		if iov.len == 0 {
			continue
		}
		got, err := readInto(s, n.Pid, f, uintptr(iov.base), iov.len)
		total += int64(got)
		if err != nil {
			return notifier.Return(n.ID, -1, Errno(err))
		}
		if uint64(got) < iov.len {
			break
		}
	}
	return notifier.Return(n.ID, total, 0)
}

// Writev implements spec §4.9's writev handler, the mirror of Readv.
func Writev(s *State, t *procgraph.Thread, n *notifier.Notif) notifier.Response {
	vfd := ids.VFD(int32(n.Data.Args[0]))
	iovAddr := uintptr(n.Data.Args[1])
	iovCnt := int(int32(n.Data.Args[2]))

	f, err := t.FdTable().GetRef(vfd)
	if err != nil {
		return notifier.Return(n.ID, -1, Errno(err))
	}
	defer f.Unref()

	iovs, err := readIovecs(s, n.Pid, iovAddr, iovCnt)
	if err != nil {
		return notifier.Return(n.ID, -1, Errno(err))
	}

	var total int64
	for _, iov := range iovs {
		if iov.len == 0 {
			continue
		}
		got, err := writeFrom(s, n.Pid, f, uintptr(iov.base), iov.len)
		total += int64(got)
		if err != nil {
			return notifier.Return(n.ID, -1, Errno(err))
		}
		if uint64(got) < iov.len {
			break
		}
	}
	return notifier.Return(n.ID, total, 0)
}

// readInto transfers up to count bytes from f into the guest's buffer at
// addr, chunked through a bounded stack buffer.
func readInto(s *State, pid ids.AbsTid, f *vfile.File, addr uintptr, count uint64) (uint64, error) {
	var total uint64
	buf := make([]byte, min64(count, rwChunk))
	for total < count {
		want := min64(count-total, rwChunk)
		n, err := f.Read(buf[:want])
		if n > 0 {
			if werr := s.Bridge.WriteSlice(pid, addr+uintptr(total), buf[:n]); werr != nil {
				return total, werr
			}
			total += uint64(n)
		}
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}

// writeFrom transfers up to count bytes from the guest's buffer at addr
// into f.
func writeFrom(s *State, pid ids.AbsTid, f *vfile.File, addr uintptr, count uint64) (uint64, error) {
	var total uint64
	buf := make([]byte, min64(count, rwChunk))
	for total < count {
		want := min64(count-total, rwChunk)
		if err := s.Bridge.ReadSlice(pid, addr+uintptr(total), buf[:want]); err != nil {
			return total, err
		}
		n, err := f.Write(buf[:want])
		total += uint64(n)
		if err != nil {
			return total, err
		}
		if uint64(n) < want {
			break
		}
	}
	return total, nil
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

