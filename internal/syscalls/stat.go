package syscalls

import (
	"encoding/binary"

	"github.com/sandboxrun/bvisor/internal/ids"
	"github.com/sandboxrun/bvisor/internal/notifier"
	"github.com/sandboxrun/bvisor/internal/procgraph"
	"github.com/sandboxrun/bvisor/internal/vfile"
)

// statSize is the full Linux x86-64 struct stat size: the 72-byte
// dev/ino/.../blocks prefix, three 16-byte timespec fields
// (atim/mtim/ctim), and a trailing 24-byte reserved tail.
const statSize = 144

// marshalStat serialises the fields of vfile.Stat in their declared ABI
// order, writing the full 144-byte struct stat layout (spec §4.5, §6:
// "the fixed struct stat layout expected by the guest's architecture").
// Timestamp fields are not modelled by any File backend in this
// supervisor and are written as zero timespecs rather than left
// unwritten, so the guest always sees a fully-populated buffer.
func marshalStat(st vfile.Stat) []byte {
	buf := make([]byte, statSize)
	binary.LittleEndian.PutUint64(buf[0:8], st.Dev)
	binary.LittleEndian.PutUint64(buf[8:16], st.Ino)
	binary.LittleEndian.PutUint64(buf[16:24], st.Nlink)
	binary.LittleEndian.PutUint32(buf[24:28], st.Mode)
	binary.LittleEndian.PutUint32(buf[28:32], st.UID)
	binary.LittleEndian.PutUint32(buf[32:36], st.GID)
	binary.LittleEndian.PutUint64(buf[40:48], st.Rdev)
	binary.LittleEndian.PutUint64(buf[48:56], uint64(st.Size))
	binary.LittleEndian.PutUint64(buf[56:64], uint64(st.Blksize))
	binary.LittleEndian.PutUint64(buf[64:72], uint64(st.Blocks))
	binary.LittleEndian.PutUint64(buf[72:80], uint64(st.Atim.Sec))
	binary.LittleEndian.PutUint64(buf[80:88], uint64(st.Atim.Nsec))
	binary.LittleEndian.PutUint64(buf[88:96], uint64(st.Mtim.Sec))
	binary.LittleEndian.PutUint64(buf[96:104], uint64(st.Mtim.Nsec))
	binary.LittleEndian.PutUint64(buf[104:112], uint64(st.Ctim.Sec))
	binary.LittleEndian.PutUint64(buf[112:120], uint64(st.Ctim.Nsec))
	// buf[120:144] is the reserved tail; already zero.
	return buf
}

// statAndWrite fetches f's Statx, converts it to the wire Stat layout
// and writes it back into the guest's memory at addr.
func statAndWrite(s *State, pid ids.AbsTid, f *vfile.File, addr uintptr) error {
	stx, err := f.Statx()
	if err != nil {
		return err
	}
	st := vfile.StatxToStat(stx)
	return s.Bridge.WriteSlice(pid, addr, marshalStat(st))
}

// Fstat implements spec §4.9's fstat handler: for stdio vfds 0/1/2,
// return Continue (let the kernel handle); otherwise fetch the File,
// statx, convert, write back, succeed.
func Fstat(s *State, t *procgraph.Thread, n *notifier.Notif) notifier.Response {
	vfd := ids.VFD(int32(n.Data.Args[0]))
	if ids.ReservedStdio(vfd) {
		return notifier.Continue(n.ID)
	}

	f, err := t.FdTable().GetRef(vfd)
	if err != nil {
		return notifier.Return(n.ID, -1, Errno(err))
	}
	defer f.Unref()

	if err := statAndWrite(s, n.Pid, f, uintptr(n.Data.Args[1])); err != nil {
		return notifier.Return(n.ID, -1, Errno(err))
	}
	return notifier.Return(n.ID, 0, 0)
}

// FstatAt implements spec §4.9's fstatat64 handler: identical semantics
// to Fstat but the target vfd is the dirfd argument, since AT_EMPTY_PATH
// resolution by absolute-path-only openers is out of scope here and
// every fstatat64 this supervisor emulates targets an already-open vfd.
func FstatAt(s *State, t *procgraph.Thread, n *notifier.Notif) notifier.Response {
	vfd := ids.VFD(int32(n.Data.Args[0]))
	if ids.ReservedStdio(vfd) {
		return notifier.Continue(n.ID)
	}

	f, err := t.FdTable().GetRef(vfd)
	if err != nil {
		return notifier.Return(n.ID, -1, Errno(err))
	}
	defer f.Unref()

	if err := statAndWrite(s, n.Pid, f, uintptr(n.Data.Args[2])); err != nil {
		return notifier.Return(n.ID, -1, Errno(err))
	}
	return notifier.Return(n.ID, 0, 0)
}
