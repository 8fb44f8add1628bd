package syscalls

import (
	"testing"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/sandboxrun/bvisor/internal/ids"
	"github.com/sandboxrun/bvisor/internal/memio"
	"github.com/sandboxrun/bvisor/internal/notifier"
	"github.com/sandboxrun/bvisor/internal/overlay"
	"github.com/sandboxrun/bvisor/internal/procgraph"
	"github.com/sandboxrun/bvisor/internal/registry"
	"github.com/sandboxrun/bvisor/internal/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noopKernel never has any unregistered ancestors to report; every test
// thread is pre-registered via Registry.InitRoot, so sync/ancestor-walk
// behaviour is covered separately in the registry package's own tests.
type noopKernel struct{}

func (noopKernel) ParentTid(ids.AbsTid) (ids.AbsTid, error)          { return 0, nil }
func (noopKernel) Tgid(ids.AbsTid) (ids.AbsTgid, error)              { return 0, nil }
func (noopKernel) NsTidChain(ids.AbsTid) ([]ids.NsTid, error)        { return nil, nil }
func (noopKernel) SharesFdTable(ids.AbsTid, ids.AbsTid) (bool, error) { return false, nil }
func (noopKernel) SharesFsInfo(ids.AbsTid, ids.AbsTid) (bool, error)  { return false, nil }

func newTestState(t *testing.T) (*State, *procgraph.Thread) {
	t.Helper()
	root, err := overlay.NewRoot(t.TempDir())
	require.NoError(t, err)

	reg := registry.New(noopKernel{})
	thread := reg.InitRoot(ids.AbsTid(100))

	return &State{
		Bridge:   memio.LocalBridge{},
		Router:   router.New(router.DefaultRules),
		Overlay:  root,
		Registry: reg,
	}, thread
}

func addrOf(b []byte) uintptr {
	return uintptr(unsafe.Pointer(&b[0]))
}

func cStringAddr(s string) uintptr {
	b := append([]byte(s), 0)
	return addrOf(b)
}

func openatNotif(pid ids.AbsTid, path string, flags int, mode uint32) *notifier.Notif {
	return &notifier.Notif{
		ID:  1,
		Pid: pid,
		Data: notifier.Data{
			Nr: unix.SYS_OPENAT,
			Args: [6]uint64{
				uint64(uint32(unix.AT_FDCWD)),
				uint64(cStringAddr(path)),
				uint64(uint32(flags)),
				uint64(mode),
			},
		},
	}
}

func TestScenarioProcSelfRead(t *testing.T) {
	s, thread := newTestState(t)

	openResp := Openat(s, thread, openatNotif(thread.Tid, "/proc/self", 0, 0))
	require.Zero(t, openResp.Error)
	vfd := ids.VFD(openResp.Val)
	assert.True(t, vfd >= 3)

	buf := make([]byte, 64)
	readNotif := &notifier.Notif{ID: 2, Pid: thread.Tid, Data: notifier.Data{
		Nr:   unix.SYS_READ,
		Args: [6]uint64{uint64(vfd), uint64(addrOf(buf)), 64},
	}}
	readResp := Read(s, thread, readNotif)
	require.Zero(t, readResp.Error)
	assert.Equal(t, "100\n", string(buf[:readResp.Val]))

	closeNotif := &notifier.Notif{ID: 3, Pid: thread.Tid, Data: notifier.Data{
		Nr: unix.SYS_CLOSE, Args: [6]uint64{uint64(vfd)},
	}}
	closeResp := Close(s, thread, closeNotif)
	assert.Zero(t, closeResp.Error)
}

func TestScenarioTmpWriteReadCycle(t *testing.T) {
	s, thread := newTestState(t)

	openWrite := Openat(s, thread, openatNotif(thread.Tid, "/tmp/e2e.txt", unix.O_WRONLY|unix.O_CREAT|unix.O_TRUNC, 0o644))
	require.Zero(t, openWrite.Error)
	vfd1 := ids.VFD(openWrite.Val)

	payload := []byte("hello e2e")
	writeResp := Write(s, thread, &notifier.Notif{ID: 2, Pid: thread.Tid, Data: notifier.Data{
		Nr: unix.SYS_WRITE, Args: [6]uint64{uint64(vfd1), uint64(addrOf(payload)), uint64(len(payload))},
	}})
	require.Zero(t, writeResp.Error)
	assert.EqualValues(t, 9, writeResp.Val)

	Close(s, thread, &notifier.Notif{ID: 3, Pid: thread.Tid, Data: notifier.Data{Nr: unix.SYS_CLOSE, Args: [6]uint64{uint64(vfd1)}}})

	openRead := Openat(s, thread, openatNotif(thread.Tid, "/tmp/e2e.txt", 0, 0))
	require.Zero(t, openRead.Error)
	vfd2 := ids.VFD(openRead.Val)

	buf := make([]byte, 64)
	readResp := Read(s, thread, &notifier.Notif{ID: 4, Pid: thread.Tid, Data: notifier.Data{
		Nr: unix.SYS_READ, Args: [6]uint64{uint64(vfd2), uint64(addrOf(buf)), 64},
	}})
	require.Zero(t, readResp.Error)
	assert.Equal(t, "hello e2e", string(buf[:readResp.Val]))
}

func TestScenarioVfdMonotonicity(t *testing.T) {
	s, thread := newTestState(t)

	first := Openat(s, thread, openatNotif(thread.Tid, "/dev/null", unix.O_RDONLY, 0))
	require.Zero(t, first.Error)
	Close(s, thread, &notifier.Notif{ID: 2, Pid: thread.Tid, Data: notifier.Data{Nr: unix.SYS_CLOSE, Args: [6]uint64{uint64(first.Val)}}})

	second := Openat(s, thread, openatNotif(thread.Tid, "/dev/null", unix.O_RDONLY, 0))
	require.Zero(t, second.Error)
	assert.Greater(t, second.Val, first.Val)
}

func TestScenarioTraversalIsBlocked(t *testing.T) {
	s, thread := newTestState(t)
	resp := Openat(s, thread, openatNotif(thread.Tid, "/tmp/../sys/class/net", 0, 0))
	assert.EqualValues(t, unix.EPERM, -resp.Error)
}

func TestScenarioUnknownVfdIsBadFileDescriptor(t *testing.T) {
	s, thread := newTestState(t)
	buf := make([]byte, 8)
	resp := Read(s, thread, &notifier.Notif{ID: 1, Pid: thread.Tid, Data: notifier.Data{
		Nr: unix.SYS_READ, Args: [6]uint64{99, uint64(addrOf(buf)), 8},
	}})
	assert.EqualValues(t, unix.EBADF, -resp.Error)
}

func TestScenarioKillRejectsNonPositiveTarget(t *testing.T) {
	s, thread := newTestState(t)
	resp := Kill(s, thread, &notifier.Notif{ID: 1, Pid: thread.Tid, Data: notifier.Data{
		Nr: unix.SYS_KILL, Args: [6]uint64{uint64(int64(0)), uint64(unix.SIGTERM)},
	}})
	assert.EqualValues(t, unix.EINVAL, -resp.Error)
}

func TestScenarioKillOutsideNamespaceIsEsrch(t *testing.T) {
	s, thread := newTestState(t)
	resp := Kill(s, thread, &notifier.Notif{ID: 1, Pid: thread.Tid, Data: notifier.Data{
		Nr: unix.SYS_KILL, Args: [6]uint64{999, uint64(unix.SIGTERM)},
	}})
	assert.EqualValues(t, unix.ESRCH, -resp.Error)
}

func TestScenarioNamespacedProcSelf(t *testing.T) {
	s, thread := newTestState(t)

	child, err := procgraph.Attach(thread, procgraph.AttachParams{
		Tid:     ids.AbsTid(200),
		Flags:   procgraph.CloneNewPID | procgraph.CloneFiles | procgraph.CloneFS,
		NsChain: []ids.NsTid{2, 1},
	})
	require.NoError(t, err)

	openResp := Openat(s, child, openatNotif(child.Tid, "/proc/self", 0, 0))
	require.Zero(t, openResp.Error)
	vfd := ids.VFD(openResp.Val)

	buf := make([]byte, 64)
	readResp := Read(s, child, &notifier.Notif{ID: 2, Pid: child.Tid, Data: notifier.Data{
		Nr: unix.SYS_READ, Args: [6]uint64{uint64(vfd), uint64(addrOf(buf)), 64},
	}})
	require.Zero(t, readResp.Error)
	assert.Equal(t, "1\n", string(buf[:readResp.Val]))
}

func TestDispatchUnknownSyscallContinues(t *testing.T) {
	s, thread := newTestState(t)
	resp := Dispatch(s, &notifier.Notif{ID: 1, Pid: thread.Tid, Data: notifier.Data{Nr: -1}})
	assert.Equal(t, notifier.ContinueFlag, resp.Flags)
}

func TestDispatchBlockedSyscallIsEnosys(t *testing.T) {
	s, thread := newTestState(t)
	resp := Dispatch(s, &notifier.Notif{ID: 1, Pid: thread.Tid, Data: notifier.Data{Nr: unix.SYS_PTRACE}})
	assert.EqualValues(t, unix.ENOSYS, -resp.Error)
}
