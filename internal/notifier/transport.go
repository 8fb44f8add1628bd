package notifier

import (
	"errors"

	libseccomp "github.com/seccomp/libseccomp-golang"
	"github.com/sandboxrun/bvisor/internal/ids"
	"golang.org/x/sys/unix"
)

// Transport receives notifications from a single notifier file descriptor
// and sends responses back. Recv returns (nil, nil) to signal "guest gone"
// (spec §4.2: "None signals terminal guest gone"); ENOENT on Send is benign
// per spec §5/§7, and Send swallows it rather than returning it.
type Transport interface {
	Recv() (*Notif, error)
	Send(Response) error
	Close() error
}

// scmpTransport is the production Transport, backed by
// github.com/seccomp/libseccomp-golang's notification API against a real
// SECCOMP_RET_USER_NOTIF file descriptor. Grounded on
// other_examples/nestybox-sysbox-fs's connHandler loop, which calls
// NotifReceive in a loop, swallows EINTR, and re-validates the request ID
// with NotifIdValid immediately before responding to close the TOCTOU
// window spec §4.2 alludes to ("kernel executes... with original
// arguments").
type scmpTransport struct {
	fd libseccomp.ScmpFd
}

// NewSeccompTransport wraps an already-installed seccomp-unotify fd. Guest
// bootstrap and filter installation that produce this fd are out of scope
// (spec §1 Non-goals); the fd is assumed to be handed to the supervisor
// already open, e.g. via SCM_RIGHTS or a well-known inherited descriptor.
func NewSeccompTransport(fd ids.SupervisorFD) Transport {
	return &scmpTransport{fd: libseccomp.ScmpFd(fd)}
}

func (t *scmpTransport) Recv() (*Notif, error) {
	for {
		req, err := libseccomp.NotifReceive(t.fd)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if errors.Is(err, unix.ENOENT) || errors.Is(err, unix.EBADF) {
				// The notifier fd went away: the guest (and every thread
				// sharing it) has exited. Terminal, not an error.
				return nil, nil
			}
			return nil, err
		}
		return &Notif{
			ID:    req.ID,
			Pid:   ids.AbsTid(req.Pid),
			Flags: 0,
			Data: Data{
				Nr:                 int32(req.Data.Syscall),
				Arch:               uint32(req.Data.Arch),
				InstructionPointer: req.Data.InstrPointer,
				Args:               req.Data.Args,
			},
		}, nil
	}
}

func (t *scmpTransport) Send(resp Response) error {
	// TOCTOU check: the request may have been invalidated (e.g. the
	// tracee was killed) between Recv and Send. This mirrors
	// NotifIdValid's use in the nestybox tracer immediately before
	// NotifRespond.
	if err := libseccomp.NotifIDValid(t.fd, resp.ID); err != nil {
		if errors.Is(err, unix.ENOENT) {
			return nil
		}
		return err
	}

	err := libseccomp.NotifRespond(t.fd, &libseccomp.ScmpNotifResp{
		ID:    resp.ID,
		Val:   resp.Val,
		Error: resp.Error,
		Flags: uint32(resp.Flags),
	})
	if err != nil && errors.Is(err, unix.ENOENT) {
		// Benign per spec §5/§7: the guest thread exited while its
		// notification was in flight.
		return nil
	}
	return err
}

func (t *scmpTransport) Close() error {
	return unix.Close(int(t.fd))
}
