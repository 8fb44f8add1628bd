// Package supervisor implements the supervisor core (spec §3, §4.10):
// the recv -> handle -> send loop that owns the notifier transport, the
// thread registry, and the overlay filesystem for one sandboxed guest.
package supervisor

import (
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sandboxrun/bvisor/internal/ids"
	"github.com/sandboxrun/bvisor/internal/memio"
	"github.com/sandboxrun/bvisor/internal/notifier"
	"github.com/sandboxrun/bvisor/internal/overlay"
	"github.com/sandboxrun/bvisor/internal/registry"
	"github.com/sandboxrun/bvisor/internal/router"
	"github.com/sandboxrun/bvisor/internal/syscalls"
)

// Supervisor owns one sandbox's notifier loop (spec §4.10): the notifier
// transport, the thread registry (behind the registry's own internal
// mutex, per spec §9 "the registry mutex serialises graph topology
// changes"), and the OverlayRoot. Host I/O performed by handlers happens
// outside any lock, so handlers never serialise on it (spec §4.10).
type Supervisor struct {
	transport notifier.Transport
	state     *syscalls.State
	log       *logrus.Entry
}

// Config bundles a Supervisor's dependencies, analogous to how the
// teacher's subprocess construction takes an explicit set of platform
// handles rather than reaching for globals.
type Config struct {
	Transport  notifier.Transport
	Bridge     memio.Bridge
	OverlayRoot string
	RootTid    ids.AbsTid
	Kernel     registry.Kernel
	Log        *logrus.Logger
}

// New constructs a Supervisor and registers the sandbox's root thread.
func New(cfg Config) (*Supervisor, error) {
	root, err := overlay.NewRoot(cfg.OverlayRoot)
	if err != nil {
		return nil, err
	}

	reg := registry.New(cfg.Kernel)
	reg.InitRoot(cfg.RootTid)

	log := cfg.Log
	if log == nil {
		log = logrus.New()
	}

	return &Supervisor{
		transport: cfg.Transport,
		state: &syscalls.State{
			Bridge:   cfg.Bridge,
			Router:   router.New(router.DefaultRules),
			Overlay:  root,
			Registry: reg,
		},
		log: log.WithField("component", "supervisor"),
	}, nil
}

// Run implements spec §4.10's loop: recv -> handle -> send, exiting
// cleanly when recv reports the guest is gone (Transport.Recv returning
// a nil Notif and nil error per spec §5 "the transport returns None if
// the initial guest has exited and no notifications remain").
func (s *Supervisor) Run() error {
	runErr := s.runLoop()

	if err := s.teardown(); err != nil {
		s.log.WithError(err).Warn("teardown failed")
	}

	return runErr
}

func (s *Supervisor) runLoop() error {
	for {
		n, err := s.transport.Recv()
		if err != nil {
			s.log.WithError(err).Error("notifier recv failed")
			return err
		}
		if n == nil {
			s.log.Info("guest exited, no notifications remain")
			return nil
		}

		resp := syscalls.Dispatch(s.state, n)

		// The benign ENOENT race (spec §5: guest exits mid-handling) is
		// already swallowed inside Transport.Send; any error reaching
		// here is a genuine transport desynchronisation and is fatal
		// (spec §7: "internal supervisor errors ... are fatal: log and
		// terminate the supervisor loop").
		if err := s.transport.Send(resp); err != nil {
			s.log.WithError(err).Error("notifier send failed")
			return err
		}
	}
}

// teardown releases the two independent resources a sandbox owns — the
// notifier fd and the overlay tree — concurrently, collecting whichever
// error (if any) each leaves behind.
func (s *Supervisor) teardown() error {
	var g errgroup.Group
	g.Go(s.transport.Close)
	g.Go(s.state.Overlay.Cleanup)
	return g.Wait()
}
