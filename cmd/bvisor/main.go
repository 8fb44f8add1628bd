package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sandboxrun/bvisor/internal/config"
	"github.com/sandboxrun/bvisor/internal/ids"
	"github.com/sandboxrun/bvisor/internal/memio"
	"github.com/sandboxrun/bvisor/internal/notifier"
	"github.com/sandboxrun/bvisor/internal/registry"
	"github.com/sandboxrun/bvisor/internal/supervisor"
)

func main() {
	var cfg config.Config
	var notifierFd int
	var rootTid int

	root := &cobra.Command{
		Use:   "bvisor",
		Short: "In-process sandbox supervisor",
		Long: `bvisor is a partial virtual kernel: it intercepts a guest's syscalls via
a Linux seccomp user-notifier, then adjudicates, emulates, or forwards each
one from a sibling supervisor process. It owns a model of the guest's
process tree, file-descriptor tables, namespaces, and a copy-on-write
overlay filesystem.

bvisor does not fork or bootstrap the guest itself: it expects an
already-open notifier fd (installed via the guest's own seccomp filter
program) and the guest's initial host-visible thread id.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.NotifierFD = ids.SupervisorFD(notifierFd)
			cfg.RootTid = ids.AbsTid(rootTid)
			return run(cfg)
		},
	}

	root.Flags().StringVar(&cfg.OverlayRoot, "overlay-root", config.DefaultOverlayRoot, "root directory for per-sandbox cow/ and tmp/ trees")
	root.Flags().IntVar(&notifierFd, "notifier-fd", -1, "already-open SECCOMP_RET_USER_NOTIF file descriptor")
	root.Flags().IntVar(&rootTid, "root-tid", 0, "guest's initial thread id, as seen by the host kernel")
	root.Flags().StringVar(&cfg.LogLevel, "log-level", "info", "logrus level: debug, info, warn, error")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	if cfg.NotifierFD < 0 {
		return fmt.Errorf("bvisor: --notifier-fd is required (got %s)", strconv.Itoa(int(cfg.NotifierFD)))
	}
	if cfg.RootTid == 0 {
		return fmt.Errorf("bvisor: --root-tid is required")
	}

	sup, err := supervisor.New(supervisor.Config{
		Transport:   notifier.NewSeccompTransport(cfg.NotifierFD),
		Bridge:      memio.NewProcMemBridge(),
		OverlayRoot: cfg.OverlayRoot,
		RootTid:     cfg.RootTid,
		Kernel:      registry.ProcKernel{},
		Log:         log,
	})
	if err != nil {
		return fmt.Errorf("bvisor: constructing supervisor: %w", err)
	}

	log.WithFields(logrus.Fields{
		"root_tid":     cfg.RootTid,
		"overlay_root": cfg.OverlayRoot,
	}).Info("sandbox starting")

	if err := sup.Run(); err != nil {
		log.WithError(err).Error("sandbox terminated")
		return err
	}
	log.Info("sandbox finished")
	return nil
}
