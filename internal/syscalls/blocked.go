package syscalls

import "golang.org/x/sys/unix"

// BlockedSyscall is returned for any syscall number in the static
// blocklist (spec §6 "Blocked syscalls"): these must fail ENOSYS,
// distinct from the EPERM reserved for path-based blocks.
type BlockedSyscall struct {
	Nr int32
}

func (e *BlockedSyscall) Error() string { return "syscalls: call is unconditionally blocked" }

// blockedSyscalls is the static set named verbatim in spec §6.
var blockedSyscalls = map[int32]bool{
	unix.SYS_PTRACE:             true,
	unix.SYS_MOUNT:              true,
	unix.SYS_UMOUNT2:            true,
	unix.SYS_CHROOT:             true,
	unix.SYS_PIVOT_ROOT:         true,
	unix.SYS_REBOOT:             true,
	unix.SYS_SETNS:              true,
	unix.SYS_UNSHARE:            true,
	unix.SYS_SECCOMP:            true,
	unix.SYS_BPF:                true,
	unix.SYS_PROCESS_VM_READV:   true,
	unix.SYS_PROCESS_VM_WRITEV:  true,
	unix.SYS_KEXEC_LOAD:         true,
	unix.SYS_KEXEC_FILE_LOAD:    true,
	unix.SYS_INIT_MODULE:       true,
	unix.SYS_FINIT_MODULE:      true,
	unix.SYS_DELETE_MODULE:     true,
	unix.SYS_SETRLIMIT:         true,
	unix.SYS_PRLIMIT64:         true,
	unix.SYS_PERSONALITY:       true,
}

// IsBlocked reports whether nr is unconditionally blocked.
func IsBlocked(nr int32) bool { return blockedSyscalls[nr] }
