package procgraph

// CloneFlag mirrors the subset of Linux's clone(2) CLONE_* flags this
// supervisor honours (spec §4.7). Values match the kernel's uapi
// constants so callers can pass the raw flags word straight through.
type CloneFlag uint64

const (
	CloneFiles  CloneFlag = 0x00000400
	CloneFS     CloneFlag = 0x00000200
	CloneThread CloneFlag = 0x00010000
	CloneParent CloneFlag = 0x00008000
	CloneNewNS  CloneFlag = 0x00020000
	CloneNewPID CloneFlag = 0x20000000
	CloneNewNet CloneFlag = 0x40000000
	CloneNewUser CloneFlag = 0x10000000
)

// unsupportedMask is the set of flags that must fail registration with
// UnsupportedCloneFlag (spec §4.7): this supervisor models exactly one
// mount namespace, one network namespace and one user namespace per
// sandbox, so a guest request for a fresh one of those is rejected
// outright rather than silently ignored.
const unsupportedMask = CloneNewUser | CloneNewNet | CloneNewNS

// UnsupportedCloneFlag reports which of the unsupported flags were set.
type UnsupportedCloneFlag struct {
	Flags CloneFlag
}

func (e *UnsupportedCloneFlag) Error() string {
	return "procgraph: unsupported clone flag requested"
}

// CheckSupported returns UnsupportedCloneFlag if flags requests
// CLONE_NEWUSER, CLONE_NEWNET or CLONE_NEWNS.
func CheckSupported(flags CloneFlag) error {
	if bad := flags & unsupportedMask; bad != 0 {
		return &UnsupportedCloneFlag{Flags: bad}
	}
	return nil
}

func (f CloneFlag) Has(bit CloneFlag) bool { return f&bit != 0 }
