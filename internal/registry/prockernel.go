package registry

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/sandboxrun/bvisor/internal/ids"
)

// ProcKernel is the production Kernel (spec §4.7 "lazy sync rationale"):
// it reconciles unseen threads by reading /proc/<tid>/status and
// comparing the procfs inode identity of /proc/<tid>/fd and
// /proc/<tid>/root against the parent's, which the kernel derives from
// the address of the shared files_struct/fs_struct — two threads see
// the same inode there if and only if they share that structure, which
// is exactly CLONE_FILES/CLONE_FS sharing.
type ProcKernel struct{}

func (ProcKernel) ParentTid(tid ids.AbsTid) (ids.AbsTid, error) {
	v, err := statusField(tid, "PPid:")
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	return ids.AbsTid(n), nil
}

func (ProcKernel) Tgid(tid ids.AbsTid) (ids.AbsTgid, error) {
	v, err := statusField(tid, "Tgid:")
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	return ids.AbsTgid(n), nil
}

// NsTidChain returns tid's NSpid values, outermost namespace first (spec
// §4.7 "registration protocol": "a list of NsTids from outermost
// namespace down to the child's own").
func (ProcKernel) NsTidChain(tid ids.AbsTid) ([]ids.NsTid, error) {
	v, err := statusField(tid, "NSpid:")
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(v)
	chain := make([]ids.NsTid, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, err
		}
		chain = append(chain, ids.NsTid(n))
	}
	return chain, nil
}

func (ProcKernel) SharesFdTable(tid, parent ids.AbsTid) (bool, error) {
	return sameProcInode(tid, parent, "fd")
}

func (ProcKernel) SharesFsInfo(tid, parent ids.AbsTid) (bool, error) {
	return sameProcInode(tid, parent, "root")
}

func sameProcInode(a, b ids.AbsTid, entry string) (bool, error) {
	var sa, sb unix.Stat_t
	if err := unix.Stat(fmt.Sprintf("/proc/%d/%s", a, entry), &sa); err != nil {
		return false, err
	}
	if err := unix.Stat(fmt.Sprintf("/proc/%d/%s", b, entry), &sb); err != nil {
		return false, err
	}
	return sa.Dev == sb.Dev && sa.Ino == sb.Ino, nil
}

func statusField(tid ids.AbsTid, prefix string) (string, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/status", tid))
	if err != nil {
		return "", err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix)), nil
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("registry: /proc/%d/status missing field %s", tid, prefix)
}
