package vfile

// Proc is a synthesised /proc file whose content was rendered into buf at
// open time from supervisor state (spec §3, §4.5, §6): /proc/self ->
// "<NsTid>\n".
type Proc struct {
	buf    []byte
	offset int64
}

// NewProc renders content into a Proc backend. content is the full body
// (e.g. "100\n" for /proc/self), computed by the caller from the relevant
// Thread's NsTid before construction.
func NewProc(content string) *Proc {
	return &Proc{buf: []byte(content)}
}

func (p *Proc) Read(dst []byte) (int, error) {
	if p.offset >= int64(len(p.buf)) {
		return 0, nil // EOF
	}
	n := copy(dst, p.buf[p.offset:])
	p.offset += int64(n)
	return n, nil
}

func (p *Proc) Write(_ []byte) (int, error) {
	return 0, &NotPermitted{Op: "write"}
}

func (p *Proc) Lseek(off int64, whence Whence) (int64, error) {
	var base int64
	switch whence {
	case SeekSet:
		base = 0
	case SeekCur:
		base = p.offset
	case SeekEnd:
		base = int64(len(p.buf))
	}
	p.offset = base + off
	return p.offset, nil
}

func (p *Proc) Statx() (Statx, error) {
	return Statx{
		Mask:  StatxMode | StatxNlink | StatxSize,
		Mode:  0o444 | sIFREG,
		Nlink: 1,
		Size:  uint64(len(p.buf)),
		Blksize: 4096,
	}, nil
}

// sIFREG is Linux's S_IFREG file-type bit, set in Proc's synthesised mode
// per spec §4.5 ("statx reports IFREG | 0o444").
const sIFREG = 0o100000

func (p *Proc) Close() error { return nil }

func (p *Proc) Discriminator() string { return "proc" }
