package attach

import (
	"fmt"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"

	"ply/internal/isa"
)

// bpf(2) command and program-type values from <linux/bpf.h>. Not
// exposed as named constants by golang.org/x/sys/unix (it carries the
// syscall number, nothing about the command's own argument encoding),
// so they're hardcoded here exactly as the kernel ABI defines them —
// a fixed wire contract, not logic, the same justification
// internal/provider's x86_64 pt_regs offsets use.
const (
	bpfProgLoad    uintptr = 5
	progTypeKprobe uint32  = 2
)

// progLoadAttr mirrors the BPF_PROG_LOAD member of union bpf_attr —
// only the fields this back end ever sets. The kernel zero-fills
// anything a shorter attr_size didn't cover, so trailing fields it
// also defines (BTF info, func/line info, ...) are simply omitted.
type progLoadAttr struct {
	progType    uint32
	insnCnt     uint32
	insns       uint64
	license     uint64
	logLevel    uint32
	logSize     uint32
	logBuf      uint64
	kernVersion uint32
	progFlags   uint32
	progName    [16]byte
}

// loadProgram wraps the bpf(2) BPF_PROG_LOAD command over prog's
// already-encoded instruction stream and returns the kernel's program
// fd. cilium/ebpf's loader only accepts programs built through its own
// asm.Instructions assembler, not an externally hand-encoded stream
// like internal/isa's, so the load step itself has to stay a raw
// syscall; only the resulting fd gets handed back into cilium/ebpf
// (see kprobe.go's ebpf.NewProgramFromFD) for attachment.
func loadProgram(prog *isa.Program, name string, debugLog bool) (int, error) {
	insns := prog.Bytes()
	if len(insns) == 0 {
		return 0, fmt.Errorf("attach: program %q has no instructions", name)
	}
	license := append([]byte("GPL"), 0)

	var logBuf []byte
	attr := progLoadAttr{
		progType:    progTypeKprobe,
		insnCnt:     uint32(len(insns) / 8),
		insns:       uint64(uintptr(unsafe.Pointer(&insns[0]))),
		license:     uint64(uintptr(unsafe.Pointer(&license[0]))),
		kernVersion: 0,
	}
	copy(attr.progName[:], shortProgName(name))
	if debugLog {
		logBuf = make([]byte, 64*1024)
		attr.logLevel = 1
		attr.logSize = uint32(len(logBuf))
		attr.logBuf = uint64(uintptr(unsafe.Pointer(&logBuf[0])))
	}

	fd, _, errno := unix.Syscall(unix.SYS_BPF, bpfProgLoad, uintptr(unsafe.Pointer(&attr)), unsafe.Sizeof(attr))
	runtime.KeepAlive(insns)
	runtime.KeepAlive(license)
	runtime.KeepAlive(logBuf)
	if errno != 0 {
		msg := errno.Error()
		if log := extractVerifierLog(logBuf); log != "" {
			msg = fmt.Sprintf("%s\nverifier log:\n%s", msg, log)
		}
		return 0, fmt.Errorf("attach: BPF_PROG_LOAD %q: %s", name, msg)
	}
	return int(fd), nil
}

// shortProgName truncates name to the kernel's 15-character (plus
// NUL) program-name limit.
func shortProgName(name string) string {
	if len(name) > 15 {
		return name[:15]
	}
	return name
}

// extractVerifierLog trims a NUL-padded verifier log buffer down to
// its text.
func extractVerifierLog(buf []byte) string {
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i])
		}
	}
	return string(buf)
}
