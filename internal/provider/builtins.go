package provider

import (
	"strconv"
	"strings"

	"ply/internal/ast"
	"ply/internal/cerr"
	"ply/internal/isa"
	"ply/internal/layout"
)

// builtin is one entry in the provider-shared compile table: a
// builtin name's result shape, which provider kinds may use it, and
// its code generator. Both kprobe and kretprobe forward to this same
// table instead of keeping their own copy; the allowedKinds gate is
// the only per-namespace distinction.
type builtin struct {
	resultType   ast.Type
	resultSize   int
	allowedKinds []string // empty means every provider kind may use it
	annotate     func(n *ast.Node) error
	compile      func(pv *Provider, p *isa.Program, n *ast.Node) error
}

// taskCommLen matches the kernel's TASK_COMM_LEN: the fixed buffer
// size get_current_comm writes into.
const taskCommLen = 16

// x86_64 struct pt_regs field offsets (arch/x86/include/asm/ptrace.h):
// the fixed kernel ABI layout argN/retval read from the probe context
// pointer saved in r9. These are architecture constants, not logic a
// library would provide, so they are hardcoded the same way a
// single-target-arch C implementation would hardcode them.
const (
	regRAX int16 = 80  // return value (kretprobe only)
	regRDI int16 = 112 // arg0
	regRSI int16 = 104 // arg1
	regRDX int16 = 96  // arg2
	regRCX int16 = 88  // arg3
	regR8  int16 = 72  // arg4
	regR9  int16 = 64  // arg5
)

var argRegOffsets = []int16{regRDI, regRSI, regRDX, regRCX, regR8, regR9}

var builtinTable = map[string]*builtin{
	"pid":     {resultType: ast.TypeInt, resultSize: 8, compile: compilePid},
	"tid":     {resultType: ast.TypeInt, resultSize: 8, compile: compileTid},
	"uid":     {resultType: ast.TypeInt, resultSize: 8, compile: compileUid},
	"gid":     {resultType: ast.TypeInt, resultSize: 8, compile: compileGid},
	"nsec":    {resultType: ast.TypeInt, resultSize: 8, compile: compileNsec},
	"comm":    {resultType: ast.TypeStr, resultSize: taskCommLen, compile: compileComm},
	"retval":  {resultType: ast.TypeInt, resultSize: 8, allowedKinds: []string{"r"}, compile: compileRetval},
	"stackid": {resultType: ast.TypeInt, resultSize: 8, compile: compileStackIDBuiltin},
	"log2":    {resultType: ast.TypeInt, resultSize: 8, annotate: requireArgc(1), compile: compileLog2Call},
	"count":   {resultType: ast.TypeInt, resultSize: 8, annotate: requireArgc(0), compile: compileCountMethod},
	"quantize": {resultType: ast.TypeInt, resultSize: 8, annotate: requireArgc(1), compile: compileQuantizeMethod},
	"printf": {
		// TypeInt (rather than TypeNone) keeps annotateNodeSizeType's
		// generic "fall back to int/8 if still TypeNone" pass from
		// clobbering the staging-buffer size annotatePrintf computes.
		resultType: ast.TypeInt,
		annotate:   annotatePrintf,
		compile:    compilePrintf,
	},
}

// lookupBuiltin resolves a call name to its builtin, synthesizing
// arg0..arg5 entries on demand rather than pre-populating six nearly
// identical table rows.
func lookupBuiltin(name string) (*builtin, bool) {
	if b, ok := builtinTable[name]; ok {
		return b, true
	}
	if idx, ok := argIndex(name); ok {
		return argBuiltin(idx), true
	}
	return nil, false
}

func argIndex(name string) (int, bool) {
	if !strings.HasPrefix(name, "arg") {
		return 0, false
	}
	n, err := strconv.Atoi(name[len("arg"):])
	if err != nil || n < 0 || n >= len(argRegOffsets) {
		return 0, false
	}
	return n, true
}

func argBuiltin(idx int) *builtin {
	off := argRegOffsets[idx]
	return &builtin{
		resultType: ast.TypeInt,
		resultSize: 8,
		compile: func(pv *Provider, p *isa.Program, n *ast.Node) error {
			return compileCtxField(p, n, off)
		},
	}
}

// requireArgc returns an annotate hook rejecting any call whose
// argument list doesn't have exactly n elements.
func requireArgc(n int) func(*ast.Node) error {
	return func(call *ast.Node) error {
		if len(call.Children) != n {
			return cerr.New(cerr.KindUnknownBuiltin, call.Name, "expected %d argument(s), got %d", n, len(call.Children))
		}
		return nil
	}
}

func annotatePrintf(call *ast.Node) error {
	if len(call.Children) == 0 || call.Children[0].Kind != ast.KindStr {
		return cerr.New(cerr.KindUnknownBuiltin, call.Name, "printf requires a string format as its first argument")
	}
	// the staging buffer holds one 8-byte slot for the format id plus
	// one per value argument.
	call.Dyn.Size = 8 * len(call.Children)
	return nil
}

// compileCtxField loads the 8-byte field at off within the probe
// context struct (pointed to by r9, saved in the prologue) and
// transfers it to n's declared location.
func compileCtxField(p *isa.Program, n *ast.Node, off int16) error {
	if _, err := p.Emit(isa.LDXDW(scratchReg, off, isa.R9)); err != nil {
		return err
	}
	return layout.EmitXfer(p, n, regAt(scratchReg), scratchReg)
}

func compileRetval(pv *Provider, p *isa.Program, n *ast.Node) error {
	return compileCtxField(p, n, regRAX)
}

// compilePid calls get_current_pid_tgid and masks the result to its
// low 32 bits. The "pid == 42" end-to-end scenario names this exact
// shape ("mask low 32 bits") — this back end follows that naming even
// though it differs from the kernel's own tgid/pid terminology.
func compilePid(pv *Provider, p *isa.Program, n *ast.Node) error {
	if _, err := p.Emit(isa.CALL(isa.HelperGetCurrentPidTgid)); err != nil {
		return err
	}
	if _, err := p.Emit(isa.ALU_IMM(isa.AluLsh, isa.R0, 32)); err != nil {
		return err
	}
	if _, err := p.Emit(isa.ALU_IMM(isa.AluRsh, isa.R0, 32)); err != nil {
		return err
	}
	return layout.EmitXfer(p, n, regAt(isa.R0), scratchReg)
}

// compileTid calls get_current_pid_tgid and keeps the high 32 bits —
// the complement of compilePid's masking.
func compileTid(pv *Provider, p *isa.Program, n *ast.Node) error {
	if _, err := p.Emit(isa.CALL(isa.HelperGetCurrentPidTgid)); err != nil {
		return err
	}
	if _, err := p.Emit(isa.ALU_IMM(isa.AluRsh, isa.R0, 32)); err != nil {
		return err
	}
	return layout.EmitXfer(p, n, regAt(isa.R0), scratchReg)
}

func compileUid(pv *Provider, p *isa.Program, n *ast.Node) error {
	if _, err := p.Emit(isa.CALL(isa.HelperGetCurrentUidGid)); err != nil {
		return err
	}
	if _, err := p.Emit(isa.ALU_IMM(isa.AluLsh, isa.R0, 32)); err != nil {
		return err
	}
	if _, err := p.Emit(isa.ALU_IMM(isa.AluRsh, isa.R0, 32)); err != nil {
		return err
	}
	return layout.EmitXfer(p, n, regAt(isa.R0), scratchReg)
}

func compileGid(pv *Provider, p *isa.Program, n *ast.Node) error {
	if _, err := p.Emit(isa.CALL(isa.HelperGetCurrentUidGid)); err != nil {
		return err
	}
	if _, err := p.Emit(isa.ALU_IMM(isa.AluRsh, isa.R0, 32)); err != nil {
		return err
	}
	return layout.EmitXfer(p, n, regAt(isa.R0), scratchReg)
}

func compileNsec(pv *Provider, p *isa.Program, n *ast.Node) error {
	if _, err := p.Emit(isa.CALL(isa.HelperKtimeGetNs)); err != nil {
		return err
	}
	return layout.EmitXfer(p, n, regAt(isa.R0), scratchReg)
}

// compileComm calls get_current_comm(buf, size) directly into the
// node's own stack slot: unlike the int-valued builtins, a string
// result is never register-shadowed, so there is nothing further to
// transfer once the helper returns.
func compileComm(pv *Provider, p *isa.Program, n *ast.Node) error {
	if _, err := p.Emit(isa.MOV(isa.R1, isa.R10)); err != nil {
		return err
	}
	if _, err := p.Emit(isa.ALU_IMM(isa.AluAdd, isa.R1, int32(n.Dyn.Addr))); err != nil {
		return err
	}
	if _, err := p.Emit(isa.MOV_IMM(isa.R2, int32(n.Dyn.Size))); err != nil {
		return err
	}
	_, err := p.Emit(isa.CALL(isa.HelperGetCurrentComm))
	return err
}

func compileStackIDBuiltin(pv *Provider, p *isa.Program, n *ast.Node) error {
	return pv.compileStackID(p, n)
}
