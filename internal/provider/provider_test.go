package provider

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ply/internal/ast"
	"ply/internal/isa"
	"ply/internal/layout"
)

// newScript builds a minimal script -> probe tree with the script's
// Dyn already initialized (so InternFormat and map lookups work),
// mirroring internal/emit's test helper of the same shape.
func newScript() (*ast.Node, *ast.Node) {
	script := &ast.Node{Kind: ast.KindScript}
	script.Script = script
	script.Dyn = ast.NewDyn()

	probe := ast.NewNode(ast.KindProbe, script)
	probe.Name = "kprobe:sys_read"
	script.AddChild(probe)
	probe.Dyn = ast.NewDyn()
	probe.Dyn.Loc = ast.LocVirtual
	return script, probe
}

func call(parent *ast.Node, name string, args ...*ast.Node) *ast.Node {
	n := ast.NewNode(ast.KindCall, parent)
	n.Name = name
	n.Children = args
	for _, a := range args {
		a.Parent = n
	}
	return n
}

func intLit(v int64) *ast.Node {
	return &ast.Node{Kind: ast.KindInt, IntVal: v, Dyn: &ast.Dyn{Type: ast.TypeInt, Size: 8}}
}

func strLit(s string) *ast.Node {
	return &ast.Node{Kind: ast.KindStr, StrVal: s, Dyn: &ast.Dyn{Type: ast.TypeStr, Size: ast.AlignUp(len(s) + 1)}}
}

func TestProviderNameMatchesConstructor(t *testing.T) {
	require.Equal(t, "kprobe", NewKprobeProvider().ProviderName())
	require.Equal(t, "kretprobe", NewKretprobeProvider().ProviderName())
}

func TestDefaultsRegistersBothNamespaces(t *testing.T) {
	reg := Defaults()
	_, ok := reg.Lookup("kprobe")
	require.True(t, ok)
	_, ok = reg.Lookup("kretprobe")
	require.True(t, ok)
	_, ok = reg.Lookup("uprobe")
	require.False(t, ok)
}

func TestAnnotateUnknownBuiltinErrors(t *testing.T) {
	_, probe := newScript()
	bogus := call(probe, "not_a_builtin")
	probe.Children = append(probe.Children, bogus)

	pv := NewKprobeProvider()
	err := pv.Annotate(probe)
	require.Error(t, err)
}

func TestAnnotateRetvalRejectedOnKprobe(t *testing.T) {
	_, probe := newScript()
	rv := call(probe, "retval")
	probe.Children = append(probe.Children, rv)

	pv := NewKprobeProvider()
	require.Error(t, pv.Annotate(probe))
}

func TestAnnotateRetvalAllowedOnKretprobe(t *testing.T) {
	_, probe := newScript()
	rv := call(probe, "retval")
	probe.Children = append(probe.Children, rv)

	pv := NewKretprobeProvider()
	require.NoError(t, pv.Annotate(probe))
	require.Equal(t, ast.TypeInt, rv.Dyn.Type)
}

func TestAnnotateCommSetsStringType(t *testing.T) {
	_, probe := newScript()
	c := call(probe, "comm")
	probe.Children = append(probe.Children, c)

	pv := NewKprobeProvider()
	require.NoError(t, pv.Annotate(probe))
	require.Equal(t, ast.TypeStr, c.Dyn.Type)
	require.Equal(t, taskCommLen, c.Dyn.Size)
}

func TestAnnotatePrintfComputesStagingSize(t *testing.T) {
	_, probe := newScript()
	pf := call(probe, "printf", strLit("pid=%d\n"), intLit(0))
	probe.Children = append(probe.Children, pf)

	pv := NewKprobeProvider()
	require.NoError(t, pv.Annotate(probe))
	require.Equal(t, 16, pf.Dyn.Size) // fmt-id slot + one arg slot
}

func TestAnnotatePrintfMissingFormatErrors(t *testing.T) {
	_, probe := newScript()
	pf := call(probe, "printf", intLit(1))
	probe.Children = append(probe.Children, pf)

	pv := NewKprobeProvider()
	require.Error(t, pv.Annotate(probe))
}

func TestLocAssignStringBuiltinGoesToStack(t *testing.T) {
	pv := NewKprobeProvider()
	n := &ast.Node{Kind: ast.KindCall, Name: "comm", Dyn: &ast.Dyn{Type: ast.TypeStr, Size: taskCommLen}}
	var frame layout.StackFrame
	regs := layout.NewStatementRegSet()
	require.NoError(t, pv.LocAssign(n, &regs, &frame))
	require.Equal(t, ast.LocStack, n.Dyn.Loc)
}

func TestLocAssignPrintfGoesToStackRegardlessOfType(t *testing.T) {
	pv := NewKprobeProvider()
	n := &ast.Node{Kind: ast.KindCall, Name: "printf", Dyn: &ast.Dyn{Type: ast.TypeInt, Size: 24}}
	var frame layout.StackFrame
	regs := layout.NewStatementRegSet()
	require.NoError(t, pv.LocAssign(n, &regs, &frame))
	require.Equal(t, ast.LocStack, n.Dyn.Loc)
}

func TestLocAssignIntBuiltinDefersToDefaultPolicy(t *testing.T) {
	pv := NewKprobeProvider()
	n := &ast.Node{Kind: ast.KindCall, Name: "pid", Dyn: &ast.Dyn{Type: ast.TypeInt, Size: 8}}
	var frame layout.StackFrame
	regs := layout.NewStatementRegSet()
	require.NoError(t, pv.LocAssign(n, &regs, &frame))
	require.Equal(t, ast.LocReg, n.Dyn.Loc)
}

func TestCompilePidEmitsHelperCallAndMask(t *testing.T) {
	prog := isa.NewProgram(false)
	pv := NewKprobeProvider()
	n := &ast.Node{Kind: ast.KindCall, Name: "pid", Dyn: &ast.Dyn{Type: ast.TypeInt, Size: 8, Loc: ast.LocReg, Reg: int(isa.R3)}}

	require.NoError(t, pv.Compile(prog, n))

	var sawCall bool
	for _, insn := range prog.Insns {
		if insn.OpCode&0x07 == 0x05 && isa.JmpOp(insn.OpCode&0xf0) == isa.JmpCall && insn.Imm == isa.HelperGetCurrentPidTgid {
			sawCall = true
		}
	}
	require.True(t, sawCall)
}

func TestCompileArgNLoadsCtxOffset(t *testing.T) {
	prog := isa.NewProgram(false)
	pv := NewKprobeProvider()
	n := &ast.Node{Kind: ast.KindCall, Name: "arg0", Dyn: &ast.Dyn{Type: ast.TypeInt, Size: 8, Loc: ast.LocReg, Reg: int(isa.R2)}}

	require.NoError(t, pv.Compile(prog, n))
	require.Equal(t, regRDI, prog.Insns[0].Off)
	require.Equal(t, isa.R9, prog.Insns[0].Src)
}

func TestCompileUnknownBuiltinErrors(t *testing.T) {
	prog := isa.NewProgram(false)
	pv := NewKprobeProvider()
	n := &ast.Node{Kind: ast.KindCall, Name: "nope", Dyn: &ast.Dyn{Type: ast.TypeInt, Size: 8}}
	require.Error(t, pv.Compile(prog, n))
}

func TestSetupResolvesTargetAndKind(t *testing.T) {
	pv := NewKprobeProvider()
	probe := &ast.Node{Kind: ast.KindProbe, Name: "kprobe:sys_read"}
	spec, err := pv.Setup(probe)
	require.NoError(t, err)
	require.Equal(t, "p", spec.Kind)
	require.Equal(t, "sys_read", spec.Target)

	pvr := NewKretprobeProvider()
	spec, err = pvr.Setup(&ast.Node{Kind: ast.KindProbe, Name: "kretprobe:sys_read"})
	require.NoError(t, err)
	require.Equal(t, "r", spec.Kind)
}

func TestSetupRejectsMissingTarget(t *testing.T) {
	pv := NewKprobeProvider()
	_, err := pv.Setup(&ast.Node{Kind: ast.KindProbe, Name: "kprobe"})
	require.Error(t, err)
}

func TestCompileLog2UsesDistinctSrcDstRegisters(t *testing.T) {
	prog := isa.NewProgram(false)
	pv := NewKprobeProvider()
	arg := intLit(8)
	n := &ast.Node{Kind: ast.KindCall, Name: "log2", Children: []*ast.Node{arg}, Dyn: &ast.Dyn{Type: ast.TypeInt, Size: 8, Loc: ast.LocReg, Reg: int(isa.R1)}}

	require.NoError(t, pv.Compile(prog, n))
	require.NotEmpty(t, prog.Insns)
	// the literal argument lands in r1 (src); the result register r1
	// collides with it, so the search's first write targets r2 (dst).
	require.Equal(t, isa.R1, prog.Insns[0].Dst)
	require.Equal(t, isa.R2, prog.Insns[1].Dst)
}

func TestCompileCountMethodIncrementsMapValue(t *testing.T) {
	prog := isa.NewProgram(false)
	pv := NewKprobeProvider()

	mapNode := &ast.Node{Kind: ast.KindMap, Name: "@", Dyn: &ast.Dyn{Type: ast.TypeInt, Size: 8, Loc: ast.LocStack, Addr: -8}}
	method := &ast.Node{Kind: ast.KindMethod, Left: mapNode}
	countCall := &ast.Node{Kind: ast.KindCall, Name: "count", Parent: method, Dyn: &ast.Dyn{Type: ast.TypeInt, Size: 8}}
	method.Right = countCall

	require.NoError(t, pv.Compile(prog, countCall))

	var sawStore bool
	for _, insn := range prog.Insns {
		if insn.OpCode&0x07 == 0x03 { // classStoreReg
			sawStore = true
		}
	}
	require.True(t, sawStore)
}

func TestRequireArgcRejectsWrongCount(t *testing.T) {
	c := call(nil, "log2", intLit(1), intLit(2))
	err := requireArgc(1)(c)
	require.Error(t, err)
}
