package layout

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ply/internal/ast"
	"ply/internal/isa"
)

func TestAcquireReleaseRegLowestBitFirst(t *testing.T) {
	regs := NewStatementRegSet()
	r0, ok := AcquireReg(&regs)
	require.True(t, ok)
	require.Equal(t, isa.R0, r0)

	r1, ok := AcquireReg(&regs)
	require.True(t, ok)
	require.Equal(t, isa.R1, r1)

	ReleaseReg(&regs, r0)
	r0Again, ok := AcquireReg(&regs)
	require.True(t, ok)
	require.Equal(t, isa.R0, r0Again)
}

func TestStatementRegSetExcludesDynRegs(t *testing.T) {
	regs := NewStatementRegSet()
	require.Zero(t, regs&DynRegsMask, "dyn regs r6-r8 must not be handed out by the general allocator")
}

func TestAcquireDynRegIndependentOfGeneralSet(t *testing.T) {
	var used uint16
	r, ok := AcquireDynReg(&used)
	require.True(t, ok)
	require.Equal(t, isa.R6, r)

	regs := NewStatementRegSet()
	_, ok = AcquireReg(&regs)
	require.True(t, ok, "acquiring a dyn reg must not perturb the general-purpose free set")
}

func TestHelperClobberReserveRestore(t *testing.T) {
	regs := NewStatementRegSet()
	saved := ReserveHelperClobbered(&regs)
	require.Zero(t, regs&HelperClobberMask)
	RestoreHelperClobbered(&regs, saved)
	require.Equal(t, NewStatementRegSet(), regs)
}

func TestStackFrameAllocMonotonicallyDecreasing(t *testing.T) {
	var f StackFrame
	a := f.Alloc(4) // rounds up to 8
	b := f.Alloc(8)
	require.Less(t, b, a)
	require.Zero(t, a%8)
	require.Zero(t, b%8)
	require.Equal(t, b, f.SP())
}

func TestAssignContiguousFieldsLaysOutAscending(t *testing.T) {
	var f StackFrame
	fields := []*ast.Node{
		{Dyn: &ast.Dyn{Size: 8}},
		{Dyn: &ast.Dyn{Size: 8}},
		{Dyn: &ast.Dyn{Size: 4}}, // rounds to 8
	}
	assignContiguousFields(fields, &f)

	for _, field := range fields {
		require.Equal(t, ast.LocStack, field.Dyn.Loc)
	}
	require.Less(t, fields[0].Dyn.Addr, fields[1].Dyn.Addr)
	require.Less(t, fields[1].Dyn.Addr, fields[2].Dyn.Addr)
	require.Equal(t, fields[0].Dyn.Addr+8, fields[1].Dyn.Addr)
	require.Equal(t, fields[1].Dyn.Addr+8, fields[2].Dyn.Addr)
}

func TestDefaultLocAssignPrefersRegisterWhenAvailable(t *testing.T) {
	n := &ast.Node{Kind: ast.KindBinop, Dyn: &ast.Dyn{Type: ast.TypeInt, Size: 8}}
	regs := NewStatementRegSet()
	var frame StackFrame

	require.NoError(t, DefaultLocAssign(n, &regs, &frame))
	require.Equal(t, ast.LocReg, n.Dyn.Loc)
}

func TestDefaultLocAssignSpillsToStackWhenRegsExhausted(t *testing.T) {
	n := &ast.Node{Kind: ast.KindBinop, Dyn: &ast.Dyn{Type: ast.TypeInt, Size: 8}}
	regs := DynRegsMask // all dyn regs already reserved, nothing left to hand out
	var frame StackFrame

	require.NoError(t, DefaultLocAssign(n, &regs, &frame))
	require.Equal(t, ast.LocStack, n.Dyn.Loc)
	require.Less(t, n.Dyn.Addr, 0)
}

func TestDefaultLocAssignStringAlwaysStack(t *testing.T) {
	n := &ast.Node{Kind: ast.KindStr, Dyn: &ast.Dyn{Type: ast.TypeStr, Size: 16}}
	regs := NewStatementRegSet()
	var frame StackFrame

	require.NoError(t, DefaultLocAssign(n, &regs, &frame))
	require.Equal(t, ast.LocStack, n.Dyn.Loc)
}

// recordingEmitter captures emitted instructions for assertions
// without needing a full Program.
type recordingEmitter struct {
	insns []isa.Insn
}

func (r *recordingEmitter) Emit(insn isa.Insn) (int, error) {
	r.insns = append(r.insns, insn)
	return len(r.insns) - 1, nil
}

func (r *recordingEmitter) EmitWide(words [2]isa.Insn) (int, error) {
	r.insns = append(r.insns, words[0], words[1])
	return len(r.insns) - 2, nil
}

func TestEmitXferLiteralIntSmallGoesToMovImm(t *testing.T) {
	e := &recordingEmitter{}
	to := &ast.Node{Kind: ast.KindInt, Dyn: &ast.Dyn{Loc: ast.LocReg, Reg: int(isa.R3)}}
	from := &ast.Node{Kind: ast.KindInt, IntVal: 42}

	require.NoError(t, EmitXfer(e, to, from, isa.R9))
	require.Len(t, e.insns, 1)
	require.Equal(t, int32(42), e.insns[0].Imm)
}

func TestEmitXferLiteralIntWideUsesTwoWordForm(t *testing.T) {
	e := &recordingEmitter{}
	to := &ast.Node{Kind: ast.KindInt, Dyn: &ast.Dyn{Loc: ast.LocReg, Reg: int(isa.R3)}}
	from := &ast.Node{Kind: ast.KindInt, IntVal: 1 << 40}

	require.NoError(t, EmitXfer(e, to, from, isa.R9))
	require.Len(t, e.insns, 2)
}

func TestEmitXferLiteralStrDecomposesIntoWordStores(t *testing.T) {
	e := &recordingEmitter{}
	to := &ast.Node{Kind: ast.KindStr, Dyn: &ast.Dyn{Loc: ast.LocStack, Addr: -16, Size: 8}}
	from := &ast.Node{Kind: ast.KindStr, StrVal: "hi"}

	require.NoError(t, EmitXfer(e, to, from, isa.R9))
	require.Len(t, e.insns, 2) // 8 bytes / 4-byte words
	require.Equal(t, int16(-16), e.insns[0].Off)
	require.Equal(t, int16(-12), e.insns[1].Off)
}

func TestEmitXferRegToRegSkipsNoOpMove(t *testing.T) {
	e := &recordingEmitter{}
	to := &ast.Node{Kind: ast.KindBinop, Dyn: &ast.Dyn{Loc: ast.LocReg, Reg: int(isa.R2)}}
	from := &ast.Node{Kind: ast.KindBinop, Dyn: &ast.Dyn{Loc: ast.LocReg, Reg: int(isa.R2)}}

	require.NoError(t, EmitXfer(e, to, from, isa.R9))
	require.Empty(t, e.insns)
}

func TestEmitXferStackToStackGoesThroughScratch(t *testing.T) {
	e := &recordingEmitter{}
	to := &ast.Node{Kind: ast.KindBinop, Dyn: &ast.Dyn{Type: ast.TypeInt, Loc: ast.LocStack, Addr: -8}}
	from := &ast.Node{Kind: ast.KindBinop, Dyn: &ast.Dyn{Type: ast.TypeInt, Loc: ast.LocStack, Addr: -16}}

	require.NoError(t, EmitXfer(e, to, from, isa.R9))
	require.Len(t, e.insns, 2) // load into scratch, store from scratch
}

func TestEmitXferDestinationUnresolvedIsError(t *testing.T) {
	e := &recordingEmitter{}
	to := &ast.Node{Kind: ast.KindBinop, Dyn: &ast.Dyn{Loc: ast.LocNowhere}}
	from := &ast.Node{Kind: ast.KindInt, IntVal: 1}

	err := EmitXfer(e, to, from, isa.R9)
	require.Error(t, err)
}
