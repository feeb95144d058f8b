package lang

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ply/internal/ast"
)

func TestParseEmptyKprobe(t *testing.T) {
	script, err := Parse(`kprobe:sys_read { }`)
	require.NoError(t, err)
	require.Len(t, script.Children, 1)

	probe := script.Children[0]
	require.Equal(t, ast.KindProbe, probe.Kind)
	require.Equal(t, "kprobe:sys_read", probe.Name)
	require.Nil(t, probe.Pred)
	require.Empty(t, probe.Children)
}

func TestParseSimplePredicate(t *testing.T) {
	script, err := Parse(`kprobe:sys_read /pid == 42/ { }`)
	require.NoError(t, err)

	probe := script.Children[0]
	require.NotNil(t, probe.Pred)
	require.Equal(t, ast.KindBinop, probe.Pred.Kind)
	require.Equal(t, ast.OpEq, probe.Pred.BinOp)
	require.Equal(t, "pid", probe.Pred.Left.Name)
	require.Equal(t, ast.KindCall, probe.Pred.Left.Kind)
	require.Equal(t, int64(42), probe.Pred.Right.IntVal)
	require.Same(t, probe, probe.Pred.Parent)
}

func TestParseCounterMapMethodSugar(t *testing.T) {
	script, err := Parse(`kprobe:sys_read { @[pid] = count() }`)
	require.NoError(t, err)

	probe := script.Children[0]
	require.Len(t, probe.Children, 1)

	method := probe.Children[0]
	require.Equal(t, ast.KindMethod, method.Kind)
	require.Equal(t, ast.KindMap, method.Left.Kind)
	require.Len(t, method.Left.Children, 1)
	require.Equal(t, "pid", method.Left.Children[0].Name)

	call := method.Right
	require.Equal(t, ast.KindCall, call.Kind)
	require.Equal(t, "count", call.Name)
	require.Same(t, method, call.Parent, "methodReceiver relies on the nested call's Parent pointing at the Method node")
}

func TestParseMethodDotSyntaxEquivalent(t *testing.T) {
	script, err := Parse(`kprobe:sys_read { @[pid].count() }`)
	require.NoError(t, err)

	method := script.Children[0].Children[0]
	require.Equal(t, ast.KindMethod, method.Kind)
	require.Equal(t, "count", method.Right.Name)
}

func Test64BitLiteralAssignment(t *testing.T) {
	script, err := Parse(`kprobe:sys_read { @ = 0x1122334455667788 }`)
	require.NoError(t, err)

	assign := script.Children[0].Children[0]
	require.Equal(t, ast.KindAssign, assign.Kind)
	require.Equal(t, ast.AssignMov, assign.AssignOp)
	require.Equal(t, ast.KindMap, assign.Left.Kind)
	require.Empty(t, assign.Left.Children, "bare @ is the scalar accumulator: no key fields")
	require.Equal(t, int64(0x1122334455667788), assign.Right.IntVal)
}

func TestParsePrintfStatement(t *testing.T) {
	script, err := Parse(`kprobe:sys_read { printf("pid=%d\n", pid) }`)
	require.NoError(t, err)

	call := script.Children[0].Children[0]
	require.Equal(t, ast.KindCall, call.Kind)
	require.Equal(t, "printf", call.Name)
	require.Len(t, call.Children, 2)
	require.Equal(t, ast.KindStr, call.Children[0].Kind)
	require.Equal(t, "pid=%d\n", call.Children[0].StrVal)
	require.Equal(t, "pid", call.Children[1].Name)
}

func TestParseDeleteStatement(t *testing.T) {
	script, err := Parse(`kprobe:sys_read { @[pid] = nil }`)
	require.NoError(t, err)

	assign := script.Children[0].Children[0]
	require.Equal(t, ast.KindAssign, assign.Kind)
	require.Equal(t, ast.AssignDelete, assign.AssignOp)
	require.Nil(t, assign.Right)
}

func TestParseCompoundAssign(t *testing.T) {
	script, err := Parse(`kprobe:sys_read { @[pid] += 1 }`)
	require.NoError(t, err)

	assign := script.Children[0].Children[0]
	require.Equal(t, ast.KindAssign, assign.Kind)
	require.Equal(t, ast.AssignAdd, assign.AssignOp)
	require.Equal(t, int64(1), assign.Right.IntVal)
}

func TestParseReturnStatement(t *testing.T) {
	script, err := Parse(`kprobe:sys_read { return 1 }`)
	require.NoError(t, err)

	ret := script.Children[0].Children[0]
	require.Equal(t, ast.KindReturn, ret.Kind)
	require.Equal(t, int64(1), ret.Left.IntVal)
}

func TestParseBareReturn(t *testing.T) {
	script, err := Parse(`kprobe:sys_read { return }`)
	require.NoError(t, err)

	ret := script.Children[0].Children[0]
	require.Equal(t, ast.KindReturn, ret.Kind)
	require.Nil(t, ret.Left)
}

func TestParseBinopPrecedence(t *testing.T) {
	script, err := Parse(`kprobe:sys_read /pid == 1 + 2 * 3/ { }`)
	require.NoError(t, err)

	pred := script.Children[0].Pred
	require.Equal(t, ast.OpEq, pred.BinOp)
	rhs := pred.Right
	require.Equal(t, ast.OpAdd, rhs.BinOp)
	require.Equal(t, int64(1), rhs.Left.IntVal)
	require.Equal(t, ast.OpMul, rhs.Right.BinOp)
}

func TestParseNotOperator(t *testing.T) {
	script, err := Parse(`kprobe:sys_read /!pid/ { }`)
	require.NoError(t, err)

	pred := script.Children[0].Pred
	require.Equal(t, ast.KindNot, pred.Kind)
	require.Equal(t, "pid", pred.Left.Name)
}

func TestParseMultipleProbes(t *testing.T) {
	src := `
kprobe:sys_read { @[pid] = count() }
kretprobe:sys_read { printf("ret=%d\n", retval) }
`
	script, err := Parse(src)
	require.NoError(t, err)
	require.Len(t, script.Children, 2)
	require.Equal(t, "kprobe:sys_read", script.Children[0].Name)
	require.Equal(t, "kretprobe:sys_read", script.Children[1].Name)
}

func TestParseRejectsTrailingGarbage(t *testing.T) {
	_, err := Parse(`kprobe:sys_read { } garbage`)
	require.Error(t, err)
}

func TestParseRejectsUnterminatedString(t *testing.T) {
	_, err := Parse(`kprobe:sys_read { printf("unterminated) }`)
	require.Error(t, err)
}

func TestInferMapsTypesFromFirstOccurrence(t *testing.T) {
	script, err := Parse(`kprobe:sys_read {
		@bytes[pid] = 0x10
		@bytes[pid] += 1
	}`)
	require.NoError(t, err)
	require.Len(t, script.Dyn.Maps, 1)

	md := script.Dyn.Maps[0]
	require.Equal(t, "bytes", md.Name)
	require.Equal(t, ast.TypeInt, md.KeyType)
	require.Equal(t, ast.TypeInt, md.ValueType)
	require.Equal(t, 8, md.ValueSize)
}

func TestInferMapsStringValue(t *testing.T) {
	script, err := Parse(`kprobe:sys_read { @name[pid] = comm }`)
	require.NoError(t, err)

	md := script.Dyn.Maps[0]
	require.Equal(t, ast.TypeInt, md.ValueType, "comm is a builtin call, not a literal, so static inference falls back to int")
}

func TestInferMapsRecordKey(t *testing.T) {
	script, err := Parse(`kprobe:sys_read { @[pid, tid] = count() }`)
	require.NoError(t, err)

	md := script.Dyn.Maps[0]
	require.Equal(t, ast.TypeRec, md.KeyType)
	require.Equal(t, 16, md.KeySize)
}
