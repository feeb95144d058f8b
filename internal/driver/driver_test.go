package driver

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"ply/internal/ast"
)

func TestNamespaceOfSplitsOnColon(t *testing.T) {
	require.Equal(t, "kprobe", namespaceOf("kprobe:sys_read"))
	require.Equal(t, "kretprobe", namespaceOf("kretprobe:sys_read"))
}

func TestNamespaceOfNoColonReturnsWhole(t *testing.T) {
	require.Equal(t, "kprobe", namespaceOf("kprobe"))
}

func TestProbeFailureString(t *testing.T) {
	f := probeFailure{Probe: "kprobe:sys_read", Err: errors.New("boom")}
	require.Equal(t, "kprobe:sys_read: boom", f.String())
}

func newScript() *ast.Node {
	script := ast.NewNode(ast.KindScript, nil)
	script.Script = script
	return script
}

func newProbe(script *ast.Node, name string) *ast.Node {
	probe := ast.NewNode(ast.KindProbe, script)
	probe.Name = name
	script.AddChild(probe)
	return probe
}

func TestUsesStackIDFalseWhenNoProbeReferencesIt(t *testing.T) {
	script := newScript()
	probe := newProbe(script, "kprobe:sys_read")
	stmt := ast.NewNode(ast.KindCall, probe)
	stmt.Name = "comm"
	probe.AddChild(stmt)

	require.False(t, usesStackID(script))
}

func TestUsesStackIDTrueInStatement(t *testing.T) {
	script := newScript()
	probe := newProbe(script, "kprobe:sys_read")
	stmt := ast.NewNode(ast.KindStackID, probe)
	probe.AddChild(stmt)

	require.True(t, usesStackID(script))
}

func TestUsesStackIDTrueNestedInPredicate(t *testing.T) {
	script := newScript()
	probe := newProbe(script, "kprobe:sys_read")
	probe.Pred = ast.NewNode(ast.KindNot, probe)
	probe.Pred.Left = ast.NewNode(ast.KindStackMap, probe.Pred)

	require.True(t, usesStackID(script))
}

func TestUsesStackIDTrueNestedInBinop(t *testing.T) {
	script := newScript()
	probe := newProbe(script, "kprobe:sys_read")
	bin := ast.NewNode(ast.KindBinop, probe)
	bin.Left = ast.NewNode(ast.KindInt, bin)
	bin.Right = ast.NewNode(ast.KindStackID, bin)
	probe.AddChild(bin)

	require.True(t, usesStackID(script))
}
