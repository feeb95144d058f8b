package attach

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"ply/internal/ast"
)

func TestParseCPURangeSingle(t *testing.T) {
	cpus, err := parseCPURange("0")
	require.NoError(t, err)
	require.Equal(t, []int{0}, cpus)
}

func TestParseCPURangeDash(t *testing.T) {
	cpus, err := parseCPURange("0-3")
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2, 3}, cpus)
}

func TestParseCPURangeMixed(t *testing.T) {
	cpus, err := parseCPURange("0,2-3,7")
	require.NoError(t, err)
	require.Equal(t, []int{0, 2, 3, 7}, cpus)
}

func TestParseCPURangeRejectsGarbage(t *testing.T) {
	_, err := parseCPURange("0-bogus")
	require.Error(t, err)
}

func TestParseCPURangeRejectsEmpty(t *testing.T) {
	_, err := parseCPURange("")
	require.Error(t, err)
}

func TestHasGlobMeta(t *testing.T) {
	require.True(t, hasGlobMeta("sys_*"))
	require.True(t, hasGlobMeta("sys_read?"))
	require.False(t, hasGlobMeta("sys_read"))
}

func TestFilterFunctionNamesMatchesGlob(t *testing.T) {
	src := "sys_read\nsys_write\nsys_open\nsome.module.symbol\n"
	matches, err := filterFunctionNames(strings.NewReader(src), "sys_*")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"sys_read", "sys_write", "sys_open"}, matches)
}

func TestFilterFunctionNamesStripsModuleColumn(t *testing.T) {
	src := "sys_read [permanent]/0\nsys_write\n"
	matches, err := filterFunctionNames(strings.NewReader(src), "sys_*")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"sys_read", "sys_write"}, matches)
}

func TestFilterFunctionNamesErrorsOnNoMatch(t *testing.T) {
	_, err := filterFunctionNames(strings.NewReader("sys_read\n"), "totally_bogus_*")
	require.Error(t, err)
}

func TestMapSpecForUsesHashAndSizes(t *testing.T) {
	md := &ast.MapDyn{Name: "bytes", KeyType: ast.TypeInt, KeySize: 8, ValueType: ast.TypeInt, ValueSize: 8}
	spec := mapSpecFor(md)
	require.Equal(t, "bytes", spec.Name)
	require.Equal(t, uint32(8), spec.KeySize)
	require.Equal(t, uint32(8), spec.ValueSize)
}

func TestMapSpecForScalarMapGetsPlaceholderName(t *testing.T) {
	md := &ast.MapDyn{KeyType: ast.TypeInt, KeySize: 8, ValueType: ast.TypeInt, ValueSize: 8}
	spec := mapSpecFor(md)
	require.NotEmpty(t, spec.Name)
}

func TestShortProgNameTruncates(t *testing.T) {
	require.Equal(t, "kprobe:sys_read", shortProgName("kprobe:sys_read"))
	require.Equal(t, "a-very-long-pro", shortProgName("a-very-long-probe-name-indeed"))
	require.LessOrEqual(t, len(shortProgName("a-very-long-probe-name-indeed")), 15)
}
