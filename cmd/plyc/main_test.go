package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadSourceReadsExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trace.ply")
	require.NoError(t, os.WriteFile(path, []byte("kprobe:sys_read { printf(\"hit\\n\"); }"), 0o644))

	src, err := loadSource(path)
	require.NoError(t, err)
	require.Contains(t, src, "kprobe:sys_read")
}

func TestLoadSourceFallsBackToLiteralText(t *testing.T) {
	src, err := loadSource(`kprobe:sys_read { printf("hit\n"); }`)
	require.NoError(t, err)
	require.Contains(t, src, "kprobe:sys_read")
}

func TestNewRootCmdRegistersFlags(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"ascii", "debug", "dump", "strict", "timeout", "output", "command"} {
		require.NotNil(t, cmd.Flags().Lookup(name), "missing flag %q", name)
	}
}
