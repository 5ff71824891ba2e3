package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egdose/reqwrap"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "version")
	require.NoError(t, err)
	assert.Equal(t, reqwrap.GetVersion(), strings.TrimSpace(out))
}

func TestCachePathCommand(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("REQWRAP_CACHE_DIR", dir)

	out, err := runCommand(t, "cache", "path")
	require.NoError(t, err)
	assert.Equal(t, dir, strings.TrimSpace(out))
}

func TestCacheSizeCommand(t *testing.T) {
	t.Setenv("REQWRAP_CACHE_DIR", t.TempDir())

	out, err := runCommand(t, "cache", "size")
	require.NoError(t, err)
	assert.Equal(t, "0", strings.TrimSpace(out))
}

func TestCacheClearCommand(t *testing.T) {
	t.Setenv("REQWRAP_CACHE_DIR", t.TempDir())

	out, err := runCommand(t, "cache", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Cleared 0 cached entries")
}

func TestFetchCommandRejectsMalformedHeader(t *testing.T) {
	t.Setenv("REQWRAP_CACHE_DIR", t.TempDir())

	_, err := runCommand(t, "fetch", "https://example.com", "-H", "malformed")
	assert.Error(t, err)
}

func TestRootCommandRejectsBadConfigFile(t *testing.T) {
	_, err := runCommand(t, "version", "--config", "/nonexistent/reqwrap.toml")
	assert.Error(t, err)
}
