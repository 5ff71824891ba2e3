package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reqwrap.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Client.RetryCount)
	assert.Equal(t, "httpcache", cfg.Client.CacheDir)
	assert.Equal(t, 30*time.Second, cfg.Client.Timeout)
	assert.True(t, cfg.Client.VerifySSL)
	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, "info", cfg.Log.ConsoleLevel)
	assert.Equal(t, "debug", cfg.Log.FileLevel)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("REQWRAP_RETRY_COUNT", "5")
	t.Setenv("REQWRAP_PROXIES", "http://a.example.com:8080, http://b.example.com:8080")
	t.Setenv("REQWRAP_CACHE_ENABLED", "true")
	t.Setenv("REQWRAP_CACHE_DIR", t.TempDir())
	t.Setenv("REQWRAP_CACHE_EXPIRY", "2h")
	t.Setenv("REQWRAP_TIMEOUT", "45s")
	t.Setenv("REQWRAP_VERIFY_SSL", "false")
	t.Setenv("REQWRAP_USER_AGENT", "custom-agent/1.0")
	t.Setenv("REQWRAP_ENV", "dev")
	t.Setenv("REQWRAP_LOG_CONSOLE_LEVEL", "WARN")

	cfg, err := loadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Client.RetryCount)
	assert.Equal(t, []string{"http://a.example.com:8080", "http://b.example.com:8080"}, cfg.Client.Proxies)
	assert.True(t, cfg.Client.CacheEnabled)
	assert.Equal(t, 2*time.Hour, cfg.Client.CacheExpiry)
	assert.Equal(t, 45*time.Second, cfg.Client.Timeout)
	assert.False(t, cfg.Client.VerifySSL)
	assert.Equal(t, "custom-agent/1.0", cfg.Client.UserAgent)
	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "warn", cfg.Log.ConsoleLevel)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfigFile(t, `
retry_count = 7
retry_status_codes = [500, 503]
proxies = ["http://p.example.com:8080"]
cache_enabled = true
cache_dir = "/tmp/reqwrap-test-cache"
cache_compress = true
cache_expiry = "1h"
timeout = "20s"
verify_ssl = false
user_agent = "file-agent/1.0"
env = "dev"

[log]
console_level = "warn"
file_level = "info"
file = "/tmp/reqwrap.log"
error_file = "/tmp/reqwrap-errors.log"
`)

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Client.RetryCount)
	assert.Equal(t, []int{500, 503}, cfg.Client.RetryStatusCodes)
	assert.Equal(t, []string{"http://p.example.com:8080"}, cfg.Client.Proxies)
	assert.True(t, cfg.Client.CacheEnabled)
	assert.Equal(t, "/tmp/reqwrap-test-cache", cfg.Client.CacheDir)
	assert.True(t, cfg.Client.CacheCompress)
	assert.Equal(t, time.Hour, cfg.Client.CacheExpiry)
	assert.Equal(t, 20*time.Second, cfg.Client.Timeout)
	assert.False(t, cfg.Client.VerifySSL)
	assert.Equal(t, "file-agent/1.0", cfg.Client.UserAgent)
	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "warn", cfg.Log.ConsoleLevel)
	assert.Equal(t, "info", cfg.Log.FileLevel)
}

func TestLoadConfigFileOverridesEnv(t *testing.T) {
	t.Setenv("REQWRAP_RETRY_COUNT", "5")
	t.Setenv("REQWRAP_USER_AGENT", "env-agent/1.0")

	path := writeConfigFile(t, `retry_count = 9`)

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	// The file wins where it speaks; the environment stands elsewhere.
	assert.Equal(t, 9, cfg.Client.RetryCount)
	assert.Equal(t, "env-agent/1.0", cfg.Client.UserAgent)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		file string
	}{
		{"malformed retry count", map[string]string{"REQWRAP_RETRY_COUNT": "lots"}, ""},
		{"malformed timeout", map[string]string{"REQWRAP_TIMEOUT": "soon"}, ""},
		{"malformed cache flag", map[string]string{"REQWRAP_CACHE_ENABLED": "yep"}, ""},
		{"unknown env name", map[string]string{"REQWRAP_ENV": "staging"}, ""},
		{"negative retry count in file", nil, `retry_count = -1`},
		{"status code out of range in file", nil, `retry_status_codes = [700]`},
		{"malformed toml", nil, `retry_count = [`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.file != "" {
				path = writeConfigFile(t, tt.file)
			}
			_, err := loadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestDurationUnmarshalText(t *testing.T) {
	var d duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, time.Duration(d))

	assert.Error(t, d.UnmarshalText([]byte("ninety")))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList("a, b"))
	assert.Equal(t, []string{"a"}, splitList("a,,  ,"))
	assert.Empty(t, splitList(""))
}

func TestParsePairs(t *testing.T) {
	got, err := parsePairs([]string{"Accept: application/json", "X-Token: abc"}, ":")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Accept": "application/json", "X-Token": "abc"}, got)

	got, err = parsePairs([]string{"page=2"}, "=")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"page": "2"}, got)

	_, err = parsePairs([]string{"no-separator"}, ":")
	assert.Error(t, err)

	got, err = parsePairs(nil, ":")
	require.NoError(t, err)
	assert.Nil(t, got)
}
