package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResolvePathPrecedence(t *testing.T) {
	t.Setenv(PathEnv, "")
	explicit := "/tmp/custom.toml"
	resolved, err := ResolvePath(explicit)
	require.NoError(t, err)
	require.Equal(t, explicit, resolved)

	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	resolved, err = ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(xdg, "soloist", "config.toml"), resolved)

	t.Setenv("XDG_CONFIG_HOME", "")
	home := t.TempDir()
	t.Setenv("HOME", home)
	resolved, err = ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".config", "soloist", "config.toml"), resolved)
}

func TestResolvePathEnvAndHomeExpansion(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	t.Setenv(PathEnv, "/etc/soloist/shared.toml")
	resolved, err := ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, "/etc/soloist/shared.toml", resolved)

	resolved, err = ResolvePath("/tmp/flag.toml")
	require.NoError(t, err)
	require.Equal(t, "/tmp/flag.toml", resolved)

	resolved, err = ResolvePath("~/soloist.toml")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, "soloist.toml"), resolved)

	t.Setenv(PathEnv, "~/from-env.toml")
	resolved, err = ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, "from-env.toml"), resolved)

	resolved, err = ResolvePath("~user/other.toml")
	require.NoError(t, err)
	require.Equal(t, "~user/other.toml", resolved)
}

func TestLoadMissingConfigUsesDefaultsWithWarning(t *testing.T) {
	t.Setenv(LogLevelEnv, "")
	path := filepath.Join(t.TempDir(), "missing.toml")

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, path, loaded.Path)
	require.False(t, loaded.Exists)
	require.Equal(t, Default(), loaded.Config)
	require.NotEmpty(t, loaded.Warnings)
	require.Contains(t, loaded.Warnings[0].Message, "not found")
}

func TestLoadExistingTOMLParsesAndValidates(t *testing.T) {
	t.Setenv(LogLevelEnv, "")
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `
endpoint = "editor"

[timeouts]
connect_ms = 250
response_ms = 5000

[log]
level = "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.True(t, loaded.Exists)
	require.Equal(t, path, loaded.Path)
	require.Equal(t, "editor", loaded.Config.Endpoint)
	require.Equal(t, 250*time.Millisecond, loaded.Config.Timeouts.Connect)
	require.Equal(t, time.Second, loaded.Config.Timeouts.Send)
	require.Equal(t, 5*time.Second, loaded.Config.Timeouts.Response)
	require.Equal(t, "debug", loaded.Config.Log.Level)
	require.Empty(t, loaded.Warnings)
}

func TestLoadAppliesLogLevelEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[log]\nlevel = \"info\"\n"), 0o600))
	t.Setenv(LogLevelEnv, "warn")

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "warn", loaded.Config.Log.Level)

	t.Setenv(LogLevelEnv, "loud")
	_, err = Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "log.level")
}

func TestLoadParseErrorIncludesPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("endpoint = [unterminated\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse config")
	require.Contains(t, err.Error(), path)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv(LogLevelEnv, "")
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[timeouts]\nsend_ms = 0\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "timeouts.send_ms")
}
