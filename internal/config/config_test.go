package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8, cfg.MaxGuardFlags)
	assert.Equal(t, 60, cfg.TimeoutSeconds)
	assert.Equal(t, 1, cfg.Jobs)
	assert.Equal(t, "mocks", cfg.MocksDir)
	assert.False(t, cfg.GitStage)
	assert.False(t, cfg.Verbose)
	assert.Contains(t, cfg.Defines, "CONFIG_X86")
	assert.Contains(t, cfg.Defines, "CONFIG_BT_MAX_CONN=2")
	assert.Contains(t, cfg.IncludeDirs, "subsys/bluetooth/host")
}

func TestLoadProjectConfig(t *testing.T) {
	dir := t.TempDir()
	configDir := filepath.Join(dir, ".mockprobe")
	require.NoError(t, os.MkdirAll(configDir, 0o755))

	content := []byte("max_guard_flags: 5\nmocks_dir: fakes\ndefines:\n  - CONFIG_ARM\n")
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.yaml"), content, 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.MaxGuardFlags)
	assert.Equal(t, "fakes", cfg.MocksDir)
	assert.Equal(t, []string{"CONFIG_ARM"}, cfg.Defines)
	// Untouched fields keep defaults.
	assert.Equal(t, 60, cfg.TimeoutSeconds)
}

func TestLoadMissingProjectConfig(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().MaxGuardFlags, cfg.MaxGuardFlags)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	configDir := filepath.Join(dir, ".mockprobe")
	require.NoError(t, os.MkdirAll(configDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte("{not yaml"), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MOCKPROBE_MAX_GUARD_FLAGS", "3")
	t.Setenv("MOCKPROBE_PREPROCESSOR", "/opt/cc/bin/cpp")
	t.Setenv("MOCKPROBE_TIMEOUT_SECONDS", "120")
	t.Setenv("MOCKPROBE_VERBOSE", "true")
	t.Setenv("MOCKPROBE_KEEP_WORK", "1")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.MaxGuardFlags)
	assert.Equal(t, "/opt/cc/bin/cpp", cfg.Preprocessor)
	assert.Equal(t, 120, cfg.TimeoutSeconds)
	assert.True(t, cfg.Verbose)
	assert.True(t, cfg.KeepWork)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults pass", func(c *Config) {}, false},
		{"zero guard flags", func(c *Config) { c.MaxGuardFlags = 0 }, true},
		{"guard flags too high", func(c *Config) { c.MaxGuardFlags = 17 }, true},
		{"zero timeout", func(c *Config) { c.TimeoutSeconds = 0 }, true},
		{"zero jobs", func(c *Config) { c.Jobs = 0 }, true},
		{"missing platform root", func(c *Config) { c.PlatformRoot = "/nonexistent/zephyr" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TimeoutSeconds = 90
	assert.Equal(t, 90*time.Second, cfg.Timeout())
}

func TestIncludePaths(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "include"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "subsys", "bluetooth"), 0o755))

	cfg := DefaultConfig()
	cfg.PlatformRoot = root
	cfg.IncludeDirs = []string{"include", "subsys/bluetooth", "does/not/exist"}

	paths := cfg.IncludePaths()
	assert.Equal(t, []string{
		filepath.Join(root, "include"),
		filepath.Join(root, "subsys", "bluetooth"),
	}, paths)
}

func TestIncludePathsAbsolutePassthrough(t *testing.T) {
	abs := t.TempDir()
	cfg := DefaultConfig()
	cfg.IncludeDirs = []string{abs}

	assert.Equal(t, []string{abs}, cfg.IncludePaths())
}

func TestScratchRoot(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, filepath.Join(os.TempDir(), "mockprobe"), cfg.ScratchRoot())

	cfg.WorkDir = "/var/scratch"
	assert.Equal(t, "/var/scratch", cfg.ScratchRoot())
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.MaxGuardFlags = 6
	cfg.MocksDir = "test_doubles"
	require.NoError(t, cfg.Save(dir))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 6, loaded.MaxGuardFlags)
	assert.Equal(t, "test_doubles", loaded.MocksDir)
}
