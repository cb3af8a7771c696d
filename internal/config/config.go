// Package config handles loading and validation of mockprobe configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for mockprobe.
type Config struct {
	// PlatformRoot is the root of the platform source tree that modules
	// under analysis compile against.
	PlatformRoot string `yaml:"platform_root"`

	// Defines are the baseline macro definitions assumed during guard
	// evaluation and preprocessing, as NAME or NAME=VALUE entries.
	Defines []string `yaml:"defines"`

	// IncludeDirs are include directories handed to the preprocessor and
	// AST dumper, relative to PlatformRoot unless absolute.
	IncludeDirs []string `yaml:"include_dirs"`

	// Toolchain binary overrides. Empty values trigger PATH discovery.
	Preprocessor string `yaml:"preprocessor"`
	ASTDumper    string `yaml:"ast_dumper"`
	Linker       string `yaml:"linker"`

	// WorkDir is where per-run scratch directories are created.
	// Defaults to the system temp directory.
	WorkDir string `yaml:"work_dir"`

	// MocksDir is where generated mock headers and sources are placed,
	// relative to the module's test directory.
	MocksDir string `yaml:"mocks_dir"`

	// MaxGuardFlags caps the number of distinct flags considered per
	// conditional guard. Guards above the cap are reported, not solved.
	MaxGuardFlags int `yaml:"max_guard_flags"`

	// TimeoutSeconds bounds each external toolchain invocation.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// Jobs is the number of modules analyzed concurrently.
	Jobs int `yaml:"jobs"`

	// KeepWork retains scratch directories after a run for inspection.
	KeepWork bool `yaml:"keep_work"`

	// GitStage runs `git add` on files produced by test scaffolding.
	GitStage bool `yaml:"git_stage"`

	// Verbose enables debug logging.
	Verbose bool `yaml:"verbose"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Defines: []string{
			"CONFIG_X86",
			"CONFIG_NUM_COOP_PRIORITIES=4",
			"CONFIG_MP_NUM_CPUS=1",
			"CONFIG_SYS_CLOCK_TICKS_PER_SEC=100",
			"CONFIG_LOAPIC_BASE_ADDRESS=0xFEE00000",
			"CONFIG_SYS_CLOCK_HW_CYCLES_PER_SEC=20000000",
			"CONFIG_SYS_CLOCK_MAX_TIMEOUT_DAYS=1",
			"CONFIG_BT_SMP",
			"CONFIG_BT_ID_MAX=2",
			"CONFIG_BT_MAX_CONN=2",
		},
		IncludeDirs: []string{
			"subsys/bluetooth",
			"subsys/bluetooth/host",
			"include",
			"include/zephyr",
			"modules/crypto/tinycrypt/lib/include",
			"build/zephyr/include/generated",
		},
		MocksDir:       "mocks",
		MaxGuardFlags:  8,
		TimeoutSeconds: 60,
		Jobs:           1,
	}
}

// Load loads configuration with the following precedence:
// 1. Default values
// 2. Global config file (~/.mockprobe/config.yaml)
// 3. Project config file (<projectPath>/.mockprobe/config.yaml)
// 4. Environment variables (MOCKPROBE_*)
func Load(projectPath string) (*Config, error) {
	cfg := DefaultConfig()

	if home, err := os.UserHomeDir(); err == nil {
		globalPath := filepath.Join(home, ".mockprobe", "config.yaml")
		if err := loadFile(cfg, globalPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	projectConfig := filepath.Join(projectPath, ".mockprobe", "config.yaml")
	if err := loadFile(cfg, projectConfig); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile merges a YAML config file into cfg.
func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides config values from MOCKPROBE_* environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("MOCKPROBE_PLATFORM_ROOT"); v != "" {
		cfg.PlatformRoot = v
	}
	if v := os.Getenv("MOCKPROBE_WORK_DIR"); v != "" {
		cfg.WorkDir = v
	}
	if v := os.Getenv("MOCKPROBE_MOCKS_DIR"); v != "" {
		cfg.MocksDir = v
	}
	if v := os.Getenv("MOCKPROBE_PREPROCESSOR"); v != "" {
		cfg.Preprocessor = v
	}
	if v := os.Getenv("MOCKPROBE_AST_DUMPER"); v != "" {
		cfg.ASTDumper = v
	}
	if v := os.Getenv("MOCKPROBE_LINKER"); v != "" {
		cfg.Linker = v
	}
	if v := os.Getenv("MOCKPROBE_MAX_GUARD_FLAGS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxGuardFlags = n
		}
	}
	if v := os.Getenv("MOCKPROBE_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TimeoutSeconds = n
		}
	}
	if v := os.Getenv("MOCKPROBE_JOBS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Jobs = n
		}
	}
	if v := os.Getenv("MOCKPROBE_KEEP_WORK"); v != "" {
		cfg.KeepWork = v == "1" || v == "true"
	}
	if v := os.Getenv("MOCKPROBE_VERBOSE"); v != "" {
		cfg.Verbose = v == "1" || v == "true"
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.MaxGuardFlags < 1 || c.MaxGuardFlags > 16 {
		return fmt.Errorf("max_guard_flags must be between 1 and 16, got %d", c.MaxGuardFlags)
	}
	if c.TimeoutSeconds < 1 {
		return fmt.Errorf("timeout_seconds must be positive, got %d", c.TimeoutSeconds)
	}
	if c.Jobs < 1 {
		return fmt.Errorf("jobs must be positive, got %d", c.Jobs)
	}
	if c.PlatformRoot != "" {
		info, err := os.Stat(c.PlatformRoot)
		if err != nil {
			return fmt.Errorf("platform_root %s: %w", c.PlatformRoot, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("platform_root %s is not a directory", c.PlatformRoot)
		}
	}
	return nil
}

// Timeout returns the per-invocation toolchain timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// IncludePaths resolves IncludeDirs against PlatformRoot. Absolute entries
// pass through unchanged. Directories that do not exist are skipped so a
// partial platform checkout still preprocesses.
func (c *Config) IncludePaths() []string {
	paths := make([]string, 0, len(c.IncludeDirs))
	for _, dir := range c.IncludeDirs {
		p := dir
		if !filepath.IsAbs(p) {
			p = filepath.Join(c.PlatformRoot, dir)
		}
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			paths = append(paths, p)
		}
	}
	return paths
}

// ScratchRoot returns the directory under which run workspaces are created.
func (c *Config) ScratchRoot() string {
	if c.WorkDir != "" {
		return c.WorkDir
	}
	return filepath.Join(os.TempDir(), "mockprobe")
}

// Save writes the configuration to the project config path.
func (c *Config) Save(projectPath string) error {
	configDir := filepath.Join(projectPath, ".mockprobe")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
