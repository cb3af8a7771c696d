// Package healthcheck verifies that the configuration and the external
// C toolchain are usable before a run.
package healthcheck

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mockprobe/mockprobe/internal/config"
	"github.com/mockprobe/mockprobe/internal/toolchain"
)

// ToolStatus represents the health status of a single toolchain role.
type ToolStatus struct {
	Role    string
	Path    string
	Version string
	Status  string // "ready" or "error"
	Error   string
}

// PlatformStatus reports whether the platform tree is usable.
type PlatformStatus struct {
	Root        string
	Status      string // "ready", "missing", "unset"
	IncludeDirs int    // resolvable include directories
	Error       string
}

// Result contains the full health check output for display.
type Result struct {
	EffectivePath  string
	EffectiveScope string // "global" or "project"
	Preprocessor   ToolStatus
	ASTDumper      ToolStatus
	Linker         ToolStatus
	Platform       PlatformStatus
}

// Failed reports whether any check ended in an error state.
func (r *Result) Failed() bool {
	return r.Preprocessor.Status == "error" ||
		r.ASTDumper.Status == "error" ||
		r.Linker.Status == "error" ||
		r.Platform.Status == "missing"
}

// Check probes the toolchain and platform tree described by cfg.
// effectivePath is the config file actually in use (considering priority).
func Check(ctx context.Context, cfg *config.Config, effectivePath string) (*Result, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	result := &Result{
		EffectivePath:  effectivePath,
		EffectiveScope: scopeFromPath(effectivePath),
	}

	result.Preprocessor = checkTool(ctx, toolchain.RolePreprocessor, cfg.Preprocessor, cfg)
	result.ASTDumper = checkTool(ctx, toolchain.RoleASTDumper, cfg.ASTDumper, cfg)
	result.Linker = checkTool(ctx, toolchain.RoleLinker, cfg.Linker, cfg)
	result.Platform = checkPlatform(cfg)

	return result, nil
}

// scopeFromPath determines "global" or "project" scope from a config file path.
// Returns empty string if path is empty.
func scopeFromPath(path string) string {
	if path == "" {
		return ""
	}

	home, err := os.UserHomeDir()
	if err == nil {
		globalDir := filepath.Join(home, ".mockprobe")
		if strings.HasPrefix(path, globalDir) {
			return "global"
		}
	}

	return "project"
}

// checkTool resolves one toolchain role and probes its version string.
func checkTool(ctx context.Context, role, override string, cfg *config.Config) ToolStatus {
	status := ToolStatus{Role: role}

	tool, err := toolchain.Resolve(role, override)
	if err != nil {
		status.Status = "error"
		status.Error = err.Error()
		return status
	}

	status.Path = tool.Path
	status.Status = "ready"

	tc := &toolchain.Toolchain{Timeout: cfg.Timeout()}
	status.Version = tc.Version(ctx, tool)

	return status
}

// checkPlatform verifies the platform root and counts usable include dirs.
func checkPlatform(cfg *config.Config) PlatformStatus {
	status := PlatformStatus{Root: cfg.PlatformRoot}

	if cfg.PlatformRoot == "" {
		status.Status = "unset"
		return status
	}

	info, err := os.Stat(cfg.PlatformRoot)
	if err != nil || !info.IsDir() {
		status.Status = "missing"
		status.Error = fmt.Sprintf("platform root %s is not a directory", cfg.PlatformRoot)
		return status
	}

	status.Status = "ready"
	status.IncludeDirs = len(cfg.IncludePaths())
	return status
}
