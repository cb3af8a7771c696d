package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/mockprobe/mockprobe/internal/config"
	"github.com/mockprobe/mockprobe/internal/healthcheck"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run health checks on configuration and the toolchain",
	Long: `Checks the configuration and verifies that the C preprocessor, the AST
dumper and the linker are present and runnable, and that the platform
tree is reachable.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, configPath, err := loadConfigWithPath()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		result, err := healthcheck.Check(cmd.Context(), cfg, configPath)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}

		displayDoctorResult(result)

		if result.Failed() {
			return fmt.Errorf("health check failed: the toolchain or platform tree is not usable")
		}

		return nil
	},
}

// loadConfigWithPath loads the layered configuration and reports which file
// takes effect: project first, then global, then built-in defaults.
func loadConfigWithPath() (*config.Config, string, error) {
	projectConfigPath := filepath.Join(".mockprobe", "config.yaml")
	projectExists := fileExists(projectConfigPath)

	home, _ := os.UserHomeDir()
	globalConfigPath := ""
	if home != "" {
		globalConfigPath = filepath.Join(home, ".mockprobe", "config.yaml")
	}
	globalExists := fileExists(globalConfigPath)

	var effectivePath string
	switch {
	case projectExists:
		effectivePath = projectConfigPath
	case globalExists:
		effectivePath = globalConfigPath
	}

	cfg, err := config.Load(".")
	if err != nil {
		return nil, "", err
	}
	return cfg, effectivePath, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func displayDoctorResult(result *healthcheck.Result) {
	if result.EffectivePath != "" {
		fmt.Printf("Using config: %s (%s)\n\n", result.EffectivePath, result.EffectiveScope)
	} else {
		fmt.Printf("Using config: built-in defaults (run 'mockprobe init' to create one)\n\n")
	}

	printToolStatus("Preprocessor", result.Preprocessor)
	printToolStatus("AST dumper", result.ASTDumper)
	printToolStatus("Linker", result.Linker)

	fmt.Println("Platform tree:")
	if result.Platform.Root != "" {
		fmt.Printf("  Root: %s\n", result.Platform.Root)
	}
	if result.Platform.Status == "ready" {
		fmt.Printf("  Include dirs: %d\n", result.Platform.IncludeDirs)
	}
	fmt.Printf("  Status: %s %s\n", formatStatusIcon(result.Platform.Status), result.Platform.Status)
	if result.Platform.Error != "" {
		fmt.Printf("  Error: %s\n", result.Platform.Error)
	}
}

func printToolStatus(label string, tool healthcheck.ToolStatus) {
	fmt.Printf("%s:\n", label)
	if tool.Path != "" {
		fmt.Printf("  Path: %s\n", tool.Path)
	}
	if tool.Version != "" {
		fmt.Printf("  Version: %s\n", tool.Version)
	}
	fmt.Printf("  Status: %s %s\n", formatStatusIcon(tool.Status), tool.Status)
	if tool.Error != "" && tool.Status == "error" {
		fmt.Printf("  Error: %s\n", tool.Error)
	}
	fmt.Println()
}

func formatStatusIcon(status string) string {
	switch status {
	case "ready":
		return "✓"
	case "unset":
		return "◐"
	case "missing", "error":
		return "✗"
	default:
		return "?"
	}
}

func init() {
	RootCmd.AddCommand(doctorCmd)
}
