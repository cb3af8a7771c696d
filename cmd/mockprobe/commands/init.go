package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/mockprobe/mockprobe/internal/config"
	"github.com/mockprobe/mockprobe/internal/healthcheck"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize mockprobe configuration interactively",
	Long: `Guides you through setting up mockprobe configuration step by step.
Creates a config file with the platform tree root, toolchain overrides
and scaffold output locations.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit(cmd)
	},
}

func runInit(cmd *cobra.Command) error {
	// === SECTION 1: Platform Tree ===
	platformRoot := os.Getenv("ZEPHYR_BASE")

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Platform tree root").
				Description("Directory of the platform source tree (ZEPHYR_BASE). Leave empty to analyze without one.").
				Placeholder("/path/to/zephyr").
				Value(&platformRoot),
		),
	)
	err := form.Run()
	if err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	workingDir := "./pre_process"
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Working directory").
				Description("Where intermediate files, probes and the guard cache are stored").
				Placeholder("./pre_process").
				Value(&workingDir),
		),
	)
	err = form.Run()
	if err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	// === SECTION 2: Toolchain ===
	var overrideTools bool
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Toolchain - Used to preprocess, parse and link probes").
				Description("Override the compiler binaries found on PATH?").
				Affirmative("Yes, set binaries").
				Negative("No, discover from PATH").
				Value(&overrideTools),
		),
	)
	err = form.Run()
	if err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	preprocessor := ""
	astDumper := ""
	linker := ""

	if overrideTools {
		form = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Preprocessor binary").
					Placeholder("gcc").
					Value(&preprocessor),
			),
		)
		err = form.Run()
		if err != nil {
			return fmt.Errorf("interactive prompt failed: %w", err)
		}

		form = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("AST dumper binary").
					Placeholder("clang").
					Value(&astDumper),
			),
		)
		err = form.Run()
		if err != nil {
			return fmt.Errorf("interactive prompt failed: %w", err)
		}

		form = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Linker binary").
					Placeholder("gcc").
					Value(&linker),
			),
		)
		err = form.Run()
		if err != nil {
			return fmt.Errorf("interactive prompt failed: %w", err)
		}
	}

	// === SECTION 3: Scaffold Output ===
	mocksDir := "mocks"
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Mock output directory").
				Description("Directory relative to the test root where mock skeletons are written").
				Placeholder("mocks").
				Value(&mocksDir),
		),
	)
	err = form.Run()
	if err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	// === SECTION 4: Config Location ===
	var saveLocationChoice string
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Save Configuration").
				Description("Where to save the configuration file?").
				Options(
					huh.NewOption("Global (~/.mockprobe/config.yaml)", "global"),
					huh.NewOption("Project (./.mockprobe/config.yaml)", "project"),
				).
				Value(&saveLocationChoice),
		),
	)
	err = form.Run()
	if err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	// Determine save root
	saveRoot := "."
	if saveLocationChoice == "global" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("getting home directory: %w", err)
		}
		saveRoot = home
	}
	configPath := filepath.Join(saveRoot, ".mockprobe", "config.yaml")

	// Check if config already exists
	if _, err := os.Stat(configPath); err == nil {
		var overwrite bool
		form = huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Config file exists").
					Description(fmt.Sprintf("Overwrite existing config at %s?", configPath)).
					Affirmative("Overwrite").
					Negative("Cancel").
					Value(&overwrite),
			),
		)
		err = form.Run()
		if err != nil {
			return fmt.Errorf("interactive prompt failed: %w", err)
		}
		if !overwrite {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	// === Build config struct ===
	cfg := config.DefaultConfig()
	cfg.PlatformRoot = platformRoot
	if workingDir != "" {
		cfg.WorkDir = workingDir
	}
	if overrideTools {
		cfg.Preprocessor = preprocessor
		cfg.ASTDumper = astDumper
		cfg.Linker = linker
	}
	if mocksDir != "" {
		cfg.MocksDir = mocksDir
	}

	// Validate config before saving
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// Show config preview
	fmt.Println("\n=== Configuration Preview ===")
	fmt.Printf("Config path: %s\n", configPath)
	if cfg.PlatformRoot != "" {
		fmt.Printf("Platform root: %s\n", cfg.PlatformRoot)
	} else {
		fmt.Println("Platform root: (none)")
	}
	if overrideTools {
		fmt.Printf("Preprocessor: %s\n", cfg.Preprocessor)
		fmt.Printf("AST dumper: %s\n", cfg.ASTDumper)
		fmt.Printf("Linker: %s\n", cfg.Linker)
	} else {
		fmt.Println("Toolchain: discovered from PATH")
	}
	fmt.Printf("Working dir: %s\n", cfg.WorkDir)
	fmt.Printf("Mocks dir: %s\n", cfg.MocksDir)
	fmt.Println("================================")

	// Save config
	if err := cfg.Save(saveRoot); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Printf("Configuration saved to: %s\n", configPath)

	// === SECTION 5: Health Check ===
	fmt.Println("\n=== Running Health Check ===")

	result, err := healthcheck.Check(cmd.Context(), cfg, configPath)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	fmt.Println()
	displayDoctorResult(result)

	if result.Failed() {
		fmt.Println("Some checks failed. Fix the toolchain and re-run 'mockprobe doctor'.")
	}

	return nil
}

func init() {
	RootCmd.AddCommand(initCmd)
}
