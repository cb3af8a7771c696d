package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/mockprobe/mockprobe/internal/config"
	"github.com/mockprobe/mockprobe/internal/log"
	"github.com/mockprobe/mockprobe/internal/scanner"
	"github.com/mockprobe/mockprobe/pkg/cache"
	"github.com/mockprobe/mockprobe/pkg/pipeline"
	"github.com/mockprobe/mockprobe/pkg/scaffold"
	"github.com/mockprobe/mockprobe/pkg/types"
)

// AnalyzeOutput represents the output of the analyze command
type AnalyzeOutput struct {
	Stats   AnalyzeStats   `json:"stats"`
	Modules []ModuleOutput `json:"modules"`
}

// AnalyzeStats summarizes per-module outcomes across one run
type AnalyzeStats struct {
	Modules          int `json:"modules"`
	Resolved         int `json:"resolved"`
	ZeroDependencies int `json:"zero_dependencies"`
	Indeterminate    int `json:"indeterminate"`
	Failed           int `json:"failed"`
}

// ModuleOutput is one module's result plus what was scaffolded for it
type ModuleOutput struct {
	*types.Result
	Error    string           `json:"error,omitempty"`
	Scaffold *scaffold.Report `json:"scaffold,omitempty"`
}

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze [path...]",
	Short: "Discover mock dependencies and scaffold test benches",
	Long: `Runs the full probe pipeline over one or more C modules. Each module is
preprocessed, its function declarations are indexed, and a synthetic probe
calling every public function is linked against it. The undefined references
reported by the linker are the functions a unit test bench has to mock.

Directory arguments are expanded to the C sources they contain.
With --scaffold, a test bench skeleton and FFF mock declarations are
written for every successfully analyzed module.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAnalyze(cmd, args)
	},
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	defines, _ := cmd.Flags().GetStringArray("define")
	includes, _ := cmd.Flags().GetStringArray("include")
	platformRoot, _ := cmd.Flags().GetString("platform-root")
	workingDir, _ := cmd.Flags().GetString("working-dir")
	testRoot, _ := cmd.Flags().GetString("test-root-dir")
	mocksDir, _ := cmd.Flags().GetString("mocks-dir")
	jobs, _ := cmd.Flags().GetInt("jobs")
	keep, _ := cmd.Flags().GetBool("keep-artifacts")
	astJSON, _ := cmd.Flags().GetBool("ast-json")
	regenProbe, _ := cmd.Flags().GetBool("regen-probe")
	regenMocks, _ := cmd.Flags().GetBool("regen-mocks")
	doScaffold, _ := cmd.Flags().GetBool("scaffold")
	noCache, _ := cmd.Flags().GetBool("no-cache")
	addToGit, _ := cmd.Flags().GetBool("add-to-git")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg.Defines = append(cfg.Defines, defines...)
	cfg.IncludeDirs = append(cfg.IncludeDirs, includes...)
	if platformRoot != "" {
		cfg.PlatformRoot = platformRoot
	}
	// The flag default only applies when no config layer set a working
	// directory; an explicit flag always wins.
	if cmd.Flags().Changed("working-dir") || cfg.WorkDir == "" {
		cfg.WorkDir = workingDir
	}
	if mocksDir != "" {
		cfg.MocksDir = mocksDir
	}
	if jobs > 0 {
		cfg.Jobs = jobs
	}
	if keep {
		cfg.KeepWork = true
	}
	if addToGit {
		cfg.GitStage = true
	}
	if verbose || cfg.Verbose {
		log.Default().SetLevel(log.DebugLevel)
	}

	sources, err := expandSources(args)
	if err != nil {
		return err
	}

	cachePath := filepath.Join(cfg.ScratchRoot(), cache.DefaultFileName)
	if noCache {
		cachePath = ""
	}

	pipe, err := pipeline.New(pipeline.Options{
		Config:     cfg,
		CachePath:  cachePath,
		RegenProbe: regenProbe,
		ASTJSON:    astJSON,
	})
	if err != nil {
		return err
	}

	// The spinner and debug logs share stderr; verbose runs get the logs.
	var spin *log.ProgressSpinner
	if !jsonOutput && !verbose && !cfg.Verbose {
		spin = log.NewProgressSpinner(fmt.Sprintf("Analyzing %d modules", len(sources)))
		spin.Start()
	}

	results, err := pipe.Run(cmd.Context(), sources)
	if spin != nil {
		spin.Stop()
	}
	if err != nil {
		return err
	}

	reports := make(map[string]*scaffold.Report)
	if doScaffold {
		sc := scaffold.New(scaffold.Options{
			TestRoot: testRoot,
			MocksDir: cfg.MocksDir,
			Regen:    regenMocks,
			GitStage: cfg.GitStage,
		})
		for _, res := range results {
			if res.Outcome == types.OutcomeFailed {
				continue
			}
			rep, diags, err := sc.Generate(cmd.Context(), res)
			res.Diagnostics = append(res.Diagnostics, diags...)
			if err != nil {
				res.Warn(types.StageScaffold, "scaffold generation failed", err.Error())
				continue
			}
			reports[res.Module] = rep
		}
	}

	output := buildAnalyzeOutput(results, reports)

	if jsonOutput {
		data, err := json.MarshalIndent(output, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	} else {
		displayAnalyzeResults(output, verbose)
	}

	if output.Stats.Failed > 0 {
		return fmt.Errorf("%d of %d modules failed", output.Stats.Failed, output.Stats.Modules)
	}
	return nil
}

// expandSources maps command arguments to C source paths. Directories are
// scanned recursively; a path that cannot be inspected is passed through so
// the pipeline reports it as a failed module instead of aborting siblings.
func expandSources(args []string) ([]string, error) {
	var sources []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil || !info.IsDir() {
			sources = append(sources, arg)
			continue
		}
		files, err := scanner.Scan(arg)
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", arg, err)
		}
		for _, f := range files {
			if f.Kind == scanner.KindSource {
				sources = append(sources, f.FullPath)
			}
		}
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no C sources found in the given paths")
	}
	return sources, nil
}

func buildAnalyzeOutput(results []*types.Result, reports map[string]*scaffold.Report) *AnalyzeOutput {
	output := &AnalyzeOutput{Modules: make([]ModuleOutput, 0, len(results))}
	output.Stats.Modules = len(results)
	for _, res := range results {
		mod := ModuleOutput{Result: res, Scaffold: reports[res.Module]}
		switch res.Outcome {
		case types.OutcomeResolved:
			output.Stats.Resolved++
		case types.OutcomeZeroDependencies:
			output.Stats.ZeroDependencies++
		case types.OutcomeIndeterminate:
			output.Stats.Indeterminate++
		case types.OutcomeFailed:
			output.Stats.Failed++
			if res.Err != nil {
				mod.Error = res.Err.Error()
			}
		}
		output.Modules = append(output.Modules, mod)
	}
	return output
}

func displayAnalyzeResults(output *AnalyzeOutput, verbose bool) {
	for _, mod := range output.Modules {
		fmt.Printf("Source %s\n", mod.Module)

		switch mod.Outcome {
		case types.OutcomeResolved:
			displayResolution(mod.Resolution)
		case types.OutcomeZeroDependencies:
			fmt.Println("  No functions found requiring mock-ups.")
		case types.OutcomeIndeterminate:
			fmt.Println("  Indeterminate: the probe did not link and no undefined references were reported.")
		case types.OutcomeFailed:
			fmt.Printf("  Failed: %s\n", mod.Error)
		}

		if verbose && mod.Index != nil {
			printFunctionTable("Static Local FUNCS", mod.Index.StaticLocal(), os.Stdout)
			printFunctionTable("Local FUNCS", mod.Index.Local(), os.Stdout)
		}

		if rep := mod.Scaffold; rep != nil && len(rep.Created) > 0 {
			fmt.Printf("  Scaffold: %d files created, %d up to date\n", len(rep.Created), len(rep.Skipped))
			if verbose {
				for _, p := range rep.Created {
					fmt.Printf("    created %s\n", p)
				}
			}
		}

		for _, d := range mod.Diagnostics {
			if d.Detail != "" {
				fmt.Printf("  %s [%s]: %s (%s)\n", d.Severity, d.Stage, d.Message, d.Detail)
			} else {
				fmt.Printf("  %s [%s]: %s\n", d.Severity, d.Stage, d.Message)
			}
		}
	}

	fmt.Printf("\n%d modules: %d resolved, %d zero-dependencies, %d indeterminate, %d failed\n",
		output.Stats.Modules, output.Stats.Resolved, output.Stats.ZeroDependencies,
		output.Stats.Indeterminate, output.Stats.Failed)
}

func displayResolution(resolution *types.Resolution) {
	if resolution == nil {
		return
	}
	groups := resolution.ByGroup()
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Println("  Mocks required:")
	for _, name := range names {
		fmt.Printf("    %s:", name)
		for _, a := range groups[name] {
			fmt.Printf(" %s", a.Symbol)
		}
		fmt.Println()
	}
	for _, sym := range resolution.Unresolved {
		fmt.Printf("  Warning: Cannot find declaration for mocked-up function %s\n", sym)
	}
}

func init() {
	analyzeCmd.Flags().StringArrayP("define", "D", nil, "Additional C preprocessor define (NAME or NAME=VALUE)")
	analyzeCmd.Flags().StringArrayP("include", "I", nil, "Additional C preprocessor include directory")
	analyzeCmd.Flags().String("platform-root", "", "Override the platform tree root (ZEPHYR_BASE)")
	analyzeCmd.Flags().String("working-dir", "./pre_process", "Working directory where intermediate files are stored")
	analyzeCmd.Flags().String("test-root-dir", "", "Root directory for the generated host tests")
	analyzeCmd.Flags().String("mocks-dir", "", "Directory relative to test-root-dir for mock skeletons")
	analyzeCmd.Flags().Int("jobs", 0, "Number of modules analyzed in parallel")
	analyzeCmd.Flags().Bool("keep-artifacts", false, "Keep per-run preprocessed sources and probe objects")
	analyzeCmd.Flags().Bool("ast-json", false, "Keep the generated AST json")
	analyzeCmd.Flags().Bool("regen-probe", false, "Regenerate the probe entry point that calls all public functions even if it exists")
	analyzeCmd.Flags().Bool("regen-mocks", false, "Rewrite previously generated mock skeletons")
	analyzeCmd.Flags().Bool("scaffold", false, "Write test directories, testcase.yaml and mock skeletons")
	analyzeCmd.Flags().Bool("no-cache", false, "Do not persist guard satisfiability results between runs")
	analyzeCmd.Flags().Bool("add-to-git", false, "Auto-add newly created files to the current branch")
	analyzeCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	analyzeCmd.Flags().BoolP("verbose", "v", false, "Output verbose debug")
}
