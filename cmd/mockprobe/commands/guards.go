package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/mockprobe/mockprobe/internal/config"
	"github.com/mockprobe/mockprobe/pkg/conditional"
	"github.com/mockprobe/mockprobe/pkg/types"
)

// guardsCmd represents the guards command
var guardsCmd = &cobra.Command{
	Use:   "guards [path...]",
	Short: "Report conditional compilation guards and their flags",
	Long: `Scans each module for preprocessor conditionals and reports the
configuration flags they reference. For every guard the minimal flag
subsets that satisfy it are computed, which tells you which CONFIG
options a test bench has to enable to reach the guarded code.

The analysis is textual and advisory: it never runs the compiler and
never fails the module.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGuards(cmd, args)
	},
}

func runGuards(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	maxFlags, _ := cmd.Flags().GetInt("max-flags")

	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if maxFlags <= 0 {
		maxFlags = cfg.MaxGuardFlags
	}

	sources, err := expandSources(args)
	if err != nil {
		return err
	}

	analyzer := conditional.New(conditional.Options{MaxGuardFlags: maxFlags})

	var reports []*types.ConditionalReport
	for _, src := range sources {
		report, diags, err := analyzer.AnalyzeFile(src)
		if err != nil {
			return fmt.Errorf("analyzing %s: %w", src, err)
		}
		for _, d := range diags {
			fmt.Fprintf(os.Stderr, "%s\n", d)
		}
		reports = append(reports, report)
	}

	if jsonOutput {
		data, err := json.MarshalIndent(reports, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	for _, report := range reports {
		displayGuardReport(report)
	}
	return nil
}

func displayGuardReport(report *types.ConditionalReport) {
	fmt.Printf("Source %s\n", report.Path)

	if len(report.Blocks) == 0 {
		fmt.Println("  No conditional guards found.")
		return
	}

	fmt.Println("  Conditionals:")
	for _, b := range report.Blocks {
		line := fmt.Sprintf("    #%-5s %4d-%-4d depth %d", b.Kind, b.StartLine, b.EndLine, b.Depth)
		if len(b.Flags) > 0 {
			line += "  " + strings.Join(b.Flags, ", ")
		}
		if len(b.Satisfying) > 0 {
			line += "  satisfiable: " + formatSubsets(b.Satisfying)
		}
		fmt.Println(line)
	}

	if len(report.FlagLines) > 0 {
		flags := make([]string, 0, len(report.FlagLines))
		for flag := range report.FlagLines {
			flags = append(flags, flag)
		}
		sort.Strings(flags)

		fmt.Println("  Flags:")
		for _, flag := range flags {
			lines := make([]string, 0, len(report.FlagLines[flag]))
			for _, n := range report.FlagLines[flag] {
				lines = append(lines, strconv.Itoa(n))
			}
			fmt.Printf("    %s  lines %s\n", flag, strings.Join(lines, ", "))
		}
	}

	fmt.Printf("  %d directives, %d distinct flags\n", len(report.DirectiveLines), len(report.FlagLines))
}

// formatSubsets renders satisfying flag subsets, members joined with "+"
// and alternatives with ", ".
func formatSubsets(subsets [][]string) string {
	parts := make([]string, 0, len(subsets))
	for _, s := range subsets {
		parts = append(parts, strings.Join(s, "+"))
	}
	return strings.Join(parts, ", ")
}

func init() {
	guardsCmd.Flags().Int("max-flags", 0, "Maximum distinct flags considered per guard")
	guardsCmd.Flags().BoolP("json", "j", false, "Output as JSON")
}
