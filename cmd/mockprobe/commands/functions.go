package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/mockprobe/mockprobe/internal/config"
	"github.com/mockprobe/mockprobe/internal/toolchain"
	"github.com/mockprobe/mockprobe/internal/workspace"
	"github.com/mockprobe/mockprobe/pkg/astdump"
	"github.com/mockprobe/mockprobe/pkg/preproc"
	"github.com/mockprobe/mockprobe/pkg/types"
)

// FunctionsOutput represents the output of the functions command
type FunctionsOutput struct {
	Module    string               `json:"module"`
	Functions *types.FunctionIndex `json:"functions"`
}

// functionsCmd represents the functions command
var functionsCmd = &cobra.Command{
	Use:   "functions [path...]",
	Short: "List the function declarations discovered in a module",
	Long: `Preprocesses each module with conditional guards neutralized and walks
the resulting parse tree. Functions are partitioned into module-local
public functions, module-local statics, and everything pulled in through
headers.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFunctions(cmd, args)
	},
}

func runFunctions(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	all, _ := cmd.Flags().GetBool("all")
	defines, _ := cmd.Flags().GetStringArray("define")
	includes, _ := cmd.Flags().GetStringArray("include")

	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg.Defines = append(cfg.Defines, defines...)
	cfg.IncludeDirs = append(cfg.IncludeDirs, includes...)

	sources, err := expandSources(args)
	if err != nil {
		return err
	}

	tc, err := toolchain.Discover(toolchain.Options{
		Preprocessor: cfg.Preprocessor,
		ASTDumper:    cfg.ASTDumper,
		Linker:       cfg.Linker,
		Timeout:      cfg.Timeout(),
	})
	if err != nil {
		return fmt.Errorf("toolchain discovery: %w", err)
	}

	ws, err := workspace.New(cfg.ScratchRoot(), false)
	if err != nil {
		return fmt.Errorf("creating scratch directory: %w", err)
	}
	defer ws.Close()

	norm := preproc.New(preproc.Options{
		Toolchain: tc,
		Defines:   cfg.Defines,
		Includes:  cfg.IncludePaths(),
	})
	indexer := astdump.New(astdump.Options{Toolchain: tc})

	var outputs []FunctionsOutput
	for _, src := range sources {
		dir, err := ws.ModuleDir(src)
		if err != nil {
			return err
		}
		pre, err := norm.Normalize(cmd.Context(), src, dir)
		if err != nil {
			return fmt.Errorf("preprocessing %s: %w", src, err)
		}
		idx, diags, err := indexer.Index(cmd.Context(), pre.VisiblePath)
		if err != nil {
			return fmt.Errorf("indexing %s: %w", src, err)
		}
		for _, d := range diags {
			fmt.Fprintf(os.Stderr, "%s: %s\n", src, d)
		}
		outputs = append(outputs, FunctionsOutput{Module: src, Functions: idx})
	}

	if jsonOutput {
		data, err := json.MarshalIndent(outputs, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	for _, out := range outputs {
		fmt.Printf("Source %s\n", out.Module)
		printFunctionTable("Static Local FUNCS", out.Functions.StaticLocal(), os.Stdout)
		printFunctionTable("Local FUNCS", out.Functions.Local(), os.Stdout)
		if all {
			printFunctionTable("All FUNCS", out.Functions.All(), os.Stdout)
		}
	}
	return nil
}

// printFunctionTable pretty-prints one partition of the function index.
// Names are left-aligned and return types right-aligned against the widest
// entry; parameters print one per line inside brackets, continuation lines
// indented to the opening bracket.
func printFunctionTable(title string, recs []*types.FunctionRecord, w io.Writer) {
	fmt.Fprintf(w, "%s:\n", title)

	maxName, maxRet := 0, 0
	for _, r := range recs {
		if len(r.Name) > maxName {
			maxName = len(r.Name)
		}
		if len(r.ReturnType) > maxRet {
			maxRet = len(r.ReturnType)
		}
	}

	for _, r := range recs {
		name := r.Name + strings.Repeat(" ", maxName-len(r.Name))
		ret := strings.Repeat(" ", maxRet-len(r.ReturnType)) + r.ReturnType
		prefix := fmt.Sprintf("    %s -- %s [", name, ret)

		if len(r.Params) == 0 {
			fmt.Fprintf(w, "%s]\n", prefix)
			continue
		}
		fmt.Fprintf(w, "%s%s", prefix, r.Params[0])
		if len(r.Params) == 1 {
			fmt.Fprintln(w, "]")
			continue
		}
		fmt.Fprintln(w, ",")

		pad := strings.Repeat(" ", len(prefix))
		for i, p := range r.Params[1:] {
			if i == len(r.Params)-2 {
				fmt.Fprintf(w, "%s%s]\n", pad, p)
			} else {
				fmt.Fprintf(w, "%s%s,\n", pad, p)
			}
		}
	}
}

func init() {
	functionsCmd.Flags().StringArrayP("define", "D", nil, "Additional C preprocessor define (NAME or NAME=VALUE)")
	functionsCmd.Flags().StringArrayP("include", "I", nil, "Additional C preprocessor include directory")
	functionsCmd.Flags().Bool("all", false, "Include functions declared in headers")
	functionsCmd.Flags().BoolP("json", "j", false, "Output as JSON")
}
