package commands

import (
	"github.com/spf13/cobra"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "mockprobe",
	Short: "mockprobe - Mock dependency discovery for C unit tests",
	Long: `mockprobe analyzes C modules and determines which external functions a
unit test bench has to mock. It drives the platform C toolchain to
preprocess each module, index its function declarations, and link a
synthetic probe whose undefined references are the mock set.

Commands:
  analyze     Run the full probe pipeline and scaffold test benches
  functions   List the function declarations discovered in a module
  guards      Report conditional compilation guards and their flags
  doctor      Run health checks on configuration and the toolchain
  init        Initialize mockprobe configuration interactively

Use "mockprobe [command] --help" for more information about a command.`,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	// Add subcommands
	RootCmd.AddCommand(analyzeCmd)
	RootCmd.AddCommand(functionsCmd)
	RootCmd.AddCommand(guardsCmd)
}
