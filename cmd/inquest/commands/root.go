package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string
)

var (
	configPath string
	debugLog   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "inquest",
	Short: "Inquest - multi-worker investigation coordinator",
	Long: `Inquest coordinates multi-phase, multi-worker investigations over a
shared knowledge store. Independent analysis workers write typed findings
into named knowledge areas, a correlation pass infers patterns across the
full store, and a reporting pass produces the final summary.

State lives in Redis, namespaced per investigation; exports and research
logs are written to local files for offline inspection.`,
	Version: version,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Called by main.main().
func Execute() error {
	// Silence Cobra's default error and usage printing; the printer package
	// formats errors and main prints anything returned from here.
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to inquest.yml (defaults apply if omitted)")
	rootCmd.PersistentFlags().BoolVar(&debugLog, "debug", false, "Enable debug logging")
}
