package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/boltpack/boltpack/internal/log"
	"github.com/spf13/cobra"
)

var (
	cfgFile    string
	verbose    bool
	realStdout *os.File // Real stdout saved before redirection
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "boltpack",
	Short: "A Debian-style source-to-binary package builder",
	Long: `boltpack builds binary packages from declarative XML specfiles.

It resolves and unpacks source archives, runs prepare/build/install rules in
a sandboxed shell environment, expands declarative content lists, splits out
debug symbols, resolves shared-library dependencies and writes deterministic
.bolt package archives. A separate subcommand indexes a pool of .bolt files
into a signed Packages.gz repository.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Save the real stdout before redirecting
		realStdout = os.Stdout

		// Redirect os.Stdout to discard to suppress unwanted library output (e.g., aptly's fmt.Printf)
		os.Stdout, _ = os.Open(os.DevNull)

		// Configure logging based on verbose flag
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}

		handler := log.NewHandler(realStdout, level)
		slog.SetDefault(slog.New(handler))

		// Set Cobra's output to real stdout (not redirected)
		cmd.SetOut(realStdout)
		cmd.SetErr(realStdout)
	},
}

// ExecuteContext runs the root command with context
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/boltpack/config.yaml or /etc/boltpack/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "", "v", false, "enable debug logging")

	// Add subcommands
	rootCmd.AddCommand(packCmd)
	rootCmd.AddCommand(repoIndexCmd)
	rootCmd.AddCommand(configCmd)
}
