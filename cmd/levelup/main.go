// Package main implements the LevelUp CLI - a server and toolbox for
// modernizing legacy C++ repositories through compiler-validated atomic
// refactorings.
//
// Command implementations are split across cmd_*.go files:
//
//   - cmd_serve.go - serveCmd: HTTP submission API + job worker
//   - cmd_run.go   - runCmd: one-shot mod against a repository
//   - cmd_list.go  - modsCmd, validatorsCmd, compilersCmd: registry listings
//   - cmd_smoke.go - smokeCmd: compiler + oracle self-check
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"levelup/internal/logging"
)

var (
	// Global flags
	verbose   bool
	workspace string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "levelup",
	Short: "LevelUp - modernize legacy C++ with zero regression risk",
	Long: `LevelUp applies small, semantics-preserving transformations to C++
repositories. Every atomic edit is compiled through a real toolchain and
its assembly compared against the original; only provably equivalent
edits are kept. Accepted edits land as one squashed commit per mod on
the levelup-work branch.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		}
		// File-based category logging for pipeline telemetry.
		if err := logging.Initialize(ws); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to initialize file logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "workspace", "Workspace directory")

	rootCmd.AddCommand(
		serveCmd,
		runCmd,
		modsCmd,
		validatorsCmd,
		compilersCmd,
		smokeCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
