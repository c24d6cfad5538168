package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Flags shared across commands that evaluate a document (spec §6.3).
var (
	formatFlag            string
	stdoutFlag            bool
	strictFlag            bool
	looseFlag             bool
	allowAbsoluteFlag     bool
	ephemeralFlag         bool
	approveAllImportsFlag bool
	noStreamFlag          bool
)

var rootCmd = &cobra.Command{
	Use:   "mlld [file]",
	Short: "mlld — a directive language for LLM-adjacent workflows",
	Long: "mlld mixes Markdown with directives (/var, /exe, /run, /show, /import, " +
		"/for, /when, /guard, /policy, /output, /path, /export) and evaluates them " +
		"into a final document plus a log of effects.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		return runFile(cmd, args[0])
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&formatFlag, "format", "markdown", "output format: markdown or xml")
	rootCmd.PersistentFlags().BoolVar(&stdoutFlag, "stdout", false, "write the final document to stdout instead of returning it only")
	rootCmd.PersistentFlags().BoolVar(&strictFlag, "strict", true, "fail on any malformed directive (default)")
	rootCmd.PersistentFlags().BoolVar(&looseFlag, "loose", false, "permissive recovery mode for editor tooling")
	rootCmd.PersistentFlags().BoolVar(&allowAbsoluteFlag, "allow-absolute", false, "permit alligator/path loads outside the project root")
	rootCmd.PersistentFlags().BoolVar(&ephemeralFlag, "ephemeral", false, "skip persisting keychain entries and debug traces to disk")
	rootCmd.PersistentFlags().BoolVar(&approveAllImportsFlag, "approve-all-imports", false, "skip the interactive import-approval prompt")
	rootCmd.PersistentFlags().BoolVar(&noStreamFlag, "no-stream", false, "disable streaming command output (same as MLLD_NO_STREAM)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(envCmd)
	rootCmd.AddCommand(debugResolutionCmd)
	rootCmd.AddCommand(debugContextCmd)
	rootCmd.AddCommand(debugTransformCmd)
}

// Execute runs the root cobra command, exiting the process with the
// exit code spec §6.3 assigns the outcome.
func Execute() {
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	if err := rootCmd.Execute(); err != nil {
		slog.Error("mlld command failed", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}
