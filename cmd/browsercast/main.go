package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	bcerrors "github.com/odvcencio/browsercast/pkg/errors"
)

// Version information - set via ldflags during build
var (
	version   = "0.1.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "browsercast",
	Short:         "Remote headless browser sessions streamed over websockets",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "browsercast %s (commit %s, built %s)\n", version, commit, buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: ~/.browsercast/config.yaml then ./browsercast.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if bcErr, ok := bcerrors.As(err); ok {
			for _, tip := range bcErr.Remediation {
				fmt.Fprintln(os.Stderr, "  hint:", tip)
			}
		}
		os.Exit(exitCodeForError(err))
	}
}
