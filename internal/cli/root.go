// Package cli implements the scribe command line tool.
package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for the scribe CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "scribe",
		Short:         "Transcript formatting tools",
		Long:          "scribe renders recognizer transcripts into subtitles, plain text and markdown, and checks service configuration.",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(NewFormatCmd())
	rootCmd.AddCommand(NewFormatsCmd())
	rootCmd.AddCommand(NewKeysCmd())
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}
