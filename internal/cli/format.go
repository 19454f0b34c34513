package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/loqalabs/loqa-scribe/internal/format"
	"github.com/loqalabs/loqa-scribe/internal/transcript"
	"github.com/spf13/cobra"
)

type formatFlags struct {
	input          string
	output         string
	format         string
	timestamps     bool
	maxLineWidth   int
	maxLineCount   int
	highlightWords bool
}

// NewFormatCmd creates the format command.
func NewFormatCmd() *cobra.Command {
	var flags formatFlags
	cmd := &cobra.Command{
		Use:   "format",
		Short: "Render a transcript JSON file",
		Long:  "Read a recognizer transcript (a segment list or an aligned result) and write it in the chosen format. Reads stdin when --input is - or unset.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFormat(cmd, flags)
		},
	}
	cmd.Flags().StringVarP(&flags.input, "input", "i", "-", "transcript JSON file")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "-", "output file")
	cmd.Flags().StringVarP(&flags.format, "format", "f", string(format.Text), "output format (see 'scribe formats')")
	cmd.Flags().BoolVar(&flags.timestamps, "timestamps", false, "include timestamps in markdown layouts")
	cmd.Flags().IntVar(&flags.maxLineWidth, "max-line-width", 0, "subtitle line width in characters")
	cmd.Flags().IntVar(&flags.maxLineCount, "max-line-count", 0, "subtitle lines per cue")
	cmd.Flags().BoolVar(&flags.highlightWords, "highlight-words", false, "underline each word as it is spoken")
	return cmd
}

func runFormat(cmd *cobra.Command, flags formatFlags) error {
	f, err := format.ParseFormat(flags.format)
	if err != nil {
		return err
	}
	if flags.maxLineWidth < 0 || flags.maxLineCount < 0 {
		return fmt.Errorf("--max-line-width and --max-line-count must be >= 0")
	}

	var in io.Reader = cmd.InOrStdin()
	if flags.input != "-" && flags.input != "" {
		file, err := os.Open(flags.input)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer file.Close()
		in = file
	}
	t, err := transcript.Decode(in)
	if err != nil {
		return err
	}

	result, err := format.Render(t, f, format.Options{
		MaxLineWidth:      flags.maxLineWidth,
		MaxLineCount:      flags.maxLineCount,
		HighlightWords:    flags.highlightWords,
		IncludeTimestamps: flags.timestamps,
	})
	if err != nil {
		return err
	}

	if flags.output == "-" || flags.output == "" {
		_, err = cmd.OutOrStdout().Write(result.Body)
		return err
	}
	if err := os.WriteFile(flags.output, result.Body, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// NewFormatsCmd creates the formats command.
func NewFormatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List supported output formats",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			for _, f := range format.All() {
				m, _ := format.MediaTypeOf(f)
				fmt.Fprintf(out, "%-13s %s\n", f, m)
			}
		},
	}
}
