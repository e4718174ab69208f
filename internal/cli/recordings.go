package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/claimstream/internal/pipeline"
)

var (
	exportFormat string
	exportOut    string
)

var recordingsCmd = &cobra.Command{
	Use:     "recordings",
	Aliases: []string{"rec"},
	Short:   "List and manage recordings",
}

var recordingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recordings, most recently changed first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			recs, err := a.pipeline.Recordings(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tNEXT SEGMENT\tCHANGED\tFAULT")
			for _, r := range recs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", r.ID, r.Name, r.NextSegment, r.LastChangedAt.Format("2006-01-02 15:04"), r.Fault)
			}
			return tw.Flush()
		})
	},
}

var recordingsRenameCmd = &cobra.Command{
	Use:   "rename <id> <name>",
	Short: "Rename a recording",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			return a.pipeline.RenameRecording(ctx, args[0], strings.Join(args[1:], " "))
		})
	},
}

var recordingsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a recording with its segments and sentences",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			if err := a.pipeline.DeleteRecording(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "✓ Deleted %s\n", args[0])
			return nil
		})
	},
}

var recordingsFinalizeCmd = &cobra.Command{
	Use:   "finalize <id>",
	Short: "Turn the held-back trailing sentence into a final sentence",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			sent, err := a.pipeline.FinalizeRecording(ctx, args[0])
			if err != nil {
				return err
			}
			if sent == nil {
				fmt.Fprintln(os.Stderr, "Nothing held back")
				return nil
			}
			if err := a.drain(ctx); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "✓ Sentence %d: %s\n", sent.Number, sent.Text)
			return nil
		})
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export a recording's transcript as Markdown or JSON",
	Example: `  claimstream export debate
  claimstream export debate --format json --out debate.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			e, err := a.pipeline.Export(ctx, args[0])
			if err != nil {
				return err
			}

			var out io.Writer = os.Stdout
			if exportOut != "" {
				f, err := os.Create(exportOut)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer func() { _ = f.Close() }()
				out = f
			}

			switch strings.ToLower(exportFormat) {
			case "md", "markdown":
				return pipeline.RenderMarkdown(out, e)
			case "json":
				return pipeline.RenderJSON(out, e)
			default:
				return fmt.Errorf("unknown format %q (supported: md, json)", exportFormat)
			}
		})
	},
}

// withApp runs fn against a wired app whose queue is running
func withApp(fn func(ctx context.Context, a *app) error) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()
	a.queue.Start(ctx)

	return fn(ctx, a)
}

func init() {
	rootCmd.AddCommand(recordingsCmd)
	rootCmd.AddCommand(exportCmd)
	recordingsCmd.AddCommand(recordingsListCmd, recordingsRenameCmd, recordingsDeleteCmd, recordingsFinalizeCmd)

	exportCmd.Flags().StringVar(&exportFormat, "format", "md", "output format (md, json)")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output path (default: stdout)")
}
