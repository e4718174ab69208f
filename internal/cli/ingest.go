package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/claimstream/internal/watch"
)

var ingestTimeout time.Duration

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Ingest segment transcript files and wait for the sentences",
	Long: `Ingest feeds transcript files named the way the drop folder expects:

  <recording>.<segment>.json  {"text": "...", "words": [{"text", "start", "end", "confidence"}]}
  <recording>.txt             free text appended to the recording

Segments may be given in any order; sentences appear once their
predecessors have arrived.

Example:
  claimstream ingest debate.1.json debate.2.json debate.3.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

var importCmd = &cobra.Command{
	Use:   "import <recording> <file>",
	Short: "Append free-form text to a recording's transcript",
	Long: `Import splits text into sentences and appends them to the recording.
A piece starting with a lowercase letter continues the previous sentence.
Use "-" to read from stdin.

Example:
  claimstream import debate notes.txt
  pbpaste | claimstream import debate -`,
	Args: cobra.ExactArgs(2),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(importCmd)

	ingestCmd.Flags().DurationVar(&ingestTimeout, "timeout", 5*time.Minute, "time to wait for claim detection to finish")
	importCmd.Flags().DurationVar(&ingestTimeout, "timeout", 5*time.Minute, "time to wait for claim detection to finish")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, ingestTimeout)
	defer cancelTimeout()

	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()
	a.queue.Start(ctx)

	w := watch.New(a.cfg.Watch, a.pipeline, a.logger.Named("watch"))
	failures := 0
	for _, path := range args {
		if err := w.HandleFile(ctx, path); err != nil {
			failures++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", path, err)
			continue
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "✓ %s\n", path)
		}
	}

	if err := a.drain(ctx); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Ingested %d of %d files\n", len(args)-failures, len(args))
	if failures > 0 {
		return fmt.Errorf("%d files failed", failures)
	}
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	recordingID, path := args[0], args[1]

	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("read text: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, ingestTimeout)
	defer cancelTimeout()

	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()
	a.queue.Start(ctx)

	summary, err := a.pipeline.ImportText(ctx, recordingID, string(data))
	if err != nil {
		return err
	}
	if err := a.drain(ctx); err != nil {
		return err
	}

	if summary.Updated != nil {
		fmt.Fprintf(os.Stderr, "✓ Extended sentence %d\n", summary.Updated.Number)
	}
	fmt.Fprintf(os.Stderr, "✓ Created %d sentences\n", len(summary.Created))
	return nil
}
