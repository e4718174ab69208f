package cli

import (
	"github.com/spf13/cobra"

	"github.com/ppiankov/claimstream/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Ingest transcript files dropped into a directory",
	Long: `Watch processes files already in the directory, then ingests new ones
as they appear. Handled files are renamed *.done, rejected ones *.failed.

  <recording>.<segment>.json  one transcribed segment
  <recording>.txt             free text appended to the recording

Example:
  claimstream watch ./inbox`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(nil)
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 1 {
			a.cfg.Watch.Dir = args[0]
		}
		a.queue.Start(ctx)
		if _, err := a.pipeline.Recover(ctx); err != nil {
			return err
		}
		return watch.New(a.cfg.Watch, a.pipeline, a.logger.Named("watch")).Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
