package cli

import (
	"github.com/spf13/cobra"

	"github.com/ppiankov/claimstream/internal/mcptools"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve fact-check and transcript tools over MCP (stdio)",
	Long: `Mcp exposes fact_check, list_sentences and correct_sentence as Model
Context Protocol tools on stdin/stdout. Logs go to stderr.

Example client configuration:
  {"command": "claimstream", "args": ["mcp"]}`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(nil)
		if err != nil {
			return err
		}
		defer a.Close()

		// corrections re-run claim detection in the background
		a.queue.Start(ctx)
		return mcptools.ServeStdio(a.pipeline, Version)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
