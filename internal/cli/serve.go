package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/claimstream/internal/api"
	"github.com/ppiankov/claimstream/internal/watch"
)

var (
	serveAddr     string
	serveWatchDir string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the segment/claim workers",
	Long: `Serve starts the HTTP API, the live websocket feed and the background
workers that stitch segments into sentences and detect claims.

Raw segments stored before a restart are re-queued on startup.

Example:
  claimstream serve
  claimstream serve --addr :9090 --watch ./inbox`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	serveCmd.Flags().StringVar(&serveWatchDir, "watch", "", "also ingest files dropped into this directory")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	hub := api.NewHub(nil)
	a, err := newApp(hub)
	if err != nil {
		return err
	}
	defer a.Close()

	if serveAddr != "" {
		a.cfg.Server.Addr = serveAddr
	}

	a.queue.Start(ctx)
	if n, err := a.pipeline.Recover(ctx); err != nil {
		return fmt.Errorf("recover pending segments: %w", err)
	} else if n > 0 {
		a.logger.Info("re-queued stored segments", zap.Int("segments", n))
	}

	g, ctx := errgroup.WithContext(ctx)
	server := api.NewServer(a.cfg.Server, a.pipeline, hub, a.store.Ping, a.logger.Named("api"))
	g.Go(func() error { return server.ListenAndServe(ctx) })

	if serveWatchDir != "" {
		a.cfg.Watch.Dir = serveWatchDir
		w := watch.New(a.cfg.Watch, a.pipeline, a.logger.Named("watch"))
		g.Go(func() error { return w.Run(ctx) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
