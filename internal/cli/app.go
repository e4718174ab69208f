package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ppiankov/claimstream/internal/cache"
	"github.com/ppiankov/claimstream/internal/claims"
	"github.com/ppiankov/claimstream/internal/factcheck"
	"github.com/ppiankov/claimstream/internal/llm"
	"github.com/ppiankov/claimstream/internal/logging"
	"github.com/ppiankov/claimstream/internal/model"
	"github.com/ppiankov/claimstream/internal/pipeline"
	"github.com/ppiankov/claimstream/internal/queue"
	"github.com/ppiankov/claimstream/internal/store"
	"github.com/ppiankov/claimstream/internal/transcription"
	"github.com/ppiankov/claimstream/internal/worker"
)

// app holds the wired components shared by the commands
type app struct {
	cfg      model.Config
	logger   *zap.Logger
	store    *store.SQLite
	queue    *queue.MemoryQueue
	cascade  *factcheck.Cascade
	pipeline *pipeline.Pipeline
}

// newApp loads configuration and wires the pipeline. Notifier may be nil.
func newApp(notifier pipeline.Notifier) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg))
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("create llm provider: %w", err)
	}
	var extractor claims.Extractor
	if provider != nil {
		extractor = llm.NewClaimDetector(provider, cfg.LLM.Model)
	}

	cascade := factcheck.NewFromConfig(cfg, factcheck.Deps{
		Database: st,
		Provider: provider,
		Cache:    cache.New(cfg.Cache),
		Limiter:  worker.NewLimiterFromConfig(cfg.FactCheck),
		Logger:   logger.Named("factcheck"),
	})

	var transcriber pipeline.Transcriber
	if cfg.Transcription.APIKey != "" {
		transcriber = transcription.NewClient(cfg.Transcription)
	}

	q := queue.NewMemoryQueue(cfg.Queue, logger.Named("queue"))
	p := pipeline.New(cfg, pipeline.Deps{
		Store:       st,
		Queue:       q,
		Extractor:   extractor,
		Checker:     cascade,
		Transcriber: transcriber,
		Notifier:    notifier,
		Logger:      logger.Named("pipeline"),
	})
	p.Register(q)

	return &app{cfg: cfg, logger: logger, store: st, queue: q, cascade: cascade, pipeline: p}, nil
}

// drain waits until queued segment and claim work has finished
func (a *app) drain(ctx context.Context) error {
	if err := a.queue.WaitIdle(ctx); err != nil {
		return fmt.Errorf("wait for queued work: %w", err)
	}
	return nil
}

func (a *app) Close() {
	a.queue.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close store", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
