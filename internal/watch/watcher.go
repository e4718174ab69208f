// Package watch feeds transcript files dropped into a directory to the pipeline.
//
// Two file shapes are recognised:
//
//	<recording>.<segment>.json  a transcribed segment: {"text": ..., "words": [...]}
//	<recording>.txt             plain text appended to the recording's transcript
//
// Handled files are renamed with a .done suffix, rejected ones with .failed.
package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/ppiankov/claimstream/internal/model"
	"github.com/ppiankov/claimstream/internal/pipeline"
)

const (
	doneSuffix   = ".done"
	failedSuffix = ".failed"
)

// ErrUnrecognized is returned for file names that match neither shape
var ErrUnrecognized = errors.New("unrecognized file name")

// Ingester is the part of the pipeline the watcher feeds
type Ingester interface {
	IngestSegment(ctx context.Context, seg model.RawSegment) (*pipeline.IngestResult, error)
	ImportText(ctx context.Context, recordingID, text string) (*pipeline.ImportSummary, error)
}

// Watcher watches one directory
type Watcher struct {
	dir      string
	settle   time.Duration
	ingester Ingester
	logger   *zap.Logger
}

// New creates a watcher for cfg.Dir
func New(cfg model.WatchConfig, ingester Ingester, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{dir: cfg.Dir, settle: cfg.Settle, ingester: ingester, logger: logger}
}

// Run processes files already present, then watches for new ones until ctx is done
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create watch dir: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() {
		if err := fw.Close(); err != nil {
			w.logger.Warn("close watcher", zap.Error(err))
		}
	}()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching drop folder", zap.String("dir", w.dir))

	if err := w.Scan(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Write != fsnotify.Write && event.Op&fsnotify.Create != fsnotify.Create {
				continue
			}
			if !candidate(event.Name) {
				continue
			}
			if w.settle > 0 {
				time.Sleep(w.settle)
			}
			w.process(ctx, event.Name)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

// Scan processes every candidate file in the directory, segments in index order
func (w *Watcher) Scan(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("read watch dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && candidate(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.SliceStable(names, func(i, j int) bool { return less(names[i], names[j]) })

	for _, name := range names {
		if ctx.Err() != nil {
			return nil
		}
		w.process(ctx, filepath.Join(w.dir, name))
	}
	return nil
}

func (w *Watcher) process(ctx context.Context, path string) {
	err := w.HandleFile(ctx, path)
	switch {
	case err == nil:
		w.rename(path, doneSuffix)
	case errors.Is(err, os.ErrNotExist):
		// already handled by an earlier event
	case errors.Is(err, pipeline.ErrInvalidInput), errors.Is(err, ErrUnrecognized):
		w.logger.Warn("rejected drop file", zap.String("file", path), zap.Error(err))
		w.rename(path, failedSuffix)
	default:
		// left in place so the next event or restart retries it
		w.logger.Error("ingest drop file", zap.String("file", path), zap.Error(err))
	}
}

func (w *Watcher) rename(path, suffix string) {
	if err := os.Rename(path, path+suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
		w.logger.Warn("rename drop file", zap.String("file", path), zap.Error(err))
	}
}

type segmentFile struct {
	Text  string            `json:"text"`
	Words []model.WordToken `json:"words"`
}

// HandleFile ingests a single file without renaming it
func (w *Watcher) HandleFile(ctx context.Context, path string) error {
	name := filepath.Base(path)
	recordingID, index, kind, err := parseName(name)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch kind {
	case kindText:
		sum, err := w.ingester.ImportText(ctx, recordingID, string(data))
		if err != nil {
			return err
		}
		w.logger.Info("imported text",
			zap.String("recording", recordingID),
			zap.Int("created", len(sum.Created)),
			zap.Bool("updated", sum.Updated != nil))
	default:
		var f segmentFile
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("%w: %s: %v", pipeline.ErrInvalidInput, name, err)
		}
		res, err := w.ingester.IngestSegment(ctx, model.RawSegment{
			RecordingID:  recordingID,
			SegmentIndex: index,
			Text:         f.Text,
			Words:        f.Words,
		})
		if err != nil {
			return err
		}
		w.logger.Info("ingested segment",
			zap.String("recording", recordingID),
			zap.Int("segment", index),
			zap.Bool("duplicate", res.Duplicate))
	}
	return nil
}

type fileKind int

const (
	kindSegment fileKind = iota
	kindText
)

func candidate(path string) bool {
	_, _, _, err := parseName(filepath.Base(path))
	return err == nil
}

func parseName(name string) (recordingID string, index int, kind fileKind, err error) {
	if strings.HasPrefix(name, ".") {
		return "", 0, 0, fmt.Errorf("%w: %s", ErrUnrecognized, name)
	}
	if id, ok := strings.CutSuffix(name, ".txt"); ok && id != "" {
		return id, 0, kindText, nil
	}
	base, ok := strings.CutSuffix(name, ".json")
	if !ok {
		return "", 0, 0, fmt.Errorf("%w: %s", ErrUnrecognized, name)
	}
	dot := strings.LastIndex(base, ".")
	if dot <= 0 {
		return "", 0, 0, fmt.Errorf("%w: %s", ErrUnrecognized, name)
	}
	index, err = strconv.Atoi(base[dot+1:])
	if err != nil || index < 1 {
		return "", 0, 0, fmt.Errorf("%w: %s", ErrUnrecognized, name)
	}
	return base[:dot], index, kindSegment, nil
}

// less orders segment files of a recording by index and keeps everything else by name
func less(a, b string) bool {
	ra, ia, ka, _ := parseName(a)
	rb, ib, kb, _ := parseName(b)
	if ra != rb {
		return ra < rb
	}
	if ka != kb {
		return ka < kb
	}
	return ia < ib
}
