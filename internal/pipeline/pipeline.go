// Package pipeline wires ingestion, continuity, claim detection and fact
// checking into the operations exposed by the HTTP, MCP and CLI surfaces.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/claimstream/internal/claims"
	"github.com/ppiankov/claimstream/internal/continuity"
	"github.com/ppiankov/claimstream/internal/model"
	"github.com/ppiankov/claimstream/internal/queue"
	"github.com/ppiankov/claimstream/internal/segment"
	"github.com/ppiankov/claimstream/internal/stitch"
	"github.com/ppiankov/claimstream/internal/store"
	"github.com/ppiankov/claimstream/internal/transcription"
	"github.com/ppiankov/claimstream/internal/worker"
)

var (
	// ErrInvalidInput marks malformed requests; nothing was changed
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotReady is returned for work still in progress, such as a sentence
	// awaiting claim detection
	ErrNotReady = errors.New("not ready")
	// ErrNotFound is returned for unknown recordings and sentences
	ErrNotFound = store.ErrNotFound
	// ErrUnavailable is returned when an optional collaborator is not configured
	ErrUnavailable = errors.New("not configured")
)

// Store is the persistence the pipeline needs
type Store interface {
	continuity.Store
	claims.Store

	CreateRecording(ctx context.Context, id, name string) (*model.RecordingState, error)
	EnsureRecording(ctx context.Context, id, name string) (*model.RecordingState, bool, error)
	ListRecordings(ctx context.Context) ([]model.RecordingState, error)
	RenameRecording(ctx context.Context, id, name string) error
	DeleteRecording(ctx context.Context, id string) error

	PutRawSegment(ctx context.Context, seg model.RawSegment) error
	ListRawSegments(ctx context.Context, recordingID string) ([]model.RawSegment, error)

	ListSentences(ctx context.Context, recordingID string) ([]model.Sentence, error)
	LatestSentence(ctx context.Context, recordingID string) (*model.Sentence, error)
	CommitImport(ctx context.Context, c store.ImportCommit) error
	FlushRemainder(ctx context.Context, recordingID string, build func(model.RemainderSentence) model.Sentence) (*model.Sentence, error)
}

// Transcriber submits audio and retrieves finished transcripts
type Transcriber interface {
	Submit(ctx context.Context, audioURL, webhookURL string) (*transcription.Transcript, error)
	Get(ctx context.Context, id string) (*transcription.Transcript, error)
}

// Subscriber registers queue handlers
type Subscriber interface {
	Subscribe(topic string, h queue.Handler)
}

// Event types published to live listeners
const (
	EventSentences = "sentences" // New sentences were numbered
	EventUpdated   = "updated"   // A sentence changed (claims, correction)
)

// Event is a change notification for one recording
type Event struct {
	Type        string           `json:"type"`
	RecordingID string           `json:"recording_id"`
	Sentences   []model.Sentence `json:"sentences"`
}

// Notifier receives change events. Publish must not block.
type Notifier interface {
	Publish(ev Event)
}

// SegmentMessage is the queued unit of segment work
type SegmentMessage struct {
	RecordingID  string `json:"recording_id"`
	SegmentIndex int    `json:"segment_index"`
	Deferrals    int    `json:"deferrals,omitempty"`
}

// ClaimMessage is the queued unit of claim detection work
type ClaimMessage struct {
	RecordingID    string `json:"recording_id"`
	SentenceNumber int    `json:"sentence_number"`
}

// Deps are the collaborators of a pipeline. Extractor, Checker,
// Transcriber and Notifier may be nil.
type Deps struct {
	Store       Store
	Queue       queue.Queue
	Extractor   claims.Extractor
	Checker     worker.Checker
	Transcriber Transcriber
	Notifier    Notifier
	Logger      *zap.Logger
}

// Pipeline is the claimstream application core
type Pipeline struct {
	store       Store
	queue       queue.Queue
	tracker     *continuity.Tracker
	claims      *claims.Orchestrator
	importer    *segment.TextImporter
	checker     worker.Checker
	transcriber Transcriber
	notifier    Notifier
	config      model.Config
	logger      *zap.Logger
	now         func() time.Time
}

// New creates a pipeline with the given configuration
func New(cfg model.Config, deps Deps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	extractor := deps.Extractor
	if extractor == nil {
		logger.Info("no language model configured, claim detection disabled")
		extractor = noClaims{}
	}

	return &Pipeline{
		store: deps.Store,
		queue: deps.Queue,
		tracker: continuity.NewTracker(deps.Store,
			stitch.New(stitch.OptionsFromConfig(cfg.Pipeline)),
			segment.NewSegmenter(cfg.Pipeline),
			logger.Named("continuity")),
		claims:      claims.NewOrchestrator(deps.Store, extractor, cfg.Pipeline, logger.Named("claims")),
		importer:    segment.NewTextImporter(cfg.Pipeline.SegmentSeconds),
		checker:     deps.Checker,
		transcriber: deps.Transcriber,
		notifier:    deps.Notifier,
		config:      cfg,
		logger:      logger,
		now:         time.Now,
	}
}

// Register subscribes the pipeline's queue handlers
func (p *Pipeline) Register(sub Subscriber) {
	sub.Subscribe(queue.TopicSegments, func(ctx context.Context, msg queue.Message) error {
		var m SegmentMessage
		if err := json.Unmarshal(msg.Body, &m); err != nil {
			p.logger.Error("drop malformed segment message", zap.Error(err))
			return nil
		}
		return p.HandleSegment(ctx, m)
	})
	sub.Subscribe(queue.TopicClaims, func(ctx context.Context, msg queue.Message) error {
		var m ClaimMessage
		if err := json.Unmarshal(msg.Body, &m); err != nil {
			p.logger.Error("drop malformed claim message", zap.Error(err))
			return nil
		}
		return p.HandleClaim(ctx, m)
	})
}

// CreateRecording starts a new, empty recording
func (p *Pipeline) CreateRecording(ctx context.Context, name string) (*model.RecordingState, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = model.DefaultRecordingName
	}
	return p.store.CreateRecording(ctx, uuid.NewString(), name)
}

// Recording returns the state of one recording
func (p *Pipeline) Recording(ctx context.Context, id string) (*model.RecordingState, error) {
	return p.store.GetRecording(ctx, id)
}

// Recordings lists recordings, most recently changed first
func (p *Pipeline) Recordings(ctx context.Context) ([]model.RecordingState, error) {
	recs, err := p.store.ListRecordings(ctx)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []model.RecordingState{}
	}
	return recs, nil
}

// RenameRecording changes the display name of a recording
func (p *Pipeline) RenameRecording(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidInput)
	}
	return p.store.RenameRecording(ctx, id, name)
}

// DeleteRecording removes a recording with all of its segments and sentences
func (p *Pipeline) DeleteRecording(ctx context.Context, id string) error {
	if err := p.store.DeleteRecording(ctx, id); err != nil {
		return err
	}
	p.logger.Info("recording deleted", zap.String("recording", id))
	return nil
}

// FactCheck verifies a claim through the configured cascade
func (p *Pipeline) FactCheck(ctx context.Context, claim, speaker, source string) (*model.FactCheckResult, error) {
	claim = strings.TrimSpace(claim)
	if claim == "" {
		return nil, fmt.Errorf("%w: claim must not be empty", ErrInvalidInput)
	}
	if p.checker == nil {
		return nil, fmt.Errorf("fact-check: %w", ErrUnavailable)
	}
	if source == "" {
		source = p.config.FactCheck.DefaultService
	}
	return p.checker.FactCheck(ctx, claim, speaker, source)
}

// Recover re-enqueues every stored raw segment of healthy recordings, so
// work lost with an in-memory queue resumes after a restart.
func (p *Pipeline) Recover(ctx context.Context) (int, error) {
	recs, err := p.store.ListRecordings(ctx)
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, rec := range recs {
		if rec.Fault != "" {
			continue
		}
		segs, err := p.store.ListRawSegments(ctx, rec.ID)
		if err != nil {
			return queued, err
		}
		for _, seg := range segs {
			if err := p.enqueueSegment(ctx, SegmentMessage{RecordingID: rec.ID, SegmentIndex: seg.SegmentIndex}, 0); err != nil {
				return queued, err
			}
			queued++
		}
	}
	if queued > 0 {
		p.logger.Info("recovered pending segments", zap.Int("segments", queued))
	}
	return queued, nil
}

func (p *Pipeline) enqueueSegment(ctx context.Context, m SegmentMessage, delay time.Duration) error {
	body, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return p.queue.Send(ctx, queue.TopicSegments, body, delay)
}

func (p *Pipeline) enqueueClaim(ctx context.Context, recordingID string, number int) error {
	body, err := json.Marshal(ClaimMessage{RecordingID: recordingID, SentenceNumber: number})
	if err != nil {
		return err
	}
	return p.queue.Send(ctx, queue.TopicClaims, body, p.config.Queue.ClaimDelay)
}

func (p *Pipeline) notify(eventType, recordingID string, sentences ...model.Sentence) {
	if p.notifier == nil || len(sentences) == 0 {
		return
	}
	p.notifier.Publish(Event{Type: eventType, RecordingID: recordingID, Sentences: sentences})
}

type noClaims struct{}

func (noClaims) ExtractClaims(context.Context, string, string) ([]string, error) { return nil, nil }
