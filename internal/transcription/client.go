// Package transcription talks to an AssemblyAI-compatible speech-to-text
// service and maps its transcripts onto raw segments.
package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/claimstream/internal/model"
)

// ErrBadSegmentRef is returned for audio URLs outside the segment naming scheme
var ErrBadSegmentRef = errors.New("invalid segment audio reference")

// Transcript states reported by the provider
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// Word is one recognized word in provider units (milliseconds)
type Word struct {
	Text       string  `json:"text"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
}

// Transcript is the provider's transcript resource
type Transcript struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	AudioURL string `json:"audio_url"`
	Text     string `json:"text"`
	Words    []Word `json:"words"`
	Error    string `json:"error,omitempty"`
}

// Callback is the webhook payload sent when a transcript finishes
type Callback struct {
	TranscriptID string `json:"transcript_id"`
	Status       string `json:"status"`
}

// Client is a minimal transcription API client
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a client from configuration
func NewClient(cfg model.TranscriptionConfig) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.assemblyai.com"
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Submit requests transcription of audioURL. The provider calls webhookURL
// when the transcript is ready.
func (c *Client) Submit(ctx context.Context, audioURL, webhookURL string) (*Transcript, error) {
	payload := map[string]any{"audio_url": audioURL}
	if webhookURL != "" {
		payload["webhook_url"] = webhookURL
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var t Transcript
	if err := c.do(ctx, http.MethodPost, "/v2/transcript", bytes.NewReader(body), &t); err != nil {
		return nil, fmt.Errorf("submit transcript: %w", err)
	}
	return &t, nil
}

// Get fetches a transcript by id
func (c *Client) Get(ctx context.Context, id string) (*Transcript, error) {
	var t Transcript
	if err := c.do(ctx, http.MethodGet, "/v2/transcript/"+url.PathEscape(id), nil, &t); err != nil {
		return nil, fmt.Errorf("get transcript %s: %w", id, err)
	}
	return &t, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, v any) error {
	if c.apiKey == "" {
		return errors.New("no API key configured")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(msg))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// SegmentRef identifies the recording and segment an audio slice belongs to
type SegmentRef struct {
	RecordingID  string
	SegmentIndex int
}

// ParseSegmentRef decodes audio URLs named "<uuid>-<start>-<stop>.mp3",
// where start and stop are seconds from the start of the recording. The
// segment index is stop / (stop - start), so a 10 second slice 20-30 is
// segment 3.
func ParseSegmentRef(audioURL string) (SegmentRef, error) {
	name := audioURL
	if u, err := url.Parse(audioURL); err == nil && u.Path != "" {
		name = u.Path
	}
	name = strings.TrimSuffix(path.Base(name), ".mp3")

	// uuid itself contains four dashes
	parts := strings.Split(name, "-")
	if len(parts) != 7 {
		return SegmentRef{}, fmt.Errorf("%w: %q", ErrBadSegmentRef, audioURL)
	}
	id := strings.Join(parts[:5], "-")
	if _, err := uuid.Parse(id); err != nil {
		return SegmentRef{}, fmt.Errorf("%w: %q: %v", ErrBadSegmentRef, audioURL, err)
	}

	start, err1 := strconv.Atoi(parts[5])
	stop, err2 := strconv.Atoi(parts[6])
	if err1 != nil || err2 != nil || start < 0 || stop <= start {
		return SegmentRef{}, fmt.Errorf("%w: %q: bad range", ErrBadSegmentRef, audioURL)
	}
	if stop%(stop-start) != 0 {
		return SegmentRef{}, fmt.Errorf("%w: %q: range not aligned", ErrBadSegmentRef, audioURL)
	}
	return SegmentRef{RecordingID: id, SegmentIndex: stop / (stop - start)}, nil
}

// ToRawSegment converts a finished transcript into a raw segment. A failed
// transcript yields an empty word list so continuity is not blocked.
func ToRawSegment(ref SegmentRef, t *Transcript) model.RawSegment {
	seg := model.RawSegment{
		RecordingID:  ref.RecordingID,
		SegmentIndex: ref.SegmentIndex,
		Words:        []model.WordToken{},
	}
	if t == nil || t.Status != StatusCompleted {
		return seg
	}

	seg.Text = t.Text
	for _, w := range t.Words {
		seg.Words = append(seg.Words, model.WordToken{
			Text:          w.Text,
			StartMs:       w.Start,
			EndMs:         w.End,
			Confidence:    w.Confidence,
			SourceSegment: ref.SegmentIndex,
		})
	}
	return seg
}
