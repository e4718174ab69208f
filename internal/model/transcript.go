package model

import (
	"strings"
	"time"
)

// WordToken is a single recognized word from the transcription provider
type WordToken struct {
	Text          string  `json:"text"`
	StartMs       int     `json:"start"`                    // Offset from the start of its source segment
	EndMs         int     `json:"end,omitempty"`            // Informational only
	Confidence    float64 `json:"confidence"`               // 0..1
	SourceSegment int     `json:"source_segment,omitempty"` // Segment the word was recognized in (0 = untagged)
}

// RawSegment is the unprocessed transcription of one fixed-length audio slice
type RawSegment struct {
	RecordingID  string      `json:"recording_id"`
	SegmentIndex int         `json:"segment_index"` // 1-based, dense
	Text         string      `json:"text,omitempty"`
	Words        []WordToken `json:"words"`
	ReceivedAt   time.Time   `json:"received_at"`
}

// RemainderSentence is the trailing unfinished sentence carried forward
// to the next segment. It is stored apart from finalized sentences.
type RemainderSentence struct {
	RecordingID  string      `json:"recording_id"`
	SegmentIndex int         `json:"segment_index"` // Segment that produced it
	Text         string      `json:"text"`
	Words        []WordToken `json:"words"`
}

// SentenceStatus tracks whether claim detection has run for a sentence
type SentenceStatus string

const (
	StatusPending SentenceStatus = "pending"
	StatusOK      SentenceStatus = "ok"
)

// Sentence is a finalized, numbered sentence of a recording
type Sentence struct {
	RecordingID   string         `json:"recording_id"`
	Number        int            `json:"sentence_number"` // 1-based, dense, strictly increasing
	SourceSegment int            `json:"source_segment"`  // Segment of the first word
	StartOffsetMs int            `json:"start_offset_ms"` // First word offset inside SourceSegment
	StartSeconds  int            `json:"start_time"`      // Absolute offset within the recording
	Text          string         `json:"text"`
	Words         []WordToken    `json:"words,omitempty"`
	Claims        []string       `json:"claims"` // nil = no claims detected
	Status        SentenceStatus `json:"status"`
	Speaker       string         `json:"speaker,omitempty"`
	Annotation    string         `json:"annotation,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// JoinWords rebuilds text from word tokens separated by single spaces
func JoinWords(words []WordToken) string {
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = w.Text
	}
	return strings.Join(parts, " ")
}

// StartSecondsFor computes the absolute start of a sentence from the
// segment it began in and the offset of its first word.
func StartSecondsFor(sourceSegment, startOffsetMs, segmentSeconds int) int {
	if sourceSegment < 1 {
		sourceSegment = 1
	}
	return (sourceSegment-1)*segmentSeconds + startOffsetMs/1000
}
