// Package segment turns stitched word streams and free-form text into
// sentence records.
package segment

import (
	"strings"

	"github.com/ppiankov/claimstream/internal/model"
)

// Segmenter splits a word stream into closed sentences and one remainder
type Segmenter struct {
	// HoldBackTerminal keeps the last closed sentence open when the stream
	// ends exactly on a boundary, so a spurious trailing period can be
	// reconciled against the next segment.
	HoldBackTerminal bool
	SegmentSeconds   int
}

// Output is the result of one segmentation pass
type Output struct {
	Sentences []model.Sentence  // Closed sentences, unnumbered
	Remainder []model.WordToken // Open trailing run, possibly empty
}

// NewSegmenter creates a segmenter from pipeline configuration
func NewSegmenter(cfg model.PipelineConfig) *Segmenter {
	return &Segmenter{
		HoldBackTerminal: cfg.HoldBackTerminal,
		SegmentSeconds:   cfg.SegmentSeconds,
	}
}

// Segment tags provenance on both word runs, concatenates them and splits
// the result. Words already tagged keep their original segment.
func (s *Segmenter) Segment(prevIndex int, prev []model.WordToken, curIndex int, cur []model.WordToken) Output {
	words := make([]model.WordToken, 0, len(prev)+len(cur))
	words = append(words, tag(prev, prevIndex)...)
	words = append(words, tag(cur, curIndex)...)

	out := s.Split(words)
	if s.HoldBackTerminal && len(out.Remainder) == 0 && len(out.Sentences) > 0 {
		last := out.Sentences[len(out.Sentences)-1]
		if strings.HasSuffix(last.Text, ".") {
			out.Sentences = out.Sentences[:len(out.Sentences)-1]
			out.Remainder = last.Words
		}
	}
	return out
}

// Split scans words in order and closes a sentence on every word ending
// in a period. It never holds back.
func (s *Segmenter) Split(words []model.WordToken) Output {
	var out Output
	var run []model.WordToken

	for _, w := range words {
		run = append(run, w)
		if strings.HasSuffix(w.Text, ".") {
			out.Sentences = append(out.Sentences, s.sentence(run))
			run = nil
		}
	}
	out.Remainder = run
	return out
}

func (s *Segmenter) sentence(words []model.WordToken) model.Sentence {
	first := words[0]
	seconds := s.SegmentSeconds
	if seconds <= 0 {
		seconds = 10
	}
	return model.Sentence{
		SourceSegment: first.SourceSegment,
		StartOffsetMs: first.StartMs,
		StartSeconds:  model.StartSecondsFor(first.SourceSegment, first.StartMs, seconds),
		Text:          model.JoinWords(words),
		Words:         append([]model.WordToken(nil), words...),
		Status:        model.StatusPending,
	}
}

func tag(words []model.WordToken, index int) []model.WordToken {
	out := make([]model.WordToken, len(words))
	for i, w := range words {
		if w.SourceSegment == 0 {
			w.SourceSegment = index
		}
		out[i] = w
	}
	return out
}
