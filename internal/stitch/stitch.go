// Package stitch reconciles the overlapping boundary of two adjacent
// transcription segments.
package stitch

import (
	"strings"

	"github.com/ppiankov/claimstream/internal/model"
)

// Options holds the boundary thresholds. All offsets are relative to the
// start of the word's own segment.
type Options struct {
	TailThresholdMs   int     // Predecessor words starting after this are overlap candidates
	HeadThresholdMs   int     // Current words starting before this are overlap candidates
	GarbageStartMs    int     // A predecessor's final word starting after this...
	GarbageConfidence float64 // ...and below this confidence is dropped
}

// DefaultOptions returns the thresholds for 10 second segments
func DefaultOptions() Options {
	return Options{
		TailThresholdMs:   9000,
		HeadThresholdMs:   2000,
		GarbageStartMs:    8000,
		GarbageConfidence: 0.6,
	}
}

// OptionsFromConfig maps pipeline configuration to stitcher options
func OptionsFromConfig(cfg model.PipelineConfig) Options {
	return Options{
		TailThresholdMs:   cfg.TailThresholdMs,
		HeadThresholdMs:   cfg.HeadThresholdMs,
		GarbageStartMs:    cfg.GarbageStartMs,
		GarbageConfidence: cfg.GarbageConfidence,
	}
}

// Segment is the word sequence of one side of a boundary
type Segment struct {
	Index int // Segment index, used to pick words that belong to this segment
	Words []model.WordToken
}

// Result is the outcome of stitching two segments
type Result struct {
	Previous []model.WordToken
	Current  []model.WordToken
	Changes  int // Number of corrective edits applied (0, 1 or 2)
}

// Match is a candidate overlap point between the two segments
type Match struct {
	PrevIndex  int
	CurIndex   int
	PrevCloses bool // The predecessor's word carries the sentence terminator
}

// Stitcher merges the tail of segment N-1 with the head of segment N
type Stitcher struct {
	opts Options
}

// New creates a stitcher
func New(opts Options) *Stitcher {
	return &Stitcher{opts: opts}
}

// Stitch resolves duplicated words at the boundary between prev and cur.
// Inputs are never modified; returned slices are fresh copies.
func (s *Stitcher) Stitch(prev, cur Segment) Result {
	res := Result{
		Previous: append([]model.WordToken(nil), prev.Words...),
		Current:  append([]model.WordToken(nil), cur.Words...),
	}

	if m, ok := s.selectMatch(s.Matches(prev, cur)); ok {
		if m.PrevCloses {
			res.Previous = res.Previous[:m.PrevIndex+1]
			res.Current = res.Current[m.CurIndex+1:]
		} else {
			res.Previous = res.Previous[:m.PrevIndex]
			res.Current = res.Current[m.CurIndex:]
		}
		res.Changes++
	}

	if n := len(res.Previous); n > 0 {
		last := res.Previous[n-1]
		if belongsTo(last, prev.Index) && last.StartMs > s.opts.GarbageStartMs && last.Confidence < s.opts.GarbageConfidence {
			res.Previous = res.Previous[:n-1]
			res.Changes++
		}
	}

	return res
}

// Matches returns every (tail, head) candidate pair whose normalized text
// is equal, in tail-major iteration order.
func (s *Stitcher) Matches(prev, cur Segment) []Match {
	var tail, head []int
	for i, w := range prev.Words {
		if belongsTo(w, prev.Index) && w.StartMs > s.opts.TailThresholdMs {
			tail = append(tail, i)
		}
	}
	for i, w := range cur.Words {
		if w.StartMs < s.opts.HeadThresholdMs {
			head = append(head, i)
		}
	}

	var matches []Match
	for _, i1 := range tail {
		for _, i2 := range head {
			if normalize(prev.Words[i1].Text) != normalize(cur.Words[i2].Text) {
				continue
			}
			matches = append(matches, Match{
				PrevIndex:  i1,
				CurIndex:   i2,
				PrevCloses: closesSentence(prev.Words[i1].Text),
			})
		}
	}
	return matches
}

// selectMatch prefers the last match whose predecessor word is still open,
// falling back to the first match when every predecessor word is closed.
func (s *Stitcher) selectMatch(matches []Match) (Match, bool) {
	if len(matches) == 0 {
		return Match{}, false
	}
	chosen := matches[0]
	for _, m := range matches {
		if !m.PrevCloses {
			chosen = m
		}
	}
	return chosen, true
}

// belongsTo reports whether a word originates from the given segment.
// Untagged words are assumed to belong to it.
func belongsTo(w model.WordToken, index int) bool {
	return w.SourceSegment == 0 || index == 0 || w.SourceSegment == index
}

func normalize(text string) string {
	return strings.TrimSuffix(strings.ToLower(text), ".")
}

func closesSentence(text string) bool {
	return strings.HasSuffix(text, ".")
}
