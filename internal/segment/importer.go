package segment

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ppiankov/claimstream/internal/model"
)

var sentenceBoundary = regexp.MustCompile(`\.\s`)

// ContinuationStrategy decides whether an imported text piece continues
// the previous open sentence instead of starting a new one.
type ContinuationStrategy interface {
	Continues(piece string) bool
}

// CapitalizationStrategy treats a piece starting with a lowercase letter as
// a continuation. Proper nouns, acronyms and quotes defeat it.
type CapitalizationStrategy struct{}

// Continues reports whether piece starts with a lowercase letter
func (CapitalizationStrategy) Continues(piece string) bool {
	r, _ := utf8.DecodeRuneInString(piece)
	return unicode.IsLower(r)
}

// TextImporter converts free-form text into sentence records
type TextImporter struct {
	Strategy       ContinuationStrategy
	SegmentSeconds int
}

// NewTextImporter creates an importer using the capitalization heuristic
func NewTextImporter(segmentSeconds int) *TextImporter {
	return &TextImporter{Strategy: CapitalizationStrategy{}, SegmentSeconds: segmentSeconds}
}

// ImportResult holds the sentences touched by one import
type ImportResult struct {
	Updated *model.Sentence  // The previously open sentence, if text was appended to it
	Created []model.Sentence // New sentences, numbered after the previous one
}

// SplitText splits on a period followed by whitespace and re-appends the
// period to every piece.
func SplitText(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	raw := sentenceBoundary.Split(text, -1)
	raw[len(raw)-1] = strings.TrimSuffix(raw[len(raw)-1], ".")

	pieces := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		pieces = append(pieces, p+".")
	}
	return pieces
}

// Import merges text into the sentence stream after last, which may be nil
// for an empty recording.
func (imp *TextImporter) Import(last *model.Sentence, sourceSegment int, text string) ImportResult {
	strategy := imp.Strategy
	if strategy == nil {
		strategy = CapitalizationStrategy{}
	}

	var res ImportResult
	var updated *model.Sentence
	if last != nil {
		copied := *last
		updated = &copied
	}
	next := 1
	if last != nil {
		next = last.Number + 1
	}

	for _, piece := range SplitText(text) {
		var open *model.Sentence
		if n := len(res.Created); n > 0 {
			open = &res.Created[n-1]
		} else {
			open = updated
		}

		if open != nil && strategy.Continues(piece) {
			open.Text = strings.TrimSuffix(open.Text, ".") + " " + piece
			open.Words = nil
			open.Status = model.StatusPending
			if len(res.Created) == 0 {
				res.Updated = updated
			}
			continue
		}

		res.Created = append(res.Created, model.Sentence{
			Number:        next,
			SourceSegment: sourceSegment,
			StartSeconds:  model.StartSecondsFor(sourceSegment, 0, imp.segmentSeconds()),
			Text:          piece,
			Status:        model.StatusPending,
		})
		next++
	}
	return res
}

func (imp *TextImporter) segmentSeconds() int {
	if imp.SegmentSeconds <= 0 {
		return 10
	}
	return imp.SegmentSeconds
}
