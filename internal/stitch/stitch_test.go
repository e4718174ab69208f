package stitch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/claimstream/internal/model"
)

func w(text string, start int, seg int) model.WordToken {
	return model.WordToken{Text: text, StartMs: start, Confidence: 0.95, SourceSegment: seg}
}

func texts(words []model.WordToken) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = w.Text
	}
	return out
}

func TestStitch_NoMatchPassesThrough(t *testing.T) {
	s := New(DefaultOptions())
	prev := Segment{Index: 1, Words: []model.WordToken{w("The", 100, 1), w("budget", 9200, 1)}}
	cur := Segment{Index: 2, Words: []model.WordToken{w("rose", 300, 2), w("sharply.", 900, 2)}}

	res := s.Stitch(prev, cur)

	assert.Equal(t, 0, res.Changes)
	assert.Equal(t, prev.Words, res.Previous)
	assert.Equal(t, cur.Words, res.Current)
}

func TestStitch_PredecessorTerminatorWins(t *testing.T) {
	s := New(DefaultOptions())
	prev := Segment{Index: 1, Words: []model.WordToken{w("...", 8500, 1), w("hello.", 9400, 1)}}
	cur := Segment{Index: 2, Words: []model.WordToken{w("Hello", 200, 2), w("world.", 700, 2)}}

	res := s.Stitch(prev, cur)

	require.Equal(t, 1, res.Changes)
	assert.Equal(t, []string{"...", "hello."}, texts(res.Previous))
	assert.Equal(t, []string{"world."}, texts(res.Current))
	combined := append(append([]model.WordToken{}, res.Previous...), res.Current...)
	assert.Equal(t, "... hello. world.", model.JoinWords(combined))
}

func TestStitch_CurrentWordWinsWhenPredecessorOpen(t *testing.T) {
	s := New(DefaultOptions())
	prev := Segment{Index: 1, Words: []model.WordToken{
		w("We", 8000, 1), w("cut", 9100, 1), w("taxes", 9600, 1),
	}}
	cur := Segment{Index: 2, Words: []model.WordToken{
		w("cut", 100, 2), w("taxes", 500, 2), w("again.", 1200, 2),
	}}

	res := s.Stitch(prev, cur)

	require.Equal(t, 1, res.Changes)
	// last open match is (taxes, taxes): predecessor cut before it, current keeps it
	assert.Equal(t, []string{"We", "cut"}, texts(res.Previous))
	assert.Equal(t, []string{"taxes", "again."}, texts(res.Current))
}

func TestStitch_FirstMatchWhenAllClosed(t *testing.T) {
	s := New(DefaultOptions())
	prev := Segment{Index: 1, Words: []model.WordToken{
		w("yes.", 9100, 1), w("yes.", 9500, 1),
	}}
	cur := Segment{Index: 2, Words: []model.WordToken{w("Yes.", 100, 2), w("Next", 800, 2)}}

	matches := s.Matches(prev, cur)
	require.Len(t, matches, 2)

	res := s.Stitch(prev, cur)

	assert.Equal(t, []string{"yes."}, texts(res.Previous))
	assert.Equal(t, []string{"Next"}, texts(res.Current))
}

func TestStitch_GarbageTail(t *testing.T) {
	s := New(DefaultOptions())

	t.Run("drops low-confidence late word without a match", func(t *testing.T) {
		late := model.WordToken{Text: "uh", StartMs: 9700, Confidence: 0.3, SourceSegment: 1}
		prev := Segment{Index: 1, Words: []model.WordToken{w("Prices", 100, 1), late}}
		cur := Segment{Index: 2, Words: []model.WordToken{w("fell.", 300, 2)}}

		res := s.Stitch(prev, cur)

		assert.Equal(t, 1, res.Changes)
		assert.Equal(t, []string{"Prices"}, texts(res.Previous))
	})

	t.Run("keeps confident late word", func(t *testing.T) {
		prev := Segment{Index: 1, Words: []model.WordToken{w("Prices", 8600, 1)}}
		cur := Segment{Index: 2, Words: []model.WordToken{w("fell.", 300, 2)}}

		res := s.Stitch(prev, cur)

		assert.Equal(t, 0, res.Changes)
	})

	t.Run("match and garbage both count", func(t *testing.T) {
		prev := Segment{Index: 1, Words: []model.WordToken{
			w("Growth", 8100, 1),
			{Text: "um", StartMs: 8500, Confidence: 0.2, SourceSegment: 1},
			w("slowed", 9300, 1),
		}}
		cur := Segment{Index: 2, Words: []model.WordToken{w("slowed", 100, 2), w("down.", 400, 2)}}

		res := s.Stitch(prev, cur)

		assert.Equal(t, 2, res.Changes)
		assert.Equal(t, []string{"Growth"}, texts(res.Previous))
		assert.Equal(t, []string{"slowed", "down."}, texts(res.Current))
	})

	t.Run("empty predecessor is safe", func(t *testing.T) {
		res := s.Stitch(Segment{Index: 1}, Segment{Index: 2, Words: []model.WordToken{w("Hi.", 0, 2)}})

		assert.Equal(t, 0, res.Changes)
		assert.Empty(t, res.Previous)
	})
}

func TestStitch_IgnoresCarriedWordsFromOlderSegments(t *testing.T) {
	s := New(DefaultOptions())
	// "rates" came from segment 1 and was carried in the remainder of segment 2
	prev := Segment{Index: 2, Words: []model.WordToken{w("rates", 9500, 1), w("rose", 3000, 2)}}
	cur := Segment{Index: 3, Words: []model.WordToken{w("rates", 100, 3), w("again.", 500, 3)}}

	res := s.Stitch(prev, cur)

	assert.Equal(t, 0, res.Changes)
	assert.Len(t, res.Previous, 2)
}

func TestStitch_DoesNotMutateInput(t *testing.T) {
	s := New(DefaultOptions())
	prev := Segment{Index: 1, Words: []model.WordToken{w("a", 100, 1), w("end.", 9400, 1)}}
	cur := Segment{Index: 2, Words: []model.WordToken{w("End", 100, 2), w("b.", 500, 2)}}
	before := append([]model.WordToken(nil), prev.Words...)

	_ = s.Stitch(prev, cur)

	assert.Equal(t, before, prev.Words)
}
