package claims

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/claimstream/internal/model"
	"github.com/ppiankov/claimstream/internal/store"
)

type fakeExtractor struct {
	claims      []string
	err         error
	calls       int
	lastContext string
}

func (f *fakeExtractor) ExtractClaims(_ context.Context, _, contextText string) ([]string, error) {
	f.calls++
	f.lastContext = contextText
	return f.claims, f.err
}

type memStore struct {
	sentences map[int]model.Sentence
	putErr    error
	puts      int
}

func newMemStore(texts ...string) *memStore {
	m := &memStore{sentences: make(map[int]model.Sentence)}
	for i, t := range texts {
		m.sentences[i+1] = model.Sentence{RecordingID: "rec", Number: i + 1, Text: t, Status: model.StatusPending}
	}
	return m
}

func (m *memStore) GetSentence(_ context.Context, _ string, number int) (*model.Sentence, error) {
	s, ok := m.sentences[number]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &s, nil
}

func (m *memStore) PrecedingSentences(_ context.Context, _ string, before, limit int) ([]model.Sentence, error) {
	var out []model.Sentence
	for n := before - 1; n >= 1 && len(out) < limit; n-- {
		out = append(out, m.sentences[n])
	}
	return out, nil
}

func (m *memStore) PutSentence(_ context.Context, sent model.Sentence) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.puts++
	m.sentences[sent.Number] = sent
	return nil
}

func newOrchestrator(st Store, ex Extractor) *Orchestrator {
	return NewOrchestrator(st, ex, model.DefaultConfig().Pipeline, nil)
}

func TestOrchestrator_Detect_SkipsShortSentences(t *testing.T) {
	st := newMemStore("Thank you all.")
	ex := &fakeExtractor{claims: []string{"should not be used"}}

	ok := newOrchestrator(st, ex).Detect(context.Background(), "rec", 1)

	require.True(t, ok)
	assert.Equal(t, 0, ex.calls)
	assert.Equal(t, model.StatusOK, st.sentences[1].Status)
	assert.Nil(t, st.sentences[1].Claims)
}

func TestOrchestrator_Detect_NormalizesClaims(t *testing.T) {
	st := newMemStore("Unemployment fell by two percent last year.")
	ex := &fakeExtractor{claims: []string{"Unemployment fell by two percent last year.", "two percent,"}}

	ok := newOrchestrator(st, ex).Detect(context.Background(), "rec", 1)

	require.True(t, ok)
	assert.Equal(t, []string{"Unemployment fell by two percent last year", "two percent"}, st.sentences[1].Claims)
	assert.Equal(t, model.StatusOK, st.sentences[1].Status)
}

func TestOrchestrator_Detect_ContextIsChronological(t *testing.T) {
	st := newMemStore("One.", "Two.", "Three.", "Four.", "Five.", "The budget doubled in ten years.")
	ex := &fakeExtractor{}

	newOrchestrator(st, ex).Detect(context.Background(), "rec", 6)

	assert.Equal(t, "Two. Three. Four. Five.", ex.lastContext)
}

func TestOrchestrator_Detect_ExtractorFailure(t *testing.T) {
	st := newMemStore("Crime rose by ten percent in the city.")
	sent := st.sentences[1]
	sent.Claims = []string{"old claim"}
	st.sentences[1] = sent
	ex := &fakeExtractor{err: errors.New("provider down")}

	ok := newOrchestrator(st, ex).Detect(context.Background(), "rec", 1)

	require.True(t, ok, "extraction failure must not block the sentence")
	assert.Nil(t, st.sentences[1].Claims)
	assert.Equal(t, model.StatusOK, st.sentences[1].Status)
}

func TestOrchestrator_Detect_ReconcilesCorrection(t *testing.T) {
	st := newMemStore("We built three hundred new schools.")
	sent := st.sentences[1]
	sent.Claims = []string{"X"}
	st.sentences[1] = sent

	ok := newOrchestrator(st, &fakeExtractor{claims: []string{"Y"}}).Detect(context.Background(), "rec", 1)

	require.True(t, ok)
	assert.Equal(t, []string{"X", "Y"}, st.sentences[1].Claims)
}

func TestOrchestrator_Detect_StoreFailures(t *testing.T) {
	t.Run("should report missing sentence", func(t *testing.T) {
		ok := newOrchestrator(newMemStore(), &fakeExtractor{}).Detect(context.Background(), "rec", 7)
		assert.False(t, ok)
	})

	t.Run("should report failed write", func(t *testing.T) {
		st := newMemStore("Thank you.")
		st.putErr = errors.New("disk full")
		ok := newOrchestrator(st, &fakeExtractor{}).Detect(context.Background(), "rec", 1)
		assert.False(t, ok)
	})
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		name     string
		existing []string
		detected []string
		want     []string
	}{
		{"fresh detection", nil, []string{"A"}, []string{"A"}},
		{"held claim prepended", []string{"X"}, []string{"Y"}, []string{"X", "Y"}},
		{"held claim already present", []string{"Y"}, []string{"Y", "Z"}, []string{"Y", "Z"}},
		{"order of held claims kept", []string{"B", "A"}, []string{"C"}, []string{"B", "A", "C"}},
		{"empty detection clears", []string{"X"}, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reconcile(tt.existing, tt.detected))
		})
	}
}

func TestNormalizeClaim(t *testing.T) {
	assert.Equal(t, "taxes rose", NormalizeClaim("taxes rose."))
	assert.Equal(t, "taxes rose", NormalizeClaim("taxes rose!"))
	assert.Equal(t, "taxes rose", NormalizeClaim(" taxes rose, "))
	assert.Equal(t, "taxes rose.", NormalizeClaim("taxes rose.."))
	assert.Equal(t, "", NormalizeClaim(""))
}

func TestCountWords(t *testing.T) {
	assert.Equal(t, 3, CountWords("The cat sat."))
	assert.Equal(t, 4, CountWords("  The  cat\tsat down "))
	assert.Equal(t, 0, CountWords(""))
}
