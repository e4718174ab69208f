package score

import (
	"testing"
	"time"

	"github.com/ppiankov/claimstream/internal/model"
)

var testNow = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func newTestScorer() *Scorer {
	return &Scorer{now: func() time.Time { return testNow }}
}

func daysAgo(n int) *time.Time {
	t := testNow.AddDate(0, 0, -n)
	return &t
}

func TestScorer_Assess_Empty(t *testing.T) {
	if got := newTestScorer().Assess(nil); got != nil {
		t.Errorf("Assess(nil) = %+v, want nil", got)
	}
}

func TestScorer_Assess_AgreeingFactChecks(t *testing.T) {
	results := []model.ProviderResult{
		{Source: "google", Rating: "False", Publisher: "PolitiFact", ReviewedAt: daysAgo(30)},
		{Source: "google", Rating: "Incorrect", Publisher: "Full Fact", ReviewedAt: daysAgo(60)},
		{Source: "google", Rating: "Pants on Fire", Publisher: "FactCheck.org", ReviewedAt: daysAgo(90)},
	}

	support := newTestScorer().Assess(results)
	if support == nil {
		t.Fatal("expected support")
	}
	if support.Conflict {
		t.Error("expected no conflict")
	}
	// coverage 40 + authority 20 (all secondary) + freshness 20 + agreement 10
	if support.Index != 90 {
		t.Errorf("Index = %d, want 90", support.Index)
	}
	if support.Confidence != "high" {
		t.Errorf("Confidence = %q, want high", support.Confidence)
	}
	if len(support.Signals) != 4 {
		t.Errorf("got %d signals, want 4", len(support.Signals))
	}
}

func TestScorer_Assess_Conflict(t *testing.T) {
	results := []model.ProviderResult{
		{Rating: "True", Publisher: "A"},
		{Rating: "False", Publisher: "B"},
	}

	support := newTestScorer().Assess(results)
	if !support.Conflict {
		t.Fatal("expected conflict")
	}
	if support.Confidence != "low-medium" {
		t.Errorf("Confidence = %q, want low-medium", support.Confidence)
	}
	for _, s := range support.Signals {
		if s.Type == model.SignalAgreement && s.Severity != model.SeverityWarning {
			t.Errorf("agreement severity = %s, want warning", s.Severity)
		}
	}
}

func TestScorer_Assess_UnratedEvidence(t *testing.T) {
	results := []model.ProviderResult{
		{Source: "search", URL: "https://blog.example.com/a", Authority: model.TierTertiary},
	}

	support := newTestScorer().Assess(results)
	// coverage 13 + authority 10 + freshness 10 (unknown) + agreement 0
	if support.Index != 33 {
		t.Errorf("Index = %d, want 33", support.Index)
	}
	if support.Confidence != "low" {
		t.Errorf("Confidence = %q, want low", support.Confidence)
	}
}

func TestScorer_CalculateFreshness_Stale(t *testing.T) {
	s := newTestScorer()
	score, signal := s.calculateFreshness([]model.ProviderResult{
		{ReviewedAt: daysAgo(5 * 365)},
	})
	if score != 0 {
		t.Errorf("score = %d, want 0", score)
	}
	if signal.Severity != model.SeverityCritical {
		t.Errorf("severity = %s, want critical", signal.Severity)
	}
}

func TestClassifyRating(t *testing.T) {
	tests := []struct {
		rating string
		want   polarity
	}{
		{"", polarityNone},
		{"True", polarityTrue},
		{"Correct", polarityTrue},
		{"Incorrect", polarityFalse},
		{"Inaccurate", polarityFalse},
		{"Untrue", polarityFalse},
		{"Pants on Fire!", polarityFalse},
		{"Mostly True", polarityMixed},
		{"Half true", polarityMixed},
		{"Missing context", polarityMixed},
		{"Satire", polarityNone},
	}
	for _, tt := range tests {
		t.Run(tt.rating, func(t *testing.T) {
			if got := classifyRating(tt.rating); got != tt.want {
				t.Errorf("classifyRating(%q) = %d, want %d", tt.rating, got, tt.want)
			}
		})
	}
}
