// Package score grades how well a set of fact-check results supports a verdict.
package score

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/claimstream/internal/model"
)

// Verdict polarity of a textual rating
type polarity int

const (
	polarityNone polarity = iota
	polarityTrue
	polarityFalse
	polarityMixed
)

// Scorer calculates the support index and its signals
type Scorer struct {
	now func() time.Time
}

// NewScorer creates a new scorer
func NewScorer() *Scorer {
	return &Scorer{now: time.Now}
}

// Assess scores results. It returns nil when there is nothing to assess.
func (s *Scorer) Assess(results []model.ProviderResult) *model.Support {
	if len(results) == 0 {
		return nil
	}

	var signals []model.Signal

	// 1. Coverage (0-40 points)
	coverageScore, coverageSignal := s.calculateCoverage(results)
	signals = append(signals, coverageSignal)

	// 2. Authority distribution (0-30 points)
	authorityScore, authoritySignal := s.calculateAuthority(results)
	signals = append(signals, authoritySignal)

	// 3. Freshness (0-20 points)
	freshnessScore, freshnessSignal := s.calculateFreshness(results)
	signals = append(signals, freshnessSignal)

	// 4. Agreement (0-10 points, conflict penalty)
	agreementScore, conflict, agreementSignal := s.calculateAgreement(results)
	signals = append(signals, agreementSignal)

	total := coverageScore + authorityScore + freshnessScore + agreementScore
	if conflict {
		total -= 10
		if total < 0 {
			total = 0
		}
	}

	return &model.Support{
		Index:      total,
		Confidence: s.determineConfidence(total, len(results), conflict),
		Conflict:   conflict,
		Signals:    signals,
	}
}

// calculateCoverage rewards several independent results (0-40 points)
func (s *Scorer) calculateCoverage(results []model.ProviderResult) (int, model.Signal) {
	publishers := make(map[string]bool)
	for _, r := range results {
		key := strings.ToLower(strings.TrimSpace(r.Publisher))
		if key == "" {
			key = r.URL
		}
		publishers[key] = true
	}

	count := len(publishers)
	score := int(math.Min(float64(count)/3*40, 40))

	severity := model.SeverityInfo
	if count < 2 {
		severity = model.SeverityWarning
	}

	return score, model.Signal{
		Type:        model.SignalCoverage,
		Severity:    severity,
		Description: fmt.Sprintf("%d results from %d independent sources", len(results), count),
		Data: map[string]any{
			"results": len(results),
			"sources": count,
			"score":   score,
			"formula": "min(sources / 3 * 40, 40)",
		},
	}
}

// calculateAuthority calculates authority distribution score (0-30 points).
// Database and published fact-check results count as secondary unless classified.
func (s *Scorer) calculateAuthority(results []model.ProviderResult) (int, model.Signal) {
	primaryCount := 0
	secondaryCount := 0
	tertiaryCount := 0

	for _, r := range results {
		tier := r.Authority
		if tier == model.TierUnknown && r.Rating != "" {
			tier = model.TierSecondary
		}
		switch tier {
		case model.TierPrimary:
			primaryCount++
		case model.TierSecondary:
			secondaryCount++
		default:
			tertiaryCount++
		}
	}

	total := len(results)
	weightedSum := float64(primaryCount*3 + secondaryCount*2 + tertiaryCount*1)
	maxPossible := float64(total * 3)
	score := int((weightedSum / maxPossible) * 30)

	severity := model.SeverityInfo
	if primaryCount == 0 && secondaryCount == 0 {
		severity = model.SeverityWarning
	}

	return score, model.Signal{
		Type:        model.SignalAuthority,
		Severity:    severity,
		Description: fmt.Sprintf("Authority distribution: %d primary, %d secondary, %d tertiary", primaryCount, secondaryCount, tertiaryCount),
		Data: map[string]any{
			"primary":   primaryCount,
			"secondary": secondaryCount,
			"tertiary":  tertiaryCount,
			"total":     total,
			"score":     score,
			"formula":   "(primary*3 + secondary*2 + tertiary*1) / (total*3) * 30",
		},
	}
}

// calculateFreshness calculates freshness score (0-20 points)
func (s *Scorer) calculateFreshness(results []model.ProviderResult) (int, model.Signal) {
	now := s.now()
	var ages []int
	for _, r := range results {
		if r.ReviewedAt != nil && !r.ReviewedAt.IsZero() {
			days := int(now.Sub(*r.ReviewedAt).Hours() / 24)
			if days < 0 {
				days = 0
			}
			ages = append(ages, days)
		}
	}

	if len(ages) == 0 {
		return 10, model.Signal{
			Type:        model.SignalFreshness,
			Severity:    model.SeverityInfo,
			Description: "No review dates available (assuming moderate)",
			Data:        map[string]any{"samples": 0, "score": 10},
		}
	}

	sort.Ints(ages)
	medianAge := ages[len(ages)/2]
	medianAgeYears := float64(medianAge) / 365.0

	// 20 points for fresh, decreasing by 5 points per year
	score := 20 - int(medianAgeYears*5)
	if score < 0 {
		score = 0
	}

	severity := model.SeverityInfo
	if medianAgeYears > 3 {
		severity = model.SeverityCritical
	} else if medianAgeYears > 1 {
		severity = model.SeverityWarning
	}

	return score, model.Signal{
		Type:        model.SignalFreshness,
		Severity:    severity,
		Description: fmt.Sprintf("Median review age: %.1f years", medianAgeYears),
		Data: map[string]any{
			"median_age_days":  medianAge,
			"median_age_years": medianAgeYears,
			"samples":          len(ages),
			"score":            score,
			"formula":          "20 - min(median_age_years * 5, 20)",
		},
	}
}

// calculateAgreement checks whether rated results point the same way (0-10 points)
func (s *Scorer) calculateAgreement(results []model.ProviderResult) (int, bool, model.Signal) {
	counts := map[polarity]int{}
	for _, r := range results {
		counts[classifyRating(r.Rating)]++
	}
	rated := counts[polarityTrue] + counts[polarityFalse] + counts[polarityMixed]

	if rated == 0 {
		return 0, false, model.Signal{
			Type:        model.SignalAgreement,
			Severity:    model.SeverityInfo,
			Description: "No rated results",
			Data:        map[string]any{"rated": 0},
		}
	}

	conflict := counts[polarityTrue] > 0 && counts[polarityFalse] > 0
	score := 10
	severity := model.SeverityInfo
	description := fmt.Sprintf("%d rated results agree", rated)
	if counts[polarityMixed] > 0 {
		score = 5
		description = fmt.Sprintf("%d of %d rated results are mixed", counts[polarityMixed], rated)
	}
	if conflict {
		score = 0
		severity = model.SeverityWarning
		description = fmt.Sprintf("Verdicts disagree: %d true, %d false", counts[polarityTrue], counts[polarityFalse])
	}

	return score, conflict, model.Signal{
		Type:        model.SignalAgreement,
		Severity:    severity,
		Description: description,
		Data: map[string]any{
			"true":    counts[polarityTrue],
			"false":   counts[polarityFalse],
			"mixed":   counts[polarityMixed],
			"rated":   rated,
			"score":   score,
			"penalty": conflict,
		},
	}
}

var (
	mixedRatings = []string{"half", "mixed", "partly", "partially", "mostly", "missing context", "needs context", "unproven", "unsupported", "exaggerat"}
	falseRatings = []string{"false", "untrue", "fake", "incorrect", "inaccurate", "wrong", "pants on fire", "misleading", "debunked", "no evidence"}
	trueRatings  = []string{"true", "correct", "accurate", "confirmed", "verified"}
)

// classifyRating maps a free-text rating onto a polarity. Qualified
// ratings ("mostly true", "half true") are mixed.
func classifyRating(rating string) polarity {
	lower := strings.ToLower(strings.TrimSpace(rating))
	if lower == "" {
		return polarityNone
	}
	for _, m := range mixedRatings {
		if strings.Contains(lower, m) {
			return polarityMixed
		}
	}
	for _, f := range falseRatings {
		if strings.Contains(lower, f) {
			return polarityFalse
		}
	}
	for _, t := range trueRatings {
		if strings.Contains(lower, t) {
			return polarityTrue
		}
	}
	return polarityNone
}

// determineConfidence determines the confidence level based on the score
func (s *Scorer) determineConfidence(score int, resultCount int, conflict bool) string {
	if conflict {
		return "low-medium"
	}

	if resultCount < 2 {
		return "low"
	}

	if score >= 80 {
		return "high"
	} else if score >= 60 {
		return "medium"
	} else {
		return "low"
	}
}
