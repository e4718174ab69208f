package model

import "time"

// FactCheckResult is the envelope returned for one checked claim
type FactCheckResult struct {
	OriginalClaim string           `json:"transcriptClaim"`
	CheckedClaim  string           `json:"checkedClaim,omitempty"` // After speaker normalization
	Source        string           `json:"source,omitempty"`       // Stage that produced the results
	Results       []ProviderResult `json:"factCheckResults"`
	Support       *Support         `json:"support,omitempty"` // Nil when there are no results
}

// Support summarizes how well the results back a verdict. It is a
// diagnostic, not a truth value.
type Support struct {
	Index      int      `json:"index"`      // 0..100
	Confidence string   `json:"confidence"` // low, low-medium, medium, high
	Conflict   bool     `json:"conflict"`   // Verdicts disagree
	Signals    []Signal `json:"signals"`
}

// Signal is one explained input to the support index
type Signal struct {
	Type        SignalType     `json:"type"`
	Severity    Severity       `json:"severity"`
	Description string         `json:"description"`
	Data        map[string]any `json:"data,omitempty"`
}

// SignalType names a support signal
type SignalType string

const (
	SignalCoverage  SignalType = "coverage"
	SignalAuthority SignalType = "authority"
	SignalFreshness SignalType = "freshness"
	SignalAgreement SignalType = "agreement"
)

// Severity grades a signal
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// ProviderResult is a single verdict or piece of evidence from a fact-check source
type ProviderResult struct {
	Source     string        `json:"source"`          // database, google, search
	Claim      string        `json:"claim,omitempty"` // Claim as phrased by the reviewer
	Claimant   string        `json:"claimant,omitempty"`
	Rating     string        `json:"rating,omitempty"` // Textual verdict
	Title      string        `json:"title,omitempty"`
	URL        string        `json:"url,omitempty"`
	Publisher  string        `json:"publisher,omitempty"`
	Summary    string        `json:"summary,omitempty"`
	ReviewedAt *time.Time    `json:"reviewed_at,omitempty"`
	Score      float64       `json:"score,omitempty"`     // Similarity or relevance, 0..1
	Authority  AuthorityTier `json:"authority,omitempty"` // Evidence source classification
}

// FactCheckEntry is a curated verdict stored in the internal fact-check database
type FactCheckEntry struct {
	ID        int64     `json:"id" yaml:"-"`
	Claim     string    `json:"claim" yaml:"claim"`
	Claimant  string    `json:"claimant,omitempty" yaml:"claimant,omitempty"`
	Rating    string    `json:"rating" yaml:"rating"`
	Summary   string    `json:"summary,omitempty" yaml:"summary,omitempty"`
	URL       string    `json:"url,omitempty" yaml:"url,omitempty"`
	Publisher string    `json:"publisher,omitempty" yaml:"publisher,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
}

// AuthorityTier represents the classification of source authority
type AuthorityTier int

const (
	TierUnknown   AuthorityTier = 0 // Not yet classified
	TierPrimary   AuthorityTier = 1 // Official statistics, legislation, academic papers
	TierSecondary AuthorityTier = 2 // Fact-checkers, wire services, major publishers
	TierTertiary  AuthorityTier = 3 // Blogs, opinion sites, everything else
)

func (t AuthorityTier) String() string {
	switch t {
	case TierPrimary:
		return "primary"
	case TierSecondary:
		return "secondary"
	case TierTertiary:
		return "tertiary"
	default:
		return "unknown"
	}
}

// SearchHit is one web or news search result considered as evidence
type SearchHit struct {
	URL         string     `json:"url"`
	Title       string     `json:"title,omitempty"`
	Snippet     string     `json:"snippet,omitempty"`
	Publisher   string     `json:"publisher,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Engine      string     `json:"engine"` // customsearch, newscatcher
}
