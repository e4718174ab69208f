package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Evidence is one search hit offered to the reviewer
type Evidence struct {
	URL       string
	Title     string
	Publisher string
	Snippet   string
	Text      string // Visible page text, possibly truncated
}

// Verdict is the reviewer's judgement of a claim
type Verdict struct {
	Rating    string   `json:"rating"`
	Summary   string   `json:"summary"`
	CitedURLs []string `json:"sources"`
}

// Unverifiable reports whether the evidence was judged insufficient
func (v Verdict) Unverifiable() bool {
	r := strings.ToLower(strings.TrimSpace(v.Rating))
	return r == "" || r == "unverifiable"
}

const reviewSystem = `You review web and news search results to fact-check a single claim made in a live transcript.

CRITICAL RULES:
1. You MUST ONLY cite URLs from the evidence list provided.
2. DO NOT infer, speculate, or rely on knowledge outside the evidence.
3. If the evidence does not address the claim, rate it "Unverifiable".
4. Rate the claim with one of: "True", "Mostly true", "Misleading", "Mostly false", "False", "Unverifiable".

Respond with a JSON object: {"rating": "...", "summary": "two or three sentences", "sources": ["cited evidence URLs"]}`

// maxEvidenceText bounds the page text sent per evidence item
const maxEvidenceText = 2000

// Reviewer judges search evidence for a claim
type Reviewer struct {
	provider Provider
	model    string
	strict   bool
}

// NewReviewer creates a reviewer. Strict mode rejects verdicts citing URLs
// outside the evidence list.
func NewReviewer(provider Provider, model string, strict bool) *Reviewer {
	return &Reviewer{provider: provider, model: model, strict: strict}
}

// Review asks the model for a verdict on claim given evidence
func (r *Reviewer) Review(ctx context.Context, claim string, evidence []Evidence) (*Verdict, error) {
	if len(evidence) == 0 {
		return nil, errors.New("no evidence to review")
	}

	resp, err := r.provider.Complete(ctx, CompletionRequest{
		System: reviewSystem,
		Prompt: buildReviewPrompt(claim, evidence),
		JSON:   true,
		Model:  r.model,
	})
	if err != nil {
		return nil, err
	}
	if resp.Refusal {
		return &Verdict{Rating: "Unverifiable"}, nil
	}

	var v Verdict
	if err := decodeJSON(resp.Content, &v); err != nil {
		return nil, fmt.Errorf("parse verdict: %w", err)
	}

	if r.strict {
		allowed := make([]string, len(evidence))
		for i, e := range evidence {
			allowed[i] = e.URL
		}
		if _, err := CheckCitations(v.Summary+" "+strings.Join(v.CitedURLs, " "), allowed); err != nil {
			return nil, err
		}
	}
	return &v, nil
}

func buildReviewPrompt(claim string, evidence []Evidence) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Claim: %s\n\nEvidence:\n", claim)
	for i, e := range evidence {
		fmt.Fprintf(&b, "\n[%d] %s\nURL: %s\n", i+1, e.Title, e.URL)
		if e.Publisher != "" {
			fmt.Fprintf(&b, "Publisher: %s\n", e.Publisher)
		}
		if e.Snippet != "" {
			fmt.Fprintf(&b, "Snippet: %s\n", e.Snippet)
		}
		if text := e.Text; text != "" {
			if len(text) > maxEvidenceText {
				text = text[:maxEvidenceText]
			}
			fmt.Fprintf(&b, "Content: %s\n", text)
		}
	}
	return b.String()
}
