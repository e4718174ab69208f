package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const claimDetectionSystem = `You will be provided with a single input sentence from a transcript. Identify whether the sentence contains any factual claims, and extract them as quotes. Return any identified claims in an array.

A claim is a checkable part of a sentence containing facts that can be verified and determined to be true or false. There are many different types of claims: claims about quantities (e.g. "GDP has risen by 5%"), claims about cause and effect (e.g. "this policy leads to economic growth"), historical claims (e.g. "the prime minister cut the education budget by 5bn pounds in 2023"), or predictive claims about the future (e.g. "economists say this will cost working people $100 more per year").

Only include factually verifiable claims, not opinion, speculation, or sarcasm. Claims should be an exact quote from the transcript. Do not rewrite any part of the text.

A string of context will be provided that contains the sentences preceding the input sentence in the transcript. This context can be used to help identify claims in the input sentence.

If the claim references a person, place, or object (e.g. "he said"), search through the context sentences to identify the subject being referenced (e.g. "Rishi Sunak"), and replace the reference within the claim with the named subject.

Respond with a JSON object of the form {"claims": ["..."]}.

Example 1:
 * Input sentence: "I tell you Stephen, this year alone 10,000 people have crossed on boats, that's a record number, so again, he's made a promise and he's completely failed to keep it."
 * Output: {"claims": ["this year alone, 10,000 people have crossed on boats"]}

Example 2:
 * Input sentence: "We need to smash the gangs that are running this file trade making a huge amount of money."
 * Output: {"claims": []}

Example 3:
 * Input sentence: "Donald Trump is unburdened unburdened by the truth. He said the neo nazi rally in Charlottesville was fabricated."
 * Output: {"claims": ["Donald Trump said the neo nazi rally in Charlottesville was fabricated"]}`

// ClaimDetector extracts checkable claims from transcript sentences
type ClaimDetector struct {
	provider Provider
	model    string
}

// NewClaimDetector creates a detector. An empty model uses the provider default.
func NewClaimDetector(provider Provider, model string) *ClaimDetector {
	return &ClaimDetector{provider: provider, model: model}
}

type claimsPayload struct {
	Claims []string `json:"claims"`
}

// ExtractClaims asks the model for claims in sentence. A refusal yields no claims.
func (d *ClaimDetector) ExtractClaims(ctx context.Context, sentence, contextText string) ([]string, error) {
	prompt := fmt.Sprintf(`This is the input sentence from a transcript to extract claims from:
%s

This is the context of preceding sentences:
%s`, sentence, contextText)

	resp, err := d.provider.Complete(ctx, CompletionRequest{
		System: claimDetectionSystem,
		Prompt: prompt,
		JSON:   true,
		Model:  d.model,
	})
	if err != nil {
		return nil, err
	}
	if resp.Refusal {
		return nil, nil
	}

	var payload claimsPayload
	if err := decodeJSON(resp.Content, &payload); err != nil {
		return nil, fmt.Errorf("parse claims: %w", err)
	}
	return payload.Claims, nil
}

// decodeJSON parses a model response, tolerating markdown code fences
func decodeJSON(content string, v any) error {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	}
	return json.Unmarshal([]byte(strings.TrimSpace(content)), v)
}
