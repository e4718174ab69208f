package extract

import (
	"sort"
	"strings"
	"unicode"
)

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "was": {}, "were": {}, "has": {}, "have": {},
	"had": {}, "that": {}, "this": {}, "with": {}, "from": {}, "but": {}, "not": {}, "they": {},
	"their": {}, "there": {}, "been": {}, "will": {}, "would": {}, "said": {}, "says": {},
	"its": {}, "into": {}, "than": {}, "then": {}, "which": {}, "who": {}, "what": {}, "when": {},
	"our": {}, "you": {}, "your": {}, "his": {}, "her": {}, "she": {}, "him": {}, "all": {},
	"more": {}, "over": {}, "about": {}, "also": {}, "can": {}, "very": {}, "just": {},
}

// Keywords returns the distinct lowercase content words of text in order
// of first appearance. Digits are kept so quantities match.
func Keywords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '%'
	})

	seen := make(map[string]struct{}, len(fields))
	var out []string
	for _, f := range fields {
		if len([]rune(f)) < 3 && !startsWithDigit(f) {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

func startsWithDigit(s string) bool {
	return s != "" && s[0] >= '0' && s[0] <= '9'
}

// Jaccard is the keyword-set similarity of a and b in [0, 1]
func Jaccard(a, b string) float64 {
	ka, kb := Keywords(a), Keywords(b)
	if len(ka) == 0 || len(kb) == 0 {
		return 0
	}

	set := make(map[string]struct{}, len(ka))
	for _, k := range ka {
		set[k] = struct{}{}
	}
	inter := 0
	for _, k := range kb {
		if _, ok := set[k]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(ka)+len(kb)-inter)
}

// RelevantPassages returns up to max sentences of text sharing the most
// keywords with claim, in document order.
func RelevantPassages(text, claim string, max int) []string {
	keys := Keywords(claim)
	if len(keys) == 0 || max <= 0 {
		return nil
	}

	type scored struct {
		index int
		score int
		text  string
	}
	var hits []scored
	for i, s := range SplitSentences(text) {
		lower := strings.ToLower(s)
		score := 0
		for _, k := range keys {
			if strings.Contains(lower, k) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{index: i, score: score, text: s})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > max {
		hits = hits[:max]
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].index < hits[j].index })

	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.text
	}
	return out
}

// SplitSentences splits text into sentences (simple heuristic)
func SplitSentences(text string) []string {
	text = strings.ReplaceAll(text, "\n", " ")

	var sentences []string
	var current strings.Builder

	for i, r := range text {
		current.WriteRune(r)

		if r == '.' || r == '!' || r == '?' {
			// Look ahead to avoid splitting on abbreviations
			if i+1 < len(text) && (text[i+1] == ' ' || text[i+1] == '\t') {
				if sentence := strings.TrimSpace(current.String()); isSentence(sentence) {
					sentences = append(sentences, sentence)
				}
				current.Reset()
			}
		}
	}

	if sentence := strings.TrimSpace(current.String()); isSentence(sentence) {
		sentences = append(sentences, sentence)
	}
	return sentences
}

func isSentence(s string) bool {
	return len(s) >= 30 && len(s) <= 500
}
