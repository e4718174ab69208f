package factcheck

import "strings"

// firstPerson markers in replacement order; possessives take "'s"
var firstPerson = []struct {
	marker     string
	possessive bool
}{
	{"I", false},
	{"We", false},
	{"My", true},
	{"Our", true},
}

// NormalizeSpeaker rewrites first-person markers in claim with the speaker's
// name so the claim can be checked out of context. A marker is replaced when
// it is a whole token followed by a space, in either its capitalized or
// lowercase form. An empty speaker leaves the claim unchanged.
func NormalizeSpeaker(claim, speaker string) string {
	speaker = strings.TrimSpace(speaker)
	if speaker == "" {
		return claim
	}

	tokens := strings.Split(claim, " ")
	for _, fp := range firstPerson {
		replacement := speaker
		if fp.possessive {
			replacement = speaker + "'s"
		}
		lower := strings.ToLower(fp.marker)
		// The last token has no trailing space
		for i := 0; i < len(tokens)-1; i++ {
			if tokens[i] == fp.marker || tokens[i] == lower {
				tokens[i] = replacement
			}
		}
	}
	return strings.Join(tokens, " ")
}
