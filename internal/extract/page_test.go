package extract

import (
	"strings"
	"testing"
)

const factCheckPage = `<html>
<head>
	<title>Did unemployment fall by 2%? - FactDesk</title>
	<script type="application/ld+json">
	{"@context": "https://schema.org", "@type": "ClaimReview",
	 "claimReviewed": "Unemployment fell by 2% last year",
	 "url": "https://factdesk.example/unemployment",
	 "datePublished": "2024-03-01",
	 "author": {"@type": "Organization", "name": "FactDesk"},
	 "reviewRating": {"@type": "Rating", "alternateName": "Mostly false"}}
	</script>
	<style>body { color: red; }</style>
</head>
<body>
	<nav>Home | Politics | Economy</nav>
	<p>The minister said unemployment fell by 2% last year.</p>
	<p>Official statistics show the unemployment rate dropped by only 0.4 points.</p>
	<script>var tracking = true;</script>
	<footer>Copyright FactDesk</footer>
</body>
</html>`

func TestParsePage(t *testing.T) {
	page, err := ParsePage(factCheckPage)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if page.Title != "Did unemployment fall by 2%? - FactDesk" {
		t.Errorf("Unexpected title: %q", page.Title)
	}
	for _, hidden := range []string{"color: red", "tracking", "Politics", "Copyright"} {
		if strings.Contains(page.Text, hidden) {
			t.Errorf("Expected %q to be excluded from visible text: %q", hidden, page.Text)
		}
	}
	if !strings.Contains(page.Text, "Official statistics show") {
		t.Errorf("Expected body text, got %q", page.Text)
	}

	if len(page.ClaimReviews) != 1 {
		t.Fatalf("Expected 1 claim review, got %d", len(page.ClaimReviews))
	}
	cr := page.ClaimReviews[0]
	if cr.Rating != "Mostly false" || cr.Author != "FactDesk" || cr.ClaimReviewed != "Unemployment fell by 2% last year" {
		t.Errorf("Unexpected claim review: %+v", cr)
	}
}

func TestParseClaimReviews_GraphAndArrays(t *testing.T) {
	graph := `{"@context": "https://schema.org", "@graph": [
		{"@type": "WebPage", "name": "x"},
		{"@type": ["ClaimReview"], "claimReviewed": "A", "reviewRating": {"name": "False"}}
	]}`
	if got := parseClaimReviews(graph); len(got) != 1 || got[0].Rating != "False" {
		t.Errorf("Unexpected graph parse: %+v", got)
	}

	array := `[{"@type": "ClaimReview", "claimReviewed": "B"}, {"@type": "Article"}]`
	if got := parseClaimReviews(array); len(got) != 1 || got[0].ClaimReviewed != "B" {
		t.Errorf("Unexpected array parse: %+v", got)
	}

	if got := parseClaimReviews(`{not json`); got != nil {
		t.Errorf("Expected nil for malformed JSON-LD, got %+v", got)
	}
}

func TestKeywords(t *testing.T) {
	got := Keywords("The GDP has risen by 5% in 2023, and the GDP will rise.")
	want := []string{"gdp", "risen", "5%", "2023", "rise"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Keywords() = %v, want %v", got, want)
	}
}

func TestJaccard(t *testing.T) {
	if got := Jaccard("unemployment fell last year", "unemployment fell last year"); got != 1 {
		t.Errorf("Expected identical texts to score 1, got %f", got)
	}
	if got := Jaccard("unemployment fell", "inflation rose"); got != 0 {
		t.Errorf("Expected disjoint texts to score 0, got %f", got)
	}
	if got := Jaccard("", "anything"); got != 0 {
		t.Errorf("Expected empty text to score 0, got %f", got)
	}
	got := Jaccard("unemployment fell sharply", "unemployment fell slowly")
	if got <= 0.4 || got >= 0.6 {
		t.Errorf("Expected partial overlap near 0.5, got %f", got)
	}
}

func TestRelevantPassages(t *testing.T) {
	text := "The weather in the capital was mild for the season. " +
		"Unemployment fell by 0.4 points according to the statistics office. " +
		"Officials said the unemployment figures for last year were revised. " +
		"Nothing else of note happened in parliament this week."

	got := RelevantPassages(text, "unemployment fell by 2% last year", 2)
	if len(got) != 2 {
		t.Fatalf("Expected 2 passages, got %v", got)
	}
	if !strings.HasPrefix(got[0], "Unemployment fell") || !strings.HasPrefix(got[1], "Officials said") {
		t.Errorf("Expected passages in document order, got %v", got)
	}

	if got := RelevantPassages(text, "the and", 2); got != nil {
		t.Errorf("Expected no passages for stopword-only claim, got %v", got)
	}
}

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("Short. This sentence is definitely long enough to count! And this one is long enough as well")
	if len(got) != 2 {
		t.Errorf("Expected 2 sentences, got %v", got)
	}
}
