// Package extract turns fetched evidence pages into reviewable text.
package extract

import (
	"encoding/json"
	"strings"

	"golang.org/x/net/html"
)

// Page is the reviewable content of one HTML document
type Page struct {
	Title        string
	Text         string
	ClaimReviews []ClaimReview
}

// ClaimReview is schema.org ClaimReview markup embedded by fact-checkers
type ClaimReview struct {
	ClaimReviewed string
	Rating        string
	Author        string
	URL           string
	DatePublished string
}

// ParsePage extracts the title, visible text and ClaimReview markup
func ParsePage(htmlContent string) (*Page, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return nil, err
	}

	page := &Page{}
	var buf strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if page.Title == "" && n.FirstChild != nil {
					page.Title = strings.TrimSpace(n.FirstChild.Data)
				}
				return
			case "script":
				if attr(n, "type") == "application/ld+json" && n.FirstChild != nil {
					page.ClaimReviews = append(page.ClaimReviews, parseClaimReviews(n.FirstChild.Data)...)
				}
				return
			case "style", "noscript", "iframe", "nav", "footer":
				return
			}
		}

		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				buf.WriteString(text)
				buf.WriteString(" ")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(doc)
	page.Text = strings.TrimSpace(buf.String())
	return page, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

type ldClaimReview struct {
	Type          any    `json:"@type"`
	ClaimReviewed string `json:"claimReviewed"`
	URL           string `json:"url"`
	DatePublished string `json:"datePublished"`
	Author        struct {
		Name string `json:"name"`
	} `json:"author"`
	ReviewRating struct {
		AlternateName string `json:"alternateName"`
		Name          string `json:"name"`
	} `json:"reviewRating"`
	Graph []json.RawMessage `json:"@graph"`
}

// parseClaimReviews reads one JSON-LD block, which may hold a single
// object, an array or an @graph container.
func parseClaimReviews(data string) []ClaimReview {
	data = strings.TrimSpace(data)
	var raws []json.RawMessage
	if strings.HasPrefix(data, "[") {
		if err := json.Unmarshal([]byte(data), &raws); err != nil {
			return nil
		}
	} else {
		raws = []json.RawMessage{json.RawMessage(data)}
	}

	var out []ClaimReview
	for _, raw := range raws {
		var obj ldClaimReview
		if err := json.Unmarshal(raw, &obj); err != nil {
			continue
		}
		for _, g := range obj.Graph {
			out = append(out, parseClaimReviews(string(g))...)
		}
		if !isClaimReview(obj.Type) {
			continue
		}
		rating := obj.ReviewRating.AlternateName
		if rating == "" {
			rating = obj.ReviewRating.Name
		}
		out = append(out, ClaimReview{
			ClaimReviewed: obj.ClaimReviewed,
			Rating:        rating,
			Author:        obj.Author.Name,
			URL:           obj.URL,
			DatePublished: obj.DatePublished,
		})
	}
	return out
}

func isClaimReview(t any) bool {
	switch v := t.(type) {
	case string:
		return v == "ClaimReview"
	case []any:
		for _, e := range v {
			if s, ok := e.(string); ok && s == "ClaimReview" {
				return true
			}
		}
	}
	return false
}
