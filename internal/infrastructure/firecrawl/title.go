package firecrawl

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// extractTitle returns the document <title>, or the first <h1> when the title is blank.
func extractTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	if title := collapse(doc.Find("head > title").First().Text()); title != "" {
		return title
	}
	if title := collapse(doc.Find("title").First().Text()); title != "" {
		return title
	}
	return collapse(doc.Find("h1").First().Text())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
