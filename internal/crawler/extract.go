package crawler

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractCaseText pulls the judgment text out of a case document: the
// trimmed text of every div.paragWrapper block, joined by newlines. A page
// that loads but carries no extractable text returns ErrNoContent.
func ExtractCaseText(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse case document: %w", err)
	}

	var paragraphs []string
	doc.Find("div.paragWrapper").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	if len(paragraphs) == 0 {
		return "", ErrNoContent
	}
	return strings.Join(paragraphs, "\n"), nil
}

// ExtractDocumentLinks harvests case document URLs from a rendered listing
// page: anchors under the filterable list whose href contains a /doc/
// segment, resolved against the listing URL and deduplicated in order.
func ExtractDocumentLinks(body []byte, listingURL string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse listing document: %w", err)
	}

	seen := make(map[string]struct{})
	var links []string
	doc.Find("#filterableList a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if !IsDocumentURL(href) {
			return
		}
		resolved := ResolveURL(listingURL, href)
		if resolved == "" {
			return
		}
		if _, dup := seen[resolved]; dup {
			return
		}
		seen[resolved] = struct{}{}
		links = append(links, resolved)
	})
	return links, nil
}
