package fetch

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractText parses HTML into readable text with boilerplate removed,
// capped at limit characters. Anchors are rendered as "label (href)" so the
// candidate URLs on the page survive into the extraction prompt.
func ExtractText(html []byte, sourceURL string, limit int) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(html)))
	if err != nil {
		return "", fmt.Errorf("parse HTML from %s: %w", sourceURL, err)
	}

	doc.Find("script, style, nav, footer, header, aside, form, iframe, noscript").Remove()

	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
			return
		}
		label := strings.TrimSpace(s.Text())
		if label == "" {
			label = href
		}
		s.ReplaceWithHtml(fmt.Sprintf(" %s (%s) ", label, href))
	})

	text := doc.Find("body").Text()
	if strings.TrimSpace(text) == "" {
		text = doc.Text()
	}

	cleaned := strings.Join(strings.Fields(text), " ")
	if cleaned == "" {
		return "", fmt.Errorf("no meaningful text content found in %s", sourceURL)
	}

	if limit > 0 && len(cleaned) > limit {
		cleaned = cleaned[:limit]
	}
	return cleaned, nil
}
