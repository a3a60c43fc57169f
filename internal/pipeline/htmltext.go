package pipeline

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"flipflow/internal/util"
)

// FlattenHTML pulls the visible text out of an HTML email body, one line per
// table cell, list item, span/div or paragraph, so line-oriented rules can
// scan it alongside the raw markup.
func FlattenHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	doc.Find("script,style").Remove()

	lines := []string{}
	doc.Find("td,th,li,p,span,div,h1,h2,h3").Each(func(_ int, sel *goquery.Selection) {
		if sel.Children().Length() > 0 {
			return
		}
		text := util.NormalizeSpaces(sel.Text())
		if text != "" {
			lines = append(lines, text)
		}
	})

	if len(lines) == 0 {
		return util.NormalizeSpaces(doc.Text())
	}
	return strings.Join(lines, "\n")
}

// extractionContent assembles the text a field's rules are run against:
// subject, plain body, flattened HTML, raw HTML (for markup-anchored rules)
// and any shipping-label text.
func extractionContent(subject, bodyText, bodyHTML, labelText string) string {
	parts := []string{subject, bodyText}
	if bodyHTML != "" {
		parts = append(parts, FlattenHTML(bodyHTML), bodyHTML)
	}
	if labelText != "" {
		parts = append(parts, labelText)
	}
	return strings.Join(parts, "\n")
}
