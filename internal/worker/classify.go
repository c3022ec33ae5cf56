package worker

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultTitleSelector matches the schema.org job title marker.
const DefaultTitleSelector = `[itemprop="title"]`

// Classify reports whether body contains an element matching selector and
// returns the trimmed text of the first match.
func Classify(body []byte, selector string) (string, bool, error) {
	if selector == "" {
		selector = DefaultTitleSelector
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("parse job page: %w", err)
	}
	match := doc.Find(selector).First()
	if match.Length() == 0 {
		return "", false, nil
	}
	return normalizeSpace(match.Text()), true, nil
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
