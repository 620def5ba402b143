// Package extract turns raw Groupon markup into structured records.
//
// Groupon serves several markup variants for the same semantic field, so
// every field is located through an ordered selector chain evaluated by
// one generic first-match routine. New layout variants are handled by
// appending a selector to a chain, not by new code.
package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var whitespace = regexp.MustCompile(`\s+`)

func cleanText(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// firstText walks the chain and returns the normalized text of the first
// matched element that has any. A selector whose match is empty does not
// stop the chain.
func firstText(root *goquery.Selection, chain []string) string {
	for _, sel := range chain {
		el := root.Find(sel).First()
		if el.Length() == 0 {
			continue
		}
		if text := cleanText(el.Text()); text != "" {
			return text
		}
	}
	return ""
}

// firstMatch returns the first element any chain selector matches, text
// or not. Used for containers whose children carry the values.
func firstMatch(root *goquery.Selection, chain []string) *goquery.Selection {
	for _, sel := range chain {
		if el := root.Find(sel).First(); el.Length() > 0 {
			return el
		}
	}
	return nil
}
