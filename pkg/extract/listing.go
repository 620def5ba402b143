package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var listingLinkChain = []string{
	"a[href*='/deals/']",
	"figure.card-ui a",
	"div.deal-card a",
	"[data-bhw='DealCard'] a",
}

// DealLinks pulls deal detail URLs out of a search results page. A link
// counts if its href contains the deal path marker and is not the bare
// deals index. Relative hrefs are resolved against base. Duplicates are
// dropped, keeping first-seen order across the chain.
func DealLinks(markup, base string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, err
	}

	base = strings.TrimRight(base, "/")
	seen := make(map[string]struct{})
	var links []string

	for _, sel := range listingLinkChain {
		doc.Find(sel).Each(func(_ int, a *goquery.Selection) {
			href := a.AttrOr("href", "")
			if !strings.Contains(href, "/deals/") || strings.HasSuffix(href, "/deals/") {
				return
			}
			full := href
			if strings.HasPrefix(href, "/") {
				full = base + href
			}
			if _, ok := seen[full]; ok {
				return
			}
			seen[full] = struct{}{}
			links = append(links, full)
		})
	}
	return links, nil
}
