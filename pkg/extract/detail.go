package extract

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"groupon-scraper/pkg/models"
)

var (
	titleChain = []string{
		"h1.deal-title",
		"h2.deal-title",
		"h1[data-bhw='DealTitle']",
		"h2[data-bhw='DealTitle']",
		"[class*='deal-title']",
		"[class*='dealTitle']",
	}
	merchantChain = []string{
		"[class*='merchant-name']",
		"[data-bhw='MerchantName']",
		"[class*='merchantName']",
	}
	locationChain = []string{
		"[class*='merchant-location']",
		"[data-bhw='MerchantLocation']",
		"[class*='merchantLocation']",
	}
	finePrintChain = []string{
		"[class*='fine-print']",
		"[data-bhw='FinePrint']",
		"[class*='finePrint']",
	}
	descriptionChain = []string{
		"[class*='description']",
		"[data-bhw='Description']",
	}
	highlightsChain = []string{
		"[class*='highlights']",
		"[data-bhw='Highlights']",
	}

	optionContainerChain = []string{
		"[class*='deal-option']",
		"[data-bhw='DealOption']",
		"[class*='dealOption']",
	}
	optionTitleChain = []string{
		"[class*='option-title']",
		"[data-bhw='OptionTitle']",
		"[class*='optionTitle']",
	}
	originalPriceChain = []string{
		"[class*='original-price']",
		"[class*='originalPrice']",
		"[data-bhw='OriginalPrice']",
	}
	currentPriceChain = []string{
		"[class*='current-price']",
		"[class*='currentPrice']",
		"[data-bhw='CurrentPrice']",
	}
	discountChain = []string{
		"[class*='discount']",
		"[data-bhw='Discount']",
	}
	purchaseCountChain = []string{
		"[class*='bought']",
		"[data-bhw='QuantityBought']",
	}
)

// Deal extracts a single deal record from a detail page. Fields with no
// matching markup stay zero and drop out of the JSON encoding; only an
// unparseable document is an error.
func Deal(markup, url string) (models.DealRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return models.DealRecord{}, err
	}

	rec := models.DealRecord{
		URL:          url,
		RetrievedAt:  time.Now().UTC(),
		PriceOptions: []models.PriceOption{},
		Highlights:   []string{},
	}

	root := doc.Selection
	rec.Title = firstText(root, titleChain)
	rec.Merchant = firstText(root, merchantChain)
	rec.Location = firstText(root, locationChain)

	// First container selector that produces at least one populated
	// option wins; later selectors are assumed to be alternative markup
	// for the same options, not additional ones.
	for _, sel := range optionContainerChain {
		var opts []models.PriceOption
		doc.Find(sel).Each(func(_ int, c *goquery.Selection) {
			opt := models.PriceOption{
				Title:         firstText(c, optionTitleChain),
				OriginalPrice: firstText(c, originalPriceChain),
				CurrentPrice:  firstText(c, currentPriceChain),
				Discount:      firstText(c, discountChain),
				PurchaseCount: firstText(c, purchaseCountChain),
			}
			if !opt.Empty() {
				opts = append(opts, opt)
			}
		})
		if len(opts) > 0 {
			rec.PriceOptions = opts
			break
		}
	}

	if hl := firstMatch(root, highlightsChain); hl != nil {
		hl.Find("li").Each(func(_ int, li *goquery.Selection) {
			if text := cleanText(li.Text()); text != "" {
				rec.Highlights = append(rec.Highlights, text)
			}
		})
	}

	rec.FinePrint = firstText(root, finePrintChain)
	rec.Description = firstText(root, descriptionChain)

	return rec, nil
}
