package models

import "time"

// SearchQuery is one unit of scraping work: a search term scoped to a
// postal code.
type SearchQuery struct {
	Term       string `json:"term"`
	PostalCode string `json:"postal_code"`
}

// PriceOption is a single purchasable variant of a deal. Every field is
// optional; an option with no populated fields is not worth keeping.
type PriceOption struct {
	Title         string `json:"title,omitempty"`
	OriginalPrice string `json:"original_price,omitempty"`
	CurrentPrice  string `json:"current_price,omitempty"`
	Discount      string `json:"discount,omitempty"`
	PurchaseCount string `json:"purchase_count,omitempty"`
}

// Empty reports whether no field of the option was extracted.
func (o PriceOption) Empty() bool {
	return o == PriceOption{}
}

// DealRecord is everything extracted from one deal page, plus the query
// that led to it. A record with Error set still carries URL, RetrievedAt
// and the query fields so failures stay visible in the output.
type DealRecord struct {
	URL          string        `json:"url"`
	RetrievedAt  time.Time     `json:"retrieved_at"`
	Title        string        `json:"title,omitempty"`
	Merchant     string        `json:"merchant,omitempty"`
	Location     string        `json:"location,omitempty"`
	PriceOptions []PriceOption `json:"price_options"`
	Highlights   []string      `json:"highlights"`
	FinePrint    string        `json:"fine_print,omitempty"`
	Description  string        `json:"description,omitempty"`
	SearchTerm   string        `json:"search_term"`
	PostalCode   string        `json:"postal_code"`
	Error        string        `json:"error,omitempty"`
}

// ScrapeResult is the run artifact: deal records in the order they were
// scraped. It marshals as a bare JSON array.
type ScrapeResult []DealRecord
