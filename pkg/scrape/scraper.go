// Package scrape drives the end-to-end run: one search query at a time,
// listing page first, then every deal page it links to, with randomized
// pacing between requests to look like a person browsing.
package scrape

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"groupon-scraper/pkg/cache"
	"groupon-scraper/pkg/extract"
	"groupon-scraper/pkg/fetch"
	"groupon-scraper/pkg/logger"
	"groupon-scraper/pkg/models"
)

type Options struct {
	BaseURL       string
	LinkDelayMin  time.Duration
	LinkDelayMax  time.Duration
	QueryDelayMin time.Duration
	QueryDelayMax time.Duration
	Cache         *cache.Cache // optional archive, nil disables
	Logger        *slog.Logger
}

// QueryStat summarizes one query pass for reporting.
type QueryStat struct {
	Query   models.SearchQuery
	Records int
	Err     error
}

type Scraper struct {
	fetcher fetch.Fetcher
	opts    Options
	log     *slog.Logger
}

func New(fetcher fetch.Fetcher, opts Options) *Scraper {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Scraper{fetcher: fetcher, opts: opts, log: log}
}

func (s *Scraper) searchURL(q models.SearchQuery) string {
	v := url.Values{}
	v.Set("query", q.Term)
	v.Set("address", q.PostalCode)
	return s.opts.BaseURL + "/search?" + v.Encode()
}

// ScrapeQuery runs a single query pass: listing, then each deal page.
// Deal-level failures become error-tagged records; only a failed listing
// fetch is returned as an error, since it leaves nothing to work with.
func (s *Scraper) ScrapeQuery(ctx context.Context, q models.SearchQuery) ([]models.DealRecord, error) {
	if s.opts.Cache != nil {
		if recs, ok := s.opts.Cache.GetQuery(q.Term, q.PostalCode); ok {
			s.log.Info("serving query from archive",
				"search_term", q.Term,
				"postal_code", q.PostalCode,
				"records", len(recs),
			)
			return recs, nil
		}
	}

	listingURL := s.searchURL(q)
	s.log.Info("fetching search results", "url", listingURL)

	markup, err := s.fetcher.Fetch(ctx, listingURL)
	if err != nil {
		return nil, err
	}

	links, err := extract.DealLinks(markup, s.opts.BaseURL)
	if err != nil {
		s.log.Error("failed to parse search results", "url", listingURL, "err", err)
		links = nil
	}
	if len(links) == 0 {
		s.log.Warn("no deals found", "search_term", q.Term, "postal_code", q.PostalCode)
		return []models.DealRecord{}, nil
	}
	s.log.Info("found deal links", "count", len(links), "postal_code", q.PostalCode)

	records := make([]models.DealRecord, 0, len(links))
	for _, link := range links {
		if s.opts.Cache != nil {
			if rec, ok := s.opts.Cache.Get(link, q.Term, q.PostalCode); ok {
				logger.Dedup("archive hit for %s", q.PostalCode)
				records = append(records, rec)
				continue
			}
		}

		rec := s.scrapeDeal(ctx, q, link)
		if s.opts.Cache != nil {
			s.opts.Cache.Set(rec)
		}
		records = append(records, rec)

		if err := fetch.SleepRange(ctx, s.opts.LinkDelayMin, s.opts.LinkDelayMax); err != nil {
			return records, err
		}
	}
	return records, nil
}

func (s *Scraper) scrapeDeal(ctx context.Context, q models.SearchQuery, link string) models.DealRecord {
	s.log.Info("scraping deal", "url", link)

	markup, err := s.fetcher.Fetch(ctx, link)
	if err != nil {
		s.log.Error("deal fetch failed", "url", link, "err", err)
		return errorRecord(q, link, err)
	}

	rec, err := extract.Deal(markup, link)
	if err != nil {
		s.log.Error("deal extraction failed", "url", link, "err", err)
		return errorRecord(q, link, err)
	}

	rec.SearchTerm = q.Term
	rec.PostalCode = q.PostalCode
	return rec
}

// Run processes the queries in order and accumulates every record into
// one result. A failed query contributes zero records and the run moves
// on; duplicate (term, postal) pairs are executed once.
func (s *Scraper) Run(ctx context.Context, queries []models.SearchQuery) (models.ScrapeResult, []QueryStat) {
	result := models.ScrapeResult{}
	stats := make([]QueryStat, 0, len(queries))
	seen := make(map[models.SearchQuery]struct{})

	for i, q := range queries {
		if ctx.Err() != nil {
			break
		}
		if _, dup := seen[q]; dup {
			s.log.Warn("skipping duplicate query", "search_term", q.Term, "postal_code", q.PostalCode)
			continue
		}
		seen[q] = struct{}{}

		s.log.Info("processing query", "search_term", q.Term, "postal_code", q.PostalCode)

		recs, err := s.ScrapeQuery(ctx, q)
		if err != nil {
			s.log.Error("query failed", "search_term", q.Term, "postal_code", q.PostalCode, "err", err)
		}
		result = append(result, recs...)
		stats = append(stats, QueryStat{Query: q, Records: len(recs), Err: err})

		if i < len(queries)-1 {
			if err := fetch.SleepRange(ctx, s.opts.QueryDelayMin, s.opts.QueryDelayMax); err != nil {
				break
			}
		}
	}
	return result, stats
}

func errorRecord(q models.SearchQuery, link string, err error) models.DealRecord {
	return models.DealRecord{
		URL:          link,
		RetrievedAt:  time.Now().UTC(),
		PriceOptions: []models.PriceOption{},
		Highlights:   []string{},
		SearchTerm:   q.Term,
		PostalCode:   q.PostalCode,
		Error:        err.Error(),
	}
}
