package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	browser "github.com/EDDYCJY/fake-useragent"
	"github.com/gocolly/colly/v2"

	"groupon-scraper/pkg/logger"
)

var referers = []string{
	"https://www.google.com/",
	"https://www.bing.com/",
	"https://www.facebook.com/",
	"https://t.co/",
	"https://www.instagram.com/",
}

// Markers that show up on interstitial challenge pages. Detection is
// informational only; the body is still handed to the extractor, which
// will simply find no deals in it.
var challengeMarkers = []string{
	"just a moment",
	"checking your browser",
	"cf-challenge",
	"captcha",
}

type HTTPOptions struct {
	Timeout time.Duration
	Policy  RetryPolicy
	Logger  *slog.Logger
}

// HTTPFetcher fetches pages with a plain HTTP client disguised as a
// browser: rotating user agents, plausible navigation headers, a
// TLS fingerprint bypass for challenge walls, and cache-busting query
// parameters so intermediaries cannot serve a stale copy.
type HTTPFetcher struct {
	c      *colly.Collector
	policy RetryPolicy
	log    *slog.Logger

	// One Visit in flight at a time; the collector callbacks below
	// write into these.
	mu         sync.Mutex
	body       string
	statusCode int
}

func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)
	c.WithTransport(cloudflarebp.AddCloudFlareByPass(http.DefaultTransport))
	if opts.Timeout > 0 {
		c.SetRequestTimeout(opts.Timeout)
	}

	f := &HTTPFetcher{
		c:      c,
		policy: opts.Policy,
		log:    log,
	}

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", browser.Random())
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.5")
		r.Headers.Set("DNT", "1")
		r.Headers.Set("Upgrade-Insecure-Requests", "1")
		r.Headers.Set("Sec-Fetch-Dest", "document")
		r.Headers.Set("Sec-Fetch-Mode", "navigate")
		r.Headers.Set("Sec-Fetch-Site", "none")
		r.Headers.Set("Sec-Fetch-User", "?1")
		r.Headers.Set("Cache-Control", "max-age=0")
		r.Headers.Set("Referer", referers[rand.Intn(len(referers))])
	})
	c.OnResponse(func(r *colly.Response) {
		f.body = string(r.Body)
		f.statusCode = r.StatusCode
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			f.statusCode = r.StatusCode
		}
	})

	return f
}

// Fetch returns the markup at pageURL. The wire request carries extra
// cache-busting parameters, but pageURL itself is what callers should
// record; it is the stable identity of the page.
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.policy.Do(ctx, f.log, pageURL, func() (string, error) {
		f.body = ""
		f.statusCode = 0

		if err := f.c.Visit(cacheBust(pageURL)); err != nil {
			if f.statusCode != 0 {
				return "", &StatusError{Code: f.statusCode, URL: pageURL}
			}
			return "", fmt.Errorf("fetch %s: %w", pageURL, err)
		}

		if looksLikeChallenge(f.body) {
			logger.Dedup("challenge page markers in response from %s", pageURL)
		}
		return f.body, nil
	})
}

func (f *HTTPFetcher) Close() error {
	return nil
}

func cacheBust(pageURL string) string {
	sep := "?"
	if strings.Contains(pageURL, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_=%d&nc=%d", pageURL, sep, time.Now().UnixMilli(), 1000000+rand.Intn(9000000))
}

func looksLikeChallenge(body string) bool {
	lower := strings.ToLower(body)
	for _, m := range challengeMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
