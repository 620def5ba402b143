package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	cu "github.com/Davincible/chromedp-undetected"
	"github.com/chromedp/chromedp"
)

type BrowserOptions struct {
	Headless        bool
	WarmupURL       string // loaded once at startup, like a human opening the homepage first
	WaitSelectors   []string
	WaitTimeout     time.Duration
	PageLoadTimeout time.Duration
	DwellMin        time.Duration
	DwellMax        time.Duration
	Policy          RetryPolicy
	Logger          *slog.Logger
}

// BrowserFetcher drives a real Chrome instance with automation markers
// suppressed. The browser process lives for the fetcher's lifetime and
// each Fetch runs in a fresh tab; Close releases the process exactly
// once no matter how often it is called.
type BrowserFetcher struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    *slog.Logger
	policy RetryPolicy

	waitSelectors   string
	waitTimeout     time.Duration
	pageLoadTimeout time.Duration
	dwellMin        time.Duration
	dwellMax        time.Duration

	closeOnce sync.Once
}

func NewBrowserFetcher(opts BrowserOptions) (*BrowserFetcher, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	cuOpts := []cu.Option{
		cu.WithChromeFlags(chromedp.WindowSize(1920, 1080)),
	}
	if opts.Headless {
		cuOpts = append(cuOpts, cu.WithHeadless())
	}

	ctx, cancel, err := cu.New(cu.NewConfig(cuOpts...))
	if err != nil {
		return nil, fmt.Errorf("start browser: %w", err)
	}

	f := &BrowserFetcher{
		ctx:             ctx,
		cancel:          cancel,
		log:             log,
		policy:          opts.Policy,
		waitSelectors:   strings.Join(opts.WaitSelectors, ", "),
		waitTimeout:     opts.WaitTimeout,
		pageLoadTimeout: opts.PageLoadTimeout,
		dwellMin:        opts.DwellMin,
		dwellMax:        opts.DwellMax,
	}
	if f.waitTimeout <= 0 {
		f.waitTimeout = 20 * time.Second
	}
	if f.pageLoadTimeout <= 0 {
		f.pageLoadTimeout = 60 * time.Second
	}

	if opts.WarmupURL != "" {
		wctx, wcancel := context.WithTimeout(ctx, f.pageLoadTimeout)
		defer wcancel()
		if err := chromedp.Run(wctx,
			chromedp.Navigate(opts.WarmupURL),
			chromedp.Sleep(5*time.Second),
		); err != nil {
			cancel()
			return nil, fmt.Errorf("warm up browser at %s: %w", opts.WarmupURL, err)
		}
		log.Info("browser warmed up", "url", opts.WarmupURL)
	}

	return f, nil
}

func (f *BrowserFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	return f.policy.Do(ctx, f.log, pageURL, func() (string, error) {
		return f.fetchOnce(ctx, pageURL)
	})
}

func (f *BrowserFetcher) fetchOnce(ctx context.Context, pageURL string) (string, error) {
	tab, cancelTab := chromedp.NewContext(f.ctx)
	defer cancelTab()

	loadCtx, cancelLoad := context.WithTimeout(tab, f.pageLoadTimeout)
	defer cancelLoad()

	if err := chromedp.Run(loadCtx, chromedp.Navigate(pageURL)); err != nil {
		return "", fmt.Errorf("navigate %s: %w", pageURL, err)
	}

	if err := sleepCtx(ctx, randBetween(f.dwellMin, f.dwellMax)); err != nil {
		return "", err
	}

	// A timeout here is not fatal: challenge pages and slow hydration
	// stall the wait, but the document often holds usable markup anyway.
	if f.waitSelectors != "" {
		waitCtx, cancelWait := context.WithTimeout(tab, f.waitTimeout)
		if err := chromedp.Run(waitCtx, chromedp.WaitReady(f.waitSelectors, chromedp.ByQuery)); err != nil {
			f.log.Warn("timed out waiting for page elements, reading document anyway",
				"url", pageURL,
				"selectors", f.waitSelectors,
			)
		}
		cancelWait()
	}

	var html string
	readCtx, cancelRead := context.WithTimeout(tab, f.pageLoadTimeout)
	defer cancelRead()
	if err := chromedp.Run(readCtx, chromedp.Evaluate(`document.documentElement.outerHTML`, &html)); err != nil {
		return "", fmt.Errorf("read document at %s: %w", pageURL, err)
	}
	return html, nil
}

func (f *BrowserFetcher) Close() error {
	f.closeOnce.Do(f.cancel)
	return nil
}
