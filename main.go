package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"groupon-scraper/pkg/cache"
	"groupon-scraper/pkg/config"
	"groupon-scraper/pkg/fetch"
	"groupon-scraper/pkg/logger"
	"groupon-scraper/pkg/models"
	"groupon-scraper/pkg/scrape"
	"groupon-scraper/pkg/storage"
)

var (
	cfgPath      string
	flagTerm     string
	flagPostals  string
	flagOut      string
	flagStrategy string
)

var rootCmd = &cobra.Command{
	Use:   "groupon-scraper",
	Short: "Scrapes Groupon deal listings for search terms across postal codes",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Scrape every postal code once and write the JSON artifact",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runScrape(cmd.Context()); err != nil {
			slog.Error("run failed", "err", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config file")
	runCmd.Flags().StringVar(&flagTerm, "term", "", "search term (overrides config)")
	runCmd.Flags().StringVar(&flagPostals, "postals", "", "postal codes file (overrides config)")
	runCmd.Flags().StringVar(&flagOut, "out", "", "output file (overrides config)")
	runCmd.Flags().StringVar(&flagStrategy, "strategy", "", "fetch strategy: http or browser (overrides config)")
	rootCmd.AddCommand(runCmd, serveCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if flagTerm != "" {
		cfg.Scrape.SearchTerm = flagTerm
	}
	if flagPostals != "" {
		cfg.Scrape.PostalsFile = flagPostals
	}
	if flagOut != "" {
		cfg.Scrape.OutputFile = flagOut
	}
	if flagStrategy != "" {
		cfg.Scrape.Strategy = flagStrategy
	}

	log, err := logger.New(logger.Options{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		AddSource: cfg.Log.AddSource,
		File:      cfg.Log.File,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	slog.SetDefault(log)
	return cfg, log, nil
}

func newFetcher(cfg *config.Config, log *slog.Logger) (fetch.Fetcher, error) {
	policy := fetch.RetryPolicy{
		Attempts:  cfg.HTTP.Attempts,
		BaseDelay: time.Duration(cfg.HTTP.BackoffBaseSeconds) * time.Second,
		MaxDelay:  time.Duration(cfg.HTTP.BackoffMaxSeconds) * time.Second,
	}

	if cfg.Scrape.Strategy == "browser" {
		return fetch.NewBrowserFetcher(fetch.BrowserOptions{
			Headless:        cfg.Browser.Headless,
			WarmupURL:       cfg.Scrape.BaseURL,
			WaitSelectors:   cfg.Browser.WaitSelectors,
			WaitTimeout:     time.Duration(cfg.Browser.WaitTimeoutSeconds) * time.Second,
			PageLoadTimeout: time.Duration(cfg.Browser.PageLoadTimeoutSeconds) * time.Second,
			DwellMin:        time.Duration(cfg.Browser.DwellMinSeconds) * time.Second,
			DwellMax:        time.Duration(cfg.Browser.DwellMaxSeconds) * time.Second,
			Policy:          policy,
			Logger:          log,
		})
	}

	return fetch.NewHTTPFetcher(fetch.HTTPOptions{
		Timeout: time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second,
		Policy:  policy,
		Logger:  log,
	}), nil
}

func scrapeOptions(cfg *config.Config, archive *cache.Cache, log *slog.Logger) scrape.Options {
	return scrape.Options{
		BaseURL:       cfg.Scrape.BaseURL,
		LinkDelayMin:  time.Duration(cfg.Scrape.LinkDelayMinSeconds) * time.Second,
		LinkDelayMax:  time.Duration(cfg.Scrape.LinkDelayMaxSeconds) * time.Second,
		QueryDelayMin: time.Duration(cfg.Scrape.QueryDelayMinSeconds) * time.Second,
		QueryDelayMax: time.Duration(cfg.Scrape.QueryDelayMaxSeconds) * time.Second,
		Cache:         archive,
		Logger:        log,
	}
}

func runScrape(ctx context.Context) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	codes, err := config.LoadPostalCodes(cfg.Scrape.PostalsFile)
	if err != nil {
		return fmt.Errorf("read postal codes from %s: %w", cfg.Scrape.PostalsFile, err)
	}
	if len(codes) == 0 {
		return fmt.Errorf("no postal codes found in %s", cfg.Scrape.PostalsFile)
	}

	queries := make([]models.SearchQuery, 0, len(codes))
	for _, code := range codes {
		queries = append(queries, models.SearchQuery{Term: cfg.Scrape.SearchTerm, PostalCode: code})
	}
	log.Info("starting scrape",
		"search_term", cfg.Scrape.SearchTerm,
		"postal_codes", len(codes),
		"strategy", cfg.Scrape.Strategy,
	)

	fetcher, err := newFetcher(cfg, log)
	if err != nil {
		return fmt.Errorf("init %s fetcher: %w", cfg.Scrape.Strategy, err)
	}
	defer fetcher.Close()

	var archive *cache.Cache
	if cfg.Cache.Enabled {
		archive, err = cache.New(cfg.Cache.Path, time.Duration(cfg.Cache.TTLMinutes)*time.Minute)
		if err != nil {
			return fmt.Errorf("init archive: %w", err)
		}
		defer archive.Close()
		log.Info("archive enabled", "path", cfg.Cache.Path, "ttl_minutes", cfg.Cache.TTLMinutes)
	}

	scraper := scrape.New(fetcher, scrapeOptions(cfg, archive, log))
	result, stats := scraper.Run(ctx, queries)

	if err := storage.New(cfg.Scrape.OutputFile, log).Save(ctx, result); err != nil {
		return fmt.Errorf("save results: %w", err)
	}

	log.Info("scrape finished", "deals", len(result), "output", cfg.Scrape.OutputFile)
	printSummary(stats, len(result), cfg.Scrape.OutputFile)
	return nil
}

func printSummary(stats []scrape.QueryStat, total int, outputPath string) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Search Term", "Postal Code", "Deals", "Status"})
	for i, st := range stats {
		status := "ok"
		if st.Err != nil {
			status = st.Err.Error()
		}
		t.AppendRow(table.Row{i + 1, st.Query.Term, st.Query.PostalCode, st.Records, status})
	}
	t.AppendFooter(table.Row{"", "", "Total", total, outputPath})
	t.Render()
}
