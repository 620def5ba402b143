package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	scalargo "github.com/bdpiprava/scalar-go"
	"github.com/spf13/cobra"

	"groupon-scraper/pkg/api"
	"groupon-scraper/pkg/cache"
	"groupon-scraper/pkg/models"
	"groupon-scraper/pkg/scrape"
)

var flagAddr string

var (
	// Caps concurrent scrapes so a burst of requests does not turn the
	// service into its own DDoS against the upstream site.
	scrapeSemaphore chan struct{}

	// scrapeQuery runs one query pass. Wired up in runServe; tests
	// substitute a stub.
	scrapeQuery func(ctx context.Context, q models.SearchQuery) ([]models.DealRecord, error)
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve deal searches over HTTP, with an archive of past results",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runServe(cmd.Context()); err != nil {
			slog.Error("serve failed", "err", err)
			os.Exit(1)
		}
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "listen address (overrides config host/port)")
}

func runServe(ctx context.Context) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	// Serve mode always archives: on-demand requests for the same query
	// should not re-scrape within the TTL.
	archive, err := cache.New(cfg.Cache.Path, time.Duration(cfg.Cache.TTLMinutes)*time.Minute)
	if err != nil {
		return fmt.Errorf("init archive: %w", err)
	}
	defer archive.Close()
	log.Info("archive initialized", "path", cfg.Cache.Path, "ttl_minutes", cfg.Cache.TTLMinutes)

	scrapeSemaphore = make(chan struct{}, cfg.Server.MaxScrapes)
	scrapeQuery = func(ctx context.Context, q models.SearchQuery) ([]models.DealRecord, error) {
		fetcher, err := newFetcher(cfg, log)
		if err != nil {
			return nil, fmt.Errorf("init %s fetcher: %w", cfg.Scrape.Strategy, err)
		}
		defer fetcher.Close()

		return scrape.New(fetcher, scrapeOptions(cfg, archive, log)).ScrapeQuery(ctx, q)
	}

	addr := flagAddr
	if addr == "" {
		addr = fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", rootHandler)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info("listening", "addr", addr)
	log.Info("API docs served at /", "addr", addr)
	return server.ListenAndServe()
}

func rootHandler(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/search/") {
		searchHandler(w, r)
		return
	}

	// Scalar docs on the root path.
	html, err := scalargo.NewV2(
		scalargo.WithSpecDir("./"),
		scalargo.WithMetaDataOpts(
			scalargo.WithTitle("Groupon Deal Scraper API"),
		),
	)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, html)
}

func searchHandler(w http.ResponseWriter, r *http.Request) {
	// Path expected: /search/{postal_code}/{term} or /search/batch
	parts := strings.Split(r.URL.Path, "/")
	// parts[0] = ""
	// parts[1] = "search"
	// parts[2] = {postal_code} or "batch"
	// parts[3] = {term}

	if len(parts) >= 3 && parts[2] == "batch" {
		if r.Method != http.MethodPost {
			api.WriteBadRequest(w, "Method not allowed for batch endpoint. Use POST.", r.URL.Path)
			return
		}
		handleBatchSearch(w, r)
		return
	}

	if len(parts) < 4 || parts[2] == "" || parts[3] == "" {
		api.WriteBadRequest(w, "Invalid path. Expected /search/{postal_code}/{term}", r.URL.Path)
		return
	}

	if r.Method != http.MethodGet {
		api.WriteBadRequest(w, "Method not allowed. Use GET for single search.", r.URL.Path)
		return
	}

	q := models.SearchQuery{PostalCode: parts[2], Term: parts[3]}

	scrapeSemaphore <- struct{}{}
	defer func() { <-scrapeSemaphore }()

	records, err := scrapeQuery(r.Context(), q)
	if err != nil {
		slog.Error("search failed", "postal_code", q.PostalCode, "search_term", q.Term, "err", err)

		if strings.Contains(err.Error(), "context deadline exceeded") || strings.Contains(err.Error(), "timeout") {
			api.WriteError(w, http.StatusGatewayTimeout, "Gateway Timeout", "Upstream site timed out: "+err.Error(), r.URL.Path)
			return
		}
		api.WriteBadGateway(w, "Upstream fetch failed: "+err.Error(), r.URL.Path)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(records); err != nil {
		slog.Error("failed to encode response", "err", err)
		api.WriteInternalServerError(w, fmt.Errorf("failed to encode response"), r.URL.Path)
	}
}

// handleBatchSearch annotates each submitted query object with its deals
// or its error; one bad query never fails the whole batch.
func handleBatchSearch(w http.ResponseWriter, r *http.Request) {
	var batch []map[string]any
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		api.WriteBadRequest(w, "Invalid JSON body. Expected array of objects.", r.URL.Path)
		return
	}
	defer r.Body.Close()

	for i, item := range batch {
		// A JSON null in the array decodes to a nil map; writing into
		// it would panic.
		if item == nil {
			item = map[string]any{}
			batch[i] = item
		}

		postal, _ := item["postal_code"].(string)
		term, _ := item["search_term"].(string)
		if postal == "" || term == "" {
			item["error"] = "missing postal_code or search_term"
			continue
		}

		records, err := func() ([]models.DealRecord, error) {
			scrapeSemaphore <- struct{}{}
			defer func() { <-scrapeSemaphore }()
			return scrapeQuery(r.Context(), models.SearchQuery{PostalCode: postal, Term: term})
		}()
		if err != nil {
			slog.Error("batch search failed", "postal_code", postal, "search_term", term, "err", err)
			item["error"] = err.Error()
			continue
		}
		item["deals"] = records
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(batch); err != nil {
		slog.Error("failed to encode batch response", "err", err)
		api.WriteInternalServerError(w, fmt.Errorf("failed to encode response"), r.URL.Path)
	}
}
