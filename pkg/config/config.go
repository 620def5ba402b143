package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log struct {
		Level     string `yaml:"level"`
		Format    string `yaml:"format"`
		AddSource bool   `yaml:"add_source"`
		File      string `yaml:"file"`
	} `yaml:"log"`

	Scrape struct {
		BaseURL              string `yaml:"base_url"`
		SearchTerm           string `yaml:"search_term"`
		PostalsFile          string `yaml:"postals_file"`
		OutputFile           string `yaml:"output_file"`
		Strategy             string `yaml:"strategy"` // http|browser
		LinkDelayMinSeconds  int    `yaml:"link_delay_min_seconds"`
		LinkDelayMaxSeconds  int    `yaml:"link_delay_max_seconds"`
		QueryDelayMinSeconds int    `yaml:"query_delay_min_seconds"`
		QueryDelayMaxSeconds int    `yaml:"query_delay_max_seconds"`
	} `yaml:"scrape"`

	HTTP struct {
		TimeoutSeconds     int `yaml:"timeout_seconds"`
		Attempts           int `yaml:"attempts"`
		BackoffBaseSeconds int `yaml:"backoff_base_seconds"`
		BackoffMaxSeconds  int `yaml:"backoff_max_seconds"`
	} `yaml:"http"`

	Browser struct {
		Headless               bool     `yaml:"headless"`
		WaitTimeoutSeconds     int      `yaml:"wait_timeout_seconds"`
		PageLoadTimeoutSeconds int      `yaml:"page_load_timeout_seconds"`
		WaitSelectors          []string `yaml:"wait_selectors"`
		DwellMinSeconds        int      `yaml:"dwell_min_seconds"`
		DwellMaxSeconds        int      `yaml:"dwell_max_seconds"`
	} `yaml:"browser"`

	Cache struct {
		Enabled    bool   `yaml:"enabled"`
		Path       string `yaml:"path"`
		TTLMinutes int    `yaml:"ttl_minutes"`
	} `yaml:"cache"`

	Server struct {
		Host       string `yaml:"host"`
		Port       int    `yaml:"port"`
		MaxScrapes int    `yaml:"max_scrapes"`
	} `yaml:"server"`
}

// Load reads a YAML config file. An empty path yields the built-in
// defaults, so the binary runs without any config at all.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	applyDefaults(&c)

	switch c.Scrape.Strategy {
	case "http", "browser":
	default:
		return nil, fmt.Errorf("unknown scrape strategy %q (expected http|browser)", c.Scrape.Strategy)
	}
	return &c, nil
}

func applyDefaults(c *Config) {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Log.File == "" {
		c.Log.File = "logs/scraper.log"
	}

	if c.Scrape.BaseURL == "" {
		c.Scrape.BaseURL = "https://www.groupon.com"
	}
	c.Scrape.BaseURL = strings.TrimRight(c.Scrape.BaseURL, "/")
	if c.Scrape.SearchTerm == "" {
		c.Scrape.SearchTerm = "Hydrafacial"
	}
	if c.Scrape.PostalsFile == "" {
		c.Scrape.PostalsFile = "zipcodes.txt"
	}
	if c.Scrape.OutputFile == "" {
		c.Scrape.OutputFile = "output/deals.json"
	}
	c.Scrape.Strategy = strings.ToLower(strings.TrimSpace(c.Scrape.Strategy))
	if c.Scrape.Strategy == "" {
		c.Scrape.Strategy = "http"
	}
	if c.Scrape.LinkDelayMinSeconds <= 0 {
		c.Scrape.LinkDelayMinSeconds = 3
	}
	if c.Scrape.LinkDelayMaxSeconds <= 0 {
		c.Scrape.LinkDelayMaxSeconds = 9
	}
	if c.Scrape.QueryDelayMinSeconds <= 0 {
		c.Scrape.QueryDelayMinSeconds = 10
	}
	if c.Scrape.QueryDelayMaxSeconds <= 0 {
		c.Scrape.QueryDelayMaxSeconds = 15
	}

	if c.HTTP.TimeoutSeconds <= 0 {
		c.HTTP.TimeoutSeconds = 30
	}
	if c.HTTP.Attempts <= 0 {
		c.HTTP.Attempts = 3
	}
	if c.HTTP.BackoffBaseSeconds <= 0 {
		c.HTTP.BackoffBaseSeconds = 4
	}
	if c.HTTP.BackoffMaxSeconds <= 0 {
		c.HTTP.BackoffMaxSeconds = 10
	}

	if c.Browser.WaitTimeoutSeconds <= 0 {
		c.Browser.WaitTimeoutSeconds = 20
	}
	if c.Browser.PageLoadTimeoutSeconds <= 0 {
		c.Browser.PageLoadTimeoutSeconds = 60
	}
	if len(c.Browser.WaitSelectors) == 0 {
		c.Browser.WaitSelectors = []string{
			"figure.card-ui",
			"div.deal-card",
			"h1",
			"h2.deal-title",
		}
	}
	if c.Browser.DwellMinSeconds <= 0 {
		c.Browser.DwellMinSeconds = 2
	}
	if c.Browser.DwellMaxSeconds <= 0 {
		c.Browser.DwellMaxSeconds = 5
	}

	if c.Cache.Path == "" {
		c.Cache.Path = "./cache.db"
	}
	if c.Cache.TTLMinutes <= 0 {
		c.Cache.TTLMinutes = 1440
	}

	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.MaxScrapes <= 0 {
		c.Server.MaxScrapes = 3
	}
}

// LoadPostalCodes reads one postal code per line, skipping blank lines
// and surrounding whitespace.
func LoadPostalCodes(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var codes []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		codes = append(codes, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return codes, nil
}
