package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds the full pipeline configuration.
type Config struct {
	Site    SiteConfig    `yaml:"site"`
	Crawl   CrawlConfig   `yaml:"crawl"`
	Refresh RefreshConfig `yaml:"refresh"`
	Data    DataConfig    `yaml:"data"`
	Fetch   FetchConfig   `yaml:"fetch"`
}

// SiteConfig identifies the shop being crawled.
type SiteConfig struct {
	BaseURL    string `yaml:"base_url" env:"MBPARTS_BASE_URL"`
	SearchURL  string `yaml:"search_url" env:"MBPARTS_SEARCH_URL"`
	QueryParam string `yaml:"query_param" env:"MBPARTS_QUERY_PARAM"`
	PageParam  string `yaml:"page_param" env:"MBPARTS_PAGE_PARAM"`
}

// CrawlConfig bounds the discovery crawler.
type CrawlConfig struct {
	Prefixes      []string `yaml:"prefixes" env:"MBPARTS_PREFIXES" envSeparator:","`
	Limit         int      `yaml:"limit" env:"MBPARTS_LIMIT"`
	MaxPages      int      `yaml:"max_pages"`
	MaxSitemaps   int      `yaml:"max_sitemaps"`
	EnrichDetails bool     `yaml:"enrich_details"`
}

// RefreshConfig bounds the enrichment refresher.
type RefreshConfig struct {
	BatchSize     int `yaml:"batch_size" env:"MBPARTS_REFRESH_BATCH"`
	StalenessDays int `yaml:"staleness_days"`
	Workers       int `yaml:"workers"`
}

// DataConfig places the pipeline's on-disk artifacts.
type DataConfig struct {
	// Dir holds base.json, prices.json, cursor.json, parts.ndjson,
	// runs.db, and the chunks/ directory.
	Dir        string `yaml:"dir" env:"MBPARTS_DATA_DIR"`
	VehicleKey string `yaml:"vehicle_key" env:"MBPARTS_VEHICLE_KEY"`
	ChunkSize  int    `yaml:"chunk_size"`
}

// FetchConfig tunes HTTP behaviour.
type FetchConfig struct {
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxBytes       int64  `yaml:"max_bytes"`
	UserAgent      string `yaml:"user_agent" env:"MBPARTS_USER_AGENT"`
}

// Timeout returns the fetch timeout as a duration.
func (f FetchConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

// DefaultConfig returns sane defaults. Site URLs and prefixes have no
// useful defaults and must come from the config file or environment.
func DefaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			QueryParam: "q",
			PageParam:  "page",
		},
		Crawl: CrawlConfig{
			Limit:       500,
			MaxPages:    20,
			MaxSitemaps: 50,
		},
		Refresh: RefreshConfig{
			BatchSize:     20,
			StalenessDays: 7,
			Workers:       6,
		},
		Data: DataConfig{
			Dir:        "data",
			VehicleKey: "default",
			ChunkSize:  200,
		},
		Fetch: FetchConfig{
			TimeoutSeconds: 30,
			MaxBytes:       10 * 1024 * 1024,
			UserAgent:      "mb-parts-catalog/1.0",
		},
	}
}

// LoadConfig merges DefaultConfig with a YAML file (optional, pass ""
// to skip) and MBPARTS_* environment overrides, then validates.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that required fields are present and values sane.
func (c *Config) Validate() error {
	if c.Site.SearchURL == "" {
		return fmt.Errorf("site.search_url is required")
	}
	if c.Site.BaseURL == "" {
		return fmt.Errorf("site.base_url is required")
	}
	if len(c.Crawl.Prefixes) == 0 {
		return fmt.Errorf("crawl.prefixes must name at least one prefix")
	}
	if c.Crawl.Limit <= 0 {
		return fmt.Errorf("crawl.limit must be > 0")
	}
	if c.Refresh.BatchSize <= 0 {
		return fmt.Errorf("refresh.batch_size must be > 0")
	}
	if c.Data.Dir == "" {
		return fmt.Errorf("data.dir is required")
	}
	if c.Data.ChunkSize <= 0 {
		return fmt.Errorf("data.chunk_size must be > 0")
	}
	return nil
}

// Artifact paths inside the data directory.

func (c *Config) BasePath() string   { return filepath.Join(c.Data.Dir, "base.json") }
func (c *Config) PricePath() string  { return filepath.Join(c.Data.Dir, "prices.json") }
func (c *Config) CursorPath() string { return filepath.Join(c.Data.Dir, "cursor.json") }
func (c *Config) StreamPath() string { return filepath.Join(c.Data.Dir, "parts.ndjson") }
func (c *Config) RunsDBPath() string { return filepath.Join(c.Data.Dir, "runs.db") }
func (c *Config) ChunksDir() string  { return filepath.Join(c.Data.Dir, "chunks") }
