package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// DefaultStartURL is the diapers catalog the scraper was built for.
const DefaultStartURL = "https://www.wildberries.ru/catalog/detyam/tovary-dlya-malysha/podguzniki/podguzniki-detskie"

// Config is the root configuration for wbscrape.
type Config struct {
	Catalog    CatalogConfig    `mapstructure:"catalog"    yaml:"catalog"`
	Collect    CollectConfig    `mapstructure:"collect"    yaml:"collect"`
	Browser    BrowserConfig    `mapstructure:"browser"    yaml:"browser"`
	HTTP       HTTPConfig       `mapstructure:"http"       yaml:"http"`
	Download   DownloadConfig   `mapstructure:"download"   yaml:"download"`
	Storage    StorageConfig    `mapstructure:"storage"    yaml:"storage"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint" yaml:"checkpoint"`
	Logging    LoggingConfig    `mapstructure:"logging"    yaml:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"    yaml:"metrics"`
}

// CatalogConfig controls catalog traversal.
type CatalogConfig struct {
	StartURL          string `mapstructure:"start_url"          yaml:"start_url"`
	MaxPages          int    `mapstructure:"max_pages"          yaml:"max_pages"`
	CheckReachability bool   `mapstructure:"check_reachability" yaml:"check_reachability"`
	RespectRobotsTxt  bool   `mapstructure:"respect_robots_txt" yaml:"respect_robots_txt"`
	MaxProducts       int    `mapstructure:"max_products"       yaml:"max_products"`
}

// CollectConfig controls what is extracted from each product.
type CollectConfig struct {
	Products             bool    `mapstructure:"products"               yaml:"products"`
	Reviews              bool    `mapstructure:"reviews"                yaml:"reviews"`
	Source               string  `mapstructure:"source"                 yaml:"source"` // reviews, gallery
	MaxReviews           int     `mapstructure:"max_reviews"            yaml:"max_reviews"`
	PhotosOnly           bool    `mapstructure:"photos_only"            yaml:"photos_only"`
	ReviewScrollFraction float64 `mapstructure:"review_scroll_fraction" yaml:"review_scroll_fraction"`
	PhotoScrollFraction  float64 `mapstructure:"photo_scroll_fraction"  yaml:"photo_scroll_fraction"`
}

// BrowserConfig controls the headless browser.
type BrowserConfig struct {
	Headless        bool          `mapstructure:"headless"         yaml:"headless"`
	Stealth         bool          `mapstructure:"stealth"          yaml:"stealth"`
	BinPath         string        `mapstructure:"bin_path"         yaml:"bin_path"`
	WindowSize      string        `mapstructure:"window_size"      yaml:"window_size"`
	NavigateTimeout time.Duration `mapstructure:"navigate_timeout" yaml:"navigate_timeout"`
	ElementTimeout  time.Duration `mapstructure:"element_timeout"  yaml:"element_timeout"`
	MaxScrollSteps  int           `mapstructure:"max_scroll_steps" yaml:"max_scroll_steps"`
	DelayProfile    string        `mapstructure:"delay_profile"    yaml:"delay_profile"`
}

// HTTPConfig controls the HTTP client used for reachability checks and downloads.
type HTTPConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	HeadTimeout    time.Duration `mapstructure:"head_timeout"    yaml:"head_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"     yaml:"max_retries"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"     yaml:"retry_delay"`
	RatePerSecond  float64       `mapstructure:"rate_per_second" yaml:"rate_per_second"`
	RateBurst      int           `mapstructure:"rate_burst"      yaml:"rate_burst"`
	UserAgent      string        `mapstructure:"user_agent"      yaml:"user_agent"`
	MaxBodySize    int64         `mapstructure:"max_body_size"   yaml:"max_body_size"`
}

// DownloadConfig controls photo downloads.
type DownloadConfig struct {
	Mode        string `mapstructure:"mode"        yaml:"mode"` // after, inline, off
	Dir         string `mapstructure:"dir"         yaml:"dir"`
	Concurrency int    `mapstructure:"concurrency" yaml:"concurrency"`
	Naming      string `mapstructure:"naming"      yaml:"naming"` // product, review
}

// StorageConfig controls record persistence.
type StorageConfig struct {
	OutputDir      string         `mapstructure:"output_dir"       yaml:"output_dir"`
	ProductsFile   string         `mapstructure:"products_file"    yaml:"products_file"`
	ReviewsFile    string         `mapstructure:"reviews_file"     yaml:"reviews_file"`
	PhotoIndexFile string         `mapstructure:"photo_index_file" yaml:"photo_index_file"`
	Mongo          MongoConfig    `mapstructure:"mongo"            yaml:"mongo"`
	Postgres       PostgresConfig `mapstructure:"postgres"         yaml:"postgres"`
}

// MongoConfig controls the optional MongoDB sink.
type MongoConfig struct {
	Enabled  bool   `mapstructure:"enabled"  yaml:"enabled"`
	URI      string `mapstructure:"uri"      yaml:"uri"`
	Database string `mapstructure:"database" yaml:"database"`
}

// PostgresConfig controls the optional PostgreSQL sink.
type PostgresConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	DSN     string `mapstructure:"dsn"     yaml:"dsn"`
}

// CheckpointConfig controls resumable runs.
type CheckpointConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir     string `mapstructure:"dir"     yaml:"dir"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file"   yaml:"file"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Catalog: CatalogConfig{
			StartURL:          DefaultStartURL,
			CheckReachability: true,
		},
		Collect: CollectConfig{
			Products:             true,
			Reviews:              true,
			Source:               "reviews",
			MaxReviews:           100,
			PhotosOnly:           true,
			ReviewScrollFraction: 0.2,
			PhotoScrollFraction:  0.1,
		},
		Browser: BrowserConfig{
			Headless:        true,
			Stealth:         false,
			WindowSize:      "1920,1080",
			NavigateTimeout: 30 * time.Second,
			ElementTimeout:  10 * time.Second,
			MaxScrollSteps:  50,
			DelayProfile:    "normal",
		},
		HTTP: HTTPConfig{
			RequestTimeout: 60 * time.Second,
			HeadTimeout:    5 * time.Second,
			MaxRetries:     3,
			RetryDelay:     500 * time.Millisecond,
			RatePerSecond:  10,
			RateBurst:      5,
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			MaxBodySize:    20 * 1024 * 1024, // 20MB
		},
		Download: DownloadConfig{
			Mode:        "after",
			Dir:         "./output/photos",
			Concurrency: 8,
			Naming:      "product",
		},
		Storage: StorageConfig{
			OutputDir:      "./output",
			ProductsFile:   "products.jsonl",
			ReviewsFile:    "reviews.jsonl",
			PhotoIndexFile: "photo_index.csv",
			Mongo: MongoConfig{
				URI:      "mongodb://localhost:27017",
				Database: "wbscrape",
			},
		},
		Checkpoint: CheckpointConfig{
			Enabled: true,
			Dir:     ".wbscrape_checkpoints",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "logs/wbscrape.log",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}
