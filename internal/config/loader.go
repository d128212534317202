package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file and environment.
// Priority (highest to lowest): env vars > config file > defaults.
// CLI flags are applied on top by the caller.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix("WBSCRAPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("wbscrape")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".wbscrape"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers default values in viper so env vars bind to every key.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("catalog.start_url", cfg.Catalog.StartURL)
	v.SetDefault("catalog.max_pages", cfg.Catalog.MaxPages)
	v.SetDefault("catalog.check_reachability", cfg.Catalog.CheckReachability)
	v.SetDefault("catalog.respect_robots_txt", cfg.Catalog.RespectRobotsTxt)
	v.SetDefault("catalog.max_products", cfg.Catalog.MaxProducts)

	v.SetDefault("collect.products", cfg.Collect.Products)
	v.SetDefault("collect.reviews", cfg.Collect.Reviews)
	v.SetDefault("collect.source", cfg.Collect.Source)
	v.SetDefault("collect.max_reviews", cfg.Collect.MaxReviews)
	v.SetDefault("collect.photos_only", cfg.Collect.PhotosOnly)
	v.SetDefault("collect.review_scroll_fraction", cfg.Collect.ReviewScrollFraction)
	v.SetDefault("collect.photo_scroll_fraction", cfg.Collect.PhotoScrollFraction)

	v.SetDefault("browser.headless", cfg.Browser.Headless)
	v.SetDefault("browser.stealth", cfg.Browser.Stealth)
	v.SetDefault("browser.bin_path", cfg.Browser.BinPath)
	v.SetDefault("browser.window_size", cfg.Browser.WindowSize)
	v.SetDefault("browser.navigate_timeout", cfg.Browser.NavigateTimeout)
	v.SetDefault("browser.element_timeout", cfg.Browser.ElementTimeout)
	v.SetDefault("browser.max_scroll_steps", cfg.Browser.MaxScrollSteps)
	v.SetDefault("browser.delay_profile", cfg.Browser.DelayProfile)

	v.SetDefault("http.request_timeout", cfg.HTTP.RequestTimeout)
	v.SetDefault("http.head_timeout", cfg.HTTP.HeadTimeout)
	v.SetDefault("http.max_retries", cfg.HTTP.MaxRetries)
	v.SetDefault("http.retry_delay", cfg.HTTP.RetryDelay)
	v.SetDefault("http.rate_per_second", cfg.HTTP.RatePerSecond)
	v.SetDefault("http.rate_burst", cfg.HTTP.RateBurst)
	v.SetDefault("http.user_agent", cfg.HTTP.UserAgent)
	v.SetDefault("http.max_body_size", cfg.HTTP.MaxBodySize)

	v.SetDefault("download.mode", cfg.Download.Mode)
	v.SetDefault("download.dir", cfg.Download.Dir)
	v.SetDefault("download.concurrency", cfg.Download.Concurrency)
	v.SetDefault("download.naming", cfg.Download.Naming)

	v.SetDefault("storage.output_dir", cfg.Storage.OutputDir)
	v.SetDefault("storage.products_file", cfg.Storage.ProductsFile)
	v.SetDefault("storage.reviews_file", cfg.Storage.ReviewsFile)
	v.SetDefault("storage.photo_index_file", cfg.Storage.PhotoIndexFile)
	v.SetDefault("storage.mongo.enabled", cfg.Storage.Mongo.Enabled)
	v.SetDefault("storage.mongo.uri", cfg.Storage.Mongo.URI)
	v.SetDefault("storage.mongo.database", cfg.Storage.Mongo.Database)
	v.SetDefault("storage.postgres.enabled", cfg.Storage.Postgres.Enabled)
	v.SetDefault("storage.postgres.dsn", cfg.Storage.Postgres.DSN)

	v.SetDefault("checkpoint.enabled", cfg.Checkpoint.Enabled)
	v.SetDefault("checkpoint.dir", cfg.Checkpoint.Dir)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.file", cfg.Logging.File)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}

// ProductsPath returns the full path of the product store.
func (c *Config) ProductsPath() string {
	return filepath.Join(c.Storage.OutputDir, c.Storage.ProductsFile)
}

// ReviewsPath returns the full path of the review store.
func (c *Config) ReviewsPath() string {
	return filepath.Join(c.Storage.OutputDir, c.Storage.ReviewsFile)
}

// PhotoIndexPath returns the full path of the photo index CSV.
func (c *Config) PhotoIndexPath() string {
	return filepath.Join(c.Storage.OutputDir, c.Storage.PhotoIndexFile)
}
