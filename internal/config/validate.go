package config

import (
	"fmt"
	"net/url"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if err := ValidateURL(cfg.Catalog.StartURL); err != nil {
		return fmt.Errorf("catalog.start_url: %w", err)
	}
	if cfg.Catalog.MaxPages < 0 {
		return fmt.Errorf("catalog.max_pages must be >= 0, got %d", cfg.Catalog.MaxPages)
	}
	if cfg.Catalog.MaxProducts < 0 {
		return fmt.Errorf("catalog.max_products must be >= 0, got %d", cfg.Catalog.MaxProducts)
	}

	if cfg.Collect.MaxReviews < 1 {
		return fmt.Errorf("collect.max_reviews must be >= 1, got %d", cfg.Collect.MaxReviews)
	}
	if cfg.Collect.Source != "reviews" && cfg.Collect.Source != "gallery" {
		return fmt.Errorf("collect.source must be 'reviews' or 'gallery', got %q", cfg.Collect.Source)
	}
	for name, f := range map[string]float64{
		"collect.review_scroll_fraction": cfg.Collect.ReviewScrollFraction,
		"collect.photo_scroll_fraction":  cfg.Collect.PhotoScrollFraction,
	} {
		if f < 0 || f > 1 {
			return fmt.Errorf("%s must be within [0, 1], got %v", name, f)
		}
	}

	if cfg.Browser.NavigateTimeout <= 0 {
		return fmt.Errorf("browser.navigate_timeout must be > 0")
	}
	if cfg.Browser.ElementTimeout <= 0 {
		return fmt.Errorf("browser.element_timeout must be > 0")
	}
	if cfg.Browser.MaxScrollSteps < 1 {
		return fmt.Errorf("browser.max_scroll_steps must be >= 1, got %d", cfg.Browser.MaxScrollSteps)
	}
	validProfiles := map[string]bool{
		"cautious": true, "normal": true, "aggressive": true, "none": true,
	}
	if !validProfiles[cfg.Browser.DelayProfile] {
		return fmt.Errorf("browser.delay_profile must be cautious/normal/aggressive/none, got %q", cfg.Browser.DelayProfile)
	}

	if cfg.HTTP.RequestTimeout <= 0 || cfg.HTTP.HeadTimeout <= 0 {
		return fmt.Errorf("http.request_timeout and http.head_timeout must be > 0")
	}
	if cfg.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0, got %d", cfg.HTTP.MaxRetries)
	}
	if cfg.HTTP.RetryDelay < 0 {
		return fmt.Errorf("http.retry_delay must be >= 0")
	}
	if cfg.HTTP.RatePerSecond < 0 {
		return fmt.Errorf("http.rate_per_second must be >= 0")
	}
	if cfg.HTTP.RatePerSecond > 0 && cfg.HTTP.RateBurst < 1 {
		return fmt.Errorf("http.rate_burst must be >= 1 when rate limiting is on")
	}

	validModes := map[string]bool{"after": true, "inline": true, "off": true}
	if !validModes[cfg.Download.Mode] {
		return fmt.Errorf("download.mode must be after/inline/off, got %q", cfg.Download.Mode)
	}
	if cfg.Download.Concurrency < 1 || cfg.Download.Concurrency > 256 {
		return fmt.Errorf("download.concurrency must be 1-256, got %d", cfg.Download.Concurrency)
	}
	if cfg.Download.Naming != "product" && cfg.Download.Naming != "review" {
		return fmt.Errorf("download.naming must be 'product' or 'review', got %q", cfg.Download.Naming)
	}
	if cfg.Download.Dir == "" {
		return fmt.Errorf("download.dir must not be empty")
	}

	if cfg.Storage.OutputDir == "" || cfg.Storage.ProductsFile == "" || cfg.Storage.ReviewsFile == "" {
		return fmt.Errorf("storage.output_dir, storage.products_file and storage.reviews_file are required")
	}
	if cfg.Storage.Mongo.Enabled && cfg.Storage.Mongo.URI == "" {
		return fmt.Errorf("storage.mongo.uri is required when mongo is enabled")
	}
	if cfg.Storage.Postgres.Enabled && cfg.Storage.Postgres.DSN == "" {
		return fmt.Errorf("storage.postgres.dsn is required when postgres is enabled")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	return nil
}

// ValidateURL checks if a URL string is usable as a catalog start page.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
