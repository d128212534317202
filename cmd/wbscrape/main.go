package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/IshaanNene/wbscrape/internal/config"
	"github.com/IshaanNene/wbscrape/internal/engine"
	"github.com/IshaanNene/wbscrape/internal/fetcher"
	"github.com/IshaanNene/wbscrape/internal/logging"
	"github.com/IshaanNene/wbscrape/internal/media"
	"github.com/IshaanNene/wbscrape/internal/observability"
	"github.com/IshaanNene/wbscrape/internal/render"
	"github.com/IshaanNene/wbscrape/internal/storage"
)

var (
	cfgFile      string
	verbose      bool
	outputDir    string
	photoDir     string
	maxPages     int
	maxProducts  int
	maxReviews   int
	allReviews   bool
	source       string
	downloadMode string
	naming       string
	concurrent   int
	headless     bool
	resume       bool
)

func main() {
	// a missing .env file is fine
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "wbscrape",
		Short: "wbscrape: Wildberries catalog, review and photo collector",
		Long: `wbscrape walks a Wildberries catalog with a headless browser, extracts product
attributes and customer reviews, and downloads review photos for image datasets.

Outputs:
  products.jsonl    one product record per line
  reviews.jsonl     one review record per line
  photo_index.csv   ';'-separated index of downloaded photos
  photos/           product_{i}_{j}.jpg or review_{r}_{j}.jpg`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(downloadCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runCmd creates the "run" subcommand.
func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [start-url]",
		Short: "Scrape a catalog",
		Long:  "Walk the catalog at start-url (or catalog.start_url), extract products and reviews, and download photos.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runScrape,
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory for record stores")
	cmd.Flags().StringVar(&photoDir, "photos", "", "photo download directory")
	cmd.Flags().IntVar(&maxPages, "max-pages", -1, "maximum catalog pages (0 = unlimited)")
	cmd.Flags().IntVar(&maxProducts, "max-products", -1, "maximum products (0 = unlimited)")
	cmd.Flags().IntVar(&maxReviews, "max-reviews", 0, "maximum reviews per product")
	cmd.Flags().BoolVar(&allReviews, "all-reviews", false, "keep reviews without photos")
	cmd.Flags().StringVar(&source, "source", "", "photo source: reviews, gallery")
	cmd.Flags().StringVar(&downloadMode, "download", "", "download mode: after, inline, off")
	cmd.Flags().StringVar(&naming, "naming", "", "photo file naming: product, review")
	cmd.Flags().IntVarP(&concurrent, "concurrency", "n", 0, "concurrent photo downloads per product")
	cmd.Flags().BoolVar(&headless, "headless", true, "run the browser headless")
	cmd.Flags().BoolVar(&resume, "resume", false, "resume from the last checkpoint")

	return cmd
}

// runScrape executes the run command.
func runScrape(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	startURL := cfg.Catalog.StartURL
	if len(args) > 0 {
		startURL = args[0]
	}
	if err := config.ValidateURL(startURL); err != nil {
		return fmt.Errorf("invalid start URL %q: %w", startURL, err)
	}

	logger, closeLog, err := logging.New(cfg.Logging, verbose)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	run := engine.NewRunContext(cfg, logger)
	if cfg.Metrics.Enabled {
		run.Metrics.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path)
	}

	policy := retryPolicy(cfg, run.Metrics)
	client, err := fetcher.NewHTTPClient(cfg.HTTP, policy, run.Logger, fetcher.WithMetrics(run.Metrics))
	if err != nil {
		return fmt.Errorf("create http client: %w", err)
	}
	defer client.Close()

	sink, err := openSinks(ctx, cfg, run.Logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Error("sink close failed", "error", err)
		}
	}()

	index, err := storage.NewPhotoIndex(cfg.PhotoIndexPath(), run.Logger)
	if err != nil {
		return fmt.Errorf("open photo index: %w", err)
	}
	defer index.Close()

	renderer, err := render.NewRodRenderer(cfg.Browser, policy, run.Logger)
	if err != nil {
		return fmt.Errorf("start browser: %w", err)
	}

	orch, err := engine.New(run, engine.Deps{
		Renderer:   renderer,
		Client:     client,
		Sink:       sink,
		PhotoIndex: index,
		Robots:     fetcher.NewRobotsChecker(client, cfg.HTTP.UserAgent, run.Logger),
	})
	if err != nil {
		renderer.Close()
		return err
	}

	summary, err := orch.Run(ctx, startURL, resume)
	if summary != nil {
		printSummary(cfg, summary)
	}
	if errors.Is(err, context.Canceled) {
		logger.Info("interrupted; rerun with --resume to continue")
		return nil
	}
	return err
}

// downloadCmd creates the "download" subcommand.
func downloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download photos referenced by the review store",
		Long:  "Read reviews.jsonl back and download every photo it references. A photo URL listed more than once is downloaded once.",
		Args:  cobra.NoArgs,
		RunE:  runDownload,
	}
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "directory holding the record stores")
	cmd.Flags().StringVar(&photoDir, "photos", "", "photo download directory")
	cmd.Flags().StringVar(&naming, "naming", "", "photo file naming: product, review")
	cmd.Flags().IntVarP(&concurrent, "concurrency", "n", 0, "concurrent photo downloads per item")
	return cmd
}

func runDownload(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, closeLog, err := logging.New(cfg.Logging, verbose)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	run := engine.NewRunContext(cfg, logger)
	client, err := fetcher.NewHTTPClient(cfg.HTTP, retryPolicy(cfg, run.Metrics), run.Logger, fetcher.WithMetrics(run.Metrics))
	if err != nil {
		return fmt.Errorf("create http client: %w", err)
	}
	defer client.Close()

	index, err := storage.NewPhotoIndex(cfg.PhotoIndexPath(), run.Logger)
	if err != nil {
		return fmt.Errorf("open photo index: %w", err)
	}
	defer index.Close()

	downloader := media.NewDownloader(client, cfg.Download.Dir, cfg.Download.Concurrency, run.Dedup, run.Metrics, run.Logger)
	stage := engine.NewPhotoStage(downloader, index, cfg.Download.Naming, run.Logger)
	if err := stage.FromStore(ctx, cfg.ReviewsPath()); err != nil {
		return err
	}

	printSummary(cfg, run.Summary())
	return nil
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("wbscrape %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("Catalog:\n")
			fmt.Printf("  Start URL:          %s\n", cfg.Catalog.StartURL)
			fmt.Printf("  Max Pages:          %d\n", cfg.Catalog.MaxPages)
			fmt.Printf("  Max Products:       %d\n", cfg.Catalog.MaxProducts)
			fmt.Printf("  Reachability Check: %v\n", cfg.Catalog.CheckReachability)
			fmt.Printf("  Respect robots.txt: %v\n", cfg.Catalog.RespectRobotsTxt)
			fmt.Printf("\nCollect:\n")
			fmt.Printf("  Products:           %v\n", cfg.Collect.Products)
			fmt.Printf("  Reviews:            %v\n", cfg.Collect.Reviews)
			fmt.Printf("  Source:             %s\n", cfg.Collect.Source)
			fmt.Printf("  Max Reviews:        %d\n", cfg.Collect.MaxReviews)
			fmt.Printf("  Photos Only:        %v\n", cfg.Collect.PhotosOnly)
			fmt.Printf("\nBrowser:\n")
			fmt.Printf("  Headless:           %v\n", cfg.Browser.Headless)
			fmt.Printf("  Stealth:            %v\n", cfg.Browser.Stealth)
			fmt.Printf("  Delay Profile:      %s\n", cfg.Browser.DelayProfile)
			fmt.Printf("  Navigate Timeout:   %s\n", cfg.Browser.NavigateTimeout)
			fmt.Printf("\nDownload:\n")
			fmt.Printf("  Mode:               %s\n", cfg.Download.Mode)
			fmt.Printf("  Dir:                %s\n", cfg.Download.Dir)
			fmt.Printf("  Concurrency:        %d\n", cfg.Download.Concurrency)
			fmt.Printf("  Naming:             %s\n", cfg.Download.Naming)
			fmt.Printf("\nStorage:\n")
			fmt.Printf("  Products:           %s\n", cfg.ProductsPath())
			fmt.Printf("  Reviews:            %s\n", cfg.ReviewsPath())
			fmt.Printf("  Photo Index:        %s\n", cfg.PhotoIndexPath())
			fmt.Printf("  MongoDB:            %v\n", cfg.Storage.Mongo.Enabled)
			fmt.Printf("  PostgreSQL:         %v\n", cfg.Storage.Postgres.Enabled)
			fmt.Printf("\nMetrics:\n")
			fmt.Printf("  Enabled:            %v\n", cfg.Metrics.Enabled)
			fmt.Printf("  Port:               %d\n", cfg.Metrics.Port)
			return nil
		},
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	applyCLIOverrides(cmd, cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyCLIOverrides applies command-line flag values to the config.
func applyCLIOverrides(cmd *cobra.Command, cfg *config.Config) {
	if outputDir != "" {
		cfg.Storage.OutputDir = outputDir
	}
	if photoDir != "" {
		cfg.Download.Dir = photoDir
	}
	if maxPages >= 0 {
		cfg.Catalog.MaxPages = maxPages
	}
	if maxProducts >= 0 {
		cfg.Catalog.MaxProducts = maxProducts
	}
	if maxReviews > 0 {
		cfg.Collect.MaxReviews = maxReviews
	}
	if allReviews {
		cfg.Collect.PhotosOnly = false
	}
	if source != "" {
		cfg.Collect.Source = source
	}
	if downloadMode != "" {
		cfg.Download.Mode = downloadMode
	}
	if naming != "" {
		cfg.Download.Naming = naming
	}
	if concurrent > 0 {
		cfg.Download.Concurrency = concurrent
	}
	if f := cmd.Flags().Lookup("headless"); f != nil && f.Changed {
		cfg.Browser.Headless = headless
	}
}

func retryPolicy(cfg *config.Config, m *observability.Metrics) fetcher.RetryPolicy {
	return fetcher.RetryPolicy{
		MaxRetries: cfg.HTTP.MaxRetries,
		BaseDelay:  cfg.HTTP.RetryDelay,
		MaxDelay:   30 * time.Second,
		OnRetry: func(int, error) {
			m.RequestsRetried.Add(1)
		},
	}
}

// openSinks opens the JSONL sink and any enabled database sinks. Only the
// JSONL sink is required; a database that cannot be reached is skipped.
func openSinks(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.RecordSink, error) {
	file, err := storage.NewFileSink(cfg.ProductsPath(), cfg.ReviewsPath(), logger)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	sinks := []storage.RecordSink{file}

	if cfg.Storage.Mongo.Enabled {
		mongo, err := storage.NewMongoSink(ctx, cfg.Storage.Mongo.URI, cfg.Storage.Mongo.Database, logger)
		if err != nil {
			logger.Error("mongodb sink disabled", "error", err)
		} else {
			sinks = append(sinks, mongo)
		}
	}
	if cfg.Storage.Postgres.Enabled {
		pg, err := storage.NewPostgresSink(ctx, cfg.Storage.Postgres.DSN, logger)
		if err != nil {
			logger.Error("postgres sink disabled", "error", err)
		} else {
			sinks = append(sinks, pg)
		}
	}

	if len(sinks) == 1 {
		return file, nil
	}
	return storage.NewMultiSink(sinks, logger), nil
}

func printSummary(cfg *config.Config, s *engine.Summary) {
	fmt.Printf("\nRun %s finished in %s\n", s.RunID, s.Elapsed.Round(time.Millisecond))
	fmt.Printf("   Products:  %d extracted, %d failed (%d links)\n", s.Products, s.ProductsFailed, s.ProductLinks)
	fmt.Printf("   Reviews:   %d\n", s.Reviews)
	fmt.Printf("   Photos:    %d downloaded, %d duplicate, %d failed\n", s.PhotosDownloaded, s.PhotosDuplicate, s.PhotosFailed)
	fmt.Printf("   Output:    %s, %s\n", cfg.Storage.OutputDir, cfg.Download.Dir)
}
