package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/farelens/farelens/api"
	"github.com/farelens/farelens/browser"
	"github.com/farelens/farelens/cache"
	"github.com/farelens/farelens/config"
	"github.com/farelens/farelens/models"
	"github.com/farelens/farelens/scraper"
	"github.com/farelens/farelens/selector"
	"github.com/farelens/farelens/store"
	"github.com/farelens/farelens/webhook"
)

var (
	logLevel  string
	logFormat string
)

func main() {
	root := &cobra.Command{
		Use:          "farelens",
		Short:        "Google Flights scraper with selector health monitoring",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default from FARELENS_LOG_LEVEL)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: json or text (default from FARELENS_LOG_FORMAT)")

	root.AddCommand(newSearchCmd(), newServeCmd(), newCatalogCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newSearchCmd() *cobra.Command {
	var (
		from       string
		to         string
		depart     string
		returnDate string
		trip       string
		maxResults int
		output     string
		format     string
		headful    bool
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Run one flight search and write the results",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if headful {
				cfg.Browser.Headless = false
			}
			criteria := models.SearchCriteria{
				Origin:        from,
				Destination:   to,
				DepartureDate: depart,
				ReturnDate:    returnDate,
				TripType:      models.TripType(trip),
				MaxResults:    maxResults,
			}
			return runSearch(cfg, criteria, output, format)
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "origin airport code, e.g. JFK")
	cmd.Flags().StringVar(&to, "to", "", "destination airport code, e.g. LAX")
	cmd.Flags().StringVar(&depart, "depart", "", "departure date, YYYY-MM-DD")
	cmd.Flags().StringVar(&returnDate, "return", "", "return date for round trips, YYYY-MM-DD")
	cmd.Flags().StringVar(&trip, "trip", "", "trip type: one_way or round_trip (default inferred from --return)")
	cmd.Flags().IntVar(&maxResults, "max-results", 0, "cap on extracted offers (default 50)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or csv")
	cmd.Flags().BoolVar(&headful, "headful", false, "run the browser with a visible window")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("depart")

	return cmd
}

func runSearch(cfg *config.Config, criteria models.SearchCriteria, output, format string) error {
	if format != "json" && format != "csv" {
		return fmt.Errorf("unknown format %q: want json or csv", format)
	}

	catalog, err := buildCatalog(cfg)
	if err != nil {
		return err
	}

	var st *store.Store
	if cfg.Store.Enabled {
		if st, err = store.Open(cfg.Store.Path); err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()
	}

	health := selector.NewHealthMonitor(healthThresholds(cfg.Health), slog.Default())
	if cfg.Webhook.URL != "" {
		health.SetNotifier(webhook.NewNotifier(cfg.Webhook))
	}

	mgr, err := browser.NewManager(cfg.Browser, slog.Default())
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	defer mgr.Close()

	sc := scraper.New(scraper.Deps{
		Manager: mgr,
		Catalog: catalog,
		Health:  health,
		Store:   st,
		Config:  cfg,
		Log:     slog.Default(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	outcome := sc.Search(ctx, criteria)

	w := os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "csv":
		err = store.WriteOffersCSV(w, outcome.Offers)
	default:
		err = store.WriteOutcomeJSON(w, outcome)
	}
	if err != nil {
		return fmt.Errorf("write results: %w", err)
	}

	printHealthSummary(health.Report())

	if !outcome.Success {
		return fmt.Errorf("search failed: %s", outcome.ErrorMessage)
	}
	return nil
}

// printHealthSummary warns on stderr when selector resolution degraded
// during the run. Quiet when everything resolved cleanly.
func printHealthSummary(report selector.HealthReport) {
	if len(report.CriticalIssues) == 0 && len(report.Recommendations) == 0 {
		return
	}
	fmt.Fprintf(os.Stderr, "selector health: average success rate %.0f%% across %d pages\n",
		report.OverallHealth.AverageSuccessRate*100, report.PagesMonitored)
	for _, issue := range report.CriticalIssues {
		fmt.Fprintf(os.Stderr, "  critical: %s\n", issue)
	}
	for _, rec := range report.Recommendations {
		fmt.Fprintf(os.Stderr, "  recommended: %s\n", rec)
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the farelens HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(loadConfig())
		},
	}
}

func runServe(cfg *config.Config) error {
	slog.Info("farelens starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"maxPages", cfg.Browser.MaxPages,
	)

	// ── 1. Selector catalog ─────────────────────────────────────────
	catalog, err := buildCatalog(cfg)
	if err != nil {
		return err
	}

	// ── 2. Persistence and cache ────────────────────────────────────
	var st *store.Store
	if cfg.Store.Enabled {
		if st, err = store.Open(cfg.Store.Path); err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()
	}

	cc := cache.New(cfg.Cache)
	defer cc.Close()

	// ── 3. Health monitor + webhook alerting ────────────────────────
	health := selector.NewHealthMonitor(healthThresholds(cfg.Health), slog.Default())
	if cfg.Webhook.URL != "" {
		health.SetNotifier(webhook.NewNotifier(cfg.Webhook))
		slog.Info("webhook alerting enabled",
			"url", cfg.Webhook.URL,
			"min_severity", cfg.Webhook.MinSeverity,
		)
	}

	// ── 4. Browser + scraper ────────────────────────────────────────
	mgr, err := browser.NewManager(cfg.Browser, slog.Default())
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	defer mgr.Close()

	sc := scraper.New(scraper.Deps{
		Manager: mgr,
		Catalog: catalog,
		Health:  health,
		Store:   st,
		Cache:   cc,
		Config:  cfg,
		Log:     slog.Default(),
	})

	// ── 5. HTTP server ──────────────────────────────────────────────
	router := api.NewRouter(sc, health, st, cfg, time.Now())
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: router}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// ── 6. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-quit:
		slog.Info("shutdown signal received", "signal", sig.String())
	}

	// Give in-flight requests 5 seconds to complete.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// mgr.Close() runs via defer, draining the page pool and killing Chrome.
	slog.Info("farelens stopped")
	return nil
}

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and scaffold selector catalog files",
	}
	cmd.AddCommand(newCatalogCheckCmd(), newCatalogInitCmd())
	return cmd
}

func newCatalogCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [file]",
		Short: "Validate a selector catalog file against the built-in defaults",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if len(args) == 1 {
				cfg.Selector.CatalogPath = args[0]
			}
			catalog, err := buildCatalog(cfg)
			if err != nil {
				return err
			}
			if cfg.Selector.CatalogPath != "" {
				fmt.Printf("catalog OK: %d elements (defaults + %s)\n", len(catalog), cfg.Selector.CatalogPath)
			} else {
				fmt.Printf("catalog OK: %d built-in elements\n", len(catalog))
			}
			return nil
		},
	}
}

func newCatalogInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [file]",
		Short: "Write the built-in catalog as a YAML starting point",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "selectors.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists, not overwriting", path)
			}
			catalog := selector.Default()
			if err := catalog.WriteFile(path); err != nil {
				return err
			}
			fmt.Printf("wrote %s (%d elements)\n", path, len(catalog))
			return nil
		},
	}
}

// loadConfig reads the environment configuration, applies CLI overrides,
// and installs the process logger.
func loadConfig() *config.Config {
	cfg := config.Load()
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	initLogger(cfg.Log)
	return cfg
}

// buildCatalog assembles the selector catalog: built-in defaults overlaid
// with the configured catalog file when one is set, validated either way.
func buildCatalog(cfg *config.Config) (selector.Catalog, error) {
	catalog := selector.Default()
	if path := cfg.Selector.CatalogPath; path != "" {
		overlay, err := selector.LoadFile(path)
		if err != nil {
			return nil, err
		}
		catalog = catalog.Merge(overlay)
	}
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	if err := catalog.ValidateRequired(); err != nil {
		return nil, err
	}
	return catalog, nil
}

func healthThresholds(cfg config.HealthConfig) selector.Thresholds {
	return selector.Thresholds{
		CriticalSuccessRate:     cfg.CriticalSuccessRate,
		StructureIndicatorRatio: cfg.StructureIndicatorRatio,
		StructureMinAttempts:    cfg.StructureMinAttempts,
		LowSuccessRate:          cfg.LowSuccessRate,
		RecommendBelowRate:      cfg.RecommendBelowRate,
		MaxAlertsPerPage:        cfg.MaxAlertsPerPage,
	}
}

// initLogger configures slog based on the LogConfig. Logs go to stderr so
// the search command's stdout payload stays machine-readable.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
