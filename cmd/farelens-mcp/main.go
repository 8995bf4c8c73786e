package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/farelens/farelens/browser"
	"github.com/farelens/farelens/cache"
	"github.com/farelens/farelens/config"
	"github.com/farelens/farelens/models"
	"github.com/farelens/farelens/scraper"
	"github.com/farelens/farelens/selector"
	"github.com/farelens/farelens/store"
	"github.com/farelens/farelens/webhook"
)

// app holds the scraping stack shared by the MCP tools. The browser is
// launched lazily on the first search so that health_report and
// list_offers keep working on hosts without Chromium.
type app struct {
	cfg     *config.Config
	catalog selector.Catalog
	health  *selector.HealthMonitor
	store   *store.Store
	cache   *cache.Cache

	launch  sync.Once
	mgr     *browser.Manager
	scraper *scraper.Scraper
	initErr error
}

func main() {
	cfg := config.Load()
	initLogger(cfg.Log)

	catalog, err := buildCatalog(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "selector catalog: %v\n", err)
		os.Exit(1)
	}

	var st *store.Store
	if cfg.Store.Enabled {
		st, err = store.Open(cfg.Store.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open store: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()
	}

	health := selector.NewHealthMonitor(healthThresholds(cfg.Health), slog.Default())
	if cfg.Webhook.URL != "" {
		health.SetNotifier(webhook.NewNotifier(cfg.Webhook))
	}

	cc := cache.New(cfg.Cache)
	defer cc.Close()

	a := &app{cfg: cfg, catalog: catalog, health: health, store: st, cache: cc}
	defer a.close()

	s := server.NewMCPServer(
		"farelens",
		"0.1.0",
		server.WithToolCapabilities(false),
	)

	searchTool := mcp.NewTool("search_flights",
		mcp.WithDescription("Search Google Flights for offers on a route. Drives a headless browser, so a call can take up to a minute. Returns the full scrape outcome as JSON, including prices, airlines, durations and stops."),
		mcp.WithString("origin",
			mcp.Required(),
			mcp.Description("Origin IATA airport code, e.g. 'JFK'"),
		),
		mcp.WithString("destination",
			mcp.Required(),
			mcp.Description("Destination IATA airport code, e.g. 'LAX'"),
		),
		mcp.WithString("departure_date",
			mcp.Required(),
			mcp.Description("Departure date in YYYY-MM-DD format"),
		),
		mcp.WithString("return_date",
			mcp.Description("Return date in YYYY-MM-DD format. Required for round trips."),
		),
		mcp.WithString("trip_type",
			mcp.Description("Trip type: 'one_way' or 'round_trip'. Defaults to round_trip when return_date is set, one_way otherwise."),
			mcp.Enum("one_way", "round_trip"),
		),
		mcp.WithNumber("max_results",
			mcp.Description("Maximum number of offers to extract (default: 50, max: 200)"),
		),
	)
	s.AddTool(searchTool, a.handleSearchFlights)

	healthTool := mcp.NewTool("health_report",
		mcp.WithDescription("Report selector resolution health for the scraped pages: per-page success rates, detected page structure changes, active alerts and remediation recommendations. Useful for diagnosing why searches return empty or fail."),
	)
	s.AddTool(healthTool, a.handleHealthReport)

	offersTool := mcp.NewTool("list_offers",
		mcp.WithDescription("List flight offers persisted by earlier searches, newest first. Filters are optional and combine."),
		mcp.WithString("origin",
			mcp.Description("Only offers departing this IATA airport code"),
		),
		mcp.WithString("destination",
			mcp.Description("Only offers arriving at this IATA airport code"),
		),
		mcp.WithNumber("max_price",
			mcp.Description("Only offers at or below this price"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of offers to return (default: 50)"),
		),
	)
	s.AddTool(offersTool, a.handleListOffers)

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// searcher launches the browser stack on first use. The error is sticky:
// once a launch fails, every later search reports the same failure instead
// of retrying into a half-initialised pool.
func (a *app) searcher() (*scraper.Scraper, error) {
	a.launch.Do(func() {
		mgr, err := browser.NewManager(a.cfg.Browser, slog.Default())
		if err != nil {
			a.initErr = fmt.Errorf("launch browser: %w", err)
			return
		}
		a.mgr = mgr
		a.scraper = scraper.New(scraper.Deps{
			Manager: mgr,
			Catalog: a.catalog,
			Health:  a.health,
			Store:   a.store,
			Cache:   a.cache,
			Config:  a.cfg,
			Log:     slog.Default(),
		})
	})
	if a.initErr != nil {
		return nil, a.initErr
	}
	return a.scraper, nil
}

func (a *app) close() {
	if a.mgr != nil {
		a.mgr.Close()
	}
}

func (a *app) handleSearchFlights(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	origin, err := request.RequireString("origin")
	if err != nil {
		return mcp.NewToolResultError("origin is required"), nil
	}
	destination, err := request.RequireString("destination")
	if err != nil {
		return mcp.NewToolResultError("destination is required"), nil
	}
	departureDate, err := request.RequireString("departure_date")
	if err != nil {
		return mcp.NewToolResultError("departure_date is required"), nil
	}

	criteria := models.SearchCriteria{
		Origin:        origin,
		Destination:   destination,
		DepartureDate: departureDate,
		ReturnDate:    request.GetString("return_date", ""),
		TripType:      models.TripType(request.GetString("trip_type", "")),
	}
	if v, ok := request.GetArguments()["max_results"].(float64); ok {
		criteria.MaxResults = int(v)
	}

	sc, err := a.searcher()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	outcome := sc.Search(ctx, criteria)
	if !outcome.Success {
		errMsg := outcome.ErrorMessage
		if outcome.Error != nil {
			errMsg = fmt.Sprintf("[%s] %s", outcome.Error.Code, outcome.Error.Message)
		}
		return mcp.NewToolResultError(errMsg), nil
	}

	return jsonResult(outcome)
}

func (a *app) handleHealthReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{
		"report": a.health.Report(),
		"alerts": a.health.AllAlerts(),
	})
}

func (a *app) handleListOffers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if a.store == nil {
		return mcp.NewToolResultError("offer persistence is disabled (set FARELENS_STORE_ENABLED=true)"), nil
	}

	filter := store.OfferFilter{
		Origin:      request.GetString("origin", ""),
		Destination: request.GetString("destination", ""),
	}
	args := request.GetArguments()
	if v, ok := args["max_price"].(float64); ok {
		filter.MaxPrice = v
	}
	if v, ok := args["limit"].(float64); ok {
		filter.Limit = int(v)
	}

	offers, err := a.store.ListOffers(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list offers: %v", err)), nil
	}

	return jsonResult(map[string]any{
		"offers": offers,
		"total":  len(offers),
	})
}

// jsonResult marshals v as indented JSON text content.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
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

// initLogger configures slog on stderr. Stdout carries the MCP protocol
// stream and must stay clean.
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
