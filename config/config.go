package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Selector  SelectorConfig
	Health    HealthConfig
	Search    SearchConfig
	Store     StoreConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Webhook   WebhookConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MaxPages is the page pool capacity (max concurrent sessions).
	MaxPages int // default: 4

	// WindowWidth/WindowHeight set the viewport size.
	WindowWidth  int // default: 1920
	WindowHeight int // default: 1080

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// NavigationTimeout is the max time for page.Navigate alone.
	NavigationTimeout time.Duration // default: 30s

	// DOMStableWindow and DOMStableDiff tune the post-navigation settle wait.
	DOMStableWindow time.Duration // default: 500ms
	DOMStableDiff   float64       // default: 0.1

	// BlockedResourceTypes lists resource types to block for faster loads.
	// default: ["Image", "Font", "Media"]
	BlockedResourceTypes []string

	// BlockTrackers blocks requests to known analytics and ad domains.
	BlockTrackers bool // default: true

	// AcceptLanguage pins the Accept-Language header so prices and durations
	// render in the formats the extraction parsers expect.
	AcceptLanguage string // default: "en-US,en;q=0.9"
}

// SelectorConfig controls the element resolution engine.
type SelectorConfig struct {
	// ResolveTimeout is the total budget for one logical-element resolution.
	ResolveTimeout time.Duration // default: 10s

	// MinCandidateTimeout is the floor for a single candidate's wait, so every
	// candidate is still tried once the overall budget runs dry.
	MinCandidateTimeout time.Duration // default: 250ms

	// CaptureDOMContext toggles capturing a DOM snippet around failed selectors.
	CaptureDOMContext bool // default: true

	// DOMContextMaxLen truncates captured snippets.
	DOMContextMaxLen int // default: 300

	// CatalogPath optionally loads selector candidates from a YAML file
	// instead of the built-in defaults.
	CatalogPath string
}

// HealthConfig controls selector health aggregation and alerting.
// The thresholds are deliberate knobs; defaults mirror the values the
// monitoring heuristics were tuned with.
type HealthConfig struct {
	// CriticalSuccessRate: below this overall rate a critical alert fires.
	CriticalSuccessRate float64 // default: 0.5

	// StructureIndicatorRatio: fraction of degraded elements above which the
	// page is considered structurally changed.
	StructureIndicatorRatio float64 // default: 0.5

	// StructureMinAttempts: a fully failed element with at least this many
	// attempts counts as a structure-change indicator.
	StructureMinAttempts int // default: 3

	// LowSuccessRate: pages below this rate are listed as critical issues.
	LowSuccessRate float64 // default: 0.3

	// RecommendBelowRate: average rate below which the report carries
	// recommendations.
	RecommendBelowRate float64 // default: 0.7

	// MaxAlertsPerPage bounds the per-page alert history.
	MaxAlertsPerPage int // default: 100
}

// SearchConfig controls target-site URLs and result handling.
type SearchConfig struct {
	// BaseURL opens the one-way search form.
	BaseURL string

	// RoundTripURL opens the round-trip search form.
	RoundTripURL string

	// SearchURL is the results URL prefix used to detect a completed search.
	SearchURL string

	// FallbackURL is used when primary navigation fails.
	FallbackURL string

	// Currency tags extracted prices. default: "USD"
	Currency string

	// FieldSettleDelay is the pause after committing a form field, giving
	// the autocomplete dropdown time to apply the selection.
	FieldSettleDelay time.Duration // default: 1s

	// SubmitSettleDelay is the pause after triggering the search before the
	// results URL is first checked.
	SubmitSettleDelay time.Duration // default: 3s

	// ResultsTimeout bounds the wait for the results page to settle.
	ResultsTimeout time.Duration // default: 30s

	// ResultsPollInterval is how often the results URL is re-checked while
	// waiting for the search to land.
	ResultsPollInterval time.Duration // default: 500ms
}

// StoreConfig controls offer persistence.
type StoreConfig struct {
	// Enabled toggles the sqlite store.
	Enabled bool // default: true

	// Path is the sqlite database file. ":memory:" for ephemeral runs.
	Path string // default: "farelens.db"
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 1

	// Burst is the maximum burst size per API key.
	Burst int // default: 3
}

// CacheConfig controls the search outcome cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached outcomes.
	MaxEntries int // default: 500

	// MaxAge is how long a cached outcome stays servable.
	MaxAge time.Duration // default: 10m
}

// WebhookConfig controls alert delivery to an operator endpoint.
type WebhookConfig struct {
	// URL receives selector alerts as JSON events. Empty disables delivery.
	URL string

	// Secret signs payloads with HMAC-SHA256 when non-empty.
	Secret string

	// MinSeverity filters delivered alerts: "warning" or "critical".
	MinSeverity string // default: "critical"
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("FARELENS_HOST", "0.0.0.0"),
			Port: envIntOr("FARELENS_PORT", 8080),
			Mode: envOr("FARELENS_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:          envBoolOr("FARELENS_HEADLESS", true),
			MaxPages:          envIntOr("FARELENS_MAX_PAGES", 4),
			WindowWidth:       envIntOr("FARELENS_WINDOW_WIDTH", 1920),
			WindowHeight:      envIntOr("FARELENS_WINDOW_HEIGHT", 1080),
			NoSandbox:         envBoolOr("FARELENS_NO_SANDBOX", false),
			BrowserBin:        os.Getenv("FARELENS_BROWSER_BIN"),
			NavigationTimeout: envDurationOr("FARELENS_NAV_TIMEOUT", 30*time.Second),
			DOMStableWindow:   envDurationOr("FARELENS_DOM_STABLE_WINDOW", 500*time.Millisecond),
			DOMStableDiff:     envFloatOr("FARELENS_DOM_STABLE_DIFF", 0.1),
			BlockedResourceTypes: envSliceOr("FARELENS_BLOCKED_RESOURCES", []string{
				"Image", "Font", "Media",
			}),
			BlockTrackers:  envBoolOr("FARELENS_BLOCK_TRACKERS", true),
			AcceptLanguage: envOr("FARELENS_ACCEPT_LANGUAGE", "en-US,en;q=0.9"),
		},
		Selector: SelectorConfig{
			ResolveTimeout:      envDurationOr("FARELENS_RESOLVE_TIMEOUT", 10*time.Second),
			MinCandidateTimeout: envDurationOr("FARELENS_MIN_CANDIDATE_TIMEOUT", 250*time.Millisecond),
			CaptureDOMContext:   envBoolOr("FARELENS_CAPTURE_DOM_CONTEXT", true),
			DOMContextMaxLen:    envIntOr("FARELENS_DOM_CONTEXT_MAX_LEN", 300),
			CatalogPath:         os.Getenv("FARELENS_CATALOG_PATH"),
		},
		Health: HealthConfig{
			CriticalSuccessRate:     envFloatOr("FARELENS_HEALTH_CRITICAL_RATE", 0.5),
			StructureIndicatorRatio: envFloatOr("FARELENS_HEALTH_STRUCTURE_RATIO", 0.5),
			StructureMinAttempts:    envIntOr("FARELENS_HEALTH_STRUCTURE_MIN_ATTEMPTS", 3),
			LowSuccessRate:          envFloatOr("FARELENS_HEALTH_LOW_RATE", 0.3),
			RecommendBelowRate:      envFloatOr("FARELENS_HEALTH_RECOMMEND_RATE", 0.7),
			MaxAlertsPerPage:        envIntOr("FARELENS_HEALTH_MAX_ALERTS", 100),
		},
		Search: SearchConfig{
			BaseURL:             envOr("FARELENS_BASE_URL", "https://www.google.com/travel/flights?tfs=CBwQARoAQAFIAXABggELCP___________wGYAQI&tfu=KgIIAw"),
			RoundTripURL:        envOr("FARELENS_ROUND_TRIP_URL", "https://www.google.com/travel/flights?tfs=CBwQARoOagwIAhIIL20vMGQ5anIaDnIMCAISCC9tLzBkOWpyQAFIAXABggELCP___________wGYAQE&tfu=KgIIAg"),
			SearchURL:           envOr("FARELENS_SEARCH_URL", "https://www.google.com/travel/flights/search"),
			FallbackURL:         envOr("FARELENS_FALLBACK_URL", "https://www.google.com/travel/flights"),
			Currency:            envOr("FARELENS_CURRENCY", "USD"),
			FieldSettleDelay:    envDurationOr("FARELENS_FIELD_SETTLE", time.Second),
			SubmitSettleDelay:   envDurationOr("FARELENS_SUBMIT_SETTLE", 3*time.Second),
			ResultsTimeout:      envDurationOr("FARELENS_RESULTS_TIMEOUT", 30*time.Second),
			ResultsPollInterval: envDurationOr("FARELENS_RESULTS_POLL", 500*time.Millisecond),
		},
		Store: StoreConfig{
			Enabled: envBoolOr("FARELENS_STORE_ENABLED", true),
			Path:    envOr("FARELENS_STORE_PATH", "farelens.db"),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("FARELENS_AUTH_ENABLED", true),
			APIKeys: envSliceOr("FARELENS_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("FARELENS_RATE_RPS", 1.0),
			Burst:             envIntOr("FARELENS_RATE_BURST", 3),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("FARELENS_CACHE_MAX_ENTRIES", 500),
			MaxAge:     envDurationOr("FARELENS_CACHE_MAX_AGE", 10*time.Minute),
		},
		Webhook: WebhookConfig{
			URL:         os.Getenv("FARELENS_WEBHOOK_URL"),
			Secret:      os.Getenv("FARELENS_WEBHOOK_SECRET"),
			MinSeverity: envOr("FARELENS_WEBHOOK_MIN_SEVERITY", "critical"),
		},
		Log: LogConfig{
			Level:  envOr("FARELENS_LOG_LEVEL", "info"),
			Format: envOr("FARELENS_LOG_FORMAT", "json"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
