// Package browser owns the Chromium lifecycle: one shared browser process,
// a bounded page pool, and per-search page sessions that expose the
// element-query surface the selector engine consumes.
package browser

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"github.com/farelens/farelens/config"
	"github.com/farelens/farelens/models"
)

// Manager launches the browser once and hands out pooled page sessions.
// It is safe for concurrent use; each Session is not.
type Manager struct {
	browser     *rod.Browser
	pool        rod.Pool[rod.Page]
	cfg         config.BrowserConfig
	log         *slog.Logger
	activePages atomic.Int32
	startTime   time.Time
}

// NewManager launches a headless Chromium and initialises the page pool.
func NewManager(cfg config.BrowserConfig, log *slog.Logger) (*Manager, error) {
	if log == nil {
		log = slog.Default()
	}

	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}

	l.Set(flags.Flag("window-size"), fmt.Sprintf("%d,%d", cfg.WindowWidth, cfg.WindowHeight))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-prompt-on-repost"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to launch browser",
			err,
		)
	}
	log.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to connect to browser",
			err,
		)
	}

	pool := rod.NewPagePool(cfg.MaxPages)
	log.Info("page pool created", "maxPages", cfg.MaxPages)

	return &Manager{
		browser:   browser,
		pool:      pool,
		cfg:       cfg,
		log:       log,
		startTime: time.Now(),
	}, nil
}

// Stats returns a snapshot of the pool's current state.
func (m *Manager) Stats() models.PoolStats {
	return models.PoolStats{
		MaxPages:    m.cfg.MaxPages,
		ActivePages: int(m.activePages.Load()),
	}
}

// Uptime reports how long the browser has been running.
func (m *Manager) Uptime() time.Duration {
	return time.Since(m.startTime)
}

// Close drains the page pool and kills the browser process. Call on
// graceful shutdown to prevent zombie Chromium processes.
func (m *Manager) Close() {
	m.log.Info("browser shutting down: draining page pool")
	m.pool.Cleanup(func(p *rod.Page) {
		_ = p.Close()
	})
	m.log.Info("browser shutting down: closing browser")
	m.browser.MustClose()
	m.log.Info("browser shutdown complete")
}

// acquirePage borrows a tab from the pool, creating one on first use.
func (m *Manager) acquirePage() (*rod.Page, error) {
	page, err := m.pool.Get(func() (*rod.Page, error) {
		return m.browser.Page(proto.TargetCreateTarget{})
	})
	if err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to acquire page from pool",
			err,
		)
	}
	return page, nil
}
