package browser

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"github.com/ysmood/gson"

	"github.com/farelens/farelens/models"
)

// Session is one borrowed page for the duration of one search. It owns the
// page until Close, which returns the blanked tab to the pool.
//
// Lifecycle ordering matters: the hijack router must be mounted before the
// first navigation or resource blocking misses the initial page load, and
// Close must use the original page reference so cleanup still works after
// the request context has expired.
type Session struct {
	ID     string
	page   *rod.Page
	router *rod.HijackRouter
	mgr    *Manager
	log    *slog.Logger
}

// NewSession borrows a page from the pool and prepares it for a search:
// viewport set, resource blocking mounted.
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	page, err := m.acquirePage()
	if err != nil {
		return nil, err
	}
	m.activePages.Add(1)

	id := uuid.NewString()
	log := m.log.With("session_id", id)

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             m.cfg.WindowWidth,
		Height:            m.cfg.WindowHeight,
		DeviceScaleFactor: 1,
		Mobile:            false,
	}); err != nil {
		log.Warn("viewport setup failed, continuing with browser default", "error", err)
	}

	// Pin the locale; the price and duration parsers assume en-US formats.
	if m.cfg.AcceptLanguage != "" {
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeadersMap(map[string]string{"Accept-Language": m.cfg.AcceptLanguage}),
		}.Call(page)
	}

	router := mountHijack(page, m.cfg.BlockedResourceTypes, m.cfg.BlockTrackers)

	return &Session{
		ID:     id,
		page:   page,
		router: router,
		mgr:    m,
		log:    log,
	}, nil
}

// Navigate loads a URL and waits for the DOM to settle. The wait not
// converging is not an error; search pages keep polling prices long after
// the parts we need are in place.
func (s *Session) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, s.mgr.cfg.NavigationTimeout)
	defer cancel()

	p := s.page.Context(navCtx)
	if err := p.Navigate(url); err != nil {
		return categorizeNavError(err, "navigation failed")
	}
	s.log.Debug("navigated", "url", url)

	if err := p.WaitDOMStable(s.mgr.cfg.DOMStableWindow, s.mgr.cfg.DOMStableDiff); err != nil {
		s.log.Debug("DOM did not settle, proceeding with current state", "error", err)
	}
	return nil
}

// WaitStable re-runs the DOM settle wait, bounded by d.
func (s *Session) WaitStable(ctx context.Context, d time.Duration) {
	waitCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	p := s.page.Context(waitCtx)
	if err := p.WaitDOMStable(s.mgr.cfg.DOMStableWindow, s.mgr.cfg.DOMStableDiff); err != nil {
		s.log.Debug("DOM did not settle", "error", err)
	}
}

// HTML returns the current rendered markup.
func (s *Session) HTML() (string, error) {
	html, err := s.page.HTML()
	if err != nil {
		return "", models.NewScrapeError(models.ErrCodeExtraction, "failed to extract page HTML", err)
	}
	return html, nil
}

// URL returns the page's current location, empty on error.
func (s *Session) URL() string {
	info, err := s.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// Title returns document.title, empty on error.
func (s *Session) Title() string {
	res, err := s.page.Eval(`() => document.title`)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// PressEnter sends the Enter key to the focused element. Search forms on
// the target site commit autocomplete choices this way.
func (s *Session) PressEnter() error {
	return s.page.Keyboard.Press(input.Enter)
}

// PressEscape sends Escape, dismissing any open picker overlay.
func (s *Session) PressEscape() error {
	return s.page.Keyboard.Press(input.Escape)
}

// Driver exposes the session as the element-query surface the selector
// engine consumes.
func (s *Session) Driver() *PageDriver {
	return &PageDriver{session: s}
}

// Close blanks the page and returns it to the pool. Always call it, even
// after errors; a page left on a heavy search URL leaks DOM memory across
// pool reuses.
func (s *Session) Close() {
	if s.router != nil {
		if err := s.router.Stop(); err != nil {
			s.log.Warn("cleanup: hijack router stop failed", "error", err)
		}
	}
	if err := s.page.Navigate("about:blank"); err != nil {
		s.log.Warn("cleanup: failed to navigate to about:blank", "error", err)
	}
	s.mgr.pool.Put(s.page)
	s.mgr.activePages.Add(-1)
	s.log.Debug("session closed")
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// categorizeNavError wraps raw navigation errors into typed ScrapeErrors
// so callers can map them to API status codes.
func categorizeNavError(err error, msg string) *models.ScrapeError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "navigation canceled", err)
	default:
		return models.NewScrapeError(models.ErrCodeNavigation, msg, err)
	}
}
