// Package scraper orchestrates flight searches: it drives the search form,
// waits for results, and extracts structured offers, recording selector
// health for every page it touches along the way.
package scraper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/farelens/farelens/browser"
	"github.com/farelens/farelens/cache"
	"github.com/farelens/farelens/config"
	"github.com/farelens/farelens/fingerprint"
	"github.com/farelens/farelens/models"
	"github.com/farelens/farelens/selector"
	"github.com/farelens/farelens/store"
)

// Page types under which session health and fingerprints are recorded.
const (
	searchPage  = "flight_search_page"
	resultsPage = "results_page"
)

// Deps carries the collaborators a Scraper is built from. Store and Cache
// are optional.
type Deps struct {
	Manager *browser.Manager
	Catalog selector.Catalog
	Health  *selector.HealthMonitor
	Store   *store.Store
	Cache   *cache.Cache
	Config  *config.Config
	Log     *slog.Logger
}

// Scraper runs complete search sessions against the target site.
type Scraper struct {
	mgr     *browser.Manager
	catalog selector.Catalog
	health  *selector.HealthMonitor
	store   *store.Store
	cache   *cache.Cache
	cfg     *config.Config
	log     *slog.Logger
}

// New assembles a Scraper from its dependencies.
func New(deps Deps) *Scraper {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	return &Scraper{
		mgr:     deps.Manager,
		catalog: deps.Catalog,
		health:  deps.Health,
		store:   deps.Store,
		cache:   deps.Cache,
		cfg:     deps.Config,
		log:     log,
	}
}

// Search runs one full scrape session for the criteria. Failures are folded
// into the outcome rather than returned, so every caller gets a uniform
// record of what happened. Session health is recorded for the search page
// and the results page on success and failure paths alike.
func (s *Scraper) Search(ctx context.Context, criteria models.SearchCriteria) *models.ScrapeOutcome {
	start := time.Now()
	criteria.Defaults()

	outcome := &models.ScrapeOutcome{Criteria: criteria, ScrapedAt: start.UTC()}

	if err := criteria.Validate(); err != nil {
		return s.fail(outcome, start, err)
	}

	if s.cache != nil {
		if out, ok := s.cache.Get(cache.Key(criteria)); ok {
			out.CacheStatus = "hit"
			s.log.Info("search served from cache", "route", criteria.Route())
			return &out
		}
	}

	sess, err := s.mgr.NewSession(ctx)
	if err != nil {
		return s.fail(outcome, start, err)
	}
	defer sess.Close()
	outcome.SessionID = sess.ID

	res := selector.NewResolver(sess.Driver(), s.catalog, s.health, s.selectorOptions())
	form := NewFormHandler(res, sess.Driver(), sess, s.cfg.Search, s.log)

	log := s.log.With("session_id", sess.ID, "route", criteria.Route())
	log.Info("starting flight search",
		"departure", criteria.DepartureDate, "trip_type", criteria.TripType)

	if err := form.Navigate(ctx, criteria); err != nil {
		return s.fail(outcome, start, err)
	}
	s.recordFingerprint(sess, searchPage)

	if err := form.Fill(ctx, criteria); err != nil {
		res.RecordSessionHealth(searchPage)
		return s.fail(outcome, start, err)
	}

	// The form elements belong to the search page; everything after the
	// submit is results-page territory, so the monitoring window rolls over.
	err = form.Submit(ctx)
	res.RecordSessionHealth(searchPage)
	res.ResetMonitoring()
	if err != nil {
		return s.fail(outcome, start, err)
	}

	if err := form.WaitForResults(ctx); err != nil {
		res.RecordSessionHealth(resultsPage)
		return s.fail(outcome, start, err)
	}
	s.recordFingerprint(sess, resultsPage)

	extractor := NewExtractor(res, s.cfg.Search.Currency, s.log)
	offers, err := extractor.Extract(ctx, criteria)
	res.RecordSessionHealth(resultsPage)
	if err != nil {
		return s.fail(outcome, start, err)
	}

	outcome.Offers = offers
	outcome.Total = len(offers)
	outcome.Success = true
	outcome.FinalURL = sess.URL()
	outcome.ExecutionSeconds = time.Since(start).Seconds()

	if s.store != nil {
		if err := s.store.SaveOutcome(ctx, outcome); err != nil {
			log.Error("persisting outcome failed", "error", err)
		}
	}
	if s.cache != nil {
		s.cache.Set(cache.Key(criteria), *outcome)
		outcome.CacheStatus = "miss"
	}

	log.Info("flight search completed",
		"offers", outcome.Total, "seconds", outcome.ExecutionSeconds)
	return outcome
}

// Stats reports current browser pool utilisation.
func (s *Scraper) Stats() models.PoolStats {
	return s.mgr.Stats()
}

// fail stamps the outcome with the error and timing. Never returns nil.
func (s *Scraper) fail(outcome *models.ScrapeOutcome, start time.Time, err error) *models.ScrapeOutcome {
	outcome.Success = false
	outcome.ErrorMessage = err.Error()
	outcome.ExecutionSeconds = time.Since(start).Seconds()

	var se *models.ScrapeError
	if errors.As(err, &se) {
		outcome.Error = se.ToDetail()
	}

	s.log.Error("flight search failed",
		"route", outcome.Criteria.Route(),
		"session_id", outcome.SessionID,
		"error", err)
	return outcome
}

// recordFingerprint snapshots the page markup structure into the health
// monitor. Best-effort diagnostics; capture failures are not errors.
func (s *Scraper) recordFingerprint(sess *browser.Session, pageType string) {
	if s.health == nil {
		return
	}
	markup, err := sess.HTML()
	if err != nil {
		s.log.Debug("fingerprint capture skipped", "page_type", pageType, "error", err)
		return
	}
	s.health.RecordPageFingerprint(pageType, fingerprint.HTML(markup))
}

func (s *Scraper) selectorOptions() selector.Options {
	sel := s.cfg.Selector
	return selector.Options{
		ResolveTimeout:      sel.ResolveTimeout,
		MinCandidateTimeout: sel.MinCandidateTimeout,
		CaptureDOMContext:   sel.CaptureDOMContext,
		DOMContextMaxLen:    sel.DOMContextMaxLen,
		Logger:              s.log,
	}
}
